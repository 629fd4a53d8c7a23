// Package ingestion implements the buffered event write pipeline.
//
// Enqueue never blocks the caller on durable I/O. Events accumulate in
// one append-only buffer per session key; a buffer is handed to the
// durable writer when it reaches the size threshold or when its oldest
// event exceeds the time window, whichever happens first. Detachment is
// swap-and-flush: the buffer is atomically replaced under the lock, so
// concurrent enqueues land in a fresh buffer while the flush proceeds.
//
// Delivery is at-least-once. A batch whose durable write keeps failing
// after bounded backoff is surfaced to the dead-letter hook instead of
// being retried forever; consumers of the durable log dedupe on
// (sessionId, timestamp, eventType).
package ingestion

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"

	"github.com/PulseTrack/pulsetrack-go/internal/domain/entities/session"
	"github.com/PulseTrack/pulsetrack-go/internal/domain/errs"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/monitoring"
)

// BatchWriter is the durable sink for flushed batches.
type BatchWriter interface {
	WriteBatch(ctx context.Context, batchID string, events []session.BehaviorEvent) error
}

// ProcessFunc is invoked asynchronously after a successful flush. It
// must be safe to invoke multiple times for the same batch identifier.
type ProcessFunc func(batchID string, events []session.BehaviorEvent)

// DeadLetterFunc receives batches that exhausted their retries.
type DeadLetterFunc func(batchID string, events []session.BehaviorEvent, err error)

// Config holds the batcher thresholds.
type Config struct {
	FlushSize       int
	FlushWindow     time.Duration
	SweepInterval   time.Duration
	MaxRetries      int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	ProcessingDelay time.Duration
}

type buffer struct {
	events []session.BehaviorEvent
	oldest time.Time
}

// Batcher buffers behavior events per session and flushes them in bulk.
type Batcher struct {
	writer       BatchWriter
	onProcess    ProcessFunc
	onDeadLetter DeadLetterFunc
	cfg          Config
	logger       *logging.ChanneledLogger
	metrics      *monitoring.Metrics

	buffers map[string]*buffer
	mu      sync.Mutex

	entropy   *ulid.MonotonicEntropy
	entropyMu sync.Mutex

	wg        sync.WaitGroup
	closed    bool
	drainOnce sync.Once
	drained   chan struct{}
}

// NewBatcher creates a batcher. onProcess and onDeadLetter may be nil.
func NewBatcher(writer BatchWriter, cfg Config, logger *logging.ChanneledLogger, metrics *monitoring.Metrics) *Batcher {
	return &Batcher{
		writer:  writer,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		buffers: make(map[string]*buffer),
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		drained: make(chan struct{}),
	}
}

// SetProcessFunc installs the post-flush processing hook.
func (b *Batcher) SetProcessFunc(fn ProcessFunc) { b.onProcess = fn }

// SetDeadLetterFunc installs the dead-letter hook.
func (b *Batcher) SetDeadLetterFunc(fn DeadLetterFunc) { b.onDeadLetter = fn }

func (b *Batcher) newBatchID() string {
	b.entropyMu.Lock()
	defer b.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), b.entropy).String()
}

// Enqueue appends one event to its session's buffer. When the buffer
// reaches the size threshold it is detached and flushed in the
// background; the caller returns immediately either way.
func (b *Batcher) Enqueue(sessionID string, event session.BehaviorEvent) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		if b.logger != nil {
			b.logger.Ingestion().Warn("Enqueue after shutdown dropped", "sessionId", sessionID)
		}
		return
	}
	buf, ok := b.buffers[sessionID]
	if !ok {
		buf = &buffer{oldest: time.Now()}
		b.buffers[sessionID] = buf
		if b.metrics != nil {
			b.metrics.OpenBuffers.Inc()
		}
	}
	if len(buf.events) == 0 {
		buf.oldest = time.Now()
	}
	buf.events = append(buf.events, event)

	// wg.Add happens under the lock so Drain, which sets closed under
	// the same lock, always observes every in-flight flush.
	var detached []session.BehaviorEvent
	if len(buf.events) >= b.cfg.FlushSize {
		detached = buf.events
		delete(b.buffers, sessionID)
		if b.metrics != nil {
			b.metrics.OpenBuffers.Dec()
		}
		b.wg.Add(1)
	}
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.EventsEnqueued.Inc()
	}
	if detached != nil {
		go func() {
			defer b.wg.Done()
			b.flush(context.Background(), sessionID, detached)
		}()
	}
}

// Start runs the background sweep until ctx is cancelled, then drains.
func (b *Batcher) Start(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.Drain(context.Background())
			return
		case <-ticker.C:
			b.sweep(time.Now())
		}
	}
}

// sweep detaches and flushes every buffer whose oldest event has aged
// past the flush window.
func (b *Batcher) sweep(now time.Time) {
	type aged struct {
		sessionID string
		events    []session.BehaviorEvent
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	var due []aged
	for sessionID, buf := range b.buffers {
		if len(buf.events) > 0 && now.Sub(buf.oldest) >= b.cfg.FlushWindow {
			due = append(due, aged{sessionID, buf.events})
			delete(b.buffers, sessionID)
			if b.metrics != nil {
				b.metrics.OpenBuffers.Dec()
			}
		}
	}
	b.wg.Add(len(due))
	b.mu.Unlock()

	for _, a := range due {
		go func(a aged) {
			defer b.wg.Done()
			b.flush(context.Background(), a.sessionID, a.events)
		}(a)
	}
}

// Drain detaches every open buffer, flushes synchronously, and waits
// for in-flight background flushes. Used on graceful shutdown. The
// first caller performs the drain; concurrent and repeat callers block
// until it completes.
func (b *Batcher) Drain(ctx context.Context) {
	b.drainOnce.Do(func() {
		defer close(b.drained)

		b.mu.Lock()
		b.closed = true
		remaining := b.buffers
		b.buffers = make(map[string]*buffer)
		if b.metrics != nil {
			for range remaining {
				b.metrics.OpenBuffers.Dec()
			}
		}
		b.mu.Unlock()

		for sessionID, buf := range remaining {
			if len(buf.events) > 0 {
				b.flush(ctx, sessionID, buf.events)
			}
		}
		b.wg.Wait()
	})
	<-b.drained
}

// flush writes one detached batch with bounded exponential backoff.
func (b *Batcher) flush(ctx context.Context, sessionID string, events []session.BehaviorEvent) {
	batchID := b.newBatchID()
	start := time.Now()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.cfg.RetryBaseDelay
	policy.MaxInterval = b.cfg.RetryMaxDelay

	attempt := 0
	operation := func() error {
		attempt++
		err := b.writer.WriteBatch(ctx, batchID, events)
		if err != nil && attempt > 1 && b.metrics != nil {
			b.metrics.FlushRetries.Inc()
		}
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(b.cfg.MaxRetries)), ctx))
	if err != nil {
		wrapped := &errs.DurableWriteFailure{BatchID: batchID, Err: err}
		if b.logger != nil {
			b.logger.Ingestion().Error("Batch dead-lettered after exhausting retries",
				"batchId", batchID,
				"sessionId", sessionID,
				"eventCount", len(events),
				"attempts", attempt,
				"error", err.Error())
		}
		if b.metrics != nil {
			b.metrics.BatchesDeadLetter.Inc()
		}
		if b.onDeadLetter != nil {
			b.onDeadLetter(batchID, events, wrapped)
		}
		return
	}

	if b.metrics != nil {
		b.metrics.BatchesFlushed.Inc()
		b.metrics.EventsFlushed.Add(float64(len(events)))
	}
	if b.logger != nil {
		b.logger.Ingestion().Info("Batch flushed",
			"batchId", batchID,
			"sessionId", sessionID,
			"eventCount", len(events),
			"attempts", attempt,
			"duration", time.Since(start))
	}

	if b.onProcess != nil {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			if b.cfg.ProcessingDelay > 0 {
				time.Sleep(b.cfg.ProcessingDelay)
			}
			b.onProcess(batchID, events)
		}()
	}
}

// PendingEvents reports the total number of buffered events. Used by
// tests and the health endpoint.
func (b *Batcher) PendingEvents() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, buf := range b.buffers {
		total += len(buf.events)
	}
	return total
}
