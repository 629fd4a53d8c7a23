package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PulseTrack/pulsetrack-go/internal/domain/entities/session"
	"github.com/PulseTrack/pulsetrack-go/internal/domain/errs"
)

type capturedBatch struct {
	batchID string
	events  []session.BehaviorEvent
}

type fakeWriter struct {
	mu       sync.Mutex
	batches  []capturedBatch
	failures int
}

func (w *fakeWriter) WriteBatch(ctx context.Context, batchID string, events []session.BehaviorEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failures > 0 {
		w.failures--
		return errors.New("simulated write failure")
	}
	copied := make([]session.BehaviorEvent, len(events))
	copy(copied, events)
	w.batches = append(w.batches, capturedBatch{batchID: batchID, events: copied})
	return nil
}

func (w *fakeWriter) snapshot() []capturedBatch {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]capturedBatch, len(w.batches))
	copy(out, w.batches)
	return out
}

func testConfig() Config {
	return Config{
		FlushSize:      100,
		FlushWindow:    5 * time.Second,
		SweepInterval:  time.Second,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
	}
}

func makeEvent(sessionID string, seq int) session.BehaviorEvent {
	return session.BehaviorEvent{
		Type:      session.EventPageVisit,
		Timestamp: time.Unix(1700000000, 0).Add(time.Duration(seq) * time.Millisecond),
		SessionID: sessionID,
		PageSlug:  "home",
	}
}

func TestSizeTriggeredFlushes(t *testing.T) {
	writer := &fakeWriter{}
	b := NewBatcher(writer, testConfig(), nil, nil)

	for i := 0; i < 250; i++ {
		b.Enqueue("sess-aaaaaaaa", makeEvent("sess-aaaaaaaa", i))
	}
	b.Drain(context.Background())

	batches := writer.snapshot()
	if len(batches) != 3 {
		t.Fatalf("expected 3 flushes for 250 events at threshold 100, got %d", len(batches))
	}

	sizes := map[int]int{}
	total := 0
	seen := map[time.Time]bool{}
	for _, batch := range batches {
		sizes[len(batch.events)]++
		total += len(batch.events)
		for _, evt := range batch.events {
			if seen[evt.Timestamp] {
				t.Fatalf("event at %v delivered twice", evt.Timestamp)
			}
			seen[evt.Timestamp] = true
		}
	}
	if total != 250 {
		t.Fatalf("expected 250 events across all batches, got %d", total)
	}
	if sizes[100] != 2 || sizes[50] != 1 {
		t.Fatalf("expected batch sizes 100, 100, 50, got distribution %v", sizes)
	}
}

func TestBatchesArePerSession(t *testing.T) {
	writer := &fakeWriter{}
	cfg := testConfig()
	cfg.FlushSize = 10
	b := NewBatcher(writer, cfg, nil, nil)

	for i := 0; i < 10; i++ {
		b.Enqueue("sess-aaaaaaaa", makeEvent("sess-aaaaaaaa", i))
		b.Enqueue("sess-bbbbbbbb", makeEvent("sess-bbbbbbbb", 1000+i))
	}
	b.Drain(context.Background())

	batches := writer.snapshot()
	if len(batches) != 2 {
		t.Fatalf("expected one flush per session, got %d", len(batches))
	}
	for _, batch := range batches {
		first := batch.events[0].SessionID
		for _, evt := range batch.events {
			if evt.SessionID != first {
				t.Fatalf("batch mixes sessions %s and %s", first, evt.SessionID)
			}
		}
	}
}

func TestWindowTriggeredFlush(t *testing.T) {
	writer := &fakeWriter{}
	b := NewBatcher(writer, testConfig(), nil, nil)

	b.Enqueue("sess-aaaaaaaa", makeEvent("sess-aaaaaaaa", 0))
	if got := len(writer.snapshot()); got != 0 {
		t.Fatalf("single event should stay buffered, got %d flushes", got)
	}

	b.sweep(time.Now().Add(6 * time.Second))
	b.wg.Wait()

	batches := writer.snapshot()
	if len(batches) != 1 || len(batches[0].events) != 1 {
		t.Fatalf("expected one single-event flush after window elapsed, got %v", batches)
	}
	if b.PendingEvents() != 0 {
		t.Fatalf("buffer should be empty after window flush, %d pending", b.PendingEvents())
	}
}

func TestSweepLeavesYoungBuffersAlone(t *testing.T) {
	writer := &fakeWriter{}
	b := NewBatcher(writer, testConfig(), nil, nil)

	b.Enqueue("sess-aaaaaaaa", makeEvent("sess-aaaaaaaa", 0))
	b.sweep(time.Now().Add(time.Second))
	b.wg.Wait()

	if got := len(writer.snapshot()); got != 0 {
		t.Fatalf("buffer younger than the window must not flush, got %d flushes", got)
	}
	if b.PendingEvents() != 1 {
		t.Fatalf("expected 1 pending event, got %d", b.PendingEvents())
	}
}

func TestTransientFailureRetriesThenSucceeds(t *testing.T) {
	writer := &fakeWriter{failures: 2}
	cfg := testConfig()
	cfg.FlushSize = 5
	b := NewBatcher(writer, cfg, nil, nil)

	for i := 0; i < 5; i++ {
		b.Enqueue("sess-aaaaaaaa", makeEvent("sess-aaaaaaaa", i))
	}
	b.Drain(context.Background())

	batches := writer.snapshot()
	if len(batches) != 1 {
		t.Fatalf("expected the batch to land after retries, got %d batches", len(batches))
	}
	if len(batches[0].events) != 5 {
		t.Fatalf("expected all 5 events in the retried batch, got %d", len(batches[0].events))
	}
}

func TestExhaustedRetriesDeadLetter(t *testing.T) {
	writer := &fakeWriter{failures: 100}
	cfg := testConfig()
	cfg.FlushSize = 5
	b := NewBatcher(writer, cfg, nil, nil)

	var mu sync.Mutex
	var dead []capturedBatch
	var deadErr error
	b.SetDeadLetterFunc(func(batchID string, events []session.BehaviorEvent, err error) {
		mu.Lock()
		defer mu.Unlock()
		dead = append(dead, capturedBatch{batchID: batchID, events: events})
		deadErr = err
	})

	for i := 0; i < 5; i++ {
		b.Enqueue("sess-aaaaaaaa", makeEvent("sess-aaaaaaaa", i))
	}
	b.Drain(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(dead) != 1 {
		t.Fatalf("expected exactly one dead-lettered batch, got %d", len(dead))
	}
	if len(dead[0].events) != 5 {
		t.Fatalf("dead letter must carry the full batch, got %d events", len(dead[0].events))
	}
	var dwf *errs.DurableWriteFailure
	if !errors.As(deadErr, &dwf) {
		t.Fatalf("expected DurableWriteFailure, got %v", deadErr)
	}
	if dwf.BatchID != dead[0].batchID {
		t.Fatalf("failure batch id %s does not match dead letter %s", dwf.BatchID, dead[0].batchID)
	}
}

func TestPostFlushHookRunsPerBatch(t *testing.T) {
	writer := &fakeWriter{}
	cfg := testConfig()
	cfg.FlushSize = 5
	b := NewBatcher(writer, cfg, nil, nil)

	var mu sync.Mutex
	processed := map[string]int{}
	b.SetProcessFunc(func(batchID string, events []session.BehaviorEvent) {
		mu.Lock()
		defer mu.Unlock()
		processed[batchID] += len(events)
	})

	for i := 0; i < 10; i++ {
		b.Enqueue("sess-aaaaaaaa", makeEvent("sess-aaaaaaaa", i))
	}
	b.Drain(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(processed) != 2 {
		t.Fatalf("expected 2 processed batches, got %d", len(processed))
	}
	for batchID, count := range processed {
		if count != 5 {
			t.Fatalf("batch %s processed %d events, expected 5", batchID, count)
		}
	}
}

func TestDrainConcurrentWithSweepLosesNothing(t *testing.T) {
	writer := &fakeWriter{}
	cfg := testConfig()
	cfg.FlushWindow = 0 // every buffer is immediately due
	b := NewBatcher(writer, cfg, nil, nil)

	sessions := []string{"sess-aaaaaaaa", "sess-bbbbbbbb", "sess-cccccccc", "sess-dddddddd"}
	for i := 0; i < 40; i++ {
		b.Enqueue(sessions[i%len(sessions)], makeEvent(sessions[i%len(sessions)], i))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.sweep(time.Now())
	}()
	go func() {
		defer wg.Done()
		b.Drain(context.Background())
	}()
	wg.Wait()
	b.Drain(context.Background())

	total := 0
	seen := map[time.Time]bool{}
	for _, batch := range writer.snapshot() {
		total += len(batch.events)
		for _, evt := range batch.events {
			if seen[evt.Timestamp] {
				t.Fatalf("event at %v delivered twice", evt.Timestamp)
			}
			seen[evt.Timestamp] = true
		}
	}
	if total != 40 {
		t.Fatalf("expected all 40 events durable after concurrent sweep and drain, got %d", total)
	}
	if b.PendingEvents() != 0 {
		t.Fatalf("expected empty buffers, %d events pending", b.PendingEvents())
	}
}

func TestEnqueueAfterDrainIsDropped(t *testing.T) {
	writer := &fakeWriter{}
	b := NewBatcher(writer, testConfig(), nil, nil)
	b.Drain(context.Background())

	b.Enqueue("sess-aaaaaaaa", makeEvent("sess-aaaaaaaa", 0))
	if b.PendingEvents() != 0 {
		t.Fatalf("closed batcher must not accept events, %d pending", b.PendingEvents())
	}
}
