package services

import (
	"context"
	"sync"
	"time"

	"github.com/PulseTrack/pulsetrack-go/internal/domain/entities/session"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseTrack/pulsetrack-go/pkg/config"
)

// BatchLedger claims batches for post-flush processing. MarkBatchProcessed
// returns false when another invocation already claimed the batch.
type BatchLedger interface {
	MarkBatchProcessed(ctx context.Context, batchID string) (bool, error)
}

// EventProcessingService runs the derived-metric step after a batch
// lands durably. The ledger claim makes the step idempotent per batch:
// re-delivery of an already-processed batch changes nothing.
type EventProcessingService struct {
	ledger BatchLedger
	logger *logging.ChanneledLogger

	mu       sync.Mutex
	byType   map[session.EventType]int64
	batches  int64
	lastSeen time.Time
}

// NewEventProcessingService creates the post-flush processor.
func NewEventProcessingService(ledger BatchLedger, logger *logging.ChanneledLogger) *EventProcessingService {
	return &EventProcessingService{
		ledger: ledger,
		logger: logger,
		byType: make(map[session.EventType]int64),
	}
}

// ProcessBatch claims the batch and folds its events into the running
// aggregates. Safe to call any number of times for the same batch.
func (svc *EventProcessingService) ProcessBatch(batchID string, events []session.BehaviorEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), config.AnalyticsQueryTimeout)
	defer cancel()

	claimed, err := svc.ledger.MarkBatchProcessed(ctx, batchID)
	if err != nil {
		if svc.logger != nil {
			svc.logger.Analytics().Error("Batch claim failed",
				"batchId", batchID, "error", err.Error())
		}
		return
	}
	if !claimed {
		if svc.logger != nil {
			svc.logger.Analytics().Debug("Batch already processed, skipping",
				"batchId", batchID)
		}
		return
	}

	svc.mu.Lock()
	for i := range events {
		svc.byType[events[i].Type]++
	}
	svc.batches++
	svc.lastSeen = time.Now()
	svc.mu.Unlock()

	if svc.logger != nil {
		svc.logger.Analytics().Info("Batch processed",
			"batchId", batchID,
			"eventCount", len(events))
	}
}

// Totals returns the running per-type event aggregates.
func (svc *EventProcessingService) Totals() map[session.EventType]int64 {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	out := make(map[session.EventType]int64, len(svc.byType))
	for k, v := range svc.byType {
		out[k] = v
	}
	return out
}

// ProcessedBatches returns how many batches this process has claimed.
func (svc *EventProcessingService) ProcessedBatches() int64 {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.batches
}
