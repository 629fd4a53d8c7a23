package services

import (
	"context"
	"sync"
	"time"

	"github.com/PulseTrack/pulsetrack-go/internal/domain/bucketing"
	"github.com/PulseTrack/pulsetrack-go/internal/domain/entities/experiment"
	"github.com/PulseTrack/pulsetrack-go/internal/domain/entities/session"
	"github.com/PulseTrack/pulsetrack-go/internal/domain/errs"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/caching/stores"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/monitoring"
	"github.com/PulseTrack/pulsetrack-go/pkg/config"
)

// ExperimentRepository is the durable side of experiment configuration
// and assignments.
type ExperimentRepository interface {
	GetExperiment(ctx context.Context, experimentID string) (*experiment.Experiment, error)
	ListVariants(ctx context.Context, experimentID string) ([]experiment.Variant, error)
	GetAssignment(ctx context.Context, sessionID, experimentID string) (*experiment.Assignment, error)
	InsertAssignment(ctx context.Context, a *experiment.Assignment) (*experiment.Assignment, error)
}

// ExperimentEventStore records experiment outcome events.
type ExperimentEventStore interface {
	StoreExperimentEvent(ctx context.Context, evt *experiment.Event) error
}

// AssignmentResult is what the HTTP layer returns for an assignment
// request. Eligible is false when the session fell outside the traffic
// allocation or the experiment is not running; the caller then serves
// the default experience.
type AssignmentResult struct {
	Eligible bool
	Reason   string
	Variant  *experiment.Variant
	Existing bool
}

// ExperimentService owns deterministic variant assignment and outcome
// event recording.
type ExperimentService struct {
	repo    ExperimentRepository
	events  ExperimentEventStore
	store   *stores.SessionsStore
	logger  *logging.ChanneledLogger
	metrics *monitoring.Metrics

	outcomeWG sync.WaitGroup
}

// NewExperimentService creates the experiment service.
func NewExperimentService(repo ExperimentRepository, events ExperimentEventStore, store *stores.SessionsStore, logger *logging.ChanneledLogger, metrics *monitoring.Metrics) *ExperimentService {
	return &ExperimentService{
		repo:    repo,
		events:  events,
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
}

func (svc *ExperimentService) countAssignment(outcome string) {
	if svc.metrics != nil {
		svc.metrics.Assignments.WithLabelValues(outcome).Inc()
	}
}

// Assign resolves the variant for a (session, experiment) pair. The
// first call persists the assignment; every later call, on any host and
// across restarts, returns the same variant. Sessions outside the
// traffic allocation get an ineligible result, never a variant. userID
// is optional and only annotates the persisted assignment.
func (svc *ExperimentService) Assign(ctx context.Context, sessionID, experimentID, userID string) (*AssignmentResult, error) {
	if err := session.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	now := time.Now()

	snap, ok := svc.store.Get(sessionID, now)
	if !ok {
		return nil, errs.ErrSessionNotFound
	}
	if userID == "" {
		userID = snap.UserID
	}

	exp, err := svc.repo.GetExperiment(ctx, experimentID)
	if err != nil {
		if err != errs.ErrExperimentNotFound {
			svc.countAssignment("error")
		}
		return nil, err
	}

	// Persisted assignment wins over everything, including a paused or
	// completed experiment: exposure already happened.
	existing, err := svc.repo.GetAssignment(ctx, sessionID, experimentID)
	if err != nil {
		svc.countAssignment("error")
		return nil, err
	}
	if existing != nil {
		variant, err := svc.findVariant(ctx, experimentID, existing.VariantID)
		if err != nil {
			svc.countAssignment("error")
			return nil, err
		}
		svc.cacheAssignment(sessionID, experimentID, existing.VariantID, now)
		svc.countAssignment("existing")
		return &AssignmentResult{Eligible: true, Variant: variant, Existing: true}, nil
	}

	if !exp.IsRunning(now) {
		svc.countAssignment("not_eligible")
		return &AssignmentResult{Eligible: false, Reason: "experiment_not_running"}, nil
	}
	if !bucketing.Eligible(sessionID, experimentID, exp.TrafficAllocation) {
		svc.countAssignment("not_eligible")
		return &AssignmentResult{Eligible: false, Reason: "outside_traffic_allocation"}, nil
	}

	variants, err := svc.repo.ListVariants(ctx, experimentID)
	if err != nil {
		svc.countAssignment("error")
		return nil, err
	}
	selected := bucketing.SelectVariant(sessionID, experimentID, variants)
	if selected == nil {
		svc.countAssignment("error")
		return nil, errs.ErrNoVariantsAvailable
	}

	winner, err := svc.repo.InsertAssignment(ctx, &experiment.Assignment{
		SessionID:    sessionID,
		ExperimentID: experimentID,
		VariantID:    selected.ID,
		UserID:       userID,
		AssignedAt:   now,
	})
	if err != nil {
		svc.countAssignment("error")
		return nil, err
	}
	// A concurrent request may have won the insert race; honor its row.
	if winner.VariantID != selected.ID {
		selected, err = svc.findVariant(ctx, experimentID, winner.VariantID)
		if err != nil {
			svc.countAssignment("error")
			return nil, err
		}
	}

	svc.cacheAssignment(sessionID, experimentID, winner.VariantID, now)
	svc.emitOutcome(sessionID, experimentID, winner.VariantID, experiment.EventImpression, 0)
	svc.countAssignment("created")

	if svc.logger != nil {
		svc.logger.Experiment().Info("Variant assigned",
			"sessionId", sessionID,
			"experimentId", experimentID,
			"variantId", winner.VariantID,
			"bucket", bucketing.Bucket(sessionID, experimentID))
	}
	return &AssignmentResult{Eligible: true, Variant: selected}, nil
}

// RecordEvent accepts an outcome event for an assigned session. Events
// from sessions that were never assigned are rejected so analytics only
// counts real exposures. The durable write happens off the request
// path; failures are logged, not surfaced to the client.
func (svc *ExperimentService) RecordEvent(ctx context.Context, sessionID, experimentID string, eventType experiment.EventType, value float64) error {
	if err := session.ValidateSessionID(sessionID); err != nil {
		return err
	}
	if !experiment.ValidEventType(eventType) {
		return errs.NewValidationError("eventType", "unknown experiment event type "+string(eventType))
	}

	assignment, err := svc.repo.GetAssignment(ctx, sessionID, experimentID)
	if err != nil {
		return err
	}
	if assignment == nil {
		return errs.NewValidationError("sessionId", "session has no assignment for this experiment")
	}

	svc.emitOutcome(sessionID, experimentID, assignment.VariantID, eventType, value)
	return nil
}

// emitOutcome hands one experiment event to the durable store in the
// background, keeping assignment and outcome requests free of durable
// I/O.
func (svc *ExperimentService) emitOutcome(sessionID, experimentID, variantID string, eventType experiment.EventType, value float64) {
	if svc.events == nil {
		return
	}
	evt := &experiment.Event{
		SessionID:    sessionID,
		ExperimentID: experimentID,
		VariantID:    variantID,
		Type:         eventType,
		Value:        value,
		Timestamp:    time.Now(),
	}
	svc.outcomeWG.Add(1)
	go func() {
		defer svc.outcomeWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), config.OutcomeWriteTimeout)
		defer cancel()
		if err := svc.events.StoreExperimentEvent(ctx, evt); err != nil && svc.logger != nil {
			svc.logger.Experiment().Error("Experiment event write failed",
				"experimentId", experimentID,
				"variantId", variantID,
				"eventType", eventType,
				"error", err.Error())
		}
	}()
}

// Drain waits for in-flight outcome writes. Called on graceful shutdown
// after the HTTP server has stopped accepting requests.
func (svc *ExperimentService) Drain() {
	svc.outcomeWG.Wait()
}

func (svc *ExperimentService) findVariant(ctx context.Context, experimentID, variantID string) (*experiment.Variant, error) {
	variants, err := svc.repo.ListVariants(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	for i := range variants {
		if variants[i].ID == variantID {
			return &variants[i], nil
		}
	}
	return nil, errs.ErrNoVariantsAvailable
}

func (svc *ExperimentService) cacheAssignment(sessionID, experimentID, variantID string, now time.Time) {
	if _, err := svc.store.Update(sessionID, now, func(s *session.Session) error {
		s.Assignments[experimentID] = variantID
		return nil
	}); err != nil && svc.logger != nil {
		svc.logger.Experiment().Warn("Assignment cache update failed",
			"sessionId", sessionID, "error", err.Error())
	}
}
