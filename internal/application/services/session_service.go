// Package services contains the application-layer orchestration between
// the HTTP surface, the in-memory stores, and durable persistence.
package services

import (
	"context"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/PulseTrack/pulsetrack-go/internal/domain/entities/session"
	"github.com/PulseTrack/pulsetrack-go/internal/domain/errs"
	"github.com/PulseTrack/pulsetrack-go/internal/domain/segment"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/caching/stores"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/monitoring"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/security"
	"github.com/PulseTrack/pulsetrack-go/pkg/config"
)

// SessionRepository is the durable side of the session store.
type SessionRepository interface {
	UpsertSnapshot(ctx context.Context, s *session.Session) error
	Load(ctx context.Context, sessionID string) (*session.Session, error)
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// EventEnqueuer hands validated events to the write pipeline.
type EventEnqueuer interface {
	Enqueue(sessionID string, event session.BehaviorEvent)
}

// SessionService owns the session lifecycle: creation, event folding,
// segment classification, cross-device merge, and expiry.
type SessionService struct {
	store      *stores.SessionsStore
	repo       SessionRepository
	enqueuer   EventEnqueuer
	thresholds segment.Thresholds
	logger     *logging.ChanneledLogger
	metrics    *monitoring.Metrics
}

// NewSessionService creates the session service. repo, enqueuer, logger
// and metrics may be nil in tests.
func NewSessionService(store *stores.SessionsStore, repo SessionRepository, enqueuer EventEnqueuer, logger *logging.ChanneledLogger, metrics *monitoring.Metrics) *SessionService {
	return &SessionService{
		store:      store,
		repo:       repo,
		enqueuer:   enqueuer,
		thresholds: segment.DefaultThresholds(),
		logger:     logger,
		metrics:    metrics,
	}
}

// SessionHandle is what the HTTP layer returns for session creation.
type SessionHandle struct {
	Session *session.Session
	Token   string
	Created bool
}

// GetOrCreate resolves a live session for the identifier, restoring from
// durable storage on a cold cache, and issues a bearer token bound to it.
func (svc *SessionService) GetOrCreate(ctx context.Context, sessionID string) (*SessionHandle, error) {
	if err := session.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	now := time.Now()

	svc.restoreIfCold(ctx, sessionID, now)

	snap, created := svc.store.GetOrCreate(sessionID, now)
	if created {
		classified, err := svc.store.Update(sessionID, now, func(s *session.Session) error {
			seg := segment.Classify(s.Stats(), svc.thresholds)
			s.Segment = string(seg)
			s.Flags = segment.Flags(seg)
			return nil
		})
		if err != nil {
			return nil, err
		}
		snap = classified
		if svc.metrics != nil {
			svc.metrics.SessionsActive.Set(float64(svc.store.Count()))
		}
		if svc.logger != nil {
			svc.logger.Session().Info("Session created", "sessionId", sessionID)
		}
		svc.persistAsync(snap)
	}

	token, err := security.GenerateSessionToken(sessionID, snap.UserID, config.SessionTokenSecret, config.SessionTokenTTL)
	if err != nil {
		return nil, err
	}
	return &SessionHandle{Session: snap, Token: token, Created: created}, nil
}

// restoreIfCold rehydrates the in-memory store from the durable
// snapshot when the session is absent, so a process restart never
// resets a visitor's counters or segment. Expired and merged rows stay
// out of the store.
func (svc *SessionService) restoreIfCold(ctx context.Context, sessionID string, now time.Time) {
	if svc.repo == nil {
		return
	}
	if _, ok := svc.store.Get(sessionID, now); ok {
		return
	}
	restored, err := svc.repo.Load(ctx, sessionID)
	if err != nil {
		if svc.logger != nil {
			svc.logger.Session().Warn("Durable session restore failed",
				"sessionId", sessionID, "error", err.Error())
		}
		return
	}
	if restored != nil && !restored.IsExpired(now) && !restored.Merged {
		svc.store.Restore(restored)
	}
}

// Get returns a snapshot of a live session.
func (svc *SessionService) Get(sessionID string) (*session.Session, error) {
	if err := session.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	snap, ok := svc.store.Get(sessionID, time.Now())
	if !ok {
		return nil, errs.ErrSessionNotFound
	}
	return snap, nil
}

// ApplyEvent validates one behavior event, folds it into the session
// under the session's lock, reclassifies the segment, and enqueues the
// event for durable batch flush. The durable write never blocks the
// caller.
func (svc *SessionService) ApplyEvent(ctx context.Context, evt session.BehaviorEvent) (*session.Session, error) {
	if err := evt.Validate(); err != nil {
		if svc.metrics != nil {
			svc.metrics.EventsRejected.Inc()
		}
		return nil, err
	}
	now := time.Now()
	svc.restoreIfCold(ctx, evt.SessionID, now)

	var previousSegment string
	snap, err := svc.store.Update(evt.SessionID, now, func(s *session.Session) error {
		previousSegment = s.Segment
		s.Record(evt, config.SessionHistoryLimit, config.SessionTTL)
		seg := segment.Classify(s.Stats(), svc.thresholds)
		s.Segment = string(seg)
		s.Flags = segment.Flags(seg)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if snap.Segment != previousSegment && svc.logger != nil {
		svc.logger.Segment().Info("Segment transition",
			"sessionId", snap.ID,
			"from", previousSegment,
			"to", snap.Segment)
	}

	if svc.enqueuer != nil {
		svc.enqueuer.Enqueue(evt.SessionID, evt)
	}
	svc.persistAsync(snap)
	return snap, nil
}

// BatchApplyResult reports the per-element outcome of a client batch.
// BatchID identifies the submission in logs and client retries.
type BatchApplyResult struct {
	BatchID  string
	Accepted int
	Rejected int
	Session  *session.Session
}

// ApplyEvents folds a client-side batch in order. Validation is
// per-element: invalid events are counted and skipped, valid ones still
// apply. Only infrastructure failures abort the batch.
func (svc *SessionService) ApplyEvents(ctx context.Context, evts []session.BehaviorEvent) (*BatchApplyResult, error) {
	result := &BatchApplyResult{BatchID: ulid.Make().String()}
	for i := range evts {
		snap, err := svc.ApplyEvent(ctx, evts[i])
		if err != nil {
			if errs.IsValidation(err) {
				result.Rejected++
				continue
			}
			return nil, err
		}
		result.Accepted++
		result.Session = snap
	}
	return result, nil
}

// Merge folds the secondary session into the primary and tombstones the
// secondary. Counters are summed, set-valued fields unioned, and event
// histories interleaved by timestamp. The primary's experiment
// assignments win on conflict so its variant exposure never changes.
func (svc *SessionService) Merge(ctx context.Context, primaryID, secondaryID, reason string) (*session.Session, error) {
	if err := session.ValidateSessionID(primaryID); err != nil {
		return nil, err
	}
	if err := session.ValidateSessionID(secondaryID); err != nil {
		return nil, err
	}
	now := time.Now()
	svc.restoreIfCold(ctx, primaryID, now)
	svc.restoreIfCold(ctx, secondaryID, now)

	primary, secondary, err := svc.store.Merge(primaryID, secondaryID, now, func(p, s *session.Session) error {
		p.PageViews += s.PageViews
		p.Interactions += s.Interactions
		p.TotalTimeOnSiteMs += s.TotalTimeOnSiteMs

		merged := make([]session.BehaviorEvent, 0, len(p.Events)+len(s.Events))
		merged = append(merged, p.Events...)
		merged = append(merged, s.Events...)
		sort.SliceStable(merged, func(i, j int) bool {
			return merged[i].Timestamp.Before(merged[j].Timestamp)
		})
		if config.SessionHistoryLimit > 0 && len(merged) > config.SessionHistoryLimit {
			merged = merged[len(merged)-config.SessionHistoryLimit:]
		}
		p.Events = merged

		p.QuizResults = append(p.QuizResults, s.QuizResults...)
		p.AffiliateClicks = append(p.AffiliateClicks, s.AffiliateClicks...)
		unionInto(p.Emotions, s.Emotions)
		unionInto(p.Categories, s.Categories)
		unionInto(p.ModulesUsed, s.ModulesUsed)

		for experimentID, variantID := range s.Assignments {
			if _, taken := p.Assignments[experimentID]; !taken {
				p.Assignments[experimentID] = variantID
			}
		}
		if p.UserID == "" {
			p.UserID = s.UserID
		}
		if s.LastActivity.After(p.LastActivity) {
			p.LastActivity = s.LastActivity
		}
		if s.CreatedAt.Before(p.CreatedAt) {
			p.CreatedAt = s.CreatedAt
		}
		p.ExpiresAt = now.Add(config.SessionTTL)

		seg := segment.Classify(p.Stats(), svc.thresholds)
		p.Segment = string(seg)
		p.Flags = segment.Flags(seg)

		s.Merged = true
		s.MergedInto = p.ID
		s.MergeReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	if svc.metrics != nil {
		svc.metrics.SessionMerges.Inc()
	}
	if svc.logger != nil {
		svc.logger.Session().Info("Sessions merged",
			"primaryId", primaryID,
			"secondaryId", secondaryID,
			"reason", reason,
			"pageViews", primary.PageViews,
			"segment", primary.Segment)
	}
	svc.persistAsync(primary)
	svc.persistAsync(secondary)
	return primary, nil
}

// StartSweeper evicts expired sessions on an interval until ctx ends.
func (svc *SessionService) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			svc.store.SweepExpired(now)
			if svc.metrics != nil {
				svc.metrics.SessionsActive.Set(float64(svc.store.Count()))
			}
			if svc.repo != nil {
				if _, err := svc.repo.DeleteExpired(ctx, now); err != nil && svc.logger != nil {
					svc.logger.Session().Error("Durable session sweep failed", "error", err.Error())
				}
			}
		}
	}
}

func (svc *SessionService) persistAsync(snap *session.Session) {
	if svc.repo == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), config.SnapshotWriteTimeout)
		defer cancel()
		if err := svc.repo.UpsertSnapshot(ctx, snap); err != nil && svc.logger != nil {
			svc.logger.Session().Error("Session snapshot persist failed",
				"sessionId", snap.ID, "error", err.Error())
		}
	}()
}

func unionInto(dst, src map[string]bool) {
	for k, v := range src {
		if v {
			dst[k] = true
		}
	}
}
