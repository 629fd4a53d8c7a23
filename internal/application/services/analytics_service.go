package services

import (
	"context"
	"time"

	"github.com/PulseTrack/pulsetrack-go/internal/domain/errs"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/performance"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/persistence/analytics"
	"github.com/PulseTrack/pulsetrack-go/pkg/config"
)

// AnalyticsRepository is the read-side rollup store.
type AnalyticsRepository interface {
	VariantStats(ctx context.Context, experimentID string, from, to time.Time) ([]analytics.VariantStats, error)
	EventCounts(ctx context.Context, sessionID string, from, to time.Time) ([]analytics.EventTypeCount, error)
	SegmentDistribution(ctx context.Context) ([]analytics.SegmentCount, error)
	ActiveSessionCount(ctx context.Context, now time.Time) (int, error)
}

// VariantReport is one variant's rollup with derived rates. Rates are
// zero when the denominator is zero; a division never panics or yields
// NaN into a response.
type VariantReport struct {
	analytics.VariantStats
	ClickThroughRate float64 `json:"clickThroughRate"`
	ConversionRate   float64 `json:"conversionRate"`
	BounceRate       float64 `json:"bounceRate"`
}

// ExperimentReport is the full analytics response for one experiment.
type ExperimentReport struct {
	ExperimentID string          `json:"experimentId"`
	From         time.Time       `json:"from"`
	To           time.Time       `json:"to"`
	Variants     []VariantReport `json:"variants"`
}

// SummaryReport is the engine-wide analytics response.
type SummaryReport struct {
	From           time.Time                  `json:"from"`
	To             time.Time                  `json:"to"`
	EventCounts    []analytics.EventTypeCount `json:"eventCounts"`
	Segments       []analytics.SegmentCount   `json:"segments"`
	ActiveSessions int                        `json:"activeSessions"`
}

// AnalyticsService computes aggregated reports from the durable log.
type AnalyticsService struct {
	repo        AnalyticsRepository
	experiments ExperimentRepository
	logger      *logging.ChanneledLogger
	perf        *performance.Tracker
}

// NewAnalyticsService creates the analytics service.
func NewAnalyticsService(repo AnalyticsRepository, experiments ExperimentRepository, logger *logging.ChanneledLogger, perf *performance.Tracker) *AnalyticsService {
	return &AnalyticsService{repo: repo, experiments: experiments, logger: logger, perf: perf}
}

func rate(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	return float64(numerator) / float64(denominator)
}

// ExperimentAnalytics rolls up outcome events per variant with derived
// click-through, conversion and bounce rates.
func (svc *AnalyticsService) ExperimentAnalytics(ctx context.Context, experimentID string, from, to time.Time) (*ExperimentReport, error) {
	var marker *performance.Marker
	if svc.perf != nil {
		marker = svc.perf.StartOperation("experiment_analytics")
		defer marker.Complete()
	}

	if _, err := svc.experiments.GetExperiment(ctx, experimentID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, config.AnalyticsQueryTimeout)
	defer cancel()

	stats, err := svc.repo.VariantStats(ctx, experimentID, from, to)
	if err != nil {
		return nil, err
	}

	report := &ExperimentReport{
		ExperimentID: experimentID,
		From:         from,
		To:           to,
		Variants:     make([]VariantReport, 0, len(stats)),
	}
	for _, s := range stats {
		report.Variants = append(report.Variants, VariantReport{
			VariantStats:     s,
			ClickThroughRate: rate(s.Clicks, s.Impressions),
			ConversionRate:   rate(s.Conversions, s.Impressions),
			BounceRate:       rate(s.Bounces, s.Impressions),
		})
	}

	if marker != nil {
		marker.SetSuccess(true)
	}
	return report, nil
}

// Summary returns engine-wide event and segment rollups for a range.
func (svc *AnalyticsService) Summary(ctx context.Context, from, to time.Time) (*SummaryReport, error) {
	var marker *performance.Marker
	if svc.perf != nil {
		marker = svc.perf.StartOperation("analytics_summary")
		defer marker.Complete()
	}

	ctx, cancel := context.WithTimeout(ctx, config.AnalyticsQueryTimeout)
	defer cancel()

	counts, err := svc.repo.EventCounts(ctx, "", from, to)
	if err != nil {
		return nil, err
	}
	segments, err := svc.repo.SegmentDistribution(ctx)
	if err != nil {
		return nil, err
	}
	active, err := svc.repo.ActiveSessionCount(ctx, time.Now())
	if err != nil {
		return nil, err
	}

	if marker != nil {
		marker.SetSuccess(true)
	}
	return &SummaryReport{
		From:           from,
		To:             to,
		EventCounts:    counts,
		Segments:       segments,
		ActiveSessions: active,
	}, nil
}

// SessionEventCounts returns per-type event counts for one session.
func (svc *AnalyticsService) SessionEventCounts(ctx context.Context, sessionID string, from, to time.Time) ([]analytics.EventTypeCount, error) {
	if sessionID == "" {
		return nil, errs.NewValidationError("sessionId", "required")
	}
	ctx, cancel := context.WithTimeout(ctx, config.AnalyticsQueryTimeout)
	defer cancel()
	return svc.repo.EventCounts(ctx, sessionID, from, to)
}
