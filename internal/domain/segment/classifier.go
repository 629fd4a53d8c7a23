// Package segment classifies visitor sessions into mutually-exclusive
// behavioral segments. Classification is a pure function of the session's
// counter snapshot: identical counters always yield the identical segment.
package segment

import (
	"github.com/PulseTrack/pulsetrack-go/internal/domain/entities/session"
	"github.com/PulseTrack/pulsetrack-go/pkg/config"
)

// Segment is a coarse behavioral classification label.
type Segment string

const (
	NewVisitor       Segment = "new_visitor"
	ReturningVisitor Segment = "returning_visitor"
	EngagedUser      Segment = "engaged_user"
	HighConverter    Segment = "high_converter"
	Researcher       Segment = "researcher"
	Buyer            Segment = "buyer"
)

// Thresholds are the rule constants. They are configuration, not code:
// defaults come from pkg/config and can be overridden per deployment.
type Thresholds struct {
	BuyerClicks         int
	EngagedPageViews    int
	EngagedTimeMs       int64
	ResearcherQuizzes   int
	ResearcherMaxClicks int
}

// DefaultThresholds returns the configured rule constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BuyerClicks:         config.SegmentBuyerClicks,
		EngagedPageViews:    config.SegmentEngagedPageViews,
		EngagedTimeMs:       config.SegmentEngagedTimeMs,
		ResearcherQuizzes:   config.SegmentResearcherQuizzes,
		ResearcherMaxClicks: config.SegmentResearcherMaxClicks,
	}
}

// Classify maps a counter snapshot to exactly one segment. Rules are
// evaluated in order against the full current counters; first match wins.
func Classify(stats session.Stats, t Thresholds) Segment {
	switch {
	case stats.ConvertedClicks > 0:
		return HighConverter
	case stats.AffiliateClicks >= t.BuyerClicks:
		return Buyer
	case stats.PageViews >= t.EngagedPageViews && stats.TotalTimeOnSiteMs > t.EngagedTimeMs:
		return EngagedUser
	case stats.QuizResults >= t.ResearcherQuizzes && stats.AffiliateClicks < t.ResearcherMaxClicks:
		return Researcher
	case stats.PageViews > 1:
		return ReturningVisitor
	default:
		return NewVisitor
	}
}

// Flags derives the personalization flag map from a segment. This is the
// single derivation point; read sites never recompute flag logic inline.
func Flags(seg Segment) map[string]bool {
	return map[string]bool{
		"useAggressiveCTAs":    seg == Buyer || seg == HighConverter,
		"showSocialProof":      seg == Researcher || seg == ReturningVisitor,
		"showComparisonTables": seg == Researcher,
		"showLoyaltyOffers":    seg == HighConverter,
		"extendedContent":      seg == EngagedUser || seg == Researcher,
		"onboardingHints":      seg == NewVisitor,
	}
}
