package segment

import (
	"testing"

	"github.com/PulseTrack/pulsetrack-go/internal/domain/entities/session"
)

func testThresholds() Thresholds {
	return Thresholds{
		BuyerClicks:         5,
		EngagedPageViews:    10,
		EngagedTimeMs:       600000,
		ResearcherQuizzes:   2,
		ResearcherMaxClicks: 3,
	}
}

func TestClassifyRuleOrder(t *testing.T) {
	cases := []struct {
		name  string
		stats session.Stats
		want  Segment
	}{
		{"fresh session", session.Stats{PageViews: 1}, NewVisitor},
		{"second page view", session.Stats{PageViews: 2}, ReturningVisitor},
		{"engaged", session.Stats{PageViews: 10, TotalTimeOnSiteMs: 600001}, EngagedUser},
		{"engaged needs time", session.Stats{PageViews: 10, TotalTimeOnSiteMs: 600000}, ReturningVisitor},
		{"researcher", session.Stats{PageViews: 3, QuizResults: 2, AffiliateClicks: 2}, Researcher},
		{"researcher blocked by clicks", session.Stats{PageViews: 3, QuizResults: 2, AffiliateClicks: 3}, ReturningVisitor},
		{"buyer", session.Stats{PageViews: 2, AffiliateClicks: 5}, Buyer},
		{"converter", session.Stats{PageViews: 2, AffiliateClicks: 1, ConvertedClicks: 1}, HighConverter},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.stats, testThresholds())
			if got != tc.want {
				t.Fatalf("Classify(%+v) = %s, want %s", tc.stats, got, tc.want)
			}
		})
	}
}

// A converted click must win over every later rule, no matter how
// engaged the session otherwise looks.
func TestClassifyConversionPrecedesEngagement(t *testing.T) {
	stats := session.Stats{
		PageViews:         50,
		TotalTimeOnSiteMs: 9000000,
		AffiliateClicks:   1,
		ConvertedClicks:   1,
		QuizResults:       4,
	}
	if got := Classify(stats, testThresholds()); got != HighConverter {
		t.Fatalf("expected high_converter, got %s", got)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	stats := session.Stats{PageViews: 7, TotalTimeOnSiteMs: 120000, QuizResults: 2}
	first := Classify(stats, testThresholds())
	for i := 0; i < 100; i++ {
		if got := Classify(stats, testThresholds()); got != first {
			t.Fatalf("classification drifted on call %d: %s != %s", i, got, first)
		}
	}
}

func TestFlagsDerivation(t *testing.T) {
	if !Flags(Buyer)["useAggressiveCTAs"] {
		t.Fatal("buyer should get aggressive CTAs")
	}
	if !Flags(HighConverter)["useAggressiveCTAs"] {
		t.Fatal("high_converter should get aggressive CTAs")
	}
	if Flags(NewVisitor)["useAggressiveCTAs"] {
		t.Fatal("new_visitor should not get aggressive CTAs")
	}
	if !Flags(Researcher)["showComparisonTables"] {
		t.Fatal("researcher should get comparison tables")
	}
}
