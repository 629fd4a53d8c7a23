package bucketing

import (
	"fmt"
	"math"
	"testing"

	"github.com/PulseTrack/pulsetrack-go/internal/domain/entities/experiment"
)

func threeWaySplit() []experiment.Variant {
	return []experiment.Variant{
		{ID: "var-a", ExperimentID: "exp-1", TrafficPct: 50, IsControl: true},
		{ID: "var-b", ExperimentID: "exp-1", TrafficPct: 30},
		{ID: "var-c", ExperimentID: "exp-1", TrafficPct: 20},
	}
}

func TestBucketIsStable(t *testing.T) {
	first := Bucket("sess_abc12345", "exp-1")
	for i := 0; i < 1000; i++ {
		if got := Bucket("sess_abc12345", "exp-1"); got != first {
			t.Fatalf("bucket drifted: %d != %d", got, first)
		}
	}
	if first < 0 || first > 99 {
		t.Fatalf("bucket out of range: %d", first)
	}
}

func TestSelectVariantIsStable(t *testing.T) {
	variants := threeWaySplit()
	first := SelectVariant("sess_abc12345", "exp-1", variants)
	if first == nil {
		t.Fatal("expected a variant")
	}
	for i := 0; i < 1000; i++ {
		got := SelectVariant("sess_abc12345", "exp-1", variants)
		if got == nil || got.ID != first.ID {
			t.Fatalf("selection drifted on call %d", i)
		}
	}
}

// Variant order in the input slice must not affect the outcome; the walk
// sorts by variant ID.
func TestSelectVariantOrderIndependent(t *testing.T) {
	forward := threeWaySplit()
	reversed := []experiment.Variant{forward[2], forward[1], forward[0]}

	for i := 0; i < 500; i++ {
		sessionID := fmt.Sprintf("sess_%08d", i)
		a := SelectVariant(sessionID, "exp-1", forward)
		b := SelectVariant(sessionID, "exp-1", reversed)
		if a.ID != b.ID {
			t.Fatalf("session %s: %s != %s", sessionID, a.ID, b.ID)
		}
	}
}

func TestTrafficSplitConvergence(t *testing.T) {
	variants := threeWaySplit()
	counts := map[string]int{}
	const samples = 100000

	for i := 0; i < samples; i++ {
		v := SelectVariant(fmt.Sprintf("sess_%08d", i), "exp-1", variants)
		counts[v.ID]++
	}

	want := map[string]float64{"var-a": 0.50, "var-b": 0.30, "var-c": 0.20}
	for id, expected := range want {
		got := float64(counts[id]) / samples
		if math.Abs(got-expected) > 0.02 {
			t.Fatalf("variant %s: share %.4f outside ±2%% of %.2f", id, got, expected)
		}
	}
}

// A split summing to 70% must still return a variant for every bucket in
// the unmapped 30% range: the control, deterministically, never nil.
func TestMalformedSplitFallsBackToControl(t *testing.T) {
	variants := []experiment.Variant{
		{ID: "var-a", TrafficPct: 40},
		{ID: "var-b", TrafficPct: 30, IsControl: true},
	}

	sawFallback := false
	for i := 0; i < 10000; i++ {
		sessionID := fmt.Sprintf("sess_%08d", i)
		v := SelectVariant(sessionID, "exp-1", variants)
		if v == nil {
			t.Fatalf("nil variant for session %s", sessionID)
		}
		if Bucket(sessionID, "exp-1") >= 70 {
			sawFallback = true
			if v.ID != "var-b" {
				t.Fatalf("unmapped bucket resolved to %s, want control var-b", v.ID)
			}
		}
	}
	if !sawFallback {
		t.Fatal("no session landed in the unmapped range")
	}
}

func TestFallbackWithoutControlUsesFirstSorted(t *testing.T) {
	variants := []experiment.Variant{
		{ID: "var-z", TrafficPct: 10},
		{ID: "var-a", TrafficPct: 10},
	}
	for i := 0; i < 5000; i++ {
		sessionID := fmt.Sprintf("sess_%08d", i)
		if Bucket(sessionID, "exp-1") >= 20 {
			v := SelectVariant(sessionID, "exp-1", variants)
			if v.ID != "var-a" {
				t.Fatalf("fallback picked %s, want first sorted var-a", v.ID)
			}
			return
		}
	}
	t.Fatal("no session landed in the unmapped range")
}

func TestEligibilityGateIsDeterministic(t *testing.T) {
	const allocation = 40
	eligible := 0
	const samples = 100000

	for i := 0; i < samples; i++ {
		sessionID := fmt.Sprintf("sess_%08d", i)
		first := Eligible(sessionID, "exp-1", allocation)
		for j := 0; j < 3; j++ {
			if Eligible(sessionID, "exp-1", allocation) != first {
				t.Fatalf("eligibility flapped for %s", sessionID)
			}
		}
		if first {
			eligible++
		}
	}

	share := float64(eligible) / samples
	if math.Abs(share-0.40) > 0.02 {
		t.Fatalf("eligible share %.4f outside ±2%% of 0.40", share)
	}
}

func TestEligibilityGateIndependentOfBucket(t *testing.T) {
	// If gate and bucket correlated, sessions passing a 50% gate would
	// skew toward low buckets and distort the split.
	lowBuckets := 0
	passed := 0
	for i := 0; i < 100000; i++ {
		sessionID := fmt.Sprintf("sess_%08d", i)
		if Eligible(sessionID, "exp-1", 50) {
			passed++
			if Bucket(sessionID, "exp-1") < 50 {
				lowBuckets++
			}
		}
	}
	share := float64(lowBuckets) / float64(passed)
	if math.Abs(share-0.50) > 0.02 {
		t.Fatalf("bucket distribution under gate skewed: %.4f", share)
	}
}

func TestEligibilityEdges(t *testing.T) {
	if !Eligible("sess_abc12345", "exp-1", 100) {
		t.Fatal("full allocation must include everyone")
	}
	if Eligible("sess_abc12345", "exp-1", 0) {
		t.Fatal("zero allocation must exclude everyone")
	}
}
