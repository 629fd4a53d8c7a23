// Package bucketing provides deterministic hash-based traffic splitting.
// Buckets depend only on the (session, experiment) pair of strings, so
// they are stable across process restarts and host machines.
package bucketing

import (
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/PulseTrack/pulsetrack-go/internal/domain/entities/experiment"
)

// allocPrefix keeps the eligibility gate independent from variant
// bucketing; the two hashes must not correlate.
const allocPrefix = "alloc:"

// Bucket maps a (session, experiment) pair onto 0-99.
func Bucket(sessionID, experimentID string) int {
	return int(xxhash.Sum64String(sessionID+":"+experimentID) % 100)
}

// Eligible reports whether a session falls inside the experiment's
// traffic allocation. An excluded session is excluded on every call.
func Eligible(sessionID, experimentID string, trafficAllocation int) bool {
	if trafficAllocation >= 100 {
		return true
	}
	if trafficAllocation <= 0 {
		return false
	}
	gate := int(xxhash.Sum64String(allocPrefix+sessionID+":"+experimentID) % 100)
	return gate < trafficAllocation
}

// SelectVariant walks the cumulative traffic percentages of the variants
// (sorted ascending by variant ID for a stable order) and returns the
// first one whose cumulative share exceeds the session's bucket. When the
// shares sum to less than 100 and the bucket lands in the unmapped range,
// it falls back to the control variant, or the first sorted variant if
// none is marked control. Returns nil only for an empty variant list.
func SelectVariant(sessionID, experimentID string, variants []experiment.Variant) *experiment.Variant {
	if len(variants) == 0 {
		return nil
	}

	sorted := append([]experiment.Variant(nil), variants...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	bucket := Bucket(sessionID, experimentID)
	cumulative := 0
	for i := range sorted {
		cumulative += sorted[i].TrafficPct
		if bucket < cumulative {
			return &sorted[i]
		}
	}

	for i := range sorted {
		if sorted[i].IsControl {
			return &sorted[i]
		}
	}
	return &sorted[0]
}
