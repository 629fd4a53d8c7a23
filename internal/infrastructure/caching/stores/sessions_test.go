package stores

import (
	"sync"
	"testing"
	"time"

	"github.com/PulseTrack/pulsetrack-go/internal/domain/entities/session"
	"github.com/PulseTrack/pulsetrack-go/internal/domain/errs"
)

func TestGetOrCreateReusesLiveSession(t *testing.T) {
	ss := NewSessionsStore(time.Hour, nil)
	now := time.Now()

	first, created := ss.GetOrCreate("sess-aaaaaaaa", now)
	if !created {
		t.Fatal("first call must create")
	}
	second, created := ss.GetOrCreate("sess-aaaaaaaa", now.Add(time.Minute))
	if created {
		t.Fatal("second call must reuse")
	}
	if first.ID != second.ID || !first.CreatedAt.Equal(second.CreatedAt) {
		t.Fatal("reused session must be the same session")
	}
}

func TestExpiredSessionIsReplaced(t *testing.T) {
	ss := NewSessionsStore(time.Hour, nil)
	now := time.Now()

	ss.GetOrCreate("sess-aaaaaaaa", now)
	if _, err := ss.Update("sess-aaaaaaaa", now, func(s *session.Session) error {
		s.PageViews = 9
		return nil
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	later := now.Add(2 * time.Hour)
	if _, ok := ss.Get("sess-aaaaaaaa", later); ok {
		t.Fatal("expired session must not be readable")
	}

	replaced, created := ss.GetOrCreate("sess-aaaaaaaa", later)
	if !created {
		t.Fatal("expired session must be replaced with a fresh one")
	}
	if replaced.PageViews != 0 {
		t.Fatalf("replacement must reset counters, got %d page views", replaced.PageViews)
	}
}

func TestUpdateReturnsSnapshotNotLiveState(t *testing.T) {
	ss := NewSessionsStore(time.Hour, nil)
	now := time.Now()

	snap, err := ss.Update("sess-aaaaaaaa", now, func(s *session.Session) error {
		s.Flags["useAggressiveCTAs"] = true
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// Mutating the snapshot must not leak into the stored session.
	snap.Flags["useAggressiveCTAs"] = false
	fresh, ok := ss.Get("sess-aaaaaaaa", now)
	if !ok {
		t.Fatal("session missing")
	}
	if !fresh.Flags["useAggressiveCTAs"] {
		t.Fatal("snapshot mutation leaked into the store")
	}
}

func TestConcurrentUpdatesAllLand(t *testing.T) {
	ss := NewSessionsStore(time.Hour, nil)
	now := time.Now()

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ss.Update("sess-aaaaaaaa", now, func(s *session.Session) error {
				s.PageViews++
				return nil
			})
		}()
	}
	wg.Wait()

	snap, ok := ss.Get("sess-aaaaaaaa", now)
	if !ok {
		t.Fatal("session missing")
	}
	if snap.PageViews != workers {
		t.Fatalf("page views = %d, want %d; an update was lost", snap.PageViews, workers)
	}
}

func TestMergeLocksBothAndTombstones(t *testing.T) {
	ss := NewSessionsStore(time.Hour, nil)
	now := time.Now()

	ss.GetOrCreate("sess-aaaaaaaa", now)
	ss.GetOrCreate("sess-bbbbbbbb", now)

	p, s, err := ss.Merge("sess-aaaaaaaa", "sess-bbbbbbbb", now, func(primary, secondary *session.Session) error {
		primary.PageViews = 5
		secondary.Merged = true
		secondary.MergedInto = primary.ID
		return nil
	})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if p.PageViews != 5 {
		t.Fatal("merge mutation lost on primary")
	}
	if !s.Merged || s.MergedInto != "sess-aaaaaaaa" {
		t.Fatal("secondary tombstone missing")
	}

	if _, ok := ss.Get("sess-bbbbbbbb", now); ok {
		t.Fatal("tombstoned session must not be readable")
	}
}

func TestConcurrentOppositeMergesDoNotDeadlock(t *testing.T) {
	ss := NewSessionsStore(time.Hour, nil)
	now := time.Now()

	ss.GetOrCreate("sess-aaaaaaaa", now)
	ss.GetOrCreate("sess-bbbbbbbb", now)

	var wg sync.WaitGroup
	mergeFn := func(primary, secondary *session.Session) error {
		secondary.Merged = true
		secondary.MergedInto = primary.ID
		return nil
	}
	wg.Add(2)
	go func() {
		defer wg.Done()
		ss.Merge("sess-aaaaaaaa", "sess-bbbbbbbb", now, mergeFn)
	}()
	go func() {
		defer wg.Done()
		ss.Merge("sess-bbbbbbbb", "sess-aaaaaaaa", now, mergeFn)
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("opposite-direction merges deadlocked")
	}

	// Exactly one direction can win; the other sees a tombstone.
	_, aLive := ss.Get("sess-aaaaaaaa", now)
	_, bLive := ss.Get("sess-bbbbbbbb", now)
	if aLive == bLive {
		t.Fatalf("expected exactly one surviving session, got aLive=%v bLive=%v", aLive, bLive)
	}
}

func TestMergeConflictReasons(t *testing.T) {
	ss := NewSessionsStore(time.Hour, nil)
	now := time.Now()
	ss.GetOrCreate("sess-aaaaaaaa", now)

	if _, _, err := ss.Merge("sess-aaaaaaaa", "sess-aaaaaaaa", now, nil); !errs.IsMergeConflict(err) {
		t.Fatalf("self merge: %v", err)
	}
	if _, _, err := ss.Merge("sess-aaaaaaaa", "sess-missing1", now, nil); !errs.IsMergeConflict(err) {
		t.Fatalf("missing secondary: %v", err)
	}
}

func TestSweepExpired(t *testing.T) {
	ss := NewSessionsStore(time.Hour, nil)
	now := time.Now()

	ss.GetOrCreate("sess-aaaaaaaa", now)
	ss.GetOrCreate("sess-bbbbbbbb", now.Add(30*time.Minute))

	removed := ss.SweepExpired(now.Add(90 * time.Minute))
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if ss.Count() != 1 {
		t.Fatalf("count = %d, want 1", ss.Count())
	}
	if _, ok := ss.Get("sess-bbbbbbbb", now.Add(89*time.Minute)); !ok {
		t.Fatal("younger session must survive the sweep")
	}
}
