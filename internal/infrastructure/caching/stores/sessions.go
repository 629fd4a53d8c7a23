// Package stores provides the in-memory canonical session state.
//
// Mutations for a single session are serialized behind a per-session
// lock; operations on distinct sessions run fully in parallel. Merge
// locks both sessions in identifier order so two concurrent merges can
// never deadlock, and its mutation closure runs with both locks held so
// partial merges are never observable.
package stores

import (
	"sync"
	"time"

	"github.com/PulseTrack/pulsetrack-go/internal/domain/entities/session"
	"github.com/PulseTrack/pulsetrack-go/internal/domain/errs"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/logging"
)

type sessionEntry struct {
	mu sync.Mutex
	s  *session.Session
}

// SessionsStore holds live sessions keyed by session identifier.
type SessionsStore struct {
	entries map[string]*sessionEntry
	mu      sync.RWMutex
	ttl     time.Duration
	logger  *logging.ChanneledLogger
}

// NewSessionsStore creates a new sessions store.
func NewSessionsStore(ttl time.Duration, logger *logging.ChanneledLogger) *SessionsStore {
	if logger != nil {
		logger.Session().Info("Initializing sessions store", "ttl", ttl)
	}
	return &SessionsStore{
		entries: make(map[string]*sessionEntry),
		ttl:     ttl,
		logger:  logger,
	}
}

func (ss *SessionsStore) entry(sessionID string) (*sessionEntry, bool) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	e, ok := ss.entries[sessionID]
	return e, ok
}

// GetOrCreate returns the live session for the identifier, creating a
// fresh one when none exists or when the rolling TTL has lapsed. The
// second return reports whether a new session was created.
func (ss *SessionsStore) GetOrCreate(sessionID string, now time.Time) (*session.Session, bool) {
	if e, ok := ss.entry(sessionID); ok {
		e.mu.Lock()
		if !e.s.IsExpired(now) && !e.s.Merged {
			snap := e.s.Snapshot()
			e.mu.Unlock()
			return snap, false
		}
		// Expired or tombstoned: replace with a fresh session under the
		// same identifier. Counters reset by design.
		e.s = session.New(sessionID, now, ss.ttl)
		snap := e.s.Snapshot()
		e.mu.Unlock()
		if ss.logger != nil {
			ss.logger.Session().Debug("Session replaced after expiry", "sessionId", sessionID)
		}
		return snap, true
	}

	ss.mu.Lock()
	e, ok := ss.entries[sessionID]
	if !ok {
		e = &sessionEntry{s: session.New(sessionID, now, ss.ttl)}
		ss.entries[sessionID] = e
	}
	ss.mu.Unlock()

	e.mu.Lock()
	snap := e.s.Snapshot()
	e.mu.Unlock()
	return snap, !ok
}

// Get returns a snapshot of a live session, or false when the session is
// unknown, expired, or merged away.
func (ss *SessionsStore) Get(sessionID string, now time.Time) (*session.Session, bool) {
	e, ok := ss.entry(sessionID)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.s.IsExpired(now) || e.s.Merged {
		return nil, false
	}
	return e.s.Snapshot(), true
}

// Restore seeds the store with a session loaded from durable storage,
// unless a live entry already exists for the identifier.
func (ss *SessionsStore) Restore(s *session.Session) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if _, ok := ss.entries[s.ID]; !ok {
		ss.entries[s.ID] = &sessionEntry{s: s}
	}
}

// Update runs fn on the session under its lock and returns a snapshot of
// the result. The session is created first when absent or expired. All
// mutating callers go through here, so a session only ever has a single
// writer at a time.
func (ss *SessionsStore) Update(sessionID string, now time.Time, fn func(*session.Session) error) (*session.Session, error) {
	ss.mu.Lock()
	e, ok := ss.entries[sessionID]
	if !ok {
		e = &sessionEntry{s: session.New(sessionID, now, ss.ttl)}
		ss.entries[sessionID] = e
	}
	ss.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.s.IsExpired(now) || e.s.Merged {
		e.s = session.New(sessionID, now, ss.ttl)
	}
	if err := fn(e.s); err != nil {
		return nil, err
	}
	return e.s.Snapshot(), nil
}

// Merge runs fn with both sessions locked, primary and secondary, and
// returns snapshots of both. Locks are taken in identifier order.
func (ss *SessionsStore) Merge(primaryID, secondaryID string, now time.Time, fn func(primary, secondary *session.Session) error) (*session.Session, *session.Session, error) {
	if primaryID == secondaryID {
		return nil, nil, &errs.MergeConflict{SessionID: primaryID, Reason: "cannot merge a session into itself"}
	}

	pe, ok := ss.entry(primaryID)
	if !ok {
		return nil, nil, &errs.MergeConflict{SessionID: primaryID, Reason: "session does not exist"}
	}
	se, ok := ss.entry(secondaryID)
	if !ok {
		return nil, nil, &errs.MergeConflict{SessionID: secondaryID, Reason: "session does not exist"}
	}

	first, second := pe, se
	if secondaryID < primaryID {
		first, second = se, pe
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if pe.s.Merged {
		return nil, nil, &errs.MergeConflict{SessionID: primaryID, Reason: "session already merged"}
	}
	if se.s.Merged {
		return nil, nil, &errs.MergeConflict{SessionID: secondaryID, Reason: "session already merged"}
	}
	if pe.s.IsExpired(now) {
		return nil, nil, &errs.MergeConflict{SessionID: primaryID, Reason: "session expired"}
	}
	if se.s.IsExpired(now) {
		return nil, nil, &errs.MergeConflict{SessionID: secondaryID, Reason: "session expired"}
	}

	if err := fn(pe.s, se.s); err != nil {
		return nil, nil, err
	}
	return pe.s.Snapshot(), se.s.Snapshot(), nil
}

// Count returns the number of entries currently held, tombstones included.
func (ss *SessionsStore) Count() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.entries)
}

// SweepExpired drops sessions whose TTL lapsed before now and returns
// how many were removed. Merge tombstones older than the TTL go too.
func (ss *SessionsStore) SweepExpired(now time.Time) int {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	removed := 0
	for id, e := range ss.entries {
		e.mu.Lock()
		expired := e.s.IsExpired(now)
		e.mu.Unlock()
		if expired {
			delete(ss.entries, id)
			removed++
		}
	}
	if removed > 0 && ss.logger != nil {
		ss.logger.Session().Info("Expired sessions swept", "removed", removed, "remaining", len(ss.entries))
	}
	return removed
}
