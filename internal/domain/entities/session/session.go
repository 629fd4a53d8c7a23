package session

import (
	"time"
)

// QuizResult records one completed quiz inside a session.
type QuizResult struct {
	QuizID    string            `json:"quizId"`
	Answers   map[string]string `json:"answers"`
	Score     int               `json:"score"`
	Outcome   string            `json:"outcome"`
	Timestamp time.Time         `json:"timestamp"`
}

// AffiliateClick records one outbound offer click. Converted is mutable
// only false -> true; a conversion is never un-recorded.
type AffiliateClick struct {
	OfferID   string    `json:"offerId"`
	Timestamp time.Time `json:"timestamp"`
	Converted bool      `json:"converted"`
}

// Stats is the counter snapshot the segment classifier operates on.
// It carries no references back into the session, so classification
// can never observe a concurrent mutation.
type Stats struct {
	PageViews         int
	TotalTimeOnSiteMs int64
	AffiliateClicks   int
	ConvertedClicks   int
	QuizResults       int
}

// Session is the rolling per-visitor state. The identifier is immutable
// once created; counters are monotonically non-decreasing except on
// explicit reset (session replacement after TTL expiry).
type Session struct {
	ID                string            `json:"sessionId"`
	UserID            string            `json:"userId,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	LastActivity      time.Time         `json:"lastActivity"`
	ExpiresAt         time.Time         `json:"expiresAt"`
	PageViews         int               `json:"pageViews"`
	Interactions      int               `json:"interactions"`
	TotalTimeOnSiteMs int64             `json:"totalTimeOnSiteMs"`
	Events            []BehaviorEvent   `json:"events"`
	Emotions          map[string]bool   `json:"emotions"`
	Categories        map[string]bool   `json:"categories"`
	ModulesUsed       map[string]bool   `json:"modulesUsed"`
	QuizResults       []QuizResult      `json:"quizResults"`
	AffiliateClicks   []AffiliateClick  `json:"affiliateClicks"`
	Segment           string            `json:"segment"`
	Flags             map[string]bool   `json:"flags"`
	Assignments       map[string]string `json:"assignments,omitempty"` // experimentID -> variantID
	Merged            bool              `json:"merged"`
	MergedInto        string            `json:"mergedInto,omitempty"`
	MergeReason       string            `json:"mergeReason,omitempty"`
}

// New creates a fresh session for the given identifier.
func New(sessionID string, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:           sessionID,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(ttl),
		Emotions:     make(map[string]bool),
		Categories:   make(map[string]bool),
		ModulesUsed:  make(map[string]bool),
		Flags:        make(map[string]bool),
		Assignments:  make(map[string]string),
	}
}

// IsExpired reports whether the rolling TTL has lapsed.
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Record folds a validated behavior event into the session: appends to
// the bounded in-memory history, bumps counters, and captures quiz and
// affiliate-click records. The caller owns serialization per session.
func (s *Session) Record(event BehaviorEvent, historyLimit int, ttl time.Duration) {
	s.Events = append(s.Events, event)
	if historyLimit > 0 && len(s.Events) > historyLimit {
		s.Events = s.Events[len(s.Events)-historyLimit:]
	}

	if event.Timestamp.After(s.LastActivity) {
		s.LastActivity = event.Timestamp
		s.ExpiresAt = event.Timestamp.Add(ttl)
	}
	if event.UserID != "" {
		s.UserID = event.UserID
	}

	switch event.Type {
	case EventPageVisit:
		s.PageViews++
	case EventTimeOnSite:
		if ms, ok := asInt64(event.Data["durationMs"]); ok && ms > 0 {
			s.TotalTimeOnSiteMs += ms
		}
	case EventQuizAnswer:
		s.Interactions++
		s.recordQuiz(event)
	case EventAffiliateClick:
		s.Interactions++
		s.recordAffiliateClick(event)
	case EventScrollDepth, EventCTAClick:
		s.Interactions++
	case EventContentEngagement:
		s.Interactions++
		if emotion, ok := event.Data["emotion"].(string); ok && emotion != "" {
			s.Emotions[emotion] = true
		}
		if category, ok := event.Data["category"].(string); ok && category != "" {
			s.Categories[category] = true
		}
		if module, ok := event.Data["module"].(string); ok && module != "" {
			s.ModulesUsed[module] = true
		}
	}
}

func (s *Session) recordQuiz(event BehaviorEvent) {
	quizID, _ := event.Data["quizId"].(string)
	result := QuizResult{
		QuizID:    quizID,
		Answers:   make(map[string]string),
		Timestamp: event.Timestamp,
	}
	if answers, ok := event.Data["answers"].(map[string]any); ok {
		for k, v := range answers {
			if str, ok := v.(string); ok {
				result.Answers[k] = str
			}
		}
	}
	if score, ok := asInt64(event.Data["score"]); ok {
		result.Score = int(score)
	}
	if outcome, ok := event.Data["outcome"].(string); ok {
		result.Outcome = outcome
	}
	s.QuizResults = append(s.QuizResults, result)
}

func (s *Session) recordAffiliateClick(event BehaviorEvent) {
	offerID, _ := event.Data["offerId"].(string)
	converted, _ := event.Data["converted"].(bool)

	if converted {
		// Conversion signal: flip the original click if we have one.
		for i := range s.AffiliateClicks {
			if s.AffiliateClicks[i].OfferID == offerID && !s.AffiliateClicks[i].Converted {
				s.AffiliateClicks[i].Converted = true
				return
			}
		}
	}
	s.AffiliateClicks = append(s.AffiliateClicks, AffiliateClick{
		OfferID:   offerID,
		Timestamp: event.Timestamp,
		Converted: converted,
	})
}

// Stats returns the counter snapshot for segment classification.
func (s *Session) Stats() Stats {
	converted := 0
	for _, click := range s.AffiliateClicks {
		if click.Converted {
			converted++
		}
	}
	return Stats{
		PageViews:         s.PageViews,
		TotalTimeOnSiteMs: s.TotalTimeOnSiteMs,
		AffiliateClicks:   len(s.AffiliateClicks),
		ConvertedClicks:   converted,
		QuizResults:       len(s.QuizResults),
	}
}

// Snapshot returns a deep copy so callers can read without holding the
// session's lock.
func (s *Session) Snapshot() *Session {
	out := *s
	out.Events = append([]BehaviorEvent(nil), s.Events...)
	out.QuizResults = append([]QuizResult(nil), s.QuizResults...)
	out.AffiliateClicks = append([]AffiliateClick(nil), s.AffiliateClicks...)
	out.Emotions = copyBoolSet(s.Emotions)
	out.Categories = copyBoolSet(s.Categories)
	out.ModulesUsed = copyBoolSet(s.ModulesUsed)
	out.Flags = copyBoolSet(s.Flags)
	out.Assignments = make(map[string]string, len(s.Assignments))
	for k, v := range s.Assignments {
		out.Assignments[k] = v
	}
	return &out
}

func copyBoolSet(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}
