package session

import (
	"testing"
	"time"
)

func validEvent(t EventType, at time.Time, data map[string]any) BehaviorEvent {
	return BehaviorEvent{
		Type:      t,
		Timestamp: at,
		SessionID: "sess-aaaaaaaa",
		Data:      data,
	}
}

func TestValidateSessionID(t *testing.T) {
	cases := []struct {
		id string
		ok bool
	}{
		{"sess-aaaaaaaa", true},
		{"AbC123_-xyz9", true},
		{"", false},
		{"short", false},
		{"has spaces here", false},
		{"bad!chars#here", false},
	}
	for _, tc := range cases {
		err := ValidateSessionID(tc.id)
		if tc.ok && err != nil {
			t.Errorf("ValidateSessionID(%q) = %v, want nil", tc.id, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("ValidateSessionID(%q) = nil, want error", tc.id)
		}
	}
}

func TestEventValidation(t *testing.T) {
	now := time.Now()

	evt := validEvent(EventPageVisit, now, nil)
	if err := evt.Validate(); err != nil {
		t.Fatalf("valid page visit rejected: %v", err)
	}

	evt = validEvent("made_up", now, nil)
	if err := evt.Validate(); err == nil {
		t.Fatal("unknown event type must be rejected")
	}

	evt = validEvent(EventPageVisit, time.Time{}, nil)
	if err := evt.Validate(); err == nil {
		t.Fatal("zero timestamp must be rejected")
	}

	evt = validEvent(EventQuizAnswer, now, map[string]any{"score": 3})
	if err := evt.Validate(); err == nil {
		t.Fatal("quiz answer without quizId must be rejected")
	}

	evt = validEvent(EventAffiliateClick, now, nil)
	if err := evt.Validate(); err == nil {
		t.Fatal("affiliate click without offerId must be rejected")
	}
}

func TestRecordUpdatesCounters(t *testing.T) {
	now := time.Now()
	s := New("sess-aaaaaaaa", now, time.Hour)

	s.Record(validEvent(EventPageVisit, now, nil), 100, time.Hour)
	s.Record(validEvent(EventTimeOnSite, now.Add(time.Second), map[string]any{"durationMs": float64(30000)}), 100, time.Hour)
	s.Record(validEvent(EventQuizAnswer, now.Add(2*time.Second), map[string]any{"quizId": "quiz-1", "score": float64(8)}), 100, time.Hour)
	s.Record(validEvent(EventAffiliateClick, now.Add(3*time.Second), map[string]any{"offerId": "offer-1"}), 100, time.Hour)

	if s.PageViews != 1 {
		t.Fatalf("pageViews = %d, want 1", s.PageViews)
	}
	if s.TotalTimeOnSiteMs != 30000 {
		t.Fatalf("totalTimeOnSiteMs = %d, want 30000", s.TotalTimeOnSiteMs)
	}
	if s.Interactions != 2 {
		t.Fatalf("interactions = %d, want 2", s.Interactions)
	}
	if len(s.QuizResults) != 1 || s.QuizResults[0].QuizID != "quiz-1" || s.QuizResults[0].Score != 8 {
		t.Fatalf("quiz results = %+v", s.QuizResults)
	}
	if len(s.AffiliateClicks) != 1 || s.AffiliateClicks[0].Converted {
		t.Fatalf("affiliate clicks = %+v", s.AffiliateClicks)
	}
}

func TestRecordRollsTTLForward(t *testing.T) {
	now := time.Now()
	s := New("sess-aaaaaaaa", now, time.Hour)
	initial := s.ExpiresAt

	s.Record(validEvent(EventPageVisit, now.Add(30*time.Minute), nil), 100, time.Hour)
	if !s.ExpiresAt.After(initial) {
		t.Fatal("activity must extend the TTL")
	}
	if s.IsExpired(now.Add(80 * time.Minute)) {
		t.Fatal("session must survive within the rolled-forward window")
	}
}

func TestEventHistoryIsBounded(t *testing.T) {
	now := time.Now()
	s := New("sess-aaaaaaaa", now, time.Hour)

	for i := 0; i < 150; i++ {
		s.Record(validEvent(EventPageVisit, now.Add(time.Duration(i)*time.Second), nil), 100, time.Hour)
	}
	if len(s.Events) != 100 {
		t.Fatalf("history length = %d, want 100", len(s.Events))
	}
	// Oldest events drop first; the counter keeps the full total.
	if !s.Events[0].Timestamp.Equal(now.Add(50 * time.Second)) {
		t.Fatalf("oldest retained event at %v, want offset 50s", s.Events[0].Timestamp)
	}
	if s.PageViews != 150 {
		t.Fatalf("pageViews = %d, want 150", s.PageViews)
	}
}

func TestConversionFlipsExistingClick(t *testing.T) {
	now := time.Now()
	s := New("sess-aaaaaaaa", now, time.Hour)

	s.Record(validEvent(EventAffiliateClick, now, map[string]any{"offerId": "offer-1"}), 100, time.Hour)
	s.Record(validEvent(EventAffiliateClick, now.Add(time.Minute), map[string]any{"offerId": "offer-1", "converted": true}), 100, time.Hour)

	if len(s.AffiliateClicks) != 1 {
		t.Fatalf("clicks = %d, want the conversion folded into the original click", len(s.AffiliateClicks))
	}
	if !s.AffiliateClicks[0].Converted {
		t.Fatal("original click must be marked converted")
	}
	if s.Stats().ConvertedClicks != 1 {
		t.Fatalf("converted clicks = %d, want 1", s.Stats().ConvertedClicks)
	}
}

func TestContentEngagementCollectsSets(t *testing.T) {
	now := time.Now()
	s := New("sess-aaaaaaaa", now, time.Hour)

	s.Record(validEvent(EventContentEngagement, now, map[string]any{
		"emotion": "curious", "category": "pricing", "module": "calculator",
	}), 100, time.Hour)
	s.Record(validEvent(EventContentEngagement, now.Add(time.Second), map[string]any{
		"emotion": "curious",
	}), 100, time.Hour)

	if len(s.Emotions) != 1 || !s.Emotions["curious"] {
		t.Fatalf("emotions = %v", s.Emotions)
	}
	if !s.Categories["pricing"] || !s.ModulesUsed["calculator"] {
		t.Fatalf("categories = %v, modules = %v", s.Categories, s.ModulesUsed)
	}
}
