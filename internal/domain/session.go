// Package domain contains core domain types for the chat widget.
package domain

import (
	"time"
)

// SessionState is the lifecycle state of a widget session.
type SessionState int

const (
	// SessionIdle means no conversation is running.
	SessionIdle SessionState = iota
	// SessionActive means the widget is open and the conversation is live.
	SessionActive
	// SessionExpired means the idle timer ended the conversation.
	SessionExpired
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionActive:
		return "active"
	case SessionExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Session is one logical conversation with the bot.
type Session struct {
	ID                string
	State             SessionState
	LastBotMessage    *string
	SuggestionsShown  bool
	PendingSubmission *SubmissionKind
	StartedAt         time.Time
}

// IsActive returns true if the session accepts user actions.
func (s *Session) IsActive() bool {
	return s.State == SessionActive
}

// MarkSuggestionsShown flips SuggestionsShown to true. It returns false when
// the flag was already set, so callers attach suggestions at most once.
func (s *Session) MarkSuggestionsShown() bool {
	if s.SuggestionsShown {
		return false
	}
	s.SuggestionsShown = true
	return true
}

// Reset returns the session to its zero Idle state.
func (s *Session) Reset() {
	*s = Session{State: SessionIdle}
}

// SuggestionSet is an ordered list of quick-reply prompts.
type SuggestionSet []string

// DefaultSuggestions are offered under the first bot reply of a session.
var DefaultSuggestions = SuggestionSet{
	"Tell me about your services",
	"What job openings are available?",
	"How can I contact you?",
}

// Prompt returns the prompt at index i.
func (s SuggestionSet) Prompt(i int) (string, bool) {
	if i < 0 || i >= len(s) {
		return "", false
	}
	return s[i], true
}
