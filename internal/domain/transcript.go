package domain

import "time"

// EntryKind classifies a transcript entry.
type EntryKind string

// Transcript entry kinds.
const (
	EntrySessionStarted EntryKind = "session_started"
	EntryUserMessage    EntryKind = "user_message"
	EntryBotMessage     EntryKind = "bot_message"
	EntrySubmission     EntryKind = "submission"
	EntrySessionExpired EntryKind = "session_expired"
	EntrySessionCleared EntryKind = "session_cleared"
	EntryError          EntryKind = "error"
)

// TranscriptEntry is one analytics record of a conversation.
type TranscriptEntry struct {
	ID        int64
	SessionID string
	Kind      EntryKind
	Text      string
	CreatedAt time.Time
}

// SessionSummary aggregates the transcript of one session.
type SessionSummary struct {
	SessionID    string
	StartedAt    time.Time
	LastActivity time.Time
	Messages     int
}
