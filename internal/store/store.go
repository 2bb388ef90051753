// Package store persists the conversation transcript used for chat analytics.
// The widget only ever writes to it; nothing is read back into a live session.
package store

import (
	"context"
	"time"

	"github.com/ashureev/chatwidget/internal/domain"
)

// Sink accepts transcript entries.
type Sink interface {
	// Append stores one entry.
	Append(ctx context.Context, entry domain.TranscriptEntry) error

	// Close releases the underlying connection.
	Close() error
}

// Repository is a queryable transcript store.
type Repository interface {
	Sink

	// Conversation returns the entries of one session in insertion order.
	Conversation(ctx context.Context, sessionID string) ([]domain.TranscriptEntry, error)

	// RecentSessions summarizes sessions with activity after since, newest first.
	RecentSessions(ctx context.Context, since time.Time, limit int) ([]domain.SessionSummary, error)

	// PruneBefore deletes entries created before cutoff.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error
}
