package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ashureev/chatwidget/internal/config"
	"github.com/ashureev/chatwidget/internal/store"
)

const historyWindow = 7 * 24 * time.Hour

// runHistory prints recorded sessions, or one session's transcript when
// sessionID is set. Only the SQLite backend can be queried.
func runHistory(ctx context.Context, cfg *config.Config, w io.Writer, sessionID string) error {
	if cfg.Transcript.Backend != config.BackendSQLite {
		return fmt.Errorf("history needs TRANSCRIPT_BACKEND=sqlite, got %q", cfg.Transcript.Backend)
	}
	repo, err := store.NewSQLite(cfg.Transcript.DBPath)
	if err != nil {
		return fmt.Errorf("open transcript database: %w", err)
	}
	defer repo.Close()

	return printHistory(ctx, repo, w, sessionID, time.Now().Add(-historyWindow))
}

func printHistory(ctx context.Context, repo store.Repository, w io.Writer, sessionID string, since time.Time) error {
	if sessionID != "" {
		entries, err := repo.Conversation(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("load conversation: %w", err)
		}
		if len(entries) == 0 {
			fmt.Fprintf(w, "no entries for session %s\n", sessionID)
			return nil
		}
		for _, e := range entries {
			fmt.Fprintf(w, "%s  %-16s %s\n", e.CreatedAt.Format(time.DateTime), e.Kind, e.Text)
		}
		return nil
	}

	sessions, err := repo.RecentSessions(ctx, since, 50)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w, "no recent sessions")
		return nil
	}
	for _, s := range sessions {
		fmt.Fprintf(w, "%s  started %s  last %s  %d messages\n",
			s.SessionID, s.StartedAt.Format(time.DateTime), s.LastActivity.Format(time.DateTime), s.Messages)
	}
	return nil
}
