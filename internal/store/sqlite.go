package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/chatwidget/internal/domain"
	"github.com/ashureev/chatwidget/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (and creates if needed) the transcript database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL lets the retention worker prune while the recorder appends.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS transcript_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transcript_session ON transcript_entries(session_id, id);
	CREATE INDEX IF NOT EXISTS idx_transcript_created ON transcript_entries(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Append stores one entry, retrying while the database is busy.
func (s *SQLiteStore) Append(ctx context.Context, entry domain.TranscriptEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	query := `INSERT INTO transcript_entries (session_id, kind, text, created_at) VALUES (?, ?, ?, ?)`
	return shared.RetryOnConflict(ctx, "append transcript entry", shared.DefaultBackoff, func() error {
		_, err := s.db.ExecContext(ctx, query,
			entry.SessionID, string(entry.Kind), entry.Text, entry.CreatedAt.UnixMilli())
		return err
	})
}

// Conversation returns the entries of one session in insertion order.
func (s *SQLiteStore) Conversation(ctx context.Context, sessionID string) ([]domain.TranscriptEntry, error) {
	query := `
		SELECT id, session_id, kind, text, created_at
		FROM transcript_entries WHERE session_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close conversation rows", "error", closeErr)
		}
	}()

	var entries []domain.TranscriptEntry
	for rows.Next() {
		var e domain.TranscriptEntry
		var kind string
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.SessionID, &kind, &e.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		e.Kind = domain.EntryKind(kind)
		e.CreatedAt = time.UnixMilli(createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation: %w", err)
	}
	return entries, nil
}

// RecentSessions summarizes sessions with activity after since, newest first.
// Messages counts user and bot messages only.
func (s *SQLiteStore) RecentSessions(ctx context.Context, since time.Time, limit int) ([]domain.SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT session_id,
		       MIN(created_at),
		       MAX(created_at),
		       SUM(CASE WHEN kind IN (?, ?) THEN 1 ELSE 0 END)
		FROM transcript_entries
		GROUP BY session_id
		HAVING MAX(created_at) >= ?
		ORDER BY MAX(created_at) DESC, session_id
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query,
		string(domain.EntryUserMessage), string(domain.EntryBotMessage), since.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("query recent sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close recent sessions rows", "error", closeErr)
		}
	}()

	var out []domain.SessionSummary
	for rows.Next() {
		var sum domain.SessionSummary
		var started, last int64
		if err := rows.Scan(&sum.SessionID, &started, &last, &sum.Messages); err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		sum.StartedAt = time.UnixMilli(started)
		sum.LastActivity = time.UnixMilli(last)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent sessions: %w", err)
	}
	return out, nil
}

// PruneBefore deletes entries created before cutoff.
func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := shared.RetryOnConflict(ctx, "prune transcript", shared.DefaultBackoff, func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM transcript_entries WHERE created_at < ?`, cutoff.UnixMilli())
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
