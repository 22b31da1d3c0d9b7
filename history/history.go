// Package history keeps a local record of completed dictations, backing the
// copy-last command and the TUI recall view.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrEmpty is returned by Last when no dictation has been recorded yet.
var ErrEmpty = errors.New("history is empty")

// Entry is one completed dictation.
type Entry struct {
	ID        int64
	SessionID string
	Text      string
	Language  string
	Model     string
	AudioMS   int64
	ProcessMS int64
	Chars     int
	CreatedAt time.Time
}

// Store is a SQLite-backed dictation log. Old entries are pruned so the
// table never exceeds maxEntries rows.
type Store struct {
	db         *sql.DB
	maxEntries int
	clock      func() time.Time
}

func Open(ctx context.Context, path string, maxEntries int) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, maxEntries: maxEntries, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS dictations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT,
    text TEXT NOT NULL,
    language TEXT,
    model TEXT,
    audio_ms INTEGER,
    process_ms INTEGER,
    chars INTEGER,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dictations_created ON dictations(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append records one dictation and prunes past the entry cap.
func (s *Store) Append(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dictations(session_id, text, language, model, audio_ms, process_ms, chars, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Text, e.Language, e.Model, e.AudioMS, e.ProcessMS, e.Chars,
		e.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	return s.prune(ctx)
}

func (s *Store) prune(ctx context.Context) error {
	if s.maxEntries <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM dictations WHERE id IN (
		SELECT id FROM dictations ORDER BY id DESC LIMIT -1 OFFSET ?
	)`, s.maxEntries)
	return err
}

// Last returns the most recent dictation.
func (s *Store) Last(ctx context.Context) (Entry, error) {
	rows, err := s.Recent(ctx, 1)
	if err != nil {
		return Entry{}, err
	}
	if len(rows) == 0 {
		return Entry{}, ErrEmpty
	}
	return rows[0], nil
}

// Recent returns up to limit dictations, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, text, language, model, audio_ms, process_ms, chars, created_at
		 FROM dictations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Text, &e.Language, &e.Model,
			&e.AudioMS, &e.ProcessMS, &e.Chars, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
