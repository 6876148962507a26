// Package storage persists cycle history to a local SQLite database. The
// status command and the optional status server read from it; the daemon
// appends one row per finished cycle.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"autoportal/internal/models"
)

// Store wraps the cycle history database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database file and ensures the schema exists.
func New(ctx context.Context, dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_journal_mode=WAL", dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS cycles (
	id          TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	cause       TEXT NOT NULL,
	portal_url  TEXT,
	success     INTEGER NOT NULL,
	logged_in   INTEGER NOT NULL,
	attempts    INTEGER NOT NULL,
	error       TEXT,
	duration_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cycles_started_at ON cycles (started_at DESC);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// RecordCycle inserts a finished cycle. A missing ID is assigned here.
func (s *Store) RecordCycle(ctx context.Context, rec *models.CycleRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO cycles (id, started_at, cause, portal_url, success, logged_in, attempts, error, duration_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		string(rec.Trigger),
		nullable(rec.PortalURL),
		boolInt(rec.Success),
		boolInt(rec.LoggedIn),
		rec.Attempts,
		nullable(rec.Error),
		rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}
	return nil
}

// RecentCycles returns the newest cycles, most recent first.
func (s *Store) RecentCycles(ctx context.Context, limit int) ([]models.CycleRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, started_at, cause, portal_url, success, logged_in, attempts, error, duration_ms
FROM cycles ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	var out []models.CycleRecord
	for rows.Next() {
		var (
			rec       models.CycleRecord
			startedAt string
			trigger   string
			portalURL sql.NullString
			success   int
			loggedIn  int
			errText   sql.NullString
		)
		if err := rows.Scan(&rec.ID, &startedAt, &trigger, &portalURL, &success, &loggedIn, &rec.Attempts, &errText, &rec.DurationMS); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		rec.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parse cycle timestamp: %w", err)
		}
		rec.Trigger = models.Trigger(trigger)
		rec.PortalURL = portalURL.String
		rec.Success = success != 0
		rec.LoggedIn = loggedIn != 0
		rec.Error = errText.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune keeps only the newest keep rows.
func (s *Store) Prune(ctx context.Context, keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
DELETE FROM cycles WHERE id NOT IN (
	SELECT id FROM cycles ORDER BY started_at DESC LIMIT ?
)`, keep)
	if err != nil {
		return fmt.Errorf("prune cycles: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
