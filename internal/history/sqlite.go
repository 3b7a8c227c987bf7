package history

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite implements Sink on a local SQLite file (modernc.org/sqlite driver,
// CGO-free). Use ":memory:" for an in-memory database in tests.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	s := &SQLite{db: d}
	if err := s.ensureSchema(ctx); err != nil {
		_ = d.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS lifecycle_events(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			occurred_at TIMESTAMP NOT NULL,
			pid INTEGER NOT NULL,
			port INTEGER NOT NULL,
			detail TEXT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_lifecycle_events_type ON lifecycle_events(type);`,
		`CREATE INDEX IF NOT EXISTS idx_lifecycle_events_occurred ON lifecycle_events(occurred_at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Record inserts one lifecycle event.
func (s *SQLite) Record(ctx context.Context, rec Record) error {
	at := rec.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lifecycle_events(type, occurred_at, pid, port, detail)
		VALUES(?, ?, ?, ?, ?);`,
		string(rec.Type), at.UTC(), rec.PID, rec.Port, rec.Detail)
	return err
}

// Recent returns up to limit most recent events, newest first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, occurred_at, pid, port, detail
		FROM lifecycle_events ORDER BY id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var r Record
		var typ string
		var detail sql.NullString
		if err := rows.Scan(&typ, &r.OccurredAt, &r.PID, &r.Port, &detail); err != nil {
			return nil, err
		}
		r.Type = EventType(typ)
		r.Detail = detail.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error { return s.db.Close() }
