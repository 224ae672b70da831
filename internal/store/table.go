package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Event kinds written by the watcher.
const (
	KindSnapshot = "snapshot"
	KindAlert    = "alert"
	KindConfirm  = "confirm"
	KindMail     = "mail"
)

// atLayout is fixed-width so the TEXT column sorts chronologically.
const atLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Event struct {
	ID            int64     `json:"id"`
	Kind          string    `json:"kind"`
	TaskID        string    `json:"taskId,omitempty"`
	TranslationID string    `json:"translationId,omitempty"`
	OK            bool      `json:"ok"`
	Detail        string    `json:"detail"`
	At            time.Time `json:"at"`
}

func Migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}
	if v >= 1 {
		return tx.Commit()
	}

	// ---- Schema v1 ----

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  kind TEXT NOT NULL,
  task_id TEXT NOT NULL DEFAULT '',
  translation_id TEXT NOT NULL DEFAULT '',
  ok INTEGER NOT NULL DEFAULT 0,
  detail TEXT NOT NULL DEFAULT '',
  at TEXT NOT NULL
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_events_at ON events(at DESC);`); err != nil {
		return err
	}
	if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_events_task ON events(task_id) WHERE task_id != '';`); err != nil {
		return err
	}

	if _, err := tx.Exec(`PRAGMA user_version = 1;`); err != nil {
		return err
	}
	return tx.Commit()
}

// Record appends e to the journal. At defaults to now.
func (d *DB) Record(ctx context.Context, e Event) error {
	if d == nil || d.Pool == nil {
		return nil
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	ok := 0
	if e.OK {
		ok = 1
	}
	_, err := d.Pool.ExecContext(ctx, `
INSERT INTO events(kind, task_id, translation_id, ok, detail, at)
VALUES(?,?,?,?,?,?);`,
		e.Kind, e.TaskID, e.TranslationID, ok, e.Detail, e.At.UTC().Format(atLayout))
	if err != nil {
		return fmt.Errorf("record %s event: %w", e.Kind, err)
	}
	return nil
}

// Recent returns the newest events first.
func (d *DB) Recent(ctx context.Context, limit int) ([]Event, error) {
	if d == nil || d.Pool == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := d.Pool.QueryContext(ctx, `
SELECT id, kind, task_id, translation_id, ok, detail, at
FROM events
ORDER BY at DESC, id DESC
LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var ok int
		var at string
		if err := rows.Scan(&e.ID, &e.Kind, &e.TaskID, &e.TranslationID, &ok, &e.Detail, &at); err != nil {
			return nil, err
		}
		e.OK = ok == 1
		e.At, _ = time.Parse(atLayout, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Cleanup drops events older than keep.
func (d *DB) Cleanup(ctx context.Context, keep time.Duration) (deleted int64, err error) {
	if d == nil || d.Pool == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-keep).UTC().Format(atLayout)
	res, err := d.Pool.ExecContext(ctx, `DELETE FROM events WHERE at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup old events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
