// Package ledger keeps the durable record of armed reminder timers, keyed by
// "{goalId}_{kind}".
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/notexe/goal-reminders/internal/reminder"
)

// ErrStorage marks failures of the underlying database.
var ErrStorage = errors.New("ledger storage failure")

// Ledger provides SQLite-backed storage for scheduled reminders.
type Ledger struct {
	db *sql.DB
	mu sync.Mutex // serializes writers
}

// New returns a Ledger bound to a migrated database handle.
func New(db *sql.DB) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("ledger: db is nil")
	}
	return &Ledger{db: db}, nil
}

const selectColumns = `SELECT record_id, goal_id, kind, fire_time, timer_id, goal_title, goal_emoji, created_at
	FROM scheduled_reminders`

// Upsert replaces the record with the same record id or inserts a new one.
// The record id is always derived from the goal id and kind. Times are stored
// as instants and read back in UTC.
func (l *Ledger) Upsert(ctx context.Context, rec reminder.Record) error {
	if rec.GoalID == "" {
		return fmt.Errorf("upsert reminder: goal id is empty")
	}
	if !rec.Kind.Valid() {
		return fmt.Errorf("upsert reminder: invalid kind %q", rec.Kind)
	}
	rec.RecordID = reminder.RecordID(rec.GoalID, rec.Kind)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO scheduled_reminders (record_id, goal_id, kind, fire_time, timer_id, goal_title, goal_emoji, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(record_id) DO UPDATE SET
			fire_time  = excluded.fire_time,
			timer_id   = excluded.timer_id,
			goal_title = excluded.goal_title,
			goal_emoji = excluded.goal_emoji,
			created_at = excluded.created_at
	`, rec.RecordID, rec.GoalID, string(rec.Kind), rec.FireTime.UnixNano(), rec.TimerID,
		rec.GoalTitle, rec.GoalEmoji, rec.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("%w: upsert reminder %s: %w", ErrStorage, rec.RecordID, err)
	}
	return nil
}

// ListByGoal returns all records for goalID ordered by fire time.
func (l *Ledger) ListByGoal(ctx context.Context, goalID string) ([]reminder.Record, error) {
	rows, err := l.db.QueryContext(ctx, selectColumns+` WHERE goal_id = ? ORDER BY fire_time ASC`, goalID)
	if err != nil {
		return nil, fmt.Errorf("%w: list reminders for %s: %w", ErrStorage, goalID, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// List returns every record ordered by fire time.
func (l *Ledger) List(ctx context.Context) ([]reminder.Record, error) {
	rows, err := l.db.QueryContext(ctx, selectColumns+` ORDER BY fire_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list reminders: %w", ErrStorage, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// RemoveByGoal deletes every record of goalID in a single statement and
// reports how many were removed.
func (l *Ledger) RemoveByGoal(ctx context.Context, goalID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	result, err := l.db.ExecContext(ctx, `DELETE FROM scheduled_reminders WHERE goal_id = ?`, goalID)
	if err != nil {
		return 0, fmt.Errorf("%w: remove reminders for %s: %w", ErrStorage, goalID, err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// Remove deletes a single record. Missing records are not an error.
func (l *Ledger) Remove(ctx context.Context, recordID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.db.ExecContext(ctx, `DELETE FROM scheduled_reminders WHERE record_id = ?`, recordID); err != nil {
		return fmt.Errorf("%w: remove reminder %s: %w", ErrStorage, recordID, err)
	}
	return nil
}

// RemoveExpired deletes records whose fire time is at or before now. It does
// not touch platform timers.
func (l *Ledger) RemoveExpired(ctx context.Context, now time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	result, err := l.db.ExecContext(ctx, `DELETE FROM scheduled_reminders WHERE fire_time <= ?`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("%w: remove expired reminders: %w", ErrStorage, err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func scanRecords(rows *sql.Rows) ([]reminder.Record, error) {
	var records []reminder.Record
	for rows.Next() {
		var r reminder.Record
		var kind string
		var fireTime, createdAt int64

		if err := rows.Scan(&r.RecordID, &r.GoalID, &kind, &fireTime, &r.TimerID,
			&r.GoalTitle, &r.GoalEmoji, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scan reminder: %w", ErrStorage, err)
		}

		r.Kind = reminder.Kind(kind)
		r.FireTime = time.Unix(0, fireTime).UTC()
		r.CreatedAt = time.Unix(0, createdAt).UTC()

		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate reminders: %w", ErrStorage, err)
	}
	return records, nil
}
