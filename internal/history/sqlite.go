package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/rpigarage/internal/door"
	"github.com/nerrad567/rpigarage/internal/reconcile"
)

// SQLiteRepository implements Repository on the door_events table.
// Timestamps are stored as unix milliseconds.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts ev. A zero event time is replaced with now.
func (r *SQLiteRepository) Record(ctx context.Context, ev reconcile.Event) error {
	if ev.Kind == "" {
		return fmt.Errorf("event kind is required")
	}
	at := ev.Time
	if at.IsZero() {
		at = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO door_events (kind, occurred_at, reported, desired, correlation_token, error)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(ev.Kind),
		at.UnixMilli(),
		string(ev.Reported),
		string(ev.Desired),
		ev.CorrelationToken,
		ev.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting door event: %w", err)
	}
	return nil
}

// Recent returns the newest entries first. Rows written in the same
// millisecond keep insertion order through the id tiebreak.
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, occurred_at, reported, desired, correlation_token, error
		 FROM door_events
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying door events: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e                       Entry
			kind, reported, desired string
			occurredAt              int64
		)
		if err := rows.Scan(&e.ID, &kind, &occurredAt, &reported, &desired, &e.CorrelationToken, &e.Error); err != nil {
			return nil, fmt.Errorf("scanning door event: %w", err)
		}
		e.Kind = reconcile.EventKind(kind)
		e.Time = time.UnixMilli(occurredAt).UTC()
		e.Reported = door.ReportedStatus(reported)
		e.Desired = door.DesiredCommand(desired)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating door events: %w", err)
	}

	return entries, nil
}

// Prune deletes entries older than now-olderThan.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().Add(-olderThan).UnixMilli()
	result, err := r.db.ExecContext(ctx, "DELETE FROM door_events WHERE occurred_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting door events: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
