package history

import (
	"context"
	"time"

	"github.com/nerrad567/rpigarage/internal/door"
	"github.com/nerrad567/rpigarage/internal/reconcile"
)

// Query limits for Recent.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Entry is one journal row.
type Entry struct {
	// ID is the auto-incremented primary key.
	ID int64 `json:"id"`

	Kind             reconcile.EventKind `json:"kind"`
	Time             time.Time           `json:"time"`
	Reported         door.ReportedStatus `json:"reported,omitempty"`
	Desired          door.DesiredCommand `json:"desired,omitempty"`
	CorrelationToken string              `json:"correlationToken,omitempty"`
	Error            string              `json:"error,omitempty"`
}

// Repository stores and retrieves door events.
//
// Implementations must be safe for concurrent use.
type Repository interface {
	// Record appends ev to the journal.
	Record(ctx context.Context, ev reconcile.Event) error

	// Recent returns up to limit entries, newest first. A limit outside
	// 1..MaxLimit is clamped; zero or less means DefaultLimit.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Prune deletes entries older than olderThan and returns how many went.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
