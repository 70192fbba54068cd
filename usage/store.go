package usage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists the usage ledger. Append-only: records gain a terminal
// status and completion timestamp but are never removed.
type Store interface {
	// Append creates a new record in StatusStarted.
	Append(ctx context.Context, userID, toolID uuid.UUID, input map[string]any) (*Record, error)

	// Update transitions a record's status. Permitted only for the
	// owning user and only while the record is non-terminal. Moving to
	// a terminal status stamps CompletedAt.
	Update(ctx context.Context, recordID, userID uuid.UUID, status Status, result map[string]any) (*Record, error)

	// Get returns a single record.
	Get(ctx context.Context, recordID uuid.UUID) (*Record, error)

	// CountSince returns the number of records for (user, tool) with
	// StartedAt >= since, regardless of status.
	CountSince(ctx context.Context, userID, toolID uuid.UUID, since time.Time) (int64, error)

	// StatsSince returns per-tool record counts for a user since the
	// given time.
	StatsSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]ToolStat, error)

	// ListByUser returns the user's records, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Record, error)
}

// Counter is the narrow read interface the entitlement evaluator needs.
type Counter interface {
	CountSince(ctx context.Context, userID, toolID uuid.UUID, since time.Time) (int64, error)
}
