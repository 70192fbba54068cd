// Package usage is the append-only ledger of tool invocations. Records
// are never deleted; the entitlement evaluator derives monthly quota
// consumption from them. Every record counts toward the quota, failed
// invocations included.
package usage

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks the lifecycle of a single tool invocation.
type Status string

const (
	StatusStarted    Status = "started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusStarted, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the status ends the invocation lifecycle.
// Terminal records keep their quota slot; a failed run still consumed a use.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Record is one logged tool invocation. Only Status, ResultData and
// CompletedAt change after creation, and only while the record is not
// yet terminal.
type Record struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	ToolID      uuid.UUID
	Status      Status
	InputData   map[string]any
	ResultData  map[string]any
	StartedAt   time.Time
	CompletedAt *time.Time
}

// ToolStat is a per-tool aggregate over a time window.
type ToolStat struct {
	ToolID uuid.UUID
	Count  int64
}

// MonthStart returns the first instant of the calendar month containing now.
// The quota window is calendar-month aligned, not billing-cycle aligned.
func MonthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}
