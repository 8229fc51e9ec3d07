package models

import "time"

// ViolationType classifies a recorded rule breach.
type ViolationType string

const (
	ViolationMaxDrawdown   ViolationType = "max_dd"
	ViolationDailyDrawdown ViolationType = "daily_dd"
	ViolationLotLimit      ViolationType = "lot_limit"
)

// Violation is an append-only audit record of a rule breach. Never mutated;
// informational only beyond the status flip that accompanied it.
type Violation struct {
	ID        string
	AccountID string
	Type      ViolationType
	Details   string
	CreatedAt time.Time
}
