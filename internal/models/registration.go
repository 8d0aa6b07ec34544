package models

import "time"

// RegistrationStatus represents the lifecycle of a registration.
type RegistrationStatus string

// Possible registration statuses. Tests start as applied, courses as
// enrolled; both share the completed/cancelled terminal states.
const (
	RegistrationStatusApplied   RegistrationStatus = "applied"
	RegistrationStatusEnrolled  RegistrationStatus = "enrolled"
	RegistrationStatusCompleted RegistrationStatus = "completed"
	RegistrationStatusCancelled RegistrationStatus = "cancelled"
)

// Registration records that a user has claimed a catalog item. At most one
// row may ever exist per (user, item) pair; the table enforces uniqueness.
type Registration struct {
	ID           string             `db:"id" json:"id"`
	UserID       string             `db:"user_id" json:"user_id"`
	ItemID       string             `db:"item_id" json:"item_id"`
	Status       RegistrationStatus `db:"status" json:"status"`
	RegisteredAt time.Time          `db:"registered_at" json:"registered_at"`
	CompletedAt  *time.Time         `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt  *time.Time         `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// ItemCount pairs an item ID with its exact registration count from the
// authoritative ledger.
type ItemCount struct {
	ItemID string `db:"item_id"`
	Count  int    `db:"count"`
}
