package models

import (
	"encoding/json"
	"time"
)

// PaymentStatus is the internal status vocabulary. It is a closed enum:
// provider-side status strings are normalized into it at the boundary
// (internal/status) and never leak through raw.
type PaymentStatus string

const (
	StatusPending  PaymentStatus = "PENDING"
	StatusPaid     PaymentStatus = "PAID"
	StatusVoid     PaymentStatus = "VOID"
	StatusRefunded PaymentStatus = "REFUNDED"
	StatusTimeout  PaymentStatus = "TIMEOUT"
)

// Resolved reports whether the provider has confirmed a terminal outcome.
// TIMEOUT is deliberately excluded: it is a local liveness fallback, not a
// provider decision, and a late webhook may still overwrite it.
func (s PaymentStatus) Resolved() bool {
	return s == StatusPaid || s == StatusVoid || s == StatusRefunded
}

// PaymentRecord is one row of payments_status, keyed by the internal order id
// chosen at checkout time. NumericID and IdentifierID are provider-assigned
// secondary keys, populated once known; empty string means not yet known.
type PaymentRecord struct {
	OrderID      string        `json:"order_id"`
	Status       PaymentStatus `json:"status"`
	NumericID    string        `json:"numeric_id,omitempty"`
	IdentifierID string        `json:"identifier_id,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// ProviderIDs carries optional provider-assigned identifiers into an upsert.
// Empty fields are ignored by the store; a previously stored id is never
// overwritten with blank.
type ProviderIDs struct {
	NumericID    string
	IdentifierID string
}

// PendingOrder is a provisional entry in the pending-order index. It lives in
// process memory (or Redis) only and does not survive a restart.
type PendingOrder struct {
	OrderID   string          `json:"order_id"`
	TimeSlots json.RawMessage `json:"time_slots,omitempty"` // opaque booking context, passed through untouched
	CreatedAt time.Time       `json:"created_at"`
}
