// Package status normalizes provider status strings into the internal enum.
package status

import (
	"strings"

	"github.com/atlaspay/backend/internal/models"
)

// Map converts a raw provider status string to an internal PaymentStatus.
// It is total: unrecognized input (including empty string) maps to PENDING.
// An unknown value must never invent PAID or VOID, so PENDING is the only
// safe default when the provider's vocabulary drifts.
func Map(raw string) models.PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "paid", "completed", "success":
		return models.StatusPaid
	case "refunded":
		return models.StatusRefunded
	case "void", "cancelled", "canceled":
		return models.StatusVoid
	case "pending":
		return models.StatusPending
	default:
		return models.StatusPending
	}
}

// Known reports whether the raw string is part of the recognized provider
// vocabulary. Callers use this to log unknown values without changing the
// mapping result.
func Known(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "paid", "completed", "success", "refunded", "void", "cancelled", "canceled", "pending":
		return true
	}
	return false
}
