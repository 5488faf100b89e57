// Package payments owns the persisted payment-status table and its HTTP surface.
package payments

import (
	"context"
	"time"

	"github.com/atlaspay/backend/internal/models"
)

// DefaultPendingLimit bounds the fallback search space when correlating a
// webhook that carries no usable identifier.
const DefaultPendingLimit = 5

// Store is the persistence contract the reconciler and checkout paths consume.
// Lookups return (nil, nil) when no record exists; errors are reserved for
// infrastructure failure. All writes are idempotent upserts; at-least-once
// webhook delivery means every call may be repeated verbatim.
type Store interface {
	// GetByOrderID returns the record for the internal order id, or nil.
	GetByOrderID(ctx context.Context, orderID string) (*models.PaymentRecord, error)

	// GetByNumericID returns the record carrying the provider's numeric order
	// identifier, or nil.
	GetByNumericID(ctx context.Context, numericID string) (*models.PaymentRecord, error)

	// UpsertStatus creates the row if absent, else updates status and
	// updated_at. Provider ids are merged: a blank field never clears a
	// previously stored value. Last write wins on concurrent calls for the
	// same order id.
	UpsertStatus(ctx context.Context, orderID string, st models.PaymentStatus, ids models.ProviderIDs) error

	// FindPendingWithoutNumericID returns PENDING records that have no
	// provider numeric id yet, most recently created first, at most limit.
	FindPendingWithoutNumericID(ctx context.Context, limit int) ([]models.PaymentRecord, error)

	// FindStalePending returns PENDING records created before cutoff, oldest
	// first, at most limit. Used by the timeout sweeper.
	FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentRecord, error)
}
