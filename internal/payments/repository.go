package payments

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlaspay/backend/internal/models"
)

// Repository is the PostgreSQL-backed Store over the payments_status table.
type Repository struct {
	pool *pgxpool.Pool
}

var _ Store = (*Repository)(nil)

// NewRepository creates a payments repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordColumns = `order_id, status, COALESCE(numeric_id, ''), COALESCE(identifier_id, ''), created_at, updated_at`

func scanRecord(row pgx.Row) (*models.PaymentRecord, error) {
	var rec models.PaymentRecord
	err := row.Scan(&rec.OrderID, &rec.Status, &rec.NumericID, &rec.IdentifierID, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetByOrderID returns the record for the internal order id, or nil when absent.
func (r *Repository) GetByOrderID(ctx context.Context, orderID string) (*models.PaymentRecord, error) {
	const q = `SELECT ` + recordColumns + ` FROM payments_status WHERE order_id = $1`
	return scanRecord(r.pool.QueryRow(ctx, q, orderID))
}

// GetByNumericID returns the record for the provider numeric id, or nil when absent.
func (r *Repository) GetByNumericID(ctx context.Context, numericID string) (*models.PaymentRecord, error) {
	if numericID == "" {
		return nil, nil
	}
	const q = `SELECT ` + recordColumns + ` FROM payments_status WHERE numeric_id = $1`
	return scanRecord(r.pool.QueryRow(ctx, q, numericID))
}

// UpsertStatus inserts or updates the row for orderID. Provider ids are merged
// with COALESCE so a blank field in a later write never clears an id learned
// earlier. updated_at advances on every write, which makes concurrent writes
// for the same order id resolve last-write-wins.
func (r *Repository) UpsertStatus(ctx context.Context, orderID string, st models.PaymentStatus, ids models.ProviderIDs) error {
	const q = `INSERT INTO payments_status (order_id, status, numeric_id, identifier_id)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (order_id) DO UPDATE SET
			status        = EXCLUDED.status,
			numeric_id    = COALESCE(EXCLUDED.numeric_id, payments_status.numeric_id),
			identifier_id = COALESCE(EXCLUDED.identifier_id, payments_status.identifier_id),
			updated_at    = NOW()`
	_, err := r.pool.Exec(ctx, q, orderID, st, ids.NumericID, ids.IdentifierID)
	return err
}

// FindPendingWithoutNumericID returns PENDING records lacking a numeric id,
// newest first, bounded by limit.
func (r *Repository) FindPendingWithoutNumericID(ctx context.Context, limit int) ([]models.PaymentRecord, error) {
	if limit <= 0 {
		limit = DefaultPendingLimit
	}
	const q = `SELECT ` + recordColumns + ` FROM payments_status
		WHERE status = $1 AND numeric_id IS NULL
		ORDER BY created_at DESC LIMIT $2`
	return r.queryRecords(ctx, q, models.StatusPending, limit)
}

// FindStalePending returns PENDING records created before cutoff, oldest first.
func (r *Repository) FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + recordColumns + ` FROM payments_status
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC LIMIT $3`
	return r.queryRecords(ctx, q, models.StatusPending, cutoff, limit)
}

func (r *Repository) queryRecords(ctx context.Context, q string, args ...any) ([]models.PaymentRecord, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.PaymentRecord
	for rows.Next() {
		var rec models.PaymentRecord
		if err := rows.Scan(&rec.OrderID, &rec.Status, &rec.NumericID, &rec.IdentifierID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}
