package payments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/atlaspay/backend/internal/models"
)

// MemStore is an in-memory Store with the same upsert-merge semantics as the
// PostgreSQL repository. It backs tests and local development without a
// database; it is not meant for production use.
type MemStore struct {
	mu      sync.Mutex
	records map[string]*models.PaymentRecord
	now     func() time.Time
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]*models.PaymentRecord), now: time.Now}
}

// SetClock overrides the store clock, for tests that assert on timestamps.
func (m *MemStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// GetByOrderID returns a copy of the record, or nil when absent.
func (m *MemStore) GetByOrderID(_ context.Context, orderID string) (*models.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[orderID]; ok {
		c := *rec
		return &c, nil
	}
	return nil, nil
}

// GetByNumericID returns a copy of the record holding numericID, or nil.
func (m *MemStore) GetByNumericID(_ context.Context, numericID string) (*models.PaymentRecord, error) {
	if numericID == "" {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.NumericID == numericID {
			c := *rec
			return &c, nil
		}
	}
	return nil, nil
}

// UpsertStatus mirrors the SQL merge: create-if-absent, blank provider ids
// never clear stored ones, updated_at advances on every write.
func (m *MemStore) UpsertStatus(_ context.Context, orderID string, st models.PaymentStatus, ids models.ProviderIDs) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	rec, ok := m.records[orderID]
	if !ok {
		m.records[orderID] = &models.PaymentRecord{
			OrderID:      orderID,
			Status:       st,
			NumericID:    ids.NumericID,
			IdentifierID: ids.IdentifierID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return nil
	}
	rec.Status = st
	if ids.NumericID != "" {
		rec.NumericID = ids.NumericID
	}
	if ids.IdentifierID != "" {
		rec.IdentifierID = ids.IdentifierID
	}
	rec.UpdatedAt = now
	return nil
}

// FindPendingWithoutNumericID returns PENDING records lacking a numeric id,
// newest first.
func (m *MemStore) FindPendingWithoutNumericID(_ context.Context, limit int) ([]models.PaymentRecord, error) {
	if limit <= 0 {
		limit = DefaultPendingLimit
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []models.PaymentRecord
	for _, rec := range m.records {
		if rec.Status == models.StatusPending && rec.NumericID == "" {
			list = append(list, *rec)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// FindStalePending returns PENDING records created before cutoff, oldest first.
func (m *MemStore) FindStalePending(_ context.Context, cutoff time.Time, limit int) ([]models.PaymentRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []models.PaymentRecord
	for _, rec := range m.records {
		if rec.Status == models.StatusPending && rec.CreatedAt.Before(cutoff) {
			list = append(list, *rec)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// Len returns the number of stored records.
func (m *MemStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
