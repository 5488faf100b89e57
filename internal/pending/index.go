// Package pending tracks provisional orders between checkout creation and the
// first confirming webhook. Entries are best-effort, lossy state: they never
// survive a restart and must not be treated as a source of truth.
package pending

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atlaspay/backend/internal/models"
	"github.com/atlaspay/backend/internal/payments"
)

// Index is the pending-order contract consumed by checkout and the webhook
// reconciler. Keys are the internal order id.
type Index interface {
	// Put registers a provisional order and arms its TTL. Reusing a key
	// restarts the clock.
	Put(ctx context.Context, key, orderID string, timeSlots json.RawMessage) error

	// Get returns the entry if present and not expired.
	Get(ctx context.Context, key string) (*models.PendingOrder, error)

	// Resolve consumes the entry: returns it if present and removes it,
	// cancelling the pending timeout. Nil when absent or already expired.
	Resolve(ctx context.Context, key string) (*models.PendingOrder, error)
}

type memEntry struct {
	order models.PendingOrder
	timer *time.Timer
}

// MemoryIndex is the single-instance Index: a synchronized map with one
// time.AfterFunc timer per entry. On expiry the associated order is demoted to
// TIMEOUT in the payment store if no webhook resolved it first.
type MemoryIndex struct {
	mu      sync.Mutex
	entries map[string]*memEntry

	ttl          time.Duration
	writeTimeout time.Duration
	store        payments.Store
	logger       *zap.Logger
}

var _ Index = (*MemoryIndex)(nil)

// NewMemoryIndex creates an in-process pending index with the given TTL.
func NewMemoryIndex(ttl time.Duration, store payments.Store, logger *zap.Logger) *MemoryIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &MemoryIndex{
		entries:      make(map[string]*memEntry),
		ttl:          ttl,
		writeTimeout: 5 * time.Second,
		store:        store,
		logger:       logger,
	}
}

// Put registers a provisional order under key and arms the expiry timer.
func (idx *MemoryIndex) Put(_ context.Context, key, orderID string, timeSlots json.RawMessage) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if old, ok := idx.entries[key]; ok {
		old.timer.Stop()
	}
	idx.entries[key] = &memEntry{
		order: models.PendingOrder{OrderID: orderID, TimeSlots: timeSlots, CreatedAt: time.Now()},
		timer: time.AfterFunc(idx.ttl, func() { idx.expire(key, orderID) }),
	}
	return nil
}

// Get returns the entry for key without consuming it.
func (idx *MemoryIndex) Get(_ context.Context, key string) (*models.PendingOrder, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if e, ok := idx.entries[key]; ok {
		c := e.order
		return &c, nil
	}
	return nil, nil
}

// Resolve consumes the entry for key and cancels its timeout.
func (idx *MemoryIndex) Resolve(_ context.Context, key string) (*models.PendingOrder, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e, ok := idx.entries[key]
	if !ok {
		return nil, nil
	}
	e.timer.Stop()
	delete(idx.entries, key)
	c := e.order
	return &c, nil
}

// Len returns the number of live entries.
func (idx *MemoryIndex) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.entries)
}

// expire runs when an entry's TTL elapses without a resolving webhook. If the
// stored status is still unresolved, the order is demoted to TIMEOUT. The
// entry is evicted whatever the store says: a transient store failure must not
// pin memory or trigger unbounded retries. A webhook racing this timer wins or
// loses at the store row by updated_at.
func (idx *MemoryIndex) expire(key, orderID string) {
	idx.mu.Lock()
	e, ok := idx.entries[key]
	if ok {
		delete(idx.entries, key)
	}
	idx.mu.Unlock()
	if !ok || e.order.OrderID != orderID {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), idx.writeTimeout)
	defer cancel()

	rec, err := idx.store.GetByOrderID(ctx, orderID)
	if err != nil {
		idx.logger.Warn("pending expiry: status lookup failed, entry evicted",
			zap.String("order_id", orderID), zap.Error(err))
		return
	}
	if rec != nil && rec.Status.Resolved() {
		return
	}
	if err := idx.store.UpsertStatus(ctx, orderID, models.StatusTimeout, models.ProviderIDs{}); err != nil {
		idx.logger.Warn("pending expiry: timeout write failed, entry evicted",
			zap.String("order_id", orderID),
			zap.String("status", string(models.StatusTimeout)),
			zap.Error(err))
		return
	}
	idx.logger.Info("pending order timed out", zap.String("order_id", orderID))
}
