package webhook

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlaspay/backend/internal/models"
	"github.com/atlaspay/backend/internal/payments"
	"github.com/atlaspay/backend/internal/pending"
	"github.com/atlaspay/backend/pkg/queue"
)

// fakeArchiver records enqueued archive payloads.
type fakeArchiver struct {
	payloads []queue.WebhookArchivePayload
}

func (f *fakeArchiver) EnqueueWebhookArchive(_ context.Context, p queue.WebhookArchivePayload) error {
	f.payloads = append(f.payloads, p)
	return nil
}

func newTestReconciler(t *testing.T) (*Reconciler, *payments.MemStore, *pending.MemoryIndex, *fakeArchiver) {
	t.Helper()
	store := payments.NewMemStore()
	index := pending.NewMemoryIndex(time.Minute, store, nil)
	archiver := &fakeArchiver{}
	return NewReconciler(store, index, archiver, nil), store, index, archiver
}

func orderEvent(name, numericID, customOrderID, rawStatus string) *Event {
	return &Event{
		Name:          name,
		NumericID:     numericID,
		IdentifierID:  "chk_abc",
		CustomOrderID: customOrderID,
		RawStatus:     rawStatus,
		Raw:           json.RawMessage(`{}`),
	}
}

func TestProcessResolvesByNumericID(t *testing.T) {
	ctx := context.Background()
	r, store, _, _ := newTestReconciler(t)
	require.NoError(t, store.UpsertStatus(ctx, "ORD-1", models.StatusPending, models.ProviderIDs{NumericID: "9001"}))

	out := r.Process(ctx, orderEvent("order_created", "9001", "", "paid"))
	assert.True(t, out.Received)
	assert.Equal(t, "ORD-1", out.OrderID)
	assert.Equal(t, models.StatusPaid, out.Status)

	rec, _ := store.GetByOrderID(ctx, "ORD-1")
	assert.Equal(t, models.StatusPaid, rec.Status)
}

func TestProcessResolvesViaPendingIndex(t *testing.T) {
	ctx := context.Background()
	r, store, index, _ := newTestReconciler(t)
	require.NoError(t, store.UpsertStatus(ctx, "ORD-1", models.StatusPending, models.ProviderIDs{}))
	require.NoError(t, index.Put(ctx, "ORD-1", "ORD-1", nil))

	// Webhook carries a numeric id we have never seen, plus the custom order id.
	out := r.Process(ctx, orderEvent("order_created", "9001", "ORD-1", "paid"))
	assert.True(t, out.Received)
	assert.Equal(t, "ORD-1", out.OrderID)

	rec, _ := store.GetByOrderID(ctx, "ORD-1")
	assert.Equal(t, models.StatusPaid, rec.Status)
	assert.Equal(t, "9001", rec.NumericID, "numeric id learned from webhook")
	assert.Equal(t, "chk_abc", rec.IdentifierID)
	assert.Equal(t, 0, index.Len(), "resolving webhook consumes the pending entry")
}

func TestProcessResolvesByStoredOrderIDWhenIndexEntryGone(t *testing.T) {
	ctx := context.Background()
	r, store, _, _ := newTestReconciler(t)
	require.NoError(t, store.UpsertStatus(ctx, "ORD-1", models.StatusTimeout, models.ProviderIDs{}))

	// Late webhook after a local timeout: provider truth overwrites TIMEOUT.
	out := r.Process(ctx, orderEvent("order_created", "", "ORD-1", "paid"))
	assert.True(t, out.Received)
	assert.Equal(t, "ORD-1", out.OrderID)

	rec, _ := store.GetByOrderID(ctx, "ORD-1")
	assert.Equal(t, models.StatusPaid, rec.Status)
}

func TestProcessFallsBackToNewestPending(t *testing.T) {
	ctx := context.Background()
	r, store, _, _ := newTestReconciler(t)
	old := time.Now().Add(-time.Hour)
	store.SetClock(func() time.Time { return old })
	require.NoError(t, store.UpsertStatus(ctx, "ORD-OLD", models.StatusPending, models.ProviderIDs{}))
	store.SetClock(time.Now)
	require.NoError(t, store.UpsertStatus(ctx, "ORD-NEW", models.StatusPending, models.ProviderIDs{}))

	// No numeric match, no custom data, no index entry.
	out := r.Process(ctx, orderEvent("order_created", "9001", "", "paid"))
	assert.True(t, out.Received)
	assert.Equal(t, "ORD-NEW", out.OrderID, "most recently created pending order wins")
}

func TestProcessUnresolvedIsAcknowledgedAndArchived(t *testing.T) {
	ctx := context.Background()
	r, _, _, archiver := newTestReconciler(t)

	out := r.Process(ctx, orderEvent("order_created", "9001", "", "paid"))
	assert.False(t, out.Received)
	assert.Empty(t, out.OrderID)
	require.Len(t, archiver.payloads, 1)
	assert.Equal(t, "unresolved_correlation", archiver.payloads[0].Reason)
	assert.Equal(t, "9001", archiver.payloads[0].NumericID)
}

func TestProcessDuplicateDeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r, store, index, _ := newTestReconciler(t)
	require.NoError(t, store.UpsertStatus(ctx, "ORD-1", models.StatusPending, models.ProviderIDs{}))
	require.NoError(t, index.Put(ctx, "ORD-1", "ORD-1", nil))

	evt := orderEvent("order_created", "9001", "ORD-1", "paid")
	out1 := r.Process(ctx, evt)
	out2 := r.Process(ctx, evt) // provider redelivery

	assert.Equal(t, out1.OrderID, out2.OrderID)
	assert.Equal(t, models.StatusPaid, out2.Status)
	rec, _ := store.GetByOrderID(ctx, "ORD-1")
	assert.Equal(t, models.StatusPaid, rec.Status)
	assert.Equal(t, 1, store.Len())
}

func TestProcessUnknownStatusBecomesPending(t *testing.T) {
	ctx := context.Background()
	r, store, _, _ := newTestReconciler(t)
	require.NoError(t, store.UpsertStatus(ctx, "ORD-1", models.StatusPending, models.ProviderIDs{NumericID: "9001"}))

	out := r.Process(ctx, orderEvent("order_created", "9001", "", "disputed"))
	assert.True(t, out.Received)
	assert.Equal(t, models.StatusPending, out.Status)

	rec, _ := store.GetByOrderID(ctx, "ORD-1")
	assert.Equal(t, models.StatusPending, rec.Status)
}

func TestProcessIgnoresNonStatusEvents(t *testing.T) {
	ctx := context.Background()
	r, store, _, archiver := newTestReconciler(t)

	out := r.Process(ctx, orderEvent("license_key_created", "9001", "", "paid"))
	assert.True(t, out.Received, "ignored events are still acknowledged")
	assert.Empty(t, out.OrderID)
	assert.Equal(t, 0, store.Len())
	assert.Empty(t, archiver.payloads)
}

func TestProcessRefundAndCancellation(t *testing.T) {
	ctx := context.Background()
	r, store, _, _ := newTestReconciler(t)
	require.NoError(t, store.UpsertStatus(ctx, "ORD-1", models.StatusPaid, models.ProviderIDs{NumericID: "9001"}))

	out := r.Process(ctx, orderEvent("order_refunded", "9001", "", "refunded"))
	assert.Equal(t, models.StatusRefunded, out.Status)

	out = r.Process(ctx, orderEvent("subscription_cancelled", "9001", "", "cancelled"))
	assert.Equal(t, models.StatusVoid, out.Status)
}
