package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlaspay/backend/internal/models"
	"github.com/atlaspay/backend/internal/payments"
	"github.com/atlaspay/backend/internal/pending"
	"github.com/atlaspay/backend/internal/provider"
	"github.com/atlaspay/backend/internal/webhook"
)

// fakeProvider captures the checkout request and returns a canned response.
type fakeProvider struct {
	lastReq provider.CheckoutRequest
	resp    *provider.Checkout
	err     error
}

func (f *fakeProvider) CreateCheckout(_ context.Context, req provider.CheckoutRequest) (*provider.Checkout, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

// brokenStore accepts reads but fails writes.
type brokenStore struct {
	payments.Store
}

func (b *brokenStore) UpsertStatus(context.Context, string, models.PaymentStatus, models.ProviderIDs) error {
	return errors.New("store down")
}

func TestCreateRegistersPendingOrder(t *testing.T) {
	ctx := context.Background()
	store := payments.NewMemStore()
	index := pending.NewMemoryIndex(time.Minute, store, nil)
	p := &fakeProvider{resp: &provider.Checkout{URL: "https://pay.example/c/abc", IdentifierID: "chk_abc"}}
	initiator := NewInitiator(p, store, index, nil)

	result, err := initiator.Create(ctx, "variant-1", map[string]string{"seat": "A1"}, []byte(`["slot-1"]`))
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/c/abc", result.CheckoutURL)
	require.NotEmpty(t, result.OrderID)

	// The internal order id is threaded to the provider as custom data.
	assert.Equal(t, result.OrderID, p.lastReq.CustomData[webhook.CustomDataOrderKey])
	assert.Equal(t, "A1", p.lastReq.CustomData["seat"])

	entry, err := index.Get(ctx, result.OrderID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, result.OrderID, entry.OrderID)

	rec, err := store.GetByOrderID(ctx, result.OrderID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.StatusPending, rec.Status)
	assert.Equal(t, "chk_abc", rec.IdentifierID)
}

func TestCreateProviderFailureFails(t *testing.T) {
	ctx := context.Background()
	store := payments.NewMemStore()
	index := pending.NewMemoryIndex(time.Minute, store, nil)
	p := &fakeProvider{err: errors.New("provider unreachable")}
	initiator := NewInitiator(p, store, index, nil)

	_, err := initiator.Create(ctx, "variant-1", nil, nil)
	require.Error(t, err)
	assert.Equal(t, 0, store.Len())
}

func TestCreateStoreFailureStillReturnsURL(t *testing.T) {
	ctx := context.Background()
	memStore := payments.NewMemStore()
	index := pending.NewMemoryIndex(time.Minute, memStore, nil)
	p := &fakeProvider{resp: &provider.Checkout{URL: "https://pay.example/c/abc", IdentifierID: "chk_abc"}}
	initiator := NewInitiator(p, &brokenStore{Store: memStore}, index, nil)

	result, err := initiator.Create(ctx, "variant-1", nil, nil)
	require.NoError(t, err, "availability of the purchase flow beats immediate persistence")
	assert.NotEmpty(t, result.CheckoutURL)

	// The pending entry survives so the order can still settle or time out.
	entry, err := index.Get(ctx, result.OrderID)
	require.NoError(t, err)
	assert.NotNil(t, entry)
}

func TestCreateDoesNotMutateCallerCustomData(t *testing.T) {
	ctx := context.Background()
	store := payments.NewMemStore()
	index := pending.NewMemoryIndex(time.Minute, store, nil)
	p := &fakeProvider{resp: &provider.Checkout{URL: "https://pay.example/c/abc"}}
	initiator := NewInitiator(p, store, index, nil)

	custom := map[string]string{"seat": "A1"}
	_, err := initiator.Create(ctx, "variant-1", custom, nil)
	require.NoError(t, err)
	_, leaked := custom[webhook.CustomDataOrderKey]
	assert.False(t, leaked)
}
