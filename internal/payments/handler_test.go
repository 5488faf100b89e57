package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlaspay/backend/internal/models"
	"github.com/atlaspay/backend/internal/provider"
)

type fakeFetcher struct {
	order *provider.Order
	err   error
	calls int
}

func (f *fakeFetcher) GetOrder(context.Context, string) (*provider.Order, error) {
	f.calls++
	return f.order, f.err
}

type fakeGate struct {
	allow bool
}

func (g *fakeGate) Allow(context.Context, string) bool { return g.allow }

func newStatusRouter(t *testing.T, store Store, fetcher OrderFetcher, gate Gate) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewHandler(store, fetcher, gate, nil)
	router := gin.New()
	router.GET("/payment-status", h.GetStatus)
	router.GET("/verify", h.Verify)
	return router
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetStatusReturnsRecord(t *testing.T) {
	store := NewMemStore()
	require.NoError(t, store.UpsertStatus(context.Background(), "ORD-1", models.StatusPaid, models.ProviderIDs{}))
	router := newStatusRouter(t, store, &fakeFetcher{}, &fakeGate{allow: true})

	w := get(router, "/payment-status?orderId=ORD-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"PAID"`)
}

func TestGetStatusNotFound(t *testing.T) {
	router := newStatusRouter(t, NewMemStore(), &fakeFetcher{}, &fakeGate{allow: true})

	w := get(router, "/payment-status?orderId=ORD-404")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "STATUS_NOT_FOUND")
}

func TestGetStatusMissingParam(t *testing.T) {
	router := newStatusRouter(t, NewMemStore(), &fakeFetcher{}, &fakeGate{allow: true})
	w := get(router, "/payment-status")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyRequeriesProviderAndUpserts(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	require.NoError(t, store.UpsertStatus(ctx, "ORD-1", models.StatusPending, models.ProviderIDs{NumericID: "9001"}))
	fetcher := &fakeFetcher{order: &provider.Order{NumericID: "9001", IdentifierID: "ident_xyz", Status: "paid"}}
	router := newStatusRouter(t, store, fetcher, &fakeGate{allow: true})

	w := get(router, "/verify?orderId=ORD-1")
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Verified bool                 `json:"verified"`
		Status   models.PaymentStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Verified)
	assert.Equal(t, models.StatusPaid, body.Status)

	rec, _ := store.GetByOrderID(ctx, "ORD-1")
	assert.Equal(t, models.StatusPaid, rec.Status)
	assert.Equal(t, "ident_xyz", rec.IdentifierID)
}

func TestVerifyGatedReturnsStoredStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	require.NoError(t, store.UpsertStatus(ctx, "ORD-1", models.StatusPending, models.ProviderIDs{NumericID: "9001"}))
	fetcher := &fakeFetcher{order: &provider.Order{Status: "paid"}}
	router := newStatusRouter(t, store, fetcher, &fakeGate{allow: false})

	w := get(router, "/verify?orderId=ORD-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cached":true`)
	assert.Equal(t, 0, fetcher.calls, "gated verify must not hit the provider")
}

func TestVerifyWithoutNumericIDSkipsProvider(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	require.NoError(t, store.UpsertStatus(ctx, "ORD-1", models.StatusPending, models.ProviderIDs{}))
	fetcher := &fakeFetcher{}
	router := newStatusRouter(t, store, fetcher, &fakeGate{allow: true})

	w := get(router, "/verify?orderId=ORD-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, fetcher.calls)
}

func TestVerifyProviderFailureFallsBackToStored(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	require.NoError(t, store.UpsertStatus(ctx, "ORD-1", models.StatusPending, models.ProviderIDs{NumericID: "9001"}))
	fetcher := &fakeFetcher{err: errors.New("provider down")}
	router := newStatusRouter(t, store, fetcher, &fakeGate{allow: true})

	w := get(router, "/verify?orderId=ORD-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"verified":false`)

	rec, _ := store.GetByOrderID(ctx, "ORD-1")
	assert.Equal(t, models.StatusPending, rec.Status, "failed verify must not change stored status")
}

func TestVerifyUnknownOrder(t *testing.T) {
	router := newStatusRouter(t, NewMemStore(), &fakeFetcher{}, &fakeGate{allow: true})
	w := get(router, "/verify?orderId=ORD-404")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
