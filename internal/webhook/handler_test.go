package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlaspay/backend/internal/models"
	"github.com/atlaspay/backend/internal/payments"
	"github.com/atlaspay/backend/internal/pending"
)

const testSecret = "whsec_test"

func newTestServer(t *testing.T, secret string) (*gin.Engine, *payments.MemStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := payments.NewMemStore()
	index := pending.NewMemoryIndex(time.Minute, store, nil)
	reconciler := NewReconciler(store, index, nil, nil)
	handler := NewHandler(reconciler, secret, nil)

	router := gin.New()
	router.POST("/webhooks/payment", handler.Receive)
	return router, store
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(router *gin.Engine, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestReceiveValidSignatureProcessesEvent(t *testing.T) {
	router, store := newTestServer(t, testSecret)
	require.NoError(t, store.UpsertStatus(context.Background(), "ORD-1", models.StatusPending, models.ProviderIDs{NumericID: "9001"}))

	body := []byte(`{"meta":{"event_name":"order_created"},"data":{"id":"chk_abc","attributes":{"order_number":9001,"status":"paid"}}}`)
	w := postWebhook(router, body, map[string]string{"X-Signature": sign(body, testSecret)})

	assert.Equal(t, http.StatusOK, w.Code)
	var out Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.True(t, out.Received)
	assert.Equal(t, "ORD-1", out.OrderID)

	rec, _ := store.GetByOrderID(context.Background(), "ORD-1")
	assert.Equal(t, models.StatusPaid, rec.Status)
}

func TestReceiveRejectsBadSignature(t *testing.T) {
	router, _ := newTestServer(t, testSecret)
	body := []byte(`{"meta":{"event_name":"order_created"}}`)

	w := postWebhook(router, body, map[string]string{"X-Signature": sign(body, "wrong-secret")})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postWebhook(router, body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "missing signature is rejected")

	w = postWebhook(router, body, map[string]string{"X-Signature": "not-hex"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReceiveSkipsSignatureWhenUnconfigured(t *testing.T) {
	router, store := newTestServer(t, "")
	require.NoError(t, store.UpsertStatus(context.Background(), "ORD-1", models.StatusPending, models.ProviderIDs{NumericID: "9001"}))

	body := []byte(`{"meta":{"event_name":"order_created"},"data":{"attributes":{"order_number":9001,"status":"paid"}}}`)
	w := postWebhook(router, body, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReceiveUnresolvedStillReturns200(t *testing.T) {
	router, _ := newTestServer(t, testSecret)
	body := []byte(`{"meta":{"event_name":"order_created"},"data":{"attributes":{"order_number":404,"status":"paid"}}}`)

	w := postWebhook(router, body, map[string]string{"X-Signature": sign(body, testSecret)})
	assert.Equal(t, http.StatusOK, w.Code, "unresolvable webhooks are acknowledged to stop provider retries")

	var out Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.False(t, out.Received)
}

func TestReceiveIgnoredEventReturns200(t *testing.T) {
	router, _ := newTestServer(t, testSecret)
	body := []byte(`{"meta":{"event_name":"license_key_created"}}`)

	w := postWebhook(router, body, map[string]string{"X-Signature": sign(body, testSecret)})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReceiveEventNameFromHeader(t *testing.T) {
	router, store := newTestServer(t, testSecret)
	require.NoError(t, store.UpsertStatus(context.Background(), "ORD-1", models.StatusPending, models.ProviderIDs{NumericID: "9001"}))

	body := []byte(`{"data":{"attributes":{"order_number":9001,"status":"refunded"}}}`)
	w := postWebhook(router, body, map[string]string{
		"X-Signature":  sign(body, testSecret),
		"X-Event-Name": "order_refunded",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	rec, _ := store.GetByOrderID(context.Background(), "ORD-1")
	assert.Equal(t, models.StatusRefunded, rec.Status)
}

func TestReceiveMalformedBody(t *testing.T) {
	router, _ := newTestServer(t, testSecret)
	body := []byte(`{not json`)
	w := postWebhook(router, body, map[string]string{"X-Signature": sign(body, testSecret)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReceiveMissingEventName(t *testing.T) {
	router, _ := newTestServer(t, testSecret)
	body := []byte(`{"data":{"attributes":{"status":"paid"}}}`)
	w := postWebhook(router, body, map[string]string{"X-Signature": sign(body, testSecret)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
