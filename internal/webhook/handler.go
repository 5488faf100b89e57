package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/atlaspay/backend/pkg/response"
)

const (
	// maxBodyBytes caps webhook bodies; provider payloads are a few KB.
	maxBodyBytes = 1 << 20

	// processBudget bounds the whole reconciliation path per delivery.
	processBudget = 10 * time.Second

	headerSignature = "X-Signature"
	headerEventName = "X-Event-Name"
)

// Handler terminates the provider webhook endpoint: signature check, parse,
// event filter, then hand-off to the reconciler.
type Handler struct {
	reconciler *Reconciler
	secret     []byte // empty disables signature verification
	logger     *zap.Logger
}

// NewHandler creates a webhook handler. secret is the provider's shared HMAC
// secret; when empty, signature verification is skipped (local/dev only).
func NewHandler(reconciler *Reconciler, secret string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{reconciler: reconciler, secret: []byte(secret), logger: logger}
}

// Receive handles POST /webhooks/payment. Handled and ignored events both get
// a 2xx; anything else triggers provider-side redelivery, which only helps
// for signature or parse failures where a retry could legitimately differ.
func (h *Handler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		response.BadRequestCode(c, "unreadable body", "INVALID_PAYLOAD")
		return
	}

	if len(h.secret) > 0 {
		if !h.verifySignature(body, c.GetHeader(headerSignature)) {
			h.logger.Warn("webhook signature rejected", zap.String("event", c.GetHeader(headerEventName)))
			response.UnauthorizedCode(c, "invalid signature", "INVALID_SIGNATURE")
			return
		}
	}

	evt, err := ParseEvent(body, c.GetHeader(headerEventName))
	if err != nil {
		response.BadRequestCode(c, "malformed payload", "INVALID_PAYLOAD")
		return
	}
	if evt.Name == "" {
		response.BadRequestCode(c, "missing event name", "MISSING_EVENT_NAME")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), processBudget)
	defer cancel()
	outcome := h.reconciler.Process(ctx, evt)

	c.JSON(http.StatusOK, outcome)
}

// verifySignature checks the hex-encoded HMAC-SHA256 of the raw body in
// constant time.
func (h *Handler) verifySignature(body []byte, header string) bool {
	if header == "" {
		return false
	}
	sig, err := hex.DecodeString(header)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	return hmac.Equal(sig, mac.Sum(nil))
}
