package payments

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/atlaspay/backend/internal/models"
	"github.com/atlaspay/backend/internal/provider"
	"github.com/atlaspay/backend/internal/status"
	"github.com/atlaspay/backend/pkg/response"
)

// OrderFetcher queries the provider for the current state of an order.
type OrderFetcher interface {
	GetOrder(ctx context.Context, numericID string) (*provider.Order, error)
}

// Handler serves payment-status reads and out-of-band verification.
type Handler struct {
	store    Store
	fetcher  OrderFetcher
	gate     Gate
	logger   *zap.Logger
}

// NewHandler creates a payments handler.
func NewHandler(store Store, fetcher OrderFetcher, gate Gate, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, fetcher: fetcher, gate: gate, logger: logger}
}

// GetStatus handles GET /payment-status?orderId=.
func (h *Handler) GetStatus(c *gin.Context) {
	orderID := c.Query("orderId")
	if orderID == "" {
		response.BadRequestCode(c, "orderId required", "MISSING_ORDER_ID")
		return
	}
	rec, err := h.store.GetByOrderID(c.Request.Context(), orderID)
	if err != nil {
		h.logger.Error("payment status lookup failed", zap.String("order_id", orderID), zap.Error(err))
		response.Internal(c, "status lookup failed")
		return
	}
	if rec == nil {
		response.NotFoundCode(c, "no payment record for order", "STATUS_NOT_FOUND")
		return
	}
	response.OK(c, gin.H{
		"order_id":   rec.OrderID,
		"status":     rec.Status,
		"updated_at": rec.UpdatedAt,
	})
}

// Verify handles GET /verify?orderId=: re-queries the provider for the order
// and replays the status-mapping + upsert path. Re-queries for the same order
// are gated (reference: once per 5 minutes) to bound load on the provider API;
// a gated or unverifiable request falls back to the stored status.
func (h *Handler) Verify(c *gin.Context) {
	orderID := c.Query("orderId")
	if orderID == "" {
		response.BadRequestCode(c, "orderId required", "MISSING_ORDER_ID")
		return
	}
	ctx := c.Request.Context()

	rec, err := h.store.GetByOrderID(ctx, orderID)
	if err != nil {
		h.logger.Error("verify lookup failed", zap.String("order_id", orderID), zap.Error(err))
		response.Internal(c, "verify failed")
		return
	}
	if rec == nil {
		response.NotFoundCode(c, "no payment record for order", "STATUS_NOT_FOUND")
		return
	}

	// Without a provider numeric id there is nothing to ask the provider for;
	// the order will settle via webhook or the timeout sweeper.
	if rec.NumericID == "" {
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"verified": false,
			"order_id": rec.OrderID,
			"status":   rec.Status,
		})
		return
	}

	if !h.gate.Allow(ctx, orderID) {
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"verified": false,
			"cached":   true,
			"order_id": rec.OrderID,
			"status":   rec.Status,
		})
		return
	}

	order, err := h.fetcher.GetOrder(ctx, rec.NumericID)
	if err != nil {
		h.logger.Warn("provider order query failed",
			zap.String("order_id", orderID),
			zap.String("numeric_id", rec.NumericID),
			zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"verified": false,
			"order_id": rec.OrderID,
			"status":   rec.Status,
		})
		return
	}

	mapped := status.Map(order.Status)
	if err := h.store.UpsertStatus(ctx, rec.OrderID, mapped, providerIDsOf(order)); err != nil {
		h.logger.Error("verify upsert failed",
			zap.String("order_id", rec.OrderID),
			zap.String("status", string(mapped)),
			zap.Error(err))
		response.Internal(c, "verify failed")
		return
	}

	h.logger.Info("order verified against provider",
		zap.String("order_id", rec.OrderID),
		zap.String("provider_status", order.Status),
		zap.String("status", string(mapped)))
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"verified": true,
		"order_id": rec.OrderID,
		"status":   mapped,
	})
}

func providerIDsOf(order *provider.Order) models.ProviderIDs {
	return models.ProviderIDs{NumericID: order.NumericID, IdentifierID: order.IdentifierID}
}
