// Package checkout creates orders against the payment provider.
package checkout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atlaspay/backend/internal/models"
	"github.com/atlaspay/backend/internal/payments"
	"github.com/atlaspay/backend/internal/pending"
	"github.com/atlaspay/backend/internal/provider"
	"github.com/atlaspay/backend/internal/webhook"
)

// CheckoutCreator is the slice of the provider client the initiator needs.
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, req provider.CheckoutRequest) (*provider.Checkout, error)
}

// Result is what the caller gets back from a created checkout.
type Result struct {
	CheckoutURL string `json:"checkout_url"`
	OrderID     string `json:"order_id"`
}

// Initiator creates checkouts: provider call, pending-index registration,
// initial PENDING row.
type Initiator struct {
	provider CheckoutCreator
	store    payments.Store
	index    pending.Index
	logger   *zap.Logger
}

// NewInitiator creates a checkout initiator.
func NewInitiator(p CheckoutCreator, store payments.Store, index pending.Index, logger *zap.Logger) *Initiator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Initiator{provider: p, store: store, index: index, logger: logger}
}

// Create generates an internal order id, threads it to the provider as custom
// data (so webhooks can carry it back verbatim), registers the pending entry,
// and writes the initial PENDING row.
//
// A failed store write does not fail the checkout: the URL is still returned,
// and the record self-heals on the first webhook or expires via the pending
// index. A failed provider call does fail, since there is no checkout URL
// without one.
func (i *Initiator) Create(ctx context.Context, variantID string, customData map[string]string, timeSlots json.RawMessage) (*Result, error) {
	orderID := uuid.New().String()

	data := make(map[string]string, len(customData)+1)
	for k, v := range customData {
		data[k] = v
	}
	data[webhook.CustomDataOrderKey] = orderID

	co, err := i.provider.CreateCheckout(ctx, provider.CheckoutRequest{
		VariantID:  variantID,
		CustomData: data,
	})
	if err != nil {
		return nil, fmt.Errorf("create provider checkout: %w", err)
	}

	if err := i.index.Put(ctx, orderID, orderID, timeSlots); err != nil {
		i.logger.Warn("pending index registration failed",
			zap.String("order_id", orderID), zap.Error(err))
	}

	ids := models.ProviderIDs{NumericID: co.NumericID, IdentifierID: co.IdentifierID}
	if err := i.store.UpsertStatus(ctx, orderID, models.StatusPending, ids); err != nil {
		i.logger.Error("initial status write failed, checkout proceeds",
			zap.String("order_id", orderID),
			zap.String("status", string(models.StatusPending)),
			zap.Error(err))
	}

	i.logger.Info("checkout created",
		zap.String("order_id", orderID),
		zap.String("variant_id", variantID),
		zap.String("identifier_id", co.IdentifierID))
	return &Result{CheckoutURL: co.URL, OrderID: orderID}, nil
}
