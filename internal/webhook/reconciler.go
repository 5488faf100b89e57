package webhook

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/atlaspay/backend/internal/models"
	"github.com/atlaspay/backend/internal/payments"
	"github.com/atlaspay/backend/internal/pending"
	"github.com/atlaspay/backend/internal/status"
	"github.com/atlaspay/backend/pkg/queue"
)

// Archiver queues unresolvable webhook payloads for manual investigation.
type Archiver interface {
	EnqueueWebhookArchive(ctx context.Context, payload queue.WebhookArchivePayload) error
}

// Outcome reports what a reconciliation attempt did. Received is false only
// when no local order could be correlated; the transport layer still
// acknowledges 2xx in that case to stop provider retries.
type Outcome struct {
	Received bool                 `json:"received"`
	OrderID  string               `json:"order_id,omitempty"`
	Status   models.PaymentStatus `json:"status,omitempty"`
}

// Reconciler correlates incoming webhooks to locally tracked orders and
// applies idempotent status updates.
type Reconciler struct {
	store    payments.Store
	index    pending.Index
	archiver Archiver // optional
	logger   *zap.Logger

	// stageTimeout bounds each store/index operation so a stalled backend
	// cannot hold the webhook response past the provider's patience.
	stageTimeout time.Duration
}

// NewReconciler creates a reconciler. archiver may be nil, disabling the
// dead-letter archive.
func NewReconciler(store payments.Store, index pending.Index, archiver Archiver, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:        store,
		index:        index,
		archiver:     archiver,
		logger:       logger,
		stageTimeout: 3 * time.Second,
	}
}

// Process reconciles one webhook event. It never returns an error that should
// surface as a transport failure: store problems are logged and converted to
// an acknowledged outcome, because a 5xx here only buys a provider retry storm
// for a webhook we already have in hand.
func (r *Reconciler) Process(ctx context.Context, evt *Event) Outcome {
	if !IsStatusEvent(evt.Name) {
		r.logger.Debug("webhook event ignored", zap.String("event", evt.Name))
		return Outcome{Received: true}
	}

	orderID := r.resolve(ctx, evt)
	if orderID == "" {
		r.logger.Warn("webhook could not be correlated to an order",
			zap.String("event", evt.Name),
			zap.String("numeric_id", evt.NumericID),
			zap.String("identifier_id", evt.IdentifierID),
			zap.String("custom_order_id", evt.CustomOrderID))
		r.archive(ctx, evt)
		return Outcome{Received: false}
	}

	mapped := status.Map(evt.RawStatus)
	if evt.RawStatus != "" && !status.Known(evt.RawStatus) {
		r.logger.Warn("unknown provider status, recorded as PENDING",
			zap.String("order_id", orderID),
			zap.String("raw_status", evt.RawStatus))
	}

	wctx, cancel := context.WithTimeout(ctx, r.stageTimeout)
	defer cancel()
	ids := models.ProviderIDs{NumericID: evt.NumericID, IdentifierID: evt.IdentifierID}
	if err := r.store.UpsertStatus(wctx, orderID, mapped, ids); err != nil {
		r.logger.Error("webhook status upsert failed",
			zap.String("order_id", orderID),
			zap.String("status", string(mapped)),
			zap.Error(err))
		// Acknowledged anyway; the provider will redeliver and the upsert is
		// safe to repeat.
		return Outcome{Received: true, OrderID: orderID}
	}

	r.logger.Info("webhook reconciled",
		zap.String("event", evt.Name),
		zap.String("order_id", orderID),
		zap.String("status", string(mapped)))
	return Outcome{Received: true, OrderID: orderID, Status: mapped}
}

// resolve runs the correlation fallback chain, short-circuiting on first hit:
//
//  1. provider numeric id against existing records
//  2. pending-order index under the caller-chosen order id
//  3. caller-chosen order id directly against the store
//  4. newest PENDING record still missing a numeric id (best-effort guess;
//     can misattribute under concurrent checkouts)
func (r *Reconciler) resolve(ctx context.Context, evt *Event) string {
	if evt.NumericID != "" {
		sctx, cancel := context.WithTimeout(ctx, r.stageTimeout)
		rec, err := r.store.GetByNumericID(sctx, evt.NumericID)
		cancel()
		if err != nil {
			r.logger.Warn("numeric id lookup failed", zap.String("numeric_id", evt.NumericID), zap.Error(err))
		} else if rec != nil {
			return rec.OrderID
		}
	}

	if evt.CustomOrderID != "" {
		sctx, cancel := context.WithTimeout(ctx, r.stageTimeout)
		entry, err := r.index.Resolve(sctx, evt.CustomOrderID)
		cancel()
		if err != nil {
			r.logger.Warn("pending index lookup failed", zap.String("order_id", evt.CustomOrderID), zap.Error(err))
		} else if entry != nil {
			return entry.OrderID
		}

		// The index entry may already be gone (expired, or consumed by an
		// earlier delivery) while the row persists.
		sctx, cancel = context.WithTimeout(ctx, r.stageTimeout)
		rec, err := r.store.GetByOrderID(sctx, evt.CustomOrderID)
		cancel()
		if err != nil {
			r.logger.Warn("order id lookup failed", zap.String("order_id", evt.CustomOrderID), zap.Error(err))
		} else if rec != nil {
			return rec.OrderID
		}
	}

	sctx, cancel := context.WithTimeout(ctx, r.stageTimeout)
	list, err := r.store.FindPendingWithoutNumericID(sctx, payments.DefaultPendingLimit)
	cancel()
	if err != nil {
		r.logger.Warn("pending fallback query failed", zap.Error(err))
		return ""
	}
	if len(list) > 0 {
		r.logger.Info("webhook correlated by most-recent-pending fallback",
			zap.String("order_id", list[0].OrderID),
			zap.Int("candidates", len(list)))
		return list[0].OrderID
	}
	return ""
}

// archive queues the raw payload for operator follow-up. Failures here are
// logged and dropped; the archive is diagnostic, not authoritative.
func (r *Reconciler) archive(ctx context.Context, evt *Event) {
	if r.archiver == nil {
		return
	}
	err := r.archiver.EnqueueWebhookArchive(ctx, queue.WebhookArchivePayload{
		EventName:  evt.Name,
		NumericID:  evt.NumericID,
		Reason:     "unresolved_correlation",
		ReceivedAt: time.Now().UTC(),
		Body:       evt.Raw,
	})
	if err != nil {
		r.logger.Warn("webhook archive enqueue failed", zap.String("event", evt.Name), zap.Error(err))
	}
}
