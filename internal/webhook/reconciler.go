// Package webhook reconciles asynchronous payment-gateway events with the
// persisted order state. The reconciler is the sole writer of order status
// and payment status after an order is created.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/arinellipar/laossuicide-sub000/internal/auditlog"
	"github.com/arinellipar/laossuicide-sub000/internal/gateway"
	"github.com/arinellipar/laossuicide-sub000/internal/store"
)

// Reconciler applies gateway events to persisted orders, exactly once per
// event id.
type Reconciler struct {
	store store.Store
	audit auditlog.Repository
}

func NewReconciler(st store.Store, audit auditlog.Repository) *Reconciler {
	return &Reconciler{store: st, audit: audit}
}

// Handle processes one verified event. Replays of an already-processed
// event are acknowledged without reapplying side effects. A returned error
// means the caller should answer non-2xx so the gateway redelivers.
//
// The up-front check is only a fast path: the session-completed handler
// claims the event id inside the finalize transaction, so two concurrent
// deliveries that both pass the check still apply the order effects once.
func (r *Reconciler) Handle(ctx context.Context, ev gateway.Event) error {
	processed, err := r.store.IsEventProcessed(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("check event %s: %w", ev.ID, err)
	}
	if processed {
		slog.InfoContext(ctx, "ignoring replayed webhook event", "event_id", ev.ID, "type", ev.Type)
		return nil
	}

	switch ev.Type {
	case gateway.EventSessionCompleted:
		err = r.sessionCompleted(ctx, ev)
	case gateway.EventSessionExpired:
		err = r.sessionExpired(ctx, ev)
	case gateway.EventPaymentSucceeded:
		err = r.paymentSucceeded(ctx, ev)
	case gateway.EventPaymentFailed:
		err = r.paymentFailed(ctx, ev)
	case gateway.EventPaymentCanceled:
		err = r.paymentCanceled(ctx, ev)
	default:
		slog.InfoContext(ctx, "ignoring unhandled webhook event", "event_id", ev.ID, "type", ev.Type)
	}
	if err != nil {
		return err
	}

	// Marked only after successful processing so a failed delivery is
	// retried rather than silently dropped.
	if err := r.store.MarkEventProcessed(ctx, ev.ID); err != nil {
		return fmt.Errorf("mark event %s processed: %w", ev.ID, err)
	}
	return nil
}

func (r *Reconciler) sessionCompleted(ctx context.Context, ev gateway.Event) error {
	sess := ev.Session
	if sess == nil {
		return fmt.Errorf("event %s carries no session object", ev.ID)
	}
	orderID := sess.ClientReferenceID
	if orderID == "" {
		orderID = sess.Metadata["orderId"]
	}
	if orderID == "" {
		return fmt.Errorf("session %s completed without an order reference", sess.ID)
	}

	method := "card"
	if slices.Contains(sess.PaymentMethodTypes, "pix") {
		method = "pix"
	}

	var shipping *store.ShippingAddress
	if sess.Shipping != nil {
		shipping = &store.ShippingAddress{
			Name:       sess.Shipping.Name,
			Line1:      sess.Shipping.Line1,
			Line2:      sess.Shipping.Line2,
			City:       sess.Shipping.City,
			State:      sess.Shipping.State,
			PostalCode: sess.Shipping.PostalCode,
			Country:    sess.Shipping.Country,
		}
	}

	params := store.FinalizeOrderParams{
		OrderID:         orderID,
		PaymentIntentID: sess.PaymentIntentID,
		PaymentMethod:   method,
		Shipping:        shipping,
		PaidAt:          time.Now().UTC(),
		EventID:         ev.ID,
		Audit:           auditlog.NewEntry(ctx, orderID, ev.ID, ev.Type, "", rawPayload(ev)),
	}
	if err := r.store.FinalizeOrder(ctx, params); err != nil {
		if errors.Is(err, store.ErrDuplicateEvent) {
			slog.InfoContext(ctx, "concurrent delivery already finalized order",
				"event_id", ev.ID, "order_id", orderID)
			return nil
		}
		return fmt.Errorf("finalize order %s: %w", orderID, err)
	}

	slog.InfoContext(ctx, "order finalized",
		"order_id", orderID, "session_id", sess.ID, "payment_method", method)
	return nil
}

func (r *Reconciler) sessionExpired(ctx context.Context, ev gateway.Event) error {
	orderID := orderRef(ev)
	if orderID == "" {
		slog.WarnContext(ctx, "expired session without order reference", "event_id", ev.ID)
		return nil
	}
	if err := r.store.CancelOrder(ctx, orderID); err != nil {
		return fmt.Errorf("cancel expired order %s: %w", orderID, err)
	}
	slog.InfoContext(ctx, "order canceled after session expiry", "order_id", orderID)
	return nil
}

// paymentSucceeded only appends an audit entry: the status transition for
// the success path is driven by the session-completed event.
func (r *Reconciler) paymentSucceeded(ctx context.Context, ev gateway.Event) error {
	orderID := orderRef(ev)
	if orderID == "" {
		slog.InfoContext(ctx, "payment succeeded without order reference, ignoring", "event_id", ev.ID)
		return nil
	}
	return r.audit.Save(ctx, auditlog.NewEntry(ctx, orderID, ev.ID, ev.Type, "", rawPayload(ev)))
}

func (r *Reconciler) paymentFailed(ctx context.Context, ev gateway.Event) error {
	orderID := orderRef(ev)
	if orderID == "" {
		slog.WarnContext(ctx, "payment failure without order reference", "event_id", ev.ID)
		return nil
	}
	if err := r.store.MarkPaymentFailed(ctx, orderID); err != nil {
		return fmt.Errorf("mark payment failed for %s: %w", orderID, err)
	}
	reason := ""
	if ev.PaymentIntent != nil {
		reason = ev.PaymentIntent.FailureMessage
	}
	return r.audit.Save(ctx, auditlog.NewEntry(ctx, orderID, ev.ID, ev.Type, reason, rawPayload(ev)))
}

func (r *Reconciler) paymentCanceled(ctx context.Context, ev gateway.Event) error {
	orderID := orderRef(ev)
	if orderID == "" {
		slog.WarnContext(ctx, "payment cancellation without order reference", "event_id", ev.ID)
		return nil
	}
	if err := r.store.CancelOrder(ctx, orderID); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return r.audit.Save(ctx, auditlog.NewEntry(ctx, orderID, ev.ID, ev.Type, "", rawPayload(ev)))
}

// orderRef digs the order id out of whichever object the event carries.
func orderRef(ev gateway.Event) string {
	if ev.Session != nil {
		if ev.Session.ClientReferenceID != "" {
			return ev.Session.ClientReferenceID
		}
		return ev.Session.Metadata["orderId"]
	}
	if ev.PaymentIntent != nil {
		return ev.PaymentIntent.Metadata["orderId"]
	}
	return ""
}

func rawPayload(ev gateway.Event) string {
	var obj any
	if ev.Session != nil {
		obj = ev.Session
	} else if ev.PaymentIntent != nil {
		obj = ev.PaymentIntent
	}
	b, err := json.Marshal(map[string]any{"id": ev.ID, "type": ev.Type, "object": obj})
	if err != nil {
		return ""
	}
	return string(b)
}
