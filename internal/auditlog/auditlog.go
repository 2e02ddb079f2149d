// Package auditlog defines the payment audit trail.
//
// Every checkout pipeline transition and every webhook event appends an
// immutable entry. Each entry carries the OpenTelemetry trace and span ids
// active when it was written, so a row in the payment log can be joined
// directly with the distributed trace that produced it.
package auditlog

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Kinds written by the checkout pipeline.
const (
	KindCheckoutStarted      = "checkout.started"
	KindCheckoutStageDone    = "checkout.stage_done"
	KindCheckoutCompleted    = "checkout.completed"
	KindCheckoutCompensating = "checkout.compensating"
	KindCheckoutFailed       = "checkout.failed"
)

// Entry is one immutable row in the payment log.
type Entry struct {
	// OrderID connects the entry to a persisted order; empty while the
	// pipeline has not created one yet.
	OrderID string

	// EventID is the gateway event id for webhook-driven entries.
	EventID string

	// Kind is either a checkout.* pipeline kind or a gateway event type.
	Kind string

	// Detail is a short human-readable note (stage name, failure reason).
	Detail string

	// Payload is the raw JSON that triggered the entry, stored once so
	// events can be re-examined later.
	Payload string

	TraceID string
	SpanID  string

	CreatedAt time.Time
}

// Repository persists entries. The table is append-only; Save always
// inserts a new row.
type Repository interface {
	Save(ctx context.Context, entry *Entry) error
}

// NewEntry builds an Entry stamped with the trace and span ids of the
// active span in ctx, if any.
func NewEntry(ctx context.Context, orderID, eventID, kind, detail, payload string) *Entry {
	e := &Entry{
		OrderID:   orderID,
		EventID:   eventID,
		Kind:      kind,
		Detail:    detail,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		e.TraceID = sc.TraceID().String()
		e.SpanID = sc.SpanID().String()
	}
	return e
}
