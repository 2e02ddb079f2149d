// Package checkout implements the checkout pipeline: an ordered saga of
// stages that load the cart, validate stock, compute totals, and open a
// payment-gateway session, with reverse-order compensation on failure.
package checkout

import (
	"time"

	"github.com/arinellipar/laossuicide-sub000/internal/pricing"
	"github.com/arinellipar/laossuicide-sub000/internal/reservation"
	"github.com/arinellipar/laossuicide-sub000/internal/store"
)

// PaymentMethod is the customer's chosen payment method.
type PaymentMethod string

const (
	MethodCard PaymentMethod = "card"
	MethodPix  PaymentMethod = "pix"
)

// Valid reports whether m is a supported method.
func (m PaymentMethod) Valid() bool {
	return m == MethodCard || m == MethodPix
}

// Request is the validated checkout input. Immutable once the pipeline
// starts.
type Request struct {
	PaymentMethod PaymentMethod
	// Shipping optionally overrides the address collected by the gateway.
	Shipping   *store.ShippingAddress
	Metadata   map[string]string
	CouponCode string
	// SuccessURL and CancelURL override the defaults derived from the
	// public base URL.
	SuccessURL string
	CancelURL  string
}

// Context is the mutable state of one checkout attempt. Each attempt gets
// its own instance; it is never shared across requests or persisted.
// Stages populate their fields in order and later stages read them.
type Context struct {
	AttemptID string
	UserID    string
	Request   Request

	// CartItems is populated by LoadCart.
	CartItems []store.CartLine

	// Summary is populated by CalculateTotals.
	Summary *pricing.Summary

	// Reservations is populated by ValidateStock.
	Reservations []reservation.Reservation

	// The remaining fields are populated by CreateGatewaySession.
	OrderID          string
	GatewaySessionID string
	SessionURL       string
	SessionExpiresAt time.Time
}
