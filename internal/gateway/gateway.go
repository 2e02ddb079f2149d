// Package gateway wraps the external payment gateway's checkout-session API
// and its signed webhook events. The rest of the system depends on the
// Client interface, never on the HTTP implementation.
package gateway

import (
	"context"
	"time"
)

// Event types delivered to the webhook endpoint.
const (
	EventSessionCompleted = "checkout.session.completed"
	EventSessionExpired   = "checkout.session.expired"
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventPaymentCanceled  = "payment_intent.canceled"
)

// LineItem is one purchasable line in a session. Either PriceRef points at
// a pre-registered catalog price, or the inline fields describe the product.
type LineItem struct {
	PriceRef    string `json:"price_ref,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	// UnitAmount is the price in cents.
	UnitAmount int64  `json:"unit_amount,omitempty"`
	Currency   string `json:"currency,omitempty"`
	Quantity   int64  `json:"quantity"`
}

// SessionParams describes a checkout session to be created.
type SessionParams struct {
	PaymentMethodTypes []string          `json:"payment_method_types"`
	LineItems          []LineItem        `json:"line_items"`
	Locale             string            `json:"locale,omitempty"`
	ShippingCountries  []string          `json:"shipping_countries,omitempty"`
	SuccessURL         string            `json:"success_url"`
	CancelURL          string            `json:"cancel_url"`
	ClientReferenceID  string            `json:"client_reference_id,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	// PixExpiryMinutes sets the pix charge expiry window; ignored for card.
	PixExpiryMinutes int `json:"pix_expiry_minutes,omitempty"`
}

// ShippingDetails is the address the customer entered on the hosted page.
type ShippingDetails struct {
	Name       string `json:"name,omitempty"`
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Session is the gateway's view of a checkout session.
type Session struct {
	ID                 string            `json:"id"`
	URL                string            `json:"url"`
	ExpiresAt          time.Time         `json:"expires_at"`
	PaymentIntentID    string            `json:"payment_intent_id,omitempty"`
	PaymentStatus      string            `json:"payment_status,omitempty"`
	PaymentMethodTypes []string          `json:"payment_method_types,omitempty"`
	ClientReferenceID  string            `json:"client_reference_id,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	Shipping           *ShippingDetails  `json:"shipping,omitempty"`
}

// PaymentIntent is the gateway's view of a payment attempt.
type PaymentIntent struct {
	ID             string            `json:"id"`
	Status         string            `json:"status,omitempty"`
	FailureMessage string            `json:"failure_message,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Event is a verified webhook delivery.
type Event struct {
	ID        string
	Type      string
	CreatedAt time.Time

	// Exactly one of the following is set, depending on Type.
	Session       *Session
	PaymentIntent *PaymentIntent
}

// Client is the operations the checkout core needs from the gateway.
type Client interface {
	CreateSession(ctx context.Context, params SessionParams) (*Session, error)
	RetrieveSession(ctx context.Context, id string) (*Session, error)
	// ExpireSession cancels a session that will not be completed.
	ExpireSession(ctx context.Context, id string) error
}
