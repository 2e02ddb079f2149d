package httpx

import (
	"github.com/arinellipar/laossuicide-sub000/internal/checkout"
	"github.com/arinellipar/laossuicide-sub000/internal/store"
)

// CheckoutRequest is the POST /checkout body.
type CheckoutRequest struct {
	PaymentMethod string             `json:"paymentMethod"`
	Metadata      map[string]string  `json:"metadata,omitempty"`
	Shipping      *ShippingDTO       `json:"shipping,omitempty"`
	CouponCode    string             `json:"couponCode,omitempty"`
	SuccessURL    string             `json:"successUrl,omitempty"`
	CancelURL     string             `json:"cancelUrl,omitempty"`
}

// ShippingDTO is an optional shipping-address override.
type ShippingDTO struct {
	Name       string `json:"name,omitempty"`
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

func (d *ShippingDTO) toStore() *store.ShippingAddress {
	if d == nil {
		return nil
	}
	return &store.ShippingAddress{
		Name:       d.Name,
		Line1:      d.Line1,
		Line2:      d.Line2,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Country:    d.Country,
	}
}

// CheckoutResponse is the success envelope for POST /checkout.
type CheckoutResponse struct {
	Success bool             `json:"success"`
	Data    *checkout.Result `json:"data"`
}

// ErrorResponse is the error envelope for every endpoint.
type ErrorResponse struct {
	Error      string         `json:"error"`
	Message    string         `json:"message,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	RetryAfter int            `json:"retryAfter,omitempty"`
	// CorrelationID lets support find the log entry for internal errors.
	CorrelationID string `json:"correlationId,omitempty"`
}
