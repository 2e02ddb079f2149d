// Package apperr defines the typed errors surfaced by the checkout core.
//
// Every error carries a machine-readable code, an HTTP status for the
// transport layer, optional structured details, and a Retryable flag so
// clients can tell a transient failure (rate limit, gateway outage) from a
// business-rule rejection.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeEmptyCart         Code = "EMPTY_CART"
	CodeTooManyItems      Code = "TOO_MANY_ITEMS"
	CodeStockUnavailable  Code = "STOCK_UNAVAILABLE"
	CodeInvalidOrderValue Code = "INVALID_ORDER_VALUE"
	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"
	CodePaymentGateway    Code = "PAYMENT_GATEWAY_ERROR"
	CodeInvalidRequest    Code = "INVALID_REQUEST"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeInternal          Code = "INTERNAL_ERROR"
)

// Error is the single error type that crosses the checkout core's boundary.
type Error struct {
	Code    Code
	Status  int
	Message string
	Details map[string]any
	// Retryable tells the caller whether retrying the same request later
	// can succeed without changes (rate limit, gateway outage).
	Retryable bool
	// CorrelationID is set on internal errors so support can find the
	// matching log entry without leaking the cause to the caller.
	CorrelationID string

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// EmptyCart signals a checkout attempt against a cart with no lines.
func EmptyCart() *Error {
	return &Error{
		Code:    CodeEmptyCart,
		Status:  http.StatusBadRequest,
		Message: "cart is empty",
	}
}

// TooManyItems signals a cart over the configured line limit.
func TooManyItems(count, max int) *Error {
	return &Error{
		Code:    CodeTooManyItems,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("cart has %d items, maximum is %d", count, max),
		Details: map[string]any{"itemCount": count, "maxItems": max},
	}
}

// UnavailableItem describes one cart line that failed stock validation.
type UnavailableItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Available int64  `json:"availableQuantity"`
}

// StockUnavailable carries every offending line, not just the first.
func StockUnavailable(items []UnavailableItem) *Error {
	return &Error{
		Code:    CodeStockUnavailable,
		Status:  http.StatusBadRequest,
		Message: "one or more items are out of stock",
		Details: map[string]any{"unavailableItems": items},
	}
}

// InvalidOrderValue signals a total outside the configured bounds.
// The offending total and both bounds travel in Details.
func InvalidOrderValue(total, min, max string) *Error {
	return &Error{
		Code:    CodeInvalidOrderValue,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("order total %s is outside allowed bounds [%s, %s]", total, min, max),
		Details: map[string]any{"total": total, "minimum": min, "maximum": max},
	}
}

// RateLimitExceeded signals too many checkout attempts for one user.
func RateLimitExceeded(retryAfterSeconds int) *Error {
	return &Error{
		Code:      CodeRateLimitExceeded,
		Status:    http.StatusTooManyRequests,
		Message:   "too many checkout attempts, slow down",
		Details:   map[string]any{"retryAfter": retryAfterSeconds},
		Retryable: true,
	}
}

// PaymentGateway signals that the payment gateway is unavailable or the
// call to it failed. The underlying cause is wrapped, never serialized.
func PaymentGateway(msg string, cause error) *Error {
	return &Error{
		Code:      CodePaymentGateway,
		Status:    http.StatusServiceUnavailable,
		Message:   msg,
		Retryable: true,
		cause:     cause,
	}
}

// InvalidRequest signals a malformed or semantically invalid request body.
func InvalidRequest(msg string) *Error {
	return &Error{
		Code:    CodeInvalidRequest,
		Status:  http.StatusBadRequest,
		Message: msg,
	}
}

// Unauthorized signals a request without a valid session.
func Unauthorized() *Error {
	return &Error{
		Code:    CodeUnauthorized,
		Status:  http.StatusUnauthorized,
		Message: "authentication required",
	}
}

// Internal wraps an unexpected error with a generated correlation id.
// The cause is kept for logging but never exposed to the caller.
func Internal(cause error) *Error {
	return &Error{
		Code:          CodeInternal,
		Status:        http.StatusInternalServerError,
		Message:       "an unexpected error occurred",
		Retryable:     true,
		CorrelationID: uuid.NewString(),
		cause:         cause,
	}
}

// From normalizes any error into an *Error. Typed errors pass through
// unchanged; anything else becomes an Internal error.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
