// Package httpx exposes the checkout pipeline and the webhook reconciler
// over HTTP. Routing, middleware, and response envelopes live here; all
// business rules stay in the inner packages.
package httpx

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/arinellipar/laossuicide-sub000/internal/apperr"
	"github.com/arinellipar/laossuicide-sub000/internal/auth"
	"github.com/arinellipar/laossuicide-sub000/internal/checkout"
	"github.com/arinellipar/laossuicide-sub000/internal/gateway"
	"github.com/arinellipar/laossuicide-sub000/internal/ratelimit"
	"github.com/arinellipar/laossuicide-sub000/internal/webhook"
)

// maxWebhookBody bounds how much of a webhook delivery is read.
const maxWebhookBody = 1 << 20

// Handler handles the checkout endpoints.
type Handler struct {
	service       *checkout.Service
	limiter       *ratelimit.Limiter
	validator     auth.Validator
	reconciler    *webhook.Reconciler
	webhookSecret string
}

func NewHandler(
	service *checkout.Service,
	limiter *ratelimit.Limiter,
	validator auth.Validator,
	reconciler *webhook.Reconciler,
	webhookSecret string,
) *Handler {
	return &Handler{
		service:       service,
		limiter:       limiter,
		validator:     validator,
		reconciler:    reconciler,
		webhookSecret: webhookSecret,
	}
}

// Checkout runs the checkout pipeline for the authenticated caller.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	sess, err := h.validator.Validate(r)
	if err != nil {
		writeAppError(w, apperr.From(err))
		return
	}

	if res := h.limiter.Check("checkout:" + sess.UserID); !res.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfterSeconds))
		writeAppError(w, apperr.RateLimitExceeded(res.RetryAfterSeconds))
		return
	}

	var body CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAppError(w, apperr.InvalidRequest("invalid JSON body"))
		return
	}

	method := checkout.PaymentMethod(body.PaymentMethod)
	if !method.Valid() {
		writeAppError(w, apperr.InvalidRequest(`paymentMethod must be "card" or "pix"`))
		return
	}

	slog.InfoContext(r.Context(), "starting checkout",
		"user_id", sess.UserID, "payment_method", body.PaymentMethod)

	result, err := h.service.Checkout(r.Context(), sess.UserID, checkout.Request{
		PaymentMethod: method,
		Shipping:      body.Shipping.toStore(),
		Metadata:      body.Metadata,
		CouponCode:    body.CouponCode,
		SuccessURL:    body.SuccessURL,
		CancelURL:     body.CancelURL,
	})
	if err != nil {
		appErr := apperr.From(err)
		if appErr.Code == apperr.CodeInternal {
			slog.ErrorContext(r.Context(), "checkout failed unexpectedly",
				"user_id", sess.UserID, "correlation_id", appErr.CorrelationID, "error", appErr.Unwrap())
		}
		writeAppError(w, appErr)
		return
	}

	writeJSON(w, http.StatusOK, CheckoutResponse{Success: true, Data: result})
}

// Webhook verifies and applies a gateway event delivery. Processing errors
// answer 500 so the gateway redelivers.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeAppError(w, apperr.InvalidRequest("unable to read body"))
		return
	}

	ev, err := gateway.VerifySignature(payload, r.Header.Get(gateway.SignatureHeader), h.webhookSecret)
	if err != nil {
		slog.WarnContext(r.Context(), "webhook rejected", "error", err)
		writeAppError(w, apperr.InvalidRequest("signature verification failed"))
		return
	}

	if err := h.reconciler.Handle(r.Context(), ev); err != nil {
		slog.ErrorContext(r.Context(), "webhook processing failed",
			"event_id", ev.ID, "type", ev.Type, "error", err)
		writeAppError(w, apperr.Internal(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAppError(w http.ResponseWriter, appErr *apperr.Error) {
	res := ErrorResponse{
		Error:         string(appErr.Code),
		Message:       appErr.Message,
		Details:       appErr.Details,
		CorrelationID: appErr.CorrelationID,
	}
	if appErr.Retryable {
		if ra, ok := appErr.Details["retryAfter"].(int); ok {
			res.RetryAfter = ra
		}
	}
	writeJSON(w, appErr.Status, res)
}
