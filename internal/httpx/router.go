package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the checkout endpoints with the standard middleware
// stack. The webhook route skips nothing: signature verification is the
// authentication for gateway deliveries.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/checkout", handler.Checkout)
	r.Post("/checkout/webhook", handler.Webhook)
	return r
}
