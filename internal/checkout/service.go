package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/arinellipar/laossuicide-sub000/internal/apperr"
	"github.com/arinellipar/laossuicide-sub000/internal/auditlog"
	"github.com/arinellipar/laossuicide-sub000/internal/breaker"
	"github.com/arinellipar/laossuicide-sub000/internal/gateway"
	"github.com/arinellipar/laossuicide-sub000/internal/pricing"
	"github.com/arinellipar/laossuicide-sub000/internal/reservation"
	"github.com/arinellipar/laossuicide-sub000/internal/store"
)

// DefaultMaxCartItems is the cart line limit for one checkout.
const DefaultMaxCartItems = 50

// Service owns the dependencies shared by all checkout attempts and builds
// a fresh pipeline per attempt.
type Service struct {
	Store        store.Store
	Reservations reservation.Store
	Calculator   *pricing.Calculator
	Gateway      gateway.Client
	Breaker      *breaker.Breaker
	Audit        auditlog.Repository
	BaseURL      string
	MaxCartItems int
}

// Result is what a successful checkout hands back to the HTTP layer.
type Result struct {
	SessionID string          `json:"sessionId"`
	URL       string          `json:"url"`
	ExpiresAt time.Time       `json:"expiresAt"`
	OrderID   string          `json:"orderId"`
	Summary   pricing.Summary `json:"summary"`
}

// Checkout runs the full pipeline for one attempt. Errors are always typed
// *apperr.Error by the time they leave this method.
func (s *Service) Checkout(ctx context.Context, userID string, req Request) (*Result, error) {
	maxItems := s.MaxCartItems
	if maxItems <= 0 {
		maxItems = DefaultMaxCartItems
	}

	chk := &Context{
		AttemptID: uuid.NewString(),
		UserID:    userID,
		Request:   req,
	}

	pipeline := NewPipeline([]Stage{
		NewLoadCartStage(s.Store, maxItems),
		NewValidateStockStage(s.Reservations),
		NewCalculateTotalsStage(s.Calculator),
		NewCreateGatewaySessionStage(s.Store, s.Gateway, s.Breaker, s.BaseURL),
	}, s.Audit)

	if err := pipeline.Run(ctx, chk); err != nil {
		return nil, apperr.From(err)
	}

	return &Result{
		SessionID: chk.GatewaySessionID,
		URL:       chk.SessionURL,
		ExpiresAt: chk.SessionExpiresAt,
		OrderID:   chk.OrderID,
		Summary:   *chk.Summary,
	}, nil
}
