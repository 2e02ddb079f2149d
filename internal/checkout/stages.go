package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/arinellipar/laossuicide-sub000/internal/apperr"
	"github.com/arinellipar/laossuicide-sub000/internal/breaker"
	"github.com/arinellipar/laossuicide-sub000/internal/gateway"
	"github.com/arinellipar/laossuicide-sub000/internal/pricing"
	"github.com/arinellipar/laossuicide-sub000/internal/reservation"
	"github.com/arinellipar/laossuicide-sub000/internal/store"
)

// sessionIDPlaceholder is substituted by the gateway when redirecting back
// after payment.
const sessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

var decimalHundred = decimal.NewFromInt(100)

// --- LoadCart ---

type LoadCartStage struct {
	store    store.Store
	maxItems int
}

func NewLoadCartStage(st store.Store, maxItems int) *LoadCartStage {
	return &LoadCartStage{store: st, maxItems: maxItems}
}

func (s *LoadCartStage) Name() string { return "load_cart" }

func (s *LoadCartStage) Execute(ctx context.Context, chk *Context) error {
	lines, err := s.store.CartLines(ctx, chk.UserID)
	if err != nil {
		return fmt.Errorf("load cart for %s: %w", chk.UserID, err)
	}
	if len(lines) == 0 {
		return apperr.EmptyCart()
	}
	if len(lines) > s.maxItems {
		return apperr.TooManyItems(len(lines), s.maxItems)
	}
	chk.CartItems = lines
	return nil
}

// Compensate is a no-op: loading the cart has no side effects.
func (s *LoadCartStage) Compensate(context.Context, *Context) error { return nil }

// --- ValidateStock ---

type ValidateStockStage struct {
	reservations reservation.Store
}

func NewValidateStockStage(res reservation.Store) *ValidateStockStage {
	return &ValidateStockStage{reservations: res}
}

func (s *ValidateStockStage) Name() string { return "validate_stock" }

// Execute collects every violating line before failing, so the customer
// sees the full list instead of fixing one item per attempt.
func (s *ValidateStockStage) Execute(ctx context.Context, chk *Context) error {
	var unavailable []apperr.UnavailableItem
	for _, line := range chk.CartItems {
		if !line.Product.Active || line.Quantity > line.Product.Stock {
			unavailable = append(unavailable, apperr.UnavailableItem{
				ProductID: line.ProductID,
				Name:      line.Product.Name,
				Available: line.Product.Stock,
			})
		}
	}
	if len(unavailable) > 0 {
		return apperr.StockUnavailable(unavailable)
	}

	holds := make([]reservation.Reservation, 0, len(chk.CartItems))
	for _, line := range chk.CartItems {
		holds = append(holds, reservation.Reservation{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	if err := s.reservations.Hold(ctx, chk.UserID, holds); err != nil {
		return fmt.Errorf("place stock reservation: %w", err)
	}
	chk.Reservations = holds
	return nil
}

// Compensate releases the soft hold. Best-effort: the hold also expires on
// its own TTL.
func (s *ValidateStockStage) Compensate(ctx context.Context, chk *Context) error {
	if len(chk.Reservations) == 0 {
		return nil
	}
	return s.reservations.Release(ctx, chk.UserID)
}

// --- CalculateTotals ---

type CalculateTotalsStage struct {
	calc *pricing.Calculator
}

func NewCalculateTotalsStage(calc *pricing.Calculator) *CalculateTotalsStage {
	return &CalculateTotalsStage{calc: calc}
}

func (s *CalculateTotalsStage) Name() string { return "calculate_totals" }

func (s *CalculateTotalsStage) Execute(_ context.Context, chk *Context) error {
	lines := make([]pricing.Line, 0, len(chk.CartItems))
	for _, item := range chk.CartItems {
		lines = append(lines, pricing.Line{UnitPrice: item.Product.Price, Quantity: item.Quantity})
	}
	summary, err := s.calc.Calculate(lines)
	if err != nil {
		return err
	}
	chk.Summary = &summary
	return nil
}

// Compensate is a no-op: the calculation has no side effects.
func (s *CalculateTotalsStage) Compensate(context.Context, *Context) error { return nil }

// --- CreateGatewaySession ---

type CreateGatewaySessionStage struct {
	store   store.Store
	gateway gateway.Client
	breaker *breaker.Breaker
	baseURL string
}

func NewCreateGatewaySessionStage(st store.Store, gw gateway.Client, brk *breaker.Breaker, baseURL string) *CreateGatewaySessionStage {
	return &CreateGatewaySessionStage{store: st, gateway: gw, breaker: brk, baseURL: baseURL}
}

func (s *CreateGatewaySessionStage) Name() string { return "create_gateway_session" }

// Execute is two-phase: the PENDING order commits before the gateway call
// so a slow gateway never holds a database transaction open, then the
// session id is attached in a separate write. Orders stranded between the
// two phases are cleaned up by the abandoned-order sweep.
func (s *CreateGatewaySessionStage) Execute(ctx context.Context, chk *Context) error {
	items := make([]store.OrderItem, 0, len(chk.CartItems))
	for _, line := range chk.CartItems {
		items = append(items, store.OrderItem{
			ProductID: line.ProductID,
			Name:      line.Product.Name,
			UnitPrice: line.Product.Price,
			Quantity:  line.Quantity,
		})
	}

	order, err := s.store.CreateOrder(ctx, store.CreateOrderParams{
		UserID:        chk.UserID,
		PaymentMethod: string(chk.Request.PaymentMethod),
		Items:         items,
		Summary:       *chk.Summary,
	})
	if err != nil {
		return fmt.Errorf("create pending order: %w", err)
	}
	chk.OrderID = order.ID

	sess, err := breaker.Do(ctx, s.breaker, func(ctx context.Context) (*gateway.Session, error) {
		return s.gateway.CreateSession(ctx, s.sessionParams(chk, order))
	})
	if err != nil {
		if appErr := apperr.From(err); appErr.Code == apperr.CodePaymentGateway {
			return appErr
		}
		return apperr.PaymentGateway("failed to create payment session", err)
	}

	if err := s.store.AttachGatewaySession(ctx, order.ID, sess.ID); err != nil {
		return fmt.Errorf("attach gateway session: %w", err)
	}

	chk.GatewaySessionID = sess.ID
	chk.SessionURL = sess.URL
	chk.SessionExpiresAt = sess.ExpiresAt
	return nil
}

// Compensate cancels the pending order and expires the gateway session if
// one was created. Both are best-effort.
func (s *CreateGatewaySessionStage) Compensate(ctx context.Context, chk *Context) error {
	if chk.OrderID != "" {
		if err := s.store.CancelOrder(ctx, chk.OrderID); err != nil {
			slog.ErrorContext(ctx, "failed to cancel order during compensation",
				"order_id", chk.OrderID, "error", err)
		}
	}
	if chk.GatewaySessionID != "" {
		if err := s.gateway.ExpireSession(ctx, chk.GatewaySessionID); err != nil {
			return fmt.Errorf("expire gateway session %s: %w", chk.GatewaySessionID, err)
		}
	}
	return nil
}

func (s *CreateGatewaySessionStage) sessionParams(chk *Context, order *store.Order) gateway.SessionParams {
	successURL := chk.Request.SuccessURL
	if successURL == "" {
		successURL = s.baseURL + "/checkout/success?session_id=" + sessionIDPlaceholder
	}
	cancelURL := chk.Request.CancelURL
	if cancelURL == "" {
		cancelURL = s.baseURL + "/cart"
	}

	metadata := make(map[string]string, len(chk.Request.Metadata)+3)
	for k, v := range chk.Request.Metadata {
		metadata[k] = v
	}
	metadata["orderId"] = order.ID
	metadata["orderTotal"] = chk.Summary.Total.StringFixed(2)
	metadata["itemCount"] = strconv.Itoa(len(chk.CartItems))

	lineItems := make([]gateway.LineItem, 0, len(chk.CartItems))
	for _, line := range chk.CartItems {
		lineItems = append(lineItems, gateway.LineItem{
			Name:       line.Product.Name,
			UnitAmount: line.Product.Price.Mul(decimalHundred).IntPart(),
			Currency:   "brl",
			Quantity:   line.Quantity,
		})
	}

	params := gateway.SessionParams{
		PaymentMethodTypes: []string{string(chk.Request.PaymentMethod)},
		LineItems:          lineItems,
		Locale:             "pt-BR",
		ShippingCountries:  []string{"BR"},
		SuccessURL:         successURL,
		CancelURL:          cancelURL,
		ClientReferenceID:  order.ID,
		Metadata:           metadata,
	}
	if chk.Request.PaymentMethod == MethodPix {
		params.PixExpiryMinutes = 30
	}
	return params
}
