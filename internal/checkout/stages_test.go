package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arinellipar/laossuicide-sub000/internal/apperr"
	"github.com/arinellipar/laossuicide-sub000/internal/breaker"
	"github.com/arinellipar/laossuicide-sub000/internal/gateway"
	"github.com/arinellipar/laossuicide-sub000/internal/pricing"
	"github.com/arinellipar/laossuicide-sub000/internal/reservation"
	"github.com/arinellipar/laossuicide-sub000/internal/store"
	"github.com/arinellipar/laossuicide-sub000/internal/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedProduct(t *testing.T, db *sqlite.Store, id, name, price string, stock int64, active bool) {
	t.Helper()
	require.NoError(t, db.UpsertProduct(context.Background(), store.Product{
		ID:     id,
		Name:   name,
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
		Active: active,
	}))
}

func TestLoadCartStage(t *testing.T) {
	ctx := context.Background()

	t.Run("empty cart fails", func(t *testing.T) {
		db := newTestStore(t)
		chk := &Context{UserID: "u1"}
		err := NewLoadCartStage(db, 50).Execute(ctx, chk)
		appErr := apperr.From(err)
		assert.Equal(t, apperr.CodeEmptyCart, appErr.Code)
		assert.False(t, appErr.Retryable)
	})

	t.Run("too many items fails", func(t *testing.T) {
		db := newTestStore(t)
		seedProduct(t, db, "p1", "Camiseta Tour", "89.90", 10, true)
		seedProduct(t, db, "p2", "Vinil Ao Vivo", "149.90", 5, true)
		require.NoError(t, db.AddCartLine(ctx, "u1", "p1", 1))
		require.NoError(t, db.AddCartLine(ctx, "u1", "p2", 1))

		chk := &Context{UserID: "u1"}
		err := NewLoadCartStage(db, 1).Execute(ctx, chk)
		appErr := apperr.From(err)
		assert.Equal(t, apperr.CodeTooManyItems, appErr.Code)
		assert.Equal(t, 2, appErr.Details["itemCount"])
	})

	t.Run("loads lines with product snapshots", func(t *testing.T) {
		db := newTestStore(t)
		seedProduct(t, db, "p1", "Camiseta Tour", "89.90", 10, true)
		require.NoError(t, db.AddCartLine(ctx, "u1", "p1", 2))

		chk := &Context{UserID: "u1"}
		require.NoError(t, NewLoadCartStage(db, 50).Execute(ctx, chk))
		require.Len(t, chk.CartItems, 1)
		assert.Equal(t, "Camiseta Tour", chk.CartItems[0].Product.Name)
		assert.Equal(t, int64(2), chk.CartItems[0].Quantity)
		assert.Equal(t, "89.90", chk.CartItems[0].Product.Price.StringFixed(2))
	})
}

func TestValidateStockStageCollectsAllViolations(t *testing.T) {
	res := reservation.NewMemoryStore()
	chk := &Context{
		UserID: "u1",
		CartItems: []store.CartLine{
			{ProductID: "p1", Quantity: 3, Product: store.Product{ID: "p1", Name: "Camiseta Tour", Stock: 1, Active: true}},
			{ProductID: "p2", Quantity: 1, Product: store.Product{ID: "p2", Name: "Vinil Ao Vivo", Stock: 5, Active: true}},
			{ProductID: "p3", Quantity: 1, Product: store.Product{ID: "p3", Name: "Poster", Stock: 10, Active: false}},
		},
	}

	err := NewValidateStockStage(res).Execute(context.Background(), chk)
	appErr := apperr.From(err)
	require.Equal(t, apperr.CodeStockUnavailable, appErr.Code)

	items, ok := appErr.Details["unavailableItems"].([]apperr.UnavailableItem)
	require.True(t, ok)
	require.Len(t, items, 2, "both violations reported in one error")
	assert.Equal(t, "p1", items[0].ProductID)
	assert.Equal(t, int64(1), items[0].Available)
	assert.Equal(t, "p3", items[1].ProductID)

	assert.Empty(t, res.Held("u1"), "no hold placed when validation fails")
}

func TestValidateStockStagePlacesAndReleasesHold(t *testing.T) {
	ctx := context.Background()
	res := reservation.NewMemoryStore()
	chk := &Context{
		UserID: "u1",
		CartItems: []store.CartLine{
			{ProductID: "p1", Quantity: 2, Product: store.Product{ID: "p1", Stock: 5, Active: true}},
		},
	}

	stage := NewValidateStockStage(res)
	require.NoError(t, stage.Execute(ctx, chk))
	require.Len(t, chk.Reservations, 1)
	assert.Equal(t, int64(2), res.Held("u1")[0].Quantity)

	require.NoError(t, stage.Compensate(ctx, chk))
	assert.Empty(t, res.Held("u1"))
}

func TestCalculateTotalsStage(t *testing.T) {
	chk := &Context{
		UserID: "u1",
		CartItems: []store.CartLine{
			{ProductID: "p1", Quantity: 1, Product: store.Product{Price: decimal.RequireFromString("100.00")}},
		},
	}

	stage := NewCalculateTotalsStage(pricing.NewCalculator(pricing.DefaultConfig()))
	require.NoError(t, stage.Execute(context.Background(), chk))
	require.NotNil(t, chk.Summary)
	assert.Equal(t, "135.00", chk.Summary.Total.StringFixed(2))
}

// fakeGateway implements gateway.Client in memory.
type fakeGateway struct {
	createErr  error
	lastParams gateway.SessionParams
	expired    []string
	counter    int
}

func (g *fakeGateway) CreateSession(_ context.Context, params gateway.SessionParams) (*gateway.Session, error) {
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.lastParams = params
	g.counter++
	return &gateway.Session{
		ID:                 "cs_test_1",
		URL:                "https://gateway.example/pay/cs_test_1",
		ExpiresAt:          time.Now().Add(30 * time.Minute).UTC(),
		PaymentMethodTypes: params.PaymentMethodTypes,
		ClientReferenceID:  params.ClientReferenceID,
		Metadata:           params.Metadata,
	}, nil
}

func (g *fakeGateway) RetrieveSession(context.Context, string) (*gateway.Session, error) {
	return nil, errors.New("not implemented")
}

func (g *fakeGateway) ExpireSession(_ context.Context, id string) error {
	g.expired = append(g.expired, id)
	return nil
}

func lineFor(price string, qty int64) store.CartLine {
	return store.CartLine{
		ProductID: "p1",
		Quantity:  qty,
		Product: store.Product{
			ID:     "p1",
			Name:   "Camiseta Tour",
			Price:  decimal.RequireFromString(price),
			Stock:  10,
			Active: true,
		},
	}
}

func TestCreateGatewaySessionStage(t *testing.T) {
	ctx := context.Background()

	newChk := func() *Context {
		summary, err := pricing.NewCalculator(pricing.DefaultConfig()).Calculate([]pricing.Line{
			{UnitPrice: decimal.RequireFromString("89.90"), Quantity: 2},
		})
		require.NoError(t, err)
		return &Context{
			UserID:    "u1",
			Request:   Request{PaymentMethod: MethodCard, Metadata: map[string]string{"source": "web"}},
			CartItems: []store.CartLine{lineFor("89.90", 2)},
			Summary:   &summary,
		}
	}

	t.Run("creates order then session and records ids", func(t *testing.T) {
		db := newTestStore(t)
		seedProduct(t, db, "p1", "Camiseta Tour", "89.90", 10, true)
		gw := &fakeGateway{}
		stage := NewCreateGatewaySessionStage(db, gw, breaker.New(breaker.DefaultConfig()), "https://laos.example")

		chk := newChk()
		require.NoError(t, stage.Execute(ctx, chk))

		assert.Equal(t, "cs_test_1", chk.GatewaySessionID)
		assert.NotEmpty(t, chk.OrderID)
		assert.Equal(t, "https://gateway.example/pay/cs_test_1", chk.SessionURL)

		order, err := db.GetOrder(ctx, chk.OrderID)
		require.NoError(t, err)
		assert.Equal(t, store.OrderPending, order.Status)
		assert.Equal(t, store.PaymentPending, order.PaymentStatus)
		assert.Equal(t, "cs_test_1", order.GatewaySessionID)

		// Metadata carries the computed total and item count as strings.
		assert.Equal(t, "226.77", gw.lastParams.Metadata["orderTotal"])
		assert.Equal(t, "1", gw.lastParams.Metadata["itemCount"])
		assert.Equal(t, "web", gw.lastParams.Metadata["source"])
		assert.Equal(t, chk.OrderID, gw.lastParams.ClientReferenceID)
		assert.Contains(t, gw.lastParams.SuccessURL, "{CHECKOUT_SESSION_ID}")
		assert.Equal(t, []string{"card"}, gw.lastParams.PaymentMethodTypes)
		require.Len(t, gw.lastParams.LineItems, 1)
		assert.Equal(t, int64(8990), gw.lastParams.LineItems[0].UnitAmount)
	})

	t.Run("request URLs override the defaults", func(t *testing.T) {
		db := newTestStore(t)
		seedProduct(t, db, "p1", "Camiseta Tour", "89.90", 10, true)
		gw := &fakeGateway{}
		stage := NewCreateGatewaySessionStage(db, gw, breaker.New(breaker.DefaultConfig()), "https://laos.example")

		chk := newChk()
		chk.Request.SuccessURL = "https://app.example/ok"
		chk.Request.CancelURL = "https://app.example/back"
		require.NoError(t, stage.Execute(ctx, chk))
		assert.Equal(t, "https://app.example/ok", gw.lastParams.SuccessURL)
		assert.Equal(t, "https://app.example/back", gw.lastParams.CancelURL)
	})

	t.Run("gateway failure surfaces as retryable gateway error", func(t *testing.T) {
		db := newTestStore(t)
		seedProduct(t, db, "p1", "Camiseta Tour", "89.90", 10, true)
		gw := &fakeGateway{createErr: errors.New("connection reset")}
		stage := NewCreateGatewaySessionStage(db, gw, breaker.New(breaker.DefaultConfig()), "https://laos.example")

		chk := newChk()
		err := stage.Execute(ctx, chk)
		appErr := apperr.From(err)
		assert.Equal(t, apperr.CodePaymentGateway, appErr.Code)
		assert.True(t, appErr.Retryable)
		assert.NotEmpty(t, chk.OrderID, "pending order committed before the gateway call")
	})

	t.Run("compensate cancels the order and expires the session", func(t *testing.T) {
		db := newTestStore(t)
		seedProduct(t, db, "p1", "Camiseta Tour", "89.90", 10, true)
		gw := &fakeGateway{}
		stage := NewCreateGatewaySessionStage(db, gw, breaker.New(breaker.DefaultConfig()), "https://laos.example")

		chk := newChk()
		require.NoError(t, stage.Execute(ctx, chk))
		require.NoError(t, stage.Compensate(ctx, chk))

		order, err := db.GetOrder(ctx, chk.OrderID)
		require.NoError(t, err)
		assert.Equal(t, store.OrderCanceled, order.Status)
		assert.Equal(t, []string{"cs_test_1"}, gw.expired)
	})

	t.Run("pix sets the expiry window", func(t *testing.T) {
		db := newTestStore(t)
		seedProduct(t, db, "p1", "Camiseta Tour", "89.90", 10, true)
		gw := &fakeGateway{}
		stage := NewCreateGatewaySessionStage(db, gw, breaker.New(breaker.DefaultConfig()), "https://laos.example")

		chk := newChk()
		chk.Request.PaymentMethod = MethodPix
		require.NoError(t, stage.Execute(ctx, chk))
		assert.Equal(t, []string{"pix"}, gw.lastParams.PaymentMethodTypes)
		assert.Equal(t, 30, gw.lastParams.PixExpiryMinutes)
	})
}
