package webhook

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arinellipar/laossuicide-sub000/internal/gateway"
	"github.com/arinellipar/laossuicide-sub000/internal/pricing"
	"github.com/arinellipar/laossuicide-sub000/internal/store"
	"github.com/arinellipar/laossuicide-sub000/internal/store/sqlite"
)

type fixture struct {
	db         *sqlite.Store
	reconciler *Reconciler
	orderID    string
}

// newFixture seeds a product, a cart line, and a PENDING order for user u1.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.UpsertProduct(ctx, store.Product{
		ID: "p1", Name: "Camiseta Tour", Price: decimal.RequireFromString("89.90"), Stock: 10, Active: true,
	}))
	require.NoError(t, db.AddCartLine(ctx, "u1", "p1", 2))

	summary, err := pricing.NewCalculator(pricing.DefaultConfig()).Calculate([]pricing.Line{
		{UnitPrice: decimal.RequireFromString("89.90"), Quantity: 2},
	})
	require.NoError(t, err)

	order, err := db.CreateOrder(ctx, store.CreateOrderParams{
		UserID:        "u1",
		PaymentMethod: "card",
		Items: []store.OrderItem{
			{ProductID: "p1", Name: "Camiseta Tour", UnitPrice: decimal.RequireFromString("89.90"), Quantity: 2},
		},
		Summary: summary,
	})
	require.NoError(t, err)

	return &fixture{db: db, reconciler: NewReconciler(db, db), orderID: order.ID}
}

func completedEvent(orderID string) gateway.Event {
	return gateway.Event{
		ID:   "evt_completed_1",
		Type: gateway.EventSessionCompleted,
		Session: &gateway.Session{
			ID:                 "cs_1",
			PaymentIntentID:    "pi_1",
			PaymentMethodTypes: []string{"card"},
			ClientReferenceID:  orderID,
			Shipping: &gateway.ShippingDetails{
				Name: "Ana Paula", Line1: "Rua Augusta 100", City: "São Paulo",
				State: "SP", PostalCode: "01304-000", Country: "BR",
			},
		},
	}
}

func TestSessionCompleted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.reconciler.Handle(ctx, completedEvent(f.orderID)))

	order, err := f.db.GetOrder(ctx, f.orderID)
	require.NoError(t, err)
	assert.Equal(t, store.OrderProcessing, order.Status)
	assert.Equal(t, store.PaymentSucceeded, order.PaymentStatus)
	assert.Equal(t, "card", order.PaymentMethod)
	assert.Equal(t, "pi_1", order.PaymentIntentID)
	require.NotNil(t, order.PaidAt)
	require.NotNil(t, order.Shipping)
	assert.Equal(t, "São Paulo", order.Shipping.City)

	// Stock decremented by the ordered quantity.
	assert.Equal(t, int64(8), productStock(t, f.db, "p1"))

	// Cart cleared.
	cart, err := f.db.CartLines(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, cart)
}

func TestSessionCompletedReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := completedEvent(f.orderID)

	require.NoError(t, f.reconciler.Handle(ctx, ev))
	require.NoError(t, f.reconciler.Handle(ctx, ev), "replay acknowledges without erroring")

	assert.Equal(t, int64(8), productStock(t, f.db, "p1"), "stock decremented exactly once")
}

// stalePrecheckStore simulates two deliveries of the same event racing past
// the replay pre-check before either has recorded the event id.
type stalePrecheckStore struct {
	store.Store
}

func (stalePrecheckStore) IsEventProcessed(context.Context, string) (bool, error) {
	return false, nil
}

func TestSessionCompletedConcurrentRedeliveryFinalizesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rec := NewReconciler(stalePrecheckStore{f.db}, f.db)
	ev := completedEvent(f.orderID)

	require.NoError(t, rec.Handle(ctx, ev))
	require.NoError(t, rec.Handle(ctx, ev), "losing delivery is acknowledged, not errored")

	order, err := f.db.GetOrder(ctx, f.orderID)
	require.NoError(t, err)
	assert.Equal(t, store.OrderProcessing, order.Status)
	assert.Equal(t, int64(8), productStock(t, f.db, "p1"), "stock decremented exactly once")
}

func TestSessionCompletedDerivesPixMethod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ev := completedEvent(f.orderID)
	ev.Session.PaymentMethodTypes = []string{"pix"}
	require.NoError(t, f.reconciler.Handle(ctx, ev))

	order, err := f.db.GetOrder(ctx, f.orderID)
	require.NoError(t, err)
	assert.Equal(t, "pix", order.PaymentMethod)
}

func TestSessionExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ev := gateway.Event{
		ID:   "evt_expired_1",
		Type: gateway.EventSessionExpired,
		Session: &gateway.Session{
			ID:                "cs_1",
			ClientReferenceID: f.orderID,
		},
	}
	require.NoError(t, f.reconciler.Handle(ctx, ev))

	order, err := f.db.GetOrder(ctx, f.orderID)
	require.NoError(t, err)
	assert.Equal(t, store.OrderCanceled, order.Status)
	assert.Equal(t, store.PaymentCanceled, order.PaymentStatus)
	require.NotNil(t, order.CanceledAt)

	// Nothing was ever committed: stock and cart untouched.
	assert.Equal(t, int64(10), productStock(t, f.db, "p1"))
	cart, err := f.db.CartLines(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, cart, 1)
}

func TestPaymentFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ev := gateway.Event{
		ID:   "evt_failed_1",
		Type: gateway.EventPaymentFailed,
		PaymentIntent: &gateway.PaymentIntent{
			ID:             "pi_1",
			FailureMessage: "card declined",
			Metadata:       map[string]string{"orderId": f.orderID},
		},
	}
	require.NoError(t, f.reconciler.Handle(ctx, ev))

	order, err := f.db.GetOrder(ctx, f.orderID)
	require.NoError(t, err)
	assert.Equal(t, store.PaymentFailed, order.PaymentStatus)
	assert.Equal(t, store.OrderPending, order.Status, "order status untouched by a payment failure")
}

func TestPaymentSucceededWithoutOrderRefIsIgnored(t *testing.T) {
	f := newFixture(t)

	ev := gateway.Event{
		ID:            "evt_orphan_1",
		Type:          gateway.EventPaymentSucceeded,
		PaymentIntent: &gateway.PaymentIntent{ID: "pi_orphan"},
	}
	assert.NoError(t, f.reconciler.Handle(context.Background(), ev))
}

func TestPaymentCanceled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ev := gateway.Event{
		ID:   "evt_canceled_1",
		Type: gateway.EventPaymentCanceled,
		PaymentIntent: &gateway.PaymentIntent{
			ID:       "pi_1",
			Metadata: map[string]string{"orderId": f.orderID},
		},
	}
	require.NoError(t, f.reconciler.Handle(ctx, ev))

	order, err := f.db.GetOrder(ctx, f.orderID)
	require.NoError(t, err)
	assert.Equal(t, store.OrderCanceled, order.Status)
	assert.Equal(t, store.PaymentCanceled, order.PaymentStatus)
	require.NotNil(t, order.CanceledAt)
}

func productStock(t *testing.T, db *sqlite.Store, productID string) int64 {
	t.Helper()
	p, err := db.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return p.Stock
}
