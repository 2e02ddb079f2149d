// Package store defines the persistence port for the checkout core: carts,
// products, orders, the payment audit log, and processed webhook events.
// The checkout pipeline and the webhook reconciler depend on this
// abstraction, not on SQLite directly.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arinellipar/laossuicide-sub000/internal/auditlog"
	"github.com/arinellipar/laossuicide-sub000/internal/pricing"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicateEvent is returned when a webhook event id has already been
// recorded, meaning another delivery of the same event won the race.
var ErrDuplicateEvent = errors.New("store: event already processed")

// OrderStatus is the fulfilment lifecycle of a persisted order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderShipped    OrderStatus = "SHIPPED"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderCanceled   OrderStatus = "CANCELED"
)

// PaymentStatus is the payment lifecycle of a persisted order.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentCanceled  PaymentStatus = "CANCELED"
)

// Product is a sellable item with its current stock.
type Product struct {
	ID     string
	Name   string
	Price  decimal.Decimal
	Stock  int64
	Active bool
}

// CartLine is one row of a user's cart joined with its product snapshot.
type CartLine struct {
	UserID    string
	ProductID string
	Quantity  int64
	Product   Product
}

// OrderItem is one line of a persisted order with the price frozen at
// checkout time.
type OrderItem struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int64
}

// ShippingAddress is the address copied from the gateway session.
type ShippingAddress struct {
	Name       string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Order is the durable order entity. After creation its status fields are
// mutated only by the webhook reconciler.
type Order struct {
	ID               string
	UserID           string
	Status           OrderStatus
	PaymentStatus    PaymentStatus
	PaymentMethod    string
	GatewaySessionID string
	PaymentIntentID  string
	Summary          pricing.Summary
	Items            []OrderItem
	Shipping         *ShippingAddress
	PaidAt           *time.Time
	CanceledAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CreateOrderParams describes a new PENDING order.
type CreateOrderParams struct {
	UserID        string
	PaymentMethod string
	Items         []OrderItem
	Summary       pricing.Summary
}

// FinalizeOrderParams applies a successful gateway session to an order.
type FinalizeOrderParams struct {
	OrderID         string
	PaymentIntentID string
	PaymentMethod   string
	Shipping        *ShippingAddress
	PaidAt          time.Time
	// EventID, when set, is claimed in processed_events inside the same
	// transaction. A concurrent delivery of the same event loses the claim
	// and gets ErrDuplicateEvent with none of the other effects applied.
	EventID string
	// Audit is appended inside the same transaction as the status change,
	// stock decrement, and cart clear.
	Audit *auditlog.Entry
}

// Store is the transactional persistence port.
type Store interface {
	// Cart and catalog.
	CartLines(ctx context.Context, userID string) ([]CartLine, error)
	UpsertProduct(ctx context.Context, p Product) error
	// AddCartLine upserts on the (user, product) composite key, summing
	// quantities.
	AddCartLine(ctx context.Context, userID, productID string, quantity int64) error

	// Order lifecycle. CreateOrder validates every product still exists and
	// inserts the PENDING order and its lines in one transaction; the
	// gateway call happens after commit, and AttachGatewaySession records
	// the resulting session id in a second, separate write.
	CreateOrder(ctx context.Context, params CreateOrderParams) (*Order, error)
	AttachGatewaySession(ctx context.Context, orderID, sessionID string) error
	GetOrder(ctx context.Context, orderID string) (*Order, error)

	// FinalizeOrder runs the session-completed transaction: event id
	// claimed, order to PROCESSING/SUCCEEDED, stock decremented per line,
	// cart cleared, audit row appended. All or nothing; a lost event claim
	// returns ErrDuplicateEvent.
	FinalizeOrder(ctx context.Context, params FinalizeOrderParams) error
	// CancelOrder sets status and payment status to CANCELED and stamps
	// canceledAt.
	CancelOrder(ctx context.Context, orderID string) error
	// MarkPaymentFailed sets the payment status to FAILED.
	MarkPaymentFailed(ctx context.Context, orderID string) error

	// Webhook idempotency.
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID string) error

	// SweepAbandonedOrders cancels PENDING orders that never got a gateway
	// session attached and are older than ttl. Returns how many it touched.
	SweepAbandonedOrders(ctx context.Context, ttl time.Duration) (int64, error)
}
