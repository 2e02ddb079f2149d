// Package sqlite provides the SQLite-backed implementation of store.Store
// and auditlog.Repository.
//
// WAL mode is enabled on Open so that the webhook reconciler can write
// while checkout requests read. Monetary columns are stored as TEXT and
// parsed back into decimals; SQLite's numeric affinity would silently turn
// them into floats otherwise.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arinellipar/laossuicide-sub000/internal/auditlog"
	"github.com/arinellipar/laossuicide-sub000/internal/pricing"
	"github.com/arinellipar/laossuicide-sub000/internal/store"

	// Pure-Go SQLite driver; no CGO needed in the Docker build.
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
    id      TEXT PRIMARY KEY,
    name    TEXT NOT NULL,
    price   TEXT NOT NULL,
    stock   INTEGER NOT NULL DEFAULT 0,
    active  INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS cart_items (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id     TEXT NOT NULL,
    product_id  TEXT NOT NULL REFERENCES products(id),
    quantity    INTEGER NOT NULL,
    UNIQUE(user_id, product_id)
);

CREATE TABLE IF NOT EXISTS orders (
    id                  TEXT PRIMARY KEY,
    user_id             TEXT NOT NULL,
    status              TEXT NOT NULL,
    payment_status      TEXT NOT NULL,
    payment_method      TEXT NOT NULL DEFAULT '',
    gateway_session_id  TEXT NOT NULL DEFAULT '',
    payment_intent_id   TEXT NOT NULL DEFAULT '',
    subtotal            TEXT NOT NULL,
    tax                 TEXT NOT NULL,
    shipping            TEXT NOT NULL,
    discount            TEXT NOT NULL,
    total               TEXT NOT NULL,
    ship_name           TEXT NOT NULL DEFAULT '',
    ship_line1          TEXT NOT NULL DEFAULT '',
    ship_line2          TEXT NOT NULL DEFAULT '',
    ship_city           TEXT NOT NULL DEFAULT '',
    ship_state          TEXT NOT NULL DEFAULT '',
    ship_postal_code    TEXT NOT NULL DEFAULT '',
    ship_country        TEXT NOT NULL DEFAULT '',
    paid_at             TEXT,
    canceled_at         TEXT,
    created_at          TEXT NOT NULL,
    updated_at          TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_orders_pending ON orders(status, gateway_session_id, created_at);

CREATE TABLE IF NOT EXISTS order_items (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id    TEXT NOT NULL REFERENCES orders(id),
    product_id  TEXT NOT NULL,
    name        TEXT NOT NULL,
    unit_price  TEXT NOT NULL,
    quantity    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id);

CREATE TABLE IF NOT EXISTS payment_logs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id    TEXT NOT NULL DEFAULT '',
    event_id    TEXT NOT NULL DEFAULT '',
    kind        TEXT NOT NULL,
    detail      TEXT NOT NULL DEFAULT '',
    payload     TEXT,
    trace_id    TEXT NOT NULL DEFAULT '',
    span_id     TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_payment_logs_order_id ON payment_logs(order_id, created_at);
CREATE INDEX IF NOT EXISTS idx_payment_logs_trace_id ON payment_logs(trace_id);

CREATE TABLE IF NOT EXISTS processed_events (
    event_id      TEXT PRIMARY KEY,
    processed_at  TEXT NOT NULL
);
`

const timeLayout = "2006-01-02T15:04:05.999999999Z"

// Store is the SQLite implementation. It also implements
// auditlog.Repository via Save.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// SQLite performs best with a single writer connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CartLines(ctx context.Context, userID string) ([]store.CartLine, error) {
	const q = `
		SELECT c.user_id, c.product_id, c.quantity, p.name, p.price, p.stock, p.active
		FROM   cart_items c
		JOIN   products p ON p.id = c.product_id
		WHERE  c.user_id = ?
		ORDER  BY c.id`

	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: cart lines for %q: %w", userID, err)
	}
	defer rows.Close()

	var lines []store.CartLine
	for rows.Next() {
		var l store.CartLine
		var price string
		var active int
		if err := rows.Scan(&l.UserID, &l.ProductID, &l.Quantity, &l.Product.Name, &price, &l.Product.Stock, &active); err != nil {
			return nil, fmt.Errorf("sqlite: scan cart line: %w", err)
		}
		l.Product.ID = l.ProductID
		l.Product.Active = active != 0
		if l.Product.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("sqlite: parse price %q: %w", price, err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *Store) UpsertProduct(ctx context.Context, p store.Product) error {
	const q = `
		INSERT INTO products (id, name, price, stock, active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, price = excluded.price,
			stock = excluded.stock, active = excluded.active`

	_, err := s.db.ExecContext(ctx, q, p.ID, p.Name, p.Price.String(), p.Stock, boolToInt(p.Active))
	if err != nil {
		return fmt.Errorf("sqlite: upsert product %q: %w", p.ID, err)
	}
	return nil
}

// GetProduct reads one product row.
func (s *Store) GetProduct(ctx context.Context, id string) (*store.Product, error) {
	const q = `SELECT id, name, price, stock, active FROM products WHERE id = ?`

	var p store.Product
	var price string
	var active int
	err := s.db.QueryRowContext(ctx, q, id).Scan(&p.ID, &p.Name, &price, &p.Stock, &active)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sqlite: product %q: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get product %q: %w", id, err)
	}
	p.Active = active != 0
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("sqlite: parse price %q: %w", price, err)
	}
	return &p, nil
}

func (s *Store) AddCartLine(ctx context.Context, userID, productID string, quantity int64) error {
	const q = `
		INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, product_id) DO UPDATE SET
			quantity = quantity + excluded.quantity`

	_, err := s.db.ExecContext(ctx, q, userID, productID, quantity)
	if err != nil {
		return fmt.Errorf("sqlite: add cart line %q/%q: %w", userID, productID, err)
	}
	return nil
}

func (s *Store) CreateOrder(ctx context.Context, params store.CreateOrderParams) (*store.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin create order: %w", err)
	}
	defer tx.Rollback()

	// Re-check every product referenced by the order still exists; the
	// cart could have outlived a catalog change.
	for _, item := range params.Items {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM products WHERE id = ?`, item.ProductID).Scan(&one)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("sqlite: product %q no longer exists: %w", item.ProductID, store.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("sqlite: validate product %q: %w", item.ProductID, err)
		}
	}

	now := time.Now().UTC()
	order := &store.Order{
		ID:            uuid.NewString(),
		UserID:        params.UserID,
		Status:        store.OrderPending,
		PaymentStatus: store.PaymentPending,
		PaymentMethod: params.PaymentMethod,
		Summary:       params.Summary,
		Items:         params.Items,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	const insertOrder = `
		INSERT INTO orders
			(id, user_id, status, payment_status, payment_method,
			 subtotal, tax, shipping, discount, total, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = tx.ExecContext(ctx, insertOrder,
		order.ID, order.UserID, string(order.Status), string(order.PaymentStatus), order.PaymentMethod,
		params.Summary.Subtotal.String(), params.Summary.Tax.String(), params.Summary.Shipping.String(),
		params.Summary.Discount.String(), params.Summary.Total.String(),
		now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: insert order: %w", err)
	}

	const insertItem = `
		INSERT INTO order_items (order_id, product_id, name, unit_price, quantity)
		VALUES (?, ?, ?, ?, ?)`

	for _, item := range params.Items {
		if _, err := tx.ExecContext(ctx, insertItem, order.ID, item.ProductID, item.Name, item.UnitPrice.String(), item.Quantity); err != nil {
			return nil, fmt.Errorf("sqlite: insert order item %q: %w", item.ProductID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: commit create order: %w", err)
	}
	return order, nil
}

func (s *Store) AttachGatewaySession(ctx context.Context, orderID, sessionID string) error {
	const q = `UPDATE orders SET gateway_session_id = ?, updated_at = ? WHERE id = ?`
	return s.execOne(ctx, q, "attach session", sessionID, time.Now().UTC().Format(timeLayout), orderID)
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*store.Order, error) {
	const q = `
		SELECT id, user_id, status, payment_status, payment_method,
		       gateway_session_id, payment_intent_id,
		       subtotal, tax, shipping, discount, total,
		       ship_name, ship_line1, ship_line2, ship_city, ship_state,
		       ship_postal_code, ship_country,
		       paid_at, canceled_at, created_at, updated_at
		FROM   orders WHERE id = ?`

	row := s.db.QueryRowContext(ctx, q, orderID)

	var o store.Order
	var sub, tax, ship, disc, total string
	var addr store.ShippingAddress
	var paidAt, canceledAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&o.ID, &o.UserID, &o.Status, &o.PaymentStatus, &o.PaymentMethod,
		&o.GatewaySessionID, &o.PaymentIntentID,
		&sub, &tax, &ship, &disc, &total,
		&addr.Name, &addr.Line1, &addr.Line2, &addr.City, &addr.State,
		&addr.PostalCode, &addr.Country,
		&paidAt, &canceledAt, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sqlite: order %q: %w", orderID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get order %q: %w", orderID, err)
	}

	if o.Summary, err = parseSummary(sub, tax, ship, disc, total); err != nil {
		return nil, err
	}
	if addr != (store.ShippingAddress{}) {
		o.Shipping = &addr
	}
	if o.PaidAt, err = parseNullTime(paidAt); err != nil {
		return nil, err
	}
	if o.CanceledAt, err = parseNullTime(canceledAt); err != nil {
		return nil, err
	}
	if o.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("sqlite: parse created_at: %w", err)
	}
	if o.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("sqlite: parse updated_at: %w", err)
	}

	if o.Items, err = s.orderItems(ctx, orderID); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) orderItems(ctx context.Context, orderID string) ([]store.OrderItem, error) {
	const q = `
		SELECT product_id, name, unit_price, quantity
		FROM   order_items WHERE order_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: order items for %q: %w", orderID, err)
	}
	defer rows.Close()

	var items []store.OrderItem
	for rows.Next() {
		var it store.OrderItem
		var price string
		if err := rows.Scan(&it.ProductID, &it.Name, &price, &it.Quantity); err != nil {
			return nil, fmt.Errorf("sqlite: scan order item: %w", err)
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("sqlite: parse unit price %q: %w", price, err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// FinalizeOrder applies a completed gateway session in one transaction:
// status flip, stock decrement per line, cart clear, audit row. A partial
// application (stock decremented but cart kept) would corrupt inventory
// accounting, so everything commits together or not at all.
func (s *Store) FinalizeOrder(ctx context.Context, params store.FinalizeOrderParams) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin finalize: %w", err)
	}
	defer tx.Rollback()

	// Claim the event id first. Two deliveries of the same event can both
	// pass the reconciler's pre-check; the primary key makes sure only one
	// of them applies the stock decrement and cart clear.
	if params.EventID != "" {
		claimed, err := claimEvent(ctx, tx, params.EventID)
		if err != nil {
			return err
		}
		if !claimed {
			return fmt.Errorf("sqlite: finalize order %q: %w", params.OrderID, store.ErrDuplicateEvent)
		}
	}

	var userID string
	err = tx.QueryRowContext(ctx, `SELECT user_id FROM orders WHERE id = ?`, params.OrderID).Scan(&userID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("sqlite: order %q: %w", params.OrderID, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("sqlite: load order %q: %w", params.OrderID, err)
	}

	now := time.Now().UTC().Format(timeLayout)
	addr := params.Shipping
	if addr == nil {
		addr = &store.ShippingAddress{}
	}

	const updateOrder = `
		UPDATE orders SET
			status = ?, payment_status = ?, payment_method = ?,
			payment_intent_id = ?, paid_at = ?, updated_at = ?,
			ship_name = ?, ship_line1 = ?, ship_line2 = ?, ship_city = ?,
			ship_state = ?, ship_postal_code = ?, ship_country = ?
		WHERE id = ?`

	_, err = tx.ExecContext(ctx, updateOrder,
		string(store.OrderProcessing), string(store.PaymentSucceeded), params.PaymentMethod,
		params.PaymentIntentID, params.PaidAt.UTC().Format(timeLayout), now,
		addr.Name, addr.Line1, addr.Line2, addr.City,
		addr.State, addr.PostalCode, addr.Country,
		params.OrderID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: finalize order %q: %w", params.OrderID, err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT product_id, quantity FROM order_items WHERE order_id = ?`, params.OrderID)
	if err != nil {
		return fmt.Errorf("sqlite: load order items: %w", err)
	}
	type line struct {
		productID string
		qty       int64
	}
	var lines []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.productID, &l.qty); err != nil {
			rows.Close()
			return fmt.Errorf("sqlite: scan order item: %w", err)
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterate order items: %w", err)
	}

	for _, l := range lines {
		if _, err := tx.ExecContext(ctx, `UPDATE products SET stock = stock - ? WHERE id = ?`, l.qty, l.productID); err != nil {
			return fmt.Errorf("sqlite: decrement stock for %q: %w", l.productID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sqlite: clear cart for %q: %w", userID, err)
	}

	if params.Audit != nil {
		if err := saveEntry(ctx, tx, params.Audit); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit finalize: %w", err)
	}
	return nil
}

func (s *Store) CancelOrder(ctx context.Context, orderID string) error {
	now := time.Now().UTC().Format(timeLayout)
	const q = `
		UPDATE orders SET status = ?, payment_status = ?, canceled_at = ?, updated_at = ?
		WHERE id = ?`
	return s.execOne(ctx, q, "cancel order",
		string(store.OrderCanceled), string(store.PaymentCanceled), now, now, orderID)
}

func (s *Store) MarkPaymentFailed(ctx context.Context, orderID string) error {
	const q = `UPDATE orders SET payment_status = ?, updated_at = ? WHERE id = ?`
	return s.execOne(ctx, q, "mark payment failed",
		string(store.PaymentFailed), time.Now().UTC().Format(timeLayout), orderID)
}

func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM processed_events WHERE event_id = ?`, eventID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: check event %q: %w", eventID, err)
	}
	return true, nil
}

// MarkEventProcessed records the event id if it is not already there; a
// finalize transaction may have claimed it earlier, which is fine.
func (s *Store) MarkEventProcessed(ctx context.Context, eventID string) error {
	if _, err := claimEvent(ctx, s.db, eventID); err != nil {
		return err
	}
	return nil
}

// claimEvent inserts the event id, reporting whether this caller won the
// row. Works on either the bare connection or a transaction.
func claimEvent(ctx context.Context, db execer, eventID string) (bool, error) {
	const q = `INSERT OR IGNORE INTO processed_events (event_id, processed_at) VALUES (?, ?)`
	res, err := db.ExecContext(ctx, q, eventID, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return false, fmt.Errorf("sqlite: claim event %q: %w", eventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: claim event %q: %w", eventID, err)
	}
	return n > 0, nil
}

func (s *Store) SweepAbandonedOrders(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-ttl).Format(timeLayout)
	now := time.Now().UTC().Format(timeLayout)
	const q = `
		UPDATE orders SET status = ?, payment_status = ?, canceled_at = ?, updated_at = ?
		WHERE status = ? AND gateway_session_id = '' AND created_at < ?`

	res, err := s.db.ExecContext(ctx, q,
		string(store.OrderCanceled), string(store.PaymentCanceled), now, now,
		string(store.OrderPending), cutoff)
	if err != nil {
		return 0, fmt.Errorf("sqlite: sweep abandoned orders: %w", err)
	}
	return res.RowsAffected()
}

// Save implements auditlog.Repository.
func (s *Store) Save(ctx context.Context, entry *auditlog.Entry) error {
	return saveEntry(ctx, s.db, entry)
}

// execer covers *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveEntry(ctx context.Context, db execer, entry *auditlog.Entry) error {
	const q = `
		INSERT INTO payment_logs
			(order_id, event_id, kind, detail, payload, trace_id, span_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.ExecContext(ctx, q,
		entry.OrderID, entry.EventID, entry.Kind, entry.Detail,
		nullableString(entry.Payload), entry.TraceID, entry.SpanID,
		entry.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save payment log (%s): %w", entry.Kind, err)
	}
	return nil
}

func (s *Store) execOne(ctx context.Context, query, op string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: %s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("sqlite: %s: %w", op, store.ErrNotFound)
	}
	return nil
}

func parseSummary(sub, tax, ship, disc, total string) (pricing.Summary, error) {
	var sum pricing.Summary
	var err error
	fields := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{sub, &sum.Subtotal}, {tax, &sum.Tax}, {ship, &sum.Shipping},
		{disc, &sum.Discount}, {total, &sum.Total},
	}
	for _, f := range fields {
		if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
			return pricing.Summary{}, fmt.Errorf("sqlite: parse amount %q: %w", f.raw, err)
		}
	}
	return sum, nil
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return nil, fmt.Errorf("sqlite: parse time %q: %w", v.String, err)
	}
	return &t, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
