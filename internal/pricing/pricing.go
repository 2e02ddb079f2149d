// Package pricing computes checkout order totals.
//
// All arithmetic is done with decimal values end-to-end; floats never touch
// a monetary amount. Each summary field is rounded to two decimal places
// independently, which can make Total differ by a cent from summing the
// rounded parts. That is the published behavior and callers depend on it.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/arinellipar/laossuicide-sub000/internal/apperr"
)

// Line is one cart line as seen by the calculator.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int64
}

// Summary holds the five monetary components of an order, each rounded
// to two decimal places.
type Summary struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// Config holds the pricing rules. Amounts are in the store currency.
type Config struct {
	TaxRate          decimal.Decimal
	FreeShippingOver decimal.Decimal
	FlatShipping     decimal.Decimal
	MinOrder         decimal.Decimal
	MaxOrder         decimal.Decimal
}

// DefaultConfig returns the production pricing rules: 15% tax, flat 20.00
// shipping waived at 200.00, order value bounded to [10.00, 100000.00].
func DefaultConfig() Config {
	return Config{
		TaxRate:          decimal.NewFromFloat(0.15),
		FreeShippingOver: decimal.NewFromInt(200),
		FlatShipping:     decimal.NewFromInt(20),
		MinOrder:         decimal.NewFromInt(10),
		MaxOrder:         decimal.NewFromInt(100000),
	}
}

// Calculator computes order summaries. It is stateless and safe for
// concurrent use.
type Calculator struct {
	cfg Config
}

func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// Calculate computes the order summary for the given lines and enforces
// the min/max order-value bounds (both inclusive).
func (c *Calculator) Calculate(lines []Line) (Summary, error) {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity)))
	}

	tax := subtotal.Mul(c.cfg.TaxRate)

	shipping := c.cfg.FlatShipping
	if subtotal.GreaterThanOrEqual(c.cfg.FreeShippingOver) {
		shipping = decimal.Zero
	}

	discount := decimal.Zero // coupon support is reserved, always zero

	total := subtotal.Add(tax).Add(shipping).Sub(discount)

	// Each field rounds on its own; Total is rounded from the unrounded
	// components, not re-summed from the rounded ones.
	s := Summary{
		Subtotal: subtotal.Round(2),
		Tax:      tax.Round(2),
		Shipping: shipping.Round(2),
		Discount: discount.Round(2),
		Total:    total.Round(2),
	}

	if s.Total.LessThan(c.cfg.MinOrder) || s.Total.GreaterThan(c.cfg.MaxOrder) {
		return Summary{}, apperr.InvalidOrderValue(
			s.Total.StringFixed(2),
			c.cfg.MinOrder.StringFixed(2),
			c.cfg.MaxOrder.StringFixed(2),
		)
	}

	return s, nil
}
