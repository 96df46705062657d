// Package pricing turns priced lines, an optional discount effect, tax and
// shipping into order totals. It performs no I/O.
package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Places is the number of decimal places every monetary output is rounded to.
const Places = 2

// ErrNoLines is returned when Compute is called without any lines.
var ErrNoLines = errors.New("at least one line is required")

// Line is a single priced line of an order.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Effect is the monetary effect of an accepted discount. ShippingPortion is
// the part of Amount that is taken from shipping instead of merchandise.
type Effect struct {
	Amount          decimal.Decimal
	ShippingPortion decimal.Decimal
}

// Input bundles everything Compute needs.
type Input struct {
	Lines        []Line
	Effect       Effect
	Tax          decimal.Decimal
	ShippingCost decimal.Decimal
}

// Summary holds the computed totals. ShippingCost is the adjusted shipping.
type Summary struct {
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	Tax            decimal.Decimal
	ShippingCost   decimal.Decimal
	Total          decimal.Decimal
}

// LineSubtotal returns unitPrice × quantity.
func LineSubtotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// Subtotal sums the line subtotals.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(LineSubtotal(l.UnitPrice, l.Quantity))
	}
	return sum
}

// Compute prices an order.
//
// The shipping share of a discount reduces shipping and is not subtracted a
// second time from the total:
//
//	shipping = max(0, shippingCost - effect.ShippingPortion)
//	total    = subtotal + tax + shipping - (effect.Amount - effect.ShippingPortion)
//
// Every input is rounded to two places, half away from zero, before it is
// combined, so the returned parts always add up to Total. A negative total is
// returned as is; callers that need a floor must cap the effect beforehand.
func Compute(in Input) (Summary, error) {
	if len(in.Lines) == 0 {
		return Summary{}, ErrNoLines
	}

	subtotal := Subtotal(in.Lines).Round(Places)
	tax := in.Tax.Round(Places)
	amount := in.Effect.Amount.Round(Places)
	shippingPortion := in.Effect.ShippingPortion.Round(Places)

	shipping := in.ShippingCost.Round(Places).Sub(shippingPortion)
	if shipping.IsNegative() {
		shipping = decimal.Zero
	}
	merchandiseDiscount := amount.Sub(shippingPortion)

	return Summary{
		Subtotal:       subtotal,
		DiscountAmount: amount,
		Tax:            tax,
		ShippingCost:   shipping,
		Total:          subtotal.Add(tax).Add(shipping).Sub(merchandiseDiscount),
	}, nil
}
