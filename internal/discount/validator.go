// Package discount decides whether a discount applies to an order and what
// its monetary effect is.
package discount

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/apperror"
	"storefront/internal/models"
	"storefront/internal/pricing"
)

// Reason explains why a discount was refused.
type Reason string

const (
	ReasonInvalidCode    Reason = "INVALID_CODE"
	ReasonInactive       Reason = "INACTIVE"
	ReasonExpired        Reason = "EXPIRED"
	ReasonMaxUsesReached Reason = "MAX_USES_REACHED"
	ReasonBelowMinimum   Reason = "BELOW_MINIMUM"
)

// Context is the order-side input of a validation.
type Context struct {
	Now          time.Time
	Subtotal     decimal.Decimal
	ShippingCost decimal.Decimal
}

// Policy holds the configurable knobs of discount evaluation.
type Policy struct {
	// CapFixedToSubtotal limits FIXED discounts to the order subtotal.
	CapFixedToSubtotal bool
}

// Result is the outcome of Validate. Effect is meaningful only when Valid.
type Result struct {
	Valid    bool
	Reason   Reason
	Message  string
	Discount *models.Discount
	Effect   pricing.Effect
}

func refuse(d *models.Discount, reason Reason, msg string) Result {
	return Result{Reason: reason, Message: msg, Discount: d}
}

// Validate checks d against ctx. Checks run in a fixed order and the first
// failing one decides the reason. A nil d is reported as INVALID_CODE.
func Validate(d *models.Discount, ctx Context, policy Policy) Result {
	if d == nil {
		return refuse(nil, ReasonInvalidCode, "discount code not found")
	}
	if !d.IsActive {
		return refuse(d, ReasonInactive, "discount code is not active")
	}
	if d.ExpiresAt != nil && d.ExpiresAt.Before(ctx.Now) {
		return refuse(d, ReasonExpired, "discount code has expired")
	}
	if d.MaxUses != nil && d.CurrentUses >= *d.MaxUses {
		return refuse(d, ReasonMaxUsesReached, "discount code has reached maximum uses")
	}
	if d.MinOrderTotal != nil && ctx.Subtotal.LessThan(*d.MinOrderTotal) {
		return refuse(d, ReasonBelowMinimum,
			fmt.Sprintf("minimum order total of %s required", d.MinOrderTotal.StringFixed(2)))
	}

	return Result{
		Valid:    true,
		Discount: d,
		Effect:   EffectOf(d, ctx, policy),
	}
}

// EffectOf computes the effect of d assuming it is applicable.
func EffectOf(d *models.Discount, ctx Context, policy Policy) pricing.Effect {
	switch d.Type {
	case models.DiscountPercent:
		return pricing.Effect{Amount: ctx.Subtotal.Mul(d.Value).Div(decimal.NewFromInt(100))}
	case models.DiscountFixed:
		amount := d.Value
		if policy.CapFixedToSubtotal && amount.GreaterThan(ctx.Subtotal) {
			amount = ctx.Subtotal
		}
		return pricing.Effect{Amount: amount}
	case models.DiscountFreeShipping:
		return pricing.Effect{Amount: ctx.ShippingCost, ShippingPortion: ctx.ShippingCost}
	}
	return pricing.Effect{}
}

// Err converts a refused result into the error that rejects an order.
// It returns nil for a valid result.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	code := apperror.CodeInvalidDiscount
	switch r.Reason {
	case ReasonInactive:
		code = apperror.CodeInactiveDiscount
	case ReasonExpired:
		code = apperror.CodeExpiredDiscount
	case ReasonMaxUsesReached:
		code = apperror.CodeDiscountMaxUses
	case ReasonBelowMinimum:
		code = apperror.CodeDiscountBelowMinimum
	}
	return apperror.New(apperror.KindRejected, code, r.Message).
		WithDetails(map[string]any{"reason": string(r.Reason)})
}
