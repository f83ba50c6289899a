package promo

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Discount computes the discount p grants on subtotal. The result is rounded
// to cents and always lies in [0, subtotal].
func Discount(p *Promo, subtotal decimal.Decimal) (decimal.Decimal, error) {
	var amount decimal.Decimal
	switch p.Kind {
	case KindPercent:
		amount = subtotal.Mul(p.Amount).Div(hundred)
	case KindFixed:
		amount = p.Amount
	default:
		return decimal.Zero, errors.Errorf("unsupported promo kind: %q", p.Kind)
	}
	return clamp(amount, subtotal).Round(2), nil
}

func clamp(amount, subtotal decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() || subtotal.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(amount, subtotal)
}
