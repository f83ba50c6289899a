// Package pricing turns a cart snapshot and its locked discounts into the
// amounts charged and the points earned. It performs no I/O.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/shopfront/internal/domain/cart"
	"github.com/xenking/shopfront/internal/domain/loyalty"
)

// Breakdown is the result of a pricing calculation.
type Breakdown struct {
	Subtotal        decimal.Decimal
	PromoDiscount   decimal.Decimal
	LoyaltyDiscount decimal.Decimal
	FinalTotal      decimal.Decimal
	EarnedPoints    int64
}

// Subtotal sums UnitPrice × Quantity over the cart snapshot.
func Subtotal(lines []cart.Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Total())
	}
	return sum.Round(2)
}

// Calculate computes the breakdown. Discounts are taken as given: the promo
// discount is the value locked when the promo was applied.
func Calculate(lines []cart.Line, promoDiscount, loyaltyDiscount decimal.Decimal) Breakdown {
	subtotal := Subtotal(lines)
	promoDiscount = nonNegative(promoDiscount).Round(2)
	loyaltyDiscount = nonNegative(loyaltyDiscount).Round(2)

	final := subtotal.Sub(promoDiscount).Sub(loyaltyDiscount)
	final = nonNegative(final).Round(2)

	return Breakdown{
		Subtotal:        subtotal,
		PromoDiscount:   promoDiscount,
		LoyaltyDiscount: loyaltyDiscount,
		FinalTotal:      final,
		EarnedPoints:    loyalty.PointsForSpend(final),
	}
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
