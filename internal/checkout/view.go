package checkout

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/shopfront/internal/domain/promo"
	"github.com/xenking/shopfront/internal/domain/session"
	"github.com/xenking/shopfront/internal/pricing"
)

// View is what the checkout page shows.
type View struct {
	Breakdown    pricing.Breakdown
	ActivePromos []promo.Promo
	// Account is nil when loyalty is unsupported or the user is unknown.
	Account *Account
}

// Render prepares the checkout page. An applied promo that no longer
// validates against the live cart is removed with an error flash; a valid
// one keeps its locked discount.
func (s *Service) Render(ctx context.Context, st *session.State) (*View, error) {
	if st.Cart.IsEmpty() {
		return nil, ErrEmptyCart
	}

	if err := s.revalidateApplied(ctx, st); err != nil {
		return nil, err
	}

	promoDiscount, loyaltyDiscount := lockedDiscounts(st)
	v := &View{
		Breakdown: pricing.Calculate(st.Cart.Lines, promoDiscount, loyaltyDiscount),
	}

	active, err := s.activePromos.ListActive(ctx, s.now())
	if err != nil {
		return nil, errors.Wrap(err, "list active promos")
	}
	v.ActivePromos = active

	if st.UserID != 0 && s.supportsLoyalty {
		acc, err := s.LoyaltyAccount(ctx, st.UserID)
		if err != nil {
			return nil, errors.Wrap(err, "loyalty account")
		}
		v.Account = &acc
	}
	return v, nil
}

func (s *Service) revalidateApplied(ctx context.Context, st *session.State) error {
	applied := st.AppliedPromo
	if applied == nil {
		return nil
	}

	p, err := s.promos.Reload(ctx, applied.PromoID)
	if err == nil {
		_, err = s.promos.Evaluate(ctx, p, pricing.Subtotal(st.Cart.Lines), st.UserID)
	}
	if err == nil {
		return nil
	}

	var invalid *promo.InvalidError
	if !errors.As(err, &invalid) {
		return errors.Wrap(err, "revalidate promo")
	}

	zctx.From(ctx).Info("Applied promo no longer valid",
		zap.String("code", applied.Code),
		zap.String("reason", string(invalid.Reason)),
	)
	st.AppliedPromo = nil
	st.AddFlash(session.FlashError, fmt.Sprintf("Promo %s removed: %s", applied.Code, invalid.Error()))
	return nil
}

func lockedDiscounts(st *session.State) (promoDiscount, loyaltyDiscount decimal.Decimal) {
	if st.AppliedPromo != nil {
		promoDiscount = st.AppliedPromo.Discount
	}
	if st.LoyaltyRedemption != nil {
		loyaltyDiscount = st.LoyaltyRedemption.Discount
	}
	return promoDiscount, loyaltyDiscount
}
