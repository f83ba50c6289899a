package checkout

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/shopfront/internal/domain/promo"
	"github.com/xenking/shopfront/internal/domain/session"
	"github.com/xenking/shopfront/internal/pricing"
)

// ApplyPromo validates code against the current cart and binds it as the
// applied promo. The session is untouched on failure.
func (s *Service) ApplyPromo(ctx context.Context, st *session.State, code string) (promo.Application, error) {
	app, err := s.evaluateCode(ctx, st, code)
	if err != nil {
		return promo.Application{}, err
	}
	st.AppliedPromo = &app
	return app, nil
}

// PreviewPromo validates code and stores it in the preview slot, replacing
// any earlier preview. Totals are unaffected until it is confirmed.
func (s *Service) PreviewPromo(ctx context.Context, st *session.State, code string) (promo.Application, error) {
	app, err := s.evaluateCode(ctx, st, code)
	if err != nil {
		return promo.Application{}, err
	}
	st.PreviewPromo = &app
	return app, nil
}

// ConfirmPromo re-validates the previewed promo against the current cart,
// since the cart may have changed, and promotes it to the applied slot. A
// preview that no longer validates is discarded.
func (s *Service) ConfirmPromo(ctx context.Context, st *session.State) (promo.Application, error) {
	if st.PreviewPromo == nil {
		return promo.Application{}, ErrNoPreview
	}

	p, err := s.promos.Reload(ctx, st.PreviewPromo.PromoID)
	if err == nil {
		var app promo.Application
		app, err = s.promos.Evaluate(ctx, p, pricing.Subtotal(st.Cart.Lines), st.UserID)
		if err == nil {
			st.AppliedPromo = &app
			st.PreviewPromo = nil
			return app, nil
		}
	}
	if errors.Is(err, promo.ErrInvalid) {
		st.PreviewPromo = nil
	}
	return promo.Application{}, err
}

// CancelPromo discards the preview. It reports whether one was pending.
func (s *Service) CancelPromo(st *session.State) bool {
	had := st.PreviewPromo != nil
	st.PreviewPromo = nil
	return had
}

// RemoveAppliedPromo unbinds the applied promo and returns its code, or ""
// when none was applied.
func (s *Service) RemoveAppliedPromo(st *session.State) string {
	if st.AppliedPromo == nil {
		return ""
	}
	code := st.AppliedPromo.Code
	st.AppliedPromo = nil
	return code
}

func (s *Service) evaluateCode(ctx context.Context, st *session.State, code string) (promo.Application, error) {
	p, err := s.promos.Lookup(ctx, code)
	if err != nil {
		return promo.Application{}, err
	}
	return s.promos.Evaluate(ctx, p, pricing.Subtotal(st.Cart.Lines), st.UserID)
}
