package promo

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Evaluator decides whether a promo may be used now and computes its
// discount. Apply, preview, confirm and the checkout render all go through
// Evaluate.
type Evaluator struct {
	promos      Repository
	redemptions RedemptionCounter
	now         func() time.Time
}

// NewEvaluator creates an Evaluator backed by the given repositories.
func NewEvaluator(promos Repository, redemptions RedemptionCounter) *Evaluator {
	return &Evaluator{promos: promos, redemptions: redemptions, now: time.Now}
}

// Lookup resolves a user-entered code. A missing promo is reported as an
// InvalidError so callers can surface it directly.
func (e *Evaluator) Lookup(ctx context.Context, code string) (*Promo, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &InvalidError{Reason: ReasonNotFound}
	}
	p, err := e.promos.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &InvalidError{Reason: ReasonNotFound, Code: code}
		}
		return nil, errors.Wrap(err, "find promo")
	}
	return p, nil
}

// Reload re-reads a promo previously bound into the session.
func (e *Evaluator) Reload(ctx context.Context, id int64) (*Promo, error) {
	p, err := e.promos.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &InvalidError{Reason: ReasonNotFound}
		}
		return nil, errors.Wrap(err, "find promo")
	}
	return p, nil
}

// Evaluate runs the validation rules in order, stopping at the first
// failure, and returns the discount on success. userID of zero skips the
// per-user check.
func (e *Evaluator) Evaluate(ctx context.Context, p *Promo, subtotal decimal.Decimal, userID int64) (Application, error) {
	if p == nil || !p.Active {
		return Application{}, &InvalidError{Reason: ReasonNotFound}
	}
	if err := checkWindow(p, e.now()); err != nil {
		return Application{}, err
	}
	if p.MinSubtotal.IsPositive() && subtotal.LessThan(p.MinSubtotal) {
		return Application{}, &InvalidError{Reason: ReasonBelowMinimum, Code: p.Code, MinSubtotal: p.MinSubtotal}
	}
	if err := checkTotalUses(p); err != nil {
		return Application{}, err
	}
	if p.PerUserLimit > 0 && userID != 0 {
		used, err := e.redemptions.RedemptionCount(ctx, p.ID, userID)
		if err != nil {
			return Application{}, errors.Wrap(err, "count redemptions")
		}
		if used >= p.PerUserLimit {
			return Application{}, &InvalidError{Reason: ReasonPerUserLimit, Code: p.Code}
		}
	}

	discount, err := Discount(p, subtotal)
	if err != nil {
		return Application{}, err
	}
	return Application{PromoID: p.ID, Code: p.Code, Discount: discount}, nil
}

// Redeemable is the commit-time recheck: the promo must still be inside its
// window and below its global usage cap. Minimum spend and per-user limits
// are not rechecked here.
func Redeemable(p *Promo, now time.Time) bool {
	if p == nil {
		return false
	}
	return checkWindow(p, now) == nil && checkTotalUses(p) == nil
}

func checkWindow(p *Promo, now time.Time) error {
	if p.StartsAt != nil && now.Before(*p.StartsAt) {
		return &InvalidError{Reason: ReasonNotStarted, Code: p.Code}
	}
	if p.EndsAt != nil && now.After(*p.EndsAt) {
		return &InvalidError{Reason: ReasonExpired, Code: p.Code}
	}
	return nil
}

func checkTotalUses(p *Promo) error {
	if p.MaxUses > 0 && p.Uses >= p.MaxUses {
		return &InvalidError{Reason: ReasonUsageExhausted, Code: p.Code}
	}
	return nil
}
