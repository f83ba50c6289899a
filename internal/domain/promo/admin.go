package promo

import (
	"strings"

	"github.com/go-faster/errors"
)

// Normalize upper-cases and trims the code and validates an administrator's
// promo definition before it is stored.
func Normalize(p *Promo) error {
	p.Code = strings.ToUpper(strings.TrimSpace(p.Code))
	switch {
	case p.Code == "":
		return errors.New("code is required")
	case !p.Kind.Valid():
		return errors.Errorf("kind must be %q or %q", KindPercent, KindFixed)
	case !p.Amount.IsPositive():
		return errors.New("amount must be positive")
	case p.Kind == KindPercent && p.Amount.GreaterThan(hundred):
		return errors.New("percent amount must not exceed 100")
	case p.MinSubtotal.IsNegative():
		return errors.New("minimum subtotal must not be negative")
	case p.StartsAt != nil && p.EndsAt != nil && !p.EndsAt.After(*p.StartsAt):
		return errors.New("end must be after start")
	case p.MaxUses < 0:
		return errors.New("max uses must not be negative")
	case p.PerUserLimit < 0:
		return errors.New("per-user limit must not be negative")
	}
	return nil
}
