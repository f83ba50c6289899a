package loyalty

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrPlanNotFound is returned when a membership plan does not exist.
var ErrPlanNotFound = errors.New("membership plan not found")

// Plan is a paid membership plan. PointsMultiplier is informational only:
// checkout credits points through Ledger.Earn without any multiplier.
type Plan struct {
	ID               int64
	Name             string
	Description      string
	PointsMultiplier decimal.Decimal
	AnnualFee        decimal.Decimal
	Active           bool
}

// PlanRepository is the administrative membership plan surface.
type PlanRepository interface {
	ListPlans(ctx context.Context) ([]Plan, error)
	CreatePlan(ctx context.Context, p *Plan) (int64, error)
	UpdatePlan(ctx context.Context, p *Plan) error
	DeletePlan(ctx context.Context, id int64) error
}

// ValidatePlan checks an administrator's plan definition.
func ValidatePlan(p *Plan) error {
	p.Name = strings.TrimSpace(p.Name)
	switch {
	case p.Name == "":
		return errors.New("name is required")
	case !p.PointsMultiplier.IsPositive():
		return errors.New("points multiplier must be positive")
	case p.AnnualFee.IsNegative():
		return errors.New("annual fee must not be negative")
	}
	return nil
}
