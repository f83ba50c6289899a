package promo

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported discount strategies.
type Kind string

const (
	// KindPercent takes Amount percent off the subtotal.
	KindPercent Kind = "percent"
	// KindFixed takes a flat Amount off the subtotal.
	KindFixed Kind = "fixed"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindPercent || k == KindFixed
}

// ErrInvalid matches every InvalidError via errors.Is.
var ErrInvalid = errors.New("promo invalid")

// ErrNotFound is returned by repositories when no promo matches.
var ErrNotFound = errors.New("promo not found")

// ErrCodeTaken is returned when another promo already uses the code.
var ErrCodeTaken = errors.New("promo code already exists")

// Reason identifies which validation rule rejected a promo.
type Reason string

const (
	ReasonNotFound       Reason = "not_found"
	ReasonNotStarted     Reason = "not_started"
	ReasonExpired        Reason = "expired"
	ReasonBelowMinimum   Reason = "below_minimum"
	ReasonUsageExhausted Reason = "usage_exhausted"
	ReasonPerUserLimit   Reason = "per_user_limit"
)

// InvalidError carries the user-facing reason a promo was rejected.
type InvalidError struct {
	Reason      Reason
	Code        string
	MinSubtotal decimal.Decimal
}

func (e *InvalidError) Error() string {
	switch e.Reason {
	case ReasonNotFound:
		return "Promo code not found or inactive"
	case ReasonNotStarted:
		return "Promo not yet active"
	case ReasonExpired:
		return "Promo has expired"
	case ReasonBelowMinimum:
		return fmt.Sprintf("Promo requires minimum spend of $%s", e.MinSubtotal.StringFixed(2))
	case ReasonUsageExhausted:
		return "Promo has reached its maximum uses"
	case ReasonPerUserLimit:
		return "Promo already used by this account"
	default:
		return "Promo is not valid"
	}
}

// Is makes errors.Is(err, ErrInvalid) hold for any InvalidError.
func (e *InvalidError) Is(target error) bool {
	return target == ErrInvalid
}

// Promo is an administrator-defined discount code.
//
// Zero values of MaxUses and PerUserLimit mean "no limit"; a zero
// MinSubtotal means "no minimum".
type Promo struct {
	ID           int64
	Code         string
	Description  string
	Kind         Kind
	Amount       decimal.Decimal
	MinSubtotal  decimal.Decimal
	StartsAt     *time.Time
	EndsAt       *time.Time
	MaxUses      int
	Uses         int
	PerUserLimit int
	Active       bool
	CreatedAt    time.Time
}

// Application is a promo evaluated against a cart. It is stored in the
// session as either the preview or the applied promo; once applied its
// Discount is locked and reused at checkout.
type Application struct {
	PromoID  int64           `json:"promo_id"`
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
}

// Repository provides promo lookups for evaluation.
type Repository interface {
	// FindByCode returns the promo with the given code, case-insensitively,
	// regardless of its active flag. Returns ErrNotFound when missing.
	FindByCode(ctx context.Context, code string) (*Promo, error)
	FindByID(ctx context.Context, id int64) (*Promo, error)
	// ListActive returns promos that are active and inside their window at now.
	ListActive(ctx context.Context, now time.Time) ([]Promo, error)
}

// RedemptionCounter reports how many times a user has used a promo.
type RedemptionCounter interface {
	RedemptionCount(ctx context.Context, promoID, userID int64) (int, error)
}

// UsageRecorder records a promo use inside the checkout transaction.
type UsageRecorder interface {
	FindByID(ctx context.Context, id int64) (*Promo, error)
	IncrementUsage(ctx context.Context, promoID int64) error
	UpsertRedemption(ctx context.Context, promoID, userID int64) error
}

// AdminRepository is the administrative promo surface.
type AdminRepository interface {
	List(ctx context.Context) ([]Promo, error)
	Create(ctx context.Context, p *Promo) (int64, error)
	Update(ctx context.Context, p *Promo) error
	Delete(ctx context.Context, id int64) error
}
