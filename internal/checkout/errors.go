package checkout

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrEmptyCart is returned when checkout is attempted with no lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrNoPreview is returned by ConfirmPromo without a previewed promo.
	ErrNoPreview = errors.New("no promo to confirm")
	// ErrRedemptionPending is returned when points are already reserved.
	ErrRedemptionPending = errors.New("a loyalty redemption is already pending")
	// ErrAnonymous is returned for loyalty operations without a user.
	ErrAnonymous = errors.New("you must be logged in to redeem points")
)

// Step names a phase of the checkout transaction.
type Step string

const (
	StepOrder   Step = "order"
	StepItems   Step = "items"
	StepStock   Step = "stock"
	StepInvoice Step = "invoice"
	StepLoyalty Step = "loyalty"
	StepPromo   Step = "promo"
	StepEvent   Step = "event"
	StepCommit  Step = "commit"
)

var stepMessages = map[Step]string{
	StepOrder:   "Unable to create order record.",
	StepItems:   "Unable to create order items.",
	StepStock:   "Unable to update stock.",
	StepInvoice: "Unable to create invoice.",
	StepLoyalty: "Unable to update loyalty points.",
	StepPromo:   "Unable to record promo usage.",
	StepEvent:   "Unable to record order.",
	StepCommit:  "Failed to finalise order.",
}

// StepError is a store failure inside the checkout transaction. The
// transaction has been rolled back when it is returned.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("checkout %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Message is the user-facing description of the failed step.
func (e *StepError) Message() string {
	if m, ok := stepMessages[e.Step]; ok {
		return m
	}
	return "Unable to complete checkout. Please try again."
}

// InsufficientStockError is raised by the conditional stock decrement when
// another order took the remaining units.
type InsufficientStockError struct {
	ProductID int64
	Name      string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock for %s.", e.Name)
}
