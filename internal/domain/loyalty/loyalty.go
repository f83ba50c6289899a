// Package loyalty owns the per-user point balance: redemption (debit),
// restoration (credit back) and earning (credit on a completed order).
package loyalty

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

const (
	// RedemptionStep is the granularity points must be redeemed in.
	RedemptionStep = 100
)

// PointValue is the dollar value of one redeemed point.
var PointValue = decimal.RequireFromString("0.05")

var (
	// ErrInvalidAmount is returned for a non-positive redemption request.
	ErrInvalidAmount = errors.New("please enter a valid number of points")
	// ErrNotMultiple is returned when points are not a multiple of RedemptionStep.
	ErrNotMultiple = errors.New("please redeem points in multiples of 100")
	// ErrInsufficientBalance is returned when the balance does not cover a debit.
	ErrInsufficientBalance = errors.New("you do not have enough points to redeem that amount")
	// ErrSchemaMissing is returned when the store has no loyalty columns.
	ErrSchemaMissing = errors.New("loyalty points are not available")
	// ErrUserNotFound is returned when the account does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrNegativeBalance is returned when an administrator sets a balance below zero.
	ErrNegativeBalance = errors.New("balance must not be negative")
)

// Kind classifies a ledger entry.
type Kind string

const (
	KindRedeem     Kind = "redeem"
	KindRestore    Kind = "restore"
	KindEarn       Kind = "earn"
	KindAdjustment Kind = "adjustment"
)

// Redemption is a pending, already-debited point redemption held in the
// session until the order commits or the user cancels.
type Redemption struct {
	Points   int64           `json:"points"`
	Discount decimal.Decimal `json:"discount"`
}

// Transaction is one entry of a user's point history.
type Transaction struct {
	ID        int64
	UserID    int64
	Delta     int64
	Kind      Kind
	Balance   int64
	OrderID   *int64
	CreatedAt time.Time
}

// Repository persists balances. Every mutation is recorded as a Transaction.
type Repository interface {
	Balance(ctx context.Context, userID int64) (int64, error)
	// Debit subtracts points only when the stored balance covers them, in a
	// single conditional statement. Returns ErrInsufficientBalance otherwise.
	Debit(ctx context.Context, userID, points int64, kind Kind) (int64, error)
	// Credit adds points. orderID is zero when the credit has no order.
	Credit(ctx context.Context, userID, points int64, kind Kind, orderID int64) (int64, error)
}

// HistoryRepository exposes the ledger history and administrative overrides.
type HistoryRepository interface {
	Transactions(ctx context.Context, userID int64, limit int) ([]Transaction, error)
	SetBalance(ctx context.Context, userID, balance int64) (int64, error)
}

// PointsToDollars converts redeemed points into a discount.
func PointsToDollars(points int64) decimal.Decimal {
	return decimal.NewFromInt(points).Mul(PointValue).Round(2)
}

// PointsForSpend returns the points earned for paying dollars: one point per
// whole dollar.
func PointsForSpend(dollars decimal.Decimal) int64 {
	if !dollars.IsPositive() {
		return 0
	}
	return dollars.Floor().IntPart()
}
