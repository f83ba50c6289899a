package loyalty

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Ledger applies the redemption rules on top of a Repository. It holds no
// state of its own, so one can be built per transaction.
type Ledger struct {
	repo Repository
}

// NewLedger creates a Ledger over repo.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// Redeem debits points immediately and returns the discount they buy.
func (l *Ledger) Redeem(ctx context.Context, userID, points int64) (Redemption, error) {
	if points <= 0 {
		return Redemption{}, ErrInvalidAmount
	}
	if points%RedemptionStep != 0 {
		return Redemption{}, ErrNotMultiple
	}

	balance, err := l.repo.Balance(ctx, userID)
	if err != nil {
		return Redemption{}, errors.Wrap(err, "get balance")
	}
	if points > balance {
		return Redemption{}, ErrInsufficientBalance
	}

	// The store re-checks the balance inside the debit statement; a
	// concurrent redemption can still make this fail.
	if _, err := l.repo.Debit(ctx, userID, points, KindRedeem); err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			return Redemption{}, ErrInsufficientBalance
		}
		return Redemption{}, errors.Wrap(err, "debit points")
	}

	return Redemption{Points: points, Discount: PointsToDollars(points)}, nil
}

// CancelRedemption credits a pending redemption back. It does nothing when
// nothing is pending. The caller clears the pending redemption once this
// returns without error.
func (l *Ledger) CancelRedemption(ctx context.Context, userID int64, pending *Redemption) (int64, error) {
	if pending == nil || pending.Points <= 0 {
		return 0, nil
	}
	if _, err := l.repo.Credit(ctx, userID, pending.Points, KindRestore, 0); err != nil {
		return 0, errors.Wrap(err, "restore points")
	}
	return pending.Points, nil
}

// Earn credits floor(dollars) points for a completed order.
func (l *Ledger) Earn(ctx context.Context, userID int64, dollars decimal.Decimal, orderID int64) (int64, error) {
	points := PointsForSpend(dollars)
	if points == 0 {
		return 0, nil
	}
	if _, err := l.repo.Credit(ctx, userID, points, KindEarn, orderID); err != nil {
		return 0, errors.Wrap(err, "credit points")
	}
	return points, nil
}
