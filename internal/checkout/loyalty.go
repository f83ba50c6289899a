package checkout

import (
	"context"

	"github.com/xenking/shopfront/internal/domain/loyalty"
	"github.com/xenking/shopfront/internal/domain/session"
)

// ApplyLoyalty debits points immediately and records the pending
// redemption in the session. Points are restored by CancelLoyalty or
// consumed by a committed order.
func (s *Service) ApplyLoyalty(ctx context.Context, st *session.State, points int64) (loyalty.Redemption, error) {
	if st.UserID == 0 {
		return loyalty.Redemption{}, ErrAnonymous
	}
	if !s.supportsLoyalty {
		return loyalty.Redemption{}, loyalty.ErrSchemaMissing
	}
	if st.LoyaltyRedemption != nil {
		return loyalty.Redemption{}, ErrRedemptionPending
	}

	r, err := loyalty.NewLedger(s.loyalty).Redeem(ctx, st.UserID, points)
	if err != nil {
		return loyalty.Redemption{}, err
	}
	st.LoyaltyRedemption = &r
	return r, nil
}

// CancelLoyalty restores a pending redemption and clears it. Without a
// pending redemption it returns zero and does nothing.
func (s *Service) CancelLoyalty(ctx context.Context, st *session.State) (int64, error) {
	if st.LoyaltyRedemption == nil || st.UserID == 0 {
		return 0, nil
	}
	restored, err := loyalty.NewLedger(s.loyalty).CancelRedemption(ctx, st.UserID, st.LoyaltyRedemption)
	if err != nil {
		return 0, err
	}
	st.LoyaltyRedemption = nil
	return restored, nil
}

// Account is a user's loyalty summary.
type Account struct {
	Balance int64
	Tier    loyalty.Tier
}

// LoyaltyAccount returns the user's balance and tier.
func (s *Service) LoyaltyAccount(ctx context.Context, userID int64) (Account, error) {
	if !s.supportsLoyalty {
		return Account{}, loyalty.ErrSchemaMissing
	}
	balance, err := s.loyalty.Balance(ctx, userID)
	if err != nil {
		return Account{}, err
	}
	return Account{Balance: balance, Tier: loyalty.TierFor(balance)}, nil
}
