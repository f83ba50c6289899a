package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shopfront/internal/checkout"
)

var _ checkout.TxManager = (*TxManager)(nil)

// TxManager runs checkout work in one database transaction.
type TxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager returns a TxManager that uses the given pool.
func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

// WithinTx begins a transaction, binds fresh repositories to it and commits
// when fn succeeds. Any error from fn rolls everything back.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context, repos checkout.TxRepos) error) error {
	return pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		return fn(ctx, checkout.TxRepos{
			Orders:  &OrderRepository{db: tx},
			Stock:   &ProductRepository{db: tx},
			Promos:  &PromoRepository{db: tx},
			Loyalty: &LoyaltyRepository{db: tx},
			Outbox:  &OutboxRepository{db: tx},
		})
	})
}
