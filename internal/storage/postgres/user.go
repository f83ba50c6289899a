package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	upsertUserSQL = `INSERT INTO users (id, name, loyalty_points) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, loyalty_points = EXCLUDED.loyalty_points`

	// Rows inserted with explicit ids leave the sequences behind.
	syncSequencesSQL = `SELECT
		setval(pg_get_serial_sequence('users', 'id'), COALESCE((SELECT max(id) FROM users), 0) + 1, false),
		setval(pg_get_serial_sequence('products', 'id'), COALESCE((SELECT max(id) FROM products), 0) + 1, false)`
)

// UserRepository manages the accounts loyalty balances hang off.
type UserRepository struct {
	db dbtx
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: pool}
}

// Upsert inserts or replaces a user by id.
func (r *UserRepository) Upsert(ctx context.Context, id int64, name string, points int64) error {
	if _, err := r.db.Exec(ctx, upsertUserSQL, id, name, points); err != nil {
		return fmt.Errorf("upserting user %d: %w", id, err)
	}
	return nil
}

// SyncSequences moves the id sequences past rows inserted with explicit ids.
func (r *UserRepository) SyncSequences(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, syncSequencesSQL); err != nil {
		return fmt.Errorf("syncing sequences: %w", err)
	}
	return nil
}
