package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shopfront/internal/domain/loyalty"
)

const (
	balanceSQL = `SELECT loyalty_points FROM users WHERE id = $1`

	// Each mutation updates the balance and appends the ledger row in one
	// statement. The debit guard keeps the balance from going negative.
	debitSQL = `WITH u AS (
		UPDATE users SET loyalty_points = loyalty_points - $2
		WHERE id = $1 AND loyalty_points >= $2
		RETURNING id, loyalty_points
	)
	INSERT INTO loyalty_transactions (user_id, delta, kind, balance)
	SELECT id, -$2::bigint, $3::text, loyalty_points FROM u
	RETURNING balance`

	creditSQL = `WITH u AS (
		UPDATE users SET loyalty_points = loyalty_points + $2
		WHERE id = $1
		RETURNING id, loyalty_points
	)
	INSERT INTO loyalty_transactions (user_id, delta, kind, balance, order_id)
	SELECT id, $2::bigint, $3::text, loyalty_points, $4::bigint FROM u
	RETURNING balance`

	setBalanceSQL = `WITH u AS (
		UPDATE users AS u SET loyalty_points = $2
		FROM (SELECT id, loyalty_points AS prev FROM users WHERE id = $1 FOR UPDATE) AS p
		WHERE u.id = p.id
		RETURNING u.id, u.loyalty_points, p.prev
	)
	INSERT INTO loyalty_transactions (user_id, delta, kind, balance)
	SELECT id, loyalty_points - prev, 'adjustment', loyalty_points FROM u
	RETURNING balance`

	transactionsSQL = `SELECT id, user_id, delta, kind, balance, order_id, created_at
		FROM loyalty_transactions WHERE user_id = $1 ORDER BY id DESC LIMIT $2`

	listPlansSQL = `SELECT id, name, description, points_multiplier, annual_fee, active
		FROM membership_plans ORDER BY id`

	createPlanSQL = `INSERT INTO membership_plans (name, description, points_multiplier, annual_fee, active)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`

	updatePlanSQL = `UPDATE membership_plans
		SET name = $2, description = $3, points_multiplier = $4, annual_fee = $5, active = $6
		WHERE id = $1`

	deletePlanSQL = `DELETE FROM membership_plans WHERE id = $1`
)

var (
	_ loyalty.Repository        = (*LoyaltyRepository)(nil)
	_ loyalty.HistoryRepository = (*LoyaltyRepository)(nil)
	_ loyalty.PlanRepository    = (*LoyaltyRepository)(nil)
)

// LoyaltyRepository stores point balances, their history and membership
// plans.
type LoyaltyRepository struct {
	db dbtx
}

// NewLoyaltyRepository returns a LoyaltyRepository that uses the given pool.
func NewLoyaltyRepository(pool *pgxpool.Pool) *LoyaltyRepository {
	return &LoyaltyRepository{db: pool}
}

// Balance returns the user's current points.
func (r *LoyaltyRepository) Balance(ctx context.Context, userID int64) (int64, error) {
	var b int64
	if err := r.db.QueryRow(ctx, balanceSQL, userID).Scan(&b); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, loyalty.ErrUserNotFound
		}
		return 0, fmt.Errorf("getting balance of user %d: %w", userID, err)
	}
	return b, nil
}

// Debit subtracts points when the balance covers them and returns the new
// balance.
func (r *LoyaltyRepository) Debit(ctx context.Context, userID, points int64, kind loyalty.Kind) (int64, error) {
	var b int64
	if err := r.db.QueryRow(ctx, debitSQL, userID, points, kind).Scan(&b); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, loyalty.ErrInsufficientBalance
		}
		return 0, fmt.Errorf("debiting user %d: %w", userID, err)
	}
	return b, nil
}

// Credit adds points and returns the new balance.
func (r *LoyaltyRepository) Credit(ctx context.Context, userID, points int64, kind loyalty.Kind, orderID int64) (int64, error) {
	var b int64
	if err := r.db.QueryRow(ctx, creditSQL, userID, points, kind, nullID(orderID)).Scan(&b); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, loyalty.ErrUserNotFound
		}
		return 0, fmt.Errorf("crediting user %d: %w", userID, err)
	}
	return b, nil
}

// SetBalance overwrites the balance and records the difference as an
// adjustment.
func (r *LoyaltyRepository) SetBalance(ctx context.Context, userID, balance int64) (int64, error) {
	if balance < 0 {
		return 0, loyalty.ErrNegativeBalance
	}
	var b int64
	if err := r.db.QueryRow(ctx, setBalanceSQL, userID, balance).Scan(&b); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, loyalty.ErrUserNotFound
		}
		return 0, fmt.Errorf("setting balance of user %d: %w", userID, err)
	}
	return b, nil
}

// Transactions returns the newest limit ledger entries of a user.
func (r *LoyaltyRepository) Transactions(ctx context.Context, userID int64, limit int) ([]loyalty.Transaction, error) {
	rows, err := r.db.Query(ctx, transactionsSQL, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing loyalty transactions of user %d: %w", userID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (loyalty.Transaction, error) {
		var t loyalty.Transaction
		err := row.Scan(&t.ID, &t.UserID, &t.Delta, &t.Kind, &t.Balance, &t.OrderID, &t.CreatedAt)
		return t, err
	})
}

// ListPlans returns every membership plan.
func (r *LoyaltyRepository) ListPlans(ctx context.Context) ([]loyalty.Plan, error) {
	rows, err := r.db.Query(ctx, listPlansSQL)
	if err != nil {
		return nil, fmt.Errorf("listing membership plans: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (loyalty.Plan, error) {
		var p loyalty.Plan
		err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PointsMultiplier, &p.AnnualFee, &p.Active)
		return p, err
	})
}

// CreatePlan inserts a plan and returns its id.
func (r *LoyaltyRepository) CreatePlan(ctx context.Context, p *loyalty.Plan) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, createPlanSQL, p.Name, p.Description, p.PointsMultiplier, p.AnnualFee, p.Active).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("creating membership plan %q: %w", p.Name, err)
	}
	return id, nil
}

// UpdatePlan replaces a plan definition.
func (r *LoyaltyRepository) UpdatePlan(ctx context.Context, p *loyalty.Plan) error {
	tag, err := r.db.Exec(ctx, updatePlanSQL, p.ID, p.Name, p.Description, p.PointsMultiplier, p.AnnualFee, p.Active)
	if err != nil {
		return fmt.Errorf("updating membership plan %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return loyalty.ErrPlanNotFound
	}
	return nil
}

// DeletePlan removes a plan.
func (r *LoyaltyRepository) DeletePlan(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, deletePlanSQL, id)
	if err != nil {
		return fmt.Errorf("deleting membership plan %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return loyalty.ErrPlanNotFound
	}
	return nil
}
