package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shopfront/internal/domain/promo"
)

const promoColumns = `id, code, description, kind, amount, min_subtotal, starts_at, ends_at,
	max_uses, uses, per_user_limit, active, created_at`

const (
	findPromoByCodeSQL = `SELECT ` + promoColumns + ` FROM promos WHERE upper(code) = upper($1)`

	findPromoByIDSQL = `SELECT ` + promoColumns + ` FROM promos WHERE id = $1`

	listActivePromosSQL = `SELECT ` + promoColumns + ` FROM promos
		WHERE active AND (starts_at IS NULL OR starts_at <= $1) AND (ends_at IS NULL OR ends_at >= $1)
			AND (max_uses <= 0 OR uses < max_uses)
		ORDER BY code`

	listPromosSQL = `SELECT ` + promoColumns + ` FROM promos ORDER BY id`

	redemptionCountSQL = `SELECT COALESCE(
		(SELECT uses FROM promo_redemptions WHERE promo_id = $1 AND user_id = $2), 0)`

	incrementUsageSQL = `UPDATE promos SET uses = uses + 1 WHERE id = $1`

	upsertRedemptionSQL = `INSERT INTO promo_redemptions (promo_id, user_id, uses, last_used)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (promo_id, user_id) DO UPDATE
		SET uses = promo_redemptions.uses + 1, last_used = now()`

	createPromoSQL = `INSERT INTO promos (code, description, kind, amount, min_subtotal, starts_at, ends_at,
		max_uses, per_user_limit, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	updatePromoSQL = `UPDATE promos SET code = $2, description = $3, kind = $4, amount = $5,
		min_subtotal = $6, starts_at = $7, ends_at = $8, max_uses = $9, per_user_limit = $10, active = $11
		WHERE id = $1`

	deletePromoSQL = `DELETE FROM promos WHERE id = $1`

	// Imports leave usage counters and limits of existing promos alone.
	upsertPromoSQL = `INSERT INTO promos (code, kind, amount, min_subtotal)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ((upper(code))) DO UPDATE
		SET kind = EXCLUDED.kind, amount = EXCLUDED.amount, min_subtotal = EXCLUDED.min_subtotal`
)

const uniqueViolation = "23505"

var (
	_ promo.Repository        = (*PromoRepository)(nil)
	_ promo.RedemptionCounter = (*PromoRepository)(nil)
	_ promo.UsageRecorder     = (*PromoRepository)(nil)
	_ promo.AdminRepository   = (*PromoRepository)(nil)
)

// PromoRepository implements the promo lookups, usage recording and the
// administrative surface.
type PromoRepository struct {
	db dbtx
}

// NewPromoRepository returns a PromoRepository that uses the given pool.
func NewPromoRepository(pool *pgxpool.Pool) *PromoRepository {
	return &PromoRepository{db: pool}
}

// FindByCode returns the promo with code, ignoring case.
func (r *PromoRepository) FindByCode(ctx context.Context, code string) (*promo.Promo, error) {
	return r.findOne(ctx, findPromoByCodeSQL, code)
}

// FindByID returns the promo with id.
func (r *PromoRepository) FindByID(ctx context.Context, id int64) (*promo.Promo, error) {
	return r.findOne(ctx, findPromoByIDSQL, id)
}

func (r *PromoRepository) findOne(ctx context.Context, sql string, arg any) (*promo.Promo, error) {
	rows, err := r.db.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("finding promo %v: %w", arg, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPromo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrNotFound
		}
		return nil, fmt.Errorf("finding promo %v: %w", arg, err)
	}
	return &p, nil
}

// ListActive returns active promos whose window contains now.
func (r *PromoRepository) ListActive(ctx context.Context, now time.Time) ([]promo.Promo, error) {
	rows, err := r.db.Query(ctx, listActivePromosSQL, now)
	if err != nil {
		return nil, fmt.Errorf("listing active promos: %w", err)
	}
	return pgx.CollectRows(rows, scanPromo)
}

// RedemptionCount returns how many orders of userID used promoID.
func (r *PromoRepository) RedemptionCount(ctx context.Context, promoID, userID int64) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, redemptionCountSQL, promoID, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting redemptions of promo %d: %w", promoID, err)
	}
	return n, nil
}

// IncrementUsage bumps the global usage counter.
func (r *PromoRepository) IncrementUsage(ctx context.Context, promoID int64) error {
	if _, err := r.db.Exec(ctx, incrementUsageSQL, promoID); err != nil {
		return fmt.Errorf("incrementing usage of promo %d: %w", promoID, err)
	}
	return nil
}

// UpsertRedemption records one more use of promoID by userID.
func (r *PromoRepository) UpsertRedemption(ctx context.Context, promoID, userID int64) error {
	if _, err := r.db.Exec(ctx, upsertRedemptionSQL, promoID, userID); err != nil {
		return fmt.Errorf("recording redemption of promo %d: %w", promoID, err)
	}
	return nil
}

// List returns every promo ordered by id.
func (r *PromoRepository) List(ctx context.Context) ([]promo.Promo, error) {
	rows, err := r.db.Query(ctx, listPromosSQL)
	if err != nil {
		return nil, fmt.Errorf("listing promos: %w", err)
	}
	return pgx.CollectRows(rows, scanPromo)
}

// Create inserts p and returns its id.
func (r *PromoRepository) Create(ctx context.Context, p *promo.Promo) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, createPromoSQL,
		p.Code, p.Description, p.Kind, p.Amount, p.MinSubtotal, p.StartsAt, p.EndsAt,
		p.MaxUses, p.PerUserLimit, p.Active,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, promo.ErrCodeTaken
		}
		return 0, fmt.Errorf("creating promo %q: %w", p.Code, err)
	}
	return id, nil
}

// Update replaces the definition of p. Usage counters are not touched.
func (r *PromoRepository) Update(ctx context.Context, p *promo.Promo) error {
	tag, err := r.db.Exec(ctx, updatePromoSQL,
		p.ID, p.Code, p.Description, p.Kind, p.Amount, p.MinSubtotal, p.StartsAt, p.EndsAt,
		p.MaxUses, p.PerUserLimit, p.Active,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return promo.ErrCodeTaken
		}
		return fmt.Errorf("updating promo %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return promo.ErrNotFound
	}
	return nil
}

// Delete removes a promo and its redemption records.
func (r *PromoRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, deletePromoSQL, id)
	if err != nil {
		return fmt.Errorf("deleting promo %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return promo.ErrNotFound
	}
	return nil
}

// Upsert inserts p by code or updates its discount terms.
func (r *PromoRepository) Upsert(ctx context.Context, p promo.Promo) error {
	if _, err := r.db.Exec(ctx, upsertPromoSQL, p.Code, p.Kind, p.Amount, p.MinSubtotal); err != nil {
		return fmt.Errorf("upserting promo %q: %w", p.Code, err)
	}
	return nil
}

func scanPromo(row pgx.CollectableRow) (promo.Promo, error) {
	var p promo.Promo
	err := row.Scan(
		&p.ID, &p.Code, &p.Description, &p.Kind, &p.Amount, &p.MinSubtotal, &p.StartsAt, &p.EndsAt,
		&p.MaxUses, &p.Uses, &p.PerUserLimit, &p.Active, &p.CreatedAt,
	)
	return p, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
