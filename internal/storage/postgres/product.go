package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shopfront/internal/domain/product"
)

const (
	getProductByIDSQL = `SELECT id, name, price, stock, image FROM products WHERE id = $1`

	listProductsSQL = `SELECT id, name, price, stock, image FROM products ORDER BY id`

	// The stock guard makes the decrement the authoritative check: a
	// concurrent order that took the last units leaves zero rows affected.
	decrementStockSQL = `UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`

	setStockSQL = `UPDATE products SET stock = $2 WHERE id = $1`

	upsertProductSQL = `INSERT INTO products (id, name, price, stock, image)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price,
			stock = EXCLUDED.stock, image = EXCLUDED.image`
)

var (
	_ product.Repository          = (*ProductRepository)(nil)
	_ product.StockWriter         = (*ProductRepository)(nil)
	_ product.InventoryRepository = (*ProductRepository)(nil)
)

// ProductRepository implements the catalog and stock interfaces.
type ProductRepository struct {
	db dbtx
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{db: pool}
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.db.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// List returns the catalog ordered by id.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.db.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// DecrementIfAvailable subtracts qty and reports whether enough stock was
// left to do so.
func (r *ProductRepository) DecrementIfAvailable(ctx context.Context, id int64, qty int) (bool, error) {
	tag, err := r.db.Exec(ctx, decrementStockSQL, id, qty)
	if err != nil {
		return false, fmt.Errorf("decrementing stock of %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetStock overwrites the stock level of a product.
func (r *ProductRepository) SetStock(ctx context.Context, id int64, stock int) error {
	if stock < 0 {
		return product.ErrNegativeStock
	}
	tag, err := r.db.Exec(ctx, setStockSQL, id, stock)
	if err != nil {
		return fmt.Errorf("setting stock of %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Upsert inserts or replaces a product by id.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	if _, err := r.db.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price, p.Stock, p.Image); err != nil {
		return fmt.Errorf("upserting product %d: %w", p.ID, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Image)
	return p, err
}
