package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// ErrNegativeStock is returned when an administrator sets stock below zero.
var ErrNegativeStock = errors.New("stock must not be negative")

// Product represents a catalog item available for purchase.
type Product struct {
	ID    int64
	Name  string
	Price decimal.Decimal
	Stock int
	Image string
}

// Repository defines the catalog reads used by the cart and checkout.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Product, error)
}

// StockWriter mutates stock. DecrementIfAvailable subtracts qty only when at
// least qty units remain and reports whether a row was changed.
type StockWriter interface {
	DecrementIfAvailable(ctx context.Context, id int64, qty int) (bool, error)
}

// InventoryRepository is the administrative stock surface.
type InventoryRepository interface {
	SetStock(ctx context.Context, id int64, stock int) error
}
