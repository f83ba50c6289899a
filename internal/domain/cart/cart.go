// Package cart implements the session-scoped shopping cart with advisory
// stock checks. Authoritative stock enforcement happens at checkout commit.
package cart

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/shopfront/internal/domain/product"
)

// OutOfStockError is returned when a product has no stock at all.
type OutOfStockError struct {
	ProductID int64
	Name      string
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("%q is out of stock", e.Name)
}

// UnavailableError is returned when nothing can be added after clamping.
type UnavailableError struct {
	ProductID int64
	Name      string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("unable to add %q: no stock available", e.Name)
}

// InsufficientStockError reports the actual number of units available.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("only %d units of %q are available", e.Available, e.Name)
}

// Line is a single cart entry. Name, UnitPrice and Image are snapshots taken
// when the product was first added.
type Line struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image,omitempty"`
}

// Total returns UnitPrice × Quantity.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is an ordered collection of lines keyed by product.
type Cart struct {
	Lines []Line `json:"lines"`
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Find returns the line for productID, if present.
func (c *Cart) Find(productID int64) (*Line, bool) {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return &c.Lines[i], true
		}
	}
	return nil, false
}

// Remove drops the line for productID. Removing an absent line is a no-op.
func (c *Cart) Remove(productID int64) {
	out := c.Lines[:0]
	for _, l := range c.Lines {
		if l.ProductID != productID {
			out = append(out, l)
		}
	}
	c.Lines = out
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Lines = nil
}

// AddResult describes the outcome of Store.Add.
type AddResult struct {
	Quantity int
	// Adjusted is set when the requested quantity was clamped to stock.
	Adjusted  bool
	Available int
	Name      string
}

// Store applies stock-aware mutations to a Cart.
type Store struct {
	products product.Repository
}

// NewStore creates a Store that reads stock from products.
func NewStore(products product.Repository) *Store {
	return &Store{products: products}
}

// Add increases the quantity of productID by qty, clamping the resulting
// total to the available stock.
func (s *Store) Add(ctx context.Context, c *Cart, productID int64, qty int) (AddResult, error) {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return AddResult{}, errors.Wrap(err, "get product")
	}
	if p.Stock <= 0 {
		return AddResult{}, &OutOfStockError{ProductID: p.ID, Name: p.Name}
	}

	existing, ok := c.Find(productID)
	current := 0
	if ok {
		current = existing.Quantity
	}

	res := AddResult{Quantity: current + qty, Available: p.Stock, Name: p.Name}
	if res.Quantity > p.Stock {
		res.Quantity = p.Stock
		res.Adjusted = true
	}
	if res.Quantity <= 0 {
		return AddResult{}, &UnavailableError{ProductID: p.ID, Name: p.Name}
	}

	if ok {
		existing.Quantity = res.Quantity
		return res, nil
	}
	c.Lines = append(c.Lines, Line{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Quantity:  res.Quantity,
		Image:     p.Image,
	})
	return res, nil
}

// SetQuantity replaces the quantity of an existing line. A target of zero or
// less removes the line; a target above stock leaves the line unchanged.
func (s *Store) SetQuantity(ctx context.Context, c *Cart, productID int64, qty int) error {
	if qty <= 0 {
		c.Remove(productID)
		return nil
	}
	line, ok := c.Find(productID)
	if !ok {
		return nil
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return errors.Wrap(err, "get product")
	}
	if qty > p.Stock {
		return &InsufficientStockError{ProductID: p.ID, Name: p.Name, Available: p.Stock}
	}
	line.Quantity = qty
	return nil
}
