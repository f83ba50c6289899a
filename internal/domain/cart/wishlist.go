package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// WishlistItem is a product snapshot saved for later.
type WishlistItem struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image,omitempty"`
}

// Wishlist holds at most one entry per product.
type Wishlist struct {
	Items []WishlistItem `json:"items"`
}

// Contains reports whether productID is on the wishlist.
func (w *Wishlist) Contains(productID int64) bool {
	for _, it := range w.Items {
		if it.ProductID == productID {
			return true
		}
	}
	return false
}

// Remove drops productID. Removing an absent entry is a no-op.
func (w *Wishlist) Remove(productID int64) {
	out := w.Items[:0]
	for _, it := range w.Items {
		if it.ProductID != productID {
			out = append(out, it)
		}
	}
	w.Items = out
}

// AddToWishlist snapshots the product onto w unless it is already there.
func (s *Store) AddToWishlist(ctx context.Context, w *Wishlist, productID int64) error {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return errors.Wrap(err, "get product")
	}
	if w.Contains(p.ID) {
		return nil
	}
	w.Items = append(w.Items, WishlistItem{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Image:     p.Image,
	})
	return nil
}
