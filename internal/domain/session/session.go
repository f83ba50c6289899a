// Package session defines the per-visitor state carried between requests:
// cart, wishlist, promo slots, pending loyalty redemption, delivery draft
// and flash messages.
package session

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/shopfront/internal/domain/cart"
	"github.com/xenking/shopfront/internal/domain/loyalty"
	"github.com/xenking/shopfront/internal/domain/order"
	"github.com/xenking/shopfront/internal/domain/promo"
)

// ErrNotFound is returned by Store.Load for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// FlashKind is the severity of a flash message.
type FlashKind string

const (
	FlashSuccess FlashKind = "success"
	FlashInfo    FlashKind = "info"
	FlashWarning FlashKind = "warning"
	FlashError   FlashKind = "error"
)

// Flash is a one-shot message shown on the next page view.
type Flash struct {
	Kind    FlashKind `json:"kind"`
	Message string    `json:"message"`
}

// State is everything a session owns. It is loaded once per request,
// mutated by the services, and saved after the handler finishes.
type State struct {
	ID     string `json:"id"`
	UserID int64  `json:"user_id,omitempty"`

	Cart     cart.Cart     `json:"cart"`
	Wishlist cart.Wishlist `json:"wishlist"`

	AppliedPromo      *promo.Application  `json:"applied_promo,omitempty"`
	PreviewPromo      *promo.Application  `json:"preview_promo,omitempty"`
	LoyaltyRedemption *loyalty.Redemption `json:"loyalty_redemption,omitempty"`
	DeliveryDraft     *order.Delivery     `json:"delivery_draft,omitempty"`

	Flashes []Flash `json:"flashes,omitempty"`
}

// New returns an empty state with a fresh random id.
func New() *State {
	return &State{ID: uuid.NewString()}
}

// AddFlash queues a message for the next render.
func (s *State) AddFlash(kind FlashKind, msg string) {
	s.Flashes = append(s.Flashes, Flash{Kind: kind, Message: msg})
}

// PopFlashes returns and clears the queued messages.
func (s *State) PopFlashes() []Flash {
	f := s.Flashes
	s.Flashes = nil
	return f
}

// ClearCheckout drops everything a committed order consumed.
func (s *State) ClearCheckout() {
	s.Cart.Clear()
	s.AppliedPromo = nil
	s.LoyaltyRedemption = nil
	s.DeliveryDraft = nil
}

// Store persists session state.
type Store interface {
	Load(ctx context.Context, id string) (*State, error)
	Save(ctx context.Context, s *State) error
	Delete(ctx context.Context, id string) error
}
