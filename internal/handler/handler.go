// Package handler exposes the storefront and the administrative API over
// HTTP. Storefront routes operate on the visitor's session and answer with
// a redirect plus a flash message, or with a JSON view for GET pages. Admin
// routes are plain JSON behind an API key.
package handler

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/shopfront/internal/checkout"
	"github.com/xenking/shopfront/internal/domain/auth"
	"github.com/xenking/shopfront/internal/domain/cart"
	"github.com/xenking/shopfront/internal/domain/loyalty"
	"github.com/xenking/shopfront/internal/domain/order"
	"github.com/xenking/shopfront/internal/domain/product"
	"github.com/xenking/shopfront/internal/domain/promo"
	"github.com/xenking/shopfront/internal/domain/session"
	"github.com/xenking/shopfront/pkg/httpmiddleware"
)

// Config holds non-dependency settings.
type Config struct {
	// SessionCookie names the cookie carrying the session id.
	SessionCookie string
	SessionTTL    time.Duration
	SecureCookie  bool
	// UserHeader carries the numeric user id set by the upstream auth layer.
	UserHeader string
	// AdminCORS applies to /admin only.
	AdminCORS httpmiddleware.CORSConfig
}

// Deps are the services and repositories the handlers call.
type Deps struct {
	Checkout *checkout.Service
	Carts    *cart.Store
	Sessions session.Store
	Orders   order.Reader
	Ledger   loyalty.HistoryRepository
	Promos   promo.AdminRepository
	Stock    product.InventoryRepository
	Plans    loyalty.PlanRepository
	Keys     *auth.Authenticator
}

// Handler serves every route of the shop.
type Handler struct {
	cfg Config
	Deps
}

// NewHandler creates a Handler.
func NewHandler(cfg Config, deps Deps) *Handler {
	if cfg.SessionCookie == "" {
		cfg.SessionCookie = "shop_session"
	}
	if cfg.UserHeader == "" {
		cfg.UserHeader = "X-User-ID"
	}
	return &Handler{cfg: cfg, Deps: deps}
}

// Mount registers the routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/cart", h.storefront(h.viewCart))
	r.Post("/cart/add/{id}", h.storefront(h.addToCart))
	r.Post("/cart/update/{id}", h.storefront(h.updateCart))
	r.Post("/cart/remove/{id}", h.storefront(h.removeFromCart))

	r.Get("/wishlist", h.storefront(h.viewWishlist))
	r.Post("/wishlist/add/{id}", h.storefront(h.addToWishlist))
	r.Post("/wishlist/remove/{id}", h.storefront(h.removeFromWishlist))

	r.Get("/checkout", h.storefront(h.viewCheckout))
	r.Post("/checkout", h.storefront(h.placeOrder))

	r.Post("/apply-promo", h.storefront(h.applyPromo))
	r.Post("/preview-promo", h.storefront(h.previewPromo))
	r.Post("/confirm-promo", h.storefront(h.confirmPromo))
	r.Post("/cancel-promo", h.storefront(h.cancelPromo))
	r.Post("/remove-applied-promo", h.storefront(h.removeAppliedPromo))

	r.Post("/apply-loyalty", h.storefront(h.applyLoyalty))
	r.Post("/cancel-loyalty", h.storefront(h.cancelLoyalty))
	r.Get("/loyalty", h.storefront(requireUser(h.viewLoyalty)))

	r.Get("/orders", h.storefront(requireUser(h.listOrders)))
	r.Get("/invoice/{id}", h.storefront(requireUser(h.viewInvoice)))

	r.Route("/admin", func(r chi.Router) {
		r.Use(httpmiddleware.CORS(h.cfg.AdminCORS), h.requireAdmin)

		r.Get("/promos", h.admin(h.listPromos))
		r.Post("/promos", h.admin(h.createPromo))
		r.Put("/promos/{id}", h.admin(h.updatePromo))
		r.Delete("/promos/{id}", h.admin(h.deletePromo))

		r.Put("/products/{id}/stock", h.admin(h.setStock))

		r.Get("/membership-plans", h.admin(h.listPlans))
		r.Post("/membership-plans", h.admin(h.createPlan))
		r.Put("/membership-plans/{id}", h.admin(h.updatePlan))
		r.Delete("/membership-plans/{id}", h.admin(h.deletePlan))

		r.Put("/users/{id}/points", h.admin(h.setPoints))
		r.Get("/invoices", h.admin(h.listInvoices))
	})
}

// Router returns a chi router with every route mounted.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	h.Mount(r)
	return r
}
