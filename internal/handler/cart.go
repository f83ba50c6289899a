package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/shopfront/internal/domain/cart"
	"github.com/xenking/shopfront/internal/domain/session"
	"github.com/xenking/shopfront/internal/pricing"
)

func (h *Handler) viewCart(_ *http.Request, st *session.State) (reply, error) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		encodeLines(e, st.Cart.Lines)
		money(e, "subtotal", pricing.Subtotal(st.Cart.Lines))
		encodeFlashes(e, st)
	})
	return jsonReply(http.StatusOK, &e), nil
}

func (h *Handler) addToCart(r *http.Request, st *session.State) (reply, error) {
	id, err := pathID(r)
	if err != nil {
		return reply{}, err
	}
	qty, err := strconv.Atoi(r.PostFormValue("quantity"))
	if err != nil || qty <= 0 {
		qty = 1
	}

	res, err := h.Carts.Add(r.Context(), &st.Cart, id, qty)
	var (
		outOfStock  *cart.OutOfStockError
		unavailable *cart.UnavailableError
	)
	switch {
	case errors.As(err, &outOfStock):
		st.AddFlash(session.FlashError, fmt.Sprintf("Sorry, %q is out of stock.", outOfStock.Name))
	case errors.As(err, &unavailable):
		st.AddFlash(session.FlashError, fmt.Sprintf("Unable to add %q: no stock available.", unavailable.Name))
	case err != nil:
		return reply{}, err
	case res.Adjusted:
		st.AddFlash(session.FlashError, fmt.Sprintf(
			"Only %d units of %q are available. Cart quantity has been adjusted.", res.Available, res.Name))
	default:
		st.AddFlash(session.FlashSuccess, fmt.Sprintf("Added %q to your cart.", res.Name))
	}
	return redirect("/cart"), nil
}

func (h *Handler) updateCart(r *http.Request, st *session.State) (reply, error) {
	id, err := pathID(r)
	if err != nil {
		return reply{}, err
	}
	qty, err := strconv.Atoi(r.PostFormValue("quantity"))
	if err != nil {
		st.AddFlash(session.FlashError, "Please enter a valid quantity.")
		return redirect("/cart"), nil
	}

	err = h.Carts.SetQuantity(r.Context(), &st.Cart, id, qty)
	var insufficient *cart.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		st.AddFlash(session.FlashError, fmt.Sprintf(
			"Cannot set quantity above stock. Only %d units of %q are available.", insufficient.Available, insufficient.Name))
	case err != nil:
		return reply{}, err
	default:
		st.AddFlash(session.FlashSuccess, "Cart updated.")
	}
	return redirect("/cart"), nil
}

func (h *Handler) removeFromCart(r *http.Request, st *session.State) (reply, error) {
	id, err := pathID(r)
	if err != nil {
		return reply{}, err
	}
	st.Cart.Remove(id)
	st.AddFlash(session.FlashInfo, "Item removed from cart.")
	return redirect("/cart"), nil
}

func (h *Handler) viewWishlist(_ *http.Request, st *session.State) (reply, error) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("items", func(e *jx.Encoder) {
			e.ArrStart()
			for _, it := range st.Wishlist.Items {
				e.Obj(func(e *jx.Encoder) {
					e.Field("product_id", func(e *jx.Encoder) { e.Int64(it.ProductID) })
					e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
					money(e, "price", it.Price)
					if it.Image != "" {
						e.Field("image", func(e *jx.Encoder) { e.Str(it.Image) })
					}
				})
			}
			e.ArrEnd()
		})
		encodeFlashes(e, st)
	})
	return jsonReply(http.StatusOK, &e), nil
}

func (h *Handler) addToWishlist(r *http.Request, st *session.State) (reply, error) {
	id, err := pathID(r)
	if err != nil {
		return reply{}, err
	}
	if err := h.Carts.AddToWishlist(r.Context(), &st.Wishlist, id); err != nil {
		return reply{}, err
	}
	st.AddFlash(session.FlashSuccess, "Added to your wishlist.")
	return redirect("/wishlist"), nil
}

func (h *Handler) removeFromWishlist(r *http.Request, st *session.State) (reply, error) {
	id, err := pathID(r)
	if err != nil {
		return reply{}, err
	}
	st.Wishlist.Remove(id)
	st.AddFlash(session.FlashInfo, "Removed from your wishlist.")
	return redirect("/wishlist"), nil
}
