package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/shopfront/internal/checkout"
	"github.com/xenking/shopfront/internal/domain/loyalty"
	"github.com/xenking/shopfront/internal/domain/order"
	"github.com/xenking/shopfront/internal/domain/promo"
	"github.com/xenking/shopfront/internal/domain/session"
)

func (h *Handler) viewCheckout(r *http.Request, st *session.State) (reply, error) {
	v, err := h.Checkout.Render(r.Context(), st)
	if errors.Is(err, checkout.ErrEmptyCart) {
		st.AddFlash(session.FlashError, "Your cart is empty.")
		return redirect("/cart"), nil
	}
	if err != nil {
		return reply{}, err
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		encodeLines(e, st.Cart.Lines)
		encodeBreakdown(e, v.Breakdown)
		encodeApplication(e, "applied_promo", st.AppliedPromo)
		encodeApplication(e, "preview_promo", st.PreviewPromo)
		encodeRedemption(e, st.LoyaltyRedemption)
		encodeAccount(e, v.Account)
		e.Field("active_promos", func(e *jx.Encoder) {
			e.ArrStart()
			for _, p := range v.ActivePromos {
				e.Obj(func(e *jx.Encoder) {
					e.Field("code", func(e *jx.Encoder) { e.Str(p.Code) })
					e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
					e.Field("kind", func(e *jx.Encoder) { e.Str(string(p.Kind)) })
					e.Field("amount", func(e *jx.Encoder) { e.Str(p.Amount.String()) })
					money(e, "min_subtotal", p.MinSubtotal)
				})
			}
			e.ArrEnd()
		})
		encodeDelivery(e, "delivery_draft", st.DeliveryDraft)
		e.Field("time_slots", func(e *jx.Encoder) { strArray(e, order.TimeSlots) })
		e.Field("payment_methods", func(e *jx.Encoder) { strArray(e, order.PaymentMethods) })
		encodeFlashes(e, st)
	})
	return jsonReply(http.StatusOK, &e), nil
}

func strArray(e *jx.Encoder, values []string) {
	e.ArrStart()
	for _, v := range values {
		e.Str(v)
	}
	e.ArrEnd()
}

func (h *Handler) placeOrder(r *http.Request, st *session.State) (reply, error) {
	d := order.Delivery{
		Name:          strings.TrimSpace(r.PostFormValue("name")),
		Contact:       strings.TrimSpace(r.PostFormValue("contact")),
		Address:       strings.TrimSpace(r.PostFormValue("address")),
		PostalCode:    strings.TrimSpace(r.PostFormValue("postal_code")),
		PaymentMethod: r.PostFormValue("payment_method"),
		Date:          r.PostFormValue("date"),
		TimeSlot:      r.PostFormValue("time_slot"),
		Notes:         strings.TrimSpace(r.PostFormValue("notes")),
	}

	receipt, err := h.Checkout.PlaceOrder(r.Context(), st, d)
	if err == nil {
		st.AddFlash(session.FlashSuccess, fmt.Sprintf(
			"Order placed successfully! You earned %d points.", receipt.PointsCredited))
		rep := redirect("/invoice/" + strconv.FormatInt(receipt.OrderID, 10))
		rep.onSaveError = h.orderCommitted(st.ID, receipt)
		return rep, nil
	}

	var (
		invalid *order.ValidationError
		stock   *checkout.InsufficientStockError
		step    *checkout.StepError
	)
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		st.AddFlash(session.FlashError, "Cart is empty.")
		return redirect("/cart"), nil
	case errors.As(err, &invalid):
		for _, f := range invalid.Fields {
			st.AddFlash(session.FlashError, f.Message)
		}
	case errors.As(err, &stock):
		st.AddFlash(session.FlashError, stock.Error())
	case errors.As(err, &step):
		st.AddFlash(session.FlashError, step.Message())
	default:
		return reply{}, err
	}
	return redirect("/checkout"), nil
}

// orderCommitted handles a session that could not be cleared after the
// order committed. The stale copy still holds the settled redemption and
// the cart, so it is dropped rather than left for a later cancel to credit
// back. The order stands either way.
func (h *Handler) orderCommitted(id string, receipt *checkout.Receipt) func(context.Context, error) (reply, error) {
	return func(ctx context.Context, _ error) (reply, error) {
		if err := h.Sessions.Delete(ctx, id); err != nil {
			zctx.From(ctx).Error("Failed to drop session after order",
				zap.Int64("order_id", receipt.OrderID),
				zap.Error(err),
			)
		}
		rep := redirect("/invoice/" + strconv.FormatInt(receipt.OrderID, 10))
		rep.expireCookie = true
		return rep, nil
	}
}

// promoFlash turns a promo rejection into an error flash. Other errors are
// returned for the caller to fail the request with.
func promoFlash(st *session.State, err error) (reply, error) {
	var invalid *promo.InvalidError
	if !errors.As(err, &invalid) {
		return reply{}, err
	}
	st.AddFlash(session.FlashError, invalid.Error())
	return redirect("/checkout"), nil
}

func (h *Handler) applyPromo(r *http.Request, st *session.State) (reply, error) {
	code := strings.TrimSpace(r.PostFormValue("code"))
	if code == "" {
		st.AddFlash(session.FlashError, "Please provide a promo code")
		return redirect("/checkout"), nil
	}
	app, err := h.Checkout.ApplyPromo(r.Context(), st, code)
	if err != nil {
		return promoFlash(st, err)
	}
	st.AddFlash(session.FlashSuccess, fmt.Sprintf("Promo applied: %s (-$%s)", app.Code, app.Discount.StringFixed(2)))
	return redirect("/checkout"), nil
}

func (h *Handler) previewPromo(r *http.Request, st *session.State) (reply, error) {
	code := strings.TrimSpace(r.PostFormValue("code"))
	if code == "" {
		st.AddFlash(session.FlashError, "Please provide a promo code")
		return redirect("/checkout"), nil
	}
	app, err := h.Checkout.PreviewPromo(r.Context(), st, code)
	if err != nil {
		return promoFlash(st, err)
	}
	st.AddFlash(session.FlashSuccess, fmt.Sprintf("Promo preview: %s (-$%s)", app.Code, app.Discount.StringFixed(2)))
	return redirect("/checkout"), nil
}

func (h *Handler) confirmPromo(r *http.Request, st *session.State) (reply, error) {
	app, err := h.Checkout.ConfirmPromo(r.Context(), st)
	if errors.Is(err, checkout.ErrNoPreview) {
		st.AddFlash(session.FlashError, "No promo to confirm")
		return redirect("/checkout"), nil
	}
	if err != nil {
		return promoFlash(st, err)
	}
	st.AddFlash(session.FlashSuccess, fmt.Sprintf("Promo applied: %s (-$%s)", app.Code, app.Discount.StringFixed(2)))
	return redirect("/checkout"), nil
}

func (h *Handler) cancelPromo(_ *http.Request, st *session.State) (reply, error) {
	h.Checkout.CancelPromo(st)
	st.AddFlash(session.FlashInfo, "Promo preview cancelled")
	return redirect("/checkout"), nil
}

func (h *Handler) removeAppliedPromo(_ *http.Request, st *session.State) (reply, error) {
	if code := h.Checkout.RemoveAppliedPromo(st); code != "" {
		st.AddFlash(session.FlashInfo, "Removed applied promo "+code)
	} else {
		st.AddFlash(session.FlashInfo, "No promo is applied")
	}
	return redirect("/checkout"), nil
}

var loyaltyMessages = []struct {
	err error
	msg string
}{
	{checkout.ErrAnonymous, "You must be logged in to redeem points."},
	{checkout.ErrRedemptionPending, "A loyalty redemption is already pending. Cancel it before redeeming again."},
	{loyalty.ErrInvalidAmount, "Please enter a valid number of points."},
	{loyalty.ErrNotMultiple, "Please redeem points in multiples of 100."},
	{loyalty.ErrInsufficientBalance, "You do not have enough points to redeem that amount."},
	{loyalty.ErrSchemaMissing, "Loyalty points are not available right now."},
}

func (h *Handler) applyLoyalty(r *http.Request, st *session.State) (reply, error) {
	points, err := strconv.ParseInt(strings.TrimSpace(r.PostFormValue("points")), 10, 64)
	if err != nil {
		points = 0
	}

	red, err := h.Checkout.ApplyLoyalty(r.Context(), st, points)
	if err != nil {
		for _, m := range loyaltyMessages {
			if errors.Is(err, m.err) {
				st.AddFlash(session.FlashError, m.msg)
				return redirect("/checkout"), nil
			}
		}
		return reply{}, err
	}
	st.AddFlash(session.FlashSuccess, fmt.Sprintf(
		"Redeeming %d points for $%s off.", red.Points, red.Discount.StringFixed(2)))
	rep := redirect("/checkout")
	// The points are already debited; an unsaved session must not keep them.
	rep.onSaveError = func(ctx context.Context, err error) (reply, error) {
		if _, cerr := h.Checkout.CancelLoyalty(ctx, st); cerr != nil {
			zctx.From(ctx).Error("Failed to restore unsaved redemption",
				zap.Int64("user_id", st.UserID),
				zap.Int64("points", red.Points),
				zap.Error(cerr),
			)
		}
		return reply{}, err
	}
	return rep, nil
}

func (h *Handler) cancelLoyalty(r *http.Request, st *session.State) (reply, error) {
	pending := st.LoyaltyRedemption
	restored, err := h.Checkout.CancelLoyalty(r.Context(), st)
	if err != nil {
		return reply{}, err
	}
	if restored == 0 {
		st.AddFlash(session.FlashInfo, "No loyalty redemption to cancel.")
		return redirect("/checkout"), nil
	}
	st.AddFlash(session.FlashInfo, "Loyalty redemption cancelled and points restored.")
	rep := redirect("/checkout")
	// The stored session still carries the redemption; debit it again so a
	// second cancel cannot credit the same points twice.
	rep.onSaveError = func(ctx context.Context, err error) (reply, error) {
		if _, aerr := h.Checkout.ApplyLoyalty(ctx, st, pending.Points); aerr != nil {
			zctx.From(ctx).Error("Failed to re-apply unsaved cancellation",
				zap.Int64("user_id", st.UserID),
				zap.Int64("points", pending.Points),
				zap.Error(aerr),
			)
		}
		return reply{}, err
	}
	return rep, nil
}
