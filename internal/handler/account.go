package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/shopfront/internal/domain/session"
)

const historyLimit = 20

func (h *Handler) viewLoyalty(r *http.Request, st *session.State) (reply, error) {
	ctx := r.Context()
	acc, err := h.Checkout.LoyaltyAccount(ctx, st.UserID)
	if err != nil {
		return reply{}, err
	}
	txs, err := h.Ledger.Transactions(ctx, st.UserID, historyLimit)
	if err != nil {
		return reply{}, err
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("balance", func(e *jx.Encoder) { e.Int64(acc.Balance) })
		e.Field("tier", func(e *jx.Encoder) { e.Str(string(acc.Tier)) })
		e.Field("transactions", func(e *jx.Encoder) {
			e.ArrStart()
			for _, tx := range txs {
				e.Obj(func(e *jx.Encoder) {
					e.Field("delta", func(e *jx.Encoder) { e.Int64(tx.Delta) })
					e.Field("kind", func(e *jx.Encoder) { e.Str(string(tx.Kind)) })
					e.Field("balance", func(e *jx.Encoder) { e.Int64(tx.Balance) })
					if tx.OrderID != nil {
						e.Field("order_id", func(e *jx.Encoder) { e.Int64(*tx.OrderID) })
					}
					e.Field("created_at", func(e *jx.Encoder) { e.Str(tx.CreatedAt.UTC().Format(time.RFC3339)) })
				})
			}
			e.ArrEnd()
		})
		encodeFlashes(e, st)
	})
	return jsonReply(http.StatusOK, &e), nil
}

func (h *Handler) listOrders(r *http.Request, st *session.State) (reply, error) {
	orders, err := h.Orders.ListByUser(r.Context(), st.UserID)
	if err != nil {
		return reply{}, err
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("orders", func(e *jx.Encoder) {
			e.ArrStart()
			for _, o := range orders {
				e.Obj(func(e *jx.Encoder) { encodeOrderSummary(e, o) })
			}
			e.ArrEnd()
		})
		encodeFlashes(e, st)
	})
	return jsonReply(http.StatusOK, &e), nil
}

func (h *Handler) viewInvoice(r *http.Request, st *session.State) (reply, error) {
	id, err := pathID(r)
	if err != nil {
		return reply{}, err
	}
	o, err := h.Orders.GetForUser(r.Context(), id, st.UserID)
	if err != nil {
		return reply{}, err
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		encodeOrderSummary(e, *o)
		encodeDelivery(e, "delivery", &o.Delivery)
		e.Field("items", func(e *jx.Encoder) {
			e.ArrStart()
			for _, it := range o.Items {
				e.Obj(func(e *jx.Encoder) {
					e.Field("product_id", func(e *jx.Encoder) { e.Int64(it.ProductID) })
					e.Field("name", func(e *jx.Encoder) { e.Str(it.ProductName) })
					money(e, "unit_price", it.UnitPrice)
					e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
					money(e, "line_total", it.LineTotal)
				})
			}
			e.ArrEnd()
		})
		encodeFlashes(e, st)
	})
	return jsonReply(http.StatusOK, &e), nil
}
