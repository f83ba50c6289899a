package handler

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/shopfront/internal/checkout"
	"github.com/xenking/shopfront/internal/domain/cart"
	"github.com/xenking/shopfront/internal/domain/loyalty"
	"github.com/xenking/shopfront/internal/domain/order"
	"github.com/xenking/shopfront/internal/domain/promo"
	"github.com/xenking/shopfront/internal/domain/session"
	"github.com/xenking/shopfront/internal/pricing"
)

// money renders d as a two-decimal string.
func money(e *jx.Encoder, name string, d decimal.Decimal) {
	e.Field(name, func(e *jx.Encoder) { e.Str(d.StringFixed(2)) })
}

func timeField(e *jx.Encoder, name string, t *time.Time) {
	e.Field(name, func(e *jx.Encoder) {
		if t == nil {
			e.Null()
			return
		}
		e.Str(t.UTC().Format(time.RFC3339))
	})
}

func encodeLines(e *jx.Encoder, lines []cart.Line) {
	e.Field("lines", func(e *jx.Encoder) {
		e.ArrStart()
		for _, l := range lines {
			e.Obj(func(e *jx.Encoder) {
				e.Field("product_id", func(e *jx.Encoder) { e.Int64(l.ProductID) })
				e.Field("name", func(e *jx.Encoder) { e.Str(l.Name) })
				money(e, "unit_price", l.UnitPrice)
				e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
				money(e, "line_total", l.Total())
				if l.Image != "" {
					e.Field("image", func(e *jx.Encoder) { e.Str(l.Image) })
				}
			})
		}
		e.ArrEnd()
	})
}

func encodeBreakdown(e *jx.Encoder, b pricing.Breakdown) {
	e.Field("breakdown", func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			money(e, "subtotal", b.Subtotal)
			money(e, "promo_discount", b.PromoDiscount)
			money(e, "loyalty_discount", b.LoyaltyDiscount)
			money(e, "final_total", b.FinalTotal)
			e.Field("earned_points", func(e *jx.Encoder) { e.Int64(b.EarnedPoints) })
		})
	})
}

// encodeFlashes pops the session's flashes into the document.
func encodeFlashes(e *jx.Encoder, st *session.State) {
	e.Field("flashes", func(e *jx.Encoder) {
		e.ArrStart()
		for _, f := range st.PopFlashes() {
			e.Obj(func(e *jx.Encoder) {
				e.Field("kind", func(e *jx.Encoder) { e.Str(string(f.Kind)) })
				e.Field("message", func(e *jx.Encoder) { e.Str(f.Message) })
			})
		}
		e.ArrEnd()
	})
}

func encodeApplication(e *jx.Encoder, name string, app *promo.Application) {
	e.Field(name, func(e *jx.Encoder) {
		if app == nil {
			e.Null()
			return
		}
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Str(app.Code) })
			money(e, "discount", app.Discount)
		})
	})
}

func encodeRedemption(e *jx.Encoder, r *loyalty.Redemption) {
	e.Field("loyalty_redemption", func(e *jx.Encoder) {
		if r == nil {
			e.Null()
			return
		}
		e.Obj(func(e *jx.Encoder) {
			e.Field("points", func(e *jx.Encoder) { e.Int64(r.Points) })
			money(e, "discount", r.Discount)
		})
	})
}

func encodeDelivery(e *jx.Encoder, name string, d *order.Delivery) {
	e.Field(name, func(e *jx.Encoder) {
		if d == nil {
			e.Null()
			return
		}
		e.Obj(func(e *jx.Encoder) {
			for _, f := range [...]struct{ k, v string }{
				{"name", d.Name},
				{"contact", d.Contact},
				{"address", d.Address},
				{"postal_code", d.PostalCode},
				{"payment_method", d.PaymentMethod},
				{"date", d.Date},
				{"time_slot", d.TimeSlot},
				{"notes", d.Notes},
			} {
				e.Field(f.k, func(e *jx.Encoder) { e.Str(f.v) })
			}
		})
	})
}

func encodePromo(e *jx.Encoder, p promo.Promo) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(p.ID) })
		e.Field("code", func(e *jx.Encoder) { e.Str(p.Code) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		e.Field("kind", func(e *jx.Encoder) { e.Str(string(p.Kind)) })
		e.Field("amount", func(e *jx.Encoder) { e.Str(p.Amount.String()) })
		money(e, "min_subtotal", p.MinSubtotal)
		timeField(e, "starts_at", p.StartsAt)
		timeField(e, "ends_at", p.EndsAt)
		e.Field("max_uses", func(e *jx.Encoder) { e.Int(p.MaxUses) })
		e.Field("uses", func(e *jx.Encoder) { e.Int(p.Uses) })
		e.Field("per_user_limit", func(e *jx.Encoder) { e.Int(p.PerUserLimit) })
		e.Field("active", func(e *jx.Encoder) { e.Bool(p.Active) })
	})
}

func encodePlan(e *jx.Encoder, p loyalty.Plan) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		e.Field("points_multiplier", func(e *jx.Encoder) { e.Str(p.PointsMultiplier.String()) })
		money(e, "annual_fee", p.AnnualFee)
		e.Field("active", func(e *jx.Encoder) { e.Bool(p.Active) })
	})
}

func encodeAccount(e *jx.Encoder, acc *checkout.Account) {
	e.Field("account", func(e *jx.Encoder) {
		if acc == nil {
			e.Null()
			return
		}
		e.Obj(func(e *jx.Encoder) {
			e.Field("balance", func(e *jx.Encoder) { e.Int64(acc.Balance) })
			e.Field("tier", func(e *jx.Encoder) { e.Str(string(acc.Tier)) })
		})
	})
}

func encodeOrderSummary(e *jx.Encoder, o order.Order) {
	e.Field("id", func(e *jx.Encoder) { e.Int64(o.ID) })
	e.Field("invoice_number", func(e *jx.Encoder) { e.Str(o.InvoiceNumber) })
	money(e, "subtotal", o.Subtotal)
	money(e, "promo_discount", o.PromoDiscount)
	money(e, "loyalty_discount", o.LoyaltyDiscount)
	money(e, "final_total", o.FinalTotal)
	if o.PromoCode != "" {
		e.Field("promo_code", func(e *jx.Encoder) { e.Str(o.PromoCode) })
	}
	e.Field("points_redeemed", func(e *jx.Encoder) { e.Int64(o.PointsRedeemed) })
	e.Field("points_earned", func(e *jx.Encoder) { e.Int64(o.PointsEarned) })
	e.Field("created_at", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339)) })
}

func encodeInvoice(e *jx.Encoder, inv order.Invoice) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("order_id", func(e *jx.Encoder) { e.Int64(inv.OrderID) })
		e.Field("user_id", func(e *jx.Encoder) { e.Int64(inv.UserID) })
		e.Field("invoice_number", func(e *jx.Encoder) { e.Str(inv.InvoiceNumber) })
		money(e, "subtotal", inv.Subtotal)
		money(e, "final_total", inv.FinalTotal)
		e.Field("created_at", func(e *jx.Encoder) { e.Str(inv.CreatedAt.UTC().Format(time.RFC3339)) })
	})
}
