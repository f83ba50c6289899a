package checkout

import (
	"github.com/go-faster/jx"

	"github.com/xenking/shopfront/internal/domain/order"
)

// encodeOrderPlaced renders the order.placed payload. Money fields are
// decimal strings so consumers never see float rounding.
func encodeOrderPlaced(o *order.Order) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("order_id")
	e.Int64(o.ID)
	e.FieldStart("invoice_number")
	e.Str(o.InvoiceNumber)
	e.FieldStart("user_id")
	e.Int64(o.UserID)
	e.FieldStart("subtotal")
	e.Str(o.Subtotal.StringFixed(2))
	e.FieldStart("promo_discount")
	e.Str(o.PromoDiscount.StringFixed(2))
	e.FieldStart("loyalty_discount")
	e.Str(o.LoyaltyDiscount.StringFixed(2))
	e.FieldStart("final_total")
	e.Str(o.FinalTotal.StringFixed(2))
	if o.PromoCode != "" {
		e.FieldStart("promo_code")
		e.Str(o.PromoCode)
	}
	e.FieldStart("points_redeemed")
	e.Int64(o.PointsRedeemed)
	e.FieldStart("points_earned")
	e.Int64(o.PointsEarned)

	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Int64(it.ProductID)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("unit_price")
		e.Str(it.UnitPrice.StringFixed(2))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}
