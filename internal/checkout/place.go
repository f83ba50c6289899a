package checkout

import (
	"cmp"
	"context"
	"slices"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/shopfront/internal/domain/loyalty"
	"github.com/xenking/shopfront/internal/domain/order"
	"github.com/xenking/shopfront/internal/domain/promo"
	"github.com/xenking/shopfront/internal/domain/session"
	"github.com/xenking/shopfront/internal/outbox"
	"github.com/xenking/shopfront/internal/pricing"
)

// Receipt describes a committed order.
type Receipt struct {
	OrderID       int64
	InvoiceNumber string
	Breakdown     pricing.Breakdown
	// PointsCredited is zero when loyalty accrual was skipped.
	PointsCredited int64
}

// PlaceOrder validates the delivery form and commits the cart as an order
// in one transaction: order header, items with conditional stock
// decrements, invoice, loyalty earn, promo usage and the order event.
//
// On success the cart, applied promo, pending redemption and delivery
// draft are cleared. On any failure nothing is persisted and the session
// keeps its cart, promo and redemption so the user can retry; the submitted
// delivery details are kept as the draft.
func (s *Service) PlaceOrder(ctx context.Context, st *session.State, d order.Delivery) (*Receipt, error) {
	if st.Cart.IsEmpty() {
		return nil, ErrEmptyCart
	}
	if err := d.Validate(s.now()); err != nil {
		st.DeliveryDraft = &d
		return nil, err
	}

	promoDiscount, loyaltyDiscount := lockedDiscounts(st)
	b := pricing.Calculate(st.Cart.Lines, promoDiscount, loyaltyDiscount)

	o := &order.Order{
		UserID:          st.UserID,
		Delivery:        d,
		Subtotal:        b.Subtotal,
		PromoDiscount:   b.PromoDiscount,
		LoyaltyDiscount: b.LoyaltyDiscount,
		FinalTotal:      b.FinalTotal,
		PointsEarned:    b.EarnedPoints,
	}
	if st.AppliedPromo != nil {
		o.PromoCode = st.AppliedPromo.Code
	}
	if st.LoyaltyRedemption != nil {
		o.PointsRedeemed = st.LoyaltyRedemption.Points
	}
	for _, l := range st.Cart.Lines {
		o.Items = append(o.Items, order.Item{
			ProductID:   l.ProductID,
			ProductName: l.Name,
			UnitPrice:   l.UnitPrice,
			Quantity:    l.Quantity,
			LineTotal:   l.Total().Round(2),
		})
	}
	// Stock rows are locked in product order so concurrent checkouts of
	// overlapping carts cannot deadlock.
	slices.SortFunc(o.Items, func(a, b order.Item) int {
		return cmp.Compare(a.ProductID, b.ProductID)
	})

	var credited int64
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos TxRepos) error {
		var err error
		credited, err = s.commit(ctx, repos, st, o)
		return err
	})
	if err != nil {
		st.DeliveryDraft = &d
		return nil, s.failed(ctx, err)
	}

	s.orders.Add(ctx, 1)
	zctx.From(ctx).Info("Order placed",
		zap.Int64("order_id", o.ID),
		zap.String("invoice", o.InvoiceNumber),
		zap.Int64("user_id", o.UserID),
		zap.Stringer("final_total", o.FinalTotal),
	)

	st.ClearCheckout()
	return &Receipt{
		OrderID:        o.ID,
		InvoiceNumber:  o.InvoiceNumber,
		Breakdown:      b,
		PointsCredited: credited,
	}, nil
}

// commit runs the transactional steps. Each store error is tagged with its
// step so the caller can report which phase failed.
func (s *Service) commit(ctx context.Context, repos TxRepos, st *session.State, o *order.Order) (int64, error) {
	lg := zctx.From(ctx)

	id, err := repos.Orders.InsertOrder(ctx, o)
	if err != nil {
		return 0, &StepError{Step: StepOrder, Err: err}
	}
	o.ID = id
	o.InvoiceNumber = order.InvoiceNumber(id)

	for _, item := range o.Items {
		if err := repos.Orders.InsertItem(ctx, id, item); err != nil {
			return 0, &StepError{Step: StepItems, Err: err}
		}
		ok, err := repos.Stock.DecrementIfAvailable(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return 0, &StepError{Step: StepStock, Err: err}
		}
		if !ok {
			return 0, &InsufficientStockError{ProductID: item.ProductID, Name: item.ProductName}
		}
	}

	if err := repos.Orders.InsertInvoice(ctx, order.Invoice{
		OrderID:       id,
		UserID:        o.UserID,
		InvoiceNumber: o.InvoiceNumber,
		Subtotal:      o.Subtotal,
		FinalTotal:    o.FinalTotal,
	}); err != nil {
		return 0, &StepError{Step: StepInvoice, Err: err}
	}

	var credited int64
	switch {
	case o.UserID == 0:
	case !s.supportsLoyalty:
		s.loyaltySkipped.Add(ctx, 1)
		lg.Warn("Loyalty schema missing, skipping accrual", zap.Int64("order_id", id))
	default:
		credited, err = loyalty.NewLedger(repos.Loyalty).Earn(ctx, o.UserID, o.FinalTotal, id)
		if err != nil {
			return 0, &StepError{Step: StepLoyalty, Err: err}
		}
	}

	if st.AppliedPromo != nil {
		if err := s.recordPromoUse(ctx, repos.Promos, st.AppliedPromo.PromoID, o.UserID); err != nil {
			return 0, &StepError{Step: StepPromo, Err: err}
		}
	}

	payload := encodeOrderPlaced(o)
	if err := repos.Outbox.Insert(ctx, outbox.NewEvent(outbox.EventOrderPlaced, strconv.FormatInt(id, 10), payload)); err != nil {
		return 0, &StepError{Step: StepEvent, Err: err}
	}

	return credited, nil
}

// recordPromoUse increments usage counters when the promo is still inside
// its window and below its global cap. Otherwise the order keeps its locked
// discount and no usage is recorded.
func (s *Service) recordPromoUse(ctx context.Context, promos promo.UsageRecorder, promoID, userID int64) error {
	p, err := promos.FindByID(ctx, promoID)
	if err != nil && !errors.Is(err, promo.ErrNotFound) {
		return err
	}
	if !promo.Redeemable(p, s.now()) {
		zctx.From(ctx).Info("Promo no longer redeemable, usage not recorded", zap.Int64("promo_id", promoID))
		return nil
	}

	if err := promos.IncrementUsage(ctx, promoID); err != nil {
		return err
	}
	if userID != 0 {
		if err := promos.UpsertRedemption(ctx, promoID, userID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) failed(ctx context.Context, err error) error {
	var (
		stepErr  *StepError
		stockErr *InsufficientStockError
		step     Step
	)
	switch {
	case errors.As(err, &stepErr):
		step = stepErr.Step
	case errors.As(err, &stockErr):
		step = StepStock
	default:
		// WithinTx returns begin and commit failures untagged.
		step = StepCommit
		err = &StepError{Step: StepCommit, Err: err}
	}

	s.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("step", string(step))))
	zctx.From(ctx).Warn("Checkout rolled back", zap.String("step", string(step)), zap.Error(err))
	return err
}
