// Package checkout coordinates pricing, promo validation, the loyalty
// ledger and the order store into one atomic checkout.
package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/shopfront/internal/domain/loyalty"
	"github.com/xenking/shopfront/internal/domain/order"
	"github.com/xenking/shopfront/internal/domain/product"
	"github.com/xenking/shopfront/internal/domain/promo"
	"github.com/xenking/shopfront/internal/outbox"
)

// TxRepos are the repositories bound to one checkout transaction.
type TxRepos struct {
	Orders  order.Writer
	Stock   product.StockWriter
	Promos  promo.UsageRecorder
	Loyalty loyalty.Repository
	Outbox  outbox.Writer
}

// TxManager runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos TxRepos) error) error
}

// Options configure a Service.
type Options struct {
	// SupportsLoyalty reports whether the store carries loyalty balances.
	// When false, earning is skipped and redemption is refused.
	SupportsLoyalty bool
	MeterProvider   metric.MeterProvider
}

// Service is the checkout orchestrator. All methods operate on the
// caller's session state; none of them persist the session.
type Service struct {
	promos          *promo.Evaluator
	activePromos    promo.Repository
	loyalty         loyalty.Repository
	tx              TxManager
	supportsLoyalty bool
	now             func() time.Time

	orders         metric.Int64Counter
	failures       metric.Int64Counter
	loyaltySkipped metric.Int64Counter
}

// NewService creates a checkout Service.
func NewService(
	promos promo.Repository,
	redemptions promo.RedemptionCounter,
	balances loyalty.Repository,
	tx TxManager,
	opts Options,
) (*Service, error) {
	s := &Service{
		promos:          promo.NewEvaluator(promos, redemptions),
		activePromos:    promos,
		loyalty:         balances,
		tx:              tx,
		supportsLoyalty: opts.SupportsLoyalty,
		now:             time.Now,
	}
	if err := s.initMetrics(opts.MeterProvider); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) initMetrics(mp metric.MeterProvider) error {
	meter := mp.Meter("shopfront/checkout")

	var err error
	if s.orders, err = meter.Int64Counter("checkout.orders",
		metric.WithDescription("Committed orders"),
	); err != nil {
		return errors.Wrap(err, "orders counter")
	}
	if s.failures, err = meter.Int64Counter("checkout.failures",
		metric.WithDescription("Rolled back checkouts by step"),
	); err != nil {
		return errors.Wrap(err, "failures counter")
	}
	if s.loyaltySkipped, err = meter.Int64Counter("checkout.loyalty_skipped"); err != nil {
		return errors.Wrap(err, "loyalty skipped counter")
	}
	return nil
}
