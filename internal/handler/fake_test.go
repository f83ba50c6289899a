package handler

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/xenking/shopfront/internal/checkout"
	"github.com/xenking/shopfront/internal/domain/auth"
	"github.com/xenking/shopfront/internal/domain/loyalty"
	"github.com/xenking/shopfront/internal/domain/order"
	"github.com/xenking/shopfront/internal/domain/product"
	"github.com/xenking/shopfront/internal/domain/promo"
	"github.com/xenking/shopfront/internal/outbox"
)

// memShop is a single-threaded in-memory store behind every repository
// interface the handlers reach. Requests in these tests are sequential.
type memShop struct {
	products map[int64]*product.Product
	promos   map[int64]promo.Promo
	balances map[int64]int64
	ledger   []loyalty.Transaction
	plans    map[int64]loyalty.Plan
	orders   []order.Order
	invoices []order.Invoice
	events   []outbox.Event
	keys     map[string]*auth.APIKeyInfo
	nextID   int64

	// failInsert makes InsertOrder fail.
	failInsert error
}

func newMemShop() *memShop {
	return &memShop{
		products: map[int64]*product.Product{},
		promos:   map[int64]promo.Promo{},
		balances: map[int64]int64{},
		plans:    map[int64]loyalty.Plan{},
		keys:     map[string]*auth.APIKeyInfo{},
	}
}

func (s *memShop) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memShop) GetByID(_ context.Context, id int64) (*product.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (s *memShop) SetStock(_ context.Context, id int64, stock int) error {
	if stock < 0 {
		return product.ErrNegativeStock
	}
	p, ok := s.products[id]
	if !ok {
		return product.ErrNotFound
	}
	p.Stock = stock
	return nil
}

func (s *memShop) DecrementIfAvailable(_ context.Context, id int64, qty int) (bool, error) {
	p, ok := s.products[id]
	if !ok || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	return true, nil
}

func (s *memShop) FindByCode(_ context.Context, code string) (*promo.Promo, error) {
	for _, p := range s.promos {
		if strings.EqualFold(p.Code, code) {
			return &p, nil
		}
	}
	return nil, promo.ErrNotFound
}

func (s *memShop) FindByID(_ context.Context, id int64) (*promo.Promo, error) {
	p, ok := s.promos[id]
	if !ok {
		return nil, promo.ErrNotFound
	}
	return &p, nil
}

func (s *memShop) ListActive(_ context.Context, now time.Time) ([]promo.Promo, error) {
	var out []promo.Promo
	for _, p := range s.promos {
		if p.Active && promo.Redeemable(&p, now) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memShop) RedemptionCount(context.Context, int64, int64) (int, error) {
	return 0, nil
}

func (s *memShop) IncrementUsage(_ context.Context, promoID int64) error {
	p := s.promos[promoID]
	p.Uses++
	s.promos[promoID] = p
	return nil
}

func (s *memShop) UpsertRedemption(context.Context, int64, int64) error {
	return nil
}

func (s *memShop) List(context.Context) ([]promo.Promo, error) {
	var out []promo.Promo
	for _, p := range s.promos {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b promo.Promo) int { return int(a.ID - b.ID) })
	return out, nil
}

func (s *memShop) Create(_ context.Context, p *promo.Promo) (int64, error) {
	if _, err := s.FindByCode(context.Background(), p.Code); err == nil {
		return 0, promo.ErrCodeTaken
	}
	p.ID = s.id()
	s.promos[p.ID] = *p
	return p.ID, nil
}

func (s *memShop) Update(_ context.Context, p *promo.Promo) error {
	old, ok := s.promos[p.ID]
	if !ok {
		return promo.ErrNotFound
	}
	p.Uses = old.Uses
	s.promos[p.ID] = *p
	return nil
}

func (s *memShop) Delete(_ context.Context, id int64) error {
	if _, ok := s.promos[id]; !ok {
		return promo.ErrNotFound
	}
	delete(s.promos, id)
	return nil
}

func (s *memShop) Balance(_ context.Context, userID int64) (int64, error) {
	b, ok := s.balances[userID]
	if !ok {
		return 0, loyalty.ErrUserNotFound
	}
	return b, nil
}

func (s *memShop) record(userID, delta int64, kind loyalty.Kind, orderID int64) int64 {
	s.balances[userID] += delta
	tx := loyalty.Transaction{ID: s.id(), UserID: userID, Delta: delta, Kind: kind, Balance: s.balances[userID], CreatedAt: time.Now()}
	if orderID != 0 {
		tx.OrderID = &orderID
	}
	s.ledger = append(s.ledger, tx)
	return s.balances[userID]
}

func (s *memShop) Debit(_ context.Context, userID, points int64, kind loyalty.Kind) (int64, error) {
	if s.balances[userID] < points {
		return 0, loyalty.ErrInsufficientBalance
	}
	return s.record(userID, -points, kind, 0), nil
}

func (s *memShop) Credit(_ context.Context, userID, points int64, kind loyalty.Kind, orderID int64) (int64, error) {
	return s.record(userID, points, kind, orderID), nil
}

func (s *memShop) Transactions(_ context.Context, userID int64, limit int) ([]loyalty.Transaction, error) {
	var out []loyalty.Transaction
	for i := len(s.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		if s.ledger[i].UserID == userID {
			out = append(out, s.ledger[i])
		}
	}
	return out, nil
}

func (s *memShop) SetBalance(_ context.Context, userID, balance int64) (int64, error) {
	if balance < 0 {
		return 0, loyalty.ErrNegativeBalance
	}
	old, ok := s.balances[userID]
	if !ok {
		return 0, loyalty.ErrUserNotFound
	}
	return s.record(userID, balance-old, loyalty.KindAdjustment, 0), nil
}

func (s *memShop) ListPlans(context.Context) ([]loyalty.Plan, error) {
	var out []loyalty.Plan
	for _, p := range s.plans {
		out = append(out, p)
	}
	return out, nil
}

func (s *memShop) CreatePlan(_ context.Context, p *loyalty.Plan) (int64, error) {
	p.ID = s.id()
	s.plans[p.ID] = *p
	return p.ID, nil
}

func (s *memShop) UpdatePlan(_ context.Context, p *loyalty.Plan) error {
	if _, ok := s.plans[p.ID]; !ok {
		return loyalty.ErrPlanNotFound
	}
	s.plans[p.ID] = *p
	return nil
}

func (s *memShop) DeletePlan(_ context.Context, id int64) error {
	if _, ok := s.plans[id]; !ok {
		return loyalty.ErrPlanNotFound
	}
	delete(s.plans, id)
	return nil
}

func (s *memShop) InsertOrder(_ context.Context, o *order.Order) (int64, error) {
	if s.failInsert != nil {
		return 0, s.failInsert
	}
	stored := *o
	stored.ID = int64(len(s.orders) + 1)
	stored.Items = nil
	stored.CreatedAt = time.Now()
	s.orders = append(s.orders, stored)
	return stored.ID, nil
}

func (s *memShop) InsertItem(_ context.Context, orderID int64, item order.Item) error {
	s.orders[orderID-1].Items = append(s.orders[orderID-1].Items, item)
	return nil
}

func (s *memShop) InsertInvoice(_ context.Context, inv order.Invoice) error {
	s.orders[inv.OrderID-1].InvoiceNumber = inv.InvoiceNumber
	inv.CreatedAt = time.Now()
	s.invoices = append(s.invoices, inv)
	return nil
}

func (s *memShop) Insert(_ context.Context, e outbox.Event) error {
	s.events = append(s.events, e)
	return nil
}

func (s *memShop) ListByUser(_ context.Context, userID int64) ([]order.Order, error) {
	var out []order.Order
	for i := len(s.orders) - 1; i >= 0; i-- {
		if s.orders[i].UserID == userID {
			out = append(out, s.orders[i])
		}
	}
	return out, nil
}

func (s *memShop) GetForUser(_ context.Context, orderID, userID int64) (*order.Order, error) {
	if orderID < 1 || orderID > int64(len(s.orders)) || s.orders[orderID-1].UserID != userID {
		return nil, order.ErrNotFound
	}
	o := s.orders[orderID-1]
	return &o, nil
}

func (s *memShop) ListInvoices(context.Context) ([]order.Invoice, error) {
	out := slices.Clone(s.invoices)
	slices.Reverse(out)
	return out, nil
}

func (s *memShop) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := s.keys[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return info, nil
}

func (s *memShop) WithinTx(ctx context.Context, fn func(ctx context.Context, repos checkout.TxRepos) error) error {
	return fn(ctx, checkout.TxRepos{Orders: s, Stock: s, Promos: s, Loyalty: s, Outbox: s})
}
