package checkout

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/shopfront/internal/domain/loyalty"
	"github.com/xenking/shopfront/internal/domain/order"
	"github.com/xenking/shopfront/internal/domain/promo"
	"github.com/xenking/shopfront/internal/outbox"
)

// fakeData is an in-memory store. Transactions run on a copy that replaces
// the original only when fn succeeds.
type fakeData struct {
	stock       map[int64]int
	promos      map[int64]promo.Promo
	redemptions map[[2]int64]int
	balances    map[int64]int64
	orders      []order.Order
	items       map[int64][]order.Item
	invoices    []order.Invoice
	events      []outbox.Event
	decremented []int64
	nextOrderID int64

	// failAt makes the named write fail.
	failAt map[Step]error
}

func (d *fakeData) clone() *fakeData {
	c := *d
	c.stock = maps.Clone(d.stock)
	c.promos = maps.Clone(d.promos)
	c.redemptions = maps.Clone(d.redemptions)
	c.balances = maps.Clone(d.balances)
	c.orders = slices.Clone(d.orders)
	c.items = maps.Clone(d.items)
	c.invoices = slices.Clone(d.invoices)
	c.events = slices.Clone(d.events)
	c.decremented = slices.Clone(d.decremented)
	return &c
}

func (d *fakeData) InsertOrder(_ context.Context, o *order.Order) (int64, error) {
	if err := d.failAt[StepOrder]; err != nil {
		return 0, err
	}
	d.nextOrderID++
	stored := *o
	stored.ID = d.nextOrderID
	d.orders = append(d.orders, stored)
	return stored.ID, nil
}

func (d *fakeData) InsertItem(_ context.Context, orderID int64, item order.Item) error {
	if err := d.failAt[StepItems]; err != nil {
		return err
	}
	d.items[orderID] = append(slices.Clone(d.items[orderID]), item)
	return nil
}

func (d *fakeData) InsertInvoice(_ context.Context, inv order.Invoice) error {
	if err := d.failAt[StepInvoice]; err != nil {
		return err
	}
	d.invoices = append(d.invoices, inv)
	return nil
}

func (d *fakeData) DecrementIfAvailable(_ context.Context, id int64, qty int) (bool, error) {
	if err := d.failAt[StepStock]; err != nil {
		return false, err
	}
	if d.stock[id] < qty {
		return false, nil
	}
	d.stock[id] -= qty
	d.decremented = append(d.decremented, id)
	return true, nil
}

func (d *fakeData) FindByCode(_ context.Context, code string) (*promo.Promo, error) {
	for _, p := range d.promos {
		if strings.EqualFold(p.Code, code) {
			return &p, nil
		}
	}
	return nil, promo.ErrNotFound
}

func (d *fakeData) FindByID(_ context.Context, id int64) (*promo.Promo, error) {
	p, ok := d.promos[id]
	if !ok {
		return nil, promo.ErrNotFound
	}
	return &p, nil
}

func (d *fakeData) ListActive(_ context.Context, now time.Time) ([]promo.Promo, error) {
	var out []promo.Promo
	for _, p := range d.promos {
		if p.Active && promo.Redeemable(&p, now) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (d *fakeData) RedemptionCount(_ context.Context, promoID, userID int64) (int, error) {
	return d.redemptions[[2]int64{promoID, userID}], nil
}

func (d *fakeData) IncrementUsage(_ context.Context, promoID int64) error {
	if err := d.failAt[StepPromo]; err != nil {
		return err
	}
	p := d.promos[promoID]
	p.Uses++
	d.promos[promoID] = p
	return nil
}

func (d *fakeData) UpsertRedemption(_ context.Context, promoID, userID int64) error {
	d.redemptions[[2]int64{promoID, userID}]++
	return nil
}

func (d *fakeData) Balance(_ context.Context, userID int64) (int64, error) {
	b, ok := d.balances[userID]
	if !ok {
		return 0, loyalty.ErrUserNotFound
	}
	return b, nil
}

func (d *fakeData) Debit(_ context.Context, userID, points int64, _ loyalty.Kind) (int64, error) {
	if d.balances[userID] < points {
		return 0, loyalty.ErrInsufficientBalance
	}
	d.balances[userID] -= points
	return d.balances[userID], nil
}

func (d *fakeData) Credit(_ context.Context, userID, points int64, _ loyalty.Kind, _ int64) (int64, error) {
	if err := d.failAt[StepLoyalty]; err != nil {
		return 0, err
	}
	d.balances[userID] += points
	return d.balances[userID], nil
}

func (d *fakeData) Insert(_ context.Context, e outbox.Event) error {
	if err := d.failAt[StepEvent]; err != nil {
		return err
	}
	d.events = append(d.events, e)
	return nil
}

// fakeDB serializes transactions under one lock.
type fakeDB struct {
	mu   sync.Mutex
	data *fakeData
}

func newFakeDB() *fakeDB {
	return &fakeDB{data: &fakeData{
		stock:       map[int64]int{},
		promos:      map[int64]promo.Promo{},
		redemptions: map[[2]int64]int{},
		balances:    map[int64]int64{},
		items:       map[int64][]order.Item{},
		failAt:      map[Step]error{},
	}}
}

func (db *fakeDB) WithinTx(ctx context.Context, fn func(ctx context.Context, repos TxRepos) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx := db.data.clone()
	if err := fn(ctx, TxRepos{Orders: tx, Stock: tx, Promos: tx, Loyalty: tx, Outbox: tx}); err != nil {
		return err
	}
	db.data = tx
	return nil
}

// snapshot returns the committed state for assertions.
func (db *fakeDB) snapshot() *fakeData {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.data.clone()
}

func (db *fakeDB) update(fn func(d *fakeData)) {
	db.mu.Lock()
	defer db.mu.Unlock()
	fn(db.data)
}

// locked exposes the committed state to the non-transactional reads.
type locked struct{ db *fakeDB }

func (l locked) FindByCode(ctx context.Context, code string) (*promo.Promo, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	return l.db.data.FindByCode(ctx, code)
}

func (l locked) FindByID(ctx context.Context, id int64) (*promo.Promo, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	return l.db.data.FindByID(ctx, id)
}

func (l locked) ListActive(ctx context.Context, now time.Time) ([]promo.Promo, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	return l.db.data.ListActive(ctx, now)
}

func (l locked) RedemptionCount(ctx context.Context, promoID, userID int64) (int, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	return l.db.data.RedemptionCount(ctx, promoID, userID)
}

func (l locked) Balance(ctx context.Context, userID int64) (int64, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	return l.db.data.Balance(ctx, userID)
}

func (l locked) Debit(ctx context.Context, userID, points int64, kind loyalty.Kind) (int64, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	return l.db.data.Debit(ctx, userID, points, kind)
}

func (l locked) Credit(ctx context.Context, userID, points int64, kind loyalty.Kind, orderID int64) (int64, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	return l.db.data.Credit(ctx, userID, points, kind, orderID)
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
