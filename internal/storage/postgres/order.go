package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shopfront/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (user_id, name, contact, address, postal_code, payment_method,
		delivery_date, time_slot, notes, subtotal, promo_discount, loyalty_discount, final_total,
		promo_code, points_redeemed, points_earned)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, product_id, product_name, unit_price, quantity, line_total)
		VALUES ($1, $2, $3, $4, $5, $6)`

	insertInvoiceSQL = `INSERT INTO invoices (order_id, user_id, invoice_number, subtotal, final_total)
		VALUES ($1, $2, $3, $4, $5)`

	orderColumns = `o.id, COALESCE(o.user_id, 0), o.name, o.contact, o.address, o.postal_code, o.payment_method,
		to_char(o.delivery_date, 'YYYY-MM-DD'), o.time_slot, o.notes, o.subtotal, o.promo_discount,
		o.loyalty_discount, o.final_total, o.promo_code, o.points_redeemed, o.points_earned,
		COALESCE(i.invoice_number, ''), o.created_at`

	listOrdersByUserSQL = `SELECT ` + orderColumns + `
		FROM orders o LEFT JOIN invoices i ON i.order_id = o.id
		WHERE o.user_id = $1 ORDER BY o.created_at DESC, o.id DESC`

	getOrderForUserSQL = `SELECT ` + orderColumns + `
		FROM orders o LEFT JOIN invoices i ON i.order_id = o.id
		WHERE o.id = $1 AND o.user_id = $2`

	listOrderItemsSQL = `SELECT product_id, product_name, unit_price, quantity, line_total
		FROM order_items WHERE order_id = $1 ORDER BY id`

	listInvoicesSQL = `SELECT order_id, COALESCE(user_id, 0), invoice_number, subtotal, final_total, created_at
		FROM invoices ORDER BY created_at DESC, id DESC`
)

var (
	_ order.Writer = (*OrderRepository)(nil)
	_ order.Reader = (*OrderRepository)(nil)
)

// OrderRepository persists orders, their items and invoices.
type OrderRepository struct {
	db dbtx
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: pool}
}

// InsertOrder writes the order header and returns the new id. Items are
// written separately with InsertItem.
func (r *OrderRepository) InsertOrder(ctx context.Context, o *order.Order) (int64, error) {
	date, err := time.Parse(order.DateLayout, o.Delivery.Date)
	if err != nil {
		return 0, fmt.Errorf("parsing delivery date %q: %w", o.Delivery.Date, err)
	}

	d := o.Delivery
	var id int64
	err = r.db.QueryRow(ctx, insertOrderSQL,
		nullID(o.UserID), d.Name, d.Contact, d.Address, d.PostalCode, d.PaymentMethod,
		date, d.TimeSlot, d.Notes, o.Subtotal, o.PromoDiscount, o.LoyaltyDiscount, o.FinalTotal,
		o.PromoCode, o.PointsRedeemed, o.PointsEarned,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("creating order: %w", err)
	}
	return id, nil
}

// InsertItem writes one order line.
func (r *OrderRepository) InsertItem(ctx context.Context, orderID int64, it order.Item) error {
	_, err := r.db.Exec(ctx, insertOrderItemSQL,
		orderID, it.ProductID, it.ProductName, it.UnitPrice, it.Quantity, it.LineTotal,
	)
	if err != nil {
		return fmt.Errorf("creating item %d of order %d: %w", it.ProductID, orderID, err)
	}
	return nil
}

// InsertInvoice writes the invoice of an order.
func (r *OrderRepository) InsertInvoice(ctx context.Context, inv order.Invoice) error {
	_, err := r.db.Exec(ctx, insertInvoiceSQL,
		inv.OrderID, nullID(inv.UserID), inv.InvoiceNumber, inv.Subtotal, inv.FinalTotal,
	)
	if err != nil {
		return fmt.Errorf("creating invoice for order %d: %w", inv.OrderID, err)
	}
	return nil
}

// ListByUser returns the user's orders newest first, without items.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]order.Order, error) {
	rows, err := r.db.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of user %d: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// GetForUser returns an order with its items when it belongs to userID.
func (r *OrderRepository) GetForUser(ctx context.Context, orderID, userID int64) (*order.Order, error) {
	rows, err := r.db.Query(ctx, getOrderForUserSQL, orderID, userID)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", orderID, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", orderID, err)
	}

	rows, err = r.db.Query(ctx, listOrderItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing items of order %d: %w", orderID, err)
	}
	o.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		var it order.Item
		err := row.Scan(&it.ProductID, &it.ProductName, &it.UnitPrice, &it.Quantity, &it.LineTotal)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing items of order %d: %w", orderID, err)
	}
	return &o, nil
}

// ListInvoices returns every invoice newest first.
func (r *OrderRepository) ListInvoices(ctx context.Context) ([]order.Invoice, error) {
	rows, err := r.db.Query(ctx, listInvoicesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Invoice, error) {
		var inv order.Invoice
		err := row.Scan(&inv.OrderID, &inv.UserID, &inv.InvoiceNumber, &inv.Subtotal, &inv.FinalTotal, &inv.CreatedAt)
		return inv, err
	})
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	d := &o.Delivery
	err := row.Scan(
		&o.ID, &o.UserID, &d.Name, &d.Contact, &d.Address, &d.PostalCode, &d.PaymentMethod,
		&d.Date, &d.TimeSlot, &d.Notes, &o.Subtotal, &o.PromoDiscount,
		&o.LoyaltyDiscount, &o.FinalTotal, &o.PromoCode, &o.PointsRedeemed, &o.PointsEarned,
		&o.InvoiceNumber, &o.CreatedAt,
	)
	return o, err
}
