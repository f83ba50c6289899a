package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// invoiceBase is added to the order id to form the invoice number.
const invoiceBase = 108000

// ErrNotFound is returned when an order does not exist or belongs to
// another user.
var ErrNotFound = errors.New("order not found")

// Order is a committed checkout.
type Order struct {
	ID              int64
	UserID          int64
	Delivery        Delivery
	Subtotal        decimal.Decimal
	PromoDiscount   decimal.Decimal
	LoyaltyDiscount decimal.Decimal
	FinalTotal      decimal.Decimal
	PromoCode       string
	PointsRedeemed  int64
	PointsEarned    int64
	InvoiceNumber   string
	Items           []Item
	CreatedAt       time.Time
}

// Item is an order line, frozen at commit time.
type Item struct {
	ProductID   int64
	ProductName string
	UnitPrice   decimal.Decimal
	Quantity    int
	LineTotal   decimal.Decimal
}

// Invoice is minted once per order inside the checkout transaction.
type Invoice struct {
	OrderID       int64
	UserID        int64
	InvoiceNumber string
	Subtotal      decimal.Decimal
	FinalTotal    decimal.Decimal
	CreatedAt     time.Time
}

// InvoiceNumber derives the invoice number for an order id.
func InvoiceNumber(orderID int64) string {
	return fmt.Sprintf("#%d", invoiceBase+orderID)
}

// Writer persists a new order inside the checkout transaction.
type Writer interface {
	InsertOrder(ctx context.Context, o *Order) (int64, error)
	InsertItem(ctx context.Context, orderID int64, item Item) error
	InsertInvoice(ctx context.Context, inv Invoice) error
}

// Reader serves order history.
type Reader interface {
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
	// GetForUser returns the order with its items, or ErrNotFound when it
	// does not belong to userID.
	GetForUser(ctx context.Context, orderID, userID int64) (*Order, error)
	ListInvoices(ctx context.Context) ([]Invoice, error)
}
