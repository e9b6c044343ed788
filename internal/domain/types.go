package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus enumerates the lifecycle states of an order.
type OrderStatus string

const (
	// OrderStatusPending is the initial state assigned on creation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates the business accepted the order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates fulfilment work has started.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order left the business.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered is terminal and marks a completed order.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled is terminal; consumed inventory is restored on entry.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every known order status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// Valid reports whether the status is one of the known lifecycle states.
func (s OrderStatus) Valid() bool {
	for _, candidate := range OrderStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// PaymentStatus tracks settlement independently of the fulfilment status.
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPartial  PaymentStatus = "partial"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Valid reports whether the payment status is recognised.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusUnpaid, PaymentStatusPartial, PaymentStatusPaid, PaymentStatusRefunded:
		return true
	}
	return false
}

// Address is a postal address attached to an order for shipping or billing.
type Address struct {
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
}

// IsZero reports whether every address field is blank.
func (a Address) IsZero() bool {
	return a == Address{}
}

// OrderTotals carries the monetary summary of an order.
type OrderTotals struct {
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
}

// Order is the persisted record of a customer purchase scoped to a business.
type Order struct {
	ID                    string
	BusinessID            string
	CustomerID            *string
	CustomerName          string
	OrderNumber           string
	Status                OrderStatus
	PaymentStatus         PaymentStatus
	TaxRate               decimal.Decimal
	Totals                OrderTotals
	Notes                 *string
	ShippingAddress       *Address
	BillingAddress        *Address
	EstimatedDeliveryDate *time.Time
	ActualDeliveryDate    *time.Time
	Items                 []OrderItem
	CreatedBy             string
	UpdatedBy             string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// OrderItem is a single line of an order. An item references at most one of
// a catalogue product or an inventory record.
type OrderItem struct {
	ID          string
	OrderID     string
	ProductID   *string
	InventoryID *string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// TotalPrice is derived from quantity and unit price and never stored.
func (i OrderItem) TotalPrice() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// TracksInventory reports whether the item is bound to an inventory record.
func (i OrderItem) TracksInventory() bool {
	return i.InventoryID != nil && *i.InventoryID != ""
}

// OrderStatusHistoryEntry is an append-only audit row for a status change.
type OrderStatusHistoryEntry struct {
	ID        string
	OrderID   string
	Status    OrderStatus
	ActorID   string
	Notes     *string
	CreatedAt time.Time
}

// InventoryRecord is the stock level of a tracked product.
type InventoryRecord struct {
	ID              string
	BusinessID      string
	Name            string
	CurrentQuantity int
	LowStockAlert   int
	UpdatedAt       time.Time
}

// InventoryTransactionType labels the reason a stock level changed.
type InventoryTransactionType string

const (
	// InventoryTransactionSale records stock consumed by an order.
	InventoryTransactionSale InventoryTransactionType = "sale"
	// InventoryTransactionReturn records stock restored by a cancellation.
	InventoryTransactionReturn InventoryTransactionType = "return"
)

// InventoryTransaction is an immutable ledger row describing a stock change.
type InventoryTransaction struct {
	ID                string
	InventoryID       string
	OrderID           string
	Type              InventoryTransactionType
	QuantityChange    int
	ResultingQuantity int
	Notes             string
	CreatedBy         string
	CreatedAt         time.Time
}

// Customer carries the read-only identity fields the order core needs.
type Customer struct {
	ID         string
	BusinessID string
	Name       string
	Email      string
	Phone      string
}
