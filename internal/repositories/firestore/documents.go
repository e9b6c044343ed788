package firestore

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/ZoliswaDube/BizPilot-sub002/internal/domain"
)

// Money is stored as a fixed-point string so Firestore never rounds it through float64.

type addressDocument struct {
	Street     string `firestore:"street"`
	City       string `firestore:"city"`
	State      string `firestore:"state"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
}

type orderItemDocument struct {
	ID          string  `firestore:"id"`
	ProductID   *string `firestore:"productId"`
	InventoryID *string `firestore:"inventoryId"`
	ProductName string  `firestore:"productName"`
	Quantity    int     `firestore:"quantity"`
	UnitPrice   string  `firestore:"unitPrice"`
}

type orderDocument struct {
	BusinessID            string              `firestore:"businessId"`
	CustomerID            *string             `firestore:"customerId"`
	CustomerName          string              `firestore:"customerName,omitempty"`
	OrderNumber           string              `firestore:"orderNumber"`
	Status                string              `firestore:"status"`
	PaymentStatus         string              `firestore:"paymentStatus"`
	TaxRate               string              `firestore:"taxRate"`
	Subtotal              string              `firestore:"subtotal"`
	TaxAmount             string              `firestore:"taxAmount"`
	DiscountAmount        string              `firestore:"discountAmount"`
	TotalAmount           string              `firestore:"totalAmount"`
	Notes                 *string             `firestore:"notes"`
	ShippingAddress       *addressDocument    `firestore:"shippingAddress"`
	BillingAddress        *addressDocument    `firestore:"billingAddress"`
	EstimatedDeliveryDate *time.Time          `firestore:"estimatedDeliveryDate"`
	ActualDeliveryDate    *time.Time          `firestore:"actualDeliveryDate"`
	Items                 []orderItemDocument `firestore:"items"`
	CreatedBy             string              `firestore:"createdBy"`
	UpdatedBy             string              `firestore:"updatedBy"`
	CreatedAt             time.Time           `firestore:"createdAt"`
	UpdatedAt             time.Time           `firestore:"updatedAt"`
}

type orderNumberDocument struct {
	OrderID   string    `firestore:"orderId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type historyDocument struct {
	Status    string    `firestore:"status"`
	ActorID   string    `firestore:"actorId"`
	Notes     *string   `firestore:"notes"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type inventoryDocument struct {
	BusinessID      string    `firestore:"businessId"`
	Name            string    `firestore:"name"`
	CurrentQuantity int       `firestore:"currentQuantity"`
	LowStockAlert   int       `firestore:"lowStockAlert"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

type inventoryTransactionDocument struct {
	InventoryID       string    `firestore:"inventoryId"`
	OrderID           string    `firestore:"orderId"`
	Type              string    `firestore:"type"`
	QuantityChange    int       `firestore:"quantityChange"`
	ResultingQuantity int       `firestore:"resultingQuantity"`
	Notes             string    `firestore:"notes"`
	CreatedBy         string    `firestore:"createdBy"`
	CreatedAt         time.Time `firestore:"createdAt"`
}

type customerDocument struct {
	BusinessID string `firestore:"businessId"`
	Name       string `firestore:"name"`
	Email      string `firestore:"email"`
	Phone      string `firestore:"phone"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ID:          item.ID,
			ProductID:   item.ProductID,
			InventoryID: item.InventoryID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   money(item.UnitPrice),
		})
	}
	return orderDocument{
		BusinessID:            order.BusinessID,
		CustomerID:            order.CustomerID,
		CustomerName:          order.CustomerName,
		OrderNumber:           order.OrderNumber,
		Status:                string(order.Status),
		PaymentStatus:         string(order.PaymentStatus),
		TaxRate:               order.TaxRate.String(),
		Subtotal:              money(order.Totals.Subtotal),
		TaxAmount:             money(order.Totals.TaxAmount),
		DiscountAmount:        money(order.Totals.DiscountAmount),
		TotalAmount:           money(order.Totals.TotalAmount),
		Notes:                 order.Notes,
		ShippingAddress:       newAddressDocument(order.ShippingAddress),
		BillingAddress:        newAddressDocument(order.BillingAddress),
		EstimatedDeliveryDate: utcPtr(order.EstimatedDeliveryDate),
		ActualDeliveryDate:    utcPtr(order.ActualDeliveryDate),
		Items:                 items,
		CreatedBy:             order.CreatedBy,
		UpdatedBy:             order.UpdatedBy,
		CreatedAt:             order.CreatedAt.UTC(),
		UpdatedAt:             order.UpdatedAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string) (domain.Order, error) {
	amounts := map[string]string{
		"taxRate":        d.TaxRate,
		"subtotal":       d.Subtotal,
		"taxAmount":      d.TaxAmount,
		"discountAmount": d.DiscountAmount,
		"totalAmount":    d.TotalAmount,
	}
	parsed := make(map[string]decimal.Decimal, len(amounts))
	for field, raw := range amounts {
		value, err := parseMoney(raw)
		if err != nil {
			return domain.Order{}, fmt.Errorf("order %s %s: %w", id, field, err)
		}
		parsed[field] = value
	}

	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		price, err := parseMoney(item.UnitPrice)
		if err != nil {
			return domain.Order{}, fmt.Errorf("order %s item %s unitPrice: %w", id, item.ID, err)
		}
		items = append(items, domain.OrderItem{
			ID:          item.ID,
			OrderID:     id,
			ProductID:   item.ProductID,
			InventoryID: item.InventoryID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   price,
		})
	}

	return domain.Order{
		ID:            id,
		BusinessID:    d.BusinessID,
		CustomerID:    d.CustomerID,
		CustomerName:  d.CustomerName,
		OrderNumber:   d.OrderNumber,
		Status:        domain.OrderStatus(d.Status),
		PaymentStatus: domain.PaymentStatus(d.PaymentStatus),
		TaxRate:       parsed["taxRate"],
		Totals: domain.OrderTotals{
			Subtotal:       parsed["subtotal"],
			TaxAmount:      parsed["taxAmount"],
			DiscountAmount: parsed["discountAmount"],
			TotalAmount:    parsed["totalAmount"],
		},
		Notes:                 d.Notes,
		ShippingAddress:       d.ShippingAddress.toDomain(),
		BillingAddress:        d.BillingAddress.toDomain(),
		EstimatedDeliveryDate: utcPtr(d.EstimatedDeliveryDate),
		ActualDeliveryDate:    utcPtr(d.ActualDeliveryDate),
		Items:                 items,
		CreatedBy:             d.CreatedBy,
		UpdatedBy:             d.UpdatedBy,
		CreatedAt:             d.CreatedAt.UTC(),
		UpdatedAt:             d.UpdatedAt.UTC(),
	}, nil
}

func newAddressDocument(addr *domain.Address) *addressDocument {
	if addr == nil {
		return nil
	}
	return &addressDocument{
		Street:     addr.Street,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
}

func (d *addressDocument) toDomain() *domain.Address {
	if d == nil {
		return nil
	}
	return &domain.Address{
		Street:     d.Street,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Country:    d.Country,
	}
}

func (d inventoryDocument) toDomain(id string) domain.InventoryRecord {
	return domain.InventoryRecord{
		ID:              id,
		BusinessID:      d.BusinessID,
		Name:            d.Name,
		CurrentQuantity: d.CurrentQuantity,
		LowStockAlert:   d.LowStockAlert,
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
}

func money(value decimal.Decimal) string {
	return value.StringFixed(2)
}

func parseMoney(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	v := value.UTC()
	return &v
}
