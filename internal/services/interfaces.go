package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/ZoliswaDube/BizPilot-sub002/internal/domain"
)

// Domain aliases keep handler and service signatures terse.
type (
	Order                   = domain.Order
	OrderItem               = domain.OrderItem
	OrderTotals             = domain.OrderTotals
	OrderStatus             = domain.OrderStatus
	PaymentStatus           = domain.PaymentStatus
	Address                 = domain.Address
	OrderStatusHistoryEntry = domain.OrderStatusHistoryEntry
	SystemHealthReport      = domain.SystemHealthReport
)

// OrderService owns the order lifecycle: creation, status advancement and the edits allowed around them.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (CreateOrderResult, error)
	AdvanceStatus(ctx context.Context, cmd AdvanceStatusCommand) (Order, error)
	UpdateOrder(ctx context.Context, cmd UpdateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, query OrderQuery) (Order, error)
	ListStatusHistory(ctx context.Context, query OrderQuery) ([]OrderStatusHistoryEntry, error)
	DeleteOrder(ctx context.Context, cmd DeleteOrderCommand) error
	CheckInventory(ctx context.Context, businessID string, items []OrderItemInput) (InventoryValidation, error)
}

// SystemService exposes readiness information for operational endpoints.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderItemInput is a line item as submitted by a caller.
type OrderItemInput struct {
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	ProductID   *string
	InventoryID *string
}

// CreateOrderCommand carries everything needed to place an order.
type CreateOrderCommand struct {
	BusinessID            string
	ActorID               string
	CustomerID            *string
	Items                 []OrderItemInput
	Notes                 *string
	ShippingAddress       *Address
	BillingAddress        *Address
	DiscountAmount        *decimal.Decimal
	EstimatedDeliveryDate *time.Time
	PaymentStatus         *PaymentStatus
}

// CreateOrderResult returns the persisted order with any low-stock warnings raised while placing it.
type CreateOrderResult struct {
	Order    Order
	Warnings []InventoryIssue
}

// AdvanceStatusCommand moves an order to TargetStatus. ExpectedStatus, when set, must match the
// persisted status or the call fails with a conflict.
type AdvanceStatusCommand struct {
	BusinessID     string
	OrderID        string
	TargetStatus   OrderStatus
	ExpectedStatus *OrderStatus
	ActorID        string
	Notes          *string
}

// OrderUpdate lists every field a caller may edit after creation. Nil fields are left unchanged and
// Clear flags remove optional values.
type OrderUpdate struct {
	DiscountAmount             *decimal.Decimal
	Notes                      *string
	ClearNotes                 bool
	ShippingAddress            *Address
	ClearShippingAddress       bool
	BillingAddress             *Address
	ClearBillingAddress        bool
	EstimatedDeliveryDate      *time.Time
	ClearEstimatedDeliveryDate bool
	PaymentStatus              *PaymentStatus
}

// UpdateOrderCommand edits an order in place.
type UpdateOrderCommand struct {
	BusinessID string
	OrderID    string
	ActorID    string
	Update     OrderUpdate
}

// OrderQuery addresses a single order within a business.
type OrderQuery struct {
	BusinessID string
	OrderID    string
}

// DeleteOrderCommand removes an order permanently.
type DeleteOrderCommand struct {
	BusinessID string
	OrderID    string
	ActorID    string
	Reason     string
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	BusinessID     string
	OrderID        string
	OrderNumber    string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}
