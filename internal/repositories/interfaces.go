package repositories

import (
	"context"
	"time"

	domain "github.com/ZoliswaDube/BizPilot-sub002/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Inventory() InventoryRepository
	StatusHistory() StatusHistoryRepository
	Customers() CustomerLookup
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations into one atomic boundary. Repositories invoked with the
// context passed to fn participate in the same transaction. Nested calls reuse the outer transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists orders together with their items.
type OrderRepository interface {
	// Create stores the order and all of its items as one unit.
	Create(ctx context.Context, order domain.Order) (domain.Order, error)
	// Update applies the patch without reading the order back.
	Update(ctx context.Context, orderID string, patch OrderPatch) error
	// FindByID returns the order with items. Inside a transaction the row is read for update.
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// Delete removes the order, its items and its status history.
	Delete(ctx context.Context, orderID string) error
}

// OrderPatch enumerates every column an update may touch. Nil pointers leave the column unchanged;
// Clear flags null out optional columns.
type OrderPatch struct {
	Status                     *domain.OrderStatus
	PaymentStatus              *domain.PaymentStatus
	Totals                     *domain.OrderTotals
	Notes                      *string
	ClearNotes                 bool
	ShippingAddress            *domain.Address
	ClearShippingAddress       bool
	BillingAddress             *domain.Address
	ClearBillingAddress        bool
	EstimatedDeliveryDate      *time.Time
	ClearEstimatedDeliveryDate bool
	ActualDeliveryDate         *time.Time
	UpdatedBy                  string
	UpdatedAt                  time.Time
}

// IsEmpty reports whether the patch changes nothing beyond audit fields.
func (p OrderPatch) IsEmpty() bool {
	return p.Status == nil && p.PaymentStatus == nil && p.Totals == nil &&
		p.Notes == nil && !p.ClearNotes &&
		p.ShippingAddress == nil && !p.ClearShippingAddress &&
		p.BillingAddress == nil && !p.ClearBillingAddress &&
		p.EstimatedDeliveryDate == nil && !p.ClearEstimatedDeliveryDate &&
		p.ActualDeliveryDate == nil
}

// Apply mutates order in place so callers observe the persisted state without a second read.
func (p OrderPatch) Apply(order *domain.Order) {
	if order == nil {
		return
	}
	if p.Status != nil {
		order.Status = *p.Status
	}
	if p.PaymentStatus != nil {
		order.PaymentStatus = *p.PaymentStatus
	}
	if p.Totals != nil {
		order.Totals = *p.Totals
	}
	switch {
	case p.ClearNotes:
		order.Notes = nil
	case p.Notes != nil:
		notes := *p.Notes
		order.Notes = &notes
	}
	switch {
	case p.ClearShippingAddress:
		order.ShippingAddress = nil
	case p.ShippingAddress != nil:
		addr := *p.ShippingAddress
		order.ShippingAddress = &addr
	}
	switch {
	case p.ClearBillingAddress:
		order.BillingAddress = nil
	case p.BillingAddress != nil:
		addr := *p.BillingAddress
		order.BillingAddress = &addr
	}
	switch {
	case p.ClearEstimatedDeliveryDate:
		order.EstimatedDeliveryDate = nil
	case p.EstimatedDeliveryDate != nil:
		date := *p.EstimatedDeliveryDate
		order.EstimatedDeliveryDate = &date
	}
	if p.ActualDeliveryDate != nil {
		date := *p.ActualDeliveryDate
		order.ActualDeliveryDate = &date
	}
	if p.UpdatedBy != "" {
		order.UpdatedBy = p.UpdatedBy
	}
	if !p.UpdatedAt.IsZero() {
		order.UpdatedAt = p.UpdatedAt
	}
}

// InventoryDelta is a signed stock adjustment for a single inventory record.
type InventoryDelta struct {
	InventoryID string
	// BusinessID scopes the adjustment. A record owned by another business is treated as missing.
	BusinessID string
	Delta      int
	// GuardNonNegative rejects the adjustment when it would drive the quantity below zero.
	GuardNonNegative bool
	// IgnoreMissing skips records that no longer exist instead of failing the batch.
	IgnoreMissing bool
}

// InventoryRepository reads and adjusts stock levels.
type InventoryRepository interface {
	GetQuantity(ctx context.Context, inventoryID string) (domain.InventoryRecord, error)
	// ApplyDeltas adjusts every record or none. Guarded deltas that lose a race fail with an
	// InventoryError carrying InventoryErrorConflict. The returned records hold the resulting
	// quantities of the records that were adjusted.
	ApplyDeltas(ctx context.Context, deltas []InventoryDelta) ([]domain.InventoryRecord, error)
	RecordTransactions(ctx context.Context, txns []domain.InventoryTransaction) error
}

// StatusHistoryRepository stores the append-only audit trail of order status changes.
type StatusHistoryRepository interface {
	Append(ctx context.Context, entry domain.OrderStatusHistoryEntry) error
	List(ctx context.Context, orderID string) ([]domain.OrderStatusHistoryEntry, error)
}

// CustomerLookup resolves customer identity fields. It is read-only.
type CustomerLookup interface {
	Resolve(ctx context.Context, customerID string) (domain.Customer, error)
}

// CounterRepository issues monotonically increasing sequence values.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// HealthRepository collects dependency health information for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
