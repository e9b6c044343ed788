package memory

import (
	"context"
	"sort"
	"strings"

	domain "github.com/ZoliswaDube/BizPilot-sub002/internal/domain"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/repositories"
)

// OrderRepository implements repositories.OrderRepository.
type OrderRepository struct {
	store *Store
}

func (r *OrderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	var created domain.Order
	err := r.store.exec(ctx, true, func() error {
		if _, exists := r.store.orders[order.ID]; exists {
			return conflict("orders.create", "order %s already exists", order.ID)
		}
		if owner, exists := r.store.orderNumbers[order.OrderNumber]; exists && owner != order.ID {
			return conflict("orders.create", "order number %s already issued", order.OrderNumber)
		}
		created = cloneOrder(order)
		r.store.orders[order.ID] = created
		r.store.orderNumbers[order.OrderNumber] = order.ID
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return cloneOrder(created), nil
}

func (r *OrderRepository) Update(ctx context.Context, orderID string, patch repositories.OrderPatch) error {
	return r.store.exec(ctx, true, func() error {
		order, ok := r.store.orders[orderID]
		if !ok {
			return notFound("orders.update", "order %s not found", orderID)
		}
		patch.Apply(&order)
		r.store.orders[orderID] = order
		return nil
	})
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	var found domain.Order
	err := r.store.exec(ctx, false, func() error {
		order, ok := r.store.orders[orderID]
		if !ok {
			return notFound("orders.get", "order %s not found", orderID)
		}
		found = cloneOrder(order)
		return nil
	})
	return found, err
}

func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	return r.store.exec(ctx, true, func() error {
		order, ok := r.store.orders[orderID]
		if !ok {
			return notFound("orders.delete", "order %s not found", orderID)
		}
		delete(r.store.orders, orderID)
		delete(r.store.orderNumbers, order.OrderNumber)
		delete(r.store.history, orderID)
		return nil
	})
}

// InventoryRepository implements repositories.InventoryRepository.
type InventoryRepository struct {
	store *Store
}

func (r *InventoryRepository) GetQuantity(ctx context.Context, inventoryID string) (domain.InventoryRecord, error) {
	var record domain.InventoryRecord
	err := r.store.exec(ctx, false, func() error {
		found, ok := r.store.inventory[inventoryID]
		if !ok {
			return notFound("inventory.get", "inventory %s not found", inventoryID)
		}
		record = found
		return nil
	})
	return record, err
}

func (r *InventoryRepository) ApplyDeltas(ctx context.Context, deltas []repositories.InventoryDelta) ([]domain.InventoryRecord, error) {
	var results []domain.InventoryRecord
	err := r.store.exec(ctx, true, func() error {
		next := make(map[string]domain.InventoryRecord, len(deltas))
		order := make([]string, 0, len(deltas))
		for _, delta := range deltas {
			id := strings.TrimSpace(delta.InventoryID)
			if id == "" {
				return repositories.NewInventoryError(repositories.InventoryErrorInvalidInput, "inventory id is required", nil)
			}
			record, seen := next[id]
			if !seen {
				var ok bool
				record, ok = r.store.inventory[id]
				if ok && !ownedBy(record, delta.BusinessID) {
					ok = false
				}
				if !ok {
					if delta.IgnoreMissing {
						continue
					}
					return repositories.NewInventoryNotFound(id)
				}
				order = append(order, id)
			}
			if delta.GuardNonNegative && record.CurrentQuantity+delta.Delta < 0 {
				return repositories.NewInventoryConflict(id, -delta.Delta, record.CurrentQuantity)
			}
			record.CurrentQuantity += delta.Delta
			next[id] = record
		}

		now := r.store.clock().UTC()
		results = make([]domain.InventoryRecord, 0, len(order))
		for _, id := range order {
			record := next[id]
			record.UpdatedAt = now
			r.store.inventory[id] = record
			results = append(results, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *InventoryRepository) RecordTransactions(ctx context.Context, txns []domain.InventoryTransaction) error {
	return r.store.exec(ctx, true, func() error {
		r.store.transactions = append(r.store.transactions, txns...)
		return nil
	})
}

func ownedBy(record domain.InventoryRecord, businessID string) bool {
	return businessID == "" || record.BusinessID == businessID
}

// StatusHistoryRepository implements repositories.StatusHistoryRepository.
type StatusHistoryRepository struct {
	store *Store
}

func (r *StatusHistoryRepository) Append(ctx context.Context, entry domain.OrderStatusHistoryEntry) error {
	return r.store.exec(ctx, true, func() error {
		entry.Notes = clonePtr(entry.Notes)
		r.store.history[entry.OrderID] = append(r.store.history[entry.OrderID], entry)
		return nil
	})
}

func (r *StatusHistoryRepository) List(ctx context.Context, orderID string) ([]domain.OrderStatusHistoryEntry, error) {
	var entries []domain.OrderStatusHistoryEntry
	err := r.store.exec(ctx, false, func() error {
		stored := r.store.history[orderID]
		entries = make([]domain.OrderStatusHistoryEntry, len(stored))
		copy(entries, stored)
		return nil
	})
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })
	return entries, err
}

// CustomerRepository implements repositories.CustomerLookup.
type CustomerRepository struct {
	store *Store
}

func (r *CustomerRepository) Resolve(ctx context.Context, customerID string) (domain.Customer, error) {
	var customer domain.Customer
	err := r.store.exec(ctx, false, func() error {
		found, ok := r.store.customers[customerID]
		if !ok {
			return notFound("customers.get", "customer %s not found", customerID)
		}
		customer = found
		return nil
	})
	return customer, err
}

// CounterRepository implements repositories.CounterRepository.
type CounterRepository struct {
	store *Store
}

func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	id := strings.TrimSpace(counterID)
	if err := repositories.ValidateCounterInput(id, step); err != nil {
		return 0, err
	}
	if step == 0 {
		step = 1
	}
	var value int64
	err := r.store.exec(ctx, true, func() error {
		r.store.counters[id] += step
		value = r.store.counters[id]
		return nil
	})
	return value, err
}
