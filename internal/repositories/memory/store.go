// Package memory provides process-local repositories used for local runs and service tests. The
// unit of work snapshots all state on entry and restores it when the callback fails.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	domain "github.com/ZoliswaDube/BizPilot-sub002/internal/domain"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/repositories"
)

type txKey struct{}

// Store holds every collection in memory.
type Store struct {
	// txMu serialises units of work; every operation outside a unit of work takes it too.
	txMu sync.Mutex
	mu   sync.RWMutex

	orders       map[string]domain.Order
	orderNumbers map[string]string
	history      map[string][]domain.OrderStatusHistoryEntry
	inventory    map[string]domain.InventoryRecord
	transactions []domain.InventoryTransaction
	customers    map[string]domain.Customer
	counters     map[string]int64

	clock func() time.Time
}

// Option customises the Store.
type Option func(*Store)

// WithClock overrides the clock used for inventory timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewStore constructs an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		orders:       make(map[string]domain.Order),
		orderNumbers: make(map[string]string),
		history:      make(map[string][]domain.OrderStatusHistoryEntry),
		inventory:    make(map[string]domain.InventoryRecord),
		customers:    make(map[string]domain.Customer),
		counters:     make(map[string]int64),
		clock:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// RunInTx implements repositories.UnitOfWork.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("memory: transaction function is nil")
	}
	if inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// PutInventory seeds or replaces an inventory record.
func (s *Store) PutInventory(record domain.InventoryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventory[record.ID] = record
}

// PutCustomer seeds or replaces a customer.
func (s *Store) PutCustomer(customer domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[customer.ID] = customer
}

// InventoryTransactions returns a copy of the inventory ledger in insertion order.
func (s *Store) InventoryTransactions() []domain.InventoryTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.transactions)
}

// OrderCount returns the number of stored orders.
func (s *Store) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

func (s *Store) Orders() repositories.OrderRepository {
	return &OrderRepository{store: s}
}

func (s *Store) Inventory() repositories.InventoryRepository {
	return &InventoryRepository{store: s}
}

func (s *Store) StatusHistory() repositories.StatusHistoryRepository {
	return &StatusHistoryRepository{store: s}
}

func (s *Store) Customers() repositories.CustomerLookup {
	return &CustomerRepository{store: s}
}

func (s *Store) Counters() repositories.CounterRepository {
	return &CounterRepository{store: s}
}

// exec runs fn atomically. Outside a unit of work the operation takes the transaction lock so it
// never interleaves with, or gets rolled back by, a concurrent unit of work.
func (s *Store) exec(ctx context.Context, write bool, fn func() error) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if !inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	if write {
		s.mu.Lock()
		defer s.mu.Unlock()
	} else {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	return fn()
}

type snapshot struct {
	orders       map[string]domain.Order
	orderNumbers map[string]string
	history      map[string][]domain.OrderStatusHistoryEntry
	inventory    map[string]domain.InventoryRecord
	transactions []domain.InventoryTransaction
	counters     map[string]int64
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := make(map[string][]domain.OrderStatusHistoryEntry, len(s.history))
	for id, entries := range s.history {
		history[id] = slices.Clone(entries)
	}
	orders := make(map[string]domain.Order, len(s.orders))
	for id, order := range s.orders {
		orders[id] = cloneOrder(order)
	}
	return snapshot{
		orders:       orders,
		orderNumbers: maps.Clone(s.orderNumbers),
		history:      history,
		inventory:    maps.Clone(s.inventory),
		transactions: slices.Clone(s.transactions),
		counters:     maps.Clone(s.counters),
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = snap.orders
	s.orderNumbers = snap.orderNumbers
	s.history = snap.history
	s.inventory = snap.inventory
	s.transactions = snap.transactions
	s.counters = snap.counters
}

func inTx(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	active, _ := ctx.Value(txKey{}).(bool)
	return active
}

// Error implements repositories.RepositoryError for the memory backend.
type Error struct {
	op       string
	msg      string
	notFound bool
	conflict bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("memory %s: %s", e.op, e.msg)
}

func (e *Error) IsNotFound() bool    { return e != nil && e.notFound }
func (e *Error) IsConflict() bool    { return e != nil && e.conflict }
func (e *Error) IsUnavailable() bool { return false }

func notFound(op, format string, args ...any) error {
	return &Error{op: op, msg: fmt.Sprintf(format, args...), notFound: true}
}

func conflict(op, format string, args ...any) error {
	return &Error{op: op, msg: fmt.Sprintf(format, args...), conflict: true}
}

func cloneOrder(order domain.Order) domain.Order {
	out := order
	out.Items = slices.Clone(order.Items)
	out.CustomerID = clonePtr(order.CustomerID)
	out.Notes = clonePtr(order.Notes)
	out.ShippingAddress = clonePtr(order.ShippingAddress)
	out.BillingAddress = clonePtr(order.BillingAddress)
	out.EstimatedDeliveryDate = clonePtr(order.EstimatedDeliveryDate)
	out.ActualDeliveryDate = clonePtr(order.ActualDeliveryDate)
	for i := range out.Items {
		out.Items[i].ProductID = clonePtr(out.Items[i].ProductID)
		out.Items[i].InventoryID = clonePtr(out.Items[i].InventoryID)
	}
	return out
}

func clonePtr[T any](value *T) *T {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
