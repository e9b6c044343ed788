package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/ZoliswaDube/BizPilot-sub002/internal/platform/firestore"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/repositories"
)

// Registry wires the Firestore repositories behind repositories.Registry.
type Registry struct {
	*pfirestore.UnitOfWork

	provider  *pfirestore.Provider
	orders    *OrderRepository
	inventory *InventoryRepository
	history   *StatusHistoryRepository
	customers *CustomerRepository
	counters  *CounterRepository
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every repository against provider. Extra health checks are appended to the
// Firestore ping.
func NewRegistry(provider *pfirestore.Provider, extraChecks ...repositories.DependencyCheck) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	inventory, err := NewInventoryRepository(provider)
	if err != nil {
		return nil, err
	}
	history, err := NewStatusHistoryRepository(provider)
	if err != nil {
		return nil, err
	}
	customers, err := NewCustomerRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}

	checks := append([]repositories.DependencyCheck{{
		Name:     "firestore",
		Critical: true,
		Check:    provider.Ping,
	}}, extraChecks...)
	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}

	return &Registry{
		UnitOfWork: pfirestore.NewUnitOfWork(provider),
		provider:   provider,
		orders:     orders,
		inventory:  inventory,
		history:    history,
		customers:  customers,
		counters:   counters,
		health:     health,
	}, nil
}

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }
func (r *Registry) Inventory() repositories.InventoryRepository { return r.inventory }
func (r *Registry) StatusHistory() repositories.StatusHistoryRepository { return r.history }
func (r *Registry) Customers() repositories.CustomerLookup { return r.customers }
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }
func (r *Registry) Health() repositories.HealthRepository { return r.health }

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.provider.Close(ctx)
}
