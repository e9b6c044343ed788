// Package postgres implements the repositories on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	ppostgres "github.com/ZoliswaDube/BizPilot-sub002/internal/platform/postgres"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/repositories"
)

// Registry wires the relational repositories behind repositories.Registry.
type Registry struct {
	*ppostgres.UnitOfWork

	pool      *pgxpool.Pool
	orders    *OrderRepository
	inventory *InventoryRepository
	history   *StatusHistoryRepository
	customers *CustomerRepository
	counters  *CounterRepository
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

type registryOptions struct {
	clock  func() time.Time
	checks []repositories.DependencyCheck
}

// RegistryOption customises NewRegistry.
type RegistryOption func(*registryOptions)

// WithClock sets the clock used to stamp updated_at on inventory and counter rows.
func WithClock(clock func() time.Time) RegistryOption {
	return func(o *registryOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithDependencyChecks adds readiness checks next to the postgres ping.
func WithDependencyChecks(checks ...repositories.DependencyCheck) RegistryOption {
	return func(o *registryOptions) {
		o.checks = append(o.checks, checks...)
	}
}

// NewRegistry builds the repositories on pool. The registry owns the pool and closes it.
func NewRegistry(pool *pgxpool.Pool, opts ...RegistryOption) (*Registry, error) {
	if pool == nil {
		return nil, errors.New("postgres registry requires pool")
	}
	options := registryOptions{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	uow := ppostgres.NewUnitOfWork(pool)

	checks := append([]repositories.DependencyCheck{{
		Name:     "postgres",
		Critical: true,
		Check:    pool.Ping,
	}}, options.checks...)
	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}

	return &Registry{
		UnitOfWork: uow,
		pool:       pool,
		orders:     &OrderRepository{uow: uow},
		inventory:  &InventoryRepository{uow: uow, clock: options.clock},
		history:    &StatusHistoryRepository{uow: uow},
		customers:  &CustomerRepository{uow: uow},
		counters:   &CounterRepository{uow: uow, clock: options.clock},
		health:     health,
	}, nil
}

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }
func (r *Registry) Inventory() repositories.InventoryRepository { return r.inventory }
func (r *Registry) StatusHistory() repositories.StatusHistoryRepository { return r.history }
func (r *Registry) Customers() repositories.CustomerLookup { return r.customers }
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }
func (r *Registry) Health() repositories.HealthRepository { return r.health }

// Close closes the pool.
func (r *Registry) Close(context.Context) error {
	if r != nil && r.pool != nil {
		r.pool.Close()
	}
	return nil
}
