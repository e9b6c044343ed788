package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	domain "github.com/ZoliswaDube/BizPilot-sub002/internal/domain"
	ppostgres "github.com/ZoliswaDube/BizPilot-sub002/internal/platform/postgres"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/repositories"
)

// StatusHistoryRepository stores rows in order_status_history.
type StatusHistoryRepository struct {
	uow *ppostgres.UnitOfWork
}

var _ repositories.StatusHistoryRepository = (*StatusHistoryRepository)(nil)

func (r *StatusHistoryRepository) Append(ctx context.Context, entry domain.OrderStatusHistoryEntry) error {
	_, err := r.uow.Querier(ctx).Exec(ctx, `
		INSERT INTO order_status_history (id, order_id, status, actor_id, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.OrderID, string(entry.Status), entry.ActorID, entry.Notes, entry.CreatedAt.UTC())
	return ppostgres.WrapError("status_history.append", err)
}

func (r *StatusHistoryRepository) List(ctx context.Context, orderID string) ([]domain.OrderStatusHistoryEntry, error) {
	rows, err := r.uow.Querier(ctx).Query(ctx, `
		SELECT id, order_id, status, actor_id, notes, created_at
		FROM order_status_history WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, ppostgres.WrapError("status_history.list", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OrderStatusHistoryEntry, error) {
		var (
			entry  domain.OrderStatusHistoryEntry
			status string
		)
		if err := row.Scan(&entry.ID, &entry.OrderID, &status, &entry.ActorID, &entry.Notes, &entry.CreatedAt); err != nil {
			return domain.OrderStatusHistoryEntry{}, err
		}
		entry.Status = domain.OrderStatus(status)
		entry.CreatedAt = entry.CreatedAt.UTC()
		return entry, nil
	})
	if err != nil {
		return nil, ppostgres.WrapError("status_history.list", err)
	}
	return entries, nil
}

// CustomerRepository reads the customers table.
type CustomerRepository struct {
	uow *ppostgres.UnitOfWork
}

var _ repositories.CustomerLookup = (*CustomerRepository)(nil)

func (r *CustomerRepository) Resolve(ctx context.Context, customerID string) (domain.Customer, error) {
	var customer domain.Customer
	err := r.uow.Querier(ctx).QueryRow(ctx,
		"SELECT id, business_id, name, email, phone FROM customers WHERE id = $1", strings.TrimSpace(customerID),
	).Scan(&customer.ID, &customer.BusinessID, &customer.Name, &customer.Email, &customer.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Customer{}, ppostgres.NotFoundError("customers.get", "customer %s not found", customerID)
	}
	if err != nil {
		return domain.Customer{}, ppostgres.WrapError("customers.get", err)
	}
	return customer, nil
}

// CounterRepository increments rows in the counters table with an upsert.
type CounterRepository struct {
	uow   *ppostgres.UnitOfWork
	clock func() time.Time
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	id := strings.TrimSpace(counterID)
	if err := repositories.ValidateCounterInput(id, step); err != nil {
		return 0, err
	}
	if step == 0 {
		step = 1
	}
	var value int64
	err := r.uow.Querier(ctx).QueryRow(ctx, `
		INSERT INTO counters (id, current_value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET current_value = counters.current_value + EXCLUDED.current_value, updated_at = EXCLUDED.updated_at
		RETURNING current_value`, id, step, r.clock().UTC()).Scan(&value)
	if err != nil {
		return 0, ppostgres.WrapError("counters.next", err)
	}
	return value, nil
}
