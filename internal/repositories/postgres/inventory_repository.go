package postgres

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	domain "github.com/ZoliswaDube/BizPilot-sub002/internal/domain"
	ppostgres "github.com/ZoliswaDube/BizPilot-sub002/internal/platform/postgres"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/repositories"
)

// InventoryRepository adjusts stock with conditional updates so a guarded decrement can never
// drive current_quantity below zero, whatever the isolation level.
type InventoryRepository struct {
	uow   *ppostgres.UnitOfWork
	clock func() time.Time
}

var _ repositories.InventoryRepository = (*InventoryRepository)(nil)

func (r *InventoryRepository) GetQuantity(ctx context.Context, inventoryID string) (domain.InventoryRecord, error) {
	record, err := scanInventory(r.uow.Querier(ctx).QueryRow(ctx, `
		SELECT id, business_id, name, current_quantity, low_stock_alert, updated_at
		FROM inventory WHERE id = $1`, strings.TrimSpace(inventoryID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.InventoryRecord{}, ppostgres.NotFoundError("inventory.get", "inventory %s not found", inventoryID)
	}
	if err != nil {
		return domain.InventoryRecord{}, ppostgres.WrapError("inventory.get", err)
	}
	return record, nil
}

type aggregatedDelta struct {
	businessID    string
	delta         int
	guard         bool
	ignoreMissing bool
}

// ApplyDeltas sums the deltas per record and updates the records in id order.
func (r *InventoryRepository) ApplyDeltas(ctx context.Context, deltas []repositories.InventoryDelta) ([]domain.InventoryRecord, error) {
	if len(deltas) == 0 {
		return nil, nil
	}
	byID := make(map[string]*aggregatedDelta, len(deltas))
	ids := make([]string, 0, len(deltas))
	for _, delta := range deltas {
		id := strings.TrimSpace(delta.InventoryID)
		if id == "" {
			return nil, repositories.NewInventoryError(repositories.InventoryErrorInvalidInput, "inventory id is required", nil)
		}
		agg, ok := byID[id]
		if !ok {
			agg = &aggregatedDelta{businessID: strings.TrimSpace(delta.BusinessID), ignoreMissing: true}
			byID[id] = agg
			ids = append(ids, id)
		}
		if agg.businessID != strings.TrimSpace(delta.BusinessID) {
			return nil, repositories.NewInventoryError(repositories.InventoryErrorInvalidInput, "inventory "+id+" adjusted under two businesses", nil)
		}
		agg.delta += delta.Delta
		agg.guard = agg.guard || delta.GuardNonNegative
		agg.ignoreMissing = agg.ignoreMissing && delta.IgnoreMissing
	}
	sort.Strings(ids)

	var results []domain.InventoryRecord
	err := r.uow.RunInTx(ctx, func(txCtx context.Context) error {
		q := r.uow.Querier(txCtx)
		now := r.clock().UTC()
		results = make([]domain.InventoryRecord, 0, len(ids))
		for _, id := range ids {
			agg := byID[id]
			record, err := scanInventory(q.QueryRow(txCtx, `
				UPDATE inventory
				SET current_quantity = current_quantity + $2, updated_at = $3
				WHERE id = $1 AND ($5::text = '' OR business_id = $5) AND (NOT $4 OR current_quantity + $2 >= 0)
				RETURNING id, business_id, name, current_quantity, low_stock_alert, updated_at`,
				id, agg.delta, now, agg.guard, agg.businessID))
			if err == nil {
				results = append(results, record)
				continue
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return ppostgres.WrapError("inventory.apply", err)
			}

			var available int
			err = q.QueryRow(txCtx, `
				SELECT current_quantity FROM inventory
				WHERE id = $1 AND ($2::text = '' OR business_id = $2)`, id, agg.businessID).Scan(&available)
			switch {
			case errors.Is(err, pgx.ErrNoRows):
				if agg.ignoreMissing {
					continue
				}
				return repositories.NewInventoryNotFound(id)
			case err != nil:
				return ppostgres.WrapError("inventory.apply", err)
			}
			return repositories.NewInventoryConflict(id, -agg.delta, available)
		}
		return nil
	})
	if err != nil {
		var invErr *repositories.InventoryError
		if errors.As(err, &invErr) && invErr.Op == "" {
			invErr.Op = "inventory.apply"
		}
		return nil, err
	}
	return results, nil
}

func (r *InventoryRepository) RecordTransactions(ctx context.Context, txns []domain.InventoryTransaction) error {
	if len(txns) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(txns))
	for _, txn := range txns {
		rows = append(rows, []any{
			txn.ID, txn.InventoryID, txn.OrderID, string(txn.Type), txn.QuantityChange,
			txn.ResultingQuantity, txn.Notes, txn.CreatedBy, txn.CreatedAt.UTC(),
		})
	}
	return r.uow.RunInTx(ctx, func(txCtx context.Context) error {
		batch := &pgx.Batch{}
		for _, row := range rows {
			batch.Queue(`
				INSERT INTO inventory_transactions (id, inventory_id, order_id, type, quantity_change,
					resulting_quantity, notes, created_by, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, row...)
		}
		results := r.uow.Querier(txCtx).SendBatch(txCtx, batch)
		for range rows {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return ppostgres.WrapError("inventory.record_transactions", err)
			}
		}
		return ppostgres.WrapError("inventory.record_transactions", results.Close())
	})
}

func scanInventory(row pgx.Row) (domain.InventoryRecord, error) {
	var record domain.InventoryRecord
	if err := row.Scan(&record.ID, &record.BusinessID, &record.Name, &record.CurrentQuantity, &record.LowStockAlert, &record.UpdatedAt); err != nil {
		return domain.InventoryRecord{}, err
	}
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}
