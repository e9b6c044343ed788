package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/ZoliswaDube/BizPilot-sub002/internal/domain"
	pfirestore "github.com/ZoliswaDube/BizPilot-sub002/internal/platform/firestore"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/repositories"
)

const (
	inventoryCollection             = "inventory"
	inventoryTransactionsCollection = "inventoryTransactions"
)

// InventoryRepository keeps stock levels in the inventory collection and appends ledger rows to
// inventoryTransactions.
type InventoryRepository struct {
	provider     *pfirestore.Provider
	records      *pfirestore.BaseRepository[inventoryDocument]
	transactions *pfirestore.BaseRepository[inventoryTransactionDocument]
	clock        func() time.Time
}

var _ repositories.InventoryRepository = (*InventoryRepository)(nil)

func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	return &InventoryRepository{
		provider:     provider,
		records:      pfirestore.NewBaseRepository[inventoryDocument](provider, inventoryCollection, nil, nil),
		transactions: pfirestore.NewBaseRepository[inventoryTransactionDocument](provider, inventoryTransactionsCollection, nil, nil),
		clock:        time.Now,
	}, nil
}

func (r *InventoryRepository) GetQuantity(ctx context.Context, inventoryID string) (domain.InventoryRecord, error) {
	doc, err := r.records.Get(ctx, strings.TrimSpace(inventoryID))
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ApplyDeltas reads every referenced record before writing any of them, which keeps the
// transaction valid when it joins a caller's unit of work.
func (r *InventoryRepository) ApplyDeltas(ctx context.Context, deltas []repositories.InventoryDelta) ([]domain.InventoryRecord, error) {
	if len(deltas) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(deltas))
	seen := make(map[string]bool, len(deltas))
	for _, delta := range deltas {
		id := strings.TrimSpace(delta.InventoryID)
		if id == "" {
			return nil, repositories.NewInventoryError(repositories.InventoryErrorInvalidInput, "inventory id is required", nil)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var results []domain.InventoryRecord
	err := r.provider.RunTransaction(ctx, func(txCtx context.Context, _ *firestore.Transaction) error {
		found, _, err := r.records.GetAll(txCtx, ids)
		if err != nil {
			return err
		}

		next := make(map[string]inventoryDocument, len(found))
		for _, delta := range deltas {
			id := strings.TrimSpace(delta.InventoryID)
			doc, ok := next[id]
			if !ok {
				stored, exists := found[id]
				if exists && delta.BusinessID != "" && stored.Data.BusinessID != delta.BusinessID {
					exists = false
				}
				if !exists {
					if delta.IgnoreMissing {
						continue
					}
					return repositories.NewInventoryNotFound(id)
				}
				doc = stored.Data
			}
			if delta.GuardNonNegative && doc.CurrentQuantity+delta.Delta < 0 {
				return repositories.NewInventoryConflict(id, -delta.Delta, doc.CurrentQuantity)
			}
			doc.CurrentQuantity += delta.Delta
			next[id] = doc
		}

		now := r.clock().UTC()
		results = results[:0]
		for _, id := range ids {
			doc, ok := next[id]
			if !ok {
				continue
			}
			doc.UpdatedAt = now
			if err := r.records.Update(txCtx, id, []firestore.Update{
				{Path: "currentQuantity", Value: doc.CurrentQuantity},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
			results = append(results, doc.toDomain(id))
		}
		return nil
	})
	if err != nil {
		return nil, wrapInventoryError("inventory.apply", err)
	}
	return results, nil
}

func (r *InventoryRepository) RecordTransactions(ctx context.Context, txns []domain.InventoryTransaction) error {
	if len(txns) == 0 {
		return nil
	}
	return r.provider.RunTransaction(ctx, func(txCtx context.Context, _ *firestore.Transaction) error {
		for _, txn := range txns {
			if err := r.transactions.Create(txCtx, txn.ID, inventoryTransactionDocument{
				InventoryID:       txn.InventoryID,
				OrderID:           txn.OrderID,
				Type:              string(txn.Type),
				QuantityChange:    txn.QuantityChange,
				ResultingQuantity: txn.ResultingQuantity,
				Notes:             txn.Notes,
				CreatedBy:         txn.CreatedBy,
				CreatedAt:         txn.CreatedAt.UTC(),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func wrapInventoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	return pfirestore.WrapError(op, err)
}
