package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	domain "github.com/ZoliswaDube/BizPilot-sub002/internal/domain"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/repositories"
)

const (
	defaultInventoryCheckConcurrency = 8
	inventoryTransactionIDPrefix     = "itx_"
)

// InventoryDirection selects whether Apply removes stock from or returns stock to inventory.
type InventoryDirection int

const (
	// InventoryConsume decrements stock for a placed order.
	InventoryConsume InventoryDirection = iota
	// InventoryRestore increments stock for a cancelled order.
	InventoryRestore
)

func (d InventoryDirection) String() string {
	if d == InventoryRestore {
		return "restore"
	}
	return "consume"
}

// InventoryLine is a stock requirement derived from an order item.
type InventoryLine struct {
	Field       string
	InventoryID string
	ProductName string
	Quantity    int
}

// InventoryIssue is a hard error or a soft warning raised by the stock check.
type InventoryIssue struct {
	Field         string
	InventoryID   string
	ProductName   string
	Requested     int
	Available     int
	LowStockAlert int
	Message       string
}

// InventoryValidation is the outcome of a stock check. Warnings never make it invalid.
type InventoryValidation struct {
	IsValid  bool
	Errors   []InventoryIssue
	Warnings []InventoryIssue
}

// InventoryOrderRef identifies the order a stock movement belongs to. Stock is only moved on records
// owned by BusinessID.
type InventoryOrderRef struct {
	BusinessID  string
	OrderID     string
	OrderNumber string
	ActorID     string
}

// InventoryReconcilerDeps bundles the collaborators of the reconciler.
type InventoryReconcilerDeps struct {
	Inventory   repositories.InventoryRepository
	Concurrency int
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// InventoryReconciler checks stock against order items and applies the matching stock movements.
type InventoryReconciler struct {
	repo        repositories.InventoryRepository
	concurrency int
	clock       func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
}

// NewInventoryReconciler wires dependencies into an InventoryReconciler.
func NewInventoryReconciler(deps InventoryReconcilerDeps) (*InventoryReconciler, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory reconciler: inventory repository is required")
	}

	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = defaultInventoryCheckConcurrency
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &InventoryReconciler{
		repo:        deps.Inventory,
		concurrency: concurrency,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Check reads current stock for every tracked line and reports shortages as errors and projected
// low stock as warnings. Lines sharing an inventory record are summed before comparison. Records owned
// by another business are reported as not found. Reads run concurrently; the first read failure
// aborts the whole check.
func (r *InventoryReconciler) Check(ctx context.Context, businessID string, lines []InventoryLine) (InventoryValidation, error) {
	businessID = strings.TrimSpace(businessID)
	grouped := aggregateInventoryLines(lines)
	result := InventoryValidation{IsValid: true}
	if len(grouped) == 0 {
		return result, nil
	}

	records := make([]*domain.InventoryRecord, len(grouped))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, line := range grouped {
		i, line := i, line
		g.Go(func() error {
			record, err := r.repo.GetQuantity(gctx, line.InventoryID)
			if err != nil {
				if isRepositoryNotFound(err) {
					return nil
				}
				return fmt.Errorf("inventory check %s: %w", line.InventoryID, err)
			}
			if businessID != "" && record.BusinessID != businessID {
				return nil
			}
			records[i] = &record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return InventoryValidation{}, mapRepositoryError(err)
	}

	for i, line := range grouped {
		record := records[i]
		issue := InventoryIssue{
			Field:       line.Field,
			InventoryID: line.InventoryID,
			ProductName: line.ProductName,
			Requested:   line.Quantity,
		}
		if record == nil {
			issue.Message = fmt.Sprintf("Inventory record not found for %s", line.ProductName)
			result.Errors = append(result.Errors, issue)
			continue
		}
		issue.Available = record.CurrentQuantity
		issue.LowStockAlert = record.LowStockAlert

		remaining := record.CurrentQuantity - line.Quantity
		switch {
		case remaining < 0:
			issue.Message = fmt.Sprintf("Insufficient stock for %s. Available: %d, Requested: %d", line.ProductName, record.CurrentQuantity, line.Quantity)
			result.Errors = append(result.Errors, issue)
		case remaining <= record.LowStockAlert:
			issue.Message = fmt.Sprintf("%s will be low on stock after this order (%d remaining, alert threshold %d)", line.ProductName, remaining, record.LowStockAlert)
			result.Warnings = append(result.Warnings, issue)
		}
	}
	result.IsValid = len(result.Errors) == 0
	return result, nil
}

// Apply moves stock for every tracked line in one all-or-nothing batch and records an inventory
// transaction per adjusted record. Consumption is guarded against overdraw; a lost race surfaces as
// *ConcurrencyConflictError. Restores skip records that no longer exist.
func (r *InventoryReconciler) Apply(ctx context.Context, ref InventoryOrderRef, lines []InventoryLine, direction InventoryDirection) ([]domain.InventoryTransaction, error) {
	grouped := aggregateInventoryLines(lines)
	if len(grouped) == 0 {
		return nil, nil
	}

	sort.Slice(grouped, func(i, j int) bool { return grouped[i].InventoryID < grouped[j].InventoryID })

	deltas := make([]repositories.InventoryDelta, 0, len(grouped))
	requested := make(map[string]int, len(grouped))
	for _, line := range grouped {
		delta := repositories.InventoryDelta{InventoryID: line.InventoryID, BusinessID: strings.TrimSpace(ref.BusinessID)}
		if direction == InventoryRestore {
			delta.Delta = line.Quantity
			delta.IgnoreMissing = true
		} else {
			delta.Delta = -line.Quantity
			delta.GuardNonNegative = true
		}
		deltas = append(deltas, delta)
		requested[line.InventoryID] = delta.Delta
	}

	records, err := r.repo.ApplyDeltas(ctx, deltas)
	if err != nil {
		var invErr *repositories.InventoryError
		if errors.As(err, &invErr) && (invErr.IsConflict() || (invErr.IsNotFound() && direction == InventoryConsume)) {
			return nil, &ConcurrencyConflictError{
				InventoryID: invErr.InventoryID,
				Requested:   absInt(requested[invErr.InventoryID]),
				Available:   invErr.Available,
				Err:         err,
			}
		}
		return nil, mapRepositoryError(err)
	}

	if direction == InventoryRestore && len(records) < len(deltas) {
		applied := make(map[string]bool, len(records))
		for _, record := range records {
			applied[record.ID] = true
		}
		for _, delta := range deltas {
			if !applied[delta.InventoryID] {
				r.logger(ctx, "inventory.restore.skipped", map[string]any{
					"orderId":     ref.OrderID,
					"inventoryId": delta.InventoryID,
					"quantity":    delta.Delta,
				})
			}
		}
	}

	now := r.clock()
	txns := make([]domain.InventoryTransaction, 0, len(records))
	for _, record := range records {
		change := requested[record.ID]
		txn := domain.InventoryTransaction{
			ID:                inventoryTransactionIDPrefix + r.newID(),
			InventoryID:       record.ID,
			OrderID:           ref.OrderID,
			QuantityChange:    change,
			ResultingQuantity: record.CurrentQuantity,
			CreatedBy:         ref.ActorID,
			CreatedAt:         now,
		}
		if direction == InventoryRestore {
			txn.Type = domain.InventoryTransactionReturn
			txn.Notes = fmt.Sprintf("Order %s cancelled: restored %d unit(s)", ref.OrderNumber, change)
		} else {
			txn.Type = domain.InventoryTransactionSale
			txn.Notes = fmt.Sprintf("Order %s placed: consumed %d unit(s)", ref.OrderNumber, -change)
		}
		txns = append(txns, txn)
	}

	if len(txns) > 0 {
		if err := r.repo.RecordTransactions(ctx, txns); err != nil {
			return nil, mapRepositoryError(err)
		}
	}

	r.logger(ctx, "inventory."+direction.String(), map[string]any{
		"orderId": ref.OrderID,
		"records": len(txns),
	})
	return txns, nil
}

// inventoryLinesForItems extracts stock requirements from items that reference an inventory record.
func inventoryLinesForItems(items []domain.OrderItem) []InventoryLine {
	lines := make([]InventoryLine, 0, len(items))
	for i, item := range items {
		if !item.TracksInventory() {
			continue
		}
		lines = append(lines, InventoryLine{
			Field:       fmt.Sprintf("items[%d].quantity", i),
			InventoryID: strings.TrimSpace(*item.InventoryID),
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
		})
	}
	return lines
}

// aggregateInventoryLines sums quantities per inventory record, keeping the first line's field and
// name for messages and preserving first-seen order.
func aggregateInventoryLines(lines []InventoryLine) []InventoryLine {
	index := make(map[string]int, len(lines))
	out := make([]InventoryLine, 0, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.InventoryID)
		if id == "" || line.Quantity <= 0 {
			continue
		}
		if pos, ok := index[id]; ok {
			out[pos].Quantity += line.Quantity
			continue
		}
		line.InventoryID = id
		index[id] = len(out)
		out = append(out, line)
	}
	return out
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
