package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/ZoliswaDube/BizPilot-sub002/internal/domain"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/repositories"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/repositories/memory"
)

type captureOrderEvents struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

func (c *captureOrderEvents) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

type failingHistoryRepo struct {
	repositories.StatusHistoryRepository
	err error
}

func (f failingHistoryRepo) Append(context.Context, domain.OrderStatusHistoryEntry) error {
	return f.err
}

// racingInventoryRepo loses every guarded write and afterwards reports the stock left by the winner.
type racingInventoryRepo struct {
	repositories.InventoryRepository
	remaining int
	raced     atomic.Bool
}

func (r *racingInventoryRepo) GetQuantity(ctx context.Context, id string) (domain.InventoryRecord, error) {
	record, err := r.InventoryRepository.GetQuantity(ctx, id)
	if err == nil && r.raced.Load() {
		record.CurrentQuantity = r.remaining
	}
	return record, err
}

func (r *racingInventoryRepo) ApplyDeltas(_ context.Context, deltas []repositories.InventoryDelta) ([]domain.InventoryRecord, error) {
	r.raced.Store(true)
	return nil, repositories.NewInventoryConflict(deltas[0].InventoryID, -deltas[0].Delta, r.remaining)
}

type orderServiceFixture struct {
	store  *memory.Store
	events *captureOrderEvents
	logs   []string
	now    time.Time
}

func newOrderServiceFixture(t *testing.T, mutate func(*OrderServiceDeps)) (OrderService, *orderServiceFixture) {
	t.Helper()
	fx := &orderServiceFixture{
		store:  memory.NewStore(),
		events: &captureOrderEvents{},
		now:    time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	fx.store.PutInventory(domain.InventoryRecord{ID: "inv_widget", BusinessID: "biz_1", Name: "Widget", CurrentQuantity: 10, LowStockAlert: 2})
	fx.store.PutInventory(domain.InventoryRecord{ID: "inv_gadget", BusinessID: "biz_1", Name: "Gadget", CurrentQuantity: 5, LowStockAlert: 1})
	fx.store.PutCustomer(domain.Customer{ID: "cus_1", BusinessID: "biz_1", Name: "Thandi Mokoena"})

	var seq atomic.Int64
	var logMu sync.Mutex
	deps := OrderServiceDeps{
		Orders:     fx.store.Orders(),
		Inventory:  fx.store.Inventory(),
		History:    fx.store.StatusHistory(),
		Customers:  fx.store.Customers(),
		Counters:   fx.store.Counters(),
		UnitOfWork: fx.store,
		TaxRates:   TaxRates{Default: decimal.RequireFromString("0.15")},
		Clock:      func() time.Time { return fx.now },
		IDGenerator: func() string {
			return fmt.Sprintf("%03d", seq.Add(1))
		},
		Events: fx.events,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logMu.Lock()
			defer logMu.Unlock()
			fx.logs = append(fx.logs, event)
		},
	}
	if mutate != nil {
		mutate(&deps)
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return svc, fx
}

func trackedCommand() CreateOrderCommand {
	widget, gadget := "inv_widget", "inv_gadget"
	cmd := validCreateCommand()
	cmd.Items[0].InventoryID = &widget
	cmd.Items[1].InventoryID = &gadget
	return cmd
}

func quantityOf(t *testing.T, store *memory.Store, id string) int {
	t.Helper()
	record, err := store.Inventory().GetQuantity(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return record.CurrentQuantity
}

func TestOrderServiceCreateOrder(t *testing.T) {
	svc, fx := newOrderServiceFixture(t, nil)
	ctx := context.Background()
	cmd := trackedCommand()
	customer := "cus_1"
	cmd.CustomerID = &customer

	result, err := svc.CreateOrder(ctx, cmd)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	order := result.Order
	if order.Status != domain.OrderStatusPending || order.PaymentStatus != domain.PaymentStatusUnpaid {
		t.Fatalf("unexpected initial state %s/%s", order.Status, order.PaymentStatus)
	}
	if order.OrderNumber != "ORD-2026-000001" {
		t.Fatalf("unexpected order number %s", order.OrderNumber)
	}
	if order.CustomerName != "Thandi Mokoena" {
		t.Fatalf("expected customer snapshot, got %q", order.CustomerName)
	}
	assertAmount(t, "subtotal", order.Totals.Subtotal, "130.00")
	assertAmount(t, "tax", order.Totals.TaxAmount, "19.50")
	assertAmount(t, "total", order.Totals.TotalAmount, "149.50")
	if !order.TaxRate.Equal(decimal.RequireFromString("0.15")) {
		t.Fatalf("expected recorded tax rate, got %s", order.TaxRate)
	}
	for _, item := range order.Items {
		if item.OrderID != order.ID {
			t.Fatalf("item %s not linked to order", item.ID)
		}
	}

	if got := quantityOf(t, fx.store, "inv_widget"); got != 8 {
		t.Fatalf("expected widget stock 8, got %d", got)
	}
	if got := quantityOf(t, fx.store, "inv_gadget"); got != 4 {
		t.Fatalf("expected gadget stock 4, got %d", got)
	}
	txns := fx.store.InventoryTransactions()
	if len(txns) != 2 {
		t.Fatalf("expected 2 inventory transactions, got %d", len(txns))
	}
	for _, txn := range txns {
		if txn.Type != domain.InventoryTransactionSale || txn.OrderID != order.ID || txn.QuantityChange >= 0 {
			t.Fatalf("unexpected transaction %+v", txn)
		}
	}

	history, err := svc.ListStatusHistory(ctx, OrderQuery{BusinessID: "biz_1", OrderID: order.ID})
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 1 || history[0].Status != domain.OrderStatusPending || history[0].ActorID != "usr_1" {
		t.Fatalf("unexpected history %+v", history)
	}

	stored, err := svc.GetOrder(ctx, OrderQuery{BusinessID: "biz_1", OrderID: order.ID})
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if !stored.Totals.TotalAmount.Equal(order.Totals.TotalAmount) || len(stored.Items) != 2 {
		t.Fatalf("stored order differs from result: %+v", stored)
	}

	if got := fx.events.types(); len(got) != 1 || got[0] != orderEventCreated {
		t.Fatalf("expected one created event, got %v", got)
	}
}

func TestOrderServiceCreateOrderLowStockWarning(t *testing.T) {
	svc, fx := newOrderServiceFixture(t, nil)
	cmd := trackedCommand()
	cmd.Items[1].Quantity = 4

	result, err := svc.CreateOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].InventoryID != "inv_gadget" {
		t.Fatalf("expected gadget warning, got %+v", result.Warnings)
	}
	got := fx.events.types()
	if len(got) != 2 || got[1] != inventoryEventLowStock {
		t.Fatalf("expected low stock event, got %v", got)
	}
}

func TestOrderServiceCreateOrderInsufficientStock(t *testing.T) {
	svc, fx := newOrderServiceFixture(t, nil)
	cmd := trackedCommand()
	cmd.Items[1].Quantity = 6

	_, err := svc.CreateOrder(context.Background(), cmd)
	var checkErr *InventoryCheckError
	if !errors.As(err, &checkErr) {
		t.Fatalf("expected InventoryCheckError, got %v", err)
	}
	if !errors.Is(err, ErrInventoryInsufficientStock) {
		t.Fatalf("expected ErrInventoryInsufficientStock")
	}
	if checkErr.Validation.Errors[0].Field != "items[1].quantity" {
		t.Fatalf("unexpected field %s", checkErr.Validation.Errors[0].Field)
	}
	if fx.store.OrderCount() != 0 || quantityOf(t, fx.store, "inv_gadget") != 5 {
		t.Fatalf("failed check must not write")
	}
}

func TestOrderServiceCreateOrderValidation(t *testing.T) {
	svc, fx := newOrderServiceFixture(t, nil)
	cmd := trackedCommand()
	cmd.Items[0].Quantity = 0
	cmd.Items[1].ProductName = ""

	_, err := svc.CreateOrder(context.Background(), cmd)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := fieldsOf(validation.Errors)
	if !fields["items[0].quantity"] || !fields["items[1].product_name"] {
		t.Fatalf("expected every item error reported, got %+v", validation.Errors)
	}
	if fx.store.OrderCount() != 0 {
		t.Fatalf("invalid order must not be stored")
	}
}

func TestOrderServiceCreateOrderUnknownCustomer(t *testing.T) {
	svc, _ := newOrderServiceFixture(t, nil)
	cmd := validCreateCommand()
	missing := "cus_missing"
	cmd.CustomerID = &missing

	_, err := svc.CreateOrder(context.Background(), cmd)
	var validation *ValidationError
	if !errors.As(err, &validation) || !fieldsOf(validation.Errors)["customer_id"] {
		t.Fatalf("expected customer_id validation error, got %v", err)
	}
}

func TestOrderServiceCreateOrderRollsBackOnHistoryFailure(t *testing.T) {
	boom := errors.New("history write failed")
	svc, fx := newOrderServiceFixture(t, func(deps *OrderServiceDeps) {
		deps.History = failingHistoryRepo{StatusHistoryRepository: deps.History, err: boom}
	})

	_, err := svc.CreateOrder(context.Background(), trackedCommand())
	if !errors.Is(err, boom) {
		t.Fatalf("expected history failure, got %v", err)
	}
	if fx.store.OrderCount() != 0 {
		t.Fatalf("order must be rolled back")
	}
	if quantityOf(t, fx.store, "inv_widget") != 10 || quantityOf(t, fx.store, "inv_gadget") != 5 {
		t.Fatalf("inventory must be rolled back")
	}
	if len(fx.store.InventoryTransactions()) != 0 {
		t.Fatalf("inventory transactions must be rolled back")
	}
	if len(fx.events.types()) != 0 {
		t.Fatalf("no events may be published for a failed order")
	}
}

func TestOrderServiceCreateOrderConcurrencyConflictRevalidates(t *testing.T) {
	var racing *racingInventoryRepo
	svc, fx := newOrderServiceFixture(t, func(deps *OrderServiceDeps) {
		racing = &racingInventoryRepo{InventoryRepository: deps.Inventory, remaining: 1}
		deps.Inventory = racing
	})

	_, err := svc.CreateOrder(context.Background(), trackedCommand())
	var conflict *ConcurrencyConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConcurrencyConflictError, got %v", err)
	}
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected ErrOrderConflict")
	}
	if conflict.Revalidation == nil || conflict.Revalidation.IsValid {
		t.Fatalf("expected failing revalidation, got %+v", conflict.Revalidation)
	}
	if fx.store.OrderCount() != 0 {
		t.Fatalf("conflicting order must not be stored")
	}
}

func TestOrderServiceConcurrentOrdersNeverOversell(t *testing.T) {
	svc, fx := newOrderServiceFixture(t, nil)
	fx.store.PutInventory(domain.InventoryRecord{ID: "inv_limited", BusinessID: "biz_1", Name: "Limited", CurrentQuantity: 3})
	limited := "inv_limited"

	const buyers = 8
	var wg sync.WaitGroup
	var placed atomic.Int64
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cmd := validCreateCommand()
			cmd.Items = []OrderItemInput{{ProductName: "Limited", Quantity: 1, UnitPrice: decimal.NewFromInt(10), InventoryID: &limited}}
			if _, err := svc.CreateOrder(context.Background(), cmd); err == nil {
				placed.Add(1)
			}
		}()
	}
	wg.Wait()

	if placed.Load() != 3 {
		t.Fatalf("expected exactly 3 orders placed, got %d", placed.Load())
	}
	if got := quantityOf(t, fx.store, "inv_limited"); got != 0 {
		t.Fatalf("expected stock to reach 0, got %d", got)
	}
}

func TestOrderServiceAdvanceStatus(t *testing.T) {
	svc, fx := newOrderServiceFixture(t, nil)
	ctx := context.Background()
	result, err := svc.CreateOrder(ctx, trackedCommand())
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	orderID := result.Order.ID

	for _, status := range []domain.OrderStatus{domain.OrderStatusConfirmed, domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusDelivered} {
		fx.now = fx.now.Add(time.Hour)
		order, err := svc.AdvanceStatus(ctx, AdvanceStatusCommand{BusinessID: "biz_1", OrderID: orderID, TargetStatus: status, ActorID: "usr_2"})
		if err != nil {
			t.Fatalf("advance to %s: %v", status, err)
		}
		if order.Status != status || order.UpdatedBy != "usr_2" || !order.UpdatedAt.Equal(fx.now) {
			t.Fatalf("unexpected order after %s: %+v", status, order)
		}
	}

	order, err := svc.GetOrder(ctx, OrderQuery{BusinessID: "biz_1", OrderID: orderID})
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.ActualDeliveryDate == nil || !order.ActualDeliveryDate.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected actual delivery date, got %v", order.ActualDeliveryDate)
	}

	history, err := svc.ListStatusHistory(ctx, OrderQuery{BusinessID: "biz_1", OrderID: orderID})
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 5 || history[4].Status != domain.OrderStatusDelivered {
		t.Fatalf("unexpected history %+v", history)
	}

	_, err = svc.AdvanceStatus(ctx, AdvanceStatusCommand{BusinessID: "biz_1", OrderID: orderID, TargetStatus: domain.OrderStatusCancelled, ActorID: "usr_2"})
	var transitionErr *StatusTransitionError
	if !errors.As(err, &transitionErr) || transitionErr.From != domain.OrderStatusDelivered {
		t.Fatalf("expected terminal transition error, got %v", err)
	}
	if quantityOf(t, fx.store, "inv_widget") != 8 {
		t.Fatalf("rejected transition must not touch inventory")
	}
}

func TestOrderServiceCancelRestoresInventory(t *testing.T) {
	svc, fx := newOrderServiceFixture(t, nil)
	ctx := context.Background()
	result, err := svc.CreateOrder(ctx, trackedCommand())
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	notes := "customer changed mind"
	order, err := svc.AdvanceStatus(ctx, AdvanceStatusCommand{
		BusinessID:   "biz_1",
		OrderID:      result.Order.ID,
		TargetStatus: domain.OrderStatusCancelled,
		ActorID:      "usr_1",
		Notes:        &notes,
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", order.Status)
	}
	if quantityOf(t, fx.store, "inv_widget") != 10 || quantityOf(t, fx.store, "inv_gadget") != 5 {
		t.Fatalf("stock must be restored")
	}

	var returns int
	for _, txn := range fx.store.InventoryTransactions() {
		if txn.Type == domain.InventoryTransactionReturn {
			returns++
		}
	}
	if returns != 2 {
		t.Fatalf("expected 2 return transactions, got %d", returns)
	}

	events := fx.events.types()
	if events[len(events)-1] != orderEventStatusChanged {
		t.Fatalf("expected status change event, got %v", events)
	}
}

func TestOrderServiceCancelSkipsDeletedInventory(t *testing.T) {
	svc, fx := newOrderServiceFixture(t, nil)
	ctx := context.Background()
	fx.store.PutInventory(domain.InventoryRecord{ID: "inv_temp", BusinessID: "biz_1", Name: "Temp", CurrentQuantity: 1})
	temp := "inv_temp"
	cmd := validCreateCommand()
	cmd.Items = []OrderItemInput{{ProductName: "Temp", Quantity: 1, UnitPrice: decimal.NewFromInt(5), InventoryID: &temp}}
	result, err := svc.CreateOrder(ctx, cmd)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	// Rebuild the store without the record to simulate deletion.
	order, err := fx.store.Orders().FindByID(ctx, result.Order.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	fresh := memory.NewStore()
	if _, err := fresh.Orders().Create(ctx, order); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc, err = NewOrderService(OrderServiceDeps{
		Orders:     fresh.Orders(),
		Inventory:  fresh.Inventory(),
		History:    fresh.StatusHistory(),
		Counters:   fresh.Counters(),
		UnitOfWork: fresh,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			fx.logs = append(fx.logs, event)
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.AdvanceStatus(ctx, AdvanceStatusCommand{OrderID: order.ID, TargetStatus: domain.OrderStatusCancelled, ActorID: "usr_1"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	var skipped bool
	for _, event := range fx.logs {
		if event == "inventory.restore.skipped" {
			skipped = true
		}
	}
	if !skipped {
		t.Fatalf("expected skipped restore to be logged, got %v", fx.logs)
	}
}

func TestOrderServiceAdvanceStatusRejections(t *testing.T) {
	svc, _ := newOrderServiceFixture(t, nil)
	ctx := context.Background()
	result, err := svc.CreateOrder(ctx, validCreateCommand())
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	orderID := result.Order.ID
	confirmed := domain.OrderStatusConfirmed

	cases := []struct {
		name   string
		cmd    AdvanceStatusCommand
		target error
	}{
		{name: "skip ahead", cmd: AdvanceStatusCommand{OrderID: orderID, TargetStatus: domain.OrderStatusShipped, ActorID: "usr_1"}, target: ErrOrderInvalidState},
		{name: "same status", cmd: AdvanceStatusCommand{OrderID: orderID, TargetStatus: domain.OrderStatusPending, ActorID: "usr_1"}, target: ErrOrderInvalidState},
		{name: "unknown status", cmd: AdvanceStatusCommand{OrderID: orderID, TargetStatus: "lost", ActorID: "usr_1"}, target: ErrOrderInvalidInput},
		{name: "missing actor", cmd: AdvanceStatusCommand{OrderID: orderID, TargetStatus: domain.OrderStatusConfirmed}, target: ErrOrderInvalidInput},
		{name: "stale expectation", cmd: AdvanceStatusCommand{OrderID: orderID, TargetStatus: domain.OrderStatusCancelled, ExpectedStatus: &confirmed, ActorID: "usr_1"}, target: ErrOrderConflict},
		{name: "missing order", cmd: AdvanceStatusCommand{OrderID: "ord_missing", TargetStatus: domain.OrderStatusConfirmed, ActorID: "usr_1"}, target: ErrOrderNotFound},
		{name: "other business", cmd: AdvanceStatusCommand{BusinessID: "biz_2", OrderID: orderID, TargetStatus: domain.OrderStatusConfirmed, ActorID: "usr_1"}, target: ErrOrderNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AdvanceStatus(ctx, tc.cmd)
			if !errors.Is(err, tc.target) {
				t.Fatalf("expected %v, got %v", tc.target, err)
			}
		})
	}

	order, err := svc.GetOrder(ctx, OrderQuery{OrderID: orderID})
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("rejected transitions must leave status unchanged, got %s", order.Status)
	}
}

func TestOrderServiceUpdateOrder(t *testing.T) {
	svc, fx := newOrderServiceFixture(t, nil)
	ctx := context.Background()
	result, err := svc.CreateOrder(ctx, validCreateCommand())
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	orderID := result.Order.ID

	discount := decimal.RequireFromString("30.00")
	order, err := svc.UpdateOrder(ctx, UpdateOrderCommand{
		BusinessID: "biz_1",
		OrderID:    orderID,
		ActorID:    "usr_1",
		Update:     OrderUpdate{DiscountAmount: &discount},
	})
	if err != nil {
		t.Fatalf("update discount: %v", err)
	}
	assertAmount(t, "discount", order.Totals.DiscountAmount, "30.00")
	assertAmount(t, "total", order.Totals.TotalAmount, "119.50")

	if _, err := svc.AdvanceStatus(ctx, AdvanceStatusCommand{OrderID: orderID, TargetStatus: domain.OrderStatusConfirmed, ActorID: "usr_1"}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	_, err = svc.UpdateOrder(ctx, UpdateOrderCommand{OrderID: orderID, ActorID: "usr_1", Update: OrderUpdate{DiscountAmount: &discount}})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected discount change after confirmation to fail, got %v", err)
	}

	paid := domain.PaymentStatusPaid
	notes := "  <b>leave at gate</b>  "
	order, err = svc.UpdateOrder(ctx, UpdateOrderCommand{OrderID: orderID, ActorID: "usr_3", Update: OrderUpdate{PaymentStatus: &paid, Notes: &notes}})
	if err != nil {
		t.Fatalf("update payment: %v", err)
	}
	if order.PaymentStatus != domain.PaymentStatusPaid || order.Notes == nil || *order.Notes != "leave at gate" || order.UpdatedBy != "usr_3" {
		t.Fatalf("unexpected order %+v", order)
	}
	if got := fx.events.types(); got[len(got)-1] != orderEventUpdated {
		t.Fatalf("expected update event, got %v", got)
	}

	tooLarge := decimal.RequireFromString("500")
	_, err = svc.UpdateOrder(ctx, UpdateOrderCommand{OrderID: orderID, ActorID: "usr_1"})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected empty update to fail, got %v", err)
	}

	other, err := svc.CreateOrder(ctx, validCreateCommand())
	if err != nil {
		t.Fatalf("create second order: %v", err)
	}
	_, err = svc.UpdateOrder(ctx, UpdateOrderCommand{OrderID: other.Order.ID, ActorID: "usr_1", Update: OrderUpdate{DiscountAmount: &tooLarge}})
	var validation *ValidationError
	if !errors.As(err, &validation) || !fieldsOf(validation.Errors)["discount_amount"] {
		t.Fatalf("expected discount validation error, got %v", err)
	}
}

func TestOrderServiceDeleteOrder(t *testing.T) {
	svc, fx := newOrderServiceFixture(t, nil)
	ctx := context.Background()
	result, err := svc.CreateOrder(ctx, trackedCommand())
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	orderID := result.Order.ID

	if err := svc.DeleteOrder(ctx, DeleteOrderCommand{BusinessID: "biz_2", OrderID: orderID, ActorID: "usr_admin"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected other business delete to be not found, got %v", err)
	}
	if err := svc.DeleteOrder(ctx, DeleteOrderCommand{BusinessID: "biz_1", OrderID: orderID, ActorID: "usr_admin", Reason: "duplicate"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetOrder(ctx, OrderQuery{OrderID: orderID}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected deleted order to be gone, got %v", err)
	}
	if quantityOf(t, fx.store, "inv_widget") != 8 {
		t.Fatalf("delete must not move stock")
	}
	if got := fx.events.types(); got[len(got)-1] != orderEventDeleted {
		t.Fatalf("expected delete event, got %v", got)
	}
}

func TestOrderServiceCheckInventory(t *testing.T) {
	svc, _ := newOrderServiceFixture(t, nil)
	widget := "inv_widget"

	result, err := svc.CheckInventory(context.Background(), "biz_1", []OrderItemInput{
		{ProductName: "Widget", Quantity: 11, UnitPrice: decimal.NewFromInt(1), InventoryID: &widget},
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.IsValid || len(result.Errors) != 1 {
		t.Fatalf("expected shortage, got %+v", result)
	}

	if _, err := svc.CheckInventory(context.Background(), "biz_1", nil); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected empty check to be invalid, got %v", err)
	}
}

func TestOrderServicePublishFailureDoesNotFailOrder(t *testing.T) {
	svc, fx := newOrderServiceFixture(t, nil)
	fx.events.err = errors.New("broker down")

	if _, err := svc.CreateOrder(context.Background(), validCreateCommand()); err != nil {
		t.Fatalf("create order: %v", err)
	}
	var logged bool
	for _, event := range fx.logs {
		if event == "order.event.publish.failed" {
			logged = true
		}
	}
	if !logged {
		t.Fatalf("expected publish failure to be logged")
	}
}

func TestOrderNumbersAreUniquePerBusiness(t *testing.T) {
	svc, _ := newOrderServiceFixture(t, nil)
	ctx := context.Background()
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		result, err := svc.CreateOrder(ctx, validCreateCommand())
		if err != nil {
			t.Fatalf("create order: %v", err)
		}
		if seen[result.Order.OrderNumber] {
			t.Fatalf("duplicate order number %s", result.Order.OrderNumber)
		}
		seen[result.Order.OrderNumber] = true
	}
	if !seen["ORD-2026-000003"] {
		t.Fatalf("expected sequential numbers, got %v", seen)
	}
}

func TestOrderServiceCreateOrderIgnoresOtherBusinessInventory(t *testing.T) {
	svc, fx := newOrderServiceFixture(t, nil)
	ctx := context.Background()
	fx.store.PutInventory(domain.InventoryRecord{ID: "inv_other", BusinessID: "biz_2", Name: "Other", CurrentQuantity: 10})
	other := "inv_other"

	cmd := validCreateCommand()
	cmd.Items = []OrderItemInput{{ProductName: "Other", Quantity: 2, UnitPrice: decimal.NewFromInt(10), InventoryID: &other}}
	_, err := svc.CreateOrder(ctx, cmd)

	var checkErr *InventoryCheckError
	if !errors.As(err, &checkErr) {
		t.Fatalf("expected InventoryCheckError, got %v", err)
	}
	issues := checkErr.Validation.Errors
	if len(issues) != 1 || issues[0].InventoryID != "inv_other" || issues[0].Available != 0 {
		t.Fatalf("expected foreign record reported as missing, got %+v", issues)
	}
	if got := quantityOf(t, fx.store, "inv_other"); got != 10 {
		t.Fatalf("foreign stock must be untouched, got %d", got)
	}
	if fx.store.OrderCount() != 0 {
		t.Fatalf("order must not be stored")
	}

	result, err := svc.CheckInventory(ctx, "biz_1", cmd.Items)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.IsValid || result.Errors[0].Available != 0 {
		t.Fatalf("check must not expose foreign stock, got %+v", result)
	}

	result, err = svc.CheckInventory(ctx, "biz_2", cmd.Items)
	if err != nil || !result.IsValid {
		t.Fatalf("owner check should pass, got %+v %v", result, err)
	}
}
