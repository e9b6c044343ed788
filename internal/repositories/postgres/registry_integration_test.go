//go:build integration

package postgres

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	domain "github.com/ZoliswaDube/BizPilot-sub002/internal/domain"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/config"
	ppostgres "github.com/ZoliswaDube/BizPilot-sub002/internal/platform/postgres"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/repositories"
)

func setupRegistry(t *testing.T, opts ...RegistryOption) *Registry {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("orders"),
		tcpostgres.WithUsername("orders"),
		tcpostgres.WithPassword("orders"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrator, err := ppostgres.NewMigrator(dsn)
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	version, dirty, err := migrator.Version()
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(1), version)
	require.NoError(t, migrator.Close())

	pool, err := ppostgres.Open(ctx, config.PostgresConfig{URL: dsn, MaxConns: 8})
	require.NoError(t, err)
	registry, err := NewRegistry(pool, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close(context.Background()) })

	_, err = pool.Exec(ctx, `
		INSERT INTO customers (id, business_id, name) VALUES ('cus_1', 'biz_1', 'Thandi Mokoena');
		INSERT INTO inventory (id, business_id, name, current_quantity, low_stock_alert) VALUES
			('inv_widget', 'biz_1', 'Widget', 10, 2),
			('inv_gadget', 'biz_1', 'Gadget', 1, 0);`)
	require.NoError(t, err)
	return registry
}

func testOrder(id, number string) domain.Order {
	inv := "inv_widget"
	customer := "cus_1"
	delivery := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	created := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:            id,
		BusinessID:    "biz_1",
		CustomerID:    &customer,
		CustomerName:  "Thandi Mokoena",
		OrderNumber:   number,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusUnpaid,
		TaxRate:       decimal.RequireFromString("0.15"),
		Totals: domain.OrderTotals{
			Subtotal:       decimal.RequireFromString("99.98"),
			TaxAmount:      decimal.RequireFromString("15.00"),
			DiscountAmount: decimal.Zero,
			TotalAmount:    decimal.RequireFromString("114.98"),
		},
		ShippingAddress:       &domain.Address{Street: "12 Long St", City: "Cape Town", PostalCode: "8001", Country: "ZA"},
		EstimatedDeliveryDate: &delivery,
		Items: []domain.OrderItem{
			{ID: id + "_1", InventoryID: &inv, ProductName: "Widget", Quantity: 2, UnitPrice: decimal.RequireFromString("49.99")},
		},
		CreatedBy: "usr_1",
		UpdatedBy: "usr_1",
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestOrderRepositoryRoundTrip(t *testing.T) {
	registry := setupRegistry(t)
	ctx := context.Background()

	_, err := registry.Orders().Create(ctx, testOrder("ord_1", "ORD-2026-000001"))
	require.NoError(t, err)

	found, err := registry.Orders().FindByID(ctx, "ord_1")
	require.NoError(t, err)
	require.Equal(t, "114.98", found.Totals.TotalAmount.StringFixed(2))
	require.True(t, found.TaxRate.Equal(decimal.RequireFromString("0.15")))
	require.Equal(t, "Cape Town", found.ShippingAddress.City)
	require.Nil(t, found.BillingAddress)
	require.Equal(t, "2026-03-20", found.EstimatedDeliveryDate.Format(time.DateOnly))
	require.Len(t, found.Items, 1)
	require.Equal(t, "49.99", found.Items[0].UnitPrice.StringFixed(2))

	_, err = registry.Orders().Create(ctx, testOrder("ord_2", "ORD-2026-000001"))
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	require.True(t, repoErr.IsConflict())

	shipped := domain.OrderStatusShipped
	require.NoError(t, registry.Orders().Update(ctx, "ord_1", repositories.OrderPatch{
		Status:                     &shipped,
		ClearShippingAddress:       true,
		ClearEstimatedDeliveryDate: true,
		Totals: &domain.OrderTotals{
			Subtotal:       decimal.RequireFromString("99.98"),
			TaxAmount:      decimal.RequireFromString("15.00"),
			DiscountAmount: decimal.RequireFromString("10"),
			TotalAmount:    decimal.RequireFromString("104.98"),
		},
		UpdatedBy: "usr_2",
		UpdatedAt: time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC),
	}))
	found, err = registry.Orders().FindByID(ctx, "ord_1")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusShipped, found.Status)
	require.Nil(t, found.ShippingAddress)
	require.Nil(t, found.EstimatedDeliveryDate)
	require.Equal(t, "104.98", found.Totals.TotalAmount.StringFixed(2))
	require.Equal(t, "usr_2", found.UpdatedBy)

	require.NoError(t, registry.StatusHistory().Append(ctx, domain.OrderStatusHistoryEntry{
		ID: "osh_1", OrderID: "ord_1", Status: domain.OrderStatusPending, ActorID: "usr_1", CreatedAt: time.Now(),
	}))
	history, err := registry.StatusHistory().List(ctx, "ord_1")
	require.NoError(t, err)
	require.Len(t, history, 1)

	require.NoError(t, registry.Orders().Delete(ctx, "ord_1"))
	history, err = registry.StatusHistory().List(ctx, "ord_1")
	require.NoError(t, err)
	require.Empty(t, history)

	err = registry.Orders().Delete(ctx, "ord_1")
	require.ErrorAs(t, err, &repoErr)
	require.True(t, repoErr.IsNotFound())

	customer, err := registry.Customers().Resolve(ctx, "cus_1")
	require.NoError(t, err)
	require.Equal(t, "Thandi Mokoena", customer.Name)
}

func TestInventoryGuardUnderConcurrency(t *testing.T) {
	registry := setupRegistry(t)
	ctx := context.Background()

	const workers = 15
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := registry.Inventory().ApplyDeltas(ctx, []repositories.InventoryDelta{
				{InventoryID: "inv_widget", Delta: -3, GuardNonNegative: true},
			})
			mu.Lock()
			defer mu.Unlock()
			var invErr *repositories.InventoryError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &invErr) && invErr.IsConflict():
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 3, succeeded)
	require.Equal(t, workers-3, conflicts)
	record, err := registry.Inventory().GetQuantity(ctx, "inv_widget")
	require.NoError(t, err)
	require.Equal(t, 1, record.CurrentQuantity)
}

func TestInventoryDeltasScopedToBusiness(t *testing.T) {
	registry := setupRegistry(t)
	ctx := context.Background()

	_, err := registry.Inventory().ApplyDeltas(ctx, []repositories.InventoryDelta{
		{InventoryID: "inv_widget", BusinessID: "biz_2", Delta: -1, GuardNonNegative: true},
	})
	var invErr *repositories.InventoryError
	require.ErrorAs(t, err, &invErr)
	require.True(t, invErr.IsNotFound())

	records, err := registry.Inventory().ApplyDeltas(ctx, []repositories.InventoryDelta{
		{InventoryID: "inv_widget", BusinessID: "biz_2", Delta: 1, IgnoreMissing: true},
	})
	require.NoError(t, err)
	require.Empty(t, records)

	records, err = registry.Inventory().ApplyDeltas(ctx, []repositories.InventoryDelta{
		{InventoryID: "inv_widget", BusinessID: "biz_1", Delta: -4, GuardNonNegative: true},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 6, records[0].CurrentQuantity)
}

func TestUnitOfWorkRollback(t *testing.T) {
	registry := setupRegistry(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := registry.RunInTx(ctx, func(txCtx context.Context) error {
		records, err := registry.Inventory().ApplyDeltas(txCtx, []repositories.InventoryDelta{
			{InventoryID: "inv_widget", Delta: -2, GuardNonNegative: true},
			{InventoryID: "inv_gadget", Delta: -1, GuardNonNegative: true},
		})
		if err != nil {
			return err
		}
		require.Len(t, records, 2)
		if err := registry.Inventory().RecordTransactions(txCtx, []domain.InventoryTransaction{{
			ID: "itx_1", InventoryID: "inv_widget", OrderID: "ord_1", Type: domain.InventoryTransactionSale,
			QuantityChange: -2, ResultingQuantity: 8, CreatedBy: "usr_1", CreatedAt: time.Now(),
		}}); err != nil {
			return err
		}
		if _, err := registry.Orders().Create(txCtx, testOrder("ord_1", "ORD-2026-000001")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	widget, err := registry.Inventory().GetQuantity(ctx, "inv_widget")
	require.NoError(t, err)
	require.Equal(t, 10, widget.CurrentQuantity)

	_, err = registry.Orders().FindByID(ctx, "ord_1")
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	require.True(t, repoErr.IsNotFound())

	_, err = registry.Inventory().ApplyDeltas(ctx, []repositories.InventoryDelta{
		{InventoryID: "inv_missing", Delta: 1, IgnoreMissing: true},
	})
	require.NoError(t, err)

	_, err = registry.Inventory().ApplyDeltas(ctx, []repositories.InventoryDelta{
		{InventoryID: "inv_missing", Delta: -1, GuardNonNegative: true},
	})
	var invErr *repositories.InventoryError
	require.ErrorAs(t, err, &invErr)
	require.True(t, invErr.IsNotFound())
}

func TestRegistryClockStampsCountersAndInventory(t *testing.T) {
	stamp := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	registry := setupRegistry(t, WithClock(func() time.Time { return stamp }))
	ctx := context.Background()

	_, err := registry.Counters().Next(ctx, "orders:biz_1", 1)
	require.NoError(t, err)
	var counterUpdated time.Time
	require.NoError(t, registry.pool.QueryRow(ctx,
		"SELECT updated_at FROM counters WHERE id = $1", "orders:biz_1").Scan(&counterUpdated))
	require.True(t, stamp.Equal(counterUpdated), "counter stamped %s", counterUpdated)

	records, err := registry.Inventory().ApplyDeltas(ctx, []repositories.InventoryDelta{
		{InventoryID: "inv_widget", Delta: -1, GuardNonNegative: true},
	})
	require.NoError(t, err)
	require.True(t, stamp.Equal(records[0].UpdatedAt))
}

func TestCounterSequence(t *testing.T) {
	registry := setupRegistry(t)
	ctx := context.Background()

	const workers = 20
	values := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			value, err := registry.Counters().Next(ctx, "orders:biz_1", 1)
			if err != nil {
				t.Errorf("next: %v", err)
				return
			}
			values[idx] = value
		}(i)
	}
	wg.Wait()

	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	for i, value := range values {
		require.Equal(t, int64(i+1), value)
	}

	report, err := registry.Health().Collect(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.HealthStatusOK, report.Status)
}
