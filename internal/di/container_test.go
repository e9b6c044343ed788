package di

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domain "github.com/ZoliswaDube/BizPilot-sub002/internal/domain"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/config"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/events"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/idempotency"
	memoryrepo "github.com/ZoliswaDube/BizPilot-sub002/internal/repositories/memory"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/services"
)

func loadTestConfig(t *testing.T, env map[string]string) config.Config {
	t.Helper()
	cfg, err := config.Load(context.Background(),
		config.WithEnvFile(""),
		config.WithoutSystemEnv(),
		config.WithEnvMap(env),
	)
	require.NoError(t, err)
	return cfg
}

func TestNewContainerMemoryBackends(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{
		"API_REPOSITORY_BACKEND": "memory",
		"API_ORDERS_TAX_RATE":    "0.15",
	})

	c, err := NewContainer(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, c.Close(context.Background())) })

	require.IsType(t, &memoryrepo.Registry{}, c.Repositories)
	require.IsType(t, events.Nop{}, c.Events)
	require.IsType(t, &idempotency.MemoryStore{}, c.Idempotency)
	require.NotNil(t, c.Metrics)
	require.NotNil(t, c.Services.Orders)
	require.NotNil(t, c.Services.System)

	report, err := c.Services.System.HealthReport(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.HealthStatusOK, report.Status)
}

func TestNewContainerPlacesOrdersEndToEnd(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{
		"API_REPOSITORY_BACKEND": "memory",
		"API_ORDERS_TAX_RATE":    "0.10",
		"API_METRICS_ENABLED":    "false",
	})

	store := memoryrepo.NewStore()
	store.PutInventory(domain.InventoryRecord{ID: "inv_1", BusinessID: "biz_1", Name: "Widget", CurrentQuantity: 10})
	reg, err := memoryrepo.NewRegistry(store)
	require.NoError(t, err)

	c, err := NewContainer(context.Background(), cfg, zap.NewNop(), WithRegistry(reg))
	require.NoError(t, err)
	require.Nil(t, c.Metrics)

	inv := "inv_1"
	result, err := c.Services.Orders.CreateOrder(context.Background(), services.CreateOrderCommand{
		BusinessID: "biz_1",
		ActorID:    "usr_1",
		Items: []services.OrderItemInput{{
			ProductName: "Widget",
			Quantity:    4,
			UnitPrice:   decimal.RequireFromString("5"),
			InventoryID: &inv,
		}},
	})
	require.NoError(t, err)
	require.Equal(t, "22.00", result.Order.Totals.TotalAmount.StringFixed(2))

	record, err := store.Inventory().GetQuantity(context.Background(), "inv_1")
	require.NoError(t, err)
	require.Equal(t, 6, record.CurrentQuantity)
}

func TestNewContainerRejectsUnknownEventsBackend(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{"API_REPOSITORY_BACKEND": "memory"})
	cfg.Events.Backend = "carrier-pigeon"

	_, err := NewContainer(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "unsupported events backend")
}

func TestRequiredSecretNames(t *testing.T) {
	require.Empty(t, requiredSecretNames(map[string]string{"API_REPOSITORY_BACKEND": "memory"}))
	require.Equal(t, []string{"Postgres.URL", "Events.RabbitMQURL"}, requiredSecretNames(map[string]string{
		"API_REPOSITORY_BACKEND": "Postgres",
		"API_EVENTS_BACKEND":     "rabbitmq",
	}))
}
