// Package di assembles repositories, event publishers, idempotency storage and services from the
// loaded configuration.
package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/config"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/events"
	pfirestore "github.com/ZoliswaDube/BizPilot-sub002/internal/platform/firestore"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/idempotency"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/observability"
	ppostgres "github.com/ZoliswaDube/BizPilot-sub002/internal/platform/postgres"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/repositories"
	firestorerepo "github.com/ZoliswaDube/BizPilot-sub002/internal/repositories/firestore"
	memoryrepo "github.com/ZoliswaDube/BizPilot-sub002/internal/repositories/memory"
	postgresrepo "github.com/ZoliswaDube/BizPilot-sub002/internal/repositories/postgres"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/services"
)

const metricsNamespace = "orders_api"

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders services.OrderService
	System services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Events       services.OrderEventPublisher
	Idempotency  idempotency.Store
	Metrics      *observability.HTTPMetrics
	Services     Services

	logger    *zap.Logger
	startedAt time.Time
	closers   []func(context.Context) error
}

// Option customises NewContainer, mainly so tests can inject in-memory collaborators.
type Option func(*Container)

// WithRegistry skips backend selection and uses reg instead.
func WithRegistry(reg repositories.Registry) Option {
	return func(c *Container) {
		c.Repositories = reg
	}
}

// WithEventPublisher skips event backend selection and uses publisher instead.
func WithEventPublisher(publisher services.OrderEventPublisher) Option {
	return func(c *Container) {
		c.Events = publisher
	}
}

// WithIdempotencyStore skips idempotency backend selection and uses store instead.
func WithIdempotencyStore(store idempotency.Store) Option {
	return func(c *Container) {
		c.Idempotency = store
	}
}

// WithStartedAt records when the process started, for uptime reporting.
func WithStartedAt(t time.Time) Option {
	return func(c *Container) {
		c.startedAt = t
	}
}

// NewContainer constructs the runtime dependencies. On failure every resource opened so far is
// released before returning.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *Container, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Container{
		Config:    cfg,
		logger:    logger,
		startedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	defer func() {
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = c.Close(closeCtx)
		}
	}()

	var extraChecks []repositories.DependencyCheck
	if c.Idempotency == nil {
		check, err := c.buildIdempotencyStore(ctx)
		if err != nil {
			return nil, err
		}
		if check != nil {
			extraChecks = append(extraChecks, *check)
		}
	}
	if c.Events == nil {
		if err := c.buildEventPublisher(ctx); err != nil {
			return nil, err
		}
	}
	if c.Repositories == nil {
		if err := c.buildRegistry(ctx, extraChecks); err != nil {
			return nil, err
		}
	}

	if cfg.Metrics.Enabled {
		metrics, err := observability.NewHTTPMetrics(metricsNamespace)
		if err != nil {
			return nil, fmt.Errorf("build http metrics: %w", err)
		}
		c.Metrics = metrics
	}

	svc, err := c.buildServices()
	if err != nil {
		return nil, err
	}
	c.Services = svc
	return c, nil
}

// Close releases resources such as repository clients, publishers and caches in reverse order
// of acquisition.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// RunBackground starts the idempotency cleanup loop. It returns when ctx is cancelled.
func (c *Container) RunBackground(ctx context.Context) {
	idemCfg := c.Config.Idempotency
	idempotency.RunCleanup(ctx, c.Idempotency, idemCfg.CleanupInterval, idemCfg.CleanupBatchSize, c.logger.Named("idempotency"))
}

func (c *Container) onClose(fn func(context.Context) error) {
	c.closers = append(c.closers, fn)
}

func (c *Container) buildRegistry(ctx context.Context, extraChecks []repositories.DependencyCheck) error {
	cfg := c.Config
	switch cfg.Repository.Backend {
	case config.RepositoryBackendMemory:
		reg, err := memoryrepo.NewRegistry(nil)
		if err != nil {
			return fmt.Errorf("build memory registry: %w", err)
		}
		c.Repositories = reg
	case config.RepositoryBackendPostgres:
		if cfg.Postgres.Migrate {
			if err := ppostgres.MigrateUp(cfg.Postgres.URL); err != nil {
				return fmt.Errorf("migrate postgres: %w", err)
			}
			c.logger.Info("postgres migrations applied")
		}
		pool, err := ppostgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		reg, err := postgresrepo.NewRegistry(pool, postgresrepo.WithDependencyChecks(extraChecks...))
		if err != nil {
			pool.Close()
			return fmt.Errorf("build postgres registry: %w", err)
		}
		c.Repositories = reg
	case config.RepositoryBackendFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		if _, err := provider.Client(ctx); err != nil {
			return fmt.Errorf("firestore client: %w", err)
		}
		reg, err := firestorerepo.NewRegistry(provider, extraChecks...)
		if err != nil {
			_ = provider.Close(ctx)
			return fmt.Errorf("build firestore registry: %w", err)
		}
		c.Repositories = reg
	default:
		return fmt.Errorf("unsupported repository backend %q", cfg.Repository.Backend)
	}
	c.onClose(c.Repositories.Close)
	c.logger.Info("repository backend ready", zap.String("backend", cfg.Repository.Backend))
	return nil
}

func (c *Container) buildEventPublisher(ctx context.Context) error {
	cfg := c.Config.Events
	switch cfg.Backend {
	case "", config.EventsBackendNone:
		c.Events = events.Nop{}
		return nil
	case config.EventsBackendPubSub:
		projectID := strings.TrimSpace(cfg.PubSubProjectID)
		if projectID == "" {
			projectID = c.Config.Firestore.ProjectID
		}
		client, err := pubsub.NewClient(ctx, projectID)
		if err != nil {
			return fmt.Errorf("pubsub client: %w", err)
		}
		publisher, err := events.NewPubSubPublisher(client.Topic(cfg.Topic))
		if err != nil {
			_ = client.Close()
			return err
		}
		c.Events = publisher
		c.onClose(func(context.Context) error {
			_ = publisher.Close()
			return client.Close()
		})
	case config.EventsBackendKafka:
		publisher, err := events.NewKafkaPublisher(cfg.Topic, cfg.KafkaBrokers...)
		if err != nil {
			return err
		}
		c.Events = publisher
		c.onClose(func(context.Context) error { return publisher.Close() })
	case config.EventsBackendRabbitMQ:
		publisher, err := events.DialRabbitMQ(cfg.RabbitMQURL, cfg.RabbitMQExchange)
		if err != nil {
			return err
		}
		c.Events = publisher
		c.onClose(func(context.Context) error { return publisher.Close() })
	default:
		return fmt.Errorf("unsupported events backend %q", cfg.Backend)
	}
	c.logger.Info("event publisher ready", zap.String("backend", cfg.Backend), zap.String("topic", cfg.Topic))
	return nil
}

// buildIdempotencyStore returns the readiness check for stores backed by an external service.
func (c *Container) buildIdempotencyStore(ctx context.Context) (*repositories.DependencyCheck, error) {
	cfg := c.Config
	switch cfg.Idempotency.Backend {
	case "", config.IdempotencyBackendMemory:
		c.Idempotency = idempotency.NewMemoryStore()
		return nil, nil
	case config.IdempotencyBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store := idempotency.NewRedisStore(client, cfg.Redis.KeyPrefix)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		c.Idempotency = store
		c.onClose(func(context.Context) error { return client.Close() })
		return &repositories.DependencyCheck{Name: "redis", Check: store.Ping}, nil
	default:
		return nil, fmt.Errorf("unsupported idempotency backend %q", cfg.Idempotency.Backend)
	}
}

func (c *Container) buildServices() (Services, error) {
	reg := c.Repositories
	cfg := c.Config

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Inventory:  reg.Inventory(),
		History:    reg.StatusHistory(),
		Customers:  reg.Customers(),
		Counters:   reg.Counters(),
		UnitOfWork: reg,
		TaxRates: services.TaxRates{
			Default:   cfg.Orders.TaxRate,
			Overrides: cfg.Orders.TaxRateOverrides,
		},
		Location:                  cfg.Orders.Location,
		NumberPrefix:              cfg.Orders.NumberPrefix,
		InventoryCheckConcurrency: cfg.Orders.InventoryCheckConcurrency,
		Clock:                     time.Now,
		Events:                    c.Events,
		Logger:                    observability.EventLogger(c.logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}

	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Clock:            time.Now,
		Environment:      cfg.Environment,
		StartedAt:        c.startedAt,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}

	return Services{Orders: orderSvc, System: systemSvc}, nil
}
