package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/ZoliswaDube/BizPilot-sub002/internal/di"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/handlers"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/auth"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/idempotency"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/observability"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, fetcher, err := di.LoadConfig(ctx, logger)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	container, err := di.NewContainer(ctx, cfg, logger, di.WithStartedAt(startedAt))
	if err != nil {
		logger.Fatal("failed to build dependencies", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("dependency close error", zap.Error(err))
		}
	}()

	bgCtx, bgCancel := context.WithCancel(context.Background())
	var bgWG sync.WaitGroup
	bgWG.Add(1)
	go func() {
		defer bgWG.Done()
		container.RunBackground(bgCtx)
	}()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      buildRouter(container, logger, buildInfo(cfg.Environment, startedAt)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("orders api listening",
			zap.String("repository", cfg.Repository.Backend),
			zap.String("events", cfg.Events.Backend),
			zap.String("idempotency", cfg.Idempotency.Backend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	bgCancel()
	bgWG.Wait()
}

func buildRouter(c *di.Container, logger *zap.Logger, build handlers.BuildInfo) http.Handler {
	cfg := c.Config
	projectID := strings.TrimSpace(cfg.Firestore.ProjectID)

	global := []func(http.Handler) http.Handler{
		observability.TraceMiddleware(projectID),
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.RecoveryMiddleware(logger.Named("http")),
	}
	if c.Metrics != nil {
		global = append(global, c.Metrics.Middleware)
	}

	idem := idempotency.Middleware(
		c.Idempotency,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithMethods(http.MethodPost),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	orders := handlers.NewOrderHandlers(c.Services.Orders)
	opts := []handlers.Option{
		handlers.WithMiddlewares(global...),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(
			handlers.WithHealthBuildInfo(build),
			handlers.WithHealthSystemService(c.Services.System),
		)),
		handlers.WithAPIMiddlewares(
			auth.NewMiddleware().RequireScope(),
			observability.ScopeSpanMiddleware(),
			observability.RequestLoggerMiddleware(),
			idem,
		),
		handlers.WithOrderRoutes(orders.Routes),
		handlers.WithInventoryRoutes(orders.InventoryRoutes),
		handlers.WithAdminRoutes(orders.AdminRoutes),
		handlers.WithAdminMiddlewares(auth.RequireRole(auth.RoleAdmin)),
	}
	if c.Metrics != nil {
		opts = append(opts, handlers.WithMetricsHandler(c.Metrics.Handler()))
	}
	return handlers.NewRouter(opts...)
}

func buildInfo(environment string, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("API_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}
