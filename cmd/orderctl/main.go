// Command orderctl runs operational tasks against the orders backend: schema migrations and
// configuration checks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := newApp(os.Stdout, logger.Named("orderctl")).RunContext(ctx, os.Args); err != nil {
		logger.Error("orderctl failed", zap.Error(err))
		os.Exit(1)
	}
}
