package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ZoliswaDube/BizPilot-sub002/internal/di"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/config"
	ppostgres "github.com/ZoliswaDube/BizPilot-sub002/internal/platform/postgres"
)

const (
	flagEnvFile     = "env-file"
	flagDatabaseURL = "database-url"
	flagSteps       = "steps"
)

func newApp(out io.Writer, logger *zap.Logger) *cli.App {
	return &cli.App{
		Name:      "orderctl",
		Usage:     "operate the orders backend",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagEnvFile,
				Value: ".env",
				Usage: "dotenv file layered under the process environment",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "manage the postgres schema",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    flagDatabaseURL,
						EnvVars: []string{"ORDERCTL_DATABASE_URL"},
						Usage:   "postgres url; defaults to API_POSTGRES_URL",
					},
				},
				Subcommands: []*cli.Command{
					{
						Name:  "up",
						Usage: "apply every pending migration",
						Action: func(c *cli.Context) error {
							return withMigrator(c, logger, func(m *ppostgres.Migrator) error {
								if err := m.Up(); err != nil {
									return err
								}
								return printVersion(c, m)
							})
						},
					},
					{
						Name:  "down",
						Usage: "roll back migrations",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: flagSteps, Value: 1, Usage: "number of migrations to roll back"},
						},
						Action: func(c *cli.Context) error {
							steps := c.Int(flagSteps)
							if steps <= 0 {
								return errors.New("--steps must be positive")
							}
							return withMigrator(c, logger, func(m *ppostgres.Migrator) error {
								if err := m.Down(steps); err != nil {
									return err
								}
								return printVersion(c, m)
							})
						},
					},
					{
						Name:  "version",
						Usage: "print the applied schema version",
						Action: func(c *cli.Context) error {
							return withMigrator(c, logger, func(m *ppostgres.Migrator) error {
								return printVersion(c, m)
							})
						},
					},
				},
			},
			{
				Name:  "config",
				Usage: "inspect runtime configuration",
				Subcommands: []*cli.Command{
					{
						Name:  "validate",
						Usage: "load and validate configuration, printing a redacted summary",
						Action: func(c *cli.Context) error {
							cfg, err := loadConfig(c, logger)
							if err != nil {
								return err
							}
							enc := json.NewEncoder(c.App.Writer)
							enc.SetIndent("", "  ")
							return enc.Encode(summarize(cfg))
						},
					},
				},
			},
		},
	}
}

func loadConfig(c *cli.Context, logger *zap.Logger) (config.Config, error) {
	cfg, fetcher, err := di.LoadConfig(c.Context, logger, config.WithEnvFile(c.String(flagEnvFile)))
	if err != nil {
		return config.Config{}, err
	}
	_ = fetcher.Close()
	return cfg, nil
}

func withMigrator(c *cli.Context, logger *zap.Logger, fn func(*ppostgres.Migrator) error) error {
	dsn := strings.TrimSpace(c.String(flagDatabaseURL))
	if dsn == "" {
		cfg, err := loadConfig(c, logger)
		if err != nil {
			return err
		}
		dsn = strings.TrimSpace(cfg.Postgres.URL)
	}
	if dsn == "" {
		return errors.New("postgres url is required; set --database-url or API_POSTGRES_URL")
	}
	m, err := ppostgres.NewMigrator(dsn)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn("migrator close error", zap.Error(err))
		}
	}()
	return fn(m)
}

func printVersion(c *cli.Context, m *ppostgres.Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.App.Writer, "schema version %d (dirty=%t)\n", version, dirty)
	return err
}

type configSummary struct {
	Environment       string   `json:"environment"`
	Port              string   `json:"port"`
	Repository        string   `json:"repository"`
	PostgresURLSet    bool     `json:"postgres_url_set"`
	FirestoreProject  string   `json:"firestore_project,omitempty"`
	TaxRate           string   `json:"tax_rate"`
	TaxRateOverrides  int      `json:"tax_rate_overrides"`
	Timezone          string   `json:"timezone"`
	OrderNumberPrefix string   `json:"order_number_prefix"`
	Events            string   `json:"events"`
	EventsTopic       string   `json:"events_topic,omitempty"`
	KafkaBrokers      []string `json:"kafka_brokers,omitempty"`
	Idempotency       string   `json:"idempotency"`
	RedisAddr         string   `json:"redis_addr,omitempty"`
	MetricsEnabled    bool     `json:"metrics_enabled"`
}

func summarize(cfg config.Config) configSummary {
	s := configSummary{
		Environment:       cfg.Environment,
		Port:              cfg.Server.Port,
		Repository:        cfg.Repository.Backend,
		PostgresURLSet:    strings.TrimSpace(cfg.Postgres.URL) != "",
		FirestoreProject:  cfg.Firestore.ProjectID,
		TaxRate:           cfg.Orders.TaxRate.String(),
		TaxRateOverrides:  len(cfg.Orders.TaxRateOverrides),
		Timezone:          cfg.Orders.Timezone,
		OrderNumberPrefix: cfg.Orders.NumberPrefix,
		Events:            cfg.Events.Backend,
		Idempotency:       cfg.Idempotency.Backend,
		MetricsEnabled:    cfg.Metrics.Enabled,
	}
	if cfg.Events.Backend != config.EventsBackendNone {
		s.EventsTopic = cfg.Events.Topic
		s.KafkaBrokers = cfg.Events.KafkaBrokers
	}
	if cfg.Idempotency.Backend == config.IdempotencyBackendRedis {
		s.RedisAddr = cfg.Redis.Addr
	}
	return s
}
