package di

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/config"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/secrets"
)

// LoadConfig resolves the environment, builds a secret fetcher from it and loads the full
// configuration with sm:// references resolved. The returned fetcher must be closed by the caller.
func LoadConfig(ctx context.Context, logger *zap.Logger, opts ...config.Option) (config.Config, *secrets.Fetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	env, err := config.EnvironmentValues(opts...)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("read environment: %w", err)
	}

	fetcher, err := secrets.NewFetcher(ctx, secretOptions(logger, env)...)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("secret fetcher: %w", err)
	}

	loadOpts := append([]config.Option{}, opts...)
	loadOpts = append(loadOpts,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(env)...),
	)
	cfg, err := config.Load(ctx, loadOpts...)
	if err != nil {
		_ = fetcher.Close()
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Error("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		return config.Config{}, nil, err
	}
	return cfg, fetcher, nil
}

func secretOptions(logger *zap.Logger, env map[string]string) []secrets.Option {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}
	opts := []secrets.Option{secrets.WithLogger(logger.Named("secrets"))}
	project := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIRESTORE_PROJECT_ID")
	}
	if project != "" {
		opts = append(opts, secrets.WithDefaultProject(project))
	}
	if fallback := lookup("API_SECRET_FALLBACK_FILE"); fallback != "" {
		opts = append(opts, secrets.WithFallbackFile(fallback))
	}
	return opts
}

// requiredSecretNames lists the secret-backed fields the selected backends cannot run without.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	if strings.EqualFold(strings.TrimSpace(env["API_REPOSITORY_BACKEND"]), config.RepositoryBackendPostgres) {
		required = append(required, "Postgres.URL")
	}
	if strings.EqualFold(strings.TrimSpace(env["API_EVENTS_BACKEND"]), config.EventsBackendRabbitMQ) {
		required = append(required, "Events.RabbitMQURL")
	}
	return required
}
