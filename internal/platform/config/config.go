package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultShutdownTimeout      = 10 * time.Second
	defaultEnvironment          = "local"
	defaultRepositoryBackend    = RepositoryBackendFirestore
	defaultPostgresMaxConns     = 10
	defaultOrdersTimezone       = "UTC"
	defaultOrderNumberPrefix    = "ORD"
	defaultInventoryConcurrency = 8
	defaultEventsBackend        = EventsBackendNone
	defaultEventsTopic          = "order-events"
	defaultRabbitMQExchange     = "orders"
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
	defaultIdempotencyBackend   = IdempotencyBackendMemory
	defaultRedisKeyPrefix       = "idem:"
)

// Repository backends.
const (
	RepositoryBackendFirestore = "firestore"
	RepositoryBackendPostgres  = "postgres"
	RepositoryBackendMemory    = "memory"
)

// Event publisher backends.
const (
	EventsBackendNone     = "none"
	EventsBackendPubSub   = "pubsub"
	EventsBackendKafka    = "kafka"
	EventsBackendRabbitMQ = "rabbitmq"
)

// Idempotency store backends.
const (
	IdempotencyBackendMemory = "memory"
	IdempotencyBackendRedis  = "redis"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	Repository  RepositoryConfig
	Firestore   FirestoreConfig
	Postgres    PostgresConfig
	Orders      OrdersConfig
	Events      EventsConfig
	Idempotency IdempotencyConfig
	Redis       RedisConfig
	Metrics     MetricsConfig
	Secrets     SecretsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// RepositoryConfig selects the persistence backend.
type RepositoryConfig struct {
	Backend string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PostgresConfig stores relational database parameters. URL may be a secret reference.
type PostgresConfig struct {
	URL      string
	MaxConns int
	Migrate  bool
}

// OrdersConfig holds the knobs of the order lifecycle.
type OrdersConfig struct {
	TaxRate                   decimal.Decimal
	TaxRateOverrides          map[string]decimal.Decimal
	Timezone                  string
	Location                  *time.Location
	NumberPrefix              string
	InventoryCheckConcurrency int
}

// EventsConfig selects where order events are published.
type EventsConfig struct {
	Backend          string
	Topic            string
	PubSubProjectID  string
	KafkaBrokers     []string
	RabbitMQURL      string
	RabbitMQExchange string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Backend          string
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// RedisConfig points at the Redis instance backing the idempotency store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

// SecretsConfig configures Secret Manager lookups for sm:// references.
type SecretsConfig struct {
	DefaultProjectID string
	FallbackFile     string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
type MissingSecretsError struct {
	secrets []missingSecret
}

type missingSecret struct {
	name     string
	redacted string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.secrets) == 0 {
		return "missing required secrets"
	}
	names := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		names = append(names, secret.redacted)
	}
	sort.Strings(names)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(names, ", "))
}

// RedactedNames returns a copy of the redacted secret identifiers.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.redacted)
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.name)
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile               string
	envMap                map[string]string
	useSystemEnv          bool
	secret                SecretResolver
	requiredSecrets       []string
	panicOnMissingSecrets bool
}

// Snapshot captures the resolved environment values used during loading so callers can construct
// dependent components (e.g., secret fetcher) with the same inputs.
type Snapshot struct {
	EnvFile         string
	Values          map[string]string
	ResolvedSecrets map[string]string
}

// EnvironmentValues returns the effective key/value environment map after applying the same precedence
// rules as Load (dotenv < OS env < explicit env map). Callers can use the result to initialise
// dependencies before invoking Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	merge := func(source map[string]string) {
		if source == nil {
			return
		}
		for key, value := range source {
			values[key] = value
		}
	}

	merge(dotEnvValues)

	if options.useSystemEnv {
		system := make(map[string]string)
		for _, entry := range os.Environ() {
			if entry == "" {
				continue
			}
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			if key == "" {
				continue
			}
			system[key] = parts[1]
		}
		merge(system)
	}

	merge(options.envMap)

	return values, nil
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory.
// Identifiers should match the config field names recorded by the loader
// (e.g. "Postgres.URL" or "Redis.Password").
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// WithPanicOnMissingSecrets causes Load to panic when required secrets are missing.
func WithPanicOnMissingSecrets() Option {
	return func(o *loaderOptions) {
		o.panicOnMissingSecrets = true
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	var invalid []string

	taxRate, ok := decimalValue(lookup, "API_ORDERS_TAX_RATE")
	if !ok {
		invalid = append(invalid, "Orders.TaxRate")
	}
	overrides, ok := decimalMapValue(lookup, "API_ORDERS_TAX_RATE_OVERRIDES")
	if !ok {
		invalid = append(invalid, "Orders.TaxRateOverrides")
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "API_ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:     durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "API_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Repository: RepositoryConfig{
			Backend: strings.ToLower(stringWithDefault(lookup, "API_REPOSITORY_BACKEND", defaultRepositoryBackend)),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Postgres: PostgresConfig{
			URL:      stringWithDefault(lookup, "API_POSTGRES_URL", ""),
			MaxConns: intWithDefault(lookup, "API_POSTGRES_MAX_CONNS", defaultPostgresMaxConns),
			Migrate:  boolWithDefault(lookup, "API_POSTGRES_MIGRATE", false),
		},
		Orders: OrdersConfig{
			TaxRate:                   taxRate,
			TaxRateOverrides:          overrides,
			Timezone:                  stringWithDefault(lookup, "API_ORDERS_TIMEZONE", defaultOrdersTimezone),
			NumberPrefix:              strings.ToUpper(stringWithDefault(lookup, "API_ORDERS_NUMBER_PREFIX", defaultOrderNumberPrefix)),
			InventoryCheckConcurrency: intWithDefault(lookup, "API_ORDERS_INVENTORY_CHECK_CONCURRENCY", defaultInventoryConcurrency),
		},
		Events: EventsConfig{
			Backend:          strings.ToLower(stringWithDefault(lookup, "API_EVENTS_BACKEND", defaultEventsBackend)),
			Topic:            stringWithDefault(lookup, "API_EVENTS_TOPIC", defaultEventsTopic),
			PubSubProjectID:  stringWithDefault(lookup, "API_EVENTS_PUBSUB_PROJECT_ID", ""),
			KafkaBrokers:     csvWithDefault(lookup, "API_EVENTS_KAFKA_BROKERS"),
			RabbitMQURL:      stringWithDefault(lookup, "API_EVENTS_RABBITMQ_URL", ""),
			RabbitMQExchange: stringWithDefault(lookup, "API_EVENTS_RABBITMQ_EXCHANGE", defaultRabbitMQExchange),
		},
		Idempotency: IdempotencyConfig{
			Backend:          strings.ToLower(stringWithDefault(lookup, "API_IDEMPOTENCY_BACKEND", defaultIdempotencyBackend)),
			Header:           stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
		Redis: RedisConfig{
			Addr:      stringWithDefault(lookup, "API_REDIS_ADDR", ""),
			Password:  stringWithDefault(lookup, "API_REDIS_PASSWORD", ""),
			DB:        intWithDefault(lookup, "API_REDIS_DB", 0),
			KeyPrefix: stringWithDefault(lookup, "API_REDIS_KEY_PREFIX", defaultRedisKeyPrefix),
		},
		Metrics: MetricsConfig{
			Enabled: boolWithDefault(lookup, "API_METRICS_ENABLED", true),
		},
		Secrets: SecretsConfig{
			DefaultProjectID: stringWithDefault(lookup, "API_SECRET_DEFAULT_PROJECT_ID", ""),
			FallbackFile:     stringWithDefault(lookup, "API_SECRET_FALLBACK_FILE", ""),
		},
	}

	if cfg.Events.PubSubProjectID == "" {
		cfg.Events.PubSubProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Secrets.DefaultProjectID == "" {
		cfg.Secrets.DefaultProjectID = cfg.Firestore.ProjectID
	}

	location, err := time.LoadLocation(cfg.Orders.Timezone)
	if err != nil {
		invalid = append(invalid, "Orders.Timezone")
	} else {
		cfg.Orders.Location = location
	}

	resolvedSecrets := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Postgres.URL", &cfg.Postgres.URL},
		{"Redis.Password", &cfg.Redis.Password},
		{"Events.RabbitMQURL", &cfg.Events.RabbitMQURL},
	}
	for _, target := range secretFields {
		resolved, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = resolved
		resolvedSecrets[target.name] = strings.TrimSpace(resolved)
	}

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolvedSecrets); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" {
		return value, nil
	}
	if !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config, invalid []string) error {
	missing := append([]string(nil), invalid...)

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}

	switch cfg.Repository.Backend {
	case RepositoryBackendFirestore:
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	case RepositoryBackendPostgres:
		if cfg.Postgres.URL == "" {
			missing = append(missing, "Postgres.URL")
		}
		if cfg.Postgres.MaxConns <= 0 {
			missing = append(missing, "Postgres.MaxConns")
		}
	case RepositoryBackendMemory:
	default:
		missing = append(missing, "Repository.Backend")
	}

	if cfg.Orders.TaxRate.IsNegative() || cfg.Orders.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		missing = append(missing, "Orders.TaxRate")
	}
	for business, rate := range cfg.Orders.TaxRateOverrides {
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
			missing = append(missing, fmt.Sprintf("Orders.TaxRateOverrides[%s]", business))
		}
	}
	if cfg.Orders.InventoryCheckConcurrency <= 0 {
		missing = append(missing, "Orders.InventoryCheckConcurrency")
	}

	switch cfg.Events.Backend {
	case EventsBackendNone:
	case EventsBackendPubSub:
		if cfg.Events.PubSubProjectID == "" {
			missing = append(missing, "Events.PubSubProjectID")
		}
	case EventsBackendKafka:
		if len(cfg.Events.KafkaBrokers) == 0 {
			missing = append(missing, "Events.KafkaBrokers")
		}
	case EventsBackendRabbitMQ:
		if cfg.Events.RabbitMQURL == "" {
			missing = append(missing, "Events.RabbitMQURL")
		}
	default:
		missing = append(missing, "Events.Backend")
	}
	if cfg.Events.Backend != EventsBackendNone && strings.TrimSpace(cfg.Events.Topic) == "" {
		missing = append(missing, "Events.Topic")
	}

	switch cfg.Idempotency.Backend {
	case IdempotencyBackendMemory:
	case IdempotencyBackendRedis:
		if cfg.Redis.Addr == "" {
			missing = append(missing, "Redis.Addr")
		}
	default:
		missing = append(missing, "Idempotency.Backend")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		missing = append(missing, "Idempotency.CleanupInterval")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		missing = append(missing, "Idempotency.CleanupBatchSize")
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	if len(required) == 0 {
		return nil
	}
	missing := make([]missingSecret, 0, len(required))
	seen := make(map[string]struct{})
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if value := strings.TrimSpace(resolved[trimmed]); value != "" {
			continue
		}
		missing = append(missing, missingSecret{
			name:     trimmed,
			redacted: redactSecretName(trimmed),
		})
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{secrets: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// decimalValue parses a required decimal. A missing or malformed value reports false.
func decimalValue(lookup func(string) (string, bool), key string) (decimal.Decimal, bool) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return decimal.Zero, false
	}
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, false
	}
	return value, true
}

// decimalMapValue parses "key=value" pairs whose values are decimals. An absent key yields an
// empty map; a malformed entry reports false.
func decimalMapValue(lookup func(string) (string, bool), key string) (map[string]decimal.Decimal, bool) {
	values := make(map[string]decimal.Decimal)
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return values, true
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, value, found := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		if !found || name == "" {
			return values, false
		}
		parsed, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return values, false
		}
		values[name] = parsed
	}
	return values, true
}
