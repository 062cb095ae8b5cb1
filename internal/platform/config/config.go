// Package config loads layered runtime configuration for the parts hub API.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	envPrefix = "PARTSHUB_"

	defaultEnvFile          = ".env"
	defaultLogLevel         = "info"
	defaultPort             = "8080"
	defaultReadTimeout      = 15 * time.Second
	defaultWriteTimeout     = 30 * time.Second
	defaultIdleTimeout      = 120 * time.Second
	defaultShutdownTimeout  = 20 * time.Second
	defaultStorageBackend   = BackendMemory
	defaultPostgresMaxConns = 10
	defaultExportsPrefix    = "exports"
	defaultShiftClosedTopic = "shift.closed"
	defaultTaxRate          = "0.10"
	defaultDutyTreatment    = "informational"
	defaultTimeZone         = "UTC"
	defaultLocale           = "en"
	defaultSecretsFallback  = ".secrets.local"
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultIdempotencySweep = 15 * time.Minute
	defaultIdempotencyKey   = "Idempotency-Key"
)

// Storage backends understood by the repository registry.
const (
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
	BackendMemory    = "memory"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Log         LogConfig
	Server      ServerConfig
	Storage     StorageConfig
	Firestore   FirestoreConfig
	Postgres    PostgresConfig
	Exports     ExportsConfig
	Events      EventsConfig
	Costing     CostingConfig
	Business    BusinessConfig
	Secrets     SecretsConfig
	Idempotency IdempotencyConfig
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// StorageConfig selects the repository backend.
type StorageConfig struct {
	Backend string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PostgresConfig stores connection pool parameters. URL may be a secret:// reference.
type PostgresConfig struct {
	URL      string
	MaxConns int
}

// ExportsConfig names the bucket receiving CSV analysis exports. An empty bucket disables exports.
type ExportsConfig struct {
	Bucket string
	Prefix string
}

// EventsConfig configures the shift-closed Pub/Sub topic. An empty topic disables publishing.
type EventsConfig struct {
	ProjectID        string
	ShiftClosedTopic string
}

// CostingConfig holds the landed-cost policy and the optional YAML file with rate presets.
type CostingConfig struct {
	TaxRate       decimal.Decimal
	DutyTreatment string
	PolicyFile    string
}

// BusinessConfig describes the shop's business-day calendar and display locale.
type BusinessConfig struct {
	TimeZone string
	Location *time.Location
	Locale   string
}

// SecretsConfig configures Secret Manager lookups.
type SecretsConfig struct {
	ProjectID    string
	FallbackFile string
}

// IdempotencyConfig controls the replay guard on mutating API routes. A zero CleanupInterval
// disables the background purge of expired keys.
type IdempotencyConfig struct {
	Header          string
	TTL             time.Duration
	CleanupInterval time.Duration
	RequireKey      bool
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
	Field string
	Ref   string
	Err   error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for %s (%q): %v", e.Field, e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
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

// WithoutSystemEnv disables reading from os.LookupEnv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// Bootstrap reads only the settings needed before secrets can be resolved, so callers can build a
// secret fetcher with the same inputs Load will see.
func Bootstrap(opts ...Option) (SecretsConfig, string, error) {
	options := newLoaderOptions(opts)
	lookup, err := options.lookup()
	if err != nil {
		return SecretsConfig{}, "", err
	}
	firestoreProject := stringWithDefault(lookup, "FIRESTORE_PROJECT_ID", "")
	return SecretsConfig{
		ProjectID:    stringWithDefault(lookup, "SECRETS_PROJECT_ID", firestoreProject),
		FallbackFile: stringWithDefault(lookup, "SECRETS_FALLBACK_FILE", defaultSecretsFallback),
	}, strings.ToLower(stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel)), nil
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	lookup, err := options.lookup()
	if err != nil {
		return Config{}, err
	}

	var invalid []string
	taxRate, err := decimal.NewFromString(stringWithDefault(lookup, "COSTING_TAX_RATE", defaultTaxRate))
	if err != nil {
		invalid = append(invalid, "Costing.TaxRate")
	}

	cfg := Config{
		Log: LogConfig{
			Level: strings.ToLower(stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel)),
		},
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "SERVER_PORT", defaultPort),
			ReadTimeout:     durationWithDefault(lookup, "SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(stringWithDefault(lookup, "STORAGE_BACKEND", defaultStorageBackend)),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "FIRESTORE_EMULATOR_HOST", ""),
		},
		Postgres: PostgresConfig{
			URL:      stringWithDefault(lookup, "POSTGRES_URL", ""),
			MaxConns: intWithDefault(lookup, "POSTGRES_MAX_CONNS", defaultPostgresMaxConns),
		},
		Exports: ExportsConfig{
			Bucket: stringWithDefault(lookup, "EXPORTS_BUCKET", ""),
			Prefix: strings.Trim(stringWithDefault(lookup, "EXPORTS_PREFIX", defaultExportsPrefix), "/"),
		},
		Events: EventsConfig{
			ProjectID:        stringWithDefault(lookup, "EVENTS_PROJECT_ID", ""),
			ShiftClosedTopic: stringWithDefault(lookup, "EVENTS_SHIFT_CLOSED_TOPIC", ""),
		},
		Costing: CostingConfig{
			TaxRate:       taxRate,
			DutyTreatment: strings.ToLower(stringWithDefault(lookup, "COSTING_DUTY_TREATMENT", defaultDutyTreatment)),
			PolicyFile:    stringWithDefault(lookup, "COSTING_POLICY_FILE", ""),
		},
		Business: BusinessConfig{
			TimeZone: stringWithDefault(lookup, "BUSINESS_TIMEZONE", defaultTimeZone),
			Locale:   stringWithDefault(lookup, "BUSINESS_LOCALE", defaultLocale),
		},
		Secrets: SecretsConfig{
			ProjectID:    stringWithDefault(lookup, "SECRETS_PROJECT_ID", ""),
			FallbackFile: stringWithDefault(lookup, "SECRETS_FALLBACK_FILE", defaultSecretsFallback),
		},
		Idempotency: IdempotencyConfig{
			Header:          stringWithDefault(lookup, "IDEMPOTENCY_HEADER", defaultIdempotencyKey),
			TTL:             durationWithDefault(lookup, "IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval: durationWithDefault(lookup, "IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencySweep),
			RequireKey:      boolWithDefault(lookup, "IDEMPOTENCY_REQUIRE_KEY", false),
		},
	}

	// Events and secrets default to the Firestore project when unspecified.
	if cfg.Events.ProjectID == "" {
		cfg.Events.ProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Events.ShiftClosedTopic == "" && boolWithDefault(lookup, "EVENTS_ENABLED", false) {
		cfg.Events.ShiftClosedTopic = defaultShiftClosedTopic
	}
	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Firestore.ProjectID
	}

	if loc, err := time.LoadLocation(cfg.Business.TimeZone); err == nil {
		cfg.Business.Location = loc
	} else {
		invalid = append(invalid, "Business.TimeZone")
	}

	if err := resolveSecret(ctx, "Postgres.URL", &cfg.Postgres.URL, options.secret); err != nil {
		return Config{}, err
	}

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (o loaderOptions) lookup() (func(string) (string, bool), error) {
	dotEnvValues, err := loadDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		key = envPrefix + key
		if o.envMap != nil {
			if value, ok := o.envMap[key]; ok {
				return value, true
			}
		}
		if o.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if value, ok := dotEnvValues[key]; ok {
			return value, true
		}
		return "", false
	}, nil
}

func resolveSecret(ctx context.Context, field string, value *string, resolver SecretResolver) error {
	trimmed := strings.TrimSpace(*value)
	if !strings.HasPrefix(trimmed, "secret://") {
		return nil
	}
	if resolver == nil {
		return &SecretError{Field: field, Ref: trimmed, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, trimmed)
	if err != nil {
		return &SecretError{Field: field, Ref: trimmed, Err: err}
	}
	*value = strings.TrimSpace(secret)
	return nil
}

func validateConfig(cfg Config, invalid []string) error {
	missing := append([]string(nil), invalid...)

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	switch cfg.Storage.Backend {
	case BackendFirestore:
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	case BackendPostgres:
		if cfg.Postgres.URL == "" {
			missing = append(missing, "Postgres.URL")
		}
		if cfg.Postgres.MaxConns <= 0 {
			missing = append(missing, "Postgres.MaxConns")
		}
	case BackendMemory:
	default:
		missing = append(missing, "Storage.Backend")
	}
	if cfg.Events.ShiftClosedTopic != "" && cfg.Events.ProjectID == "" {
		missing = append(missing, "Events.ProjectID")
	}
	if cfg.Costing.TaxRate.IsNegative() || cfg.Costing.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		missing = append(missing, "Costing.TaxRate")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	switch cfg.Costing.DutyTreatment {
	case "informational", "additive":
	default:
		missing = append(missing, "Costing.DutyTreatment")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	values, err := godotenv.Read(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
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
