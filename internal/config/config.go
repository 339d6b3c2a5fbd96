package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/ticket-shotgun/internal/domain/order"
)

const (
	defaultHTTPAddr        = ":8080"
	defaultShutdownTimeout = 10 * time.Second
	defaultStoreDriver     = "memory"
	defaultKafkaTopic      = "order-events"
	defaultOngoingTimeout  = 20 * time.Minute
	defaultValidationTime  = 2 * 24 * time.Hour
	defaultPaymentTimeout  = 30 * time.Minute
	defaultConflictRetries = 5
	defaultConflictBackoff = 20 * time.Millisecond
	defaultSweepInterval   = time.Minute
	defaultPaymentProvider = "manual"
	defaultPaymentBaseURL  = "http://localhost:8080"
	defaultCurrency        = "eur"
	defaultSMTPPort        = 587
	defaultProfileCacheTTL = 5 * time.Minute
)

// Config is the runtime configuration shared by every process.
type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Kafka   KafkaConfig
	Auth    AuthConfig
	Orders  OrdersConfig
	Payment PaymentConfig
	SMTP    SMTPConfig
	Profile ProfileConfig
}

type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// StoreConfig selects the order store. Driver is "memory" or "postgres".
type StoreConfig struct {
	Driver       string
	DatabaseURL  string
	JournalTable string
	CatalogFile  string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

type AuthConfig struct {
	JWTSecret          string
	CallbackSecretHash string
}

type OrdersConfig struct {
	Timeouts        order.Timeouts
	ConflictRetries int
	ConflictBackoff time.Duration
	SweepInterval   time.Duration
}

// PaymentConfig selects the gateway. Provider is "manual" or "stripe".
type PaymentConfig struct {
	Provider            string
	BaseURL             string
	Currency            string
	StripeAPIKey        string
	StripeWebhookSecret string
	SuccessURL          string
	CancelURL           string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type ProfileConfig struct {
	CacheTTL time.Duration
}

// Option customises how Load resolves values.
type Option func(*loaderOptions)

type loaderOptions struct {
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvMap supplies values that take precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load reads the configuration from the environment.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}

	lookup := func(key string) (string, bool) {
		if v, ok := options.envMap[key]; ok {
			return v, true
		}
		if options.useSystemEnv {
			return os.LookupEnv(key)
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Addr:            stringWithDefault(lookup, "HTTP_ADDR", defaultHTTPAddr),
			ShutdownTimeout: durationWithDefault(lookup, "SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Store: StoreConfig{
			Driver:       strings.ToLower(stringWithDefault(lookup, "STORE_DRIVER", defaultStoreDriver)),
			DatabaseURL:  stringWithDefault(lookup, "DATABASE_URL", ""),
			JournalTable: stringWithDefault(lookup, "JOURNAL_TABLE", ""),
			CatalogFile:  stringWithDefault(lookup, "CATALOG_FILE", ""),
		},
		Kafka: KafkaConfig{
			Brokers: csvWithDefault(lookup, "KAFKA_BROKERS"),
			Topic:   stringWithDefault(lookup, "KAFKA_TOPIC", defaultKafkaTopic),
			GroupID: stringWithDefault(lookup, "KAFKA_GROUP_ID", "ticket-notifier"),
		},
		Auth: AuthConfig{
			JWTSecret:          stringWithDefault(lookup, "JWT_SECRET", ""),
			CallbackSecretHash: stringWithDefault(lookup, "PAYMENT_CALLBACK_SECRET_HASH", ""),
		},
		Orders: OrdersConfig{
			Timeouts: order.Timeouts{
				Ongoing:    durationWithDefault(lookup, "ONGOING_TIMEOUT", defaultOngoingTimeout),
				Validation: durationWithDefault(lookup, "VALIDATION_TIMEOUT", defaultValidationTime),
				Payment:    durationWithDefault(lookup, "PAYMENT_TIMEOUT", defaultPaymentTimeout),
			},
			ConflictRetries: intWithDefault(lookup, "CONFLICT_RETRIES", defaultConflictRetries),
			ConflictBackoff: durationWithDefault(lookup, "CONFLICT_BACKOFF", defaultConflictBackoff),
			SweepInterval:   durationWithDefault(lookup, "SWEEP_INTERVAL", defaultSweepInterval),
		},
		Payment: PaymentConfig{
			Provider:            strings.ToLower(stringWithDefault(lookup, "PAYMENT_PROVIDER", defaultPaymentProvider)),
			BaseURL:             strings.TrimRight(stringWithDefault(lookup, "PAYMENT_BASE_URL", defaultPaymentBaseURL), "/"),
			Currency:            strings.ToLower(stringWithDefault(lookup, "PAYMENT_CURRENCY", defaultCurrency)),
			StripeAPIKey:        stringWithDefault(lookup, "STRIPE_API_KEY", ""),
			StripeWebhookSecret: stringWithDefault(lookup, "STRIPE_WEBHOOK_SECRET", ""),
			SuccessURL:          stringWithDefault(lookup, "PAYMENT_SUCCESS_URL", ""),
			CancelURL:           stringWithDefault(lookup, "PAYMENT_CANCEL_URL", ""),
		},
		SMTP: SMTPConfig{
			Host:     stringWithDefault(lookup, "SMTP_HOST", ""),
			Port:     intWithDefault(lookup, "SMTP_PORT", defaultSMTPPort),
			Username: stringWithDefault(lookup, "SMTP_USERNAME", ""),
			Password: stringWithDefault(lookup, "SMTP_PASSWORD", ""),
			From:     stringWithDefault(lookup, "SMTP_FROM", "tickets@localhost"),
		},
		Profile: ProfileConfig{
			CacheTTL: durationWithDefault(lookup, "PROFILE_CACHE_TTL", defaultProfileCacheTTL),
		},
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidationError lists the settings that failed validation.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

func validate(cfg Config) error {
	var problems []string
	switch cfg.Store.Driver {
	case "memory":
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			problems = append(problems, "DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown STORE_DRIVER %q", cfg.Store.Driver))
	}
	switch cfg.Payment.Provider {
	case "manual":
	case "stripe":
		if cfg.Payment.StripeAPIKey == "" {
			problems = append(problems, "STRIPE_API_KEY is required when PAYMENT_PROVIDER=stripe")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown PAYMENT_PROVIDER %q", cfg.Payment.Provider))
	}
	if cfg.Orders.ConflictRetries < 1 {
		problems = append(problems, "CONFLICT_RETRIES must be at least 1")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

var ErrJWTSecretTooShort = errors.New("JWT_SECRET must be at least 32 characters long")

// RequireJWTSecret is checked by processes that authenticate users.
func (c Config) RequireJWTSecret() error {
	if len(c.Auth.JWTSecret) < 32 {
		return ErrJWTSecretTooShort
	}
	return nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
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

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
