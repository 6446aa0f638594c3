package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Env var names are prefixed with API_ to keep deployment manifests tidy.
const envPrefix = "API_"

// ServerConfig groups the HTTP listener settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig holds the settings needed to verify Firebase ID tokens.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig holds the settings for the shared Firestore client.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PaymentsConfig carries provider credentials and routing preferences.
type PaymentsConfig struct {
	Currency       string
	CardProvider   string
	PayPalBaseURL  string
	PayPalClientID string
	PayPalSecret   string
	StripeAPIKey   string
}

// IdempotencyConfig tunes the idempotency middleware.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// EmailConfig carries the transactional mail settings.
type EmailConfig struct {
	SendGridAPIKey string
	FromAddress    string
	FromName       string
}

// PubSubConfig holds the settings for the order event publisher. An empty
// topic disables publishing.
type PubSubConfig struct {
	ProjectID        string
	OrderEventsTopic string
}

// ScheduleConfig tunes slot reservation behaviour.
type ScheduleConfig struct {
	ReservationTTL time.Duration
}

// Config aggregates all runtime configuration for the API binary.
type Config struct {
	Environment string
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Payments    PaymentsConfig
	Idempotency IdempotencyConfig
	Email       EmailConfig
	PubSub      PubSubConfig
	Schedule    ScheduleConfig
}

// ValidationError lists the configuration fields that failed validation.
type ValidationError struct {
	Fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "config: validation failed"
	}
	return fmt.Sprintf("config: invalid or missing fields: %s", strings.Join(e.Fields, ", "))
}

// Option customises the load behaviour.
type Option func(*loadOptions)

type loadOptions struct {
	envFiles []string
	lookup   func(string) string
}

// WithEnvFiles overrides the dotenv files consulted before the process environment.
func WithEnvFiles(files ...string) Option {
	return func(o *loadOptions) {
		o.envFiles = files
	}
}

// WithLookup overrides the environment lookup, primarily for testing.
func WithLookup(lookup func(string) string) Option {
	return func(o *loadOptions) {
		if lookup != nil {
			o.lookup = lookup
		}
	}
}

// Load reads configuration from dotenv files and the process environment.
// Values already present in the environment win over dotenv entries.
func Load(opts ...Option) (Config, error) {
	options := loadOptions{
		envFiles: []string{".env"},
		lookup:   os.Getenv,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	for _, file := range options.envFiles {
		if file == "" {
			continue
		}
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", file, err)
		}
	}

	get := func(key string) string {
		return strings.TrimSpace(options.lookup(envPrefix + key))
	}

	cfg := Config{
		Environment: defaultString(get("ENVIRONMENT"), "local"),
		Server: ServerConfig{
			Port:         defaultString(get("SERVER_PORT"), "8080"),
			ReadTimeout:  parseDuration(get("SERVER_READ_TIMEOUT"), 15*time.Second),
			WriteTimeout: parseDuration(get("SERVER_WRITE_TIMEOUT"), 30*time.Second),
			IdleTimeout:  parseDuration(get("SERVER_IDLE_TIMEOUT"), 60*time.Second),
		},
		Firebase: FirebaseConfig{
			ProjectID:       get("FIREBASE_PROJECT_ID"),
			CredentialsFile: get("FIREBASE_CREDENTIALS_FILE"),
		},
		Firestore: FirestoreConfig{
			ProjectID:    get("FIRESTORE_PROJECT_ID"),
			EmulatorHost: get("FIRESTORE_EMULATOR_HOST"),
		},
		Payments: PaymentsConfig{
			Currency:       defaultString(strings.ToUpper(get("PAYMENTS_CURRENCY")), "EUR"),
			CardProvider:   defaultString(strings.ToLower(get("PAYMENTS_CARD_PROVIDER")), "card"),
			PayPalBaseURL:  defaultString(get("PAYMENTS_PAYPAL_BASE_URL"), "https://api-m.sandbox.paypal.com"),
			PayPalClientID: get("PAYMENTS_PAYPAL_CLIENT_ID"),
			PayPalSecret:   get("PAYMENTS_PAYPAL_SECRET"),
			StripeAPIKey:   get("PAYMENTS_STRIPE_API_KEY"),
		},
		Idempotency: IdempotencyConfig{
			Header:           defaultString(get("IDEMPOTENCY_HEADER"), "Idempotency-Key"),
			TTL:              parseDuration(get("IDEMPOTENCY_TTL"), 24*time.Hour),
			CleanupInterval:  parseDuration(get("IDEMPOTENCY_CLEANUP_INTERVAL"), time.Hour),
			CleanupBatchSize: parseInt(get("IDEMPOTENCY_CLEANUP_BATCH_SIZE"), 200),
		},
		Email: EmailConfig{
			SendGridAPIKey: get("EMAIL_SENDGRID_API_KEY"),
			FromAddress:    get("EMAIL_FROM_ADDRESS"),
			FromName:       defaultString(get("EMAIL_FROM_NAME"), "TidyNest"),
		},
		PubSub: PubSubConfig{
			ProjectID:        get("PUBSUB_PROJECT_ID"),
			OrderEventsTopic: get("PUBSUB_ORDER_EVENTS_TOPIC"),
		},
		Schedule: ScheduleConfig{
			ReservationTTL: parseDuration(get("SCHEDULE_RESERVATION_TTL"), 30*time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var invalid []string

	if c.Firebase.ProjectID == "" {
		invalid = append(invalid, "Firebase.ProjectID")
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		invalid = append(invalid, "Server.Port")
	}
	if c.Payments.PayPalClientID == "" || c.Payments.PayPalSecret == "" {
		invalid = append(invalid, "Payments.PayPal")
	}
	if c.Payments.CardProvider == "stripe" && c.Payments.StripeAPIKey == "" {
		invalid = append(invalid, "Payments.StripeAPIKey")
	}

	if len(invalid) > 0 {
		return &ValidationError{Fields: invalid}
	}
	return nil
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
