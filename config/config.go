package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration.
type Config struct {
	// Application
	App AppConfig

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Billing provider
	Billing BillingConfig

	// HTTP server
	HTTP HTTPConfig

	// Scheduler
	Scheduler SchedulerConfig

	// Feature Flags
	Features *FeatureFlags

	// Observability
	Observability ObservabilityConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string
	Environment Environment
	Debug       bool
	Version     string

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string

	// Connection pool settings
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Query timeout
	QueryTimeout time.Duration
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// Timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Enable for development without Redis
	Disabled bool
}

// BillingConfig holds billing provider API settings.
type BillingConfig struct {
	// Base URL of the provider API
	BaseURL string

	// Secret API key (Bearer auth)
	APIKey string

	// Shared secret for webhook signature verification
	WebhookSecret string

	// Provider price ID for the subscription plan
	PriceID string

	// Hosts allowed for checkout redirect URLs
	AllowedRedirectHosts []string

	// Default return URLs for hosted checkout
	CheckoutSuccessURL string
	CheckoutCancelURL  string

	// Rate limiting (protect from being blocked)
	RateLimit      int // requests per second
	RateLimitBurst int // burst size
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// Circuit breaker settings
	CircuitBreakerThreshold   int           // failures before opening
	CircuitBreakerTimeout     time.Duration // time before half-open
	CircuitBreakerHalfOpenMax int           // max requests in half-open
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	EnableCORS     bool
	AllowedOrigins []string

	RateLimitPerMinute int

	// Admin API key authentication (bcrypt hashes)
	APIKeyHeader string
	APIKeyHashes []string
}

// SchedulerConfig holds background job settings.
type SchedulerConfig struct {
	// Enable/disable scheduler
	Enabled bool

	// Job intervals
	ReconcileInterval time.Duration // subscription reconciliation sweep

	// Grace period before a lapsed subscription is downgraded
	ReconcileGracePeriod time.Duration

	// Streak sweep time (UTC, shortly after the day boundary)
	StreakSweepHour   int // 0-23
	StreakSweepMinute int // 0-59

	// Job execution
	JobTimeout time.Duration
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.App = loadAppConfig()
	cfg.Database = loadDatabaseConfig()
	cfg.Redis = loadRedisConfig()
	cfg.Billing = loadBillingConfig()
	cfg.HTTP = loadHTTPConfig()
	cfg.Scheduler = loadSchedulerConfig()
	cfg.Features = LoadFeatureFlags()
	cfg.Observability = loadObservabilityConfig()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func loadAppConfig() AppConfig {
	env := Environment(getEnv("APP_ENV", "development"))

	return AppConfig{
		Name:            getEnv("APP_NAME", "nivo-hub"),
		Environment:     env,
		Debug:           env == EnvDevelopment || getEnvBool("APP_DEBUG", false),
		Version:         getEnv("APP_VERSION", "0.1.0"),
		ShutdownTimeout: getEnvDuration("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		Name:            getEnv("DB_NAME", "nivo"),
		User:            getEnv("DB_USER", "nivo"),
		Password:        getEnv("DB_PASSWORD", ""),
		SSLMode:         getEnv("DB_SSLMODE", "require"),
		MaxConns:        int32(getEnvInt("DB_MAX_CONNS", 25)),
		MinConns:        int32(getEnvInt("DB_MIN_CONNS", 5)),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		QueryTimeout:    getEnvDuration("DB_QUERY_TIMEOUT", 30*time.Second),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Host:         getEnv("REDIS_HOST", "localhost"),
		Port:         getEnvInt("REDIS_PORT", 6379),
		Password:     getEnv("REDIS_PASSWORD", ""),
		DB:           getEnvInt("REDIS_DB", 0),
		PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
		MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		Disabled:     getEnvBool("REDIS_DISABLED", false),
	}
}

func loadBillingConfig() BillingConfig {
	return BillingConfig{
		BaseURL:                   getEnv("BILLING_BASE_URL", "https://api.stripe.com"),
		APIKey:                    getEnv("BILLING_API_KEY", ""),
		WebhookSecret:             getEnv("BILLING_WEBHOOK_SECRET", ""),
		PriceID:                   getEnv("BILLING_PRICE_ID", ""),
		AllowedRedirectHosts:      getEnvStringSlice("BILLING_ALLOWED_REDIRECT_HOSTS", []string{"checkout.stripe.com"}),
		CheckoutSuccessURL:        getEnv("BILLING_CHECKOUT_SUCCESS_URL", ""),
		CheckoutCancelURL:         getEnv("BILLING_CHECKOUT_CANCEL_URL", ""),
		RateLimit:                 getEnvInt("BILLING_RATE_LIMIT", 10),
		RateLimitBurst:            getEnvInt("BILLING_RATE_LIMIT_BURST", 20),
		RequestTimeout:            getEnvDuration("BILLING_REQUEST_TIMEOUT", 20*time.Second),
		MaxRetries:                getEnvInt("BILLING_MAX_RETRIES", 3),
		RetryBaseDelay:            getEnvDuration("BILLING_RETRY_BASE_DELAY", 500*time.Millisecond),
		RetryMaxDelay:             getEnvDuration("BILLING_RETRY_MAX_DELAY", 15*time.Second),
		CircuitBreakerThreshold:   getEnvInt("BILLING_CB_THRESHOLD", 5),
		CircuitBreakerTimeout:     getEnvDuration("BILLING_CB_TIMEOUT", 30*time.Second),
		CircuitBreakerHalfOpenMax: getEnvInt("BILLING_CB_HALF_OPEN_MAX", 3),
	}
}

func loadHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Host:               getEnv("HTTP_HOST", "0.0.0.0"),
		Port:               getEnvInt("HTTP_PORT", 8080),
		ReadTimeout:        getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:       getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:        getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		EnableCORS:         getEnvBool("HTTP_ENABLE_CORS", true),
		AllowedOrigins:     getEnvStringSlice("HTTP_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitPerMinute: getEnvInt("HTTP_RATE_LIMIT_PER_MINUTE", 100),
		APIKeyHeader:       getEnv("HTTP_API_KEY_HEADER", "X-API-Key"),
		APIKeyHashes:       getEnvStringSlice("HTTP_API_KEY_HASHES", nil),
	}
}

func loadSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:              getEnvBool("SCHEDULER_ENABLED", true),
		ReconcileInterval:    getEnvDuration("SCHEDULER_RECONCILE_INTERVAL", 1*time.Hour),
		ReconcileGracePeriod: getEnvDuration("SCHEDULER_RECONCILE_GRACE", 6*time.Hour),
		StreakSweepHour:      getEnvInt("SCHEDULER_STREAK_SWEEP_HOUR", 0),
		StreakSweepMinute:    getEnvInt("SCHEDULER_STREAK_SWEEP_MINUTE", 10),
		JobTimeout:           getEnvDuration("SCHEDULER_JOB_TIMEOUT", 5*time.Minute),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if c.App.Environment == EnvProduction {
		if c.Billing.APIKey == "" {
			errs = append(errs, "BILLING_API_KEY is required in production")
		}
		if c.Billing.WebhookSecret == "" {
			errs = append(errs, "BILLING_WEBHOOK_SECRET is required in production")
		}
		if c.Database.Password == "" {
			errs = append(errs, "DB_PASSWORD is required in production")
		}
	}

	if c.Scheduler.StreakSweepHour < 0 || c.Scheduler.StreakSweepHour > 23 {
		errs = append(errs, "SCHEDULER_STREAK_SWEEP_HOUR must be 0-23")
	}

	if c.Scheduler.StreakSweepMinute < 0 || c.Scheduler.StreakSweepMinute > 59 {
		errs = append(errs, "SCHEDULER_STREAK_SWEEP_MINUTE must be 0-59")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// --- Helper functions for environment variable parsing ---

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}

	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
