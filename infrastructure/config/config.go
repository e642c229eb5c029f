package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends
const (
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string `yaml:"server_address"`
	Environment   string `yaml:"environment"`
	ServiceName   string `yaml:"service_name"`
	Version       string `yaml:"version"`

	// Logging
	LogLevel string `yaml:"log_level"`

	Store      StoreConfig      `yaml:"store"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Auth       AuthConfig       `yaml:"auth"`
	Sync       SyncConfig       `yaml:"sync"`

	// Events
	EventBusName string `yaml:"event_bus_name"`

	// Feature flags
	EnableMetrics   bool     `yaml:"enable_metrics"`
	EnableTracing   bool     `yaml:"enable_tracing"`
	EnableCORS      bool     `yaml:"enable_cors"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	OTLPEndpoint    string   `yaml:"otlp_endpoint"`
	TraceSampleRate float64  `yaml:"trace_sample_rate"`

	// Path of the YAML file the values were read from, if any
	File string `yaml:"-"`
}

// StoreConfig selects and configures the remote document store
type StoreConfig struct {
	Backend          string        `yaml:"backend"`
	AWSRegion        string        `yaml:"aws_region"`
	DynamoDBTable    string        `yaml:"dynamodb_table"`
	DynamoDBEndpoint string        `yaml:"dynamodb_endpoint"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	PostgresDSN      string        `yaml:"postgres_dsn"`
}

// ResilienceConfig tunes the retry and circuit breaker decorator
type ResilienceConfig struct {
	Enabled            bool          `yaml:"enabled"`
	MaxRetries         int           `yaml:"max_retries"`
	RetryDelay         time.Duration `yaml:"retry_delay"`
	BreakerMaxFailures int           `yaml:"breaker_max_failures"`
	BreakerTimeout     time.Duration `yaml:"breaker_timeout"`
}

// AuthConfig configures bearer token verification
type AuthConfig struct {
	SigningMethod string   `yaml:"signing_method"`
	JWTSecret     string   `yaml:"jwt_secret"`
	JWTPublicKey  string   `yaml:"jwt_public_key"`
	JWTIssuer     string   `yaml:"jwt_issuer"`
	JWTAudience   []string `yaml:"jwt_audience"`
	// DevIdentity bypasses token checks outside production
	DevIdentity string `yaml:"dev_identity"`
}

// SyncConfig holds catalog and live sync behaviour
type SyncConfig struct {
	StrictFavoriteToggle bool   `yaml:"strict_favorite_toggle"`
	InstagramPlaceholder string `yaml:"instagram_placeholder"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		ServerAddress: ":8080",
		Environment:   "development",
		ServiceName:   "applistvideos",
		Version:       "dev",
		LogLevel:      "info",
		Store: StoreConfig{
			Backend:       BackendMemory,
			AWSRegion:     "us-west-2",
			DynamoDBTable: "applistvideos",
			PollInterval:  2 * time.Second,
		},
		Resilience: ResilienceConfig{
			Enabled:            true,
			MaxRetries:         3,
			RetryDelay:         100 * time.Millisecond,
			BreakerMaxFailures: 5,
			BreakerTimeout:     30 * time.Second,
		},
		Auth: AuthConfig{
			SigningMethod: "HS256",
			JWTIssuer:     "applistvideos",
			JWTAudience:   []string{"applistvideos-api"},
		},
		EnableCORS:      true,
		AllowedOrigins:  []string{"*"},
		OTLPEndpoint:    "localhost:4317",
		TraceSampleRate: 0.1,
	}
}

// LoadConfig builds the configuration from defaults, the YAML file named by
// CONFIG_FILE (if present) and environment variables, in that order.
func LoadConfig() (*Config, error) {
	return LoadFrom(getEnv("CONFIG_FILE", ""))
}

// LoadFrom is LoadConfig with an explicit YAML path
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.File = path
	return nil
}

func (c *Config) applyEnv() {
	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.ServiceName = getEnv("SERVICE_NAME", c.ServiceName)
	c.Version = getEnv("SERVICE_VERSION", c.Version)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Store.Backend = getEnv("STORE_BACKEND", c.Store.Backend)
	c.Store.AWSRegion = getEnv("AWS_REGION", c.Store.AWSRegion)
	c.Store.DynamoDBTable = getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", c.Store.DynamoDBTable))
	c.Store.DynamoDBEndpoint = getEnv("DYNAMODB_ENDPOINT", c.Store.DynamoDBEndpoint)
	c.Store.PollInterval = getEnvDuration("SYNC_POLL_INTERVAL", c.Store.PollInterval)
	c.Store.PostgresDSN = getEnv("DATABASE_URL", c.Store.PostgresDSN)

	c.Resilience.Enabled = getEnvBool("STORE_RESILIENCE", c.Resilience.Enabled)
	c.Resilience.MaxRetries = getEnvInt("STORE_MAX_RETRIES", c.Resilience.MaxRetries)
	c.Resilience.RetryDelay = getEnvDuration("STORE_RETRY_DELAY", c.Resilience.RetryDelay)
	c.Resilience.BreakerMaxFailures = getEnvInt("BREAKER_MAX_FAILURES", c.Resilience.BreakerMaxFailures)
	c.Resilience.BreakerTimeout = getEnvDuration("BREAKER_TIMEOUT", c.Resilience.BreakerTimeout)

	c.Auth.SigningMethod = getEnv("JWT_SIGNING_METHOD", c.Auth.SigningMethod)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.JWTPublicKey = getEnv("JWT_PUBLIC_KEY", c.Auth.JWTPublicKey)
	c.Auth.JWTIssuer = getEnv("JWT_ISSUER", c.Auth.JWTIssuer)
	c.Auth.JWTAudience = getEnvList("JWT_AUDIENCE", c.Auth.JWTAudience)
	c.Auth.DevIdentity = getEnv("DEV_IDENTITY", c.Auth.DevIdentity)

	c.Sync.StrictFavoriteToggle = getEnvBool("STRICT_FAVORITE_TOGGLE", c.Sync.StrictFavoriteToggle)
	c.Sync.InstagramPlaceholder = getEnv("INSTAGRAM_PLACEHOLDER", c.Sync.InstagramPlaceholder)

	c.EventBusName = getEnv("EVENT_BUS_NAME", c.EventBusName)

	c.EnableMetrics = getEnvBool("ENABLE_METRICS", c.EnableMetrics)
	c.EnableTracing = getEnvBool("ENABLE_TRACING", c.EnableTracing)
	c.EnableCORS = getEnvBool("ENABLE_CORS", c.EnableCORS)
	c.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", c.AllowedOrigins)
	c.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTLPEndpoint)
	c.TraceSampleRate = getEnvFloat("TRACE_SAMPLE_RATE", c.TraceSampleRate)
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendDynamoDB:
		if c.Store.DynamoDBTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required for the dynamodb backend")
		}
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Store.PollInterval <= 0 {
		return fmt.Errorf("SYNC_POLL_INTERVAL must be positive")
	}
	if c.Resilience.Enabled && (c.Resilience.MaxRetries < 1 || c.Resilience.BreakerMaxFailures < 1) {
		return fmt.Errorf("STORE_MAX_RETRIES and BREAKER_MAX_FAILURES must be at least 1")
	}

	if c.IsProduction() {
		if c.Auth.JWTSecret == "" && c.Auth.JWTPublicKey == "" {
			return fmt.Errorf("JWT_SECRET or JWT_PUBLIC_KEY is required in production")
		}
		if c.Auth.DevIdentity != "" {
			return fmt.Errorf("DEV_IDENTITY must not be set in production")
		}
		if c.Store.Backend == BackendMemory {
			return fmt.Errorf("the memory store backend is not allowed in production")
		}
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
