// Package config loads application configuration from the environment.
// All variables carry the RENTGRID_ prefix.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rentgrid/rentgrid/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration (session cache)
	Redis RedisConfig

	// Authorization configuration
	Authz AuthzConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrateOnStart  bool
}

// RedisConfig holds redis configuration for the session cache. Redis is
// optional; with no URL configured sessions resolve straight from Postgres.
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	SessionTTL time.Duration
}

// AuthzConfig holds permission engine configuration
type AuthzConfig struct {
	// PermissionsFile optionally overrides the built-in role permission
	// table with a YAML file, hot-reloaded on change.
	PermissionsFile string

	// OwnershipCacheSize bounds the property-ownership LRU cache.
	OwnershipCacheSize int
	OwnershipCacheTTL  time.Duration

	// SessionCleanupSchedule is a cron expression for expired-session
	// cleanup.
	SessionCleanupSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Authz:         loadAuthzConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("RENTGRID_HOST", "0.0.0.0"),
		Port:            getEnv("RENTGRID_PORT", "8080"),
		ReadTimeout:     getEnvDuration("RENTGRID_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("RENTGRID_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("RENTGRID_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("RENTGRID_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("RENTGRID_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads database configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("RENTGRID_POSTGRES_URL", ""),
		MaxOpenConns:    getEnvInt("RENTGRID_POSTGRES_MAX_CONNS", 25),
		MaxIdleConns:    getEnvInt("RENTGRID_POSTGRES_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("RENTGRID_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		MigrateOnStart:  getEnvBool("RENTGRID_MIGRATE_ON_START", true),
	}
}

// loadRedisConfig loads redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:        getEnv("RENTGRID_REDIS_URL", ""),
		Password:   getEnv("RENTGRID_REDIS_PASSWORD", ""),
		DB:         getEnvInt("RENTGRID_REDIS_DB", 0),
		SessionTTL: getEnvDuration("RENTGRID_SESSION_CACHE_TTL", 60*time.Second),
	}
}

// loadAuthzConfig loads permission engine configuration from environment
func loadAuthzConfig() AuthzConfig {
	return AuthzConfig{
		PermissionsFile:        getEnv("RENTGRID_PERMISSIONS_FILE", ""),
		OwnershipCacheSize:     getEnvInt("RENTGRID_OWNERSHIP_CACHE_SIZE", 4096),
		OwnershipCacheTTL:      getEnvDuration("RENTGRID_OWNERSHIP_CACHE_TTL", 30*time.Second),
		SessionCleanupSchedule: getEnv("RENTGRID_SESSION_CLEANUP_SCHEDULE", "@every 1h"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("RENTGRID_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("RENTGRID_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("RENTGRID_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("RENTGRID_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("RENTGRID_OTEL_SERVICE_NAME", "rentgrid"),
		OTelServiceVersion: getEnv("RENTGRID_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("RENTGRID_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("postgres max conns must be positive")
	}

	if c.Authz.OwnershipCacheSize <= 0 {
		return fmt.Errorf("ownership cache size must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
