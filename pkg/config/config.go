package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	App      AppConfig
	Engine   EngineConfig
	Provider ProviderConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level  string
	Format string // json or text
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment string
	Version     string
	Name        string
}

// EngineConfig holds the automation engine tunables: retry policy, sweep
// cadence and dispatch batch sizes.
type EngineConfig struct {
	MaxRetries         int
	CoolDown           time.Duration
	RetryBaseDelay     time.Duration
	BackoffMultiplier  float64
	RetrySweepEvery    time.Duration
	DispatchSweepEvery time.Duration
	DispatchBatchSize  int
}

// ProviderConfig holds the outbound message provider endpoints. The wire
// formats are the providers' concern; the engine only needs somewhere to
// POST.
type ProviderConfig struct {
	SMSEndpoint   string
	SMSToken      string
	EmailEndpoint string
	EmailToken    string
	FromNumber    string
	FromEmail     string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "automations"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			Version:     getEnv("APP_VERSION", "0.1.0"),
			Name:        getEnv("APP_NAME", "automation-engine"),
		},
		Engine: EngineConfig{
			MaxRetries:         getEnvAsInt("ENGINE_MAX_RETRIES", 3),
			CoolDown:           getEnvAsDuration("ENGINE_RETRY_COOL_DOWN", 5*time.Minute),
			RetryBaseDelay:     getEnvAsDuration("ENGINE_RETRY_BASE_DELAY", 5*time.Second),
			BackoffMultiplier:  getEnvAsFloat("ENGINE_BACKOFF_MULTIPLIER", 2),
			RetrySweepEvery:    getEnvAsDuration("ENGINE_RETRY_SWEEP_EVERY", time.Minute),
			DispatchSweepEvery: getEnvAsDuration("ENGINE_DISPATCH_SWEEP_EVERY", 15*time.Second),
			DispatchBatchSize:  getEnvAsInt("ENGINE_DISPATCH_BATCH_SIZE", 50),
		},
		Provider: ProviderConfig{
			SMSEndpoint:   getEnv("PROVIDER_SMS_ENDPOINT", ""),
			SMSToken:      getEnv("PROVIDER_SMS_TOKEN", ""),
			EmailEndpoint: getEnv("PROVIDER_EMAIL_ENDPOINT", ""),
			EmailToken:    getEnv("PROVIDER_EMAIL_TOKEN", ""),
			FromNumber:    getEnv("PROVIDER_FROM_NUMBER", ""),
			FromEmail:     getEnv("PROVIDER_FROM_EMAIL", "noreply@example.com"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}

	if c.Engine.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff multiplier must be at least 1")
	}

	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
