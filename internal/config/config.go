// Package config provides configuration management for the sweet shop
// API server and the web console.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Default configuration values.
const (
	DefaultServerPort      = 8080
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMetricsEnabled  = true
	DefaultEnvFile         = ".env"
	DefaultStoreDriver     = StoreDriverMemory
	DefaultSQLiteDSN       = "file:sweetshop.db?_pragma=busy_timeout(5000)"
	DefaultSeedData        = true
	DefaultAPIBaseURL      = "http://127.0.0.1:5000"
	DefaultClientTimeout   = 15 * time.Second
	DefaultCurrencySymbol  = "₹"
	DefaultSortSource      = SortSourceMemory
)

// Store drivers.
const (
	StoreDriverMemory = "memory"
	StoreDriverSQLite = "sqlite"
)

// Sort sources for the console.
const (
	// SortSourceMemory sorts the typed records kept since the last fetch.
	SortSourceMemory = "memory"
	// SortSourceRendered re-reads the last rendered table rows before sorting.
	SortSourceRendered = "rendered"
)

// Environment variable names.
const (
	EnvFile            = "APP_ENV_FILE"
	EnvServerPort      = "APP_SERVER_PORT"
	EnvLogLevel        = "APP_LOG_LEVEL"
	EnvShutdownTimeout = "APP_SHUTDOWN_TIMEOUT"
	EnvMetricsEnabled  = "APP_METRICS_ENABLED"
	EnvStoreDriver     = "APP_STORE_DRIVER"
	EnvSQLiteDSN       = "APP_SQLITE_DSN"
	EnvSeedData        = "APP_SEED_DATA"
	EnvAPIBaseURL      = "APP_API_BASE_URL"
	EnvClientTimeout   = "APP_CLIENT_TIMEOUT"
	EnvCurrencySymbol  = "APP_CURRENCY_SYMBOL"
	EnvSortSource      = "APP_SORT_SOURCE"
)

// Config holds the application configuration.
type Config struct {
	// Server settings.
	ServerPort      int
	LogLevel        string
	ShutdownTimeout time.Duration
	MetricsEnabled  bool

	// API server storage.
	StoreDriver string
	SQLiteDSN   string
	SeedData    bool

	// Console settings.
	APIBaseURL     string
	ClientTimeout  time.Duration // 0 disables the timeout.
	CurrencySymbol string
	SortSource     string
}

// Validation errors.
var (
	ErrInvalidServerPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidStoreDriver     = errors.New("store driver must be one of: memory, sqlite")
	ErrInvalidSQLiteDSN       = errors.New("sqlite DSN must be set when store driver is sqlite")
	ErrInvalidAPIBaseURL      = errors.New("API base URL must be an absolute http or https URL")
	ErrInvalidClientTimeout   = errors.New("client timeout cannot be negative")
	ErrInvalidSortSource      = errors.New("sort source must be one of: memory, rendered")
)

// Load reads configuration from environment variables with defaults.
// Variables from an optional .env file (APP_ENV_FILE, default ".env")
// are applied first; variables already set in the environment win.
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("loading env file: %w", err)
	}

	cfg := Default()

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration populated with default values.
func Default() *Config {
	return &Config{
		ServerPort:      DefaultServerPort,
		LogLevel:        DefaultLogLevel,
		ShutdownTimeout: DefaultShutdownTimeout,
		MetricsEnabled:  DefaultMetricsEnabled,
		StoreDriver:     DefaultStoreDriver,
		SQLiteDSN:       DefaultSQLiteDSN,
		SeedData:        DefaultSeedData,
		APIBaseURL:      DefaultAPIBaseURL,
		ClientTimeout:   DefaultClientTimeout,
		CurrencySymbol:  DefaultCurrencySymbol,
		SortSource:      DefaultSortSource,
	}
}

// loadEnvFile loads the .env file if it exists. godotenv.Load never
// overrides variables that are already set.
func loadEnvFile() error {
	path := os.Getenv(EnvFile)
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}

	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	return godotenv.Load(path)
}

// loadFromEnv loads configuration values from environment variables.
func (c *Config) loadFromEnv() error {
	if err := c.loadServerEnv(); err != nil {
		return err
	}

	if err := c.loadStoreEnv(); err != nil {
		return err
	}

	if err := c.loadConsoleEnv(); err != nil {
		return err
	}

	return nil
}

// loadServerEnv loads server-related environment variables.
func (c *Config) loadServerEnv() error {
	if val := os.Getenv(EnvServerPort); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvServerPort, err)
		}
		c.ServerPort = port
	}

	if val := os.Getenv(EnvLogLevel); val != "" {
		c.LogLevel = val
	}

	if val := os.Getenv(EnvShutdownTimeout); val != "" {
		timeout, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvShutdownTimeout, err)
		}
		c.ShutdownTimeout = timeout
	}

	if val := os.Getenv(EnvMetricsEnabled); val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvMetricsEnabled, err)
		}
		c.MetricsEnabled = enabled
	}

	return nil
}

// loadStoreEnv loads storage environment variables.
func (c *Config) loadStoreEnv() error {
	if val := os.Getenv(EnvStoreDriver); val != "" {
		c.StoreDriver = val
	}

	if val := os.Getenv(EnvSQLiteDSN); val != "" {
		c.SQLiteDSN = val
	}

	if val := os.Getenv(EnvSeedData); val != "" {
		seed, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvSeedData, err)
		}
		c.SeedData = seed
	}

	return nil
}

// loadConsoleEnv loads web console environment variables.
func (c *Config) loadConsoleEnv() error {
	if val := os.Getenv(EnvAPIBaseURL); val != "" {
		c.APIBaseURL = val
	}

	if val := os.Getenv(EnvClientTimeout); val != "" {
		timeout, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvClientTimeout, err)
		}
		c.ClientTimeout = timeout
	}

	if val := os.Getenv(EnvCurrencySymbol); val != "" {
		c.CurrencySymbol = val
	}

	if val := os.Getenv(EnvSortSource); val != "" {
		c.SortSource = val
	}

	return nil
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateStore(); err != nil {
		return err
	}

	if err := c.validateConsole(); err != nil {
		return err
	}

	return nil
}

// validateServer validates server-related configuration.
func (c *Config) validateServer() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidServerPort
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	return nil
}

// validateStore validates storage configuration.
func (c *Config) validateStore() error {
	switch c.StoreDriver {
	case StoreDriverMemory:
	case StoreDriverSQLite:
		if c.SQLiteDSN == "" {
			return ErrInvalidSQLiteDSN
		}
	default:
		return ErrInvalidStoreDriver
	}

	return nil
}

// validateConsole validates web console configuration.
func (c *Config) validateConsole() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidAPIBaseURL
	}

	if c.ClientTimeout < 0 {
		return ErrInvalidClientTimeout
	}

	if c.SortSource != SortSourceMemory && c.SortSource != SortSourceRendered {
		return ErrInvalidSortSource
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}
