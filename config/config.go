package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Hierarchy HierarchyConfig
	Gemini    GeminiConfig
	Retry     RetryConfig
	Batch     BatchConfig
	Logging   LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig locates the SQLite product store
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// HierarchyConfig locates the classification reference export
type HierarchyConfig struct {
	ReferencePath string `mapstructure:"reference_path"`
}

// GeminiConfig holds provider settings. An empty APIKey or Offline=true
// switches the server to the offline generator.
type GeminiConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	Temperature       float64       `mapstructure:"temperature"`
	MaxOutputTokens   int           `mapstructure:"max_output_tokens"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Offline           bool          `mapstructure:"offline"`
}

// RetryConfig holds provider retry settings
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	BaseDelay       time.Duration `mapstructure:"base_delay"`
	ExponentialBase float64       `mapstructure:"exponential_base"`
}

// BatchConfig holds enrichment batch settings
type BatchConfig struct {
	Size int `mapstructure:"size"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/tradelens/")

	// Environment variable settings (TRADELENS_SERVER_PORT overrides server.port)
	v.SetEnvPrefix("TRADELENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using environment variables and defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Storage defaults
	v.SetDefault("database.path", "./data/tradelens.db")
	v.SetDefault("hierarchy.reference_path", "./data/hts_reference.json")

	// Provider defaults
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.temperature", 0.3)
	v.SetDefault("gemini.max_output_tokens", 2000)
	v.SetDefault("gemini.request_timeout", "60s")
	v.SetDefault("gemini.requests_per_second", 1.0)
	v.SetDefault("gemini.burst", 1)
	v.SetDefault("gemini.offline", false)

	// Retry defaults
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.exponential_base", 2.0)

	// Batch defaults
	v.SetDefault("batch.size", 100)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Database.Path == "" {
		return fmt.Errorf("database path is required (set TRADELENS_DATABASE_PATH)")
	}

	if config.Hierarchy.ReferencePath == "" {
		return fmt.Errorf("hierarchy reference path is required (set TRADELENS_HIERARCHY_REFERENCE_PATH)")
	}

	if config.Gemini.Model == "" {
		return fmt.Errorf("gemini model name is required")
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging level must be debug, info, warn or error, got: %s", config.Logging.Level)
	}

	if config.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1, got: %d", config.Retry.MaxAttempts)
	}

	if config.Batch.Size < 1 {
		return fmt.Errorf("batch size must be at least 1, got: %d", config.Batch.Size)
	}

	return nil
}
