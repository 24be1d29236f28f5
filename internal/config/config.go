package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	Scorer   ScorerConfig   `mapstructure:"scorer"`
	Calendar CalendarConfig `mapstructure:"calendar"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	BindAddress      string `mapstructure:"bind_address"`
	HTTPPort         int    `mapstructure:"http_port"`
	MetricsPort      int    `mapstructure:"metrics_port"`
	ReadTimeout      string `mapstructure:"read_timeout"`
	WriteTimeout     string `mapstructure:"write_timeout"`
	RateLimit        int    `mapstructure:"rate_limit"`         // requests per window, per device
	RateLimitWindow  string `mapstructure:"rate_limit_window"`  // window for rate_limit
	RateLimitDevices int    `mapstructure:"rate_limit_devices"` // limiter table size

	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // "bolt", "sqlite" or "redis"
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	KeyPrefix    string `mapstructure:"key_prefix"`
}

// SessionsConfig defines the session update coalescer settings
type SessionsConfig struct {
	InactivityWindow     string `mapstructure:"inactivity_window"`
	FlushTimeout         string `mapstructure:"flush_timeout"`
	ShutdownTimeout      string `mapstructure:"shutdown_timeout"`
	RetryInitialInterval string `mapstructure:"retry_initial_interval"` // "0" disables automatic retry
	RetryMaxInterval     string `mapstructure:"retry_max_interval"`
	Stripes              int    `mapstructure:"stripes"`
	NeutralScore         int    `mapstructure:"neutral_score"`
	InitialSummary       string `mapstructure:"initial_summary"`
}

// ScorerConfig defines which mood analyzer is active
type ScorerConfig struct {
	Type            string `mapstructure:"type"` // "heuristic" or "openai"
	Model           string `mapstructure:"model"`
	APIKey          string `mapstructure:"api_key"`
	BaseURL         string `mapstructure:"base_url"`
	Timeout         string `mapstructure:"timeout"`
	MaxOutputTokens int    `mapstructure:"max_output_tokens"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// CalendarConfig defines how sessions are bucketed into days
type CalendarConfig struct {
	Timezone  string `mapstructure:"timezone"`
	WeekStart string `mapstructure:"week_start"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("MOODCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Scorer.APIKey == "" {
		config.Scorer.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.rate_limit", 60)
	v.SetDefault("server.rate_limit_window", "1m")
	v.SetDefault("server.rate_limit_devices", 4096)

	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", "/var/lib/moodchat/moodchat.bolt")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")
	v.SetDefault("storage.redis.key_prefix", "moodchat")

	// Session coalescer defaults
	v.SetDefault("sessions.inactivity_window", "30m")
	v.SetDefault("sessions.flush_timeout", "10s")
	v.SetDefault("sessions.shutdown_timeout", "30s")
	v.SetDefault("sessions.retry_initial_interval", "1m")
	v.SetDefault("sessions.retry_max_interval", "15m")
	v.SetDefault("sessions.stripes", 64)
	v.SetDefault("sessions.neutral_score", 50)
	v.SetDefault("sessions.initial_summary", "User has just started the conversation.")

	// Scorer defaults
	v.SetDefault("scorer.type", "heuristic")
	v.SetDefault("scorer.model", "gpt-4o-mini")
	v.SetDefault("scorer.timeout", "20s")
	v.SetDefault("scorer.max_output_tokens", 600)
	v.SetDefault("scorer.max_retries", 2)

	// Calendar defaults
	v.SetDefault("calendar.timezone", "Local")
	v.SetDefault("calendar.week_start", "sunday")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", cfg.Server.HTTPPort)
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	switch cfg.Storage.Type {
	case "":
		cfg.Storage.Type = "bolt"
	case "bolt", "sqlite", "redis":
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}

	if cfg.Storage.Type != "redis" {
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required for %s storage", cfg.Storage.Type)
		}
		// Ensure storage directory exists
		storageDir := filepath.Dir(cfg.Storage.Path)
		if err := os.MkdirAll(storageDir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	window, err := time.ParseDuration(cfg.Sessions.InactivityWindow)
	if err != nil || window <= 0 {
		return fmt.Errorf("invalid sessions.inactivity_window: %q", cfg.Sessions.InactivityWindow)
	}
	if cfg.Sessions.NeutralScore < 0 || cfg.Sessions.NeutralScore > 100 {
		return fmt.Errorf("sessions.neutral_score must be within [0,100], got %d", cfg.Sessions.NeutralScore)
	}
	if cfg.Sessions.Stripes < 0 {
		return fmt.Errorf("sessions.stripes must not be negative")
	}

	switch cfg.Scorer.Type {
	case "heuristic":
	case "openai":
		if cfg.Scorer.Model == "" {
			return fmt.Errorf("scorer.model is required for the openai scorer")
		}
	default:
		return fmt.Errorf("unsupported scorer type: %s", cfg.Scorer.Type)
	}

	if _, err := cfg.Calendar.Location(); err != nil {
		return err
	}
	if _, err := cfg.Calendar.FirstWeekday(); err != nil {
		return err
	}

	return nil
}

// Location resolves the configured calendar timezone.
func (c CalendarConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid calendar.timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// FirstWeekday resolves the configured first day of the calendar week.
func (c CalendarConfig) FirstWeekday() (time.Weekday, error) {
	switch strings.ToLower(c.WeekStart) {
	case "", "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	default:
		return time.Sunday, fmt.Errorf("invalid calendar.week_start %q (must be sunday or monday)", c.WeekStart)
	}
}

// ParseDuration parses a duration string with a fallback
func ParseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
