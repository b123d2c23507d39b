package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	CoinGecko CoinGeckoConfig `mapstructure:"coingecko"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// CoinGeckoConfig holds upstream market-data API configuration
type CoinGeckoConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	KeyInQuery  bool          `mapstructure:"key_in_query"` // query-string key is an explicit opt-in; header is the default
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
}

// CacheConfig holds read-through cache configuration
type CacheConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"` // empty = in-memory store
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	ListTTL       time.Duration `mapstructure:"list_ttl"`
	DetailTTL     time.Duration `mapstructure:"detail_ttl"`
	ChartTTL      time.Duration `mapstructure:"chart_ttl"`
}

// AlertsConfig holds alert scanner configuration
type AlertsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	ScanInterval time.Duration `mapstructure:"scan_interval"`
}

// StorageConfig holds persistence configuration
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// TelegramConfig holds optional Telegram forwarding configuration
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set config file
	v.SetConfigFile(path)

	// Set defaults
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("CRYPTOTRACKER")
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// CoinGecko defaults
	v.SetDefault("coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coingecko.api_key", "")
	v.SetDefault("coingecko.key_in_query", false)
	v.SetDefault("coingecko.timeout", "10s")
	v.SetDefault("coingecko.max_retries", 3)
	v.SetDefault("coingecko.backoff_base", "700ms")

	// Cache defaults
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.list_ttl", "120s")
	v.SetDefault("cache.detail_ttl", "300s")
	v.SetDefault("cache.chart_ttl", "300s")

	// Alerts defaults
	v.SetDefault("alerts.enabled", true)
	v.SetDefault("alerts.scan_interval", "5m")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/cryptotracker.db")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Server defaults
	v.SetDefault("server.addr", ":8080")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate CoinGecko config
	if c.CoinGecko.BaseURL == "" {
		return fmt.Errorf("coingecko.base_url is required")
	}
	if c.CoinGecko.Timeout <= 0 {
		return fmt.Errorf("coingecko.timeout must be positive")
	}
	if c.CoinGecko.MaxRetries < 0 {
		return fmt.Errorf("coingecko.max_retries must not be negative")
	}
	if c.CoinGecko.BackoffBase <= 0 {
		return fmt.Errorf("coingecko.backoff_base must be positive")
	}

	// Validate Cache config
	if c.Cache.ListTTL <= 0 {
		return fmt.Errorf("cache.list_ttl must be positive")
	}
	if c.Cache.DetailTTL <= 0 {
		return fmt.Errorf("cache.detail_ttl must be positive")
	}
	if c.Cache.ChartTTL <= 0 {
		return fmt.Errorf("cache.chart_ttl must be positive")
	}

	// Validate Alerts config
	if c.Alerts.Enabled && c.Alerts.ScanInterval < 1*time.Minute {
		return fmt.Errorf("alerts.scan_interval must be at least 1 minute")
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Server config
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
