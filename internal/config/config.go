package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Auth           AuthConfig           `mapstructure:"auth"`
	CORS           CORSConfig           `mapstructure:"cors"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Supabase       SupabaseConfig       `mapstructure:"supabase"`
	Queue          QueueConfig          `mapstructure:"queue"`
	RouteRateLimit RouteRateLimitConfig `mapstructure:"route_rate_limit"`
	Dispatch       DispatchConfig       `mapstructure:"dispatch"`
	Snapshot       SnapshotConfig       `mapstructure:"snapshot"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
	WeCom          WeComConfig          `mapstructure:"wecom"`

	// File is the config file that was read, if any. The file snapshot
	// source reads channels, routes and templates from it.
	File string `mapstructure:"-"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// AuthConfig holds API key authentication settings.
type AuthConfig struct {
	APIKeys []string `mapstructure:"api_keys"`
}

// CORSConfig holds CORS policy settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SupabaseConfig holds Supabase project settings.
type SupabaseConfig struct {
	URL        string `mapstructure:"url"`
	ServiceKey string `mapstructure:"service_key"`
}

// QueueConfig holds async queue settings.
type QueueConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	Concurrency int  `mapstructure:"concurrency"`
	MaxRetry    int  `mapstructure:"max_retry"`
}

// RouteRateLimitConfig holds per-route request quota settings. Zero disables it.
type RouteRateLimitConfig struct {
	MaxPerMinute int `mapstructure:"max_per_minute"`
}

// DispatchConfig holds engine tuning.
type DispatchConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BaseBackoff    time.Duration `mapstructure:"base_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	Concurrency    int           `mapstructure:"concurrency"`
	DefaultPolicy  string        `mapstructure:"default_policy"`
}

// SnapshotConfig selects where channels, routes and templates come from.
type SnapshotConfig struct {
	// Source is one of file, supabase, sqlite.
	Source string `mapstructure:"source"`
	// Path is the sqlite database file.
	Path string `mapstructure:"path"`
	// Refresh is a cron spec for periodic reloads.
	Refresh string `mapstructure:"refresh"`
	// ImportFile copies channels, routes and templates from the config file
	// into the sqlite database at startup.
	ImportFile bool `mapstructure:"import_file"`
}

// KafkaConfig holds the result sink settings. Empty brokers disables it.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// WeComConfig holds enterprise WeChat adapter settings.
type WeComConfig struct {
	// TokenCache is memory or redis.
	TokenCache string `mapstructure:"token_cache"`
}

// Load reads configuration from config.yaml and environment variables.
// Environment variables use the NOTIFYHUB_ prefix and underscore separators.
// Example: NOTIFYHUB_SERVER_PORT overrides server.port in config.yaml.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Load .env file if it exists
	_ = godotenv.Load()

	v.SetEnvPrefix("NOTIFYHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional: env vars can provide everything)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	// Comma-separated lists from env vars
	cfg.Auth.APIKeys = splitEnvList(v, "auth.api_keys", cfg.Auth.APIKeys)
	cfg.Kafka.Brokers = splitEnvList(v, "kafka.brokers", cfg.Kafka.Brokers)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("auth.api_keys", []string{})
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Authorization", "X-API-Key", "X-Request-ID"})
	v.SetDefault("rate_limit.requests_per_second", 10)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.max_retry", 3)
	v.SetDefault("route_rate_limit.max_per_minute", 0)
	v.SetDefault("dispatch.max_attempts", 3)
	v.SetDefault("dispatch.base_backoff", "1s")
	v.SetDefault("dispatch.max_backoff", "20s")
	v.SetDefault("dispatch.attempt_timeout", "10s")
	v.SetDefault("dispatch.concurrency", 8)
	v.SetDefault("dispatch.default_policy", "any")
	v.SetDefault("snapshot.source", "file")
	v.SetDefault("snapshot.path", "notifyhub.db")
	v.SetDefault("snapshot.refresh", "@every 1m")
	v.SetDefault("snapshot.import_file", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "notifyhub.dispatch-results")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("wecom.token_cache", "memory")
}

// splitEnvList handles a list given as one comma-separated env var.
func splitEnvList(v *viper.Viper, key string, current []string) []string {
	if len(current) > 1 {
		return current
	}
	raw := v.GetString(key)
	if raw == "" || !strings.Contains(raw, ",") {
		return current
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) validate() error {
	switch c.Snapshot.Source {
	case "file", "supabase", "sqlite":
	default:
		return fmt.Errorf("snapshot.source must be file, supabase or sqlite, got %q", c.Snapshot.Source)
	}
	switch c.Dispatch.DefaultPolicy {
	case "any", "all":
	default:
		return fmt.Errorf("dispatch.default_policy must be any or all, got %q", c.Dispatch.DefaultPolicy)
	}
	switch c.WeCom.TokenCache {
	case "memory", "redis":
	default:
		return fmt.Errorf("wecom.token_cache must be memory or redis, got %q", c.WeCom.TokenCache)
	}
	if c.Snapshot.Source == "supabase" && (c.Supabase.URL == "" || c.Supabase.ServiceKey == "") {
		return fmt.Errorf("snapshot.source supabase requires supabase.url and supabase.service_key")
	}
	return nil
}
