// Package config loads and validates the service configuration from the
// environment and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendTables = "tables"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	Debug    bool   `mapstructure:"DEBUG"`

	// StoreBackend selects where users, departments and the board are kept:
	// memory, redis or tables.
	StoreBackend   string `mapstructure:"STORE_BACKEND"`
	StoreNamespace string `mapstructure:"STORE_NAMESPACE"`
	// StoreTable is the Azure table used by the tables backend.
	StoreTable string `mapstructure:"STORE_TABLE"`
	// StoreCacheTTL enables the Redis read-through cache in front of the
	// tables backend when positive (e.g. "30s").
	StoreCacheTTL string `mapstructure:"STORE_CACHE_TTL"`

	RedisConnectionString   string `mapstructure:"REDIS_CONNECTION_STRING"`
	StorageConnectionString string `mapstructure:"STORAGE_CONNECTION_STRING"`

	// EventsQueue is the Azure queue events are published to; empty disables it.
	EventsQueue string `mapstructure:"EVENTS_QUEUE"`
	// EventsChannel is the Redis channel events are published to; empty disables it.
	EventsChannel string `mapstructure:"EVENTS_CHANNEL"`
	EventWorkers  int    `mapstructure:"EVENT_WORKERS"`
	EventBuffer   int    `mapstructure:"EVENT_BUFFER"`
	EventTimeout  string `mapstructure:"EVENT_TIMEOUT"`

	// SessionSecret signs session tokens. When empty a random secret is used
	// and sessions do not survive a restart.
	SessionSecret string `mapstructure:"SESSION_SECRET"`
	SessionIssuer string `mapstructure:"SESSION_ISSUER"`
	SessionTTL    string `mapstructure:"SESSION_TTL"`

	BootstrapAdminEmail    string `mapstructure:"BOOTSTRAP_ADMIN_EMAIL"`
	BootstrapAdminPassword string `mapstructure:"BOOTSTRAP_ADMIN_PASSWORD"`
	SeedBootstrapAdmin     bool   `mapstructure:"SEED_BOOTSTRAP_ADMIN"`
	// VerifyPasswords checks stored bcrypt hashes for every user, not only
	// the bootstrap admin.
	VerifyPasswords bool `mapstructure:"VERIFY_PASSWORDS"`
	BcryptCost      int  `mapstructure:"BCRYPT_COST"`

	IdempotencyTTL string `mapstructure:"IDEMPOTENCY_TTL"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DEBUG", false)
	v.SetDefault("STORE_BACKEND", BackendMemory)
	v.SetDefault("STORE_NAMESPACE", "taskboard")
	v.SetDefault("STORE_TABLE", "TaskBoard")
	v.SetDefault("STORE_CACHE_TTL", "0s")
	v.SetDefault("REDIS_CONNECTION_STRING", "")
	v.SetDefault("STORAGE_CONNECTION_STRING", "")
	v.SetDefault("EVENTS_QUEUE", "")
	v.SetDefault("EVENTS_CHANNEL", "")
	v.SetDefault("EVENT_WORKERS", 4)
	v.SetDefault("EVENT_BUFFER", 256)
	v.SetDefault("EVENT_TIMEOUT", "10s")
	v.SetDefault("SESSION_SECRET", "")
	v.SetDefault("SESSION_ISSUER", "taskboard")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("BOOTSTRAP_ADMIN_EMAIL", "brunor.consultoria@gmail.com")
	v.SetDefault("BOOTSTRAP_ADMIN_PASSWORD", "Sucesso@123")
	v.SetDefault("SEED_BOOTSTRAP_ADMIN", true)
	v.SetDefault("VERIFY_PASSWORDS", false)
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("IDEMPOTENCY_TTL", "24h")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch c.StoreBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisConnectionString == "" {
			return errors.New("config: REDIS_CONNECTION_STRING must be set for the redis backend")
		}
	case BackendTables:
		if c.StorageConnectionString == "" {
			return errors.New("config: STORAGE_CONNECTION_STRING must be set for the tables backend")
		}
		if c.StoreTable == "" {
			return errors.New("config: STORE_TABLE must be set for the tables backend")
		}
	default:
		return errors.New("config: STORE_BACKEND must be one of memory, redis, tables")
	}
	if c.StoreNamespace == "" {
		return errors.New("config: STORE_NAMESPACE must be set")
	}
	if c.StoreCache() > 0 && c.RedisConnectionString == "" {
		return errors.New("config: STORE_CACHE_TTL requires REDIS_CONNECTION_STRING")
	}
	if c.EventsQueue != "" && c.StorageConnectionString == "" {
		return errors.New("config: EVENTS_QUEUE requires STORAGE_CONNECTION_STRING")
	}
	if c.EventsChannel != "" && c.RedisConnectionString == "" {
		return errors.New("config: EVENTS_CHANNEL requires REDIS_CONNECTION_STRING")
	}
	if c.EventWorkers <= 0 {
		return errors.New("config: EVENT_WORKERS must be greater than zero")
	}
	if c.EventBuffer < 0 {
		return errors.New("config: EVENT_BUFFER must not be negative")
	}
	c.BootstrapAdminEmail = strings.TrimSpace(c.BootstrapAdminEmail)
	if c.SeedBootstrapAdmin && c.BootstrapAdminEmail == "" {
		return errors.New("config: BOOTSTRAP_ADMIN_EMAIL must be set when SEED_BOOTSTRAP_ADMIN is true")
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 10
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	return nil
}

// StoreCache parses StoreCacheTTL. Zero disables the cache.
func (c *Config) StoreCache() time.Duration {
	return parseDuration(c.StoreCacheTTL, 0)
}

// EventPublishTimeout parses EventTimeout. Returns 10s if unset or invalid.
func (c *Config) EventPublishTimeout() time.Duration {
	return parseDuration(c.EventTimeout, 10*time.Second)
}

// Session parses SessionTTL. Returns 12h if unset or invalid.
func (c *Config) Session() time.Duration {
	return parseDuration(c.SessionTTL, 12*time.Hour)
}

// Idempotency parses IdempotencyTTL. Returns 24h if unset or invalid.
func (c *Config) Idempotency() time.Duration {
	return parseDuration(c.IdempotencyTTL, 24*time.Hour)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
