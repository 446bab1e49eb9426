// Package config provides configuration management for the article lock service.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultMaxPayloadSize is the default max request body size for the article API (100KB).
	DefaultMaxPayloadSize int64 = 100 * 1024 // 102400 bytes

	// DefaultGRPCMaxMessageSize is the default max message size for gRPC (4MB).
	DefaultGRPCMaxMessageSize int = 4 << 20 // 4194304 bytes

	// DefaultLockTTL is the lifetime of an article edit lock.
	DefaultLockTTL = 5 * time.Minute

	// DefaultUserCacheTTL is how long user lookups stay cached.
	DefaultUserCacheTTL = time.Minute
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendBadger   = "badger"
)

// Config holds the application configuration.
type Config struct {
	// Port is the HTTP server port.
	Port string
	// GRPCPort is the gRPC health server port.
	GRPCPort string

	LogLevel  string
	LogFormat string

	DatabaseURL string
	RedisAddr   string
	// BadgerPath is the Badger data directory. Empty runs Badger in memory.
	BadgerPath string

	// StoreBackend holds users and articles: memory or postgres.
	StoreBackend string
	// LockBackend holds edit locks: memory, postgres, redis or badger.
	LockBackend string

	LockTTL        time.Duration
	UserCacheTTL   time.Duration
	MaxPayloadSize int64

	// GRPCMaxMessageSize is the maximum message size for gRPC in bytes.
	GRPCMaxMessageSize int

	TracingEnabled bool
}

var defaults = map[string]interface{}{
	"port":                  "8080",
	"grpc_port":             "9090",
	"log_level":             "info",
	"log_format":            "json",
	"database_url":          "",
	"redis_addr":            "",
	"badger_path":           "",
	"store_backend":         BackendMemory,
	"lock_backend":          BackendMemory,
	"lock_ttl":              DefaultLockTTL,
	"user_cache_ttl":        DefaultUserCacheTTL,
	"max_payload_size":      DefaultMaxPayloadSize,
	"grpc_max_message_size": DefaultGRPCMaxMessageSize,
	"tracing_enabled":       false,
}

// Load reads configuration from environment variables and, when configFile is
// not empty, from that file. Environment variables win over the file.
// Unparseable numeric and duration values fall back to their defaults.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return &Config{
		Port:               v.GetString("port"),
		GRPCPort:           v.GetString("grpc_port"),
		LogLevel:           v.GetString("log_level"),
		LogFormat:          v.GetString("log_format"),
		DatabaseURL:        v.GetString("database_url"),
		RedisAddr:          v.GetString("redis_addr"),
		BadgerPath:         v.GetString("badger_path"),
		StoreBackend:       v.GetString("store_backend"),
		LockBackend:        v.GetString("lock_backend"),
		LockTTL:            durationOrDefault(v, "lock_ttl", DefaultLockTTL),
		UserCacheTTL:       durationOrDefault(v, "user_cache_ttl", DefaultUserCacheTTL),
		MaxPayloadSize:     int64OrDefault(v, "max_payload_size", DefaultMaxPayloadSize),
		GRPCMaxMessageSize: intOrDefault(v, "grpc_max_message_size", DefaultGRPCMaxMessageSize),
		TracingEnabled:     v.GetBool("tracing_enabled"),
	}, nil
}

// Validate reports unsupported backends and missing connection settings.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported STORE_BACKEND %q", c.StoreBackend))
	}

	switch c.LockBackend {
	case BackendMemory, BackendBadger:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres lock backend"))
		}
		if c.StoreBackend != BackendPostgres {
			errs = append(errs, errors.New("the postgres lock backend requires the postgres store backend"))
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis lock backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported LOCK_BACKEND %q", c.LockBackend))
	}

	if c.LogFormat != "json" && c.LogFormat != "pretty" {
		errs = append(errs, fmt.Errorf("unsupported LOG_FORMAT %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// durationOrDefault returns the duration value or the default if not set or invalid.
func durationOrDefault(v *viper.Viper, key string, defaultValue time.Duration) time.Duration {
	if d := v.GetDuration(key); d > 0 {
		return d
	}
	return defaultValue
}

// int64OrDefault returns the value as int64 or the default if not set or invalid.
func int64OrDefault(v *viper.Viper, key string, defaultValue int64) int64 {
	if n := v.GetInt64(key); n > 0 {
		return n
	}
	return defaultValue
}

// intOrDefault returns the value as int or the default if not set or invalid.
func intOrDefault(v *viper.Viper, key string, defaultValue int) int {
	if n := v.GetInt(key); n > 0 {
		return n
	}
	return defaultValue
}
