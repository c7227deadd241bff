// Package config loads taskboard configuration.
//
// Precedence, lowest to highest:
//  1. Defaults
//  2. YAML file passed with --config
//  3. Legacy PORT and MONGO_URI variables (only fill gaps)
//  4. TASKBOARD_* environment variables
//
// Environment variables map to keys by splitting on the first underscore
// after the prefix:
//
//	TASKBOARD_SERVER_HTTP_PORT -> server.http_port
//	TASKBOARD_STORE_DRIVER     -> store.driver
//	TASKBOARD_NATS_SUBJECT_PREFIX -> nats.subject_prefix
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"taskboard/internal/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TASKBOARD_"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverSQLite   = "sqlite"
)

// Config is the full process configuration.
type Config struct {
	Server ServerConfig   `koanf:"server"`
	Store  StoreConfig    `koanf:"store"`
	NATS   NATSConfig     `koanf:"nats"`
	Log    logging.Config `koanf:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	HTTPPort          int           `koanf:"http_port"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	CORSCredentials   bool          `koanf:"cors_credentials"`
}

// Addr returns the listen address for HTTPPort.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.HTTPPort)
}

// StoreConfig selects the storage backend.
type StoreConfig struct {
	Driver string `koanf:"driver"`
	// DSN is a postgres connection string, a mongodb:// URI or a SQLite path.
	DSN string `koanf:"dsn"`
	// Database is the MongoDB database name.
	Database string `koanf:"database"`
}

// NATSConfig enables realtime publishing to NATS. An empty URL disables it.
type NATSConfig struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// Load reads configuration from the optional YAML file at path and the
// environment, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := applyLegacyEnv(k); err != nil {
		return nil, err
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if !k.Exists("server.cors_credentials") {
		cfg.Server.CORSCredentials = true
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps TASKBOARD_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

// listKeys are the keys whose environment value is a comma-separated list.
var listKeys = map[string]bool{
	"server.cors_origins": true,
}

// envValue maps the variable name with envKey and splits list values on commas.
func envValue(name, value string) (string, any) {
	key := envKey(name)
	if !listKeys[key] {
		return key, value
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return key, items
}

// applyLegacyEnv honours the PORT and MONGO_URI variables of earlier
// deployments where nothing else set the same keys.
func applyLegacyEnv(k *koanf.Koanf) error {
	if port := os.Getenv("PORT"); port != "" && !k.Exists("server.http_port") {
		if err := k.Set("server.http_port", port); err != nil {
			return fmt.Errorf("apply PORT: %w", err)
		}
	}
	if uri := os.Getenv("MONGO_URI"); uri != "" && !k.Exists("store.dsn") {
		if err := k.Set("store.dsn", uri); err != nil {
			return fmt.Errorf("apply MONGO_URI: %w", err)
		}
		if !k.Exists("store.driver") {
			if err := k.Set("store.driver", DriverMongo); err != nil {
				return fmt.Errorf("apply MONGO_URI: %w", err)
			}
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 5000
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DriverMemory
	}
	if cfg.Store.Driver == DriverSQLite && cfg.Store.DSN == "" {
		cfg.Store.DSN = "taskboard.db"
	}
	if cfg.Store.Database == "" {
		cfg.Store.Database = "taskboard"
	}

	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "taskboard"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d out of range", c.Server.HTTPPort)
	}
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres, DriverMongo:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the %s driver", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}
