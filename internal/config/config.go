// Package config loads and validates the facilitator's runtime configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the single configuration surface read by the facilitator's
// server bootstrap, so that the set of knobs stays enumerable and auditable.
// The only other environment reader in the tree, postgres.LoadFromEnv, is
// not called by the bootstrap.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	LKG      LKGConfig      `mapstructure:"lkg"`
	Mirror   MirrorConfig   `mapstructure:"mirror"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Audit    AuditConfig    `mapstructure:"audit"`
}

// ServerConfig holds HTTP listener configuration.
type ServerConfig struct {
	Port                    int           `mapstructure:"port"`
	Host                    string        `mapstructure:"host"`
	ServiceSlug             string        `mapstructure:"service_slug"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout"`
	IdleTimeout             time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout"`
}

// DatabaseConfig holds the Postgres connection the DB Loader and LKG DB
// mirror use as the system of record.
type DatabaseConfig struct {
	URI                string        `mapstructure:"uri"`
	Name               string        `mapstructure:"name"`
	CollectionConfigs  string        `mapstructure:"collection_configs"`
	CollectionPolicies string        `mapstructure:"collection_policies"`
	CollectionLKG      string        `mapstructure:"collection_lkg"`
	MaxConnections     int           `mapstructure:"max_connections"`
	MinConnections     int           `mapstructure:"min_connections"`
	MaxConnLifetime    time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime    time.Duration `mapstructure:"max_conn_idle_time"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout"`
	QueryTimeout       time.Duration `mapstructure:"query_timeout"`
}

// RedisConfig is optional: when Addr is empty the Mirror Store's negative
// cache falls back to an in-process LRU instead of Redis.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LKGConfig controls the Last-Known-Good filesystem fallback store.
type LKGConfig struct {
	Path string `mapstructure:"path"`
}

// MirrorConfig controls the Mirror Store's caching behavior.
type MirrorConfig struct {
	TTL         time.Duration `mapstructure:"ttl"`
	NegativeTTL time.Duration `mapstructure:"negative_ttl"`
	MaxEntries  int           `mapstructure:"max_entries"`
}

// LogConfig mirrors pkg/logger.Config's shape one-to-one.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig controls the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// AuditConfig controls the periodic DB-vs-mirror drift sweep.
type AuditConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// Load reads configuration from built-in defaults, an optional file, and
// environment variables (with "." replaced by "_", e.g. DATABASE_URI). An
// environment variable overrides the file, and the file overrides defaults.
func Load(configPath string) (*Config, error) {
	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		viper.SetConfigFile(configPath)
		viper.SetConfigType("yaml")

		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables and defaults
// only, skipping any config file lookup.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.service_slug", "facilitator")
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.graceful_shutdown_timeout", "30s")

	viper.SetDefault("database.uri", "")
	viper.SetDefault("database.name", "facilitator")
	viper.SetDefault("database.collection_configs", "service_configs")
	viper.SetDefault("database.collection_policies", "route_policies")
	viper.SetDefault("database.collection_lkg", "mirror_lkg")
	viper.SetDefault("database.max_connections", 10)
	viper.SetDefault("database.min_connections", 2)
	viper.SetDefault("database.max_conn_lifetime", "1h")
	viper.SetDefault("database.max_conn_idle_time", "30m")
	viper.SetDefault("database.connect_timeout", "10s")
	viper.SetDefault("database.query_timeout", "10s")

	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.dial_timeout", "5s")
	viper.SetDefault("redis.read_timeout", "3s")
	viper.SetDefault("redis.write_timeout", "3s")

	viper.SetDefault("lkg.path", "/var/lib/facilitator/mirror.lkg.json")

	viper.SetDefault("mirror.ttl", "30s")
	viper.SetDefault("mirror.negative_ttl", "5s")
	viper.SetDefault("mirror.max_entries", 4096)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.filename", "")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("audit.enabled", true)
	viper.SetDefault("audit.interval", "5m")
}

// Validate enforces the "enumerated options, no hidden defaults" rule: the
// values that matter for correctness (not just convenience) must be present
// and self-consistent before the Boot Hydrator is allowed to run.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ServiceSlug == "" {
		return fmt.Errorf("server.service_slug cannot be empty")
	}

	if c.Database.URI == "" {
		return fmt.Errorf("database.uri (DATABASE_URI) is required")
	}

	if c.Database.Name == "" {
		return fmt.Errorf("database.name cannot be empty")
	}

	if c.Database.CollectionConfigs == "" || c.Database.CollectionPolicies == "" || c.Database.CollectionLKG == "" {
		return fmt.Errorf("database collection names cannot be empty")
	}

	if c.LKG.Path == "" {
		return fmt.Errorf("lkg.path (LKG_PATH) is required")
	}

	if c.Mirror.TTL <= 0 {
		return fmt.Errorf("mirror.ttl must be positive")
	}

	if c.Mirror.NegativeTTL <= 0 {
		return fmt.Errorf("mirror.negative_ttl must be positive")
	}

	if c.Mirror.MaxEntries <= 0 {
		return fmt.Errorf("mirror.max_entries must be positive")
	}

	if c.Log.Level == "" {
		return fmt.Errorf("log.level cannot be empty")
	}

	return nil
}

// UsesRedisNegativeCache reports whether the Mirror Store should back its
// negative cache with Redis instead of the in-process LRU.
func (c *Config) UsesRedisNegativeCache() bool {
	return c.Redis.Addr != ""
}
