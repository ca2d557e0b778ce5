package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App AppConfig `mapstructure:"app"`

	// Storage backend selection
	Storage StorageConfig `mapstructure:"storage"`

	// PostgreSQL
	Postgres PostgresConfig `mapstructure:"postgres"`

	// Redis
	Redis RedisConfig `mapstructure:"redis"`

	// NATS
	NATS NATSConfig `mapstructure:"nats"`

	// Prometheus
	Prometheus PrometheusConfig `mapstructure:"prometheus"`

	Auth      AuthConfig      `mapstructure:"auth"`
	Validator ValidatorConfig `mapstructure:"validator"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Cache     CacheConfig     `mapstructure:"cache"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	Port     int    `mapstructure:"port"`
	BaseURL  string `mapstructure:"base_url"`
	LogLevel string `mapstructure:"log_level"`
}

// IsDevelopment reports whether the process runs outside production.
func (a AppConfig) IsDevelopment() bool {
	return a.Env != "production"
}

// Addr returns the listen address for the HTTP server.
func (a AppConfig) Addr() string {
	port := a.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf(":%d", port)
}

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Port     int    `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns          int32  `mapstructure:"max_conns"`
	MinConns          int32  `mapstructure:"min_conns"`
	MaxConnLifetime   string `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   string `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod string `mapstructure:"health_check_period"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	MonitorPort int    `mapstructure:"monitor_port"`
}

type PrometheusConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type AuthConfig struct {
	// JWTSecret enables HS256 bearer token verification when set.
	JWTSecret string `mapstructure:"jwt_secret"`
	// PlaceholderIdentity is assigned to any bearer token when no secret is configured.
	PlaceholderIdentity string `mapstructure:"placeholder_identity"`
}

type ValidatorConfig struct {
	CheckAvailability bool          `mapstructure:"check_availability"`
	ProbeTimeout      time.Duration `mapstructure:"probe_timeout"`
	BlockedDomains    []string      `mapstructure:"blocked_domains"`
}

const (
	RateLimitStoreDatabase = "database"
	RateLimitStoreRedis    = "redis"
)

type RateLimitConfig struct {
	Store string          `mapstructure:"store"`
	Rules []RateLimitRule `mapstructure:"rules"`
}

type RateLimitRule struct {
	Endpoint          string `mapstructure:"endpoint"`
	RequestsPerWindow int    `mapstructure:"requests_per_window"`
	WindowSeconds     int    `mapstructure:"window_seconds"`
	Dimension         string `mapstructure:"dimension"`
}

type AnalyticsConfig struct {
	// Async routes click tracking through NATS JetStream instead of calling it inline.
	Async bool `mapstructure:"async"`
}

type CacheConfig struct {
	BloomEnabled           bool    `mapstructure:"bloom_enabled"`
	BloomExpectedItems     uint    `mapstructure:"bloom_expected_items"`
	BloomFalsePositiveRate float64 `mapstructure:"bloom_false_positive_rate"`
}

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Allow environment variables to override YAML entries.
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Preserve legacy env variable names.
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}

	switch c.RateLimit.Store {
	case RateLimitStoreDatabase:
	case RateLimitStoreRedis:
		if !c.Redis.Enabled {
			return fmt.Errorf("config: rate_limit.store=redis requires redis.enabled")
		}
	default:
		return fmt.Errorf("config: unknown rate limit store %q", c.RateLimit.Store)
	}

	if c.Analytics.Async && !c.NATS.Enabled {
		return fmt.Errorf("config: analytics.async requires nats.enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.base_url", "http://localhost:8080")

	v.SetDefault("storage.driver", StorageDriverPostgres)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("nats.enabled", false)
	v.SetDefault("prometheus.enabled", false)
	v.SetDefault("analytics.async", false)
	v.SetDefault("cache.bloom_enabled", false)

	v.SetDefault("auth.placeholder_identity", "user_123")

	v.SetDefault("validator.check_availability", false)
	v.SetDefault("validator.probe_timeout", 10*time.Second)

	v.SetDefault("rate_limit.store", RateLimitStoreDatabase)

	v.SetDefault("prometheus.port", 9090)

	v.SetDefault("cache.bloom_expected_items", 1_000_000)
	v.SetDefault("cache.bloom_false_positive_rate", 0.01)
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.env", "APP_ENV")
	v.BindEnv("app.port", "APP_PORT")
	v.BindEnv("app.base_url", "BASE_URL")
	v.BindEnv("app.log_level", "LOG_LEVEL")
	v.BindEnv("storage.driver", "STORAGE_DRIVER")

	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")

	// Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// NATS
	v.BindEnv("nats.enabled", "NATS_ENABLED")
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")
	v.BindEnv("nats.monitor_port", "NATS_MONITOR_PORT")

	// Prometheus
	v.BindEnv("prometheus.enabled", "PROM_ENABLED")
	v.BindEnv("prometheus.port", "PROM_PORT")

	// Auth
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
}
