package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "ENTITYGRAPH"

// Config aggregates application configuration values.
type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Graph     GraphConfig     `mapstructure:"graph"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Inference InferenceConfig `mapstructure:"inference"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RunLog    RunLogConfig    `mapstructure:"runlog"`
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOriginsCSV string        `mapstructure:"allowed_origins"`
}

// Addr returns host:port.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AllowedOrigins splits AllowedOriginsCSV.
func (c HTTPConfig) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOriginsCSV, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// GraphConfig describes connectivity to the graph database (Neptune/Neo4j).
// An empty URI selects the in-memory store.
type GraphConfig struct {
	URI              string        `mapstructure:"uri"`
	Database         string        `mapstructure:"database"`
	Username         string        `mapstructure:"username"`
	Password         string        `mapstructure:"password"`
	MaxConnections   int           `mapstructure:"max_connections"`
	AcquireTimeout   time.Duration `mapstructure:"acquire_timeout"`
	MaxRetryTime     time.Duration `mapstructure:"max_retry_time"`
	EnsureSchema     bool          `mapstructure:"ensure_schema"`
	NativePathSearch bool          `mapstructure:"native_path_search"`
}

// String masks the password.
func (c GraphConfig) String() string {
	pw := ""
	if c.Password != "" {
		pw = "***"
	}
	return fmt.Sprintf("GraphConfig{URI:%s, Database:%s, Username:%s, Password:%s}", c.URI, c.Database, c.Username, pw)
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Format        string `mapstructure:"format"` // text|json
	IncludeCaller bool   `mapstructure:"include_caller"`
}

// InferenceConfig controls when inference runs are triggered.
type InferenceConfig struct {
	RunOnStartup bool `mapstructure:"run_on_startup"`
}

// AnalyticsConfig bounds analytics queries.
type AnalyticsConfig struct {
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// CacheConfig selects the metrics cache backend.
type CacheConfig struct {
	Type          string        `mapstructure:"type"` // memory|redis|none
	MaxEntries    int           `mapstructure:"max_entries"`
	MetricsTTL    time.Duration `mapstructure:"metrics_ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

// RunLogConfig selects where inference run history is kept.
type RunLogConfig struct {
	Driver      string `mapstructure:"driver"` // sqlite|postgres|none
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.allowed_origins", "")

	v.SetDefault("graph.uri", "")
	v.SetDefault("graph.database", "")
	v.SetDefault("graph.username", "")
	v.SetDefault("graph.password", "")
	v.SetDefault("graph.max_connections", 10)
	v.SetDefault("graph.acquire_timeout", 30*time.Second)
	v.SetDefault("graph.max_retry_time", 15*time.Second)
	v.SetDefault("graph.ensure_schema", true)
	v.SetDefault("graph.native_path_search", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.include_caller", false)

	v.SetDefault("inference.run_on_startup", false)

	v.SetDefault("analytics.query_timeout", 30*time.Second)

	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.max_entries", 1024)
	v.SetDefault("cache.metrics_ttl", time.Minute)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)

	v.SetDefault("runlog.driver", "sqlite")
	v.SetDefault("runlog.sqlite_path", "./data/entitygraph-runs.db")
	v.SetDefault("runlog.postgres_dsn", "")
}

// legacyEnv maps config keys to the unprefixed variable names accepted by
// earlier deployments. Prefixed names take precedence.
var legacyEnv = map[string]string{
	"http.host":              "SERVER_HOST",
	"http.port":              "SERVER_PORT",
	"http.read_timeout":      "SERVER_READ_TIMEOUT",
	"http.write_timeout":     "SERVER_WRITE_TIMEOUT",
	"http.idle_timeout":      "SERVER_IDLE_TIMEOUT",
	"http.shutdown_timeout":  "SERVER_SHUTDOWN_TIMEOUT",
	"http.allowed_origins":   "SERVER_ALLOWED_ORIGINS",
	"graph.uri":              "GRAPH_URI",
	"graph.database":         "GRAPH_DATABASE",
	"graph.username":         "GRAPH_USERNAME",
	"graph.password":         "GRAPH_PASSWORD",
	"graph.max_connections":  "GRAPH_MAX_CONNECTIONS",
	"logging.level":          "LOG_LEVEL",
	"logging.format":         "LOG_FORMAT",
	"logging.include_caller": "LOG_INCLUDE_CALLER",
	"cache.redis_addr":       "REDIS_ADDR",
	"cache.redis_password":   "REDIS_PASSWORD",
	"runlog.postgres_dsn":    "DATABASE_URL",
}

// Load reads configuration from defaults, an optional config.yaml in the
// working directory and environment variables.
func Load() (Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit config file. An empty path searches for
// config.yaml in the working directory and ./config.
func LoadFrom(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, prefixed, legacy)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("port %d is out of range", c.HTTP.Port)
	}
	for name, d := range map[string]time.Duration{
		"http.read_timeout":       c.HTTP.ReadTimeout,
		"http.write_timeout":      c.HTTP.WriteTimeout,
		"http.shutdown_timeout":   c.HTTP.ShutdownTimeout,
		"analytics.query_timeout": c.Analytics.QueryTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be greater than 0", name)
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	switch c.Cache.Type {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("cache.type must be memory, redis or none, got %q", c.Cache.Type)
	}
	if c.Cache.MetricsTTL < 0 {
		return fmt.Errorf("cache.metrics_ttl must be >= 0")
	}
	switch c.RunLog.Driver {
	case "sqlite", "none":
	case "postgres":
		if c.RunLog.PostgresDSN == "" {
			return fmt.Errorf("runlog.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("runlog.driver must be sqlite, postgres or none, got %q", c.RunLog.Driver)
	}
	if c.Graph.MaxConnections < 0 {
		return fmt.Errorf("graph.max_connections must be >= 0")
	}
	return nil
}
