// Package config loads the sync engine settings from config.toml and ITSM_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Adapter   AdapterConfig   `mapstructure:"adapter"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
	Output string `mapstructure:"output"` // stdout, stderr or a file path
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port string `mapstructure:"port"`
}

// DatabaseConfig selects postgres or a sqlite file
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	SQLitePath      string `mapstructure:"sqlite_path"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // minutes
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // minutes
}

// RedisConfig holds Redis connection settings. When disabled, key locks and
// the sync event stream stay in process.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret                string        `mapstructure:"secret"`
	Issuer                string        `mapstructure:"issuer"`
	AccessTokenExpiration time.Duration `mapstructure:"access_token_expiration"`
}

type HTTPConfig struct {
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes   int           `mapstructure:"max_header_bytes"`
	MaxBodySize      int64         `mapstructure:"max_body_size"`
	CORSAllowOrigins []string      `mapstructure:"cors_allow_origins"`
	CORSAllowMethods []string      `mapstructure:"cors_allow_methods"`
	CORSAllowHeaders []string      `mapstructure:"cors_allow_headers"`
	TrustedProxies   []string      `mapstructure:"trusted_proxies"`
}

// SyncConfig controls the outbound queue processor
type SyncConfig struct {
	ProcessorEnabled bool          `mapstructure:"processor_enabled"`
	Workers          int           `mapstructure:"workers"`
	BatchSize        int           `mapstructure:"batch_size"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	DeliveryTimeout  time.Duration `mapstructure:"delivery_timeout"`
	StaleAfter       time.Duration `mapstructure:"stale_after"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	LockTTL          time.Duration `mapstructure:"lock_ttl"`
}

// WebhookConfig controls inbound webhook handling
type WebhookConfig struct {
	// Acknowledge enqueues a sync_response item for each processed webhook
	Acknowledge bool `mapstructure:"acknowledge"`
	// An empty secret disables the X-Signature check for that platform
	ServiceNowSecret string  `mapstructure:"servicenow_secret"`
	JiraSecret       string  `mapstructure:"jira_secret"`
	MaxBodySize      int64   `mapstructure:"max_body_size"`
	RateLimitRPS     float64 `mapstructure:"rate_limit_rps"` // per organization and platform
	RateLimitBurst   int     `mapstructure:"rate_limit_burst"`
}

type AdapterConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// StorageConfig holds the S3 audit archive settings
type StorageConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"` // S3-compatible stores
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// TelemetryConfig holds OpenTelemetry and Pyroscope settings
type TelemetryConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	CollectorEndpoint string        `mapstructure:"collector_endpoint"`
	SamplingRatio     float64       `mapstructure:"sampling_ratio"`
	ServiceName       string        `mapstructure:"service_name"`
	Insecure          bool          `mapstructure:"insecure"` // plaintext OTLP, development only
	DBTraceEnabled    bool          `mapstructure:"db_trace_enabled"`
	DBLogFullSQL      bool          `mapstructure:"db_log_full_sql"`
	DBSlowQueryThresh time.Duration `mapstructure:"db_slow_query_threshold"`
	ProfilingEnabled  bool          `mapstructure:"profiling_enabled"`
	ProfilingServer   string        `mapstructure:"profiling_server"`
}

// defaults registers every key, so that AutomaticEnv can override keys
// without a built-in value too.
var defaults = map[string]any{
	"app.name": "itsm-sync",
	"app.env":  "development",
	"app.port": "8080",

	"database.driver":             "postgres",
	"database.host":               "localhost",
	"database.port":               5432,
	"database.user":               "postgres",
	"database.password":           "",
	"database.dbname":             "itsm",
	"database.sslmode":            "disable",
	"database.sqlite_path":        "itsm.db",
	"database.max_open_conns":     25,
	"database.max_idle_conns":     5,
	"database.conn_max_lifetime":  60,
	"database.conn_max_idle_time": 30,

	"redis.enabled":  false,
	"redis.host":     "localhost",
	"redis.port":     6379,
	"redis.password": "",
	"redis.db":       0,

	"jwt.secret":                  "",
	"jwt.issuer":                  "itsm-sync",
	"jwt.access_token_expiration": 15 * time.Minute,

	"log.level":  "info",
	"log.format": "console",
	"log.output": "stdout",

	"http.read_timeout":       15 * time.Second,
	"http.write_timeout":      15 * time.Second,
	"http.idle_timeout":       60 * time.Second,
	"http.max_header_bytes":   1 << 20,
	"http.max_body_size":      5 << 20, // mapping CSVs
	"http.cors_allow_origins": []string{},
	"http.cors_allow_methods": []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	"http.cors_allow_headers": []string{"Content-Type", "Authorization", "X-Request-ID"},
	"http.trusted_proxies":    []string{},

	"sync.processor_enabled": true,
	"sync.workers":           4,
	"sync.batch_size":        50,
	"sync.poll_interval":     time.Second,
	"sync.delivery_timeout":  30 * time.Second,
	"sync.stale_after":       10 * time.Minute,
	"sync.max_attempts":      3,
	"sync.lock_ttl":          2 * time.Minute,

	"webhook.acknowledge":       false,
	"webhook.servicenow_secret": "",
	"webhook.jira_secret":       "",
	"webhook.max_body_size":     1 << 20,
	"webhook.rate_limit_rps":    20.0,
	"webhook.rate_limit_burst":  40,

	"adapter.timeout": 20 * time.Second,

	"storage.enabled":           false,
	"storage.bucket":            "",
	"storage.region":            "us-east-1",
	"storage.endpoint":          "",
	"storage.access_key_id":     "",
	"storage.secret_access_key": "",
	"storage.use_path_style":    false,

	"telemetry.enabled":                 false,
	"telemetry.collector_endpoint":      "localhost:4317",
	"telemetry.sampling_ratio":          1.0,
	"telemetry.service_name":            "itsm-sync",
	"telemetry.insecure":                false,
	"telemetry.db_trace_enabled":        false,
	"telemetry.db_log_full_sql":         false,
	"telemetry.db_slow_query_threshold": 200 * time.Millisecond,
	"telemetry.profiling_enabled":       false,
	"telemetry.profiling_server":        "http://localhost:4040",
}

// Load reads config.toml from the working directory or /app, then applies
// ITSM_ environment overrides (ITSM_DATABASE_PASSWORD sets
// database.password). Environment wins over the file, the file over the
// built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("ITSM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type check struct {
	failed bool
	msg    string
}

func firstFailure(checks []check) error {
	for _, c := range checks {
		if c.failed {
			return errors.New(c.msg)
		}
	}
	return nil
}

func (c *Config) validate() error {
	db, sync := c.Database, c.Sync
	err := firstFailure([]check{
		{db.Driver != "postgres" && db.Driver != "sqlite",
			fmt.Sprintf("database.driver must be postgres or sqlite, got %q", db.Driver)},
		{db.MaxOpenConns <= 0, "database.max_open_conns must be positive"},
		{db.MaxIdleConns < 0, "database.max_idle_conns cannot be negative"},
		{db.MaxIdleConns > db.MaxOpenConns,
			fmt.Sprintf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)", db.MaxIdleConns, db.MaxOpenConns)},
		{sync.Workers < 1, "sync.workers must be at least 1"},
		{sync.MaxAttempts < 1, "sync.max_attempts must be at least 1"},
		{sync.LockTTL <= sync.DeliveryTimeout,
			fmt.Sprintf("sync.lock_ttl (%s) must exceed sync.delivery_timeout (%s)", sync.LockTTL, sync.DeliveryTimeout)},
		{sync.StaleAfter <= sync.DeliveryTimeout,
			fmt.Sprintf("sync.stale_after (%s) must exceed sync.delivery_timeout (%s)", sync.StaleAfter, sync.DeliveryTimeout)},
		{c.Storage.Enabled && c.Storage.Bucket == "", "storage.bucket is required when storage is enabled"},
		{c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1,
			fmt.Sprintf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)},
	})
	if err != nil || c.App.Env != "production" {
		return err
	}

	return firstFailure([]check{
		{c.JWT.Secret == "", "jwt.secret is required in production"},
		{len(c.JWT.Secret) < 32, "jwt.secret must be at least 32 characters in production"},
		{db.Driver != "postgres", "database.driver must be postgres in production"},
		{db.Password == "", "database.password is required in production"},
		{db.SSLMode == "disable", "database.sslmode cannot be 'disable' in production"},
		{c.Webhook.ServiceNowSecret == "" || c.Webhook.JiraSecret == "", "webhook secrets are required in production"},
		{slices.Contains(c.HTTP.CORSAllowOrigins, "*"), "http.cors_allow_origins cannot be '*' in production"},
		{c.Telemetry.DBLogFullSQL, "telemetry.db_log_full_sql must be false in production; traces would carry raw SQL"},
	})
}

// DSN returns the sqlite path, or a postgres URL with escaped credentials
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.SQLitePath
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}
