package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Log         LogConfig
	HTTP        HTTPConfig
	Queue       QueueConfig
	Entitlement EntitlementConfig
	Metering    MeteringConfig
	Credentials CredentialConfig
	Telemetry   TelemetryConfig
	Profiling   ProfilingConfig
	Stripe      StripeConfig
	Plans       billing.Catalog
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver          string // postgres or sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
	SlowThreshold   time.Duration
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds session token configuration
type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// Per-tenant token bucket
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int
	TrustedProxies   []string
	// Swagger mounts the API docs at /swagger; defaults to on outside production
	Swagger bool
}

// QueueConfig holds background execution configuration
type QueueConfig struct {
	Driver      string // memory or redis
	Key         string
	Buffer      int
	Concurrency int
	JobTimeout  time.Duration
}

// EntitlementConfig holds entitlement engine configuration
type EntitlementConfig struct {
	// CacheTTL bounds how stale resolved capabilities may be; 0 disables caching
	CacheTTL time.Duration
}

// MeteringConfig holds usage metering configuration
type MeteringConfig struct {
	ReconcileInterval time.Duration
	ReconcileBatch    int
}

// CredentialConfig holds the key used to seal provider API keys
type CredentialConfig struct {
	// Key is base64 of exactly 32 bytes
	Key string
	// Require fails runs whose tenant stored no key for the provider
	Require bool
}

// SealKey decodes the sealing key
func (c CredentialConfig) SealKey() ([32]byte, error) {
	var key [32]byte
	raw, err := base64.StdEncoding.DecodeString(c.Key)
	if err != nil {
		return key, fmt.Errorf("credentials.key: %w", err)
	}
	if len(raw) != len(key) {
		return key, fmt.Errorf("credentials.key must decode to %d bytes, got %d", len(key), len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	DBTraceEnabled    bool
	// LogsEnabled also ships zap entries to the collector
	LogsEnabled bool
}

// ProfilingConfig holds Pyroscope continuous profiling configuration
type ProfilingConfig struct {
	Enabled         bool
	ServerAddress   string
	ApplicationName string
	// ProfileTypes uses pyroscope names: cpu, alloc_objects, alloc_space, inuse_objects,
	// inuse_space, goroutines, mutex_count, mutex_duration, block_count, block_duration
	ProfileTypes []string
	// SpanProfiles labels CPU samples with the active span id; needs telemetry.enabled
	SpanProfiles bool
}

// StripeConfig holds metered usage export configuration
type StripeConfig struct {
	Enabled        bool
	SecretKey      string
	TestMode       bool
	ReportInterval time.Duration
}

type planConfig struct {
	Name     string           `mapstructure:"name"`
	Features []string         `mapstructure:"features"`
	Quotas   map[string]int64 `mapstructure:"quotas"`
}

// Load reads config.toml from the working directory (if present) and PROMPTLAB_*
// environment variables.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path, or from the default search paths when path is empty
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/app")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("PROMPTLAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			SQLitePath:      v.GetString("database.sqlite_path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			LogLevel:        v.GetString("database.log_level"),
			SlowThreshold:   v.GetDuration("database.slow_threshold"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("jwt.secret"),
			Expiration: v.GetDuration("jwt.expiration"),
			Issuer:     v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			ShutdownTimeout:  v.GetDuration("http.shutdown_timeout"),
			RateLimitEnabled: v.GetBool("http.rate_limit_enabled"),
			RateLimitRPS:     v.GetFloat64("http.rate_limit_rps"),
			RateLimitBurst:   v.GetInt("http.rate_limit_burst"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
			Swagger:          v.GetBool("http.swagger"),
		},
		Queue: QueueConfig{
			Driver:      v.GetString("queue.driver"),
			Key:         v.GetString("queue.key"),
			Buffer:      v.GetInt("queue.buffer"),
			Concurrency: v.GetInt("queue.concurrency"),
			JobTimeout:  v.GetDuration("queue.job_timeout"),
		},
		Entitlement: EntitlementConfig{
			CacheTTL: v.GetDuration("entitlement.cache_ttl"),
		},
		Metering: MeteringConfig{
			ReconcileInterval: v.GetDuration("metering.reconcile_interval"),
			ReconcileBatch:    v.GetInt("metering.reconcile_batch"),
		},
		Credentials: CredentialConfig{
			Key:     v.GetString("credentials.key"),
			Require: v.GetBool("credentials.require"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
		},
		Profiling: ProfilingConfig{
			Enabled:         v.GetBool("profiling.enabled"),
			ServerAddress:   v.GetString("profiling.server_address"),
			ApplicationName: v.GetString("profiling.application_name"),
			ProfileTypes:    v.GetStringSlice("profiling.profile_types"),
			SpanProfiles:    v.GetBool("profiling.span_profiles"),
		},
		Stripe: StripeConfig{
			Enabled:        v.GetBool("stripe.enabled"),
			SecretKey:      v.GetString("stripe.secret_key"),
			TestMode:       !v.IsSet("stripe.test_mode") || v.GetBool("stripe.test_mode"),
			ReportInterval: v.GetDuration("stripe.report_interval"),
		},
	}

	// entitlement.cache_ttl = "0s" disables the cache, so only an unset key gets the default
	if !v.IsSet("entitlement.cache_ttl") {
		cfg.Entitlement.CacheTTL = 30 * time.Second
	}
	if !v.IsSet("http.swagger") {
		cfg.HTTP.Swagger = v.GetString("app.env") != "production"
	}

	plans, err := loadPlans(v)
	if err != nil {
		return nil, err
	}
	cfg.Plans = plans

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadPlans(v *viper.Viper) (billing.Catalog, error) {
	if !v.IsSet("plans") {
		return billing.DefaultCatalog(), nil
	}
	var raw map[string]planConfig
	if err := v.UnmarshalKey("plans", &raw); err != nil {
		return nil, fmt.Errorf("plans: %w", err)
	}
	catalog := make(billing.Catalog, len(raw))
	for id, p := range raw {
		quotas := make(map[billing.Meter]int64, len(p.Quotas))
		for meter, limit := range p.Quotas {
			if !billing.Meter(meter).IsValid() {
				return nil, fmt.Errorf("plans.%s.quotas: unknown meter %q", id, meter)
			}
			quotas[billing.Meter(meter)] = limit
		}
		catalog[billing.PlanID(id)] = billing.Plan{
			ID:       billing.PlanID(id),
			Name:     p.Name,
			Features: p.Features,
			Quotas:   quotas,
		}
	}
	return catalog, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "promptlab"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "promptlab"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "promptlab.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = time.Hour
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}
	if cfg.Database.SlowThreshold == 0 {
		cfg.Database.SlowThreshold = 200 * time.Millisecond
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Expiration == 0 {
		cfg.JWT.Expiration = 24 * time.Hour
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "promptlab"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		if cfg.App.Env == "production" {
			cfg.Log.Format = "json"
		} else {
			cfg.Log.Format = "console"
		}
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.HTTP.RateLimitRPS == 0 {
		cfg.HTTP.RateLimitRPS = 20
	}
	if cfg.HTTP.RateLimitBurst == 0 {
		cfg.HTTP.RateLimitBurst = 40
	}
	if cfg.Queue.Driver == "" {
		cfg.Queue.Driver = "memory"
	}
	if cfg.Queue.Key == "" {
		cfg.Queue.Key = "promptlab:runs"
	}
	if cfg.Queue.Buffer == 0 {
		cfg.Queue.Buffer = 1024
	}
	if cfg.Queue.Concurrency == 0 {
		cfg.Queue.Concurrency = 4
	}
	if cfg.Queue.JobTimeout == 0 {
		cfg.Queue.JobTimeout = 2 * time.Minute
	}
	if cfg.Metering.ReconcileInterval == 0 {
		cfg.Metering.ReconcileInterval = time.Minute
	}
	if cfg.Metering.ReconcileBatch == 0 {
		cfg.Metering.ReconcileBatch = 100
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Profiling.ServerAddress == "" {
		cfg.Profiling.ServerAddress = "http://localhost:4040"
	}
	if cfg.Profiling.ApplicationName == "" {
		cfg.Profiling.ApplicationName = cfg.App.Name
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space"}
	}
	if cfg.Stripe.ReportInterval == 0 {
		cfg.Stripe.ReportInterval = 15 * time.Minute
	}
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	switch c.Queue.Driver {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("queue.driver=redis requires redis.enabled")
		}
	default:
		return fmt.Errorf("queue.driver must be memory or redis, got %q", c.Queue.Driver)
	}
	if c.Queue.Concurrency < 1 {
		return fmt.Errorf("queue.concurrency must be positive")
	}
	if c.Entitlement.CacheTTL < 0 {
		return fmt.Errorf("entitlement.cache_ttl cannot be negative")
	}
	if _, ok := c.Plans.Get(billing.PlanFree); !ok {
		return fmt.Errorf("plans must define the %q plan assigned at signup", billing.PlanFree)
	}
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	if c.Stripe.Enabled {
		if err := c.Stripe.validate(); err != nil {
			return err
		}
	}

	if c.App.Env == "production" {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Driver != "postgres" {
			return fmt.Errorf("database.driver must be postgres in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if _, err := c.Credentials.SealKey(); err != nil {
			return err
		}
	}
	return nil
}

func (s StripeConfig) validate() error {
	if s.SecretKey == "" {
		return fmt.Errorf("stripe.secret_key is required when stripe.enabled")
	}
	prefix := "sk_live_"
	if s.TestMode {
		prefix = "sk_test_"
	}
	if !strings.HasPrefix(s.SecretKey, prefix) && !strings.HasPrefix(s.SecretKey, "r"+prefix[1:]) {
		return fmt.Errorf("stripe.secret_key must start with %s when stripe.test_mode=%t", prefix, s.TestMode)
	}
	if s.ReportInterval < time.Minute {
		return fmt.Errorf("stripe.report_interval must be at least 1m")
	}
	return nil
}

// DSN returns the postgres connection string with escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// IsProduction reports whether the app runs in production
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
