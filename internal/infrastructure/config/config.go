package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment string            `mapstructure:"environment"`
	LogLevel    string            `mapstructure:"log_level"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Attestation AttestationConfig `mapstructure:"attestation"`
	Chains      []ChainConfig     `mapstructure:"chains"`
	Routes      []RouteConfig     `mapstructure:"routes"`
	Burn        BurnConfig        `mapstructure:"burn"`
	Workers     WorkerConfig      `mapstructure:"workers"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	Host            string   `mapstructure:"host"`
	ReadTimeout     int      `mapstructure:"read_timeout"`
	WriteTimeout    int      `mapstructure:"write_timeout"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	RateLimitPerMin int      `mapstructure:"rate_limit_per_min"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

// AttestationConfig controls the attestation authority client and poll schedule
type AttestationConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	Environment     string `mapstructure:"environment"` // sandbox or mainnet
	TimeoutSec      int    `mapstructure:"timeout"`
	InitialInterval int    `mapstructure:"initial_interval_ms"` // I0
	MaxInterval     int    `mapstructure:"max_interval_ms"`     // Imax cap for backoff
	OverallTimeout  int    `mapstructure:"overall_timeout_sec"` // T
	CacheTTLMin     int    `mapstructure:"cache_ttl_min"`
}

// PollInitial returns I0 as a duration
func (c AttestationConfig) PollInitial() time.Duration {
	return time.Duration(c.InitialInterval) * time.Millisecond
}

// PollMax returns the backoff cap as a duration
func (c AttestationConfig) PollMax() time.Duration {
	return time.Duration(c.MaxInterval) * time.Millisecond
}

// PollDeadline returns the overall poll timeout as a duration
func (c AttestationConfig) PollDeadline() time.Duration {
	return time.Duration(c.OverallTimeout) * time.Second
}

// ClientTimeout returns the per-request HTTP timeout as a duration
func (c AttestationConfig) ClientTimeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// CacheTTL returns how long completed attestations stay cached
func (c AttestationConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMin) * time.Minute
}

// ChainConfig describes one supported chain
type ChainConfig struct {
	Name          string `mapstructure:"name"`
	Role          string `mapstructure:"role"` // source, destination, both
	TokenContract string `mapstructure:"token_contract"`
	Confirmations int    `mapstructure:"confirmations"`
	Domain        uint32 `mapstructure:"domain"`
	AddressPrefix string `mapstructure:"address_prefix"`
	AddressHexLen int    `mapstructure:"address_hex_len"`
}

// RouteConfig describes one supported transfer direction with its bounds
type RouteConfig struct {
	Source      string `mapstructure:"source"`
	Destination string `mapstructure:"destination"`
	MinAmount   string `mapstructure:"min_amount"`
	MaxAmount   string `mapstructure:"max_amount"`
}

// BurnConfig controls burn execution timeouts
type BurnConfig struct {
	ConfirmTimeoutSec int `mapstructure:"confirm_timeout_sec"`
}

// ConfirmTimeout returns the burn confirmation bound as a duration
func (c BurnConfig) ConfirmTimeout() time.Duration {
	return time.Duration(c.ConfirmTimeoutSec) * time.Second
}

// WorkerConfig contains background worker configuration
type WorkerConfig struct {
	ResumeInterval  string `mapstructure:"resume_interval"` // duration string
	StaleAfterSec   int    `mapstructure:"stale_after_sec"` // in-flight age before a crash leftover is resumed
	ResumeBatchSize int    `mapstructure:"resume_batch_size"`
}

// ResumeEvery returns the resume scan interval as a duration
func (c WorkerConfig) ResumeEvery() time.Duration {
	d, err := time.ParseDuration(c.ResumeInterval)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// StaleAfter returns the minimum checkpoint age before resuming
func (c WorkerConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterSec) * time.Second
}

// TracingConfig contains OpenTelemetry configuration
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	CollectorURL string  `mapstructure:"collector_url"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Insecure     bool    `mapstructure:"insecure"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	// Read from config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Build database URL if not provided
	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.allowed_origins", []string{"*"})
	viper.SetDefault("server.rate_limit_per_min", 120)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "bridge_service")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.enabled", false)

	// Attestation defaults
	viper.SetDefault("attestation.environment", "sandbox")
	viper.SetDefault("attestation.timeout", 30)
	viper.SetDefault("attestation.initial_interval_ms", 2000)
	viper.SetDefault("attestation.max_interval_ms", 30000)
	viper.SetDefault("attestation.overall_timeout_sec", 1800)
	viper.SetDefault("attestation.cache_ttl_min", 60)

	// Burn defaults
	viper.SetDefault("burn.confirm_timeout_sec", 600)

	// Worker defaults
	viper.SetDefault("workers.resume_interval", "1m")
	viper.SetDefault("workers.stale_after_sec", 300)
	viper.SetDefault("workers.resume_batch_size", 20)

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.collector_url", "localhost:4317")
	viper.SetDefault("tracing.sample_rate", 1.0)
	viper.SetDefault("tracing.insecure", true)

	// Default chain directory: base -> aptos, one direction
	viper.SetDefault("chains", []map[string]interface{}{
		{
			"name":            "base",
			"role":            "source",
			"token_contract":  "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913",
			"confirmations":   12,
			"domain":          6,
			"address_prefix":  "0x",
			"address_hex_len": 40,
		},
		{
			"name":            "aptos",
			"role":            "destination",
			"token_contract":  "0xbae207659db88bea0cbead6da0ed00aac12edcdda169e591cd41c94180b46f3b",
			"confirmations":   1,
			"domain":          9,
			"address_prefix":  "0x",
			"address_hex_len": 64,
		},
	})
	viper.SetDefault("routes", []map[string]interface{}{
		{
			"source":      "base",
			"destination": "aptos",
			"min_amount":  "0.1",
			"max_amount":  "25000",
		},
	})
}

func validate(cfg *Config) error {
	if len(cfg.Chains) == 0 {
		return fmt.Errorf("at least one chain must be configured")
	}
	if len(cfg.Routes) == 0 {
		return fmt.Errorf("at least one route must be configured")
	}
	if cfg.Attestation.InitialInterval <= 0 || cfg.Attestation.MaxInterval < cfg.Attestation.InitialInterval {
		return fmt.Errorf("attestation poll intervals misconfigured")
	}
	return nil
}
