// Package config loads reporter settings from a config file, QATOUCH_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/qatouch-reporter/pkg/cache"
	"github.com/Sternrassler/qatouch-reporter/pkg/logging"
	"github.com/Sternrassler/qatouch-reporter/pkg/qatouch"
	"github.com/Sternrassler/qatouch-reporter/pkg/ratelimit"
	"github.com/Sternrassler/qatouch-reporter/pkg/reporter"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. QATOUCH_API_TOKEN.
const EnvPrefix = "QATOUCH"

// Config represents the complete application configuration.
type Config struct {
	Subdomain      string        `mapstructure:"subdomain"`
	APIToken       string        `mapstructure:"api_token"`
	ProjectKey     string        `mapstructure:"project_key"`
	BaseURL        string        `mapstructure:"base_url"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	Timeout        time.Duration `mapstructure:"timeout"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Report    ReportConfig    `mapstructure:"report"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// RateLimitConfig is the request quota of one QA Touch account.
type RateLimitConfig struct {
	Permits int           `mapstructure:"permits"`
	Window  time.Duration `mapstructure:"window"`
}

// RedisConfig enables the shared rate window and the case-key cache.
// Empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig contains case listing cache configuration.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// ReportConfig identifies the test run results are written to.
type ReportConfig struct {
	TestRunKey string `mapstructure:"testrun_key"`
	Comments   string `mapstructure:"comments"`
}

// LoggingConfig contains logger configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// MetricsConfig contains the metrics endpoint address. Empty disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// SetDefaults registers every key with its default so that environment
// variables are picked up for all of them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("subdomain", "")
	v.SetDefault("api_token", "")
	v.SetDefault("project_key", "")
	v.SetDefault("base_url", qatouch.DefaultBaseURL)
	v.SetDefault("max_concurrency", 10)
	v.SetDefault("timeout", "30s")

	v.SetDefault("rate_limit.permits", ratelimit.DefaultPermits)
	v.SetDefault("rate_limit.window", ratelimit.DefaultWindow.String())

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.ttl", cache.DefaultTTL.String())

	v.SetDefault("report.testrun_key", "")
	v.SetDefault("report.comments", reporter.DefaultComments)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)

	v.SetDefault("metrics.addr", "")
}

// NewViper returns a viper instance with defaults, QATOUCH_* environment
// binding and, when cfgFile is set, the given config file.
func NewViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	return v, nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings that do not depend on the command being run.
// Credentials are checked by the commands that need them.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if c.RateLimit.Permits <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.permits must be > 0 (got %d)", c.RateLimit.Permits))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.window must be > 0 (got %s)", c.RateLimit.Window))
	}
	if c.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("max_concurrency must be >= 0 (got %d)", c.MaxConcurrency))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", qatouch.ErrConfiguration, err)
	}
	return nil
}

// Credentials returns the account credentials.
func (c *Config) Credentials() qatouch.Credentials {
	return qatouch.Credentials{
		Subdomain:  c.Subdomain,
		APIToken:   c.APIToken,
		ProjectKey: c.ProjectKey,
	}
}

// ClientConfig builds the QA Touch client configuration. redisClient may be nil.
func (c *Config) ClientConfig(redisClient *redis.Client) qatouch.Config {
	cfg := qatouch.DefaultConfig(c.Credentials())
	if c.BaseURL != "" {
		cfg.BaseURL = c.BaseURL
	}
	cfg.RatePermits = c.RateLimit.Permits
	cfg.RateWindow = c.RateLimit.Window
	if c.MaxConcurrency > 0 {
		cfg.MaxConcurrency = c.MaxConcurrency
	}
	if c.Timeout > 0 {
		cfg.Timeout = c.Timeout
	}
	if c.Cache.TTL > 0 {
		cfg.CacheTTL = c.Cache.TTL
	}
	cfg.Redis = redisClient
	return cfg
}

// ReporterConfig builds the reporter configuration. redisClient may be nil.
func (c *Config) ReporterConfig(redisClient *redis.Client) reporter.Config {
	return reporter.Config{
		Client:     c.ClientConfig(redisClient),
		TestRunKey: c.Report.TestRunKey,
		Comments:   c.Report.Comments,
	}
}

// RedisOptions returns client options, or nil when Redis is disabled.
func (c *Config) RedisOptions() *redis.Options {
	if strings.TrimSpace(c.Redis.Addr) == "" {
		return nil
	}
	return &redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}
}

// LoggerConfig returns the logger configuration.
func (c *Config) LoggerConfig() logging.Config {
	level, _ := logging.ParseLevel(c.Logging.Level)
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Pretty = c.Logging.Pretty
	return cfg
}
