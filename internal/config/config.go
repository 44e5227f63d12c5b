// Package config loads engine configuration from engine.yaml with env
// overrides, and supports hot-reloading the tunable pipeline knobs.
// In-flight runs keep the snapshot they started with; reloads apply to
// new runs only.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Pipeline holds the driver-loop knobs.
type Pipeline struct {
	MaxSteps           int           `mapstructure:"max_steps"`
	RefinementMaxSteps int           `mapstructure:"refinement_max_steps"`
	StageRetryLimit    int           `mapstructure:"stage_retry_limit"`
	RetryBackoffBase   time.Duration `mapstructure:"retry_backoff_base"`
	UnitTimeout        time.Duration `mapstructure:"unit_timeout"`
	InteractiveMin     int           `mapstructure:"interactive_min"`
	InteractiveMax     int           `mapstructure:"interactive_max"`
}

// Backends holds the external service endpoints.
type Backends struct {
	CompletionURL     string        `mapstructure:"completion_url"`
	SearchURL         string        `mapstructure:"search_url"`
	CompletionTimeout time.Duration `mapstructure:"completion_timeout"`
	SearchTimeout     time.Duration `mapstructure:"search_timeout"`
	RatePerSecond     float64       `mapstructure:"rate_per_second"`
	RateBurst         int           `mapstructure:"rate_burst"`
}

// Postgres holds the persistence collaborator settings.
type Postgres struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN renders the lib/pq connection string.
func (p Postgres) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// Redis holds the profile cache settings.
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

// Temporal holds the workflow backend settings.
type Temporal struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// Tracing holds the OTLP exporter settings.
type Tracing struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// Config is the full engine configuration.
type Config struct {
	Pipeline Pipeline `mapstructure:"pipeline"`
	Backends Backends `mapstructure:"backends"`
	Postgres Postgres `mapstructure:"postgres"`
	Redis    Redis    `mapstructure:"redis"`
	Temporal Temporal `mapstructure:"temporal"`
	Tracing  Tracing  `mapstructure:"tracing"`
	HTTPPort int      `mapstructure:"http_port"`
	LogLevel string   `mapstructure:"log_level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.max_steps", 10)
	v.SetDefault("pipeline.refinement_max_steps", 3)
	v.SetDefault("pipeline.stage_retry_limit", 3)
	v.SetDefault("pipeline.retry_backoff_base", "1s")
	v.SetDefault("pipeline.unit_timeout", "5m")
	v.SetDefault("pipeline.interactive_min", 3)
	v.SetDefault("pipeline.interactive_max", 7)
	v.SetDefault("backends.completion_url", "http://llm-service:8000")
	v.SetDefault("backends.search_url", "http://search-service:8100")
	v.SetDefault("backends.completion_timeout", "60s")
	v.SetDefault("backends.search_timeout", "30s")
	v.SetDefault("backends.rate_per_second", 10.0)
	v.SetDefault("backends.rate_burst", 5)
	v.SetDefault("postgres.host", "postgres")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "coursegen")
	v.SetDefault("postgres.database", "coursegen")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("temporal.host_port", "temporal:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "coursegen")
	v.SetDefault("tracing.service_name", "coursegen-engine")
	v.SetDefault("http_port", 8080)
	v.SetDefault("log_level", "info")
}

// DefaultPath resolves the config file location from CONFIG_PATH,
// falling back to the conventional in-repo location.
func DefaultPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/engine.yaml"
}

// LoadFile reads configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("COURSEGEN")
	v.AutomaticEnv()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, missing := err.(viper.ConfigFileNotFoundError); !missing && !os.IsNotExist(underlying(err)) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func underlying(err error) error {
	type wrapper interface{ Unwrap() error }
	for {
		w, ok := err.(wrapper)
		if !ok {
			return err
		}
		next := w.Unwrap()
		if next == nil {
			return err
		}
		err = next
	}
}

func (c *Config) validate() error {
	if c.Pipeline.MaxSteps <= 0 {
		return fmt.Errorf("pipeline.max_steps must be positive, got %d", c.Pipeline.MaxSteps)
	}
	if c.Pipeline.StageRetryLimit <= 0 {
		return fmt.Errorf("pipeline.stage_retry_limit must be positive, got %d", c.Pipeline.StageRetryLimit)
	}
	if c.Pipeline.InteractiveMin < 1 || c.Pipeline.InteractiveMax < c.Pipeline.InteractiveMin {
		return fmt.Errorf("interactive element bounds invalid: [%d, %d]",
			c.Pipeline.InteractiveMin, c.Pipeline.InteractiveMax)
	}
	return nil
}
