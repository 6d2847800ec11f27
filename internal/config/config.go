package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	catalog "guardduty-billing/internal/catalog/domain"
)

// EnvPrefix namespaces environment overrides, e.g. GUARDDUTY_HTTP_ADDR.
const EnvPrefix = "GUARDDUTY"

// Config is the service configuration.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Business BusinessConfig `mapstructure:"business"`
	Calendar CalendarConfig `mapstructure:"calendar"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type HTTPConfig struct {
	Addr        string        `mapstructure:"addr"`
	CORSOrigins []string      `mapstructure:"cors_origins"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type BusinessConfig struct {
	Timezone        string `mapstructure:"timezone"`
	DefaultModality string `mapstructure:"default_modality"`
}

type CalendarConfig struct {
	File     string        `mapstructure:"file"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type NotifyConfig struct {
	WebhookURL  string        `mapstructure:"webhook_url"`
	Supervisors []string      `mapstructure:"supervisors"`
	QueueSize   int           `mapstructure:"queue_size"`
	Workers     int           `mapstructure:"workers"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Template    string        `mapstructure:"template"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type TracingConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	Endpoint      string  `mapstructure:"endpoint"`
	SamplingRatio float64 `mapstructure:"sampling_ratio"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.url", "file:guardduty.db")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("business.timezone", "UTC")
	v.SetDefault("business.default_modality", string(catalog.DefaultModality))
	v.SetDefault("calendar.file", "")
	v.SetDefault("calendar.cache_ttl", 10*time.Minute)
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.supervisors", []string{})
	v.SetDefault("notify.queue_size", 256)
	v.SetDefault("notify.workers", 2)
	v.SetDefault("notify.timeout", 5*time.Second)
	v.SetDefault("notify.template", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.sampling_ratio", 1.0)
}

// Load reads defaults, then the optional YAML file at path (or the file named
// by GUARDDUTY_CONFIG), then GUARDDUTY_* environment variables. A .env file in
// the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Notify.Supervisors = splitList(cfg.Notify.Supervisors)
	cfg.HTTP.CORSOrigins = splitList(cfg.HTTP.CORSOrigins)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "pgx", "postgres", "postgresql", "sqlite3", "sqlite", "memory":
	default:
		return fmt.Errorf("config: unsupported database.driver %q", c.Database.Driver)
	}
	if c.Database.URL == "" && !strings.EqualFold(c.Database.Driver, "memory") {
		return errors.New("config: database.url is required")
	}
	if c.HTTP.Addr == "" {
		return errors.New("config: http.addr is required")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("config: business.timezone: %w", err)
	}
	if _, err := catalog.ParseModality(c.Business.DefaultModality); err != nil {
		return fmt.Errorf("config: business.default_modality: %w", err)
	}
	if c.Notify.QueueSize <= 0 || c.Notify.Workers <= 0 {
		return errors.New("config: notify.queue_size and notify.workers must be positive")
	}
	if c.Notify.Timeout <= 0 {
		return errors.New("config: notify.timeout must be positive")
	}
	if c.Tracing.SamplingRatio < 0 || c.Tracing.SamplingRatio > 1 {
		return errors.New("config: tracing.sampling_ratio must be within [0, 1]")
	}
	return nil
}

// Location resolves the business time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Business.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Business.Timezone)
}
