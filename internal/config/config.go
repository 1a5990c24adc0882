package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ----------------------------
	// HTTP
	// ----------------------------
	APIPort     string `envconfig:"API_PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`

	// ----------------------------
	// Storage
	// ----------------------------
	StoreDriver        string `envconfig:"STORE_DRIVER" default:"postgres"`
	DatabaseURL        string `envconfig:"DATABASE_URL"`
	StoreRetryAttempts int    `envconfig:"STORE_RETRY_ATTEMPTS" default:"3"`

	// ----------------------------
	// Gateway
	// ----------------------------
	GatewayBaseURL      string        `envconfig:"GATEWAY_BASE_URL" default:"http://localhost:8081"`
	GatewayTimeout      time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"25s"`
	GatewayRateLimit    float64       `envconfig:"GATEWAY_RATE_LIMIT" default:"0"`
	GatewayAPIKeyHeader string        `envconfig:"GATEWAY_API_KEY_HEADER" default:"apikey"`

	// ----------------------------
	// Campaign processing
	// ----------------------------
	DefaultCountryCode string        `envconfig:"DEFAULT_COUNTRY_CODE" default:""`
	PollInterval       time.Duration `envconfig:"POLL_INTERVAL" default:"2s"`
	Cooldown           time.Duration `envconfig:"COOLDOWN" default:"5m"`

	// ----------------------------
	// Admission limits
	// ----------------------------
	DefaultDailyContactLimit int    `envconfig:"DEFAULT_DAILY_CONTACT_LIMIT" default:"1000"`
	DefaultMaxInstances      int    `envconfig:"DEFAULT_MAX_INSTANCES" default:"3"`
	Timezone                 string `envconfig:"TIMEZONE" default:"Local"`

	// ----------------------------
	// Maintenance
	// ----------------------------
	ResetSchedule string `envconfig:"RESET_SCHEDULE" default:"0 0 * * *"`

	// ----------------------------
	// Submission queue (optional)
	// ----------------------------
	AMQPURL   string `envconfig:"AMQP_URL" default:""`
	AMQPQueue string `envconfig:"AMQP_QUEUE" default:"campaign_submissions"`

	// ----------------------------
	// Operator alerts (optional)
	// ----------------------------
	SMTPHost     string `envconfig:"SMTP_HOST" default:""`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"1025"`
	SMTPUser     string `envconfig:"SMTP_USER" default:""`
	SMTPPassword string `envconfig:"SMTP_PASSWORD" default:""`
	SMTPFrom     string `envconfig:"SMTP_FROM" default:"alerts@pulsejoin.local"`
	AlertTo      string `envconfig:"ALERT_TO" default:""`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.PollInterval <= 0 {
		return errors.New("POLL_INTERVAL must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone; quota days start at local midnight in it.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}
