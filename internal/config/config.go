// Package config loads the migrator configuration from the environment and
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/xog-migrate/pkg/client"
	"github.com/Sternrassler/xog-migrate/pkg/journal"
	"github.com/Sternrassler/xog-migrate/pkg/logging"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix of every environment variable, e.g. XOGM_SOURCE_URL.
const Prefix = "xogm"

// Endpoint configures one PPM instance.
type Endpoint struct {
	URL       string        `envconfig:"URL"`
	Username  string        `envconfig:"USERNAME"`
	Password  string        `envconfig:"PASSWORD"`
	SessionID string        `envconfig:"SESSION_ID"`
	XOGPath   string        `envconfig:"XOG_PATH" default:"/niku/xog"`
	APIPath   string        `envconfig:"API_PATH" default:"/ppm/rest/"`
	Timeout   time.Duration `envconfig:"TIMEOUT" default:"5m"`
	Insecure  bool          `envconfig:"INSECURE"`
}

// Config represents the application configuration structure
type Config struct {
	Source      Endpoint `envconfig:"SOURCE"`
	Destination Endpoint `envconfig:"DEST"`

	// Concurrency is the migration window: destination writes in flight.
	Concurrency int `envconfig:"CONCURRENCY" default:"3"`

	// RedisURL enables the journal when set, e.g. redis://localhost:6379/0.
	RedisURL        string        `envconfig:"REDIS_URL"`
	JournalTTL      time.Duration `envconfig:"JOURNAL_TTL" default:"168h"`
	JournalPayloads bool          `envconfig:"JOURNAL_PAYLOADS"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty bool   `envconfig:"LOG_PRETTY"`

	// MetricsAddr serves /metrics when set, e.g. :9090.
	MetricsAddr string `envconfig:"METRICS_ADDR"`
}

// Load reads the configuration from environment variables.
//
// Without arguments a .env file in the working directory is applied if it
// exists; named files must exist. File values override the environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		_ = godotenv.Overload()
	} else if err := godotenv.Overload(files...); err != nil {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := new(Config)
	if err := envconfig.Process(Prefix, cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings every migration needs.
func (c *Config) Validate() error {
	var errs []error
	errs = append(errs, c.Source.validate("source"), c.Destination.validate("destination"))
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	return errors.Join(errs...)
}

func (e Endpoint) validate(name string) error {
	if e.URL == "" {
		return fmt.Errorf("%s: url is required", name)
	}
	if e.SessionID == "" && e.Username == "" {
		return fmt.Errorf("%s: username or session id is required", name)
	}
	return nil
}

// ClientConfig converts the endpoint into a client configuration.
func (e Endpoint) ClientConfig(name string) client.Config {
	cfg := client.DefaultConfig(name, e.URL)
	cfg.SessionID = e.SessionID
	cfg.InsecureSkipVerify = e.Insecure
	if e.XOGPath != "" {
		cfg.XOGPath = e.XOGPath
	}
	if e.APIPath != "" {
		cfg.APIPath = e.APIPath
	}
	if e.Timeout > 0 {
		cfg.Timeout = e.Timeout
	}
	return cfg
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}

// Journal returns the journal configuration.
func (c *Config) Journal() journal.Config {
	cfg := journal.DefaultConfig()
	if c.JournalTTL > 0 {
		cfg.TTL = c.JournalTTL
	}
	cfg.StorePayloads = c.JournalPayloads
	return cfg
}
