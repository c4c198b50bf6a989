// Package config loads the designhub server configuration from an HCL file
// with DESIGNHUB_* environment overrides.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/lordrhodos/apicurio-studio/pkg/connector/local"
	"github.com/lordrhodos/apicurio-studio/pkg/connector/rawurl"
	"github.com/lordrhodos/apicurio-studio/pkg/connector/s3"
	"github.com/lordrhodos/apicurio-studio/pkg/database"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DESIGNHUB_"

// Config contains the designhub configuration.
type Config struct {
	// LogFormat configures the logging format. Supported values are
	// "standard" or "json".
	LogFormat string `hcl:"log_format,optional" env:"LOG_FORMAT"`

	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `hcl:"log_level,optional" env:"LOG_LEVEL"`

	Server     *Server     `hcl:"server,block" envPrefix:"SERVER_"`
	Database   *Database   `hcl:"database,block" envPrefix:"DATABASE_"`
	Session    *Session    `hcl:"session,block" envPrefix:"SESSION_"`
	Events     *Events     `hcl:"events,block" envPrefix:"EVENTS_"`
	Connectors *Connectors `hcl:"connectors,block"`
}

// Server configures the HTTP server.
type Server struct {
	Addr string `hcl:"addr,optional" env:"ADDR"`

	// UserHeader and NameHeader carry the identity asserted by the
	// authenticating proxy in front of the server.
	UserHeader string `hcl:"user_header,optional" env:"USER_HEADER"`
	NameHeader string `hcl:"name_header,optional" env:"NAME_HEADER"`

	ShutdownTimeoutSeconds int `hcl:"shutdown_timeout_seconds,optional" env:"SHUTDOWN_TIMEOUT_SECONDS"`
}

// Database configures the database connection.
type Database struct {
	Driver   string `hcl:"driver,optional" env:"DRIVER"`
	Host     string `hcl:"host,optional" env:"HOST"`
	Port     int    `hcl:"port,optional" env:"PORT"`
	User     string `hcl:"user,optional" env:"USER"`
	Password string `hcl:"password,optional" env:"PASSWORD"`
	DBName   string `hcl:"dbname,optional" env:"DBNAME"`
	SSLMode  string `hcl:"sslmode,optional" env:"SSLMODE"`

	// Path is the SQLite database file.
	Path string `hcl:"path,optional" env:"PATH"`

	MaxIdleConns int `hcl:"max_idle_conns,optional" env:"MAX_IDLE_CONNS"`
	MaxOpenConns int `hcl:"max_open_conns,optional" env:"MAX_OPEN_CONNS"`
}

// Session configures editing session tokens.
type Session struct {
	SigningKey string `hcl:"signing_key,optional" env:"SIGNING_KEY"`
}

// Events configures the outbox relay.
type Events struct {
	Enabled bool     `hcl:"enabled,optional" env:"ENABLED"`
	Brokers []string `hcl:"brokers,optional" env:"BROKERS"`
	Topic   string   `hcl:"topic,optional" env:"TOPIC"`

	PollIntervalSeconds int `hcl:"poll_interval_seconds,optional" env:"POLL_INTERVAL_SECONDS"`
	BatchSize           int `hcl:"batch_size,optional" env:"BATCH_SIZE"`

	// RetentionDays is how long published events are kept.
	RetentionDays int `hcl:"retention_days,optional" env:"RETENTION_DAYS"`
}

// Connectors configures the external repositories designs are imported from
// and published to. Omitted blocks disable the connector, except url which
// is always available.
type Connectors struct {
	S3    *s3.Config     `hcl:"s3,block"`
	Local *local.Config  `hcl:"local,block"`
	URL   *rawurl.Config `hcl:"url,block"`
}

// NewConfig parses an HCL configuration file, when one is given, and applies
// environment overrides and defaults.
func NewConfig(filename string) (*Config, error) {
	c := &Config{}

	if filename != "" {
		if err := hclsimple.DecodeFile(filename, nil, c); err != nil {
			return nil, fmt.Errorf("error decoding configuration file %q: %w", filename, err)
		}
	}

	c.allocate()
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("error parsing environment: %w", err)
	}
	c.SetDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// allocate makes every env-backed block non-nil so overrides have somewhere
// to land.
func (c *Config) allocate() {
	if c.Server == nil {
		c.Server = &Server{}
	}
	if c.Database == nil {
		c.Database = &Database{}
	}
	if c.Session == nil {
		c.Session = &Session{}
	}
	if c.Events == nil {
		c.Events = &Events{}
	}
	if c.Connectors == nil {
		c.Connectors = &Connectors{}
	}
	if c.Connectors.URL == nil {
		c.Connectors.URL = &rawurl.Config{}
	}
}

// SetDefaults sets default values for optional fields.
func (c *Config) SetDefaults() {
	c.allocate()

	if c.LogFormat == "" {
		c.LogFormat = "standard"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8000"
	}
	if c.Server.UserHeader == "" {
		c.Server.UserHeader = "X-Designhub-User"
	}
	if c.Server.NameHeader == "" {
		c.Server.NameHeader = "X-Designhub-User-Name"
	}
	if c.Server.ShutdownTimeoutSeconds == 0 {
		c.Server.ShutdownTimeoutSeconds = 30
	}

	if c.Database.Driver == "" {
		c.Database.Driver = database.DriverPostgres
	}
	if c.Database.Driver == database.DriverPostgres {
		if c.Database.Host == "" {
			c.Database.Host = "localhost"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.DBName == "" {
			c.Database.DBName = "designhub"
		}
	}

	if c.Events.Topic == "" {
		c.Events.Topic = "designhub.design-events"
	}
	if c.Events.PollIntervalSeconds == 0 {
		c.Events.PollIntervalSeconds = 1
	}
	if c.Events.BatchSize == 0 {
		c.Events.BatchSize = 100
	}
	if c.Events.RetentionDays == 0 {
		c.Events.RetentionDays = 7
	}

	if c.Connectors.S3 != nil {
		c.Connectors.S3.SetDefaults()
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var result error

	switch c.LogFormat {
	case "standard", "json":
	default:
		result = multierror.Append(result, fmt.Errorf("log_format must be \"standard\" or \"json\", got %q", c.LogFormat))
	}

	switch c.Database.Driver {
	case database.DriverPostgres:
		if c.Database.User == "" {
			result = multierror.Append(result, fmt.Errorf("database: user is required for postgres"))
		}
	case database.DriverSQLite:
	default:
		result = multierror.Append(result, fmt.Errorf("database: unsupported driver %q", c.Database.Driver))
	}

	if len(c.Session.SigningKey) < 32 {
		result = multierror.Append(result, fmt.Errorf("session: signing_key must be at least 32 bytes"))
	}

	if c.Events.Enabled && len(c.Events.Brokers) == 0 {
		result = multierror.Append(result, fmt.Errorf("events: brokers are required when enabled"))
	}

	if c.Connectors.S3 != nil {
		if err := c.Connectors.S3.Validate(); err != nil {
			result = multierror.Append(result, fmt.Errorf("connectors.s3: %w", err))
		}
	}
	if c.Connectors.Local != nil && c.Connectors.Local.Root == "" {
		result = multierror.Append(result, fmt.Errorf("connectors.local: root is required"))
	}

	return result
}

// DatabaseConfig returns the connection settings for database.Connect.
func (c *Config) DatabaseConfig() database.Config {
	return database.Config{
		Driver:       c.Database.Driver,
		Host:         c.Database.Host,
		Port:         c.Database.Port,
		User:         c.Database.User,
		Password:     c.Database.Password,
		DBName:       c.Database.DBName,
		SSLMode:      c.Database.SSLMode,
		Path:         c.Database.Path,
		MaxIdleConns: c.Database.MaxIdleConns,
		MaxOpenConns: c.Database.MaxOpenConns,
	}
}

// PollInterval returns the relay poll interval.
func (e *Events) PollInterval() time.Duration {
	return time.Duration(e.PollIntervalSeconds) * time.Second
}

// Retention returns how long published events are kept.
func (e *Events) Retention() time.Duration {
	return time.Duration(e.RetentionDays) * 24 * time.Hour
}
