package config

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Supported values for DB_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `env:",prefix=SERVER_"`

	// Database configuration
	Database DatabaseConfig `env:",prefix=DB_"`

	// Application configuration
	App AppConfig `env:",prefix=APP_"`

	// Tracing configuration
	Telemetry TelemetryConfig `env:",prefix=OTEL_"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string        `env:"PORT,default=3000"`
	Host            string        `env:"HOST,default=0.0.0.0"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT,default=30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT,default=30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=30s"`
}

// DatabaseConfig holds the attribution store configuration.
// Path is only read when Driver is sqlite.
type DatabaseConfig struct {
	Driver       string        `env:"DRIVER,default=postgres"`
	Host         string        `env:"HOST,default=localhost"`
	Port         string        `env:"PORT,default=5432"`
	User         string        `env:"USER,default=postgres"`
	Password     string        `env:"PASSWORD,default=postgres"`
	Name         string        `env:"NAME,default=referral"`
	SSLMode      string        `env:"SSL_MODE,default=disable"`
	Path         string        `env:"PATH,default=referral.db"`
	MaxConns     int           `env:"MAX_CONNS,default=10"`
	MinConns     int           `env:"MIN_CONNS,default=2"`
	QueryTimeout time.Duration `env:"QUERY_TIMEOUT,default=5s"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment     string `env:"ENVIRONMENT,default=development"`
	LogLevel        string `env:"LOG_LEVEL,default=info"`
	Debug           bool   `env:"DEBUG,default=false"`
	ReferralBaseURL string `env:"REFERRAL_BASE_URL,default=http://localhost:3001"`
	DashboardURL    string `env:"DASHBOARD_URL,default=http://localhost:3000/dashboard"`
	MaxImageBytes   int64  `env:"MAX_IMAGE_BYTES,default=5242880"`
}

// TelemetryConfig holds OTLP exporter settings. An empty endpoint disables tracing.
type TelemetryConfig struct {
	Endpoint    string `env:"EXPORTER_ENDPOINT"`
	Insecure    bool   `env:"EXPORTER_INSECURE,default=true"`
	ServiceName string `env:"SERVICE_NAME,default=referral-service"`
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.Database.MaxConns)
	}
	if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS, got %d", c.Database.MinConns)
	}
	if c.Database.QueryTimeout <= 0 {
		return fmt.Errorf("DB_QUERY_TIMEOUT must be positive")
	}
	for name, raw := range map[string]string{
		"APP_REFERRAL_BASE_URL": c.App.ReferralBaseURL,
		"APP_DASHBOARD_URL":     c.App.DashboardURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if c.App.MaxImageBytes <= 0 {
		return fmt.Errorf("APP_MAX_IMAGE_BYTES must be positive")
	}
	return nil
}

// GetDatabaseURL returns the connection URL for the configured driver.
// For postgres this is a postgres:// URL accepted by both lib/pq and golang-migrate.
func (c *DatabaseConfig) GetDatabaseURL() string {
	if c.Driver == DriverSQLite {
		return "sqlite://" + c.Path
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDevelopment returns true if running in development environment
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

// SlogLevel parses LogLevel, falling back to info. Debug forces debug level.
func (c *AppConfig) SlogLevel() slog.Level {
	if c.Debug {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
