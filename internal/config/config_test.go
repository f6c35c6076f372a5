package config

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 10, cfg.Database.MaxConns)
	assert.Equal(t, 5*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, "http://localhost:3000/dashboard", cfg.App.DashboardURL)
	assert.Equal(t, "http://localhost:3001", cfg.App.ReferralBaseURL)
	assert.Equal(t, "0.0.0.0:3000", cfg.Server.GetServerAddr())
	assert.Empty(t, cfg.Telemetry.Endpoint)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"DB_DRIVER":         "sqlite",
		"DB_PATH":           "/tmp/attribution.db",
		"DB_QUERY_TIMEOUT":  "750ms",
		"APP_DASHBOARD_URL": "https://example.com/dash",
		"SERVER_PORT":       "9090",
	}))
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "sqlite:///tmp/attribution.db", cfg.Database.GetDatabaseURL())
	assert.Equal(t, 750*time.Millisecond, cfg.Database.QueryTimeout)
	assert.Equal(t, "https://example.com/dash", cfg.App.DashboardURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.GetServerAddr())
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}},
		{"zero pool", map[string]string{"DB_MAX_CONNS": "0"}},
		{"min above max", map[string]string{"DB_MAX_CONNS": "2", "DB_MIN_CONNS": "3"}},
		{"relative dashboard", map[string]string{"APP_DASHBOARD_URL": "/dashboard"}},
		{"zero timeout", map[string]string{"DB_QUERY_TIMEOUT": "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(context.Background(), envconfig.MapLookuper(tt.env))
			require.Error(t, err)
		})
	}
}

func TestGetDatabaseURLPostgres(t *testing.T) {
	c := DatabaseConfig{
		Driver:   DriverPostgres,
		Host:     "db",
		Port:     "5432",
		User:     "app",
		Password: "p@ss",
		Name:     "referral",
		SSLMode:  "disable",
	}
	assert.Equal(t, "postgres://app:p%40ss@db:5432/referral?sslmode=disable", c.GetDatabaseURL())
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, (&AppConfig{LogLevel: "warn"}).SlogLevel())
	assert.Equal(t, slog.LevelInfo, (&AppConfig{LogLevel: "loud"}).SlogLevel())
	assert.Equal(t, slog.LevelDebug, (&AppConfig{LogLevel: "error", Debug: true}).SlogLevel())
}
