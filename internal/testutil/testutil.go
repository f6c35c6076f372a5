// Package testutil provides shared test infrastructure: a migrated SQLite
// store per test, and a Postgres container for integration tests.
//
// Usage in an integration TestMain:
//
//	func TestMain(m *testing.M) {
//	    tc := testutil.MustStartPostgres()
//	    defer tc.Terminate()
//	    os.Exit(m.Run())
//	}
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kkkkikiki/referral/internal/config"
	"github.com/kkkkikiki/referral/internal/database"
)

// NewSQLiteDB opens a fresh, migrated SQLite store in a temp directory and
// closes it when the test ends.
func NewSQLiteDB(t testing.TB) *database.DB {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver:       config.DriverSQLite,
		Path:         filepath.Join(t.TempDir(), "attribution.db"),
		MaxConns:     1,
		QueryTimeout: 5 * time.Second,
	}
	db, err := database.NewDB(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate())
	return db
}

// SeedUser inserts a user row directly; the service never creates users.
func SeedUser(t testing.TB, db *database.DB, username string) int64 {
	t.Helper()

	var id int64
	err := db.SQL.Get(&id, db.SQL.Rebind(`INSERT INTO users (username, password) VALUES (?, ?) RETURNING id`), username, "secret")
	require.NoError(t, err)
	return id
}

// TestContainer wraps a testcontainers container with a config for connecting.
type TestContainer struct {
	Container testcontainers.Container
	Config    config.DatabaseConfig
}

// MustStartPostgres starts a Postgres container. Calls os.Exit(1) on failure
// (suitable for TestMain).
func MustStartPostgres() *TestContainer {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:17-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "referral",
			"POSTGRES_PASSWORD": "referral",
			"POSTGRES_DB":       "referral",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to start container: %v\n", err)
		os.Exit(1)
	}

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to get container host: %v\n", err)
		os.Exit(1)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to get container port: %v\n", err)
		os.Exit(1)
	}

	return &TestContainer{
		Container: container,
		Config: config.DatabaseConfig{
			Driver:       config.DriverPostgres,
			Host:         host,
			Port:         port.Port(),
			User:         "referral",
			Password:     "referral",
			Name:         "referral",
			SSLMode:      "disable",
			MaxConns:     10,
			MinConns:     2,
			QueryTimeout: 5 * time.Second,
		},
	}
}

// NewTestDB connects to the container and runs all migrations.
func (tc *TestContainer) NewTestDB(ctx context.Context) (*database.DB, error) {
	db, err := database.NewDB(ctx, &tc.Config)
	if err != nil {
		return nil, fmt.Errorf("testutil: create DB: %w", err)
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("testutil: run migrations: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container.
func (tc *TestContainer) Terminate() {
	_ = tc.Container.Terminate(context.Background())
}

// TestLogger returns a logger configured for test output (warns only).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
