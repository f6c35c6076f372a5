package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/kkkkikiki/referral/internal/config"
	"github.com/kkkkikiki/referral/migrations"
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know about.
	sqlx.BindDriver(config.DriverSQLite, sqlx.QUESTION)
}

// sqlitePragmas are applied on every connection the pool opens.
const sqlitePragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

// DB holds the attribution store connection pool.
type DB struct {
	SQL    *sqlx.DB
	Driver string
	url    string
}

// NewDB opens the pool described by cfg and verifies it with a ping.
// The pool is bounded by DB_MAX_CONNS so bursts queue instead of
// exhausting the server; SQLite is always limited to one connection.
func NewDB(ctx context.Context, cfg *config.DatabaseConfig) (*DB, error) {
	var (
		conn *sqlx.DB
		err  error
	)
	switch cfg.Driver {
	case config.DriverPostgres:
		conn, err = sqlx.Open("postgres", cfg.GetDatabaseURL())
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL: %w", err)
		}
		conn.SetMaxOpenConns(cfg.MaxConns)
		conn.SetMaxIdleConns(cfg.MinConns)
		conn.SetConnMaxLifetime(time.Hour)
	case config.DriverSQLite:
		conn, err = sqlx.Open("sqlite", cfg.Path+sqlitePragmas)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite: %w", err)
		}
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", cfg.Driver, err)
	}

	slog.Info("connected to attribution store", "driver", cfg.Driver, "max_conns", conn.Stats().MaxOpenConnections)

	return &DB{
		SQL:    conn,
		Driver: cfg.Driver,
		url:    cfg.GetDatabaseURL(),
	}, nil
}

// Migrate applies the embedded migrations for the pool's driver.
func (db *DB) Migrate() error {
	files, err := migrations.For(db.Driver)
	if err != nil {
		return err
	}
	return RunMigrations(db.url, files)
}

// Ping checks connectivity to the database.
func (db *DB) Ping(ctx context.Context) error {
	return db.SQL.PingContext(ctx)
}

// Close closes the connection pool.
func (db *DB) Close() error {
	if err := db.SQL.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", db.Driver, err)
	}
	return nil
}

// RunMigrations applies every pending up migration in migrationsFS to databaseURL.
func RunMigrations(databaseURL string, migrationsFS fs.FS) error {
	d, err := iofs.New(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	slog.Info("migrations applied", "version", version, "dirty", dirty)
	return nil
}
