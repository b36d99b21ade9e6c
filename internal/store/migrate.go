package store

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrator builds the golang-migrate instance backing Migrate, exported so
// the `agentmail migrate` CLI subcommand can drive up/down/status/goto
// against the same embedded migration set without duplicating the
// source/driver wiring.
func Migrator(p *Pool) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("store: migration source: %w", err)
	}

	dbDriver, err := sqlite3.WithInstance(p.SQLDB(), &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("store: migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", dbDriver)
	if err != nil {
		return nil, fmt.Errorf("store: migrate init: %w", err)
	}
	return m, nil
}

// Migrate applies every pending migration in migrations/ to the pool's
// database, using golang-migrate against the already-open *sql.DB. This
// works regardless of which driver opened the connection (glebarez/sqlite
// here, not the cgo mattn/go-sqlite3 migrate's own driver assumes) because
// WithInstance only ever issues SQL over the given *sql.DB.
func Migrate(p *Pool, logger *zap.Logger) error {
	m, err := Migrator(p)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migrate up: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		logger.Warn("store: could not read migration version", zap.Error(err))
	} else {
		logger.Info("store: schema migrated", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
	return nil
}
