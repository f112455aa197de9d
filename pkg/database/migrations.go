package database

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// LedgerTable is created by the embedded migrations and records every run.
const LedgerTable = "pipeline_runs"

//go:embed migrations
var migrationsFS embed.FS

// HasMigrations reports whether embedded migrations exist for dialect.
func HasMigrations(dialect string) bool {
	entries, err := fs.ReadDir(migrationsFS, path.Join("migrations", dialect))
	return err == nil && len(entries) > 0
}

// RunMigrations applies pending embedded migrations for dialect using the
// given golang-migrate database driver. It is idempotent and safe to call on
// every run. Closing the migration instance also closes the driver's database
// handle, so callers must pass a connection dedicated to migrations.
func RunMigrations(driver migratedb.Driver, dialect string, logger *zap.Logger) error {
	if !HasMigrations(dialect) {
		return fmt.Errorf("no migrations for dialect %q", dialect)
	}

	src, err := iofs.New(migrationsFS, path.Join("migrations", dialect))
	if err != nil {
		return fmt.Errorf("failed to open migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dialect, driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("Failed to close migration source", zap.Error(srcErr))
		}
		if dbErr != nil {
			logger.Warn("Failed to close migration database", zap.Error(dbErr))
		}
	}()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Debug("No migrations to apply (ledger up-to-date)", zap.String("dialect", dialect))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, _ := m.Version()
	logger.Info("Applied migrations successfully",
		zap.String("dialect", dialect),
		zap.Uint("version", newVersion))
	return nil
}
