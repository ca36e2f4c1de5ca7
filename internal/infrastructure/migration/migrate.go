package migration

import (
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// Migrator drives schema migrations for the cart database through
// golang-migrate.
type Migrator struct {
	migrate *migrate.Migrate
	logger  *zap.Logger
}

// New wraps an open postgres connection in a Migrator reading SQL pairs
// from migrationsPath.
func New(db *sql.DB, migrationsPath string, logger *zap.Logger) (*Migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("create postgres migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}

	return &Migrator{migrate: m, logger: logger}, nil
}

// logVersion records where the schema landed after a successful run.
// ErrNilVersion means a full rollback left no version to report.
func (m *Migrator) logVersion(msg string) error {
	version, dirty, err := m.migrate.Version()
	if err == migrate.ErrNilVersion {
		m.logger.Info(msg)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	m.logger.Info(msg, zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

// Up applies every pending migration.
func (m *Migrator) Up() error {
	m.logger.Info("applying pending migrations")

	switch err := m.migrate.Up(); err {
	case nil:
		return m.logVersion("migrations applied")
	case migrate.ErrNoChange:
		m.logger.Info("schema already up to date")
		return nil
	default:
		return fmt.Errorf("apply migrations: %w", err)
	}
}

// Down rolls back every applied migration.
func (m *Migrator) Down() error {
	m.logger.Info("rolling back all migrations")

	switch err := m.migrate.Down(); err {
	case nil:
		m.logger.Info("all migrations rolled back")
		return nil
	case migrate.ErrNoChange:
		m.logger.Info("no migrations to roll back")
		return nil
	default:
		return fmt.Errorf("roll back migrations: %w", err)
	}
}

// Steps applies n migrations; negative n rolls back.
func (m *Migrator) Steps(n int) error {
	m.logger.Info("stepping schema", zap.Int("steps", n))

	switch err := m.migrate.Steps(n); err {
	case nil:
		return m.logVersion("schema stepped")
	case migrate.ErrNoChange:
		m.logger.Info("schema already up to date")
		return nil
	default:
		return fmt.Errorf("step migrations: %w", err)
	}
}

// GoTo migrates up or down until the schema sits at version.
func (m *Migrator) GoTo(version uint) error {
	m.logger.Info("migrating schema to version", zap.Uint("target_version", version))

	switch err := m.migrate.Migrate(version); err {
	case nil:
		m.logger.Info("schema at target version", zap.Uint("version", version))
		return nil
	case migrate.ErrNoChange:
		m.logger.Info("schema already at target version")
		return nil
	default:
		return fmt.Errorf("migrate to version %d: %w", version, err)
	}
}

// Version reports the current schema version; (0, false) means none applied.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if err == migrate.ErrNilVersion {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, dirty, nil
}

// Force overwrites the recorded version without running any SQL. Only for
// recovering a dirty schema_migrations row.
func (m *Migrator) Force(version int) error {
	m.logger.Warn("forcing schema version", zap.Int("version", version))

	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	return nil
}

// Drop removes every object in the database, data included.
func (m *Migrator) Drop() error {
	m.logger.Warn("dropping database, all data will be lost")

	if err := m.migrate.Drop(); err != nil {
		return fmt.Errorf("drop database: %w", err)
	}

	m.logger.Info("database dropped")
	return nil
}

// Close releases the source and database handles.
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("close migration source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("close migration database handle: %w", dbErr)
	}
	return nil
}
