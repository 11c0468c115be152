package sqlstore

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
)

//go:embed migrations
var migrationsFS embed.FS

// NewMigrator returns a migrate instance for db using the embedded
// migrations of its driver. Closing the migrator closes db.
func NewMigrator(db *sqlx.DB) (*migrate.Migrate, error) {
	var (
		drv  database.Driver
		name string
		err  error
	)
	switch db.DriverName() {
	case "pgx":
		name = DriverPostgres
		drv, err = postgres.WithInstance(db.DB, &postgres.Config{})
	case "sqlite":
		name = DriverSQLite
		drv, err = sqlite.WithInstance(db.DB, &sqlite.Config{})
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", db.DriverName())
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s migration driver: %w", name, err)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+name)
	if err != nil {
		return nil, fmt.Errorf("loading embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, name, drv)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}

// MigrateUp applies every pending migration.
func MigrateUp(db *sqlx.DB) error {
	m, err := NewMigrator(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}
