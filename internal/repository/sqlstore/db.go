// Package sqlstore persists extraction runs through sqlx on PostgreSQL
// (pgx) or SQLite (modernc).
package sqlstore

import (
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"finextract/internal/config"
)

// Supported values of config.DBConfig.Driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// NewDB opens a connection pool for the configured driver.
func NewDB(cfg *config.DBConfig) (*sqlx.DB, error) {
	var driverName string
	switch cfg.Driver {
	case DriverPostgres, "":
		driverName = "pgx"
	case DriverSQLite:
		driverName = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := sqlx.Connect(driverName, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", driverName, err)
	}
	if cfg.MaxOpen > 0 {
		db.SetMaxOpenConns(cfg.MaxOpen)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	if driverName == "sqlite" {
		// Writers serialise on the file lock.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}
