package mempool

import (
	"database/sql"
	"embed"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	sqlite3migrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// applyMigrations brings db up to the latest embedded schema version. It is
// idempotent: calling it against an already-current database is a no-op.
func applyMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return errors.Wrap(err, "failed to load embedded migrations")
	}

	dbDriver, err := sqlite3migrate.WithInstance(db, &sqlite3migrate.Config{})
	if err != nil {
		return errors.Wrap(err, "failed to initialize sqlite3 migration driver")
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", dbDriver)
	if err != nil {
		return errors.Wrap(err, "failed to construct migrator")
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "failed to apply migrations")
	}
	return nil
}

var _ fs.FS = migrationFiles
