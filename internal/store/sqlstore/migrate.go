package sqlstore

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS

func newMigrator(db *DB) (*migrate.Migrate, error) {
	dir := "migrations/" + db.dialect
	sub, err := fs.Sub(migrationFS, dir)
	if err != nil {
		return nil, err
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}

	var drv database.Driver
	switch db.dialect {
	case DialectPostgres:
		drv, err = migratepgx.WithInstance(db.DB.DB, &migratepgx.Config{})
	case DialectSQLite:
		drv, err = migratesqlite.WithInstance(db.DB.DB, &migratesqlite.Config{})
	default:
		err = fmt.Errorf("no migration driver for %q", db.dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", src, db.dialect, drv)
}

// Migrate applies all pending up migrations.
func Migrate(db *DB) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	v, dirty, _ := m.Version()
	slog.Info("database migrated", "dialect", db.dialect, "version", v, "dirty", dirty)
	return nil
}

// MigrateDown rolls back `steps` migrations (all when steps <= 0).
func MigrateDown(db *DB, steps int) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}
	if steps <= 0 {
		err = m.Down()
	} else {
		err = m.Steps(-steps)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// MigrationVersion reports the applied schema version.
func MigrationVersion(db *DB) (uint, bool, error) {
	m, err := newMigrator(db)
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}
