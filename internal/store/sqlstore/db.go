package sqlstore

import (
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/memhub/internal/store"
)

// Dialect names accepted by Open.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// DB wraps a sqlx handle with the dialect it was opened for.
type DB struct {
	*sqlx.DB
	dialect string
}

// Dialect returns "postgres" or "sqlite".
func (d *DB) Dialect() string { return d.dialect }

// Open creates a connection for the given dialect. Postgres uses the pgx driver;
// SQLite uses modernc with WAL and a single writer connection.
func Open(dialect, dsn string) (*DB, error) {
	switch strings.ToLower(dialect) {
	case DialectPostgres, "pgx", "postgresql":
		db, err := sqlx.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(10)
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		slog.Info("postgres connected", "dsn_len", len(dsn))
		return &DB{DB: db, dialect: DialectPostgres}, nil

	case DialectSQLite, "sqlite3":
		db, err := sqlx.Open("sqlite", sqliteDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1)
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping sqlite: %w", err)
		}
		slog.Info("sqlite opened", "path", dsn)
		return &DB{DB: db, dialect: DialectSQLite}, nil
	}
	return nil, fmt.Errorf("unsupported database dialect %q", dialect)
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite"
}

// NewStores opens the configured backend, optionally migrates it, and returns
// all SQL-backed stores sharing one handle.
func NewStores(cfg store.StoreConfig) (*store.Stores, *DB, error) {
	db, err := Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return StoresFor(db), db, nil
}

// StoresFor builds the store set over an already-open handle.
func StoresFor(db *DB) *store.Stores {
	return &store.Stores{
		Projects:   NewProjectStore(db),
		Memory:     NewMemoryStore(db),
		Rules:      NewRuleStore(db),
		ActiveWork: NewActiveWorkStore(db),
		Settings:   NewSettingsStore(db),
		Access:     NewAccessStore(db),
		Audit:      NewAuditStore(db),
	}
}
