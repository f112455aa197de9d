// Package sqlite stores pipeline tables in a local SQLite file using the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "modernc.org/sqlite"

	"github.com/ekaya-inc/catalog-pipeline/pkg/adapters/store"
	"github.com/ekaya-inc/catalog-pipeline/pkg/config"
)

// DriverName is the database/sql name registered by modernc.org/sqlite.
const DriverName = "sqlite"

// maxParams is SQLITE_MAX_VARIABLE_NUMBER for SQLite 3.32+.
const maxParams = 32766

// Dialect implements store.Dialect for SQLite.
type Dialect struct{}

var _ store.Dialect = Dialect{}

func (Dialect) Name() string { return "sqlite" }

// Open opens the database file at cfg.Path, creating it if needed.
func (Dialect) Open(cfg config.StoreConfig) (*sql.DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite store requires a path")
	}
	db, err := sql.Open(DriverName, DSN(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	return db, nil
}

// DSN builds a modernc file URI with a busy timeout so a concurrent reader
// does not fail writes immediately.
func DSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	return "file:" + path + "?" + q.Encode()
}

func (Dialect) MigrationDriver(db *sql.DB) (migratedb.Driver, error) {
	return migratesqlite.WithInstance(db, &migratesqlite.Config{})
}

func (Dialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (Dialect) Placeholder(int) string { return "?" }

func (Dialect) ColumnType(kind store.ColumnKind) string {
	switch kind {
	case store.KindInteger, store.KindBoolean:
		return "INTEGER"
	case store.KindReal:
		return "REAL"
	default:
		return "TEXT"
	}
}

func (Dialect) MaxParams() int { return maxParams }

func (Dialect) TransactionalDDL() bool { return true }
