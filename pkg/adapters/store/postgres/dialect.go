// Package postgres stores pipeline tables in PostgreSQL through pgx.
package postgres

import (
	"database/sql"
	"fmt"

	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/ekaya-inc/catalog-pipeline/pkg/adapters/store"
	"github.com/ekaya-inc/catalog-pipeline/pkg/config"
)

// Dialect implements store.Dialect for PostgreSQL 12+.
type Dialect struct{}

var _ store.Dialect = Dialect{}

func (Dialect) Name() string { return "postgres" }

// Open parses cfg.DSN (URL or key/value form) and opens it through pgx's
// database/sql bridge.
func (Dialect) Open(cfg config.StoreConfig) (*sql.DB, error) {
	connCfg, err := pgx.ParseConfig(config.ResolveDSNForDocker(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("invalid postgres DSN: %w", err)
	}
	return stdlib.OpenDB(*connCfg), nil
}

func (Dialect) MigrationDriver(db *sql.DB) (migratedb.Driver, error) {
	return migratepgx.WithInstance(db, &migratepgx.Config{})
}

func (Dialect) QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (Dialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (Dialect) ColumnType(kind store.ColumnKind) string {
	switch kind {
	case store.KindInteger:
		return "BIGINT"
	case store.KindReal:
		return "DOUBLE PRECISION"
	case store.KindBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func (Dialect) MaxParams() int { return 65535 }

func (Dialect) TransactionalDDL() bool { return true }
