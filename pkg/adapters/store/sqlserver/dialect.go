// Package sqlserver stores pipeline tables in Microsoft SQL Server 2016+.
package sqlserver

import (
	"database/sql"
	"fmt"
	"strings"

	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratesqlserver "github.com/golang-migrate/migrate/v4/database/sqlserver"
	mssql "github.com/microsoft/go-mssqldb"

	"github.com/ekaya-inc/catalog-pipeline/pkg/adapters/store"
	"github.com/ekaya-inc/catalog-pipeline/pkg/config"
)

// maxParams stays under the 2100 parameter limit of sp_executesql.
const maxParams = 2000

// Dialect implements store.Dialect for SQL Server.
type Dialect struct{}

var _ store.Dialect = Dialect{}

func (Dialect) Name() string { return "sqlserver" }

func (Dialect) Open(cfg config.StoreConfig) (*sql.DB, error) {
	connector, err := mssql.NewConnector(config.ResolveDSNForDocker(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("invalid sqlserver DSN: %w", err)
	}
	return sql.OpenDB(connector), nil
}

func (Dialect) MigrationDriver(db *sql.DB) (migratedb.Driver, error) {
	return migratesqlserver.WithInstance(db, &migratesqlserver.Config{})
}

// QuoteIdentifier brackets name the way QUOTENAME does, doubling any ].
func (Dialect) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (Dialect) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

func (Dialect) ColumnType(kind store.ColumnKind) string {
	switch kind {
	case store.KindInteger:
		return "BIGINT"
	case store.KindReal:
		return "FLOAT"
	case store.KindBoolean:
		return "BIT"
	default:
		return "NVARCHAR(MAX)"
	}
}

func (Dialect) MaxParams() int { return maxParams }

func (Dialect) TransactionalDDL() bool { return true }
