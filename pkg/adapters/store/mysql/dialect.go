// Package mysql stores pipeline tables in MySQL 8 or MariaDB.
package mysql

import (
	"database/sql"
	"fmt"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"

	"github.com/ekaya-inc/catalog-pipeline/pkg/adapters/store"
	"github.com/ekaya-inc/catalog-pipeline/pkg/config"
)

// Dialect implements store.Dialect for MySQL.
type Dialect struct{}

var _ store.Dialect = Dialect{}

func (Dialect) Name() string { return "mysql" }

// Open parses a go-sql-driver DSN (user:pass@tcp(host:port)/db).
func (Dialect) Open(cfg config.StoreConfig) (*sql.DB, error) {
	c, err := ParseDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(c)
	if err != nil {
		return nil, fmt.Errorf("failed to create mysql connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}

// ParseDSN parses dsn, enables time parsing and resolves a loopback host
// when running in Docker.
func ParseDSN(dsn string) (*mysql.Config, error) {
	c, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql DSN: %w", err)
	}
	c.ParseTime = true
	if c.Net == "tcp" && c.Addr != "" {
		if host, port, err := net.SplitHostPort(c.Addr); err == nil {
			c.Addr = net.JoinHostPort(config.ResolveHostForDocker(host), port)
		}
	}
	return c, nil
}

func (Dialect) MigrationDriver(db *sql.DB) (migratedb.Driver, error) {
	return migratemysql.WithInstance(db, &migratemysql.Config{})
}

func (Dialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (Dialect) Placeholder(int) string { return "?" }

func (Dialect) ColumnType(kind store.ColumnKind) string {
	switch kind {
	case store.KindInteger:
		return "BIGINT"
	case store.KindReal:
		return "DOUBLE"
	case store.KindBoolean:
		return "BOOLEAN"
	default:
		return "LONGTEXT"
	}
}

func (Dialect) MaxParams() int { return 65535 }

// TransactionalDDL is false: MySQL commits implicitly around DROP and CREATE TABLE.
func (Dialect) TransactionalDDL() bool { return false }
