package store

import (
	"context"
	"database/sql"

	"github.com/go-gota/gota/dataframe"
	migratedb "github.com/golang-migrate/migrate/v4/database"

	"github.com/ekaya-inc/catalog-pipeline/pkg/config"
	"github.com/ekaya-inc/catalog-pipeline/pkg/models"
)

// Store persists pipeline tables. Each implementation owns its connection
// and must be closed when done.
type Store interface {
	// Begin starts a unit of work. Tables replaced through the session become
	// visible only after Commit.
	Begin(ctx context.Context) (Session, error)

	// RecordRun writes a ledger row outside any session. Used for failed runs
	// whose session was rolled back.
	RecordRun(ctx context.Context, run *models.PipelineRun) error

	// Close releases the database connection.
	Close() error
}

// Session is a transactional unit of work against the store.
type Session interface {
	// Replace drops any table called name and recreates it from df.
	// Column types are inferred from the frame's series types.
	Replace(ctx context.Context, name string, df dataframe.DataFrame) error

	// RecordRun writes a ledger row inside the session.
	RecordRun(ctx context.Context, run *models.PipelineRun) error

	// Commit makes all replaced tables visible and logs a confirmation per table.
	Commit() error

	// Rollback discards the session. Safe to call after Commit.
	Rollback() error
}

// ColumnKind is the dialect-neutral type of a stored column.
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindInteger
	KindReal
	KindBoolean
)

func (k ColumnKind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindBoolean:
		return "boolean"
	default:
		return "text"
	}
}

// Dialect adapts the generic SQL store to one database engine.
type Dialect interface {
	// Name is the registry key and migrations directory, e.g. "sqlite".
	Name() string

	// Open returns a database handle for the configured destination.
	Open(cfg config.StoreConfig) (*sql.DB, error)

	// MigrationDriver wraps a dedicated handle for golang-migrate.
	MigrationDriver(db *sql.DB) (migratedb.Driver, error)

	// QuoteIdentifier safely quotes a table or column name.
	QuoteIdentifier(name string) string

	// Placeholder returns the bind parameter for the n-th (1-based) argument.
	Placeholder(n int) string

	// ColumnType maps a column kind to the engine's type name.
	ColumnType(kind ColumnKind) string

	// MaxParams is the engine's bind parameter limit per statement.
	MaxParams() int

	// TransactionalDDL reports whether DROP and CREATE TABLE roll back with
	// the enclosing transaction.
	TransactionalDDL() bool
}
