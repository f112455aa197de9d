package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"go.uber.org/zap"

	"github.com/ekaya-inc/catalog-pipeline/pkg/apperrors"
	"github.com/ekaya-inc/catalog-pipeline/pkg/config"
	"github.com/ekaya-inc/catalog-pipeline/pkg/database"
	"github.com/ekaya-inc/catalog-pipeline/pkg/logging"
	"github.com/ekaya-inc/catalog-pipeline/pkg/models"
	"github.com/ekaya-inc/catalog-pipeline/pkg/retry"
	"github.com/ekaya-inc/catalog-pipeline/pkg/table"
)

var errNoColumns = errors.New("table has no columns")

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLStore is a Store over database/sql. Engine differences live in the Dialect.
type SQLStore struct {
	dialect Dialect
	db      *sql.DB
	cfg     config.StoreConfig
	ledger  bool
	logger  *zap.Logger
}

var _ Store = (*SQLStore)(nil)

// Open connects to the configured store type. The dialect must have been
// registered, usually by blank-importing its package.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*SQLStore, error) {
	dialect := GetDialect(cfg.Type)
	if dialect == nil {
		var known []string
		for _, info := range RegisteredAdapters() {
			known = append(known, info.Type)
		}
		return nil, fmt.Errorf("%w: %q (registered: %s)", apperrors.ErrUnknownStore, cfg.Type, strings.Join(known, ", "))
	}
	return OpenWithDialect(ctx, dialect, cfg, logger)
}

// OpenWithDialect connects with retry and, when enabled, migrates the run ledger.
func OpenWithDialect(ctx context.Context, dialect Dialect, cfg config.StoreConfig, logger *zap.Logger) (*SQLStore, error) {
	logger = logger.Named("store").With(zap.String("store_type", dialect.Name()))

	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*sql.DB, error) {
		db, err := dialect.Open(cfg)
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, cfg.WriteTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	})
	if err != nil {
		// Driver errors often echo the DSN.
		return nil, &apperrors.PersistenceError{Op: "connect", Err: errors.New(logging.SanitizeError(err))}
	}

	s := &SQLStore{
		dialect: dialect,
		db:      db,
		cfg:     cfg,
		logger:  logger,
	}

	if cfg.RunMigrations {
		if err := s.migrate(); err != nil {
			db.Close()
			return nil, &apperrors.PersistenceError{Table: database.LedgerTable, Op: "migrate", Err: err}
		}
		s.ledger = true
	}

	if cfg.Atomic && !dialect.TransactionalDDL() {
		logger.Warn("Store commits DDL implicitly; a failed run may leave some tables replaced")
	}

	logger.Info("Connected to store", zap.String("destination", Destination(cfg)))
	return s, nil
}

// migrate runs the ledger migrations on a dedicated handle, which
// golang-migrate closes when done.
func (s *SQLStore) migrate() error {
	migDB, err := s.dialect.Open(s.cfg)
	if err != nil {
		return err
	}
	driver, err := s.dialect.MigrationDriver(migDB)
	if err != nil {
		migDB.Close()
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	return database.RunMigrations(driver, s.dialect.Name(), s.logger)
}

// Destination describes where data is written, without credentials.
func Destination(cfg config.StoreConfig) string {
	if cfg.Type == "sqlite" {
		return cfg.Path
	}
	return logging.SanitizeConnectionString(cfg.DSN)
}

// DB exposes the underlying handle for inspection.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Dialect returns the engine adapter in use.
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// Begin starts a transaction-backed session.
func (s *SQLStore) Begin(ctx context.Context) (Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &apperrors.PersistenceError{Op: "begin", Err: err}
	}
	return &sqlSession{store: s, tx: tx}, nil
}

// RecordRun writes a ledger row outside any session. A store opened without
// migrations has no ledger, and this is a no-op.
func (s *SQLStore) RecordRun(ctx context.Context, run *models.PipelineRun) error {
	if !s.ledger {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	return s.insertRun(ctx, s.db, run)
}

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) insertRun(ctx context.Context, ex execer, run *models.PipelineRun) error {
	cols := []string{"id", "source_url", "status", "raw_rows", "transformed_rows",
		"ml_ready_rows", "failed_stage", "error", "started_at", "finished_at"}

	quoted := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = s.dialect.QuoteIdentifier(c)
		params[i] = s.dialect.Placeholder(i + 1)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.dialect.QuoteIdentifier(database.LedgerTable),
		strings.Join(quoted, ", "),
		strings.Join(params, ", "))

	_, err := ex.ExecContext(ctx, query,
		run.ID.String(),
		run.SourceURL,
		string(run.Status),
		run.RawRows,
		run.TransformedRows,
		run.MLReadyRows,
		nullString(run.FailedStage),
		nullString(run.Error),
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
	)
	if err != nil {
		return &apperrors.PersistenceError{Table: database.LedgerTable, Op: "insert into", Err: err}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type stagedTable struct {
	name string
	rows int
}

// sqlSession stages table replacements in one transaction.
type sqlSession struct {
	store  *SQLStore
	tx     *sql.Tx
	staged []stagedTable
	done   bool
}

var _ Session = (*sqlSession)(nil)

func (ss *sqlSession) Replace(ctx context.Context, name string, df dataframe.DataFrame) error {
	if ss.done {
		return &apperrors.PersistenceError{Table: name, Op: "replace", Err: sql.ErrTxDone}
	}
	if df.Err != nil {
		return &apperrors.PersistenceError{Table: name, Op: "replace", Err: df.Err}
	}

	s := ss.store
	d := s.dialect
	cols := DescribeColumns(df)
	if len(cols) == 0 {
		return &apperrors.PersistenceError{Table: name, Op: "create", Err: errNoColumns}
	}

	names := make([]string, 0, len(cols)+1)
	names = append(names, name)
	for _, c := range cols {
		names = append(names, c.Name)
	}
	for _, f := range ScreenIdentifiers(names...) {
		s.logger.Warn("Identifier matches a SQL injection pattern; writing it quoted",
			zap.String("table", name),
			zap.String("identifier", f.Identifier),
			zap.String("fingerprint", f.Fingerprint))
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	if _, err := ss.tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+d.QuoteIdentifier(name)); err != nil {
		return &apperrors.PersistenceError{Table: name, Op: "drop", Err: err}
	}

	create := createTableSQL(d, name, cols)
	if _, err := ss.tx.ExecContext(ctx, create); err != nil {
		s.logger.Debug("Create table failed", zap.String("query", logging.SanitizeQuery(create)))
		return &apperrors.PersistenceError{Table: name, Op: "create", Err: err}
	}

	rows := df.Nrow()
	if err := ss.insertRows(ctx, name, cols, df); err != nil {
		return err
	}

	ss.staged = append(ss.staged, stagedTable{name: name, rows: rows})
	s.logger.Debug("Staged table",
		zap.String("table", name),
		zap.Int("rows", rows),
		zap.Int("columns", len(cols)))
	return nil
}

func (ss *sqlSession) insertRows(ctx context.Context, name string, cols []Column, df dataframe.DataFrame) error {
	d := ss.store.dialect
	total := df.Nrow()
	batch := rowsPerBatch(d, ss.store.cfg.BatchSize, len(cols))

	data := make([]series.Series, len(cols))
	for c, col := range cols {
		data[c] = df.Col(col.Name)
	}

	var fullQuery string
	for start := 0; start < total; start += batch {
		end := start + batch
		if end > total {
			end = total
		}
		n := end - start

		query := fullQuery
		if n != batch || query == "" {
			query = insertSQL(d, name, cols, n)
			if n == batch {
				fullQuery = query
			}
		}

		args := make([]any, 0, n*len(cols))
		for i := start; i < end; i++ {
			for _, col := range data {
				args = append(args, table.Value(col, i))
			}
		}

		if _, err := ss.tx.ExecContext(ctx, query, args...); err != nil {
			return &apperrors.PersistenceError{Table: name, Op: "insert into", Err: err}
		}
	}
	return nil
}

func (ss *sqlSession) RecordRun(ctx context.Context, run *models.PipelineRun) error {
	if !ss.store.ledger {
		return nil
	}
	if ss.done {
		return &apperrors.PersistenceError{Table: database.LedgerTable, Op: "insert into", Err: sql.ErrTxDone}
	}
	ctx, cancel := context.WithTimeout(ctx, ss.store.cfg.WriteTimeout)
	defer cancel()
	return ss.store.insertRun(ctx, ss.tx, run)
}

func (ss *sqlSession) Commit() error {
	if ss.done {
		return &apperrors.PersistenceError{Op: "commit", Err: sql.ErrTxDone}
	}
	ss.done = true
	if err := ss.tx.Commit(); err != nil {
		return &apperrors.PersistenceError{Op: "commit", Err: err}
	}
	for _, t := range ss.staged {
		ss.store.logger.Info(fmt.Sprintf("Data successfully stored in table '%s'", t.name),
			zap.String("table", t.name),
			zap.Int("rows", t.rows))
	}
	return nil
}

func (ss *sqlSession) Rollback() error {
	if ss.done {
		return nil
	}
	ss.done = true
	if err := ss.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return &apperrors.PersistenceError{Op: "rollback", Err: err}
	}
	return nil
}
