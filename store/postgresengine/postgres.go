package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/circulation-core/shell"
	"github.com/AntonStoeckl/circulation-core/store"
	"github.com/AntonStoeckl/circulation-core/store/postgresengine/internal/adapters"
)

const (
	defaultLockTimeout = 5 * time.Second
	dialectPostgres    = "postgres"

	logMsgSQLExecuted     = "executed sql for: "
	logMsgBeginFailed     = "failed to begin transaction"
	logMsgRollbackFailed  = "failed to roll back transaction"
	logMsgCommitFailed    = "failed to commit transaction"
	logMsgCloseRowsFailed = "failed to close database rows"
	logMsgLockContention  = "row lock contention, unit rolled back"
	logAttrError          = "error"
	logAttrQuery          = "query"
	logAttrDurationMS     = "duration_ms"
	logAttrReadOnly       = "read_only"
)

var dialect = goqu.Dialect(dialectPostgres)

var _ store.Store = (*Store)(nil)

// Store is the PostgreSQL implementation of store.Store.
type Store struct {
	db               adapters.DBAdapter
	lockTimeout      time.Duration
	logger           shell.Logger
	contextualLogger shell.ContextualLogger
}

func newStore(db adapters.DBAdapter, options []Option) (*Store, error) {
	s := &Store{db: db, lockTimeout: defaultLockTimeout}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// NewStoreFromPGXPool creates a Store using a pgx Pool with optional configuration.
func NewStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapter(db), options)
}

// NewStoreFromPGXPoolAndReplica creates a Store whose eventual-consistency reads use the replica pool.
func NewStoreFromPGXPoolAndReplica(db *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*Store, error) {
	if db == nil || replica == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapterWithReplica(db, replica), options)
}

// NewStoreFromSQLDB creates a Store using a sql.DB (lib/pq) with optional configuration.
func NewStoreFromSQLDB(db *sql.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLAdapter(db), options)
}

// NewStoreFromSQLDBAndReplica creates a Store whose eventual-consistency reads use the replica database.
func NewStoreFromSQLDBAndReplica(db *sql.DB, replica *sql.DB, options ...Option) (*Store, error) {
	if db == nil || replica == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLAdapterWithReplica(db, replica), options)
}

// NewStoreFromSQLX creates a Store using a sqlx.DB with optional configuration.
func NewStoreFromSQLX(db *sqlx.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLXAdapter(db), options)
}

// NewStoreFromSQLXAndReplica creates a Store whose eventual-consistency reads use the replica database.
func NewStoreFromSQLXAndReplica(db *sqlx.DB, replica *sqlx.DB, options ...Option) (*Store, error) {
	if db == nil || replica == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLXAdapterWithReplica(db, replica), options)
}

// RunInTx runs fn in a read-write transaction on the primary.
func (s *Store) RunInTx(ctx context.Context, fn store.TxFunc) error {
	return s.run(ctx, adapters.TxOptions{}, fn)
}

// RunReadOnly runs fn in a read-only transaction, on the replica when ctx asks for eventual consistency.
func (s *Store) RunReadOnly(ctx context.Context, fn store.TxFunc) error {
	return s.run(ctx, adapters.TxOptions{
		ReadOnly:   true,
		UseReplica: store.GetConsistencyLevel(ctx) == store.EventualConsistency,
	}, fn)
}

func (s *Store) run(ctx context.Context, opts adapters.TxOptions, fn store.TxFunc) error {
	dbTx, err := s.db.Begin(ctx, opts)
	if err != nil {
		s.logError(ctx, logMsgBeginFailed, err, logAttrReadOnly, opts.ReadOnly)
		return s.classify(ctx, err)
	}

	tx := &Tx{store: s, db: dbTx, readOnly: opts.ReadOnly}

	if !opts.ReadOnly {
		setTimeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.exec(ctx, setTimeout); err != nil {
			s.rollback(ctx, dbTx)
			return err
		}
	}

	if err := fn(ctx, tx); err != nil {
		s.rollback(ctx, dbTx)
		return err
	}

	if err := ctx.Err(); err != nil {
		s.rollback(ctx, dbTx)
		return err
	}

	if err := dbTx.Commit(ctx); err != nil {
		s.logError(ctx, logMsgCommitFailed, err)
		return s.classify(ctx, err)
	}

	return nil
}

func (s *Store) rollback(ctx context.Context, dbTx adapters.DBTx) {
	// the transaction may already be aborted by a canceled context
	if err := dbTx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, sql.ErrTxDone) && !errors.Is(err, pgx.ErrTxClosed) {
		s.logWarn(ctx, logMsgRollbackFailed, err)
	}
}

// logQueryWithDuration logs SQL statements with execution time at debug level if a logger is configured.
func (s *Store) logQueryWithDuration(ctx context.Context, sqlQuery, action string, duration time.Duration) {
	switch {
	case s.contextualLogger != nil:
		s.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
	case s.logger != nil:
		s.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

func (s *Store) logInfo(ctx context.Context, msg string, args ...any) {
	switch {
	case s.contextualLogger != nil:
		s.contextualLogger.InfoContext(ctx, msg, args...)
	case s.logger != nil:
		s.logger.Info(msg, args...)
	}
}

func (s *Store) logWarn(ctx context.Context, msg string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	switch {
	case s.contextualLogger != nil:
		s.contextualLogger.WarnContext(ctx, msg, allArgs...)
	case s.logger != nil:
		s.logger.Warn(msg, allArgs...)
	}
}

func (s *Store) logError(ctx context.Context, msg string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	switch {
	case s.contextualLogger != nil:
		s.contextualLogger.ErrorContext(ctx, msg, allArgs...)
	case s.logger != nil:
		s.logger.Error(msg, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
