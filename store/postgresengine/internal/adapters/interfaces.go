package adapters

import "context"

// DBAdapter opens transactions on the primary, or on a replica for read-only work when one is configured.
type DBAdapter interface {
	Begin(ctx context.Context, opts TxOptions) (DBTx, error)
}

// TxOptions selects the access mode and the node of a transaction.
type TxOptions struct {
	ReadOnly   bool
	UseReplica bool
}

// DBTx is an open transaction.
type DBTx interface {
	Query(ctx context.Context, query string) (DBRows, error)
	Exec(ctx context.Context, query string) (DBResult, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DBRows defines the interface for query result rows.
type DBRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// DBResult defines the interface for execution results.
type DBResult interface {
	RowsAffected() (int64, error)
}
