package adapters

import (
	"context"
	"database/sql"
)

// SQLAdapter implements DBAdapter for sql.DB.
type SQLAdapter struct {
	db        *sql.DB
	replicaDB *sql.DB // optional replica for read operations
}

// NewSQLAdapter creates a new SQL adapter.
func NewSQLAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{db: db}
}

// NewSQLAdapterWithReplica creates a new SQL adapter with a primary and a replica database.
func NewSQLAdapterWithReplica(db *sql.DB, replica *sql.DB) *SQLAdapter {
	return &SQLAdapter{db: db, replicaDB: replica}
}

// Begin starts a transaction. Read-only transactions go to the replica when asked for and available.
func (s *SQLAdapter) Begin(ctx context.Context, opts TxOptions) (DBTx, error) {
	db := s.db
	if opts.ReadOnly && opts.UseReplica && s.replicaDB != nil {
		db = s.replicaDB
	}

	tx, err := db.BeginTx(ctx, sqlTxOptions(opts))
	if err != nil {
		return nil, err
	}

	return &stdTx{tx: tx}, nil
}
