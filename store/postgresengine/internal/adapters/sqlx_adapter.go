package adapters

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// SQLXAdapter implements DBAdapter for sqlx.DB.
type SQLXAdapter struct {
	db        *sqlx.DB
	replicaDB *sqlx.DB // optional replica for read operations
}

// NewSQLXAdapter creates a new SQLX adapter.
func NewSQLXAdapter(db *sqlx.DB) *SQLXAdapter {
	return &SQLXAdapter{db: db}
}

// NewSQLXAdapterWithReplica creates a new SQLX adapter with a primary and a replica database.
func NewSQLXAdapterWithReplica(db *sqlx.DB, replica *sqlx.DB) *SQLXAdapter {
	return &SQLXAdapter{db: db, replicaDB: replica}
}

// Begin starts a transaction. Read-only transactions go to the replica when asked for and available.
func (s *SQLXAdapter) Begin(ctx context.Context, opts TxOptions) (DBTx, error) {
	db := s.db
	if opts.ReadOnly && opts.UseReplica && s.replicaDB != nil {
		db = s.replicaDB
	}

	tx, err := db.BeginTxx(ctx, sqlTxOptions(opts))
	if err != nil {
		return nil, err
	}

	return &stdTx{tx: tx.Tx}, nil
}
