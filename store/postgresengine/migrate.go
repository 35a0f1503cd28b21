package postgresengine

import (
	"context"
	_ "embed"

	"github.com/AntonStoeckl/circulation-core/store"
)

//go:embed schema.sql
var schema string

const logMsgMigrated = "schema migrated"

// Schema returns the DDL the Store expects. Every statement is idempotent.
func Schema() string {
	return schema
}

// Migrate applies the schema in one transaction.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.(*Tx).exec(ctx, schema)
		return err
	})
	if err != nil {
		return err
	}

	s.logInfo(ctx, logMsgMigrated)

	return nil
}
