// Package postgresengine implements store.Store on PostgreSQL.
//
// It supports three database adapters (pgx, database/sql with lib/pq, sqlx) and an optional
// read replica that serves read-only units whose context asks for eventual consistency.
// All SQL is built with goqu. Row locks are taken with SELECT ... FOR UPDATE under a
// transaction-local lock_timeout; a lock timeout, serialization failure or deadlock surfaces
// as core.ErrConcurrentModification so callers can retry the whole unit. The partial unique
// index one_open_loan_per_copy turns a lost checkout race into core.ErrCopyUnavailable.
//
// Usage:
//
//	pool, _ := pgxpool.New(ctx, dsn)
//	s, _ := postgresengine.NewStoreFromPGXPool(pool, postgresengine.WithLockTimeout(2*time.Second))
//	_ = s.Migrate(ctx)
//
//	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
//		bookCopy, err := tx.LockCopy(ctx, libraryID, copyID)
//		...
//	})
package postgresengine
