package pgtest

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/circulation-core/store/postgresengine"
)

const (
	// EnvDSN names the variable holding the test database DSN.
	EnvDSN = "CIRCULATION_TEST_DSN"

	// EnvAdapterType names the variable selecting the database adapter.
	EnvAdapterType = "ADAPTER_TYPE"

	AdapterPGXPool = "pgx.pool"
	AdapterSQLDB   = "sql.db"
	AdapterSQLX    = "sqlx.db"
)

// DSN returns the test DSN or skips the test.
func DSN(t testing.TB) string {
	t.Helper()

	dsn := os.Getenv(EnvDSN)
	if dsn == "" {
		t.Skip(EnvDSN + " not set, skipping PostgreSQL integration test")
	}

	return dsn
}

// NewStore opens a migrated Store on the adapter named by ADAPTER_TYPE. Connections are
// closed when the test ends.
func NewStore(t testing.TB, options ...postgresengine.Option) *postgresengine.Store {
	t.Helper()

	dsn := DSN(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		s   *postgresengine.Store
		err error
	)

	switch adapterType := os.Getenv(EnvAdapterType); adapterType {
	case "", AdapterPGXPool:
		pool, poolErr := pgxpool.New(ctx, dsn)
		require.NoError(t, poolErr)
		t.Cleanup(pool.Close)

		s, err = postgresengine.NewStoreFromPGXPool(pool, options...)

	case AdapterSQLDB:
		db, openErr := sql.Open("postgres", dsn)
		require.NoError(t, openErr)
		t.Cleanup(func() { _ = db.Close() })

		s, err = postgresengine.NewStoreFromSQLDB(db, options...)

	case AdapterSQLX:
		db, openErr := sqlx.Open("postgres", dsn)
		require.NoError(t, openErr)
		t.Cleanup(func() { _ = db.Close() })

		s, err = postgresengine.NewStoreFromSQLX(db, options...)

	default:
		panic("unsupported " + EnvAdapterType + ": " + adapterType)
	}

	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx), "error in migrating the test database")

	return s
}
