package postgresengine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/store/postgresengine"
)

func Test_FactoryFunctions_ShouldFail_WithNilDatabaseConnection(t *testing.T) {
	testCases := []struct {
		name        string
		factoryFunc func() (*postgresengine.Store, error)
	}{
		{
			name:        "NewStoreFromPGXPool with nil",
			factoryFunc: func() (*postgresengine.Store, error) { return postgresengine.NewStoreFromPGXPool(nil) },
		},
		{
			name:        "NewStoreFromPGXPoolAndReplica with nil",
			factoryFunc: func() (*postgresengine.Store, error) { return postgresengine.NewStoreFromPGXPoolAndReplica(nil, nil) },
		},
		{
			name:        "NewStoreFromSQLDB with nil",
			factoryFunc: func() (*postgresengine.Store, error) { return postgresengine.NewStoreFromSQLDB(nil) },
		},
		{
			name:        "NewStoreFromSQLDBAndReplica with nil",
			factoryFunc: func() (*postgresengine.Store, error) { return postgresengine.NewStoreFromSQLDBAndReplica(nil, nil) },
		},
		{
			name:        "NewStoreFromSQLX with nil",
			factoryFunc: func() (*postgresengine.Store, error) { return postgresengine.NewStoreFromSQLX(nil) },
		},
		{
			name:        "NewStoreFromSQLXAndReplica with nil",
			factoryFunc: func() (*postgresengine.Store, error) { return postgresengine.NewStoreFromSQLXAndReplica(nil, nil) },
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := tc.factoryFunc()

			assert.Nil(t, s)
			assert.ErrorIs(t, err, postgresengine.ErrNilDatabaseConnection)
		})
	}
}

func Test_WithLockTimeout_Rejects_NonPositive_Durations(t *testing.T) {
	s := &postgresengine.Store{}

	assert.ErrorIs(t, postgresengine.WithLockTimeout(0)(s), postgresengine.ErrInvalidLockTimeout)
	assert.ErrorIs(t, postgresengine.WithLockTimeout(-time.Second)(s), postgresengine.ErrInvalidLockTimeout)
	assert.NoError(t, postgresengine.WithLockTimeout(time.Second)(s))
}

func Test_Schema_Carries_The_Open_Loan_Index(t *testing.T) {
	schema := postgresengine.Schema()

	assert.Contains(t, schema, "CREATE UNIQUE INDEX IF NOT EXISTS one_open_loan_per_copy")
	assert.True(t, strings.Contains(schema, "book_copies_available_range"))
}

func Test_Classify_Maps_SQLStates(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name     string
		err      error
		expected error
	}{
		{
			name:     "pgx lock timeout",
			err:      &pgconn.PgError{Code: "55P03"},
			expected: core.ErrConcurrentModification,
		},
		{
			name:     "pgx deadlock",
			err:      &pgconn.PgError{Code: "40P01"},
			expected: core.ErrConcurrentModification,
		},
		{
			name:     "lib/pq serialization failure",
			err:      &pq.Error{Code: "40001"},
			expected: core.ErrConcurrentModification,
		},
		{
			name:     "second open loan on a copy",
			err:      &pgconn.PgError{Code: "23505", ConstraintName: "one_open_loan_per_copy"},
			expected: core.ErrCopyUnavailable,
		},
		{
			name:     "lib/pq second open loan on a copy",
			err:      &pq.Error{Code: "23505", Constraint: "one_open_loan_per_copy"},
			expected: core.ErrCopyUnavailable,
		},
		{
			name:     "other unique violation",
			err:      &pgconn.PgError{Code: "23505", ConstraintName: "libraries_code_key"},
			expected: core.ErrConflict,
		},
		{
			name:     "foreign key violation",
			err:      &pgconn.PgError{Code: "23503"},
			expected: core.ErrNotFound,
		},
		{
			name:     "check violation",
			err:      &pq.Error{Code: "23514", Constraint: "book_copies_available_range"},
			expected: core.ErrInvariantViolation,
		},
		{
			name:     "no rows",
			err:      pgx.ErrNoRows,
			expected: core.ErrNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := postgresengine.Classify(ctx, tc.err)

			assert.ErrorIs(t, err, tc.expected)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func Test_Classify_Keeps_Unknown_Errors_And_Prefers_The_Context_Error(t *testing.T) {
	errBoom := errors.New("boom")

	assert.Equal(t, errBoom, postgresengine.Classify(context.Background(), errBoom))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := postgresengine.Classify(ctx, errBoom)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, errBoom)
}
