package postgresengine

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/AntonStoeckl/circulation-core/core"
)

const (
	sqlStateUniqueViolation      = "23505"
	sqlStateForeignKeyViolation  = "23503"
	sqlStateCheckViolation       = "23514"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
	sqlStateQueryCanceled        = "57014"

	constraintOneOpenLoanPerCopy = "one_open_loan_per_copy"
)

// sqlState extracts the SQLSTATE and constraint name from a pgx or lib/pq error.
func sqlState(err error) (code, constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName, true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint, true
	}

	return "", "", false
}

// classify maps driver errors onto the core error taxonomy. The driver error stays in the chain.
func (s *Store) classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return errors.Join(ctxErr, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errors.Join(core.ErrNotFound, err)
	}

	code, constraint, ok := sqlState(err)
	if !ok {
		return err
	}

	switch code {
	case sqlStateLockNotAvailable, sqlStateSerializationFailure, sqlStateDeadlockDetected:
		s.logInfo(ctx, logMsgLockContention, logAttrError, err.Error())
		return errors.Join(core.ErrConcurrentModification, err)
	case sqlStateUniqueViolation:
		if constraint == constraintOneOpenLoanPerCopy {
			return errors.Join(core.ErrCopyUnavailable, err)
		}

		return errors.Join(core.ErrConflict, err)
	case sqlStateForeignKeyViolation:
		return errors.Join(core.ErrNotFound, err)
	case sqlStateCheckViolation:
		return errors.Join(core.ErrInvariantViolation, err)
	case sqlStateQueryCanceled:
		return errors.Join(context.Canceled, err)
	default:
		return err
	}
}
