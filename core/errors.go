package core

import "errors"

var (
	// ErrNotAuthorized is returned when the acting user lacks the capability for an operation.
	// It never names the missing capability.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrNotFound is returned when an entity is absent or soft-deleted.
	ErrNotFound = errors.New("not found")

	// ErrTransactionNotFound is returned when a borrowing transaction does not exist in the library.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrCopyUnavailable is returned when a copy is not in a state that allows the operation.
	ErrCopyUnavailable = errors.New("copy unavailable")

	// ErrCapacityExceeded is returned when a copy has no available copies left or a member reached the loan cap.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrRenewalLimitReached is returned when a loan was renewed max_renewals times already.
	ErrRenewalLimitReached = errors.New("renewal limit reached")

	// ErrAlreadyReturned is returned when settling a transaction that is already closed.
	ErrAlreadyReturned = errors.New("transaction already closed")

	// ErrMemberIneligible is returned when a suspended or expired member tries to borrow.
	ErrMemberIneligible = errors.New("member is not eligible to borrow")

	// ErrMemberHasOpenLoans is returned when removing a member that still has copies on loan.
	ErrMemberHasOpenLoans = errors.New("member has open loans")

	// ErrHoldAlreadyPlaced is returned when a member is already queued for a copy.
	ErrHoldAlreadyPlaced = errors.New("hold already placed")

	// ErrHoldNotFound is returned when cancelling a hold the member does not have.
	ErrHoldNotFound = errors.New("hold not found")

	// ErrConcurrentModification is returned when the exclusive copy lock could not be acquired.
	// The whole operation may be retried.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrInvariantViolation marks an internal consistency failure. It is logged and never returned
	// to callers of the engine, which see ErrOperationFailed instead.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrOperationFailed is the generic failure surfaced for internal errors.
	ErrOperationFailed = errors.New("operation failed")

	// ErrInvalidInput is returned when a payload fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned when a uniqueness rule would be broken.
	ErrConflict = errors.New("conflict")
)

// IsBusinessRuleViolation reports whether err is an expected outcome the caller can recover from
// by choosing a different action.
func IsBusinessRuleViolation(err error) bool {
	return errors.Is(err, ErrCopyUnavailable) ||
		errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrRenewalLimitReached) ||
		errors.Is(err, ErrAlreadyReturned) ||
		errors.Is(err, ErrMemberIneligible) ||
		errors.Is(err, ErrMemberHasOpenLoans) ||
		errors.Is(err, ErrHoldAlreadyPlaced) ||
		errors.Is(err, ErrHoldNotFound)
}
