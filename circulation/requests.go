package circulation

import (
	"time"

	"github.com/google/uuid"
)

// CheckoutRequest lends a copy to a member.
type CheckoutRequest struct {
	LibraryID    uuid.UUID
	CopyID       uuid.UUID
	MemberID     uuid.UUID
	ActingUserID uuid.UUID
}

// ReturnRequest settles a loan. Damage and processing fees are optional and in cents.
type ReturnRequest struct {
	LibraryID          uuid.UUID
	TransactionID      uuid.UUID
	ActingUserID       uuid.UUID
	DamageFeeCents     int64
	ProcessingFeeCents int64
}

// RenewRequest extends a loan by one loan period.
type RenewRequest struct {
	LibraryID     uuid.UUID
	TransactionID uuid.UUID
	ActingUserID  uuid.UUID
}

// HoldRequest queues a member for a copy.
type HoldRequest struct {
	LibraryID    uuid.UUID
	CopyID       uuid.UUID
	MemberID     uuid.UUID
	ActingUserID uuid.UUID
}

// CancelHoldRequest removes a member from the hold queue of a copy.
type CancelHoldRequest struct {
	LibraryID    uuid.UUID
	CopyID       uuid.UUID
	MemberID     uuid.UUID
	ActingUserID uuid.UUID
}

// MarkOverdueRequest flags every active loan of the library that was due before AsOf.
// A zero AsOf means the current time.
type MarkOverdueRequest struct {
	LibraryID    uuid.UUID
	ActingUserID uuid.UUID
	AsOf         time.Time
}

// AdjustFeesRequest replaces the damage and processing fees of a settled loan.
type AdjustFeesRequest struct {
	LibraryID          uuid.UUID
	TransactionID      uuid.UUID
	ActingUserID       uuid.UUID
	DamageFeeCents     int64
	ProcessingFeeCents int64
	Reason             string
}
