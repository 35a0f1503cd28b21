package core

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType is the kind of circulation event a transaction records.
type TransactionType string

const (
	TransactionCheckout TransactionType = "checkout"
	TransactionReturn   TransactionType = "return"
	TransactionRenewal  TransactionType = "renewal"
	TransactionHold     TransactionType = "hold"
	TransactionReserve  TransactionType = "reserve"
)

// TransactionStatus is the settlement state of a transaction.
type TransactionStatus string

const (
	StatusActive    TransactionStatus = "active"
	StatusReturned  TransactionStatus = "returned"
	StatusOverdue   TransactionStatus = "overdue"
	StatusLost      TransactionStatus = "lost"
	StatusCancelled TransactionStatus = "cancelled"
)

// Fees are amounts in cents. Total is kept in sync by NewFees.
type Fees struct {
	Late       int64 `json:"late"`
	Damage     int64 `json:"damage"`
	Processing int64 `json:"processing"`
	Total      int64 `json:"total"`
}

// NewFees builds a Fees value with the total filled in.
func NewFees(late, damage, processing int64) Fees {
	return Fees{Late: late, Damage: damage, Processing: processing, Total: late + damage + processing}
}

// BorrowingTransaction is the enduring record of one loan or hold.
// StaffID is uuid.Nil for self-service transactions.
type BorrowingTransaction struct {
	ID              uuid.UUID
	LibraryID       uuid.UUID
	CopyID          uuid.UUID
	MemberID        uuid.UUID
	StaffID         uuid.UUID
	Type            TransactionType
	Status          TransactionStatus
	TransactionDate time.Time
	DueDate         time.Time
	ReturnDate      time.Time
	RenewalCount    int
	Fees            Fees
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsOpen reports whether the transaction has not been returned, lost or cancelled.
func (t BorrowingTransaction) IsOpen() bool {
	return t.Status == StatusActive || t.Status == StatusOverdue
}

// IsOpenLoan reports whether the transaction currently owns its copy.
func (t BorrowingTransaction) IsOpenLoan() bool {
	return t.Type == TransactionCheckout && t.IsOpen()
}

// IsOpenHold reports whether the transaction is a queued hold.
func (t BorrowingTransaction) IsOpenHold() bool {
	return t.Type == TransactionHold && t.Status == StatusActive
}

// DaysLate returns the number of started days between due date and at, or zero.
func (t BorrowingTransaction) DaysLate(at time.Time) int {
	if t.DueDate.IsZero() || !at.After(t.DueDate) {
		return 0
	}

	late := at.Sub(t.DueDate)
	days := int(late / (24 * time.Hour))
	if late%(24*time.Hour) != 0 {
		days++
	}

	return days
}
