package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-core/core"
)

// TxFunc is the body of an atomic unit.
type TxFunc func(ctx context.Context, tx Tx) error

// Store runs atomic units against the persisted state.
type Store interface {
	// RunInTx executes fn in a read-write unit. A non-nil error from fn or a canceled ctx rolls back.
	RunInTx(ctx context.Context, fn TxFunc) error

	// RunReadOnly executes fn in a read-only unit. With EventualConsistency in ctx an engine may
	// serve it from a replica. Lock methods must not be used inside.
	RunReadOnly(ctx context.Context, fn TxFunc) error
}

// Tx is the set of operations available inside a unit.
// Getters return core.ErrNotFound when the row does not exist. Soft-deleted rows are returned;
// callers decide whether to treat them as absent.
type Tx interface {
	LibraryTx
	StaffTx
	MemberTx
	CopyTx
	TransactionTx
	EventTx
	CatalogTx
}

// LibraryTx covers tenant rows.
type LibraryTx interface {
	GetLibrary(ctx context.Context, id uuid.UUID) (core.Library, error)
	GetLibraryByCode(ctx context.Context, code string) (core.Library, error)
	SaveLibrary(ctx context.Context, library core.Library) error
}

// StaffTx covers staff rows.
type StaffTx interface {
	GetStaff(ctx context.Context, libraryID, userID uuid.UUID) (core.LibraryStaff, error)
	GetStaffByID(ctx context.Context, libraryID, staffID uuid.UUID) (core.LibraryStaff, error)
	ListStaffByUser(ctx context.Context, userID uuid.UUID) ([]core.LibraryStaff, error)
	SaveStaff(ctx context.Context, staff core.LibraryStaff) error
}

// MemberTx covers member rows.
type MemberTx interface {
	GetMember(ctx context.Context, libraryID, memberID uuid.UUID) (core.LibraryMember, error)
	LockMember(ctx context.Context, libraryID, memberID uuid.UUID) (core.LibraryMember, error)
	SaveMember(ctx context.Context, member core.LibraryMember) error
}

// CopyTx covers book copy rows.
type CopyTx interface {
	GetCopy(ctx context.Context, libraryID, copyID uuid.UUID) (core.BookCopy, error)
	LockCopy(ctx context.Context, libraryID, copyID uuid.UUID) (core.BookCopy, error)
	SaveCopy(ctx context.Context, bookCopy core.BookCopy) error
	ListCopies(ctx context.Context, libraryID uuid.UUID, page Page) ([]core.BookCopy, error)
}

// TransactionTx covers borrowing transactions.
type TransactionTx interface {
	GetTransaction(ctx context.Context, libraryID, transactionID uuid.UUID) (core.BorrowingTransaction, error)
	SaveTransaction(ctx context.Context, tx core.BorrowingTransaction) error
	// FindOpenLoan returns the open loan of a copy or core.ErrNotFound.
	FindOpenLoan(ctx context.Context, libraryID, copyID uuid.UUID) (core.BorrowingTransaction, error)
	// FindOpenHold returns the queued hold of a member on a copy or core.ErrNotFound.
	FindOpenHold(ctx context.Context, libraryID, copyID, memberID uuid.UUID) (core.BorrowingTransaction, error)
	ListOpenHoldsByMember(ctx context.Context, libraryID, memberID uuid.UUID) ([]core.BorrowingTransaction, error)
	CountOpenLoansByMember(ctx context.Context, libraryID, memberID uuid.UUID) (int, error)
	// ListLoansDueBefore returns active (not yet overdue) loans with a due date before t.
	ListLoansDueBefore(ctx context.Context, libraryID uuid.UUID, t time.Time) ([]core.BorrowingTransaction, error)
}

// EventTx covers the append-only audit log.
type EventTx interface {
	AppendEvent(ctx context.Context, event core.TransactionEvent) error
	ListEvents(ctx context.Context, libraryID, transactionID uuid.UUID) ([]core.TransactionEvent, error)
}

// CatalogTx covers the shared catalog.
type CatalogTx interface {
	GetAuthor(ctx context.Context, id uuid.UUID) (core.Author, error)
	SaveAuthor(ctx context.Context, author core.Author) error
	GetEdition(ctx context.Context, id uuid.UUID) (core.BookEdition, error)
	FindEditionByISBN(ctx context.Context, isbn13 string) (core.BookEdition, error)
	SaveEdition(ctx context.Context, edition core.BookEdition) error
	ListEditions(ctx context.Context, filter core.EditionFilter) ([]core.BookEdition, error)
}

// Page is a simple limit/offset window.
type Page struct {
	Limit  int
	Offset int
}

const defaultPageLimit = 50

// Normalized returns p with a default limit applied and negative values cleared.
func (p Page) Normalized() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}

	if p.Offset < 0 {
		p.Offset = 0
	}

	return p
}

// ActingStaffID returns the staff row id of userID in the library, or uuid.Nil when the user
// acts without a staff row there (system identity, self-service).
func ActingStaffID(ctx context.Context, tx StaffTx, libraryID, userID uuid.UUID) (uuid.UUID, error) {
	staff, err := tx.GetStaff(ctx, libraryID, userID)
	if errors.Is(err, core.ErrNotFound) {
		return uuid.Nil, nil
	}

	if err != nil {
		return uuid.Nil, err
	}

	return staff.ID, nil
}
