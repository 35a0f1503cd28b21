package circulation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-core/access"
	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/shell"
	"github.com/AntonStoeckl/circulation-core/store"
)

const (
	operationCheckout           = "checkout"
	operationReturn             = "return"
	operationRenew              = "renew"
	operationPlaceHold          = "place_hold"
	operationCancelHold         = "cancel_hold"
	operationMarkOverdue        = "mark_overdue"
	operationAdjustFees         = "adjust_fees"
	operationTransactionHistory = "transaction_history"
)

var (
	// ErrNilLogger is returned when a nil logger is provided to WithLogger or WithContextualLogger.
	ErrNilLogger = errors.New("logger must not be nil")

	// ErrNilMetricsCollector is returned when a nil collector is provided to WithMetrics.
	ErrNilMetricsCollector = errors.New("metrics collector must not be nil")

	// ErrNilTracingCollector is returned when a nil collector is provided to WithTracing.
	ErrNilTracingCollector = errors.New("tracing collector must not be nil")

	// ErrNilClock is returned when a nil clock is provided to WithClock.
	ErrNilClock = errors.New("clock must not be nil")
)

// Engine runs the circulation operations against a store.
type Engine struct {
	store        store.Store
	auth         access.Authorizer
	observer     shell.Observer
	retryOptions []shell.RetryOption
	now          func() time.Time
	newEventID   shell.EventIDGenerator
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets the logger for operation outcomes.
func WithLogger(logger shell.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			return ErrNilLogger
		}

		e.observer.Logger = logger

		return nil
	}
}

// WithContextualLogger sets a context-aware logger, preferred over WithLogger.
func WithContextualLogger(logger shell.ContextualLogger) Option {
	return func(e *Engine) error {
		if logger == nil {
			return ErrNilLogger
		}

		e.observer.ContextualLogger = logger

		return nil
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector shell.MetricsCollector) Option {
	return func(e *Engine) error {
		if collector == nil {
			return ErrNilMetricsCollector
		}

		e.observer.Metrics = collector

		return nil
	}
}

// WithTracing sets the tracing collector.
func WithTracing(collector shell.TracingCollector) Option {
	return func(e *Engine) error {
		if collector == nil {
			return ErrNilTracingCollector
		}

		e.observer.Tracing = collector

		return nil
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) error {
		if now == nil {
			return ErrNilClock
		}

		e.now = now

		return nil
	}
}

// WithRetryOptions configures the retry of lost lock races.
func WithRetryOptions(opts ...shell.RetryOption) Option {
	return func(e *Engine) error {
		e.retryOptions = opts
		return nil
	}
}

// WithEventIDGenerator replaces the ULID generator used for audit rows.
func WithEventIDGenerator(generator shell.EventIDGenerator) Option {
	return func(e *Engine) error {
		e.newEventID = generator
		return nil
	}
}

// NewEngine creates an Engine.
func NewEngine(s store.Store, auth access.Authorizer, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:      s,
		auth:       auth,
		now:        time.Now,
		newEventID: shell.NewULIDGenerator(),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

func (e *Engine) requireLoans(ctx context.Context, userID, libraryID uuid.UUID) error {
	return e.auth.Require(ctx, userID, access.LibraryScope(libraryID), access.CapProcessLoans)
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// unit carries what every operation needs inside its atomic unit.
type unit struct {
	tx      store.Tx
	library core.Library
	staffID uuid.UUID
	now     time.Time
	engine  *Engine
}

// inUnit loads the library and the acting staff row and runs fn inside one read-write unit.
func (e *Engine) inUnit(ctx context.Context, libraryID, actingUserID uuid.UUID, fn func(ctx context.Context, u *unit) error) error {
	return e.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		library, err := tx.GetLibrary(ctx, libraryID)
		if err != nil {
			return err
		}

		staffID, err := store.ActingStaffID(ctx, tx, libraryID, actingUserID)
		if err != nil {
			return err
		}

		return fn(ctx, &unit{
			tx:      tx,
			library: library,
			staffID: staffID,
			now:     e.clock(),
			engine:  e,
		})
	})
}

func (u *unit) lockLiveCopy(ctx context.Context, copyID uuid.UUID) (core.BookCopy, error) {
	bookCopy, err := u.tx.LockCopy(ctx, u.library.ID, copyID)
	if err != nil {
		return core.BookCopy{}, err
	}

	if bookCopy.Deleted.IsDeleted {
		return core.BookCopy{}, core.ErrNotFound
	}

	return bookCopy, nil
}

func (u *unit) lockLiveMember(ctx context.Context, memberID uuid.UUID) (core.LibraryMember, error) {
	member, err := u.tx.LockMember(ctx, u.library.ID, memberID)
	if err != nil {
		return core.LibraryMember{}, err
	}

	if member.Deleted.IsDeleted {
		return core.LibraryMember{}, core.ErrNotFound
	}

	return member, nil
}

// openLoansOf returns the number of open loans against copyID, 0 or 1 while the unique
// index holds.
func (u *unit) openLoansOf(ctx context.Context, copyID uuid.UUID) (int, error) {
	_, err := u.tx.FindOpenLoan(ctx, u.library.ID, copyID)

	switch {
	case err == nil:
		return 1, nil
	case errors.Is(err, core.ErrNotFound):
		return 0, nil
	default:
		return 0, err
	}
}

// loadLoan locks the copy of a checkout transaction and returns both. The transaction is
// read again under the lock so a concurrent settlement is seen.
func (u *unit) loadLoan(ctx context.Context, transactionID uuid.UUID) (core.BorrowingTransaction, core.BookCopy, error) {
	transaction, err := u.getTransaction(ctx, transactionID)
	if err != nil {
		return core.BorrowingTransaction{}, core.BookCopy{}, err
	}

	if transaction.Type != core.TransactionCheckout {
		return core.BorrowingTransaction{}, core.BookCopy{}, errors.Join(core.ErrTransactionNotFound, errors.New("not a loan"))
	}

	bookCopy, err := u.tx.LockCopy(ctx, u.library.ID, transaction.CopyID)
	if err != nil {
		return core.BorrowingTransaction{}, core.BookCopy{}, err
	}

	transaction, err = u.getTransaction(ctx, transactionID)
	if err != nil {
		return core.BorrowingTransaction{}, core.BookCopy{}, err
	}

	if !transaction.IsOpen() {
		return core.BorrowingTransaction{}, core.BookCopy{}, core.ErrAlreadyReturned
	}

	if bookCopy.Availability.CurrentBorrowerID != transaction.MemberID {
		return core.BorrowingTransaction{}, core.BookCopy{}, errors.Join(
			core.ErrInvariantViolation,
			errors.New("open loan does not match the copy's borrower"),
		)
	}

	return transaction, bookCopy, nil
}

func (u *unit) getTransaction(ctx context.Context, transactionID uuid.UUID) (core.BorrowingTransaction, error) {
	transaction, err := u.tx.GetTransaction(ctx, u.library.ID, transactionID)
	if errors.Is(err, core.ErrNotFound) {
		return core.BorrowingTransaction{}, core.ErrTransactionNotFound
	}

	return transaction, err
}

func (u *unit) saveCopy(ctx context.Context, bookCopy core.BookCopy, openLoans int) error {
	if err := bookCopy.Validate(openLoans); err != nil {
		return err
	}

	bookCopy.UpdatedAt = u.now

	return u.tx.SaveCopy(ctx, bookCopy)
}

func (u *unit) saveMember(ctx context.Context, member core.LibraryMember) error {
	member.UpdatedAt = u.now
	return u.tx.SaveMember(ctx, member)
}

func (u *unit) saveTransaction(ctx context.Context, transaction core.BorrowingTransaction) (core.BorrowingTransaction, error) {
	transaction.UpdatedAt = u.now
	return transaction, u.tx.SaveTransaction(ctx, transaction)
}

func (u *unit) newTransaction(memberID, copyID uuid.UUID, transactionType core.TransactionType) (core.BorrowingTransaction, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return core.BorrowingTransaction{}, err
	}

	return core.BorrowingTransaction{
		ID:              id,
		LibraryID:       u.library.ID,
		CopyID:          copyID,
		MemberID:        memberID,
		StaffID:         u.staffID,
		Type:            transactionType,
		Status:          core.StatusActive,
		TransactionDate: u.now,
		CreatedAt:       u.now,
	}, nil
}

func (u *unit) audit(ctx context.Context, transaction core.BorrowingTransaction, eventType core.EventType, payload core.EventPayload) error {
	event, err := core.BuildTransactionEvent(u.engine.newEventID(u.now), transaction, eventType, u.staffID, u.now, payload)
	if err != nil {
		return err
	}

	return u.tx.AppendEvent(ctx, event)
}

func operationAttrs(libraryID, copyID uuid.UUID) map[string]string {
	attrs := map[string]string{shell.LogAttrLibraryID: libraryID.String()}
	if copyID != uuid.Nil {
		attrs[shell.LogAttrCopyID] = copyID.String()
	}

	return attrs
}

func ptr[T any](v T) *T {
	return &v
}
