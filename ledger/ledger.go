package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-core/access"
	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/inventory"
	"github.com/AntonStoeckl/circulation-core/shell"
	"github.com/AntonStoeckl/circulation-core/store"
)

const (
	operationSoftDelete = "soft_delete_"
	operationRestore    = "restore_"

	logAttrEntityKind = "entity_kind"
	logAttrEntityID   = "entity_id"

	reasonCopyRemoved   = "copy removed"
	reasonMemberRemoved = "member removed"
)

var (
	// ErrNilLogger is returned when a nil logger is provided to WithLogger.
	ErrNilLogger = errors.New("logger must not be nil")

	// ErrNilMetricsCollector is returned when a nil collector is provided to WithMetrics.
	ErrNilMetricsCollector = errors.New("metrics collector must not be nil")

	errHoldsChanged = errors.Join(core.ErrConcurrentModification, errors.New("member holds changed while locking"))
)

// Request names the row to delete or restore.
type Request struct {
	LibraryID    uuid.UUID
	Kind         core.EntityKind
	ID           uuid.UUID
	ActingUserID uuid.UUID
}

// Ledger runs soft-deletes and restores.
type Ledger struct {
	store        store.Store
	auth         access.Authorizer
	observer     shell.Observer
	retryOptions []shell.RetryOption
	now          func() time.Time
	newEventID   shell.EventIDGenerator
}

// Option configures a Ledger.
type Option func(*Ledger) error

// WithLogger sets the logger for operation outcomes.
func WithLogger(logger shell.Logger) Option {
	return func(l *Ledger) error {
		if logger == nil {
			return ErrNilLogger
		}

		l.observer.Logger = logger

		return nil
	}
}

// WithContextualLogger sets a context-aware logger.
func WithContextualLogger(logger shell.ContextualLogger) Option {
	return func(l *Ledger) error {
		if logger == nil {
			return ErrNilLogger
		}

		l.observer.ContextualLogger = logger

		return nil
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector shell.MetricsCollector) Option {
	return func(l *Ledger) error {
		if collector == nil {
			return ErrNilMetricsCollector
		}

		l.observer.Metrics = collector

		return nil
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) error {
		l.now = now
		return nil
	}
}

// WithRetryOptions configures the retry of lock conflicts.
func WithRetryOptions(opts ...shell.RetryOption) Option {
	return func(l *Ledger) error {
		l.retryOptions = opts
		return nil
	}
}

// New creates a Ledger.
func New(s store.Store, auth access.Authorizer, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:      s,
		auth:       auth,
		now:        time.Now,
		newEventID: shell.NewULIDGenerator(),
	}

	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}

	return l, nil
}

func capabilityFor(kind core.EntityKind) access.Capability {
	switch kind {
	case core.EntityStaff:
		return access.CapManageStaff
	case core.EntityMember:
		return access.CapManageMembers
	default:
		return access.CapManageInventory
	}
}

func (l *Ledger) authorize(ctx context.Context, req Request, restore bool) error {
	if !req.Kind.Valid() {
		return errors.Join(core.ErrInvalidInput, fmt.Errorf("unknown entity kind %q", req.Kind))
	}

	if err := l.auth.Require(ctx, req.ActingUserID, access.LibraryScope(req.LibraryID), capabilityFor(req.Kind)); err != nil {
		return err
	}

	if restore && !l.auth.HasRole(ctx, req.ActingUserID, req.LibraryID, core.RoleOwner, core.RoleManager) {
		return core.ErrNotAuthorized
	}

	return nil
}

// SoftDelete marks the row deleted. Deleting a deleted row succeeds without changes.
// A copy with an open loan is refused with core.ErrCopyUnavailable and a member with open
// loans with core.ErrMemberHasOpenLoans. Only an owner may delete or restore an owner's staff row.
func (l *Ledger) SoftDelete(ctx context.Context, req Request) (shell.HandlerResult, error) {
	return l.run(ctx, operationSoftDelete, req, func(ctx context.Context) (bool, error) {
		if err := l.authorize(ctx, req, false); err != nil {
			return false, err
		}

		var idempotent bool

		var staffUserID uuid.UUID

		err := l.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
			var err error

			switch req.Kind {
			case core.EntityCopy:
				idempotent, err = l.deleteCopy(ctx, tx, req)
			case core.EntityMember:
				idempotent, err = l.deleteMember(ctx, tx, req)
			default:
				idempotent, staffUserID, err = l.setStaffDeleted(ctx, tx, req, true)
			}

			return err
		})
		if err != nil {
			return false, err
		}

		if staffUserID != uuid.Nil {
			l.auth.Invalidate(staffUserID)
		}

		return idempotent, nil
	})
}

// Restore clears the deletion stamp. Only owners and managers may restore.
// Restoring a live row succeeds without changes.
func (l *Ledger) Restore(ctx context.Context, req Request) (shell.HandlerResult, error) {
	return l.run(ctx, operationRestore, req, func(ctx context.Context) (bool, error) {
		if err := l.authorize(ctx, req, true); err != nil {
			return false, err
		}

		var idempotent bool

		var staffUserID uuid.UUID

		err := l.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
			var err error

			switch req.Kind {
			case core.EntityCopy:
				idempotent, err = l.restoreCopy(ctx, tx, req)
			case core.EntityMember:
				idempotent, err = l.restoreMember(ctx, tx, req)
			default:
				idempotent, staffUserID, err = l.setStaffDeleted(ctx, tx, req, false)
			}

			return err
		})
		if err != nil {
			return false, err
		}

		if staffUserID != uuid.Nil {
			l.auth.Invalidate(staffUserID)
		}

		return idempotent, nil
	})
}

func (l *Ledger) run(ctx context.Context, prefix string, req Request, fn shell.OperationFunc) (shell.HandlerResult, error) {
	attrs := map[string]string{
		shell.LogAttrLibraryID: req.LibraryID.String(),
		logAttrEntityKind:      string(req.Kind),
		logAttrEntityID:        req.ID.String(),
	}

	return l.observer.Run(ctx, prefix+string(req.Kind), attrs, l.retryOptions, fn,
		shell.LogAttrUserID, req.ActingUserID.String(),
		logAttrEntityID, req.ID.String(),
	)
}

func (l *Ledger) deleteCopy(ctx context.Context, tx store.Tx, req Request) (bool, error) {
	bookCopy, err := tx.LockCopy(ctx, req.LibraryID, req.ID)
	if err != nil {
		return false, err
	}

	if bookCopy.Deleted.IsDeleted {
		return true, nil
	}

	if _, err := tx.FindOpenLoan(ctx, req.LibraryID, bookCopy.ID); err == nil {
		return false, errors.Join(core.ErrCopyUnavailable, errors.New("copy has an open loan"))
	} else if !errors.Is(err, core.ErrNotFound) {
		return false, err
	}

	now := l.now().UTC()

	staffID, err := store.ActingStaffID(ctx, tx, req.LibraryID, req.ActingUserID)
	if err != nil {
		return false, err
	}

	next, removed := inventory.ClearHolds(bookCopy)

	for _, memberID := range removed {
		if err := l.cancelHold(ctx, tx, req.LibraryID, bookCopy.ID, memberID, staffID, reasonCopyRemoved, now); err != nil {
			return false, err
		}
	}

	if err := next.Validate(0); err != nil {
		return false, err
	}

	next.Deleted = core.MarkDeleted(staffID, now)
	next.UpdatedAt = now

	return false, tx.SaveCopy(ctx, next)
}

func (l *Ledger) deleteMember(ctx context.Context, tx store.Tx, req Request) (bool, error) {
	member, err := tx.GetMember(ctx, req.LibraryID, req.ID)
	if err != nil {
		return false, err
	}

	if member.Deleted.IsDeleted {
		return true, nil
	}

	holds, err := tx.ListOpenHoldsByMember(ctx, req.LibraryID, member.ID)
	if err != nil {
		return false, err
	}

	copyIDs := holdCopyIDs(holds)

	// copies before the member, copies in id order
	copies := make(map[uuid.UUID]core.BookCopy, len(copyIDs))
	for _, copyID := range copyIDs {
		bookCopy, err := tx.LockCopy(ctx, req.LibraryID, copyID)
		if err != nil {
			return false, err
		}

		copies[copyID] = bookCopy
	}

	member, err = tx.LockMember(ctx, req.LibraryID, req.ID)
	if err != nil {
		return false, err
	}

	if member.Deleted.IsDeleted {
		return true, nil
	}

	openLoans, err := tx.CountOpenLoansByMember(ctx, req.LibraryID, member.ID)
	if err != nil {
		return false, err
	}

	if openLoans > 0 {
		return false, core.ErrMemberHasOpenLoans
	}

	holds, err = tx.ListOpenHoldsByMember(ctx, req.LibraryID, member.ID)
	if err != nil {
		return false, err
	}

	if !slices.Equal(copyIDs, holdCopyIDs(holds)) {
		return false, errHoldsChanged
	}

	now := l.now().UTC()

	staffID, err := store.ActingStaffID(ctx, tx, req.LibraryID, req.ActingUserID)
	if err != nil {
		return false, err
	}

	for _, copyID := range copyIDs {
		next, err := inventory.CancelHold(copies[copyID], member.ID)
		if err != nil {
			return false, errors.Join(core.ErrInvariantViolation, err)
		}

		next.UpdatedAt = now
		if err := tx.SaveCopy(ctx, next); err != nil {
			return false, err
		}

		if err := l.cancelHold(ctx, tx, req.LibraryID, copyID, member.ID, staffID, reasonMemberRemoved, now); err != nil {
			return false, err
		}
	}

	member.Deleted = core.MarkDeleted(staffID, now)
	member.UpdatedAt = now

	return false, tx.SaveMember(ctx, member)
}

func holdCopyIDs(holds []core.BorrowingTransaction) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(holds))
	for _, hold := range holds {
		ids = append(ids, hold.CopyID)
	}

	slices.SortFunc(ids, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })

	return slices.Compact(ids)
}

// cancelHold closes the queued hold transaction of memberID on copyID and audits it.
func (l *Ledger) cancelHold(
	ctx context.Context,
	tx store.Tx,
	libraryID, copyID, memberID, staffID uuid.UUID,
	reason string,
	now time.Time,
) error {
	hold, err := tx.FindOpenHold(ctx, libraryID, copyID, memberID)
	if errors.Is(err, core.ErrNotFound) {
		return errors.Join(core.ErrInvariantViolation, errors.New("queued member without hold transaction"))
	}

	if err != nil {
		return err
	}

	hold.Status = core.StatusCancelled
	hold.UpdatedAt = now

	if err := tx.SaveTransaction(ctx, hold); err != nil {
		return err
	}

	event, err := core.BuildTransactionEvent(l.newEventID(now), hold, core.EventHoldCancelled, staffID, now, core.EventPayload{
		CopyID: copyID.String(),
		Reason: reason,
	})
	if err != nil {
		return err
	}

	return tx.AppendEvent(ctx, event)
}

func (l *Ledger) restoreCopy(ctx context.Context, tx store.Tx, req Request) (bool, error) {
	bookCopy, err := tx.LockCopy(ctx, req.LibraryID, req.ID)
	if err != nil {
		return false, err
	}

	if !bookCopy.Deleted.IsDeleted {
		return true, nil
	}

	bookCopy.Deleted = core.SoftDelete{}
	bookCopy.UpdatedAt = l.now().UTC()

	return false, tx.SaveCopy(ctx, bookCopy)
}

func (l *Ledger) restoreMember(ctx context.Context, tx store.Tx, req Request) (bool, error) {
	member, err := tx.LockMember(ctx, req.LibraryID, req.ID)
	if err != nil {
		return false, err
	}

	if !member.Deleted.IsDeleted {
		return true, nil
	}

	member.Deleted = core.SoftDelete{}
	member.UpdatedAt = l.now().UTC()

	return false, tx.SaveMember(ctx, member)
}

func (l *Ledger) setStaffDeleted(ctx context.Context, tx store.Tx, req Request, deleted bool) (bool, uuid.UUID, error) {
	staff, err := tx.GetStaffByID(ctx, req.LibraryID, req.ID)
	if err != nil {
		return false, uuid.Nil, err
	}

	if staff.Deleted.IsDeleted == deleted {
		return true, uuid.Nil, nil
	}

	if staff.Role == core.RoleOwner {
		if err := requireActingOwner(ctx, tx, req); err != nil {
			return false, uuid.Nil, err
		}
	}

	now := l.now().UTC()

	staffID, err := store.ActingStaffID(ctx, tx, req.LibraryID, req.ActingUserID)
	if err != nil {
		return false, uuid.Nil, err
	}

	staff.Deleted = core.SoftDelete{}
	if deleted {
		staff.Deleted = core.MarkDeleted(staffID, now)
	}

	staff.UpdatedAt = now

	return false, staff.UserID, tx.SaveStaff(ctx, staff)
}

// requireActingOwner refuses changes to an owner's row unless an owner makes them.
func requireActingOwner(ctx context.Context, tx store.Tx, req Request) error {
	if req.ActingUserID == access.SystemUserID {
		return nil
	}

	acting, err := tx.GetStaff(ctx, req.LibraryID, req.ActingUserID)
	if errors.Is(err, core.ErrNotFound) {
		return core.ErrNotAuthorized
	}

	if err != nil {
		return err
	}

	if !acting.GrantsAccess() || acting.Role != core.RoleOwner {
		return core.ErrNotAuthorized
	}

	return nil
}
