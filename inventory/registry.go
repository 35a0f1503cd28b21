package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-core/access"
	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/shell"
	"github.com/AntonStoeckl/circulation-core/store"
)

const (
	operationRegisterCopy       = "register_copy"
	operationUpdateCopyDetails  = "update_copy_details"
	operationSetLifecycleStatus = "set_lifecycle_status"

	maxLocationLength  = 100
	maxConditionLength = 100
)

// ErrNilLogger is returned when a nil logger is provided to an option.
var ErrNilLogger = errors.New("logger must not be nil")

// Registry registers copies and applies direct staff edits to them.
// Loan state is never touched here; that is the circulation engine's job.
type Registry struct {
	store        store.Store
	auth         access.Authorizer
	observer     shell.Observer
	retryOptions []shell.RetryOption
	now          func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry) error

// WithLogger sets the logger for operation outcomes.
func WithLogger(logger shell.Logger) RegistryOption {
	return func(r *Registry) error {
		if logger == nil {
			return ErrNilLogger
		}

		r.observer.Logger = logger

		return nil
	}
}

// WithMetrics sets the metrics collector for operation outcomes.
func WithMetrics(collector shell.MetricsCollector) RegistryOption {
	return func(r *Registry) error {
		r.observer.Metrics = collector
		return nil
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) error {
		r.now = now
		return nil
	}
}

// NewRegistry creates a Registry.
func NewRegistry(s store.Store, auth access.Authorizer, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{store: s, auth: auth, now: time.Now}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// RegisterCopyRequest adds one physical copy of a catalog edition to a library.
type RegisterCopyRequest struct {
	LibraryID    uuid.UUID
	EditionID    uuid.UUID
	CopyNumber   int
	Location     string
	Condition    string
	ActingUserID uuid.UUID
}

// UpdateCopyDetailsRequest changes shelf location and condition notes.
type UpdateCopyDetailsRequest struct {
	LibraryID    uuid.UUID
	CopyID       uuid.UUID
	Location     string
	Condition    string
	ActingUserID uuid.UUID
}

// SetLifecycleStatusRequest changes the administrative status of a copy.
type SetLifecycleStatusRequest struct {
	LibraryID    uuid.UUID
	CopyID       uuid.UUID
	Status       core.LifecycleStatus
	ActingUserID uuid.UUID
}

// RegisterCopy creates an available copy. The edition must exist in the catalog.
func (r *Registry) RegisterCopy(ctx context.Context, req RegisterCopyRequest) (core.BookCopy, error) {
	var registered core.BookCopy

	_, err := r.observer.Run(ctx, operationRegisterCopy, map[string]string{shell.LogAttrLibraryID: req.LibraryID.String()}, r.retryOptions,
		func(ctx context.Context) (bool, error) {
			if err := r.auth.Require(ctx, req.ActingUserID, access.LibraryScope(req.LibraryID), access.CapManageInventory); err != nil {
				return false, err
			}

			if err := validateCopyDetails(req.Location, req.Condition); err != nil {
				return false, err
			}

			if req.CopyNumber <= 0 {
				return false, errors.Join(core.ErrInvalidInput, errors.New("copy number must be positive"))
			}

			id, err := uuid.NewV7()
			if err != nil {
				return false, err
			}

			now := r.now().UTC()
			bookCopy := core.BookCopy{
				ID:              id,
				LibraryID:       req.LibraryID,
				EditionID:       req.EditionID,
				CopyNumber:      req.CopyNumber,
				TotalCopies:     1,
				AvailableCopies: 1,
				Availability:    core.Availability{Status: core.AvailabilityAvailable},
				Status:          core.LifecycleActive,
				Location:        strings.TrimSpace(req.Location),
				Condition:       strings.TrimSpace(req.Condition),
				CreatedAt:       now,
				UpdatedAt:       now,
			}

			err = r.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
				if _, err := tx.GetLibrary(ctx, req.LibraryID); err != nil {
					return err
				}

				if _, err := tx.GetEdition(ctx, req.EditionID); err != nil {
					return err
				}

				return tx.SaveCopy(ctx, bookCopy)
			})
			if err != nil {
				return false, err
			}

			registered = bookCopy

			return false, nil
		},
		shell.LogAttrUserID, req.ActingUserID.String(),
	)

	return registered, err
}

// UpdateCopyDetails overwrites location and condition. The last writer wins.
func (r *Registry) UpdateCopyDetails(ctx context.Context, req UpdateCopyDetailsRequest) (core.BookCopy, error) {
	if err := validateCopyDetails(req.Location, req.Condition); err != nil {
		return core.BookCopy{}, err
	}

	return r.mutateCopy(ctx, operationUpdateCopyDetails, req.LibraryID, req.CopyID, req.ActingUserID,
		func(c core.BookCopy) (core.BookCopy, error) {
			next := c.Clone()
			next.Location = strings.TrimSpace(req.Location)
			next.Condition = strings.TrimSpace(req.Condition)

			return next, nil
		},
	)
}

// SetLifecycleStatus moves a copy in or out of active service.
func (r *Registry) SetLifecycleStatus(ctx context.Context, req SetLifecycleStatusRequest) (core.BookCopy, error) {
	return r.mutateCopy(ctx, operationSetLifecycleStatus, req.LibraryID, req.CopyID, req.ActingUserID,
		func(c core.BookCopy) (core.BookCopy, error) {
			return SetLifecycleStatus(c, req.Status)
		},
	)
}

func (r *Registry) mutateCopy(
	ctx context.Context,
	operation string,
	libraryID, copyID, actingUserID uuid.UUID,
	change func(core.BookCopy) (core.BookCopy, error),
) (core.BookCopy, error) {
	var updated core.BookCopy

	attrs := map[string]string{
		shell.LogAttrLibraryID: libraryID.String(),
		shell.LogAttrCopyID:    copyID.String(),
	}

	_, err := r.observer.Run(ctx, operation, attrs, r.retryOptions,
		func(ctx context.Context) (bool, error) {
			if err := r.auth.Require(ctx, actingUserID, access.LibraryScope(libraryID), access.CapManageInventory); err != nil {
				return false, err
			}

			err := r.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
				bookCopy, err := tx.LockCopy(ctx, libraryID, copyID)
				if err != nil {
					return err
				}

				if bookCopy.Deleted.IsDeleted {
					return core.ErrNotFound
				}

				next, err := change(bookCopy)
				if err != nil {
					return err
				}

				openLoans := 0
				if _, err := tx.FindOpenLoan(ctx, libraryID, copyID); err == nil {
					openLoans = 1
				} else if !errors.Is(err, core.ErrNotFound) {
					return err
				}

				if err := next.Validate(openLoans); err != nil {
					return err
				}

				next.UpdatedAt = r.now().UTC()
				if err := tx.SaveCopy(ctx, next); err != nil {
					return err
				}

				updated = next

				return nil
			})

			return false, err
		},
		shell.LogAttrUserID, actingUserID.String(),
	)

	return updated, err
}

// GetCopy returns a live copy of the library. Any staff role may read.
func (r *Registry) GetCopy(ctx context.Context, libraryID, copyID, actingUserID uuid.UUID) (core.BookCopy, error) {
	if err := r.auth.Require(ctx, actingUserID, access.LibraryScope(libraryID), access.CapProcessLoans); err != nil {
		return core.BookCopy{}, err
	}

	var bookCopy core.BookCopy

	err := r.store.RunReadOnly(store.WithStrongConsistency(ctx), func(ctx context.Context, tx store.Tx) error {
		var err error
		bookCopy, err = tx.GetCopy(ctx, libraryID, copyID)

		return err
	})
	if err != nil {
		return core.BookCopy{}, err
	}

	if bookCopy.Deleted.IsDeleted {
		return core.BookCopy{}, core.ErrNotFound
	}

	return bookCopy, nil
}

// ListCopies pages through the live copies of the library.
func (r *Registry) ListCopies(ctx context.Context, libraryID, actingUserID uuid.UUID, page store.Page) ([]core.BookCopy, error) {
	if err := r.auth.Require(ctx, actingUserID, access.LibraryScope(libraryID), access.CapProcessLoans); err != nil {
		return nil, err
	}

	var copies []core.BookCopy

	err := r.store.RunReadOnly(store.WithEventualConsistency(ctx), func(ctx context.Context, tx store.Tx) error {
		var err error
		copies, err = tx.ListCopies(ctx, libraryID, page)

		return err
	})

	return copies, err
}

func validateCopyDetails(location, condition string) error {
	if len(strings.TrimSpace(location)) > maxLocationLength {
		return errors.Join(core.ErrInvalidInput, errors.New("location too long"))
	}

	if len(strings.TrimSpace(condition)) > maxConditionLength {
		return errors.Join(core.ErrInvalidInput, errors.New("condition too long"))
	}

	return nil
}
