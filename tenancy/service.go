package tenancy

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-core/access"
	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/shell"
	"github.com/AntonStoeckl/circulation-core/store"
)

const (
	operationCreateLibrary   = "create_library"
	operationUpdateSettings  = "update_settings"
	operationAddStaff        = "add_staff"
	operationChangeStaffRole = "change_staff_role"
	operationRegisterMember  = "register_member"
	operationSetMemberStatus = "set_member_status"
)

var (
	// ErrNilLogger is returned when a nil logger is provided to WithLogger.
	ErrNilLogger = errors.New("logger must not be nil")

	// ErrNilClock is returned when a nil clock is provided to WithClock.
	ErrNilClock = errors.New("clock must not be nil")
)

// Service administers libraries, staff and members.
type Service struct {
	store    store.Store
	auth     access.Authorizer
	validate *validator.Validate
	observer shell.Observer
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service) error

// WithLogger sets the logger for operation outcomes.
func WithLogger(logger shell.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			return ErrNilLogger
		}

		s.observer.Logger = logger

		return nil
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector shell.MetricsCollector) Option {
	return func(s *Service) error {
		s.observer.Metrics = collector
		return nil
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		if now == nil {
			return ErrNilClock
		}

		s.now = now

		return nil
	}
}

// NewService creates a Service.
func NewService(s store.Store, auth access.Authorizer, opts ...Option) (*Service, error) {
	svc := &Service{
		store:    s,
		auth:     auth,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}

	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}

	return svc, nil
}

// CreateLibraryRequest creates a tenant. Settings default to core.DefaultLibrarySettings.
type CreateLibraryRequest struct {
	Code         string `validate:"required,min=2,max=32,printascii"`
	Name         string `validate:"required,max=200"`
	Settings     *core.LibrarySettings
	OwnerUserID  uuid.UUID
	ActingUserID uuid.UUID
}

// UpdateSettingsRequest replaces the circulation rules of a library.
type UpdateSettingsRequest struct {
	LibraryID    uuid.UUID
	Settings     core.LibrarySettings
	ActingUserID uuid.UUID
}

// AddStaffRequest gives a user a role in a library.
type AddStaffRequest struct {
	LibraryID    uuid.UUID
	UserID       uuid.UUID
	Role         core.Role
	ActingUserID uuid.UUID
}

// ChangeStaffRoleRequest changes the role of an existing staff row.
type ChangeStaffRoleRequest struct {
	LibraryID    uuid.UUID
	StaffID      uuid.UUID
	Role         core.Role
	ActingUserID uuid.UUID
}

// RegisterMemberRequest enrolls a patron. A zero MembershipUntil never expires.
type RegisterMemberRequest struct {
	LibraryID       uuid.UUID
	MemberNumber    string `validate:"required,max=32"`
	FullName        string `validate:"required,max=200"`
	Email           string `validate:"omitempty,email,max=254"`
	MembershipUntil time.Time
	ActingUserID    uuid.UUID
}

// SetMemberStatusRequest suspends, expires or reactivates a member.
type SetMemberStatusRequest struct {
	LibraryID    uuid.UUID
	MemberID     uuid.UUID
	Status       core.MemberStatus
	ActingUserID uuid.UUID
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func (s *Service) run(ctx context.Context, operation string, libraryID, actingUserID uuid.UUID, fn shell.OperationFunc) error {
	attrs := map[string]string{}
	if libraryID != uuid.Nil {
		attrs[shell.LogAttrLibraryID] = libraryID.String()
	}

	_, err := s.observer.Run(ctx, operation, attrs, nil, fn, shell.LogAttrUserID, actingUserID.String())

	return err
}

// CreateLibrary creates a library and its owner's staff row in one unit.
func (s *Service) CreateLibrary(ctx context.Context, req CreateLibraryRequest) (core.Library, error) {
	var library core.Library

	err := s.run(ctx, operationCreateLibrary, uuid.Nil, req.ActingUserID, func(ctx context.Context) (bool, error) {
		if !access.IsSystem(req.ActingUserID) {
			return false, core.ErrNotAuthorized
		}

		req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
		req.Name = strings.TrimSpace(req.Name)

		if err := s.validate.Struct(req); err != nil {
			return false, errors.Join(core.ErrInvalidInput, err)
		}

		if strings.ContainsAny(req.Code, " \t") {
			return false, errors.Join(core.ErrInvalidInput, errors.New("library code must not contain whitespace"))
		}

		if req.OwnerUserID == uuid.Nil || access.IsSystem(req.OwnerUserID) {
			return false, errors.Join(core.ErrInvalidInput, errors.New("owner must be a real user"))
		}

		settings := core.DefaultLibrarySettings()
		if req.Settings != nil {
			settings = *req.Settings
		}

		if err := settings.Validate(); err != nil {
			return false, err
		}

		libraryID, err := uuid.NewV7()
		if err != nil {
			return false, err
		}

		staffID, err := uuid.NewV7()
		if err != nil {
			return false, err
		}

		now := s.clock()
		candidate := core.Library{
			ID:        libraryID,
			Code:      req.Code,
			Name:      req.Name,
			Settings:  settings,
			CreatedAt: now,
			UpdatedAt: now,
		}

		err = s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
			if _, err := tx.GetLibraryByCode(ctx, candidate.Code); err == nil {
				return errors.Join(core.ErrConflict, errors.New("library code already issued"))
			} else if !errors.Is(err, core.ErrNotFound) {
				return err
			}

			if err := tx.SaveLibrary(ctx, candidate); err != nil {
				return err
			}

			return tx.SaveStaff(ctx, core.LibraryStaff{
				ID:        staffID,
				UserID:    req.OwnerUserID,
				LibraryID: candidate.ID,
				Role:      core.RoleOwner,
				Status:    core.StaffActive,
				CreatedAt: now,
				UpdatedAt: now,
			})
		})
		if err != nil {
			return false, err
		}

		s.auth.Invalidate(req.OwnerUserID)
		library = candidate

		return false, nil
	})

	return library, err
}

// UpdateSettings replaces the settings of a library. The code and name stay unchanged.
func (s *Service) UpdateSettings(ctx context.Context, req UpdateSettingsRequest) (core.Library, error) {
	var library core.Library

	err := s.run(ctx, operationUpdateSettings, req.LibraryID, req.ActingUserID, func(ctx context.Context) (bool, error) {
		if err := s.auth.Require(ctx, req.ActingUserID, access.LibraryScope(req.LibraryID), access.CapAdminSettings); err != nil {
			return false, err
		}

		if err := req.Settings.Validate(); err != nil {
			return false, err
		}

		var unchanged bool

		err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
			current, err := tx.GetLibrary(ctx, req.LibraryID)
			if err != nil {
				return err
			}

			if current.Settings == req.Settings {
				library, unchanged = current, true
				return nil
			}

			current.Settings = req.Settings
			current.UpdatedAt = s.clock()
			library = current

			return tx.SaveLibrary(ctx, current)
		})

		return unchanged, err
	})

	return library, err
}

// AddStaff creates a staff row. Only an owner may appoint another owner.
func (s *Service) AddStaff(ctx context.Context, req AddStaffRequest) (core.LibraryStaff, error) {
	var staff core.LibraryStaff

	err := s.run(ctx, operationAddStaff, req.LibraryID, req.ActingUserID, func(ctx context.Context) (bool, error) {
		if err := s.requireStaffChange(ctx, req.ActingUserID, req.LibraryID, req.Role); err != nil {
			return false, err
		}

		if req.UserID == uuid.Nil {
			return false, errors.Join(core.ErrInvalidInput, errors.New("user id is required"))
		}

		id, err := uuid.NewV7()
		if err != nil {
			return false, err
		}

		now := s.clock()
		candidate := core.LibraryStaff{
			ID:        id,
			UserID:    req.UserID,
			LibraryID: req.LibraryID,
			Role:      req.Role,
			Status:    core.StaffActive,
			CreatedAt: now,
			UpdatedAt: now,
		}

		err = s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
			if _, err := tx.GetLibrary(ctx, req.LibraryID); err != nil {
				return err
			}

			existing, err := tx.GetStaff(ctx, req.LibraryID, req.UserID)

			switch {
			case err == nil && existing.Deleted.IsDeleted:
				return errors.Join(core.ErrConflict, errors.New("staff row is deleted, restore it instead"))
			case err == nil:
				return errors.Join(core.ErrConflict, errors.New("user is already staff of the library"))
			case !errors.Is(err, core.ErrNotFound):
				return err
			}

			return tx.SaveStaff(ctx, candidate)
		})
		if err != nil {
			return false, err
		}

		s.auth.Invalidate(req.UserID)
		staff = candidate

		return false, nil
	})

	return staff, err
}

// ChangeStaffRole sets a new role on a live staff row. Granting or taking away the owner role
// requires an owner.
func (s *Service) ChangeStaffRole(ctx context.Context, req ChangeStaffRoleRequest) (core.LibraryStaff, error) {
	var staff core.LibraryStaff

	err := s.run(ctx, operationChangeStaffRole, req.LibraryID, req.ActingUserID, func(ctx context.Context) (bool, error) {
		if err := s.requireStaffChange(ctx, req.ActingUserID, req.LibraryID, req.Role); err != nil {
			return false, err
		}

		actingOwner := s.auth.HasRole(ctx, req.ActingUserID, req.LibraryID, core.RoleOwner)

		var unchanged bool

		err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
			current, err := tx.GetStaffByID(ctx, req.LibraryID, req.StaffID)
			if err != nil {
				return err
			}

			if current.Deleted.IsDeleted {
				return core.ErrNotFound
			}

			if current.Role == core.RoleOwner && !actingOwner {
				return core.ErrNotAuthorized
			}

			if current.Role == req.Role {
				staff, unchanged = current, true
				return nil
			}

			current.Role = req.Role
			current.UpdatedAt = s.clock()
			staff = current

			return tx.SaveStaff(ctx, current)
		})
		if err != nil {
			return false, err
		}

		s.auth.Invalidate(staff.UserID)

		return unchanged, nil
	})

	return staff, err
}

func (s *Service) requireStaffChange(ctx context.Context, actingUserID, libraryID uuid.UUID, role core.Role) error {
	if err := s.auth.Require(ctx, actingUserID, access.LibraryScope(libraryID), access.CapManageStaff); err != nil {
		return err
	}

	if !role.Valid() {
		return errors.Join(core.ErrInvalidInput, errors.New("unknown role"))
	}

	if role == core.RoleOwner && !s.auth.HasRole(ctx, actingUserID, libraryID, core.RoleOwner) {
		return core.ErrNotAuthorized
	}

	return nil
}

// RegisterMember enrolls an active member. The member number must be unused in the library.
func (s *Service) RegisterMember(ctx context.Context, req RegisterMemberRequest) (core.LibraryMember, error) {
	var member core.LibraryMember

	err := s.run(ctx, operationRegisterMember, req.LibraryID, req.ActingUserID, func(ctx context.Context) (bool, error) {
		if err := s.auth.Require(ctx, req.ActingUserID, access.LibraryScope(req.LibraryID), access.CapManageMembers); err != nil {
			return false, err
		}

		req.MemberNumber = strings.TrimSpace(req.MemberNumber)
		req.FullName = strings.TrimSpace(req.FullName)
		req.Email = strings.ToLower(strings.TrimSpace(req.Email))

		if err := s.validate.Struct(req); err != nil {
			return false, errors.Join(core.ErrInvalidInput, err)
		}

		id, err := uuid.NewV7()
		if err != nil {
			return false, err
		}

		now := s.clock()
		candidate := core.LibraryMember{
			ID:              id,
			LibraryID:       req.LibraryID,
			MemberNumber:    req.MemberNumber,
			FullName:        req.FullName,
			Email:           req.Email,
			Status:          core.MemberActive,
			MembershipUntil: req.MembershipUntil.UTC(),
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		if req.MembershipUntil.IsZero() {
			candidate.MembershipUntil = time.Time{}
		}

		err = s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
			if _, err := tx.GetLibrary(ctx, req.LibraryID); err != nil {
				return err
			}

			return tx.SaveMember(ctx, candidate)
		})
		if err != nil {
			return false, err
		}

		member = candidate

		return false, nil
	})

	return member, err
}

// SetMemberStatus changes the membership status. Open loans are unaffected; a member who is
// not active just cannot borrow or place holds.
func (s *Service) SetMemberStatus(ctx context.Context, req SetMemberStatusRequest) (core.LibraryMember, error) {
	var member core.LibraryMember

	err := s.run(ctx, operationSetMemberStatus, req.LibraryID, req.ActingUserID, func(ctx context.Context) (bool, error) {
		if err := s.auth.Require(ctx, req.ActingUserID, access.LibraryScope(req.LibraryID), access.CapManageMembers); err != nil {
			return false, err
		}

		if !req.Status.Valid() {
			return false, errors.Join(core.ErrInvalidInput, errors.New("unknown member status"))
		}

		var unchanged bool

		err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
			current, err := tx.LockMember(ctx, req.LibraryID, req.MemberID)
			if err != nil {
				return err
			}

			if current.Deleted.IsDeleted {
				return core.ErrNotFound
			}

			if current.Status == req.Status {
				member, unchanged = current, true
				return nil
			}

			current.Status = req.Status
			current.UpdatedAt = s.clock()
			member = current

			return tx.SaveMember(ctx, current)
		})

		return unchanged, err
	})

	return member, err
}

// GetLibrary returns a library to any of its staff.
func (s *Service) GetLibrary(ctx context.Context, libraryID, actingUserID uuid.UUID) (core.Library, error) {
	if err := s.auth.Require(ctx, actingUserID, access.LibraryScope(libraryID), access.CapProcessLoans); err != nil {
		return core.Library{}, err
	}

	var library core.Library

	err := s.store.RunReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		library, err = tx.GetLibrary(ctx, libraryID)

		return err
	})

	return library, err
}

// GetMember returns a live member to any staff of the library.
func (s *Service) GetMember(ctx context.Context, libraryID, memberID, actingUserID uuid.UUID) (core.LibraryMember, error) {
	if err := s.auth.Require(ctx, actingUserID, access.LibraryScope(libraryID), access.CapProcessLoans); err != nil {
		return core.LibraryMember{}, err
	}

	var member core.LibraryMember

	err := s.store.RunReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		member, err = tx.GetMember(ctx, libraryID, memberID)

		return err
	})
	if err != nil {
		return core.LibraryMember{}, err
	}

	if member.Deleted.IsDeleted {
		return core.LibraryMember{}, core.ErrNotFound
	}

	return member, nil
}
