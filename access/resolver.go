package access

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/store"
)

// SystemUserID is the service identity used by the enrichment collaborator and background jobs.
// It bypasses role resolution and holds every capability.
var SystemUserID = uuid.MustParse("00000000-0000-0000-0000-00000000c0de")

// IsSystem reports whether userID is the system identity.
func IsSystem(userID uuid.UUID) bool {
	return userID == SystemUserID
}

// RoleResolver looks up roles. Absence of a role is (core.RoleNone, false, nil), not an error.
type RoleResolver interface {
	ResolveRole(ctx context.Context, userID, libraryID uuid.UUID) (core.Role, bool, error)
	RolesAnywhere(ctx context.Context, userID uuid.UUID) ([]core.Role, error)
}

// Resolver resolves roles from active, non-deleted staff rows.
type Resolver struct {
	store store.Store
}

// NewResolver creates a Resolver reading from s.
func NewResolver(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// ResolveRole returns the user's role in the library.
func (r *Resolver) ResolveRole(ctx context.Context, userID, libraryID uuid.UUID) (core.Role, bool, error) {
	var staff core.LibraryStaff

	err := r.store.RunReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		var getErr error
		staff, getErr = tx.GetStaff(ctx, libraryID, userID)

		return getErr
	})

	if errors.Is(err, core.ErrNotFound) {
		return core.RoleNone, false, nil
	}

	if err != nil {
		return core.RoleNone, false, err
	}

	if !staff.GrantsAccess() {
		return core.RoleNone, false, nil
	}

	return staff.Role, true, nil
}

// RolesAnywhere returns the roles the user holds across all libraries.
func (r *Resolver) RolesAnywhere(ctx context.Context, userID uuid.UUID) ([]core.Role, error) {
	var rows []core.LibraryStaff

	err := r.store.RunReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		var listErr error
		rows, listErr = tx.ListStaffByUser(ctx, userID)

		return listErr
	})
	if err != nil {
		return nil, err
	}

	roles := make([]core.Role, 0, len(rows))

	for _, staff := range rows {
		if staff.GrantsAccess() {
			roles = append(roles, staff.Role)
		}
	}

	return roles, nil
}
