package core

import (
	"time"

	"github.com/google/uuid"
)

// Role is a staff member's role within one library.
type Role string

const (
	RoleNone      Role = ""
	RoleOwner     Role = "owner"
	RoleManager   Role = "manager"
	RoleLibrarian Role = "librarian"
	RoleVolunteer Role = "volunteer"
)

// Valid reports whether r is an assignable role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleManager, RoleLibrarian, RoleVolunteer:
		return true
	default:
		return false
	}
}

// StaffStatus is the employment status of a staff row.
type StaffStatus string

const (
	StaffActive     StaffStatus = "active"
	StaffInactive   StaffStatus = "inactive"
	StaffTerminated StaffStatus = "terminated"
)

// LibraryStaff binds a user to a library with a role. (UserID, LibraryID) is unique.
type LibraryStaff struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	LibraryID uuid.UUID
	Role      Role
	Status    StaffStatus
	Deleted   SoftDelete
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GrantsAccess reports whether the row may be used for role resolution.
func (s LibraryStaff) GrantsAccess() bool {
	return s.Status == StaffActive && !s.Deleted.IsDeleted && s.Role.Valid()
}
