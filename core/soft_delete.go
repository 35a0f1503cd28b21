package core

import (
	"time"

	"github.com/google/uuid"
)

// SoftDelete is the deletion stamp carried by staff, members and copies.
// A zero value means the row is live.
type SoftDelete struct {
	IsDeleted bool
	DeletedAt time.Time
	DeletedBy uuid.UUID
}

// MarkDeleted returns the stamp for a deletion by actor at the given time.
func MarkDeleted(actor uuid.UUID, at time.Time) SoftDelete {
	return SoftDelete{IsDeleted: true, DeletedAt: at.UTC(), DeletedBy: actor}
}

// EntityKind names the soft-deletable entity types.
type EntityKind string

const (
	EntityStaff  EntityKind = "staff"
	EntityMember EntityKind = "member"
	EntityCopy   EntityKind = "copy"
)

// Valid reports whether k is a known soft-deletable kind.
func (k EntityKind) Valid() bool {
	switch k {
	case EntityStaff, EntityMember, EntityCopy:
		return true
	default:
		return false
	}
}
