package core

import (
	"time"

	"github.com/google/uuid"
)

// MemberStatus is the membership status. Suspended means an outstanding ban.
type MemberStatus string

const (
	MemberActive    MemberStatus = "active"
	MemberSuspended MemberStatus = "suspended"
	MemberExpired   MemberStatus = "expired"
)

// Valid reports whether s is a known membership status.
func (s MemberStatus) Valid() bool {
	switch s {
	case MemberActive, MemberSuspended, MemberExpired:
		return true
	default:
		return false
	}
}

// MemberStats are the borrowing counters kept on the member row.
type MemberStats struct {
	CurrentLoanCount int
	OverdueCount     int
}

// LibraryMember is a patron of one library. MemberNumber is unique within the library.
type LibraryMember struct {
	ID              uuid.UUID
	LibraryID       uuid.UUID
	MemberNumber    string
	FullName        string
	Email           string
	Status          MemberStatus
	MembershipUntil time.Time
	Stats           MemberStats
	Deleted         SoftDelete
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MayBorrow reports whether the member is allowed to take out loans at the given time.
// A zero MembershipUntil means the membership does not expire.
func (m LibraryMember) MayBorrow(now time.Time) bool {
	if m.Deleted.IsDeleted || m.Status != MemberActive {
		return false
	}

	return m.MembershipUntil.IsZero() || now.Before(m.MembershipUntil)
}
