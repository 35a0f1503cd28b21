package core

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// AvailabilityStatus is the loan-facing state of a copy.
type AvailabilityStatus string

const (
	AvailabilityAvailable   AvailabilityStatus = "available"
	AvailabilityBorrowed    AvailabilityStatus = "borrowed"
	AvailabilityOnHold      AvailabilityStatus = "on_hold"
	AvailabilityMaintenance AvailabilityStatus = "maintenance"
)

// LifecycleStatus is the administrative state of a copy, orthogonal to its loan state.
type LifecycleStatus string

const (
	LifecycleActive      LifecycleStatus = "active"
	LifecycleInactive    LifecycleStatus = "inactive"
	LifecycleDamaged     LifecycleStatus = "damaged"
	LifecycleLost        LifecycleStatus = "lost"
	LifecycleMaintenance LifecycleStatus = "maintenance"
)

// Valid reports whether s is a known lifecycle status.
func (s LifecycleStatus) Valid() bool {
	switch s {
	case LifecycleActive, LifecycleInactive, LifecycleDamaged, LifecycleLost, LifecycleMaintenance:
		return true
	default:
		return false
	}
}

// Availability describes who holds a copy and who waits for it.
// HoldQueue is FIFO: the head is the member the copy is reserved for when Status is on_hold.
type Availability struct {
	Status            AvailabilityStatus
	CurrentBorrowerID uuid.UUID
	DueDate           time.Time
	HoldQueue         []uuid.UUID
}

// HasBorrower reports whether a borrower is recorded.
func (a Availability) HasBorrower() bool {
	return a.CurrentBorrowerID != uuid.Nil
}

// ReservedFor returns the member at the head of the queue while the copy is on hold.
func (a Availability) ReservedFor() (uuid.UUID, bool) {
	if a.Status != AvailabilityOnHold || len(a.HoldQueue) == 0 {
		return uuid.Nil, false
	}

	return a.HoldQueue[0], true
}

// QueuePosition returns the zero based queue position of memberID or -1.
func (a Availability) QueuePosition(memberID uuid.UUID) int {
	return slices.Index(a.HoldQueue, memberID)
}

// Validate rejects availability descriptors that cannot occur.
func (a Availability) Validate() error {
	switch a.Status {
	case AvailabilityBorrowed:
		if !a.HasBorrower() {
			return errors.Join(ErrInvariantViolation, errors.New("borrowed copy without borrower"))
		}

		if a.DueDate.IsZero() {
			return errors.Join(ErrInvariantViolation, errors.New("borrowed copy without due date"))
		}
	case AvailabilityAvailable, AvailabilityOnHold, AvailabilityMaintenance:
		if a.HasBorrower() {
			return errors.Join(ErrInvariantViolation, fmt.Errorf("%s copy with borrower", a.Status))
		}
	default:
		return errors.Join(ErrInvariantViolation, fmt.Errorf("unknown availability status %q", a.Status))
	}

	if a.Status == AvailabilityOnHold && len(a.HoldQueue) == 0 {
		return errors.Join(ErrInvariantViolation, errors.New("copy on hold with empty queue"))
	}

	seen := make(map[uuid.UUID]struct{}, len(a.HoldQueue))
	for _, memberID := range a.HoldQueue {
		if _, dup := seen[memberID]; dup {
			return errors.Join(ErrInvariantViolation, errors.New("member queued twice"))
		}

		seen[memberID] = struct{}{}
	}

	return nil
}

// BookCopy is a physical copy of an edition owned by one library.
type BookCopy struct {
	ID              uuid.UUID
	LibraryID       uuid.UUID
	EditionID       uuid.UUID
	CopyNumber      int
	TotalCopies     int
	AvailableCopies int
	Availability    Availability
	Status          LifecycleStatus
	Location        string
	Condition       string
	Deleted         SoftDelete
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Clone returns a deep copy so transitions never alias the hold queue of their input.
func (c BookCopy) Clone() BookCopy {
	c.Availability.HoldQueue = slices.Clone(c.Availability.HoldQueue)
	return c
}

// Validate checks the invariants that hold for a single copy row.
// openLoans is the number of open loan transactions against the copy.
func (c BookCopy) Validate(openLoans int) error {
	if c.AvailableCopies < 0 || c.AvailableCopies > c.TotalCopies {
		return errors.Join(
			ErrInvariantViolation,
			fmt.Errorf("available copies %d outside [0, %d]", c.AvailableCopies, c.TotalCopies),
		)
	}

	if c.AvailableCopies != c.TotalCopies-openLoans {
		return errors.Join(
			ErrInvariantViolation,
			fmt.Errorf("available copies %d, total %d, open loans %d", c.AvailableCopies, c.TotalCopies, openLoans),
		)
	}

	return c.Availability.Validate()
}
