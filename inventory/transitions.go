package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-core/core"
)

const (
	failureReasonNotInService    = "copy is not in service"
	failureReasonBorrowed        = "copy is borrowed"
	failureReasonReservedOther   = "copy is reserved for another member"
	failureReasonMaintenance     = "copy is in maintenance"
	failureReasonNoCopiesLeft    = "no available copies left"
	failureReasonLoanCapReached  = "member reached the loan cap"
	failureReasonNotBorrowed     = "copy is not borrowed"
	failureReasonHoldPending     = "copy has pending holds"
	failureReasonBorrowerHolds   = "member already borrows this copy"
	failureReasonAlreadyQueued   = "member is already queued"
	failureReasonMemberNotQueued = "member is not queued"
)

func reject(sentinel error, reason string) error {
	return errors.Join(sentinel, errors.New(reason))
}

// Checkout lends c to member. The copy must be active and either available or on hold for
// this member, the member must be allowed to borrow and below the library's loan cap.
// An available copy without available copies fails with core.ErrCapacityExceeded; it never
// queues the member.
func Checkout(c core.BookCopy, member core.LibraryMember, settings core.LibrarySettings, now time.Time) (core.BookCopy, error) {
	if c.Deleted.IsDeleted || c.Status != core.LifecycleActive {
		return c, reject(core.ErrCopyUnavailable, failureReasonNotInService)
	}

	switch c.Availability.Status {
	case core.AvailabilityAvailable:
	case core.AvailabilityOnHold:
		if reservedFor, _ := c.Availability.ReservedFor(); reservedFor != member.ID {
			return c, reject(core.ErrCopyUnavailable, failureReasonReservedOther)
		}
	case core.AvailabilityBorrowed:
		return c, reject(core.ErrCopyUnavailable, failureReasonBorrowed)
	default:
		return c, reject(core.ErrCopyUnavailable, failureReasonMaintenance)
	}

	if c.AvailableCopies <= 0 {
		return c, reject(core.ErrCapacityExceeded, failureReasonNoCopiesLeft)
	}

	if !member.MayBorrow(now) {
		return c, core.ErrMemberIneligible
	}

	if member.Stats.CurrentLoanCount >= settings.MaxLoansPerMember {
		return c, reject(core.ErrCapacityExceeded, failureReasonLoanCapReached)
	}

	next := c.Clone()
	next.AvailableCopies--
	next.Availability = core.Availability{
		Status:            core.AvailabilityBorrowed,
		CurrentBorrowerID: member.ID,
		DueDate:           now.Add(settings.LoanPeriod()).UTC(),
		HoldQueue:         removeMember(next.Availability.HoldQueue, member.ID),
	}

	return next, nil
}

// Return takes c back. With members queued the copy goes on hold for the queue head,
// otherwise it becomes available again, or maintenance if it left active service meanwhile.
func Return(c core.BookCopy) (core.BookCopy, error) {
	if c.Availability.Status != core.AvailabilityBorrowed {
		return c, reject(core.ErrCopyUnavailable, failureReasonNotBorrowed)
	}

	next := c.Clone()
	next.AvailableCopies++
	next.Availability.CurrentBorrowerID = uuid.Nil
	next.Availability.DueDate = time.Time{}
	next.Availability.Status = idleStatus(next)

	return next, nil
}

// Renew extends the due date of a borrowed copy by one loan period.
// renewalCount is the number of renewals the open loan already had.
func Renew(c core.BookCopy, renewalCount int, settings core.LibrarySettings) (core.BookCopy, error) {
	if c.Availability.Status != core.AvailabilityBorrowed {
		return c, reject(core.ErrCopyUnavailable, failureReasonNotBorrowed)
	}

	if renewalCount >= settings.MaxRenewals {
		return c, core.ErrRenewalLimitReached
	}

	if len(c.Availability.HoldQueue) > 0 {
		return c, reject(core.ErrCopyUnavailable, failureReasonHoldPending)
	}

	next := c.Clone()
	next.Availability.DueDate = c.Availability.DueDate.Add(settings.LoanPeriod())

	return next, nil
}

// Hold appends memberID to the FIFO hold queue and returns the zero based queue position.
// A hold on an idle available copy reserves it for the member right away.
func Hold(c core.BookCopy, memberID uuid.UUID) (core.BookCopy, int, error) {
	if c.Deleted.IsDeleted || c.Status == core.LifecycleLost || c.Status == core.LifecycleInactive {
		return c, -1, reject(core.ErrCopyUnavailable, failureReasonNotInService)
	}

	if c.Availability.CurrentBorrowerID == memberID {
		return c, -1, reject(core.ErrHoldAlreadyPlaced, failureReasonBorrowerHolds)
	}

	if c.Availability.QueuePosition(memberID) >= 0 {
		return c, -1, reject(core.ErrHoldAlreadyPlaced, failureReasonAlreadyQueued)
	}

	next := c.Clone()
	next.Availability.HoldQueue = append(next.Availability.HoldQueue, memberID)

	if next.Availability.Status == core.AvailabilityAvailable {
		next.Availability.Status = core.AvailabilityOnHold
	}

	return next, len(next.Availability.HoldQueue) - 1, nil
}

// CancelHold removes memberID from the queue. The remaining order is preserved; when the
// reserved head leaves, the next member becomes the head.
func CancelHold(c core.BookCopy, memberID uuid.UUID) (core.BookCopy, error) {
	if c.Availability.QueuePosition(memberID) < 0 {
		return c, reject(core.ErrHoldNotFound, failureReasonMemberNotQueued)
	}

	next := c.Clone()
	next.Availability.HoldQueue = removeMember(next.Availability.HoldQueue, memberID)

	if next.Availability.Status == core.AvailabilityOnHold {
		next.Availability.Status = idleStatus(next)
	}

	return next, nil
}

// ClearHolds empties the queue, returning the removed members in queue order.
func ClearHolds(c core.BookCopy) (core.BookCopy, []uuid.UUID) {
	next := c.Clone()
	removed := next.Availability.HoldQueue
	next.Availability.HoldQueue = nil

	if next.Availability.Status == core.AvailabilityOnHold {
		next.Availability.Status = idleStatus(next)
	}

	return next, removed
}

// SetLifecycleStatus changes the administrative status. An idle copy leaving active service
// goes into maintenance and comes back as available or on hold; a borrowed copy keeps its loan.
func SetLifecycleStatus(c core.BookCopy, status core.LifecycleStatus) (core.BookCopy, error) {
	if !status.Valid() {
		return c, errors.Join(core.ErrInvalidInput, fmt.Errorf("unknown lifecycle status %q", status))
	}

	next := c.Clone()
	next.Status = status

	if next.Availability.Status != core.AvailabilityBorrowed {
		next.Availability.Status = idleStatus(next)
	}

	return next, nil
}

// idleStatus is the availability of a copy nobody borrows.
func idleStatus(c core.BookCopy) core.AvailabilityStatus {
	switch {
	case c.Status != core.LifecycleActive:
		return core.AvailabilityMaintenance
	case len(c.Availability.HoldQueue) > 0:
		return core.AvailabilityOnHold
	default:
		return core.AvailabilityAvailable
	}
}

// removeMember returns queue without memberID, nil when nothing is left.
func removeMember(queue []uuid.UUID, memberID uuid.UUID) []uuid.UUID {
	var out []uuid.UUID

	for _, id := range queue {
		if id != memberID {
			out = append(out, id)
		}
	}

	return out
}
