package inventory_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/inventory"
)

func givenAvailableCopy(t *testing.T) core.BookCopy {
	t.Helper()

	return core.BookCopy{
		ID:              uuid.New(),
		LibraryID:       uuid.New(),
		EditionID:       uuid.New(),
		CopyNumber:      1,
		TotalCopies:     1,
		AvailableCopies: 1,
		Availability:    core.Availability{Status: core.AvailabilityAvailable},
		Status:          core.LifecycleActive,
	}
}

func givenMember(t *testing.T) core.LibraryMember {
	t.Helper()

	return core.LibraryMember{ID: uuid.New(), Status: core.MemberActive}
}

func givenSettings(t *testing.T) core.LibrarySettings {
	t.Helper()

	settings := core.DefaultLibrarySettings()
	settings.LoanPeriodDays = 14
	settings.MaxRenewals = 1
	settings.MaxLoansPerMember = 2

	return settings
}

func Test_Checkout_Success_WhenAllPreconditionsMet(t *testing.T) {
	// arrange
	now := time.Unix(0, 0).UTC()
	bookCopy := givenAvailableCopy(t)
	member := givenMember(t)

	// act
	next, err := inventory.Checkout(bookCopy, member, givenSettings(t), now)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 0, next.AvailableCopies)
	assert.Equal(t, core.AvailabilityBorrowed, next.Availability.Status)
	assert.Equal(t, member.ID, next.Availability.CurrentBorrowerID)
	assert.Equal(t, now.Add(14*24*time.Hour), next.Availability.DueDate)
	assert.NoError(t, next.Validate(1))
	assert.Equal(t, 1, bookCopy.AvailableCopies, "input must not be modified")
}

//nolint:funlen
func Test_Checkout_BusinessErrors(t *testing.T) {
	now := time.Unix(0, 0).UTC()
	member := givenMember(t)

	testCases := []struct {
		name     string
		bookCopy func(core.BookCopy) core.BookCopy
		member   func(core.LibraryMember) core.LibraryMember
		expected error
	}{
		{
			name: "copy borrowed by someone else",
			bookCopy: func(c core.BookCopy) core.BookCopy {
				c.AvailableCopies = 0
				c.Availability = core.Availability{Status: core.AvailabilityBorrowed, CurrentBorrowerID: uuid.New(), DueDate: now}
				return c
			},
			expected: core.ErrCopyUnavailable,
		},
		{
			name: "copy reserved for another member",
			bookCopy: func(c core.BookCopy) core.BookCopy {
				c.Availability = core.Availability{Status: core.AvailabilityOnHold, HoldQueue: []uuid.UUID{uuid.New(), member.ID}}
				return c
			},
			expected: core.ErrCopyUnavailable,
		},
		{
			name: "copy lifecycle is damaged",
			bookCopy: func(c core.BookCopy) core.BookCopy {
				c.Status = core.LifecycleDamaged
				c.Availability.Status = core.AvailabilityMaintenance
				return c
			},
			expected: core.ErrCopyUnavailable,
		},
		{
			name: "copy soft deleted",
			bookCopy: func(c core.BookCopy) core.BookCopy {
				c.Deleted = core.MarkDeleted(uuid.New(), now)
				return c
			},
			expected: core.ErrCopyUnavailable,
		},
		{
			name: "no available copies left",
			bookCopy: func(c core.BookCopy) core.BookCopy {
				c.AvailableCopies = 0
				return c
			},
			expected: core.ErrCapacityExceeded,
		},
		{
			name: "member suspended",
			member: func(m core.LibraryMember) core.LibraryMember {
				m.Status = core.MemberSuspended
				return m
			},
			expected: core.ErrMemberIneligible,
		},
		{
			name: "membership expired",
			member: func(m core.LibraryMember) core.LibraryMember {
				m.MembershipUntil = now.Add(-time.Hour)
				return m
			},
			expected: core.ErrMemberIneligible,
		},
		{
			name: "member at loan cap",
			member: func(m core.LibraryMember) core.LibraryMember {
				m.Stats.CurrentLoanCount = 2
				return m
			},
			expected: core.ErrCapacityExceeded,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			bookCopy := givenAvailableCopy(t)
			if tc.bookCopy != nil {
				bookCopy = tc.bookCopy(bookCopy)
			}

			borrower := member
			if tc.member != nil {
				borrower = tc.member(borrower)
			}

			// act
			next, err := inventory.Checkout(bookCopy, borrower, givenSettings(t), now)

			// assert
			assert.ErrorIs(t, err, tc.expected)
			assert.Equal(t, bookCopy, next, "state must not change on rejection")
		})
	}
}

func Test_Checkout_PickupByQueueHead(t *testing.T) {
	// arrange
	now := time.Unix(0, 0).UTC()
	head, second := givenMember(t), uuid.New()
	bookCopy := givenAvailableCopy(t)
	bookCopy.Availability = core.Availability{Status: core.AvailabilityOnHold, HoldQueue: []uuid.UUID{head.ID, second}}

	// act
	next, err := inventory.Checkout(bookCopy, head, givenSettings(t), now)

	// assert
	require.NoError(t, err)
	assert.Equal(t, core.AvailabilityBorrowed, next.Availability.Status)
	assert.Equal(t, []uuid.UUID{second}, next.Availability.HoldQueue)
}

func Test_Return_RoundTripRestoresCounters(t *testing.T) {
	now := time.Unix(0, 0).UTC()
	bookCopy := givenAvailableCopy(t)

	borrowed, err := inventory.Checkout(bookCopy, givenMember(t), givenSettings(t), now)
	require.NoError(t, err)

	returned, err := inventory.Return(borrowed)
	require.NoError(t, err)

	assert.Equal(t, bookCopy.AvailableCopies, returned.AvailableCopies)
	assert.Equal(t, bookCopy.Availability, returned.Availability)
}

func Test_Return_PromotesQueueHead(t *testing.T) {
	// arrange
	now := time.Unix(0, 0).UTC()
	member2, member3 := uuid.New(), uuid.New()
	bookCopy := givenAvailableCopy(t)
	borrowed, err := inventory.Checkout(bookCopy, givenMember(t), givenSettings(t), now)
	require.NoError(t, err)
	borrowed, _, err = inventory.Hold(borrowed, member2)
	require.NoError(t, err)
	borrowed, _, err = inventory.Hold(borrowed, member3)
	require.NoError(t, err)

	// act
	returned, err := inventory.Return(borrowed)

	// assert
	require.NoError(t, err)
	assert.Equal(t, core.AvailabilityOnHold, returned.Availability.Status)
	assert.False(t, returned.Availability.HasBorrower())
	assert.True(t, returned.Availability.DueDate.IsZero())
	assert.Equal(t, []uuid.UUID{member2, member3}, returned.Availability.HoldQueue)
	head, ok := returned.Availability.ReservedFor()
	assert.True(t, ok)
	assert.Equal(t, member2, head)
	assert.Equal(t, 1, returned.AvailableCopies)
	assert.NoError(t, returned.Validate(0))
}

func Test_Return_IntoMaintenanceWhenLifecycleChanged(t *testing.T) {
	bookCopy := givenAvailableCopy(t)
	borrowed, err := inventory.Checkout(bookCopy, givenMember(t), givenSettings(t), time.Unix(0, 0).UTC())
	require.NoError(t, err)
	borrowed, err = inventory.SetLifecycleStatus(borrowed, core.LifecycleDamaged)
	require.NoError(t, err)
	assert.Equal(t, core.AvailabilityBorrowed, borrowed.Availability.Status, "loan survives lifecycle change")

	returned, err := inventory.Return(borrowed)

	require.NoError(t, err)
	assert.Equal(t, core.AvailabilityMaintenance, returned.Availability.Status)
}

func Test_Return_RejectsCopyNotBorrowed(t *testing.T) {
	_, err := inventory.Return(givenAvailableCopy(t))

	assert.ErrorIs(t, err, core.ErrCopyUnavailable)
}

func Test_Renew(t *testing.T) {
	now := time.Unix(0, 0).UTC()
	settings := givenSettings(t)
	borrowed, err := inventory.Checkout(givenAvailableCopy(t), givenMember(t), settings, now)
	require.NoError(t, err)

	renewed, err := inventory.Renew(borrowed, 0, settings)
	require.NoError(t, err)
	assert.Equal(t, now.Add(28*24*time.Hour), renewed.Availability.DueDate)

	_, err = inventory.Renew(renewed, 1, settings)
	assert.ErrorIs(t, err, core.ErrRenewalLimitReached)

	held, _, err := inventory.Hold(borrowed, uuid.New())
	require.NoError(t, err)
	_, err = inventory.Renew(held, 0, settings)
	assert.ErrorIs(t, err, core.ErrCopyUnavailable, "pending hold blocks renewal")

	_, err = inventory.Renew(givenAvailableCopy(t), 0, settings)
	assert.ErrorIs(t, err, core.ErrCopyUnavailable)
}

func Test_Hold_FIFOAndDuplicates(t *testing.T) {
	// arrange
	now := time.Unix(0, 0).UTC()
	borrower := givenMember(t)
	borrowed, err := inventory.Checkout(givenAvailableCopy(t), borrower, givenSettings(t), now)
	require.NoError(t, err)
	first, second := uuid.New(), uuid.New()

	// act
	held, pos1, err1 := inventory.Hold(borrowed, first)
	held, pos2, err2 := inventory.Hold(held, second)
	_, _, dupErr := inventory.Hold(held, first)
	_, _, borrowerErr := inventory.Hold(held, borrower.ID)

	// assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, 0, pos1)
	assert.Equal(t, 1, pos2)
	assert.Equal(t, []uuid.UUID{first, second}, held.Availability.HoldQueue)
	assert.Equal(t, core.AvailabilityBorrowed, held.Availability.Status)
	assert.ErrorIs(t, dupErr, core.ErrHoldAlreadyPlaced)
	assert.ErrorIs(t, borrowerErr, core.ErrHoldAlreadyPlaced)
}

func Test_Hold_OnAvailableCopyReservesIt(t *testing.T) {
	memberID := uuid.New()

	held, pos, err := inventory.Hold(givenAvailableCopy(t), memberID)

	require.NoError(t, err)
	assert.Equal(t, 0, pos)
	assert.Equal(t, core.AvailabilityOnHold, held.Availability.Status)
	assert.Equal(t, 1, held.AvailableCopies)
	assert.NoError(t, held.Validate(0))
}

func Test_Hold_RejectsLostCopy(t *testing.T) {
	bookCopy := givenAvailableCopy(t)
	bookCopy.Status = core.LifecycleLost

	_, _, err := inventory.Hold(bookCopy, uuid.New())

	assert.ErrorIs(t, err, core.ErrCopyUnavailable)
}

func Test_CancelHold(t *testing.T) {
	first, second := uuid.New(), uuid.New()
	held, _, _ := inventory.Hold(givenAvailableCopy(t), first)
	held, _, _ = inventory.Hold(held, second)

	afterFirst, err := inventory.CancelHold(held, first)
	require.NoError(t, err)
	assert.Equal(t, core.AvailabilityOnHold, afterFirst.Availability.Status)
	head, _ := afterFirst.Availability.ReservedFor()
	assert.Equal(t, second, head)

	afterBoth, err := inventory.CancelHold(afterFirst, second)
	require.NoError(t, err)
	assert.Equal(t, core.AvailabilityAvailable, afterBoth.Availability.Status)
	assert.Empty(t, afterBoth.Availability.HoldQueue)

	_, err = inventory.CancelHold(afterBoth, second)
	assert.ErrorIs(t, err, core.ErrHoldNotFound)
}

func Test_ClearHolds(t *testing.T) {
	first, second := uuid.New(), uuid.New()
	held, _, _ := inventory.Hold(givenAvailableCopy(t), first)
	held, _, _ = inventory.Hold(held, second)

	cleared, removed := inventory.ClearHolds(held)

	assert.Equal(t, []uuid.UUID{first, second}, removed)
	assert.Equal(t, core.AvailabilityAvailable, cleared.Availability.Status)
	assert.Empty(t, cleared.Availability.HoldQueue)
}

func Test_SetLifecycleStatus(t *testing.T) {
	bookCopy := givenAvailableCopy(t)

	inMaintenance, err := inventory.SetLifecycleStatus(bookCopy, core.LifecycleMaintenance)
	require.NoError(t, err)
	assert.Equal(t, core.AvailabilityMaintenance, inMaintenance.Availability.Status)

	_, err = inventory.Checkout(inMaintenance, givenMember(t), givenSettings(t), time.Unix(0, 0).UTC())
	assert.ErrorIs(t, err, core.ErrCopyUnavailable)

	back, err := inventory.SetLifecycleStatus(inMaintenance, core.LifecycleActive)
	require.NoError(t, err)
	assert.Equal(t, core.AvailabilityAvailable, back.Availability.Status)

	_, err = inventory.SetLifecycleStatus(bookCopy, "shredded")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}
