package fixtures

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/store"
)

// FakeClock is the fixed instant fixtures are stamped with.
var FakeClock = time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)

// Tenant is a seeded library with one active staff user per role.
type Tenant struct {
	Library   core.Library
	Owner     core.LibraryStaff
	Manager   core.LibraryStaff
	Librarian core.LibraryStaff
	Volunteer core.LibraryStaff
}

// StaffFor returns the staff row seeded for role.
func (t Tenant) StaffFor(role core.Role) core.LibraryStaff {
	switch role {
	case core.RoleOwner:
		return t.Owner
	case core.RoleManager:
		return t.Manager
	case core.RoleLibrarian:
		return t.Librarian
	default:
		return t.Volunteer
	}
}

// GivenUniqueID returns a fresh time-ordered id.
func GivenUniqueID(t testing.TB) uuid.UUID {
	id, err := uuid.NewV7()
	require.NoError(t, err, "error in arranging test data")

	return id
}

func save(t testing.TB, s store.Store, fn store.TxFunc) {
	t.Helper()

	require.NoError(t, s.RunInTx(context.Background(), fn), "error in arranging test data")
}

// GivenLibrary seeds a library with default settings and one staff row per role.
func GivenLibrary(t testing.TB, s store.Store, code string) Tenant {
	t.Helper()

	library := core.Library{
		ID:        GivenUniqueID(t),
		Code:      code,
		Name:      "Library " + code,
		Settings:  core.DefaultLibrarySettings(),
		CreatedAt: FakeClock,
		UpdatedAt: FakeClock,
	}

	tenant := Tenant{Library: library}
	tenant.Owner = buildStaff(t, library.ID, core.RoleOwner)
	tenant.Manager = buildStaff(t, library.ID, core.RoleManager)
	tenant.Librarian = buildStaff(t, library.ID, core.RoleLibrarian)
	tenant.Volunteer = buildStaff(t, library.ID, core.RoleVolunteer)

	save(t, s, func(ctx context.Context, tx store.Tx) error {
		if err := tx.SaveLibrary(ctx, library); err != nil {
			return err
		}

		for _, staff := range []core.LibraryStaff{tenant.Owner, tenant.Manager, tenant.Librarian, tenant.Volunteer} {
			if err := tx.SaveStaff(ctx, staff); err != nil {
				return err
			}
		}

		return nil
	})

	return tenant
}

func buildStaff(t testing.TB, libraryID uuid.UUID, role core.Role) core.LibraryStaff {
	return core.LibraryStaff{
		ID:        GivenUniqueID(t),
		UserID:    GivenUniqueID(t),
		LibraryID: libraryID,
		Role:      role,
		Status:    core.StaffActive,
		CreatedAt: FakeClock,
		UpdatedAt: FakeClock,
	}
}

// GivenStaff seeds an additional staff row for userID.
func GivenStaff(t testing.TB, s store.Store, libraryID, userID uuid.UUID, role core.Role) core.LibraryStaff {
	t.Helper()

	staff := buildStaff(t, libraryID, role)
	staff.UserID = userID

	save(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.SaveStaff(ctx, staff)
	})

	return staff
}

// GivenMember seeds an active member without expiry.
func GivenMember(t testing.TB, s store.Store, libraryID uuid.UUID, memberNumber string) core.LibraryMember {
	t.Helper()

	member := core.LibraryMember{
		ID:           GivenUniqueID(t),
		LibraryID:    libraryID,
		MemberNumber: memberNumber,
		FullName:     "Reader " + memberNumber,
		Email:        "reader" + memberNumber + "@example.org",
		Status:       core.MemberActive,
		CreatedAt:    FakeClock,
		UpdatedAt:    FakeClock,
	}

	save(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.SaveMember(ctx, member)
	})

	return member
}

// GivenMembers seeds n members numbered M0001, M0002, ...
func GivenMembers(t testing.TB, s store.Store, libraryID uuid.UUID, n int) []core.LibraryMember {
	t.Helper()

	members := make([]core.LibraryMember, 0, n)
	for i := 1; i <= n; i++ {
		members = append(members, GivenMember(t, s, libraryID, fmt.Sprintf("M%04d", i)))
	}

	return members
}

// GivenISBN13 returns a random valid 978-prefixed ISBN-13.
func GivenISBN13() string {
	digits := "978" + fmt.Sprintf("%09d", rand.IntN(1_000_000_000))

	sum := 0
	for i, r := range digits {
		weight := 1
		if i%2 == 1 {
			weight = 3
		}

		sum += int(r-'0') * weight
	}

	return digits + strconv.Itoa((10-sum%10)%10)
}

// GivenEdition seeds a catalog edition of "Learning Domain-Driven Design" with a random ISBN.
func GivenEdition(t testing.TB, s store.Store) core.BookEdition {
	t.Helper()

	author := core.Author{
		ID:        GivenUniqueID(t),
		Name:      "Vlad Khononov",
		CreatedAt: FakeClock,
		UpdatedAt: FakeClock,
	}

	edition := core.BookEdition{
		ID:              GivenUniqueID(t),
		ISBN13:          GivenISBN13(),
		Title:           "Learning Domain-Driven Design",
		Publisher:       "O'Reilly Media, Inc.",
		PublicationYear: 2021,
		Language:        "en",
		PageCount:       340,
		AuthorIDs:       []uuid.UUID{author.ID},
		CreatedAt:       FakeClock,
		UpdatedAt:       FakeClock,
	}

	save(t, s, func(ctx context.Context, tx store.Tx) error {
		if err := tx.SaveAuthor(ctx, author); err != nil {
			return err
		}

		return tx.SaveEdition(ctx, edition)
	})

	return edition
}

// GivenCopy seeds an active, available single copy of editionID.
func GivenCopy(t testing.TB, s store.Store, libraryID, editionID uuid.UUID, copyNumber int) core.BookCopy {
	t.Helper()

	bookCopy := core.BookCopy{
		ID:              GivenUniqueID(t),
		LibraryID:       libraryID,
		EditionID:       editionID,
		CopyNumber:      copyNumber,
		TotalCopies:     1,
		AvailableCopies: 1,
		Availability:    core.Availability{Status: core.AvailabilityAvailable},
		Status:          core.LifecycleActive,
		Location:        "A-1",
		Condition:       "good",
		CreatedAt:       FakeClock,
		UpdatedAt:       FakeClock,
	}

	save(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.SaveCopy(ctx, bookCopy)
	})

	return bookCopy
}

// ReadCopy loads a committed copy.
func ReadCopy(t testing.TB, s store.Store, libraryID, copyID uuid.UUID) core.BookCopy {
	t.Helper()

	var bookCopy core.BookCopy

	require.NoError(t, s.RunReadOnly(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		bookCopy, err = tx.GetCopy(ctx, libraryID, copyID)

		return err
	}))

	return bookCopy
}

// ReadMember loads a committed member.
func ReadMember(t testing.TB, s store.Store, libraryID, memberID uuid.UUID) core.LibraryMember {
	t.Helper()

	var member core.LibraryMember

	require.NoError(t, s.RunReadOnly(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		member, err = tx.GetMember(ctx, libraryID, memberID)

		return err
	}))

	return member
}

// ReadStaff loads a committed staff row by its id, deleted or not.
func ReadStaff(t testing.TB, s store.Store, libraryID, staffID uuid.UUID) core.LibraryStaff {
	t.Helper()

	var staff core.LibraryStaff

	require.NoError(t, s.RunReadOnly(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		staff, err = tx.GetStaffByID(ctx, libraryID, staffID)

		return err
	}))

	return staff
}

// ReadTransaction loads a committed borrowing transaction.
func ReadTransaction(t testing.TB, s store.Store, libraryID, transactionID uuid.UUID) core.BorrowingTransaction {
	t.Helper()

	var transaction core.BorrowingTransaction

	require.NoError(t, s.RunReadOnly(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		transaction, err = tx.GetTransaction(ctx, libraryID, transactionID)

		return err
	}))

	return transaction
}

// ReadEvents loads the audit trail of a transaction.
func ReadEvents(t testing.TB, s store.Store, libraryID, transactionID uuid.UUID) []core.TransactionEvent {
	t.Helper()

	var events []core.TransactionEvent

	require.NoError(t, s.RunReadOnly(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		events, err = tx.ListEvents(ctx, libraryID, transactionID)

		return err
	}))

	return events
}
