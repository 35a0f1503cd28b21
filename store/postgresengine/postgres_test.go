package postgresengine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/circulation-core/access"
	"github.com/AntonStoeckl/circulation-core/circulation"
	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/shell"
	"github.com/AntonStoeckl/circulation-core/store"
	"github.com/AntonStoeckl/circulation-core/store/postgresengine"
	. "github.com/AntonStoeckl/circulation-core/testutil/fixtures" //nolint:revive
	"github.com/AntonStoeckl/circulation-core/testutil/pgtest"
)

// uniqueCode keeps library codes apart across runs against the same database.
func uniqueCode(t *testing.T) string {
	return "PG-" + GivenUniqueID(t).String()[24:]
}

func Test_RunInTx_Commits_And_Reads_Back_Every_Entity(t *testing.T) {
	// setup
	ctx := context.Background()
	s := pgtest.NewStore(t)
	tenant := GivenLibrary(t, s, uniqueCode(t))
	edition := GivenEdition(t, s)
	bookCopy := GivenCopy(t, s, tenant.Library.ID, edition.ID, 1)
	member := GivenMember(t, s, tenant.Library.ID, "M-1")

	// act
	var (
		library    core.Library
		staff      core.LibraryStaff
		readCopy   core.BookCopy
		readMember core.LibraryMember
		readEd     core.BookEdition
	)

	err := s.RunReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error

		if library, err = tx.GetLibraryByCode(ctx, tenant.Library.Code); err != nil {
			return err
		}

		if staff, err = tx.GetStaff(ctx, tenant.Library.ID, tenant.Librarian.UserID); err != nil {
			return err
		}

		if readCopy, err = tx.GetCopy(ctx, tenant.Library.ID, bookCopy.ID); err != nil {
			return err
		}

		if readMember, err = tx.GetMember(ctx, tenant.Library.ID, member.ID); err != nil {
			return err
		}

		readEd, err = tx.FindEditionByISBN(ctx, edition.ISBN13)

		return err
	})

	// assert
	require.NoError(t, err)
	assert.Equal(t, tenant.Library, library)
	assert.Equal(t, tenant.Librarian, staff)
	assert.Equal(t, bookCopy, readCopy)
	assert.Equal(t, member, readMember)
	assert.Equal(t, edition, readEd)
}

func Test_RunInTx_Rolls_Back_When_The_Unit_Fails(t *testing.T) {
	// setup
	ctx := context.Background()
	s := pgtest.NewStore(t)
	tenant := GivenLibrary(t, s, uniqueCode(t))
	edition := GivenEdition(t, s)
	bookCopy := GivenCopy(t, s, tenant.Library.ID, edition.ID, 1)
	errBoom := errors.New("boom")

	// act
	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		locked, lockErr := tx.LockCopy(ctx, tenant.Library.ID, bookCopy.ID)
		if lockErr != nil {
			return lockErr
		}

		locked.Location = "moved"
		if saveErr := tx.SaveCopy(ctx, locked); saveErr != nil {
			return saveErr
		}

		return errBoom
	})

	// assert
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, "A-1", ReadCopy(t, s, tenant.Library.ID, bookCopy.ID).Location)
}

func Test_Getters_Are_Scoped_To_The_Library(t *testing.T) {
	// setup
	ctx := context.Background()
	s := pgtest.NewStore(t)
	tenantA := GivenLibrary(t, s, uniqueCode(t))
	tenantB := GivenLibrary(t, s, uniqueCode(t))
	edition := GivenEdition(t, s)
	bookCopy := GivenCopy(t, s, tenantA.Library.ID, edition.ID, 1)

	// act
	err := s.RunReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetCopy(ctx, tenantB.Library.ID, bookCopy.ID)
		return err
	})

	// assert
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func Test_RunReadOnly_Rejects_Locks(t *testing.T) {
	// setup
	ctx := context.Background()
	s := pgtest.NewStore(t)
	tenant := GivenLibrary(t, s, uniqueCode(t))
	edition := GivenEdition(t, s)
	bookCopy := GivenCopy(t, s, tenant.Library.ID, edition.ID, 1)

	// act
	err := s.RunReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.LockCopy(ctx, tenant.Library.ID, bookCopy.ID)
		return err
	})

	// assert
	assert.ErrorIs(t, err, postgresengine.ErrReadOnlyUnit)
}

func Test_LockCopy_Contention_Surfaces_As_ConcurrentModification(t *testing.T) {
	// setup
	ctx := context.Background()
	s := pgtest.NewStore(t, postgresengine.WithLockTimeout(50*time.Millisecond))
	tenant := GivenLibrary(t, s, uniqueCode(t))
	edition := GivenEdition(t, s)
	bookCopy := GivenCopy(t, s, tenant.Library.ID, edition.ID, 1)

	locked := make(chan struct{})
	release := make(chan struct{})

	var holderErr error

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()

		holderErr = s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
			if _, err := tx.LockCopy(ctx, tenant.Library.ID, bookCopy.ID); err != nil {
				return err
			}

			close(locked)
			<-release

			return nil
		})
	}()

	<-locked

	// act
	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.LockCopy(ctx, tenant.Library.ID, bookCopy.ID)
		return err
	})

	close(release)
	wg.Wait()

	// assert
	assert.ErrorIs(t, err, core.ErrConcurrentModification)
	assert.NoError(t, holderErr)
}

func Test_SaveTransaction_Second_Open_Loan_Is_CopyUnavailable(t *testing.T) {
	// setup
	ctx := context.Background()
	s := pgtest.NewStore(t)
	tenant := GivenLibrary(t, s, uniqueCode(t))
	edition := GivenEdition(t, s)
	bookCopy := GivenCopy(t, s, tenant.Library.ID, edition.ID, 1)
	members := GivenMembers(t, s, tenant.Library.ID, 2)

	loan := func(memberID uuid.UUID) core.BorrowingTransaction {
		return core.BorrowingTransaction{
			ID:              GivenUniqueID(t),
			LibraryID:       tenant.Library.ID,
			CopyID:          bookCopy.ID,
			MemberID:        memberID,
			Type:            core.TransactionCheckout,
			Status:          core.StatusActive,
			TransactionDate: FakeClock,
			DueDate:         FakeClock.Add(14 * 24 * time.Hour),
			CreatedAt:       FakeClock,
			UpdatedAt:       FakeClock,
		}
	}

	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SaveTransaction(ctx, loan(members[0].ID))
	}))

	// act
	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SaveTransaction(ctx, loan(members[1].ID))
	})

	// assert
	assert.ErrorIs(t, err, core.ErrCopyUnavailable)
}

func Test_SaveCopy_Check_Constraint_Is_InvariantViolation(t *testing.T) {
	// setup
	ctx := context.Background()
	s := pgtest.NewStore(t)
	tenant := GivenLibrary(t, s, uniqueCode(t))
	edition := GivenEdition(t, s)
	bookCopy := GivenCopy(t, s, tenant.Library.ID, edition.ID, 1)

	// act
	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		broken := bookCopy
		broken.AvailableCopies = 2

		return tx.SaveCopy(ctx, broken)
	})

	// assert
	assert.ErrorIs(t, err, core.ErrInvariantViolation)
}

func Test_SaveLibrary_Duplicate_Code_Is_Conflict(t *testing.T) {
	// setup
	ctx := context.Background()
	s := pgtest.NewStore(t)
	tenant := GivenLibrary(t, s, uniqueCode(t))

	// act
	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		other := tenant.Library
		other.ID = GivenUniqueID(t)

		return tx.SaveLibrary(ctx, other)
	})

	// assert
	assert.ErrorIs(t, err, core.ErrConflict)
}

func Test_HoldQueue_And_Events_Round_Trip(t *testing.T) {
	// setup
	ctx := context.Background()
	s := pgtest.NewStore(t)
	tenant := GivenLibrary(t, s, uniqueCode(t))
	edition := GivenEdition(t, s)
	bookCopy := GivenCopy(t, s, tenant.Library.ID, edition.ID, 1)
	members := GivenMembers(t, s, tenant.Library.ID, 2)

	hold := core.BorrowingTransaction{
		ID:              GivenUniqueID(t),
		LibraryID:       tenant.Library.ID,
		CopyID:          bookCopy.ID,
		MemberID:        members[1].ID,
		Type:            core.TransactionHold,
		Status:          core.StatusActive,
		TransactionDate: FakeClock,
		CreatedAt:       FakeClock,
		UpdatedAt:       FakeClock,
	}

	event, err := core.BuildTransactionEvent(
		shell.NewULIDGenerator()(FakeClock), hold, core.EventHoldPlaced, uuid.Nil, FakeClock, core.EventPayload{},
	)
	require.NoError(t, err)

	// act
	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		locked, err := tx.LockCopy(ctx, tenant.Library.ID, bookCopy.ID)
		if err != nil {
			return err
		}

		locked.Availability.HoldQueue = []uuid.UUID{members[1].ID, members[0].ID}
		if err := tx.SaveCopy(ctx, locked); err != nil {
			return err
		}

		if err := tx.SaveTransaction(ctx, hold); err != nil {
			return err
		}

		return tx.AppendEvent(ctx, event)
	}))

	// assert
	assert.Equal(t, []uuid.UUID{members[1].ID, members[0].ID}, ReadCopy(t, s, tenant.Library.ID, bookCopy.ID).Availability.HoldQueue)

	events := ReadEvents(t, s, tenant.Library.ID, hold.ID)
	require.Len(t, events, 1)
	assert.Equal(t, event.ID, events[0].ID)
	assert.Equal(t, core.EventHoldPlaced, events[0].EventType)
	assert.Equal(t, uuid.Nil, events[0].StaffID)

	require.NoError(t, s.RunReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		found, err := tx.FindOpenHold(ctx, tenant.Library.ID, bookCopy.ID, members[1].ID)
		assert.Equal(t, hold.ID, found.ID)

		return err
	}))
}

func Test_ListEditions_Filters_By_Author_And_Title_Prefix(t *testing.T) {
	// setup
	ctx := context.Background()
	s := pgtest.NewStore(t)
	edition := GivenEdition(t, s)

	// act
	var editions []core.BookEdition

	err := s.RunReadOnly(store.WithEventualConsistency(ctx), func(ctx context.Context, tx store.Tx) error {
		var err error
		editions, err = tx.ListEditions(ctx, core.EditionFilter{TitlePrefix: "learning domain", AuthorID: edition.AuthorIDs[0]})

		return err
	})

	// assert
	require.NoError(t, err)
	require.Len(t, editions, 1)
	assert.Equal(t, edition, editions[0])
}

func Test_Engine_ConcurrentCheckouts_Against_PostgreSQL_ExactlyOneSucceeds(t *testing.T) {
	// setup
	s := pgtest.NewStore(t, postgresengine.WithLockTimeout(2*time.Second))
	tenant := GivenLibrary(t, s, uniqueCode(t))
	edition := GivenEdition(t, s)
	bookCopy := GivenCopy(t, s, tenant.Library.ID, edition.ID, 1)
	members := GivenMembers(t, s, tenant.Library.ID, 8)

	engine, err := circulation.NewEngine(
		s,
		access.NewEvaluator(access.NewResolver(s)),
		circulation.WithRetryOptions(shell.WithBaseDelay(5*time.Millisecond)),
	)
	require.NoError(t, err)

	// act
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)

	for _, member := range members {
		wg.Add(1)

		go func(memberID uuid.UUID) {
			defer wg.Done()

			_, _, checkoutErr := engine.Checkout(context.Background(), circulation.CheckoutRequest{
				LibraryID:    tenant.Library.ID,
				CopyID:       bookCopy.ID,
				MemberID:     memberID,
				ActingUserID: tenant.Librarian.UserID,
			})

			mu.Lock()
			defer mu.Unlock()

			switch {
			case checkoutErr == nil:
				succeeded++
			case errors.Is(checkoutErr, core.ErrCopyUnavailable):
				rejected++
			}
		}(member.ID)
	}

	wg.Wait()

	// assert
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, len(members)-1, rejected)
	assert.Equal(t, 0, ReadCopy(t, s, tenant.Library.ID, bookCopy.ID).AvailableCopies)
}
