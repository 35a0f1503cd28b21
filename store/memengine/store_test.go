package memengine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/store"
	"github.com/AntonStoeckl/circulation-core/store/memengine"
	. "github.com/AntonStoeckl/circulation-core/testutil/fixtures" //nolint:revive
)

func Test_RunInTx_Commits_Staged_Writes(t *testing.T) {
	// setup
	ctx := context.Background()
	s := memengine.New()
	tenant := GivenLibrary(t, s, "LIB-1")

	// act
	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		member := core.LibraryMember{ID: GivenUniqueID(t), LibraryID: tenant.Library.ID, MemberNumber: "M1", Status: core.MemberActive}
		if saveErr := tx.SaveMember(ctx, member); saveErr != nil {
			return saveErr
		}

		// read your own writes
		_, getErr := tx.GetMember(ctx, tenant.Library.ID, member.ID)

		return getErr
	})

	// assert
	require.NoError(t, err)
}

func Test_RunInTx_Rolls_Back_When_The_Unit_Fails(t *testing.T) {
	// setup
	ctx := context.Background()
	s := memengine.New()
	tenant := GivenLibrary(t, s, "LIB-1")
	edition := GivenEdition(t, s)
	bookCopy := GivenCopy(t, s, tenant.Library.ID, edition.ID, 1)
	errBoom := errors.New("boom")

	// act
	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		locked, lockErr := tx.LockCopy(ctx, tenant.Library.ID, bookCopy.ID)
		if lockErr != nil {
			return lockErr
		}

		locked.AvailableCopies = 0
		if saveErr := tx.SaveCopy(ctx, locked); saveErr != nil {
			return saveErr
		}

		return errBoom
	})

	// assert
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, ReadCopy(t, s, tenant.Library.ID, bookCopy.ID).AvailableCopies)
}

func Test_RunInTx_Rolls_Back_When_The_Context_Is_Canceled_Before_Commit(t *testing.T) {
	// setup
	s := memengine.New()
	tenant := GivenLibrary(t, s, "LIB-1")
	ctx, cancel := context.WithCancel(context.Background())

	// act
	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		cancel()

		return tx.SaveMember(ctx, core.LibraryMember{ID: GivenUniqueID(t), LibraryID: tenant.Library.ID, MemberNumber: "M1"})
	})

	// assert
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.EventCount())
}

func Test_Getters_Are_Scoped_To_The_Library(t *testing.T) {
	// setup
	ctx := context.Background()
	s := memengine.New()
	tenantA := GivenLibrary(t, s, "LIB-A")
	tenantB := GivenLibrary(t, s, "LIB-B")
	edition := GivenEdition(t, s)
	bookCopy := GivenCopy(t, s, tenantA.Library.ID, edition.ID, 1)
	member := GivenMember(t, s, tenantA.Library.ID, "M1")

	// act
	err := s.RunReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		_, copyErr := tx.GetCopy(ctx, tenantB.Library.ID, bookCopy.ID)
		_, memberErr := tx.GetMember(ctx, tenantB.Library.ID, member.ID)

		return errors.Join(copyErr, memberErr)
	})

	// assert
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func Test_RunReadOnly_Rejects_Writes_And_Locks(t *testing.T) {
	// setup
	ctx := context.Background()
	s := memengine.New()
	tenant := GivenLibrary(t, s, "LIB-1")
	edition := GivenEdition(t, s)
	bookCopy := GivenCopy(t, s, tenant.Library.ID, edition.ID, 1)

	// act
	err := s.RunReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		_, lockErr := tx.LockCopy(ctx, tenant.Library.ID, bookCopy.ID)
		return lockErr
	})

	// assert
	assert.ErrorIs(t, err, memengine.ErrReadOnlyUnit)
}

func Test_Commit_Enforces_Unique_Library_Code(t *testing.T) {
	// setup
	ctx := context.Background()
	s := memengine.New()
	GivenLibrary(t, s, "LIB-1")

	// act
	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SaveLibrary(ctx, core.Library{ID: GivenUniqueID(t), Code: "LIB-1", Name: "dup"})
	})

	// assert
	assert.ErrorIs(t, err, core.ErrConflict)
}

func Test_Commit_Enforces_Unique_Member_Number_Per_Library(t *testing.T) {
	// setup
	ctx := context.Background()
	s := memengine.New()
	tenantA := GivenLibrary(t, s, "LIB-A")
	tenantB := GivenLibrary(t, s, "LIB-B")
	GivenMember(t, s, tenantA.Library.ID, "M1")

	// act
	otherLibraryErr := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SaveMember(ctx, core.LibraryMember{ID: GivenUniqueID(t), LibraryID: tenantB.Library.ID, MemberNumber: "M1"})
	})
	sameLibraryErr := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SaveMember(ctx, core.LibraryMember{ID: GivenUniqueID(t), LibraryID: tenantA.Library.ID, MemberNumber: "M1"})
	})

	// assert
	assert.NoError(t, otherLibraryErr)
	assert.ErrorIs(t, sameLibraryErr, core.ErrConflict)
}

func Test_Commit_Allows_One_Open_Loan_Per_Copy(t *testing.T) {
	// setup
	ctx := context.Background()
	s := memengine.New()
	tenant := GivenLibrary(t, s, "LIB-1")
	edition := GivenEdition(t, s)
	bookCopy := GivenCopy(t, s, tenant.Library.ID, edition.ID, 1)
	members := GivenMembers(t, s, tenant.Library.ID, 2)

	openLoan := func(memberID uuid.UUID) store.TxFunc {
		return func(ctx context.Context, tx store.Tx) error {
			return tx.SaveTransaction(ctx, core.BorrowingTransaction{
				ID:        GivenUniqueID(t),
				LibraryID: tenant.Library.ID,
				CopyID:    bookCopy.ID,
				MemberID:  memberID,
				Type:      core.TransactionCheckout,
				Status:    core.StatusActive,
			})
		}
	}

	// act
	firstErr := s.RunInTx(ctx, openLoan(members[0].ID))
	secondErr := s.RunInTx(ctx, openLoan(members[1].ID))

	// assert
	assert.NoError(t, firstErr)
	assert.ErrorIs(t, secondErr, core.ErrCopyUnavailable)
}

func Test_LockCopy_Times_Out_With_ConcurrentModification(t *testing.T) {
	// setup
	ctx := context.Background()
	s := memengine.New(memengine.WithLockTimeout(20 * time.Millisecond))
	tenant := GivenLibrary(t, s, "LIB-1")
	edition := GivenEdition(t, s)
	bookCopy := GivenCopy(t, s, tenant.Library.ID, edition.ID, 1)

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)

	go func() {
		done <- s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
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
		_, lockErr := tx.LockCopy(ctx, tenant.Library.ID, bookCopy.ID)
		return lockErr
	})

	close(release)

	// assert
	assert.ErrorIs(t, err, core.ErrConcurrentModification)
	assert.NoError(t, <-done)
}

func Test_LockCopy_Is_Reentrant_And_Released_After_The_Unit(t *testing.T) {
	// setup
	ctx := context.Background()
	s := memengine.New(memengine.WithLockTimeout(20 * time.Millisecond))
	tenant := GivenLibrary(t, s, "LIB-1")
	edition := GivenEdition(t, s)
	bookCopy := GivenCopy(t, s, tenant.Library.ID, edition.ID, 1)

	lockTwice := func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockCopy(ctx, tenant.Library.ID, bookCopy.ID); err != nil {
			return err
		}

		_, err := tx.LockCopy(ctx, tenant.Library.ID, bookCopy.ID)

		return err
	}

	// act
	firstErr := s.RunInTx(ctx, lockTwice)
	secondErr := s.RunInTx(ctx, lockTwice)

	// assert
	assert.NoError(t, firstErr)
	assert.NoError(t, secondErr)
}

func Test_ListEditions_Filters_And_Pages(t *testing.T) {
	// setup
	ctx := context.Background()
	s := memengine.New()
	first := GivenEdition(t, s)
	GivenEdition(t, s)

	var byAuthor, paged []core.BookEdition

	// act
	err := s.RunReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		var listErr error

		byAuthor, listErr = tx.ListEditions(ctx, core.EditionFilter{AuthorID: first.AuthorIDs[0]})
		if listErr != nil {
			return listErr
		}

		paged, listErr = tx.ListEditions(ctx, core.EditionFilter{TitlePrefix: "learning", Limit: 1, Offset: 1})

		return listErr
	})

	// assert
	require.NoError(t, err)
	require.Len(t, byAuthor, 1)
	assert.Equal(t, first.ID, byAuthor[0].ID)
	assert.Len(t, paged, 1)
}
