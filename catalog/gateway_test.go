package catalog_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/circulation-core/access"
	"github.com/AntonStoeckl/circulation-core/catalog"
	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/store/memengine"
	. "github.com/AntonStoeckl/circulation-core/testutil/fixtures" //nolint:revive
)

func givenGateway(t *testing.T) (*catalog.Gateway, *memengine.Store) {
	t.Helper()

	s := memengine.New()
	gateway, err := catalog.NewGateway(s, access.NewEvaluator(access.NewResolver(s)),
		catalog.WithClock(func() time.Time { return FakeClock }),
	)
	require.NoError(t, err)

	return gateway, s
}

func givenAuthor(t *testing.T, gateway *catalog.Gateway, name string) core.Author {
	t.Helper()

	author, err := gateway.SaveAuthor(context.Background(), catalog.AuthorRequest{Name: name, ActingUserID: access.SystemUserID})
	require.NoError(t, err, "error in arranging test data")

	return author
}

func Test_SaveEdition_Normalizes_And_Upserts_By_ISBN(t *testing.T) {
	// setup
	gateway, _ := givenGateway(t)
	author := givenAuthor(t, gateway, "Khononov, Vlad")

	request := catalog.EditionRequest{
		ISBN:            "0-306-40615-2",
		Title:           "  Learning Domain-Driven Design ",
		Publisher:       "O'Reilly Media, Inc.",
		PublicationYear: 2021,
		Language:        "en-US",
		PageCount:       340,
		AuthorIDs:       []uuid.UUID{author.ID, author.ID},
		ActingUserID:    access.SystemUserID,
	}

	// act
	first, firstErr := gateway.SaveEdition(context.Background(), request)
	request.ISBN = "9780306406157"
	request.Subtitle = "Aligning Software Architecture and Business Strategy"
	second, secondErr := gateway.SaveEdition(context.Background(), request)

	// assert
	require.NoError(t, firstErr)
	require.NoError(t, secondErr)
	assert.Equal(t, "9780306406157", first.ISBN13)
	assert.Equal(t, "0306406152", first.ISBN10)
	assert.Equal(t, "Learning Domain-Driven Design", first.Title)
	assert.Equal(t, "en", first.Language)
	assert.Equal(t, []uuid.UUID{author.ID}, first.AuthorIDs)
	assert.Equal(t, "Vlad Khononov", author.Name)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	found, err := gateway.FindEditionByISBN(context.Background(), "0306406152")
	require.NoError(t, err)
	assert.Equal(t, request.Subtitle, found.Subtitle)
}

func Test_SaveEdition_Rejections(t *testing.T) {
	// setup
	gateway, s := givenGateway(t)
	tenant := GivenLibrary(t, s, "LIB-1")

	valid := func() catalog.EditionRequest {
		return catalog.EditionRequest{
			ISBN:            "9780306406157",
			Title:           "Learning Domain-Driven Design",
			PublicationYear: 2021,
			ActingUserID:    tenant.Librarian.UserID,
		}
	}

	testCases := []struct {
		description string
		mutate      func(r *catalog.EditionRequest)
		expectedErr error
	}{
		{
			description: "volunteer lacks manage_catalog",
			mutate:      func(r *catalog.EditionRequest) { r.ActingUserID = tenant.Volunteer.UserID },
			expectedErr: core.ErrNotAuthorized,
		},
		{
			description: "unknown user",
			mutate:      func(r *catalog.EditionRequest) { r.ActingUserID = GivenUniqueID(t) },
			expectedErr: core.ErrNotAuthorized,
		},
		{
			description: "invalid isbn",
			mutate:      func(r *catalog.EditionRequest) { r.ISBN = "9780306406158" },
			expectedErr: core.ErrInvalidInput,
		},
		{
			description: "missing title",
			mutate:      func(r *catalog.EditionRequest) { r.Title = "   " },
			expectedErr: core.ErrInvalidInput,
		},
		{
			description: "title too long",
			mutate:      func(r *catalog.EditionRequest) { r.Title = strings.Repeat("t", 501) },
			expectedErr: core.ErrInvalidInput,
		},
		{
			description: "publisher too long",
			mutate:      func(r *catalog.EditionRequest) { r.Publisher = strings.Repeat("p", 201) },
			expectedErr: core.ErrInvalidInput,
		},
		{
			description: "year before printing",
			mutate:      func(r *catalog.EditionRequest) { r.PublicationYear = 1449 },
			expectedErr: core.ErrInvalidInput,
		},
		{
			description: "year too far ahead",
			mutate:      func(r *catalog.EditionRequest) { r.PublicationYear = FakeClock.Year() + 3 },
			expectedErr: core.ErrInvalidInput,
		},
		{
			description: "negative page count",
			mutate:      func(r *catalog.EditionRequest) { r.PageCount = -1 },
			expectedErr: core.ErrInvalidInput,
		},
		{
			description: "bad language",
			mutate:      func(r *catalog.EditionRequest) { r.Language = "not a language" },
			expectedErr: core.ErrInvalidInput,
		},
		{
			description: "unknown author",
			mutate:      func(r *catalog.EditionRequest) { r.AuthorIDs = []uuid.UUID{GivenUniqueID(t)} },
			expectedErr: core.ErrInvalidInput,
		},
		{
			description: "unknown edition id",
			mutate:      func(r *catalog.EditionRequest) { r.ID = GivenUniqueID(t) },
			expectedErr: core.ErrNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			request := valid()
			tc.mutate(&request)

			// act
			_, err := gateway.SaveEdition(context.Background(), request)

			// assert
			assert.ErrorIs(t, err, tc.expectedErr)

			_, findErr := gateway.FindEditionByISBN(context.Background(), "9780306406157")
			assert.ErrorIs(t, findErr, core.ErrNotFound)
		})
	}

	t.Run("librarian may write", func(t *testing.T) {
		edition, err := gateway.SaveEdition(context.Background(), valid())

		require.NoError(t, err)
		assert.Equal(t, FakeClock.Year()-4, edition.PublicationYear)
	})
}

func Test_SaveEdition_Refuses_To_Move_An_ISBN_To_Another_Edition(t *testing.T) {
	// setup
	gateway, s := givenGateway(t)
	other := GivenEdition(t, s)

	first, err := gateway.SaveEdition(context.Background(), catalog.EditionRequest{
		ISBN:         "9780306406157",
		Title:        "First",
		ActingUserID: access.SystemUserID,
	})
	require.NoError(t, err)

	// act
	_, err = gateway.SaveEdition(context.Background(), catalog.EditionRequest{
		ID:           other.ID,
		ISBN:         first.ISBN13,
		Title:        "Second",
		ActingUserID: access.SystemUserID,
	})

	// assert
	assert.ErrorIs(t, err, core.ErrConflict)
}

func Test_ListEditions_Filters_By_Normalized_Language(t *testing.T) {
	// setup
	gateway, s := givenGateway(t)
	english := GivenEdition(t, s)

	_, err := gateway.SaveEdition(context.Background(), catalog.EditionRequest{
		ISBN:         "9791034306022",
		Title:        "Apprendre le DDD",
		Language:     "fr-FR",
		ActingUserID: access.SystemUserID,
	})
	require.NoError(t, err)

	// act
	editions, err := gateway.ListEditions(context.Background(), core.EditionFilter{Language: "EN"})

	// assert
	require.NoError(t, err)
	require.Len(t, editions, 1)
	assert.Equal(t, english.ID, editions[0].ID)

	_, err = gateway.ListEditions(context.Background(), core.EditionFilter{Language: "not a language"})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func Test_SaveAuthor_Validates_And_Updates(t *testing.T) {
	// setup
	gateway, _ := givenGateway(t)
	author := givenAuthor(t, gateway, "Evans, Eric")

	// act
	updated, updateErr := gateway.SaveAuthor(context.Background(), catalog.AuthorRequest{
		ID:           author.ID,
		Name:         "Eric J. Evans",
		BirthYear:    1962,
		ActingUserID: access.SystemUserID,
	})
	_, blankErr := gateway.SaveAuthor(context.Background(), catalog.AuthorRequest{Name: "  ", ActingUserID: access.SystemUserID})
	_, longErr := gateway.SaveAuthor(context.Background(), catalog.AuthorRequest{Name: strings.Repeat("n", 201), ActingUserID: access.SystemUserID})
	_, anonymousErr := gateway.SaveAuthor(context.Background(), catalog.AuthorRequest{Name: "Anonymous"})

	// assert
	require.NoError(t, updateErr)
	assert.Equal(t, author.ID, updated.ID)

	stored, err := gateway.GetAuthor(context.Background(), author.ID)
	require.NoError(t, err)
	assert.Equal(t, "Eric J. Evans", stored.Name)
	assert.Equal(t, 1962, stored.BirthYear)

	assert.ErrorIs(t, blankErr, core.ErrInvalidInput)
	assert.ErrorIs(t, longErr, core.ErrInvalidInput)
	assert.ErrorIs(t, anonymousErr, core.ErrNotAuthorized)
}
