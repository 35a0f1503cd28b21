package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/circulation-core/catalog"
	"github.com/AntonStoeckl/circulation-core/core"
)

func Test_Normalize(t *testing.T) {
	testCases := []struct {
		description    string
		raw            string
		expectedISBN13 string
		expectedISBN10 string
	}{
		{description: "hyphenated isbn-13", raw: "978-0-306-40615-7", expectedISBN13: "9780306406157", expectedISBN10: "0306406152"},
		{description: "isbn-10 with spaces", raw: "0 306 40615 2", expectedISBN13: "9780306406157", expectedISBN10: "0306406152"},
		{description: "isbn-10 with lower-case check character", raw: "080442957x", expectedISBN13: "9780804429573", expectedISBN10: "080442957X"},
		{description: "979 prefix has no isbn-10", raw: "9791034306022", expectedISBN13: "9791034306022", expectedISBN10: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			// act
			isbn13, isbn10, err := catalog.Normalize(tc.raw)

			// assert
			require.NoError(t, err)
			assert.Equal(t, tc.expectedISBN13, isbn13)
			assert.Equal(t, tc.expectedISBN10, isbn10)
		})
	}
}

func Test_Normalize_Rejects_Invalid_Numbers(t *testing.T) {
	for _, raw := range []string{
		"",
		"9780306406158", // wrong check digit
		"9770306406157", // wrong prefix
		"0306406153",
		"03064061X2",
		"978030640615",
	} {
		_, _, err := catalog.Normalize(raw)

		assert.ErrorIs(t, err, core.ErrInvalidInput, raw)
		assert.ErrorIs(t, err, catalog.ErrInvalidISBN, raw)
	}
}

func Test_ISBN10To13_RoundTrips_Through_ISBN13To10(t *testing.T) {
	// act
	isbn13, err := catalog.ISBN10To13("080442957X")
	require.NoError(t, err)
	isbn10, ok := catalog.ISBN13To10(isbn13)

	// assert
	assert.True(t, ok)
	assert.Equal(t, "080442957X", isbn10)
}

func Test_NormalizeLanguage(t *testing.T) {
	code, err := catalog.NormalizeLanguage("en-GB")
	require.NoError(t, err)
	assert.Equal(t, "en", code)

	code, err = catalog.NormalizeLanguage(" DE ")
	require.NoError(t, err)
	assert.Equal(t, "de", code)

	_, err = catalog.NormalizeLanguage("not a language")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func Test_NormalizeAuthorName(t *testing.T) {
	assert.Equal(t, "Vlad Khononov", catalog.NormalizeAuthorName("Khononov, Vlad"))
	assert.Equal(t, "Vlad Khononov", catalog.NormalizeAuthorName("  Vlad   Khononov "))
	assert.Equal(t, "Khononov,", catalog.NormalizeAuthorName("Khononov,"))
	assert.Equal(t, "A, B, C", catalog.NormalizeAuthorName("A, B, C"))
}
