package catalog

import (
	"errors"
	"strings"

	"github.com/AntonStoeckl/circulation-core/core"
)

// ErrInvalidISBN is returned by Normalize for input that is neither a valid ISBN-10 nor ISBN-13.
var ErrInvalidISBN = errors.New("invalid isbn")

// Clean strips hyphens and whitespace and upper-cases the check character.
func Clean(isbn string) string {
	var b strings.Builder

	for _, r := range strings.ToUpper(isbn) {
		switch r {
		case '-', ' ', '\t', '\n', '\r':
			continue
		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}

// ValidISBN10 reports whether a cleaned isbn is a valid ISBN-10 (mod 11, X allowed as check character).
func ValidISBN10(isbn string) bool {
	if len(isbn) != 10 {
		return false
	}

	sum := 0

	for i := range 9 {
		d, ok := digit(isbn[i])
		if !ok {
			return false
		}

		sum += d * (10 - i)
	}

	switch check := isbn[9]; {
	case check == 'X':
		sum += 10
	default:
		d, ok := digit(check)
		if !ok {
			return false
		}

		sum += d
	}

	return sum%11 == 0
}

// ValidISBN13 reports whether a cleaned isbn is a valid 978/979 ISBN-13.
func ValidISBN13(isbn string) bool {
	if len(isbn) != 13 || (!strings.HasPrefix(isbn, "978") && !strings.HasPrefix(isbn, "979")) {
		return false
	}

	check, ok := isbn13CheckDigit(isbn[:12])
	if !ok {
		return false
	}

	last, ok := digit(isbn[12])

	return ok && last == check
}

// ISBN10To13 converts a valid, cleaned ISBN-10 to its 978-prefixed ISBN-13.
func ISBN10To13(isbn10 string) (string, error) {
	if !ValidISBN10(isbn10) {
		return "", ErrInvalidISBN
	}

	body := "978" + isbn10[:9]
	check, _ := isbn13CheckDigit(body)

	return body + string(rune('0'+check)), nil
}

// ISBN13To10 converts a 978-prefixed ISBN-13 back to ISBN-10. 979 numbers have no ISBN-10.
func ISBN13To10(isbn13 string) (string, bool) {
	if !ValidISBN13(isbn13) || !strings.HasPrefix(isbn13, "978") {
		return "", false
	}

	body := isbn13[3:12]
	sum := 0

	for i := range 9 {
		d, _ := digit(body[i])
		sum += d * (10 - i)
	}

	check := (11 - sum%11) % 11
	if check == 10 {
		return body + "X", true
	}

	return body + string(rune('0'+check)), true
}

// Normalize cleans raw and returns the ISBN-13 plus the ISBN-10 where one exists.
func Normalize(raw string) (isbn13, isbn10 string, err error) {
	cleaned := Clean(raw)

	switch {
	case ValidISBN13(cleaned):
		isbn10, _ = ISBN13To10(cleaned)
		return cleaned, isbn10, nil
	case ValidISBN10(cleaned):
		isbn13, _ = ISBN10To13(cleaned)
		return isbn13, cleaned, nil
	default:
		return "", "", errors.Join(core.ErrInvalidInput, ErrInvalidISBN)
	}
}

func isbn13CheckDigit(body string) (int, bool) {
	sum := 0

	for i := range len(body) {
		d, ok := digit(body[i])
		if !ok {
			return 0, false
		}

		if i%2 == 0 {
			sum += d
		} else {
			sum += 3 * d
		}
	}

	return (10 - sum%10) % 10, true
}

func digit(c byte) (int, bool) {
	if c < '0' || c > '9' {
		return 0, false
	}

	return int(c - '0'), true
}
