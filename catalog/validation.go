package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"

	"github.com/AntonStoeckl/circulation-core/core"
)

const (
	maxTitleLength      = 500
	maxSubtitleLength   = 200
	maxPublisherLength  = 200
	maxAuthorNameLength = 200

	minPublicationYear = 1450
	maxYearsAhead      = 2
)

// NewValidator returns a validator with the catalog's custom tags registered:
// isbn (ISBN-10 or ISBN-13, formatting allowed) and langcode (a parseable BCP-47 tag).
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Both registrations only fail for empty or reserved tag names.
	_ = v.RegisterValidation("isbn", func(fl validator.FieldLevel) bool {
		_, _, err := Normalize(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("langcode", func(fl validator.FieldLevel) bool {
		_, err := NormalizeLanguage(fl.Field().String())
		return err == nil
	})

	return v
}

// NormalizeLanguage reduces a language tag to its lower-case base code, e.g. "en-GB" to "en".
func NormalizeLanguage(raw string) (string, error) {
	tag, err := language.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", errors.Join(core.ErrInvalidInput, err)
	}

	base, confidence := tag.Base()
	if confidence == language.No {
		return "", errors.Join(core.ErrInvalidInput, fmt.Errorf("unknown language %q", raw))
	}

	return base.String(), nil
}

// NormalizeAuthorName trims and collapses whitespace and turns "Last, First" into "First Last".
func NormalizeAuthorName(raw string) string {
	name := strings.Join(strings.Fields(raw), " ")

	parts := strings.Split(name, ",")
	if len(parts) == 2 {
		last, first := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if last != "" && first != "" {
			return first + " " + last
		}
	}

	return name
}

// invalid wraps a validator error so callers can match core.ErrInvalidInput.
func invalid(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return errors.Join(core.ErrInvalidInput, err)
	}

	fields := make([]string, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		fields = append(fields, fieldErr.Field()+":"+fieldErr.Tag())
	}

	return errors.Join(core.ErrInvalidInput, fmt.Errorf("invalid fields %s", strings.Join(fields, ", ")))
}
