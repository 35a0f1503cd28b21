package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-core/access"
	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/shell"
	"github.com/AntonStoeckl/circulation-core/store"
)

const (
	operationSaveEdition = "save_edition"
	operationSaveAuthor  = "save_author"
)

// ErrNilLogger is returned when a nil logger is provided to WithLogger.
var ErrNilLogger = errors.New("logger must not be nil")

// Gateway reads and writes the shared catalog.
type Gateway struct {
	store    store.Store
	auth     access.Authorizer
	validate *validator.Validate
	observer shell.Observer
	now      func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway) error

// WithLogger sets the logger for write outcomes.
func WithLogger(logger shell.Logger) Option {
	return func(g *Gateway) error {
		if logger == nil {
			return ErrNilLogger
		}

		g.observer.Logger = logger

		return nil
	}
}

// WithMetrics sets the metrics collector for write outcomes.
func WithMetrics(collector shell.MetricsCollector) Option {
	return func(g *Gateway) error {
		g.observer.Metrics = collector
		return nil
	}
}

// WithClock replaces time.Now. The clock also bounds the publication year.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) error {
		g.now = now
		return nil
	}
}

// NewGateway creates a Gateway.
func NewGateway(s store.Store, auth access.Authorizer, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		store:    s,
		auth:     auth,
		validate: NewValidator(),
		now:      time.Now,
	}

	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// EditionRequest creates or updates an edition. With ID unset an edition with the same ISBN
// is updated in place, so repeated imports are idempotent.
type EditionRequest struct {
	ID              uuid.UUID
	ISBN            string `validate:"required,isbn"`
	Title           string `validate:"required,max=500"`
	Subtitle        string `validate:"max=200"`
	Publisher       string `validate:"max=200"`
	PublicationYear int    `validate:"omitempty,min=1450"`
	Language        string `validate:"omitempty,langcode"`
	PageCount       int    `validate:"gte=0"`
	AuthorIDs       []uuid.UUID
	ActingUserID    uuid.UUID
}

// AuthorRequest creates or updates an author.
type AuthorRequest struct {
	ID           uuid.UUID
	Name         string `validate:"required,max=200"`
	BirthYear    int    `validate:"gte=0"`
	ActingUserID uuid.UUID
}

// GetEdition returns an edition by id.
func (g *Gateway) GetEdition(ctx context.Context, id uuid.UUID) (core.BookEdition, error) {
	var edition core.BookEdition

	err := g.read(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		edition, err = tx.GetEdition(ctx, id)

		return err
	})

	return edition, err
}

// FindEditionByISBN accepts any ISBN-10 or ISBN-13 spelling.
func (g *Gateway) FindEditionByISBN(ctx context.Context, isbn string) (core.BookEdition, error) {
	isbn13, _, err := Normalize(isbn)
	if err != nil {
		return core.BookEdition{}, err
	}

	var edition core.BookEdition

	err = g.read(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		edition, err = tx.FindEditionByISBN(ctx, isbn13)

		return err
	})

	return edition, err
}

// ListEditions returns editions ordered by title.
func (g *Gateway) ListEditions(ctx context.Context, filter core.EditionFilter) ([]core.BookEdition, error) {
	if filter.Language != "" {
		code, err := NormalizeLanguage(filter.Language)
		if err != nil {
			return nil, err
		}

		filter.Language = code
	}

	var editions []core.BookEdition

	err := g.read(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		editions, err = tx.ListEditions(ctx, filter)

		return err
	})

	return editions, err
}

// GetAuthor returns an author by id.
func (g *Gateway) GetAuthor(ctx context.Context, id uuid.UUID) (core.Author, error) {
	var author core.Author

	err := g.read(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		author, err = tx.GetAuthor(ctx, id)

		return err
	})

	return author, err
}

func (g *Gateway) read(ctx context.Context, fn store.TxFunc) error {
	return g.store.RunReadOnly(store.WithEventualConsistency(ctx), fn)
}

// SaveEdition validates, normalizes and stores an edition.
func (g *Gateway) SaveEdition(ctx context.Context, req EditionRequest) (core.BookEdition, error) {
	var saved core.BookEdition

	_, err := g.observer.Run(ctx, operationSaveEdition, map[string]string{}, nil,
		func(ctx context.Context) (bool, error) {
			if err := g.auth.Require(ctx, req.ActingUserID, nil, access.CapManageCatalog); err != nil {
				return false, err
			}

			edition, err := g.buildEdition(req)
			if err != nil {
				return false, err
			}

			err = g.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
				var err error
				saved, err = g.upsertEdition(ctx, tx, req.ID, edition)

				return err
			})

			return false, err
		},
		shell.LogAttrUserID, req.ActingUserID.String(),
		shell.LogAttrISBN, req.ISBN,
	)

	return saved, err
}

func (g *Gateway) buildEdition(req EditionRequest) (core.BookEdition, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Subtitle = strings.TrimSpace(req.Subtitle)
	req.Publisher = strings.TrimSpace(req.Publisher)

	if err := g.validate.Struct(req); err != nil {
		return core.BookEdition{}, invalid(err)
	}

	if latest := g.now().Year() + maxYearsAhead; req.PublicationYear > latest {
		return core.BookEdition{}, errors.Join(core.ErrInvalidInput, fmt.Errorf("publication year after %d", latest))
	}

	isbn13, isbn10, err := Normalize(req.ISBN)
	if err != nil {
		return core.BookEdition{}, err
	}

	var lang string
	if req.Language != "" {
		if lang, err = NormalizeLanguage(req.Language); err != nil {
			return core.BookEdition{}, err
		}
	}

	return core.BookEdition{
		ISBN13:          isbn13,
		ISBN10:          isbn10,
		Title:           req.Title,
		Subtitle:        req.Subtitle,
		Publisher:       req.Publisher,
		PublicationYear: req.PublicationYear,
		Language:        lang,
		PageCount:       req.PageCount,
		AuthorIDs:       dedupe(req.AuthorIDs),
	}, nil
}

func (g *Gateway) upsertEdition(ctx context.Context, tx store.Tx, id uuid.UUID, edition core.BookEdition) (core.BookEdition, error) {
	for _, authorID := range edition.AuthorIDs {
		if _, err := tx.GetAuthor(ctx, authorID); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return core.BookEdition{}, errors.Join(core.ErrInvalidInput, fmt.Errorf("unknown author %s", authorID))
			}

			return core.BookEdition{}, err
		}
	}

	now := g.now().UTC()

	existing, err := tx.FindEditionByISBN(ctx, edition.ISBN13)

	switch {
	case err == nil:
		if id != uuid.Nil && id != existing.ID {
			return core.BookEdition{}, errors.Join(core.ErrConflict, fmt.Errorf("isbn %s belongs to another edition", edition.ISBN13))
		}

		edition.ID = existing.ID
		edition.CreatedAt = existing.CreatedAt
	case !errors.Is(err, core.ErrNotFound):
		return core.BookEdition{}, err
	case id != uuid.Nil:
		previous, err := tx.GetEdition(ctx, id)
		if err != nil {
			return core.BookEdition{}, err
		}

		edition.ID = previous.ID
		edition.CreatedAt = previous.CreatedAt
	default:
		if edition.ID, err = uuid.NewV7(); err != nil {
			return core.BookEdition{}, err
		}

		edition.CreatedAt = now
	}

	edition.UpdatedAt = now

	return edition, tx.SaveEdition(ctx, edition)
}

// SaveAuthor validates and stores an author. The name is normalized first.
func (g *Gateway) SaveAuthor(ctx context.Context, req AuthorRequest) (core.Author, error) {
	var saved core.Author

	_, err := g.observer.Run(ctx, operationSaveAuthor, map[string]string{}, nil,
		func(ctx context.Context) (bool, error) {
			if err := g.auth.Require(ctx, req.ActingUserID, nil, access.CapManageCatalog); err != nil {
				return false, err
			}

			req.Name = NormalizeAuthorName(req.Name)
			if err := g.validate.Struct(req); err != nil {
				return false, invalid(err)
			}

			now := g.now().UTC()

			err := g.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
				author := core.Author{ID: req.ID, Name: req.Name, BirthYear: req.BirthYear, CreatedAt: now}

				if req.ID == uuid.Nil {
					id, err := uuid.NewV7()
					if err != nil {
						return err
					}

					author.ID = id
				} else {
					previous, err := tx.GetAuthor(ctx, req.ID)
					if err != nil {
						return err
					}

					author.CreatedAt = previous.CreatedAt
				}

				author.UpdatedAt = now
				saved = author

				return tx.SaveAuthor(ctx, author)
			})

			return false, err
		},
		shell.LogAttrUserID, req.ActingUserID.String(),
	)

	return saved, err
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))

	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}

		seen[id] = true
		out = append(out, id)
	}

	return out
}
