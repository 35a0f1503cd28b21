package core

import (
	"time"

	"github.com/google/uuid"
)

// Author is a shared catalog author. Catalog entities are not tenant-owned.
type Author struct {
	ID        uuid.UUID
	Name      string
	BirthYear int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BookEdition is a published edition identified by its normalized ISBN-13.
type BookEdition struct {
	ID              uuid.UUID
	ISBN13          string
	ISBN10          string
	Title           string
	Subtitle        string
	Publisher       string
	PublicationYear int
	Language        string
	PageCount       int
	AuthorIDs       []uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EditionFilter narrows catalog listings. Empty fields do not filter.
type EditionFilter struct {
	TitlePrefix string
	Language    string
	AuthorID    uuid.UUID
	Limit       int
	Offset      int
}
