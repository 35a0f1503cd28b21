package httpapi

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-core/core"
)

// ---------- responses ----------

type libraryDTO struct {
	ID        uuid.UUID            `json:"id"`
	Code      string               `json:"code"`
	Name      string               `json:"name"`
	Settings  core.LibrarySettings `json:"settings"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

type deletionDTO struct {
	DeletedAt time.Time `json:"deleted_at"`
	DeletedBy uuid.UUID `json:"deleted_by"`
}

type staffDTO struct {
	ID        uuid.UUID    `json:"id"`
	UserID    uuid.UUID    `json:"user_id"`
	LibraryID uuid.UUID    `json:"library_id"`
	Role      core.Role    `json:"role"`
	Status    string       `json:"status"`
	Deleted   *deletionDTO `json:"deleted,omitempty"`
}

type memberDTO struct {
	ID               uuid.UUID         `json:"id"`
	LibraryID        uuid.UUID         `json:"library_id"`
	MemberNumber     string            `json:"member_number"`
	FullName         string            `json:"full_name"`
	Email            string            `json:"email,omitempty"`
	Status           core.MemberStatus `json:"status"`
	MembershipUntil  *time.Time        `json:"membership_until,omitempty"`
	CurrentLoanCount int               `json:"current_loan_count"`
	OverdueCount     int               `json:"overdue_count"`
	Deleted          *deletionDTO      `json:"deleted,omitempty"`
}

type availabilityDTO struct {
	Status            core.AvailabilityStatus `json:"status"`
	CurrentBorrowerID *uuid.UUID              `json:"current_borrower_id,omitempty"`
	DueDate           *time.Time              `json:"due_date,omitempty"`
	HoldQueue         []uuid.UUID             `json:"hold_queue"`
}

type copyDTO struct {
	ID              uuid.UUID            `json:"id"`
	LibraryID       uuid.UUID            `json:"library_id"`
	EditionID       uuid.UUID            `json:"edition_id"`
	CopyNumber      int                  `json:"copy_number"`
	TotalCopies     int                  `json:"total_copies"`
	AvailableCopies int                  `json:"available_copies"`
	Availability    availabilityDTO      `json:"availability"`
	Status          core.LifecycleStatus `json:"status"`
	Location        string               `json:"location,omitempty"`
	Condition       string               `json:"condition,omitempty"`
	Deleted         *deletionDTO         `json:"deleted,omitempty"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

type transactionDTO struct {
	ID              uuid.UUID              `json:"id"`
	LibraryID       uuid.UUID              `json:"library_id"`
	CopyID          uuid.UUID              `json:"copy_id"`
	MemberID        uuid.UUID              `json:"member_id"`
	StaffID         *uuid.UUID             `json:"staff_id,omitempty"`
	Type            core.TransactionType   `json:"type"`
	Status          core.TransactionStatus `json:"status"`
	TransactionDate time.Time              `json:"transaction_date"`
	DueDate         *time.Time             `json:"due_date,omitempty"`
	ReturnDate      *time.Time             `json:"return_date,omitempty"`
	RenewalCount    int                    `json:"renewal_count"`
	Fees            core.Fees              `json:"fees"`
}

type eventDTO struct {
	ID            string            `json:"id"`
	TransactionID uuid.UUID         `json:"transaction_id"`
	EventType     core.EventType    `json:"event_type"`
	StaffID       *uuid.UUID        `json:"staff_id,omitempty"`
	MemberID      uuid.UUID         `json:"member_id"`
	OccurredAt    time.Time         `json:"occurred_at"`
	Payload       core.EventPayload `json:"payload"`
}

type authorDTO struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	BirthYear int       `json:"birth_year,omitempty"`
}

type editionDTO struct {
	ID              uuid.UUID   `json:"id"`
	ISBN13          string      `json:"isbn_13"`
	ISBN10          string      `json:"isbn_10,omitempty"`
	Title           string      `json:"title"`
	Subtitle        string      `json:"subtitle,omitempty"`
	Publisher       string      `json:"publisher,omitempty"`
	PublicationYear int         `json:"publication_year,omitempty"`
	Language        string      `json:"language,omitempty"`
	PageCount       int         `json:"page_count,omitempty"`
	AuthorIDs       []uuid.UUID `json:"author_ids"`
}

type changedDTO struct {
	Changed bool `json:"changed"`
}

type overdueSweepDTO struct {
	Flagged int `json:"flagged"`
}

// ---------- requests ----------

type createLibraryRequest struct {
	Code        string                `json:"code" binding:"required"`
	Name        string                `json:"name" binding:"required"`
	Settings    *core.LibrarySettings `json:"settings"`
	OwnerUserID uuid.UUID             `json:"owner_user_id"`
}

type addStaffRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
	Role   core.Role `json:"role" binding:"required"`
}

type changeRoleRequest struct {
	Role core.Role `json:"role" binding:"required"`
}

type registerMemberRequest struct {
	MemberNumber    string     `json:"member_number" binding:"required"`
	FullName        string     `json:"full_name" binding:"required"`
	Email           string     `json:"email"`
	MembershipUntil *time.Time `json:"membership_until"`
}

type memberStatusRequest struct {
	Status core.MemberStatus `json:"status" binding:"required"`
}

type registerCopyRequest struct {
	EditionID  uuid.UUID `json:"edition_id" binding:"required"`
	CopyNumber int       `json:"copy_number" binding:"required,min=1"`
	Location   string    `json:"location"`
	Condition  string    `json:"condition"`
}

type copyDetailsRequest struct {
	Location  string `json:"location"`
	Condition string `json:"condition"`
}

type lifecycleStatusRequest struct {
	Status core.LifecycleStatus `json:"status" binding:"required"`
}

type copyMemberRequest struct {
	CopyID   uuid.UUID `json:"copy_id" binding:"required"`
	MemberID uuid.UUID `json:"member_id" binding:"required"`
}

type returnRequest struct {
	DamageFeeCents     int64 `json:"damage_fee_cents" binding:"min=0"`
	ProcessingFeeCents int64 `json:"processing_fee_cents" binding:"min=0"`
}

type adjustFeesRequest struct {
	DamageFeeCents     int64  `json:"damage_fee_cents" binding:"min=0"`
	ProcessingFeeCents int64  `json:"processing_fee_cents" binding:"min=0"`
	Reason             string `json:"reason" binding:"required"`
}

type overdueSweepRequest struct {
	AsOf *time.Time `json:"as_of"`
}

type editionRequest struct {
	ID              uuid.UUID   `json:"id"`
	ISBN            string      `json:"isbn" binding:"required"`
	Title           string      `json:"title" binding:"required"`
	Subtitle        string      `json:"subtitle"`
	Publisher       string      `json:"publisher"`
	PublicationYear int         `json:"publication_year"`
	Language        string      `json:"language"`
	PageCount       int         `json:"page_count"`
	AuthorIDs       []uuid.UUID `json:"author_ids"`
}

type authorRequest struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name" binding:"required"`
	BirthYear int       `json:"birth_year"`
}

// ---------- mapping ----------

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	return &t
}

func optionalUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}

	return &id
}

func toDeletionDTO(d core.SoftDelete) *deletionDTO {
	if !d.IsDeleted {
		return nil
	}

	return &deletionDTO{DeletedAt: d.DeletedAt, DeletedBy: d.DeletedBy}
}

func toLibraryDTO(l core.Library) libraryDTO {
	return libraryDTO{
		ID:        l.ID,
		Code:      l.Code,
		Name:      l.Name,
		Settings:  l.Settings,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

func toStaffDTO(s core.LibraryStaff) staffDTO {
	return staffDTO{
		ID:        s.ID,
		UserID:    s.UserID,
		LibraryID: s.LibraryID,
		Role:      s.Role,
		Status:    string(s.Status),
		Deleted:   toDeletionDTO(s.Deleted),
	}
}

func toMemberDTO(m core.LibraryMember) memberDTO {
	return memberDTO{
		ID:               m.ID,
		LibraryID:        m.LibraryID,
		MemberNumber:     m.MemberNumber,
		FullName:         m.FullName,
		Email:            m.Email,
		Status:           m.Status,
		MembershipUntil:  optionalTime(m.MembershipUntil),
		CurrentLoanCount: m.Stats.CurrentLoanCount,
		OverdueCount:     m.Stats.OverdueCount,
		Deleted:          toDeletionDTO(m.Deleted),
	}
}

func toCopyDTO(c core.BookCopy) copyDTO {
	queue := c.Availability.HoldQueue
	if queue == nil {
		queue = []uuid.UUID{}
	}

	return copyDTO{
		ID:              c.ID,
		LibraryID:       c.LibraryID,
		EditionID:       c.EditionID,
		CopyNumber:      c.CopyNumber,
		TotalCopies:     c.TotalCopies,
		AvailableCopies: c.AvailableCopies,
		Availability: availabilityDTO{
			Status:            c.Availability.Status,
			CurrentBorrowerID: optionalUUID(c.Availability.CurrentBorrowerID),
			DueDate:           optionalTime(c.Availability.DueDate),
			HoldQueue:         queue,
		},
		Status:    c.Status,
		Location:  c.Location,
		Condition: c.Condition,
		Deleted:   toDeletionDTO(c.Deleted),
		UpdatedAt: c.UpdatedAt,
	}
}

func toCopyDTOs(copies []core.BookCopy) []copyDTO {
	out := make([]copyDTO, 0, len(copies))
	for _, c := range copies {
		out = append(out, toCopyDTO(c))
	}

	return out
}

func toTransactionDTO(t core.BorrowingTransaction) transactionDTO {
	return transactionDTO{
		ID:              t.ID,
		LibraryID:       t.LibraryID,
		CopyID:          t.CopyID,
		MemberID:        t.MemberID,
		StaffID:         optionalUUID(t.StaffID),
		Type:            t.Type,
		Status:          t.Status,
		TransactionDate: t.TransactionDate,
		DueDate:         optionalTime(t.DueDate),
		ReturnDate:      optionalTime(t.ReturnDate),
		RenewalCount:    t.RenewalCount,
		Fees:            t.Fees,
	}
}

func toEventDTOs(events []core.TransactionEvent) ([]eventDTO, error) {
	out := make([]eventDTO, 0, len(events))
	for _, e := range events {
		payload, err := e.DecodePayload()
		if err != nil {
			return nil, errors.Join(core.ErrOperationFailed, err)
		}

		out = append(out, eventDTO{
			ID:            e.ID,
			TransactionID: e.TransactionID,
			EventType:     e.EventType,
			StaffID:       optionalUUID(e.StaffID),
			MemberID:      e.MemberID,
			OccurredAt:    e.OccurredAt,
			Payload:       payload,
		})
	}

	return out, nil
}

func toAuthorDTO(a core.Author) authorDTO {
	return authorDTO{ID: a.ID, Name: a.Name, BirthYear: a.BirthYear}
}

func toEditionDTO(e core.BookEdition) editionDTO {
	authors := e.AuthorIDs
	if authors == nil {
		authors = []uuid.UUID{}
	}

	return editionDTO{
		ID:              e.ID,
		ISBN13:          e.ISBN13,
		ISBN10:          e.ISBN10,
		Title:           e.Title,
		Subtitle:        e.Subtitle,
		Publisher:       e.Publisher,
		PublicationYear: e.PublicationYear,
		Language:        e.Language,
		PageCount:       e.PageCount,
		AuthorIDs:       authors,
	}
}

func toEditionDTOs(editions []core.BookEdition) []editionDTO {
	out := make([]editionDTO, 0, len(editions))
	for _, e := range editions {
		out = append(out, toEditionDTO(e))
	}

	return out
}
