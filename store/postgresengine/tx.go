package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/store"
	"github.com/AntonStoeckl/circulation-core/store/postgresengine/internal/adapters"
)

// ErrReadOnlyUnit is returned when a read-only unit tries to write or lock.
var ErrReadOnlyUnit = errors.New("write attempted in read-only unit")

const (
	tableLibraries      = "libraries"
	tableStaff          = "library_staff"
	tableMembers        = "library_members"
	tableAuthors        = "authors"
	tableEditions       = "book_editions"
	tableEditionAuthors = "book_edition_authors"
	tableCopies         = "book_copies"
	tableTransactions   = "borrowing_transactions"
	tableEvents         = "transaction_events"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Tx is the PostgreSQL implementation of store.Tx. All SQL is built with goqu and sent interpolated.
type Tx struct {
	store    *Store
	db       adapters.DBTx
	readOnly bool
}

var _ store.Tx = (*Tx)(nil)

type scanFunc[T any] func(rows adapters.DBRows) (T, error)

func (tx *Tx) writable() error {
	if tx.readOnly {
		return ErrReadOnlyUnit
	}

	return nil
}

func (tx *Tx) exec(ctx context.Context, sqlQuery string) (adapters.DBResult, error) {
	start := time.Now()
	result, err := tx.db.Exec(ctx, sqlQuery)
	tx.store.logQueryWithDuration(ctx, sqlQuery, "exec", time.Since(start))

	if err != nil {
		return nil, tx.store.classify(ctx, err)
	}

	return result, nil
}

func (tx *Tx) execBuilt(ctx context.Context, action string, builder interface{ ToSQL() (string, []any, error) }) error {
	sqlQuery, _, err := builder.ToSQL()
	if err != nil {
		return errors.Join(errors.New("failed to build "+action+" query"), err)
	}

	start := time.Now()
	_, err = tx.db.Exec(ctx, sqlQuery)
	tx.store.logQueryWithDuration(ctx, sqlQuery, action, time.Since(start))

	if err != nil {
		return tx.store.classify(ctx, err)
	}

	return nil
}

func selectAll[T any](ctx context.Context, tx *Tx, action string, ds *goqu.SelectDataset, scan scanFunc[T]) ([]T, error) {
	sqlQuery, _, err := ds.ToSQL()
	if err != nil {
		return nil, errors.Join(errors.New("failed to build "+action+" query"), err)
	}

	start := time.Now()
	rows, err := tx.db.Query(ctx, sqlQuery)
	tx.store.logQueryWithDuration(ctx, sqlQuery, action, time.Since(start))

	if err != nil {
		return nil, tx.store.classify(ctx, err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			tx.store.logWarn(ctx, logMsgCloseRowsFailed, closeErr)
		}
	}()

	var result []T

	for rows.Next() {
		item, scanErr := scan(rows)
		if scanErr != nil {
			return nil, tx.store.classify(ctx, scanErr)
		}

		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		return nil, tx.store.classify(ctx, err)
	}

	return result, nil
}

func selectOne[T any](ctx context.Context, tx *Tx, action string, ds *goqu.SelectDataset, scan scanFunc[T]) (T, error) {
	var zero T

	rows, err := selectAll(ctx, tx, action, ds.Limit(1), scan)
	if err != nil {
		return zero, err
	}

	if len(rows) == 0 {
		return zero, core.ErrNotFound
	}

	return rows[0], nil
}

func forUpdate(ds *goqu.SelectDataset) *goqu.SelectDataset {
	return ds.ForUpdate(exp.Wait)
}

// upsert inserts row or overwrites every listed column of the row with the same id.
func (tx *Tx) upsert(ctx context.Context, action, table string, row goqu.Record) error {
	if err := tx.writable(); err != nil {
		return err
	}

	update := goqu.Record{}

	for col := range row {
		if col != "id" && col != "created_at" {
			update[col] = goqu.L("EXCLUDED." + col)
		}
	}

	return tx.execBuilt(ctx, action, dialect.Insert(table).Rows(row).OnConflict(goqu.DoUpdate("id", update)))
}

// value helpers

func nullableUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}

	return id.String()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}

	return t.UTC()
}

func jsonb(v any) (exp.LiteralExpression, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	return goqu.L("?::jsonb", string(b)), nil
}

func fromNullUUID(v uuid.NullUUID) uuid.UUID {
	if !v.Valid {
		return uuid.Nil
	}

	return v.UUID
}

func fromNullTime(v sql.NullTime) time.Time {
	if !v.Valid {
		return time.Time{}
	}

	return v.Time.UTC()
}

func softDeleteColumns(d core.SoftDelete) goqu.Record {
	return goqu.Record{
		"is_deleted": d.IsDeleted,
		"deleted_at": nullableTime(d.DeletedAt),
		"deleted_by": nullableUUID(d.DeletedBy),
	}
}

func merge(records ...goqu.Record) goqu.Record {
	out := goqu.Record{}

	for _, r := range records {
		for k, v := range r {
			out[k] = v
		}
	}

	return out
}

// libraries

var libraryColumns = []any{"id", "code", "name", "settings", "created_at", "updated_at"}

func scanLibrary(rows adapters.DBRows) (core.Library, error) {
	var (
		l        core.Library
		settings []byte
	)

	if err := rows.Scan(&l.ID, &l.Code, &l.Name, &settings, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return core.Library{}, err
	}

	if err := json.Unmarshal(settings, &l.Settings); err != nil {
		return core.Library{}, errors.Join(errors.New("failed to decode library settings"), err)
	}

	l.CreatedAt, l.UpdatedAt = l.CreatedAt.UTC(), l.UpdatedAt.UTC()

	return l, nil
}

func (tx *Tx) GetLibrary(ctx context.Context, id uuid.UUID) (core.Library, error) {
	ds := dialect.From(tableLibraries).Select(libraryColumns...).Where(goqu.Ex{"id": id.String()})
	return selectOne(ctx, tx, "get library", ds, scanLibrary)
}

func (tx *Tx) GetLibraryByCode(ctx context.Context, code string) (core.Library, error) {
	ds := dialect.From(tableLibraries).Select(libraryColumns...).Where(goqu.Ex{"code": code})
	return selectOne(ctx, tx, "get library by code", ds, scanLibrary)
}

func (tx *Tx) SaveLibrary(ctx context.Context, library core.Library) error {
	settings, err := jsonb(library.Settings)
	if err != nil {
		return err
	}

	return tx.upsert(ctx, "save library", tableLibraries, goqu.Record{
		"id":         library.ID.String(),
		"code":       library.Code,
		"name":       library.Name,
		"settings":   settings,
		"created_at": library.CreatedAt.UTC(),
		"updated_at": library.UpdatedAt.UTC(),
	})
}

// staff

var staffColumns = []any{
	"id", "user_id", "library_id", "role", "status",
	"is_deleted", "deleted_at", "deleted_by", "created_at", "updated_at",
}

func scanStaff(rows adapters.DBRows) (core.LibraryStaff, error) {
	var (
		s         core.LibraryStaff
		role      string
		status    string
		deletedAt sql.NullTime
		deletedBy uuid.NullUUID
	)

	err := rows.Scan(
		&s.ID, &s.UserID, &s.LibraryID, &role, &status,
		&s.Deleted.IsDeleted, &deletedAt, &deletedBy, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return core.LibraryStaff{}, err
	}

	s.Role = core.Role(role)
	s.Status = core.StaffStatus(status)
	s.Deleted.DeletedAt = fromNullTime(deletedAt)
	s.Deleted.DeletedBy = fromNullUUID(deletedBy)
	s.CreatedAt, s.UpdatedAt = s.CreatedAt.UTC(), s.UpdatedAt.UTC()

	return s, nil
}

func (tx *Tx) GetStaff(ctx context.Context, libraryID, userID uuid.UUID) (core.LibraryStaff, error) {
	ds := dialect.From(tableStaff).Select(staffColumns...).
		Where(goqu.Ex{"library_id": libraryID.String(), "user_id": userID.String()})

	return selectOne(ctx, tx, "get staff", ds, scanStaff)
}

func (tx *Tx) GetStaffByID(ctx context.Context, libraryID, staffID uuid.UUID) (core.LibraryStaff, error) {
	ds := dialect.From(tableStaff).Select(staffColumns...).
		Where(goqu.Ex{"library_id": libraryID.String(), "id": staffID.String()})

	return selectOne(ctx, tx, "get staff by id", ds, scanStaff)
}

func (tx *Tx) ListStaffByUser(ctx context.Context, userID uuid.UUID) ([]core.LibraryStaff, error) {
	ds := dialect.From(tableStaff).Select(staffColumns...).
		Where(goqu.Ex{"user_id": userID.String()}).
		Order(goqu.C("created_at").Asc(), goqu.C("id").Asc())

	return selectAll(ctx, tx, "list staff by user", ds, scanStaff)
}

func (tx *Tx) SaveStaff(ctx context.Context, staff core.LibraryStaff) error {
	return tx.upsert(ctx, "save staff", tableStaff, merge(goqu.Record{
		"id":         staff.ID.String(),
		"user_id":    staff.UserID.String(),
		"library_id": staff.LibraryID.String(),
		"role":       string(staff.Role),
		"status":     string(staff.Status),
		"created_at": staff.CreatedAt.UTC(),
		"updated_at": staff.UpdatedAt.UTC(),
	}, softDeleteColumns(staff.Deleted)))
}

// members

var memberColumns = []any{
	"id", "library_id", "member_number", "full_name", "email", "status", "membership_until",
	"current_loan_count", "overdue_count", "is_deleted", "deleted_at", "deleted_by", "created_at", "updated_at",
}

func scanMember(rows adapters.DBRows) (core.LibraryMember, error) {
	var (
		m               core.LibraryMember
		status          string
		membershipUntil sql.NullTime
		deletedAt       sql.NullTime
		deletedBy       uuid.NullUUID
	)

	err := rows.Scan(
		&m.ID, &m.LibraryID, &m.MemberNumber, &m.FullName, &m.Email, &status, &membershipUntil,
		&m.Stats.CurrentLoanCount, &m.Stats.OverdueCount, &m.Deleted.IsDeleted, &deletedAt, &deletedBy,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return core.LibraryMember{}, err
	}

	m.Status = core.MemberStatus(status)
	m.MembershipUntil = fromNullTime(membershipUntil)
	m.Deleted.DeletedAt = fromNullTime(deletedAt)
	m.Deleted.DeletedBy = fromNullUUID(deletedBy)
	m.CreatedAt, m.UpdatedAt = m.CreatedAt.UTC(), m.UpdatedAt.UTC()

	return m, nil
}

func (tx *Tx) memberQuery(libraryID, memberID uuid.UUID) *goqu.SelectDataset {
	return dialect.From(tableMembers).Select(memberColumns...).
		Where(goqu.Ex{"library_id": libraryID.String(), "id": memberID.String()})
}

func (tx *Tx) GetMember(ctx context.Context, libraryID, memberID uuid.UUID) (core.LibraryMember, error) {
	return selectOne(ctx, tx, "get member", tx.memberQuery(libraryID, memberID), scanMember)
}

func (tx *Tx) LockMember(ctx context.Context, libraryID, memberID uuid.UUID) (core.LibraryMember, error) {
	if err := tx.writable(); err != nil {
		return core.LibraryMember{}, err
	}

	return selectOne(ctx, tx, "lock member", forUpdate(tx.memberQuery(libraryID, memberID)), scanMember)
}

func (tx *Tx) SaveMember(ctx context.Context, member core.LibraryMember) error {
	return tx.upsert(ctx, "save member", tableMembers, merge(goqu.Record{
		"id":                 member.ID.String(),
		"library_id":         member.LibraryID.String(),
		"member_number":      member.MemberNumber,
		"full_name":          member.FullName,
		"email":              member.Email,
		"status":             string(member.Status),
		"membership_until":   nullableTime(member.MembershipUntil),
		"current_loan_count": member.Stats.CurrentLoanCount,
		"overdue_count":      member.Stats.OverdueCount,
		"created_at":         member.CreatedAt.UTC(),
		"updated_at":         member.UpdatedAt.UTC(),
	}, softDeleteColumns(member.Deleted)))
}

// copies

var copyColumns = []any{
	"id", "library_id", "book_edition_id", "copy_number", "total_copies", "available_copies",
	"availability_status", "current_borrower_id", "due_date", "hold_queue", "status", "location", "condition",
	"is_deleted", "deleted_at", "deleted_by", "created_at", "updated_at",
}

func scanCopy(rows adapters.DBRows) (core.BookCopy, error) {
	var (
		c                  core.BookCopy
		availabilityStatus string
		borrower           uuid.NullUUID
		dueDate            sql.NullTime
		holdQueue          []byte
		status             string
		deletedAt          sql.NullTime
		deletedBy          uuid.NullUUID
	)

	err := rows.Scan(
		&c.ID, &c.LibraryID, &c.EditionID, &c.CopyNumber, &c.TotalCopies, &c.AvailableCopies,
		&availabilityStatus, &borrower, &dueDate, &holdQueue, &status, &c.Location, &c.Condition,
		&c.Deleted.IsDeleted, &deletedAt, &deletedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return core.BookCopy{}, err
	}

	if err := json.Unmarshal(holdQueue, &c.Availability.HoldQueue); err != nil {
		return core.BookCopy{}, errors.Join(errors.New("failed to decode hold queue"), err)
	}

	if len(c.Availability.HoldQueue) == 0 {
		c.Availability.HoldQueue = nil
	}

	c.Availability.Status = core.AvailabilityStatus(availabilityStatus)
	c.Availability.CurrentBorrowerID = fromNullUUID(borrower)
	c.Availability.DueDate = fromNullTime(dueDate)
	c.Status = core.LifecycleStatus(status)
	c.Deleted.DeletedAt = fromNullTime(deletedAt)
	c.Deleted.DeletedBy = fromNullUUID(deletedBy)
	c.CreatedAt, c.UpdatedAt = c.CreatedAt.UTC(), c.UpdatedAt.UTC()

	return c, nil
}

func (tx *Tx) copyQuery(libraryID, copyID uuid.UUID) *goqu.SelectDataset {
	return dialect.From(tableCopies).Select(copyColumns...).
		Where(goqu.Ex{"library_id": libraryID.String(), "id": copyID.String()})
}

func (tx *Tx) GetCopy(ctx context.Context, libraryID, copyID uuid.UUID) (core.BookCopy, error) {
	return selectOne(ctx, tx, "get copy", tx.copyQuery(libraryID, copyID), scanCopy)
}

func (tx *Tx) LockCopy(ctx context.Context, libraryID, copyID uuid.UUID) (core.BookCopy, error) {
	if err := tx.writable(); err != nil {
		return core.BookCopy{}, err
	}

	return selectOne(ctx, tx, "lock copy", forUpdate(tx.copyQuery(libraryID, copyID)), scanCopy)
}

func (tx *Tx) SaveCopy(ctx context.Context, bookCopy core.BookCopy) error {
	queue := bookCopy.Availability.HoldQueue
	if queue == nil {
		queue = []uuid.UUID{}
	}

	holdQueue, err := jsonb(queue)
	if err != nil {
		return err
	}

	return tx.upsert(ctx, "save copy", tableCopies, merge(goqu.Record{
		"id":                  bookCopy.ID.String(),
		"library_id":          bookCopy.LibraryID.String(),
		"book_edition_id":     bookCopy.EditionID.String(),
		"copy_number":         bookCopy.CopyNumber,
		"total_copies":        bookCopy.TotalCopies,
		"available_copies":    bookCopy.AvailableCopies,
		"availability_status": string(bookCopy.Availability.Status),
		"current_borrower_id": nullableUUID(bookCopy.Availability.CurrentBorrowerID),
		"due_date":            nullableTime(bookCopy.Availability.DueDate),
		"hold_queue":          holdQueue,
		"status":              string(bookCopy.Status),
		"location":            bookCopy.Location,
		"condition":           bookCopy.Condition,
		"created_at":          bookCopy.CreatedAt.UTC(),
		"updated_at":          bookCopy.UpdatedAt.UTC(),
	}, softDeleteColumns(bookCopy.Deleted)))
}

func (tx *Tx) ListCopies(ctx context.Context, libraryID uuid.UUID, page store.Page) ([]core.BookCopy, error) {
	page = page.Normalized()

	ds := dialect.From(tableCopies).Select(copyColumns...).
		Where(goqu.Ex{"library_id": libraryID.String(), "is_deleted": false}).
		Order(goqu.C("book_edition_id").Asc(), goqu.C("copy_number").Asc()).
		Limit(uint(page.Limit)).
		Offset(uint(page.Offset))

	return selectAll(ctx, tx, "list copies", ds, scanCopy)
}

// transactions

var transactionColumns = []any{
	"id", "library_id", "book_copy_id", "member_id", "staff_id", "transaction_type", "status",
	"transaction_date", "due_date", "return_date", "renewal_count", "fees", "created_at", "updated_at",
}

var openStatuses = []string{string(core.StatusActive), string(core.StatusOverdue)}

func scanTransaction(rows adapters.DBRows) (core.BorrowingTransaction, error) {
	var (
		t               core.BorrowingTransaction
		staffID         uuid.NullUUID
		transactionType string
		status          string
		dueDate         sql.NullTime
		returnDate      sql.NullTime
		fees            []byte
	)

	err := rows.Scan(
		&t.ID, &t.LibraryID, &t.CopyID, &t.MemberID, &staffID, &transactionType, &status,
		&t.TransactionDate, &dueDate, &returnDate, &t.RenewalCount, &fees, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return core.BorrowingTransaction{}, err
	}

	if err := json.Unmarshal(fees, &t.Fees); err != nil {
		return core.BorrowingTransaction{}, errors.Join(errors.New("failed to decode fees"), err)
	}

	t.StaffID = fromNullUUID(staffID)
	t.Type = core.TransactionType(transactionType)
	t.Status = core.TransactionStatus(status)
	t.DueDate = fromNullTime(dueDate)
	t.ReturnDate = fromNullTime(returnDate)
	t.TransactionDate = t.TransactionDate.UTC()
	t.CreatedAt, t.UpdatedAt = t.CreatedAt.UTC(), t.UpdatedAt.UTC()

	return t, nil
}

func transactionsOf(libraryID uuid.UUID) *goqu.SelectDataset {
	return dialect.From(tableTransactions).Select(transactionColumns...).
		Where(goqu.Ex{"library_id": libraryID.String()}).
		Order(goqu.C("transaction_date").Asc(), goqu.C("id").Asc())
}

func (tx *Tx) GetTransaction(ctx context.Context, libraryID, transactionID uuid.UUID) (core.BorrowingTransaction, error) {
	ds := transactionsOf(libraryID).Where(goqu.Ex{"id": transactionID.String()})
	return selectOne(ctx, tx, "get transaction", ds, scanTransaction)
}

func (tx *Tx) SaveTransaction(ctx context.Context, transaction core.BorrowingTransaction) error {
	fees, err := jsonb(transaction.Fees)
	if err != nil {
		return err
	}

	return tx.upsert(ctx, "save transaction", tableTransactions, goqu.Record{
		"id":               transaction.ID.String(),
		"library_id":       transaction.LibraryID.String(),
		"book_copy_id":     transaction.CopyID.String(),
		"member_id":        transaction.MemberID.String(),
		"staff_id":         nullableUUID(transaction.StaffID),
		"transaction_type": string(transaction.Type),
		"status":           string(transaction.Status),
		"transaction_date": transaction.TransactionDate.UTC(),
		"due_date":         nullableTime(transaction.DueDate),
		"return_date":      nullableTime(transaction.ReturnDate),
		"renewal_count":    transaction.RenewalCount,
		"fees":             fees,
		"created_at":       transaction.CreatedAt.UTC(),
		"updated_at":       transaction.UpdatedAt.UTC(),
	})
}

func (tx *Tx) FindOpenLoan(ctx context.Context, libraryID, copyID uuid.UUID) (core.BorrowingTransaction, error) {
	ds := transactionsOf(libraryID).Where(goqu.Ex{
		"book_copy_id":     copyID.String(),
		"transaction_type": string(core.TransactionCheckout),
		"status":           openStatuses,
	})

	return selectOne(ctx, tx, "find open loan", ds, scanTransaction)
}

func (tx *Tx) FindOpenHold(ctx context.Context, libraryID, copyID, memberID uuid.UUID) (core.BorrowingTransaction, error) {
	ds := transactionsOf(libraryID).Where(goqu.Ex{
		"book_copy_id":     copyID.String(),
		"member_id":        memberID.String(),
		"transaction_type": string(core.TransactionHold),
		"status":           string(core.StatusActive),
	})

	return selectOne(ctx, tx, "find open hold", ds, scanTransaction)
}

func (tx *Tx) ListOpenHoldsByMember(ctx context.Context, libraryID, memberID uuid.UUID) ([]core.BorrowingTransaction, error) {
	ds := transactionsOf(libraryID).Where(goqu.Ex{
		"member_id":        memberID.String(),
		"transaction_type": string(core.TransactionHold),
		"status":           string(core.StatusActive),
	})

	return selectAll(ctx, tx, "list open holds by member", ds, scanTransaction)
}

func (tx *Tx) CountOpenLoansByMember(ctx context.Context, libraryID, memberID uuid.UUID) (int, error) {
	ds := dialect.From(tableTransactions).Select(goqu.COUNT("*")).Where(goqu.Ex{
		"library_id":       libraryID.String(),
		"member_id":        memberID.String(),
		"transaction_type": string(core.TransactionCheckout),
		"status":           openStatuses,
	})

	return selectOne(ctx, tx, "count open loans", ds, func(rows adapters.DBRows) (int, error) {
		var count int64
		err := rows.Scan(&count)

		return int(count), err
	})
}

func (tx *Tx) ListLoansDueBefore(ctx context.Context, libraryID uuid.UUID, t time.Time) ([]core.BorrowingTransaction, error) {
	ds := dialect.From(tableTransactions).Select(transactionColumns...).
		Where(
			goqu.Ex{
				"library_id":       libraryID.String(),
				"transaction_type": string(core.TransactionCheckout),
				"status":           string(core.StatusActive),
			},
			goqu.C("due_date").Lt(t.UTC()),
		).
		Order(goqu.C("due_date").Asc(), goqu.C("transaction_date").Asc(), goqu.C("id").Asc())

	return selectAll(ctx, tx, "list loans due before", ds, scanTransaction)
}

// events

var eventColumns = []any{"id", "library_id", "transaction_id", "event_type", "staff_id", "member_id", "occurred_at", "payload"}

func scanEvent(rows adapters.DBRows) (core.TransactionEvent, error) {
	var (
		e         core.TransactionEvent
		eventType string
		staffID   uuid.NullUUID
	)

	if err := rows.Scan(&e.ID, &e.LibraryID, &e.TransactionID, &eventType, &staffID, &e.MemberID, &e.OccurredAt, &e.Payload); err != nil {
		return core.TransactionEvent{}, err
	}

	e.EventType = core.EventType(eventType)
	e.StaffID = fromNullUUID(staffID)
	e.OccurredAt = e.OccurredAt.UTC()

	return e, nil
}

func (tx *Tx) AppendEvent(ctx context.Context, event core.TransactionEvent) error {
	if err := tx.writable(); err != nil {
		return err
	}

	return tx.execBuilt(ctx, "append event", dialect.Insert(tableEvents).Rows(goqu.Record{
		"id":             event.ID,
		"library_id":     event.LibraryID.String(),
		"transaction_id": event.TransactionID.String(),
		"event_type":     string(event.EventType),
		"staff_id":       nullableUUID(event.StaffID),
		"member_id":      event.MemberID.String(),
		"occurred_at":    event.OccurredAt.UTC(),
		"payload":        goqu.L("?::jsonb", string(event.Payload)),
	}))
}

func (tx *Tx) ListEvents(ctx context.Context, libraryID, transactionID uuid.UUID) ([]core.TransactionEvent, error) {
	ds := dialect.From(tableEvents).Select(eventColumns...).
		Where(goqu.Ex{"library_id": libraryID.String(), "transaction_id": transactionID.String()}).
		Order(goqu.C("occurred_at").Asc(), goqu.C("id").Asc())

	return selectAll(ctx, tx, "list events", ds, scanEvent)
}

// catalog

func scanAuthor(rows adapters.DBRows) (core.Author, error) {
	var a core.Author

	if err := rows.Scan(&a.ID, &a.Name, &a.BirthYear, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return core.Author{}, err
	}

	a.CreatedAt, a.UpdatedAt = a.CreatedAt.UTC(), a.UpdatedAt.UTC()

	return a, nil
}

func (tx *Tx) GetAuthor(ctx context.Context, id uuid.UUID) (core.Author, error) {
	ds := dialect.From(tableAuthors).
		Select("id", "name", "birth_year", "created_at", "updated_at").
		Where(goqu.Ex{"id": id.String()})

	return selectOne(ctx, tx, "get author", ds, scanAuthor)
}

func (tx *Tx) SaveAuthor(ctx context.Context, author core.Author) error {
	return tx.upsert(ctx, "save author", tableAuthors, goqu.Record{
		"id":         author.ID.String(),
		"name":       author.Name,
		"birth_year": author.BirthYear,
		"created_at": author.CreatedAt.UTC(),
		"updated_at": author.UpdatedAt.UTC(),
	})
}

var editionColumns = []any{
	"id", "isbn_13", "isbn_10", "title", "subtitle", "publisher",
	"publication_year", "language", "page_count", "created_at", "updated_at",
}

func scanEdition(rows adapters.DBRows) (core.BookEdition, error) {
	var e core.BookEdition

	err := rows.Scan(
		&e.ID, &e.ISBN13, &e.ISBN10, &e.Title, &e.Subtitle, &e.Publisher,
		&e.PublicationYear, &e.Language, &e.PageCount, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return core.BookEdition{}, err
	}

	e.CreatedAt, e.UpdatedAt = e.CreatedAt.UTC(), e.UpdatedAt.UTC()

	return e, nil
}

type editionAuthor struct {
	editionID uuid.UUID
	authorID  uuid.UUID
}

// withAuthors loads the ordered author ids of the given editions.
func (tx *Tx) withAuthors(ctx context.Context, editions []core.BookEdition) ([]core.BookEdition, error) {
	if len(editions) == 0 {
		return editions, nil
	}

	ids := make([]string, len(editions))
	for i, e := range editions {
		ids[i] = e.ID.String()
	}

	ds := dialect.From(tableEditionAuthors).
		Select("book_edition_id", "author_id").
		Where(goqu.Ex{"book_edition_id": ids}).
		Order(goqu.C("book_edition_id").Asc(), goqu.C("position").Asc())

	links, err := selectAll(ctx, tx, "list edition authors", ds, func(rows adapters.DBRows) (editionAuthor, error) {
		var link editionAuthor
		err := rows.Scan(&link.editionID, &link.authorID)

		return link, err
	})
	if err != nil {
		return nil, err
	}

	byEdition := make(map[uuid.UUID][]uuid.UUID, len(editions))
	for _, link := range links {
		byEdition[link.editionID] = append(byEdition[link.editionID], link.authorID)
	}

	for i := range editions {
		editions[i].AuthorIDs = byEdition[editions[i].ID]
	}

	return editions, nil
}

func (tx *Tx) oneEdition(ctx context.Context, action string, where goqu.Ex) (core.BookEdition, error) {
	edition, err := selectOne(ctx, tx, action, dialect.From(tableEditions).Select(editionColumns...).Where(where), scanEdition)
	if err != nil {
		return core.BookEdition{}, err
	}

	editions, err := tx.withAuthors(ctx, []core.BookEdition{edition})
	if err != nil {
		return core.BookEdition{}, err
	}

	return editions[0], nil
}

func (tx *Tx) GetEdition(ctx context.Context, id uuid.UUID) (core.BookEdition, error) {
	return tx.oneEdition(ctx, "get edition", goqu.Ex{"id": id.String()})
}

func (tx *Tx) FindEditionByISBN(ctx context.Context, isbn13 string) (core.BookEdition, error) {
	return tx.oneEdition(ctx, "find edition by isbn", goqu.Ex{"isbn_13": isbn13})
}

// SaveEdition upserts the edition row and replaces its author links.
func (tx *Tx) SaveEdition(ctx context.Context, edition core.BookEdition) error {
	err := tx.upsert(ctx, "save edition", tableEditions, goqu.Record{
		"id":               edition.ID.String(),
		"isbn_13":          edition.ISBN13,
		"isbn_10":          edition.ISBN10,
		"title":            edition.Title,
		"subtitle":         edition.Subtitle,
		"publisher":        edition.Publisher,
		"publication_year": edition.PublicationYear,
		"language":         edition.Language,
		"page_count":       edition.PageCount,
		"created_at":       edition.CreatedAt.UTC(),
		"updated_at":       edition.UpdatedAt.UTC(),
	})
	if err != nil {
		return err
	}

	deleteLinks := dialect.Delete(tableEditionAuthors).Where(goqu.Ex{"book_edition_id": edition.ID.String()})
	if err := tx.execBuilt(ctx, "delete edition authors", deleteLinks); err != nil {
		return err
	}

	if len(edition.AuthorIDs) == 0 {
		return nil
	}

	links := make([]any, len(edition.AuthorIDs))
	for i, authorID := range edition.AuthorIDs {
		links[i] = goqu.Record{
			"book_edition_id": edition.ID.String(),
			"author_id":       authorID.String(),
			"position":        i,
		}
	}

	return tx.execBuilt(ctx, "insert edition authors", dialect.Insert(tableEditionAuthors).Rows(links...))
}

func (tx *Tx) ListEditions(ctx context.Context, filter core.EditionFilter) ([]core.BookEdition, error) {
	page := store.Page{Limit: filter.Limit, Offset: filter.Offset}.Normalized()

	ds := dialect.From(tableEditions).Select(editionColumns...)

	if filter.TitlePrefix != "" {
		ds = ds.Where(goqu.C("title").ILike(escapeLike(filter.TitlePrefix) + "%"))
	}

	if filter.Language != "" {
		ds = ds.Where(goqu.Ex{"language": filter.Language})
	}

	if filter.AuthorID != uuid.Nil {
		byAuthor := dialect.From(tableEditionAuthors).
			Select("book_edition_id").
			Where(goqu.Ex{"author_id": filter.AuthorID.String()})
		ds = ds.Where(goqu.C("id").In(byAuthor))
	}

	ds = ds.Order(goqu.C("title").Asc(), goqu.C("isbn_13").Asc()).
		Limit(uint(page.Limit)).
		Offset(uint(page.Offset))

	editions, err := selectAll(ctx, tx, "list editions", ds, scanEdition)
	if err != nil {
		return nil, err
	}

	return tx.withAuthors(ctx, editions)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
