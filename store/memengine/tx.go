package memengine

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/store"
)

const (
	lockPrefixCopy   = "copy:"
	lockPrefixMember = "member:"
)

// Tx stages writes until commit. It is not safe for concurrent use.
type Tx struct {
	store    *Store
	readOnly bool
	held     []string

	libraries    map[uuid.UUID]core.Library
	staff        map[uuid.UUID]core.LibraryStaff
	members      map[uuid.UUID]core.LibraryMember
	copies       map[uuid.UUID]core.BookCopy
	transactions map[uuid.UUID]core.BorrowingTransaction
	events       []core.TransactionEvent
	authors      map[uuid.UUID]core.Author
	editions     map[uuid.UUID]core.BookEdition
}

var _ store.Tx = (*Tx)(nil)

func newTx(s *Store, readOnly bool) *Tx {
	return &Tx{
		store:        s,
		readOnly:     readOnly,
		libraries:    make(map[uuid.UUID]core.Library),
		staff:        make(map[uuid.UUID]core.LibraryStaff),
		members:      make(map[uuid.UUID]core.LibraryMember),
		copies:       make(map[uuid.UUID]core.BookCopy),
		transactions: make(map[uuid.UUID]core.BorrowingTransaction),
		authors:      make(map[uuid.UUID]core.Author),
		editions:     make(map[uuid.UUID]core.BookEdition),
	}
}

func (tx *Tx) lock(ctx context.Context, key string) error {
	if tx.readOnly {
		return ErrReadOnlyUnit
	}

	if slices.Contains(tx.held, key) {
		return nil
	}

	if err := tx.store.locks.acquire(ctx, key, tx.store.lockTimeout); err != nil {
		return err
	}

	tx.held = append(tx.held, key)

	return nil
}

func (tx *Tx) releaseLocks() {
	for i := len(tx.held) - 1; i >= 0; i-- {
		tx.store.locks.release(tx.held[i])
	}

	tx.held = nil
}

func (tx *Tx) writable() error {
	if tx.readOnly {
		return ErrReadOnlyUnit
	}

	return nil
}

func lookup[T any](s *Store, staged, committed map[uuid.UUID]T, id uuid.UUID) (T, bool) {
	if v, ok := staged[id]; ok {
		return v, true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := committed[id]

	return v, ok
}

func merged[T any](s *Store, staged, committed map[uuid.UUID]T) []T {
	s.mu.RLock()
	view := maps.Clone(committed)
	s.mu.RUnlock()

	if view == nil {
		view = make(map[uuid.UUID]T)
	}

	maps.Copy(view, staged)

	return slices.Collect(maps.Values(view))
}

// libraries

func (tx *Tx) GetLibrary(_ context.Context, id uuid.UUID) (core.Library, error) {
	library, ok := lookup(tx.store, tx.libraries, tx.store.libraries, id)
	if !ok {
		return core.Library{}, core.ErrNotFound
	}

	return library, nil
}

func (tx *Tx) GetLibraryByCode(_ context.Context, code string) (core.Library, error) {
	for _, library := range merged(tx.store, tx.libraries, tx.store.libraries) {
		if library.Code == code {
			return library, nil
		}
	}

	return core.Library{}, core.ErrNotFound
}

func (tx *Tx) SaveLibrary(_ context.Context, library core.Library) error {
	if err := tx.writable(); err != nil {
		return err
	}

	tx.libraries[library.ID] = library

	return nil
}

// staff

func (tx *Tx) GetStaff(_ context.Context, libraryID, userID uuid.UUID) (core.LibraryStaff, error) {
	for _, staff := range merged(tx.store, tx.staff, tx.store.staff) {
		if staff.LibraryID == libraryID && staff.UserID == userID {
			return staff, nil
		}
	}

	return core.LibraryStaff{}, core.ErrNotFound
}

func (tx *Tx) GetStaffByID(_ context.Context, libraryID, staffID uuid.UUID) (core.LibraryStaff, error) {
	staff, ok := lookup(tx.store, tx.staff, tx.store.staff, staffID)
	if !ok || staff.LibraryID != libraryID {
		return core.LibraryStaff{}, core.ErrNotFound
	}

	return staff, nil
}

func (tx *Tx) ListStaffByUser(_ context.Context, userID uuid.UUID) ([]core.LibraryStaff, error) {
	var rows []core.LibraryStaff

	for _, staff := range merged(tx.store, tx.staff, tx.store.staff) {
		if staff.UserID == userID {
			rows = append(rows, staff)
		}
	}

	slices.SortFunc(rows, func(a, b core.LibraryStaff) int { return strings.Compare(a.ID.String(), b.ID.String()) })

	return rows, nil
}

func (tx *Tx) SaveStaff(_ context.Context, staff core.LibraryStaff) error {
	if err := tx.writable(); err != nil {
		return err
	}

	tx.staff[staff.ID] = staff

	return nil
}

// members

func (tx *Tx) GetMember(_ context.Context, libraryID, memberID uuid.UUID) (core.LibraryMember, error) {
	member, ok := lookup(tx.store, tx.members, tx.store.members, memberID)
	if !ok || member.LibraryID != libraryID {
		return core.LibraryMember{}, core.ErrNotFound
	}

	return member, nil
}

func (tx *Tx) LockMember(ctx context.Context, libraryID, memberID uuid.UUID) (core.LibraryMember, error) {
	if err := tx.lock(ctx, lockPrefixMember+memberID.String()); err != nil {
		return core.LibraryMember{}, err
	}

	return tx.GetMember(ctx, libraryID, memberID)
}

func (tx *Tx) SaveMember(_ context.Context, member core.LibraryMember) error {
	if err := tx.writable(); err != nil {
		return err
	}

	tx.members[member.ID] = member

	return nil
}

// copies

func (tx *Tx) GetCopy(_ context.Context, libraryID, copyID uuid.UUID) (core.BookCopy, error) {
	bookCopy, ok := lookup(tx.store, tx.copies, tx.store.copies, copyID)
	if !ok || bookCopy.LibraryID != libraryID {
		return core.BookCopy{}, core.ErrNotFound
	}

	return bookCopy.Clone(), nil
}

func (tx *Tx) LockCopy(ctx context.Context, libraryID, copyID uuid.UUID) (core.BookCopy, error) {
	if err := tx.lock(ctx, lockPrefixCopy+copyID.String()); err != nil {
		return core.BookCopy{}, err
	}

	return tx.GetCopy(ctx, libraryID, copyID)
}

func (tx *Tx) SaveCopy(_ context.Context, bookCopy core.BookCopy) error {
	if err := tx.writable(); err != nil {
		return err
	}

	tx.copies[bookCopy.ID] = bookCopy.Clone()

	return nil
}

func (tx *Tx) ListCopies(_ context.Context, libraryID uuid.UUID, page store.Page) ([]core.BookCopy, error) {
	var rows []core.BookCopy

	for _, bookCopy := range merged(tx.store, tx.copies, tx.store.copies) {
		if bookCopy.LibraryID == libraryID && !bookCopy.Deleted.IsDeleted {
			rows = append(rows, bookCopy.Clone())
		}
	}

	slices.SortFunc(rows, func(a, b core.BookCopy) int {
		return cmp.Or(
			strings.Compare(a.EditionID.String(), b.EditionID.String()),
			cmp.Compare(a.CopyNumber, b.CopyNumber),
		)
	})

	return paginate(rows, page), nil
}

// transactions

func (tx *Tx) GetTransaction(_ context.Context, libraryID, transactionID uuid.UUID) (core.BorrowingTransaction, error) {
	transaction, ok := lookup(tx.store, tx.transactions, tx.store.transactions, transactionID)
	if !ok || transaction.LibraryID != libraryID {
		return core.BorrowingTransaction{}, core.ErrNotFound
	}

	return transaction, nil
}

func (tx *Tx) SaveTransaction(_ context.Context, transaction core.BorrowingTransaction) error {
	if err := tx.writable(); err != nil {
		return err
	}

	tx.transactions[transaction.ID] = transaction

	return nil
}

func (tx *Tx) filterTransactions(match func(core.BorrowingTransaction) bool) []core.BorrowingTransaction {
	var rows []core.BorrowingTransaction

	for _, transaction := range merged(tx.store, tx.transactions, tx.store.transactions) {
		if match(transaction) {
			rows = append(rows, transaction)
		}
	}

	slices.SortFunc(rows, func(a, b core.BorrowingTransaction) int {
		return cmp.Or(
			a.TransactionDate.Compare(b.TransactionDate),
			strings.Compare(a.ID.String(), b.ID.String()),
		)
	})

	return rows
}

func (tx *Tx) FindOpenLoan(_ context.Context, libraryID, copyID uuid.UUID) (core.BorrowingTransaction, error) {
	rows := tx.filterTransactions(func(t core.BorrowingTransaction) bool {
		return t.LibraryID == libraryID && t.CopyID == copyID && t.IsOpenLoan()
	})

	if len(rows) == 0 {
		return core.BorrowingTransaction{}, core.ErrNotFound
	}

	return rows[0], nil
}

func (tx *Tx) FindOpenHold(_ context.Context, libraryID, copyID, memberID uuid.UUID) (core.BorrowingTransaction, error) {
	rows := tx.filterTransactions(func(t core.BorrowingTransaction) bool {
		return t.LibraryID == libraryID && t.CopyID == copyID && t.MemberID == memberID && t.IsOpenHold()
	})

	if len(rows) == 0 {
		return core.BorrowingTransaction{}, core.ErrNotFound
	}

	return rows[0], nil
}

func (tx *Tx) ListOpenHoldsByMember(_ context.Context, libraryID, memberID uuid.UUID) ([]core.BorrowingTransaction, error) {
	return tx.filterTransactions(func(t core.BorrowingTransaction) bool {
		return t.LibraryID == libraryID && t.MemberID == memberID && t.IsOpenHold()
	}), nil
}

func (tx *Tx) CountOpenLoansByMember(_ context.Context, libraryID, memberID uuid.UUID) (int, error) {
	return len(tx.filterTransactions(func(t core.BorrowingTransaction) bool {
		return t.LibraryID == libraryID && t.MemberID == memberID && t.IsOpenLoan()
	})), nil
}

func (tx *Tx) ListLoansDueBefore(_ context.Context, libraryID uuid.UUID, t time.Time) ([]core.BorrowingTransaction, error) {
	rows := tx.filterTransactions(func(tr core.BorrowingTransaction) bool {
		return tr.LibraryID == libraryID && tr.Type == core.TransactionCheckout &&
			tr.Status == core.StatusActive && tr.DueDate.Before(t)
	})

	slices.SortStableFunc(rows, func(a, b core.BorrowingTransaction) int { return a.DueDate.Compare(b.DueDate) })

	return rows, nil
}

// events

func (tx *Tx) AppendEvent(_ context.Context, event core.TransactionEvent) error {
	if err := tx.writable(); err != nil {
		return err
	}

	event.Payload = slices.Clone(event.Payload)
	tx.events = append(tx.events, event)

	return nil
}

func (tx *Tx) ListEvents(_ context.Context, libraryID, transactionID uuid.UUID) ([]core.TransactionEvent, error) {
	tx.store.mu.RLock()
	all := append(slices.Clone(tx.store.events), tx.events...)
	tx.store.mu.RUnlock()

	var rows []core.TransactionEvent

	for _, event := range all {
		if event.LibraryID == libraryID && event.TransactionID == transactionID {
			rows = append(rows, event)
		}
	}

	slices.SortStableFunc(rows, func(a, b core.TransactionEvent) int { return a.OccurredAt.Compare(b.OccurredAt) })

	return rows, nil
}

// catalog

func (tx *Tx) GetAuthor(_ context.Context, id uuid.UUID) (core.Author, error) {
	author, ok := lookup(tx.store, tx.authors, tx.store.authors, id)
	if !ok {
		return core.Author{}, core.ErrNotFound
	}

	return author, nil
}

func (tx *Tx) SaveAuthor(_ context.Context, author core.Author) error {
	if err := tx.writable(); err != nil {
		return err
	}

	tx.authors[author.ID] = author

	return nil
}

func (tx *Tx) GetEdition(_ context.Context, id uuid.UUID) (core.BookEdition, error) {
	edition, ok := lookup(tx.store, tx.editions, tx.store.editions, id)
	if !ok {
		return core.BookEdition{}, core.ErrNotFound
	}

	return cloneEdition(edition), nil
}

func (tx *Tx) FindEditionByISBN(_ context.Context, isbn13 string) (core.BookEdition, error) {
	for _, edition := range merged(tx.store, tx.editions, tx.store.editions) {
		if edition.ISBN13 == isbn13 {
			return cloneEdition(edition), nil
		}
	}

	return core.BookEdition{}, core.ErrNotFound
}

func (tx *Tx) SaveEdition(_ context.Context, edition core.BookEdition) error {
	if err := tx.writable(); err != nil {
		return err
	}

	tx.editions[edition.ID] = cloneEdition(edition)

	return nil
}

func (tx *Tx) ListEditions(_ context.Context, filter core.EditionFilter) ([]core.BookEdition, error) {
	var rows []core.BookEdition

	prefix := strings.ToLower(filter.TitlePrefix)

	for _, edition := range merged(tx.store, tx.editions, tx.store.editions) {
		if prefix != "" && !strings.HasPrefix(strings.ToLower(edition.Title), prefix) {
			continue
		}

		if filter.Language != "" && edition.Language != filter.Language {
			continue
		}

		if filter.AuthorID != uuid.Nil && !slices.Contains(edition.AuthorIDs, filter.AuthorID) {
			continue
		}

		rows = append(rows, cloneEdition(edition))
	}

	slices.SortFunc(rows, func(a, b core.BookEdition) int {
		return cmp.Or(strings.Compare(a.Title, b.Title), strings.Compare(a.ISBN13, b.ISBN13))
	})

	return paginate(rows, store.Page{Limit: filter.Limit, Offset: filter.Offset}), nil
}

func paginate[T any](rows []T, page store.Page) []T {
	page = page.Normalized()

	if page.Offset >= len(rows) {
		return nil
	}

	end := min(page.Offset+page.Limit, len(rows))

	return rows[page.Offset:end]
}
