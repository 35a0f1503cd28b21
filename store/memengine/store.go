package memengine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/store"
)

// ErrReadOnlyUnit is returned when a read-only unit tries to write or lock.
var ErrReadOnlyUnit = errors.New("write attempted in read-only unit")

// Store keeps all state in maps guarded by one RWMutex.
type Store struct {
	mu           sync.RWMutex
	libraries    map[uuid.UUID]core.Library
	staff        map[uuid.UUID]core.LibraryStaff
	members      map[uuid.UUID]core.LibraryMember
	copies       map[uuid.UUID]core.BookCopy
	transactions map[uuid.UUID]core.BorrowingTransaction
	events       []core.TransactionEvent
	authors      map[uuid.UUID]core.Author
	editions     map[uuid.UUID]core.BookEdition

	locks       *lockTable
	lockTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout makes lock waits longer than d fail with core.ErrConcurrentModification,
// like lock_timeout does on PostgreSQL. Zero waits until the context ends.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.lockTimeout = d
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		libraries:    make(map[uuid.UUID]core.Library),
		staff:        make(map[uuid.UUID]core.LibraryStaff),
		members:      make(map[uuid.UUID]core.LibraryMember),
		copies:       make(map[uuid.UUID]core.BookCopy),
		transactions: make(map[uuid.UUID]core.BorrowingTransaction),
		authors:      make(map[uuid.UUID]core.Author),
		editions:     make(map[uuid.UUID]core.BookEdition),
		locks:        newLockTable(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// RunInTx runs fn and commits its staged writes if fn succeeds and ctx is still alive.
func (s *Store) RunInTx(ctx context.Context, fn store.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := newTx(s, false)
	defer tx.releaseLocks()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return s.commit(tx)
}

// RunReadOnly runs fn without staging or locking.
func (s *Store) RunReadOnly(ctx context.Context, fn store.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fn(ctx, newTx(s, true))
}

// EventCount returns the number of committed audit events.
func (s *Store) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.events)
}

func (s *Store) commit(tx *Tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUniqueness(tx); err != nil {
		return err
	}

	for id, v := range tx.libraries {
		s.libraries[id] = v
	}

	for id, v := range tx.staff {
		s.staff[id] = v
	}

	for id, v := range tx.members {
		s.members[id] = v
	}

	for id, v := range tx.copies {
		s.copies[id] = v
	}

	for id, v := range tx.transactions {
		s.transactions[id] = v
	}

	for id, v := range tx.authors {
		s.authors[id] = v
	}

	for id, v := range tx.editions {
		s.editions[id] = v
	}

	s.events = append(s.events, tx.events...)

	return nil
}

// checkUniqueness enforces the unique indexes of the relational schema. Callers hold s.mu.
func (s *Store) checkUniqueness(tx *Tx) error {
	for id, library := range tx.libraries {
		for otherID, other := range s.libraries {
			if otherID != id && other.Code == library.Code {
				return conflict("library code %q", library.Code)
			}
		}
	}

	for id, staff := range tx.staff {
		for otherID, other := range s.staff {
			if otherID != id && other.UserID == staff.UserID && other.LibraryID == staff.LibraryID {
				return conflict("staff row for user in library")
			}
		}
	}

	for id, member := range tx.members {
		for otherID, other := range s.members {
			if otherID != id && other.LibraryID == member.LibraryID && other.MemberNumber == member.MemberNumber {
				return conflict("member number %q", member.MemberNumber)
			}
		}
	}

	for id, bookCopy := range tx.copies {
		for otherID, other := range s.copies {
			if otherID != id && other.LibraryID == bookCopy.LibraryID &&
				other.EditionID == bookCopy.EditionID && other.CopyNumber == bookCopy.CopyNumber {
				return conflict("copy number %d", bookCopy.CopyNumber)
			}
		}
	}

	for id, edition := range tx.editions {
		for otherID, other := range s.editions {
			if otherID != id && other.ISBN13 == edition.ISBN13 {
				return conflict("isbn %s", edition.ISBN13)
			}
		}
	}

	for id, transaction := range tx.transactions {
		if !transaction.IsOpenLoan() {
			continue
		}

		for otherID, other := range s.transactions {
			if otherID != id && other.IsOpenLoan() && other.CopyID == transaction.CopyID {
				if staged, ok := tx.transactions[otherID]; ok && !staged.IsOpenLoan() {
					continue
				}

				return errors.Join(core.ErrCopyUnavailable, errors.New("copy already has an open loan"))
			}
		}
	}

	return nil
}

func conflict(format string, args ...any) error {
	return errors.Join(core.ErrConflict, fmt.Errorf(format, args...))
}

func cloneEdition(e core.BookEdition) core.BookEdition {
	e.AuthorIDs = slices.Clone(e.AuthorIDs)
	return e
}
