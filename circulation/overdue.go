package circulation

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/shell"
)

// MarkOverdue flags every active loan due before req.AsOf as overdue and bumps the
// borrowers' overdue counters. It returns the number of loans it flagged; a sweep that finds
// nothing is idempotent. Background jobs call it with access.SystemUserID.
func (e *Engine) MarkOverdue(ctx context.Context, req MarkOverdueRequest) (int, shell.HandlerResult, error) {
	var flagged int

	result, err := e.observer.Run(ctx, operationMarkOverdue, operationAttrs(req.LibraryID, uuid.Nil), e.retryOptions,
		func(ctx context.Context) (bool, error) {
			if err := e.requireLoans(ctx, req.ActingUserID, req.LibraryID); err != nil {
				return false, err
			}

			err := e.inUnit(ctx, req.LibraryID, req.ActingUserID, func(ctx context.Context, u *unit) error {
				var err error
				flagged, err = u.markOverdue(ctx, req)

				return err
			})

			return flagged == 0, err
		},
		shell.LogAttrUserID, req.ActingUserID.String(),
	)

	return flagged, result, err
}

func (u *unit) markOverdue(ctx context.Context, req MarkOverdueRequest) (int, error) {
	asOf := req.AsOf.UTC()
	if req.AsOf.IsZero() {
		asOf = u.now
	}

	candidates, err := u.tx.ListLoansDueBefore(ctx, u.library.ID, asOf)
	if err != nil {
		return 0, err
	}

	if len(candidates) == 0 {
		return 0, nil
	}

	// all copies first, then all members, each in id order
	for _, copyID := range sortedIDs(candidates, func(t core.BorrowingTransaction) uuid.UUID { return t.CopyID }) {
		if _, err := u.tx.LockCopy(ctx, u.library.ID, copyID); err != nil {
			return 0, err
		}
	}

	members := make(map[uuid.UUID]core.LibraryMember)

	for _, memberID := range sortedIDs(candidates, func(t core.BorrowingTransaction) uuid.UUID { return t.MemberID }) {
		member, err := u.tx.LockMember(ctx, u.library.ID, memberID)
		if err != nil {
			return 0, err
		}

		members[memberID] = member
	}

	flagged := 0

	for _, candidate := range candidates {
		loan, err := u.getTransaction(ctx, candidate.ID)
		if err != nil {
			return 0, err
		}

		if loan.Status != core.StatusActive || !loan.DueDate.Before(asOf) {
			continue
		}

		loan.Status = core.StatusOverdue
		if loan, err = u.saveTransaction(ctx, loan); err != nil {
			return 0, err
		}

		member := members[loan.MemberID]
		member.Stats.OverdueCount++
		members[loan.MemberID] = member

		err = u.audit(ctx, loan, core.EventMarkedOverdue, core.EventPayload{
			CopyID:  loan.CopyID.String(),
			DueDate: ptr(loan.DueDate),
		})
		if err != nil {
			return 0, err
		}

		flagged++
	}

	for _, member := range members {
		if err := u.saveMember(ctx, member); err != nil {
			return 0, err
		}
	}

	return flagged, nil
}

func sortedIDs(loans []core.BorrowingTransaction, key func(core.BorrowingTransaction) uuid.UUID) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(loans))
	for _, loan := range loans {
		ids = append(ids, key(loan))
	}

	slices.SortFunc(ids, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })

	return slices.Compact(ids)
}
