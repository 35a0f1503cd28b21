package circulation

import (
	"context"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/inventory"
	"github.com/AntonStoeckl/circulation-core/shell"
)

// Renew extends an open loan by one loan period. It fails with core.ErrRenewalLimitReached
// after max_renewals renewals and with core.ErrCopyUnavailable while members are queued.
// An overdue loan whose new due date lies in the future becomes active again.
func (e *Engine) Renew(ctx context.Context, req RenewRequest) (core.BorrowingTransaction, shell.HandlerResult, error) {
	var loan core.BorrowingTransaction

	result, err := e.observer.Run(ctx, operationRenew, operationAttrs(req.LibraryID, uuid.Nil), e.retryOptions,
		func(ctx context.Context) (bool, error) {
			if err := e.requireLoans(ctx, req.ActingUserID, req.LibraryID); err != nil {
				return false, err
			}

			return false, e.inUnit(ctx, req.LibraryID, req.ActingUserID, func(ctx context.Context, u *unit) error {
				var err error
				loan, err = u.renew(ctx, req)

				return err
			})
		},
		shell.LogAttrUserID, req.ActingUserID.String(),
		shell.LogAttrTransactionID, req.TransactionID.String(),
	)

	return loan, result, err
}

func (u *unit) renew(ctx context.Context, req RenewRequest) (core.BorrowingTransaction, error) {
	loan, bookCopy, err := u.loadLoan(ctx, req.TransactionID)
	if err != nil {
		return core.BorrowingTransaction{}, err
	}

	next, err := inventory.Renew(bookCopy, loan.RenewalCount, u.library.Settings)
	if err != nil {
		return core.BorrowingTransaction{}, err
	}

	if err := u.saveCopy(ctx, next, 1); err != nil {
		return core.BorrowingTransaction{}, err
	}

	previousDueDate := loan.DueDate
	loan.DueDate = next.Availability.DueDate
	loan.RenewalCount++

	if loan.Status == core.StatusOverdue && loan.DueDate.After(u.now) {
		member, err := u.tx.LockMember(ctx, u.library.ID, loan.MemberID)
		if err != nil {
			return core.BorrowingTransaction{}, err
		}

		member.Stats.OverdueCount = max(member.Stats.OverdueCount-1, 0)
		if err := u.saveMember(ctx, member); err != nil {
			return core.BorrowingTransaction{}, err
		}

		loan.Status = core.StatusActive
	}

	if loan, err = u.saveTransaction(ctx, loan); err != nil {
		return core.BorrowingTransaction{}, err
	}

	err = u.audit(ctx, loan, core.EventRenewed, core.EventPayload{
		CopyID:          bookCopy.ID.String(),
		DueDate:         ptr(loan.DueDate),
		PreviousDueDate: ptr(previousDueDate),
		RenewalCount:    ptr(loan.RenewalCount),
	})

	return loan, err
}
