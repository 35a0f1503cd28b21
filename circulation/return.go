package circulation

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/inventory"
	"github.com/AntonStoeckl/circulation-core/shell"
)

// ReturnCopy settles an open loan. The late fee is the number of started days past the due
// date times the library's daily rate. With members queued the copy goes on hold for the
// queue head.
func (e *Engine) ReturnCopy(ctx context.Context, req ReturnRequest) (core.BorrowingTransaction, shell.HandlerResult, error) {
	var loan core.BorrowingTransaction

	result, err := e.observer.Run(ctx, operationReturn, operationAttrs(req.LibraryID, uuid.Nil), e.retryOptions,
		func(ctx context.Context) (bool, error) {
			if err := e.requireLoans(ctx, req.ActingUserID, req.LibraryID); err != nil {
				return false, err
			}

			if req.DamageFeeCents < 0 || req.ProcessingFeeCents < 0 {
				return false, errors.Join(core.ErrInvalidInput, errors.New("fees must not be negative"))
			}

			return false, e.inUnit(ctx, req.LibraryID, req.ActingUserID, func(ctx context.Context, u *unit) error {
				var err error
				loan, err = u.returnCopy(ctx, req)

				return err
			})
		},
		shell.LogAttrUserID, req.ActingUserID.String(),
		shell.LogAttrTransactionID, req.TransactionID.String(),
	)

	return loan, result, err
}

func (u *unit) returnCopy(ctx context.Context, req ReturnRequest) (core.BorrowingTransaction, error) {
	loan, bookCopy, err := u.loadLoan(ctx, req.TransactionID)
	if err != nil {
		return core.BorrowingTransaction{}, err
	}

	member, err := u.tx.LockMember(ctx, u.library.ID, loan.MemberID)
	if err != nil {
		return core.BorrowingTransaction{}, err
	}

	next, err := inventory.Return(bookCopy)
	if err != nil {
		return core.BorrowingTransaction{}, errors.Join(core.ErrInvariantViolation, err)
	}

	if err := u.saveCopy(ctx, next, 0); err != nil {
		return core.BorrowingTransaction{}, err
	}

	if loan.Status == core.StatusOverdue {
		member.Stats.OverdueCount = max(member.Stats.OverdueCount-1, 0)
	}

	member.Stats.CurrentLoanCount = max(member.Stats.CurrentLoanCount-1, 0)
	if err := u.saveMember(ctx, member); err != nil {
		return core.BorrowingTransaction{}, err
	}

	lateFee := int64(loan.DaysLate(u.now)) * u.library.Settings.LateFeePerDayCents

	loan.Status = core.StatusReturned
	loan.ReturnDate = u.now
	loan.Fees = core.NewFees(lateFee, req.DamageFeeCents, req.ProcessingFeeCents)

	if loan, err = u.saveTransaction(ctx, loan); err != nil {
		return core.BorrowingTransaction{}, err
	}

	err = u.audit(ctx, loan, core.EventReturned, core.EventPayload{
		CopyID:             bookCopy.ID.String(),
		ReturnDate:         ptr(loan.ReturnDate),
		Fees:               ptr(loan.Fees),
		AvailabilityStatus: next.Availability.Status,
	})

	return loan, err
}
