package circulation

import (
	"context"
	"errors"

	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/inventory"
	"github.com/AntonStoeckl/circulation-core/shell"
)

// Checkout lends the copy to the member for one loan period.
//
// A copy on hold can only be checked out by the head of its queue; that pickup closes the
// member's hold in the same unit, and the checked_out event names the fulfilled hold.
func (e *Engine) Checkout(ctx context.Context, req CheckoutRequest) (core.BorrowingTransaction, shell.HandlerResult, error) {
	var loan core.BorrowingTransaction

	result, err := e.observer.Run(ctx, operationCheckout, operationAttrs(req.LibraryID, req.CopyID), e.retryOptions,
		func(ctx context.Context) (bool, error) {
			if err := e.requireLoans(ctx, req.ActingUserID, req.LibraryID); err != nil {
				return false, err
			}

			return false, e.inUnit(ctx, req.LibraryID, req.ActingUserID, func(ctx context.Context, u *unit) error {
				var err error
				loan, err = u.checkout(ctx, req)

				return err
			})
		},
		shell.LogAttrUserID, req.ActingUserID.String(),
		shell.LogAttrCopyID, req.CopyID.String(),
		shell.LogAttrMemberID, req.MemberID.String(),
	)

	return loan, result, err
}

func (u *unit) checkout(ctx context.Context, req CheckoutRequest) (core.BorrowingTransaction, error) {
	bookCopy, err := u.lockLiveCopy(ctx, req.CopyID)
	if err != nil {
		return core.BorrowingTransaction{}, err
	}

	member, err := u.lockLiveMember(ctx, req.MemberID)
	if err != nil {
		return core.BorrowingTransaction{}, err
	}

	loansHeld, err := u.tx.CountOpenLoansByMember(ctx, u.library.ID, member.ID)
	if err != nil {
		return core.BorrowingTransaction{}, err
	}

	member.Stats.CurrentLoanCount = loansHeld

	next, err := inventory.Checkout(bookCopy, member, u.library.Settings, u.now)
	if err != nil {
		return core.BorrowingTransaction{}, err
	}

	var fulfilledHoldID string

	if reservedFor, ok := bookCopy.Availability.ReservedFor(); ok && reservedFor == member.ID {
		hold, err := u.fulfillHold(ctx, bookCopy, member)
		if err != nil {
			return core.BorrowingTransaction{}, err
		}

		fulfilledHoldID = hold.ID.String()
	}

	if err := u.saveCopy(ctx, next, 1); err != nil {
		return core.BorrowingTransaction{}, err
	}

	member.Stats.CurrentLoanCount++
	if err := u.saveMember(ctx, member); err != nil {
		return core.BorrowingTransaction{}, err
	}

	loan, err := u.newTransaction(member.ID, bookCopy.ID, core.TransactionCheckout)
	if err != nil {
		return core.BorrowingTransaction{}, err
	}

	loan.DueDate = next.Availability.DueDate

	if loan, err = u.saveTransaction(ctx, loan); err != nil {
		return core.BorrowingTransaction{}, err
	}

	err = u.audit(ctx, loan, core.EventCheckedOut, core.EventPayload{
		CopyID:             bookCopy.ID.String(),
		DueDate:            ptr(loan.DueDate),
		AvailabilityStatus: next.Availability.Status,
		FulfilledHoldID:    fulfilledHoldID,
	})

	return loan, err
}

func (u *unit) fulfillHold(ctx context.Context, bookCopy core.BookCopy, member core.LibraryMember) (core.BorrowingTransaction, error) {
	hold, err := u.tx.FindOpenHold(ctx, u.library.ID, bookCopy.ID, member.ID)
	if errors.Is(err, core.ErrNotFound) {
		return core.BorrowingTransaction{}, errors.Join(core.ErrInvariantViolation, errors.New("reserved member without hold transaction"))
	}

	if err != nil {
		return core.BorrowingTransaction{}, err
	}

	hold.Status = core.StatusReturned
	hold.ReturnDate = u.now

	return u.saveTransaction(ctx, hold)
}
