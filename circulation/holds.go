package circulation

import (
	"context"
	"errors"

	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/inventory"
	"github.com/AntonStoeckl/circulation-core/shell"
)

const reasonCancelledByRequest = "cancelled on request"

// PlaceHold appends the member to the copy's FIFO hold queue. A hold on an idle copy
// reserves it for the member right away.
func (e *Engine) PlaceHold(ctx context.Context, req HoldRequest) (core.BorrowingTransaction, shell.HandlerResult, error) {
	var hold core.BorrowingTransaction

	result, err := e.observer.Run(ctx, operationPlaceHold, operationAttrs(req.LibraryID, req.CopyID), e.retryOptions,
		func(ctx context.Context) (bool, error) {
			if err := e.requireLoans(ctx, req.ActingUserID, req.LibraryID); err != nil {
				return false, err
			}

			return false, e.inUnit(ctx, req.LibraryID, req.ActingUserID, func(ctx context.Context, u *unit) error {
				var err error
				hold, err = u.placeHold(ctx, req)

				return err
			})
		},
		shell.LogAttrUserID, req.ActingUserID.String(),
		shell.LogAttrCopyID, req.CopyID.String(),
		shell.LogAttrMemberID, req.MemberID.String(),
	)

	return hold, result, err
}

func (u *unit) placeHold(ctx context.Context, req HoldRequest) (core.BorrowingTransaction, error) {
	bookCopy, err := u.lockLiveCopy(ctx, req.CopyID)
	if err != nil {
		return core.BorrowingTransaction{}, err
	}

	member, err := u.lockLiveMember(ctx, req.MemberID)
	if err != nil {
		return core.BorrowingTransaction{}, err
	}

	if !member.MayBorrow(u.now) {
		return core.BorrowingTransaction{}, core.ErrMemberIneligible
	}

	next, position, err := inventory.Hold(bookCopy, member.ID)
	if err != nil {
		return core.BorrowingTransaction{}, err
	}

	openLoans, err := u.openLoansOf(ctx, bookCopy.ID)
	if err != nil {
		return core.BorrowingTransaction{}, err
	}

	if err := u.saveCopy(ctx, next, openLoans); err != nil {
		return core.BorrowingTransaction{}, err
	}

	hold, err := u.newTransaction(member.ID, bookCopy.ID, core.TransactionHold)
	if err != nil {
		return core.BorrowingTransaction{}, err
	}

	if hold, err = u.saveTransaction(ctx, hold); err != nil {
		return core.BorrowingTransaction{}, err
	}

	err = u.audit(ctx, hold, core.EventHoldPlaced, core.EventPayload{
		CopyID:             bookCopy.ID.String(),
		QueuePosition:      ptr(position),
		AvailabilityStatus: next.Availability.Status,
	})

	return hold, err
}

// CancelHold removes the member from the queue and closes the hold as cancelled. When the
// reserved head leaves, the next member in line becomes the head.
func (e *Engine) CancelHold(ctx context.Context, req CancelHoldRequest) (core.BorrowingTransaction, shell.HandlerResult, error) {
	var hold core.BorrowingTransaction

	result, err := e.observer.Run(ctx, operationCancelHold, operationAttrs(req.LibraryID, req.CopyID), e.retryOptions,
		func(ctx context.Context) (bool, error) {
			if err := e.requireLoans(ctx, req.ActingUserID, req.LibraryID); err != nil {
				return false, err
			}

			return false, e.inUnit(ctx, req.LibraryID, req.ActingUserID, func(ctx context.Context, u *unit) error {
				var err error
				hold, err = u.cancelHold(ctx, req)

				return err
			})
		},
		shell.LogAttrUserID, req.ActingUserID.String(),
		shell.LogAttrCopyID, req.CopyID.String(),
		shell.LogAttrMemberID, req.MemberID.String(),
	)

	return hold, result, err
}

func (u *unit) cancelHold(ctx context.Context, req CancelHoldRequest) (core.BorrowingTransaction, error) {
	bookCopy, err := u.lockLiveCopy(ctx, req.CopyID)
	if err != nil {
		return core.BorrowingTransaction{}, err
	}

	next, err := inventory.CancelHold(bookCopy, req.MemberID)
	if err != nil {
		return core.BorrowingTransaction{}, err
	}

	hold, err := u.tx.FindOpenHold(ctx, u.library.ID, bookCopy.ID, req.MemberID)
	if errors.Is(err, core.ErrNotFound) {
		return core.BorrowingTransaction{}, errors.Join(core.ErrInvariantViolation, errors.New("queued member without hold transaction"))
	}

	if err != nil {
		return core.BorrowingTransaction{}, err
	}

	openLoans, err := u.openLoansOf(ctx, bookCopy.ID)
	if err != nil {
		return core.BorrowingTransaction{}, err
	}

	if err := u.saveCopy(ctx, next, openLoans); err != nil {
		return core.BorrowingTransaction{}, err
	}

	hold.Status = core.StatusCancelled

	if hold, err = u.saveTransaction(ctx, hold); err != nil {
		return core.BorrowingTransaction{}, err
	}

	err = u.audit(ctx, hold, core.EventHoldCancelled, core.EventPayload{
		CopyID:             bookCopy.ID.String(),
		AvailabilityStatus: next.Availability.Status,
		Reason:             reasonCancelledByRequest,
	})

	return hold, err
}
