package circulation

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/shell"
)

// AdjustFees replaces the damage and processing fees of a settled loan, keeping its late fee.
// Settled transactions are otherwise immutable.
func (e *Engine) AdjustFees(ctx context.Context, req AdjustFeesRequest) (core.BorrowingTransaction, shell.HandlerResult, error) {
	var loan core.BorrowingTransaction

	result, err := e.observer.Run(ctx, operationAdjustFees, operationAttrs(req.LibraryID, uuid.Nil), e.retryOptions,
		func(ctx context.Context) (bool, error) {
			if err := e.requireLoans(ctx, req.ActingUserID, req.LibraryID); err != nil {
				return false, err
			}

			if req.DamageFeeCents < 0 || req.ProcessingFeeCents < 0 {
				return false, errors.Join(core.ErrInvalidInput, errors.New("fees must not be negative"))
			}

			var unchanged bool

			err := e.inUnit(ctx, req.LibraryID, req.ActingUserID, func(ctx context.Context, u *unit) error {
				var err error
				loan, unchanged, err = u.adjustFees(ctx, req)

				return err
			})

			return unchanged, err
		},
		shell.LogAttrUserID, req.ActingUserID.String(),
		shell.LogAttrTransactionID, req.TransactionID.String(),
	)

	return loan, result, err
}

func (u *unit) adjustFees(ctx context.Context, req AdjustFeesRequest) (core.BorrowingTransaction, bool, error) {
	loan, err := u.getTransaction(ctx, req.TransactionID)
	if err != nil {
		return core.BorrowingTransaction{}, false, err
	}

	if loan.Type != core.TransactionCheckout {
		return core.BorrowingTransaction{}, false, errors.Join(core.ErrTransactionNotFound, errors.New("not a loan"))
	}

	if loan.IsOpen() {
		return core.BorrowingTransaction{}, false, errors.Join(core.ErrInvalidInput, errors.New("loan is not settled yet"))
	}

	fees := core.NewFees(loan.Fees.Late, req.DamageFeeCents, req.ProcessingFeeCents)
	if fees == loan.Fees {
		return loan, true, nil
	}

	loan.Fees = fees

	if loan, err = u.saveTransaction(ctx, loan); err != nil {
		return core.BorrowingTransaction{}, false, err
	}

	err = u.audit(ctx, loan, core.EventFeesAdjusted, core.EventPayload{
		CopyID: loan.CopyID.String(),
		Fees:   ptr(loan.Fees),
		Reason: req.Reason,
	})

	return loan, false, err
}
