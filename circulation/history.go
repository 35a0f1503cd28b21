package circulation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-core/access"
	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/shell"
	"github.com/AntonStoeckl/circulation-core/store"
)

// TransactionHistory returns the audit trail of a transaction in the order it happened.
// It requires view_reports.
func (e *Engine) TransactionHistory(ctx context.Context, libraryID, transactionID, actingUserID uuid.UUID) ([]core.TransactionEvent, error) {
	start := time.Now()
	ctx, span := e.observer.StartOperation(ctx, operationTransactionHistory, operationAttrs(libraryID, uuid.Nil))

	events, err := e.transactionHistory(ctx, libraryID, transactionID, actingUserID)

	e.observer.FinishOperation(ctx, span, operationTransactionHistory, err, time.Since(start), shell.HandlerResult{},
		shell.LogAttrUserID, actingUserID.String(),
		shell.LogAttrTransactionID, transactionID.String(),
	)

	return events, err
}

func (e *Engine) transactionHistory(ctx context.Context, libraryID, transactionID, actingUserID uuid.UUID) ([]core.TransactionEvent, error) {
	if err := e.auth.Require(ctx, actingUserID, access.LibraryScope(libraryID), access.CapViewReports); err != nil {
		return nil, err
	}

	var events []core.TransactionEvent

	err := e.store.RunReadOnly(store.WithStrongConsistency(ctx), func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetTransaction(ctx, libraryID, transactionID); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return core.ErrTransactionNotFound
			}

			return err
		}

		var err error
		events, err = tx.ListEvents(ctx, libraryID, transactionID)

		return err
	})

	return events, err
}
