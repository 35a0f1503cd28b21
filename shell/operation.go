package shell

import (
	"context"
	"errors"
	"time"

	"github.com/AntonStoeckl/circulation-core/core"
)

// OperationFunc is one attempt of an operation. It reports whether nothing had to change.
type OperationFunc func(ctx context.Context) (idempotent bool, err error)

// Run executes fn with retries inside a span and records metrics and logs for operation.
// An invariant violation is logged and counted, and the caller only sees core.ErrOperationFailed.
func (o Observer) Run(
	ctx context.Context,
	operation string,
	attrs map[string]string,
	retryOptions []RetryOption,
	fn OperationFunc,
	logArgs ...any,
) (HandlerResult, error) {
	start := time.Now()
	ctx, span := o.StartOperation(ctx, operation, attrs)

	var idempotent bool

	retryMetrics, err := RetryWithExponentialBackoff(ctx, func(retryCtx context.Context) error {
		var execErr error
		idempotent, execErr = fn(retryCtx)

		return execErr
	}, retryOptions...)

	if errors.Is(err, core.ErrInvariantViolation) {
		o.RecordInvariantViolation(ctx, operation)
		o.Error(ctx, LogMsgInvariantViolation, append([]any{
			LogAttrOperation, operation,
			LogAttrError, err.Error(),
		}, logArgs...)...)

		err = core.ErrOperationFailed
	}

	result := NewResult(retryMetrics, idempotent && err == nil)
	o.FinishOperation(ctx, span, operation, err, time.Since(start), result, logArgs...)

	return result, err
}
