package shell_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/shell"
	"github.com/AntonStoeckl/circulation-core/testutil/spies"
)

func Test_StatusFromError(t *testing.T) {
	testCases := []struct {
		err      error
		expected string
	}{
		{nil, shell.StatusSuccess},
		{core.ErrNotAuthorized, shell.StatusNotAuthorized},
		{errors.Join(core.ErrConcurrentModification, errors.New("55P03")), shell.StatusConcurrentModification},
		{context.Canceled, shell.StatusCanceled},
		{context.DeadlineExceeded, shell.StatusTimeout},
		{core.ErrCopyUnavailable, shell.StatusRejected},
		{core.ErrTransactionNotFound, shell.StatusRejected},
		{core.ErrOperationFailed, shell.StatusError},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, shell.StatusFromError(tc.err), "error: %v", tc.err)
	}
}

func Test_Observer_FinishOperation_RecordsMetricsSpanAndLog(t *testing.T) {
	// setup
	metrics := spies.NewMetricsCollectorSpy()
	tracing := spies.NewTracingCollectorSpy()
	logs := spies.NewLogHandlerSpy()
	observer := shell.Observer{ContextualLogger: slog.New(logs), Metrics: metrics, Tracing: tracing}

	// act
	ctx, span := observer.StartOperation(context.Background(), "checkout", map[string]string{"library_id": "L"})
	observer.FinishOperation(ctx, span, "checkout", core.ErrCopyUnavailable, 5*time.Millisecond, shell.HandlerResult{RetryAttempts: 1})

	// assert
	assert.Equal(t, 1, metrics.CountCounter(shell.OperationCallsMetric, map[string]string{"operation": "checkout", "status": "rejected"}))
	assert.True(t, metrics.HasDurationRecord(shell.OperationDurationMetric))

	spans := tracing.Spans()
	require.Len(t, spans, 1)
	assert.Equal(t, "circulation.checkout", spans[0].Name)
	assert.Equal(t, shell.StatusRejected, spans[0].Status)
	assert.Equal(t, "L", spans[0].Attributes["library_id"])

	records := logs.RecordsWithMessage(shell.LogMsgOperationRejected)
	require.Len(t, records, 1)
	assert.Equal(t, slog.LevelInfo, records[0].Level)
	assert.Equal(t, core.ErrCopyUnavailable.Error(), records[0].Attrs["error"])
}

func Test_Observer_FinishOperation_IdempotentStatus(t *testing.T) {
	metrics := spies.NewMetricsCollectorSpy()
	observer := shell.Observer{Metrics: metrics}

	observer.FinishOperation(context.Background(), nil, "restore", nil, time.Millisecond, shell.HandlerResult{Idempotent: true})

	assert.Equal(t, 1, metrics.CountCounter(shell.OperationCallsMetric, map[string]string{"status": "idempotent"}))
}

func Test_Observer_WithoutSinks_DoesNothing(t *testing.T) {
	observer := shell.Observer{}

	assert.NotPanics(t, func() {
		ctx, span := observer.StartOperation(context.Background(), "renew", nil)
		observer.FinishOperation(ctx, span, "renew", errors.New("boom"), time.Millisecond, shell.HandlerResult{})
		observer.RecordInvariantViolation(ctx, "renew")
	})
}
