package shell

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/AntonStoeckl/circulation-core/core"
)

const (
	// OperationDurationMetric tracks the duration of circulation operations.
	OperationDurationMetric = "circulation_operation_duration_seconds"

	// OperationCallsMetric counts circulation operations by operation and status.
	OperationCallsMetric = "circulation_operation_calls_total"

	// ConcurrentModificationMetric counts operations that lost the copy-lock race for good.
	ConcurrentModificationMetric = "circulation_concurrent_modifications_total"

	// InvariantViolationMetric counts internal consistency failures.
	InvariantViolationMetric = "circulation_invariant_violations_total"

	// RetriesMetric counts retry attempts.
	//
	// Labels: operation, attempt_number, error_type.
	RetriesMetric = "circulation_retries_total"

	// RetryDelayMetric tracks the backoff delay before each retry.
	RetryDelayMetric = "circulation_retry_delay_seconds"

	// MaxRetriesReachedMetric counts operations that exhausted their retries.
	MaxRetriesReachedMetric = "circulation_max_retries_reached_total"

	StatusSuccess                = "success"
	StatusIdempotent             = "idempotent"
	StatusRejected               = "rejected"
	StatusNotAuthorized          = "not_authorized"
	StatusError                  = "error"
	StatusCanceled               = "canceled"
	StatusTimeout                = "timeout"
	StatusConcurrentModification = "concurrent_modification"

	LogMsgOperationCompleted  = "circulation operation completed"
	LogMsgOperationRejected   = "circulation operation rejected"
	LogMsgOperationFailed     = "circulation operation failed"
	LogMsgInvariantViolation  = "invariant violation, unit rolled back"
	LogMsgAuthorizationFailed = "role resolution failed, denying"

	LogAttrOperation     = "operation"
	LogAttrStatus        = "status"
	LogAttrDurationMS    = "duration_ms"
	LogAttrError         = "error"
	LogAttrLibraryID     = "library_id"
	LogAttrCopyID        = "copy_id"
	LogAttrMemberID      = "member_id"
	LogAttrTransactionID = "transaction_id"
	LogAttrUserID        = "user_id"
	LogAttrStaffID       = "staff_id"
	LogAttrISBN          = "isbn"
	LogAttrAttempts      = "attempts"

	LabelAttemptNumber  = "attempt_number"
	LabelErrorType      = "error_type"
	LabelFinalErrorType = "final_error_type"

	// SpanNameOperation is the span name prefix for circulation operations.
	SpanNameOperation = "circulation."
)

// Logger is satisfied by *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ContextualLogger logs with a context for trace correlation. *slog.Logger satisfies it too.
type ContextualLogger interface {
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// MetricsCollector collects durations, counters and values.
type MetricsCollector interface {
	RecordDuration(metric string, duration time.Duration, labels map[string]string)
	IncrementCounter(metric string, labels map[string]string)
	RecordValue(metric string, value float64, labels map[string]string)
}

// ContextualMetricsCollector extends MetricsCollector with context-aware methods.
// It is used when available and the plain methods otherwise.
type ContextualMetricsCollector interface {
	MetricsCollector
	RecordDurationContext(ctx context.Context, metric string, duration time.Duration, labels map[string]string)
	IncrementCounterContext(ctx context.Context, metric string, labels map[string]string)
	RecordValueContext(ctx context.Context, metric string, value float64, labels map[string]string)
}

// SpanContext is an active tracing span.
type SpanContext interface {
	SetStatus(status string)
	AddAttribute(key, value string)
}

// TracingCollector starts and finishes spans on any tracing backend.
type TracingCollector interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, SpanContext)
	FinishSpan(spanCtx SpanContext, status string, attrs map[string]string)
}

// Observer bundles the optional observability sinks of a service. Nil fields are skipped.
type Observer struct {
	Logger           Logger
	ContextualLogger ContextualLogger
	Metrics          MetricsCollector
	Tracing          TracingCollector
}

// StatusFromError classifies the outcome of an operation for metrics, spans and logs.
func StatusFromError(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, core.ErrNotAuthorized):
		return StatusNotAuthorized
	case errors.Is(err, core.ErrConcurrentModification):
		return StatusConcurrentModification
	case errors.Is(err, context.Canceled):
		return StatusCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	case core.IsBusinessRuleViolation(err),
		errors.Is(err, core.ErrNotFound),
		errors.Is(err, core.ErrTransactionNotFound),
		errors.Is(err, core.ErrInvalidInput),
		errors.Is(err, core.ErrConflict):
		return StatusRejected
	default:
		return StatusError
	}
}

// BuildOperationLabels creates the standard labels for operation metrics.
func BuildOperationLabels(operation, status string) map[string]string {
	return map[string]string{
		LogAttrOperation: operation,
		LogAttrStatus:    status,
	}
}

// BuildRetryLabels creates the standard labels for retry metrics.
func BuildRetryLabels(operation string, attemptNumber int, errorType string) map[string]string {
	return map[string]string{
		LogAttrOperation:   operation,
		LabelAttemptNumber: strconv.Itoa(attemptNumber),
		LabelErrorType:     errorType,
	}
}

// ToMilliseconds converts d to float64 milliseconds.
func ToMilliseconds(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}

// StartOperation starts a span for operation if tracing is configured.
func (o Observer) StartOperation(ctx context.Context, operation string, attrs map[string]string) (context.Context, SpanContext) {
	if o.Tracing == nil {
		return ctx, nil
	}

	spanAttrs := map[string]string{LogAttrOperation: operation}
	for k, v := range attrs {
		spanAttrs[k] = v
	}

	return o.Tracing.StartSpan(ctx, SpanNameOperation+operation, spanAttrs)
}

// FinishOperation records metrics, finishes the span and logs the outcome of operation.
func (o Observer) FinishOperation(
	ctx context.Context,
	span SpanContext,
	operation string,
	err error,
	duration time.Duration,
	result HandlerResult,
	logArgs ...any,
) {
	status := StatusFromError(err)
	if err == nil && result.Idempotent {
		status = StatusIdempotent
	}

	o.recordOperationMetrics(ctx, operation, status, duration)

	if o.Tracing != nil && span != nil {
		o.Tracing.FinishSpan(span, status, map[string]string{
			LogAttrDurationMS: strconv.FormatFloat(ToMilliseconds(duration), 'f', 3, 64),
			LogAttrAttempts:   strconv.Itoa(result.RetryAttempts),
		})
	}

	args := append([]any{
		LogAttrOperation, operation,
		LogAttrStatus, status,
		LogAttrDurationMS, ToMilliseconds(duration),
		LogAttrAttempts, result.RetryAttempts,
	}, logArgs...)

	switch status {
	case StatusSuccess, StatusIdempotent:
		o.Info(ctx, LogMsgOperationCompleted, args...)
	case StatusRejected, StatusNotAuthorized:
		o.Info(ctx, LogMsgOperationRejected, append(args, LogAttrError, err.Error())...)
	default:
		o.Error(ctx, LogMsgOperationFailed, append(args, LogAttrError, err.Error())...)
	}
}

func (o Observer) recordOperationMetrics(ctx context.Context, operation, status string, duration time.Duration) {
	if o.Metrics == nil {
		return
	}

	labels := BuildOperationLabels(operation, status)

	if contextual, ok := o.Metrics.(ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, OperationDurationMetric, duration, labels)
		contextual.IncrementCounterContext(ctx, OperationCallsMetric, labels)

		if status == StatusConcurrentModification {
			contextual.IncrementCounterContext(ctx, ConcurrentModificationMetric, labels)
		}

		return
	}

	o.Metrics.RecordDuration(OperationDurationMetric, duration, labels)
	o.Metrics.IncrementCounter(OperationCallsMetric, labels)

	if status == StatusConcurrentModification {
		o.Metrics.IncrementCounter(ConcurrentModificationMetric, labels)
	}
}

// RecordInvariantViolation counts an internal consistency failure.
func (o Observer) RecordInvariantViolation(ctx context.Context, operation string) {
	if o.Metrics == nil {
		return
	}

	labels := map[string]string{LogAttrOperation: operation}

	if contextual, ok := o.Metrics.(ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, InvariantViolationMetric, labels)
		return
	}

	o.Metrics.IncrementCounter(InvariantViolationMetric, labels)
}

// Info logs at info level, preferring the contextual logger.
func (o Observer) Info(ctx context.Context, msg string, args ...any) {
	if o.ContextualLogger != nil {
		o.ContextualLogger.InfoContext(ctx, msg, args...)
		return
	}

	if o.Logger != nil {
		o.Logger.Info(msg, args...)
	}
}

// Warn logs at warn level, preferring the contextual logger.
func (o Observer) Warn(ctx context.Context, msg string, args ...any) {
	if o.ContextualLogger != nil {
		o.ContextualLogger.WarnContext(ctx, msg, args...)
		return
	}

	if o.Logger != nil {
		o.Logger.Warn(msg, args...)
	}
}

// Error logs at error level, preferring the contextual logger.
func (o Observer) Error(ctx context.Context, msg string, args ...any) {
	if o.ContextualLogger != nil {
		o.ContextualLogger.ErrorContext(ctx, msg, args...)
		return
	}

	if o.Logger != nil {
		o.Logger.Error(msg, args...)
	}
}
