package shell

import "time"

// HandlerResult carries execution metadata of a circulation operation next to its
// business result, so wrappers can observe retries without coupling the engine to them.
type HandlerResult struct {
	// Idempotent is true when nothing had to change, e.g. restoring a live row.
	Idempotent bool

	// RetryAttempts is the total number of attempts made (1 without retries).
	RetryAttempts int

	// TotalRetryDelay is the time spent sleeping between attempts.
	TotalRetryDelay time.Duration

	// LastErrorType is "none" on success or the category of the last error.
	LastErrorType string

	// RetriesExhausted is true when every attempt lost the copy-lock race.
	RetriesExhausted bool
}

// NewResult builds a HandlerResult from retry metadata.
func NewResult(retryMetrics RetryMetrics, idempotent bool) HandlerResult {
	return HandlerResult{
		Idempotent:       idempotent,
		RetryAttempts:    retryMetrics.Attempts,
		TotalRetryDelay:  retryMetrics.TotalDelay,
		LastErrorType:    retryMetrics.LastErrorType,
		RetriesExhausted: retryMetrics.RetriesExhausted,
	}
}
