package postgresengine

import (
	"errors"
	"time"

	"github.com/AntonStoeckl/circulation-core/shell"
)

var (
	// ErrNilDatabaseConnection is returned when a constructor receives a nil connection.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrInvalidLockTimeout is returned by WithLockTimeout for non-positive durations.
	ErrInvalidLockTimeout = errors.New("lock timeout must be positive")
)

// Option defines a functional option for configuring a Store.
type Option func(*Store) error

// WithLogger sets the logger for the Store.
//
// Debug level: SQL statements with execution timing (development use)
// Info level: retries worth knowing about, e.g. lost lock races
// Error level: failures that abort a unit.
func WithLogger(logger shell.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger, preferred over WithLogger.
func WithContextualLogger(logger shell.ContextualLogger) Option {
	return func(s *Store) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithLockTimeout bounds how long a unit waits for a row lock.
func WithLockTimeout(timeout time.Duration) Option {
	return func(s *Store) error {
		if timeout <= 0 {
			return ErrInvalidLockTimeout
		}

		s.lockTimeout = timeout

		return nil
	}
}
