// Package spies provides recording test doubles for the shell observability interfaces
// and a slog.Handler that captures log records.
package spies
