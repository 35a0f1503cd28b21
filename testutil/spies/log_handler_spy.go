package spies

import (
	"context"
	"log/slog"
	"sync"
)

// LogRecord is a captured slog record with its attributes flattened.
type LogRecord struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// LogHandlerSpy is a slog.Handler that keeps every record it receives.
// Use slog.New(spy) to get a logger for the component under test.
type LogHandlerSpy struct {
	records *[]LogRecord
	attrs   []slog.Attr
	mu      *sync.Mutex
}

// NewLogHandlerSpy creates an empty spy.
func NewLogHandlerSpy() *LogHandlerSpy {
	return &LogHandlerSpy{records: &[]LogRecord{}, mu: &sync.Mutex{}}
}

func (h *LogHandlerSpy) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *LogHandlerSpy) Handle(_ context.Context, r slog.Record) error {
	record := LogRecord{Level: r.Level, Message: r.Message, Attrs: make(map[string]any)}

	for _, attr := range h.attrs {
		record.Attrs[attr.Key] = attr.Value.Any()
	}

	r.Attrs(func(attr slog.Attr) bool {
		record.Attrs[attr.Key] = attr.Value.Any()
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()

	*h.records = append(*h.records, record)

	return nil
}

func (h *LogHandlerSpy) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogHandlerSpy{records: h.records, attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...), mu: h.mu}
}

func (h *LogHandlerSpy) WithGroup(string) slog.Handler {
	return h
}

// Records returns a copy of the captured records.
func (h *LogHandlerSpy) Records() []LogRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]LogRecord(nil), *h.records...)
}

// RecordsWithMessage returns the captured records with the given message.
func (h *LogHandlerSpy) RecordsWithMessage(msg string) []LogRecord {
	var found []LogRecord

	for _, record := range h.Records() {
		if record.Message == msg {
			found = append(found, record)
		}
	}

	return found
}
