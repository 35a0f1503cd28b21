package spies

import (
	"context"
	"maps"
	"sync"

	"github.com/AntonStoeckl/circulation-core/shell"
)

// SpanContextSpy is the span handed out by TracingCollectorSpy.
type SpanContextSpy struct {
	name       string
	status     string
	attributes map[string]string
	mu         sync.Mutex
}

func (c *SpanContextSpy) SetStatus(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = status
}

func (c *SpanContextSpy) AddAttribute(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attributes == nil {
		c.attributes = make(map[string]string)
	}

	c.attributes[key] = value
}

// SpanRecord is a finished span.
type SpanRecord struct {
	Name       string
	Status     string
	Attributes map[string]string
}

// TracingCollectorSpy records finished spans. It implements shell.TracingCollector.
type TracingCollectorSpy struct {
	spans []SpanRecord
	mu    sync.Mutex
}

// NewTracingCollectorSpy creates an empty spy.
func NewTracingCollectorSpy() *TracingCollectorSpy {
	return &TracingCollectorSpy{}
}

func (s *TracingCollectorSpy) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, shell.SpanContext) {
	return ctx, &SpanContextSpy{name: name, attributes: maps.Clone(attrs)}
}

func (s *TracingCollectorSpy) FinishSpan(spanCtx shell.SpanContext, status string, attrs map[string]string) {
	span, ok := spanCtx.(*SpanContextSpy)
	if !ok {
		return
	}

	span.mu.Lock()
	record := SpanRecord{Name: span.name, Status: status, Attributes: maps.Clone(span.attributes)}
	span.mu.Unlock()

	if record.Attributes == nil {
		record.Attributes = make(map[string]string)
	}

	maps.Copy(record.Attributes, attrs)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.spans = append(s.spans, record)
}

// Spans returns a copy of the finished spans.
func (s *TracingCollectorSpy) Spans() []SpanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]SpanRecord(nil), s.spans...)
}
