// Package tracing records a span tree per search request and logs it through
// slog. There is no exporter; spans end up in the structured log.
package tracing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

type contextKey struct{}

type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any
	mu        sync.Mutex
}

// Tracer decides which requests get a span tree.
type Tracer struct {
	enabled    bool
	sampleRate float64
	logger     *slog.Logger
}

func NewTracer(enabled bool, sampleRate float64) *Tracer {
	return &Tracer{
		enabled:    enabled,
		sampleRate: sampleRate,
		logger:     slog.Default().With("component", "tracing"),
	}
}

// Start opens a root span when the request is sampled. The returned span is
// nil otherwise; all Span methods accept a nil receiver.
func (t *Tracer) Start(ctx context.Context, name, traceID string) (context.Context, *Span) {
	if t == nil || !t.enabled || rand.Float64() >= t.sampleRate {
		return ctx, nil
	}
	span := &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}
	return context.WithValue(ctx, contextKey{}, span), span
}

// Finish ends the root span and logs the tree.
func (t *Tracer) Finish(span *Span) {
	if span == nil {
		return
	}
	span.End()
	span.logRecursive(t.logger, 0)
}

// StartChildSpan attaches a child to the span in ctx. Without a parent it
// returns ctx unchanged and a nil span.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		return ctx, nil
	}
	child := &Span{
		Name:      name,
		TraceID:   parent.TraceID,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}
	parent.mu.Lock()
	parent.Children = append(parent.Children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, contextKey{}, child), child
}

func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.Duration = time.Since(s.StartTime)
	s.mu.Unlock()
}

func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

func (s *Span) logRecursive(logger *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", s.Duration.Milliseconds(),
		"depth", depth,
	}
	for k, v := range s.Attrs {
		attrs = append(attrs, k, v)
	}
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()
	logger.Info("span", attrs...)

	for _, child := range children {
		child.logRecursive(logger, depth+1)
	}
}
