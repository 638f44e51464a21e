package core

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"blueprintcore/pkg/domain"
)

// DefaultSpanRetention is how many spans a SpanLog keeps for Spans.
const DefaultSpanRetention = 512

// Span is one service operation as written by SpanLog.
type Span struct {
	Operation  string    `json:"operation"`
	Outcome    string    `json:"outcome"`
	Kind       string    `json:"kind,omitempty"`
	Field      string    `json:"field,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS float64   `json:"duration_ms"`
	StartedAt  time.Time `json:"started_at"`
}

// SpanLog is a Tracer that writes each finished span as a JSON line and keeps
// the most recent ones in memory.
type SpanLog struct {
	mu    sync.Mutex
	enc   *json.Encoder
	keep  int
	spans []Span
}

// NewSpanLog writes spans to w; a nil w only retains them. keep <= 0 selects
// DefaultSpanRetention.
func NewSpanLog(w io.Writer, keep int) *SpanLog {
	if keep <= 0 {
		keep = DefaultSpanRetention
	}
	l := &SpanLog{keep: keep}
	if w != nil {
		l.enc = json.NewEncoder(w)
	}
	return l
}

// Spans returns the retained spans, oldest first.
func (l *SpanLog) Spans() []Span {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Span(nil), l.spans...)
}

// Start implements Tracer.
func (l *SpanLog) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &openSpan{log: l, operation: operation, started: time.Now().UTC()}
}

func (l *SpanLog) finish(s Span) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.spans = append(l.spans, s)
	if over := len(l.spans) - l.keep; over > 0 {
		l.spans = append(l.spans[:0], l.spans[over:]...)
	}
	if l.enc != nil {
		_ = l.enc.Encode(s)
	}
}

type openSpan struct {
	log       *SpanLog
	operation string
	started   time.Time
}

func (s *openSpan) End(err error) {
	span := Span{
		Operation:  s.operation,
		Outcome:    "success",
		DurationMS: float64(time.Since(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
	}
	if err != nil {
		span.Outcome = "error"
		span.Error = err.Error()
		if kind, ok := domain.KindOf(err); ok {
			span.Kind = string(kind)
			span.Field = domain.FieldOf(err)
		}
	}
	s.log.finish(span)
}
