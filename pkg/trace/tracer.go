package trace

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sink receives finished spans. Implementations must be safe for
// concurrent use.
type Sink interface {
	ExportSpan(ctx context.Context, span SpanData) error
}

// SinkTracer fans spans out to one or more sinks. It is the default Tracer
// implementation; tests usually prefer Recorder.
type SinkTracer struct {
	sinks []Sink
	log   zerolog.Logger
}

type TracerOption func(*SinkTracer)

// WithSink adds a span destination.
func WithSink(s Sink) TracerOption {
	return func(t *SinkTracer) { t.sinks = append(t.sinks, s) }
}

// WithLogger sets the tracer's logger.
func WithLogger(log zerolog.Logger) TracerOption {
	return func(t *SinkTracer) { t.log = log }
}

func NewTracer(opts ...TracerOption) *SinkTracer {
	t := &SinkTracer{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *SinkTracer) Trace(ctx context.Context, data TraceData) Handle {
	if data.ID == "" {
		data.ID = uuid.NewString()
	}
	return &sinkHandle{tracer: t, ctx: ctx, data: data}
}

type sinkHandle struct {
	tracer *SinkTracer
	ctx    context.Context

	mu    sync.Mutex
	data  TraceData
	ended bool
}

func (h *sinkHandle) Span(span SpanData) {
	h.mu.Lock()
	traceID := h.data.ID
	h.mu.Unlock()

	if span.ID == "" {
		span.ID = uuid.NewString()
	}
	if span.TraceID == "" {
		span.TraceID = traceID
	}
	for _, sink := range h.tracer.sinks {
		if err := sink.ExportSpan(h.ctx, span); err != nil {
			h.tracer.log.Error().Err(err).
				Str("span_id", span.ID).
				Str("trace_id", span.TraceID).
				Msg("span export failed")
		}
	}
}

func (h *sinkHandle) Update(data TraceData) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if data.Name != "" {
		h.data.Name = data.Name
	}
	if data.Input != nil {
		h.data.Input = data.Input
	}
	if data.Output != nil {
		h.data.Output = data.Output
	}
	if data.Metadata != nil {
		h.data.Metadata = data.Metadata
	}
	if data.Tags != nil {
		h.data.Tags = data.Tags
	}
}

func (h *sinkHandle) End() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ended {
		return
	}
	h.ended = true
	h.tracer.log.Debug().
		Str("trace_id", h.data.ID).
		Str("name", h.data.Name).
		Msg("trace ended")
}

// LogSink writes spans as structured log events.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) ExportSpan(_ context.Context, span SpanData) error {
	event := s.log.Info().
		Str("span_id", span.ID).
		Str("trace_id", span.TraceID).
		Str("name", span.Name).
		Str("provider", span.Provider).
		Str("model", span.Model).
		Dur("duration", span.EndTime.Sub(span.StartTime)).
		Interface("usage", span.Usage)
	if span.Error != nil {
		event = event.Str("error", span.Error.Message).Str("error_kind", span.Error.Kind)
	}
	event.Msg("span")
	return nil
}

// Recorder is an in-memory Tracer for tests and local inspection.
type Recorder struct {
	mu     sync.Mutex
	traces []*RecordedTrace
}

// RecordedTrace captures everything emitted into one trace.
type RecordedTrace struct {
	rec *Recorder

	Data     TraceData
	Spans    []SpanData
	Updates  []TraceData
	EndCalls int
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Trace(_ context.Context, data TraceData) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if data.ID == "" {
		data.ID = uuid.NewString()
	}
	rt := &RecordedTrace{rec: r, Data: data}
	r.traces = append(r.traces, rt)
	return rt
}

// Traces returns a snapshot of all traces opened so far.
func (r *Recorder) Traces() []*RecordedTrace {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*RecordedTrace(nil), r.traces...)
}

// WaitForSpans polls until at least n spans exist across all traces or the
// timeout elapses. Streaming decorators emit their terminal span from a
// goroutine, so tests need a rendezvous.
func (r *Recorder) WaitForSpans(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if r.spanCount() >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return r.spanCount() >= n
}

func (r *Recorder) spanCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, t := range r.traces {
		total += len(t.Spans)
	}
	return total
}

func (t *RecordedTrace) Span(span SpanData) {
	t.rec.mu.Lock()
	defer t.rec.mu.Unlock()
	if span.TraceID == "" {
		span.TraceID = t.Data.ID
	}
	t.Spans = append(t.Spans, span)
}

func (t *RecordedTrace) Update(data TraceData) {
	t.rec.mu.Lock()
	defer t.rec.mu.Unlock()
	t.Updates = append(t.Updates, data)
}

func (t *RecordedTrace) End() {
	t.rec.mu.Lock()
	defer t.rec.mu.Unlock()
	t.EndCalls++
}
