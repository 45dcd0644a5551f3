// Package trace instruments generation-API calls. A Decorator wraps each
// client method explicitly (unary or streaming) so that every invocation
// produces exactly one terminal span on a Tracer, with consistent
// input/output/usage extraction across the known response shapes.
package trace

import (
	"context"
	"time"
)

// Usage holds the token accounting for one generation call.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd,omitempty"`
	Estimated    bool    `json:"estimated,omitempty"`
}

// ErrorInfo captures a failed call. The original error is always re-raised
// to the caller; this record only feeds the span.
type ErrorInfo struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
	Stack   string `json:"stack,omitempty"`
}

// SpanData is one observability record for a single traced call.
type SpanData struct {
	ID                  string         `json:"id"`
	TraceID             string         `json:"trace_id"`
	Name                string         `json:"name"`
	Provider            string         `json:"provider,omitempty"`
	Model               string         `json:"model,omitempty"`
	ModelParameters     map[string]any `json:"model_parameters,omitempty"`
	Input               any            `json:"input,omitempty"`
	Output              any            `json:"output,omitempty"`
	Usage               *Usage         `json:"usage,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
	Tags                []string       `json:"tags,omitempty"`
	StartTime           time.Time      `json:"start_time"`
	CompletionStartTime *time.Time     `json:"completion_start_time,omitempty"`
	EndTime             time.Time      `json:"end_time"`
	Error               *ErrorInfo     `json:"error,omitempty"`
}

// TraceData describes a trace: the logical operation one or more spans
// hang off.
type TraceData struct {
	ID       string         `json:"id"`
	Name     string         `json:"name,omitempty"`
	Input    any            `json:"input,omitempty"`
	Output   any            `json:"output,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
}

// Handle is a live trace. Span emits one span into it, Update amends the
// trace record, End closes it.
type Handle interface {
	Span(span SpanData)
	Update(data TraceData)
	End()
}

// Tracer opens traces. Implementations decide where spans go.
type Tracer interface {
	Trace(ctx context.Context, data TraceData) Handle
}

type handleKey struct{}

// ContextWithTrace attaches a caller-owned trace handle. Decorators emit
// spans into it but never Update or End it; lifecycle stays with the
// caller.
func ContextWithTrace(ctx context.Context, h Handle) context.Context {
	return context.WithValue(ctx, handleKey{}, h)
}

// FromContext returns the caller-supplied trace handle, if any.
func FromContext(ctx context.Context) (Handle, bool) {
	h, ok := ctx.Value(handleKey{}).(Handle)
	return h, ok
}

// Passthrough returns v untouched with no span emitted. It exists for
// trivial synchronous values on clients whose other methods are wrapped;
// the skip is intentional, cheap local calls are not worth a span.
func Passthrough[T any](v T) T { return v }
