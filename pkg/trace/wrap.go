package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// CostFunc converts token counts into a USD figure for a model.
type CostFunc func(model string, inputTokens, outputTokens int) float64

// TokenCountFunc estimates the token count of text for a model. Used only
// when the provider reported no usage.
type TokenCountFunc func(text, model string) int

// Decorator carries the per-integration wiring for Generation and
// GenerationStream. One Decorator serves any number of concurrent calls;
// all per-call state lives in the call itself.
type Decorator struct {
	tracer      Tracer
	provider    string
	tags        []string
	cost        CostFunc
	countTokens TokenCountFunc
	log         zerolog.Logger
}

type DecoratorOption func(*Decorator)

// WithProvider labels spans with the upstream provider name.
func WithProvider(name string) DecoratorOption {
	return func(d *Decorator) { d.provider = name }
}

// WithSpanTags adds fixed tags to every trace the decorator opens.
func WithSpanTags(tags ...string) DecoratorOption {
	return func(d *Decorator) { d.tags = append(d.tags, tags...) }
}

// WithCostFunc prices usage when the response did not carry a cost.
func WithCostFunc(fn CostFunc) DecoratorOption {
	return func(d *Decorator) { d.cost = fn }
}

// WithTokenCounter enables usage estimation for responses without usage
// figures.
func WithTokenCounter(fn TokenCountFunc) DecoratorOption {
	return func(d *Decorator) { d.countTokens = fn }
}

// WithDecoratorLogger sets the decorator's logger.
func WithDecoratorLogger(log zerolog.Logger) DecoratorOption {
	return func(d *Decorator) { d.log = log }
}

func NewDecorator(tracer Tracer, opts ...DecoratorOption) *Decorator {
	d := &Decorator{tracer: tracer, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Generation wraps one unary generation call. The wrapped error, if any,
// is re-returned unchanged after the error span is emitted.
func Generation[T any](ctx context.Context, d *Decorator, name string, req any, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	call := parseCallArgs(req)
	handle, owned := d.traceHandle(ctx, name, call)

	res, err := fn(ctx)
	if err != nil {
		d.emitErrorSpan(handle, owned, name, call, start, err)
		return res, err
	}

	parsed := parseResponse(res)
	span := d.buildSpan(name, call, parsed, start, nil)
	d.emit(handle, span)
	if owned {
		handle.Update(TraceData{Output: parsed.Output})
		handle.End()
	}
	return res, nil
}

// StreamErrorer lets typed chunk types surface a mid-stream failure to the
// decorator. Map-shaped chunks report failures through a non-empty "error"
// string field instead.
type StreamErrorer interface {
	StreamError() error
}

// GenerationStream wraps a streaming generation call. Chunks pass through
// to the returned channel unmodified and in arrival order, with at most
// one chunk in flight between upstream and consumer. Exactly one terminal
// span is emitted once the upstream closes: an error span when any chunk
// carried a failure, a normal span otherwise. A consumer that abandons the
// stream must cancel ctx; the forwarder then drains the upstream without
// emitting a span.
func GenerationStream[T any](ctx context.Context, d *Decorator, name string, req any, fn func(context.Context) (<-chan T, error)) (<-chan T, error) {
	start := time.Now()
	call := parseCallArgs(req)
	handle, owned := d.traceHandle(ctx, name, call)

	upstream, err := fn(ctx)
	if err != nil {
		d.emitErrorSpan(handle, owned, name, call, start, err)
		return nil, err
	}

	out := make(chan T)
	go func() {
		defer close(out)
		acc := newStreamAccumulator()
		var streamErr error
		for chunk := range upstream {
			arrived := time.Now()
			select {
			case out <- chunk:
			case <-ctx.Done():
				// Abandoned mid-stream: no terminal span for a
				// partially-consumed sequence. Drain so producers that
				// do not watch ctx are not left blocked.
				for range upstream {
				}
				return
			}
			acc.observe(normalizeToMap(chunk), arrived)
			if se, ok := any(chunk).(StreamErrorer); ok && se.StreamError() != nil {
				streamErr = se.StreamError()
			}
		}
		if streamErr == nil {
			streamErr = acc.err
		}
		if streamErr != nil {
			d.emitErrorSpan(handle, owned, name, call, start, streamErr)
			return
		}
		parsed := acc.finalize()
		span := d.buildSpan(name, call, parsed, start, acc.firstChunkAt)
		d.emit(handle, span)
		if owned {
			handle.Update(TraceData{Output: parsed.Output})
			handle.End()
		}
	}()
	return out, nil
}

// traceHandle reuses a caller-supplied parent trace when present; the
// decorator then emits spans into it without touching its lifecycle.
func (d *Decorator) traceHandle(ctx context.Context, name string, call callArgs) (Handle, bool) {
	if h, ok := FromContext(ctx); ok {
		return h, false
	}
	h := d.tracer.Trace(ctx, TraceData{
		Name:  name,
		Input: call.Input,
		Tags:  append([]string(nil), d.tags...),
	})
	return h, true
}

func (d *Decorator) buildSpan(name string, call callArgs, parsed parsedResponse, start time.Time, completionStart *time.Time) SpanData {
	model := parsed.Model
	if model == "" {
		model = call.Model
	}
	return SpanData{
		Name:                name,
		Provider:            d.provider,
		Model:               model,
		ModelParameters:     call.ModelParameters,
		Input:               call.Input,
		Output:              parsed.Output,
		Usage:               d.finishUsage(parsed.Usage, model, call.Input, parsed.Output),
		Metadata:            parsed.Metadata,
		Tags:                append([]string(nil), d.tags...),
		StartTime:           start,
		CompletionStartTime: completionStart,
		EndTime:             time.Now(),
	}
}

func (d *Decorator) finishUsage(usage *Usage, model string, input, output any) *Usage {
	if usage == nil && d.countTokens != nil {
		in := d.countTokens(textForCounting(input), model)
		out := d.countTokens(textForCounting(output), model)
		usage = &Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out, Estimated: true}
	}
	if usage != nil && usage.CostUSD == 0 && d.cost != nil {
		usage.CostUSD = d.cost(model, usage.InputTokens, usage.OutputTokens)
	}
	return usage
}

func textForCounting(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func (d *Decorator) emitErrorSpan(handle Handle, owned bool, name string, call callArgs, start time.Time, callErr error) {
	generationErrors.WithLabelValues(d.provider).Inc()
	span := SpanData{
		Name:            name,
		Provider:        d.provider,
		Model:           call.Model,
		ModelParameters: call.ModelParameters,
		Input:           call.Input,
		Tags:            append([]string(nil), d.tags...),
		StartTime:       start,
		EndTime:         time.Now(),
		Error: &ErrorInfo{
			Message: callErr.Error(),
			Kind:    fmt.Sprintf("%T", callErr),
			Stack:   string(debug.Stack()),
		},
	}
	d.emit(handle, span)
	if owned {
		handle.End()
	}
}

func (d *Decorator) emit(handle Handle, span SpanData) {
	spansEmitted.WithLabelValues(d.provider).Inc()
	handle.Span(span)
}
