package llm

import (
	"context"

	"promptkit/pkg/trace"
)

// TracedProvider wraps each Provider method in a generation span. Wrapping
// is explicit per method; the inner provider's behavior, including its
// errors, is untouched.
type TracedProvider struct {
	inner     Provider
	decorator *trace.Decorator
}

func NewTracedProvider(inner Provider, tracer trace.Tracer, opts ...trace.DecoratorOption) *TracedProvider {
	opts = append([]trace.DecoratorOption{
		trace.WithProvider(inner.Name()),
		trace.WithCostFunc(CalculateCost),
	}, opts...)
	return &TracedProvider{
		inner:     inner,
		decorator: trace.NewDecorator(tracer, opts...),
	}
}

func (t *TracedProvider) Name() string { return t.inner.Name() }

func (t *TracedProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return trace.Generation(ctx, t.decorator, t.inner.Name()+".chat", req,
		func(ctx context.Context) (*ChatResponse, error) {
			return t.inner.Chat(ctx, req)
		})
}

func (t *TracedProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	return trace.GenerationStream(ctx, t.decorator, t.inner.Name()+".chat.stream", req,
		func(ctx context.Context) (<-chan StreamChunk, error) {
			return t.inner.ChatStream(ctx, req)
		})
}

func (t *TracedProvider) Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	return trace.Generation(ctx, t.decorator, t.inner.Name()+".embed", req,
		func(ctx context.Context) (*EmbeddingResponse, error) {
			return t.inner.Embed(ctx, req)
		})
}
