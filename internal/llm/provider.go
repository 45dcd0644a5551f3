// Package llm adapts the upstream model providers behind one interface so
// rendered prompts can be sent and traced uniformly.
package llm

import (
	"context"

	"promptkit/pkg/template"
)

// Provider is one upstream model API.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)
	Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error)
	Name() string
}

// Message is a flattened chat message. Multimodal parts are rendered to
// text before they reach a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FromTemplateMessages flattens rendered prompt messages into provider
// messages. Non-text parts keep their placeholder text.
func FromTemplateMessages(msgs []template.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		switch content := m.Content.(type) {
		case string:
			out = append(out, Message{Role: m.Role, Content: content})
		case []template.ContentPart:
			var text string
			for _, part := range content {
				if part.Type == template.PartText {
					text += part.Text
				}
			}
			out = append(out, Message{Role: m.Role, Content: text})
		}
	}
	return out
}

type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

type ChatResponse struct {
	ID           string  `json:"id"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	Content      string  `json:"content"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	LatencyMs    int64   `json:"latency_ms"`
}

// StreamChunk is one streamed fragment. The final chunk carries Done plus
// the token totals when the provider reports them.
type StreamChunk struct {
	Content      string `json:"content,omitempty"`
	Done         bool   `json:"done"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	Model        string `json:"model,omitempty"`
	Error        error  `json:"-"`
}

// StreamError reports the chunk's failure to the tracing decorator, which
// cannot see the Error field through JSON.
func (c StreamChunk) StreamError() error { return c.Error }

type EmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type EmbeddingResponse struct {
	Provider   string      `json:"provider"`
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
	Tokens     int         `json:"tokens"`
	CostUSD    float64     `json:"cost_usd"`
}
