package trace

import (
	"errors"
	"strings"
	"time"
)

// streamAccumulator folds a chunk sequence into one terminal observation.
// It is closure-local to a single GenerationStream call; no locking.
type streamAccumulator struct {
	textParts    []string
	toolName     string
	toolArgs     strings.Builder
	toolSeen     bool
	structured   any
	usage        *Usage
	model        string
	firstChunkAt *time.Time
	err          error
}

func newStreamAccumulator() *streamAccumulator {
	return &streamAccumulator{}
}

func (a *streamAccumulator) observe(m map[string]any, arrived time.Time) {
	if a.firstChunkAt == nil {
		t := arrived
		a.firstChunkAt = &t
	}
	if m == nil {
		return
	}
	if model, ok := m["model"].(string); ok && model != "" {
		a.model = model
	}
	if msg, ok := m["error"].(string); ok && msg != "" {
		a.err = errors.New(msg)
	}
	// last-seen usage wins; providers send it on the final chunk
	if u := usageFromMap(m); u != nil {
		a.usage = u
	}
	// some streams embed the full structured response in a chunk
	if resp, ok := m["response"].(map[string]any); ok {
		parsed := parseResponse(resp)
		a.structured = parsed.Output
		if parsed.Usage != nil {
			a.usage = parsed.Usage
		}
		if parsed.Model != "" {
			a.model = parsed.Model
		}
	}
	if c := firstChoice(m); c != nil {
		if delta, ok := c["delta"].(map[string]any); ok {
			a.observeDelta(delta)
		}
		if text, ok := c["text"].(string); ok && text != "" {
			a.textParts = append(a.textParts, text)
		}
		return
	}
	if content, ok := m["content"].(string); ok && content != "" {
		a.textParts = append(a.textParts, content)
	}
}

func (a *streamAccumulator) observeDelta(delta map[string]any) {
	if toolCalls, ok := delta["tool_calls"].([]any); ok && len(toolCalls) > 0 {
		a.toolSeen = true
		for _, tc := range toolCalls {
			tcm, ok := tc.(map[string]any)
			if !ok {
				continue
			}
			fn, ok := tcm["function"].(map[string]any)
			if !ok {
				continue
			}
			// name comes from the first non-empty fragment, arguments
			// concatenate in arrival order
			if name, ok := fn["name"].(string); ok && name != "" && a.toolName == "" {
				a.toolName = name
			}
			if args, ok := fn["arguments"].(string); ok {
				a.toolArgs.WriteString(args)
			}
		}
		return
	}
	if content, ok := delta["content"].(string); ok && content != "" {
		a.textParts = append(a.textParts, content)
	}
}

// finalize computes the terminal output: a structured response extracted
// from a chunk wins, then a synthesized tool call, then the joined text.
func (a *streamAccumulator) finalize() parsedResponse {
	p := parsedResponse{Usage: a.usage, Model: a.model}
	switch {
	case a.structured != nil:
		p.Output = a.structured
	case a.toolSeen:
		p.Output = map[string]any{
			"role": "assistant",
			"tool_calls": []any{
				map[string]any{
					"type": "function",
					"function": map[string]any{
						"name":      a.toolName,
						"arguments": a.toolArgs.String(),
					},
				},
			},
		}
	default:
		p.Output = map[string]any{
			"role":    "assistant",
			"content": strings.Join(a.textParts, ""),
		}
	}
	return p
}
