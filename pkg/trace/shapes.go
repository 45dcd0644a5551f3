package trace

import (
	"encoding/json"
)

// Response shapes are duck-typed: chat completions, legacy text
// completions, the responses API and embeddings are told apart only by
// which fields are present. Everything below works on a normalized
// map[string]any view and resolves the shape through an explicit predicate
// chain.

// embeddingPreviewLen is how many leading vector values survive
// truncation; the rest collapse to a trailing "..." marker.
const embeddingPreviewLen = 5

func normalizeToMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

type parsedResponse struct {
	Output   any
	Usage    *Usage
	Model    string
	Metadata map[string]any
}

func parseResponse(v any) parsedResponse {
	m := normalizeToMap(v)
	if m == nil {
		return parsedResponse{Output: v}
	}
	p := parsedResponse{Usage: usageFromMap(m), Metadata: responseMetadata(m)}
	if model, ok := m["model"].(string); ok {
		p.Model = model
	}
	switch {
	case isChatCompletion(m):
		p.Output = chatCompletionOutput(m)
	case isTextCompletion(m):
		p.Output = textCompletionOutput(m)
	case isResponsesOutput(m):
		p.Output = responsesOutput(m)
	case isEmbeddingResponse(m):
		p.Output = embeddingOutput(m)
	default:
		p.Output = m
	}
	return p
}

func choicesOf(m map[string]any) []any {
	cs, _ := m["choices"].([]any)
	return cs
}

func firstChoice(m map[string]any) map[string]any {
	cs := choicesOf(m)
	if len(cs) == 0 {
		return nil
	}
	c, _ := cs[0].(map[string]any)
	return c
}

func isChatCompletion(m map[string]any) bool {
	c := firstChoice(m)
	if c == nil {
		return false
	}
	_, ok := c["message"]
	return ok
}

func isTextCompletion(m map[string]any) bool {
	c := firstChoice(m)
	if c == nil {
		return false
	}
	_, ok := c["text"]
	return ok
}

func isResponsesOutput(m map[string]any) bool {
	if _, ok := m["output"]; ok {
		return true
	}
	_, ok := m["output_text"]
	return ok
}

func isEmbeddingResponse(m map[string]any) bool {
	if items, ok := m["data"].([]any); ok && len(items) > 0 {
		if item, ok := items[0].(map[string]any); ok {
			_, ok := item["embedding"]
			return ok
		}
	}
	_, ok := m["embeddings"].([]any)
	return ok
}

func chatCompletionOutput(m map[string]any) any {
	var messages []any
	for _, c := range choicesOf(m) {
		cm, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if msg, ok := cm["message"]; ok {
			messages = append(messages, msg)
		}
	}
	if len(messages) == 1 {
		return messages[0]
	}
	return messages
}

func textCompletionOutput(m map[string]any) any {
	var texts []any
	for _, c := range choicesOf(m) {
		cm, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if text, ok := cm["text"]; ok {
			texts = append(texts, text)
		}
	}
	if len(texts) == 1 {
		return texts[0]
	}
	return texts
}

func responsesOutput(m map[string]any) any {
	if out, ok := m["output"]; ok && out != nil {
		return out
	}
	return m["output_text"]
}

func embeddingOutput(m map[string]any) any {
	var truncated []any
	if items, ok := m["data"].([]any); ok {
		for _, item := range items {
			im, ok := item.(map[string]any)
			if !ok {
				continue
			}
			vec, _ := im["embedding"].([]any)
			truncated = append(truncated, truncateEmbedding(vec))
		}
	} else if vecs, ok := m["embeddings"].([]any); ok {
		for _, v := range vecs {
			vec, _ := v.([]any)
			truncated = append(truncated, truncateEmbedding(vec))
		}
	}
	if len(truncated) == 1 {
		return truncated[0]
	}
	return truncated
}

func truncateEmbedding(vec []any) map[string]any {
	out := map[string]any{"dimensions": len(vec)}
	if len(vec) > embeddingPreviewLen {
		preview := make([]any, 0, embeddingPreviewLen+1)
		preview = append(preview, vec[:embeddingPreviewLen]...)
		preview = append(preview, "...")
		out["embedding"] = preview
		return out
	}
	out["embedding"] = append([]any(nil), vec...)
	return out
}

// usageFromMap reads token figures from a nested usage object or, for
// stream chunks that report them inline, from the top level.
func usageFromMap(m map[string]any) *Usage {
	if u, ok := m["usage"].(map[string]any); ok {
		if parsed := usageFromFields(u); parsed != nil {
			return parsed
		}
	}
	return usageFromFields(m)
}

func usageFromFields(m map[string]any) *Usage {
	in, inOK := intField(m, "prompt_tokens")
	if !inOK {
		in, inOK = intField(m, "input_tokens")
	}
	out, outOK := intField(m, "completion_tokens")
	if !outOK {
		out, outOK = intField(m, "output_tokens")
	}
	total, totalOK := intField(m, "total_tokens")
	if !inOK && !outOK && !totalOK {
		return nil
	}
	if !totalOK {
		total = in + out
	}
	return &Usage{InputTokens: in, OutputTokens: out, TotalTokens: total}
}

func intField(m map[string]any, key string) (int, bool) {
	switch t := m[key].(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case int64:
		return int(t), true
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

func responseMetadata(m map[string]any) map[string]any {
	md := map[string]any{}
	if id, ok := m["id"].(string); ok && id != "" {
		md["response_id"] = id
	}
	if fp, ok := m["system_fingerprint"].(string); ok && fp != "" {
		md["system_fingerprint"] = fp
	}
	if len(md) == 0 {
		return nil
	}
	return md
}

// modelParameterKeys is the allow-list of generation knobs copied into
// span model parameters.
var modelParameterKeys = []string{
	"temperature", "max_tokens", "max_completion_tokens", "top_p", "stop",
	"frequency_penalty", "presence_penalty", "n", "seed", "logit_bias", "user",
}

// chat-style structural fields captured alongside messages.
var chatInputKeys = []string{"tools", "tool_choice", "functions", "function_call"}

type callArgs struct {
	Model           string
	Input           any
	ModelParameters map[string]any
}

func parseCallArgs(req any) callArgs {
	m := normalizeToMap(req)
	if m == nil {
		return callArgs{Input: req}
	}
	ca := callArgs{}
	ca.Model, _ = m["model"].(string)

	params := map[string]any{}
	for _, key := range modelParameterKeys {
		if v, ok := m[key]; ok && v != nil {
			params[key] = v
		}
	}
	if len(params) > 0 {
		ca.ModelParameters = params
	}

	switch {
	case m["messages"] != nil:
		input := map[string]any{"messages": m["messages"]}
		for _, key := range chatInputKeys {
			if v, ok := m[key]; ok && v != nil {
				input[key] = v
			}
		}
		ca.Input = input
	case m["input"] != nil:
		ca.Input = m["input"]
	case m["prompt"] != nil:
		ca.Input = m["prompt"]
	default:
		ca.Input = m
	}
	return ca
}
