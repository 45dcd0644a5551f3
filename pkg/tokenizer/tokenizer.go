// Package tokenizer counts tokens for usage estimation. Models tiktoken
// knows are counted exactly; everything else gets a words-based estimate.
package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	mu       sync.Mutex
	encoders = map[string]*tiktoken.Tiktoken{}
)

func encoderFor(model string) *tiktoken.Tiktoken {
	mu.Lock()
	defer mu.Unlock()
	if enc, ok := encoders[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoders[model] = nil
		return nil
	}
	encoders[model] = enc
	return enc
}

// CountTokens counts tokens in text for a model. Unknown models fall back
// to Estimate.
func CountTokens(text, model string) int {
	if text == "" {
		return 0
	}
	if enc := encoderFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return Estimate(text)
}

// Estimate approximates a token count at roughly 4/3 tokens per word.
func Estimate(text string) int {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	return max(len(words)*4/3, 1)
}
