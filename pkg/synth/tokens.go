package synth

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Token counting uses the cl100k_base encoding. The encoder is loaded once;
// when it cannot be loaded (e.g. offline), counting degrades to a bytes/4
// estimate so accounting still moves in the right direction.
var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// CountTokens returns the cl100k_base token count of s.
func CountTokens(s string) int {
	if s == "" {
		return 0
	}

	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("cl100k_base encoding unavailable, falling back to byte estimate", "error", err)
			return
		}
		encoding = enc
	})

	if encoding == nil {
		return (len(s) + 3) / 4
	}

	return len(encoding.Encode(s, nil, nil))
}

// CalculateInputTokens estimates the input-side token count of a prompt
// pair plus any assistant partial.
func CalculateInputTokens(systemPrompt, userPrompt, assistantPartial string) int {
	return CountTokens(systemPrompt) + CountTokens(userPrompt) + CountTokens(assistantPartial)
}
