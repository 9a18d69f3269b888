// Package lorem provides a deterministic offline provider for tests and
// local development. It emits one input-token accounting event followed by
// a reproducible sequence of lorem-ipsum word tokens with a small sleep
// between each, mimicking a live model stream.
package lorem

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/hiresynth/synth/pkg/synth"
)

// Name is the executor name the provider registers under.
const Name = "lorem"

// chunkDelay paces the stream so consumers exercise their live-streaming
// paths.
const chunkDelay = 50 * time.Millisecond

var wordCatalog = []string{
	"lorem", "ipsum", "dolor", "sit", "amet", "consectetur", "adipiscing",
	"elit", "sed", "do", "eiusmod", "tempor", "incididunt", "ut", "labore",
	"et", "dolore", "magna", "aliqua", "enim", "ad", "minim", "veniam",
	"quis", "nostrud", "exercitation", "ullamco", "laboris", "nisi",
	"aliquip", "ex", "ea", "commodo", "consequat", "duis", "aute", "irure",
	"in", "reprehenderit", "voluptate", "velit", "esse", "cillum", "eu",
	"fugiat", "nulla", "pariatur", "excepteur", "sint", "occaecat",
	"cupidatat", "non", "proident", "sunt", "culpa", "qui", "officia",
	"deserunt", "mollit", "anim", "id", "est", "laborum",
}

func init() {
	synth.RegisterProvider(Name, &Provider{})
}

// Provider is the lorem executor. It is stateless and safe for concurrent
// use.
type Provider struct{}

// PostProcess unwraps the conventional {"output": …} envelope.
func (*Provider) PostProcess(raw any) any {
	if m, ok := raw.(map[string]any); ok {
		return m["output"]
	}

	return raw
}

// Generate streams max_tokens lorem words. The word sequence is seeded
// from the prompt so identical requests produce identical output.
func (*Provider) Generate(ctx context.Context, req synth.GenerateRequest) (<-chan synth.TokenChunk, error) {
	ch := make(chan synth.TokenChunk)

	go func() {
		defer close(ch)

		inputTokens := synth.CalculateInputTokens(req.SystemPrompt, req.UserPrompt, req.Config.AssistantPartial)

		select {
		case ch <- synth.TokenChunk{Tokens: inputTokens, Type: synth.TokenInput}:
		case <-ctx.Done():
			return
		}

		wordCount := req.Config.MaxTokens
		if wordCount <= 0 {
			wordCount = 50
		}

		rng := rand.New(rand.NewSource(seed(req.UserPrompt)))

		for i := 0; i < wordCount; i++ {
			word := wordCatalog[rng.Intn(len(wordCatalog))]

			// Sentence shape: capitalize openers, close every tenth word.
			switch {
			case i == 0 || (i > 1 && (i-1)%10 == 0):
				word = strings.ToUpper(word[:1]) + word[1:] + " "
			case i%10 == 0:
				word += ". "
			case i == wordCount-1:
				word += "."
			default:
				word += " "
			}

			select {
			case ch <- synth.TokenChunk{Token: word, Tokens: 1, Type: synth.TokenOutput}:
			case <-ctx.Done():
				return
			}

			select {
			case <-time.After(chunkDelay):
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// seed folds the prompt into a stable RNG seed.
func seed(prompt string) int64 {
	var h int64 = 1125899906842597
	for _, r := range prompt {
		h = 31*h + int64(r)
	}

	return h
}
