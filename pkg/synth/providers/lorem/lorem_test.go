package lorem

import (
	"context"
	"strings"
	"testing"

	"github.com/hiresynth/synth/pkg/synth"
)

func collect(t *testing.T, req synth.GenerateRequest) []synth.TokenChunk {
	t.Helper()

	p := &Provider{}
	stream, err := p.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var chunks []synth.TokenChunk
	for chunk := range stream {
		chunks = append(chunks, chunk)
	}

	return chunks
}

func TestGenerateAccountsInputFirst(t *testing.T) {
	chunks := collect(t, synth.GenerateRequest{
		UserPrompt: "count to ten",
		Config:     synth.ModelConfig{MaxTokens: 5},
	})

	if len(chunks) != 6 {
		t.Fatalf("got %d chunks, want 1 input + 5 words", len(chunks))
	}

	first := chunks[0]
	if first.Type != synth.TokenInput || first.Token != "" || first.Tokens <= 0 {
		t.Fatalf("first chunk = %+v, want input accounting", first)
	}

	for i, chunk := range chunks[1:] {
		if chunk.Type != synth.TokenOutput || chunk.Tokens != 1 {
			t.Fatalf("chunk %d = %+v", i+1, chunk)
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	req := synth.GenerateRequest{UserPrompt: "same prompt", Config: synth.ModelConfig{MaxTokens: 8}}

	first := collect(t, req)
	second := collect(t, req)

	for i := range first {
		if first[i].Token != second[i].Token {
			t.Fatalf("chunk %d differs: %q vs %q", i, first[i].Token, second[i].Token)
		}
	}
}

func TestGenerateSentenceShape(t *testing.T) {
	chunks := collect(t, synth.GenerateRequest{UserPrompt: "shape", Config: synth.ModelConfig{MaxTokens: 12}})

	firstWord := chunks[1].Token
	if firstWord != strings.ToUpper(firstWord[:1])+firstWord[1:] {
		t.Fatalf("first word not capitalized: %q", firstWord)
	}
}

func TestPostProcessUnwrapsOutput(t *testing.T) {
	p := &Provider{}

	got := p.PostProcess(map[string]any{"output": "inner"})
	if got != "inner" {
		t.Fatalf("PostProcess = %v", got)
	}

	if got := p.PostProcess("plain"); got != "plain" {
		t.Fatalf("PostProcess passthrough = %v", got)
	}
}

func TestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := &Provider{}
	stream, err := p.Generate(ctx, synth.GenerateRequest{UserPrompt: "x", Config: synth.ModelConfig{MaxTokens: 1000}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	<-stream
	cancel()

	// The channel must close promptly once the context is gone.
	for range stream {
	}
}
