package synth

import (
	"strings"
	"testing"
)

func searchTool() Tool {
	return Tool{
		Name:        "search",
		APIEndpoint: "http://tools.local",
		ID:          "tool-1",
		APISpec: map[string]any{
			"paths": map[string]any{
				"/v1/search": map[string]any{
					"post": map[string]any{
						"responses": map[string]any{
							"200": map[string]any{
								"content": map[string]any{
									"application/json": map[string]any{},
								},
							},
						},
					},
				},
			},
		},
	}
}

func imageTool() Tool {
	return Tool{
		Name:        "draw",
		APIEndpoint: "http://tools.local",
		ID:          "tool-2",
		APISpec: map[string]any{
			"paths": map[string]any{
				"/v1/draw": map[string]any{
					"post": map[string]any{
						"responses": map[string]any{
							"200": map[string]any{
								"content": map[string]any{
									"image/png": map[string]any{},
								},
							},
						},
					},
				},
			},
		},
	}
}

func TestToolSetupPayloadMapping(t *testing.T) {
	out := &Output{
		Key:   "results",
		Tool:  "search",
		Route: "/v1/search",
		InputNameMap: map[string]string{
			"query":   "question",             // direct input lookup
			"context": "about {{.question}}",  // template render
		},
	}

	cfg, err := toolSetup([]Tool{searchTool()}, out, map[string]any{"question": "gophers"})
	if err != nil {
		t.Fatalf("toolSetup: %v", err)
	}

	if cfg.ToolPath != "http://tools.local/v1/search" {
		t.Fatalf("tool path = %q", cfg.ToolPath)
	}
	if cfg.Payload["query"] != "gophers" {
		t.Fatalf("direct lookup payload = %v", cfg.Payload["query"])
	}
	if cfg.Payload["context"] != "about gophers" {
		t.Fatalf("template payload = %v", cfg.Payload["context"])
	}
	if len(cfg.OutputMimeTypes) != 0 {
		t.Fatalf("json tool marked as blob: %v", cfg.OutputMimeTypes)
	}
}

func TestToolSetupBlobMimeTypes(t *testing.T) {
	out := &Output{Key: "img", Tool: "draw", Route: "/v1/draw", InputNameMap: map[string]string{}}

	cfg, err := toolSetup([]Tool{imageTool()}, out, nil)
	if err != nil {
		t.Fatalf("toolSetup: %v", err)
	}

	if len(cfg.OutputMimeTypes) != 1 || cfg.OutputMimeTypes[0] != "image/png" {
		t.Fatalf("mime types = %v", cfg.OutputMimeTypes)
	}
}

func TestToolSetupUnknownTool(t *testing.T) {
	out := &Output{Key: "x", Tool: "nope", Route: "/v1/x"}

	_, err := toolSetup([]Tool{searchTool()}, out, nil)
	if err == nil || !strings.Contains(err.Error(), "tool not found") {
		t.Fatalf("err = %v", err)
	}
}

func TestToolSetupTokenMultiplier(t *testing.T) {
	tool := searchTool()
	tool.TokenMultiplier = 2
	tool.TokensPerExecution = 10

	out := &Output{
		Key:          "results",
		Tool:         "search",
		Route:        "/v1/search",
		InputNameMap: map[string]string{"query": "question"},
	}

	cfg, err := toolSetup([]Tool{tool}, out, map[string]any{"question": "some words here"})
	if err != nil {
		t.Fatalf("toolSetup: %v", err)
	}

	if cfg.Tokens.Execution != 10 {
		t.Fatalf("execution tokens = %v", cfg.Tokens.Execution)
	}
	if cfg.Tokens.Multiplier <= 0 {
		t.Fatalf("multiplied tokens = %v, want > 0", cfg.Tokens.Multiplier)
	}
}

func TestRAGQuerySetup(t *testing.T) {
	out := &Output{
		Key:       "docs",
		RAG:       "find docs about {{.topic}}",
		RAGConfig: &RAGConfig{N: 7},
	}

	plan, err := ragQuerySetup(out, map[string]any{"topic": "streams"}, RAGConfig{CollectionName: "kb", N: 3})
	if err != nil {
		t.Fatalf("ragQuerySetup: %v", err)
	}

	if plan.Query != "find docs about streams" {
		t.Fatalf("query = %q", plan.Query)
	}
	if plan.Config.CollectionName != "kb" {
		t.Fatalf("collection = %q", plan.Config.CollectionName)
	}
	if plan.Config.N != 7 {
		t.Fatalf("output rag config must win, n = %d", plan.Config.N)
	}
}
