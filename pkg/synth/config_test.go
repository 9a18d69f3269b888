package synth

import "testing"

func TestResolveModelConfigLayers(t *testing.T) {
	lowTemp := 0.1

	def := ModelConfig{Executor: "lorem", MaxTokens: 64}
	transition := &ModelConfig{LLMName: "base-model"}
	output := &ModelConfig{LLMName: "output-model", Temperature: &lowTemp}

	cfg := resolveModelConfig(def, transition, output)

	if cfg.Executor != "lorem" {
		t.Fatalf("executor = %q", cfg.Executor)
	}
	if cfg.MaxTokens != 64 {
		t.Fatalf("max_tokens = %d", cfg.MaxTokens)
	}
	if cfg.LLMName != "output-model" {
		t.Fatalf("output layer must win, got %q", cfg.LLMName)
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0.1 {
		t.Fatalf("temperature = %v", cfg.Temperature)
	}
}

func TestResolveModelConfigDefaults(t *testing.T) {
	cfg := resolveModelConfig(ModelConfig{}, nil, nil)

	if cfg.Executor != "togetherai" {
		t.Fatalf("executor = %q", cfg.Executor)
	}
	if cfg.MaxTokens != 1024 {
		t.Fatalf("max_tokens = %d", cfg.MaxTokens)
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0.8 {
		t.Fatalf("temperature = %v", cfg.Temperature)
	}
}

func TestOverlayZeroValuesDoNotClobber(t *testing.T) {
	base := DefaultModelConfig()
	cfg := base.overlay(&ModelConfig{})

	if cfg.Executor != base.Executor || cfg.MaxTokens != base.MaxTokens {
		t.Fatalf("empty overlay changed config: %+v", cfg)
	}
}
