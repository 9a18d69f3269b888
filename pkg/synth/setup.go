package synth

import (
	"fmt"
	"log/slog"

	"github.com/hiresynth/synth/internal/render"
)

// SynthConfig is the resolved call plan for one prompt output: the provider
// to stream from, the effective model config, and the rendered prompts.
type SynthConfig struct {
	Provider     Provider
	ModelConfig  ModelConfig
	SystemPrompt string
	UserPrompt   string
}

// RAGQuery is the resolved call plan for one rag output.
type RAGQuery struct {
	Query  string
	Config RAGConfig
}

// promptSetup renders the user and optional system prompt, folds the model
// config layers, and resolves the provider.
func (s *Synth) promptSetup(out *Output, inputs map[string]any, transitionConfig *ModelConfig) (*SynthConfig, error) {
	userPrompt, err := render.Strict(out.Prompt, inputs)
	if err != nil {
		return nil, err
	}

	var systemPrompt string
	if out.SystemPrompt != "" {
		systemPrompt, err = render.Strict(out.SystemPrompt, inputs)
		if err != nil {
			return nil, err
		}
	}

	cfg := resolveModelConfig(s.def.DefaultModelConfig, transitionConfig, out.ModelConfig)

	provider, err := s.provider(cfg.Executor)
	if err != nil {
		return nil, err
	}

	slog.Debug("prompt call plan ready", "output", out.Key, "executor", cfg.Executor, "model", cfg.LLMName)

	return &SynthConfig{
		Provider:     provider,
		ModelConfig:  cfg,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
	}, nil
}

// ragQuerySetup renders the query template and overlays the default RAG
// config with the output's RAG config.
func ragQuerySetup(out *Output, inputs map[string]any, defaults RAGConfig) (*RAGQuery, error) {
	query, err := render.Strict(out.RAG, inputs)
	if err != nil {
		return nil, err
	}

	return &RAGQuery{
		Query:  query,
		Config: defaults.overlay(out.RAGConfig),
	}, nil
}

// provider resolves an executor name against the per-instance overrides
// first, then the global registry.
func (s *Synth) provider(name string) (Provider, error) {
	if p, ok := s.providers[name]; ok {
		return p, nil
	}

	p, err := LookupProvider(name)
	if err != nil {
		return nil, fmt.Errorf("resolve executor: %w", err)
	}

	return p, nil
}
