package synth

// ModelConfig holds the provider selection and generation parameters for a
// prompt output. Configs overlay in three layers: the definition default,
// the transition override, and the output override (later wins field-wise).
type ModelConfig struct {
	Executor         string           `json:"executor,omitempty" yaml:"executor,omitempty"`
	LLMName          string           `json:"model_name,omitempty" yaml:"model_name,omitempty"`
	MaxTokens        int              `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature      *float64         `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	AssistantPartial string           `json:"assistant_partial,omitempty" yaml:"assistant_partial,omitempty"`
	PartialInput     *string          `json:"partial_input,omitempty" yaml:"partial_input,omitempty"`
	Stop             []string         `json:"stop,omitempty" yaml:"stop,omitempty"`
	ToolUse          bool             `json:"tool_use,omitempty" yaml:"tool_use,omitempty"`
	ToolOptions      []map[string]any `json:"tool_options,omitempty" yaml:"tool_options,omitempty"`
}

// DefaultModelConfig returns the built-in defaults applied when the pipeline
// document does not set a field at any layer.
func DefaultModelConfig() ModelConfig {
	temp := 0.8

	return ModelConfig{
		Executor:    "togetherai",
		LLMName:     "mistralai/Mixtral-8x7B-Instruct-v0.1",
		MaxTokens:   1024,
		Temperature: &temp,
	}
}

// overlay returns c with every set field of o applied on top. A nil overlay
// returns c unchanged.
func (c ModelConfig) overlay(o *ModelConfig) ModelConfig {
	if o == nil {
		return c
	}

	if o.Executor != "" {
		c.Executor = o.Executor
	}
	if o.LLMName != "" {
		c.LLMName = o.LLMName
	}
	if o.MaxTokens != 0 {
		c.MaxTokens = o.MaxTokens
	}
	if o.Temperature != nil {
		c.Temperature = o.Temperature
	}
	if o.AssistantPartial != "" {
		c.AssistantPartial = o.AssistantPartial
	}
	if o.PartialInput != nil {
		c.PartialInput = o.PartialInput
	}
	if len(o.Stop) > 0 {
		c.Stop = o.Stop
	}
	if o.ToolUse {
		c.ToolUse = true
	}
	if len(o.ToolOptions) > 0 {
		c.ToolOptions = o.ToolOptions
	}

	return c
}

// resolveModelConfig folds default ⊕ transition ⊕ output into the effective
// config for one prompt output.
func resolveModelConfig(def ModelConfig, transition, output *ModelConfig) ModelConfig {
	return DefaultModelConfig().overlay(&def).overlay(transition).overlay(output)
}
