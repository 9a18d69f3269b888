package synth

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Interface describes one UI component bound to a state.
type Interface struct {
	ComponentName string         `json:"componentName" yaml:"componentName"`
	Key           string         `json:"key" yaml:"key"`
	UIParams      map[string]any `json:"ui_params,omitempty" yaml:"ui_params,omitempty"`
}

// State is one node of the pipeline's state machine.
type State struct {
	Name      string      `json:"name" yaml:"name"`
	Interface []Interface `json:"interface,omitempty" yaml:"interface,omitempty"`
}

// Input declares one memory key a transition reads.
type Input struct {
	Key         string         `json:"key" yaml:"key"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Examples    []string       `json:"examples,omitempty" yaml:"examples,omitempty"`
	Schema      map[string]any `json:"schema,omitempty" yaml:"schema,omitempty"`
	UIParams    map[string]any `json:"ui_params,omitempty" yaml:"ui_params,omitempty"`
	UIType      string         `json:"ui_type,omitempty" yaml:"ui_type,omitempty"`
}

// Loop is the matrix controlling repeated evaluation of one output. Each
// matrix entry binds a loop variable to either a memory key holding a list
// or a literal list.
type Loop struct {
	Matrix []map[string]any `json:"matrix" yaml:"matrix"`
}

// Output declares one produced value of a transition, bound to at most one
// operation field. When more than one operation field is present, the
// priority order applied by operation() wins.
type Output struct {
	Key          string            `json:"key" yaml:"key"`
	Schema       map[string]any    `json:"schema,omitempty" yaml:"schema,omitempty"`
	ModelConfig  *ModelConfig      `json:"model_config,omitempty" yaml:"model_config,omitempty"`
	Prompt       string            `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	SystemPrompt string            `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	Jinja        string            `json:"jinja,omitempty" yaml:"jinja,omitempty"`
	Interleave   []string          `json:"interleave,omitempty" yaml:"interleave,omitempty"`
	Append       []string          `json:"append,omitempty" yaml:"append,omitempty"`
	Reset        bool              `json:"reset,omitempty" yaml:"reset,omitempty"`
	UDF          string            `json:"udf,omitempty" yaml:"udf,omitempty"`
	Tool         string            `json:"tool,omitempty" yaml:"tool,omitempty"`
	Route        string            `json:"route,omitempty" yaml:"route,omitempty"`
	InputNameMap map[string]string `json:"input_name_map,omitempty" yaml:"input_name_map,omitempty"`
	JQ           string            `json:"jq,omitempty" yaml:"jq,omitempty"`
	Loop         *Loop             `json:"loop,omitempty" yaml:"loop,omitempty"`
	RAG          string            `json:"rag,omitempty" yaml:"rag,omitempty"`
	RAGConfig    *RAGConfig        `json:"rag_config,omitempty" yaml:"rag_config,omitempty"`

	// Operation selects the RAG sub-operation; only "query" is implemented.
	Operation string `json:"operation,omitempty" yaml:"operation,omitempty"`
}

// Operation names in tie-break priority order.
const (
	OpAppend     = "append"
	OpInterleave = "interleave"
	OpJinja      = "jinja"
	OpPrompt     = "prompt"
	OpReset      = "reset"
	OpUDF        = "udf"
	OpTool       = "tool"
	OpRAG        = "rag"
)

// operation returns the single operation bound to the output, applying the
// declared priority order as tie-break. An empty string means no-op.
func (o *Output) operation() string {
	switch {
	case len(o.Append) > 0:
		return OpAppend
	case len(o.Interleave) > 0:
		return OpInterleave
	case o.Jinja != "":
		return OpJinja
	case o.Prompt != "":
		return OpPrompt
	case o.Reset:
		return OpReset
	case o.UDF != "":
		return OpUDF
	case o.Tool != "":
		return OpTool
	case o.RAG != "":
		return OpRAG
	}

	return ""
}

// Transition is one edge of the pipeline: trigger, source → dest, the
// memory keys it reads, the outputs it produces, and an optional follow-up
// trigger (`after`).
type Transition struct {
	Trigger     string       `json:"trigger" yaml:"trigger"`
	Source      string       `json:"source" yaml:"source"`
	Dest        string       `json:"dest" yaml:"dest"`
	Inputs      []Input      `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs     []Output     `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	After       string       `json:"after,omitempty" yaml:"after,omitempty"`
	Default     bool         `json:"default,omitempty" yaml:"default,omitempty"`
	ModelConfig *ModelConfig `json:"model_config,omitempty" yaml:"model_config,omitempty"`
}

// ShareProfile is optional display metadata for the pipeline.
type ShareProfile struct {
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Image       string `json:"image,omitempty" yaml:"image,omitempty"`
}

// Definition is the parsed, validated pipeline document. Immutable after
// construction.
type Definition struct {
	InitialState       string         `json:"initial_state" yaml:"initial_state"`
	States             []State        `json:"states" yaml:"states"`
	Transitions        []Transition   `json:"transitions" yaml:"transitions"`
	InitialMemory      map[string]any `json:"initial_memory,omitempty" yaml:"initial_memory,omitempty"`
	DefaultModelConfig ModelConfig    `json:"default_model_config,omitempty" yaml:"default_model_config,omitempty"`
	DefaultRAGConfig   RAGConfig      `json:"default_rag_config,omitempty" yaml:"default_rag_config,omitempty"`
	ShareProfile       *ShareProfile  `json:"shareProfile,omitempty" yaml:"shareProfile,omitempty"`
}

// memoryKeyPrefix marks an `after` value that indirects through memory.
const memoryKeyPrefix = "memory_key:"

// ParseDefinition decodes a pipeline document (JSON or YAML) and validates
// it. Any invariant violation is reported with the offending key.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}

	return &def, nil
}

// Validate checks the structural invariants of the document.
func (d *Definition) Validate() error {
	stateNames := make(map[string]struct{}, len(d.States))
	names := make([]string, 0, len(d.States))
	for _, s := range d.States {
		stateNames[s.Name] = struct{}{}
		names = append(names, s.Name)
	}

	if _, ok := stateNames[d.InitialState]; !ok {
		return fmt.Errorf("initial_state %q is not a valid state name, must be one of %v", d.InitialState, names)
	}

	triggers := make(map[string]struct{}, len(d.Transitions))
	for _, t := range d.Transitions {
		triggers[t.Trigger] = struct{}{}
	}

	for _, t := range d.Transitions {
		if _, ok := stateNames[t.Source]; !ok {
			return fmt.Errorf("transition %q: source %q is not a declared state", t.Trigger, t.Source)
		}
		if _, ok := stateNames[t.Dest]; !ok {
			return fmt.Errorf("transition %q: dest %q is not a declared state", t.Trigger, t.Dest)
		}

		if t.After != "" && !strings.HasPrefix(t.After, memoryKeyPrefix) {
			if _, ok := triggers[t.After]; !ok {
				return fmt.Errorf("transition %q: after value %q is not part of available triggers", t.Trigger, t.After)
			}
		}

		for _, out := range t.Outputs {
			if (out.Prompt != "" || out.SystemPrompt != "") && out.Schema == nil {
				return fmt.Errorf("all prompts require schema to be set, not set on: %s", out.Key)
			}
			if out.Tool != "" && out.Route == "" {
				return fmt.Errorf("all tools require route to be set, not set on: %s", out.Key)
			}
		}
	}

	return nil
}

// TransitionForTrigger returns the first declared transition with the given
// trigger.
func (d *Definition) TransitionForTrigger(trigger string) (*Transition, bool) {
	for i := range d.Transitions {
		if d.Transitions[i].Trigger == trigger {
			return &d.Transitions[i], true
		}
	}

	return nil, false
}

// TransitionsAvailableFrom returns the transitions whose source is the
// given state, in declaration order.
func (d *Definition) TransitionsAvailableFrom(state string) []Transition {
	var out []Transition
	for _, t := range d.Transitions {
		if t.Source == state {
			out = append(out, t)
		}
	}

	return out
}

// StateByName returns the declared state with the given name.
func (d *Definition) StateByName(name string) (*State, bool) {
	for i := range d.States {
		if d.States[i].Name == name {
			return &d.States[i], true
		}
	}

	return nil, false
}
