package synth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hiresynth/synth/internal/render"
)

// runTask dispatches one output to its operation and commits the result to
// memory. It returns false only when the consumer stopped reading; failures
// are reported through failure-tagged events.
func (s *Synth) runTask(ctx context.Context, emit emitFn, transition *Transition, out *Output, inputs map[string]any, loop bool) bool {
	if !emit(Event{Tag: EventSetActiveOutput, Key: out.Key}) {
		return false
	}

	if !emit(Event{Tag: EventSetMemory, Key: out.Key, Value: deepCopy(s.memory.GetDefault(out.Key, map[string]any{}))}) {
		return false
	}

	if !emit(Event{Tag: EventInputs, Inputs: inputs}) {
		return false
	}

	switch out.operation() {
	case OpAppend:
		return s.runAppend(emit, out)

	case OpInterleave:
		return s.runInterleave(emit, out)

	case OpJinja:
		return s.runJinja(emit, out, inputs)

	case OpPrompt:
		return s.runPrompt(ctx, emit, transition, out, inputs, loop)

	case OpReset:
		s.runReset(out.Key)

	case OpUDF:
		return s.runUDF(emit, out)

	case OpTool:
		return s.runToolOutput(ctx, emit, out, inputs, loop)

	case OpRAG:
		return s.runRAG(ctx, emit, out, inputs)

	default:
		// No operation field: the output is a no-op.
	}

	return emit(Event{Tag: EventOutputCompleted, Key: out.Key})
}

// runAppend appends every non-nil referenced memory value to the output
// key's list, creating it when absent.
func (s *Synth) runAppend(emit emitFn, out *Output) bool {
	if _, ok := s.memory.Get(out.Key); !ok {
		s.memory.Set(out.Key, []any{})
	}

	for _, memoryKey := range out.Append {
		item, ok := s.memory.Get(memoryKey)
		if !ok || item == nil {
			continue
		}
		if err := s.memory.Append(out.Key, item); err != nil {
			emit(Event{Tag: EventFailed, Key: out.Key, Message: err.Error()})
			return false
		}
	}

	if !emit(Event{Tag: EventSetMemory, Key: out.Key, Value: deepCopy(s.memory.GetDefault(out.Key, nil))}) {
		return false
	}

	return emit(Event{Tag: EventOutputCompleted, Key: out.Key})
}

// runInterleave zips the referenced memory lists by position. Dict items
// at the same position merge into one dict; non-dict items bind under the
// key "interleave". The longest list wins; missing slots are skipped.
func (s *Synth) runInterleave(emit emitFn, out *Output) bool {
	var lists [][]any
	longest := 0
	for _, key := range out.Interleave {
		v, ok := s.memory.Get(key)
		if !ok || v == nil {
			continue
		}
		list, ok := v.([]any)
		if !ok {
			continue
		}
		lists = append(lists, list)
		if len(list) > longest {
			longest = len(list)
		}
	}

	result := make([]any, 0, longest)
	for i := 0; i < longest; i++ {
		merged := map[string]any{}
		for _, list := range lists {
			if i >= len(list) || list[i] == nil {
				continue
			}
			if dict, ok := list[i].(map[string]any); ok {
				for k, v := range dict {
					merged[k] = v
				}
			} else {
				merged[OpInterleave] = list[i]
			}
		}
		result = append(result, merged)
	}

	s.memory.Set(out.Key, result)

	if !emit(Event{Tag: EventSetMemory, Key: out.Key, Value: deepCopy(result)}) {
		return false
	}

	return emit(Event{Tag: EventOutputCompleted, Key: out.Key})
}

// runJinja renders the template against the transition inputs and stores
// the text.
func (s *Synth) runJinja(emit emitFn, out *Output, inputs map[string]any) bool {
	text, err := render.Strict(out.Jinja, inputs)
	if err != nil {
		emit(Event{Tag: EventFailed, Key: out.Key, Message: err.Error()})
		return false
	}

	s.memory.Set(out.Key, text)

	if !emit(Event{Tag: EventSetMemory, Key: out.Key, Value: text}) {
		return false
	}

	return emit(Event{Tag: EventOutputCompleted, Key: out.Key})
}

// runReset replaces the output key's value with the empty value of its
// current type.
func (s *Synth) runReset(key string) {
	switch s.memory.GetDefault(key, map[string]any{}).(type) {
	case []any:
		s.memory.Set(key, []any{})
	case string:
		s.memory.Set(key, "")
	default:
		s.memory.Set(key, map[string]any{})
	}
}

// runUDF invokes a registered user-defined function with the memory
// snapshot and stores its return value.
func (s *Synth) runUDF(emit emitFn, out *Output) bool {
	fn, ok := s.udfs[out.UDF]
	if !ok {
		names := make([]string, 0, len(s.udfs))
		for name := range s.udfs {
			names = append(names, name)
		}
		emit(Event{Tag: EventFailed, Key: out.Key, Message: fmt.Sprintf("method %q not in registered user defined functions: %v", out.UDF, names)})
		return false
	}

	slog.Debug("custom user defined function", "output", out.Key, "udf", out.UDF)

	result, err := fn(s.memory.Snapshot())
	if err != nil {
		emit(Event{Tag: EventFailed, Key: out.Key, Message: err.Error()})
		return false
	}

	s.memory.Set(out.Key, result)

	return emit(Event{Tag: EventOutputCompleted, Key: out.Key})
}

// runToolOutput builds the tool call plan, POSTs it, stores the result and
// records token usage. A tool failure fails the output without unwinding
// the machine state.
func (s *Synth) runToolOutput(ctx context.Context, emit emitFn, out *Output, inputs map[string]any, loop bool) bool {
	cfg, err := toolSetup(s.tools, out, inputs)
	if err != nil {
		slog.Error("tool setup failed", "output", out.Key, "error", err)
		emit(Event{Tag: EventFailed, Key: out.Key, Message: err.Error()})
		return false
	}

	slog.Info("tool call", "tool_id", cfg.ToolID, "path", cfg.ToolPath)

	result, err := s.runTool(ctx, cfg)
	if err != nil {
		emit(Event{Tag: EventFailed, Key: out.Key, Message: fmt.Sprintf("failed to call tool %s: %v", cfg.ToolPath, err)})
		return false
	}

	if loop {
		if err := s.memory.Append(out.Key, result); err != nil {
			emit(Event{Tag: EventFailed, Key: out.Key, Message: err.Error()})
			return false
		}
	} else {
		s.memory.Set(out.Key, result)
	}

	usage := s.cost.RecordToolTokenUsage(ctx, s.user, s.sessionID, cfg, cfg.Tokens.Execution)

	if !emit(Event{Tag: EventToolOutput, Key: out.Key, TokenUsage: usage, ToolID: cfg.ToolID}) {
		return false
	}
	if !emit(Event{Tag: EventSetMemory, Key: out.Key, Value: deepCopy(result)}) {
		return false
	}

	return emit(Event{Tag: EventOutputCompleted, Key: out.Key})
}

// runRAG executes the rag query sub-operation through the injected
// retriever. Other sub-operations are not implemented.
func (s *Synth) runRAG(ctx context.Context, emit emitFn, out *Output, inputs map[string]any) bool {
	operation := out.Operation
	if operation == "" {
		operation = "query"
	}

	if operation != "query" {
		emit(Event{Tag: EventNotImplemented, Key: out.Key, Message: fmt.Sprintf("rag operation %q not implemented yet", operation)})
		return false
	}

	if s.retriever == nil {
		emit(Event{Tag: EventFailed, Key: out.Key, Message: "no retriever configured"})
		return false
	}

	plan, err := ragQuerySetup(out, inputs, s.def.DefaultRAGConfig)
	if err != nil {
		slog.Error("rag query setup failed", "output", out.Key, "error", err)
		emit(Event{Tag: EventFailed, Key: out.Key, Message: err.Error()})
		return false
	}

	result, err := s.retriever.Query(ctx, plan.Query, plan.Config)
	if err != nil {
		emit(Event{Tag: EventFailed, Key: out.Key, Message: err.Error()})
		return false
	}

	s.memory.Set(out.Key, result)

	return emit(Event{Tag: EventOutputCompleted, Key: out.Key})
}
