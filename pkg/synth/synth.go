// Package synth implements a declarative, streaming orchestrator for
// structured LLM pipelines. A pipeline is a finite-state machine whose
// transitions produce outputs; each output is computed by one operation
// (prompt, tool, rag, jinja, append, interleave, reset, udf), streamed
// token-by-token, validated against a JSON Schema, and committed to a
// shared memory map that later transitions read from.
package synth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/worldline-go/klient"
)

// defaultRetries is the validation retry budget per prompt output.
const defaultRetries = 3

// Synth is one orchestrator instance: an immutable pipeline definition, a
// state machine positioned at the current state, and the memory carrying
// values between transitions.
//
// A Synth is not safe for concurrent triggers; memory is owned exclusively
// by the instance and outputs within a transition are strictly ordered.
type Synth struct {
	def     *Definition
	memory  *Memory
	machine *machine

	providers map[string]Provider
	tools     []Tool
	retriever Retriever
	store     ObjectStore
	udfs      map[string]UDF
	safety    SafetyChecker
	cost      CostRecorder

	user      string
	sessionID string
	retries   int

	buffers    map[string]string
	httpClient *klient.Client
}

// Option configures a Synth at construction.
type Option func(*Synth)

// WithMemory seeds memory on top of the definition's initial_memory.
func WithMemory(memory map[string]any) Option {
	return func(s *Synth) { s.memory.Merge(memory) }
}

// WithTools registers the external tools available to tool outputs.
func WithTools(tools ...Tool) Option {
	return func(s *Synth) { s.tools = append(s.tools, tools...) }
}

// WithRetriever injects the retrieval collaborator for rag outputs.
func WithRetriever(r Retriever) Option {
	return func(s *Synth) { s.retriever = r }
}

// WithObjectStore injects the store for binary tool outputs.
func WithObjectStore(store ObjectStore) Option {
	return func(s *Synth) { s.store = store }
}

// WithUDFs registers user-defined functions by name.
func WithUDFs(udfs map[string]UDF) Option {
	return func(s *Synth) {
		for name, fn := range udfs {
			s.udfs[name] = fn
		}
	}
}

// WithSafety injects the moderation collaborator. Without one, safety
// gates are skipped.
func WithSafety(checker SafetyChecker) Option {
	return func(s *Synth) { s.safety = checker }
}

// WithCost injects the token accounting collaborator.
func WithCost(rec CostRecorder) Option {
	return func(s *Synth) { s.cost = rec }
}

// WithProvider overrides a provider for this instance only, without
// touching the global registry. Useful for tests.
func WithProvider(name string, p Provider) Option {
	return func(s *Synth) { s.providers[name] = p }
}

// WithUser sets the user identifier passed to providers and cost hooks.
func WithUser(user string) Option {
	return func(s *Synth) { s.user = user }
}

// WithSessionID sets the session identifier used in cost records.
func WithSessionID(id string) Option {
	return func(s *Synth) { s.sessionID = id }
}

// WithRetries overrides the validation retry budget (default 3).
func WithRetries(n int) Option {
	return func(s *Synth) { s.retries = n }
}

// New builds an orchestrator from a validated definition. Memory is seeded
// from initial_memory, then any WithMemory overlay.
func New(def *Definition, opts ...Option) (*Synth, error) {
	if def == nil {
		return nil, fmt.Errorf("definition is required")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}

	stateNames := make([]string, 0, len(def.States))
	for _, st := range def.States {
		stateNames = append(stateNames, st.Name)
	}

	transitions := make([]machineTransition, 0, len(def.Transitions))
	for _, t := range def.Transitions {
		transitions = append(transitions, machineTransition{trigger: t.Trigger, source: t.Source, dest: t.Dest})
	}

	httpClient, err := newToolClient()
	if err != nil {
		return nil, fmt.Errorf("build tool client: %w", err)
	}

	s := &Synth{
		def:        def,
		memory:     NewMemory(),
		machine:    newMachine(def.InitialState, stateNames, transitions),
		providers:  make(map[string]Provider),
		udfs:       make(map[string]UDF),
		cost:       BaseCost{},
		user:       ulid.Make().String(),
		sessionID:  ulid.Make().String(),
		retries:    defaultRetries,
		buffers:    make(map[string]string),
		httpClient: httpClient,
	}

	s.memory.Merge(def.InitialMemory)

	for _, opt := range opts {
		opt(s)
	}

	if len(s.udfs) > 0 {
		slog.Warn("user defined functions are run at the caller's risk")
	}

	return s, nil
}

// CurrentState returns the machine's current state name.
func (s *Synth) CurrentState() string {
	return s.machine.state
}

// Memory returns a snapshot of the current memory mapping.
func (s *Synth) Memory() map[string]any {
	return s.memory.Snapshot()
}

// Available returns the transitions whose trigger can fire from the given
// state (current state when omitted).
func (s *Synth) Available(state ...string) []Transition {
	at := s.machine.state
	if len(state) > 0 && state[0] != "" {
		at = state[0]
	}

	triggers := make(map[string]struct{})
	for _, t := range s.machine.availableTriggers(at) {
		triggers[t] = struct{}{}
	}

	var out []Transition
	for _, t := range s.def.Transitions {
		if _, ok := triggers[t.Trigger]; ok {
			out = append(out, t)
		}
	}

	return out
}

// emitFn delivers one event to the consumer. It returns false when the
// consumer is gone (context cancelled), which unwinds the run.
type emitFn func(Event) bool

// StreamingTrigger fires a trigger and returns a lazy event stream. The
// channel closes when the transition (and any `after` chain) completes,
// fails, or the context is cancelled. Calling a trigger that is not
// available at the current state fails synchronously with *TransitionError.
func (s *Synth) StreamingTrigger(ctx context.Context, trigger string, params map[string]any) (<-chan Event, error) {
	if !s.triggerAvailable(trigger) {
		return nil, &TransitionError{Trigger: trigger, State: s.machine.state}
	}

	if len(params) > 0 {
		s.memory.Merge(params)
	}

	ch := make(chan Event)

	emit := func(ev Event) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(ch)
		s.executeForTrigger(ctx, emit, trigger)
	}()

	return ch, nil
}

// Trigger fires a trigger, drains the event stream, and returns the final
// memory values of the transition's declared outputs.
func (s *Synth) Trigger(ctx context.Context, trigger string, params map[string]any) (map[string]any, error) {
	transition, ok := s.def.TransitionForTrigger(trigger)
	if !ok {
		return nil, &TransitionError{Trigger: trigger, State: s.machine.state}
	}

	events, err := s.StreamingTrigger(ctx, trigger, params)
	if err != nil {
		return nil, err
	}

	for ev := range events {
		if ev.Tag == EventFailed {
			slog.Error("output failed", "key", ev.Key, "message", ev.Message)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make(map[string]any, len(transition.Outputs))
	for _, out := range transition.Outputs {
		results[out.Key] = s.memory.GetDefault(out.Key, nil)
	}

	return results, nil
}

func (s *Synth) triggerAvailable(trigger string) bool {
	for _, t := range s.machine.availableTriggers(s.machine.state) {
		if t == trigger {
			return true
		}
	}

	return false
}

// machineUpdate builds the MACHINE_UPDATE event: the transitions available
// at the given state (so a UI can render the destination's interface), a
// memory snapshot, and the current state.
func (s *Synth) machineUpdate(transition *Transition, setActiveTrigger bool, state string) Event {
	if state == "" {
		state = transition.Dest
	}

	active := ""
	if setActiveTrigger {
		active = transition.Trigger
	}

	return Event{
		Tag:           EventMachineUpdate,
		Transitions:   s.Available(state),
		Memory:        s.memory.Snapshot(),
		State:         s.machine.state,
		ActiveTrigger: active,
	}
}

// executeForTrigger runs the transition for a trigger, following `after`
// chains until one terminates. Any failure event aborts the whole chain.
func (s *Synth) executeForTrigger(ctx context.Context, emit emitFn, initialTrigger string) {
	transition, ok := s.def.TransitionForTrigger(initialTrigger)
	if !ok {
		emit(Event{Tag: EventFailed, Message: fmt.Sprintf("no transition declared for trigger %q", initialTrigger)})
		return
	}

	for {
		if !emit(s.machineUpdate(transition, true, "")) {
			return
		}

		ppTasks := postProcessTasks(transition)

		for i := range transition.Outputs {
			out := &transition.Outputs[i]

			inputs := make(map[string]any, len(transition.Inputs))
			for _, in := range transition.Inputs {
				inputs[in.Key] = s.memory.GetDefault(in.Key, nil)
			}

			if out.Loop != nil {
				if !s.executeLoopedOutput(ctx, emit, transition, out, inputs, ppTasks) {
					return
				}
			} else {
				if aborted, alive := s.executeOutput(ctx, emit, transition, out, inputs, ppTasks, false); aborted || !alive {
					return
				}
			}

			// Flush post-processing once the output has fully completed.
			for _, pp := range ppTasks {
				for _, ev := range s.postProcess(pp.key, pp.out, "") {
					if !emit(ev) {
						return
					}
				}
			}
		}

		if err := s.machine.fire(transition.Trigger); err != nil {
			emit(Event{Tag: EventFailed, Message: err.Error()})
			return
		}

		if !emit(Event{Tag: EventTransitionCompleted, Key: transition.Trigger}) {
			return
		}

		after := transition.After
		if after == "" {
			break
		}

		next, ok := s.resolveAfter(after)
		if !ok {
			break
		}
		transition = next
	}

	emit(s.machineUpdate(transition, false, ""))
}

// resolveAfter maps an `after` value to the next transition, indirecting
// through memory for `memory_key:<k>` values.
func (s *Synth) resolveAfter(after string) (*Transition, bool) {
	trigger := after
	if strings.HasPrefix(after, memoryKeyPrefix) {
		key := strings.TrimPrefix(after, memoryKeyPrefix)
		v, ok := s.memory.Get(key)
		if !ok || v == nil {
			slog.Error("after redirection memory key not found", "key", key)
			return nil, false
		}
		trigger, ok = v.(string)
		if !ok {
			slog.Error("after redirection memory key is not a trigger name", "key", key)
			return nil, false
		}
	}

	next, ok := s.def.TransitionForTrigger(trigger)
	if !ok {
		slog.Error("after trigger not declared", "trigger", trigger)
		return nil, false
	}

	return next, true
}

// executeLoopedOutput expands the loop matrix and runs the output once per
// item in append mode. Returns false when the transition must stop.
func (s *Synth) executeLoopedOutput(ctx context.Context, emit emitFn, transition *Transition, out *Output, inputs map[string]any, ppTasks []ppTask) bool {
	s.memory.Set(out.Key, []any{})

	for _, matrix := range out.Loop.Matrix {
		for loopVar, binding := range matrix {
			items, err := s.resolveLoopItems(binding)
			if err != nil {
				emit(Event{Tag: EventLoopFailed, Key: out.Key, Message: err.Error()})
				return false
			}

			for _, item := range items {
				loopInputs := make(map[string]any, len(inputs)+1)
				for k, v := range inputs {
					loopInputs[k] = v
				}
				loopInputs[loopVar] = item

				if aborted, alive := s.executeOutput(ctx, emit, transition, out, loopInputs, ppTasks, true); aborted || !alive {
					return false
				}
			}
		}
	}

	return true
}

// resolveLoopItems turns a matrix binding into a concrete item list: a
// literal list is used as-is, a string is looked up in memory (absent keys
// resolve to the empty list).
func (s *Synth) resolveLoopItems(binding any) ([]any, error) {
	switch v := binding.(type) {
	case []any:
		return v, nil
	case string:
		stored := s.memory.GetDefault(v, []any{})
		items, ok := stored.([]any)
		if !ok {
			return nil, fmt.Errorf("loop memory key %q holds %T, not a list", v, stored)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("loop binding must be a memory key or a list, got %T", binding)
	}
}

// ppTask pairs an output key with its definition for streaming
// post-processing.
type ppTask struct {
	key string
	out *Output
}

// postProcessTasks collects the outputs of a transition that declare a
// post-process transform.
func postProcessTasks(transition *Transition) []ppTask {
	var tasks []ppTask
	for i := range transition.Outputs {
		if transition.Outputs[i].JQ != "" {
			tasks = append(tasks, ppTask{key: transition.Outputs[i].Key, out: &transition.Outputs[i]})
		}
	}

	return tasks
}

// executeOutput runs one output through the dispatcher, feeding every
// streamed chunk to the transition's post-process tasks. It reports whether
// a failure event aborted the transition and whether the consumer is still
// reading.
func (s *Synth) executeOutput(ctx context.Context, emit emitFn, transition *Transition, out *Output, inputs map[string]any, ppTasks []ppTask, loop bool) (aborted, alive bool) {
	slog.Info("starting output", "trigger", transition.Trigger, "key", out.Key)

	failed := false
	wrapped := func(ev Event) bool {
		if ev.Tag == EventChunk {
			for _, pp := range ppTasks {
				for _, ppEv := range s.postProcess(pp.key, pp.out, ev.Token) {
					if !emit(ppEv) {
						return false
					}
				}
			}
		}
		if ev.Tag.IsFailure() {
			failed = true
		}

		return emit(ev)
	}

	alive = s.runTask(ctx, wrapped, transition, out, inputs, loop)

	slog.Info("complete output", "trigger", transition.Trigger, "key", out.Key)

	return failed, alive
}
