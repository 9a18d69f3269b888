package synth

import "fmt"

// TransitionError is returned when a trigger is fired that is not available
// at the machine's current state.
type TransitionError struct {
	Trigger string
	State   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("no transition: %s exists at state: %s", e.Trigger, e.State)
}

// machineTransition is one declared edge of the state machine.
type machineTransition struct {
	trigger string
	source  string
	dest    string
}

// machine is a minimal finite-state machine: a declared transitions table,
// no auto-transitions, trigger availability by state, and a forced state
// setter used for the validation-failure rewind.
type machine struct {
	states      map[string]struct{}
	transitions []machineTransition
	state       string
}

func newMachine(initial string, states []string, transitions []machineTransition) *machine {
	set := make(map[string]struct{}, len(states))
	for _, s := range states {
		set[s] = struct{}{}
	}

	return &machine{
		states:      set,
		transitions: transitions,
		state:       initial,
	}
}

// availableTriggers returns all triggers whose source is the given state,
// in declaration order.
func (m *machine) availableTriggers(state string) []string {
	var triggers []string
	for _, t := range m.transitions {
		if t.source == state {
			triggers = append(triggers, t.trigger)
		}
	}

	return triggers
}

// fire moves the machine along the first declared transition matching the
// trigger and the current state.
func (m *machine) fire(trigger string) error {
	for _, t := range m.transitions {
		if t.trigger == trigger && t.source == m.state {
			m.state = t.dest
			return nil
		}
	}

	return &TransitionError{Trigger: trigger, State: m.state}
}

// forceState sets the state directly. Used to rewind to a transition's
// source after a terminal validation failure.
func (m *machine) forceState(state string) {
	m.state = state
}
