package synth

import "testing"

func testMachine() *machine {
	return newMachine("A", []string{"A", "B", "C"}, []machineTransition{
		{trigger: "a", source: "A", dest: "B"},
		{trigger: "b", source: "B", dest: "C"},
		{trigger: "shared", source: "A", dest: "C"},
		{trigger: "shared", source: "B", dest: "A"},
	})
}

func TestMachineAvailableTriggers(t *testing.T) {
	m := testMachine()

	got := m.availableTriggers("A")
	want := []string{"a", "shared"}
	if len(got) != len(want) {
		t.Fatalf("triggers at A = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("triggers at A = %v, want %v", got, want)
		}
	}

	if got := m.availableTriggers("C"); len(got) != 0 {
		t.Fatalf("triggers at C = %v, want none", got)
	}
}

func TestMachineFire(t *testing.T) {
	m := testMachine()

	if err := m.fire("a"); err != nil {
		t.Fatalf("fire a: %v", err)
	}
	if m.state != "B" {
		t.Fatalf("state = %q, want B", m.state)
	}

	// "shared" resolves by current state: B → A.
	if err := m.fire("shared"); err != nil {
		t.Fatalf("fire shared: %v", err)
	}
	if m.state != "A" {
		t.Fatalf("state = %q, want A", m.state)
	}
}

func TestMachineFireUnavailable(t *testing.T) {
	m := testMachine()

	err := m.fire("b")
	if err == nil {
		t.Fatal("expected error firing b from A")
	}

	terr, ok := err.(*TransitionError)
	if !ok {
		t.Fatalf("error type %T", err)
	}
	if terr.Trigger != "b" || terr.State != "A" {
		t.Fatalf("error = %v", terr)
	}
	if m.state != "A" {
		t.Fatalf("failed fire moved state to %q", m.state)
	}
}

func TestMachineForceState(t *testing.T) {
	m := testMachine()

	m.forceState("C")
	if m.state != "C" {
		t.Fatalf("state = %q, want C", m.state)
	}
}
