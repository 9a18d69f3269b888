package synth

import "testing"

func TestParsePartialJSON(t *testing.T) {
	tests := []struct {
		name   string
		buffer string
		wantOK bool
		check  func(map[string]any) bool
	}{
		{
			name:   "complete object",
			buffer: `{"a": 1}`,
			wantOK: true,
			check:  func(m map[string]any) bool { return m["a"] == float64(1) },
		},
		{
			name:   "truncated object",
			buffer: `{"a": {"b": "c"`,
			wantOK: true,
			check: func(m map[string]any) bool {
				inner, ok := m["a"].(map[string]any)
				return ok && inner["b"] == "c"
			},
		},
		{
			name:   "truncated array value",
			buffer: `{"items": [1, 2`,
			wantOK: true,
			check: func(m map[string]any) bool {
				items, ok := m["items"].([]any)
				return ok && len(items) == 2
			},
		},
		{
			name:   "not an object",
			buffer: `[1, 2, 3]`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parsePartialJSON(tt.buffer)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v (got %v)", ok, tt.wantOK, got)
			}
			if ok && tt.check != nil && !tt.check(got) {
				t.Fatalf("parsed = %v", got)
			}
		})
	}
}

func TestRunJQFirstVsAll(t *testing.T) {
	data := map[string]any{"items": []any{"a", "b"}}

	// Object schema: first match only.
	got := runJQ(".items[0]", data, map[string]any{"type": "object"})
	if got != "a" {
		t.Fatalf("first = %v", got)
	}

	// Array schema: all matches.
	got = runJQ(".items[]", data, map[string]any{"type": "array"})
	list, ok := got.([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("all = %v", got)
	}
}

func TestRunJQInvalidExpression(t *testing.T) {
	if got := runJQ("][", map[string]any{}, nil); got != nil {
		t.Fatalf("invalid jq returned %v", got)
	}
}

func TestPostProcessBuffersAndCommits(t *testing.T) {
	s := mustSynth(t, &Definition{
		InitialState: "A",
		States:       []State{{Name: "A"}, {Name: "B"}},
		Transitions:  []Transition{{Trigger: "go", Source: "A", Dest: "B"}},
	})

	out := &Output{Key: "answer", JQ: ".answer", Schema: map[string]any{"type": "string"}}

	// First half: no parsable answer yet.
	events := s.postProcess("answer", out, `{"answer": `)
	if len(events) != 0 {
		t.Fatalf("premature commit: %v", events)
	}

	// Second half completes the value.
	events = s.postProcess("answer", out, `"42"}`)
	if len(events) != 1 || events[0].Tag != EventJQ || events[0].Value != "42" {
		t.Fatalf("events = %v", events)
	}

	if v, _ := s.memory.Get("answer"); v != "42" {
		t.Fatalf("memory = %v", v)
	}
}
