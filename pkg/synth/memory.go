package synth

import (
	"encoding/json"
	"fmt"
)

// Memory is the insertion-ordered key→value store that carries pipeline
// state between transitions. It is owned exclusively by a single Synth
// instance; only the output dispatcher writes to it.
type Memory struct {
	keys   []string
	values map[string]any
}

// NewMemory creates an empty memory.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]any)}
}

// Get returns the value for key and whether it is present.
func (m *Memory) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// GetDefault returns the value for key, or def when absent.
func (m *Memory) GetDefault(key string, def any) any {
	if v, ok := m.values[key]; ok {
		return v
	}

	return def
}

// Set stores a value, keeping first-insertion key order.
func (m *Memory) Set(key string, value any) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Append appends value to the list stored at key, creating the list when
// the key is absent. It fails when the current value is not a list.
func (m *Memory) Append(key string, value any) error {
	current, ok := m.values[key]
	if !ok || current == nil {
		m.Set(key, []any{value})
		return nil
	}

	list, ok := current.([]any)
	if !ok {
		return fmt.Errorf("memory key %q holds %T, not a list", key, current)
	}

	m.values[key] = append(list, value)

	return nil
}

// Delete removes a key and its insertion-order slot.
func (m *Memory) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}

	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Merge overlays the given mapping onto memory; the overlay wins on
// conflicting keys.
func (m *Memory) Merge(overlay map[string]any) {
	for k, v := range overlay {
		m.Set(k, v)
	}
}

// Keys returns the keys in insertion order.
func (m *Memory) Keys() []string {
	keys := make([]string, len(m.keys))
	copy(keys, m.keys)
	return keys
}

// Snapshot returns a shallow copy of the mapping. Callers that hold the
// snapshot across an output boundary must not mutate nested values.
func (m *Memory) Snapshot() map[string]any {
	out := make(map[string]any, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}

	return out
}

// deepCopy clones a JSON-compatible value by round-tripping it through
// encoding/json. Non-encodable values come back as nil.
func deepCopy(v any) any {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}

	return out
}
