package synth

import (
	"encoding/json"
	"log/slog"

	"github.com/itchyny/gojq"
	"github.com/kaptinlin/jsonrepair"
)

// postProcess advances the per-output streaming buffer with one chunk and
// applies the output's jq transform (if any) to the speculative result:
// memory overlaid with the tolerant parse of the buffer so far. A non-empty
// jq result is committed to memory and surfaced as a JQ event.
func (s *Synth) postProcess(outputKey string, out *Output, chunk string) []Event {
	newBuffer := s.buffers[outputKey] + chunk

	result := s.memory.Snapshot()
	if newBuffer != s.buffers[outputKey] {
		s.buffers[outputKey] = newBuffer
		if partial, ok := parsePartialJSON(newBuffer); ok {
			for k, v := range partial {
				result[k] = v
			}
		}
	}

	if out.JQ == "" {
		return nil
	}

	jqResult := runJQ(out.JQ, result, out.Schema)
	if jqResult == nil {
		return nil
	}

	s.memory.Set(outputKey, jqResult)

	return []Event{{Tag: EventJQ, Key: outputKey, Value: jqResult}}
}

// clearBuffer drops the streaming buffer for an output once it completes
// or terminally fails.
func (s *Synth) clearBuffer(outputKey string) {
	delete(s.buffers, outputKey)
}

// parsePartialJSON closes unbalanced braces/brackets in a streamed JSON
// prefix and decodes it. Only object results are usable as a memory
// overlay, so anything else reports no result.
func parsePartialJSON(buffer string) (map[string]any, bool) {
	repaired, err := jsonrepair.JSONRepair(buffer)
	if err != nil {
		return nil, false
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(repaired), &parsed); err != nil {
		return nil, false
	}

	return parsed, true
}

// runJQ compiles and runs a jq expression over data. Schemas of type
// object or string yield the first match; anything else yields all
// matches. Errors are logged and produce no result.
func runJQ(expr string, data map[string]any, schema map[string]any) any {
	query, err := gojq.Parse(expr)
	if err != nil {
		slog.Warn("jq parse error in post-processing", "error", err)
		return nil
	}

	first := false
	if t, _ := schema["type"].(string); t == "object" || t == "string" {
		first = true
	}

	iter := query.Run(any(data))

	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			slog.Warn("jq error in post-processing", "error", err)
			return nil
		}
		if first {
			return v
		}
		results = append(results, v)
	}

	if len(results) == 0 {
		return nil
	}

	return results
}
