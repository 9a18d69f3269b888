package synth

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
)

// Safety gate stages.
const (
	safetyStagePrompt   = "PROMPT"
	safetyStageResponse = "RESPONSE"
)

// runPrompt drives the provider token stream for one prompt output:
// safety-gate the prompt, stream and account tokens, safety-gate the
// response, then validate against the output schema with the retry budget.
// On terminal validation failure the machine rewinds to the transition's
// source and the output is discarded.
func (s *Synth) runPrompt(ctx context.Context, emit emitFn, transition *Transition, out *Output, inputs map[string]any, loop bool) bool {
	cfg, err := s.promptSetup(out, inputs, transition.ModelConfig)
	if err != nil {
		slog.Error("prompt setup failed", "output", out.Key, "error", err)
		emit(Event{Tag: EventFailed, Key: out.Key, Message: err.Error()})
		return false
	}

	if ok, alive := s.safetyGate(ctx, emit, out.Key, safetyStagePrompt, cfg.SystemPrompt+cfg.UserPrompt); !ok || !alive {
		return alive
	}

	// Streaming post-processing may speculatively commit to the output key;
	// keep the prior value so a terminal validation failure leaves memory
	// untouched.
	prior, priorExists := s.memory.Get(out.Key)

	retries := s.retries

	for {
		if !emit(Event{Tag: EventModelConfig, Key: out.Key, Value: map[string]any{"executor": cfg.ModelConfig.Executor}}) {
			return false
		}

		slog.Debug("execution started", "executor", cfg.ModelConfig.Executor, "output", out.Key)

		stream, err := cfg.Provider.Generate(ctx, GenerateRequest{
			UserPrompt:   cfg.UserPrompt,
			SystemPrompt: cfg.SystemPrompt,
			Schema:       out.Schema,
			Config:       cfg.ModelConfig,
			UserID:       s.user,
		})
		if err != nil {
			emit(Event{Tag: EventFailed, Key: out.Key, Message: err.Error()})
			return false
		}

		var predicted strings.Builder
		tokens := map[TokenType]int{TokenInput: 0, TokenOutput: 0}

		for chunk := range stream {
			if chunk.Err != nil {
				emit(Event{Tag: EventFailed, Key: out.Key, Message: chunk.Err.Error()})
				return false
			}

			predicted.WriteString(chunk.Token)

			stage := chunk.Type
			if stage == "" {
				stage = TokenOutput
			}

			chunkCost := s.cost.CalculateChunkCost(ctx, stage, cfg, chunk.Tokens)
			tokens[stage] += chunk.Tokens

			if !emit(Event{
				Tag:        EventChunk,
				Key:        out.Key,
				Token:      chunk.Token,
				ChunkCost:  chunkCost,
				TokensUsed: chunk.Tokens,
				Stage:      stage,
				LLMName:    cfg.ModelConfig.LLMName,
			}) {
				return false
			}
		}

		if err := ctx.Err(); err != nil {
			return false
		}

		s.cost.RecordPromptTokenUsage(ctx, s.user, s.sessionID, cfg, tokens[TokenInput], tokens[TokenOutput])

		slog.Debug("execution complete", "output", out.Key)

		if ok, alive := s.safetyGate(ctx, emit, out.Key, safetyStageResponse, predicted.String()); !ok || !alive {
			return alive
		}

		result, err := s.validatePrediction(cfg, out.Schema, predicted.String())
		if err != nil {
			slog.Error("failed validation", "output", out.Key, "error", err)

			if retries > 0 {
				slog.Warn("retrying", "output", out.Key, "retries_left", retries)
				retries--
				continue
			}

			s.clearBuffer(out.Key)
			if priorExists {
				s.memory.Set(out.Key, prior)
			} else {
				s.memory.Delete(out.Key)
			}
			if !emit(Event{Tag: EventOutputValidationFailed, Key: out.Key}) {
				return false
			}
			s.machine.forceState(transition.Source)

			return true
		}

		if !emit(Event{Tag: EventOutputValidationSucceeded, Key: out.Key}) {
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

		s.clearBuffer(out.Key)

		return emit(Event{Tag: EventOutputCompleted, Key: out.Key})
	}
}

// validatePrediction turns the accumulated stream text into the committed
// value: raw text for string schemas, otherwise a strict JSON parse,
// provider post-processing, and draft-04 validation.
func (s *Synth) validatePrediction(cfg *SynthConfig, schema map[string]any, predicted string) (any, error) {
	if schemaIsString(schema) {
		return predicted, nil
	}

	var parsed any
	if err := json.Unmarshal([]byte(strings.TrimSpace(predicted)), &parsed); err != nil {
		return nil, err
	}

	result := cfg.Provider.PostProcess(parsed)

	if err := validateSchema(result, schema); err != nil {
		return nil, err
	}

	return result, nil
}

// safetyGate moderates text when a checker is configured. Checker errors
// degrade open (logged, not flagged); a flagged verdict emits
// SAFETY_FAILURE and aborts the transition.
func (s *Synth) safetyGate(ctx context.Context, emit emitFn, outputKey, stage, text string) (ok, alive bool) {
	if s.safety == nil {
		return true, true
	}

	resp, err := s.safety.Check(ctx, text)
	if err != nil {
		slog.Error("safety check unavailable, failing open", "stage", stage, "error", err)
		return true, true
	}

	if !emit(Event{Tag: EventSafety, Key: outputKey, SafetyStage: stage, Value: resp}) {
		return false, false
	}

	if resp.Flagged() {
		return false, emit(Event{Tag: EventSafetyFailure, Key: outputKey, SafetyStage: stage, Value: resp})
	}

	return true, true
}
