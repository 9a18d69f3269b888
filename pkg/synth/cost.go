package synth

import "context"

// CostRecorder receives token accounting from the streaming executor and
// the tool runner. Implementations can meter, bill, or rate-limit; the
// default BaseCost just passes the counts through.
type CostRecorder interface {
	// CalculateChunkCost returns the cost charged for one streamed chunk.
	CalculateChunkCost(ctx context.Context, stage TokenType, cfg *SynthConfig, numTokens int) int

	// RecordPromptTokenUsage is called once per provider invocation with the
	// accumulated input and output token totals.
	RecordPromptTokenUsage(ctx context.Context, user, sessionID string, cfg *SynthConfig, inputTokens, outputTokens int) int

	// RecordToolTokenUsage is called once per tool execution.
	RecordToolTokenUsage(ctx context.Context, user, sessionID string, cfg *ToolConfig, numTokens float64) float64
}

// BaseCost is the no-op CostRecorder: chunk cost equals the raw token
// count and recorded totals are returned unchanged.
type BaseCost struct{}

func (BaseCost) CalculateChunkCost(_ context.Context, _ TokenType, _ *SynthConfig, numTokens int) int {
	return numTokens
}

func (BaseCost) RecordPromptTokenUsage(_ context.Context, _, _ string, _ *SynthConfig, inputTokens, outputTokens int) int {
	return inputTokens + outputTokens
}

func (BaseCost) RecordToolTokenUsage(_ context.Context, _, _ string, _ *ToolConfig, numTokens float64) float64 {
	return numTokens
}
