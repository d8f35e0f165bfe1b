// Package strategy implements the Strategy Executor (C7) and Strategy
// Factory (C8): the three concrete ways of running a single loop iteration
// against a Model Provider, and the process-wide selection between them.
package strategy

import (
	"context"

	"ragorchestrator/internal/domain"
	"ragorchestrator/internal/llm"
)

// StreamingMode controls which StrategyEvents an iteration emits.
type StreamingMode string

const (
	Progressive  StreamingMode = "PROGRESSIVE"
	FinalOnly    StreamingMode = "FINAL_ONLY"
	ReasoningOnly StreamingMode = "REASONING_ONLY"
)

// IterationContext is the per-iteration context an Executor is given.
type IterationContext struct {
	ConversationID string
	Iteration      int
	MaxIterations  int
	StreamingMode  StreamingMode
}

// Executor runs one loop iteration (C7). Implementations are stateless and
// share no mutable state with each other.
type Executor interface {
	// ExecuteIteration drives one call against the provider and returns a
	// channel of StrategyEvents, closed once IterationComplete has been sent.
	// Per §4.5 rule 1, IterationComplete is emitted at most once and last.
	ExecuteIteration(ctx context.Context, messages []domain.Message, tools []llm.ToolSchema, ic IterationContext) <-chan domain.StrategyEvent
}

// Name identifies an Executor for logging/diagnostics.
type Name string

const (
	NameChat     Name = "chat"
	NameInstruct Name = "instruct"
	NameThinking Name = "thinking"
)
