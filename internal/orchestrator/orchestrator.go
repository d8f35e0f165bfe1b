// Package orchestrator implements the Orchestrator (C9): the agentic loop
// that turns one user message into a persisted final assistant message and
// an ordered stream of domain.StreamEvents.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ragorchestrator/internal/config"
	ctxmgr "ragorchestrator/internal/context"
	"ragorchestrator/internal/domain"
	"ragorchestrator/internal/llm"
	"ragorchestrator/internal/observability"
	"ragorchestrator/internal/sse"
	"ragorchestrator/internal/strategy"
	"ragorchestrator/internal/tools"
	"ragorchestrator/internal/tools/finalize"
)

// ErrTurnInProgress is returned when a second turn is requested on a
// conversation whose first turn has not finished (§5: at-most-one
// concurrent turn per conversation).
var ErrTurnInProgress = errors.New("a turn is already in progress for this conversation")

const ragToolName = "rag_search"

const systemPrompt = `You are an agentic assistant with access to tools. Use the tools available to you to gather whatever information you need before answering.

When you have everything you need to give the user a complete, accurate final answer, call the "finalize_answer" tool with the gathered context and the user's original question instead of answering directly. Do not call any tool after finalize_answer.`

// Orchestrator drives the agentic loop (C9).
type Orchestrator struct {
	ctxMgr   *ctxmgr.Manager
	registry tools.Registry
	factory  *strategy.Factory
	lock     TurnLock
	loop     config.LoopConfig

	// turnAuditor and eventArchiver are the optional Kafka/ClickHouse sinks
	// (§4.12 DOMAIN STACK). Both are nil-safe: a nil sink is exactly what
	// "not configured" looks like, so the loop runs unchanged without them.
	turnAuditor   *observability.TurnAuditor
	eventArchiver *observability.EventArchiver
}

// New constructs an Orchestrator. turnAuditor and eventArchiver may be nil.
func New(ctxMgr *ctxmgr.Manager, registry tools.Registry, factory *strategy.Factory, lock TurnLock, loop config.LoopConfig, turnAuditor *observability.TurnAuditor, eventArchiver *observability.EventArchiver) *Orchestrator {
	return &Orchestrator{ctxMgr: ctxMgr, registry: registry, factory: factory, lock: lock, loop: loop, turnAuditor: turnAuditor, eventArchiver: eventArchiver}
}

// SyncResult is the blocking-call result shape (FINAL_ONLY streaming mode,
// progressive events suppressed).
type SyncResult struct {
	Content        string
	IterationsUsed int
	TokensUsed     int
	ConversationID string
}

// eventSink receives every domain.StreamEvent the turn produces, in order.
type eventSink interface {
	send(ev domain.StreamEvent)
}

// ProcessMessageStream runs the full per-turn algorithm (§4.7), writing every
// StreamEvent to w as it is produced. The terminal event is always either
// Completed or Error.
func (o *Orchestrator) ProcessMessageStream(ctx context.Context, conversationID, userMessage string, w *sse.Writer) {
	o.runTurn(ctx, conversationID, userMessage, strategy.Progressive, &sseSink{w: w, conversationID: conversationID})
}

// sseSink adapts an sse.Writer (which needs the conversation id on every
// call) to the internal eventSink shape.
type sseSink struct {
	w              *sse.Writer
	conversationID string
}

func (s *sseSink) send(ev domain.StreamEvent) {
	_ = s.w.Send(ev, s.conversationID)
}

// ProcessMessageSync runs the same loop in FINAL_ONLY mode and returns just
// the terminal result.
func (o *Orchestrator) ProcessMessageSync(ctx context.Context, conversationID, userMessage string) (SyncResult, error) {
	c := &collectSink{conversationID: conversationID}
	o.runTurn(ctx, conversationID, userMessage, strategy.FinalOnly, c)
	if c.err != "" {
		return SyncResult{}, errors.New(c.err)
	}
	return SyncResult{Content: c.content, IterationsUsed: c.iterationsUsed, TokensUsed: c.tokensUsed, ConversationID: conversationID}, nil
}

type collectSink struct {
	conversationID string
	content        string
	iterationsUsed int
	tokensUsed     int
	err            string
}

func (c *collectSink) send(ev domain.StreamEvent) {
	switch e := ev.(type) {
	case domain.ResponseChunkEvent:
		if e.IsFinalAnswer {
			c.content = e.Content
		}
	case domain.CompletedEvent:
		c.iterationsUsed = e.IterationsUsed
		c.tokensUsed = e.TokensUsed
	case domain.ErrorEvent:
		c.err = e.Error
	}
}

// archivingSink forwards every event to the real sink unchanged and, if an
// EventArchiver is configured, also enqueues it for ClickHouse archival
// (§4.12). Archival never affects what the caller sees.
type archivingSink struct {
	inner          eventSink
	archiver       *observability.EventArchiver
	conversationID string
}

func (s *archivingSink) send(ev domain.StreamEvent) {
	s.archiver.Archive(ev, s.conversationID)
	s.inner.send(ev)
}

func (o *Orchestrator) runTurn(ctx context.Context, conversationID, userMessage string, mode strategy.StreamingMode, sink eventSink) {
	if o.eventArchiver != nil {
		sink = &archivingSink{inner: sink, archiver: o.eventArchiver, conversationID: conversationID}
	}

	acquired, err := o.lock.TryAcquire(ctx, conversationID)
	if err != nil {
		sink.send(domain.ErrorEvent{Error: "lock error", Details: err.Error()})
		return
	}
	if !acquired {
		sink.send(domain.ErrorEvent{Error: ErrTurnInProgress.Error()})
		return
	}
	defer o.lock.Release(ctx, conversationID)

	if err := o.turn(ctx, conversationID, userMessage, mode, sink); err != nil {
		sink.send(domain.ErrorEvent{Error: "turn failed", Details: err.Error()})
	}
}

func (o *Orchestrator) turn(ctx context.Context, conversationID, userMessage string, mode strategy.StreamingMode, sink eventSink) error {
	progressive := mode == strategy.Progressive

	// 1. Load conversation, append the user message.
	sink.send(domain.StatusUpdateEvent{Status: "Loading conversation..."})
	cc, err := o.ctxMgr.AddMessage(ctx, conversationID, domain.Message{Role: domain.RoleUser, Content: userMessage})
	if err != nil {
		return fmt.Errorf("append user message: %w", err)
	}

	// 2. Initial knowledge search.
	sink.send(domain.StatusUpdateEvent{Status: "Performing initial knowledge search..."})
	ragContext := o.initialRAGSearch(ctx, userMessage)

	// 3. Working message list (in-memory only for this turn).
	working := make([]domain.Message, 0, len(cc.Messages)+2)
	working = append(working, domain.Message{Role: domain.RoleSystem, Content: systemPrompt})
	working = append(working, cc.Messages...)
	if ragContext != "" {
		working = append(working, domain.Message{
			Role:    domain.RoleSystem,
			Content: "Pre-Retrieved Knowledge Base Context:\n\n" + ragContext,
		})
	}
	o.warnIfNearContextLimit(working, sink)

	// 4. Loop state.
	iteration := 0
	totalTokens := 0
	continueLoop := true
	finalContent := ""
	var collectedToolCalls []domain.ToolCallRecord
	var collectedReasoning strings.Builder
	iterationReasoning := map[int]string{}
	maxIterations := o.loop.MaxIterations

	executor := o.factory.Active()
	toolSchemas := o.registry.Schemas()

	for continueLoop && iteration < maxIterations {
		iteration++
		sink.send(domain.StatusUpdateEvent{Status: fmt.Sprintf("Iteration %d of %d", iteration, maxIterations), Iteration: iteration})

		ic := strategy.IterationContext{ConversationID: conversationID, Iteration: iteration, MaxIterations: maxIterations, StreamingMode: mode}
		events := executor.ExecuteIteration(ctx, working, toolSchemas, ic)

		var pendingToolCalls []domain.ToolCall

		for ev := range events {
			switch e := ev.(type) {
			case domain.ReasoningChunk:
				collectedReasoning.WriteString(e.Content)
				iterationReasoning[iteration] += e.Content
				if o.loop.StreamingShowReasoningTrace && progressive {
					sink.send(domain.ReasoningTraceEvent{Content: e.Content, Stage: "PLANNING", Iteration: iteration})
				}

			case domain.ContentChunk:
				finalContent += e.Content
				if progressive {
					sink.send(domain.ResponseChunkEvent{Content: e.Content, Iteration: iteration, IsFinalAnswer: false})
				}

			case domain.ToolCallDetected:
				pendingToolCalls = append(pendingToolCalls, e.ToolCall)

			case domain.ToolCallsComplete:
				pendingToolCalls = append(pendingToolCalls, e.ToolCalls...)

			case domain.FinalResponse:
				finalContent = e.Message.Content
				totalTokens += e.PromptTok + e.CompleteTok
				meta := o.buildMetadata(collectedToolCalls, collectedReasoning.String(), iterationReasoning, iteration, totalTokens)
				persisted := domain.Message{Role: domain.RoleAssistant, Content: finalContent}
				cc, err := o.ctxMgr.AddMessageWithMetadata(ctx, conversationID, persisted, meta)
				if err != nil {
					return fmt.Errorf("persist final response: %w", err)
				}
				o.turnAuditor.Publish(conversationID, cc.Messages[len(cc.Messages)-1])
				sink.send(domain.ResponseChunkEvent{Content: applyFinalizer(finalContent, o.loop.FinalizerFormat), Iteration: iteration, IsFinalAnswer: true})

			case domain.StrategyStatusUpdate:
				sink.send(domain.StatusUpdateEvent{Status: e.Status, Iteration: iteration})

			case domain.IterationComplete:
				totalTokens += e.TokensUsed
				continueLoop = continueLoop && e.ShouldContinue
			}
		}

		// The assistant turn that requested these tool calls must precede
		// their TOOL-role results in the working list.
		if len(pendingToolCalls) > 0 {
			working = append(working, domain.Message{Role: domain.RoleAssistant, ToolCalls: pendingToolCalls})
			for _, tc := range pendingToolCalls {
				rec, stop := o.dispatchToolCall(ctx, conversationID, tc, iteration, &working, sink)
				collectedToolCalls = append(collectedToolCalls, rec)
				if stop {
					continueLoop = false
				}
			}
		}
	}

	// 6-7. Counters already reflect reality: the context manager updates
	// Conversation.TotalTokens on every persisted message.
	sink.send(domain.CompletedEvent{IterationsUsed: iteration, TokensUsed: totalTokens})
	return nil
}

// warnIfNearContextLimit estimates the working message list's token count
// against the active model's context window (internal/llm.ContextSize) and
// surfaces a status update once usage crosses 80% of it, so a caller can
// warn before a provider call fails on an oversized prompt.
func (o *Orchestrator) warnIfNearContextLimit(working []domain.Message, sink eventSink) {
	model := o.factory.ActiveModel()
	window, known := llm.ContextSize(model)
	if !known {
		return
	}
	used := 0
	for _, m := range working {
		used += ctxmgr.EstimateTokens(m.Content)
	}
	if used*10 >= window*8 {
		sink.send(domain.StatusUpdateEvent{
			Status: fmt.Sprintf("Approaching context window for %s (~%d/%d tokens)", model, used, window),
		})
	}
}

// initialRAGSearch calls the RAG tool once with the raw user text (§4.7 step
// 2). Failures are swallowed into an empty context; the RAG tool's own
// success=false path already degrades gracefully.
func (o *Orchestrator) initialRAGSearch(ctx context.Context, userMessage string) string {
	args, _ := json.Marshal(map[string]any{"query": userMessage})
	payload, err := o.registry.Dispatch(ctx, ragToolName, args)
	if err != nil {
		return ""
	}
	result, success := parseToolPayload(payload)
	if !success {
		return ""
	}
	return result
}

// dispatchToolCall implements §4.8: emits ToolCallStart, intercepts
// finalize_answer, otherwise dispatches through the registry and emits
// ToolCallResult. Returns the ToolCallRecord to aggregate and whether the
// loop must stop (finalize was invoked).
func (o *Orchestrator) dispatchToolCall(ctx context.Context, conversationID string, tc domain.ToolCall, iteration int, working *[]domain.Message, sink eventSink) (domain.ToolCallRecord, bool) {
	sink.send(domain.ToolCallStartEvent{
		ToolName:   tc.Function.Name,
		ToolCallID: tc.ID,
		Arguments:  json.RawMessage(tc.Function.ArgumentsRaw),
		Iteration:  iteration,
	})

	if tc.Function.Name == finalize.ToolName {
		rec := o.runFinalize(ctx, conversationID, tc, iteration, sink)
		return rec, true
	}

	payload, _ := o.registry.Dispatch(ctx, tc.Function.Name, json.RawMessage(tc.Function.ArgumentsRaw))
	result, success := parseToolPayload(payload)

	if err := o.ctxMgr.IncrementToolCallsCount(ctx, conversationID); err != nil {
		sink.send(domain.ErrorEvent{Error: "tool call counter update failed", Details: err.Error()})
	}

	sink.send(domain.ToolCallResultEvent{ToolName: tc.Function.Name, ToolCallID: tc.ID, Result: result, Success: success, Iteration: iteration})
	*working = append(*working, domain.Message{Role: domain.RoleTool, Content: result, ToolCallID: tc.ID})

	return domain.ToolCallRecord{
		ID:        tc.ID,
		Name:      tc.Function.Name,
		Arguments: json.RawMessage(tc.Function.ArgumentsRaw),
		Result:    domain.ToolResult{Type: tc.Function.Name, Summary: summarizeResult(tc.Function.Name, result), Success: success},
		Success:   success,
		Iteration: iteration,
	}, false
}

// runFinalize is the finalize subroutine (§4.8).
func (o *Orchestrator) runFinalize(ctx context.Context, conversationID string, tc domain.ToolCall, iteration int, sink eventSink) domain.ToolCallRecord {
	args, err := finalize.ParseArgs(json.RawMessage(tc.Function.ArgumentsRaw))
	if err != nil {
		sink.send(domain.ToolCallResultEvent{ToolName: finalize.ToolName, ToolCallID: tc.ID, Result: "invalid arguments", Success: false, Iteration: iteration})
		return domain.ToolCallRecord{ID: tc.ID, Name: finalize.ToolName, Result: domain.ToolResult{Type: finalize.ToolName, Summary: "invalid arguments", Success: false}, Iteration: iteration}
	}

	systemMsg := domain.Message{Role: domain.RoleSystem, Content: finalizeSystemPrompt(args.AnswerStyle)}
	userMsg := domain.Message{Role: domain.RoleUser, Content: fmt.Sprintf("Question: %s\n\nGathered context:\n%s", args.UserQuestion, args.Context)}

	events := o.factory.Instruct().ExecuteIteration(ctx, []domain.Message{systemMsg, userMsg}, nil, strategy.IterationContext{
		Iteration: iteration, MaxIterations: o.loop.MaxIterations, StreamingMode: strategy.Progressive,
	})

	var full strings.Builder
	tokensUsed := 0
	for ev := range events {
		switch e := ev.(type) {
		case domain.ContentChunk:
			full.WriteString(e.Content)
			sink.send(domain.ResponseChunkEvent{Content: e.Content, Iteration: iteration, IsFinalAnswer: true})
		case domain.FinalResponse:
			tokensUsed = e.PromptTok + e.CompleteTok
		case domain.IterationComplete:
			if tokensUsed == 0 {
				tokensUsed = e.TokensUsed
			}
		}
	}

	sink.send(domain.ToolCallResultEvent{ToolName: finalize.ToolName, ToolCallID: tc.ID, Result: "Final answer streamed successfully", Success: true, Iteration: iteration})

	// Persisted arguments omit the large context field.
	redactedArgs, _ := json.Marshal(map[string]string{"user_question": args.UserQuestion, "answer_style": args.AnswerStyle})
	reasoningText := full.String()
	meta := &domain.MessageMetadata{
		ToolCalls: []domain.ToolCallRecord{{
			ID:        tc.ID,
			Name:      finalize.ToolName,
			Arguments: redactedArgs,
			Result:    domain.ToolResult{Type: finalize.ToolName, Summary: "Final answer streamed successfully", Success: true},
			Success:   true,
			Iteration: iteration,
		}},
		Metrics: domain.Metrics{Iterations: iteration, TotalTokens: tokensUsed},
	}
	if cc, err := o.ctxMgr.AddMessageWithMetadata(ctx, conversationID, domain.Message{Role: domain.RoleAssistant, Content: reasoningText}, meta); err != nil {
		sink.send(domain.ErrorEvent{Error: "persist finalize answer failed", Details: err.Error()})
	} else {
		o.turnAuditor.Publish(conversationID, cc.Messages[len(cc.Messages)-1])
	}

	return domain.ToolCallRecord{
		ID:        tc.ID,
		Name:      finalize.ToolName,
		Arguments: redactedArgs,
		Result:    domain.ToolResult{Type: finalize.ToolName, Summary: "Final answer streamed successfully", Success: true},
		Success:   true,
		Iteration: iteration,
	}
}

func finalizeSystemPrompt(style string) string {
	base := "Answer the user's question directly, using only the gathered context. Do not mention tools, context, or your reasoning process."
	switch style {
	case "concise":
		return base + " Be terse: one short paragraph, no preamble."
	case "step_by_step":
		return base + " Present the answer as numbered steps."
	default:
		return base + " Give a complete, detailed answer."
	}
}

func (o *Orchestrator) buildMetadata(toolCalls []domain.ToolCallRecord, reasoning string, iterationReasoning map[int]string, currentIteration, totalTokens int) *domain.MessageMetadata {
	meta := &domain.MessageMetadata{ToolCalls: toolCalls, Metrics: domain.Metrics{Iterations: currentIteration, TotalTokens: totalTokens}}
	if reasoning != "" {
		meta.Reasoning = &reasoning
	}
	for iter := 1; iter <= currentIteration; iter++ {
		text, ok := iterationReasoning[iter]
		if !ok && iter != currentIteration {
			continue
		}
		rec := domain.IterationRecord{Iteration: iter}
		if text != "" {
			r := text
			rec.Reasoning = &r
		}
		for _, tc := range toolCalls {
			if tc.Iteration == iter {
				rec.ToolCallIDs = append(rec.ToolCallIDs, tc.ID)
			}
		}
		meta.IterationData = append(meta.IterationData, rec)
	}
	return meta
}

// summarizeResult never inlines large RAG payloads (§3): the RAG tool's
// output is one paragraph per document, so it is summarized by paragraph
// count; anything else is truncated to 200 characters.
func summarizeResult(toolName, result string) string {
	if toolName == ragToolName {
		n := strings.Count(result, "Document:")
		return fmt.Sprintf("Retrieved %d document chunks (%d chars)", n, len(result))
	}
	if len(result) > 200 {
		return result[:200]
	}
	return result
}

type genericToolPayload struct {
	Success *bool  `json:"success,omitempty"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

func parseToolPayload(payload []byte) (result string, success bool) {
	var g genericToolPayload
	if err := json.Unmarshal(payload, &g); err != nil {
		return string(payload), true
	}
	if g.Error != "" {
		return g.Error, false
	}
	if g.Success != nil {
		return g.Result, *g.Success
	}
	if g.Result != "" {
		return g.Result, true
	}
	return string(payload), true
}

func applyFinalizer(content string, format config.FinalizerFormat) string {
	if format == config.FinalizerStructured {
		return "## Response\n\n" + content
	}
	return content
}
