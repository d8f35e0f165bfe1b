package strategy

import (
	"github.com/rs/zerolog/log"

	"ragorchestrator/internal/config"
	"ragorchestrator/internal/llm"
)

// Factory resolves LOOP_MODEL_STRATEGY to a single Executor instance at
// process init (C8). The mapping is computed once; switching strategies
// requires a restart.
type Factory struct {
	active      Executor
	instruct    Executor
	activeModel string
}

// modelFor picks the configured model id for the main-loop strategy and the
// one used internally by the finalize subroutine, regardless of which
// llm.Provider backend is active.
func modelFor(cfg config.Config) (mainModel, instructModel string) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		return cfg.Anthropic.Model, cfg.Anthropic.InstructModel
	case config.ProviderGoogle:
		return cfg.Google.Model, cfg.Google.InstructModel
	default:
		return cfg.OpenAI.Model, cfg.OpenAI.InstructModel
	}
}

// NewFactory builds the Factory: it resolves the active strategy from
// cfg.Loop.ModelStrategy (falling back to the thinking strategy with a
// warning on an unrecognized value) and always keeps an instruct Executor
// available for the finalize subroutine (§4.8), independent of which
// strategy is active.
func NewFactory(cfg config.Config, provider llm.Provider) *Factory {
	mainModel, instructModel := modelFor(cfg)

	var active Executor
	switch cfg.Loop.ModelStrategy {
	case config.StrategyQwenInstruct:
		active = NewInstruct(provider, mainModel)
	case config.StrategyDeepseek:
		active = NewChat(provider, mainModel)
	case config.StrategyQwenThinking:
		active = NewThinking(provider, mainModel)
	default:
		log.Warn().Str("strategy", string(cfg.Loop.ModelStrategy)).Msg("unknown LOOP_MODEL_STRATEGY, falling back to qwen_single_thinking")
		active = NewThinking(provider, mainModel)
	}

	return &Factory{
		active:      active,
		instruct:    NewInstruct(provider, instructModel),
		activeModel: mainModel,
	}
}

// Active returns the process-wide strategy instance selected at startup.
func (f *Factory) Active() Executor { return f.active }

// Instruct returns the strategy the finalize subroutine always uses,
// independent of which strategy is the active loop strategy.
func (f *Factory) Instruct() Executor { return f.instruct }

// ActiveModel returns the model id driving the active loop strategy, for
// context-window budgeting (internal/llm.ContextSize).
func (f *Factory) ActiveModel() string { return f.activeModel }
