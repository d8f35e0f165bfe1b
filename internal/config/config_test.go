package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"LOOP_MODEL_STRATEGY", "LOOP_MAX_ITERATIONS", "LOOP_TEMPERATURE", "LOOP_MAX_TOKENS",
		"LOOP_THINKING_SHOW_REASONING", "LOOP_STREAMING_SHOW_REASONING_TRACES", "LOOP_FINALIZER_FORMAT",
		"CONVERSATION_STORAGE_MODE", "CONVERSATION_ROLLING_WINDOW_SIZE",
		"PROVIDER_BACKEND", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GOOGLE_LLM_API_KEY",
		"DATABASE_URL", "POSTGRES_DSN",
	}
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StrategyQwenThinking, cfg.Loop.ModelStrategy)
	assert.Equal(t, 10, cfg.Loop.MaxIterations)
	assert.Equal(t, StorageInMemory, cfg.Conversation.StorageMode)
	assert.Equal(t, 20, cfg.Conversation.RollingWindowSize)
	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, FinalizerDirect, cfg.Loop.FinalizerFormat)
}

func TestLoadRejectsUnknownFinalizerFormat(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LOOP_FINALIZER_FORMAT", "bogus")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("LOOP_FINALIZER_FORMAT", "structured")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, FinalizerStructured, cfg.Loop.FinalizerFormat)
}

func TestLoadRejectsUnknownStrategy(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LOOP_MODEL_STRATEGY", "not_a_strategy")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadDatabaseModeRequiresDSN(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("CONVERSATION_STORAGE_MODE", "database")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("DATABASE_URL", "postgres://localhost/db")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorageDatabase, cfg.Conversation.StorageMode)
}

func TestLoadRequiresProviderAPIKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROVIDER_BACKEND", "anthropic")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	_, err = Load()
	require.NoError(t, err)
}
