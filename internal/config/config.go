// Package config loads the orchestrator's process-wide configuration from
// environment variables (optionally via a local .env file), following the
// teacher's "read env, fall back to hardcoded default, validate, return"
// LoadConfig pattern — but flat, since this server has no YAML tree.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ModelStrategy selects the C7 strategy instance (C8 StrategyFactory).
type ModelStrategy string

const (
	StrategyQwenThinking ModelStrategy = "qwen_single_thinking"
	StrategyQwenInstruct ModelStrategy = "qwen_single_instruct"
	StrategyDeepseek     ModelStrategy = "deepseek_single"
)

// StorageMode selects the Context Manager's backing store.
type StorageMode string

const (
	StorageInMemory StorageMode = "in-memory"
	StorageDatabase StorageMode = "database"
)

// ProviderBackend selects which llm.Provider implementation the orchestrator
// is wired to at startup.
type ProviderBackend string

const (
	ProviderOpenAI    ProviderBackend = "openai"
	ProviderAnthropic ProviderBackend = "anthropic"
	ProviderGoogle    ProviderBackend = "google"
)

// LoopConfig holds the `LOOP_*` env vars governing the agentic loop (C7/C9).
type LoopConfig struct {
	ModelStrategy              ModelStrategy   `env:"LOOP_MODEL_STRATEGY"`
	MaxIterations              int             `env:"LOOP_MAX_ITERATIONS"`
	Temperature                float64         `env:"LOOP_TEMPERATURE"`
	MaxTokens                  int             `env:"LOOP_MAX_TOKENS"`
	ThinkingShowReasoning      bool            `env:"LOOP_THINKING_SHOW_REASONING"`
	StreamingShowReasoningTrace bool           `env:"LOOP_STREAMING_SHOW_REASONING_TRACES"`
	FinalizerFormat            FinalizerFormat `env:"LOOP_FINALIZER_FORMAT"`
}

// FinalizerFormat selects how a FinalResponse's content is shaped before it
// is emitted as the final-answer chunk (§4.10): DIRECT returns the model's
// answer untouched; STRUCTURED prepends a "## Response" heading for callers
// that render the final answer as markdown. The answer streamed by the
// finalize_answer subroutine is not reshaped.
type FinalizerFormat string

const (
	FinalizerDirect     FinalizerFormat = "direct"
	FinalizerStructured FinalizerFormat = "structured"
)

// ConversationConfig holds the `CONVERSATION_*` env vars governing the
// Context Manager (C6).
type ConversationConfig struct {
	StorageMode       StorageMode `env:"CONVERSATION_STORAGE_MODE"`
	RollingWindowSize int         `env:"CONVERSATION_ROLLING_WINDOW_SIZE"`
}

// OpenAIConfig configures the OpenAI-compatible provider client.
type OpenAIConfig struct {
	APIKey        string
	Model         string // thinking-strategy model id
	InstructModel string // used by the finalize subroutine
	BaseURL       string
}

// AnthropicConfig configures the Anthropic provider client.
type AnthropicConfig struct {
	APIKey        string
	Model         string
	InstructModel string
	BaseURL       string
}

// GoogleConfig configures the Gemini provider client.
type GoogleConfig struct {
	APIKey        string
	Model         string
	InstructModel string
	BaseURL       string
}

// QdrantConfig configures the vector store behind the RAG tool (C4).
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
	APIKey     string
	Dimensions int
	Metric     string
}

// EmbeddingConfig configures the HTTP endpoint the RAG tool calls to turn a
// query into a vector before it hits the vector store.
type EmbeddingConfig struct {
	BaseURL   string
	Path      string
	Model     string
	APIKey    string
	APIHeader string
	Timeout   int // seconds
}

// RedisConfig configures the per-conversation turn lock (§5, §4.12).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig configures the optional turn-audit sink (§4.12).
type KafkaConfig struct {
	Brokers string
	Topic   string
}

// ClickHouseConfig configures the optional SSE-event archival sink (§4.12).
type ClickHouseConfig struct {
	DSN      string
	Database string
	Table    string
}

// PostgresConfig configures the relational Context Manager store.
type PostgresConfig struct {
	DSN string
}

// ObsConfig configures OpenTelemetry export.
type ObsConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
}

// Config is the orchestrator's complete process-wide configuration.
type Config struct {
	Loop         LoopConfig
	Conversation ConversationConfig
	Provider     ProviderBackend

	OpenAI     OpenAIConfig
	Anthropic  AnthropicConfig
	Google     GoogleConfig
	Qdrant     QdrantConfig
	Embedding  EmbeddingConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	ClickHouse ClickHouseConfig
	Postgres   PostgresConfig
	Obs        ObsConfig

	HTTPAddr    string
	LogLevel    string
	LogPath     string
	LogPayloads bool
}

// Load reads configuration from the environment, overlaying a local .env
// file if present, then applies defaults and validates.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		Loop: LoopConfig{
			ModelStrategy: ModelStrategy(firstNonEmpty(os.Getenv("LOOP_MODEL_STRATEGY"), string(StrategyQwenThinking))),
			MaxIterations: envInt("LOOP_MAX_ITERATIONS", 10),
			Temperature:   envFloat("LOOP_TEMPERATURE", 0.7),
			MaxTokens:     envInt("LOOP_MAX_TOKENS", 2048),
			ThinkingShowReasoning:       envBool("LOOP_THINKING_SHOW_REASONING", true),
			StreamingShowReasoningTrace: envBool("LOOP_STREAMING_SHOW_REASONING_TRACES", true),
			FinalizerFormat:             FinalizerFormat(firstNonEmpty(os.Getenv("LOOP_FINALIZER_FORMAT"), string(FinalizerDirect))),
		},
		Conversation: ConversationConfig{
			StorageMode:       StorageMode(firstNonEmpty(os.Getenv("CONVERSATION_STORAGE_MODE"), string(StorageInMemory))),
			RollingWindowSize: envInt("CONVERSATION_ROLLING_WINDOW_SIZE", 20),
		},
		Provider: ProviderBackend(firstNonEmpty(os.Getenv("PROVIDER_BACKEND"), string(ProviderOpenAI))),

		OpenAI: OpenAIConfig{
			APIKey:        os.Getenv("OPENAI_API_KEY"),
			Model:         firstNonEmpty(os.Getenv("OPENAI_MODEL"), "gpt-4o-mini"),
			InstructModel: firstNonEmpty(os.Getenv("OPENAI_INSTRUCT_MODEL"), os.Getenv("OPENAI_MODEL"), "gpt-4o-mini"),
			BaseURL:       os.Getenv("OPENAI_BASE_URL"),
		},
		Anthropic: AnthropicConfig{
			APIKey:        os.Getenv("ANTHROPIC_API_KEY"),
			Model:         firstNonEmpty(os.Getenv("ANTHROPIC_MODEL"), "claude-sonnet-4-5"),
			InstructModel: firstNonEmpty(os.Getenv("ANTHROPIC_INSTRUCT_MODEL"), os.Getenv("ANTHROPIC_MODEL"), "claude-sonnet-4-5"),
			BaseURL:       os.Getenv("ANTHROPIC_BASE_URL"),
		},
		Google: GoogleConfig{
			APIKey:        os.Getenv("GOOGLE_LLM_API_KEY"),
			Model:         firstNonEmpty(os.Getenv("GOOGLE_LLM_MODEL"), "gemini-2.5-flash"),
			InstructModel: firstNonEmpty(os.Getenv("GOOGLE_LLM_INSTRUCT_MODEL"), os.Getenv("GOOGLE_LLM_MODEL"), "gemini-2.5-flash"),
			BaseURL:       os.Getenv("GOOGLE_LLM_BASE_URL"),
		},
		Qdrant: QdrantConfig{
			Host:       firstNonEmpty(os.Getenv("QDRANT_HOST"), "localhost"),
			Port:       envInt("QDRANT_PORT", 6334),
			Collection: firstNonEmpty(os.Getenv("QDRANT_COLLECTION"), "documents"),
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			Dimensions: envInt("QDRANT_VECTOR_DIMENSIONS", 1536),
			Metric:     firstNonEmpty(os.Getenv("QDRANT_METRIC"), "cosine"),
		},
		Embedding: EmbeddingConfig{
			BaseURL:   os.Getenv("EMBEDDING_BASE_URL"),
			Path:      firstNonEmpty(os.Getenv("EMBEDDING_PATH"), "/v1/embeddings"),
			Model:     firstNonEmpty(os.Getenv("EMBEDDING_MODEL"), "text-embedding-3-small"),
			APIKey:    os.Getenv("EMBEDDING_API_KEY"),
			APIHeader: firstNonEmpty(os.Getenv("EMBEDDING_API_HEADER"), "Authorization"),
			Timeout:   envInt("EMBEDDING_TIMEOUT_SECONDS", 30),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: os.Getenv("KAFKA_BROKERS"),
			Topic:   firstNonEmpty(os.Getenv("KAFKA_TURNS_TOPIC"), "conversation.turns"),
		},
		ClickHouse: ClickHouseConfig{
			DSN:      os.Getenv("CLICKHOUSE_DSN"),
			Database: firstNonEmpty(os.Getenv("CLICKHOUSE_DATABASE"), "default"),
			Table:    firstNonEmpty(os.Getenv("CLICKHOUSE_EVENTS_TABLE"), "stream_events"),
		},
		Postgres: PostgresConfig{
			DSN: firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("POSTGRES_DSN")),
		},
		Obs: ObsConfig{
			ServiceName:    firstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), "ragorchestrator"),
			ServiceVersion: firstNonEmpty(os.Getenv("SERVICE_VERSION"), "dev"),
			Environment:    firstNonEmpty(os.Getenv("ENVIRONMENT"), "dev"),
			OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		},

		HTTPAddr:    firstNonEmpty(os.Getenv("HTTP_ADDR"), ":8080"),
		LogLevel:    firstNonEmpty(os.Getenv("LOG_LEVEL"), "info"),
		LogPath:     os.Getenv("LOG_PATH"),
		LogPayloads: envBool("LOG_PAYLOADS", false),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Loop.ModelStrategy {
	case StrategyQwenThinking, StrategyQwenInstruct, StrategyDeepseek:
	default:
		return fmt.Errorf("LOOP_MODEL_STRATEGY must be one of qwen_single_thinking, qwen_single_instruct, deepseek_single (got %q)", c.Loop.ModelStrategy)
	}
	switch c.Conversation.StorageMode {
	case StorageInMemory, StorageDatabase:
	default:
		return fmt.Errorf("CONVERSATION_STORAGE_MODE must be one of in-memory, database (got %q)", c.Conversation.StorageMode)
	}
	switch c.Loop.FinalizerFormat {
	case FinalizerDirect, FinalizerStructured:
	default:
		return fmt.Errorf("LOOP_FINALIZER_FORMAT must be one of direct, structured (got %q)", c.Loop.FinalizerFormat)
	}
	if c.Conversation.StorageMode == StorageDatabase && c.Postgres.DSN == "" {
		return fmt.Errorf("DATABASE_URL (or POSTGRES_DSN) is required when CONVERSATION_STORAGE_MODE=database")
	}
	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
	default:
		return fmt.Errorf("PROVIDER_BACKEND must be one of openai, anthropic, google (got %q)", c.Provider)
	}
	if c.Provider == ProviderOpenAI && c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when PROVIDER_BACKEND=openai")
	}
	if c.Provider == ProviderAnthropic && c.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when PROVIDER_BACKEND=anthropic")
	}
	if c.Provider == ProviderGoogle && c.Google.APIKey == "" {
		return fmt.Errorf("GOOGLE_LLM_API_KEY is required when PROVIDER_BACKEND=google")
	}
	if c.Loop.MaxIterations <= 0 {
		return fmt.Errorf("LOOP_MAX_ITERATIONS must be positive (got %d)", c.Loop.MaxIterations)
	}
	if c.Conversation.RollingWindowSize <= 0 {
		return fmt.Errorf("CONVERSATION_ROLLING_WINDOW_SIZE must be positive (got %d)", c.Conversation.RollingWindowSize)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
}
