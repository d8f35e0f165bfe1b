package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"ragorchestrator/internal/config"
	ctxmgr "ragorchestrator/internal/context"
	"ragorchestrator/internal/embedding"
	"ragorchestrator/internal/httpapi"
	"ragorchestrator/internal/llm/providers"
	"ragorchestrator/internal/observability"
	"ragorchestrator/internal/orchestrator"
	"ragorchestrator/internal/persistence"
	"ragorchestrator/internal/persistence/databases"
	"ragorchestrator/internal/strategy"
	"ragorchestrator/internal/tools"
	"ragorchestrator/internal/tools/finalize"
	ragtool "ragorchestrator/internal/tools/rag"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.InitOTel(ctx, cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdownOTel = nil
	}
	if shutdownOTel != nil {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	httpClient := observability.NewHTTPClient(nil)

	provider, err := providers.Build(cfg, httpClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build LLM provider")
	}

	store, closeStore, err := buildConversationStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init conversation store")
	}
	if closeStore != nil {
		defer closeStore()
	}
	ctxManager := ctxmgr.New(store, cfg.Conversation.RollingWindowSize)

	registry := tools.NewRegistry()
	registry.Register(finalize.New())

	vectorStore, err := databases.NewQdrantVector(
		fmt.Sprintf("http://%s:%d", cfg.Qdrant.Host, cfg.Qdrant.Port),
		cfg.Qdrant.Collection,
		cfg.Qdrant.Dimensions,
		cfg.Qdrant.Metric,
	)
	if err != nil {
		log.Warn().Err(err).Msg("qdrant init failed, rag_search tool will error on every call")
	} else {
		embedder := embedding.New(cfg.Embedding, httpClient)
		registry.Register(ragtool.New(vectorStore, embedder))
	}

	factory := strategy.NewFactory(cfg, provider)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	}
	turnLock := orchestrator.NewTurnLock(redisClient)

	turnAuditor := observability.NewTurnAuditor(cfg.Kafka)
	if turnAuditor != nil {
		defer func() { _ = turnAuditor.Close() }()
	}
	eventArchiver, err := observability.NewEventArchiver(ctx, cfg.ClickHouse)
	if err != nil {
		log.Warn().Err(err).Msg("clickhouse event archiver init failed, continuing without event archival")
		eventArchiver = nil
	}
	if eventArchiver != nil {
		defer func() { _ = eventArchiver.Close() }()
	}

	orch := orchestrator.New(ctxManager, registry, factory, turnLock, cfg.Loop, turnAuditor, eventArchiver)

	server := httpapi.NewServer(orch, ctxManager, registry)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Handler(),
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("orchestrator listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// buildConversationStore returns the Context Manager's backing store per
// CONVERSATION_STORAGE_MODE, plus an optional close func for the database
// mode's connection pool.
func buildConversationStore(ctx context.Context, cfg config.Config) (persistence.ConversationStore, func(), error) {
	if cfg.Conversation.StorageMode == config.StorageInMemory {
		return databases.NewMemoryConversationStore(), nil, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := databases.NewPostgresConversationStore(pool)
	if err := store.Init(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("init postgres schema: %w", err)
	}
	return store, pool.Close, nil
}
