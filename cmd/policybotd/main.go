package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/policybot-ai/policybot/internal/auth"
	"github.com/policybot-ai/policybot/internal/cache"
	"github.com/policybot-ai/policybot/internal/config"
	"github.com/policybot-ai/policybot/internal/embedder"
	"github.com/policybot-ai/policybot/internal/generate"
	"github.com/policybot-ai/policybot/internal/ingestion"
	"github.com/policybot-ai/policybot/internal/llm"
	"github.com/policybot-ai/policybot/internal/repository"
	"github.com/policybot-ai/policybot/internal/repository/postgres"
	"github.com/policybot-ai/policybot/internal/reranker"
	"github.com/policybot-ai/policybot/internal/retriever"
	"github.com/policybot-ai/policybot/internal/server"
	"github.com/policybot-ai/policybot/internal/vectorstore"
)

func main() {
	// Set up structured logging
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("starting PolicyBot service",
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
	)

	// PostgreSQL: document and feedback records
	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	slog.Info("connected to PostgreSQL")

	documentRepo := postgres.NewDocumentRepo(db)
	feedbackRepo := postgres.NewFeedbackRepo(db)

	// Qdrant: policy chunk vectors
	index, err := vectorstore.NewQdrantIndex(ctx, cfg.QdrantGRPCURL, cfg.Collection)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer index.Close()
	slog.Info("connected to Qdrant", "collection", cfg.Collection)

	embed := embedder.NewOllamaEmbedder(
		embedder.WithBaseURL(cfg.OllamaURL),
		embedder.WithModel(cfg.OllamaEmbeddingModel),
	)
	slog.Info("initialized Ollama embedder", "model", cfg.OllamaEmbeddingModel)

	llmClient := llm.NewOllamaClient(
		llm.WithBaseURL(cfg.OllamaURL),
		llm.WithModel(cfg.OllamaLLMModel),
	)
	slog.Info("initialized Ollama LLM", "model", cfg.OllamaLLMModel)

	encoder := reranker.NewHTTPCrossEncoder(cfg.CrossEncoderURL,
		reranker.WithModel(cfg.CrossEncoderModel),
	)
	slog.Info("initialized cross-encoder", "model", cfg.CrossEncoderModel)

	store, err := cache.New(cfg.CachePath)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	slog.Info("opened query cache", "path", cfg.CachePath)

	ret := retriever.New(store, embed, index, slog.Default())
	rr := reranker.New(encoder)
	answerSvc := generate.New(ret, rr, llmClient, store,
		generate.WithModel(cfg.OllamaLLMModel),
		generate.WithLimits(cfg.TopK, cfg.TopN),
		generate.WithLogger(slog.Default()),
	)

	splitter := ingestion.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	pipeline := ingestion.NewPipeline(splitter, embed, index, documentRepo, slog.Default())

	jwtCfg := auth.DefaultJWTConfig(cfg.JWTSecret)
	jwtCfg.Expiry = cfg.JWTExpiry
	jwtManager := auth.NewJWTManager(jwtCfg)

	handlers := server.NewHandlers(server.HandlersConfig{
		Answerer:  answerSvc,
		Retriever: ret,
		Reranker:  rr,
		Ingester:  pipeline,
		Documents: documentRepo,
		Feedback:  feedbackRepo,
		JWT:       jwtManager,
		APIKey:    cfg.APIKey,
		TopK:      cfg.TopK,
		TopN:      cfg.TopN,
		Logger:    slog.Default(),
		Readiness: []server.ReadinessChecker{
			func(ctx context.Context) error { return db.Pool.Ping(ctx) },
			func(ctx context.Context) error {
				_, err := index.Count(ctx)
				return err
			},
		},
	})

	httpServer := server.NewHTTPServer(server.HTTPServerConfig{
		Port:           cfg.HTTPPort,
		Logger:         slog.Default(),
		AllowedOrigins: []string{"*"}, // Configure in production
		Auth:           auth.NewMiddleware(cfg.APIKey, jwtManager),
		Handlers:       handlers,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown HTTP server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}

// Ensure interfaces are satisfied at compile time
var (
	_ repository.DocumentRepository = (*postgres.DocumentRepo)(nil)
	_ repository.FeedbackRepository = (*postgres.FeedbackRepo)(nil)
	_ vectorstore.VectorIndex       = (*vectorstore.QdrantIndex)(nil)
	_ embedder.Embedder             = (*embedder.OllamaEmbedder)(nil)
	_ llm.LLM                       = (*llm.OllamaClient)(nil)
	_ server.Answerer               = (*generate.Service)(nil)
	_ server.Ingester               = (*ingestion.Pipeline)(nil)
)
