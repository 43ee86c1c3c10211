package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"answer-engine/answers"
	"answer-engine/config"
	"answer-engine/database"
	"answer-engine/engine"
	"answer-engine/llmclient"
	"answer-engine/retrieval"
	"answer-engine/usage"
	"answer-engine/web"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	// Initialize logger with default level to load config
	tempLogger, err := config.InitLogger("info")
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// Load config (which includes log level setting)
	cfg := config.Load(tempLogger)

	// Re-initialize logger with configured level
	logger, err := config.InitLogger(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to re-initialize logger with configured level: %v\n", err)
		os.Exit(1)
	}
	defer config.Cleanup()

	store, err := database.NewPostgresStore(cfg.DatabaseURL, cfg.EmbeddingDimensions)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure database schema", zap.Error(err))
	}

	llm := llmclient.New(cfg, logger)

	embedder := retrieval.NewEmbedder(llm, cfg.EmbeddingHost, cfg.EmbeddingDimensions,
		cfg.EmbeddingBatchSize, cfg.EmbeddingBatchDelay, logger)

	chunker := retrieval.NewTextChunker(retrieval.ChunkerConfig{
		TargetSize:       cfg.ChunkTargetSize,
		Overlap:          cfg.ChunkOverlap,
		MinSize:          cfg.ChunkMinSize,
		MaxSize:          cfg.ChunkMaxSize,
		PreserveSections: cfg.PreserveSections,
	})

	vectorStore := retrieval.NewVectorStore(store, chunker, embedder, cfg.SimilarityThreshold, logger)
	fusion := retrieval.NewFusion(vectorStore, cfg.FusionSourceLimit, logger)

	cache, err := answers.NewCache(store, cfg.HotCacheSize, logger)
	if err != nil {
		logger.Fatal("Failed to initialize answer cache", zap.Error(err))
	}

	gate := usage.NewGate(cfg, store, logger)

	eng := engine.New(cfg, cache, fusion, vectorStore, llm, gate, logger)

	webServer := web.NewServer(cfg, eng, cache, store, logger)

	// Create context that listens for interrupt signals
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cleanup := web.NewCleanupService(store, logger)
	go cleanup.Run(ctx)

	logger.Info("Starting answer engine", zap.Int("port", cfg.WebPort))
	if err := webServer.Start(ctx); err != nil {
		logger.Error("Web server error", zap.Error(err))
		os.Exit(1)
	}
}
