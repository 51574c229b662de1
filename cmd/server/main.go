package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/connexus-ai/ragbox-backend/internal/cache"
	"github.com/connexus-ai/ragbox-backend/internal/config"
	"github.com/connexus-ai/ragbox-backend/internal/extractor"
	"github.com/connexus-ai/ragbox-backend/internal/gcpclient"
	"github.com/connexus-ai/ragbox-backend/internal/handler"
	"github.com/connexus-ai/ragbox-backend/internal/middleware"
	"github.com/connexus-ai/ragbox-backend/internal/reranker"
	"github.com/connexus-ai/ragbox-backend/internal/repository"
	"github.com/connexus-ai/ragbox-backend/internal/router"
	"github.com/connexus-ai/ragbox-backend/internal/service"
	"github.com/connexus-ai/ragbox-backend/internal/validator"
)

const Version = "0.2.0"

// buildServer wires every component the server needs from cfg, returning the
// fully assembled HTTP handler and a shutdown func that closes the
// dependencies buildServer opened (GCP clients, the DB pool, Redis).
func buildServer(ctx context.Context, cfg *config.Config) (http.Handler, func(), error) {
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return nil, nil, fmt.Errorf("main: db pool: %w", err)
	}

	vectorStore := repository.NewVectorStore(pool)
	auditRepo := repository.NewAuditRepo(pool)

	storage, err := gcpclient.NewStorageAdapter(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("main: storage adapter: %w", err)
	}
	objectStore := repository.NewObjectStore(storage, cfg.GCSBucketName)

	var docaiAdapter *gcpclient.DocumentAIAdapter
	if cfg.DocAIProcessorID != "" {
		docaiAdapter, err = gcpclient.NewDocumentAIAdapter(ctx, cfg.GCPProject, cfg.DocAILocation, cfg.DocAIProcessorID)
		if err != nil {
			return nil, nil, fmt.Errorf("main: document ai adapter: %w", err)
		}
	}
	ext := extractor.New(docaiAdapter, nil)
	val := validator.New(ext)

	embeddingAdapter, err := gcpclient.NewEmbeddingAdapter(ctx, cfg.GCPProject, cfg.EmbeddingLocation, cfg.EmbeddingModel)
	if err != nil {
		return nil, nil, fmt.Errorf("main: embedding adapter: %w", err)
	}

	genaiAdapter, err := gcpclient.NewGenAIAdapter(ctx, cfg.GCPProject, cfg.VertexAILocation, cfg.VertexAIModel)
	if err != nil {
		return nil, nil, fmt.Errorf("main: genai adapter: %w", err)
	}

	var events service.EventPublisher
	var pubsubAdapter *gcpclient.PubSubAdapter
	if cfg.PubSubTopic != "" {
		pubsubAdapter, err = gcpclient.NewPubSubAdapter(ctx, cfg.GCPProject, cfg.PubSubTopic)
		if err != nil {
			return nil, nil, fmt.Errorf("main: pubsub adapter: %w", err)
		}
		events = pubsubAdapter
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	embedCache := cache.NewEmbeddingCache(redisClient, time.Duration(cfg.EmbeddingCacheTTLSeconds)*time.Second)
	queryCache := cache.New(redisClient, time.Duration(cfg.QueryCacheTTLSeconds)*time.Second)

	chunker := service.NewChunkerService(cfg.ChunkSizeChars, cfg.ChunkOverlap)
	embedder := service.NewEmbedderService(embeddingAdapter)
	llmExtractor := service.NewLLMExtractorService(genaiAdapter)
	rerank := reranker.New(genaiAdapter, cfg.RerankConcurrency, cfg.RerankBatchSize)

	auditSvc, err := service.NewAuditService(auditRepo, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("main: audit service: %w", err)
	}

	pipeline := service.NewPipelineService(vectorStore, objectStore, val, chunker, embedder, llmExtractor, auditSvc, events)
	retriever := service.NewCachedRetriever(service.NewRetrieverService(embeddingAdapter, vectorStore, objectStore, rerank, embedCache), queryCache)

	reg := prometheus.NewRegistry()
	metrics := middleware.NewMetrics(reg)

	deps := &router.Dependencies{
		DB:          pool,
		Objects:     storage,
		Bucket:      cfg.GCSBucketName,
		FrontendURL: os.Getenv("FRONTEND_URL"),
		Version:     Version,
		Metrics:     metrics,
		MetricsReg:  reg,
		Ingester:    pipeline,
		Retriever:   retriever,
		Embedder:    embedder,
		DocCRUD:     handler.DocCRUDDeps{Repo: vectorStore, Objects: objectStore, Audit: auditSvc},
	}

	shutdown := func() {
		pool.Close()
		if err := redisClient.Close(); err != nil {
			slog.Warn("main: redis close", "error", err)
		}
		if pubsubAdapter != nil {
			pubsubAdapter.Close()
		}
		storage.Close()
		if docaiAdapter != nil {
			docaiAdapter.Close()
		}
		genaiAdapter.Close()
	}

	return router.New(deps), shutdown, nil
}

func getPort(cfg *config.Config) string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return fmt.Sprintf("%d", cfg.Port)
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("main: %w", err)
	}

	ctx := context.Background()
	mux, shutdownDeps, err := buildServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdownDeps()

	port := getPort(cfg)
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 130 * time.Second, // covers the 120s upload timeout plus slack
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("ragbox-backend v%s starting on port %s", Version, port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("received signal %s, shutting down gracefully", sig)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	log.Println("server stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
