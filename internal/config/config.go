package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration loaded from environment variables.
// It is immutable after Load() returns.
type Config struct {
	Port             int
	Environment      string
	DatabaseURL      string
	DatabaseMaxConns int

	GCPProject        string
	GCPRegion         string
	VertexAILocation  string
	VertexAIModel     string
	EmbeddingLocation string
	EmbeddingModel    string

	GCSBucketName    string
	DocAIProcessorID string
	DocAILocation    string

	PubSubTopic string

	RedisAddr     string
	RedisPassword string

	ChunkSizeChars    int
	ChunkOverlap      int
	DefaultTopK       int
	RerankBatchSize   int
	RerankConcurrency int
	EmbedConcurrency  int

	EmbeddingCacheTTLSeconds int
	QueryCacheTTLSeconds     int

	InternalAuthSecret string
}

// Load reads configuration from environment variables.
// Required variables (DATABASE_URL, GOOGLE_CLOUD_PROJECT) cause an error if missing.
// Optional variables use sensible defaults matching §5's concurrency defaults
// and §4.4/§4.10's chunking/scoring constants.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("config.Load: DATABASE_URL is required")
	}

	gcpProject := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if gcpProject == "" {
		return nil, fmt.Errorf("config.Load: GOOGLE_CLOUD_PROJECT is required")
	}

	cfg := &Config{
		Port:             envInt("PORT", 8080),
		Environment:      envStr("ENVIRONMENT", "development"),
		DatabaseURL:      dbURL,
		DatabaseMaxConns: envInt("DATABASE_MAX_CONNS", 25),

		GCPProject:        gcpProject,
		GCPRegion:         envStr("GCP_REGION", "us-east4"),
		VertexAILocation:  envStr("VERTEX_AI_LOCATION", "global"),
		VertexAIModel:     envStr("VERTEX_AI_MODEL", "gemini-3-pro-preview"),
		EmbeddingLocation: envStr("VERTEX_AI_EMBEDDING_LOCATION", envStr("GCP_REGION", "us-east4")),
		EmbeddingModel:    envStr("VERTEX_AI_EMBEDDING_MODEL", "text-embedding-004"),

		GCSBucketName:    envStr("GCS_BUCKET_NAME", ""),
		DocAIProcessorID: envStr("DOCUMENT_AI_PROCESSOR_ID", ""),
		DocAILocation:    envStr("DOCUMENT_AI_LOCATION", "us"),

		PubSubTopic: envStr("PUBSUB_INGEST_TOPIC", ""),

		RedisAddr:     envStr("REDIS_ADDR", "localhost:6379"),
		RedisPassword: envStr("REDIS_PASSWORD", ""),

		ChunkSizeChars:    envInt("CHUNK_SIZE_CHARS", 2000),
		ChunkOverlap:      envInt("CHUNK_OVERLAP_CHARS", 200),
		DefaultTopK:       envInt("DEFAULT_TOP_K", 10),
		RerankBatchSize:   envInt("RERANK_BATCH_SIZE", 2),
		RerankConcurrency: envInt("RERANK_CONCURRENCY", 10),
		EmbedConcurrency:  envInt("EMBED_CONCURRENCY", 10),

		EmbeddingCacheTTLSeconds: envInt("EMBEDDING_CACHE_TTL", 900),
		QueryCacheTTLSeconds:     envInt("QUERY_CACHE_TTL", 300),

		InternalAuthSecret: envStr("INTERNAL_AUTH_SECRET", ""),
	}

	// Internal auth secret is required in non-development environments
	if cfg.Environment != "development" && cfg.InternalAuthSecret == "" {
		return nil, fmt.Errorf("config.Load: INTERNAL_AUTH_SECRET is required in %s environment", cfg.Environment)
	}

	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
