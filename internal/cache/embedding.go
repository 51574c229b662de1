// Package cache provides Redis-backed caches for the query path: embedding
// vectors keyed by normalized query text, and full retrieval results keyed
// by query+filter+fusion-mode. A cache miss or Redis outage degrades to
// recompute rather than failing the query.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultEmbeddingTTL is 15 minutes unless overridden by EMBEDDING_CACHE_TTL env var.
func DefaultEmbeddingTTL() time.Duration {
	if v := os.Getenv("EMBEDDING_CACHE_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 15 * time.Minute
}

// EmbeddingCache caches query embedding vectors in Redis, keyed by
// normalized query hash, avoiding redundant embedding calls for repeated
// or near-identical queries.
type EmbeddingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewEmbeddingCache wraps an existing Redis client.
func NewEmbeddingCache(client *redis.Client, ttl time.Duration) *EmbeddingCache {
	return &EmbeddingCache{client: client, ttl: ttl}
}

// Get returns a cached embedding vector if present. A Redis error is
// treated as a miss — the caller recomputes rather than failing the query.
func (c *EmbeddingCache) Get(ctx context.Context, queryHash string) ([]float32, bool) {
	data, err := c.client.Get(ctx, queryHash).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("embedding cache read failed, falling through to recompute", "error", err)
		}
		return nil, false
	}

	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		slog.Warn("embedding cache decode failed", "error", err)
		return nil, false
	}
	return vec, true
}

// Set stores an embedding vector in the cache. A write failure is logged
// and swallowed — the cache is a performance layer, not a correctness one.
func (c *EmbeddingCache) Set(ctx context.Context, queryHash string, vec []float32) {
	data, err := json.Marshal(vec)
	if err != nil {
		slog.Warn("embedding cache marshal failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, queryHash, data, c.ttl).Err(); err != nil {
		slog.Warn("embedding cache write failed", "error", err)
	}
}

// EmbeddingQueryHash returns a deterministic cache key for a query string.
// Normalizes by lowercasing and trimming whitespace before hashing.
func EmbeddingQueryHash(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("emb:%x", h[:16])
}
