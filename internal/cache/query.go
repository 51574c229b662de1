package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// QueryCache caches a full QueryResponse in Redis, keyed by the query text,
// its filter expression, and fusion/rerank mode — the full shape of a C14
// request that determines its result. A cache miss or write failure
// degrades to recompute; this cache never gates correctness.
type QueryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New wraps an existing Redis client with the given result TTL.
func New(client *redis.Client, ttl time.Duration) *QueryCache {
	return &QueryCache{client: client, ttl: ttl}
}

// Get returns a cached QueryResponse for the given request shape.
func (c *QueryCache) Get(ctx context.Context, req model.QueryRequest) (*model.QueryResponse, bool) {
	key := cacheKey(req)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("query cache read failed, falling through to recompute", "error", err)
		}
		return nil, false
	}

	var resp model.QueryResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		slog.Warn("query cache decode failed", "error", err)
		return nil, false
	}
	return &resp, true
}

// Set stores a QueryResponse under the request's cache key.
func (c *QueryCache) Set(ctx context.Context, req model.QueryRequest, resp *model.QueryResponse) {
	key := cacheKey(req)
	data, err := json.Marshal(resp)
	if err != nil {
		slog.Warn("query cache marshal failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		slog.Warn("query cache write failed", "error", err)
	}
}

// cacheKey builds a deterministic key covering every input that affects
// the result: query text, top_k, hybrid/rerank flags, and the raw filter.
func cacheKey(req model.QueryRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%v|%v|%d|%f|%s",
		req.Query, req.TopK, boolValue(req.UseHybrid), req.Rerank,
		req.RerankCandidates, req.MinSimilarity, string(req.Filters))
	return fmt.Sprintf("qc:%x", h.Sum(nil))
}

func boolValue(b *bool) bool {
	return b != nil && *b
}
