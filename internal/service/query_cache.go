package service

import (
	"context"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// FullResponseCache abstracts a cache of complete query responses, keyed by
// the full request shape. Satisfied by cache.QueryCache; nil disables it.
type FullResponseCache interface {
	Get(ctx context.Context, req model.QueryRequest) (*model.QueryResponse, bool)
	Set(ctx context.Context, req model.QueryRequest, resp *model.QueryResponse)
}

// queryRunner is the subset of RetrieverService that CachedRetriever wraps.
type queryRunner interface {
	Query(ctx context.Context, req model.QueryRequest) (*model.QueryResponse, error)
}

// CachedRetriever wraps a RetrieverService with a full-response cache in
// front of it: a hit skips embedding, search, fusion, and rerank entirely.
// A miss falls through to the wrapped retriever and populates the cache on
// the way out.
type CachedRetriever struct {
	inner queryRunner
	cache FullResponseCache
}

// NewCachedRetriever wraps inner with cache. cache may be nil, in which case
// Query degrades to calling inner directly.
func NewCachedRetriever(inner queryRunner, cache FullResponseCache) *CachedRetriever {
	return &CachedRetriever{inner: inner, cache: cache}
}

func (c *CachedRetriever) Query(ctx context.Context, req model.QueryRequest) (*model.QueryResponse, error) {
	if c.cache == nil {
		return c.inner.Query(ctx, req)
	}
	req.Defaults()
	if resp, ok := c.cache.Get(ctx, req); ok {
		return resp, nil
	}
	resp, err := c.inner.Query(ctx, req)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, req, resp)
	return resp, nil
}
