package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

func makeResponse(filename string) *model.QueryResponse {
	return &model.QueryResponse{
		Query: "what is revenue?",
		Total: 1,
		Results: []model.SearchResult{
			{ChunkText: "some text", Similarity: 0.85, Filename: filename},
		},
	}
}

func TestQueryCache_GetSet(t *testing.T) {
	c := New(newTestClient(t), 1*time.Hour)
	ctx := context.Background()
	req := model.QueryRequest{Query: "what is revenue?", TopK: 10}
	req.Defaults()

	_, ok := c.Get(ctx, req)
	require.False(t, ok, "expected miss on empty cache")

	c.Set(ctx, req, makeResponse("revenue.pdf"))

	got, ok := c.Get(ctx, req)
	require.True(t, ok)
	require.Len(t, got.Results, 1)
	require.Equal(t, "revenue.pdf", got.Results[0].Filename)
}

func TestQueryCache_DifferentFiltersProduceDifferentKeys(t *testing.T) {
	c := New(newTestClient(t), 1*time.Hour)
	ctx := context.Background()

	reqA := model.QueryRequest{Query: "q", TopK: 10, Filters: json.RawMessage(`{"a":1}`)}
	reqA.Defaults()
	reqB := model.QueryRequest{Query: "q", TopK: 10, Filters: json.RawMessage(`{"a":2}`)}
	reqB.Defaults()

	c.Set(ctx, reqA, makeResponse("a.pdf"))

	_, ok := c.Get(ctx, reqB)
	require.False(t, ok, "different filter should miss")

	got, ok := c.Get(ctx, reqA)
	require.True(t, ok)
	require.Equal(t, "a.pdf", got.Results[0].Filename)
}

func TestQueryCache_Expiry(t *testing.T) {
	mr := miniredisRun(t)
	c := New(mr.client, 50*time.Millisecond)
	ctx := context.Background()
	req := model.QueryRequest{Query: "q", TopK: 10}
	req.Defaults()

	c.Set(ctx, req, makeResponse("test.pdf"))

	_, ok := c.Get(ctx, req)
	require.True(t, ok, "expected hit before expiry")

	mr.server.FastForward(80 * time.Millisecond)

	_, ok = c.Get(ctx, req)
	require.False(t, ok, "expected miss after expiry")
}

func TestCacheKey_Deterministic(t *testing.T) {
	req := model.QueryRequest{Query: "hello world", TopK: 10}
	req.Defaults()
	k1 := cacheKey(req)
	k2 := cacheKey(req)
	require.Equal(t, k1, k2)

	req2 := model.QueryRequest{Query: "hello world", TopK: 20}
	req2.Defaults()
	require.NotEqual(t, k1, cacheKey(req2))
}
