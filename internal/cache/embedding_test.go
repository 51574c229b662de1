package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type testRedis struct {
	server *miniredis.Miniredis
	client *redis.Client
}

func miniredisRun(t *testing.T) testRedis {
	t.Helper()
	mr := miniredis.RunT(t)
	return testRedis{server: mr, client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
}

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	return miniredisRun(t).client
}

func TestEmbeddingCache_HitMiss(t *testing.T) {
	c := NewEmbeddingCache(newTestClient(t), 1*time.Minute)
	ctx := context.Background()
	hash := EmbeddingQueryHash("test query")

	_, ok := c.Get(ctx, hash)
	require.False(t, ok, "expected miss on empty cache")

	vec := []float32{0.1, 0.2, 0.3}
	c.Set(ctx, hash, vec)

	got, ok := c.Get(ctx, hash)
	require.True(t, ok)
	require.Equal(t, vec, got)
}

func TestEmbeddingCache_Expiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewEmbeddingCache(client, 10*time.Millisecond)
	ctx := context.Background()

	hash := EmbeddingQueryHash("expire me")
	c.Set(ctx, hash, []float32{1.0})

	_, ok := c.Get(ctx, hash)
	require.True(t, ok, "expected hit before expiry")

	mr.FastForward(20 * time.Millisecond)

	_, ok = c.Get(ctx, hash)
	require.False(t, ok, "expected miss after expiry")
}

func TestEmbeddingQueryHash_Deterministic(t *testing.T) {
	h1 := EmbeddingQueryHash("What is TUMM?")
	h2 := EmbeddingQueryHash("what is tumm?")
	h3 := EmbeddingQueryHash("  What is TUMM?  ")

	require.Equal(t, h1, h2)
	require.Equal(t, h1, h3)
}

func TestEmbeddingQueryHash_Different(t *testing.T) {
	require.NotEqual(t, EmbeddingQueryHash("query one"), EmbeddingQueryHash("query two"))
}

func TestEmbeddingCache_Roundtrip768(t *testing.T) {
	c := NewEmbeddingCache(newTestClient(t), 1*time.Minute)
	ctx := context.Background()

	vec := make([]float32, 768)
	for i := range vec {
		vec[i] = float32(i) * 0.001
	}

	hash := EmbeddingQueryHash("roundtrip test")
	c.Set(ctx, hash, vec)

	got, ok := c.Get(ctx, hash)
	require.True(t, ok)
	require.Len(t, got, 768)
	require.Equal(t, vec[767], got[767])
}
