package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/repository"
)

func makeBenchMatches(n int) []repository.ChunkMatch {
	matches := make([]repository.ChunkMatch, n)
	for i := 0; i < n; i++ {
		docUUID := fmt.Sprintf("doc-uuid-%d", i%5)
		matches[i] = makeMatch(int64(i), int64(i%5), docUUID, fmt.Sprintf("contract-%d.pdf", i%5), i, 0.85-float64(i)*0.002)
	}
	return matches
}

func BenchmarkQuery_HybridFusionAndFilter(b *testing.B) {
	matches := makeBenchMatches(100)
	texts := make(map[repository.ChunkRef]string, len(matches))
	for _, m := range matches {
		texts[repository.ChunkRef{DocumentUUID: m.Document.UUID, ChunkIndex: m.ChunkIndex}] = "The parties agree to maintain confidentiality of all proprietary information."
	}

	embedder := &fakeQueryEmbedder{vec: make([]float32, model.EmbeddingDimensions)}
	searcher := &fakeSearcher{matches: matches}
	hydrator := &fakeHydrator{texts: texts}
	svc := NewRetrieverService(embedder, searcher, hydrator, nil, nil)

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = svc.Query(ctx, model.QueryRequest{Query: "confidentiality obligations", TopK: 10})
	}
}
