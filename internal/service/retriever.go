package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/connexus-ai/ragbox-backend/internal/bm25"
	"github.com/connexus-ai/ragbox-backend/internal/cache"
	"github.com/connexus-ai/ragbox-backend/internal/filter"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/reranker"
	"github.com/connexus-ai/ragbox-backend/internal/repository"
	"github.com/connexus-ai/ragbox-backend/internal/rrf"
	"github.com/connexus-ai/ragbox-backend/internal/tokenizer"
)

// minCandidatePool is the floor on how many vector candidates are pulled
// before filtering/fusion, regardless of a smaller rerank_candidates value.
const minCandidatePool = 100

// QuerySearcher abstracts C8's similarity search for the query path.
type QuerySearcher interface {
	SimilaritySearch(ctx context.Context, queryVec []float32, candidateLimit int, minSimilarity float64) ([]repository.ChunkMatch, error)
}

// ChunkHydrator abstracts the C9 calls the query path needs: chunk-text
// hydration and BM25 index lookup.
type ChunkHydrator interface {
	GetChunkTexts(ctx context.Context, refs []repository.ChunkRef) (map[repository.ChunkRef]string, error)
	GetBM25Indexes(ctx context.Context, docUUIDs []string) (map[string]bm25.DocIndex, error)
}

// QueryEmbeddingCache abstracts an optional embedding cache; a nil
// QueryEmbeddingCache disables caching without branching at call sites.
type QueryEmbeddingCache interface {
	Get(ctx context.Context, queryHash string) ([]float32, bool)
	Set(ctx context.Context, queryHash string, vec []float32)
}

// ChunkReranker abstracts C12.
type ChunkReranker interface {
	Rerank(ctx context.Context, query string, candidates []reranker.Candidate) ([]reranker.Result, error)
}

// RetrieverService runs C14: the query orchestrator of §4.14.
type RetrieverService struct {
	embedder EmbeddingClient
	searcher QuerySearcher
	objects  ChunkHydrator
	rerank   ChunkReranker
	cache    QueryEmbeddingCache
}

// NewRetrieverService wires C14 over its component dependencies. embedCache
// may be nil to disable query-embedding caching.
func NewRetrieverService(embedder EmbeddingClient, searcher QuerySearcher, objects ChunkHydrator, rerank ChunkReranker, embedCache QueryEmbeddingCache) *RetrieverService {
	return &RetrieverService{embedder: embedder, searcher: searcher, objects: objects, rerank: rerank, cache: embedCache}
}

// candidate is the orchestrator's working representation of one chunk
// through filtering, fusion, and rerank.
type candidate struct {
	match     repository.ChunkMatch
	bm25Score float64
	rrfScore  float64
	rerankRes *reranker.Result
	text      string
	textKnown bool
}

// Query runs the full embed -> search -> filter -> fuse -> rerank -> hydrate
// pipeline and returns the ranked, hydrated result set.
func (s *RetrieverService) Query(ctx context.Context, req model.QueryRequest) (*model.QueryResponse, error) {
	req.Defaults()
	if req.Query == "" {
		return nil, fmt.Errorf("service.Query: query is empty")
	}

	tree, err := filter.Parse(req.Filters)
	if err != nil {
		return nil, fmt.Errorf("service.Query: %w", err)
	}

	queryVec, err := s.embedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("service.Query: embed: %w", err)
	}

	candidateLimit := req.RerankCandidates
	if candidateLimit < minCandidatePool {
		candidateLimit = minCandidatePool
	}

	matches, err := s.searcher.SimilaritySearch(ctx, queryVec, candidateLimit, req.MinSimilarity)
	if err != nil {
		return nil, fmt.Errorf("service.Query: search: %w", err)
	}
	slog.Info("query search completed", "query", req.Query, "candidates", len(matches))

	candidates := s.applyFilter(matches, tree)
	if len(candidates) == 0 {
		return &model.QueryResponse{Query: req.Query, Total: 0, Results: []model.SearchResult{}}, nil
	}

	if useHybrid(req.UseHybrid) {
		if err := s.fuseWithBM25(ctx, req.Query, candidates); err != nil {
			return nil, fmt.Errorf("service.Query: hybrid fusion: %w", err)
		}
	} else {
		for i := range candidates {
			candidates[i].rrfScore = candidates[i].match.Similarity
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].rrfScore > candidates[j].rrfScore })

	truncateTo := req.TopK
	if req.Rerank && s.rerank != nil && truncateTo < req.RerankCandidates {
		truncateTo = req.RerankCandidates
	}
	if truncateTo < len(candidates) {
		candidates = candidates[:truncateTo]
	}

	if req.Rerank && s.rerank != nil {
		if err := s.applyRerank(ctx, req.Query, candidates); err != nil {
			slog.Warn("rerank pass failed, falling back to fusion order", "error", err)
		} else {
			sort.SliceStable(candidates, func(i, j int) bool {
				return candidates[i].rerankRes.Score > candidates[j].rerankRes.Score
			})
		}
	}

	if req.TopK < len(candidates) {
		candidates = candidates[:req.TopK]
	}

	results, err := s.hydrate(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("service.Query: hydrate: %w", err)
	}

	return &model.QueryResponse{Query: req.Query, Total: len(results), Results: results}, nil
}

func (s *RetrieverService) embedQuery(ctx context.Context, query string) ([]float32, error) {
	hash := cache.EmbeddingQueryHash(query)
	if s.cache != nil {
		if vec, ok := s.cache.Get(ctx, hash); ok {
			return vec, nil
		}
	}
	vecs, err := s.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedder returned no vectors")
	}
	if s.cache != nil {
		s.cache.Set(ctx, hash, vecs[0])
	}
	return vecs[0], nil
}

// applyFilter evaluates the C7 predicate over each candidate's resolved
// columns and metadata, preserving the similarity-descending order
// SimilaritySearch already returned them in.
func (s *RetrieverService) applyFilter(matches []repository.ChunkMatch, tree *filter.Tree) []candidate {
	out := make([]candidate, 0, len(matches))
	for _, m := range matches {
		doc := filter.Document{Columns: m.DocumentCols, Metadata: metadataMap(m.Document.Metadata)}
		if tree.Eval(doc) {
			out = append(out, candidate{match: m})
		}
	}
	return out
}

// fuseWithBM25 scores every candidate against its document's BM25 index
// and combines the vector-similarity rank and BM25-score rank via
// Reciprocal Rank Fusion, writing the fused score into each candidate.
func (s *RetrieverService) fuseWithBM25(ctx context.Context, query string, candidates []candidate) error {
	queryTerms := tokenizer.Tokenize(query)

	uuidSet := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		uuidSet[c.match.Document.UUID] = struct{}{}
	}
	uuids := make([]string, 0, len(uuidSet))
	for u := range uuidSet {
		uuids = append(uuids, u)
	}

	indexes, err := s.objects.GetBM25Indexes(ctx, uuids)
	if err != nil {
		return err
	}

	ids := make([]string, len(candidates))
	for i := range candidates {
		ids[i] = strconv.FormatInt(candidates[i].match.ChunkID, 10)
		idx := indexes[candidates[i].match.Document.UUID]
		candidates[i].bm25Score = bm25.Score(queryTerms, idx, candidates[i].match.Document.TokenCount, candidates[i].match.Document.Keywords)
	}

	// ids is already the vector-similarity ranking: applyFilter preserves
	// SimilaritySearch's descending-similarity order.
	vectorRanking := ids

	bm25Order := make([]int, len(candidates))
	for i := range bm25Order {
		bm25Order[i] = i
	}
	sort.SliceStable(bm25Order, func(i, j int) bool { return candidates[bm25Order[i]].bm25Score > candidates[bm25Order[j]].bm25Score })
	bm25Ranking := make([]string, len(bm25Order))
	for rank, idx := range bm25Order {
		bm25Ranking[rank] = ids[idx]
	}

	for i := range candidates {
		candidates[i].rrfScore = rrf.Score(ids[i], vectorRanking, bm25Ranking)
	}
	return nil
}

func (s *RetrieverService) applyRerank(ctx context.Context, query string, candidates []candidate) error {
	rcs := make([]reranker.Candidate, len(candidates))
	for i, c := range candidates {
		rcs[i] = reranker.Candidate{ChunkID: strconv.FormatInt(c.match.ChunkID, 10), Text: ""}
	}

	refs := make([]repository.ChunkRef, len(candidates))
	for i, c := range candidates {
		refs[i] = repository.ChunkRef{DocumentUUID: c.match.Document.UUID, ChunkIndex: c.match.ChunkIndex}
	}
	texts, err := s.objects.GetChunkTexts(ctx, refs)
	if err != nil {
		return err
	}
	for i := range candidates {
		candidates[i].text = texts[refs[i]]
		candidates[i].textKnown = true
		rcs[i].Text = candidates[i].text
	}

	results, err := s.rerank.Rerank(ctx, query, rcs)
	if err != nil {
		return err
	}

	byID := make(map[string]reranker.Result, len(results))
	for _, r := range results {
		byID[r.ChunkID] = r
	}
	for i := range candidates {
		r := byID[rcs[i].ChunkID]
		candidates[i].rerankRes = &r
	}
	return nil
}

// hydrate fetches chunk text for the final result set (full hydration —
// every returned result includes its text; there is no partial/lazy mode
// once a chunk has survived to the response). Candidates already hydrated
// during a rerank pass are not re-fetched.
func (s *RetrieverService) hydrate(ctx context.Context, candidates []candidate) ([]model.SearchResult, error) {
	var missingRefs []repository.ChunkRef
	var missingIdx []int
	for i, c := range candidates {
		if !c.textKnown {
			missingRefs = append(missingRefs, repository.ChunkRef{DocumentUUID: c.match.Document.UUID, ChunkIndex: c.match.ChunkIndex})
			missingIdx = append(missingIdx, i)
		}
	}
	if len(missingRefs) > 0 {
		texts, err := s.objects.GetChunkTexts(ctx, missingRefs)
		if err != nil {
			return nil, err
		}
		for j, i := range missingIdx {
			candidates[i].text = texts[missingRefs[j]]
		}
	}

	results := make([]model.SearchResult, len(candidates))
	for i, c := range candidates {
		r := model.SearchResult{
			ChunkText:        c.text,
			Similarity:       c.match.Similarity,
			Filename:         c.match.Document.Filename,
			ChunkIndex:       c.match.ChunkIndex,
			DocumentUUID:     c.match.Document.UUID,
			DocumentID:       c.match.DocumentID,
			Summary:          c.match.Document.Summary,
			DocumentMetadata: metadataMap(c.match.Document.Metadata),
		}
		if c.rerankRes != nil {
			score := c.rerankRes.Score
			reasoning := c.rerankRes.Reasoning
			r.RerankScore = &score
			r.RerankReasoning = &reasoning
		}
		results[i] = r
	}
	return results, nil
}

func useHybrid(b *bool) bool {
	return b == nil || *b
}

func metadataMap(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{}
	}
	return m
}
