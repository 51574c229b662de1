// Package reranker implements C12: an LLM-judge reranking pass over a
// candidate set of chunks. Candidates are batched and scored concurrently;
// a batch that fails to produce a usable verdict falls through to a
// zero score rather than aborting the whole rerank.
package reranker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	defaultBatchSize   = 2
	defaultConcurrency = 10
)

// GenAIClient abstracts the LLM call the reranker judges with.
type GenAIClient interface {
	GenerateContent(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Candidate is one chunk competing for a rerank score.
type Candidate struct {
	ChunkID string
	Text    string
}

// Result is a candidate's rerank verdict. Reasoning is empty when the
// judge call failed for the candidate's batch.
type Result struct {
	ChunkID   string
	Score     float64
	Reasoning string
}

// Reranker scores candidates against a query using an LLM judge.
type Reranker struct {
	client    GenAIClient
	sem       *semaphore.Weighted
	batchSize int
}

// New builds a Reranker. concurrency bounds how many batches are in flight
// at once; batchSize bounds how many candidates are judged per LLM call.
// Non-positive values fall back to the §5 defaults (10 concurrent, batch 2).
func New(client GenAIClient, concurrency, batchSize int) *Reranker {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Reranker{
		client:    client,
		sem:       semaphore.NewWeighted(int64(concurrency)),
		batchSize: batchSize,
	}
}

// Rerank judges every candidate against query, returning one Result per
// candidate in the same order as the input. A batch whose judge call or
// response parsing fails yields zero-score, reasoning-less results for
// that batch only — it never aborts the remaining batches.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]Result, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = Result{ChunkID: c.ChunkID}
	}

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(candidates); start += r.batchSize {
		end := min(start+r.batchSize, len(candidates))
		batch := candidates[start:end]
		offset := start

		if err := r.sem.Acquire(gctx, 1); err != nil {
			return results, fmt.Errorf("reranker.Rerank: acquire: %w", err)
		}
		g.Go(func() error {
			defer r.sem.Release(1)
			verdicts, err := r.judgeBatch(gctx, query, batch)
			if err != nil {
				slog.Warn("reranker: batch judge failed, falling through to zero score",
					"error", err, "batch_offset", offset, "batch_size", len(batch))
				return nil
			}
			for i, v := range verdicts {
				if i >= len(batch) {
					break
				}
				results[offset+i] = Result{ChunkID: batch[i].ChunkID, Score: v.Score, Reasoning: v.Reasoning}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("reranker.Rerank: %w", err)
	}
	return results, nil
}

type verdict struct {
	Index     int     `json:"index_in_batch"`
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// judgeBatch invokes the LLM once for a batch and returns one verdict per
// candidate, ordered to match batch.
func (r *Reranker) judgeBatch(ctx context.Context, query string, batch []Candidate) ([]verdict, error) {
	prompt := buildPrompt(query, batch)
	raw, err := r.client.GenerateContent(ctx, rerankSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("reranker.judgeBatch: generate: %w", err)
	}

	var parsed []verdict
	if err := json.Unmarshal([]byte(extractJSONArray(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("reranker.judgeBatch: decode: %w", err)
	}

	ordered := make([]verdict, len(batch))
	for _, v := range parsed {
		if v.Index < 0 || v.Index >= len(batch) {
			continue
		}
		ordered[v.Index] = v
	}
	return ordered, nil
}

const rerankSystemPrompt = `You are judging how relevant each candidate passage is to a search query.
Score each candidate from 0.0 (irrelevant) to 1.0 (directly answers the query).
Respond with ONLY a JSON array, one object per candidate, each with the keys
"index_in_batch", "score", and "reasoning". Do not include any other text.`

func buildPrompt(query string, batch []Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nCandidates:\n", query)
	for i, c := range batch {
		fmt.Fprintf(&b, "[%d] %s\n\n", i, c.Text)
	}
	return b.String()
}

var jsonArrayPattern = regexp.MustCompile(`(?s)\[.*\]`)

// extractJSONArray strips markdown code fences and surrounding prose the
// model sometimes wraps the JSON array in.
func extractJSONArray(s string) string {
	if m := jsonArrayPattern.FindString(s); m != "" {
		return m
	}
	return s
}
