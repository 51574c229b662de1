package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/connexus-ai/ragbox-backend/internal/gcpclient"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/ragerr"
	"golang.org/x/sync/semaphore"
)

// defaultEmbedConcurrency is the bounded-parallelism cap over chunks (§4.5).
const defaultEmbedConcurrency = 10

// maxSplitDepth caps the token-limit recovery recursion (§4.5).
const maxSplitDepth = 3

// EmbeddingClient abstracts a single-call embedding backend. EmbedTexts is
// called with exactly one text per invocation so a token-limit error always
// names the chunk that triggered it.
type EmbeddingClient interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddedChunk pairs a (possibly split) chunk's text with its embedding.
// After Embed returns, indices are contiguous from 0 — they need not match
// the caller's original chunk count, since a token-limit split grows it.
type EmbeddedChunk struct {
	Text      string
	Embedding []float32
}

// EmbedderService implements C5: bounded-parallel embedding with
// token-limit recovery by recursive semantic splitting.
type EmbedderService struct {
	client EmbeddingClient
	sem    *semaphore.Weighted
}

// NewEmbedderService creates an EmbedderService with the default
// concurrency cap (10).
func NewEmbedderService(client EmbeddingClient) *EmbedderService {
	return &EmbedderService{client: client, sem: semaphore.NewWeighted(defaultEmbedConcurrency)}
}

// Embed produces one embedding per input text under bounded parallelism.
// A text that triggers a token-limit error is split and recursed on rather
// than dropped or averaged; the returned slice is therefore not guaranteed
// to be the same length as texts, and callers MUST treat it as the
// authoritative, contiguously-indexed chunk list going forward.
func (s *EmbedderService) Embed(ctx context.Context, texts []string) ([]EmbeddedChunk, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("service.Embed: no texts provided")
	}

	results := make([][]EmbeddedChunk, len(texts))
	errs := make([]error, len(texts))

	g := newBoundedGroup(ctx, s.sem)
	for i, text := range texts {
		i, text := i, text
		g.Go(func(ctx context.Context) error {
			out, err := s.embedOne(ctx, text, 0)
			results[i] = out
			errs[i] = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("service.Embed: %w", err)
	}

	var out []EmbeddedChunk
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("service.Embed: chunk %d: %w", i, err)
		}
		out = append(out, results[i]...)
	}

	for i := range out {
		if len(out[i].Embedding) != model.EmbeddingDimensions {
			return nil, fmt.Errorf("service.Embed: vector %d has %d dimensions, want %d: %w",
				i, len(out[i].Embedding), model.EmbeddingDimensions, ragerr.ErrEmbeddingFailed)
		}
	}
	return out, nil
}

// embedOne embeds a single text, recursing on token-limit errors up to
// maxSplitDepth. On success it returns exactly one EmbeddedChunk; on a
// recursive split it returns the concatenation of its sub-chunks' results.
func (s *EmbedderService) embedOne(ctx context.Context, text string, depth int) ([]EmbeddedChunk, error) {
	vectors, err := s.client.EmbedTexts(ctx, []string{text})
	if err == nil {
		return []EmbeddedChunk{{Text: text, Embedding: l2Normalize(vectors[0])}}, nil
	}

	if !isTokenLimitError(err) {
		return nil, fmt.Errorf("%w: %v", ragerr.ErrEmbeddingFailed, err)
	}
	if depth >= maxSplitDepth {
		return nil, fmt.Errorf("service.embedOne: token-limit split exhausted at depth %d: %w", depth, ragerr.ErrEmbeddingFailed)
	}

	subTexts := splitAtBoundary(text)
	if len(subTexts) < 2 {
		return nil, fmt.Errorf("service.embedOne: text too dense to split further: %w", ragerr.ErrEmbeddingFailed)
	}

	var out []EmbeddedChunk
	for _, sub := range subTexts {
		subResults, err := s.embedOne(ctx, sub, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, subResults...)
	}
	return out, nil
}

func isTokenLimitError(err error) bool {
	return errors.Is(err, gcpclient.ErrTokenLimit)
}

var (
	splitSentenceRe = regexp.MustCompile(`(?:[.?!])\s+`)
)

// splitAtBoundary splits text at the best available semantic boundary:
// paragraph, then sentence, then whitespace word boundary.
func splitAtBoundary(text string) []string {
	if parts := splitNonEmpty(text, "\n\n"); len(parts) >= 2 {
		return parts
	}
	if idx := splitSentenceRe.FindStringIndex(text); idx != nil {
		mid := idx[1]
		return []string{strings.TrimSpace(text[:mid]), strings.TrimSpace(text[mid:])}
	}
	if parts := strings.Fields(text); len(parts) >= 2 {
		mid := len(parts) / 2
		return []string{strings.Join(parts[:mid], " "), strings.Join(parts[mid:], " ")}
	}
	return nil
}

func splitNonEmpty(text, sep string) []string {
	var out []string
	for _, p := range strings.Split(text, sep) {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// l2Normalize normalizes a vector to unit length (L2 norm = 1).
func l2Normalize(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return vec
	}
	result := make([]float32, len(vec))
	for i, v := range vec {
		result[i] = float32(float64(v) / norm)
	}
	return result
}
