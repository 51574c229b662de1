package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/connexus-ai/ragbox-backend/internal/gcpclient"
)

// LLMExtractionClient abstracts the generative model call C6 retries over.
type LLMExtractionClient interface {
	GenerateContent(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// LLMExtraction is the summary/keyword pair C6 produces for a document.
// Both fields are the zero value after exhausted retries — extraction
// degradation is non-fatal to ingestion.
type LLMExtraction struct {
	Summary  string
	Keywords []string
}

// LLMExtractorService runs C6: one generative call per document asking for
// a short summary and a keyword list, retried on transient failure.
type LLMExtractorService struct {
	client LLMExtractionClient
}

// NewLLMExtractorService builds an LLMExtractorService.
func NewLLMExtractorService(client LLMExtractionClient) *LLMExtractorService {
	return &LLMExtractorService{client: client}
}

const llmExtractSystemPrompt = `You summarize documents for a search index.
Respond with ONLY a JSON object with exactly two keys: "summary" (a concise
one-paragraph summary) and "keywords" (an array of 5-10 short keyword
strings). Do not include any other text.`

type extractionPayload struct {
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

// transientHTTPStatus pulls a 3-digit status code out of an error message,
// as produced by gcpclient's "status %d: ..." wrapping.
var transientHTTPStatus = regexp.MustCompile(`status (\d{3})`)

// Extract summarizes text and pulls keywords, retrying up to 5 times on
// the 1/2/4/8/16s schedule for both transient HTTP failures and malformed
// responses. On exhaustion it degrades gracefully to an empty extraction
// rather than failing ingestion.
func (s *LLMExtractorService) Extract(ctx context.Context, text string) LLMExtraction {
	result, err := gcpclient.WithExtractionRetry(ctx, "LLMExtract", shouldRetryExtraction, func() (extractionPayload, error) {
		raw, err := s.client.GenerateContent(ctx, llmExtractSystemPrompt, text)
		if err != nil {
			return extractionPayload{}, fmt.Errorf("llmextract: generate: %w", err)
		}
		var payload extractionPayload
		if jsonErr := json.Unmarshal([]byte(extractJSONObject(raw)), &payload); jsonErr != nil {
			return extractionPayload{}, fmt.Errorf("llmextract: decode: %w", jsonErr)
		}
		if payload.Summary == "" || len(payload.Keywords) == 0 {
			return extractionPayload{}, fmt.Errorf("llmextract: missing required field in response")
		}
		return payload, nil
	})
	if err != nil {
		slog.Warn("llm extraction degraded after exhausting retries", "error", err)
		return LLMExtraction{}
	}
	return LLMExtraction{Summary: result.Summary, Keywords: result.Keywords}
}

// shouldRetryExtraction reports whether err warrants another attempt: any
// transient HTTP status (429/500/503/504) or a malformed/missing-field
// response, which are the two failure classes §4.6 retries on.
func shouldRetryExtraction(err error) bool {
	if err == nil {
		return false
	}
	if m := transientHTTPStatus.FindStringSubmatch(err.Error()); m != nil {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil {
			return gcpclient.IsTransientStatus(code)
		}
	}
	return strings.Contains(err.Error(), "decode") || strings.Contains(err.Error(), "missing required field")
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

func extractJSONObject(s string) string {
	if m := jsonObjectPattern.FindString(s); m != "" {
		return m
	}
	return s
}
