package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// Embedder abstracts the embedding pass for the standalone Embed operation.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([]service.EmbeddedChunk, error)
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Dimension int        `json:"dimension"`
}

// Embed handles the Embed operation (§6): embeds a single piece of text and
// returns its dense vector, using the same embedder (and so the same
// normalization and token-limit handling) as ingestion.
func Embed(embedder Embedder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
			respondJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "text is required"})
			return
		}

		chunks, err := embedder.Embed(r.Context(), []string{req.Text})
		if err != nil {
			respondJSON(w, http.StatusInternalServerError, envelope{Success: false, Error: err.Error()})
			return
		}
		if len(chunks) != 1 {
			respondJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "text is too large to embed as a single vector"})
			return
		}
		if len(chunks[0].Embedding) != model.EmbeddingDimensions {
			respondJSON(w, http.StatusInternalServerError, envelope{Success: false, Error: "embedding backend returned an unexpected vector size"})
			return
		}

		respondJSON(w, http.StatusOK, envelope{Success: true, Data: embedResponse{
			Embedding: chunks[0].Embedding,
			Dimension: len(chunks[0].Embedding),
		}})
	}
}
