package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/ragerr"
)

// Retriever abstracts the query orchestrator for the Query operation.
type Retriever interface {
	Query(ctx context.Context, req model.QueryRequest) (*model.QueryResponse, error)
}

// Query handles the Query operation (§6): a filtered, optionally
// hybrid/reranked similarity search over ingested chunks.
func Query(retriever Retriever) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "invalid request body"})
			return
		}
		if req.Query == "" {
			respondJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "query is required"})
			return
		}

		resp, err := retriever.Query(r.Context(), req)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ragerr.ErrInvalidFilter) {
				status = http.StatusBadRequest
			}
			respondJSON(w, status, envelope{Success: false, Error: err.Error()})
			return
		}

		respondJSON(w, http.StatusOK, envelope{Success: true, Data: resp})
	}
}
