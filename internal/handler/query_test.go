package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/ragerr"
)

type stubRetriever struct {
	resp *model.QueryResponse
	err  error
}

func (s *stubRetriever) Query(ctx context.Context, req model.QueryRequest) (*model.QueryResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func TestQuery_Success(t *testing.T) {
	ret := &stubRetriever{resp: &model.QueryResponse{Query: "confidentiality", Total: 1, Results: []model.SearchResult{
		{ChunkText: "the parties agree", Similarity: 0.9},
	}}}
	h := Query(ret)

	body, _ := json.Marshal(model.QueryRequest{Query: "confidentiality"})
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestQuery_MissingQueryField(t *testing.T) {
	h := Query(&stubRetriever{})

	body, _ := json.Marshal(map[string]any{})
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuery_InvalidFilterIsBadRequest(t *testing.T) {
	ret := &stubRetriever{err: fmt.Errorf("service.Query: %w", ragerr.ErrInvalidFilter)}
	h := Query(ret)

	body, _ := json.Marshal(model.QueryRequest{Query: "x"})
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuery_StoreUnavailableIsInternalError(t *testing.T) {
	ret := &stubRetriever{err: fmt.Errorf("service.Query: %w", ragerr.ErrStoreUnavailable)}
	h := Query(ret)

	body, _ := json.Marshal(model.QueryRequest{Query: "x"})
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestQuery_MalformedBody(t *testing.T) {
	h := Query(&stubRetriever{})

	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
