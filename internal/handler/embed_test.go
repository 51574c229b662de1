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
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

type stubEmbedder struct {
	chunks []service.EmbeddedChunk
	err    error
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([]service.EmbeddedChunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.chunks, nil
}

func TestEmbed_Success(t *testing.T) {
	vec := make([]float32, model.EmbeddingDimensions)
	vec[0] = 0.5
	h := Embed(&stubEmbedder{chunks: []service.EmbeddedChunk{{Text: "hello", Embedding: vec}}})

	body, _ := json.Marshal(map[string]string{"text": "hello"})
	req := httptest.NewRequest(http.MethodPost, "/api/embed", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(model.EmbeddingDimensions), data["dimension"])
}

func TestEmbed_MissingText(t *testing.T) {
	h := Embed(&stubEmbedder{})

	body, _ := json.Marshal(map[string]string{})
	req := httptest.NewRequest(http.MethodPost, "/api/embed", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEmbed_BackendError(t *testing.T) {
	h := Embed(&stubEmbedder{err: fmt.Errorf("embedding backend unavailable")})

	body, _ := json.Marshal(map[string]string{"text": "hello"})
	req := httptest.NewRequest(http.MethodPost, "/api/embed", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestEmbed_SplitTextRejected(t *testing.T) {
	vec := make([]float32, model.EmbeddingDimensions)
	h := Embed(&stubEmbedder{chunks: []service.EmbeddedChunk{{Embedding: vec}, {Embedding: vec}}})

	body, _ := json.Marshal(map[string]string{"text": "a very long document"})
	req := httptest.NewRequest(http.MethodPost, "/api/embed", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
