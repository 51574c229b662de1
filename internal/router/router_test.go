package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/connexus-ai/ragbox-backend/internal/handler"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/repository"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

type mockDB struct{ err error }

func (m *mockDB) Ping(ctx context.Context) error { return m.err }

type mockObjects struct{ err error }

func (m *mockObjects) Ping(ctx context.Context, bucket string) error { return m.err }

type mockIngester struct{}

func (m *mockIngester) Ingest(ctx context.Context, filename string, data []byte, uploadedBy string, metadata map[string]any) (*model.Document, bool, error) {
	return &model.Document{ID: 1, UUID: "doc-uuid-1", Filename: filename, ChunkCount: 1}, false, nil
}

type mockRetriever struct{}

func (m *mockRetriever) Query(ctx context.Context, req model.QueryRequest) (*model.QueryResponse, error) {
	return &model.QueryResponse{Query: req.Query}, nil
}

type mockEmbedder struct{}

func (m *mockEmbedder) Embed(ctx context.Context, texts []string) ([]service.EmbeddedChunk, error) {
	chunks := make([]service.EmbeddedChunk, len(texts))
	for i, t := range texts {
		chunks[i] = service.EmbeddedChunk{Text: t, Embedding: make([]float32, model.EmbeddingDimensions)}
	}
	return chunks, nil
}

type mockDocRepo struct{}

func (m *mockDocRepo) GetByID(ctx context.Context, id int64) (*model.Document, error) {
	return nil, fmt.Errorf("not found")
}
func (m *mockDocRepo) GetByUUID(ctx context.Context, docUUID string) (*model.Document, error) {
	return nil, fmt.Errorf("not found")
}
func (m *mockDocRepo) GetByContentHash(ctx context.Context, hash string) (*model.Document, error) {
	return nil, fmt.Errorf("not found")
}
func (m *mockDocRepo) List(ctx context.Context, opts repository.ListOpts) ([]model.Document, int, error) {
	return []model.Document{}, 0, nil
}
func (m *mockDocRepo) DeleteDocument(ctx context.Context, id int64) error { return nil }

func newTestRouter() http.Handler {
	deps := &Dependencies{
		DB:          &mockDB{},
		Objects:     &mockObjects{},
		Bucket:      "test-bucket",
		FrontendURL: "http://localhost:3000",
		Version:     "0.2.0",
		Ingester:    &mockIngester{},
		Retriever:   &mockRetriever{},
		Embedder:    &mockEmbedder{},
		DocCRUD:     handler.DocCRUDDeps{Repo: &mockDocRepo{}},
	}
	return New(deps)
}

func TestHealth_IsPublic(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "healthy" {
		t.Errorf("status = %q, want %q", body["status"], "healthy")
	}
	if body["version"] != "0.2.0" {
		t.Errorf("version = %q, want %q", body["version"], "0.2.0")
	}
}

func TestHealth_DBDown(t *testing.T) {
	deps := &Dependencies{
		DB:          &mockDB{err: fmt.Errorf("connection refused")},
		Objects:     &mockObjects{},
		FrontendURL: "http://localhost:3000",
		Ingester:    &mockIngester{},
		Retriever:   &mockRetriever{},
		Embedder:    &mockEmbedder{},
		DocCRUD:     handler.DocCRUDDeps{Repo: &mockDocRepo{}},
	}
	r := New(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["database"] != "disconnected" {
		t.Errorf("database = %q, want %q", body["database"], "disconnected")
	}
}

func TestDocuments_ListOK(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestQuery_OK(t *testing.T) {
	r := newTestRouter()

	body, _ := json.Marshal(model.QueryRequest{Query: "hello"})
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestEmbed_OK(t *testing.T) {
	r := newTestRouter()

	body, _ := json.Marshal(map[string]string{"text": "hello"})
	req := httptest.NewRequest(http.MethodPost, "/api/embed", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestUnknownRoute_Returns404(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/nonexistent", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["success"] != false {
		t.Error("expected success=false for 404")
	}
}
