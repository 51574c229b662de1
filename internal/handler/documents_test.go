package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/ragerr"
	"github.com/connexus-ai/ragbox-backend/internal/repository"
)

// withChiParam adds chi URL params to the request context.
func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

type stubDocRepo struct {
	byID     map[int64]*model.Document
	byUUID   map[string]*model.Document
	byHash   map[string]*model.Document
	listDocs []model.Document
	listErr  error
	deleted  []int64
	delErr   error
}

func newStubDocRepo() *stubDocRepo {
	return &stubDocRepo{byID: map[int64]*model.Document{}, byUUID: map[string]*model.Document{}, byHash: map[string]*model.Document{}}
}

func (s *stubDocRepo) GetByID(ctx context.Context, id int64) (*model.Document, error) {
	if d, ok := s.byID[id]; ok {
		return d, nil
	}
	return nil, ragerr.ErrNotFound
}

func (s *stubDocRepo) GetByUUID(ctx context.Context, docUUID string) (*model.Document, error) {
	if d, ok := s.byUUID[docUUID]; ok {
		return d, nil
	}
	return nil, ragerr.ErrNotFound
}

func (s *stubDocRepo) GetByContentHash(ctx context.Context, hash string) (*model.Document, error) {
	if d, ok := s.byHash[hash]; ok {
		return d, nil
	}
	return nil, ragerr.ErrNotFound
}

func (s *stubDocRepo) List(ctx context.Context, opts repository.ListOpts) ([]model.Document, int, error) {
	if s.listErr != nil {
		return nil, 0, s.listErr
	}
	return s.listDocs, len(s.listDocs), nil
}

func (s *stubDocRepo) DeleteDocument(ctx context.Context, id int64) error {
	if s.delErr != nil {
		return s.delErr
	}
	s.deleted = append(s.deleted, id)
	delete(s.byID, id)
	return nil
}

type stubBlobDeleter struct {
	deletedUUID string
	err         error
}

func (s *stubBlobDeleter) DeleteAll(ctx context.Context, docUUID string) error {
	s.deletedUUID = docUUID
	return s.err
}

type stubAuditLogger struct {
	events []string
}

func (s *stubAuditLogger) Log(ctx context.Context, event string, fields map[string]any) {
	s.events = append(s.events, event)
}

func TestListDocuments_Success(t *testing.T) {
	repo := newStubDocRepo()
	repo.listDocs = []model.Document{
		{ID: 1, UUID: "u1", Filename: "a.txt", ChunkCount: 2, UploadedAt: time.Now()},
		{ID: 2, UUID: "u2", Filename: "b.txt", ChunkCount: 4, UploadedAt: time.Now()},
	}
	h := ListDocuments(DocCRUDDeps{Repo: repo})

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestGetDocument_ByID(t *testing.T) {
	repo := newStubDocRepo()
	repo.byID[1] = &model.Document{ID: 1, UUID: "u1", Filename: "a.txt"}
	h := GetDocument(DocCRUDDeps{Repo: repo})

	req := httptest.NewRequest(http.MethodGet, "/api/documents/1", nil)
	req = withChiParam(req, "id", "1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetDocument_ByUUID(t *testing.T) {
	const docUUID = "11111111-1111-1111-1111-111111111111"
	repo := newStubDocRepo()
	repo.byUUID[docUUID] = &model.Document{ID: 1, UUID: docUUID, Filename: "a.txt"}
	h := GetDocument(DocCRUDDeps{Repo: repo})

	req := httptest.NewRequest(http.MethodGet, "/api/documents/"+docUUID, nil)
	req = withChiParam(req, "id", docUUID)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetDocument_NotFound(t *testing.T) {
	repo := newStubDocRepo()
	h := GetDocument(DocCRUDDeps{Repo: repo})

	req := httptest.NewRequest(http.MethodGet, "/api/documents/missing", nil)
	req = withChiParam(req, "id", "missing")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteByID_Success(t *testing.T) {
	repo := newStubDocRepo()
	repo.byID[1] = &model.Document{ID: 1, UUID: "doc-uuid-1", Filename: "a.txt", ChunkCount: 3}
	objects := &stubBlobDeleter{}
	audit := &stubAuditLogger{}
	h := DeleteByID(DocCRUDDeps{Repo: repo, Objects: objects, Audit: audit})

	req := httptest.NewRequest(http.MethodDelete, "/api/documents/1", nil)
	req = withChiParam(req, "id", "1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, repo.deleted, int64(1))
	assert.Equal(t, "doc-uuid-1", objects.deletedUUID)
	assert.Contains(t, audit.events, model.AuditDocumentDeleted)

	var resp envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(3), data["chunks_deleted"])
}

func TestDeleteByID_NotFound(t *testing.T) {
	repo := newStubDocRepo()
	h := DeleteByID(DocCRUDDeps{Repo: repo})

	req := httptest.NewRequest(http.MethodDelete, "/api/documents/99", nil)
	req = withChiParam(req, "id", "99")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteByContentHash_Success(t *testing.T) {
	repo := newStubDocRepo()
	repo.byHash["hash123"] = &model.Document{ID: 5, UUID: "doc-uuid-5", ChunkCount: 1}
	h := DeleteByContentHash(DocCRUDDeps{Repo: repo, Objects: &stubBlobDeleter{}})

	req := httptest.NewRequest(http.MethodDelete, "/api/documents/by-hash/hash123", nil)
	req = withChiParam(req, "hash", "hash123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, repo.deleted, int64(5))
}

func TestDeleteByContentHash_NotFound(t *testing.T) {
	repo := newStubDocRepo()
	h := DeleteByContentHash(DocCRUDDeps{Repo: repo})

	req := httptest.NewRequest(http.MethodDelete, "/api/documents/by-hash/missing", nil)
	req = withChiParam(req, "hash", "missing")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
