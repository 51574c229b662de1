package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/ragerr"
)

type stubIngester struct {
	doc     *model.Document
	deduped bool
	err     error

	gotFilename   string
	gotUploadedBy string
	gotMetadata   map[string]any
}

func (s *stubIngester) Ingest(ctx context.Context, filename string, data []byte, uploadedBy string, metadata map[string]any) (*model.Document, bool, error) {
	s.gotFilename = filename
	s.gotUploadedBy = uploadedBy
	s.gotMetadata = metadata
	if s.err != nil {
		return nil, false, s.err
	}
	return s.doc, s.deduped, nil
}

func multipartUpload(t *testing.T, filename string, body []byte, metadata string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	if metadata != "" {
		require.NoError(t, w.WriteField("metadata", metadata))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUpload_Success(t *testing.T) {
	ing := &stubIngester{doc: &model.Document{ID: 1, UUID: "doc-uuid-1", Filename: "report.txt", ChunkCount: 3}}
	h := Upload(ing)

	req := multipartUpload(t, "report.txt", []byte("document body"), `{"team":"legal"}`)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "report.txt", ing.gotFilename)
	assert.Equal(t, "legal", ing.gotMetadata["team"])
}

func TestUpload_Deduped(t *testing.T) {
	ing := &stubIngester{doc: &model.Document{ID: 1, UUID: "doc-uuid-1", Filename: "original.txt", ChunkCount: 5}, deduped: true}
	h := Upload(ing)

	req := multipartUpload(t, "copy.txt", []byte("same body"), "")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(0), data["chunks_created"])
	assert.Contains(t, data["message"], "original.txt")
}

func TestUpload_MissingFile(t *testing.T) {
	h := Upload(&stubIngester{})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/documents", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_ValidationErrorIsBadRequest(t *testing.T) {
	ing := &stubIngester{err: fmt.Errorf("pipeline.Ingest: %w", ragerr.ErrUnsupportedFormat)}
	h := Upload(ing)

	req := multipartUpload(t, "malware.exe", []byte("x"), "")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_IngestionErrorIsInternalError(t *testing.T) {
	ing := &stubIngester{err: fmt.Errorf("pipeline.Ingest: %w", ragerr.ErrStoreUnavailable)}
	h := Upload(ing)

	req := multipartUpload(t, "report.txt", []byte("x"), "")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestUpload_RawBodyRequiresFilenameHeader(t *testing.T) {
	h := Upload(&stubIngester{})

	req := httptest.NewRequest(http.MethodPost, "/api/documents", bytes.NewReader([]byte("raw bytes")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_RawBodySuccess(t *testing.T) {
	ing := &stubIngester{doc: &model.Document{ID: 2, UUID: "doc-uuid-2", Filename: "notes.md", ChunkCount: 1}}
	h := Upload(ing)

	req := httptest.NewRequest(http.MethodPost, "/api/documents", bytes.NewReader([]byte("raw bytes")))
	req.Header.Set("X-Filename", "notes.md")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "notes.md", ing.gotFilename)
}
