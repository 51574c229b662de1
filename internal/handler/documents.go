package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/ragerr"
	"github.com/connexus-ai/ragbox-backend/internal/repository"
)

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// AuditLogger is the subset of service.AuditLogger the handler layer needs.
type AuditLogger interface {
	Log(ctx context.Context, event string, fields map[string]any)
}

// DocRepo abstracts the vector store's document CRUD surface for the
// handler layer.
type DocRepo interface {
	GetByID(ctx context.Context, id int64) (*model.Document, error)
	GetByUUID(ctx context.Context, docUUID string) (*model.Document, error)
	GetByContentHash(ctx context.Context, hash string) (*model.Document, error)
	List(ctx context.Context, opts repository.ListOpts) ([]model.Document, int, error)
	DeleteDocument(ctx context.Context, id int64) error
}

// BlobDeleter abstracts object-store cleanup of a document's cold-tier blobs.
type BlobDeleter interface {
	DeleteAll(ctx context.Context, docUUID string) error
}

// DocCRUDDeps bundles dependencies for the document CRUD handlers.
type DocCRUDDeps struct {
	Repo    DocRepo
	Objects BlobDeleter
	Audit   AuditLogger
}

// documentListItem is one entry of the List documents response (§6).
type documentListItem struct {
	ID          int64             `json:"id"`
	UUID        string            `json:"uuid"`
	Filename    string            `json:"filename"`
	ChunkCount  int               `json:"chunk_count"`
	UploadedAt  string            `json:"uploaded_at"`
	Summary     *string           `json:"summary,omitempty"`
	Keywords    []string          `json:"keywords,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	IndexStatus model.IndexStatus `json:"index_status"`
}

func toListItem(d model.Document) documentListItem {
	return documentListItem{
		ID:          d.ID,
		UUID:        d.UUID,
		Filename:    d.Filename,
		ChunkCount:  d.ChunkCount,
		UploadedAt:  d.UploadedAt.Format("2006-01-02T15:04:05Z07:00"),
		Summary:     d.Summary,
		Keywords:    d.Keywords,
		Metadata:    metadataMap(d.Metadata),
		IndexStatus: d.IndexStatus,
	}
}

func metadataMap(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

const maxListLimit = 200

// ListDocuments handles the List documents operation (§6): an optional
// limit/offset filter, newest first.
func ListDocuments(deps DocCRUDDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := repository.ListOpts{Limit: 20}
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				opts.Limit = n
			}
		}
		if opts.Limit > maxListLimit {
			opts.Limit = maxListLimit
		}
		if v := r.URL.Query().Get("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				opts.Offset = n
			}
		}

		docs, total, err := deps.Repo.List(r.Context(), opts)
		if err != nil {
			respondJSON(w, http.StatusInternalServerError, envelope{Success: false, Error: "failed to list documents"})
			return
		}

		items := make([]documentListItem, len(docs))
		for i, d := range docs {
			items[i] = toListItem(d)
		}

		respondJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]any{
			"documents": items,
			"total":     total,
		}})
	}
}

// GetDocument handles the Get document operation (§6): lookup by numeric id
// or by uuid, whichever the {id} path segment parses as.
func GetDocument(deps DocCRUDDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idParam := chi.URLParam(r, "id")
		doc, err := lookupDocument(r.Context(), deps.Repo, idParam)
		if err != nil {
			respondJSON(w, http.StatusNotFound, envelope{Success: false, Error: "document not found"})
			return
		}
		respondJSON(w, http.StatusOK, envelope{Success: true, Data: doc})
	}
}

// DeleteByID handles the Delete by id operation (§6).
func DeleteByID(deps DocCRUDDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idParam := chi.URLParam(r, "id")
		id, err := strconv.ParseInt(idParam, 10, 64)
		if err != nil {
			respondJSON(w, http.StatusNotFound, envelope{Success: false, Error: "document not found"})
			return
		}

		doc, err := deps.Repo.GetByID(r.Context(), id)
		if err != nil {
			respondJSON(w, http.StatusNotFound, envelope{Success: false, Error: "document not found"})
			return
		}

		deleteDocument(w, r, deps, doc)
	}
}

// DeleteByContentHash handles the Delete by content-hash operation (§6).
func DeleteByContentHash(deps DocCRUDDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hash := chi.URLParam(r, "hash")
		if hash == "" {
			respondJSON(w, http.StatusNotFound, envelope{Success: false, Error: "document not found"})
			return
		}

		doc, err := deps.Repo.GetByContentHash(r.Context(), hash)
		if err != nil {
			respondJSON(w, http.StatusNotFound, envelope{Success: false, Error: "document not found"})
			return
		}

		deleteDocument(w, r, deps, doc)
	}
}

func deleteDocument(w http.ResponseWriter, r *http.Request, deps DocCRUDDeps, doc *model.Document) {
	if err := deps.Repo.DeleteDocument(r.Context(), doc.ID); err != nil {
		respondJSON(w, http.StatusInternalServerError, envelope{Success: false, Error: "failed to delete document"})
		return
	}
	if deps.Objects != nil {
		if err := deps.Objects.DeleteAll(r.Context(), doc.UUID); err != nil && deps.Audit != nil {
			// The hot-tier row is already gone; a stranded blob is a
			// reconciliation-sweep concern, not a reason to fail the request.
			deps.Audit.Log(r.Context(), "document.blob_cleanup_failed", map[string]any{
				"document_id": doc.ID, "uuid": doc.UUID, "error": err.Error(),
			})
		}
	}
	if deps.Audit != nil {
		deps.Audit.Log(r.Context(), model.AuditDocumentDeleted, map[string]any{
			"document_id": doc.ID, "uuid": doc.UUID, "filename": doc.Filename,
		})
	}

	respondJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]any{
		"deleted":        true,
		"chunks_deleted": doc.ChunkCount,
	}})
}

func lookupDocument(ctx context.Context, repo DocRepo, idParam string) (*model.Document, error) {
	if id, err := strconv.ParseInt(idParam, 10, 64); err == nil {
		return repo.GetByID(ctx, id)
	}
	if !validateUUID(idParam) {
		return nil, ragerr.ErrNotFound
	}
	return repo.GetByUUID(ctx, idParam)
}
