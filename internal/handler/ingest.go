package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/connexus-ai/ragbox-backend/internal/middleware"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/ragerr"
)

const maxUploadBytes = 50 << 20 // 50MB; the validator applies no size limit of its own

// Ingester abstracts the ingestion orchestrator for the Upload operation.
type Ingester interface {
	Ingest(ctx context.Context, filename string, data []byte, uploadedBy string, metadata map[string]any) (*model.Document, bool, error)
}

// uploadResponse is the Upload operation's success payload (§6).
type uploadResponse struct {
	ID            int64  `json:"id"`
	UUID          string `json:"uuid"`
	Filename      string `json:"filename"`
	ChunksCreated int    `json:"chunks_created"`
	Message       string `json:"message"`
}

// Upload handles the Upload operation: raw file bytes plus a declared
// filename and optional metadata, via multipart form or a raw body with the
// filename carried in a header. Duplicate content is not an error (§7): it
// returns a 200 naming the document the content was first ingested under.
func Upload(ingester Ingester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename, metadata, data, err := parseUploadRequest(r)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, envelope{Success: false, Error: err.Error()})
			return
		}

		uploadedBy := middleware.UploadedByFromContext(r.Context())
		if uploadedBy == "" {
			uploadedBy = "unknown"
		}

		doc, deduped, err := ingester.Ingest(r.Context(), filename, data, uploadedBy, metadata)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ragerr.ErrUnsupportedFormat) || errors.Is(err, ragerr.ErrSignatureMismatch) || errors.Is(err, ragerr.ErrEmptyExtraction) {
				status = http.StatusBadRequest
			}
			respondJSON(w, status, envelope{Success: false, Error: err.Error()})
			return
		}

		resp := uploadResponse{
			ID:       doc.ID,
			UUID:     doc.UUID,
			Filename: doc.Filename,
			Message:  "ingested",
		}
		if deduped {
			resp.ChunksCreated = 0
			resp.Message = "duplicate content; already ingested as " + doc.Filename
		} else {
			resp.ChunksCreated = doc.ChunkCount
		}

		respondJSON(w, http.StatusOK, envelope{Success: true, Data: resp})
	}
}

func parseUploadRequest(r *http.Request) (filename string, metadata map[string]any, data []byte, err error) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return "", nil, nil, errors.New("could not parse multipart body")
		}
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			return "", nil, nil, errors.New("missing file field")
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
		if err != nil {
			return "", nil, nil, errors.New("could not read file contents")
		}
		if len(data) > maxUploadBytes {
			return "", nil, nil, errors.New("file exceeds size limit")
		}

		filename := r.FormValue("filename")
		if filename == "" {
			filename = header.Filename
		}
		if filename == "" {
			return "", nil, nil, errors.New("filename is required")
		}

		var meta map[string]any
		if m := r.FormValue("metadata"); m != "" {
			if jerr := json.Unmarshal([]byte(m), &meta); jerr != nil {
				return "", nil, nil, errors.New("metadata is not valid JSON")
			}
		}
		return filename, meta, data, nil
	}

	filename = r.Header.Get("X-Filename")
	if filename == "" {
		return "", nil, nil, errors.New("X-Filename header is required for raw uploads")
	}

	var meta map[string]any
	if m := r.Header.Get("X-Metadata"); m != "" {
		if jerr := json.Unmarshal([]byte(m), &meta); jerr != nil {
			return "", nil, nil, errors.New("X-Metadata header is not valid JSON")
		}
	}

	data, err = io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		return "", nil, nil, errors.New("could not read request body")
	}
	if len(data) > maxUploadBytes {
		return "", nil, nil, errors.New("file exceeds size limit")
	}
	if len(data) == 0 {
		return "", nil, nil, errors.New("request body is empty")
	}
	return filename, meta, data, nil
}
