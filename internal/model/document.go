package model

import (
	"encoding/json"
	"time"
)

// IndexStatus tracks a Document's position in the ingestion state machine (§4.13).
type IndexStatus string

const (
	IndexPending    IndexStatus = "pending"
	IndexProcessing IndexStatus = "processing"
	IndexIndexed    IndexStatus = "indexed"
	IndexFailed     IndexStatus = "failed"
)

// Document is the unit of ingestion. Chunk text is never stored here — only
// in the object store, keyed by UUID (see internal/repository.ObjectStore).
type Document struct {
	ID          int64           `json:"id"`
	UUID        string          `json:"uuid"`
	Filename    string          `json:"filename"`
	FileType    string          `json:"fileType"`
	FileSize    int64           `json:"fileSize"`
	ContentHash string          `json:"contentHash"`
	UploadedBy  string          `json:"uploadedBy"`
	UploadedAt  time.Time       `json:"uploadedAt"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Summary     *string         `json:"summary,omitempty"`
	Keywords    []string        `json:"keywords,omitempty"`
	TokenCount  int             `json:"tokenCount"`
	ChunkCount  int             `json:"chunkCount"`
	IndexStatus IndexStatus     `json:"indexStatus"`
}

// IngestEvent is the best-effort notification published after a document's
// chunks are durably committed to the vector store, for downstream
// reconciliation/GC sweep consumers (§4.13's atomicity note).
type IngestEvent struct {
	DocumentID   int64     `json:"documentId"`
	DocumentUUID string    `json:"documentUuid"`
	ChunkCount   int       `json:"chunkCount"`
	CommittedAt  time.Time `json:"committedAt"`
}

// Chunk is a retrievable unit within a Document. Its text lives in the
// object store at {uuid}/chunks/NNN.json — only the embedding is stored here.
type Chunk struct {
	ID         int64     `json:"id"`
	DocumentID int64     `json:"documentId"`
	ChunkIndex int       `json:"chunkIndex"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// EmbeddingDimensions is the fixed dense-vector width the store is provisioned for (I5).
const EmbeddingDimensions = 768

// ProtectedMetadataKeys names the document attributes an uploader cannot set
// via the free-form metadata map (I6). Attempts are silently overridden.
var ProtectedMetadataKeys = map[string]bool{
	"uploaded_by":  true,
	"uploaded_at":  true,
	"id":           true,
	"uuid":         true,
	"content_hash": true,
	"chunk_count":  true,
	"token_count":  true,
}

// ColumnFields names the document attributes that are first-class columns
// rather than entries in the user metadata map, for C7's field resolution.
var ColumnFields = map[string]bool{
	"uploaded_by": true,
	"filename":    true,
	"file_type":   true,
	"keywords":    true,
	"token_count": true,
	"chunk_count": true,
	"created_at":  true, // alias for uploaded_at
	"uploaded_at": true,
}

// SanitizeMetadata strips protected keys from user-supplied metadata and
// returns the cleaned map, ready to be merged with server-derived values.
func SanitizeMetadata(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	for k := range m {
		if ProtectedMetadataKeys[k] {
			delete(m, k)
		}
	}
	return m, nil
}
