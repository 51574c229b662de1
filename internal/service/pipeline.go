package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/connexus-ai/ragbox-backend/internal/bm25"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/ragerr"
	"github.com/connexus-ai/ragbox-backend/internal/repository"
	"github.com/connexus-ai/ragbox-backend/internal/tokenizer"
	"github.com/connexus-ai/ragbox-backend/internal/validator"
)

// DocumentValidator abstracts C2's three-tier admission check.
type DocumentValidator interface {
	Validate(ctx context.Context, filename string, data []byte) (*validator.Result, error)
}

// TextChunker abstracts C4's chunking pass.
type TextChunker interface {
	Chunk(text string) ([]TextChunk, error)
}

// ChunkEmbedder abstracts C5's bounded-parallel embedding pass.
type ChunkEmbedder interface {
	Embed(ctx context.Context, texts []string) ([]EmbeddedChunk, error)
}

// DocumentExtractor abstracts C6's summary/keyword extraction.
type DocumentExtractor interface {
	Extract(ctx context.Context, text string) LLMExtraction
}

// DocumentVectorStore abstracts the C8 calls the orchestrator needs.
type DocumentVectorStore interface {
	CreateDocument(ctx context.Context, doc *model.Document) (int64, error)
	GetByContentHash(ctx context.Context, hash string) (*model.Document, error)
	UpdateStatus(ctx context.Context, id int64, status model.IndexStatus) error
	UpdateExtraction(ctx context.Context, id int64, tokenCount int, summary *string, keywords []string) error
	UpdateChunkCount(ctx context.Context, id int64, count int) error
	InsertChunks(ctx context.Context, documentID int64, vectors [][]float32) error
	DeleteDocument(ctx context.Context, id int64) error
}

// DocumentObjectStore abstracts the C9 calls the orchestrator needs.
type DocumentObjectStore interface {
	PutOriginal(ctx context.Context, docUUID string, data []byte, contentType string) error
	PutExtracted(ctx context.Context, docUUID, text string) error
	PutChunks(ctx context.Context, docUUID string, chunks []repository.ChunkBlob) error
	PutBM25Index(ctx context.Context, docUUID string, idx bm25.DocIndex) error
	DeleteAll(ctx context.Context, docUUID string) error
}

// AuditLogger abstracts the structured audit trail written at each
// ingestion outcome.
type AuditLogger interface {
	Log(ctx context.Context, event string, fields map[string]any)
}

// EventPublisher abstracts the Pub/Sub topic an ingestion.committed event is
// published to. A nil EventPublisher disables publishing entirely; Publish
// itself is expected to be best-effort (log-and-drop on failure), since a
// broken topic must never fail or delay ingestion.
type EventPublisher interface {
	Publish(ctx context.Context, event model.IngestEvent)
}

var (
	processingMu sync.Mutex
	processing   = make(map[string]bool)
)

// PipelineService runs C13: the ingestion state machine of §4.13, from a
// raw upload through to a committed, queryable document — or a fully
// unwound failure.
type PipelineService struct {
	vectorStore DocumentVectorStore
	objectStore DocumentObjectStore
	validator   DocumentValidator
	chunker     TextChunker
	embedder    ChunkEmbedder
	extractor   DocumentExtractor
	audit       AuditLogger
	events      EventPublisher // nil disables publishing
}

// NewPipelineService wires C13 over its component dependencies. events may be
// nil to disable the Pub/Sub notification entirely.
func NewPipelineService(
	vectorStore DocumentVectorStore,
	objectStore DocumentObjectStore,
	v DocumentValidator,
	chunker TextChunker,
	embedder ChunkEmbedder,
	extractor DocumentExtractor,
	audit AuditLogger,
	events EventPublisher,
) *PipelineService {
	return &PipelineService{
		vectorStore: vectorStore,
		objectStore: objectStore,
		validator:   v,
		chunker:     chunker,
		embedder:    embedder,
		extractor:   extractor,
		audit:       audit,
		events:      events,
	}
}

// Ingest runs the full RECEIVED -> COMMITTED state machine for one upload.
// It returns the resulting Document (freshly ingested, or the existing one
// on a content-hash dedup hit) and whether the hit was a dedup rather than
// a new ingestion.
//
// Concurrency: two uploads with the same content hash racing each other are
// serialized by a per-hash in-process guard; the database's unique
// constraint on content_hash is the ultimate arbiter (I1) if the guard ever
// misses (e.g. across process restarts).
func (p *PipelineService) Ingest(ctx context.Context, filename string, data []byte, uploadedBy string, metadata map[string]any) (*model.Document, bool, error) {
	contentHash := hashContent(data)

	for !acquireProcessing(contentHash) {
		select {
		case <-ctx.Done():
			return nil, false, fmt.Errorf("pipeline.Ingest: %q: waiting for in-flight ingestion of the same content: %w", filename, ctx.Err())
		case <-time.After(50 * time.Millisecond):
		}
	}
	defer releaseProcessing(contentHash)

	slog.Info("ingestion received", "filename", filename, "content_hash", contentHash, "size", len(data))

	result, err := p.validator.Validate(ctx, filename, data)
	if err != nil {
		p.audit.Log(ctx, "ingestion.rejected", map[string]any{"filename": filename, "stage": "validated", "error": err.Error()})
		return nil, false, fmt.Errorf("pipeline.Ingest: %w", err)
	}
	slog.Info("ingestion validated", "filename", filename, "format", result.Format)

	if existing, getErr := p.vectorStore.GetByContentHash(ctx, contentHash); getErr == nil {
		slog.Info("ingestion deduped", "filename", filename, "content_hash", contentHash, "existing_id", existing.ID)
		p.audit.Log(ctx, "ingestion.deduped", map[string]any{"filename": filename, "existing_document_id": existing.ID})
		return existing, true, nil
	} else if !errors.Is(getErr, ragerr.ErrNotFound) {
		return nil, false, fmt.Errorf("pipeline.Ingest: dedup check: %w", getErr)
	}

	metaJSON, err := sanitizedMetadataJSON(metadata)
	if err != nil {
		return nil, false, fmt.Errorf("pipeline.Ingest: metadata: %w", err)
	}

	doc := &model.Document{
		UUID:        uuid.NewString(),
		Filename:    filename,
		FileType:    string(result.Format),
		FileSize:    int64(len(data)),
		ContentHash: contentHash,
		UploadedBy:  uploadedBy,
		UploadedAt:  time.Now().UTC(),
		Metadata:    metaJSON,
		IndexStatus: model.IndexPending,
	}

	id, err := p.vectorStore.CreateDocument(ctx, doc)
	if err != nil {
		if errors.Is(err, ragerr.ErrAlreadyExists) {
			existing, getErr := p.vectorStore.GetByContentHash(ctx, contentHash)
			if getErr == nil {
				slog.Info("ingestion deduped on insert race", "filename", filename, "content_hash", contentHash)
				return existing, true, nil
			}
		}
		return nil, false, fmt.Errorf("pipeline.Ingest: %w", err)
	}
	doc.ID = id

	if err := p.vectorStore.UpdateStatus(ctx, id, model.IndexProcessing); err != nil {
		slog.Warn("failed to mark document processing", "document_id", id, "error", err)
	}

	if err := p.process(ctx, doc, data, result.Text); err != nil {
		p.fail(ctx, doc, err)
		return nil, false, fmt.Errorf("pipeline.Ingest: %w", err)
	}

	doc.IndexStatus = model.IndexIndexed
	p.audit.Log(ctx, "ingestion.committed", map[string]any{"document_id": doc.ID, "uuid": doc.UUID, "filename": filename})
	slog.Info("ingestion committed", "document_id", doc.ID, "uuid", doc.UUID)

	if p.events != nil {
		p.events.Publish(ctx, model.IngestEvent{
			DocumentID:   doc.ID,
			DocumentUUID: doc.UUID,
			ChunkCount:   doc.ChunkCount,
			CommittedAt:  time.Now().UTC(),
		})
	}

	return doc, false, nil
}

// process runs EXTRACTING through VECTORSTORE_COMMIT. Any error here leaves
// doc's hot-tier row in IndexProcessing; the caller unwinds it via fail.
func (p *PipelineService) process(ctx context.Context, doc *model.Document, rawBytes []byte, extractedText string) error {
	chunks, err := p.chunker.Chunk(extractedText)
	if err != nil {
		return fmt.Errorf("chunking: %w", err)
	}
	slog.Info("document chunked", "document_id", doc.ID, "chunk_count", len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	var (
		embedded   []EmbeddedChunk
		embedErr   error
		extraction LLMExtraction
		wg         sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		embedded, embedErr = p.embedder.Embed(ctx, texts)
	}()
	go func() {
		defer wg.Done()
		extraction = p.extractor.Extract(ctx, extractedText)
	}()

	var uploadErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := p.objectStore.PutOriginal(ctx, doc.UUID, rawBytes, contentTypeFor(doc.FileType)); err != nil {
			uploadErr = fmt.Errorf("object store original: %w", err)
			return
		}
		if err := p.objectStore.PutExtracted(ctx, doc.UUID, extractedText); err != nil {
			uploadErr = fmt.Errorf("object store extracted: %w", err)
		}
	}()
	wg.Wait()

	if embedErr != nil {
		return fmt.Errorf("embedding: %w", embedErr)
	}
	if uploadErr != nil {
		return uploadErr
	}
	slog.Info("document embedded and blobs stored", "document_id", doc.ID, "embedded_chunks", len(embedded))

	chunkBlobs := make([]repository.ChunkBlob, len(embedded))
	vectors := make([][]float32, len(embedded))
	var tokenCount int
	var allTokens []string
	for i, ec := range embedded {
		chunkBlobs[i] = repository.ChunkBlob{Index: i, Text: ec.Text}
		vectors[i] = ec.Embedding
		toks := tokenizer.Tokenize(ec.Text)
		tokenCount += len(toks)
		allTokens = append(allTokens, toks...)
	}

	if err := p.objectStore.PutChunks(ctx, doc.UUID, chunkBlobs); err != nil {
		return fmt.Errorf("object store chunks: %w", err)
	}

	idx := bm25.BuildIndex(allTokens)
	if err := p.objectStore.PutBM25Index(ctx, doc.UUID, idx); err != nil {
		return fmt.Errorf("bm25 index: %w", err)
	}
	slog.Info("bm25 index stored", "document_id", doc.ID, "token_count", tokenCount)

	if err := p.vectorStore.InsertChunks(ctx, doc.ID, vectors); err != nil {
		return fmt.Errorf("vectorstore commit: %w", err)
	}

	var summary *string
	if extraction.Summary != "" {
		summary = &extraction.Summary
	}
	if err := p.vectorStore.UpdateExtraction(ctx, doc.ID, tokenCount, summary, extraction.Keywords); err != nil {
		slog.Warn("failed to persist llm extraction after commit", "document_id", doc.ID, "error", err)
	}
	if err := p.vectorStore.UpdateChunkCount(ctx, doc.ID, len(chunkBlobs)); err != nil {
		slog.Warn("failed to persist chunk count after commit", "document_id", doc.ID, "error", err)
	}
	if err := p.vectorStore.UpdateStatus(ctx, doc.ID, model.IndexIndexed); err != nil {
		// Chunks are already committed at this point; returning the error
		// makes the caller unwind the whole document (row, chunks via the
		// cascade, and blobs) rather than leave it committed but unindexed.
		return fmt.Errorf("post-commit status update: %w", err)
	}

	doc.TokenCount = tokenCount
	doc.ChunkCount = len(chunkBlobs)
	doc.Summary = summary
	doc.Keywords = extraction.Keywords
	return nil
}

// fail unwinds a document that failed anywhere between EXTRACTING and the
// final status update: it deletes every blob written under the document's
// UUID prefix, then deletes the hot-tier row (its cascade removes any
// document_chunks rows that made it in before the failure), freeing the
// content hash for a retried upload.
func (p *PipelineService) fail(ctx context.Context, doc *model.Document, cause error) {
	slog.Error("ingestion failed, unwinding", "document_id", doc.ID, "uuid", doc.UUID, "error", cause)

	if err := p.objectStore.DeleteAll(ctx, doc.UUID); err != nil {
		slog.Error("cleanup: failed to remove object store blobs", "document_id", doc.ID, "error", err)
	}
	if err := p.vectorStore.DeleteDocument(ctx, doc.ID); err != nil {
		slog.Error("cleanup: failed to remove document row", "document_id", doc.ID, "error", err)
	}
	p.audit.Log(ctx, "ingestion.failed", map[string]any{
		"document_id": doc.ID, "uuid": doc.UUID, "filename": doc.Filename, "error": cause.Error(),
	})
}

func acquireProcessing(contentHash string) bool {
	processingMu.Lock()
	defer processingMu.Unlock()
	if processing[contentHash] {
		return false
	}
	processing[contentHash] = true
	return true
}

func releaseProcessing(contentHash string) {
	processingMu.Lock()
	defer processingMu.Unlock()
	delete(processing, contentHash)
}

func hashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func sanitizedMetadataJSON(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return []byte("{}"), nil
	}
	for k := range metadata {
		if model.ProtectedMetadataKeys[k] {
			delete(metadata, k)
		}
	}
	return json.Marshal(metadata)
}

func contentTypeFor(fileType string) string {
	switch fileType {
	case "pdf":
		return "application/pdf"
	case "docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case "json":
		return "application/json"
	case "xml":
		return "application/xml"
	case "html":
		return "text/html"
	case "csv":
		return "text/csv"
	case "yaml":
		return "application/yaml"
	case "md":
		return "text/markdown"
	default:
		return "text/plain"
	}
}
