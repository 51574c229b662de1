package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connexus-ai/ragbox-backend/internal/bm25"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/ragerr"
	"github.com/connexus-ai/ragbox-backend/internal/repository"
	"github.com/connexus-ai/ragbox-backend/internal/validator"
)

// --- Pipeline test fakes ---

type fakeVectorStore struct {
	nextID       int64
	docs         map[int64]*model.Document
	byHash       map[string]*model.Document
	statuses     []model.IndexStatus
	createErr    error
	insertErr    error
	chunkCount   int
	deleted      []int64
	insertedVecs int
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{nextID: 1, docs: map[int64]*model.Document{}, byHash: map[string]*model.Document{}}
}

func (f *fakeVectorStore) CreateDocument(ctx context.Context, doc *model.Document) (int64, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	if _, exists := f.byHash[doc.ContentHash]; exists {
		return 0, ragerr.ErrAlreadyExists
	}
	id := f.nextID
	f.nextID++
	cp := *doc
	cp.ID = id
	f.docs[id] = &cp
	f.byHash[doc.ContentHash] = &cp
	return id, nil
}

func (f *fakeVectorStore) GetByContentHash(ctx context.Context, hash string) (*model.Document, error) {
	if d, ok := f.byHash[hash]; ok {
		return d, nil
	}
	return nil, ragerr.ErrNotFound
}

func (f *fakeVectorStore) UpdateStatus(ctx context.Context, id int64, status model.IndexStatus) error {
	f.statuses = append(f.statuses, status)
	if d, ok := f.docs[id]; ok {
		d.IndexStatus = status
	}
	return nil
}

func (f *fakeVectorStore) UpdateExtraction(ctx context.Context, id int64, tokenCount int, summary *string, keywords []string) error {
	return nil
}

func (f *fakeVectorStore) UpdateChunkCount(ctx context.Context, id int64, count int) error {
	f.chunkCount = count
	return nil
}

func (f *fakeVectorStore) InsertChunks(ctx context.Context, documentID int64, vectors [][]float32) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.insertedVecs = len(vectors)
	return nil
}

func (f *fakeVectorStore) DeleteDocument(ctx context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	delete(f.docs, id)
	return nil
}

type fakeObjectStore struct {
	mu          []string
	putErr      error
	deletedUUID string
}

func (f *fakeObjectStore) PutOriginal(ctx context.Context, docUUID string, data []byte, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.mu = append(f.mu, "original")
	return nil
}

func (f *fakeObjectStore) PutExtracted(ctx context.Context, docUUID, text string) error {
	f.mu = append(f.mu, "extracted")
	return nil
}

func (f *fakeObjectStore) PutChunks(ctx context.Context, docUUID string, chunks []repository.ChunkBlob) error {
	f.mu = append(f.mu, "chunks")
	return nil
}

func (f *fakeObjectStore) PutBM25Index(ctx context.Context, docUUID string, idx bm25.DocIndex) error {
	f.mu = append(f.mu, "bm25")
	return nil
}

func (f *fakeObjectStore) DeleteAll(ctx context.Context, docUUID string) error {
	f.deletedUUID = docUUID
	return nil
}

type fakeValidator struct {
	result *validator.Result
	err    error
}

func (f *fakeValidator) Validate(ctx context.Context, filename string, data []byte) (*validator.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeChunker struct {
	chunks []TextChunk
	err    error
}

func (f *fakeChunker) Chunk(text string) ([]TextChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks, nil
}

type fakeEmbedder struct {
	out []EmbeddedChunk
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([]EmbeddedChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

type fakeExtractor struct {
	out LLMExtraction
}

func (f *fakeExtractor) Extract(ctx context.Context, text string) LLMExtraction {
	return f.out
}

type fakeAudit struct {
	events []string
}

func (f *fakeAudit) Log(ctx context.Context, event string, fields map[string]any) {
	f.events = append(f.events, event)
}

type fakeEventPublisher struct {
	events []model.IngestEvent
}

func (f *fakeEventPublisher) Publish(ctx context.Context, event model.IngestEvent) {
	f.events = append(f.events, event)
}

func newTestPipeline() (*PipelineService, *fakeVectorStore, *fakeObjectStore, *fakeAudit) {
	vs := newFakeVectorStore()
	os := &fakeObjectStore{}
	v := &fakeValidator{result: &validator.Result{Format: "txt", Text: "Some extracted text content for the document."}}
	chunker := &fakeChunker{chunks: []TextChunk{{Text: "chunk one", Index: 0}, {Text: "chunk two", Index: 1}}}
	embedder := &fakeEmbedder{out: []EmbeddedChunk{
		{Text: "chunk one", Embedding: make([]float32, model.EmbeddingDimensions)},
		{Text: "chunk two", Embedding: make([]float32, model.EmbeddingDimensions)},
	}}
	extractor := &fakeExtractor{out: LLMExtraction{Summary: "a summary", Keywords: []string{"alpha", "beta"}}}
	audit := &fakeAudit{}

	svc := NewPipelineService(vs, os, v, chunker, embedder, extractor, audit, nil)
	return svc, vs, os, audit
}

func TestIngest_FullPipelineCommits(t *testing.T) {
	svc, vs, os, audit := newTestPipeline()

	doc, deduped, err := svc.Ingest(context.Background(), "report.txt", []byte("raw bytes"), "alice", nil)
	require.NoError(t, err)
	assert.False(t, deduped)
	assert.Equal(t, model.IndexIndexed, doc.IndexStatus)
	assert.Equal(t, 2, doc.ChunkCount)
	assert.Equal(t, 2, vs.insertedVecs)
	assert.Contains(t, os.mu, "original")
	assert.Contains(t, os.mu, "extracted")
	assert.Contains(t, os.mu, "chunks")
	assert.Contains(t, os.mu, "bm25")
	assert.Contains(t, audit.events, "ingestion.committed")
}

func TestIngest_DuplicateContentHashDedupes(t *testing.T) {
	svc, _, _, audit := newTestPipeline()
	ctx := context.Background()

	first, deduped, err := svc.Ingest(ctx, "report.txt", []byte("same bytes"), "alice", nil)
	require.NoError(t, err)
	require.False(t, deduped)

	second, deduped, err := svc.Ingest(ctx, "report-copy.txt", []byte("same bytes"), "bob", nil)
	require.NoError(t, err)
	assert.True(t, deduped)
	assert.Equal(t, first.ID, second.ID)
	assert.Contains(t, audit.events, "ingestion.deduped")
}

func TestIngest_PublishesEventOnCommit(t *testing.T) {
	svc, _, _, _ := newTestPipeline()
	pub := &fakeEventPublisher{}
	svc.events = pub

	doc, _, err := svc.Ingest(context.Background(), "report.txt", []byte("raw bytes"), "alice", nil)
	require.NoError(t, err)
	require.Len(t, pub.events, 1)
	assert.Equal(t, doc.ID, pub.events[0].DocumentID)
	assert.Equal(t, doc.UUID, pub.events[0].DocumentUUID)
	assert.Equal(t, doc.ChunkCount, pub.events[0].ChunkCount)
}

func TestIngest_DedupeDoesNotPublishEvent(t *testing.T) {
	svc, _, _, _ := newTestPipeline()
	pub := &fakeEventPublisher{}
	svc.events = pub
	ctx := context.Background()

	_, _, err := svc.Ingest(ctx, "report.txt", []byte("same bytes"), "alice", nil)
	require.NoError(t, err)
	_, deduped, err := svc.Ingest(ctx, "report-copy.txt", []byte("same bytes"), "bob", nil)
	require.NoError(t, err)
	require.True(t, deduped)

	assert.Len(t, pub.events, 1, "a dedup hit must not publish a second commit event")
}

func TestIngest_ValidationFailureRejectsBeforeCreate(t *testing.T) {
	svc, vs, _, audit := newTestPipeline()
	svc.validator = &fakeValidator{err: fmt.Errorf("bad format: %w", ragerr.ErrUnsupportedFormat)}

	_, _, err := svc.Ingest(context.Background(), "file.exe", []byte("x"), "alice", nil)
	require.Error(t, err)
	assert.Empty(t, vs.docs, "no document row should be created on validation failure")
	assert.Contains(t, audit.events, "ingestion.rejected")
}

func TestIngest_ChunkingFailureUnwindsDocument(t *testing.T) {
	svc, vs, os, audit := newTestPipeline()
	svc.chunker = &fakeChunker{err: fmt.Errorf("empty extraction")}

	_, _, err := svc.Ingest(context.Background(), "report.txt", []byte("raw"), "alice", nil)
	require.Error(t, err)
	assert.Len(t, vs.deleted, 1, "failed ingestion should delete the document row")
	assert.Equal(t, vs.deleted[0], int64(1))
	assert.NotEmpty(t, os.deletedUUID, "failed ingestion should clean up object store blobs")
	assert.Contains(t, audit.events, "ingestion.failed")
}

func TestIngest_EmbeddingFailureUnwindsObjectStoreWrites(t *testing.T) {
	svc, vs, os, _ := newTestPipeline()
	svc.embedder = &fakeEmbedder{err: fmt.Errorf("embedding backend unavailable")}

	_, _, err := svc.Ingest(context.Background(), "report.txt", []byte("raw"), "alice", nil)
	require.Error(t, err)
	assert.Len(t, vs.deleted, 1)
	assert.NotEmpty(t, os.deletedUUID)
}

func TestIngest_VectorStoreCommitFailureUnwinds(t *testing.T) {
	svc, vs, os, _ := newTestPipeline()
	vs.insertErr = fmt.Errorf("connection reset")

	_, _, err := svc.Ingest(context.Background(), "report.txt", []byte("raw"), "alice", nil)
	require.Error(t, err)
	assert.Len(t, vs.deleted, 1)
	assert.NotEmpty(t, os.deletedUUID)
}

func TestIngest_SanitizesProtectedMetadataKeys(t *testing.T) {
	svc, vs, _, _ := newTestPipeline()

	doc, _, err := svc.Ingest(context.Background(), "report.txt", []byte("raw"), "alice", map[string]any{
		"department":  "finance",
		"uploaded_by": "attacker-supplied",
	})
	require.NoError(t, err)

	stored := vs.docs[doc.ID]
	require.NotNil(t, stored)
	assert.Contains(t, string(stored.Metadata), "finance")
	assert.NotContains(t, string(stored.Metadata), "attacker-supplied")
}

func TestIngest_LLMExtractionDegradesGracefully(t *testing.T) {
	svc, _, _, _ := newTestPipeline()
	svc.extractor = &fakeExtractor{out: LLMExtraction{}}

	doc, deduped, err := svc.Ingest(context.Background(), "report.txt", []byte("raw"), "alice", nil)
	require.NoError(t, err)
	assert.False(t, deduped)
	assert.Equal(t, model.IndexIndexed, doc.IndexStatus, "pipeline should still commit with degraded extraction")
}
