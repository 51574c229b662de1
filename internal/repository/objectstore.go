package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/connexus-ai/ragbox-backend/internal/bm25"
)

// ObjectStoreClient abstracts the blob backend (GCS in production) ObjectStore
// is built over.
type ObjectStoreClient interface {
	Upload(ctx context.Context, bucket, object string, data []byte, contentType string) error
	Download(ctx context.Context, bucket, object string) ([]byte, error)
	ListPrefix(ctx context.Context, bucket, prefix string) ([]string, error)
	DeletePrefix(ctx context.Context, bucket, prefix string) error
}

// ChunkBlob is one chunk's persisted form in the cold tier: {uuid}/chunks/NNN.json.
type ChunkBlob struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// ObjectStore implements C9: the content-addressed cold tier holding a
// document's original bytes, extracted text, per-chunk JSON blobs, and BM25
// term-frequency index, all keyed by document UUID.
type ObjectStore struct {
	client ObjectStoreClient
	bucket string
}

// NewObjectStore creates an ObjectStore writing into bucket.
func NewObjectStore(client ObjectStoreClient, bucket string) *ObjectStore {
	return &ObjectStore{client: client, bucket: bucket}
}

func keyOriginal(docUUID string) string  { return docUUID + "/original" }
func keyExtracted(docUUID string) string { return docUUID + "/extracted.txt" }
func keyBM25(docUUID string) string      { return docUUID + "/bm25_doc_index.json" }
func keyChunk(docUUID string, index int) string {
	return fmt.Sprintf("%s/chunks/%03d.json", docUUID, index)
}

// PutOriginal stores the original uploaded bytes.
func (s *ObjectStore) PutOriginal(ctx context.Context, docUUID string, data []byte, contentType string) error {
	if err := s.client.Upload(ctx, s.bucket, keyOriginal(docUUID), data, contentType); err != nil {
		return fmt.Errorf("objectstore.PutOriginal: %w", err)
	}
	return nil
}

// PutExtracted stores the extractor's output text.
func (s *ObjectStore) PutExtracted(ctx context.Context, docUUID, text string) error {
	if err := s.client.Upload(ctx, s.bucket, keyExtracted(docUUID), []byte(text), "text/plain"); err != nil {
		return fmt.Errorf("objectstore.PutExtracted: %w", err)
	}
	return nil
}

// PutChunks writes one JSON blob per chunk (I2: chunk-blob count must equal
// the document's chunk_count), uploading concurrently.
func (s *ObjectStore) PutChunks(ctx context.Context, docUUID string, chunks []ChunkBlob) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range chunks {
		c := c
		g.Go(func() error {
			data, err := json.Marshal(c)
			if err != nil {
				return fmt.Errorf("objectstore.PutChunks: marshal chunk %d: %w", c.Index, err)
			}
			if err := s.client.Upload(gctx, s.bucket, keyChunk(docUUID, c.Index), data, "application/json"); err != nil {
				return fmt.Errorf("objectstore.PutChunks: chunk %d: %w", c.Index, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return nil
}

// PutBM25Index stores the document's BM25 term-frequency index (C10).
func (s *ObjectStore) PutBM25Index(ctx context.Context, docUUID string, idx bm25.DocIndex) error {
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("objectstore.PutBM25Index: marshal: %w", err)
	}
	if err := s.client.Upload(ctx, s.bucket, keyBM25(docUUID), data, "application/json"); err != nil {
		return fmt.Errorf("objectstore.PutBM25Index: %w", err)
	}
	return nil
}

// GetExtracted reads back a document's extracted text.
func (s *ObjectStore) GetExtracted(ctx context.Context, docUUID string) (string, error) {
	data, err := s.client.Download(ctx, s.bucket, keyExtracted(docUUID))
	if err != nil {
		return "", fmt.Errorf("objectstore.GetExtracted: %w", err)
	}
	return string(data), nil
}

// GetChunkText reads one chunk's text.
func (s *ObjectStore) GetChunkText(ctx context.Context, docUUID string, index int) (string, error) {
	data, err := s.client.Download(ctx, s.bucket, keyChunk(docUUID, index))
	if err != nil {
		return "", fmt.Errorf("objectstore.GetChunkText: %w", err)
	}
	var blob ChunkBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return "", fmt.Errorf("objectstore.GetChunkText: decode: %w", err)
	}
	return blob.Text, nil
}

// ChunkRef identifies one chunk to hydrate from a specific document.
type ChunkRef struct {
	DocumentUUID string
	ChunkIndex   int
}

// GetChunkTexts hydrates a set of chunk references concurrently, used by
// the query orchestrator's lazy/full result hydration (C14).
func (s *ObjectStore) GetChunkTexts(ctx context.Context, refs []ChunkRef) (map[ChunkRef]string, error) {
	results := make([]string, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			text, err := s.GetChunkText(gctx, ref.DocumentUUID, ref.ChunkIndex)
			if err != nil {
				return err
			}
			results[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("objectstore.GetChunkTexts: %w", err)
	}

	out := make(map[ChunkRef]string, len(refs))
	for i, ref := range refs {
		out[ref] = results[i]
	}
	return out, nil
}

// GetBM25Index reads back a document's BM25 term-frequency index, used by
// the query orchestrator's hybrid-search BM25 scoring pass.
func (s *ObjectStore) GetBM25Index(ctx context.Context, docUUID string) (bm25.DocIndex, error) {
	data, err := s.client.Download(ctx, s.bucket, keyBM25(docUUID))
	if err != nil {
		return bm25.DocIndex{}, fmt.Errorf("objectstore.GetBM25Index: %w", err)
	}
	var idx bm25.DocIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return bm25.DocIndex{}, fmt.Errorf("objectstore.GetBM25Index: decode: %w", err)
	}
	return idx, nil
}

// GetBM25Indexes fetches BM25 indexes for a set of documents concurrently,
// skipping documents with no index rather than failing the whole query.
func (s *ObjectStore) GetBM25Indexes(ctx context.Context, docUUIDs []string) (map[string]bm25.DocIndex, error) {
	type entry struct {
		uuid string
		idx  bm25.DocIndex
		ok   bool
	}
	results := make([]entry, len(docUUIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, docUUID := range docUUIDs {
		i, docUUID := i, docUUID
		g.Go(func() error {
			idx, err := s.GetBM25Index(gctx, docUUID)
			if err != nil {
				results[i] = entry{uuid: docUUID}
				return nil
			}
			results[i] = entry{uuid: docUUID, idx: idx, ok: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("objectstore.GetBM25Indexes: %w", err)
	}

	out := make(map[string]bm25.DocIndex, len(docUUIDs))
	for _, e := range results {
		if e.ok {
			out[e.uuid] = e.idx
		}
	}
	return out, nil
}

// DeleteAll removes every blob under a document's UUID prefix, used on
// cascade deletion (I4) and on cleanup after a failed ingestion (§4.13).
func (s *ObjectStore) DeleteAll(ctx context.Context, docUUID string) error {
	if err := s.client.DeletePrefix(ctx, s.bucket, docUUID+"/"); err != nil {
		return fmt.Errorf("objectstore.DeleteAll: %w", err)
	}
	return nil
}
