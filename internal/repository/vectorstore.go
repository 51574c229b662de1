package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/ragerr"
)

// ListOpts bounds a document listing query.
type ListOpts struct {
	Limit  int
	Offset int
}

// ChunkMatch is one row of a vector similarity search: a chunk's identity,
// its cosine similarity to the query, and enough of its parent document to
// evaluate a C7 filter and render a result without a second round trip.
type ChunkMatch struct {
	ChunkID      int64
	DocumentID   int64
	ChunkIndex   int
	Similarity   float64
	Document     model.Document
	DocumentCols map[string]any
}

// VectorStore implements C8 over Postgres + pgvector. Document rows hold
// metadata only; chunk rows hold only an index and an embedding — chunk
// text is never stored here (see ObjectStore).
type VectorStore struct {
	pool *pgxpool.Pool
}

// NewVectorStore creates a VectorStore.
func NewVectorStore(pool *pgxpool.Pool) *VectorStore {
	return &VectorStore{pool: pool}
}

// CreateDocument inserts a new document row in IndexPending status. Returns
// ragerr.ErrAlreadyExists if content_hash is already present (I1).
func (s *VectorStore) CreateDocument(ctx context.Context, doc *model.Document) (int64, error) {
	metaJSON, err := marshalMeta(doc.Metadata)
	if err != nil {
		return 0, fmt.Errorf("vectorstore.CreateDocument: marshal metadata: %w", err)
	}
	keywordsJSON, err := json.Marshal(doc.Keywords)
	if err != nil {
		return 0, fmt.Errorf("vectorstore.CreateDocument: marshal keywords: %w", err)
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO documents (
			uuid, filename, file_type, file_size, content_hash, uploaded_by,
			uploaded_at, metadata, summary, keywords, token_count, chunk_count, index_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		doc.UUID, doc.Filename, doc.FileType, doc.FileSize, doc.ContentHash, doc.UploadedBy,
		doc.UploadedAt, metaJSON, doc.Summary, keywordsJSON, doc.TokenCount, doc.ChunkCount, string(doc.IndexStatus),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("vectorstore.CreateDocument: %w", ragerr.ErrAlreadyExists)
		}
		return 0, fmt.Errorf("vectorstore.CreateDocument: %w", err)
	}
	return id, nil
}

// GetByID fetches a document by its numeric id.
func (s *VectorStore) GetByID(ctx context.Context, id int64) (*model.Document, error) {
	return s.getOne(ctx, `WHERE id = $1`, id)
}

// GetByUUID fetches a document by its external UUID.
func (s *VectorStore) GetByUUID(ctx context.Context, docUUID string) (*model.Document, error) {
	return s.getOne(ctx, `WHERE uuid = $1`, docUUID)
}

// GetByContentHash fetches a document by its content hash, for dedup checks (I1).
func (s *VectorStore) GetByContentHash(ctx context.Context, hash string) (*model.Document, error) {
	return s.getOne(ctx, `WHERE content_hash = $1`, hash)
}

func (s *VectorStore) getOne(ctx context.Context, where string, arg any) (*model.Document, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, uuid, filename, file_type, file_size, content_hash, uploaded_by,
			uploaded_at, metadata, summary, keywords, token_count, chunk_count, index_status
		FROM documents `+where, arg)
	doc, err := scanDocument(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("vectorstore.getOne: %w", ragerr.ErrNotFound)
		}
		return nil, fmt.Errorf("vectorstore.getOne: %w", err)
	}
	return doc, nil
}

func scanDocument(row pgx.Row) (*model.Document, error) {
	var d model.Document
	var status string
	var metaJSON, keywordsJSON []byte
	err := row.Scan(
		&d.ID, &d.UUID, &d.Filename, &d.FileType, &d.FileSize, &d.ContentHash, &d.UploadedBy,
		&d.UploadedAt, &metaJSON, &d.Summary, &keywordsJSON, &d.TokenCount, &d.ChunkCount, &status,
	)
	if err != nil {
		return nil, err
	}
	d.IndexStatus = model.IndexStatus(status)
	d.Metadata = json.RawMessage(metaJSON)
	if len(keywordsJSON) > 0 {
		_ = json.Unmarshal(keywordsJSON, &d.Keywords)
	}
	return &d, nil
}

// List returns a page of documents ordered by most-recently uploaded first.
func (s *VectorStore) List(ctx context.Context, opts ListOpts) ([]model.Document, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM documents`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("vectorstore.List: count: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, uuid, filename, file_type, file_size, content_hash, uploaded_by,
			uploaded_at, metadata, summary, keywords, token_count, chunk_count, index_status
		FROM documents ORDER BY uploaded_at DESC LIMIT $1 OFFSET $2`, limit, opts.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("vectorstore.List: query: %w", err)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("vectorstore.List: scan: %w", err)
		}
		docs = append(docs, *d)
	}
	return docs, total, nil
}

// AllUUIDs returns every document UUID currently in the hot tier, for the
// GC reconciliation sweep to diff against the object store's prefixes.
func (s *VectorStore) AllUUIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT uuid FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("vectorstore.AllUUIDs: %w", err)
	}
	defer rows.Close()

	uuids := make(map[string]bool)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("vectorstore.AllUUIDs: scan: %w", err)
		}
		uuids[u] = true
	}
	return uuids, nil
}

// UpdateStatus advances a document's position in the ingestion state machine (§4.13).
func (s *VectorStore) UpdateStatus(ctx context.Context, id int64, status model.IndexStatus) error {
	_, err := s.pool.Exec(ctx, `UPDATE documents SET index_status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("vectorstore.UpdateStatus: %w", err)
	}
	return nil
}

// UpdateExtraction records the LLM extraction result (C6) and token count.
func (s *VectorStore) UpdateExtraction(ctx context.Context, id int64, tokenCount int, summary *string, keywords []string) error {
	keywordsJSON, err := json.Marshal(keywords)
	if err != nil {
		return fmt.Errorf("vectorstore.UpdateExtraction: marshal keywords: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE documents SET token_count = $1, summary = $2, keywords = $3 WHERE id = $4`,
		tokenCount, summary, keywordsJSON, id,
	)
	if err != nil {
		return fmt.Errorf("vectorstore.UpdateExtraction: %w", err)
	}
	return nil
}

// UpdateChunkCount records the final chunk count once chunking completes (I2).
func (s *VectorStore) UpdateChunkCount(ctx context.Context, id int64, count int) error {
	_, err := s.pool.Exec(ctx, `UPDATE documents SET chunk_count = $1 WHERE id = $2`, count, id)
	if err != nil {
		return fmt.Errorf("vectorstore.UpdateChunkCount: %w", err)
	}
	return nil
}

// DeleteDocument removes a document row. ON DELETE CASCADE on document_chunks
// handles I4's cascade requirement for the hot tier; the cold tier (object
// store blobs) is the caller's responsibility to clean up in the same operation.
func (s *VectorStore) DeleteDocument(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("vectorstore.DeleteDocument: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vectorstore.DeleteDocument: %w", ragerr.ErrNotFound)
	}
	return nil
}

// InsertChunks bulk-inserts a document's embedded chunks (I5 enforces a
// fixed 768-dim vector upstream in the embedder). Chunk index i's embedding
// is vectors[i].
func (s *VectorStore) InsertChunks(ctx context.Context, documentID int64, vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for i, v := range vectors {
		batch.Queue(`
			INSERT INTO document_chunks (document_id, chunk_index, embedding, created_at)
			VALUES ($1, $2, $3, $4)`,
			documentID, i, pgvector.NewVector(v), now,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < len(vectors); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("vectorstore.InsertChunks: chunk %d: %w", i, err)
		}
	}
	return nil
}

// SimilaritySearch returns up to candidateLimit chunks ordered by cosine
// similarity to queryVec (descending, chunk id ascending as tiebreak),
// restricted to similarity > minSimilarity. The C7 filter predicate is
// evaluated by the caller against ChunkMatch.DocumentCols/Document.Metadata —
// this query intentionally does not push filter semantics into SQL.
func (s *VectorStore) SimilaritySearch(ctx context.Context, queryVec []float32, candidateLimit int, minSimilarity float64) ([]ChunkMatch, error) {
	embedding := pgvector.NewVector(queryVec)

	rows, err := s.pool.Query(ctx, `
		SELECT
			dc.id, dc.document_id, dc.chunk_index,
			1 - (dc.embedding <=> $1::vector) AS similarity,
			d.id, d.uuid, d.filename, d.file_type, d.file_size, d.content_hash, d.uploaded_by,
			d.uploaded_at, d.metadata, d.summary, d.keywords, d.token_count, d.chunk_count, d.index_status
		FROM document_chunks dc
		JOIN documents d ON dc.document_id = d.id
		WHERE (1 - (dc.embedding <=> $1::vector)) > $2
		ORDER BY dc.embedding <=> $1::vector ASC, dc.id ASC
		LIMIT $3`, embedding, minSimilarity, candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("vectorstore.SimilaritySearch: %w", err)
	}
	defer rows.Close()

	var matches []ChunkMatch
	for rows.Next() {
		var m ChunkMatch
		var status string
		var metaJSON, keywordsJSON []byte
		err := rows.Scan(
			&m.ChunkID, &m.DocumentID, &m.ChunkIndex, &m.Similarity,
			&m.Document.ID, &m.Document.UUID, &m.Document.Filename, &m.Document.FileType,
			&m.Document.FileSize, &m.Document.ContentHash, &m.Document.UploadedBy,
			&m.Document.UploadedAt, &metaJSON, &m.Document.Summary, &keywordsJSON,
			&m.Document.TokenCount, &m.Document.ChunkCount, &status,
		)
		if err != nil {
			return nil, fmt.Errorf("vectorstore.SimilaritySearch: scan: %w", err)
		}
		m.Document.IndexStatus = model.IndexStatus(status)
		m.Document.Metadata = json.RawMessage(metaJSON)
		if len(keywordsJSON) > 0 {
			_ = json.Unmarshal(keywordsJSON, &m.Document.Keywords)
		}
		m.DocumentCols = documentColumns(m.Document)
		matches = append(matches, m)
	}
	return matches, nil
}

// documentColumns projects the first-class fields the C7 filter evaluator
// resolves before falling back to the metadata map (model.ColumnFields).
func documentColumns(d model.Document) map[string]any {
	return map[string]any{
		"uploaded_by": d.UploadedBy,
		"filename":    d.Filename,
		"file_type":   d.FileType,
		"keywords":    keywordsAsAny(d.Keywords),
		"token_count": float64(d.TokenCount),
		"chunk_count": float64(d.ChunkCount),
		"created_at":  d.UploadedAt.Format(time.RFC3339),
		"uploaded_at": d.UploadedAt.Format(time.RFC3339),
	}
}

func keywordsAsAny(keywords []string) []any {
	out := make([]any, len(keywords))
	for i, k := range keywords {
		out[i] = k
	}
	return out
}

func marshalMeta(meta json.RawMessage) ([]byte, error) {
	if len(meta) == 0 {
		return []byte("{}"), nil
	}
	return []byte(meta), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
