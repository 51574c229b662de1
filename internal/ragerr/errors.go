// Package ragerr defines the sentinel error taxonomy shared across the
// ingestion and query pipelines, in the same errors.Is-comparable shape as
// the gcpclient package's ErrRateLimited.
package ragerr

import "errors"

var (
	// ErrUnsupportedFormat is returned when a document's extension is not
	// in the validator's allow-list (C2 tier 1, C1 unhandled format).
	ErrUnsupportedFormat = errors.New("ragerr: unsupported format")

	// ErrSignatureMismatch is returned when a document's magic bytes do not
	// match the MIME type expected for its declared extension (C2 tier 2).
	ErrSignatureMismatch = errors.New("ragerr: signature mismatch")

	// ErrExtractionFailed is returned when an extractor cannot parse the
	// input bytes at all (corrupt archive, malformed XML, etc).
	ErrExtractionFailed = errors.New("ragerr: extraction failed")

	// ErrEmptyExtraction is returned when extraction succeeds but yields
	// only whitespace (C2 tier 3).
	ErrEmptyExtraction = errors.New("ragerr: empty extraction")

	// ErrInvalidFilter is returned when a filter tree references an unknown
	// operator (C7).
	ErrInvalidFilter = errors.New("ragerr: invalid filter")

	// ErrEmbeddingFailed is returned when the embedder exhausts its retry
	// budget on a non-token-limit error (C5). Aborts ingestion.
	ErrEmbeddingFailed = errors.New("ragerr: embedding failed")

	// ErrLLMExtractionFailed names the graceful-degradation path of C6. No
	// code path returns it: the extractor logs the exhausted-retry error and
	// returns an empty extraction, and ingestion continues.
	ErrLLMExtractionFailed = errors.New("ragerr: llm extraction failed")

	// ErrRerankFailed names a single rerank batch failing (C12). No code
	// path returns it: the reranker logs the batch failure and gives that
	// batch zero scores, and the query continues.
	ErrRerankFailed = errors.New("ragerr: rerank batch failed")

	// ErrStoreUnavailable names either tier of storage being unreachable
	// (C8/C9). The repositories do not return it; they wrap the driver's
	// own error.
	ErrStoreUnavailable = errors.New("ragerr: store unavailable")

	// ErrInconsistentState names a divergence between the vector store and
	// object store for a single document (e.g. chunk count mismatch). No code
	// path returns it; cmd/gcsweep reclaims orphaned prefixes without it.
	ErrInconsistentState = errors.New("ragerr: inconsistent state")

	// ErrAlreadyExists marks a content-hash collision at dedup time (I1).
	// Not a failure — C13 treats it as a terminal DEDUPED transition.
	ErrAlreadyExists = errors.New("ragerr: document already exists")

	// ErrNotFound is returned by repository lookups that find no row.
	ErrNotFound = errors.New("ragerr: not found")
)
