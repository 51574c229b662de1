// Package bm25 implements C10: a simplified, document-level BM25 scorer
// with no global IDF (the system keeps no corpus-wide term statistics) and
// a keyword-boost multiplier that substitutes for the missing IDF term.
package bm25

import (
	"strings"
)

const (
	k1    = 1.2
	b     = 0.75
	avgdl = 1000 // corpus-independent constant, see §9
	boost = 1.5  // per matched LLM keyword
)

// DocIndex is the per-document term-frequency index stored at
// {uuid}/bm25_doc_index.json in the object store. This is the exact
// persisted schema (§9): term frequencies only, nothing else — document
// length comes from the vector store's own token_count column instead.
type DocIndex struct {
	TermFrequency map[string]int `json:"term_frequencies"`
}

// Score computes the simplified BM25 score of queryTerms (already tokenized
// by internal/tokenizer) against a single document's term index, boosted
// per keyword that substring-matches (case-insensitive) a query term.
// tokenCount is the document's length, sourced from the vector store (§4.14
// step 3), not from the BM25 blob.
func Score(queryTerms []string, doc DocIndex, tokenCount int, keywords []string) float64 {
	if tokenCount == 0 {
		return 0
	}

	var score float64
	lenNorm := 1 - b + b*(float64(tokenCount)/avgdl)

	for _, term := range queryTerms {
		tf := float64(doc.TermFrequency[term])
		if tf == 0 {
			continue
		}
		score += tf * (k1 + 1) / (tf + k1*lenNorm)
	}

	if score == 0 {
		return 0
	}

	matches := matchedKeywordCount(queryTerms, keywords)
	for i := 0; i < matches; i++ {
		score *= boost
	}
	return score
}

// matchedKeywordCount counts how many of the document's LLM-extracted
// keywords contain any query term as a case-insensitive substring.
func matchedKeywordCount(queryTerms []string, keywords []string) int {
	count := 0
	for _, kw := range keywords {
		lowerKw := strings.ToLower(kw)
		for _, term := range queryTerms {
			if strings.Contains(lowerKw, strings.ToLower(term)) {
				count++
				break
			}
		}
	}
	return count
}

// BuildIndex computes a DocIndex from a document's already-tokenized terms
// (indexing path of C3), for persistence alongside the object-store blobs.
// Token count is not part of the persisted index; callers that need it
// already have it from counting tokens to build allTokens.
func BuildIndex(tokens []string) DocIndex {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return DocIndex{TermFrequency: tf}
}
