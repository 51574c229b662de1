package model

import "encoding/json"

// QueryRequest is the input to the query orchestrator (C14, §4.14).
type QueryRequest struct {
	Query            string          `json:"query"`
	TopK             int             `json:"topK,omitempty"`
	UseHybrid        *bool           `json:"useHybrid,omitempty"`
	Rerank           bool            `json:"rerank,omitempty"`
	RerankCandidates int             `json:"rerankCandidates,omitempty"`
	MinSimilarity    float64         `json:"minSimilarity,omitempty"`
	Filters          json.RawMessage `json:"filters,omitempty"`
}

// Defaults fills zero-valued fields with the defaults named in §4.14.
func (r *QueryRequest) Defaults() {
	if r.TopK <= 0 {
		r.TopK = 10
	}
	if r.TopK > 100 {
		r.TopK = 100
	}
	if r.UseHybrid == nil {
		t := true
		r.UseHybrid = &t
	}
	if r.RerankCandidates <= 0 {
		r.RerankCandidates = 2 * r.TopK
	}
}

// SearchResult is one ranked chunk returned to the caller (§4.14 step 7).
type SearchResult struct {
	ChunkText        string         `json:"chunkText"`
	Similarity       float64        `json:"similarity"`
	RerankScore      *float64       `json:"rerankScore,omitempty"`
	RerankReasoning  *string        `json:"rerankReasoning,omitempty"`
	Filename         string         `json:"filename"`
	ChunkIndex       int            `json:"chunkIndex"`
	DocumentUUID     string         `json:"documentUuid"`
	DocumentID       int64          `json:"documentId"`
	Summary          *string        `json:"summary,omitempty"`
	DocumentMetadata map[string]any `json:"documentMetadata,omitempty"`
}

// QueryResponse is the full result of a query (§6).
type QueryResponse struct {
	Query   string         `json:"query"`
	Total   int            `json:"total"`
	Results []SearchResult `json:"results"`
}
