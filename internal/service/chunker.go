package service

import (
	"fmt"
	"strings"

	"github.com/connexus-ai/ragbox-backend/internal/ragerr"
)

// TargetChunkSize is the target character length of a chunk's non-overlap
// core region (§4.4).
const TargetChunkSize = 2000

// ChunkOverlap is the number of trailing characters of a chunk's core
// repeated as the prefix of the following chunk (§4.4).
const ChunkOverlap = 200

// TextChunk is one chunk of a document's extracted text. Text includes the
// overlap prefix (empty for chunk 0); CoreStart/CoreEnd are the byte offsets
// of this chunk's own, non-overlapping slice of the original text.
type TextChunk struct {
	Text      string
	Index     int
	CoreStart int
	CoreEnd   int
}

// ChunkerService splits text into overlapping chunks along a
// paragraph -> sentence -> word -> hard-cut boundary hierarchy.
type ChunkerService struct {
	targetSize int
	overlap    int
}

// NewChunkerService creates a ChunkerService. A zero targetSize or overlap
// falls back to the §4.4 defaults (2000 / 200).
func NewChunkerService(targetSize, overlap int) *ChunkerService {
	if targetSize <= 0 {
		targetSize = TargetChunkSize
	}
	if overlap <= 0 {
		overlap = ChunkOverlap
	}
	return &ChunkerService{targetSize: targetSize, overlap: overlap}
}

// Chunk splits text into a sequence of TextChunks. Concatenating the core
// regions (Text[len(overlapPrefix):], or all of Text for chunk 0) in order
// reproduces text exactly — cut points are chosen on text's own byte
// offsets, never by trimming or rewriting characters.
func (s *ChunkerService) Chunk(text string) ([]TextChunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("service.Chunk: %w", ragerr.ErrEmptyExtraction)
	}

	bounds := s.coreBounds(text)

	chunks := make([]TextChunk, len(bounds))
	for i, b := range bounds {
		core := text[b.start:b.end]
		prefix := ""
		if i > 0 {
			prevEnd := bounds[i-1].end
			prevStart := bounds[i-1].start
			overlapStart := prevEnd - s.overlap
			if overlapStart < prevStart {
				overlapStart = prevStart
			}
			prefix = text[overlapStart:prevEnd]
		}
		chunks[i] = TextChunk{
			Text:      prefix + core,
			Index:     i,
			CoreStart: b.start,
			CoreEnd:   b.end,
		}
	}
	return chunks, nil
}

type coreBound struct{ start, end int }

// coreBounds partitions [0, len(text)) into contiguous, non-overlapping
// core regions targeting s.targetSize characters each, preferring a cut at
// a paragraph break, then a sentence break, then whitespace, then finally a
// hard character cut.
func (s *ChunkerService) coreBounds(text string) []coreBound {
	var bounds []coreBound
	pos := 0
	n := len(text)

	for pos < n {
		target := pos + s.targetSize
		if target >= n {
			bounds = append(bounds, coreBound{pos, n})
			break
		}

		cut := findCut(text, pos, target)
		if cut <= pos {
			cut = target // hard cut
		}
		bounds = append(bounds, coreBound{pos, cut})
		pos = cut
	}

	return bounds
}

// findCut searches the window (pos, target] for the best boundary, in
// preference order paragraph > sentence > word, returning the offset just
// after the boundary marker. Returns -1 if none found in the window.
func findCut(text string, pos, target int) int {
	window := text[pos:min(target+1, len(text))]

	if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
		return pos + idx + 2
	}

	best := -1
	for _, marker := range []string{". ", "? ", "! "} {
		if idx := strings.LastIndex(window, marker); idx > best {
			best = idx
		}
	}
	if best > 0 {
		return pos + best + 2
	}

	if idx := strings.LastIndexAny(window, " \t\n"); idx > 0 {
		return pos + idx + 1
	}

	return -1
}
