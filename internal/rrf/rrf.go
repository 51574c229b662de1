// Package rrf implements C11: Reciprocal Rank Fusion over two rankings of
// the same candidate pool.
package rrf

import "sort"

// k is the fixed RRF constant (§4.11).
const k = 60

// Fuse combines two 1-based rankings of chunk identifiers into a single
// descending order. A chunk missing from a ranking contributes 0 for that
// ranking. Ties are broken by the identifier's first-seen order across
// vector then bm25, giving a stable, deterministic result (P6).
func Fuse(vectorRanking, bm25Ranking []string) []string {
	scores := make(map[string]float64)
	order := make([]string, 0, len(vectorRanking)+len(bm25Ranking))
	seen := make(map[string]bool)

	add := func(ranking []string) {
		for i, id := range ranking {
			rank := i + 1
			scores[id] += 1.0 / float64(k+rank)
			if !seen[id] {
				seen[id] = true
				order = append(order, id)
			}
		}
	}
	add(vectorRanking)
	add(bm25Ranking)

	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})
	return order
}

// Score returns the RRF score of id within the fused result of the same two
// rankings Fuse would combine — useful when a caller needs the numeric
// score alongside the order (e.g. for logging or threshold filtering).
func Score(id string, vectorRanking, bm25Ranking []string) float64 {
	var total float64
	if rank := indexOf(vectorRanking, id); rank >= 0 {
		total += 1.0 / float64(k+rank+1)
	}
	if rank := indexOf(bm25Ranking, id); rank >= 0 {
		total += 1.0 / float64(k+rank+1)
	}
	return total
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
