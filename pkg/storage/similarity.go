package storage

import (
	"math"
	"sort"
)

// CosineSimilarity returns the cosine of the angle between a and b.
// Vectors of different length or with zero norm score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SortResults orders results by descending score, then ascending id.
func SortResults(results []*SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Memory.ID < results[j].Memory.ID
	})
}

// TopK sorts results and truncates them to limit. A non-positive limit
// keeps everything.
func TopK(results []*SearchResult, limit int) []*SearchResult {
	SortResults(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
