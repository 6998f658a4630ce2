package ranking

import "math"

// CosineSimilarity computes the cosine similarity between two vectors.
//
// Vectors of different length are truncated to the shorter one. Empty vectors,
// zero-norm vectors and non-finite results all yield 0, so a bad embedding
// can never abort retrieval.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dotProduct += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(similarity) || math.IsInf(similarity, 0) {
		return 0
	}

	return similarity
}
