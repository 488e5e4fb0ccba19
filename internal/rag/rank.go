package rag

import (
	"math"
	"sort"
)

// DefaultTopK chunks survive ranking into the synthesis prompt.
const DefaultTopK = 3

// cosine returns the cosine similarity of a and b. A zero norm on either
// side yields 0, never NaN.
func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		na += ai * ai
		nb += bi * bi
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TopChunks scores each chunk against the query embedding and returns the
// top-k chunk texts in descending similarity order. The sort is stable, so
// ties keep their input order. Empty inputs return nil.
func TopChunks(query []float32, chunks []string, embeddings [][]float32, k int) []string {
	if len(query) == 0 || len(chunks) == 0 || len(chunks) != len(embeddings) {
		return nil
	}
	if k <= 0 {
		k = DefaultTopK
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(chunks))
	for i, vec := range embeddings {
		scores[i] = scored{idx: i, score: cosine(query, vec)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	if k > len(scores) {
		k = len(scores)
	}
	out := make([]string, 0, k)
	for _, s := range scores[:k] {
		out = append(out, chunks[s.idx])
	}
	return out
}
