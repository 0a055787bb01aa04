package match

import (
	"math"
	"sort"
)

// Jaccard returns |a ∩ b| / |a ∪ b|. Two empty sets score 0.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for w := range small {
		if _, ok := large[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// weight is one non-zero component of a sparse vector.
type weight struct {
	idx int
	w   float64
}

// sparseVec holds weights sorted by term index, so dot products sum in a
// fixed order and scores are reproducible.
type sparseVec []weight

// tfidfIndex holds TF-IDF vectors for a fixed set of token documents.
type tfidfIndex struct {
	vocab map[string]int
	idf   []float64
	docs  []sparseVec
}

// buildTFIDFIndex weights raw term counts by idf = ln(N/df) + 1.
func buildTFIDFIndex(docs [][]string) *tfidfIndex {
	vocab := make(map[string]int)
	for _, tokens := range docs {
		for _, tok := range tokens {
			if _, ok := vocab[tok]; !ok {
				vocab[tok] = len(vocab)
			}
		}
	}

	df := make([]int, len(vocab))
	counts := make([]map[int]int, len(docs))
	for i, tokens := range docs {
		tf := make(map[int]int)
		for _, tok := range tokens {
			tf[vocab[tok]]++
		}
		for idx := range tf {
			df[idx]++
		}
		counts[i] = tf
	}

	n := float64(len(docs))
	idf := make([]float64, len(vocab))
	for i, d := range df {
		if d > 0 {
			idf[i] = math.Log(n/float64(d)) + 1.0
		}
	}

	vecs := make([]sparseVec, len(docs))
	for i, tf := range counts {
		vec := make(sparseVec, 0, len(tf))
		for idx, count := range tf {
			vec = append(vec, weight{idx: idx, w: float64(count) * idf[idx]})
		}
		sort.Slice(vec, func(a, b int) bool { return vec[a].idx < vec[b].idx })
		vecs[i] = vec
	}

	return &tfidfIndex{vocab: vocab, idf: idf, docs: vecs}
}

// similarity returns the cosine similarity of documents i and j.
func (idx *tfidfIndex) similarity(i, j int) float64 {
	return cosineSim(idx.docs[i], idx.docs[j])
}

func cosineSim(a, b sparseVec) float64 {
	var dot, normA, normB float64
	ia, ib := 0, 0
	for ia < len(a) && ib < len(b) {
		switch {
		case a[ia].idx == b[ib].idx:
			dot += a[ia].w * b[ib].w
			ia++
			ib++
		case a[ia].idx < b[ib].idx:
			ia++
		default:
			ib++
		}
	}
	for _, v := range a {
		normA += v.w * v.w
	}
	for _, v := range b {
		normB += v.w * v.w
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
