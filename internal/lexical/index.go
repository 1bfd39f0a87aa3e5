// Package lexical implements the per-document TF-IDF index and ranked retrieval over it.
package lexical

import (
	"math"

	"github.com/hyperjump/bunko/internal/models"
	"github.com/hyperjump/bunko/pkg/utils"
)

// Index is a TF-IDF vector space over one fixed chunk list. It is valid only for the
// chunks it was built from; any change to that list needs a new Build.
type Index struct {
	chunks  []models.Chunk
	vocab   []string
	slots   map[string]int
	idf     []float64
	vectors [][]float64
}

// Build tokenizes every chunk and computes smoothed IDF weights and unit-length
// TF-IDF vectors. Vocabulary order is first-seen order across the chunk list.
func Build(chunks []models.Chunk) *Index {
	idx := &Index{
		chunks: append([]models.Chunk(nil), chunks...),
		slots:  make(map[string]int),
	}

	counts := make([]map[int]int, len(chunks))
	var df []int
	for i, c := range chunks {
		tf := make(map[int]int)
		for _, tok := range Tokenize(c.Text) {
			slot, ok := idx.slots[tok]
			if !ok {
				slot = len(idx.vocab)
				idx.slots[tok] = slot
				idx.vocab = append(idx.vocab, tok)
				df = append(df, 0)
			}
			if tf[slot] == 0 {
				df[slot]++
			}
			tf[slot]++
		}
		counts[i] = tf
	}

	n := float64(len(chunks))
	idx.idf = make([]float64, len(idx.vocab))
	for slot := range idx.vocab {
		idx.idf[slot] = math.Log((n+1)/(float64(df[slot])+1)) + 1
	}

	idx.vectors = make([][]float64, len(chunks))
	for i, tf := range counts {
		idx.vectors[i] = idx.weigh(tf)
	}
	return idx
}

// weigh turns term counts into an L2-normalized tf*idf vector.
func (idx *Index) weigh(tf map[int]int) []float64 {
	vec := make([]float64, len(idx.vocab))
	for slot, count := range tf {
		vec[slot] = float64(count) * idx.idf[slot]
	}
	utils.NormalizeL2(vec)
	return vec
}

// vectorize maps free text onto the existing vocabulary. Unknown terms are ignored.
func (idx *Index) vectorize(text string) []float64 {
	tf := make(map[int]int)
	for _, tok := range Tokenize(text) {
		if slot, ok := idx.slots[tok]; ok {
			tf[slot]++
		}
	}
	return idx.weigh(tf)
}

// Chunks returns the chunk list the index was built from, in document order.
func (idx *Index) Chunks() []models.Chunk {
	return idx.chunks
}

// Len returns the number of indexed chunks.
func (idx *Index) Len() int {
	return len(idx.chunks)
}

// VocabularySize returns the number of distinct terms.
func (idx *Index) VocabularySize() int {
	return len(idx.vocab)
}

// Vocabulary returns the terms in first-seen order.
func (idx *Index) Vocabulary() []string {
	return idx.vocab
}

// IDF returns the inverse document frequency of term, or 0 if unknown.
func (idx *Index) IDF(term string) float64 {
	if slot, ok := idx.slots[term]; ok {
		return idx.idf[slot]
	}
	return 0
}

// Vector returns the normalized vector of the i-th chunk.
func (idx *Index) Vector(i int) []float64 {
	return idx.vectors[i]
}
