package qdrant

import (
	"cmp"
	"hash/fnv"
	"maps"
	"slices"
	"strings"
	"unicode"
)

// sparseVector holds hashed term ids and their weights. IDF is applied by
// Qdrant through the "idf" modifier of the title and abstract vectors.
type sparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

const (
	// termSaturation is BM25's k1: a term's weight approaches k1+1 as it repeats.
	termSaturation = 1.2
	maxSparseTerms = 512
)

// documentVector encodes one indexed field. Input is normalizer output, so
// splitting on non-alphanumerics is all the tokenization needed.
func documentVector(text string) sparseVector {
	weights := termCounts(text)
	for id, n := range weights {
		weights[id] = n * (termSaturation + 1) / (n + termSaturation)
	}
	return toSparse(weights)
}

// queryVector gives every distinct query term weight 1; field weights are
// applied to the returned scores, not here.
func queryVector(text string) sparseVector {
	weights := termCounts(text)
	for id := range weights {
		weights[id] = 1
	}
	return toSparse(weights)
}

func termCounts(text string) map[uint32]float64 {
	terms := splitTerms(text)
	counts := make(map[uint32]float64, len(terms))
	for _, term := range terms {
		counts[termID(term)]++
	}
	return counts
}

func splitTerms(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// toSparse keeps the maxSparseTerms heaviest terms, sorted by id as Qdrant
// expects. An empty field still yields arrays: Qdrant rejects null.
func toSparse(weights map[uint32]float64) sparseVector {
	if len(weights) == 0 {
		return sparseVector{Indices: []uint32{}, Values: []float32{}}
	}
	ids := slices.Collect(maps.Keys(weights))
	if len(ids) > maxSparseTerms {
		slices.SortFunc(ids, func(a, b uint32) int {
			if c := cmp.Compare(weights[b], weights[a]); c != 0 {
				return c
			}
			return cmp.Compare(a, b)
		})
		ids = ids[:maxSparseTerms]
	}
	slices.Sort(ids)

	values := make([]float32, len(ids))
	for i, id := range ids {
		values[i] = float32(weights[id])
	}
	return sparseVector{Indices: ids, Values: values}
}

// termID is never 0.
func termID(term string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return max(h.Sum32(), 1)
}
