// Package retrieval ranks stored embeddings against a query vector.
package retrieval

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/hpungsan/arag/internal/chunk"
	"github.com/hpungsan/arag/internal/errors"
)

// Scored is a chunk id with its similarity to the query.
type Scored struct {
	ID    int64   `json:"id"`
	Score float32 `json:"score"`
}

// Dot returns the dot product of a and b, which must have equal length.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// TopK returns the k candidates with the highest dot product against query,
// best first. Equal scores are ordered by ascending id. Fewer than k results
// are returned when there are fewer candidates.
func TopK(cands []chunk.Vector, query []float32, k int) ([]Scored, error) {
	if k < 1 {
		return nil, errors.NewInvalidRequest("k must be at least 1")
	}
	if len(cands) == 0 {
		return nil, errors.NewEmptyIndex()
	}

	h := make(minHeap, 0, min(k, len(cands)))
	for _, c := range cands {
		if len(c.Values) != len(query) {
			return nil, errors.NewInvalidRequest(fmt.Sprintf(
				"query vector has %d dimensions but chunk %d has %d", len(query), c.ID, len(c.Values)))
		}
		s := Scored{ID: c.ID, Score: Dot(c.Values, query)}
		if len(h) < k {
			heap.Push(&h, s)
			continue
		}
		if better(s, h[0]) {
			h[0] = s
			heap.Fix(&h, 0)
		}
	}

	out := []Scored(h)
	sort.Slice(out, func(i, j int) bool { return better(out[i], out[j]) })
	return out, nil
}

// better orders by score descending, then id ascending.
func better(a, b Scored) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID < b.ID
}

// minHeap keeps the worst retained result at the root.
type minHeap []Scored

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *minHeap) Push(x any) { *h = append(*h, x.(Scored)) }

func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
