// Package vectorindex provides the in-memory cosine-KNN index over
// deterministic embeddings. The store is an explicit id→slot arena:
// re-adding an existing ID overwrites its slot, which is an API guarantee
// rather than a map-clobber side effect.
//
// The index assumes pre-normalized input vectors and never re-normalizes.
// If callers hand it non-unit vectors, similarity scores fall outside
// [-1,1] and the caller bug is visible instead of masked.
//
// Reads (KNN, Len, Get) may run concurrently once all Add calls have
// completed. The index carries no internal locking; callers interleaving
// writes with reads must synchronize externally.
package vectorindex

import (
	"container/heap"

	"github.com/esglens/retrieval-engine/pkg/errors"
)

type entry struct {
	id       string
	vector   []float64
	metadata map[string]string
}

// Index is a brute-force cosine-similarity KNN index with exact-match
// metadata filtering.
type Index struct {
	dim   int
	slots []entry
	byID  map[string]int
}

// New creates an Index for vectors of the given dimension. dim must be > 0.
func New(dim int) (*Index, error) {
	if dim <= 0 {
		return nil, errors.Newf(errors.ErrOutOfRange, "index dim must be > 0, got %d", dim)
	}
	return &Index{
		dim:  dim,
		byID: make(map[string]int),
	}, nil
}

// Add stores a vector under id. The vector and metadata are copied. A
// vector whose length differs from the index dimension is a dimension
// mismatch. Re-adding an existing id overwrites the previous entry.
func (ix *Index) Add(id string, vector []float64, metadata map[string]string) error {
	if len(vector) != ix.dim {
		return errors.Newf(errors.ErrDimensionMismatch,
			"vector for %q has dim %d, index dim is %d", id, len(vector), ix.dim)
	}
	e := entry{
		id:     id,
		vector: append([]float64(nil), vector...),
	}
	if len(metadata) > 0 {
		e.metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			e.metadata[k] = v
		}
	}
	if slot, ok := ix.byID[id]; ok {
		ix.slots[slot] = e
		return nil
	}
	ix.byID[id] = len(ix.slots)
	ix.slots = append(ix.slots, e)
	return nil
}

// Len returns the number of stored entries.
func (ix *Index) Len() int {
	return len(ix.slots)
}

// Result is one KNN hit.
type Result struct {
	ID    string
	Score float64
}

// KNN returns up to k entries most similar to query, ordered by
// (-cosine_similarity, id). Entries survive the where filter only if their
// metadata matches every key/value exactly. k <= 0 returns an empty slice.
// A query of the wrong dimension is a dimension mismatch.
func (ix *Index) KNN(query []float64, k int, where map[string]string) ([]Result, error) {
	if len(query) != ix.dim {
		return nil, errors.Newf(errors.ErrDimensionMismatch,
			"query has dim %d, index dim is %d", len(query), ix.dim)
	}
	if k <= 0 {
		return []Result{}, nil
	}

	// Min-heap of the k best hits seen so far; the worst candidate sits on
	// top and is evicted when a better one arrives.
	h := &resultHeap{}
	heap.Init(h)
	for i := range ix.slots {
		e := &ix.slots[i]
		if !matches(e.metadata, where) {
			continue
		}
		score := dot(query, e.vector)
		heap.Push(h, Result{ID: e.id, Score: score})
		if h.Len() > k {
			heap.Pop(h)
		}
	}
	results := make([]Result, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = heap.Pop(h).(Result)
	}
	return results, nil
}

func matches(metadata, where map[string]string) bool {
	for key, want := range where {
		if got, ok := metadata[key]; !ok || got != want {
			return false
		}
	}
	return true
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// resultHeap orders hits so the least-preferred one, under the
// (-score, id) total order, is on top.
type resultHeap []Result

func (h resultHeap) Len() int { return len(h) }

func (h resultHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].ID > h[j].ID
}

func (h resultHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(x interface{}) {
	*h = append(*h, x.(Result))
}

func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
