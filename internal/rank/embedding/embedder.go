// Package embedding provides the deterministic pseudo-embedder. Vectors are
// hash-bucketed term-frequency histograms, so the same text always maps to
// the same unit vector in every process and on every platform. The bucket
// hash is xxhash over "{seed}:{token}", never a runtime-volatile hash.
package embedding

import (
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/esglens/retrieval-engine/internal/rank/tokenizer"
	"github.com/esglens/retrieval-engine/pkg/errors"
)

// Embedder turns text into reproducible fixed-dimension vectors. It is
// stateless after construction and safe for concurrent use.
type Embedder struct {
	dim  int
	seed string
}

// NewEmbedder creates an Embedder with the given dimension and hash seed.
// dim must be > 0.
func NewEmbedder(dim int, seed string) (*Embedder, error) {
	if dim <= 0 {
		return nil, errors.Newf(errors.ErrOutOfRange, "embedding dim must be > 0, got %d", dim)
	}
	return &Embedder{dim: dim, seed: seed}, nil
}

// Dim returns the fixed output dimension.
func (e *Embedder) Dim() int {
	return e.dim
}

// Embed maps text to an L2-normalized vector. Each token increments the
// slot xxhash("{seed}:{token}") mod dim. Text with no tokens yields the
// all-zero vector; zero-norm is a documented degenerate case, not an error.
func (e *Embedder) Embed(text string) []float64 {
	vec := make([]float64, e.dim)
	tokens := tokenizer.Tokenize(text)
	if len(tokens) == 0 {
		return vec
	}
	for _, tok := range tokens {
		slot := xxhash.Sum64String(e.seed+":"+tok) % uint64(e.dim)
		vec[slot]++
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// EmbedBatch embeds each text independently. The result is exactly what
// len(texts) scalar Embed calls would produce; there is no cross-item
// interaction by contract.
func (e *Embedder) EmbedBatch(texts []string) [][]float64 {
	vecs := make([][]float64, len(texts))
	for i, text := range texts {
		vecs[i] = e.Embed(text)
	}
	return vecs
}
