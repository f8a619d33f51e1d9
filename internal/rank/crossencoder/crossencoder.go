// Package crossencoder implements the deterministic token-overlap ranker
// used as the semantic signal when no vector index is in play. It is not a
// learned model: scores come from Jaccard overlap plus position and length
// heuristics, with a stable sub-0.001 hash tie-break so equal-overlap
// candidates still rank in a reproducible total order.
package crossencoder

import (
	"fmt"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/esglens/retrieval-engine/internal/rank"
	"github.com/esglens/retrieval-engine/internal/rank/tokenizer"
	"github.com/esglens/retrieval-engine/pkg/errors"
)

// Candidates beyond this many tokens get no additional length bonus.
const lengthBonusCap = 50

// positionDecay is the per-position multiplier applied during Rerank.
// Note the decay depends on the candidate's position in the input list,
// not on any intrinsic document property, so reranking the same documents
// in a different input order changes their scores. Preserved behavior;
// revisit before depending on it for order-insensitive scoring.
const positionDecay = 0.95

// CrossEncoder scores query/text pairs deterministically. Stateless after
// construction and safe for concurrent use.
type CrossEncoder struct {
	seed string
}

// New creates a CrossEncoder whose tie-break hashes are namespaced by seed.
func New(seed string) *CrossEncoder {
	return &CrossEncoder{seed: seed}
}

// Score returns a [0,1] relevance value per text: Jaccard overlap between
// the query and text token sets, plus a deterministic tie-break term below
// 0.001 derived from xxhash of (seed, query, index). An empty query or an
// empty text list is a validation error.
func (ce *CrossEncoder) Score(query string, texts []string) ([]float64, error) {
	querySet := tokenizer.TermSet(query)
	if len(querySet) == 0 {
		return nil, errors.New(errors.ErrValidation, "empty query")
	}
	if len(texts) == 0 {
		return nil, errors.New(errors.ErrValidation, "empty text list")
	}
	scores := make([]float64, len(texts))
	for i, text := range texts {
		score := jaccard(querySet, tokenizer.TermSet(text)) + ce.tieBreak(query, i)
		scores[i] = math.Min(score, 1)
	}
	return scores, nil
}

// RerankedDoc is one Rerank hit.
type RerankedDoc struct {
	Doc   rank.Document
	Score float64
}

// Rerank scores each document as overlap × position-decay × length-bonus,
// soft-max normalizes the batch so scores sum to 1, and returns hits with
// normalized score >= threshold, ordered by (-score, input index),
// truncated to topK. topK <= 0 yields an empty result. threshold must lie
// in [0,1]. An empty query or document list is a validation error.
func (ce *CrossEncoder) Rerank(query string, documents []rank.Document, topK int, threshold float64) ([]RerankedDoc, error) {
	querySet := tokenizer.TermSet(query)
	if len(querySet) == 0 {
		return nil, errors.New(errors.ErrValidation, "empty query")
	}
	if len(documents) == 0 {
		return nil, errors.New(errors.ErrValidation, "empty document list")
	}
	if threshold < 0 || threshold > 1 {
		return nil, errors.Newf(errors.ErrOutOfRange, "threshold must be in [0,1], got %g", threshold)
	}
	if topK <= 0 {
		return []RerankedDoc{}, nil
	}

	raw := make([]float64, len(documents))
	for i, doc := range documents {
		tokens := tokenizer.Tokenize(doc.Text)
		docSet := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			docSet[tok] = struct{}{}
		}
		decay := math.Pow(positionDecay, float64(i+1))
		lengthBonus := math.Min(1, float64(len(tokens))/lengthBonusCap)
		raw[i] = overlapRatio(querySet, docSet) * decay * lengthBonus
	}

	normalized := softmax(raw)
	order := make([]int, len(documents))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		i, j := order[a], order[b]
		if normalized[i] != normalized[j] {
			return normalized[i] > normalized[j]
		}
		return i < j
	})

	results := make([]RerankedDoc, 0, topK)
	for _, i := range order {
		if normalized[i] < threshold {
			continue
		}
		results = append(results, RerankedDoc{Doc: documents[i], Score: normalized[i]})
		if len(results) == topK {
			break
		}
	}
	return results, nil
}

// tieBreak returns a deterministic value in [0, 0.001) keyed on
// (seed, query, index).
func (ce *CrossEncoder) tieBreak(query string, index int) float64 {
	h := xxhash.Sum64String(fmt.Sprintf("%s:%s:%d", ce.seed, query, index))
	return float64(h%1000) / 1_000_000
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for term := range a {
		if _, ok := b[term]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// overlapRatio is the share of query terms the document covers.
func overlapRatio(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	covered := 0
	for term := range query {
		if _, ok := doc[term]; ok {
			covered++
		}
	}
	return float64(covered) / float64(len(query))
}

func softmax(raw []float64) []float64 {
	max := raw[0]
	for _, v := range raw[1:] {
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(raw))
	var sum float64
	for i, v := range raw {
		out[i] = math.Exp(v - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
