// Package fusion combines the lexical and semantic ranking signals into a
// single deterministic ordering. Both entry points iterate sorted keys and
// break score ties with documented tuples, so the output is a total order
// for fixed inputs and alpha.
package fusion

import (
	"sort"
	"strconv"

	"github.com/esglens/retrieval-engine/internal/rank"
	"github.com/esglens/retrieval-engine/pkg/errors"
)

// Ranker scores candidate texts against a query. Satisfied by the
// cross-encoder.
type Ranker interface {
	Score(query string, texts []string) ([]float64, error)
}

// Weights carries the fusion weights. Lex weights the lexical signal; the
// semantic signal gets 1-Lex.
type Weights struct {
	Lex float64
}

// Fuse merges two id→score maps over the union of their keys. A missing
// key contributes 0. Each fused score is alpha*lex + (1-alpha)*sem, and
// the result is ordered by (-fused, id). alpha outside [0,1] is a range
// error.
func Fuse(lexical, semantic map[string]float64, alpha float64) ([]rank.ScoredDoc, error) {
	if alpha < 0 || alpha > 1 {
		return nil, errors.Newf(errors.ErrOutOfRange, "alpha must be in [0,1], got %g", alpha)
	}
	union := make(map[string]struct{}, len(lexical)+len(semantic))
	for id := range lexical {
		union[id] = struct{}{}
	}
	for id := range semantic {
		union[id] = struct{}{}
	}
	ids := make([]string, 0, len(union))
	for id := range union {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fused := make([]rank.ScoredDoc, 0, len(ids))
	for _, id := range ids {
		score := alpha*lexical[id] + (1-alpha)*semantic[id]
		fused = append(fused, rank.ScoredDoc{DocID: id, Score: score})
	}
	rank.SortScoredDocs(fused)
	return fused, nil
}

// Candidate is one scoring candidate for FuseCandidates: its text plus the
// metadata the upstream pipeline attached. The "lex" and "doc_id" keys are
// required.
type Candidate struct {
	Text string
	Meta map[string]string
}

// FuseCandidates cross-encodes the candidate texts against the query and
// blends the result with each candidate's precomputed lexical score:
// final = Lex*lex + (1-Lex)*ce. It returns the input indices of the top k
// candidates ordered by (-final, -lex, -ce, doc_id), a total order even
// under rounding ties. A nil model or empty candidate list is a validation
// error; absent "lex"/"doc_id" metadata is a missing-field error; a Lex
// weight outside [0,1] is a range error. k <= 0 yields an empty slice.
func FuseCandidates(query string, candidates []Candidate, weights Weights, model Ranker, k int) ([]int, error) {
	if model == nil {
		return nil, errors.New(errors.ErrValidation, "ranking model is nil")
	}
	if len(candidates) == 0 {
		return nil, errors.New(errors.ErrValidation, "empty candidate list")
	}
	alpha := weights.Lex
	if alpha < 0 || alpha > 1 {
		return nil, errors.Newf(errors.ErrOutOfRange, "lex weight must be in [0,1], got %g", alpha)
	}

	texts := make([]string, len(candidates))
	lex := make([]float64, len(candidates))
	docIDs := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
		raw, ok := c.Meta["lex"]
		if !ok {
			return nil, errors.Newf(errors.ErrMissingField, "candidate %d has no lex score", i)
		}
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.Newf(errors.ErrValidation, "candidate %d lex score %q is not numeric", i, raw)
		}
		lex[i] = score
		docID, ok := c.Meta["doc_id"]
		if !ok {
			return nil, errors.Newf(errors.ErrMissingField, "candidate %d has no doc_id", i)
		}
		docIDs[i] = docID
	}

	ce, err := model.Score(query, texts)
	if err != nil {
		return nil, err
	}

	final := make([]float64, len(candidates))
	for i := range candidates {
		final[i] = alpha*lex[i] + (1-alpha)*ce[i]
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		i, j := order[a], order[b]
		if final[i] != final[j] {
			return final[i] > final[j]
		}
		if lex[i] != lex[j] {
			return lex[i] > lex[j]
		}
		if ce[i] != ce[j] {
			return ce[i] > ce[j]
		}
		return docIDs[i] < docIDs[j]
	})

	if k <= 0 {
		return []int{}, nil
	}
	if k > len(order) {
		k = len(order)
	}
	return order[:k], nil
}
