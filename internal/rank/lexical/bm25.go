package lexical

import (
	"math"

	"github.com/esglens/retrieval-engine/internal/rank/tokenizer"
	"github.com/esglens/retrieval-engine/pkg/errors"
)

// Standard Okapi BM25 defaults.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// BM25 is a fitted Okapi BM25 model. Immutable after FitBM25 returns and
// safe for concurrent readers.
type BM25 struct {
	k1        float64
	b         float64
	df        map[string]int
	totalDocs int
	avgDocLen float64
}

// FitBM25 builds an immutable BM25 model with the default k1 and b.
func FitBM25(corpus []string) (*BM25, error) {
	return FitBM25Params(corpus, DefaultK1, DefaultB)
}

// FitBM25Params builds an immutable BM25 model. k1 must be > 0 and b in
// [0,1]; violations are range errors. An empty corpus is a validation
// error. Refitting replaces the model wholesale, nothing accumulates.
func FitBM25Params(corpus []string, k1, b float64) (*BM25, error) {
	if k1 <= 0 {
		return nil, errors.Newf(errors.ErrOutOfRange, "k1 must be > 0, got %g", k1)
	}
	if b < 0 || b > 1 {
		return nil, errors.Newf(errors.ErrOutOfRange, "b must be in [0,1], got %g", b)
	}
	stats, err := fitStats(corpus)
	if err != nil {
		return nil, err
	}
	return &BM25{
		k1:        k1,
		b:         b,
		df:        stats.df,
		totalDocs: stats.totalDocs,
		avgDocLen: stats.avgDocLen,
	}, nil
}

// Score computes a relevance score in [0,1] for each text against the
// query. The raw Okapi sum over unique query terms is mapped into [0,1)
// via raw/(raw+1). A nil receiver reports ErrNotFitted.
func (m *BM25) Score(query string, texts []string) ([]float64, error) {
	if m == nil {
		return nil, errors.New(errors.ErrNotFitted, "BM25.Score called before FitBM25")
	}
	queryTerms := sortedTerms(tokenizer.TermSet(query))

	scores := make([]float64, len(texts))
	for i, text := range texts {
		tokens := tokenizer.Tokenize(text)
		docLen := float64(len(tokens))
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		raw := 0.0
		for _, term := range queryTerms {
			freq := float64(tf[term])
			if freq == 0 {
				continue
			}
			raw += m.idf(term) * m.tfNorm(freq, docLen)
		}
		scores[i] = raw / (raw + 1)
	}
	return scores, nil
}

// Rank returns the indices of texts ordered by (-score, index).
func (m *BM25) Rank(query string, texts []string) ([]int, error) {
	if m == nil {
		return nil, errors.New(errors.ErrNotFitted, "BM25.Rank called before FitBM25")
	}
	scores, err := m.Score(query, texts)
	if err != nil {
		return nil, err
	}
	return rankByScore(scores), nil
}

func (m *BM25) idf(term string) float64 {
	df := float64(m.df[term])
	n := float64(m.totalDocs)
	return math.Log((n-df+0.5)/(df+0.5) + 1)
}

func (m *BM25) tfNorm(freq, docLen float64) float64 {
	lengthRatio := 0.0
	if m.avgDocLen > 0 {
		lengthRatio = docLen / m.avgDocLen
	}
	denominator := freq + m.k1*(1-m.b+m.b*lengthRatio)
	return freq * (m.k1 + 1) / denominator
}
