package lexical

import (
	"math"

	"github.com/esglens/retrieval-engine/internal/rank/tokenizer"
	"github.com/esglens/retrieval-engine/pkg/errors"
)

// TFIDF is a fitted TF-IDF model. It is immutable after FitTFIDF returns
// and safe for concurrent readers without locking.
type TFIDF struct {
	// vocab maps each corpus term to a dense index in [0, |vocab|),
	// assigned in lexicographic term order.
	vocab map[string]int
	// idf holds smooth inverse document frequencies by vocab index,
	// ln((N+1)/(df+1)) + 1, always > 0.
	idf       []float64
	totalDocs int
}

// FitTFIDF builds an immutable TF-IDF model from an ordered corpus
// snapshot. Refitting is a matter of calling FitTFIDF again and discarding
// the old model; nothing accumulates. An empty corpus is a validation
// error.
func FitTFIDF(corpus []string) (*TFIDF, error) {
	stats, err := fitStats(corpus)
	if err != nil {
		return nil, err
	}
	m := &TFIDF{
		vocab:     make(map[string]int, len(stats.df)),
		idf:       make([]float64, len(stats.df)),
		totalDocs: stats.totalDocs,
	}
	n := float64(stats.totalDocs)
	for i, term := range sortedTerms(stats.df) {
		m.vocab[term] = i
		m.idf[i] = math.Log((n+1)/(float64(stats.df[term])+1)) + 1
	}
	return m, nil
}

// VocabSize returns the number of distinct corpus terms.
func (m *TFIDF) VocabSize() int {
	if m == nil {
		return 0
	}
	return len(m.vocab)
}

// Score computes a relevance score in [0,1] for each text against the
// query. The raw score sums tf * idf * query-term-count over query terms;
// terms outside the fitted vocabulary contribute nothing. The raw sum is
// squashed through a logistic. A nil receiver reports ErrNotFitted.
func (m *TFIDF) Score(query string, texts []string) ([]float64, error) {
	if m == nil {
		return nil, errors.New(errors.ErrNotFitted, "TFIDF.Score called before FitTFIDF")
	}
	queryCounts := tokenizer.TermCounts(query)
	queryTerms := sortedTerms(queryCounts)

	scores := make([]float64, len(texts))
	for i, text := range texts {
		tf := tokenizer.TermCounts(text)
		raw := 0.0
		for _, term := range queryTerms {
			idx, ok := m.vocab[term]
			if !ok {
				continue
			}
			raw += float64(tf[term]) * m.idf[idx] * float64(queryCounts[term])
		}
		scores[i] = 1 / (1 + math.Exp(-raw))
	}
	return scores, nil
}

// Rank returns the indices of texts ordered by (-score, index).
func (m *TFIDF) Rank(query string, texts []string) ([]int, error) {
	if m == nil {
		return nil, errors.New(errors.ErrNotFitted, "TFIDF.Rank called before FitTFIDF")
	}
	scores, err := m.Score(query, texts)
	if err != nil {
		return nil, err
	}
	return rankByScore(scores), nil
}
