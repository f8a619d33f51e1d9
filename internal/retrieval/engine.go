// Package retrieval wires the ranking components into one engine: fit a
// corpus snapshot, then answer queries with a deterministically fused
// lexical + semantic ranking.
//
// The engine is synchronous and CPU-bound; it performs no I/O. Fit replaces
// all fitted state wholesale, and query methods are safe for concurrent use
// once Fit has returned. The engine does not synchronize Fit against
// concurrent queries; callers that refit a live engine must serialize
// externally.
package retrieval

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/esglens/retrieval-engine/internal/confidence"
	"github.com/esglens/retrieval-engine/internal/parity"
	"github.com/esglens/retrieval-engine/internal/rank"
	"github.com/esglens/retrieval-engine/internal/rank/crossencoder"
	"github.com/esglens/retrieval-engine/internal/rank/embedding"
	"github.com/esglens/retrieval-engine/internal/rank/fusion"
	"github.com/esglens/retrieval-engine/internal/rank/lexical"
	"github.com/esglens/retrieval-engine/internal/rank/tokenizer"
	"github.com/esglens/retrieval-engine/internal/rank/vectorindex"
	"github.com/esglens/retrieval-engine/pkg/config"
	"github.com/esglens/retrieval-engine/pkg/errors"
	"github.com/esglens/retrieval-engine/pkg/logger"
	"github.com/esglens/retrieval-engine/pkg/metrics"
)

// Engine runs the full retrieval flow over a fitted corpus snapshot.
type Engine struct {
	cfg      config.EngineConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics
	embedder *embedding.Embedder
	encoder  *crossencoder.CrossEncoder

	// Fitted state, replaced wholesale by Fit.
	bm25  *lexical.BM25
	tfidf *lexical.TFIDF
	index *vectorindex.Index
	docs  []rank.Document
	texts []string
}

// NewEngine validates cfg and constructs an unfitted Engine. m may be nil
// when instrumentation is not wanted (tests).
func NewEngine(cfg config.EngineConfig, m *metrics.Metrics) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Newf(errors.ErrOutOfRange, "engine config: %v", err)
	}
	embedder, err := embedding.NewEmbedder(cfg.EmbeddingDim, cfg.Seed)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:      cfg,
		logger:   logger.WithComponent("retrieval-engine"),
		metrics:  m,
		embedder: embedder,
		encoder:  crossencoder.New(cfg.Seed),
	}, nil
}

// Fitted reports whether Fit has completed at least once.
func (e *Engine) Fitted() bool {
	return e.bm25 != nil
}

// CorpusSize returns the number of fitted documents.
func (e *Engine) CorpusSize() int {
	return len(e.docs)
}

// VocabSize returns the number of distinct terms in the fitted corpus, or 0
// before Fit.
func (e *Engine) VocabSize() int {
	return e.tfidf.VocabSize()
}

// Fit builds the lexical models and vector index from an ordered corpus
// snapshot, discarding any previously fitted state. Embedding is spread
// over a bounded worker pool (per-item work carries no cross-item state);
// index population stays sequential in corpus order so the arena layout is
// reproducible.
func (e *Engine) Fit(ctx context.Context, docs []rank.Document) error {
	if len(docs) == 0 {
		return errors.New(errors.ErrValidation, "empty corpus")
	}
	start := time.Now()

	snapshot := make([]rank.Document, len(docs))
	copy(snapshot, docs)
	texts := make([]string, len(snapshot))
	for i, doc := range snapshot {
		texts[i] = doc.Text
	}

	bm25, err := lexical.FitBM25Params(texts, e.cfg.K1, e.cfg.B)
	if err != nil {
		return err
	}
	tfidf, err := lexical.FitTFIDF(texts)
	if err != nil {
		return err
	}

	vectors := make([][]float64, len(snapshot))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers())
	for i := range snapshot {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vectors[i] = e.embedder.Embed(snapshot[i].Text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	index, err := vectorindex.New(e.cfg.EmbeddingDim)
	if err != nil {
		return err
	}
	for i, doc := range snapshot {
		if err := index.Add(doc.ID, vectors[i], doc.Metadata); err != nil {
			return err
		}
	}

	e.bm25 = bm25
	e.tfidf = tfidf
	e.index = index
	e.docs = snapshot
	e.texts = texts

	elapsed := time.Since(start)
	if e.metrics != nil {
		e.metrics.FitDuration.Observe(elapsed.Seconds())
		e.metrics.DocsFittedTotal.Add(float64(len(snapshot)))
	}
	e.logger.Info("corpus fitted",
		"docs", len(snapshot),
		"vocab_size", tfidf.VocabSize(),
		"embedding_dim", e.cfg.EmbeddingDim,
		"duration", elapsed,
	)
	return nil
}

// Options tunes a single query. Zero values fall back to the engine
// config's alpha and default k.
type Options struct {
	K     int
	Alpha *float64
	Where map[string]string
}

// Result is one query's fused ranking, scores rounded to the 4-decimal
// audit precision.
type Result struct {
	Query   string           `json:"query"`
	Ranking []rank.ScoredDoc `json:"ranking"`
}

// Query scores the fitted corpus lexically (BM25) and semantically
// (embedding KNN), fuses both signals with the alpha weight, and returns
// the top-k ranking. Using an unfitted engine reports ErrNotFitted; an
// empty query is a validation error.
func (e *Engine) Query(ctx context.Context, query string, opts Options) (*Result, error) {
	if !e.Fitted() {
		return nil, errors.New(errors.ErrNotFitted, "Query called before Fit")
	}
	if len(tokenizer.Tokenize(query)) == 0 {
		return nil, errors.New(errors.ErrValidation, "empty query")
	}
	start := time.Now()
	logger := e.logger.With("query", query)

	k := opts.K
	if k <= 0 {
		k = e.cfg.DefaultK
	}
	alpha := e.cfg.Alpha
	if opts.Alpha != nil {
		alpha = *opts.Alpha
	}

	lexScores, err := e.bm25.Score(query, e.texts)
	if err != nil {
		return nil, e.countError(err)
	}
	lexByID := make(map[string]float64, len(e.docs))
	for i, doc := range e.docs {
		lexByID[doc.ID] = lexScores[i]
	}

	knnStart := time.Now()
	hits, err := e.index.KNN(e.embedder.Embed(query), e.index.Len(), opts.Where)
	if err != nil {
		return nil, e.countError(err)
	}
	if e.metrics != nil {
		e.metrics.KNNLatency.Observe(time.Since(knnStart).Seconds())
	}
	semantic := make(map[string]float64, len(hits))
	for _, hit := range hits {
		semantic[hit.ID] = hit.Score
	}

	fused, err := fusion.Fuse(lexByID, semantic, alpha)
	if err != nil {
		return nil, e.countError(err)
	}
	if k > len(fused) {
		k = len(fused)
	}
	ranking := make([]rank.ScoredDoc, k)
	for i, doc := range fused[:k] {
		ranking[i] = rank.ScoredDoc{DocID: doc.DocID, Score: rank.Round4(doc.Score)}
	}

	if e.metrics != nil {
		e.metrics.QueryLatency.WithLabelValues("miss").Observe(time.Since(start).Seconds())
		e.metrics.FusionResultsCount.Observe(float64(len(ranking)))
		if len(ranking) == 0 {
			e.metrics.QueriesTotal.WithLabelValues("zero_result").Inc()
		} else {
			e.metrics.QueriesTotal.WithLabelValues("ok").Inc()
		}
	}
	logger.Debug("query fused",
		"alpha", alpha,
		"k", k,
		"candidates", len(fused),
	)
	return &Result{Query: query, Ranking: ranking}, nil
}

// Rerank exposes the deterministic cross-encoder over ad-hoc candidate
// documents, independent of the fitted corpus.
func (e *Engine) Rerank(query string, docs []rank.Document, topK int, threshold float64) ([]crossencoder.RerankedDoc, error) {
	reranked, err := e.encoder.Rerank(query, docs, topK, threshold)
	if err != nil {
		return nil, e.countError(err)
	}
	return reranked, nil
}

// Confidence estimates the Beta-Binomial posterior over a ranking's scores.
func (e *Engine) Confidence(scores []float64, theme string) (confidence.PosteriorEstimate, error) {
	estimate, err := confidence.ComputePosterior(scores, theme)
	if err != nil {
		return confidence.PosteriorEstimate{}, e.countError(err)
	}
	if e.metrics != nil {
		e.metrics.PosteriorWidth.Observe(estimate.IntervalWidth)
	}
	return estimate, nil
}

// Audit runs a query and checks the evidence-parity invariant against its
// fused top-k.
func (e *Engine) Audit(ctx context.Context, query string, evidenceIDs []string, k int) (parity.Report, error) {
	result, err := e.Query(ctx, query, Options{K: k})
	if err != nil {
		return parity.Report{}, err
	}
	report := parity.Check(query, evidenceIDs, result.Ranking, k)
	if e.metrics != nil {
		e.metrics.ParityChecksTotal.WithLabelValues(string(report.Verdict)).Inc()
	}
	return report, nil
}

func (e *Engine) workers() int {
	if e.cfg.EmbedWorkers > 0 {
		return e.cfg.EmbedWorkers
	}
	return runtime.GOMAXPROCS(0)
}

func (e *Engine) countError(err error) error {
	if err != nil && e.metrics != nil {
		e.metrics.ErrorsTotal.WithLabelValues(errors.Label(err)).Inc()
	}
	return err
}
