package retrieval

import (
	"context"
	"reflect"
	"testing"

	"github.com/esglens/retrieval-engine/internal/parity"
	"github.com/esglens/retrieval-engine/internal/rank"
	"github.com/esglens/retrieval-engine/pkg/config"
	"github.com/esglens/retrieval-engine/pkg/errors"
)

func testConfig() config.EngineConfig {
	return config.EngineConfig{
		EmbeddingDim: 64,
		Seed:         "engine-test",
		K1:           1.2,
		B:            0.75,
		Alpha:        0.6,
		DefaultK:     10,
		EmbedWorkers: 2,
	}
}

var esgCorpus = []rank.Document{
	{ID: "chunk-01", Text: "Scope 1 emissions decreased 12% against the 2020 baseline.", Metadata: map[string]string{"theme": "Emissions"}},
	{ID: "chunk-02", Text: "Water withdrawal intensity improved across manufacturing sites.", Metadata: map[string]string{"theme": "Water"}},
	{ID: "chunk-03", Text: "The board adopted a new supplier code of conduct.", Metadata: map[string]string{"theme": "Governance"}},
	{ID: "chunk-04", Text: "Scope 2 market-based emissions are reported under the GHG protocol.", Metadata: map[string]string{"theme": "Emissions"}},
}

func fittedEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(testConfig(), nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := engine.Fit(context.Background(), esgCorpus); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	return engine
}

func TestNewEngineRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Alpha = 1.5
	if _, err := NewEngine(cfg, nil); !errors.Is(err, errors.ErrOutOfRange) {
		t.Errorf("err = %v, want ErrOutOfRange", err)
	}
}

func TestQueryBeforeFit(t *testing.T) {
	engine, err := NewEngine(testConfig(), nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if engine.Fitted() {
		t.Error("Fitted() = true before Fit")
	}
	if _, err := engine.Query(context.Background(), "emissions", Options{}); !errors.Is(err, errors.ErrNotFitted) {
		t.Errorf("err = %v, want ErrNotFitted", err)
	}
}

func TestFitEmptyCorpus(t *testing.T) {
	engine, err := NewEngine(testConfig(), nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := engine.Fit(context.Background(), nil); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestQueryRanksRelevantDocsFirst(t *testing.T) {
	engine := fittedEngine(t)
	result, err := engine.Query(context.Background(), "scope 1 emissions baseline", Options{K: 4})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result.Ranking) != 4 {
		t.Fatalf("len(ranking) = %d, want 4", len(result.Ranking))
	}
	// Both emissions chunks share query terms; the water and governance
	// chunks share none and must rank below them.
	positions := make(map[string]int, len(result.Ranking))
	for i, doc := range result.Ranking {
		positions[doc.DocID] = i
	}
	if positions["chunk-01"] > positions["chunk-02"] || positions["chunk-01"] > positions["chunk-03"] {
		t.Errorf("matching doc ranked below non-matching docs: %+v", result.Ranking)
	}
	if positions["chunk-04"] > positions["chunk-02"] || positions["chunk-04"] > positions["chunk-03"] {
		t.Errorf("matching doc ranked below non-matching docs: %+v", result.Ranking)
	}
	for i := 1; i < len(result.Ranking); i++ {
		if result.Ranking[i].Score > result.Ranking[i-1].Score {
			t.Errorf("ranking not ordered by descending score: %+v", result.Ranking)
		}
	}
}

func TestQueryEmptyQuery(t *testing.T) {
	engine := fittedEngine(t)
	for _, query := range []string{"", "   ", "!!!"} {
		if _, err := engine.Query(context.Background(), query, Options{}); !errors.Is(err, errors.ErrValidation) {
			t.Errorf("query %q: err = %v, want ErrValidation", query, err)
		}
	}
}

func TestQueryDeterministicAcrossEngines(t *testing.T) {
	a := fittedEngine(t)
	b := fittedEngine(t)
	queries := []string{"scope emissions", "water intensity", "supplier governance code"}
	for _, q := range queries {
		ra, err := a.Query(context.Background(), q, Options{K: 4})
		if err != nil {
			t.Fatalf("Query(%q): %v", q, err)
		}
		rb, err := b.Query(context.Background(), q, Options{K: 4})
		if err != nil {
			t.Fatalf("Query(%q): %v", q, err)
		}
		if !reflect.DeepEqual(ra.Ranking, rb.Ranking) {
			t.Errorf("query %q diverged across engines:\n%+v\n%+v", q, ra.Ranking, rb.Ranking)
		}
	}
}

func TestRefitReplacesCorpus(t *testing.T) {
	engine := fittedEngine(t)
	replacement := []rank.Document{
		{ID: "only", Text: "renewable energy procurement targets"},
	}
	if err := engine.Fit(context.Background(), replacement); err != nil {
		t.Fatalf("refit: %v", err)
	}
	if engine.CorpusSize() != 1 {
		t.Errorf("CorpusSize() = %d after refit, want 1", engine.CorpusSize())
	}
	if engine.VocabSize() != 4 {
		t.Errorf("VocabSize() = %d after refit, want 4", engine.VocabSize())
	}
	result, err := engine.Query(context.Background(), "renewable energy", Options{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result.Ranking) != 1 || result.Ranking[0].DocID != "only" {
		t.Errorf("ranking after refit = %+v, want just doc only", result.Ranking)
	}
}

func TestQueryAlphaOverride(t *testing.T) {
	engine := fittedEngine(t)
	bad := 1.5
	if _, err := engine.Query(context.Background(), "emissions", Options{Alpha: &bad}); !errors.Is(err, errors.ErrOutOfRange) {
		t.Errorf("alpha override 1.5: err = %v, want ErrOutOfRange", err)
	}
	pureLex := 1.0
	result, err := engine.Query(context.Background(), "emissions", Options{K: 4, Alpha: &pureLex})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	// With alpha=1 the semantic signal is ignored; the governance doc has
	// no query term and scores 0.
	var govScore float64
	for _, doc := range result.Ranking {
		if doc.DocID == "chunk-03" {
			govScore = doc.Score
		}
	}
	if govScore != 0 {
		t.Errorf("non-matching doc scored %g under pure lexical fusion, want 0", govScore)
	}
}

func TestQueryMetadataFilter(t *testing.T) {
	engine := fittedEngine(t)
	result, err := engine.Query(context.Background(), "emissions reporting", Options{
		K:     4,
		Where: map[string]string{"theme": "Water"},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	// The filter restricts the semantic signal only; every doc still gets
	// a lexical score, so all four come back but only chunk-02 carries a
	// semantic contribution.
	if len(result.Ranking) != 4 {
		t.Errorf("len(ranking) = %d, want 4", len(result.Ranking))
	}
}

func TestAudit(t *testing.T) {
	engine := fittedEngine(t)
	report, err := engine.Audit(context.Background(), "scope 1 emissions baseline", []string{"chunk-01"}, 2)
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if report.Verdict != parity.VerdictPass {
		t.Errorf("verdict = %s, want PASS (top-2: %+v)", report.Verdict, report.FusedTopK)
	}

	report, err = engine.Audit(context.Background(), "scope 1 emissions baseline", []string{"chunk-99"}, 2)
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if report.Verdict != parity.VerdictFail {
		t.Errorf("verdict = %s, want FAIL", report.Verdict)
	}
	if !reflect.DeepEqual(report.MissingEvidence, []string{"chunk-99"}) {
		t.Errorf("missing_evidence = %v, want [chunk-99]", report.MissingEvidence)
	}
}

func TestRerankDelegates(t *testing.T) {
	engine := fittedEngine(t)
	hits, err := engine.Rerank("scope emissions", esgCorpus, 2, 0)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("len(hits) = %d, want 2", len(hits))
	}
}

func TestConfidenceDelegates(t *testing.T) {
	engine := fittedEngine(t)
	est, err := engine.Confidence([]float64{0.9, 0.95, 0.2}, "Climate")
	if err != nil {
		t.Fatalf("Confidence: %v", err)
	}
	if est.Alpha != 4 || est.Beta != 3 {
		t.Errorf("posterior = Beta(%g,%g), want Beta(4,3)", est.Alpha, est.Beta)
	}
	if _, err := engine.Confidence(nil, "Climate"); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("empty scores: err = %v, want ErrValidation", err)
	}
}

func BenchmarkQuery(b *testing.B) {
	engine, err := NewEngine(testConfig(), nil)
	if err != nil {
		b.Fatalf("NewEngine: %v", err)
	}
	if err := engine.Fit(context.Background(), esgCorpus); err != nil {
		b.Fatalf("Fit: %v", err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = engine.Query(context.Background(), "scope 1 emissions baseline", Options{K: 4})
	}
}
