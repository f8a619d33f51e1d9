package fusion

import (
	"math"
	"testing"

	"github.com/esglens/retrieval-engine/pkg/errors"
)

func TestFuseBlendsSignals(t *testing.T) {
	lexical := map[string]float64{"d1": 0.9, "d2": 0.7}
	semantic := map[string]float64{"d1": 0.3, "d2": 0.8}

	fused, err := Fuse(lexical, semantic, 0.6)
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}
	if len(fused) != 2 {
		t.Fatalf("len(fused) = %d, want 2", len(fused))
	}
	// d2: 0.6*0.7 + 0.4*0.8 = 0.74 beats d1: 0.6*0.9 + 0.4*0.3 = 0.66.
	if fused[0].DocID != "d2" || math.Abs(fused[0].Score-0.74) > 1e-9 {
		t.Errorf("fused[0] = %+v, want {d2 0.74}", fused[0])
	}
	if fused[1].DocID != "d1" || math.Abs(fused[1].Score-0.66) > 1e-9 {
		t.Errorf("fused[1] = %+v, want {d1 0.66}", fused[1])
	}
}

func TestFuseMissingKeyContributesZero(t *testing.T) {
	fused, err := Fuse(map[string]float64{"only-lex": 0.8}, map[string]float64{"only-sem": 0.8}, 0.5)
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}
	if len(fused) != 2 {
		t.Fatalf("len(fused) = %d, want union of 2", len(fused))
	}
	for _, doc := range fused {
		if math.Abs(doc.Score-0.4) > 1e-12 {
			t.Errorf("%s score = %g, want 0.4", doc.DocID, doc.Score)
		}
	}
	// Equal scores fall back to id order.
	if fused[0].DocID != "only-lex" || fused[1].DocID != "only-sem" {
		t.Errorf("tie order = %s, %s; want id-ascending", fused[0].DocID, fused[1].DocID)
	}
}

func TestFuseAlphaExtremes(t *testing.T) {
	lexical := map[string]float64{"d1": 0.9}
	semantic := map[string]float64{"d1": 0.1}

	pureLex, err := Fuse(lexical, semantic, 1)
	if err != nil {
		t.Fatalf("Fuse(alpha=1): %v", err)
	}
	if pureLex[0].Score != 0.9 {
		t.Errorf("alpha=1 score = %g, want lexical 0.9", pureLex[0].Score)
	}
	pureSem, err := Fuse(lexical, semantic, 0)
	if err != nil {
		t.Fatalf("Fuse(alpha=0): %v", err)
	}
	if pureSem[0].Score != 0.1 {
		t.Errorf("alpha=0 score = %g, want semantic 0.1", pureSem[0].Score)
	}
}

func TestFuseScoreBounds(t *testing.T) {
	lexical := map[string]float64{"a": 1, "b": 0.33, "c": 0}
	semantic := map[string]float64{"a": 0, "b": 0.77, "c": 1}
	for _, alpha := range []float64{0, 0.25, 0.5, 0.75, 1} {
		fused, err := Fuse(lexical, semantic, alpha)
		if err != nil {
			t.Fatalf("Fuse(alpha=%g): %v", alpha, err)
		}
		for _, doc := range fused {
			if doc.Score < 0 || doc.Score > 1 {
				t.Errorf("alpha %g: %s score = %g outside [0,1]", alpha, doc.DocID, doc.Score)
			}
		}
	}
}

func TestFuseAlphaMonotonicity(t *testing.T) {
	// lexDoc beats semDoc lexically and loses semantically. Raising alpha
	// must never demote lexDoc below semDoc once it is ahead.
	lexical := map[string]float64{"lexDoc": 0.9, "semDoc": 0.1}
	semantic := map[string]float64{"lexDoc": 0.1, "semDoc": 0.9}
	lexDocAhead := false
	for _, alpha := range []float64{0, 0.2, 0.4, 0.5, 0.6, 0.8, 1} {
		fused, err := Fuse(lexical, semantic, alpha)
		if err != nil {
			t.Fatalf("Fuse(alpha=%g): %v", alpha, err)
		}
		ahead := fused[0].DocID == "lexDoc"
		if lexDocAhead && !ahead {
			t.Errorf("alpha %g: lexically stronger doc fell behind after leading at a lower alpha", alpha)
		}
		if ahead {
			lexDocAhead = true
		}
	}
	if !lexDocAhead {
		t.Error("lexically stronger doc never led even at alpha=1")
	}
}

func TestFuseAlphaOutOfRange(t *testing.T) {
	for _, alpha := range []float64{-0.01, 1.01} {
		if _, err := Fuse(nil, nil, alpha); !errors.Is(err, errors.ErrOutOfRange) {
			t.Errorf("alpha %g: err = %v, want ErrOutOfRange", alpha, err)
		}
	}
}

func TestFuseDeterministic(t *testing.T) {
	lexical := map[string]float64{"a": 0.5, "b": 0.5, "c": 0.5}
	semantic := map[string]float64{"a": 0.5, "b": 0.5, "c": 0.5}
	first, err := Fuse(lexical, semantic, 0.6)
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Fuse(lexical, semantic, 0.6)
		if err != nil {
			t.Fatalf("Fuse: %v", err)
		}
		for j := range first {
			if again[j] != first[j] {
				t.Fatalf("run %d: fused[%d] = %+v, want %+v", i, j, again[j], first[j])
			}
		}
	}
}

// fixedRanker returns preset scores regardless of the query.
type fixedRanker struct {
	scores []float64
}

func (r *fixedRanker) Score(query string, texts []string) ([]float64, error) {
	if len(texts) != len(r.scores) {
		return nil, errors.Newf(errors.ErrValidation, "want %d texts, got %d", len(r.scores), len(texts))
	}
	return r.scores, nil
}

func candidateFixture() []Candidate {
	return []Candidate{
		{Text: "emissions baseline", Meta: map[string]string{"lex": "0.9", "doc_id": "d0"}},
		{Text: "water withdrawal", Meta: map[string]string{"lex": "0.2", "doc_id": "d1"}},
		{Text: "governance policy", Meta: map[string]string{"lex": "0.6", "doc_id": "d2"}},
	}
}

func TestFuseCandidatesRanksByBlend(t *testing.T) {
	// Dyadic scores keep the arithmetic exact, so d0 and d1 tie on the
	// blended score and the higher lex score decides.
	candidates := []Candidate{
		{Text: "emissions baseline", Meta: map[string]string{"lex": "0.5", "doc_id": "d0"}},
		{Text: "water withdrawal", Meta: map[string]string{"lex": "0.25", "doc_id": "d1"}},
		{Text: "governance policy", Meta: map[string]string{"lex": "0.125", "doc_id": "d2"}},
	}
	model := &fixedRanker{scores: []float64{0.25, 0.5, 0.125}}
	// final: d0 = d1 = 0.375, d2 = 0.125.
	order, err := FuseCandidates("q", candidates, Weights{Lex: 0.5}, model, 3)
	if err != nil {
		t.Fatalf("FuseCandidates: %v", err)
	}
	want := []int{0, 1, 2}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestFuseCandidatesTruncatesToK(t *testing.T) {
	model := &fixedRanker{scores: []float64{0.1, 0.9, 0.5}}
	order, err := FuseCandidates("q", candidateFixture(), Weights{Lex: 0.5}, model, 1)
	if err != nil {
		t.Fatalf("FuseCandidates: %v", err)
	}
	if len(order) != 1 {
		t.Errorf("len(order) = %d, want 1", len(order))
	}
	order, err = FuseCandidates("q", candidateFixture(), Weights{Lex: 0.5}, model, 100)
	if err != nil {
		t.Fatalf("FuseCandidates: %v", err)
	}
	if len(order) != 3 {
		t.Errorf("k beyond list length returned %d indices, want 3", len(order))
	}
}

func TestFuseCandidatesNonPositiveK(t *testing.T) {
	model := &fixedRanker{scores: []float64{0.1, 0.9, 0.5}}
	order, err := FuseCandidates("q", candidateFixture(), Weights{Lex: 0.5}, model, 0)
	if err != nil {
		t.Fatalf("FuseCandidates: %v", err)
	}
	if len(order) != 0 {
		t.Errorf("k=0 returned %d indices, want 0", len(order))
	}
}

func TestFuseCandidatesDocIDTieBreak(t *testing.T) {
	model := &fixedRanker{scores: []float64{0.5, 0.5}}
	candidates := []Candidate{
		{Text: "same", Meta: map[string]string{"lex": "0.5", "doc_id": "zz"}},
		{Text: "same", Meta: map[string]string{"lex": "0.5", "doc_id": "aa"}},
	}
	order, err := FuseCandidates("q", candidates, Weights{Lex: 0.5}, model, 2)
	if err != nil {
		t.Fatalf("FuseCandidates: %v", err)
	}
	// All scores equal, so doc_id ascending decides: aa (index 1) first.
	if order[0] != 1 || order[1] != 0 {
		t.Errorf("order = %v, want [1 0]", order)
	}
}

func TestFuseCandidatesValidation(t *testing.T) {
	model := &fixedRanker{scores: []float64{0.5}}

	if _, err := FuseCandidates("q", candidateFixture(), Weights{Lex: 0.5}, nil, 3); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("nil model: err = %v, want ErrValidation", err)
	}
	if _, err := FuseCandidates("q", nil, Weights{Lex: 0.5}, model, 3); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("empty candidates: err = %v, want ErrValidation", err)
	}
	if _, err := FuseCandidates("q", candidateFixture(), Weights{Lex: 1.5}, model, 3); !errors.Is(err, errors.ErrOutOfRange) {
		t.Errorf("bad weight: err = %v, want ErrOutOfRange", err)
	}

	noLex := []Candidate{{Text: "x", Meta: map[string]string{"doc_id": "d0"}}}
	if _, err := FuseCandidates("q", noLex, Weights{Lex: 0.5}, model, 3); !errors.Is(err, errors.ErrMissingField) {
		t.Errorf("missing lex: err = %v, want ErrMissingField", err)
	}
	noID := []Candidate{{Text: "x", Meta: map[string]string{"lex": "0.5"}}}
	if _, err := FuseCandidates("q", noID, Weights{Lex: 0.5}, model, 3); !errors.Is(err, errors.ErrMissingField) {
		t.Errorf("missing doc_id: err = %v, want ErrMissingField", err)
	}
	badLex := []Candidate{{Text: "x", Meta: map[string]string{"lex": "high", "doc_id": "d0"}}}
	if _, err := FuseCandidates("q", badLex, Weights{Lex: 0.5}, model, 3); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("non-numeric lex: err = %v, want ErrValidation", err)
	}
}
