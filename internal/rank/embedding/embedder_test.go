package embedding

import (
	"math"
	"reflect"
	"testing"

	"github.com/esglens/retrieval-engine/pkg/errors"
)

func TestNewEmbedderRejectsBadDim(t *testing.T) {
	for _, dim := range []int{0, -1, -64} {
		if _, err := NewEmbedder(dim, "seed"); !errors.Is(err, errors.ErrOutOfRange) {
			t.Errorf("NewEmbedder(%d): err = %v, want ErrOutOfRange", dim, err)
		}
	}
}

func TestEmbedUnitNorm(t *testing.T) {
	e, err := NewEmbedder(64, "test-seed")
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	vec := e.Embed("climate targets reduce emissions")
	if len(vec) != 64 {
		t.Fatalf("len(vec) = %d, want 64", len(vec))
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-12 {
		t.Errorf("norm = %g, want 1", math.Sqrt(norm))
	}
}

func TestEmbedEmptyTextStaysZero(t *testing.T) {
	e, err := NewEmbedder(16, "test-seed")
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	for _, text := range []string{"", "   ", "---"} {
		vec := e.Embed(text)
		for i, v := range vec {
			if v != 0 {
				t.Errorf("Embed(%q)[%d] = %g, want 0", text, i, v)
			}
		}
	}
}

func TestEmbedDeterministicAcrossInstances(t *testing.T) {
	text := "renewable energy procurement doubled in 2024"
	e1, _ := NewEmbedder(128, "shared-seed")
	e2, _ := NewEmbedder(128, "shared-seed")
	if !reflect.DeepEqual(e1.Embed(text), e2.Embed(text)) {
		t.Error("same seed and dim produced different vectors")
	}
}

func TestEmbedSeedChangesVector(t *testing.T) {
	text := "water stewardship program"
	e1, _ := NewEmbedder(128, "seed-a")
	e2, _ := NewEmbedder(128, "seed-b")
	if reflect.DeepEqual(e1.Embed(text), e2.Embed(text)) {
		t.Error("different seeds produced identical vectors")
	}
}

func TestEmbedBatchMatchesScalarCalls(t *testing.T) {
	e, err := NewEmbedder(32, "test-seed")
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	texts := []string{
		"climate targets reduce emissions",
		"",
		"water stewardship program",
		"renewable energy procurement",
	}
	batch := e.EmbedBatch(texts)
	if len(batch) != len(texts) {
		t.Fatalf("len(batch) = %d, want %d", len(batch), len(texts))
	}
	for i, text := range texts {
		if !reflect.DeepEqual(batch[i], e.Embed(text)) {
			t.Errorf("batch[%d] differs from scalar Embed(%q)", i, text)
		}
	}
}

func BenchmarkEmbed(b *testing.B) {
	e, err := NewEmbedder(256, "bench-seed")
	if err != nil {
		b.Fatalf("NewEmbedder: %v", err)
	}
	text := "The company committed to science-based climate targets, reducing scope 1 and scope 2 emissions by 42% before 2030."
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = e.Embed(text)
	}
}
