package tokenizer

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "simple sentence",
			text: "Climate targets reduce emissions",
			want: []string{"climate", "targets", "reduce", "emissions"},
		},
		{
			name: "punctuation and digits",
			text: "Scope-3 emissions fell 12.5% in 2024!",
			want: []string{"scope", "3", "emissions", "fell", "12", "5", "in", "2024"},
		},
		{
			name: "underscores kept inside tokens",
			text: "chunk_id doc_42",
			want: []string{"chunk_id", "doc_42"},
		},
		{
			name: "unicode letters",
			text: "Émissions de CO2 réduites",
			want: []string{"émissions", "de", "co2", "réduites"},
		},
		{
			name: "empty input",
			text: "",
			want: []string{},
		},
		{
			name: "whitespace only",
			text: "  \t\n  ",
			want: []string{},
		},
		{
			name: "separators only",
			text: "---...,,,",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.text)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestTokenizeDeterministic(t *testing.T) {
	text := "Renewable energy procurement doubled; water stewardship expanded."
	first := Tokenize(text)
	for i := 0; i < 10; i++ {
		if got := Tokenize(text); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d produced %v, want %v", i, got, first)
		}
	}
}

func TestTermCounts(t *testing.T) {
	counts := TermCounts("water water stewardship Water")
	if counts["water"] != 3 {
		t.Errorf("counts[water] = %d, want 3", counts["water"])
	}
	if counts["stewardship"] != 1 {
		t.Errorf("counts[stewardship] = %d, want 1", counts["stewardship"])
	}
}

func TestTermSet(t *testing.T) {
	set := TermSet("energy energy renewable")
	if len(set) != 2 {
		t.Fatalf("len(set) = %d, want 2", len(set))
	}
	if _, ok := set["renewable"]; !ok {
		t.Error("set missing term renewable")
	}
}

func BenchmarkTokenize(b *testing.B) {
	text := "The company committed to science-based climate targets, reducing scope 1 and scope 2 emissions by 42% before 2030 while expanding renewable energy procurement."
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Tokenize(text)
	}
}
