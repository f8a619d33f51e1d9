// Package rank holds the shared ranking vocabulary: evidence documents,
// scored results, and the total-order sort rule every ranking component
// relies on.
package rank

import (
	"math"
	"sort"
)

// Document is an evidence chunk supplied by the upstream corpus provider.
// The engine keeps only what it derives (term statistics, vectors) and the
// ID; the text lifetime stays with the provider.
type Document struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ScoredDoc pairs a document ID with a relevance score. The JSON shape
// matches the audit tooling contract for fused_top_k entries.
type ScoredDoc struct {
	DocID string  `json:"id"`
	Score float64 `json:"score"`
}

// SortScoredDocs orders docs by (-score, doc_id). Ascending doc_id breaks
// score ties, so the result is a total order: no two distinct IDs ever
// compare equal. The sort runs sequentially; callers must not shard it.
func SortScoredDocs(docs []ScoredDoc) {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].DocID < docs[j].DocID
	})
}

// Round4 rounds to 4 decimal places, the precision published to audit logs.
func Round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
