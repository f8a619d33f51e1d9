// Package parity validates the audit invariant that every evidence chunk
// cited downstream was actually retrievable inside the fused top-k ranking.
// Check is a pure function; persisting or publishing the report belongs to
// the surrounding pipeline.
package parity

import (
	"sort"

	"github.com/esglens/retrieval-engine/internal/rank"
)

// Verdict is the binary outcome of a parity check.
type Verdict string

const (
	VerdictPass Verdict = "PASS"
	VerdictFail Verdict = "FAIL"
)

// Report is the parity result consumed by audit/compliance tooling. The
// field names are a compatibility contract and must not be renamed.
type Report struct {
	Query           string           `json:"query"`
	EvidenceIDs     []string         `json:"evidence_ids"`
	FusedTopK       []rank.ScoredDoc `json:"fused_top_k"`
	Verdict         Verdict          `json:"verdict"`
	MissingEvidence []string         `json:"missing_evidence"`
	K               int              `json:"k"`
}

// Check compares the cited evidence IDs against the first k entries of the
// fused ranking. The verdict is PASS iff every evidence ID appears there;
// otherwise missing_evidence lists the absent IDs. Both ID lists in the
// report are sorted and de-duplicated.
func Check(query string, evidenceIDs []string, fusedTopK []rank.ScoredDoc, k int) Report {
	if k < 0 {
		k = 0
	}
	if k > len(fusedTopK) {
		k = len(fusedTopK)
	}
	topK := make([]rank.ScoredDoc, k)
	topKIDs := make(map[string]struct{}, k)
	for i, doc := range fusedTopK[:k] {
		topK[i] = rank.ScoredDoc{DocID: doc.DocID, Score: rank.Round4(doc.Score)}
		topKIDs[doc.DocID] = struct{}{}
	}

	evidence := dedupSorted(evidenceIDs)
	missing := make([]string, 0)
	for _, id := range evidence {
		if _, ok := topKIDs[id]; !ok {
			missing = append(missing, id)
		}
	}

	verdict := VerdictPass
	if len(missing) > 0 {
		verdict = VerdictFail
	}
	return Report{
		Query:           query,
		EvidenceIDs:     evidence,
		FusedTopK:       topK,
		Verdict:         verdict,
		MissingEvidence: missing,
		K:               k,
	}
}

// BatchInput is one query's worth of parity-check inputs.
type BatchInput struct {
	Query       string
	EvidenceIDs []string
	FusedTopK   []rank.ScoredDoc
	K           int
}

// BatchReport aggregates PASS/FAIL counts across many queries; the audit
// gate fails the run when Failed > 0.
type BatchReport struct {
	Total   int      `json:"total"`
	Passed  int      `json:"passed"`
	Failed  int      `json:"failed"`
	Reports []Report `json:"reports"`
}

// CheckBatch runs Check over every input and aggregates the verdicts.
func CheckBatch(inputs []BatchInput) BatchReport {
	batch := BatchReport{
		Total:   len(inputs),
		Reports: make([]Report, 0, len(inputs)),
	}
	for _, in := range inputs {
		report := Check(in.Query, in.EvidenceIDs, in.FusedTopK, in.K)
		if report.Verdict == VerdictPass {
			batch.Passed++
		} else {
			batch.Failed++
		}
		batch.Reports = append(batch.Reports, report)
	}
	return batch
}

func dedupSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
