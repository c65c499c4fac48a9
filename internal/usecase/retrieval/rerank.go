package retrieval

import (
	"sort"
	"strings"

	"github.com/valtric/dealbrain/internal/domain"
)

// Reranker reorders ranked candidates. Implementations must be pure: the
// same inputs always produce the same ordering, and the candidate set is
// never reduced.
type Reranker interface {
	Rerank(question string, items []domain.EvidenceItem) []domain.EvidenceItem
}

// NewReranker returns the reranker named in config: "term_overlap" or the
// identity pass for "none".
func NewReranker(kind string) Reranker {
	if kind == "term_overlap" {
		return TermOverlapReranker{}
	}
	return NoopReranker{}
}

// NoopReranker is the identity pass used when no reranker is configured.
type NoopReranker struct{}

func (NoopReranker) Rerank(_ string, items []domain.EvidenceItem) []domain.EvidenceItem {
	return items
}

// TermOverlapReranker reorders candidates by how many distinct question
// terms appear verbatim in the chunk text. Blended scores are left
// untouched; only the ordering changes. Overlap rescues exact-term matches
// such as ticker symbols and currency codes that embedding similarity
// under-weights.
type TermOverlapReranker struct{}

func (TermOverlapReranker) Rerank(question string, items []domain.EvidenceItem) []domain.EvidenceItem {
	terms := queryTerms(question)
	if len(terms) == 0 || len(items) < 2 {
		return items
	}

	type ranked struct {
		item    domain.EvidenceItem
		overlap int
	}
	out := make([]ranked, len(items))
	for i, it := range items {
		out[i] = ranked{item: it, overlap: overlapCount(it.Text, terms)}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].overlap != out[j].overlap {
			return out[i].overlap > out[j].overlap
		}
		if out[i].item.Score != out[j].item.Score {
			return out[i].item.Score > out[j].item.Score
		}
		return out[i].item.ChunkID < out[j].item.ChunkID
	})

	result := make([]domain.EvidenceItem, len(out))
	for i, r := range out {
		result[i] = r.item
	}
	return result
}

func overlapCount(text string, terms []string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			n++
		}
	}
	return n
}
