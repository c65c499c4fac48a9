package retrieval

import (
	"context"

	"github.com/valtric/dealbrain/internal/domain"
)

// VectorSearcher defines the index access contract for hybrid retrieval.
type VectorSearcher interface {
	SearchKNN(
		ctx context.Context, queryVector []float32,
		dealID, snapshotID string, k int,
	) ([]domain.EvidenceItem, error)

	SearchLexical(
		ctx context.Context, dealID, snapshotID string, terms []string, limit int,
	) ([]domain.EvidenceItem, error)
}

// Embedder vectorizes the composed query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// PackCache stores assembled evidence packs keyed by
// (deal, question fingerprint, snapshot).
type PackCache interface {
	Get(ctx context.Context, dealID, fingerprint, snapshotID string) (domain.EvidencePack, bool)
	Put(ctx context.Context, pack domain.EvidencePack)
}
