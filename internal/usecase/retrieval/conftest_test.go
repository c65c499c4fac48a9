package retrieval

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/valtric/dealbrain/internal/domain"
)

type mockSearcher struct {
	knnFn     func(ctx context.Context, vec []float32, dealID, snapshotID string, k int) ([]domain.EvidenceItem, error)
	lexicalFn func(ctx context.Context, dealID, snapshotID string, terms []string, limit int) ([]domain.EvidenceItem, error)
}

func (m *mockSearcher) SearchKNN(
	ctx context.Context, vec []float32, dealID, snapshotID string, k int,
) ([]domain.EvidenceItem, error) {
	if m.knnFn != nil {
		return m.knnFn(ctx, vec, dealID, snapshotID, k)
	}
	return []domain.EvidenceItem{}, nil
}

func (m *mockSearcher) SearchLexical(
	ctx context.Context, dealID, snapshotID string, terms []string, limit int,
) ([]domain.EvidenceItem, error) {
	if m.lexicalFn != nil {
		return m.lexicalFn(ctx, dealID, snapshotID, terms, limit)
	}
	return []domain.EvidenceItem{}, nil
}

type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	return m.result, m.err
}

type mockPackCache struct {
	getFn func(ctx context.Context, dealID, fingerprint, snapshotID string) (domain.EvidencePack, bool)
	puts  []domain.EvidencePack
}

func (m *mockPackCache) Get(
	ctx context.Context, dealID, fingerprint, snapshotID string,
) (domain.EvidencePack, bool) {
	if m.getFn != nil {
		return m.getFn(ctx, dealID, fingerprint, snapshotID)
	}
	return domain.EvidencePack{}, false
}

func (m *mockPackCache) Put(_ context.Context, pack domain.EvidencePack) {
	m.puts = append(m.puts, pack)
}

func testConfig() Config {
	return Config{
		TopK:            3,
		OverFetchFactor: 5,
		VectorWeight:    0.7,
		LexicalWeight:   0.3,
	}
}

func testDeal() domain.Deal {
	return domain.Deal{
		ID: "deal-1", OrgID: "org-1", Name: "Acme Industrial",
		Industry: "manufacturing", Price: 120, EBITDA: 12, Currency: "USD",
	}
}

func testSnapshot() domain.Snapshot {
	return domain.Snapshot{ID: "snap-1", OrgID: "org-1", Model: "text-embedding-3-small", Dimensions: 3, Current: true}
}

func newTestService(
	t *testing.T, searcher *mockSearcher, embed *mockEmbedder, cache *mockPackCache,
) *Service {
	t.Helper()
	return New(searcher, embed, cache, NoopReranker{}, testConfig(), zap.NewNop())
}
