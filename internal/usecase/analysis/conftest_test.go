package analysis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/valtric/dealbrain/internal/domain"
	"github.com/valtric/dealbrain/internal/usecase/routing"
)

type mockDeals struct {
	getFn func(ctx context.Context, id string) (domain.Deal, error)
}

func (m *mockDeals) Get(ctx context.Context, id string) (domain.Deal, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return domain.Deal{ID: id, OrgID: "org-1", Name: "Acme", Industry: "manufacturing", Price: 100, EBITDA: 10, Currency: "USD"}, nil
}

type mockSnaps struct {
	currentFn func(ctx context.Context, orgID string) (domain.Snapshot, error)
}

func (m *mockSnaps) Current(ctx context.Context, orgID string) (domain.Snapshot, error) {
	if m.currentFn != nil {
		return m.currentFn(ctx, orgID)
	}
	return domain.Snapshot{ID: "snap-1", OrgID: orgID, Dimensions: 3, Current: true}, nil
}

type mockRetriever struct {
	pack domain.EvidencePack
	err  error
}

func (m *mockRetriever) Retrieve(
	_ context.Context, _ domain.Deal, _ domain.Snapshot, _ string,
) (domain.EvidencePack, error) {
	return m.pack, m.err
}

type mockCompleter struct {
	fn    func(ctx context.Context, prompt string) (string, error)
	calls int
}

func (m *mockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	m.calls++
	return m.fn(ctx, prompt)
}

type mockTiers struct {
	fast *mockCompleter
	deep *mockCompleter
}

func (m *mockTiers) Tier(tier domain.Tier) domain.Completer {
	if tier == domain.TierDeep {
		return m.deep
	}
	return m.fast
}

type mockLineage struct {
	records []domain.LineageRecord
	err     error
	events  []domain.LineageEvent
}

func (m *mockLineage) Record(_ context.Context, rec domain.LineageRecord) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *mockLineage) ListByAnalysis(_ context.Context, _ string) ([]domain.LineageEvent, error) {
	return m.events, nil
}

func strongPack() domain.EvidencePack {
	return domain.EvidencePack{
		ID:          "pack-1",
		DealID:      "deal-1",
		SnapshotID:  "snap-1",
		Fingerprint: "fp-1",
		Items: []domain.EvidenceItem{
			{ChunkID: "c1", DocumentID: "d1", Text: "peer traded at 10x EBITDA", Source: "cim.pdf", Score: 0.9},
			{ChunkID: "c2", DocumentID: "d1", Text: "sector comps 9-11x", Source: "cim.pdf", Score: 0.8},
		},
	}
}

// answerJSON renders a contract-conforming payload citing the given chunks.
func answerJSON(confidence float64, chunkIDs ...string) string {
	comps := ""
	for i, id := range chunkIDs {
		if i > 0 {
			comps += ","
		}
		comps += fmt.Sprintf(`{"source_id":"chunk:%s"}`, id)
	}
	return fmt.Sprintf(`{
		"conclusion": "fairly valued at 10.0x EBITDA",
		"implied_multiple": 10.0,
		"range": [8.5, 11.5],
		"reasoning": "peers trade in a 9-11x band",
		"comps_used": [%s],
		"risk_flags": [],
		"confidence": %g
	}`, comps, confidence)
}

type testEnv struct {
	svc     *Service
	fast    *mockCompleter
	deep    *mockCompleter
	lineage *mockLineage
}

func newTestEnv(t *testing.T, retriever *mockRetriever) *testEnv {
	t.Helper()
	env := &testEnv{
		fast: &mockCompleter{fn: func(_ context.Context, _ string) (string, error) {
			return answerJSON(0.8, "c1"), nil
		}},
		deep: &mockCompleter{fn: func(_ context.Context, _ string) (string, error) {
			return answerJSON(0.8, "c1"), nil
		}},
		lineage: &mockLineage{},
	}
	router := routing.New(routing.Config{
		ScoreFloor:        0.60,
		EscalateBelow:     0.55,
		InsufficientBelow: 0.55,
	}, zap.NewNop())

	env.svc = New(
		&mockDeals{}, &mockSnaps{}, retriever, router,
		&mockTiers{fast: env.fast, deep: env.deep}, env.lineage,
		Config{InferenceTimeout: time.Second, MaxInFlight: 2},
		zap.NewNop(),
	)
	return env
}
