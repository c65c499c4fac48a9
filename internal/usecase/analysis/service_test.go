package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/valtric/dealbrain/internal/domain"
)

func TestAnalyze_FastPath(t *testing.T) {
	env := newTestEnv(t, &mockRetriever{pack: strongPack()})

	ans, err := env.svc.Analyze(context.Background(), "deal-1", "what multiple does the market support")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ans.Tier != domain.TierFast {
		t.Fatalf("strong evidence must answer on the fast tier, got %s", ans.Tier)
	}
	if env.fast.calls != 1 || env.deep.calls != 0 {
		t.Fatalf("expected one fast call and no deep calls, got %d/%d", env.fast.calls, env.deep.calls)
	}
	if ans.AnalysisID == "" {
		t.Fatal("expected an analysis id")
	}
	if len(env.lineage.records) != 1 {
		t.Fatalf("expected one lineage record, got %d", len(env.lineage.records))
	}
	rec := env.lineage.records[0]
	if rec.EvidencePackID != "pack-1" || rec.Tier != domain.TierFast {
		t.Fatalf("unexpected lineage record: %+v", rec)
	}
	if len(rec.Cited) != 1 || rec.Cited[0].ChunkID != "c1" {
		t.Fatalf("lineage must carry the cited chunks, got %+v", rec.Cited)
	}
}

func TestAnalyze_UnknownDeal(t *testing.T) {
	env := newTestEnv(t, &mockRetriever{pack: strongPack()})
	env.svc.deals = &mockDeals{getFn: func(_ context.Context, id string) (domain.Deal, error) {
		return domain.Deal{}, domain.ErrNotFound
	}}

	_, err := env.svc.Analyze(context.Background(), "missing", "any question")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAnalyze_EmptyQuestion(t *testing.T) {
	env := newTestEnv(t, &mockRetriever{pack: strongPack()})

	_, err := env.svc.Analyze(context.Background(), "deal-1", "")
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAnalyze_RepairThenSuccess(t *testing.T) {
	env := newTestEnv(t, &mockRetriever{pack: strongPack()})
	attempt := 0
	env.fast.fn = func(_ context.Context, prompt string) (string, error) {
		attempt++
		if attempt == 1 {
			return "not json at all", nil
		}
		return answerJSON(0.8, "c1"), nil
	}

	ans, err := env.svc.Analyze(context.Background(), "deal-1", "what multiple")
	if err != nil {
		t.Fatalf("one regeneration must be allowed, got %v", err)
	}
	if env.fast.calls != 2 {
		t.Fatalf("expected exactly two completions, got %d", env.fast.calls)
	}
	if ans.Result.Confidence != 0.8 {
		t.Fatalf("unexpected result: %+v", ans.Result)
	}
}

func TestAnalyze_FailsClosedAfterRepair(t *testing.T) {
	env := newTestEnv(t, &mockRetriever{pack: strongPack()})
	env.fast.fn = func(_ context.Context, _ string) (string, error) {
		return "still not json", nil
	}

	_, err := env.svc.Analyze(context.Background(), "deal-1", "what multiple")
	if !errors.Is(err, domain.ErrContractViolation) {
		t.Fatalf("expected ErrContractViolation, got %v", err)
	}
	if env.fast.calls != 2 {
		t.Fatalf("expected exactly two completions before failing closed, got %d", env.fast.calls)
	}
	if len(env.lineage.records) != 0 {
		t.Fatal("a failed request must not record lineage")
	}
}

func TestAnalyze_TimeoutRetriedOnce(t *testing.T) {
	env := newTestEnv(t, &mockRetriever{pack: strongPack()})
	attempt := 0
	env.fast.fn = func(_ context.Context, _ string) (string, error) {
		attempt++
		if attempt == 1 {
			return "", domain.ErrProviderTimeout
		}
		return answerJSON(0.8, "c1"), nil
	}

	_, err := env.svc.Analyze(context.Background(), "deal-1", "what multiple")
	if err != nil {
		t.Fatalf("single timeout must be retried, got %v", err)
	}
	if env.fast.calls != 2 {
		t.Fatalf("expected retry after timeout, got %d calls", env.fast.calls)
	}
}

func TestAnalyze_TimeoutTwiceSurfaces(t *testing.T) {
	env := newTestEnv(t, &mockRetriever{pack: strongPack()})
	env.fast.fn = func(_ context.Context, _ string) (string, error) {
		return "", domain.ErrProviderTimeout
	}

	_, err := env.svc.Analyze(context.Background(), "deal-1", "what multiple")
	if !errors.Is(err, domain.ErrProviderTimeout) {
		t.Fatalf("expected ErrProviderTimeout, got %v", err)
	}
	if env.fast.calls != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", env.fast.calls)
	}
}

func TestAnalyze_EscalatesOnceOnLowConfidence(t *testing.T) {
	env := newTestEnv(t, &mockRetriever{pack: strongPack()})
	env.fast.fn = func(_ context.Context, _ string) (string, error) {
		return answerJSON(0.4, "c1"), nil
	}
	env.deep.fn = func(_ context.Context, _ string) (string, error) {
		return answerJSON(0.9, "c1", "c2"), nil
	}

	ans, err := env.svc.Analyze(context.Background(), "deal-1", "what multiple")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ans.Tier != domain.TierDeep {
		t.Fatalf("low-confidence fast answer must escalate, got %s", ans.Tier)
	}
	if env.fast.calls != 1 || env.deep.calls != 1 {
		t.Fatalf("expected one call per tier, got %d/%d", env.fast.calls, env.deep.calls)
	}
	if ans.Result.Confidence != 0.9 {
		t.Fatalf("expected the deep answer, got %+v", ans.Result)
	}
}

func TestAnalyze_DeepLowConfidenceFlagsInsufficient(t *testing.T) {
	// Empty evidence routes straight to deep; a weak deep answer is still
	// returned, flagged, never escalated again.
	env := newTestEnv(t, &mockRetriever{pack: domain.EvidencePack{ID: "pack-1"}})
	env.deep.fn = func(_ context.Context, _ string) (string, error) {
		return answerJSON(0.3), nil
	}

	ans, err := env.svc.Analyze(context.Background(), "deal-1", "what multiple")
	if err != nil {
		t.Fatalf("weak deep answers must not fail the request, got %v", err)
	}
	if ans.Tier != domain.TierDeep {
		t.Fatalf("empty evidence must route deep, got %s", ans.Tier)
	}
	if env.fast.calls != 0 || env.deep.calls != 1 {
		t.Fatalf("deep must not escalate again, got %d/%d", env.fast.calls, env.deep.calls)
	}
	wantFlags := map[string]bool{
		domain.RiskNoCitableEvidence:    false,
		domain.RiskInsufficientEvidence: false,
	}
	for _, f := range ans.Result.RiskFlags {
		if _, ok := wantFlags[f]; ok {
			wantFlags[f] = true
		}
	}
	for flag, seen := range wantFlags {
		if !seen {
			t.Fatalf("expected %s flag, got %v", flag, ans.Result.RiskFlags)
		}
	}
	if ans.Result.Confidence > 0.5 {
		t.Fatalf("no-evidence confidence must be at most 0.50, got %v", ans.Result.Confidence)
	}
}

func TestAnalyze_FailedEscalationKeepsFastAnswer(t *testing.T) {
	env := newTestEnv(t, &mockRetriever{pack: strongPack()})
	env.fast.fn = func(_ context.Context, _ string) (string, error) {
		return answerJSON(0.4, "c1"), nil
	}
	env.deep.fn = func(_ context.Context, _ string) (string, error) {
		return "", domain.ErrInferenceProviderError
	}

	ans, err := env.svc.Analyze(context.Background(), "deal-1", "what multiple")
	if err != nil {
		t.Fatalf("a failed escalation must not fail the request, got %v", err)
	}
	if ans.Tier != domain.TierFast {
		t.Fatalf("expected the validated fast answer, got %s", ans.Tier)
	}
	found := false
	for _, f := range ans.Result.RiskFlags {
		if f == domain.RiskInsufficientEvidence {
			found = true
		}
	}
	if !found {
		t.Fatalf("low final confidence must flag insufficient evidence, got %v", ans.Result.RiskFlags)
	}
}

func TestAnalyze_DegradedRetrievalFlagged(t *testing.T) {
	pack := domain.EvidencePack{ID: "pack-1", Degraded: true, DegradedBy: "embedding"}
	env := newTestEnv(t, &mockRetriever{pack: pack})
	env.deep.fn = func(_ context.Context, _ string) (string, error) {
		return answerJSON(0.8), nil
	}

	ans, err := env.svc.Analyze(context.Background(), "deal-1", "what multiple")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, f := range ans.Result.RiskFlags {
		if f == domain.RiskDegradedRetrieval {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %s flag, got %v", domain.RiskDegradedRetrieval, ans.Result.RiskFlags)
	}
}

func TestAnalyze_LineageFailureDoesNotBlock(t *testing.T) {
	env := newTestEnv(t, &mockRetriever{pack: strongPack()})
	env.lineage.err = errors.New("postgres down")

	ans, err := env.svc.Analyze(context.Background(), "deal-1", "what multiple")
	if err != nil {
		t.Fatalf("lineage failure must not block the answer, got %v", err)
	}
	if ans.Result.Conclusion == "" {
		t.Fatalf("expected a full result, got %+v", ans.Result)
	}
}

func TestAnalyze_RetrieverErrorSurfaces(t *testing.T) {
	env := newTestEnv(t, &mockRetriever{err: domain.ErrVectorDimMismatch})

	_, err := env.svc.Analyze(context.Background(), "deal-1", "what multiple")
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}
