package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/valtric/dealbrain/internal/domain"
	"github.com/valtric/dealbrain/internal/metrics"
	"github.com/valtric/dealbrain/internal/usecase/routing"
)

// Config tunes the orchestrator's inference pool.
type Config struct {
	// InferenceTimeout bounds a single completion call. A timed-out call is
	// retried once before ErrProviderTimeout surfaces.
	InferenceTimeout time.Duration
	// MaxInFlight bounds concurrent completion calls across all requests.
	MaxInFlight int64
}

// Answer is one finished question-answering cycle.
type Answer struct {
	AnalysisID string
	Tier       domain.Tier
	Result     domain.AnalysisResult
}

// Service orchestrates a request through the pipeline: evidence retrieval,
// tier routing, bounded inference, contract validation, the single allowed
// escalation, and best-effort lineage recording.
type Service struct {
	deals      DealReader
	snaps      SnapshotReader
	retriever  Retriever
	router     Router
	completers domain.TierCompleter
	lineage    LineageStore
	sem        *semaphore.Weighted
	cfg        Config
	logger     *zap.Logger
}

// New creates the analysis orchestrator.
func New(
	deals DealReader,
	snaps SnapshotReader,
	retriever Retriever,
	router Router,
	completers domain.TierCompleter,
	lineage LineageStore,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1
	}
	return &Service{
		deals:      deals,
		snaps:      snaps,
		retriever:  retriever,
		router:     router,
		completers: completers,
		lineage:    lineage,
		sem:        semaphore.NewWeighted(cfg.MaxInFlight),
		cfg:        cfg,
		logger:     logger,
	}
}

// Analyze answers a valuation question about a deal.
func (s *Service) Analyze(ctx context.Context, dealID, question string) (Answer, error) {
	if question == "" {
		return Answer{}, domain.NewValidationError("question is required")
	}

	deal, err := s.deals.Get(ctx, dealID)
	if err != nil {
		return Answer{}, fmt.Errorf("get deal: %w", err)
	}

	snap, err := s.snaps.Current(ctx, deal.OrgID)
	if err != nil {
		return Answer{}, fmt.Errorf("current snapshot: %w", err)
	}

	pack, err := s.retriever.Retrieve(ctx, deal, snap, question)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve evidence: %w", err)
	}

	scope := domain.ScopeOf(question)
	decision := s.router.Route(deal, scope, pack)

	tier := decision.Tier
	result, err := s.answer(ctx, tier, deal, question, decision.Baseline, pack)
	if err != nil {
		return Answer{}, err
	}

	if s.router.ShouldEscalate(tier, result.Confidence) {
		metrics.EscalationsTotal.Inc()
		deepResult, deepErr := s.answer(ctx, domain.TierDeep, deal, question, decision.Baseline, pack)
		if deepErr != nil {
			// The fast answer already passed validation; a failed escalation
			// downgrades to it rather than failing the request.
			s.logger.Warn("Escalation failed, keeping fast-tier answer",
				zap.String("deal_id", deal.ID), zap.Error(deepErr))
		} else {
			tier = domain.TierDeep
			result = deepResult
		}
	}

	if pack.Degraded {
		result.AddRiskFlag(domain.RiskDegradedRetrieval)
	}
	if s.router.Insufficient(result.Confidence) {
		result.AddRiskFlag(domain.RiskInsufficientEvidence)
	}

	ans := Answer{AnalysisID: uuid.NewString(), Tier: tier, Result: result}
	s.recordLineage(ctx, ans, deal, question, pack)
	return ans, nil
}

// Lineage returns the audit events recorded for an analysis.
func (s *Service) Lineage(ctx context.Context, analysisID string) ([]domain.LineageEvent, error) {
	if analysisID == "" {
		return nil, domain.NewValidationError("analysis id is required")
	}
	return s.lineage.ListByAnalysis(ctx, analysisID)
}

// answer runs one tier's completion plus validation, allowing exactly one
// corrective regeneration on a structural violation.
func (s *Service) answer(
	ctx context.Context, tier domain.Tier, deal domain.Deal,
	question string, baseline routing.Baseline, pack domain.EvidencePack,
) (domain.AnalysisResult, error) {
	completer := s.completers.Tier(tier)
	prompt := BuildPrompt(deal, question, baseline, pack)

	raw, err := s.complete(ctx, completer, prompt)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	result, err := ValidateAnswer(raw, pack)
	if err == nil {
		return result, nil
	}

	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		return domain.AnalysisResult{}, err
	}

	metrics.ContractRetriesTotal.Inc()
	s.logger.Warn("Schema violation, requesting regeneration",
		zap.String("deal_id", deal.ID),
		zap.String("tier", string(tier)),
		zap.String("reason", ve.Reason),
	)

	raw, err = s.complete(ctx, completer, BuildRepairPrompt(prompt, ve.Reason))
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	result, err = ValidateAnswer(raw, pack)
	if err != nil {
		metrics.ContractViolationsTotal.Inc()
		return domain.AnalysisResult{}, fmt.Errorf("%w: %s", domain.ErrContractViolation, reasonOf(err))
	}
	return result, nil
}

// complete runs one completion under the in-flight pool and the inference
// timeout, retrying once on a provider timeout.
func (s *Service) complete(ctx context.Context, completer domain.Completer, prompt string) (string, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquire inference slot: %w", err)
	}
	defer s.sem.Release(1)

	raw, err := s.completeOnce(ctx, completer, prompt)
	if err == nil {
		return raw, nil
	}
	if !errors.Is(err, domain.ErrProviderTimeout) && !errors.Is(err, context.DeadlineExceeded) {
		return "", err
	}

	raw, err = s.completeOnce(ctx, completer, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", domain.ErrProviderTimeout
		}
		return "", err
	}
	return raw, nil
}

func (s *Service) completeOnce(ctx context.Context, completer domain.Completer, prompt string) (string, error) {
	if s.cfg.InferenceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.InferenceTimeout)
		defer cancel()
	}
	return completer.Complete(ctx, prompt)
}

// recordLineage persists the audit trail. Failures are logged and counted,
// never propagated: observability stays off the correctness path.
func (s *Service) recordLineage(
	ctx context.Context, ans Answer, deal domain.Deal, question string, pack domain.EvidencePack,
) {
	cited := make(map[string]struct{}, len(ans.Result.CompsUsed))
	for _, comp := range ans.Result.CompsUsed {
		cited[comp.ChunkID()] = struct{}{}
	}

	items := make([]domain.EvidenceItem, 0, len(cited))
	for _, it := range pack.Items {
		if _, ok := cited[it.ChunkID]; ok {
			items = append(items, it)
		}
	}

	rec := domain.LineageRecord{
		AnalysisID:     ans.AnalysisID,
		DealID:         deal.ID,
		Question:       question,
		EvidencePackID: pack.ID,
		Tier:           ans.Tier,
		Result:         ans.Result,
		Cited:          items,
	}
	if err := s.lineage.Record(ctx, rec); err != nil {
		metrics.LineageWriteFailuresTotal.Inc()
		s.logger.Error("Failed to record lineage",
			zap.String("analysis_id", ans.AnalysisID),
			zap.String("deal_id", deal.ID),
			zap.Error(err),
		)
	}
}

func reasonOf(err error) string {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return err.Error()
}
