package routing

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/valtric/dealbrain/internal/domain"
	"github.com/valtric/dealbrain/internal/metrics"
)

// Config tunes the confidence router thresholds.
type Config struct {
	// ScoreFloor is the minimum acceptable top similarity score before the
	// evidence is considered too weak for the fast tier.
	ScoreFloor float64
	// EscalateBelow triggers the single fast-to-deep escalation when a
	// fast-tier answer lands under it.
	EscalateBelow float64
	// InsufficientBelow flags the final answer as insufficient-evidence when
	// even the chosen tier lands under it.
	InsufficientBelow float64
}

// Baseline is the cheap heuristic signal computed without retrieval.
type Baseline struct {
	Conclusion string
	Multiple   float64
	Range      [2]float64
	Confidence float64
	OK         bool
}

// Decision is the router's tier choice for one request.
type Decision struct {
	Tier       domain.Tier
	Confidence float64
	Baseline   Baseline
	Reasons    []string
}

// Service decides which inference tier answers a question. Routing starts
// at fast and moves to deep when the evidence or the question's scope says
// the cheap tier is unlikely to produce a confident answer.
type Service struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a confidence router.
func New(cfg Config, logger *zap.Logger) *Service {
	return &Service{cfg: cfg, logger: logger}
}

// ComputeBaseline derives the heuristic signal from deal financials alone:
// the implied price/EBITDA multiple bucketed into a cheap/fair/rich verdict
// at fixed half confidence. Non-positive EBITDA yields no baseline.
func ComputeBaseline(deal domain.Deal) Baseline {
	m := deal.ImpliedMultiple()
	if m <= 0 {
		return Baseline{}
	}

	verdict := "fairly valued"
	switch {
	case m < 8:
		verdict = "looks cheap"
	case m > 12:
		verdict = "looks rich"
	}

	return Baseline{
		Conclusion: fmt.Sprintf("%s at %.1fx EBITDA", verdict, m),
		Multiple:   m,
		Range:      [2]float64{m * 0.85, m * 1.15},
		Confidence: 0.5,
		OK:         true,
	}
}

// Route picks the starting tier for a request given the evidence pack and
// the question's scope. Post-answer escalation is a separate decision made
// by ShouldEscalate, so one request escalates at most once.
func (s *Service) Route(deal domain.Deal, scope domain.Scope, pack domain.EvidencePack) Decision {
	d := Decision{
		Tier:     domain.TierFast,
		Baseline: ComputeBaseline(deal),
	}
	d.Confidence = d.Baseline.Confidence
	if !d.Baseline.OK {
		d.Confidence = 0.4
		d.Reasons = append(d.Reasons, "no_baseline")
	}

	if len(pack.Items) == 0 {
		d.Reasons = append(d.Reasons, "no_evidence")
		d.Tier = domain.TierDeep
	} else if pack.TopScore() < s.cfg.ScoreFloor {
		d.Reasons = append(d.Reasons, "low_similarity")
		d.Tier = domain.TierDeep
	}
	if scope.Expanded() {
		d.Reasons = append(d.Reasons, "expanded_scope")
		d.Tier = domain.TierDeep
	}

	reason := "baseline"
	if len(d.Reasons) > 0 {
		reason = d.Reasons[0]
	}
	metrics.TierDecisionsTotal.WithLabelValues(string(d.Tier), reason).Inc()

	s.logger.Debug("Tier decision",
		zap.String("deal_id", deal.ID),
		zap.String("tier", string(d.Tier)),
		zap.Float64("top_score", pack.TopScore()),
		zap.Strings("reasons", d.Reasons),
	)
	return d
}

// ShouldEscalate reports whether a fast-tier answer's confidence warrants
// the one allowed escalation to deep.
func (s *Service) ShouldEscalate(tier domain.Tier, confidence float64) bool {
	return tier == domain.TierFast && confidence < s.cfg.EscalateBelow
}

// Insufficient reports whether the final answer must carry the
// insufficient-evidence risk flag instead of failing the request.
func (s *Service) Insufficient(confidence float64) bool {
	return confidence < s.cfg.InsufficientBelow
}
