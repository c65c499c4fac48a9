package analysis

import (
	"context"

	"github.com/valtric/dealbrain/internal/domain"
	"github.com/valtric/dealbrain/internal/usecase/routing"
)

// DealReader loads the deal under analysis.
type DealReader interface {
	Get(ctx context.Context, id string) (domain.Deal, error)
}

// SnapshotReader resolves the organization's current snapshot.
type SnapshotReader interface {
	Current(ctx context.Context, orgID string) (domain.Snapshot, error)
}

// Retriever assembles the evidence pack for a question.
type Retriever interface {
	Retrieve(ctx context.Context, deal domain.Deal, snap domain.Snapshot, question string) (domain.EvidencePack, error)
}

// Router decides the inference tier and the escalation and sufficiency
// thresholds.
type Router interface {
	Route(deal domain.Deal, scope domain.Scope, pack domain.EvidencePack) routing.Decision
	ShouldEscalate(tier domain.Tier, confidence float64) bool
	Insufficient(confidence float64) bool
}

// LineageStore records and reads the audit trail.
type LineageStore interface {
	Record(ctx context.Context, rec domain.LineageRecord) error
	ListByAnalysis(ctx context.Context, analysisID string) ([]domain.LineageEvent, error)
}
