package domain

import "strings"

// Tier is an inference tier.
type Tier string

// Inference tiers. Fast answers cheap questions; deep is the escalation
// target and runs at most once per request.
const (
	TierFast Tier = "fast"
	TierDeep Tier = "deep"
)

// Risk flags the pipeline injects itself (the model may add its own).
const (
	RiskNoCitableEvidence    = "no_citable_evidence"
	RiskInsufficientEvidence = "insufficient_evidence"
	RiskDegradedRetrieval    = "degraded_retrieval"
)

// SourceIDPrefix is the required prefix of every citation source id.
const SourceIDPrefix = "chunk:"

// CompCitation is one cited comparable, traceable to an evidence chunk.
type CompCitation struct {
	SourceID string `json:"source_id"`
	Name     string `json:"name,omitempty"`
	Ticker   string `json:"ticker,omitempty"`
}

// ChunkID returns the chunk identifier the citation references, or "" when
// the source id does not carry the chunk prefix.
func (c CompCitation) ChunkID() string {
	if !strings.HasPrefix(c.SourceID, SourceIDPrefix) {
		return ""
	}
	return c.SourceID[len(SourceIDPrefix):]
}

// AnalysisResult is the validated output of one question-answering cycle.
// The seven fields are a hard contract: the validator rejects anything more
// or less.
type AnalysisResult struct {
	Conclusion      string         `json:"conclusion"`
	ImpliedMultiple float64        `json:"implied_multiple"`
	Range           [2]float64     `json:"range"`
	Reasoning       string         `json:"reasoning"`
	CompsUsed       []CompCitation `json:"comps_used"`
	RiskFlags       []string       `json:"risk_flags"`
	Confidence      float64        `json:"confidence"`
}

// AddRiskFlag appends a flag unless it is already present.
func (r *AnalysisResult) AddRiskFlag(flag string) {
	for _, f := range r.RiskFlags {
		if f == flag {
			return
		}
	}
	r.RiskFlags = append(r.RiskFlags, flag)
}
