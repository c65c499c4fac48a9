package domain

import "time"

// LineageEvent links an analysis to one evidence chunk it cited or was
// grounded on. Events are append-only and read only for audit.
type LineageEvent struct {
	ID             string    `json:"id"`
	AnalysisID     string    `json:"analysis_id"`
	EvidencePackID string    `json:"evidence_pack_id"`
	Tier           Tier      `json:"tier"`
	ChunkID        string    `json:"chunk_id"`
	Score          float64   `json:"score"`
	Rank           int       `json:"rank"`
	CreatedAt      time.Time `json:"created_at"`
}

// LineageRecord is one audit write: the analysis row plus a lineage event
// per cited chunk.
type LineageRecord struct {
	AnalysisID     string
	DealID         string
	Question       string
	EvidencePackID string
	Tier           Tier
	Result         AnalysisResult
	Cited          []EvidenceItem
}
