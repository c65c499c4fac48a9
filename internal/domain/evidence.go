package domain

import "time"

// EvidenceItem is one ranked evidence hit: a chunk reference with the
// blended relevance score it earned for a particular question.
type EvidenceItem struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Text       string  `json:"text"`
	Source     string  `json:"source,omitempty"`
	Score      float64 `json:"score"`
}

// EvidencePack is the cached, ordered evidence set for one
// (deal, question fingerprint, snapshot) key. Packs are derived data:
// reconstructible, last-writer-wins under races.
type EvidencePack struct {
	ID          string         `json:"id"`
	DealID      string         `json:"deal_id"`
	SnapshotID  string         `json:"snapshot_id"`
	Fingerprint string         `json:"fingerprint"`
	Items       []EvidenceItem `json:"items"`
	Degraded    bool           `json:"degraded"`
	DegradedBy  string         `json:"degraded_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// TopScore returns the best similarity score in the pack, or 0 when empty.
func (p *EvidencePack) TopScore() float64 {
	if len(p.Items) == 0 {
		return 0
	}
	return p.Items[0].Score
}

// ChunkIDs returns the set of chunk identifiers the pack contains.
func (p *EvidencePack) ChunkIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(p.Items))
	for _, it := range p.Items {
		ids[it.ChunkID] = struct{}{}
	}
	return ids
}
