package domain

import "time"

// Snapshot is a named pointer to the authoritative embedding model and
// dimensionality for an organization. Exactly one snapshot is current per
// org at any time; retrieval never mixes vectors across snapshots.
type Snapshot struct {
	ID         string
	OrgID      string
	Model      string
	Dimensions int
	Current    bool
	CreatedAt  time.Time
}
