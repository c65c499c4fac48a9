package snapshot

import (
	"context"

	"github.com/valtric/dealbrain/internal/domain"
)

// Repository defines the storage contract for snapshot operations.
type Repository interface {
	Current(ctx context.Context, orgID string) (domain.Snapshot, error)
	Get(ctx context.Context, id string) (domain.Snapshot, error)
	Promote(ctx context.Context, id string) error
}
