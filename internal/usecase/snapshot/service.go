package snapshot

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/valtric/dealbrain/internal/domain"
)

// Service owns snapshot identity. Only this service may declare a snapshot
// current; the rest of the pipeline pins reads to whatever snapshot it was
// handed at the start of a request.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// New creates a snapshot service.
func New(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Current returns the organization's current snapshot.
func (s *Service) Current(ctx context.Context, orgID string) (domain.Snapshot, error) {
	if orgID == "" {
		return domain.Snapshot{}, domain.NewValidationError("org_id is required")
	}
	return s.repo.Current(ctx, orgID)
}

// Promote makes the snapshot current for its organization. Promotion never
// rewrites embeddings or cached evidence packs: pack keys carry the snapshot
// id, so entries built under the old snapshot simply stop being reachable.
func (s *Service) Promote(ctx context.Context, id string) error {
	if id == "" {
		return domain.NewValidationError("snapshot id is required")
	}

	snap, err := s.repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get snapshot: %w", err)
	}
	if snap.Current {
		return nil
	}

	if err := s.repo.Promote(ctx, id); err != nil {
		return fmt.Errorf("promote snapshot: %w", err)
	}

	s.logger.Info("Snapshot promoted",
		zap.String("snapshot_id", snap.ID),
		zap.String("org_id", snap.OrgID),
		zap.String("model", snap.Model),
		zap.Int("dimensions", snap.Dimensions),
	)
	return nil
}
