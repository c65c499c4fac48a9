package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valtric/dealbrain/internal/domain"
)

// Repo stores embedding-model snapshots in Postgres. The is_current flag is
// maintained transactionally so readers always see either the old or the
// new current snapshot, never both.
type Repo struct {
	db *pgxpool.Pool
}

// New creates a snapshot repository.
func New(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

// Current returns the organization's current snapshot.
func (r *Repo) Current(ctx context.Context, orgID string) (domain.Snapshot, error) {
	const q = `
		SELECT id, org_id, model, dimensions, is_current, created_at
		FROM snapshots
		WHERE org_id = $1 AND is_current`

	var s domain.Snapshot
	err := r.db.QueryRow(ctx, q, orgID).Scan(
		&s.ID, &s.OrgID, &s.Model, &s.Dimensions, &s.Current, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Snapshot{}, fmt.Errorf("current snapshot for org %s: %w", orgID, domain.ErrNotFound)
		}
		return domain.Snapshot{}, fmt.Errorf("query current snapshot: %w", err)
	}
	return s, nil
}

// Get returns a snapshot by id.
func (r *Repo) Get(ctx context.Context, id string) (domain.Snapshot, error) {
	const q = `
		SELECT id, org_id, model, dimensions, is_current, created_at
		FROM snapshots
		WHERE id = $1`

	var s domain.Snapshot
	err := r.db.QueryRow(ctx, q, id).Scan(
		&s.ID, &s.OrgID, &s.Model, &s.Dimensions, &s.Current, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Snapshot{}, fmt.Errorf("snapshot %s: %w", id, domain.ErrNotFound)
		}
		return domain.Snapshot{}, fmt.Errorf("query snapshot: %w", err)
	}
	return s, nil
}

// Promote makes the given snapshot current for its organization. The swap
// runs in one transaction; promotion never touches existing embeddings or
// cached evidence packs.
func (r *Repo) Promote(ctx context.Context, id string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin promote: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var orgID string
	err = tx.QueryRow(ctx, `SELECT org_id FROM snapshots WHERE id = $1`, id).Scan(&orgID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("snapshot %s: %w", id, domain.ErrNotFound)
		}
		return fmt.Errorf("lookup snapshot org: %w", err)
	}

	if _, err = tx.Exec(ctx,
		`UPDATE snapshots SET is_current = false WHERE org_id = $1 AND is_current`, orgID,
	); err != nil {
		return fmt.Errorf("clear current snapshot: %w", err)
	}

	if _, err = tx.Exec(ctx,
		`UPDATE snapshots SET is_current = true WHERE id = $1`, id,
	); err != nil {
		return fmt.Errorf("set current snapshot: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit promote: %w", err)
	}
	return nil
}
