package lineage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valtric/dealbrain/internal/domain"
)

// Repo appends lineage events to Postgres. Events are never mutated or
// deleted; reads serve audit only.
type Repo struct {
	db *pgxpool.Pool
}

// New creates a lineage repository.
func New(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

// Record persists the analysis and its lineage events in one transaction.
func (r *Repo) Record(ctx context.Context, rec domain.LineageRecord) error {
	output, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("marshal analysis output: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin lineage record: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()

	if _, err = tx.Exec(ctx, `
		INSERT INTO analyses (id, deal_id, question, tier, output, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.AnalysisID, rec.DealID, rec.Question, string(rec.Tier), output, now,
	); err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}

	for rank, it := range rec.Cited {
		if _, err = tx.Exec(ctx, `
			INSERT INTO lineage_events
				(id, analysis_id, evidence_pack_id, tier, chunk_id, score, rank, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.NewString(), rec.AnalysisID, rec.EvidencePackID, string(rec.Tier),
			it.ChunkID, it.Score, rank, now,
		); err != nil {
			return fmt.Errorf("insert lineage event: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit lineage record: %w", err)
	}
	return nil
}

// ListByAnalysis returns the lineage events recorded for an analysis,
// ordered by rank.
func (r *Repo) ListByAnalysis(ctx context.Context, analysisID string) ([]domain.LineageEvent, error) {
	const q = `
		SELECT id, analysis_id, evidence_pack_id, tier, chunk_id, score, rank, created_at
		FROM lineage_events
		WHERE analysis_id = $1
		ORDER BY rank ASC`

	rows, err := r.db.Query(ctx, q, analysisID)
	if err != nil {
		return nil, fmt.Errorf("query lineage events: %w", err)
	}
	defer rows.Close()

	events := []domain.LineageEvent{}
	for rows.Next() {
		var (
			e    domain.LineageEvent
			tier string
		)
		if err := rows.Scan(
			&e.ID, &e.AnalysisID, &e.EvidencePackID, &tier,
			&e.ChunkID, &e.Score, &e.Rank, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan lineage row: %w", err)
		}
		e.Tier = domain.Tier(tier)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lineage rows: %w", err)
	}
	return events, nil
}
