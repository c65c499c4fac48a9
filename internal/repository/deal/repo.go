package deal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valtric/dealbrain/internal/domain"
)

// Repo reads deals from Postgres. Deals are written by the ingestion side;
// this service never mutates them.
type Repo struct {
	db *pgxpool.Pool
}

// New creates a deal repository.
func New(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

// Get returns a deal by id. Returns domain.ErrNotFound for unknown ids.
func (r *Repo) Get(ctx context.Context, id string) (domain.Deal, error) {
	const q = `
		SELECT id, org_id, name, industry, price, ebitda, currency
		FROM deals
		WHERE id = $1`

	var d domain.Deal
	err := r.db.QueryRow(ctx, q, id).Scan(
		&d.ID, &d.OrgID, &d.Name, &d.Industry, &d.Price, &d.EBITDA, &d.Currency,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Deal{}, fmt.Errorf("deal %s: %w", id, domain.ErrNotFound)
		}
		return domain.Deal{}, fmt.Errorf("query deal: %w", err)
	}
	return d, nil
}
