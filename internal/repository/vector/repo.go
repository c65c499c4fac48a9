package vector

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valtric/dealbrain/internal/domain"
)

// Repo performs nearest-neighbor and lexical candidate queries against the
// pgvector-backed embeddings table. It only ever reads; embeddings are
// written by the ingestion pipeline.
type Repo struct {
	db *pgxpool.Pool
}

// New creates a vector index repository.
func New(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

// formatVector renders an embedding as a pgvector literal. Components are
// formatted with the shortest representation that round-trips a float32.
func formatVector(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// SearchKNN returns the k nearest chunks for the query vector under the
// given snapshot. Score is cosine similarity (1 - cosine distance), ties
// broken by chunk id ascending. dealID == "" searches across all deals
// (administrative use only). No vectors under the snapshot is a valid
// state: the result is empty, not an error.
func (r *Repo) SearchKNN(
	ctx context.Context, queryVector []float32, dealID, snapshotID string, k int,
) ([]domain.EvidenceItem, error) {
	vec := formatVector(queryVector)

	q := `
		SELECT c.id, c.document_id, c.text, d.source_name,
		       1 - (e.vector <=> $1::vector) AS score
		FROM embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		JOIN documents d ON d.id = c.document_id
		WHERE e.snapshot_id = $2`
	args := []any{vec, snapshotID}

	if dealID != "" {
		q += ` AND d.deal_id = $3`
		args = append(args, dealID)
	}
	q += fmt.Sprintf(`
		ORDER BY e.vector <=> $1::vector ASC, c.id ASC
		LIMIT $%d`, len(args)+1)
	args = append(args, k)

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query knn: %w", err)
	}
	defer rows.Close()

	items := []domain.EvidenceItem{}
	for rows.Next() {
		var it domain.EvidenceItem
		if err := rows.Scan(&it.ChunkID, &it.DocumentID, &it.Text, &it.Source, &it.Score); err != nil {
			return nil, fmt.Errorf("scan knn row: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knn rows: %w", err)
	}
	return items, nil
}

// SearchLexical returns up to limit chunks of the deal whose text contains
// at least one of the query terms. Only chunks embedded under the given
// snapshot qualify, so every candidate stays traceable to the pack's
// snapshot. Scores are left at zero; term scoring happens in the retriever,
// this only narrows the candidate set.
func (r *Repo) SearchLexical(
	ctx context.Context, dealID, snapshotID string, terms []string, limit int,
) ([]domain.EvidenceItem, error) {
	if len(terms) == 0 {
		return []domain.EvidenceItem{}, nil
	}

	patterns := make([]string, len(terms))
	for i, t := range terms {
		patterns[i] = "%" + escapeLike(t) + "%"
	}

	const q = `
		SELECT c.id, c.document_id, c.text, d.source_name
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		JOIN embeddings e ON e.chunk_id = c.id AND e.snapshot_id = $2
		WHERE d.deal_id = $1 AND c.text ILIKE ANY($3)
		ORDER BY c.id ASC
		LIMIT $4`

	rows, err := r.db.Query(ctx, q, dealID, snapshotID, patterns, limit)
	if err != nil {
		return nil, fmt.Errorf("query lexical candidates: %w", err)
	}
	defer rows.Close()

	items := []domain.EvidenceItem{}
	for rows.Next() {
		var it domain.EvidenceItem
		if err := rows.Scan(&it.ChunkID, &it.DocumentID, &it.Text, &it.Source); err != nil {
			return nil, fmt.Errorf("scan lexical row: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lexical rows: %w", err)
	}
	return items, nil
}

// escapeLike escapes LIKE metacharacters in a user-supplied term.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
