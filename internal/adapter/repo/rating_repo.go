package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// RatingRepositoryPG implements domain.RatingRepository. Ratings are
// append-only and never mutated after insert.
type RatingRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewRatingRepository creates a new rating repository backed by PostgreSQL.
func NewRatingRepository(pool *pgxpool.Pool) *RatingRepositoryPG {
	return &RatingRepositoryPG{pool: pool}
}

// Append inserts one rating record.
func (r *RatingRepositoryPG) Append(ctx context.Context, record *domain.RatingRecord) error {
	query := `
INSERT INTO ratings (job_id, intensity, rating, prompt_version, created_at)
VALUES ($1, $2, $3, $4, $5);
`
	_, err := r.pool.Exec(ctx, query,
		record.JobID,
		record.Intensity,
		record.Rating,
		record.PromptVersion,
		record.CreatedAt,
	)
	return err
}

// ListAll returns every rating record in insertion order.
func (r *RatingRepositoryPG) ListAll(ctx context.Context) ([]domain.RatingRecord, error) {
	query := `
SELECT job_id, intensity, rating, prompt_version, created_at
FROM ratings
ORDER BY id;
`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.RatingRecord
	for rows.Next() {
		var rec domain.RatingRecord
		if err := rows.Scan(&rec.JobID, &rec.Intensity, &rec.Rating, &rec.PromptVersion, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
