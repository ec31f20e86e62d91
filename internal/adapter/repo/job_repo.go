package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Create inserts a new job record in processing state.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO jobs (id, status, intensity, zoom, face_x, face_y, face_w, face_h,
                  prompt_version, original_key, original_url, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		job.Intensity,
		job.Zoom,
		job.Face.X,
		job.Face.Y,
		job.Face.W,
		job.Face.H,
		job.PromptVersion,
		job.Original.Key,
		job.Original.URL,
		job.ErrorMessage,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
SELECT id, status, intensity, zoom, face_x, face_y, face_w, face_h, prompt_version,
       original_key, original_url, cropped_key, cropped_url,
       retouched_key, retouched_url, error_message, created_at, updated_at
FROM jobs
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, jobID)
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.Status,
		&job.Intensity,
		&job.Zoom,
		&job.Face.X,
		&job.Face.Y,
		&job.Face.W,
		&job.Face.H,
		&job.PromptVersion,
		&job.Original.Key,
		&job.Original.URL,
		&job.Cropped.Key,
		&job.Cropped.URL,
		&job.Retouched.Key,
		&job.Retouched.URL,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// MarkProcessing re-enters processing for a reprocess attempt. The original
// artifact and face rect are intentionally left untouched.
func (r *JobRepositoryPG) MarkProcessing(ctx context.Context, jobID string, intensity domain.Intensity, zoom float64, promptVersion int) error {
	query := `
UPDATE jobs
SET status = $2,
    intensity = $3,
    zoom = $4,
    prompt_version = $5,
    error_message = '',
    updated_at = NOW()
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, query, jobID, domain.JobStatusProcessing, intensity, zoom, promptVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkCompleted records a successful attempt with its artifacts.
func (r *JobRepositoryPG) MarkCompleted(ctx context.Context, jobID string, cropped, retouched domain.Artifact) error {
	query := `
UPDATE jobs
SET status = $2,
    cropped_key = $3,
    cropped_url = $4,
    retouched_key = $5,
    retouched_url = $6,
    error_message = '',
    updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, jobID, domain.JobStatusCompleted,
		cropped.Key, cropped.URL, retouched.Key, retouched.URL)
	return err
}

// MarkFailed records a failed attempt with a human-readable message.
func (r *JobRepositoryPG) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	query := `
UPDATE jobs
SET status = $2,
    error_message = $3,
    updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, jobID, domain.JobStatusFailed, errMsg)
	return err
}
