package domain

import "context"

// JobRepository defines persistence for job entities.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	// MarkProcessing re-enters processing for a reprocess attempt, replacing
	// intensity, zoom and prompt version while leaving the original artifact
	// and face rect untouched.
	MarkProcessing(ctx context.Context, jobID string, intensity Intensity, zoom float64, promptVersion int) error
	// MarkCompleted records a successful attempt with its artifacts.
	MarkCompleted(ctx context.Context, jobID string, cropped, retouched Artifact) error
	// MarkFailed records a failed attempt with a human-readable message.
	MarkFailed(ctx context.Context, jobID string, errMsg string) error
}

// RatingRepository defines append-only persistence for rating records.
type RatingRepository interface {
	Append(ctx context.Context, record *RatingRecord) error
	ListAll(ctx context.Context) ([]RatingRecord, error)
}

// PromptOverrideRepository stores the single versioned override document.
type PromptOverrideRepository interface {
	Get(ctx context.Context) (*PromptOverrideSet, error)
	// Replace persists the new document only if the stored version still
	// equals expectedVersion, returning ErrVersionConflict otherwise.
	Replace(ctx context.Context, expectedVersion int, set *PromptOverrideSet) error
}
