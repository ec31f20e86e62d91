package retouchjob

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"server/internal/cropper"
	"server/internal/domain"
	"server/internal/infra"
	"server/internal/providers/retouch"
	"server/internal/storage"
)

const artifactMIME = "image/jpeg"

// Orchestrator owns the job lifecycle: submission, background processing,
// status reads, reprocessing and rating. Long-running work runs in detached
// goroutines; the originating request returns as soon as the job record
// exists.
type Orchestrator struct {
	jobs      domain.JobRepository
	overrides domain.PromptOverrideRepository
	ratings   domain.RatingRepository
	blobs     storage.Store
	detector  retouch.Detector
	retoucher retouch.Retoucher
	logger    infra.Logger

	cache    *statusCache
	inflight *jobLocks

	// onRated is invoked asynchronously after each appended rating, wired to
	// the feedback revision check.
	onRated func(context.Context)
}

// Options collects the orchestrator's collaborators.
type Options struct {
	Jobs      domain.JobRepository
	Overrides domain.PromptOverrideRepository
	Ratings   domain.RatingRepository
	Blobs     storage.Store
	Detector  retouch.Detector
	Retoucher retouch.Retoucher
	Logger    infra.Logger
	OnRated   func(context.Context)
}

func NewOrchestrator(opts Options) *Orchestrator {
	return &Orchestrator{
		jobs:      opts.Jobs,
		overrides: opts.Overrides,
		ratings:   opts.Ratings,
		blobs:     opts.Blobs,
		detector:  opts.Detector,
		retoucher: opts.Retoucher,
		logger:    opts.Logger,
		cache:     newStatusCache(),
		inflight:  newJobLocks(),
		onRated:   opts.OnRated,
	}
}

// SubmitInput is one uploaded photo plus its processing parameters.
type SubmitInput struct {
	Data        []byte
	ContentType string
	Intensity   domain.Intensity
	Zoom        float64
}

// Submit validates the upload, detects the face, persists the job record and
// schedules background processing. Detection failures are surfaced
// synchronously and create no record.
func (o *Orchestrator) Submit(ctx context.Context, in SubmitInput) (*domain.Job, error) {
	src, err := imaging.Decode(bytes.NewReader(in.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: could not read image file", domain.ErrInvalidUpload)
	}

	face, err := o.detector.Detect(ctx, in.Data, in.ContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: face detection: %v", domain.ErrProviderFailure, err)
	}
	if face == nil {
		return nil, domain.ErrNoFaceDetected
	}

	zoom := in.Zoom
	if zoom <= 0 {
		zoom = 1.0
	}

	set, err := o.overrides.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load prompt overrides: %w", err)
	}
	prompt := set.ActivePrompt(in.Intensity)

	jobID := uuid.NewString()
	originalKey := fmt.Sprintf("jobs/%s/original.jpg", jobID)

	originalData, err := encodeJPEG(src, 95)
	if err != nil {
		return nil, err
	}
	originalURL, err := o.blobs.Put(ctx, originalKey, originalData, artifactMIME)
	if err != nil {
		return nil, fmt.Errorf("store original: %w", err)
	}

	job := &domain.Job{
		ID:            jobID,
		Status:        domain.JobStatusProcessing,
		Intensity:     in.Intensity,
		Zoom:          zoom,
		Face:          *face,
		PromptVersion: set.Version,
		Original:      domain.Artifact{Key: originalKey, URL: originalURL},
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		// Drop the orphaned original so failed submissions leave no artifacts.
		if rmErr := o.blobs.RemovePrefix(ctx, "jobs/"+jobID); rmErr != nil {
			o.logger.Warn().Err(rmErr).Str("job_id", jobID).Msg("retouchjob: orphan cleanup failed")
		}
		return nil, fmt.Errorf("create job: %w", err)
	}
	o.cache.set(jobID, domain.JobStatusProcessing)

	go o.process(jobID, src, *face, in.Intensity, zoom, prompt)

	return job, nil
}

// Status resolves a job from the durable record first; when the record is
// gone but this process scheduled the job, the ephemeral cache still answers.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err == nil {
		return job, nil
	}
	if status, ok := o.cache.get(jobID); ok {
		return &domain.Job{ID: jobID, Status: status}, nil
	}
	return nil, err
}

// Reprocess re-runs processing for an existing job with new parameters. The
// stored original and face rect are reused; detection never runs again.
func (o *Orchestrator) Reprocess(ctx context.Context, jobID string, intensity domain.Intensity, zoom float64) (*domain.Job, error) {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Original.Key == "" || job.Face.W <= 0 || job.Face.H <= 0 {
		return nil, fmt.Errorf("%w: original image or face data missing", domain.ErrNotFound)
	}

	if zoom <= 0 {
		zoom = 1.0
	}

	set, err := o.overrides.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load prompt overrides: %w", err)
	}
	prompt := set.ActivePrompt(intensity)

	if err := o.jobs.MarkProcessing(ctx, jobID, intensity, zoom, set.Version); err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}
	o.cache.set(jobID, domain.JobStatusProcessing)

	face := job.Face
	originalKey := job.Original.Key
	go func() {
		ctx := context.Background()
		data, err := o.blobs.Get(ctx, originalKey)
		if err != nil {
			o.fail(ctx, jobID, fmt.Sprintf("load original: %v", err))
			return
		}
		src, err := imaging.Decode(bytes.NewReader(data))
		if err != nil {
			o.fail(ctx, jobID, fmt.Sprintf("decode original: %v", err))
			return
		}
		o.process(jobID, src, face, intensity, zoom, prompt)
	}()

	job.Status = domain.JobStatusProcessing
	job.Intensity = intensity
	job.Zoom = zoom
	job.PromptVersion = set.Version
	return job, nil
}

// Rate appends a rating record and fires the asynchronous revision check.
// Intensity and prompt version are copied from the job at rating time.
func (o *Orchestrator) Rate(ctx context.Context, jobID string, rating domain.Rating) (*domain.RatingRecord, error) {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	record := &domain.RatingRecord{
		JobID:         jobID,
		Intensity:     job.Intensity,
		Rating:        rating,
		PromptVersion: job.PromptVersion,
		CreatedAt:     time.Now().UTC(),
	}
	if err := o.ratings.Append(ctx, record); err != nil {
		return nil, fmt.Errorf("append rating: %w", err)
	}

	if o.onRated != nil {
		go o.onRated(context.Background())
	}
	return record, nil
}

// process runs one crop + retouch attempt to a terminal state. It holds the
// per-job lock so a reprocess issued mid-flight serializes behind it.
func (o *Orchestrator) process(jobID string, src image.Image, face domain.FaceRect, intensity domain.Intensity, zoom float64, prompt string) {
	lock := o.inflight.lock(jobID)
	defer lock.Unlock()

	ctx := context.Background()

	cropped, err := cropper.Crop(src, face, cropper.SquareSpec(zoom))
	if err != nil {
		o.fail(ctx, jobID, fmt.Sprintf("crop: %v", err))
		return
	}
	croppedData, err := encodeJPEG(cropped, 95)
	if err != nil {
		o.fail(ctx, jobID, err.Error())
		return
	}
	croppedKey := fmt.Sprintf("jobs/%s/cropped_square.jpg", jobID)
	croppedURL, err := o.blobs.Put(ctx, croppedKey, croppedData, artifactMIME)
	if err != nil {
		o.fail(ctx, jobID, fmt.Sprintf("store crop: %v", err))
		return
	}

	retouched, err := o.retoucher.Retouch(ctx, retouch.Request{
		Image:  croppedData,
		MIME:   artifactMIME,
		Prompt: prompt,
		JobID:  jobID,
	})
	if err != nil {
		o.fail(ctx, jobID, fmt.Sprintf("retouch: %v", err))
		return
	}
	retouchedKey := fmt.Sprintf("jobs/%s/retouched.jpg", jobID)
	retouchedURL, err := o.blobs.Put(ctx, retouchedKey, retouched, artifactMIME)
	if err != nil {
		o.fail(ctx, jobID, fmt.Sprintf("store retouched: %v", err))
		return
	}

	if err := o.jobs.MarkCompleted(ctx, jobID,
		domain.Artifact{Key: croppedKey, URL: croppedURL},
		domain.Artifact{Key: retouchedKey, URL: retouchedURL},
	); err != nil {
		o.logger.Error().Err(err).Str("job_id", jobID).Msg("retouchjob: persist completion failed")
		return
	}
	o.cache.set(jobID, domain.JobStatusCompleted)

	o.logger.Info().Str("job_id", jobID).Str("intensity", string(intensity)).Msg("retouchjob: job completed")
}

// fail records a terminal failure. Errors on this path can only be logged;
// callers discover the failure by polling status.
func (o *Orchestrator) fail(ctx context.Context, jobID, msg string) {
	o.logger.Warn().Str("job_id", jobID).Str("error", msg).Msg("retouchjob: job failed")
	if err := o.jobs.MarkFailed(ctx, jobID, msg); err != nil {
		o.logger.Error().Err(err).Str("job_id", jobID).Msg("retouchjob: persist failure failed")
	}
	o.cache.set(jobID, domain.JobStatusFailed)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
