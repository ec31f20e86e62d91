package retouchjob

import (
	"bytes"
	"context"
	"fmt"

	"github.com/disintegration/imaging"

	"server/internal/domain"
	"server/pkg/zip"
)

// ExportArchive packages the retouched result at both delivery sizes as a
// ZIP. It requires a completed retouched artifact.
func (o *Orchestrator) ExportArchive(ctx context.Context, jobID string) ([]byte, string, error) {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, "", err
	}
	if job.Retouched.Key == "" {
		return nil, "", fmt.Errorf("%w: no retouched result for job", domain.ErrNotFound)
	}

	data, err := o.blobs.Get(ctx, job.Retouched.Key)
	if err != nil {
		return nil, "", fmt.Errorf("load retouched: %w", err)
	}
	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode retouched: %w", err)
	}

	square, err := encodeJPEG(imaging.Resize(src, 1200, 1200, imaging.Lanczos), 92)
	if err != nil {
		return nil, "", err
	}
	portrait, err := encodeJPEG(imaging.Resize(src, 960, 1200, imaging.Lanczos), 92)
	if err != nil {
		return nil, "", err
	}

	archive := zip.ArchiveAssets([]zip.Asset{
		{Filename: fmt.Sprintf("%s_square_1200x1200.jpg", jobID), MIME: artifactMIME, Data: square},
		{Filename: fmt.Sprintf("%s_portrait_960x1200.jpg", jobID), MIME: artifactMIME, Data: portrait},
	})
	if archive == nil {
		return nil, "", fmt.Errorf("build archive for job %s", jobID)
	}
	return archive, fmt.Sprintf("snapready_%s.zip", jobID), nil
}
