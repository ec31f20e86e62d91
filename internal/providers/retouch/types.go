package retouch

import (
	"context"

	"server/internal/domain"
)

// Request carries one cropped image to a retouch provider.
type Request struct {
	Image  []byte
	MIME   string
	Prompt string
	JobID  string
}

// Pair is one before/after example attached to a critique request.
type Pair struct {
	Before []byte
	After  []byte
	MIME   string
}

// Detector finds the most prominent face in a full-resolution photo. A nil
// rect with a nil error means no face was found.
type Detector interface {
	Detect(ctx context.Context, img []byte, mime string) (*domain.FaceRect, error)
}

// Retoucher produces the retouched image bytes for a cropped headshot.
type Retoucher interface {
	Retouch(ctx context.Context, req Request) ([]byte, error)
}

// Critic reviews badly-rated before/after pairs and proposes a replacement
// instruction text.
type Critic interface {
	Critique(ctx context.Context, instruction string, pairs []Pair) (string, error)
}
