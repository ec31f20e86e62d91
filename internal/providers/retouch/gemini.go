package retouch

import (
	"context"

	"server/internal/domain"
	"server/internal/providers/genai"
)

// GeminiProvider adapts the Gemini client to the detector, retoucher and
// critic contracts.
type GeminiProvider struct {
	client *genai.Client
}

func NewGeminiProvider(client *genai.Client) *GeminiProvider {
	return &GeminiProvider{client: client}
}

func (p *GeminiProvider) Detect(ctx context.Context, img []byte, mime string) (*domain.FaceRect, error) {
	box, err := p.client.DetectFace(ctx, img, mime)
	if err != nil {
		return nil, err
	}
	if box == nil {
		return nil, nil
	}
	return &domain.FaceRect{X: box.X, Y: box.Y, W: box.W, H: box.H}, nil
}

func (p *GeminiProvider) Retouch(ctx context.Context, req Request) ([]byte, error) {
	return p.client.RetouchImage(ctx, genai.RetouchRequest{
		Image:  req.Image,
		MIME:   req.MIME,
		Prompt: req.Prompt,
		JobID:  req.JobID,
	})
}

func (p *GeminiProvider) Critique(ctx context.Context, instruction string, pairs []Pair) (string, error) {
	converted := make([]genai.CritiquePair, len(pairs))
	for i, pair := range pairs {
		converted[i] = genai.CritiquePair{Before: pair.Before, After: pair.After, MIME: pair.MIME}
	}
	return p.client.Critique(ctx, instruction, converted)
}

var (
	_ Detector  = (*GeminiProvider)(nil)
	_ Retoucher = (*GeminiProvider)(nil)
	_ Critic    = (*GeminiProvider)(nil)
)
