package genai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"server/internal/infra"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	ImageModel string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client provides a lightweight facade over Gemini for the three collaborator
// roles the pipeline needs: face detection, image retouching and prompt
// critique. When no API key is configured every call falls back to a
// deterministic synthetic result so the rest of the pipeline stays exercised
// in local and CI environments.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	imageModel string
	httpClient *http.Client
	logger     *infra.Logger
}

// FaceBox is a detected face bounding box in source-image pixel coordinates.
type FaceBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// RetouchRequest carries one cropped image to the retouch model.
type RetouchRequest struct {
	Image  []byte
	MIME   string
	Prompt string
	JobID  string
}

// CritiquePair is one before/after example attached to a critique request.
type CritiquePair struct {
	Before []byte
	After  []byte
	MIME   string
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
	ResponseMimeType   string   `json:"responseMimeType,omitempty"`
	ImageSize          string   `json:"imageSize,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with sensible timeouts will be created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	imageModel := strings.TrimSpace(opts.ImageModel)
	if imageModel == "" {
		imageModel = "gemini-3-pro-image-preview"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		imageModel: imageModel,
		httpClient: client,
		logger:     logger,
	}, nil
}

// ResolutionTier picks the retouch output resolution from the largest input
// dimension.
func ResolutionTier(width, height int) string {
	maxDim := width
	if height > maxDim {
		maxDim = height
	}
	switch {
	case maxDim >= 3000:
		return "4K"
	case maxDim >= 1500:
		return "2K"
	default:
		return "1K"
	}
}

func imageSizeForTier(tier string) string {
	switch tier {
	case "4K":
		return "IMAGE_SIZE_4096x4096"
	case "2K":
		return "IMAGE_SIZE_2048x2048"
	default:
		return "IMAGE_SIZE_1024x1024"
	}
}

// DetectFace returns the most prominent face bounding box, or nil when the
// image contains no face.
func (c *Client) DetectFace(ctx context.Context, img []byte, mime string) (*FaceBox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.apiKey == "" {
		return c.syntheticFace(img), nil
	}

	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: "Locate the most prominent human face in this photo. " +
					"Respond with only a JSON object {\"x\": <int>, \"y\": <int>, \"w\": <int>, \"h\": <int>} " +
					"giving the face bounding box in pixel coordinates of the original image, " +
					"or the JSON value null if no face is present."},
				{InlineData: &geminiInlineData{MimeType: firstNonEmpty(mime, "image/jpeg"), Data: base64.StdEncoding.EncodeToString(img)}},
			},
		}},
		GenerationConfig: &geminiGenerationConfig{ResponseMimeType: "application/json"},
	}

	var response geminiGenerateContentResponse
	if err := c.invokeGemini(ctx, fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model)), payload, &response); err != nil {
		return nil, err
	}

	text := strings.TrimSpace(firstTextPart(response))
	if text == "" || text == "null" {
		return nil, nil
	}
	var box FaceBox
	if err := json.Unmarshal([]byte(text), &box); err != nil {
		return nil, fmt.Errorf("decode face response: %w", err)
	}
	if box.W <= 0 || box.H <= 0 {
		return nil, nil
	}
	return &box, nil
}

// RetouchImage sends the cropped image and instruction to the image model and
// returns the retouched bytes.
func (c *Client) RetouchImage(ctx context.Context, req RetouchRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.apiKey == "" {
		return c.syntheticRetouch(req)
	}

	width, height := decodeImageDimensions(req.Image)
	tier := ResolutionTier(width, height)

	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{InlineData: &geminiInlineData{MimeType: firstNonEmpty(req.MIME, "image/jpeg"), Data: base64.StdEncoding.EncodeToString(req.Image)}},
				{Text: req.Prompt},
			},
		}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"IMAGE"},
			ResponseMimeType:   "image/jpeg",
			ImageSize:          imageSizeForTier(tier),
		},
	}

	var response geminiGenerateContentResponse
	if err := c.invokeGemini(ctx, fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.imageModel)), payload, &response); err != nil {
		return nil, err
	}

	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("decode inline image: %w", err)
			}
			c.logger.Debug().
				Str("job_id", req.JobID).
				Str("model", c.imageModel).
				Str("resolution", tier).
				Msg("genai: retouch returned remote image")
			return data, nil
		}
	}

	return nil, fmt.Errorf("gemini did not return an image")
}

// Critique sends the instruction and before/after pairs to the critic model
// and returns its free-text proposed prompt.
func (c *Client) Critique(ctx context.Context, instruction string, pairs []CritiquePair) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if c.apiKey == "" {
		return syntheticCritique, nil
	}

	parts := []geminiPart{{Text: instruction}}
	for i, pair := range pairs {
		mime := firstNonEmpty(pair.MIME, "image/jpeg")
		parts = append(parts,
			geminiPart{Text: fmt.Sprintf("\n--- Pair %d ---\nBefore:", i+1)},
			geminiPart{InlineData: &geminiInlineData{MimeType: mime, Data: base64.StdEncoding.EncodeToString(pair.Before)}},
			geminiPart{Text: "After (rated BAD):"},
			geminiPart{InlineData: &geminiInlineData{MimeType: mime, Data: base64.StdEncoding.EncodeToString(pair.After)}},
		)
	}

	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
	}

	var response geminiGenerateContentResponse
	if err := c.invokeGemini(ctx, fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model)), payload, &response); err != nil {
		return "", err
	}

	text := strings.TrimSpace(firstTextPart(response))
	if text == "" {
		return "", fmt.Errorf("gemini did not return critique text")
	}
	return text, nil
}

// Model returns the configured text model identifier.
func (c *Client) Model() string {
	return c.model
}

func (c *Client) invokeGemini(ctx context.Context, path string, payload any, out any) error {
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr geminiErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("gemini status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			return fmt.Errorf("gemini status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return fmt.Errorf("gemini status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

// syntheticFace guesses a centered face box from the image dimensions so the
// crop and retouch stages run end-to-end without API access.
func (c *Client) syntheticFace(img []byte) *FaceBox {
	width, height := decodeImageDimensions(img)
	if width == 0 || height == 0 {
		return nil
	}
	w := float64(width) / 3
	h := float64(height) / 3
	box := &FaceBox{
		X: (float64(width) - w) / 2,
		Y: (float64(height) - h) / 2.5,
		W: w,
		H: h,
	}
	c.logger.Debug().
		Str("seed", deterministicSeed(width, height)).
		Msg("genai: api key missing, using synthetic face detection")
	return box
}

// syntheticRetouch applies a deterministic tone adjustment in place of the
// real model so artifacts are still produced locally.
func (c *Client) syntheticRetouch(req RetouchRequest) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(req.Image))
	if err != nil {
		return nil, fmt.Errorf("decode image for synthetic retouch: %w", err)
	}
	adjusted := imaging.AdjustGamma(imaging.Sharpen(src, 0.3), 1.05)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, adjusted, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		return nil, fmt.Errorf("encode synthetic retouch: %w", err)
	}
	c.logger.Debug().
		Str("job_id", req.JobID).
		Str("seed", deterministicSeed(req.JobID, req.Prompt)).
		Msg("genai: api key missing, using synthetic retouch")
	return buf.Bytes(), nil
}

const syntheticCritique = "Apply the requested retouching more conservatively, preserving natural skin" +
	" texture and even lighting throughout. Do not alter face shape, eye color, bone structure, or hair." +
	" The person must be immediately recognizable as themselves."

func firstTextPart(response geminiGenerateContentResponse) string {
	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			if strings.TrimSpace(part.Text) != "" {
				return part.Text
			}
		}
	}
	return ""
}

func decodeImageDimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}
