package domain

import "time"

// JobStatus enumerates job lifecycle states. There is no explicit created
// state: a job is processing from the moment its record exists.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Intensity enumerates retouching strength tiers.
type Intensity string

const (
	IntensityLight  Intensity = "light"
	IntensityMedium Intensity = "medium"
	IntensityStrong Intensity = "strong"
)

// NormalizeIntensity sanitizes free-form user input into a supported tier.
func NormalizeIntensity(s string) Intensity {
	switch Intensity(s) {
	case IntensityLight, IntensityStrong:
		return Intensity(s)
	default:
		return IntensityMedium
	}
}

// FaceRect is the axis-aligned pixel bounding box of the detected primary
// face, origin top-left in source-image coordinates. It is not guaranteed to
// lie fully inside the image.
type FaceRect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Artifact references one stored image by blob key and public URL.
type Artifact struct {
	Key string `json:"key,omitempty"`
	URL string `json:"url,omitempty"`
}

// Job encapsulates the lifecycle of a single headshot retouch.
//
// The face rect and original artifact are captured once at submission and
// never overwritten; reprocessing replaces intensity, zoom, prompt version and
// the cropped/retouched artifacts only.
type Job struct {
	ID            string
	Status        JobStatus
	Intensity     Intensity
	Zoom          float64
	Face          FaceRect
	PromptVersion int
	Original      Artifact
	Cropped       Artifact
	Retouched     Artifact
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
