package domain

import "time"

// Rating is a binary verdict on a retouched result.
type Rating string

const (
	RatingGood Rating = "good"
	RatingBad  Rating = "bad"
)

// RatingRecord is an append-only feedback entry. Intensity and prompt version
// are copied from the job at rating time so historical ratings stay
// attributable to the prompt that produced them after later overrides.
type RatingRecord struct {
	JobID         string    `json:"job_id"`
	Intensity     Intensity `json:"intensity"`
	Rating        Rating    `json:"rating"`
	PromptVersion int       `json:"prompt_version"`
	CreatedAt     time.Time `json:"timestamp"`
}
