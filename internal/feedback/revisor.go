package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/providers/retouch"
	"server/internal/storage"
)

// refusalPhrases invalidate a critique response when present, matched
// case-insensitively as substrings.
var refusalPhrases = []string{"i can't", "i cannot", "i'm unable", "as an ai"}

const minPromptLength = 30

// Revision is the outcome of one accepted prompt revision.
type Revision struct {
	Intensity domain.Intensity `json:"intensity"`
	Version   int              `json:"version"`
	NewPrompt string           `json:"new_prompt"`
}

// Controller orchestrates the self-tuning loop: it asks the aggregator
// whether a cohort crossed the threshold, sends the offending before/after
// pairs to the critic, validates the response and persists a versioned
// override. Every failure on this path is deliberately silent; the caller
// only ever sees "revised" or "no action".
type Controller struct {
	aggregator *Aggregator
	jobs       domain.JobRepository
	overrides  domain.PromptOverrideRepository
	blobs      storage.Store
	critic     retouch.Critic
	logger     infra.Logger
}

func NewController(
	aggregator *Aggregator,
	jobs domain.JobRepository,
	overrides domain.PromptOverrideRepository,
	blobs storage.Store,
	critic retouch.Critic,
	logger infra.Logger,
) *Controller {
	return &Controller{
		aggregator: aggregator,
		jobs:       jobs,
		overrides:  overrides,
		blobs:      blobs,
		critic:     critic,
		logger:     logger,
	}
}

// CheckAndRevise runs one revision pass. A nil revision with nil error means
// no cohort crossed the threshold or the critique was rejected.
func (c *Controller) CheckAndRevise(ctx context.Context) (*Revision, error) {
	trigger, err := c.aggregator.ShouldRevise(ctx)
	if err != nil {
		return nil, err
	}
	if trigger == nil {
		return nil, nil
	}
	return c.revise(ctx, trigger)
}

func (c *Controller) revise(ctx context.Context, trigger *Trigger) (*Revision, error) {
	set, err := c.overrides.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}
	currentPrompt := set.ActivePrompt(trigger.Intensity)

	pairs := c.collectPairs(ctx, trigger.BadJobIDs)
	if len(pairs) == 0 {
		c.logger.Info().
			Str("intensity", string(trigger.Intensity)).
			Msg("feedback: no usable before/after pairs, skipping revision")
		return nil, nil
	}

	response, err := c.critic.Critique(ctx, buildCritiqueInstruction(trigger.Intensity, currentPrompt), pairs)
	if err != nil {
		c.logger.Warn().Err(err).
			Str("intensity", string(trigger.Intensity)).
			Msg("feedback: critique failed")
		return nil, nil
	}

	newPrompt, ok := validateCritique(response)
	if !ok {
		c.logger.Info().
			Str("intensity", string(trigger.Intensity)).
			Msg("feedback: critique response rejected")
		return nil, nil
	}

	revised := &domain.PromptOverrideSet{
		Version: set.Version + 1,
		Prompts: make(map[domain.Intensity]string, len(set.Prompts)+1),
		History: append(append([]domain.RevisionEntry{}, set.History...), domain.RevisionEntry{
			Version:       set.Version + 1,
			Intensity:     trigger.Intensity,
			OldPrompt:     currentPrompt,
			NewPrompt:     newPrompt,
			TriggerJobIDs: trigger.BadJobIDs,
			CreatedAt:     time.Now().UTC(),
		}),
	}
	for intensity, text := range set.Prompts {
		revised.Prompts[intensity] = text
	}
	revised.Prompts[trigger.Intensity] = newPrompt

	if err := c.overrides.Replace(ctx, set.Version, revised); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			c.logger.Warn().
				Str("intensity", string(trigger.Intensity)).
				Int("version", set.Version).
				Msg("feedback: lost revision race, dropping this revision")
			return nil, nil
		}
		return nil, fmt.Errorf("persist override: %w", err)
	}

	c.logger.Info().
		Str("intensity", string(trigger.Intensity)).
		Int("version", revised.Version).
		Msg("feedback: prompt override saved")

	return &Revision{Intensity: trigger.Intensity, Version: revised.Version, NewPrompt: newPrompt}, nil
}

// collectPairs loads before/after artifacts for candidate jobs, skipping any
// candidate missing either image.
func (c *Controller) collectPairs(ctx context.Context, jobIDs []string) []retouch.Pair {
	var pairs []retouch.Pair
	for _, jobID := range jobIDs {
		job, err := c.jobs.GetByID(ctx, jobID)
		if err != nil || job.Cropped.Key == "" || job.Retouched.Key == "" {
			continue
		}
		before, err := c.blobs.Get(ctx, job.Cropped.Key)
		if err != nil {
			continue
		}
		after, err := c.blobs.Get(ctx, job.Retouched.Key)
		if err != nil {
			continue
		}
		pairs = append(pairs, retouch.Pair{Before: before, After: after, MIME: "image/jpeg"})
	}
	return pairs
}

func buildCritiqueInstruction(intensity domain.Intensity, currentPrompt string) string {
	return fmt.Sprintf(
		"You are a prompt engineering critic for portrait retouching.\n\n"+
			"The current prompt for '%s' retouching is:\n%q\n\n"+
			"Below are before/after image pairs where users rated the result as BAD.\n"+
			"Analyze what went wrong and write an improved prompt that would produce "+
			"better results. The prompt must:\n"+
			"- Stay focused on %s-level retouching\n"+
			"- Not alter face shape, eye color, bone structure, or hair\n"+
			"- Keep the person recognizable\n"+
			"- Be a single paragraph, no longer than 3 sentences\n\n"+
			"Respond with ONLY the improved prompt text, nothing else.",
		intensity, currentPrompt, intensity,
	)
}

// validateCritique strips surrounding quotation and rejects responses that
// are too short or contain a refusal phrase.
func validateCritique(response string) (string, bool) {
	cleaned := strings.TrimSpace(response)
	cleaned = strings.Trim(cleaned, `"'`)
	if len(cleaned) < minPromptLength {
		return "", false
	}
	lowered := strings.ToLower(cleaned)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lowered, phrase) {
			return "", false
		}
	}
	return cleaned, true
}
