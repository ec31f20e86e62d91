package feedback

import (
	"context"
	"fmt"

	"server/internal/domain"
)

const (
	// badThreshold is the minimum number of bad ratings in a cohort before a
	// revision is considered.
	badThreshold = 5
	// badRatio is the minimum bad share of rated results in a cohort.
	badRatio = 0.6
	// maxPairs caps how many bad jobs are handed to the critic.
	maxPairs = 3
)

// Counts is the per-intensity rating tally.
type Counts struct {
	Good int `json:"good"`
	Bad  int `json:"bad"`
}

// Trigger identifies an intensity whose current-version cohort crossed the
// bad-rating threshold, with up to maxPairs candidate jobs for critique.
type Trigger struct {
	Intensity domain.Intensity
	BadJobIDs []string
}

// Aggregator computes rating statistics and decides when a prompt revision
// should fire.
type Aggregator struct {
	ratings   domain.RatingRepository
	overrides domain.PromptOverrideRepository
}

func NewAggregator(ratings domain.RatingRepository, overrides domain.PromptOverrideRepository) *Aggregator {
	return &Aggregator{ratings: ratings, overrides: overrides}
}

// Stats returns good/bad counts per intensity over all rating records.
func (a *Aggregator) Stats(ctx context.Context) (map[domain.Intensity]Counts, error) {
	records, err := a.ratings.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ratings: %w", err)
	}
	stats := make(map[domain.Intensity]Counts)
	for _, rec := range records {
		counts := stats[rec.Intensity]
		switch rec.Rating {
		case domain.RatingGood:
			counts.Good++
		case domain.RatingBad:
			counts.Bad++
		}
		stats[rec.Intensity] = counts
	}
	return stats, nil
}

type cohortKey struct {
	intensity domain.Intensity
	version   int
}

// ShouldRevise groups ratings by (intensity, prompt version), skips cohorts
// recorded under versions already superseded by an accepted revision, and
// returns the first cohort that crosses the threshold. A nil trigger means no
// action is needed.
func (a *Aggregator) ShouldRevise(ctx context.Context) (*Trigger, error) {
	records, err := a.ratings.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ratings: %w", err)
	}
	set, err := a.overrides.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}
	currentVersion := set.Version

	groups := make(map[cohortKey][]domain.RatingRecord)
	var order []cohortKey
	for _, rec := range records {
		key := cohortKey{intensity: rec.Intensity, version: rec.PromptVersion}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], rec)
	}

	for _, key := range order {
		// Cohorts strictly behind the current version rated a prompt text
		// that no longer exists; they can never trigger again.
		if key.version < currentVersion {
			continue
		}

		var good int
		var badIDs []string
		for _, rec := range groups[key] {
			switch rec.Rating {
			case domain.RatingGood:
				good++
			case domain.RatingBad:
				badIDs = append(badIDs, rec.JobID)
			}
		}

		bad := len(badIDs)
		if bad < badThreshold {
			continue
		}
		if total := bad + good; total > 0 && float64(bad)/float64(total) < badRatio {
			continue
		}

		if len(badIDs) > maxPairs {
			badIDs = badIDs[:maxPairs]
		}
		return &Trigger{Intensity: key.intensity, BadJobIDs: badIDs}, nil
	}

	return nil, nil
}
