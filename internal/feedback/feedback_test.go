package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/providers/retouch"
)

type fakeRatingRepo struct {
	records []domain.RatingRecord
}

func (r *fakeRatingRepo) Append(_ context.Context, record *domain.RatingRecord) error {
	r.records = append(r.records, *record)
	return nil
}

func (r *fakeRatingRepo) ListAll(_ context.Context) ([]domain.RatingRecord, error) {
	return append([]domain.RatingRecord{}, r.records...), nil
}

type fakeOverrideRepo struct {
	mu         sync.Mutex
	set        *domain.PromptOverrideSet
	replaceErr error
}

func newFakeOverrideRepo() *fakeOverrideRepo {
	return &fakeOverrideRepo{set: &domain.PromptOverrideSet{Version: 1, Prompts: map[domain.Intensity]string{}}}
}

func (r *fakeOverrideRepo) Get(_ context.Context) (*domain.PromptOverrideSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set, nil
}

func (r *fakeOverrideRepo) Replace(_ context.Context, expectedVersion int, set *domain.PromptOverrideSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replaceErr != nil {
		return r.replaceErr
	}
	if r.set.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	r.set = set
	return nil
}

type fakeJobRepo struct {
	jobs map[string]*domain.Job
}

func (r *fakeJobRepo) Create(_ context.Context, job *domain.Job) error {
	r.jobs[job.ID] = job
	return nil
}

func (r *fakeJobRepo) GetByID(_ context.Context, jobID string) (*domain.Job, error) {
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (r *fakeJobRepo) MarkProcessing(context.Context, string, domain.Intensity, float64, int) error {
	return nil
}

func (r *fakeJobRepo) MarkCompleted(context.Context, string, domain.Artifact, domain.Artifact) error {
	return nil
}

func (r *fakeJobRepo) MarkFailed(context.Context, string, string) error { return nil }

type fakeBlobStore struct {
	objects map[string][]byte
}

func (s *fakeBlobStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	s.objects[key] = data
	return "http://blobs.test/" + key, nil
}

func (s *fakeBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

func (s *fakeBlobStore) RemovePrefix(context.Context, string) error { return nil }

type fakeCritic struct {
	response string
	err      error

	calls       int
	instruction string
	pairs       []retouch.Pair
}

func (c *fakeCritic) Critique(_ context.Context, instruction string, pairs []retouch.Pair) (string, error) {
	c.calls++
	c.instruction = instruction
	c.pairs = pairs
	return c.response, c.err
}

func record(jobID string, intensity domain.Intensity, rating domain.Rating, version int) domain.RatingRecord {
	return domain.RatingRecord{
		JobID:         jobID,
		Intensity:     intensity,
		Rating:        rating,
		PromptVersion: version,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestStatsCountsPerIntensity(t *testing.T) {
	ratings := &fakeRatingRepo{records: []domain.RatingRecord{
		record("a", domain.IntensityMedium, domain.RatingGood, 1),
		record("b", domain.IntensityMedium, domain.RatingBad, 1),
		record("c", domain.IntensityMedium, domain.RatingBad, 1),
		record("d", domain.IntensityStrong, domain.RatingGood, 1),
	}}
	agg := NewAggregator(ratings, newFakeOverrideRepo())

	stats, err := agg.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() unexpected error: %v", err)
	}
	if got := stats[domain.IntensityMedium]; got.Good != 1 || got.Bad != 2 {
		t.Fatalf("medium counts = %+v, want good=1 bad=2", got)
	}
	if got := stats[domain.IntensityStrong]; got.Good != 1 || got.Bad != 0 {
		t.Fatalf("strong counts = %+v, want good=1 bad=0", got)
	}
	if _, ok := stats[domain.IntensityLight]; ok {
		t.Fatal("light should be absent with no ratings")
	}
}

func TestShouldReviseTriggersAtThreshold(t *testing.T) {
	ratings := &fakeRatingRepo{}
	for i := 0; i < 5; i++ {
		ratings.records = append(ratings.records, record(fmt.Sprintf("job-%d", i), domain.IntensityMedium, domain.RatingBad, 1))
	}
	agg := NewAggregator(ratings, newFakeOverrideRepo())

	trigger, err := agg.ShouldRevise(context.Background())
	if err != nil {
		t.Fatalf("ShouldRevise() unexpected error: %v", err)
	}
	if trigger == nil {
		t.Fatal("expected a trigger at 5 bad / 0 good")
	}
	if trigger.Intensity != domain.IntensityMedium {
		t.Fatalf("trigger intensity = %q, want medium", trigger.Intensity)
	}
	if len(trigger.BadJobIDs) != 3 {
		t.Fatalf("candidate count = %d, want cap of 3", len(trigger.BadJobIDs))
	}
	if trigger.BadJobIDs[0] != "job-0" || trigger.BadJobIDs[2] != "job-2" {
		t.Fatalf("candidates = %v, want first three in record order", trigger.BadJobIDs)
	}
}

func TestShouldReviseBelowThreshold(t *testing.T) {
	ratings := &fakeRatingRepo{}
	for i := 0; i < 4; i++ {
		ratings.records = append(ratings.records, record(fmt.Sprintf("job-%d", i), domain.IntensityMedium, domain.RatingBad, 1))
	}
	for i := 0; i < 10; i++ {
		ratings.records = append(ratings.records, record(fmt.Sprintf("good-%d", i), domain.IntensityMedium, domain.RatingGood, 1))
	}
	agg := NewAggregator(ratings, newFakeOverrideRepo())

	trigger, err := agg.ShouldRevise(context.Background())
	if err != nil {
		t.Fatalf("ShouldRevise() unexpected error: %v", err)
	}
	if trigger != nil {
		t.Fatalf("expected no trigger at 4 bad, got %+v", trigger)
	}
}

func TestShouldReviseRespectsRatio(t *testing.T) {
	ratings := &fakeRatingRepo{}
	for i := 0; i < 5; i++ {
		ratings.records = append(ratings.records, record(fmt.Sprintf("bad-%d", i), domain.IntensityStrong, domain.RatingBad, 1))
	}
	for i := 0; i < 20; i++ {
		ratings.records = append(ratings.records, record(fmt.Sprintf("good-%d", i), domain.IntensityStrong, domain.RatingGood, 1))
	}
	agg := NewAggregator(ratings, newFakeOverrideRepo())

	trigger, err := agg.ShouldRevise(context.Background())
	if err != nil {
		t.Fatalf("ShouldRevise() unexpected error: %v", err)
	}
	if trigger != nil {
		t.Fatalf("expected no trigger at 20%% bad share, got %+v", trigger)
	}
}

func TestShouldReviseSkipsSupersededVersions(t *testing.T) {
	ratings := &fakeRatingRepo{}
	for i := 0; i < 5; i++ {
		ratings.records = append(ratings.records, record(fmt.Sprintf("job-%d", i), domain.IntensityMedium, domain.RatingBad, 1))
	}
	overrides := newFakeOverrideRepo()
	overrides.set.Version = 2
	agg := NewAggregator(ratings, overrides)

	trigger, err := agg.ShouldRevise(context.Background())
	if err != nil {
		t.Fatalf("ShouldRevise() unexpected error: %v", err)
	}
	if trigger != nil {
		t.Fatalf("version-1 cohort must not retrigger once version is 2, got %+v", trigger)
	}
}

func TestValidateCritique(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		ok       bool
	}{
		{
			name:     "too short",
			response: strings.Repeat("x", 29),
			ok:       false,
		},
		{
			name:     "minimum length accepted",
			response: strings.Repeat("x", 30),
			want:     strings.Repeat("x", 30),
			ok:       true,
		},
		{
			name:     "refusal rejected",
			response: "I cannot help with editing photographs of real people.",
			ok:       false,
		},
		{
			name:     "as an ai rejected",
			response: "As an AI I am not able to provide retouching instructions here.",
			ok:       false,
		},
		{
			name:     "surrounding quotes stripped",
			response: `"Smooth minor blemishes while keeping all natural skin texture."`,
			want:     "Smooth minor blemishes while keeping all natural skin texture.",
			ok:       true,
		},
		{
			name:     "quote stripping can reject short remainder",
			response: `"` + strings.Repeat("y", 28) + `"`,
			ok:       false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := validateCritique(tc.response)
			if ok != tc.ok {
				t.Fatalf("validateCritique(%q) ok = %v, want %v", tc.response, ok, tc.ok)
			}
			if ok && got != tc.want {
				t.Fatalf("validateCritique(%q) = %q, want %q", tc.response, got, tc.want)
			}
		})
	}
}

func newTriggeredController(t *testing.T, critic *fakeCritic) (*Controller, *fakeOverrideRepo) {
	t.Helper()

	ratings := &fakeRatingRepo{}
	jobs := &fakeJobRepo{jobs: map[string]*domain.Job{}}
	blobs := &fakeBlobStore{objects: map[string][]byte{}}
	for i := 0; i < 5; i++ {
		jobID := fmt.Sprintf("job-%d", i)
		croppedKey := fmt.Sprintf("jobs/%s/cropped_square.jpg", jobID)
		retouchedKey := fmt.Sprintf("jobs/%s/retouched.jpg", jobID)
		jobs.jobs[jobID] = &domain.Job{
			ID:        jobID,
			Status:    domain.JobStatusCompleted,
			Intensity: domain.IntensityMedium,
			Cropped:   domain.Artifact{Key: croppedKey},
			Retouched: domain.Artifact{Key: retouchedKey},
		}
		blobs.objects[croppedKey] = []byte("before-" + jobID)
		blobs.objects[retouchedKey] = []byte("after-" + jobID)
		ratings.records = append(ratings.records, record(jobID, domain.IntensityMedium, domain.RatingBad, 1))
	}

	overrides := newFakeOverrideRepo()
	agg := NewAggregator(ratings, overrides)
	return NewController(agg, jobs, overrides, blobs, critic, zerolog.Nop()), overrides
}

func TestCheckAndReviseAcceptsCritique(t *testing.T) {
	newPrompt := "Gently smooth skin while preserving pores, freckles and all texture." + domain.SafetySuffix
	critic := &fakeCritic{response: newPrompt}
	controller, overrides := newTriggeredController(t, critic)

	revision, err := controller.CheckAndRevise(context.Background())
	if err != nil {
		t.Fatalf("CheckAndRevise() unexpected error: %v", err)
	}
	if revision == nil {
		t.Fatal("expected an accepted revision")
	}
	if revision.Intensity != domain.IntensityMedium || revision.Version != 2 || revision.NewPrompt != newPrompt {
		t.Fatalf("revision = %+v, want medium v2 with critic prompt", revision)
	}

	if critic.calls != 1 {
		t.Fatalf("critic calls = %d, want 1", critic.calls)
	}
	if len(critic.pairs) != 3 {
		t.Fatalf("critique pairs = %d, want 3", len(critic.pairs))
	}
	if !strings.Contains(critic.instruction, domain.DefaultPrompts[domain.IntensityMedium]) {
		t.Fatal("instruction should quote the prompt currently in force")
	}

	set, _ := overrides.Get(context.Background())
	if set.Version != 2 {
		t.Fatalf("stored version = %d, want 2", set.Version)
	}
	if set.Prompts[domain.IntensityMedium] != newPrompt {
		t.Fatalf("stored override = %q, want critic prompt", set.Prompts[domain.IntensityMedium])
	}
	if len(set.History) != 1 {
		t.Fatalf("history length = %d, want 1", len(set.History))
	}
	entry := set.History[0]
	if entry.Version != 2 || entry.Intensity != domain.IntensityMedium {
		t.Fatalf("history entry = %+v, want version 2 medium", entry)
	}
	if entry.OldPrompt != domain.DefaultPrompts[domain.IntensityMedium] {
		t.Fatalf("history old prompt = %q, want the previously active prompt", entry.OldPrompt)
	}
	if entry.NewPrompt != newPrompt {
		t.Fatalf("history new prompt = %q, want critic prompt", entry.NewPrompt)
	}
	if len(entry.TriggerJobIDs) != 3 {
		t.Fatalf("trigger job ids = %v, want 3 candidates", entry.TriggerJobIDs)
	}
}

func TestCheckAndReviseSecondRevisionBuildsOnFirst(t *testing.T) {
	firstPrompt := "Soften blemishes only and retain every bit of natural skin detail visible." + domain.SafetySuffix
	critic := &fakeCritic{response: firstPrompt}
	controller, overrides := newTriggeredController(t, critic)

	if _, err := controller.CheckAndRevise(context.Background()); err != nil {
		t.Fatalf("first CheckAndRevise() error: %v", err)
	}

	// New bad cohort rated against version 2.
	for i := 0; i < 5; i++ {
		controller.aggregator.ratings.(*fakeRatingRepo).records = append(
			controller.aggregator.ratings.(*fakeRatingRepo).records,
			record(fmt.Sprintf("job-%d", i), domain.IntensityMedium, domain.RatingBad, 2),
		)
	}
	secondPrompt := "Apply the lightest possible cleanup and leave the portrait otherwise untouched." + domain.SafetySuffix
	critic.response = secondPrompt

	revision, err := controller.CheckAndRevise(context.Background())
	if err != nil {
		t.Fatalf("second CheckAndRevise() error: %v", err)
	}
	if revision == nil || revision.Version != 3 {
		t.Fatalf("revision = %+v, want version 3", revision)
	}
	if !strings.Contains(critic.instruction, firstPrompt) {
		t.Fatal("second critique should quote the version-2 override, not the default")
	}

	set, _ := overrides.Get(context.Background())
	if len(set.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(set.History))
	}
	if set.History[1].OldPrompt != firstPrompt {
		t.Fatalf("second entry old prompt = %q, want the first revision text", set.History[1].OldPrompt)
	}
}

func TestCheckAndReviseRejectsRefusal(t *testing.T) {
	critic := &fakeCritic{response: "I'm unable to analyze images of people in this context."}
	controller, overrides := newTriggeredController(t, critic)

	revision, err := controller.CheckAndRevise(context.Background())
	if err != nil {
		t.Fatalf("CheckAndRevise() unexpected error: %v", err)
	}
	if revision != nil {
		t.Fatalf("refused critique must not revise, got %+v", revision)
	}
	set, _ := overrides.Get(context.Background())
	if set.Version != 1 || len(set.History) != 0 {
		t.Fatalf("override set changed on rejection: %+v", set)
	}
}

func TestCheckAndReviseCriticErrorIsSilent(t *testing.T) {
	critic := &fakeCritic{err: errors.New("model unavailable")}
	controller, overrides := newTriggeredController(t, critic)

	revision, err := controller.CheckAndRevise(context.Background())
	if err != nil {
		t.Fatalf("critic failure must be swallowed, got error: %v", err)
	}
	if revision != nil {
		t.Fatalf("expected nil revision, got %+v", revision)
	}
	set, _ := overrides.Get(context.Background())
	if set.Version != 1 {
		t.Fatalf("stored version = %d, want unchanged 1", set.Version)
	}
}

func TestCheckAndReviseSkipsWhenNoPairsLoad(t *testing.T) {
	critic := &fakeCritic{response: strings.Repeat("z", 40)}
	controller, _ := newTriggeredController(t, critic)

	// Drop every artifact so no candidate yields a usable pair.
	controller.blobs.(*fakeBlobStore).objects = map[string][]byte{}

	revision, err := controller.CheckAndRevise(context.Background())
	if err != nil {
		t.Fatalf("CheckAndRevise() unexpected error: %v", err)
	}
	if revision != nil {
		t.Fatalf("expected nil revision with no pairs, got %+v", revision)
	}
	if critic.calls != 0 {
		t.Fatalf("critic calls = %d, want 0 when no pairs load", critic.calls)
	}
}

func TestCheckAndReviseDropsRevisionOnVersionConflict(t *testing.T) {
	critic := &fakeCritic{response: strings.Repeat("improved prompt ", 4)}
	controller, overrides := newTriggeredController(t, critic)
	overrides.replaceErr = domain.ErrVersionConflict

	revision, err := controller.CheckAndRevise(context.Background())
	if err != nil {
		t.Fatalf("lost race must be silent, got error: %v", err)
	}
	if revision != nil {
		t.Fatalf("expected nil revision on conflict, got %+v", revision)
	}
}
