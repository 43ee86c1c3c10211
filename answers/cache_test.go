package answers

import (
	"context"
	"testing"

	"answer-engine/web/types"

	apperrors "answer-engine/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type fakeAnswerStore struct {
	byCanonical map[string]*types.AnswerEntry
	byID        map[uuid.UUID]*types.AnswerEntry
	votes       map[uuid.UUID]map[uuid.UUID]int
}

func newFakeAnswerStore() *fakeAnswerStore {
	return &fakeAnswerStore{
		byCanonical: make(map[string]*types.AnswerEntry),
		byID:        make(map[uuid.UUID]*types.AnswerEntry),
		votes:       make(map[uuid.UUID]map[uuid.UUID]int),
	}
}

func (f *fakeAnswerStore) GetAnswerByCanonicalID(ctx context.Context, canonicalID string) (*types.AnswerEntry, error) {
	entry, ok := f.byCanonical[canonicalID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *entry
	return &copied, nil
}

func (f *fakeAnswerStore) GetAnswer(ctx context.Context, answerID uuid.UUID) (*types.AnswerEntry, error) {
	entry, ok := f.byID[answerID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *entry
	return &copied, nil
}

func (f *fakeAnswerStore) IncrementPopularity(ctx context.Context, answerID uuid.UUID) (int64, error) {
	entry, ok := f.byID[answerID]
	if !ok {
		return 0, apperrors.ErrNotFound
	}
	entry.Popularity++
	return entry.Popularity, nil
}

func (f *fakeAnswerStore) InsertAnswer(ctx context.Context, entry *types.AnswerEntry) error {
	copied := *entry
	copied.Popularity = 1
	f.byCanonical[entry.CanonicalID] = &copied
	f.byID[entry.ID] = &copied
	entry.Popularity = 1
	return nil
}

func (f *fakeAnswerStore) CastVote(ctx context.Context, answerID, userID uuid.UUID, up bool, reason string) (types.VoteTally, error) {
	entry, ok := f.byID[answerID]
	if !ok {
		return types.VoteTally{}, apperrors.ErrNotFound
	}
	if f.votes[answerID] == nil {
		f.votes[answerID] = make(map[uuid.UUID]int)
	}
	vote := -1
	if up {
		vote = 1
	}
	f.votes[answerID][userID] = vote

	var tally types.VoteTally
	for _, v := range f.votes[answerID] {
		if v == 1 {
			tally.Ups++
		} else {
			tally.Downs++
		}
	}
	if total := tally.Ups + tally.Downs; total > 0 {
		tally.QualityScore = float64(tally.Ups) / float64(total)
	}
	entry.Ups = tally.Ups
	entry.Downs = tally.Downs
	entry.QualityScore = tally.QualityScore
	return tally, nil
}

func (f *fakeAnswerStore) SetPublishedURL(ctx context.Context, answerID uuid.UUID, url string) error {
	entry, ok := f.byID[answerID]
	if !ok {
		return apperrors.ErrNotFound
	}
	entry.PublishedURL = &url
	return nil
}

func newTestCache(t *testing.T, store Store) *Cache {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	cache, err := NewCache(store, 16, logger)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	return cache
}

func TestCacheRoundTrip(t *testing.T) {
	store := newFakeAnswerStore()
	cache := newTestCache(t, store)
	ctx := context.Background()

	canonicalID, _ := CanonicalID("how do I fix drawer alignment", "mozaik", "12")
	entry := &types.AnswerEntry{
		ID:          uuid.New(),
		CanonicalID: canonicalID,
		Question:    "how do I fix drawer alignment",
		AnswerText:  "Loosen the slide screws and re-seat the drawer.",
	}
	if err := cache.Put(ctx, entry); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, hit, err := cache.Lookup(ctx, "How do I fix drawer alignment?  ", "mozaik", "12")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if hit {
		// The trailing "?" changes the slug hash; an exact repeat must hit.
		t.Fatal("Lookup() with a different question text should miss")
	}

	got, hit, err = cache.Lookup(ctx, "how do I fix drawer alignment", "mozaik", "12")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if !hit {
		t.Fatal("Lookup() missed a cached answer")
	}
	if got.AnswerText != entry.AnswerText {
		t.Errorf("Lookup() text = %q, want %q", got.AnswerText, entry.AnswerText)
	}
	if got.Popularity != 2 {
		t.Errorf("Lookup() popularity = %d, want 2 after one hit", got.Popularity)
	}

	// A second hit keeps counting.
	got, hit, _ = cache.Lookup(ctx, "how do I fix drawer alignment", "mozaik", "12")
	if !hit || got.Popularity != 3 {
		t.Errorf("second Lookup() popularity = %d, want 3", got.Popularity)
	}
}

func TestCacheVersionFallback(t *testing.T) {
	store := newFakeAnswerStore()
	cache := newTestCache(t, store)
	ctx := context.Background()

	// Cached without a version: stored under the version-agnostic key.
	canonicalID, _ := CanonicalID("what causes cam lock stripping", "kcd", "")
	entry := &types.AnswerEntry{
		ID:          uuid.New(),
		CanonicalID: canonicalID,
		AnswerText:  "Over-torqued cam locks strip the particle board.",
	}
	if err := cache.Put(ctx, entry); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	// A versioned request should fall back to the version-agnostic entry.
	got, hit, err := cache.Lookup(ctx, "what causes cam lock stripping", "kcd", "2024")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if !hit {
		t.Fatal("versioned Lookup() should fall back to the version-agnostic entry")
	}
	if got.AnswerText != entry.AnswerText {
		t.Errorf("fallback returned wrong entry: %q", got.AnswerText)
	}

	// A different platform must not match.
	_, hit, err = cache.Lookup(ctx, "what causes cam lock stripping", "mozaik", "")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if hit {
		t.Error("Lookup() matched across platforms")
	}
}

func TestCacheVersionedEntryPreferred(t *testing.T) {
	store := newFakeAnswerStore()
	cache := newTestCache(t, store)
	ctx := context.Background()

	agnosticID, _ := CanonicalID("how to set toe kick height", "mozaik", "")
	versionedID, _ := CanonicalID("how to set toe kick height", "mozaik", "12")
	if err := cache.Put(ctx, &types.AnswerEntry{ID: uuid.New(), CanonicalID: agnosticID, AnswerText: "generic"}); err != nil {
		t.Fatal(err)
	}
	if err := cache.Put(ctx, &types.AnswerEntry{ID: uuid.New(), CanonicalID: versionedID, AnswerText: "version specific"}); err != nil {
		t.Fatal(err)
	}

	got, hit, err := cache.Lookup(ctx, "how to set toe kick height", "mozaik", "12")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if !hit || got.AnswerText != "version specific" {
		t.Errorf("Lookup() = %q, want the version-specific entry", got.AnswerText)
	}
}

func TestCachePutRequiresCanonicalID(t *testing.T) {
	cache := newTestCache(t, newFakeAnswerStore())
	err := cache.Put(context.Background(), &types.AnswerEntry{ID: uuid.New()})
	if !apperrors.IsInvalidInput(err) {
		t.Errorf("Put() error = %v, want invalid input", err)
	}
}

func TestCacheVoteChangeDoesNotDoubleCount(t *testing.T) {
	store := newFakeAnswerStore()
	cache := newTestCache(t, store)
	ctx := context.Background()

	canonicalID, _ := CanonicalID("why does the door sag", "mozaik", "")
	entry := &types.AnswerEntry{ID: uuid.New(), CanonicalID: canonicalID, AnswerText: "Tighten the top hinge."}
	if err := cache.Put(ctx, entry); err != nil {
		t.Fatal(err)
	}

	voter := uuid.New()
	tally, err := cache.Vote(ctx, entry.ID, voter, true, "")
	if err != nil {
		t.Fatalf("Vote() error = %v", err)
	}
	if tally.Ups != 1 || tally.Downs != 0 {
		t.Fatalf("after upvote tally = %+v", tally)
	}

	// Same user flips the vote: the upvote is replaced, not added to.
	tally, err = cache.Vote(ctx, entry.ID, voter, false, "outdated")
	if err != nil {
		t.Fatalf("Vote() error = %v", err)
	}
	if tally.Ups != 0 || tally.Downs != 1 {
		t.Errorf("after flipped vote tally = %+v, want 0 up / 1 down", tally)
	}

	// A second user votes independently.
	tally, err = cache.Vote(ctx, entry.ID, uuid.New(), true, "")
	if err != nil {
		t.Fatalf("Vote() error = %v", err)
	}
	if tally.Ups != 1 || tally.Downs != 1 {
		t.Errorf("after second voter tally = %+v, want 1 up / 1 down", tally)
	}
	if tally.QualityScore != 0.5 {
		t.Errorf("quality score = %v, want 0.5", tally.QualityScore)
	}
}

func TestCacheVoteUnknownAnswer(t *testing.T) {
	cache := newTestCache(t, newFakeAnswerStore())

	_, err := cache.Vote(context.Background(), uuid.New(), uuid.New(), true, "")
	if !apperrors.IsNotFound(err) {
		t.Errorf("Vote() on unknown answer error = %v, want not found", err)
	}
}

func TestPublishable(t *testing.T) {
	tests := []struct {
		name       string
		ups, downs int
		popularity int64
		want       bool
	}{
		{"meets_all_thresholds", 3, 0, 5, true},
		{"down_ratio_at_limit", 3, 1, 5, true},
		{"quarter_down_ratio_scales", 6, 2, 10, true},
		{"down_ratio_exceeded", 3, 2, 10, false},
		{"not_enough_ups", 2, 0, 20, false},
		{"not_popular_enough", 5, 0, 4, false},
		{"no_votes", 0, 0, 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &types.AnswerEntry{Ups: tt.ups, Downs: tt.downs, Popularity: tt.popularity}
			if got := Publishable(entry); got != tt.want {
				t.Errorf("Publishable(%d up, %d down, pop %d) = %v, want %v",
					tt.ups, tt.downs, tt.popularity, got, tt.want)
			}
		})
	}

	if Publishable(nil) {
		t.Error("Publishable(nil) = true")
	}
}

func TestCachePublish(t *testing.T) {
	store := newFakeAnswerStore()
	cache := newTestCache(t, store)
	ctx := context.Background()

	canonicalID, _ := CanonicalID("how do I square a face frame", "mozaik", "")
	entry := &types.AnswerEntry{ID: uuid.New(), CanonicalID: canonicalID, AnswerText: "Clamp diagonally."}
	if err := cache.Put(ctx, entry); err != nil {
		t.Fatal(err)
	}

	// Fresh entry: 1 popularity, no votes, not publishable yet.
	if _, err := cache.Publish(ctx, entry.ID, "https://example.com/a/1"); !apperrors.IsForbidden(err) {
		t.Errorf("Publish() before thresholds error = %v, want forbidden", err)
	}

	stored := store.byID[entry.ID]
	stored.Ups = 4
	stored.Popularity = 6

	published, err := cache.Publish(ctx, entry.ID, "https://example.com/a/1")
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if published.PublishedURL == nil || *published.PublishedURL != "https://example.com/a/1" {
		t.Error("published url not recorded on the entry")
	}
}
