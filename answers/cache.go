package answers

import (
	"context"
	"fmt"

	"answer-engine/web/types"

	apperrors "answer-engine/errors"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

// Publishing eligibility thresholds.
const (
	publishMinUps        = 3
	publishMaxDownRatio  = 0.25
	publishMinPopularity = 5
)

// Store is the persistence contract for cached answers. Injected rather
// than reached through globals so tests can run against fakes. Operations
// on an answer id that does not exist return ErrNotFound.
type Store interface {
	GetAnswerByCanonicalID(ctx context.Context, canonicalID string) (*types.AnswerEntry, error)
	GetAnswer(ctx context.Context, answerID uuid.UUID) (*types.AnswerEntry, error)
	IncrementPopularity(ctx context.Context, answerID uuid.UUID) (int64, error)
	InsertAnswer(ctx context.Context, entry *types.AnswerEntry) error
	CastVote(ctx context.Context, answerID, userID uuid.UUID, up bool, reason string) (types.VoteTally, error)
	SetPublishedURL(ctx context.Context, answerID uuid.UUID, url string) error
}

// Cache is the canonical answer cache: lookups resolve the versioned key
// first, then the version-agnostic fallback, and every hit bumps the
// popularity counter. A small LRU in front of the store short-circuits the
// canonical-id query for hot questions; the database stays the source of
// truth for counters.
type Cache struct {
	store  Store
	hot    *lru.Cache
	logger *zap.Logger
}

func NewCache(store Store, hotSize int, logger *zap.Logger) (*Cache, error) {
	if hotSize <= 0 {
		hotSize = 512
	}
	hot, err := lru.New(hotSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create hot cache: %w", err)
	}
	return &Cache{store: store, hot: hot, logger: logger}, nil
}

// Lookup resolves a question against the cache. On a hit the popularity
// counter is incremented atomically at the store and the stored answer is
// returned without re-invoking the language model.
func (c *Cache) Lookup(ctx context.Context, question, platform, version string) (*types.AnswerEntry, bool, error) {
	versioned, fallback, err := CanonicalKeys(question, platform, version)
	if err != nil {
		return nil, false, err
	}

	keys := []string{versioned}
	if fallback != versioned {
		keys = append(keys, fallback)
	}

	for _, key := range keys {
		entry, err := c.lookupKey(ctx, key)
		if err != nil {
			if apperrors.IsNotFound(err) {
				continue
			}
			return nil, false, err
		}

		popularity, err := c.store.IncrementPopularity(ctx, entry.ID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				// Stale hot-cache pointer; drop it and keep looking.
				c.hot.Remove(key)
				continue
			}
			return nil, false, err
		}
		entry.Popularity = popularity
		return entry, true, nil
	}
	return nil, false, nil
}

func (c *Cache) lookupKey(ctx context.Context, canonicalID string) (*types.AnswerEntry, error) {
	if cached, ok := c.hot.Get(canonicalID); ok {
		if answerID, ok := cached.(uuid.UUID); ok {
			entry, err := c.store.GetAnswer(ctx, answerID)
			if err == nil {
				return entry, nil
			}
			if !apperrors.IsNotFound(err) {
				return nil, err
			}
			c.hot.Remove(canonicalID)
		}
	}

	entry, err := c.store.GetAnswerByCanonicalID(ctx, canonicalID)
	if err != nil {
		return nil, err
	}
	c.hot.Add(canonicalID, entry.ID)
	return entry, nil
}

// Put stores a freshly generated answer under its versioned canonical id.
// The entry enters the cache with popularity 1 and zero votes, and becomes
// the winning entry for its canonical id.
func (c *Cache) Put(ctx context.Context, entry *types.AnswerEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CanonicalID == "" {
		return apperrors.WrapError(apperrors.ErrInvalidInput, "canonical id is required")
	}
	if err := c.store.InsertAnswer(ctx, entry); err != nil {
		return fmt.Errorf("failed to cache answer: %w", err)
	}
	c.hot.Add(entry.CanonicalID, entry.ID)
	return nil
}

// Vote records one vote per (user, answer); a repeat vote with a different
// value replaces the old one without double counting. Returns the updated
// tally.
func (c *Cache) Vote(ctx context.Context, answerID, userID uuid.UUID, up bool, reason string) (types.VoteTally, error) {
	tally, err := c.store.CastVote(ctx, answerID, userID, up, reason)
	if err != nil {
		return tally, err
	}
	c.logger.Debug("Vote recorded",
		zap.String("answer_id", answerID.String()),
		zap.Bool("up", up),
		zap.Int("ups", tally.Ups),
		zap.Int("downs", tally.Downs))
	return tally, nil
}

// Get loads an answer by id.
func (c *Cache) Get(ctx context.Context, answerID uuid.UUID) (*types.AnswerEntry, error) {
	return c.store.GetAnswer(ctx, answerID)
}

// Publish records the public URL for an answer, refusing entries that have
// not cleared the vote and popularity thresholds.
func (c *Cache) Publish(ctx context.Context, answerID uuid.UUID, url string) (*types.AnswerEntry, error) {
	entry, err := c.store.GetAnswer(ctx, answerID)
	if err != nil {
		return nil, err
	}
	if !Publishable(entry) {
		return nil, apperrors.WrapError(apperrors.ErrForbidden, "answer has not met publish thresholds")
	}
	if err := c.store.SetPublishedURL(ctx, answerID, url); err != nil {
		return nil, err
	}
	entry.PublishedURL = &url
	c.logger.Info("Answer published",
		zap.String("answer_id", answerID.String()),
		zap.String("url", url))
	return entry, nil
}

// Publishable reports whether an answer meets the vote and popularity
// thresholds to be exposed as a public page. The publishing itself is done
// by external tooling.
func Publishable(entry *types.AnswerEntry) bool {
	if entry == nil {
		return false
	}
	total := entry.Ups + entry.Downs
	if entry.Ups < publishMinUps || total == 0 {
		return false
	}
	downRatio := float64(entry.Downs) / float64(total)
	return downRatio <= publishMaxDownRatio && entry.Popularity >= publishMinPopularity
}
