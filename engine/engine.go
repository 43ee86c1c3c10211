package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"answer-engine/answers"
	"answer-engine/config"
	"answer-engine/llmclient"
	"answer-engine/retrieval"
	"answer-engine/web/types"

	apperrors "answer-engine/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LLM is the language-model contract the orchestrator generates against.
type LLM interface {
	Chat(ctx context.Context, host string, messages []llmclient.Message, opts llmclient.ChatOptions) (llmclient.Completion, error)
}

// UsageGate is the external per-user limit pre-check. The engine consumes
// its verdict (model tier, feature flags); it does not own usage state.
type UsageGate interface {
	CheckAndConsume(ctx context.Context, userID uuid.UUID) (types.Allowance, error)
}

// Request is one answer request from the chat layer.
type Request struct {
	Question       string
	UserID         uuid.UUID
	Platform       string
	Version        string
	UploadedFileID *uuid.UUID
}

// Response is the engine's reply to the chat layer.
type Response struct {
	Text              string               `json:"text"`
	AnswerID          uuid.UUID            `json:"answer_id"`
	CacheHit          bool                 `json:"cache_hit"`
	Sources           []types.AnswerSource `json:"sources"`
	QualityConfidence string               `json:"quality_confidence"`
}

// Engine orchestrates the answer path: canonicalize, cache lookup, and on
// a miss fuse context, generate once, and write the result back into the
// cache.
type Engine struct {
	cfg    *config.Config
	cache  *answers.Cache
	fusion *retrieval.Fusion
	vs     *retrieval.VectorStore
	llm    LLM
	gate   UsageGate
	logger *zap.Logger
}

func New(cfg *config.Config, cache *answers.Cache, fusion *retrieval.Fusion, vs *retrieval.VectorStore, llm LLM, gate UsageGate, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		cache:  cache,
		fusion: fusion,
		vs:     vs,
		llm:    llm,
		gate:   gate,
		logger: logger,
	}
}

// Answer resolves a question: cache hit returns the stored answer with its
// popularity bumped; cache miss generates a new one. Generation failure is
// surfaced without writing a cache entry, so an identical retry generates
// again instead of serving a partial result.
func (e *Engine) Answer(ctx context.Context, req Request) (*Response, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, apperrors.WrapError(apperrors.ErrInvalidInput, "question must not be empty")
	}

	allowance, err := e.gate.CheckAndConsume(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("usage gate check failed: %w", err)
	}
	if !allowance.Allowed {
		return nil, apperrors.WrapErrorf(apperrors.ErrUsageLimit,
			"daily %d/%d, monthly %d/%d",
			allowance.DailyUsed, allowance.DailyLimit,
			allowance.MonthlyUsed, allowance.MonthlyLimit)
	}

	entry, hit, err := e.cache.Lookup(ctx, question, req.Platform, req.Version)
	if err != nil {
		return nil, err
	}
	if hit {
		e.logger.Info("Answer cache hit",
			zap.String("canonical_id", entry.CanonicalID),
			zap.Int64("popularity", entry.Popularity))
		return &Response{
			Text:              entry.AnswerText,
			AnswerID:          entry.ID,
			CacheHit:          true,
			Sources:           entry.Sources,
			QualityConfidence: entry.Confidence,
		}, nil
	}

	bundle, err := e.fusion.Fuse(ctx, question, req.UserID, req.UploadedFileID)
	if err != nil {
		return nil, err
	}

	messages := BuildPrompt(question, bundle, allowance.AllowPremium)

	opts := llmclient.ChatOptions{
		Model:       e.modelForTier(allowance.ModelTier),
		MaxTokens:   e.maxTokensForTier(allowance.ModelTier),
		Temperature: &e.cfg.AnswerTemperature,
	}

	genCtx, cancel := context.WithTimeout(ctx, e.cfg.GenerationTimeout)
	defer cancel()

	start := time.Now()
	completion, err := e.llm.Chat(genCtx, e.cfg.LLMHost, messages, opts)
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrGenerationFailure, err)
	}

	canonicalID, err := answers.CanonicalID(question, req.Platform, req.Version)
	if err != nil {
		return nil, err
	}

	newEntry := &types.AnswerEntry{
		ID:               uuid.New(),
		CanonicalID:      canonicalID,
		Platform:         answers.NormalizePlatform(req.Platform),
		Question:         question,
		AnswerText:       completion.Text,
		Sources:          bundleSources(bundle),
		Model:            opts.Model,
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
		LatencyMS:        latency.Milliseconds(),
		Confidence:       bundle.Confidence,
	}
	if v := answers.NormalizeVersion(req.Version); v != "" {
		newEntry.Version = &v
	}

	if err := e.cache.Put(ctx, newEntry); err != nil {
		// The answer was generated; losing the cache write should not lose
		// the response.
		e.logger.Error("Failed to cache generated answer",
			zap.Error(err),
			zap.String("canonical_id", canonicalID))
	}

	e.logger.Info("Answer generated",
		zap.String("canonical_id", canonicalID),
		zap.String("model", opts.Model),
		zap.String("confidence", bundle.Confidence),
		zap.Int("prompt_tokens", completion.PromptTokens),
		zap.Int("completion_tokens", completion.CompletionTokens),
		zap.Duration("latency", latency))

	return &Response{
		Text:              completion.Text,
		AnswerID:          newEntry.ID,
		CacheHit:          false,
		Sources:           newEntry.Sources,
		QualityConfidence: bundle.Confidence,
	}, nil
}

// Vote records or changes a user's vote on an answer.
func (e *Engine) Vote(ctx context.Context, answerID, userID uuid.UUID, up bool, reason string) (types.VoteTally, error) {
	return e.cache.Vote(ctx, answerID, userID, up, reason)
}

// Ingest persists a document and kicks off chunking and embedding in the
// background, returning immediately in processing state.
func (e *Engine) Ingest(ctx context.Context, doc *types.Document) error {
	if strings.TrimSpace(doc.Content) == "" && doc.Specialized == nil {
		return apperrors.WrapError(apperrors.ErrInvalidInput, "document content must not be empty")
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.SourceCategory == "" {
		doc.SourceCategory = "user_upload"
	}

	if err := e.vs.AddDocumentAsync(ctx, doc); err != nil {
		return err
	}
	doc.Status = types.StatusProcessing
	return nil
}

func (e *Engine) modelForTier(tier string) string {
	if tier == "premium" {
		return e.cfg.PremiumModel
	}
	return e.cfg.StandardModel
}

func (e *Engine) maxTokensForTier(tier string) int {
	if tier == "premium" {
		return e.cfg.AnswerMaxTokens
	}
	// Standard tier gets a tighter budget and a concise style.
	return e.cfg.AnswerMaxTokens * 2 / 3
}

func bundleSources(bundle *retrieval.Bundle) []types.AnswerSource {
	sources := make([]types.AnswerSource, 0, len(bundle.Items))
	for _, item := range bundle.Items {
		sources = append(sources, types.AnswerSource{
			Title:      item.Title,
			Source:     item.Source,
			Similarity: item.Similarity,
		})
	}
	return sources
}
