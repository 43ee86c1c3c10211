package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"answer-engine/answers"
	"answer-engine/config"
	"answer-engine/database"
	"answer-engine/llmclient"
	"answer-engine/retrieval"
	"answer-engine/web/types"

	apperrors "answer-engine/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type fakeAnswerStore struct {
	byCanonical map[string]*types.AnswerEntry
	byID        map[uuid.UUID]*types.AnswerEntry
	inserts     int
}

func newFakeAnswerStore() *fakeAnswerStore {
	return &fakeAnswerStore{
		byCanonical: make(map[string]*types.AnswerEntry),
		byID:        make(map[uuid.UUID]*types.AnswerEntry),
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
	f.inserts++
	copied := *entry
	copied.Popularity = 1
	f.byCanonical[entry.CanonicalID] = &copied
	f.byID[entry.ID] = &copied
	return nil
}

func (f *fakeAnswerStore) CastVote(ctx context.Context, answerID, userID uuid.UUID, up bool, reason string) (types.VoteTally, error) {
	if _, ok := f.byID[answerID]; !ok {
		return types.VoteTally{}, apperrors.ErrNotFound
	}
	return types.VoteTally{Ups: 1}, nil
}

func (f *fakeAnswerStore) SetPublishedURL(ctx context.Context, answerID uuid.UUID, url string) error {
	return nil
}

type fakeDocStore struct{}

func (fakeDocStore) InsertDocument(ctx context.Context, doc *types.Document) error { return nil }
func (fakeDocStore) SetDocumentStatus(ctx context.Context, documentID uuid.UUID, status, errorMessage string) error {
	return nil
}
func (fakeDocStore) ReplaceDocumentChunks(ctx context.Context, documentID uuid.UUID, chunks []types.Chunk, vectors [][]float32) error {
	return nil
}
func (fakeDocStore) SearchChunks(ctx context.Context, queryVec []float32, filter database.ChunkFilter, threshold float64, limit int) ([]database.ChunkHit, error) {
	return []database.ChunkHit{
		{DocumentID: uuid.New(), Title: "hinge-guide", ChunkIndex: 0, Content: "Tighten the hinge screws.", Similarity: 0.85},
	}, nil
}
func (fakeDocStore) GetChunkNeighbors(ctx context.Context, documentID uuid.UUID, chunkIndex int) (string, string, error) {
	return "", "", nil
}
func (fakeDocStore) ListSpecializedDocuments(ctx context.Context, ownerID uuid.UUID) ([]types.Document, error) {
	return nil, nil
}

type fakeEmbedClient struct{}

func (fakeEmbedClient) Embed(ctx context.Context, host string, text string) ([]float32, error) {
	vec := make([]float32, 8)
	for i := range vec {
		vec[i] = 0.5
	}
	return vec, nil
}

func (f fakeEmbedClient) EmbedBatch(ctx context.Context, host string, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i], _ = f.Embed(ctx, host, texts[i])
	}
	return vectors, nil
}

type fakeLLM struct {
	completion llmclient.Completion
	err        error
	calls      int
	lastModel  string
}

func (f *fakeLLM) Chat(ctx context.Context, host string, messages []llmclient.Message, opts llmclient.ChatOptions) (llmclient.Completion, error) {
	f.calls++
	f.lastModel = opts.Model
	if f.err != nil {
		return llmclient.Completion{}, f.err
	}
	return f.completion, nil
}

type fakeGate struct {
	allowance types.Allowance
}

func (f *fakeGate) CheckAndConsume(ctx context.Context, userID uuid.UUID) (types.Allowance, error) {
	return f.allowance, nil
}

func testConfig() *config.Config {
	return &config.Config{
		LLMHost:           "http://localhost:8090",
		GenerationTimeout: 5 * time.Second,
		StandardModel:     "standard-model",
		PremiumModel:      "premium-model",
		AnswerMaxTokens:   900,
		AnswerTemperature: 0.3,
	}
}

func newTestEngine(t *testing.T, store *fakeAnswerStore, llm *fakeLLM, gate *fakeGate) *Engine {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	cfg := testConfig()

	cache, err := answers.NewCache(store, 16, logger)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}

	embedder := retrieval.NewEmbedder(fakeEmbedClient{}, "http://localhost:8091", 8, 64, 0, logger)
	chunker := retrieval.NewTextChunker(retrieval.ChunkerConfig{})
	vs := retrieval.NewVectorStore(fakeDocStore{}, chunker, embedder, 0.7, logger)
	fusion := retrieval.NewFusion(vs, 4, logger)

	return New(cfg, cache, fusion, vs, llm, gate, logger)
}

func allowedGate() *fakeGate {
	return &fakeGate{allowance: types.Allowance{Allowed: true, ModelTier: "standard"}}
}

func TestAnswerMissGeneratesAndCaches(t *testing.T) {
	store := newFakeAnswerStore()
	llm := &fakeLLM{completion: llmclient.Completion{Text: "Tighten the top hinge.", PromptTokens: 120, CompletionTokens: 40}}
	eng := newTestEngine(t, store, llm, allowedGate())

	resp, err := eng.Answer(context.Background(), Request{
		Question: "why does my cabinet door sag",
		UserID:   uuid.New(),
		Platform: "mozaik",
		Version:  "12",
	})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if resp.CacheHit {
		t.Error("first request should be a cache miss")
	}
	if resp.Text != "Tighten the top hinge." {
		t.Errorf("Answer() text = %q", resp.Text)
	}
	if llm.calls != 1 {
		t.Errorf("llm called %d times, want 1", llm.calls)
	}
	if llm.lastModel != "standard-model" {
		t.Errorf("model = %q, want the standard tier model", llm.lastModel)
	}
	if store.inserts != 1 {
		t.Errorf("store inserts = %d, want 1", store.inserts)
	}
	if len(resp.Sources) == 0 {
		t.Error("response carries no sources despite retrieval hits")
	}

	cached := store.byID[resp.AnswerID]
	if cached == nil {
		t.Fatal("generated answer not persisted")
	}
	if cached.PromptTokens != 120 || cached.CompletionTokens != 40 {
		t.Errorf("token usage not recorded: %d/%d", cached.PromptTokens, cached.CompletionTokens)
	}
	if cached.Version == nil || *cached.Version != "12" {
		t.Error("version not recorded on the cached entry")
	}
}

func TestAnswerHitSkipsGeneration(t *testing.T) {
	store := newFakeAnswerStore()
	llm := &fakeLLM{completion: llmclient.Completion{Text: "generated"}}
	eng := newTestEngine(t, store, llm, allowedGate())
	ctx := context.Background()

	first, err := eng.Answer(ctx, Request{Question: "why does my cabinet door sag", UserID: uuid.New(), Platform: "mozaik"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}

	second, err := eng.Answer(ctx, Request{Question: "Why does my cabinet door sag", UserID: uuid.New(), Platform: "mozaik"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !second.CacheHit {
		t.Fatal("second identical request should hit the cache")
	}
	if second.AnswerID != first.AnswerID {
		t.Error("cache hit returned a different answer")
	}
	if llm.calls != 1 {
		t.Errorf("llm called %d times, want 1 (hit must not regenerate)", llm.calls)
	}
}

func TestAnswerGenerationFailureNotCached(t *testing.T) {
	store := newFakeAnswerStore()
	llm := &fakeLLM{err: errors.New("model exploded")}
	eng := newTestEngine(t, store, llm, allowedGate())

	_, err := eng.Answer(context.Background(), Request{Question: "why does my door sag", UserID: uuid.New()})
	if !apperrors.IsGenerationFailure(err) {
		t.Fatalf("Answer() error = %v, want generation failure", err)
	}
	if store.inserts != 0 {
		t.Error("failed generation must not write a cache entry")
	}

	// A retry after the failure generates again rather than serving a
	// partial result.
	llm.err = nil
	llm.completion = llmclient.Completion{Text: "recovered"}
	resp, err := eng.Answer(context.Background(), Request{Question: "why does my door sag", UserID: uuid.New()})
	if err != nil {
		t.Fatalf("Answer() retry error = %v", err)
	}
	if resp.CacheHit || resp.Text != "recovered" {
		t.Errorf("retry response = %+v, want fresh generation", resp)
	}
}

func TestAnswerUsageLimit(t *testing.T) {
	store := newFakeAnswerStore()
	llm := &fakeLLM{}
	gate := &fakeGate{allowance: types.Allowance{Allowed: false, DailyUsed: 21, DailyLimit: 20}}
	eng := newTestEngine(t, store, llm, gate)

	_, err := eng.Answer(context.Background(), Request{Question: "anything", UserID: uuid.New()})
	if !apperrors.IsUsageLimit(err) {
		t.Fatalf("Answer() error = %v, want usage limit", err)
	}
	if llm.calls != 0 {
		t.Error("gated request must not reach the model")
	}
}

func TestAnswerEmptyQuestion(t *testing.T) {
	eng := newTestEngine(t, newFakeAnswerStore(), &fakeLLM{}, allowedGate())

	_, err := eng.Answer(context.Background(), Request{Question: "   ", UserID: uuid.New()})
	if !apperrors.IsInvalidInput(err) {
		t.Errorf("Answer() error = %v, want invalid input", err)
	}
}

func TestAnswerPremiumTierModel(t *testing.T) {
	store := newFakeAnswerStore()
	llm := &fakeLLM{completion: llmclient.Completion{Text: "detailed answer"}}
	gate := &fakeGate{allowance: types.Allowance{Allowed: true, ModelTier: "premium", AllowPremium: true}}
	eng := newTestEngine(t, store, llm, gate)

	_, err := eng.Answer(context.Background(), Request{Question: "how deep is a standard base cabinet", UserID: uuid.New()})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if llm.lastModel != "premium-model" {
		t.Errorf("model = %q, want the premium tier model", llm.lastModel)
	}
}
