package retrieval

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"answer-engine/database"
	"answer-engine/web/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// memoryDocumentStore keeps one document's chunks and vectors in memory and
// ranks searches with Cosine, mirroring the SQL store's threshold predicate
// and its NULL-embedding filter.
type memoryDocumentStore struct {
	docs     map[uuid.UUID]*types.Document
	chunkDoc uuid.UUID
	chunks   []types.Chunk
	vectors  [][]float32
	statuses map[uuid.UUID]string
}

func newMemoryDocumentStore() *memoryDocumentStore {
	return &memoryDocumentStore{
		docs:     make(map[uuid.UUID]*types.Document),
		statuses: make(map[uuid.UUID]string),
	}
}

func (m *memoryDocumentStore) InsertDocument(ctx context.Context, doc *types.Document) error {
	copied := *doc
	m.docs[doc.ID] = &copied
	m.statuses[doc.ID] = types.StatusProcessing
	return nil
}

func (m *memoryDocumentStore) SetDocumentStatus(ctx context.Context, documentID uuid.UUID, status, errorMessage string) error {
	m.statuses[documentID] = status
	return nil
}

func (m *memoryDocumentStore) ReplaceDocumentChunks(ctx context.Context, documentID uuid.UUID, chunks []types.Chunk, vectors [][]float32) error {
	m.chunkDoc = documentID
	m.chunks = chunks
	m.vectors = vectors
	return nil
}

func (m *memoryDocumentStore) SearchChunks(ctx context.Context, queryVec []float32, filter database.ChunkFilter, threshold float64, limit int) ([]database.ChunkHit, error) {
	title := ""
	if doc, ok := m.docs[m.chunkDoc]; ok {
		title = doc.Title
	}

	var hits []database.ChunkHit
	for i, chunk := range m.chunks {
		// A chunk without a vector is invisible, like a NULL embedding.
		if m.vectors[i] == nil {
			continue
		}
		sim := Cosine(queryVec, m.vectors[i])
		if sim < threshold {
			continue
		}
		hits = append(hits, database.ChunkHit{
			DocumentID: m.chunkDoc,
			Title:      title,
			ChunkIndex: chunk.Index,
			Content:    chunk.Text,
			Similarity: sim,
		})
	}
	sort.Slice(hits, func(a, b int) bool { return hits[a].Similarity > hits[b].Similarity })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *memoryDocumentStore) GetChunkNeighbors(ctx context.Context, documentID uuid.UUID, chunkIndex int) (string, string, error) {
	var prev, next string
	for _, chunk := range m.chunks {
		if chunk.Index == chunkIndex-1 {
			prev = chunk.Text
		}
		if chunk.Index == chunkIndex+1 {
			next = chunk.Text
		}
	}
	return prev, next, nil
}

func (m *memoryDocumentStore) ListSpecializedDocuments(ctx context.Context, ownerID uuid.UUID) ([]types.Document, error) {
	return nil, nil
}

// keywordEmbedClient produces deterministic term-count vectors so cosine
// ranking in tests is hand-checkable. Texts containing failSubstring fail
// to embed, per batch and per item.
type keywordEmbedClient struct {
	failSubstring string
}

var embedAxes = []string{"drawer", "slide", "cam", "panel", "screw", "hinge", "door", "rail"}

func keywordVector(text string) []float32 {
	lower := strings.ToLower(text)
	vec := make([]float32, len(embedAxes))
	for i, word := range embedAxes {
		vec[i] = float32(strings.Count(lower, word))
	}
	return vec
}

func (c keywordEmbedClient) Embed(ctx context.Context, host string, text string) ([]float32, error) {
	if c.failSubstring != "" && strings.Contains(strings.ToLower(text), c.failSubstring) {
		return nil, errors.New("embedding backend rejected text")
	}
	return keywordVector(text), nil
}

func (c keywordEmbedClient) EmbedBatch(ctx context.Context, host string, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.Embed(ctx, host, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

const slideSection = `# Drawer slides
Full extension drawer slides need the drawer box sized 25mm narrower than
the opening. Mount each slide level and flush with the cabinet front, then
fix the drawer member with the adjustment screws before testing travel.`

const camSection = `# Cam locks
Cam fittings pull carcass members together when the cam is turned
clockwise. Drive the cam housing fully into its bore and keep the cam arm
engaged on the dowel head, otherwise the joint works loose under load.`

func newKeywordVectorStore(t *testing.T, store *memoryDocumentStore, client keywordEmbedClient) *VectorStore {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	embedder := NewEmbedder(client, "http://localhost:8091", len(embedAxes), 64, 0, logger)
	return NewVectorStore(store, defaultTestChunker(), embedder, 0.7, logger)
}

func ingestTestDocument(t *testing.T, vs *VectorStore, store *memoryDocumentStore) *types.Document {
	t.Helper()
	doc := &types.Document{
		ID:      uuid.New(),
		OwnerID: uuid.New(),
		Title:   "hardware-manual",
		Content: slideSection + "\n\n" + camSection,
	}
	if err := store.InsertDocument(context.Background(), doc); err != nil {
		t.Fatalf("InsertDocument() error = %v", err)
	}
	if err := vs.ProcessDocument(context.Background(), doc); err != nil {
		t.Fatalf("ProcessDocument() error = %v", err)
	}
	return doc
}

func TestIngestThenSearchReturnsMatchingChunk(t *testing.T) {
	store := newMemoryDocumentStore()
	vs := newKeywordVectorStore(t, store, keywordEmbedClient{})
	doc := ingestTestDocument(t, vs, store)

	if len(store.chunks) != 2 {
		t.Fatalf("ingestion produced %d chunks, want one per section", len(store.chunks))
	}
	if store.statuses[doc.ID] != types.StatusReady {
		t.Fatalf("document status = %q, want ready", store.statuses[doc.ID])
	}

	// A near-duplicate of a sentence from the drawer-slide section must
	// rank that section's chunk on top.
	query := "Mount each slide level and flush, then fix the drawer member with the adjustment screws."
	results, err := vs.Search(context.Background(), query, database.ChunkFilter{}, 5, types.SourceUserDocs)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) == 0 {
		t.Fatal("Search() returned nothing for a near-duplicate query")
	}
	top := results[0]
	if top.ChunkIndex != 0 || !strings.Contains(top.Snippet, "drawer") {
		t.Errorf("top result is chunk %d (%q), want the drawer-slide chunk", top.ChunkIndex, top.Snippet)
	}
	if top.Similarity < 0.7 || top.Similarity > 1 {
		t.Errorf("top similarity = %v, want within [0.7, 1]", top.Similarity)
	}
	for _, result := range results {
		if result.ChunkIndex == 1 {
			t.Error("the unrelated cam-lock chunk should fall below the threshold")
		}
	}
}

func TestIngestWithFailedEmbeddingExcludesChunkFromSearch(t *testing.T) {
	store := newMemoryDocumentStore()
	vs := newKeywordVectorStore(t, store, keywordEmbedClient{failSubstring: "cam"})
	doc := ingestTestDocument(t, vs, store)

	// Ingestion degrades instead of failing: the document still comes out
	// ready with both chunks persisted.
	if store.statuses[doc.ID] != types.StatusReady {
		t.Fatalf("document status = %q, want ready despite a failed embedding", store.statuses[doc.ID])
	}
	if len(store.vectors) != 2 {
		t.Fatalf("persisted %d vectors, want 2", len(store.vectors))
	}
	if store.vectors[0] == nil {
		t.Error("the successfully embedded chunk lost its vector")
	}
	if store.vectors[1] != nil {
		t.Errorf("failed chunk persisted vector %v, want nil so it stays out of search", store.vectors[1])
	}

	results, err := vs.Search(context.Background(), "adjusting drawer slides", database.ChunkFilter{}, 5, types.SourceUserDocs)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for _, result := range results {
		if result.ChunkIndex == 1 {
			t.Error("a chunk without an embedding must never surface as a match")
		}
	}
}
