package retrieval

import (
	"context"
	"fmt"

	"answer-engine/database"
	"answer-engine/web/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	snippetMaxChars = 300
	windowMaxChars  = 200
)

// DocumentStore is the persistence contract the vector store needs. It is
// satisfied by database.PostgresStore and by fakes in tests.
type DocumentStore interface {
	InsertDocument(ctx context.Context, doc *types.Document) error
	SetDocumentStatus(ctx context.Context, documentID uuid.UUID, status, errorMessage string) error
	ReplaceDocumentChunks(ctx context.Context, documentID uuid.UUID, chunks []types.Chunk, vectors [][]float32) error
	SearchChunks(ctx context.Context, queryVec []float32, filter database.ChunkFilter, threshold float64, limit int) ([]database.ChunkHit, error)
	GetChunkNeighbors(ctx context.Context, documentID uuid.UUID, chunkIndex int) (string, string, error)
	ListSpecializedDocuments(ctx context.Context, ownerID uuid.UUID) ([]types.Document, error)
}

// VectorStore couples chunking, embedding, and chunk persistence into the
// document ingestion and similarity search operations.
type VectorStore struct {
	store     DocumentStore
	chunker   *TextChunker
	embedder  *Embedder
	splitter  SentenceSplitter
	threshold float64
	logger    *zap.Logger
}

func NewVectorStore(store DocumentStore, chunker *TextChunker, embedder *Embedder, threshold float64, logger *zap.Logger) *VectorStore {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.7
	}
	return &VectorStore{
		store:     store,
		chunker:   chunker,
		embedder:  embedder,
		splitter:  NewProseSentenceSplitter(),
		threshold: threshold,
		logger:    logger,
	}
}

// AddDocumentAsync persists the raw document and runs chunking and
// embedding in a detached goroutine so the upload request can return in
// processing state. The pipeline gets its own context: cancellation of the
// HTTP request must not abandon a document mid-index.
func (v *VectorStore) AddDocumentAsync(ctx context.Context, doc *types.Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if err := v.store.InsertDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to persist document: %w", err)
	}
	doc.Status = types.StatusProcessing

	background := *doc
	go func() {
		if err := v.ProcessDocument(context.Background(), &background); err != nil {
			v.logger.Error("Background document processing failed",
				zap.Error(err),
				zap.String("document_id", background.ID.String()))
		}
	}()
	return nil
}

// ProcessDocument chunks and embeds an already persisted document. Split
// out so ingestion can run in the background after the upload returns.
func (v *VectorStore) ProcessDocument(ctx context.Context, doc *types.Document) error {
	chunks := v.chunker.Chunk(doc.Content)
	if len(chunks) == 0 && doc.Specialized == nil {
		msg := "content too short to index"
		if err := v.store.SetDocumentStatus(ctx, doc.ID, types.StatusError, msg); err != nil {
			return err
		}
		doc.Status = types.StatusError
		doc.ErrorMessage = msg
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, err := v.embedder.EmbedChunks(ctx, texts)
	if err != nil {
		return v.failDocument(ctx, doc, fmt.Errorf("failed to embed chunks: %w", err))
	}
	if err := v.store.ReplaceDocumentChunks(ctx, doc.ID, chunks, vectors); err != nil {
		return v.failDocument(ctx, doc, fmt.Errorf("failed to store chunks: %w", err))
	}
	if err := v.store.SetDocumentStatus(ctx, doc.ID, types.StatusReady, ""); err != nil {
		return err
	}

	doc.Status = types.StatusReady
	v.logger.Info("Document indexed",
		zap.String("document_id", doc.ID.String()),
		zap.Int("chunks", len(chunks)))
	return nil
}

func (v *VectorStore) failDocument(ctx context.Context, doc *types.Document, cause error) error {
	doc.Status = types.StatusError
	doc.ErrorMessage = cause.Error()
	if err := v.store.SetDocumentStatus(ctx, doc.ID, types.StatusError, cause.Error()); err != nil {
		v.logger.Error("Failed to record document error state",
			zap.Error(err),
			zap.String("document_id", doc.ID.String()))
	}
	return cause
}

// Search embeds the query and delegates to SearchVector. Query embedding
// failure fails the whole search.
func (v *VectorStore) Search(ctx context.Context, query string, filter database.ChunkFilter, limit int, source string) ([]types.SearchResult, error) {
	queryVec, err := v.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return v.SearchVector(ctx, queryVec, filter, limit, source)
}

// SearchVector runs the similarity search and shapes results: a trimmed
// snippet plus a previous/current/next context window for readability.
func (v *VectorStore) SearchVector(ctx context.Context, queryVec []float32, filter database.ChunkFilter, limit int, source string) ([]types.SearchResult, error) {
	hits, err := v.store.SearchChunks(ctx, queryVec, filter, v.threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	results := make([]types.SearchResult, 0, len(hits))
	for _, hit := range hits {
		result := types.SearchResult{
			DocumentID: hit.DocumentID,
			Title:      hit.Title,
			ChunkIndex: hit.ChunkIndex,
			Similarity: hit.Similarity,
			Snippet:    TrimToSentences(v.splitter, hit.Content, snippetMaxChars),
			Source:     source,
		}

		prev, next, err := v.store.GetChunkNeighbors(ctx, hit.DocumentID, hit.ChunkIndex)
		if err != nil {
			v.logger.Warn("Failed to load context window",
				zap.Error(err),
				zap.String("document_id", hit.DocumentID.String()),
				zap.Int("chunk_index", hit.ChunkIndex))
		} else {
			result.ContextWindow = buildContextWindow(v.splitter, prev, hit.Content, next)
		}

		results = append(results, result)
	}
	return results, nil
}

func buildContextWindow(splitter SentenceSplitter, prev, current, next string) string {
	var parts []string
	if prev != "" {
		parts = append(parts, TrimToSentences(splitter, prev, windowMaxChars))
	}
	parts = append(parts, TrimToSentences(splitter, current, windowMaxChars))
	if next != "" {
		parts = append(parts, TrimToSentences(splitter, next, windowMaxChars))
	}
	joined := ""
	for i, p := range parts {
		if i > 0 {
			joined += " … "
		}
		joined += p
	}
	return joined
}
