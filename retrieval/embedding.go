package retrieval

import (
	"context"
	"fmt"
	"math"
	"time"

	apperrors "answer-engine/errors"

	"go.uber.org/zap"
)

// EmbedClient is the contract the embedding provider must satisfy.
type EmbedClient interface {
	Embed(ctx context.Context, host string, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, host string, texts []string) ([][]float32, error)
}

// Embedder maps texts to fixed-dimension vectors through a batched external
// call. Ingestion degrades per item instead of failing outright: a chunk
// whose embedding fails gets a nil vector, which the store persists as NULL
// so the chunk never surfaces from similarity search.
type Embedder struct {
	client     EmbedClient
	host       string
	dimensions int
	batchSize  int
	batchDelay time.Duration
	logger     *zap.Logger
}

func NewEmbedder(client EmbedClient, host string, dimensions, batchSize int, batchDelay time.Duration, logger *zap.Logger) *Embedder {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Embedder{
		client:     client,
		host:       host,
		dimensions: dimensions,
		batchSize:  batchSize,
		batchDelay: batchDelay,
		logger:     logger,
	}
}

// Dimensions reports the vector length this embedder produces.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// EmbedChunks embeds all texts, batched up to the provider maximum, with a
// fixed delay between batches to respect provider rate limits. A failed
// batch falls back to per-item calls; a failed item yields a nil vector.
func (e *Embedder) EmbedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += e.batchSize {
		if start > 0 && e.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.batchDelay):
			}
		}

		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		batchVectors, err := e.client.EmbedBatch(ctx, e.host, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("Batch embedding failed, falling back to per-item calls",
				zap.Error(err),
				zap.Int("batch_start", start),
				zap.Int("batch_size", len(batch)))
			batchVectors = e.embedIndividually(ctx, batch, start)
		}

		for i, vec := range batchVectors {
			if len(vec) != e.dimensions {
				if len(vec) != 0 {
					e.logger.Warn("Embedding dimension mismatch, dropping vector",
						zap.Int("got", len(vec)),
						zap.Int("want", e.dimensions),
						zap.Int("index", start+i))
				}
				vec = nil
			}
			vectors = append(vectors, vec)
		}
	}

	return vectors, nil
}

// embedIndividually is the degraded path: one call per text, nil vector on
// failure. Never fails the whole ingestion.
func (e *Embedder) embedIndividually(ctx context.Context, texts []string, offset int) [][]float32 {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.client.Embed(ctx, e.host, text)
		if err != nil {
			e.logger.Warn("Per-item embedding failed, chunk will not be searchable",
				zap.Error(err),
				zap.Int("index", offset+i))
			continue
		}
		vectors[i] = vec
	}
	return vectors
}

// EmbedQuery embeds a single query and fails fast on error: a degraded
// query embedding would corrupt ranking, unlike a single unembedded chunk.
func (e *Embedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vec, err := e.client.Embed(ctx, e.host, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrEmbeddingFailure, err)
	}
	if len(vec) != e.dimensions {
		return nil, fmt.Errorf("%w: query embedding has dimension %d, want %d",
			apperrors.ErrEmbeddingFailure, len(vec), e.dimensions)
	}
	return vec, nil
}

// Cosine returns the cosine similarity of two vectors: dot(a,b)/(‖a‖·‖b‖).
// Returns 0 when either vector has zero norm or the dimensions differ, so a
// degenerate vector never ranks as a match.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
