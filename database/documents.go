package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"answer-engine/web/types"

	apperrors "answer-engine/errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// ChunkFilter narrows a similarity search to a document partition.
type ChunkFilter struct {
	OwnerID        *uuid.UUID
	SourceCategory string
	DocumentID     *uuid.UUID
}

// ChunkHit is one raw similarity-search row before snippet shaping.
type ChunkHit struct {
	DocumentID uuid.UUID
	Title      string
	ChunkIndex int
	Content    string
	Similarity float64
}

// InsertDocument stores a new document in processing state. The raw content
// is persisted immediately so a failed embedding run never loses the upload.
func (s *PostgresStore) InsertDocument(ctx context.Context, doc *types.Document) error {
	var specializedJSON any
	if doc.Specialized != nil {
		data, err := json.Marshal(doc.Specialized)
		if err != nil {
			return fmt.Errorf("failed to marshal specialized context: %w", err)
		}
		specializedJSON = string(data)
	}

	query := `
        INSERT INTO documents (id, owner_id, title, content, source_category, file_type, tags, specialized, status, uploaded_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
    `
	_, err := s.DB.ExecContext(ctx, query,
		doc.ID, doc.OwnerID, doc.Title, doc.Content, doc.SourceCategory,
		doc.FileType, pq.Array(doc.Tags), specializedJSON, types.StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// SetDocumentStatus transitions a document's lifecycle state.
func (s *PostgresStore) SetDocumentStatus(ctx context.Context, documentID uuid.UUID, status, errorMessage string) error {
	query := `UPDATE documents SET status = $1, error_message = $2 WHERE id = $3`
	result, err := s.DB.ExecContext(ctx, query, status, errorMessage, documentID)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ReplaceDocumentChunks atomically swaps a document's chunk set. Chunks and
// vectors must be parallel slices; the order defines the retrieval-stable
// chunk index. A nil vector marks a chunk whose embedding failed: its text
// is kept but the embedding column stays NULL, which keeps it out of
// similarity search. A zero vector must never be stored, cosine distance
// against it is NaN and NaN compares above every threshold in PostgreSQL.
func (s *PostgresStore) ReplaceDocumentChunks(ctx context.Context, documentID uuid.UUID, chunks []types.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vectors))
	}
	for i, vec := range vectors {
		if vec != nil && len(vec) != s.embeddingDim {
			return fmt.Errorf("vector %d has dimension %d, store expects %d", i, len(vec), s.embeddingDim)
		}
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("failed to delete stale chunks: %w", err)
	}

	query := `
        INSERT INTO document_chunks (id, document_id, chunk_index, content, token_count, start_offset, end_offset, section_complete, embedding)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	for i, chunk := range chunks {
		var embedding any
		if vectors[i] != nil {
			embedding = pgvector.NewVector(vectors[i])
		}
		_, err := tx.ExecContext(ctx, query,
			uuid.New(), documentID, chunk.Index, chunk.Text, chunk.TokenCount,
			chunk.Start, chunk.End, chunk.SectionComplete, embedding)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetDocument loads a document, enforcing ownership. Knowledge-base
// documents are readable by anyone.
func (s *PostgresStore) GetDocument(ctx context.Context, documentID, ownerID uuid.UUID) (*types.Document, error) {
	query := `
        SELECT id, owner_id, title, content, source_category, file_type, tags, specialized, status, error_message, uploaded_at
        FROM documents WHERE id = $1
    `
	doc, err := s.scanDocument(s.DB.QueryRowContext(ctx, query, documentID))
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != ownerID && doc.SourceCategory != types.CategoryKnowledgeBase {
		return nil, apperrors.ErrForbidden
	}
	return doc, nil
}

// ListDocuments returns the caller's documents, optionally filtered by
// source category, newest first.
func (s *PostgresStore) ListDocuments(ctx context.Context, ownerID uuid.UUID, sourceCategory string) ([]types.Document, error) {
	var builder strings.Builder
	builder.WriteString(`
        SELECT id, owner_id, title, content, source_category, file_type, tags, specialized, status, error_message, uploaded_at
        FROM documents WHERE owner_id = $1
    `)
	args := []any{ownerID}
	if sourceCategory != "" {
		builder.WriteString(" AND source_category = $2")
		args = append(args, sourceCategory)
	}
	builder.WriteString(" ORDER BY uploaded_at DESC")

	rows, err := s.DB.QueryContext(ctx, builder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		doc, err := s.scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document and its chunks, enforcing ownership.
func (s *PostgresStore) DeleteDocument(ctx context.Context, documentID, ownerID uuid.UUID) error {
	result, err := s.DB.ExecContext(ctx,
		`DELETE FROM documents WHERE id = $1 AND owner_id = $2`, documentID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Distinguish missing from owned-by-someone-else
		var exists bool
		if err := s.DB.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)`, documentID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return apperrors.ErrForbidden
		}
		return apperrors.ErrNotFound
	}
	return nil
}

// SearchChunks runs a cosine similarity search over ready documents,
// keeping rows at or above the threshold. Chunks whose embedding failed at
// ingestion have a NULL embedding and never surface. The query vector must
// match the store's embedding dimension; mixing models is refused here.
func (s *PostgresStore) SearchChunks(ctx context.Context, queryVec []float32, filter ChunkFilter, threshold float64, limit int) ([]ChunkHit, error) {
	if len(queryVec) != s.embeddingDim {
		return nil, fmt.Errorf("query vector dimension %d does not match store dimension %d: %w",
			len(queryVec), s.embeddingDim, apperrors.ErrInvalidInput)
	}
	if limit <= 0 {
		return nil, nil
	}

	var builder strings.Builder
	builder.WriteString(`
        SELECT c.document_id, d.title, c.chunk_index, c.content,
               1 - (c.embedding <=> $1) AS similarity
        FROM document_chunks c
        JOIN documents d ON d.id = c.document_id
        WHERE d.status = 'ready' AND c.embedding IS NOT NULL
    `)
	args := []any{pgvector.NewVector(queryVec)}
	paramIndex := 2

	if filter.OwnerID != nil {
		builder.WriteString(fmt.Sprintf(" AND d.owner_id = $%d", paramIndex))
		args = append(args, *filter.OwnerID)
		paramIndex++
	}
	if filter.SourceCategory != "" {
		builder.WriteString(fmt.Sprintf(" AND d.source_category = $%d", paramIndex))
		args = append(args, filter.SourceCategory)
		paramIndex++
	}
	if filter.DocumentID != nil {
		builder.WriteString(fmt.Sprintf(" AND c.document_id = $%d", paramIndex))
		args = append(args, *filter.DocumentID)
		paramIndex++
	}

	builder.WriteString(fmt.Sprintf(" AND 1 - (c.embedding <=> $1) >= $%d", paramIndex))
	args = append(args, threshold)
	paramIndex++
	builder.WriteString(fmt.Sprintf(" ORDER BY c.embedding <=> $1 LIMIT $%d", paramIndex))
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, builder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var hits []ChunkHit
	for rows.Next() {
		var hit ChunkHit
		if err := rows.Scan(&hit.DocumentID, &hit.Title, &hit.ChunkIndex, &hit.Content, &hit.Similarity); err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// GetChunkNeighbors returns the text of the chunks directly before and
// after the given index. Missing neighbors come back empty.
func (s *PostgresStore) GetChunkNeighbors(ctx context.Context, documentID uuid.UUID, chunkIndex int) (prev string, next string, err error) {
	query := `
        SELECT chunk_index, content FROM document_chunks
        WHERE document_id = $1 AND chunk_index IN ($2, $3)
    `
	rows, err := s.DB.QueryContext(ctx, query, documentID, chunkIndex-1, chunkIndex+1)
	if err != nil {
		return "", "", fmt.Errorf("failed to load chunk neighbors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var idx int
		var content string
		if err := rows.Scan(&idx, &content); err != nil {
			return "", "", err
		}
		if idx == chunkIndex-1 {
			prev = content
		} else {
			next = content
		}
	}
	return prev, next, rows.Err()
}

// ListSpecializedDocuments returns the caller's documents that carry a
// parsed component payload.
func (s *PostgresStore) ListSpecializedDocuments(ctx context.Context, ownerID uuid.UUID) ([]types.Document, error) {
	query := `
        SELECT id, owner_id, title, content, source_category, file_type, tags, specialized, status, error_message, uploaded_at
        FROM documents
        WHERE owner_id = $1 AND specialized IS NOT NULL AND status = 'ready'
        ORDER BY uploaded_at DESC
    `
	rows, err := s.DB.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list specialized documents: %w", err)
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		doc, err := s.scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// FailStuckDocuments marks documents that have sat in processing state
// longer than maxAge as errored. A crash mid-pipeline would otherwise leave
// them in processing forever. Returns the number of documents transitioned.
func (s *PostgresStore) FailStuckDocuments(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	result, err := s.DB.ExecContext(ctx, `
        UPDATE documents SET status = $1, error_message = 'processing timed out'
        WHERE status = $2 AND uploaded_at < $3
    `, types.StatusError, types.StatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to fail stuck documents: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanDocument(row rowScanner) (*types.Document, error) {
	var doc types.Document
	var tags pq.StringArray
	var specialized sql.NullString
	err := row.Scan(&doc.ID, &doc.OwnerID, &doc.Title, &doc.Content, &doc.SourceCategory,
		&doc.FileType, &tags, &specialized, &doc.Status, &doc.ErrorMessage, &doc.UploadedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	doc.Tags = tags
	if specialized.Valid && specialized.String != "" {
		var sc types.SpecializedContext
		if err := json.Unmarshal([]byte(specialized.String), &sc); err != nil {
			return nil, fmt.Errorf("failed to decode specialized context: %w", err)
		}
		doc.Specialized = &sc
	}
	return &doc, nil
}
