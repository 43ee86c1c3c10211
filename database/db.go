package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresStore struct {
	DB           *sql.DB
	embeddingDim int
}

func NewPostgresStore(connStr string, embeddingDim int) (*PostgresStore, error) {
	if embeddingDim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", embeddingDim)
	}
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	log.Println("Successfully connected to the database")
	return &PostgresStore{DB: db, embeddingDim: embeddingDim}, nil
}

// EmbeddingDim reports the vector dimensionality the store was created with.
// Vectors of any other length are refused by search and persistence.
func (s *PostgresStore) EmbeddingDim() int {
	return s.embeddingDim
}

// EnsureSchema creates the required tables if they do not already exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS documents (
            id UUID PRIMARY KEY,
            owner_id UUID NOT NULL,
            title TEXT NOT NULL,
            content TEXT NOT NULL,
            source_category TEXT NOT NULL DEFAULT 'user_upload',
            file_type TEXT DEFAULT '',
            tags TEXT[] DEFAULT '{}'::TEXT[],
            specialized JSONB,
            status TEXT NOT NULL DEFAULT 'processing',
            error_message TEXT DEFAULT '',
            uploaded_at TIMESTAMPTZ DEFAULT NOW()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_documents_owner_id ON documents(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_source_category ON documents(source_category)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_chunks (
            id UUID PRIMARY KEY,
            document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
            chunk_index INT NOT NULL,
            content TEXT NOT NULL,
            token_count INT NOT NULL DEFAULT 0,
            start_offset INT NOT NULL DEFAULT 0,
            end_offset INT NOT NULL DEFAULT 0,
            section_complete BOOLEAN NOT NULL DEFAULT FALSE,
            embedding vector(%d),
            UNIQUE (document_id, chunk_index)
        )`, s.embeddingDim),
		`CREATE INDEX IF NOT EXISTS idx_document_chunks_document_id ON document_chunks(document_id)`,
		`CREATE TABLE IF NOT EXISTS answers (
            id UUID PRIMARY KEY,
            canonical_id TEXT NOT NULL,
            platform TEXT NOT NULL DEFAULT 'other',
            version TEXT,
            question TEXT NOT NULL,
            answer_text TEXT NOT NULL,
            sources JSONB DEFAULT '[]'::jsonb,
            model TEXT DEFAULT '',
            prompt_tokens INT NOT NULL DEFAULT 0,
            completion_tokens INT NOT NULL DEFAULT 0,
            latency_ms BIGINT NOT NULL DEFAULT 0,
            confidence TEXT NOT NULL DEFAULT 'low',
            popularity BIGINT NOT NULL DEFAULT 1,
            ups INT NOT NULL DEFAULT 0,
            downs INT NOT NULL DEFAULT 0,
            quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
            published_url TEXT,
            created_at TIMESTAMPTZ DEFAULT NOW()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_answers_canonical_id ON answers(canonical_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS answer_votes (
            answer_id UUID NOT NULL REFERENCES answers(id) ON DELETE CASCADE,
            user_id UUID NOT NULL,
            vote INT NOT NULL CHECK (vote IN (1, -1)),
            reason TEXT DEFAULT '',
            updated_at TIMESTAMPTZ DEFAULT NOW(),
            PRIMARY KEY (answer_id, user_id)
        )`,
		`CREATE TABLE IF NOT EXISTS usage_counters (
            user_id UUID PRIMARY KEY,
            day DATE NOT NULL DEFAULT CURRENT_DATE,
            month DATE NOT NULL DEFAULT DATE_TRUNC('month', CURRENT_DATE),
            daily_used INT NOT NULL DEFAULT 0,
            monthly_used INT NOT NULL DEFAULT 0,
            plan TEXT NOT NULL DEFAULT 'free',
            updated_at TIMESTAMPTZ DEFAULT NOW()
        )`,
	}

	for _, stmt := range stmts {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}
