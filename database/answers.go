package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"answer-engine/web/types"

	apperrors "answer-engine/errors"

	"github.com/google/uuid"
)

// InsertAnswer persists a freshly generated answer. Popularity starts at 1
// (the generating request counts as the first hit) and votes at zero.
func (s *PostgresStore) InsertAnswer(ctx context.Context, entry *types.AnswerEntry) error {
	sourcesJSON, err := json.Marshal(entry.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal answer sources: %w", err)
	}

	query := `
        INSERT INTO answers (id, canonical_id, platform, version, question, answer_text, sources,
                             model, prompt_tokens, completion_tokens, latency_ms, confidence, popularity, ups, downs, quality_score, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, 0, 0, 0, NOW())
    `
	_, err = s.DB.ExecContext(ctx, query,
		entry.ID, entry.CanonicalID, entry.Platform, entry.Version, entry.Question,
		entry.AnswerText, string(sourcesJSON), entry.Model,
		entry.PromptTokens, entry.CompletionTokens, entry.LatencyMS, entry.Confidence)
	if err != nil {
		return fmt.Errorf("failed to insert answer: %w", err)
	}
	entry.Popularity = 1
	return nil
}

// GetAnswerByCanonicalID returns the latest answer cached under the given
// canonical id, or ErrNotFound.
func (s *PostgresStore) GetAnswerByCanonicalID(ctx context.Context, canonicalID string) (*types.AnswerEntry, error) {
	query := selectAnswer + ` WHERE canonical_id = $1 ORDER BY created_at DESC LIMIT 1`
	return s.scanAnswer(s.DB.QueryRowContext(ctx, query, canonicalID))
}

// GetAnswer loads an answer by its unique id.
func (s *PostgresStore) GetAnswer(ctx context.Context, answerID uuid.UUID) (*types.AnswerEntry, error) {
	query := selectAnswer + ` WHERE id = $1`
	return s.scanAnswer(s.DB.QueryRowContext(ctx, query, answerID))
}

// IncrementPopularity bumps the hit counter atomically and returns the new
// value. A single UPDATE avoids the read-modify-write race of a lookup
// followed by a store.
func (s *PostgresStore) IncrementPopularity(ctx context.Context, answerID uuid.UUID) (int64, error) {
	var popularity int64
	err := s.DB.QueryRowContext(ctx,
		`UPDATE answers SET popularity = popularity + 1 WHERE id = $1 RETURNING popularity`,
		answerID).Scan(&popularity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperrors.ErrNotFound
		}
		return 0, fmt.Errorf("failed to increment popularity: %w", err)
	}
	return popularity, nil
}

// CastVote records one vote per (user, answer). A repeat vote replaces the
// previous value; tallies are recomputed from the vote rows inside the same
// transaction so a changed vote is never double counted. Voting on an
// unknown answer returns ErrNotFound.
func (s *PostgresStore) CastVote(ctx context.Context, answerID, userID uuid.UUID, up bool, reason string) (types.VoteTally, error) {
	var tally types.VoteTally

	vote := -1
	if up {
		vote = 1
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return tally, err
	}
	defer tx.Rollback()

	// Check the answer inside the transaction so a missing row reads as
	// ErrNotFound rather than a foreign-key violation from the upsert.
	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM answers WHERE id = $1)`, answerID).Scan(&exists); err != nil {
		return tally, fmt.Errorf("failed to check answer: %w", err)
	}
	if !exists {
		return tally, apperrors.ErrNotFound
	}

	upsert := `
        INSERT INTO answer_votes (answer_id, user_id, vote, reason, updated_at)
        VALUES ($1, $2, $3, $4, NOW())
        ON CONFLICT (answer_id, user_id)
        DO UPDATE SET vote = EXCLUDED.vote, reason = EXCLUDED.reason, updated_at = NOW()
    `
	if _, err := tx.ExecContext(ctx, upsert, answerID, userID, vote, reason); err != nil {
		return tally, fmt.Errorf("failed to upsert vote: %w", err)
	}

	retally := `
        UPDATE answers SET
            ups = sub.ups,
            downs = sub.downs,
            quality_score = CASE WHEN sub.ups + sub.downs > 0
                THEN sub.ups::DOUBLE PRECISION / (sub.ups + sub.downs)
                ELSE 0 END
        FROM (
            SELECT COUNT(*) FILTER (WHERE vote = 1) AS ups,
                   COUNT(*) FILTER (WHERE vote = -1) AS downs
            FROM answer_votes WHERE answer_id = $1
        ) AS sub
        WHERE answers.id = $1
        RETURNING answers.ups, answers.downs, answers.quality_score
    `
	err = tx.QueryRowContext(ctx, retally, answerID).Scan(&tally.Ups, &tally.Downs, &tally.QualityScore)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tally, apperrors.ErrNotFound
		}
		return tally, fmt.Errorf("failed to recompute vote tally: %w", err)
	}

	return tally, tx.Commit()
}

// SetPublishedURL records where external tooling published the answer.
func (s *PostgresStore) SetPublishedURL(ctx context.Context, answerID uuid.UUID, url string) error {
	result, err := s.DB.ExecContext(ctx,
		`UPDATE answers SET published_url = $1 WHERE id = $2`, url, answerID)
	if err != nil {
		return fmt.Errorf("failed to set published url: %w", err)
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

const selectAnswer = `
    SELECT id, canonical_id, platform, version, question, answer_text, sources,
           model, prompt_tokens, completion_tokens, latency_ms, confidence, popularity, ups, downs,
           quality_score, published_url, created_at
    FROM answers
`

func (s *PostgresStore) scanAnswer(row rowScanner) (*types.AnswerEntry, error) {
	var entry types.AnswerEntry
	var version sql.NullString
	var publishedURL sql.NullString
	var sourcesJSON []byte

	err := row.Scan(&entry.ID, &entry.CanonicalID, &entry.Platform, &version, &entry.Question,
		&entry.AnswerText, &sourcesJSON, &entry.Model, &entry.PromptTokens, &entry.CompletionTokens,
		&entry.LatencyMS, &entry.Confidence, &entry.Popularity, &entry.Ups, &entry.Downs,
		&entry.QualityScore, &publishedURL, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan answer: %w", err)
	}

	if version.Valid {
		entry.Version = &version.String
	}
	if publishedURL.Valid {
		entry.PublishedURL = &publishedURL.String
	}
	if len(sourcesJSON) > 0 {
		if err := json.Unmarshal(sourcesJSON, &entry.Sources); err != nil {
			return nil, fmt.Errorf("failed to decode answer sources: %w", err)
		}
	}
	return &entry, nil
}
