package types

import (
	"time"

	"github.com/google/uuid"
)

// Document status lifecycle values.
const (
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusError      = "error"
)

// Source tags for retrieval results. Components are scored on a lexical
// scale, so callers must not compare their scores against vector scores.
const (
	SourceUserDocs      = "user_docs"
	SourceKnowledgeBase = "knowledge_base"
	SourceComponents    = "components"
)

// CategoryKnowledgeBase is the reserved metadata category for curated and
// scraped knowledge-base documents. It is not owner-filtered on search.
const CategoryKnowledgeBase = "knowledge_base"

// Provenance labels assigned to knowledge-base results by heuristics.
const (
	ProvenanceCurated   = "curated"
	ProvenanceCommunity = "community"
)

// SpecializedContext is the opaque component payload the specialized file
// parser attaches to an uploaded document. The engine consumes it as-is.
type SpecializedContext struct {
	FileType    string   `json:"file_type"`
	Parts       []string `json:"parts"`
	Parameters  []string `json:"parameters"`
	Constraints []string `json:"constraints"`
	BrokenLogic []string `json:"broken_logic,omitempty"`
}

// Document is an ingested knowledge unit: the raw content plus its chunks
// and one embedding per chunk. Mutated only by the ingestion pipeline.
type Document struct {
	ID             uuid.UUID           `json:"id"`
	OwnerID        uuid.UUID           `json:"owner_id"`
	Title          string              `json:"title"`
	Content        string              `json:"content"`
	SourceCategory string              `json:"source_category"`
	FileType       string              `json:"file_type"`
	Tags           []string            `json:"tags"`
	Specialized    *SpecializedContext `json:"specialized,omitempty"`
	Status         string              `json:"status"`
	ErrorMessage   string              `json:"error_message,omitempty"`
	UploadedAt     time.Time           `json:"uploaded_at"`
}

// Chunk is a bounded, retrievable slice of a document's text.
type Chunk struct {
	Index           int    `json:"index"`
	Text            string `json:"text"`
	TokenCount      int    `json:"token_count"`
	Start           int    `json:"start"`
	End             int    `json:"end"`
	SectionComplete bool   `json:"section_complete"`
}

// SearchResult is one entry of a ranked context bundle.
type SearchResult struct {
	DocumentID    uuid.UUID `json:"document_id"`
	Title         string    `json:"title"`
	ChunkIndex    int       `json:"chunk_index"`
	Similarity    float64   `json:"similarity"`
	Snippet       string    `json:"snippet"`
	ContextWindow string    `json:"context_window,omitempty"`
	Source        string    `json:"source"`
	Provenance    string    `json:"provenance,omitempty"`
}

// AnswerSource records which retrieval result backed a generated answer.
type AnswerSource struct {
	Title      string  `json:"title"`
	Source     string  `json:"source"`
	Similarity float64 `json:"similarity"`
}

// AnswerEntry is one cached generation keyed by canonical id. Many entries
// may share a canonical id over time; the latest one wins the cache slot.
type AnswerEntry struct {
	ID               uuid.UUID      `json:"id"`
	CanonicalID      string         `json:"canonical_id"`
	Platform         string         `json:"platform"`
	Version          *string        `json:"version,omitempty"`
	Question         string         `json:"question"`
	AnswerText       string         `json:"answer_text"`
	Sources          []AnswerSource `json:"sources"`
	Model            string         `json:"model"`
	PromptTokens     int            `json:"prompt_tokens"`
	CompletionTokens int            `json:"completion_tokens"`
	LatencyMS        int64          `json:"latency_ms"`
	Confidence       string         `json:"confidence"`
	Popularity       int64          `json:"popularity"`
	Ups              int            `json:"ups"`
	Downs            int            `json:"downs"`
	QualityScore     float64        `json:"quality_score"`
	PublishedURL     *string        `json:"published_url,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// VoteTally is the post-vote state of an answer's counters.
type VoteTally struct {
	Ups          int     `json:"ups"`
	Downs        int     `json:"downs"`
	QualityScore float64 `json:"quality_score"`
}

// Allowance is the usage gate's verdict for one request.
type Allowance struct {
	Allowed      bool   `json:"allowed"`
	ModelTier    string `json:"model_tier"`
	DailyUsed    int    `json:"daily_used"`
	DailyLimit   int    `json:"daily_limit"`
	MonthlyUsed  int    `json:"monthly_used"`
	MonthlyLimit int    `json:"monthly_limit"`
	AllowUploads bool   `json:"allow_uploads"`
	AllowPremium bool   `json:"allow_premium"`
}
