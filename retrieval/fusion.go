package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"answer-engine/database"
	"answer-engine/web/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Confidence buckets for a fused context bundle.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// diversityBonusMax caps the quality bonus granted for drawing on several
// distinct source partitions.
const diversityBonusMax = 0.2

// ProvenanceClassifier labels knowledge-base content as curated or
// community-sourced. Heuristic and best-effort, never authoritative;
// pluggable so the heuristics can be swapped without touching ranking.
type ProvenanceClassifier interface {
	Classify(content string) string
}

// Bundle is the ranked, multi-source context assembled for one query.
type Bundle struct {
	Items      []types.SearchResult `json:"items"`
	Quality    float64              `json:"quality"`
	Confidence string               `json:"confidence"`
	Summary    string               `json:"summary"`
}

// Fusion orchestrates parallel similarity searches across the three
// document partitions and produces a scored, ranked context bundle.
type Fusion struct {
	vs             *VectorStore
	classifier     ProvenanceClassifier
	perSourceLimit int
	logger         *zap.Logger
}

func NewFusion(vs *VectorStore, perSourceLimit int, logger *zap.Logger) *Fusion {
	if perSourceLimit <= 0 {
		perSourceLimit = 4
	}
	return &Fusion{
		vs:             vs,
		classifier:     HeuristicProvenance{},
		perSourceLimit: perSourceLimit,
		logger:         logger,
	}
}

// Fuse runs the three partition searches concurrently and merges the
// results. The query is embedded once; embedding failure fails the whole
// fusion. Individual partition failures degrade to a partial bundle.
// A non-nil documentID narrows the user-document search to that upload.
func (f *Fusion) Fuse(ctx context.Context, query string, userID uuid.UUID, documentID *uuid.UUID) (*Bundle, error) {
	queryVec, err := f.vs.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		userDocs   []types.SearchResult
		knowledge  []types.SearchResult
		components []types.SearchResult
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		results, err := f.vs.SearchVector(ctx, queryVec,
			database.ChunkFilter{OwnerID: &userID, DocumentID: documentID}, f.perSourceLimit, types.SourceUserDocs)
		if err != nil {
			f.logger.Warn("User document search failed", zap.Error(err))
			return
		}
		mu.Lock()
		userDocs = results
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		results, err := f.vs.SearchVector(ctx, queryVec,
			database.ChunkFilter{SourceCategory: types.CategoryKnowledgeBase}, f.perSourceLimit, types.SourceKnowledgeBase)
		if err != nil {
			f.logger.Warn("Knowledge base search failed", zap.Error(err))
			return
		}
		for i := range results {
			results[i].Provenance = f.classifier.Classify(results[i].Snippet)
		}
		mu.Lock()
		knowledge = results
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		results, err := f.vs.SearchComponents(ctx, query, userID, f.perSourceLimit)
		if err != nil {
			f.logger.Warn("Specialized component search failed", zap.Error(err))
			return
		}
		mu.Lock()
		components = results
		mu.Unlock()
	}()
	wg.Wait()

	items := make([]types.SearchResult, 0, len(userDocs)+len(knowledge)+len(components))
	items = append(items, userDocs...)
	items = append(items, knowledge...)
	items = append(items, components...)

	// Scores from the lexical component scale and the cosine scale are not
	// normalized into one another; items stay tagged by source so callers
	// can weight them. The ordering below is within that caveat.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Similarity > items[j].Similarity
	})

	bundle := &Bundle{
		Items:   items,
		Quality: contextQuality(items),
		Summary: summarize(len(userDocs), len(knowledge), len(components)),
	}
	bundle.Confidence = confidenceBucket(bundle.Quality, len(items))
	return bundle, nil
}

// contextQuality blends average relevance with a source-diversity bonus of
// up to +0.2, clamped to [0,1]. Monotonic in both inputs; empty bundles
// score 0.
func contextQuality(items []types.SearchResult) float64 {
	if len(items) == 0 {
		return 0
	}
	var sum float64
	sources := make(map[string]struct{})
	for _, item := range items {
		sum += item.Similarity
		sources[item.Source] = struct{}{}
	}
	quality := sum/float64(len(items)) + diversityBonusMax*float64(len(sources))/3.0
	if quality > 1 {
		quality = 1
	}
	if quality < 0 {
		quality = 0
	}
	return quality
}

func confidenceBucket(quality float64, sourceCount int) string {
	switch {
	case quality > 0.8 && sourceCount >= 3:
		return ConfidenceHigh
	case quality > 0.5 && sourceCount >= 2:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func summarize(userDocs, knowledge, components int) string {
	var parts []string
	if userDocs > 0 {
		parts = append(parts, fmt.Sprintf("%d from your documents", userDocs))
	}
	if knowledge > 0 {
		parts = append(parts, fmt.Sprintf("%d from the knowledge base", knowledge))
	}
	if components > 0 {
		parts = append(parts, fmt.Sprintf("%d from parsed components", components))
	}
	if len(parts) == 0 {
		return "no supporting context found"
	}
	return "context: " + strings.Join(parts, ", ")
}

// HeuristicProvenance labels content by shape: structured phrasing such as
// "Best practices:" or stepwise numbering implies curated material.
type HeuristicProvenance struct{}

var (
	curatedPhrases = []string{
		"best practices:",
		"recommended:",
		"steps:",
		"important:",
		"note:",
		"warning:",
	}
	numberedStepPattern = regexp.MustCompile(`(?m)^\s*\d+[.)]\s`)
)

func (HeuristicProvenance) Classify(content string) string {
	lower := strings.ToLower(content)
	for _, phrase := range curatedPhrases {
		if strings.Contains(lower, phrase) {
			return types.ProvenanceCurated
		}
	}
	if len(numberedStepPattern.FindAllString(content, 2)) >= 2 {
		return types.ProvenanceCurated
	}
	return types.ProvenanceCommunity
}
