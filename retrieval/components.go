package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"answer-engine/web/types"

	"github.com/google/uuid"
)

// Specialized components are small structured records, not prose, so they
// are ranked with token-set Jaccard rather than embeddings. The resulting
// scores live on a different scale than cosine similarity and the results
// are tagged SourceComponents so callers can weight them separately.
const componentMinScore = 0.1

type componentRecord struct {
	kind string
	text string
}

// SearchComponents ranks the parts, parameters, and constraints of the
// caller's specialized documents against the query.
func (v *VectorStore) SearchComponents(ctx context.Context, query string, ownerID uuid.UUID, limit int) ([]types.SearchResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	docs, err := v.store.ListSpecializedDocuments(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load specialized documents: %w", err)
	}

	queryTokens := tokenSet(query)
	var results []types.SearchResult
	for _, doc := range docs {
		for i, record := range flattenComponents(doc.Specialized) {
			score := jaccard(queryTokens, tokenSet(record.text))
			if score < componentMinScore {
				continue
			}
			results = append(results, types.SearchResult{
				DocumentID: doc.ID,
				Title:      fmt.Sprintf("%s (%s)", doc.Title, record.kind),
				ChunkIndex: i,
				Similarity: score,
				Snippet:    record.text,
				Source:     types.SourceComponents,
			})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity == results[j].Similarity {
			return results[i].Title < results[j].Title
		}
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func flattenComponents(sc *types.SpecializedContext) []componentRecord {
	if sc == nil {
		return nil
	}
	var records []componentRecord
	for _, p := range sc.Parts {
		records = append(records, componentRecord{kind: "part", text: p})
	}
	for _, p := range sc.Parameters {
		records = append(records, componentRecord{kind: "parameter", text: p})
	}
	for _, c := range sc.Constraints {
		records = append(records, componentRecord{kind: "constraint", text: c})
	}
	for _, b := range sc.BrokenLogic {
		records = append(records, componentRecord{kind: "broken logic", text: b})
	}
	return records
}

// tokenSet lowercases and strips punctuation, returning the set of distinct
// tokens of at least two characters.
func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	for _, f := range fields {
		if len(f) >= 2 {
			set[f] = struct{}{}
		}
	}
	return set
}

// jaccard is |a∩b| / |a∪b| over token sets; 0 when either set is empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
