package engine

import (
	"strings"
	"testing"

	"answer-engine/retrieval"
	"answer-engine/web/types"
)

func TestBuildPromptGroupsBySource(t *testing.T) {
	bundle := &retrieval.Bundle{
		Items: []types.SearchResult{
			{Title: "my-drawing", Source: types.SourceUserDocs, Similarity: 0.91, Snippet: "Drawer box is 500mm deep."},
			{Title: "slide-install-guide", Source: types.SourceKnowledgeBase, Similarity: 0.82, Snippet: "Mount slides level.", Provenance: types.ProvenanceCurated},
			{Title: "cabinet.mzb (part)", Source: types.SourceComponents, Similarity: 0.5, Snippet: "drawer slide rail"},
		},
	}

	messages := BuildPrompt("how long should drawer slides be", bundle, true)
	if len(messages) != 2 {
		t.Fatalf("BuildPrompt() returned %d messages, want 2", len(messages))
	}
	if messages[0].Role != "system" || messages[1].Role != "user" {
		t.Fatalf("unexpected roles: %s, %s", messages[0].Role, messages[1].Role)
	}

	user := messages[1].Content
	for _, want := range []string{
		"From the user's documents",
		"From the knowledge base",
		"From parsed design files",
		"[my-drawing (91% relevant)]",
		"[slide-install-guide (82% relevant)]",
		"(provenance: curated)",
		"Question: how long should drawer slides be",
	} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}

	// Sections appear in a fixed order.
	userIdx := strings.Index(user, "From the user's documents")
	kbIdx := strings.Index(user, "From the knowledge base")
	compIdx := strings.Index(user, "From parsed design files")
	if !(userIdx < kbIdx && kbIdx < compIdx) {
		t.Error("source sections out of order")
	}
}

func TestBuildPromptEmptyBundle(t *testing.T) {
	messages := BuildPrompt("anything", &retrieval.Bundle{}, true)
	user := messages[1].Content
	if !strings.Contains(user, "No supporting context") {
		t.Error("empty bundle should be called out in the prompt")
	}
	if strings.Contains(user, "From the") {
		t.Error("empty bundle must not emit source sections")
	}
}

func TestBuildPromptConciseForStandardTier(t *testing.T) {
	premium := BuildPrompt("q", &retrieval.Bundle{}, true)
	standard := BuildPrompt("q", &retrieval.Bundle{}, false)
	if len(standard[0].Content) <= len(premium[0].Content) {
		t.Error("standard tier should append the concise-style addendum")
	}
}
