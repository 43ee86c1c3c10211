package engine

import (
	"fmt"
	"strings"

	"answer-engine/llmclient"
	"answer-engine/prompts"
	"answer-engine/retrieval"
	"answer-engine/web/types"
)

// sourceHeadings maps retrieval source tags to the section titles shown to
// the model. Order here is the order sections appear in the prompt.
var sourceOrder = []struct {
	tag     string
	heading string
}{
	{types.SourceUserDocs, "From the user's documents"},
	{types.SourceKnowledgeBase, "From the knowledge base"},
	{types.SourceComponents, "From parsed design files"},
}

// BuildPrompt assembles the generation messages: the system prompt, the
// retrieved context grouped by source with per-item relevance, and the
// user's question. Premium requests skip the concise-style addendum.
func BuildPrompt(question string, bundle *retrieval.Bundle, premium bool) []llmclient.Message {
	system := prompts.AnswerSystem()
	if !premium {
		system += "\n\n" + prompts.AnswerConcise()
	}

	var b strings.Builder
	if len(bundle.Items) == 0 {
		b.WriteString("No supporting context was found for this question. ")
		b.WriteString("Answer from general knowledge and say so explicitly.\n\n")
	} else {
		b.WriteString("Use the following retrieved context. ")
		b.WriteString("Relevance percentages indicate how closely each excerpt matched the question.\n\n")
		for _, group := range sourceOrder {
			writeSourceSection(&b, bundle.Items, group.tag, group.heading)
		}
	}
	b.WriteString("Question: ")
	b.WriteString(question)

	return []llmclient.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: b.String()},
	}
}

func writeSourceSection(b *strings.Builder, items []types.SearchResult, tag, heading string) {
	first := true
	for _, item := range items {
		if item.Source != tag {
			continue
		}
		if first {
			fmt.Fprintf(b, "## %s\n\n", heading)
			first = false
		}
		fmt.Fprintf(b, "[%s (%.0f%% relevant)]\n", item.Title, item.Similarity*100)
		text := item.ContextWindow
		if text == "" {
			text = item.Snippet
		}
		b.WriteString(text)
		if item.Provenance != "" {
			fmt.Fprintf(b, "\n(provenance: %s)", item.Provenance)
		}
		b.WriteString("\n\n")
	}
}
