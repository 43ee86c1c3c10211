package format

import (
	"fmt"
	"html"
	"strings"

	"answer-engine/web/types"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// NormalizeAnswerText cleans up LLM output before rendering: curly quotes
// straightened and list items given the blank line markdown requires.
func NormalizeAnswerText(text string) string {
	if text == "" {
		return text
	}
	text = strings.NewReplacer(
		"“", "\"",
		"”", "\"",
		"‘", "'",
		"’", "'",
	).Replace(text)
	return normalizeMarkdownLists(text)
}

// normalizeMarkdownLists inserts a blank line before a list that directly
// follows a text line. LLMs frequently emit "**Setup:**\n- step" which the
// markdown parser would otherwise fold into a paragraph.
func normalizeMarkdownLists(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		isListItem := strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ")
		if isListItem && i > 0 {
			prev := strings.TrimSpace(lines[i-1])
			prevIsList := strings.HasPrefix(prev, "- ") || strings.HasPrefix(prev, "* ")
			if prev != "" && !prevIsList {
				out = append(out, "")
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// RenderAnswerHTML converts a cached answer's markdown body to HTML.
func RenderAnswerHTML(answerText string) string {
	normalized := NormalizeAnswerText(answerText)

	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank,
	})
	return string(markdown.ToHTML([]byte(normalized), p, renderer))
}

// RenderAnswerPage wraps a cached answer in a minimal standalone HTML page
// for the public answer URL.
func RenderAnswerPage(entry *types.AnswerEntry) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(entry.Question))
	b.WriteString("</head>\n<body>\n<article>\n")
	fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(entry.Question))
	b.WriteString(RenderAnswerHTML(entry.AnswerText))
	if len(entry.Sources) > 0 {
		b.WriteString("<section>\n<h2>Sources</h2>\n<ul>\n")
		for _, src := range entry.Sources {
			fmt.Fprintf(&b, "<li>%s (%s)</li>\n",
				html.EscapeString(src.Title), html.EscapeString(src.Source))
		}
		b.WriteString("</ul>\n</section>\n")
	}
	b.WriteString("</article>\n</body>\n</html>\n")
	return b.String()
}
