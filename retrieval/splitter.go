package retrieval

import (
	"strings"

	"github.com/jdkato/prose/v2"
)

// SentenceSplitter segments text into sentences. Used to trim snippets at
// sentence boundaries rather than mid-word.
type SentenceSplitter interface {
	Split(text string) []string
}

// ProseSentenceSplitter uses prose's statistical sentence segmenter and
// falls back to punctuation scanning when segmentation fails.
type ProseSentenceSplitter struct{}

func NewProseSentenceSplitter() ProseSentenceSplitter {
	return ProseSentenceSplitter{}
}

func (ProseSentenceSplitter) Split(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	doc, err := prose.NewDocument(trimmed,
		prose.WithTagging(false),
		prose.WithExtraction(false))
	if err == nil {
		sents := doc.Sentences()
		if len(sents) > 0 {
			out := make([]string, 0, len(sents))
			for _, s := range sents {
				if t := strings.TrimSpace(s.Text); t != "" {
					out = append(out, t)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return punctuationSplit(trimmed)
}

func punctuationSplit(text string) []string {
	var sentences []string
	var builder strings.Builder
	runes := []rune(text)

	isBoundary := func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}

	flush := func() {
		if builder.Len() == 0 {
			return
		}
		if s := strings.TrimSpace(builder.String()); s != "" {
			sentences = append(sentences, s)
		}
		builder.Reset()
	}

	for idx, r := range runes {
		builder.WriteRune(r)
		if !isBoundary(r) {
			continue
		}
		next := idx + 1
		for next < len(runes) && (runes[next] == ' ' || runes[next] == '\n' || runes[next] == '\t') {
			next++
		}
		// Only whitespace-followed punctuation ends a sentence; "3.5mm"
		// stays intact.
		if next == idx+1 || next >= len(runes) || isBoundary(runes[next]) {
			continue
		}
		flush()
	}
	flush()

	if len(sentences) == 0 {
		return []string{text}
	}
	return sentences
}

// TrimToSentences truncates text to at most maxLen characters, preferring
// to end on a sentence boundary. Falls back to a word boundary, then a hard
// cut with an ellipsis.
func TrimToSentences(splitter SentenceSplitter, text string, maxLen int) string {
	trimmed := strings.TrimSpace(text)
	if maxLen <= 0 || len(trimmed) <= maxLen {
		return trimmed
	}

	var builder strings.Builder
	for _, sentence := range splitter.Split(trimmed) {
		add := len(sentence)
		if builder.Len() > 0 {
			add++
		}
		if builder.Len()+add > maxLen {
			break
		}
		if builder.Len() > 0 {
			builder.WriteString(" ")
		}
		builder.WriteString(sentence)
	}
	if builder.Len() > 0 {
		return builder.String()
	}

	cut := trimmed[:runeSafeCut(trimmed, maxLen)]
	if idx := strings.LastIndex(cut, " "); idx > maxLen/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}
