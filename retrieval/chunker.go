package retrieval

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"answer-engine/web/types"
)

const (
	defaultChunkTarget  = 1000
	defaultChunkOverlap = 200
	defaultChunkMin     = 100
	defaultChunkMax     = 1500

	// A natural break is only accepted at or past this fraction of the
	// target size; earlier breaks would produce runt chunks.
	minBreakRatio = 0.7
)

// separatorClasses, in descending preference, used when searching backward
// for a natural break point inside an oversized section.
var separatorClasses = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? "},
	{"; ", ": ", ", "},
	{" "},
}

// ChunkerConfig bounds the chunks the TextChunker produces.
type ChunkerConfig struct {
	TargetSize       int
	Overlap          int
	MinSize          int
	MaxSize          int
	PreserveSections bool
}

// TextChunker splits raw document text into bounded, overlapping,
// section-aware retrieval units.
type TextChunker struct {
	cfg ChunkerConfig
}

func NewTextChunker(cfg ChunkerConfig) *TextChunker {
	if cfg.TargetSize <= 0 {
		cfg.TargetSize = defaultChunkTarget
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	if cfg.Overlap == 0 {
		cfg.Overlap = defaultChunkOverlap
	}
	if cfg.Overlap >= cfg.TargetSize {
		cfg.Overlap = cfg.TargetSize / 4
	}
	if cfg.MinSize <= 0 {
		cfg.MinSize = defaultChunkMin
	}
	if cfg.MaxSize < cfg.TargetSize {
		cfg.MaxSize = defaultChunkMax
		if cfg.MaxSize < cfg.TargetSize {
			cfg.MaxSize = cfg.TargetSize
		}
	}
	return &TextChunker{cfg: cfg}
}

// Chunk splits text into retrieval units. Text shorter than the minimum
// viable chunk size yields no chunks; the caller must handle the empty
// result. Offsets index into the original text, so concatenating chunks
// minus their overlap reconstructs the full input.
func (c *TextChunker) Chunk(text string) []types.Chunk {
	if len(strings.TrimSpace(text)) < c.cfg.MinSize {
		return nil
	}

	blocks := c.blocks(text)
	var chunks []types.Chunk
	for _, b := range blocks {
		if len(strings.TrimSpace(text[b.start:b.end])) == 0 {
			continue
		}
		if b.end-b.start <= c.cfg.MaxSize {
			chunks = append(chunks, c.makeChunk(text, b.start, b.end, b.wholeSection))
			continue
		}
		chunks = c.splitRange(text, b.start, b.end, chunks)
	}

	// A trailing runt is folded into its predecessor when the two still fit
	// under the hard maximum.
	if n := len(chunks); n > 1 {
		last := chunks[n-1]
		prev := chunks[n-2]
		if last.End-last.Start < c.cfg.MinSize && last.End-prev.Start <= c.cfg.MaxSize {
			merged := c.makeChunk(text, prev.Start, last.End, prev.SectionComplete && last.SectionComplete)
			chunks = append(chunks[:n-2], merged)
		}
	}

	for i := range chunks {
		chunks[i].Index = i
	}
	return chunks
}

type block struct {
	start, end   int
	wholeSection bool
}

// blocks partitions the text into section-aligned ranges. Consecutive
// sections smaller than the minimum chunk size coalesce into one block.
func (c *TextChunker) blocks(text string) []block {
	if !c.cfg.PreserveSections {
		return []block{{start: 0, end: len(text)}}
	}

	bounds := sectionBounds(text)
	var blocks []block
	cur := block{start: bounds[0], wholeSection: true}
	sectionsInBlock := 0
	for i := 0; i < len(bounds)-1; i++ {
		end := bounds[i+1]
		cur.end = end
		sectionsInBlock++
		if cur.end-cur.start >= c.cfg.MinSize {
			cur.wholeSection = sectionsInBlock == 1
			blocks = append(blocks, cur)
			cur = block{start: end, wholeSection: true}
			sectionsInBlock = 0
		}
	}
	if cur.end > cur.start {
		cur.wholeSection = sectionsInBlock == 1
		blocks = append(blocks, cur)
	} else if len(blocks) == 0 {
		blocks = append(blocks, block{start: 0, end: len(text)})
	}
	return blocks
}

// splitRange recursively cuts an oversized range at the best natural break
// point below the target size, re-including overlap at each cut.
func (c *TextChunker) splitRange(text string, start, end int, chunks []types.Chunk) []types.Chunk {
	pos := start
	for {
		remaining := end - pos
		if remaining <= c.cfg.MaxSize {
			chunks = append(chunks, c.makeChunk(text, pos, end, false))
			return chunks
		}

		limit := pos + c.cfg.TargetSize
		breakAt := c.findBreak(text, pos, limit)
		if breakAt <= pos {
			// No acceptable natural break; hard cut at the target offset,
			// backed up so the cut never lands inside a multi-byte rune.
			breakAt = runeSafeCut(text, limit)
			if breakAt <= pos {
				breakAt = limit
			}
		}
		chunks = append(chunks, c.makeChunk(text, pos, breakAt, false))

		next := runeSafeCut(text, breakAt-c.cfg.Overlap)
		if next <= pos {
			next = breakAt
		}
		pos = next
	}
}

// findBreak searches backward from limit through the separator classes and
// returns the offset just after the best separator, or -1 when no break
// falls at or beyond 70% of the target size.
func (c *TextChunker) findBreak(text string, from, limit int) int {
	minBreak := from + int(float64(c.cfg.TargetSize)*minBreakRatio)
	if limit > len(text) {
		limit = len(text)
	}
	if minBreak >= limit {
		return -1
	}
	window := text[from:limit]
	for _, class := range separatorClasses {
		best := -1
		for _, sep := range class {
			if idx := strings.LastIndex(window, sep); idx >= 0 {
				at := from + idx + len(sep)
				if at >= minBreak && at > best {
					best = at
				}
			}
		}
		if best > 0 {
			return best
		}
	}
	return -1
}

func (c *TextChunker) makeChunk(text string, start, end int, sectionComplete bool) types.Chunk {
	slice := text[start:end]
	return types.Chunk{
		Text:            slice,
		TokenCount:      len(slice) / 4,
		Start:           start,
		End:             end,
		SectionComplete: sectionComplete,
	}
}

// sectionBounds returns the offsets where sections begin, always starting
// with 0 and ending with len(text).
func sectionBounds(text string) []int {
	bounds := []int{0}
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		if offset > 0 && isHeadingLine(strings.TrimRight(line, "\n")) {
			bounds = append(bounds, offset)
		}
		offset += len(line)
	}
	bounds = append(bounds, len(text))
	return bounds
}

// isHeadingLine applies lightweight heading heuristics: markdown headers,
// short all-caps lines, and short title-case lines without terminal
// punctuation.
func isHeadingLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(trimmed, "#") {
		return true
	}
	if len(trimmed) <= 60 && hasLetter(trimmed) &&
		trimmed == strings.ToUpper(trimmed) && trimmed != strings.ToLower(trimmed) {
		return true
	}
	words := strings.Fields(trimmed)
	if len(words) == 0 || len(words) > 8 || len(trimmed) > 60 {
		return false
	}
	if strings.ContainsAny(string(trimmed[len(trimmed)-1]), ".!?,;:") {
		return false
	}
	for _, w := range words {
		r := []rune(w)[0]
		if unicode.IsLetter(r) && !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

// runeSafeCut backs a byte offset up to the nearest rune boundary so
// slicing at it never splits a multi-byte character.
func runeSafeCut(s string, offset int) int {
	if offset >= len(s) {
		return len(s)
	}
	if offset < 0 {
		return 0
	}
	for offset > 0 && !utf8.RuneStart(s[offset]) {
		offset--
	}
	return offset
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
