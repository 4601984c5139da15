package chunker

import (
	"strings"
	"unicode/utf8"

	"lexchat/internal/extractor"
)

// Defaults for chunk sizing, in characters.
const (
	DefaultMaxSize = 6000
	DefaultOverlap = 200
)

// Options controls how text is chunked.
type Options struct {
	MaxSize int
	Overlap int
}

// Chunk is a bounded slice of document text. Page is inherited from the
// source segment.
type Chunk struct {
	Page int
	Text string
}

// Split produces ordered chunks from extracted segments. Each chunk is at
// most MaxSize characters; consecutive chunks within a segment overlap by
// Overlap characters. Boundaries prefer a paragraph break, then a sentence
// end, then a hard cut. Chunks never cross segment boundaries, so page
// attribution is always the owning segment's page.
func Split(segments []extractor.Segment, opts Options) []Chunk {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.MaxSize {
		opts.Overlap = 0
	}

	var chunks []Chunk
	for _, seg := range segments {
		for _, part := range splitText(seg.Text, opts.MaxSize, opts.Overlap) {
			chunks = append(chunks, Chunk{Page: seg.Page, Text: part})
		}
	}
	return chunks
}

// Join concatenates chunks with a blank line between them. The result is the
// canonical stored document content.
func Join(chunks []Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Text
	}
	return strings.Join(parts, "\n\n")
}

// Texts returns the chunk texts in order.
func Texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func splitText(text string, maxSize, overlap int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	// Short segment: one chunk, no overlap logic.
	if len(text) <= maxSize {
		return []string{text}
	}

	var parts []string
	pos := 0
	for pos < len(text) {
		end := pos + maxSize
		if end >= len(text) {
			parts = append(parts, text[pos:])
			break
		}
		cut := findBreak(text, pos, end)
		parts = append(parts, text[pos:cut])
		next := cut - overlap
		if next <= pos {
			// Overlap would stall progress; continue without it.
			next = cut
		}
		pos = next
	}
	return parts
}

// findBreak picks a cut point in (start, limit], preferring a paragraph
// break, then a sentence end, falling back to a hard cut at limit.
func findBreak(text string, start, limit int) int {
	window := text[start:limit]
	if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
		return start + idx + 2
	}
	for i := limit - 1; i > start; i-- {
		if !isSentenceEnd(text[i]) {
			continue
		}
		if i+1 >= len(text) || isSpace(text[i+1]) {
			return i + 1
		}
	}
	// Hard cut, backed off to a rune boundary.
	cut := limit
	for cut > start && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if cut == start {
		cut = limit
	}
	return cut
}

func isSentenceEnd(c byte) bool {
	return c == '.' || c == '!' || c == '?'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r'
}
