package chunk

import (
	"strings"
)

// ChunkerOptions configures the markdown chunker.
type ChunkerOptions struct {
	// MaxChunkChars is the character threshold above which a section is
	// split by paragraphs (default: DefaultMaxChunkChars).
	MaxChunkChars int
}

// Chunker implements heading-boundary markdown chunking.
//
// Every line whose first non-space character is '#' closes the previous span
// and becomes the heading of the span that follows it. Spans longer than
// MaxChunkChars are split again at blank lines, with start lines tracking
// the paragraph offsets within the original span.
type Chunker struct {
	options ChunkerOptions
}

// NewChunker creates a chunker with default options.
func NewChunker() *Chunker {
	return NewChunkerWithOptions(ChunkerOptions{})
}

// NewChunkerWithOptions creates a chunker with custom options.
func NewChunkerWithOptions(opts ChunkerOptions) *Chunker {
	if opts.MaxChunkChars == 0 {
		opts.MaxChunkChars = DefaultMaxChunkChars
	}
	return &Chunker{options: opts}
}

// Split chunks a markdown body (front-matter already removed).
// Chunks of one file cover disjoint line regions and every chunk body is
// non-empty after trimming.
func (c *Chunker) Split(path, body string) []Chunk {
	lines := strings.Split(body, "\n")

	var chunks []Chunk
	start := 0
	heading := ""
	level := 0

	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "#") {
			if i > start {
				chunks = append(chunks, c.emit(path, lines, start, i, heading, level)...)
			}
			heading, level = parseHeading(trimmed)
			start = i + 1
		}
	}
	chunks = append(chunks, c.emit(path, lines, start, len(lines), heading, level)...)

	return chunks
}

// emit produces chunks for the half-open line span [s, e).
func (c *Chunker) emit(path string, lines []string, s, e int, heading string, level int) []Chunk {
	body := strings.TrimSpace(strings.Join(lines[s:e], "\n"))
	if body == "" {
		return nil
	}

	if len(body) <= c.options.MaxChunkChars {
		return []Chunk{{
			ID:        ID(path, s+1, body),
			Path:      path,
			Heading:   heading,
			Level:     level,
			StartLine: s + 1,
			Text:      body,
		}}
	}

	// Oversized section: one chunk per paragraph, start lines offset by the
	// line count of the preceding paragraphs.
	var chunks []Chunk
	offset := 0
	for _, para := range strings.Split(body, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		startLine := s + offset + 1
		chunks = append(chunks, Chunk{
			ID:        ID(path, startLine, para),
			Path:      path,
			Heading:   heading,
			Level:     level,
			StartLine: startLine,
			Text:      para,
		})
		offset += strings.Count(para, "\n") + 1
	}
	return chunks
}

// parseHeading extracts heading text and level from a '#'-prefixed line.
func parseHeading(line string) (string, int) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level > 6 {
		level = 6
	}
	text := strings.TrimSpace(strings.TrimLeft(line, "# "))
	return text, level
}
