// Package chunk splits markdown bodies into heading-bounded chunks.
package chunk

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// DefaultMaxChunkChars is the character threshold above which a section is
// split further by paragraphs.
const DefaultMaxChunkChars = 1200

// Chunk is a positionally-identified, non-empty span of a file body
// associated with at most one heading.
type Chunk struct {
	// ID is the SHA-1 of "path:start_line:first64(text)".
	ID string
	// Path is the owning document path.
	Path string
	// Heading is the nearest preceding heading text, empty before the
	// first heading.
	Heading string
	// Level is the heading level (1-6), 0 when Heading is empty.
	Level int
	// StartLine is the 1-based line of the chunk body within the document.
	StartLine int
	// Text is the trimmed chunk body, never empty.
	Text string
}

// ID computes the deterministic chunk identity.
// It depends only on (path, startLine, first 64 chars of text), making chunk
// identity positionally-and-text stable across re-ingestion.
func ID(path string, startLine int, text string) string {
	head := text
	if len(head) > 64 {
		head = head[:64]
	}
	sum := sha1.Sum([]byte(fmt.Sprintf("%s:%d:%s", path, startLine, head)))
	return hex.EncodeToString(sum[:])
}
