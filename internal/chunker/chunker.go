// Package chunker splits extracted document text into overlapping
// word windows used as retrieval units.
package chunker

import "strings"

const (
	// DefaultSize is the window length in words.
	DefaultSize = 500
	// DefaultOverlap is how many words consecutive windows share.
	DefaultOverlap = 50
)

// Chunk splits text into windows of size words, each window starting
// size-overlap words after the previous one. Windows that contain no
// non-whitespace content are skipped. If the text produces no windows
// but is itself non-blank, the trimmed text is returned as a single
// chunk so non-empty input never chunks to nothing.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	words := strings.Fields(text)
	step := size - overlap

	var chunks []string
	for i := 0; i < len(words); i += step {
		end := i + size
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[i:end], " ")
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
	}

	if len(chunks) == 0 && strings.TrimSpace(text) != "" {
		chunks = append(chunks, strings.TrimSpace(text))
	}
	return chunks
}
