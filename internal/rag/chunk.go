package rag

import "strings"

// Chunking defaults. Overlapping windows preserve semantic locality across
// chunk boundaries; the cap bounds embedding cost per source.
const (
	DefaultChunkSize       = 1000
	DefaultChunkOverlap    = 200
	DefaultMaxChunksPerURL = 20
)

// SplitChunks splits text into overlapping fixed-size windows. Pure and
// deterministic. Window boundaries are counted in runes so multi-byte text
// never splits mid-character. Excess chunks beyond maxChunks are truncated,
// not sampled.
func SplitChunks(text string, size, overlap, maxChunks int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
	}
	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunksPerURL
	}

	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= size {
		return []string{string(runes)}
	}

	var chunks []string
	for start := 0; start < len(runes); {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if len(chunks) >= maxChunks || end == len(runes) {
			break
		}
		start = end - overlap
	}
	return chunks
}
