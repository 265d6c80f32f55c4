package rag

import "strings"

// DefaultChunkWords is the default number of words per chunk.
const DefaultChunkWords = 200

// Chunk splits text on whitespace into chunks of at most size words, each
// rejoined with single spaces. Text without words yields no chunks.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkWords
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	out := make([]string, 0, (len(words)+size-1)/size)
	for start := 0; start < len(words); start += size {
		end := min(start+size, len(words))
		out = append(out, strings.Join(words[start:end], " "))
	}
	return out
}
