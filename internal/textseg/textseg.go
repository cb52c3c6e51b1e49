// Package textseg splits long text into synthesizable sentence-like chunks.
package textseg

import (
	"iter"
	"strings"
)

// delimiters mark chunk boundaries; the boundary sits immediately after the
// delimiter. Scanning is greedy and leftmost-first, so abbreviations such as
// "Mr." split mid-name. That is accepted behavior, not a defect.
var delimiters = []string{". ", "? ", "! ", "\n"}

// Chunks returns a lazy, restartable sequence of sentence-like chunks.
// Whitespace-only chunks are dropped but still consumed, so joining the
// yielded chunks reproduces the input up to trailing whitespace.
func Chunks(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		remaining := text
		for remaining != "" {
			minPos := len(remaining)
			for _, delim := range delimiters {
				if pos := strings.Index(remaining, delim); pos != -1 && pos < minPos {
					minPos = pos + len(delim)
				}
			}

			var chunk string
			if minPos >= len(remaining) {
				chunk, remaining = remaining, ""
			} else {
				chunk, remaining = remaining[:minPos], remaining[minPos:]
			}
			if strings.TrimSpace(chunk) == "" {
				continue
			}
			if !yield(chunk) {
				return
			}
		}
	}
}

// Split collects all chunks eagerly.
func Split(text string) []string {
	var chunks []string
	for chunk := range Chunks(text) {
		chunks = append(chunks, chunk)
	}
	return chunks
}
