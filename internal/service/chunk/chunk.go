// Package chunk splits a finished bot reply into bounded pieces for
// progressive delivery. It packs whole words greedily and never splits one
// mid-word, so it is a pacing mechanism rather than a tokenizer.
package chunk

import "strings"

// DefaultMaxChars is the chunk size used for paced delivery.
const DefaultMaxChars = 20

// Placeholder is emitted when there is nothing to chunk.
const Placeholder = "No response available"

// Split breaks text into ordered chunks of at most maxChars characters. A
// single word longer than maxChars is emitted whole. Blank input yields one
// placeholder chunk so the stream always carries at least one piece.
func Split(text string, maxChars int) []string {
	if strings.TrimSpace(text) == "" {
		return []string{Placeholder}
	}

	words := strings.Fields(text)
	chunks := make([]string, 0, len(text)/maxChars+1)
	current := ""

	for _, word := range words {
		if len(current)+len(word) > maxChars {
			if current != "" {
				chunks = append(chunks, strings.TrimSpace(current))
				current = word + " "
			} else {
				chunks = append(chunks, word)
			}
		} else {
			current += word + " "
		}
	}

	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}

	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}
