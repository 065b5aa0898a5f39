// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_knowledge

import "strings"

const (
	chunkSize    = 1000
	chunkOverlap = 200
)

// SplitText cuts text into overlapping chunks of roughly chunkSize runes,
// preferring to break at paragraph, sentence, then word boundaries so
// embeddings see coherent spans.
func SplitText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		if end >= len(runes) {
			chunk := strings.TrimSpace(string(runes[start:]))
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		cut := boundaryBefore(runes, start, end)
		chunk := strings.TrimSpace(string(runes[start:cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := cut - chunkOverlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// boundaryBefore finds the best split point at or before end, never at or
// before start+chunkSize/2 to avoid degenerate tiny chunks.
func boundaryBefore(runes []rune, start, end int) int {
	floor := start + chunkSize/2

	for i := end; i > floor; i-- {
		if i+1 < len(runes) && runes[i] == '\n' && runes[i+1] == '\n' {
			return i
		}
	}
	for i := end; i > floor; i-- {
		switch runes[i] {
		case '.', '!', '?', '\n':
			return i + 1
		}
	}
	for i := end; i > floor; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return end
}
