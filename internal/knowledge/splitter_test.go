// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_knowledge

import (
	"strings"
	"testing"
)

func TestSplitTextShortPassthrough(t *testing.T) {
	if got := SplitText("  short doc  "); len(got) != 1 || got[0] != "short doc" {
		t.Errorf("expected single trimmed chunk, got %v", got)
	}
	if got := SplitText("   "); got != nil {
		t.Errorf("expected nil for blank input, got %v", got)
	}
}

func TestSplitTextChunksAndOverlap(t *testing.T) {
	sentence := "The quick brown fox jumps over the lazy dog. "
	text := strings.Repeat(sentence, 100) // ~4500 chars

	chunks := SplitText(text)
	if len(chunks) < 4 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len([]rune(c)) > chunkSize {
			t.Errorf("chunk %d exceeds max size: %d runes", i, len([]rune(c)))
		}
		if c == "" {
			t.Errorf("chunk %d is empty", i)
		}
	}
	// Consecutive chunks share overlapping text.
	for i := 1; i < len(chunks); i++ {
		head := chunks[i]
		if len(head) > 40 {
			head = head[:40]
		}
		if !strings.Contains(chunks[i-1], head) {
			t.Errorf("chunk %d does not overlap its predecessor", i)
		}
	}
}

func TestSplitTextPrefersSentenceBoundaries(t *testing.T) {
	sentence := "Alpha beta gamma delta epsilon zeta eta theta. "
	text := strings.Repeat(sentence, 60)

	chunks := SplitText(text)
	for i, c := range chunks[:len(chunks)-1] {
		trimmed := strings.TrimSpace(c)
		last := trimmed[len(trimmed)-1]
		if last != '.' && last != '!' && last != '?' {
			t.Errorf("chunk %d does not end at a sentence boundary: %q", i, trimmed[len(trimmed)-20:])
		}
	}
}
