// Package chunk splits text into byte-bounded, UTF-8-safe pieces.
package chunk

import (
	"sort"
	"unicode/utf8"

	"github.com/hpungsan/arag/internal/errors"
)

// DefaultMaxBytes is the chunk size used when none is configured.
const DefaultMaxBytes = 8192

// Split cuts text into consecutive pieces of at most maxBytes UTF-8 bytes.
// Pieces never split a rune and their concatenation equals text.
//
// If a single rune does not fit in maxBytes, Split stops and returns the pieces
// produced so far together with a RUNE_TOO_LARGE error.
func Split(text string, maxBytes int) ([]string, error) {
	if maxBytes < 1 {
		return nil, errors.NewInvalidRequest("chunk size must be at least 1 byte")
	}
	if text == "" {
		return nil, nil
	}

	// Small enough to skip rune bookkeeping.
	if len(text) <= maxBytes {
		return []string{text}, nil
	}

	starts := runeStarts(text)
	runes := len(starts) - 1

	pieces := make([]string, 0, len(text)/maxBytes+1)
	pos := 0 // rune index
	for pos < runes {
		k := fit(starts, pos, maxBytes)
		if k == 0 {
			return pieces, errors.NewRuneTooLarge(starts[pos], maxBytes)
		}
		pieces = append(pieces, text[starts[pos]:starts[pos+k]])
		pos += k
	}
	return pieces, nil
}

// fit returns the largest rune count k such that the k runes starting at pos
// encode to at most maxBytes bytes.
func fit(starts []int, pos, maxBytes int) int {
	remaining := len(starts) - 1 - pos
	base := starts[pos]
	// sort.Search finds the first count that no longer fits.
	over := sort.Search(remaining+1, func(k int) bool {
		return starts[pos+k]-base > maxBytes
	})
	return over - 1
}

// runeStarts returns the byte offset of every rune in s followed by len(s).
// Invalid bytes count as one rune each, matching how Go ranges over strings.
func runeStarts(s string) []int {
	starts := make([]int, 0, utf8.RuneCountInString(s)+1)
	for i := range s {
		starts = append(starts, i)
	}
	return append(starts, len(s))
}
