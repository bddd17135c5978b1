// Package estimate converts rendered text into an approximate token count.
//
// The count is a character-length heuristic, not a tokenizer: every text
// blob costs ceil(len/4 * 1.2) tokens, where len is measured in UTF-16
// code units so results agree with counts taken inside the browser.
package estimate

import "math"

const (
	charsPerToken = 4
	overhead      = 1.2
)

// Tokens returns the estimated token count of text.
func Tokens(text string) int64 {
	return FromLength(UTF16Len(text))
}

// FromLength applies the heuristic to a precomputed UTF-16 length.
// The float arithmetic is kept as-is so rounding matches the browser.
func FromLength(n int) int64 {
	if n <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(n) / charsPerToken * overhead))
}

// UTF16Len returns the number of UTF-16 code units needed to encode s.
// Runes outside the BMP take two units; invalid bytes count as one
// (they decode to U+FFFD).
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// Sum estimates each text independently and adds the results. Summing
// per-text estimates differs from estimating the concatenation because
// each text is rounded up on its own.
func Sum(texts ...string) int64 {
	var total int64
	for _, t := range texts {
		total += Tokens(t)
	}
	return total
}
