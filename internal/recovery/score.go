package recovery

import (
	"math"

	"unfas/internal/region"
)

// Score weights.
const (
	weightPrintable = 0.5
	weightWordLike  = 0.3
	weightEntropy   = 0.2
)

// Score rates how much b looks like recovered text, in [0,1]. NUL bytes are
// treated as delimiters: they neither count as printable nor against it.
func Score(b []byte) float64 {
	total, printable := 0, 0
	for _, c := range b {
		if c == 0 {
			continue
		}
		total++
		if region.IsPrintable(c) {
			printable++
		}
	}
	if total == 0 {
		return 0
	}
	p := float64(printable) / float64(total)
	return weightPrintable*p + weightWordLike*WordLike(b) + weightEntropy*(1-Entropy(b)/8)
}

// Entropy returns the Shannon entropy of b in bits per byte.
func Entropy(b []byte) float64 {
	if len(b) == 0 {
		return 0
	}
	var freq [256]int
	for _, c := range b {
		freq[c]++
	}
	n := float64(len(b))
	h := 0.0
	for _, f := range freq {
		if f == 0 {
			continue
		}
		p := float64(f) / n
		h -= p * math.Log2(p)
	}
	return h
}

// WordLike returns the fraction of token bytes that belong to word-like
// tokens. Tokens are maximal runs of identifier characters; a token is
// word-like when it has at least two characters, half of them letters.
func WordLike(b []byte) float64 {
	tokenBytes, wordBytes := 0, 0
	i := 0
	for i < len(b) {
		if !isTokenChar(b[i]) {
			i++
			continue
		}
		start, letters := i, 0
		for i < len(b) && isTokenChar(b[i]) {
			if isLetter(b[i]) {
				letters++
			}
			i++
		}
		n := i - start
		tokenBytes += n
		if n >= 2 && 2*letters >= n {
			wordBytes += n
		}
	}
	// Bytes that are neither token nor separator characters count against.
	for _, c := range b {
		if c >= 0x80 || (c < 0x20 && c != 0 && c != '\t' && c != '\n' && c != '\r') {
			tokenBytes++
		}
	}
	if tokenBytes == 0 {
		return 0
	}
	return float64(wordBytes) / float64(tokenBytes)
}

func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func isTokenChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_' || c == '-' || c == '*' || c == ':'
}
