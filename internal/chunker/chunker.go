// Package chunker splits extracted document text into overlapping windows.
package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/xxxsen/mailrag/internal/model"
	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

const (
	DefaultSize    = 500
	DefaultOverlap = 50
)

var ErrInvalidConfig = fmt.Errorf("%w: chunk size must be positive and overlap in [0, size)", appErr.ErrConfig)

// Chunk splits text into windows of at most size runes. Every chunk after the
// first starts with the last overlap runes of its predecessor. Cuts prefer the
// end of a sentence, then any whitespace, and fall back to a hard split.
func Chunk(documentKey, text string, size, overlap int) ([]model.TextChunk, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, ErrInvalidConfig
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	rs := []rune(text)
	n := len(rs)
	chunks := make([]model.TextChunk, 0, n/(size-overlap)+1)
	start := 0
	for {
		end := start + size
		if end >= n {
			end = n
		} else if bp := breakpoint(rs, start+overlap, end); bp > 0 {
			end = bp
		}
		c := model.TextChunk{
			DocumentKey:   documentKey,
			SequenceIndex: len(chunks),
			Text:          string(rs[start:end]),
		}
		if c.SequenceIndex > 0 {
			c.Overlap = string(rs[start : start+overlap])
		}
		chunks = append(chunks, c)
		if end == n {
			return chunks, nil
		}
		start = end - overlap
	}
}

// breakpoint returns the best cut in (lo, hi], or 0 when none qualifies.
// The rune before the cut is the separator and stays in the earlier chunk.
func breakpoint(rs []rune, lo, hi int) int {
	for c := hi; c > lo; c-- {
		if isSentenceEnd(rs, c) {
			return c
		}
	}
	for c := hi; c > lo; c-- {
		if unicode.IsSpace(rs[c-1]) {
			return c
		}
	}
	return 0
}

func isSentenceEnd(rs []rune, c int) bool {
	r := rs[c-1]
	if r == '\n' {
		return true
	}
	if !unicode.IsSpace(r) || c < 2 {
		return false
	}
	switch rs[c-2] {
	case '.', '!', '?':
		return true
	}
	return false
}
