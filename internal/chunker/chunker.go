// Package chunker splits text into overlapping fixed-size chunks for
// embedding and retrieval.
package chunker

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultSize is the default chunk size in characters.
	DefaultSize = 1000

	// DefaultOverlap is the default overlap between consecutive chunks.
	DefaultOverlap = 200
)

// ErrInvalidConfig indicates invalid chunker parameters.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// sentenceBoundaries are cut markers tried after paragraph breaks, in order.
var sentenceBoundaries = []string{". ", "! ", "? ", "\n"}

// Chunker splits text into overlapping windows of at most Size bytes.
//
// Cuts prefer natural boundaries (paragraph, sentence, word) found in the
// trailing region of each window, falling back to a hard cut at Size when
// none exists. Cuts and window starts always land on UTF-8 rune boundaries,
// so every chunk of valid input is itself valid UTF-8. Consecutive chunks
// share exactly Overlap bytes, widened only when a byte-exact split would
// fall inside a multi-byte sequence; joining the first chunk with each later
// chunk minus its shared prefix reconstructs the original text.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. Overlap must be non-negative and smaller than size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, size), got %d", ErrInvalidConfig, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Default returns a Chunker with the default size and overlap.
func Default() *Chunker {
	c, _ := New(DefaultSize, DefaultOverlap)
	return c
}

// Size returns the configured chunk size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunks returns a lazy, restartable sequence of chunks of text.
//
// Text no longer than the chunk size yields exactly one chunk equal to the
// input. Every other chunk except possibly the last has length close to the
// chunk size (exactly the chunk size when no natural boundary exists in the
// window).
func (c *Chunker) Chunks(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		start := 0
		for {
			if len(text)-start <= c.size {
				yield(text[start:])
				return
			}
			end := c.cut(text, start)
			if !yield(text[start:end]) {
				return
			}
			prev := start
			start = end - c.overlap
			for start > prev+1 && !utf8.RuneStart(text[start]) {
				start--
			}
		}
	}
}

// Split collects all chunks of text into a slice.
func (c *Chunker) Split(text string) []string {
	var chunks []string
	for chunk := range c.Chunks(text) {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// Count returns the number of chunks Split would produce.
func (c *Chunker) Count(text string) int {
	n := 0
	for range c.Chunks(text) {
		n++
	}
	return n
}

// cut picks the end of the window starting at start. Natural boundaries are
// searched only in the trailing region of the window so the next window,
// which begins Overlap bytes before the cut, still advances.
func (c *Chunker) cut(text string, start int) int {
	hardEnd := start + c.size
	for hardEnd > start+c.overlap+1 && !utf8.RuneStart(text[hardEnd]) {
		hardEnd--
	}

	// Zero overlap would leave an empty search region, so it gets a fixed
	// fraction of the window instead.
	width := c.overlap
	if width == 0 {
		width = c.size / 5
	}

	// The search floor keeps end-overlap strictly past start.
	floor := hardEnd - width
	if minFloor := start + c.overlap + 1; floor < minFloor {
		floor = minFloor
	}

	region := text[floor:hardEnd]

	// Paragraph break first.
	if idx := strings.LastIndex(region, "\n\n"); idx >= 0 {
		return floor + idx + 2
	}
	// Then end of sentence.
	for _, b := range sentenceBoundaries {
		if idx := strings.LastIndex(region, b); idx >= 0 {
			return floor + idx + len(b)
		}
	}
	// Then word boundary.
	if idx := strings.LastIndex(region, " "); idx >= 0 {
		return floor + idx + 1
	}
	return hardEnd
}
