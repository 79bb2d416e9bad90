package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{name: "valid", size: 1000, overlap: 200, wantErr: false},
		{name: "zero overlap", size: 100, overlap: 0, wantErr: false},
		{name: "zero size", size: 0, overlap: 0, wantErr: true},
		{name: "negative size", size: -1, overlap: 0, wantErr: true},
		{name: "negative overlap", size: 100, overlap: -1, wantErr: true},
		{name: "overlap equals size", size: 100, overlap: 100, wantErr: true},
		{name: "overlap exceeds size", size: 100, overlap: 150, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.size, tt.overlap)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.size, c.Size())
			assert.Equal(t, tt.overlap, c.Overlap())
		})
	}
}

func TestSplitShortInput(t *testing.T) {
	c, err := New(100, 20)
	require.NoError(t, err)

	chunks := c.Split("short text")
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0])
}

func TestSplitInputEqualToSize(t *testing.T) {
	c, err := New(10, 2)
	require.NoError(t, err)

	text := strings.Repeat("x", 10)
	chunks := c.Split(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestSplitHardCut(t *testing.T) {
	// No natural boundaries anywhere: every chunk except the last must be
	// exactly the chunk size and consecutive chunks share exactly the overlap.
	c, err := New(1000, 200)
	require.NoError(t, err)

	text := strings.Repeat("abcdefghij", 260) // 2600 chars
	chunks := c.Split(text)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 1000)
	assert.Len(t, chunks[1], 1000)
	assert.Len(t, chunks[2], 1000)
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1][len(chunks[i-1])-200:], chunks[i][:200])
	}
}

func TestSplitReconstructsOriginal(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		text    string
	}{
		{
			name:    "prose with sentences",
			size:    80,
			overlap: 20,
			text:    strings.Repeat("The quick brown fox jumps over the lazy dog. ", 30),
		},
		{
			name:    "paragraphs",
			size:    120,
			overlap: 30,
			text:    strings.Repeat("First paragraph about packaging.\n\nSecond paragraph about audiences.\n\n", 12),
		},
		{
			name:    "no boundaries",
			size:    50,
			overlap: 10,
			text:    strings.Repeat("0123456789", 40),
		},
		{
			name:    "zero overlap",
			size:    64,
			overlap: 0,
			text:    strings.Repeat("some words separated by spaces here ", 20),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.size, tt.overlap)
			require.NoError(t, err)

			chunks := c.Split(tt.text)
			require.NotEmpty(t, chunks)

			var b strings.Builder
			b.WriteString(chunks[0])
			for _, chunk := range chunks[1:] {
				require.GreaterOrEqual(t, len(chunk), tt.overlap)
				b.WriteString(chunk[tt.overlap:])
			}
			assert.Equal(t, tt.text, b.String())
		})
	}
}

func TestSplitMultiByteRuneSafety(t *testing.T) {
	// Distinct two-byte runes with no natural boundaries: hard cuts at an odd
	// size would split runes unless cuts back up to a rune boundary.
	var b strings.Builder
	for r := rune(0x00C0); r < 0x00C0+120; r++ {
		b.WriteRune(r)
	}
	text := b.String() // 240 bytes, every rune unique

	c, err := New(25, 5)
	require.NoError(t, err)

	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk), "chunk %d is not valid UTF-8: %q", i, chunk)
	}

	// Chunks remain contiguous windows of the original text.
	offset := 0
	for i, chunk := range chunks {
		idx := strings.Index(text[offset:], chunk)
		require.GreaterOrEqual(t, idx, 0, "chunk %d not anchored in original", i)
		offset += idx
	}
	assert.Equal(t, len(text), offset+len(chunks[len(chunks)-1]))
}

func TestSplitZeroOverlapUsesNaturalBoundaries(t *testing.T) {
	c, err := New(60, 0)
	require.NoError(t, err)

	text := strings.Repeat("A short sentence ends here. ", 10)
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(chunk, ". "), "chunk %q should end at a sentence boundary", chunk)
	}
}

func TestSplitPrefersSentenceBoundary(t *testing.T) {
	c, err := New(60, 20)
	require.NoError(t, err)

	text := "A first sentence that runs for a while here. A second sentence that also runs on for quite a while longer."
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)

	// The cut lands after the sentence end inside the search region rather
	// than mid-word at the hard limit.
	assert.True(t, strings.HasSuffix(chunks[0], ". "), "chunk %q should end at a sentence boundary", chunks[0])
}

func TestChunksIsRestartable(t *testing.T) {
	c, err := New(50, 10)
	require.NoError(t, err)

	text := strings.Repeat("restartable sequences can be ranged twice ", 10)
	seq := c.Chunks(text)

	first := make([]string, 0)
	for chunk := range seq {
		first = append(first, chunk)
	}
	second := make([]string, 0)
	for chunk := range seq {
		second = append(second, chunk)
	}
	assert.Equal(t, first, second)
}

func TestChunksEarlyBreak(t *testing.T) {
	c, err := New(50, 10)
	require.NoError(t, err)

	text := strings.Repeat("x", 500)
	n := 0
	for range c.Chunks(text) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestCount(t *testing.T) {
	c, err := New(1000, 200)
	require.NoError(t, err)

	assert.Equal(t, 1, c.Count("tiny"))
	assert.Equal(t, 3, c.Count(strings.Repeat("abcdefghij", 260)))
}
