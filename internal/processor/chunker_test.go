package processor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_EmptyInput(t *testing.T) {
	chunker := NewChunker(100, 20)

	assert.Nil(t, chunker.Chunk(""))
	assert.Nil(t, chunker.Chunk("   \n\t  "))
}

func TestChunker_ShortTextSingleChunk(t *testing.T) {
	chunker := NewChunker(100, 20)

	chunks := chunker.Chunk("A short paragraph.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "A short paragraph.", chunks[0])
}

func TestChunker_RespectsSizeLimit(t *testing.T) {
	chunker := NewChunker(120, 30)

	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("This is sentence number something in a long paragraph. ")
	}

	chunks := chunker.Chunk(sb.String())
	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 120, "chunk %d exceeds size", i)
		assert.NotEmpty(t, strings.TrimSpace(chunk))
	}
}

func TestChunker_PrefersParagraphBoundaries(t *testing.T) {
	chunker := NewChunker(100, 10)

	text := "First paragraph here.\n\nSecond paragraph here.\n\nThird paragraph that stands alone."
	chunks := chunker.Chunk(text)

	// The first two paragraphs fit together; the third starts a new
	// chunk rather than splitting mid-paragraph.
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0], "First paragraph")
	assert.Contains(t, chunks[0], "Second paragraph")
	assert.Contains(t, chunks[1], "Third paragraph")
}

func TestChunker_HardSplitsUnbrokenRun(t *testing.T) {
	chunker := NewChunker(50, 10)

	text := strings.Repeat("x", 300)
	chunks := chunker.Chunk(text)
	require.Greater(t, len(chunks), 1)

	total := 0
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 50)
		total += len(chunk)
	}
	assert.GreaterOrEqual(t, total, 300)
}

func TestChunker_InvalidConfigNormalized(t *testing.T) {
	// Overlap >= size would never make progress; the constructor clamps.
	chunker := NewChunker(100, 100)
	chunks := chunker.Chunk(strings.Repeat("word ", 100))
	assert.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 100)
	}
}

func TestSplitSentences(t *testing.T) {
	sentences := splitSentences("First one. Second one! Third one? Trailing fragment")
	assert.Equal(t, []string{
		"First one.",
		"Second one!",
		"Third one?",
		"Trailing fragment",
	}, sentences)
}
