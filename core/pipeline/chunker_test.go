package pipeline

import (
	"strings"
	"testing"

	"github.com/siherrmann/knowledge/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParagraphChunker(t *testing.T) {
	t.Run("Valid chunking with multiple paragraphs", func(t *testing.T) {
		chunker := ParagraphChunker()
		text := "First paragraph.\n\nSecond paragraph.\n\nThird paragraph."
		basePath := "doc.test"

		chunks, err := chunker(text, basePath)

		require.NoError(t, err)
		require.Len(t, chunks, 1, "short paragraphs stay grouped until MinChunkTokens is reached")
		assert.Contains(t, chunks[0].Content, "First")
		assert.Contains(t, chunks[0].Content, "Third")
		assert.Equal(t, model.ChunkStrategyParagraph, chunks[0].Strategy)
	})

	t.Run("Single paragraph", func(t *testing.T) {
		chunker := ParagraphChunker()
		text := "Just one paragraph here."
		basePath := "doc.single"

		chunks, err := chunker(text, basePath)

		require.NoError(t, err)
		assert.Equal(t, 1, len(chunks))
		assert.Contains(t, chunks[0].Content, "one paragraph")
	})

	t.Run("Empty paragraphs are skipped", func(t *testing.T) {
		chunker := ParagraphChunker()
		text := "First paragraph.\n\n\n\nSecond paragraph."
		basePath := "doc.empty"

		chunks, err := chunker(text, basePath)

		require.NoError(t, err)
		assert.Equal(t, 1, len(chunks))
		assert.Contains(t, chunks[0].Content, "First")
		assert.Contains(t, chunks[0].Content, "Second")
	})

	t.Run("Empty text", func(t *testing.T) {
		chunker := ParagraphChunker()
		chunks, err := chunker("", "doc.empty")

		require.NoError(t, err)
		assert.Equal(t, 0, len(chunks))
	})

	t.Run("Large paragraph group is handed to the sliding chunker", func(t *testing.T) {
		chunker := ParagraphChunker()
		word := "lorem "
		var paragraphs []string
		for i := 0; i < 6; i++ {
			paragraphs = append(paragraphs, strings.Repeat(word, model.MaxChunkTokens+76))
		}
		text := strings.Join(paragraphs, "\n\n")

		chunks, err := chunker(text, "doc.big")

		require.NoError(t, err)
		require.Greater(t, len(chunks), 1)
		for _, c := range chunks {
			assert.LessOrEqual(t, estimateTokens(c.Content), model.MaxChunkTokens)
		}
	})
}

func TestSlidingChunker(t *testing.T) {
	t.Run("Splits into overlapping windows", func(t *testing.T) {
		chunker := SlidingChunker(10, 3)
		words := make([]string, 30)
		for i := range words {
			words[i] = "word"
		}
		text := strings.Join(words, " ")

		chunks, err := chunker(text, "doc.slide")

		require.NoError(t, err)
		require.Greater(t, len(chunks), 1)
		for _, c := range chunks {
			assert.Equal(t, model.ChunkStrategySliding, c.Strategy)
			assert.LessOrEqual(t, estimateTokens(c.Content), 10)
		}
	})

	t.Run("Overlap is capped at MaxSlidingOverlap", func(t *testing.T) {
		chunker := SlidingChunker(model.MaxChunkTokens, model.MaxSlidingOverlap*4)
		words := make([]string, model.MaxChunkTokens*3)
		for i := range words {
			words[i] = "w"
		}
		chunks, err := chunker(strings.Join(words, " "), "doc.cap")

		require.NoError(t, err)
		require.Greater(t, len(chunks), 1)
		// one-letter words joined by single spaces: word i starts at byte 2i
		assert.Equal(t, 2*(model.MaxChunkTokens-model.MaxSlidingOverlap), *chunks[1].StartPos)
	})

	t.Run("Error with non-positive max tokens", func(t *testing.T) {
		chunker := SlidingChunker(0, 0)
		_, err := chunker("some text", "doc.test")
		assert.Error(t, err)
	})

	t.Run("Empty text yields no chunks", func(t *testing.T) {
		chunker := SlidingChunker(100, 10)
		chunks, err := chunker("", "doc.empty")
		require.NoError(t, err)
		assert.Equal(t, 0, len(chunks))
	})
}

func TestTableChunker(t *testing.T) {
	t.Run("Extracts a markdown table as one chunk", func(t *testing.T) {
		chunker := TableChunker()
		text := "Intro paragraph.\n\n| A | B |\n|---|---|\n| 1 | 2 |\n\nOutro paragraph."

		chunks, err := chunker(text, "doc.table")

		require.NoError(t, err)
		var sawTable bool
		for _, c := range chunks {
			if c.Strategy == model.ChunkStrategyTable {
				sawTable = true
				assert.Contains(t, c.Content, "| A | B |")
				assert.Contains(t, c.Content, "| 1 | 2 |")
			}
		}
		assert.True(t, sawTable, "expected a table-strategy chunk")
	})

	t.Run("Text without tables falls back to paragraphs", func(t *testing.T) {
		chunker := TableChunker()
		chunks, err := chunker("Just a paragraph, no tables here.", "doc.notable")

		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, model.ChunkStrategyParagraph, chunks[0].Strategy)
	})
}

func TestCosineSimilarity(t *testing.T) {
	t.Run("Identical vectors", func(t *testing.T) {
		a := []float32{1.0, 2.0, 3.0}
		b := []float32{1.0, 2.0, 3.0}

		similarity := cosineSimilarity(a, b)

		assert.InDelta(t, 1.0, similarity, 0.001, "Identical vectors should have similarity ~1.0")
	})

	t.Run("Orthogonal vectors", func(t *testing.T) {
		a := []float32{1.0, 0.0, 0.0}
		b := []float32{0.0, 1.0, 0.0}

		similarity := cosineSimilarity(a, b)

		assert.InDelta(t, 0.0, similarity, 0.001, "Orthogonal vectors should have similarity ~0.0")
	})

	t.Run("Opposite vectors", func(t *testing.T) {
		a := []float32{1.0, 2.0, 3.0}
		b := []float32{-1.0, -2.0, -3.0}

		similarity := cosineSimilarity(a, b)

		assert.InDelta(t, -1.0, similarity, 0.001, "Opposite vectors should have similarity ~-1.0")
	})

	t.Run("Different lengths return 0", func(t *testing.T) {
		a := []float32{1.0, 2.0}
		b := []float32{1.0, 2.0, 3.0}

		similarity := cosineSimilarity(a, b)

		assert.Equal(t, float32(0.0), similarity)
	})

	t.Run("Zero vectors return 0", func(t *testing.T) {
		a := []float32{0.0, 0.0, 0.0}
		b := []float32{1.0, 2.0, 3.0}

		similarity := cosineSimilarity(a, b)

		assert.Equal(t, float32(0.0), similarity)
	})

	t.Run("Similar but not identical vectors", func(t *testing.T) {
		a := []float32{1.0, 2.0, 3.0}
		b := []float32{1.0, 2.1, 2.9}

		similarity := cosineSimilarity(a, b)

		assert.Greater(t, similarity, float32(0.9), "Similar vectors should have high similarity")
		assert.Less(t, similarity, float32(1.0), "But not exactly 1.0")
	})
}
