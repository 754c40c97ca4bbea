package pipeline

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/siherrmann/knowledge/model"
)

// estimateTokens approximates a token count from whitespace-delimited
// words; the dependency set carries no tokenizer, and chunk sizing only
// needs to be in the right ballpark to respect spec bounds.
func estimateTokens(text string) int {
	return len(strings.Fields(text))
}

type span struct {
	text  string
	start int
	end   int
}

func splitParagraphs(text string) []span {
	var spans []span
	pos := 0
	for _, part := range strings.Split(text, "\n\n") {
		start := pos
		end := start + len(part)
		pos = end + 2 // account for the "\n\n" separator

		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		// re-anchor start/end to the trimmed content within part
		leading := strings.Index(part, trimmed)
		spans = append(spans, span{text: trimmed, start: start + leading, end: start + leading + len(trimmed)})
	}
	return spans
}

func newChunk(content string, start, end int, basePath, label string, idx *int, strategy model.ChunkStrategy) ChunkWithPath {
	path := fmt.Sprintf("%s.%s%d", basePath, label, *idx)
	chunk := ChunkWithPath{
		Content:    content,
		Path:       path,
		Strategy:   strategy,
		StartPos:   intPtr(start),
		EndPos:     intPtr(end),
		ChunkIndex: intPtr(*idx),
		Metadata:   map[string]interface{}{},
	}
	*idx++
	return chunk
}

func intPtr(v int) *int {
	return &v
}

// ParagraphChunker groups paragraphs (blank-line-separated) into chunks
// of up to model.MaxChunkTokens, closing a group once it reaches
// model.MinChunkTokens. A group exceeding MaxChunkTokens is handed to
// SlidingChunker so no chunk is ever emitted over the bound. The last
// group is emitted whatever its size, so a text (or a text's tail)
// shorter than MinChunkTokens yields a chunk below that bound.
func ParagraphChunker() ChunkFunc {
	slide := SlidingChunker(model.MaxChunkTokens, 0)

	return func(text string, basePath string) ([]ChunkWithPath, error) {
		paragraphs := splitParagraphs(text)
		if len(paragraphs) == 0 {
			return []ChunkWithPath{}, nil
		}

		var chunks []ChunkWithPath
		idx := 0
		var group []span
		groupTokens := 0

		flush := func() error {
			if len(group) == 0 {
				return nil
			}
			content := joinSpans(group)
			if estimateTokens(content) > model.MaxChunkTokens {
				sub, err := slide(content, basePath)
				if err != nil {
					return err
				}
				for _, c := range sub {
					c.Path = fmt.Sprintf("%s.para%d", basePath, idx)
					c.ChunkIndex = intPtr(idx)
					c.Strategy = model.ChunkStrategyParagraph
					start := group[0].start + derefInt(c.StartPos)
					end := group[0].start + derefInt(c.EndPos)
					c.StartPos = intPtr(start)
					c.EndPos = intPtr(end)
					chunks = append(chunks, c)
					idx++
				}
			} else {
				chunks = append(chunks, newChunk(content, group[0].start, group[len(group)-1].end, basePath, "para", &idx, model.ChunkStrategyParagraph))
			}
			group = nil
			groupTokens = 0
			return nil
		}

		for _, p := range paragraphs {
			group = append(group, p)
			groupTokens += estimateTokens(p.text)
			if groupTokens >= model.MinChunkTokens {
				if err := flush(); err != nil {
					return nil, err
				}
			}
		}
		if err := flush(); err != nil {
			return nil, err
		}

		return chunks, nil
	}
}

func joinSpans(spans []span) string {
	parts := make([]string, len(spans))
	for i, s := range spans {
		parts[i] = s.text
	}
	return strings.Join(parts, "\n\n")
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// SlidingChunker splits text into fixed-size, overlapping word windows.
// overlapTokens is capped to model.MaxSlidingOverlap, matching the
// partition-with-bounded-overlap invariant for the sliding strategy.
func SlidingChunker(maxTokens int, overlapTokens int) ChunkFunc {
	return func(text string, basePath string) ([]ChunkWithPath, error) {
		if maxTokens <= 0 {
			return nil, fmt.Errorf("max tokens per chunk must be positive")
		}
		if overlapTokens > model.MaxSlidingOverlap {
			overlapTokens = model.MaxSlidingOverlap
		}
		if overlapTokens >= maxTokens {
			overlapTokens = maxTokens / 2
		}

		words := tokenizeWithOffsets(text)
		if len(words) == 0 {
			return []ChunkWithPath{}, nil
		}

		var chunks []ChunkWithPath
		idx := 0
		step := maxTokens - overlapTokens
		if step <= 0 {
			step = maxTokens
		}

		for start := 0; start < len(words); start += step {
			end := start + maxTokens
			if end > len(words) {
				end = len(words)
			}

			content := text[words[start].start:words[end-1].end]
			chunks = append(chunks, newChunk(content, words[start].start, words[end-1].end, basePath, "slide", &idx, model.ChunkStrategySliding))

			if end == len(words) {
				break
			}
		}

		return chunks, nil
	}
}

func tokenizeWithOffsets(text string) []span {
	var words []span
	inWord := false
	start := 0
	for i, r := range text {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if !isSpace && !inWord {
			start = i
			inWord = true
		} else if isSpace && inWord {
			words = append(words, span{text: text[start:i], start: start, end: i})
			inWord = false
		}
	}
	if inWord {
		words = append(words, span{text: text[start:], start: start, end: len(text)})
	}
	return words
}

var markdownTableRowPattern = regexp.MustCompile(`^\s*\|.*\|\s*$`)

// TableChunker extracts markdown pipe-table blocks as whole chunks
// (tables are never split mid-row) and chunks the remaining text with
// ParagraphChunker.
func TableChunker() ChunkFunc {
	fallback := ParagraphChunker()

	return func(text string, basePath string) ([]ChunkWithPath, error) {
		lines := strings.Split(text, "\n")

		var chunks []ChunkWithPath
		idx := 0
		var nonTable strings.Builder
		var tableLines []string
		pos := 0

		flushTable := func(tableStart int) error {
			if len(tableLines) == 0 {
				return nil
			}
			content := strings.Join(tableLines, "\n")
			chunks = append(chunks, newChunk(content, tableStart, tableStart+len(content), basePath, "table", &idx, model.ChunkStrategyTable))
			tableLines = nil
			return nil
		}

		tableStart := 0
		for _, line := range lines {
			lineStart := pos
			pos += len(line) + 1

			if markdownTableRowPattern.MatchString(line) {
				if len(tableLines) == 0 {
					tableStart = lineStart
				}
				tableLines = append(tableLines, line)
				continue
			}

			if err := flushTable(tableStart); err != nil {
				return nil, err
			}
			nonTable.WriteString(line)
			nonTable.WriteString("\n")
		}
		if err := flushTable(tableStart); err != nil {
			return nil, err
		}

		rest, err := fallback(nonTable.String(), basePath)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, rest...)

		return chunks, nil
	}
}

// cosineSimilarity calculates the cosine similarity between two embedding vectors
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float32
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (sqrtf32(normA) * sqrtf32(normB))
}

func sqrtf32(v float32) float32 {
	// Newton's method would be overkill here; delegate to math.Sqrt via
	// float64 for correctness and keep the float32 signature callers expect.
	return float32(math.Sqrt(float64(v)))
}
