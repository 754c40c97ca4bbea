package model

import (
	"time"

	"github.com/google/uuid"
)

// ChunkStrategy names the splitting strategy that produced a Chunk.
type ChunkStrategy string

const (
	ChunkStrategyParagraph ChunkStrategy = "paragraph"
	ChunkStrategySection   ChunkStrategy = "section"
	ChunkStrategySliding   ChunkStrategy = "sliding"
	ChunkStrategyTable     ChunkStrategy = "table"
)

const (
	MinChunkTokens     = 256
	MaxChunkTokens     = 1024
	MaxSlidingOverlap  = 128
)

// Chunk is the atomic retrieval unit derived from a Document.
type Chunk struct {
	ID          uuid.UUID     `json:"id"`
	DocumentID  int64         `json:"document_id"`
	DocumentRID uuid.UUID     `json:"document_rid"`
	Content     string        `json:"content"`
	SequenceIdx int           `json:"sequence_index"`
	TokenCount  int           `json:"token_count"`
	Strategy    ChunkStrategy `json:"strategy"`
	SectionPath string        `json:"section_path,omitempty"` // ltree breadcrumb
	Embedding   []float32     `json:"embedding,omitempty"`
	StartPos    *int          `json:"start_pos,omitempty"`
	EndPos      *int          `json:"end_pos,omitempty"`
	Metadata    Metadata      `json:"metadata,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`

	// Populated on retrieval only.
	Similarity *float64 `json:"similarity,omitempty"`
	IsMatch    *bool    `json:"is_match,omitempty"`
}
