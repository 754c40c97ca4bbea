package model

import "github.com/google/uuid"

// RetrievalResult is one ranked hit from a hybrid search.
type RetrievalResult struct {
	NodeID          uuid.UUID   `json:"node_id"`
	ChunkID         *uuid.UUID  `json:"chunk_id,omitempty"`
	Content         string      `json:"content,omitempty"`
	VectorScore     float64     `json:"vector_score"`
	GraphScore      float64     `json:"graph_score"`
	CombinedScore   float64     `json:"combined_score"`
	RetrievalMethod string      `json:"retrieval_method"` // vector | graph | hybrid
	RelatedNodeIDs  []uuid.UUID `json:"related_node_ids,omitempty"`

	// Embedding carries the source chunk's vector so a downstream rerank
	// stage can compare it against learned patterns. Only populated for
	// vector-origin candidates; graph-only candidates leave it nil.
	Embedding []float32 `json:"-"`
}
