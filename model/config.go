package model

import "github.com/google/uuid"

// QueryConfig configures one hybrid search call.
type QueryConfig struct {
	TopK                int             `json:"top_k"`
	SimilarityThreshold float64         `json:"similarity_threshold,omitempty"`
	DocumentRIDs        []uuid.UUID     `json:"document_rids,omitempty"`

	IncludeRelated bool       `json:"include_related"`
	GraphDepth     int        `json:"graph_depth,omitempty"` // 0-3
	EdgeTypes      []EdgeType `json:"edge_types,omitempty"`

	VectorWeight float64 `json:"vector_weight"` // in [0,1]
	Rerank       bool    `json:"rerank"`

	Filters map[string]interface{} `json:"filters,omitempty"`
}

// DefaultQueryConfig returns a sensible default configuration.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		TopK:                5,
		SimilarityThreshold: 0.7,
		IncludeRelated:      true,
		GraphDepth:          2,
		EdgeTypes:           nil, // all types
		VectorWeight:        0.6,
		Rerank:              false,
	}
}
