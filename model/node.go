package model

import (
	"time"

	"github.com/google/uuid"
)

// NodeType is the closed tag set a GraphNode can carry.
type NodeType string

const (
	NodeTypeDocument    NodeType = "Document"
	NodeTypeSection     NodeType = "Section"
	NodeTypeChunk       NodeType = "Chunk"
	NodeTypeEntity      NodeType = "Entity"
	NodeTypePyramidItem NodeType = "PyramidItem"
	NodeTypeStory       NodeType = "Story"
)

// GraphNode is a tagged variant over NodeType with a schemaless property
// map. Type is immutable after creation.
type GraphNode struct {
	ID          uuid.UUID      `json:"id"`
	Type        NodeType       `json:"type"`
	Properties  Metadata       `json:"properties,omitempty"`
	EmbeddingID *uuid.UUID     `json:"embedding_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// EdgeType is the closed set of directed relationships between nodes.
type EdgeType string

const (
	EdgeTypeCites      EdgeType = "CITES"
	EdgeTypeParentOf   EdgeType = "PARENT_OF"
	EdgeTypeRelatesTo  EdgeType = "RELATES_TO"
	EdgeTypeDerivedFrom EdgeType = "DERIVED_FROM"
	EdgeTypeLinksTo    EdgeType = "LINKS_TO"
	EdgeTypeSupports   EdgeType = "SUPPORTS"
	EdgeTypeAlignsTo   EdgeType = "ALIGNS_TO"
)

// GraphEdge is a directed, typed relationship between two GraphNodes.
// For any (FromID, ToID, Type) triple, at most one edge is retained
// (deduplicated on insert, keeping the max weight).
type GraphEdge struct {
	ID         uuid.UUID `json:"id"`
	FromID     uuid.UUID `json:"from_id"`
	ToID       uuid.UUID `json:"to_id"`
	Type       EdgeType  `json:"type"`
	Weight     float64   `json:"weight"`
	Properties Metadata  `json:"properties,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TraversalNode is one step of a breadth/depth-first graph walk.
type TraversalNode struct {
	NodeID uuid.UUID   `json:"node_id"`
	Depth  int         `json:"depth"`
	Path   []uuid.UUID `json:"path"` // edge-endpoint ids from origin
}

// QueryResult is the return shape of a Cypher-subset graph query.
type QueryResult struct {
	Nodes []*GraphNode `json:"nodes"`
	Edges []*GraphEdge `json:"edges"`
}
