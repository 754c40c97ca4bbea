package database

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/knowledge/helper"
	"github.com/siherrmann/knowledge/model"
	loadSql "github.com/siherrmann/knowledge/sql"
)

// EdgesDBHandlerFunctions defines the interface for GraphEdge database operations.
type EdgesDBHandlerFunctions interface {
	UpsertEdge(edge *model.GraphEdge) error
	SelectEdge(id uuid.UUID) (*model.GraphEdge, error)
	SelectEdgesFrom(nodeID uuid.UUID, edgeType *model.EdgeType) ([]*model.GraphEdge, error)
	SelectEdgesTo(nodeID uuid.UUID, edgeType *model.EdgeType) ([]*model.GraphEdge, error)
	DeleteEdge(id uuid.UUID) (bool, error)
	UpdateEdgeWeight(id uuid.UUID, weight float64) error
	TraverseBFS(startID uuid.UUID, maxDepth int, edgeType *model.EdgeType, bidirectional bool) ([]*model.TraversalNode, error)
	SelectEdgesByType(edgeType model.EdgeType) ([]*model.GraphEdge, error)
}

// EdgesDBHandler handles GraphEdge database operations.
type EdgesDBHandler struct {
	db *helper.Database
}

// NewEdgesDBHandler creates a new edges database handler. It initializes
// the database connection and loads edge-related SQL functions.
func NewEdgesDBHandler(db *helper.Database, force bool) (*EdgesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	edgesDbHandler := &EdgesDBHandler{db: db}

	err := loadSql.LoadEdgesSql(edgesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load edges sql", err)
	}

	err = edgesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EdgesDBHandler")

	return edgesDbHandler, nil
}

// CreateTable creates the 'graph_edges' table.
func (h *EdgesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_edges();`)
	if err != nil {
		log.Panicf("error initializing graph_edges table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table graph_edges")

	return nil
}

func scanEdge(row interface{ Scan(...interface{}) error }, edge *model.GraphEdge) error {
	return row.Scan(
		&edge.ID,
		&edge.FromID,
		&edge.ToID,
		&edge.Type,
		&edge.Weight,
		&edge.Properties,
		&edge.CreatedAt,
	)
}

// UpsertEdge inserts an edge, or, if one already exists for
// (FromID, ToID, Type), keeps the larger of the two weights.
func (h *EdgesDBHandler) UpsertEdge(edge *model.GraphEdge) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM upsert_edge($1, $2, $3, $4, $5)`,
		edge.FromID,
		edge.ToID,
		edge.Type,
		edge.Weight,
		edge.Properties,
	)

	if err := scanEdge(row, edge); err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectEdge retrieves an edge by ID.
func (h *EdgesDBHandler) SelectEdge(id uuid.UUID) (*model.GraphEdge, error) {
	edge := &model.GraphEdge{}
	row := h.db.Instance.QueryRow(`SELECT * FROM select_edge($1)`, id)

	if err := scanEdge(row, edge); err != nil {
		return nil, helper.NewError("scan", err)
	}

	return edge, nil
}

// SelectEdgesFrom retrieves edges originating at nodeID, optionally
// restricted to a single edge type.
func (h *EdgesDBHandler) SelectEdgesFrom(nodeID uuid.UUID, edgeType *model.EdgeType) ([]*model.GraphEdge, error) {
	var typeParam interface{}
	if edgeType != nil {
		typeParam = *edgeType
	}

	rows, err := h.db.Instance.Query(`SELECT * FROM select_edges_from($1, $2)`, nodeID, typeParam)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var edges []*model.GraphEdge
	for rows.Next() {
		edge := &model.GraphEdge{}
		if err := scanEdge(rows, edge); err != nil {
			return nil, helper.NewError("scan", err)
		}
		edges = append(edges, edge)
	}

	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return edges, nil
}

// SelectEdgesTo retrieves edges terminating at nodeID, optionally
// restricted to a single edge type.
func (h *EdgesDBHandler) SelectEdgesTo(nodeID uuid.UUID, edgeType *model.EdgeType) ([]*model.GraphEdge, error) {
	var typeParam interface{}
	if edgeType != nil {
		typeParam = *edgeType
	}

	rows, err := h.db.Instance.Query(`SELECT * FROM select_edges_to($1, $2)`, nodeID, typeParam)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var edges []*model.GraphEdge
	for rows.Next() {
		edge := &model.GraphEdge{}
		if err := scanEdge(rows, edge); err != nil {
			return nil, helper.NewError("scan", err)
		}
		edges = append(edges, edge)
	}

	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return edges, nil
}

// DeleteEdge deletes an edge by ID.
func (h *EdgesDBHandler) DeleteEdge(id uuid.UUID) (bool, error) {
	var deleted bool
	row := h.db.Instance.QueryRow(`SELECT delete_edge($1)`, id)
	if err := row.Scan(&deleted); err != nil {
		return false, helper.NewError("scan", err)
	}
	return deleted, nil
}

// UpdateEdgeWeight sets an edge's weight directly, bypassing the
// keep-the-max rule UpsertEdge applies.
func (h *EdgesDBHandler) UpdateEdgeWeight(id uuid.UUID, weight float64) error {
	_, err := h.db.Instance.Exec(`SELECT update_edge_weight($1, $2)`, id, weight)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// TraverseBFS walks the graph outward from startID up to maxDepth hops,
// visiting each reachable node once.
func (h *EdgesDBHandler) TraverseBFS(startID uuid.UUID, maxDepth int, edgeType *model.EdgeType, bidirectional bool) ([]*model.TraversalNode, error) {
	var typeParam interface{}
	if edgeType != nil {
		typeParam = *edgeType
	}

	rows, err := h.db.Instance.Query(
		`SELECT * FROM traverse_bfs($1, $2, $3, $4)`,
		startID,
		maxDepth,
		typeParam,
		bidirectional,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var nodes []*model.TraversalNode
	for rows.Next() {
		node := &model.TraversalNode{}
		var pathRaw []byte
		if err := rows.Scan(&node.NodeID, &node.Depth, &pathRaw); err != nil {
			return nil, helper.NewError("scan", err)
		}
		if err := parseUUIDArray(pathRaw, &node.Path); err != nil {
			return nil, helper.NewError("parsing path array", err)
		}
		nodes = append(nodes, node)
	}

	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return nodes, nil
}

// SelectEdgesByType retrieves every edge of a given type, regardless of
// endpoint. Backs the one-hop Cypher-subset query, where the relationship
// type is the only mandatory label in the pattern.
func (h *EdgesDBHandler) SelectEdgesByType(edgeType model.EdgeType) ([]*model.GraphEdge, error) {
	rows, err := h.db.Instance.Query(`SELECT * FROM select_edges_by_type($1)`, edgeType)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var edges []*model.GraphEdge
	for rows.Next() {
		edge := &model.GraphEdge{}
		if err := scanEdge(rows, edge); err != nil {
			return nil, helper.NewError("scan", err)
		}
		edges = append(edges, edge)
	}

	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return edges, nil
}

// parseUUIDArray parses a PostgreSQL UUID array in its default text
// representation, e.g. {uuid1,uuid2,uuid3}.
func parseUUIDArray(data []byte, result *[]uuid.UUID) error {
	str := string(data)
	if len(str) < 2 || str[0] != '{' || str[len(str)-1] != '}' {
		return helper.NewError("invalid array format", fmt.Errorf("%s", str))
	}

	str = str[1 : len(str)-1]
	if str == "" {
		*result = []uuid.UUID{}
		return nil
	}

	parts := strings.Split(str, ",")
	*result = make([]uuid.UUID, 0, len(parts))
	for _, part := range parts {
		id, err := uuid.Parse(part)
		if err != nil {
			return helper.NewError(fmt.Sprintf("parsing UUID %s", part), err)
		}
		*result = append(*result, id)
	}

	return nil
}
