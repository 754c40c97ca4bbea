package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/knowledge/helper"
	"github.com/siherrmann/knowledge/model"
	"github.com/siherrmann/knowledge/sql"
)

// NodesDBHandlerFunctions defines the interface for GraphNode database operations.
type NodesDBHandlerFunctions interface {
	InsertNode(node *model.GraphNode) error
	SelectNode(id uuid.UUID) (*model.GraphNode, error)
	SelectNodesByType(nodeType model.NodeType, limit int) ([]*model.GraphNode, error)
	SelectNodesByProperty(key string, value string) ([]*model.GraphNode, error)
	UpdateNodeProperties(id uuid.UUID, properties model.Metadata) (*model.GraphNode, error)
	DeleteNode(id uuid.UUID) (bool, error)
}

// NodesDBHandler handles GraphNode database operations.
type NodesDBHandler struct {
	db *helper.Database
}

// NewNodesDBHandler creates a new nodes database handler. It initializes
// the database connection and loads node-related SQL functions.
func NewNodesDBHandler(db *helper.Database, force bool) (*NodesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	nodesDbHandler := &NodesDBHandler{db: db}

	err := sql.LoadNodesSql(nodesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load nodes sql", err)
	}

	err = nodesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized NodesDBHandler")

	return nodesDbHandler, nil
}

// CreateTable creates the 'graph_nodes' table.
func (h *NodesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_nodes();`)
	if err != nil {
		log.Panicf("error initializing graph_nodes table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table graph_nodes")

	return nil
}

func scanNode(row interface{ Scan(...interface{}) error }, node *model.GraphNode) error {
	return row.Scan(
		&node.ID,
		&node.Type,
		&node.Properties,
		&node.EmbeddingID,
		&node.CreatedAt,
	)
}

// InsertNode inserts or, on id conflict, refreshes a graph node's
// properties. Chunk and document nodes reuse their owning row's id so
// the vector store and graph store never disagree on the live set.
func (h *NodesDBHandler) InsertNode(node *model.GraphNode) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_node($1, $2, $3, $4)`,
		node.ID,
		node.Type,
		node.Properties,
		node.EmbeddingID,
	)

	if err := scanNode(row, node); err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectNode retrieves a graph node by ID.
func (h *NodesDBHandler) SelectNode(id uuid.UUID) (*model.GraphNode, error) {
	node := &model.GraphNode{}
	row := h.db.Instance.QueryRow(`SELECT * FROM select_node($1)`, id)

	if err := scanNode(row, node); err != nil {
		return nil, helper.NewError("scan", err)
	}

	return node, nil
}

// SelectNodesByType retrieves nodes of a given type. A zero-value
// nodeType ("") retrieves nodes of every type.
func (h *NodesDBHandler) SelectNodesByType(nodeType model.NodeType, limit int) ([]*model.GraphNode, error) {
	var typeParam interface{}
	if nodeType != "" {
		typeParam = nodeType
	}

	rows, err := h.db.Instance.Query(`SELECT * FROM select_nodes_by_type($1, $2)`, typeParam, limit)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var nodes []*model.GraphNode
	for rows.Next() {
		node := &model.GraphNode{}
		if err := scanNode(rows, node); err != nil {
			return nil, helper.NewError("scan", err)
		}
		nodes = append(nodes, node)
	}

	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return nodes, nil
}

// SelectNodesByProperty retrieves nodes whose properties JSONB has key
// set to value.
func (h *NodesDBHandler) SelectNodesByProperty(key string, value string) ([]*model.GraphNode, error) {
	rows, err := h.db.Instance.Query(`SELECT * FROM select_nodes_by_property($1, $2)`, key, value)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var nodes []*model.GraphNode
	for rows.Next() {
		node := &model.GraphNode{}
		if err := scanNode(rows, node); err != nil {
			return nil, helper.NewError("scan", err)
		}
		nodes = append(nodes, node)
	}

	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return nodes, nil
}

// UpdateNodeProperties merges properties into the node's existing
// property map (shallow merge, new keys overwrite existing ones).
func (h *NodesDBHandler) UpdateNodeProperties(id uuid.UUID, properties model.Metadata) (*model.GraphNode, error) {
	node := &model.GraphNode{}
	row := h.db.Instance.QueryRow(`SELECT * FROM update_node_properties($1, $2)`, id, properties)

	if err := scanNode(row, node); err != nil {
		return nil, helper.NewError("scan", err)
	}

	return node, nil
}

// DeleteNode deletes a node and cascades to its incident edges.
func (h *NodesDBHandler) DeleteNode(id uuid.UUID) (bool, error) {
	var deleted bool
	row := h.db.Instance.QueryRow(`SELECT delete_node($1)`, id)
	if err := row.Scan(&deleted); err != nil {
		return false, helper.NewError("scan", err)
	}
	return deleted, nil
}
