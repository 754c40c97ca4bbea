package database

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/siherrmann/knowledge/helper"
	"github.com/siherrmann/knowledge/model"
)

// PyramidDBHandlerFunctions defines the interface for PyramidItem operations.
// PyramidItem is an overlay over GraphNode (type NodeTypePyramidItem); it
// has no table of its own, only a property-map projection plus ALIGNS_TO
// edges managed through NodesDBHandler and EdgesDBHandler.
type PyramidDBHandlerFunctions interface {
	InsertPyramidItem(item *model.PyramidItem) error
	SelectPyramidItem(id uuid.UUID) (*model.PyramidItem, error)
	SelectPyramidItemsByOrg(orgID string, limit int) ([]*model.PyramidItem, error)
	UpdatePyramidAlignmentScore(id uuid.UUID, score float64) (*model.PyramidItem, error)
	SelectPyramidChildren(id uuid.UUID) ([]*model.PyramidItem, error)
	SelectPyramidAncestors(id uuid.UUID, maxDepth int) ([]*model.PyramidItem, error)
	LinkDocumentToPyramidItem(documentNodeID uuid.UUID, itemID uuid.UUID, weight float64) error
	UpdatePyramidItem(item *model.PyramidItem) (*model.PyramidItem, error)
	DeletePyramidItem(id uuid.UUID) (bool, error)
	CountSupportingDocuments(id uuid.UUID) (int, error)
}

// PyramidDBHandler handles PyramidItem operations, built on top of the
// generic graph node/edge tables rather than a dedicated table.
type PyramidDBHandler struct {
	db    *helper.Database
	nodes *NodesDBHandler
	edges *EdgesDBHandler
}

// NewPyramidDBHandler creates a new pyramid handler sharing its
// underlying tables with the graph store.
func NewPyramidDBHandler(db *helper.Database, nodes *NodesDBHandler, edges *EdgesDBHandler) (*PyramidDBHandler, error) {
	if db == nil || nodes == nil || edges == nil {
		return nil, helper.NewError("pyramid handler validation", fmt.Errorf("database, nodes handler, and edges handler must all be non-nil"))
	}

	db.Logger.Info("Initialized PyramidDBHandler")

	return &PyramidDBHandler{db: db, nodes: nodes, edges: edges}, nil
}

func pyramidItemToProperties(item *model.PyramidItem) model.Metadata {
	props := model.Metadata{
		"org_id":          item.OrgID,
		"level":           item.Level.String(),
		"name":            item.Name,
		"description":     item.Description,
		"alignment_score": item.AlignmentScore,
	}
	if item.ParentID != nil {
		props["parent_id"] = item.ParentID.String()
	}
	if len(item.DocumentIDs) > 0 {
		ids := make([]string, len(item.DocumentIDs))
		for i, id := range item.DocumentIDs {
			ids[i] = id.String()
		}
		props["document_ids"] = ids
	}
	return props
}

func nodeToPyramidItem(node *model.GraphNode) (*model.PyramidItem, error) {
	item := &model.PyramidItem{
		ID:        node.ID,
		CreatedAt: node.CreatedAt,
	}

	if orgID, ok := node.Properties["org_id"].(string); ok {
		item.OrgID = orgID
	}
	if levelName, ok := node.Properties["level"].(string); ok {
		level, found := model.ParsePyramidLevel(levelName)
		if !found {
			return nil, fmt.Errorf("unrecognized pyramid level %q", levelName)
		}
		item.Level = level
	}
	if name, ok := node.Properties["name"].(string); ok {
		item.Name = name
	}
	if desc, ok := node.Properties["description"].(string); ok {
		item.Description = desc
	}
	if score, ok := node.Properties["alignment_score"].(float64); ok {
		item.AlignmentScore = score
	}
	if parentRaw, ok := node.Properties["parent_id"].(string); ok {
		parentID, err := uuid.Parse(parentRaw)
		if err != nil {
			return nil, fmt.Errorf("parsing parent_id: %w", err)
		}
		item.ParentID = &parentID
	}
	if docsRaw, ok := node.Properties["document_ids"].([]interface{}); ok {
		item.DocumentIDs = make([]uuid.UUID, 0, len(docsRaw))
		for _, raw := range docsRaw {
			idStr, ok := raw.(string)
			if !ok {
				continue
			}
			id, err := uuid.Parse(idStr)
			if err != nil {
				return nil, fmt.Errorf("parsing document_ids entry: %w", err)
			}
			item.DocumentIDs = append(item.DocumentIDs, id)
		}
	}

	return item, nil
}

// InsertPyramidItem creates the backing graph node and, when ParentID is
// set, an ALIGNS_TO edge from the item to its parent.
func (h *PyramidDBHandler) InsertPyramidItem(item *model.PyramidItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}

	node := &model.GraphNode{
		ID:         item.ID,
		Type:       model.NodeTypePyramidItem,
		Properties: pyramidItemToProperties(item),
	}

	if err := h.nodes.InsertNode(node); err != nil {
		return helper.NewError("insert pyramid node", err)
	}
	item.CreatedAt = node.CreatedAt

	if item.ParentID != nil {
		edge := &model.GraphEdge{
			FromID: item.ID,
			ToID:   *item.ParentID,
			Type:   model.EdgeTypeAlignsTo,
			Weight: 1.0,
		}
		if err := h.edges.UpsertEdge(edge); err != nil {
			return helper.NewError("link pyramid item to parent", err)
		}
	}

	return nil
}

// SelectPyramidItem retrieves a pyramid item by ID.
func (h *PyramidDBHandler) SelectPyramidItem(id uuid.UUID) (*model.PyramidItem, error) {
	node, err := h.nodes.SelectNode(id)
	if err != nil {
		return nil, helper.NewError("select pyramid node", err)
	}
	if node.Type != model.NodeTypePyramidItem {
		return nil, helper.NewError("select pyramid item", fmt.Errorf("%w: node is not a pyramid item", helper.ErrInvalidArgument))
	}
	return nodeToPyramidItem(node)
}

// SelectPyramidItemsByOrg retrieves every pyramid item for an org.
func (h *PyramidDBHandler) SelectPyramidItemsByOrg(orgID string, limit int) ([]*model.PyramidItem, error) {
	nodes, err := h.nodes.SelectNodesByProperty("org_id", orgID)
	if err != nil {
		return nil, helper.NewError("select pyramid nodes by org", err)
	}

	var items []*model.PyramidItem
	for _, node := range nodes {
		if node.Type != model.NodeTypePyramidItem {
			continue
		}
		item, err := nodeToPyramidItem(node)
		if err != nil {
			return nil, helper.NewError("convert pyramid node", err)
		}
		items = append(items, item)
		if limit > 0 && len(items) >= limit {
			break
		}
	}

	return items, nil
}

// UpdatePyramidAlignmentScore refreshes a single item's alignment score,
// e.g. after a re-alignment pass recomputes it.
func (h *PyramidDBHandler) UpdatePyramidAlignmentScore(id uuid.UUID, score float64) (*model.PyramidItem, error) {
	node, err := h.nodes.UpdateNodeProperties(id, model.Metadata{"alignment_score": score})
	if err != nil {
		return nil, helper.NewError("update alignment score", err)
	}
	return nodeToPyramidItem(node)
}

// UpdatePyramidItem overwrites name, description, and document_ids on the
// backing node. Level and parent are immutable after creation (spec's
// "ALIGNS_TO edges created atomically with the child"), so neither is
// touched here.
func (h *PyramidDBHandler) UpdatePyramidItem(item *model.PyramidItem) (*model.PyramidItem, error) {
	props := model.Metadata{
		"name":        item.Name,
		"description": item.Description,
	}
	if len(item.DocumentIDs) > 0 {
		ids := make([]string, len(item.DocumentIDs))
		for i, id := range item.DocumentIDs {
			ids[i] = id.String()
		}
		props["document_ids"] = ids
	}

	node, err := h.nodes.UpdateNodeProperties(item.ID, props)
	if err != nil {
		return nil, helper.NewError("update pyramid item", err)
	}
	return nodeToPyramidItem(node)
}

// DeletePyramidItem removes the backing node; delete_node cascades to
// every incident edge, so a child's ALIGNS_TO edge to a deleted parent
// disappears along with it rather than dangling.
func (h *PyramidDBHandler) DeletePyramidItem(id uuid.UUID) (bool, error) {
	deleted, err := h.nodes.DeleteNode(id)
	if err != nil {
		return false, helper.NewError("delete pyramid item", err)
	}
	return deleted, nil
}

// SelectPyramidChildren retrieves items whose ALIGNS_TO edge points at id.
func (h *PyramidDBHandler) SelectPyramidChildren(id uuid.UUID) ([]*model.PyramidItem, error) {
	edgeType := model.EdgeTypeAlignsTo
	edges, err := h.edges.SelectEdgesTo(id, &edgeType)
	if err != nil {
		return nil, helper.NewError("select incoming aligns_to edges", err)
	}

	var children []*model.PyramidItem
	for _, edge := range edges {
		node, err := h.nodes.SelectNode(edge.FromID)
		if err != nil {
			return nil, helper.NewError("select child node", err)
		}
		item, err := nodeToPyramidItem(node)
		if err != nil {
			return nil, helper.NewError("convert child node", err)
		}
		children = append(children, item)
	}

	return children, nil
}

// SelectPyramidAncestors walks ALIGNS_TO edges upward from id, up to
// maxDepth hops, used by the alignment scorer's ancestor-chain term.
func (h *PyramidDBHandler) SelectPyramidAncestors(id uuid.UUID, maxDepth int) ([]*model.PyramidItem, error) {
	edgeType := model.EdgeTypeAlignsTo
	nodes, err := h.edges.TraverseBFS(id, maxDepth, &edgeType, false)
	if err != nil {
		return nil, helper.NewError("traverse aligns_to chain", err)
	}

	var ancestors []*model.PyramidItem
	for _, n := range nodes {
		node, err := h.nodes.SelectNode(n.NodeID)
		if err != nil {
			return nil, helper.NewError("select ancestor node", err)
		}
		if node.Type != model.NodeTypePyramidItem {
			continue
		}
		item, err := nodeToPyramidItem(node)
		if err != nil {
			return nil, helper.NewError("convert ancestor node", err)
		}
		ancestors = append(ancestors, item)
	}

	return ancestors, nil
}

// CountSupportingDocuments counts the SUPPORTS edges terminating at id
// — LinkDocumentToPyramidItem always creates SUPPORTS document->item,
// so "documents supporting e" is the edges incoming to e, not outgoing.
// Backs the alignment scorer's graphCoherence term.
func (h *PyramidDBHandler) CountSupportingDocuments(id uuid.UUID) (int, error) {
	edgeType := model.EdgeTypeSupports
	edges, err := h.edges.SelectEdgesTo(id, &edgeType)
	if err != nil {
		return 0, helper.NewError("count supporting documents", err)
	}
	return len(edges), nil
}

// LinkDocumentToPyramidItem records that a document (or chunk) node
// supports a pyramid item, used by the alignment scorer's graph-coherence
// term (via CountSupportingDocuments).
func (h *PyramidDBHandler) LinkDocumentToPyramidItem(documentNodeID uuid.UUID, itemID uuid.UUID, weight float64) error {
	edge := &model.GraphEdge{
		FromID: documentNodeID,
		ToID:   itemID,
		Type:   model.EdgeTypeSupports,
		Weight: weight,
	}
	if err := h.edges.UpsertEdge(edge); err != nil {
		return helper.NewError("link document to pyramid item", err)
	}
	return nil
}
