// Package graph provides breadth/depth-first traversal and a small
// Cypher-subset query layer over the node/edge store.
package graph

import (
	"sort"

	"github.com/google/uuid"
	"github.com/siherrmann/knowledge/model"
)

// GraphDB is the read surface core/graph needs from the node/edge
// store. A facade embedding *database.NodesDBHandler and
// *database.EdgesDBHandler satisfies it through promoted methods.
type GraphDB interface {
	SelectNode(id uuid.UUID) (*model.GraphNode, error)
	SelectNodesByType(nodeType model.NodeType, limit int) ([]*model.GraphNode, error)
	SelectNodesByProperty(key string, value string) ([]*model.GraphNode, error)
	SelectEdgesFrom(nodeID uuid.UUID, edgeType *model.EdgeType) ([]*model.GraphEdge, error)
	SelectEdgesTo(nodeID uuid.UUID, edgeType *model.EdgeType) ([]*model.GraphEdge, error)
	SelectEdgesByType(edgeType model.EdgeType) ([]*model.GraphEdge, error)
}

// neighbor pairs a node reachable in one outgoing hop with the edge that
// reached it.
type neighbor struct {
	nodeID uuid.UUID
	edge   *model.GraphEdge
}

// outgoingNeighbors returns every node one hop from nodeID via a
// matching edge type (any type if edgeTypes is empty), following only
// outgoing edges.
func outgoingNeighbors(db GraphDB, nodeID uuid.UUID, edgeTypes []model.EdgeType) ([]neighbor, error) {
	var edges []*model.GraphEdge
	if len(edgeTypes) == 0 {
		es, err := db.SelectEdgesFrom(nodeID, nil)
		if err != nil {
			return nil, err
		}
		edges = es
	} else {
		for _, t := range edgeTypes {
			t := t
			es, err := db.SelectEdgesFrom(nodeID, &t)
			if err != nil {
				return nil, err
			}
			edges = append(edges, es...)
		}
	}

	out := make([]neighbor, 0, len(edges))
	for _, e := range edges {
		out = append(out, neighbor{nodeID: e.ToID, edge: e})
	}
	return out, nil
}

// sortNeighbors orders by edge weight descending, then node id
// ascending, per the traversal ordering invariant.
func sortNeighbors(neighbors []neighbor) {
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].edge.Weight != neighbors[j].edge.Weight {
			return neighbors[i].edge.Weight > neighbors[j].edge.Weight
		}
		return neighbors[i].nodeID.String() < neighbors[j].nodeID.String()
	})
}

// BFS walks the graph outward from sourceID up to maxHops, visiting
// each reachable node once, filtered to edgeTypes if non-empty.
func BFS(db GraphDB, sourceID uuid.UUID, maxHops int, edgeTypes []model.EdgeType) ([]*model.TraversalNode, error) {
	if _, err := db.SelectNode(sourceID); err != nil {
		return nil, err
	}

	visited := map[uuid.UUID]bool{sourceID: true}
	queue := []*model.TraversalNode{{NodeID: sourceID, Depth: 0, Path: []uuid.UUID{sourceID}}}
	var results []*model.TraversalNode

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		results = append(results, current)

		if current.Depth >= maxHops {
			continue
		}

		neighbors, err := outgoingNeighbors(db, current.NodeID, edgeTypes)
		if err != nil {
			return nil, err
		}
		sortNeighbors(neighbors)

		for _, n := range neighbors {
			if visited[n.nodeID] {
				continue
			}
			visited[n.nodeID] = true

			path := make([]uuid.UUID, len(current.Path), len(current.Path)+1)
			copy(path, current.Path)
			path = append(path, n.nodeID)

			queue = append(queue, &model.TraversalNode{NodeID: n.nodeID, Depth: current.Depth + 1, Path: path})
		}
	}

	return results, nil
}

// DFS walks the graph outward from sourceID up to maxHops via
// depth-first recursion, filtered to edgeTypes if non-empty.
func DFS(db GraphDB, sourceID uuid.UUID, maxHops int, edgeTypes []model.EdgeType) ([]*model.TraversalNode, error) {
	if _, err := db.SelectNode(sourceID); err != nil {
		return nil, err
	}

	visited := map[uuid.UUID]bool{}
	var results []*model.TraversalNode

	if err := dfsRecursive(db, sourceID, 0, maxHops, []uuid.UUID{sourceID}, edgeTypes, visited, &results); err != nil {
		return nil, err
	}

	return results, nil
}

func dfsRecursive(
	db GraphDB,
	nodeID uuid.UUID,
	depth int,
	maxHops int,
	path []uuid.UUID,
	edgeTypes []model.EdgeType,
	visited map[uuid.UUID]bool,
	results *[]*model.TraversalNode,
) error {
	visited[nodeID] = true

	pathCopy := make([]uuid.UUID, len(path))
	copy(pathCopy, path)
	*results = append(*results, &model.TraversalNode{NodeID: nodeID, Depth: depth, Path: pathCopy})

	if depth >= maxHops {
		return nil
	}

	neighbors, err := outgoingNeighbors(db, nodeID, edgeTypes)
	if err != nil {
		return err
	}
	sortNeighbors(neighbors)

	for _, n := range neighbors {
		if visited[n.nodeID] {
			continue
		}

		newPath := make([]uuid.UUID, len(path), len(path)+1)
		copy(newPath, path)
		newPath = append(newPath, n.nodeID)

		if err := dfsRecursive(db, n.nodeID, depth+1, maxHops, newPath, edgeTypes, visited, results); err != nil {
			return err
		}
	}

	return nil
}

// FindRelated is BFS from nodeID to depth hops, restricted to
// edgeTypes if provided, excluding the source node itself.
func FindRelated(db GraphDB, nodeID uuid.UUID, depth int, edgeTypes []model.EdgeType) ([]*model.TraversalNode, error) {
	results, err := BFS(db, nodeID, depth, edgeTypes)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return results, nil
	}
	return results[1:], nil
}
