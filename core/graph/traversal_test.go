package graph

import (
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/knowledge/helper"
	"github.com/siherrmann/knowledge/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockGraphDB is an in-memory GraphDB for exercising the traversal and
// query logic without a database.
type mockGraphDB struct {
	nodes map[uuid.UUID]*model.GraphNode
	edges []*model.GraphEdge
}

func newMockGraphDB() *mockGraphDB {
	return &mockGraphDB{nodes: make(map[uuid.UUID]*model.GraphNode)}
}

func (m *mockGraphDB) addNode(n *model.GraphNode) { m.nodes[n.ID] = n }
func (m *mockGraphDB) addEdge(e *model.GraphEdge) { m.edges = append(m.edges, e) }

func (m *mockGraphDB) SelectNode(id uuid.UUID) (*model.GraphNode, error) {
	n, ok := m.nodes[id]
	if !ok {
		return nil, helper.NewError("select node", helper.ErrNotFound)
	}
	return n, nil
}

func (m *mockGraphDB) SelectNodesByType(nodeType model.NodeType, limit int) ([]*model.GraphNode, error) {
	var out []*model.GraphNode
	for _, n := range m.nodes {
		if n.Type == nodeType {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *mockGraphDB) SelectNodesByProperty(key string, value string) ([]*model.GraphNode, error) {
	var out []*model.GraphNode
	for _, n := range m.nodes {
		if s, ok := n.Properties[key].(string); ok && s == value {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *mockGraphDB) SelectEdgesFrom(nodeID uuid.UUID, edgeType *model.EdgeType) ([]*model.GraphEdge, error) {
	var out []*model.GraphEdge
	for _, e := range m.edges {
		if e.FromID != nodeID {
			continue
		}
		if edgeType != nil && e.Type != *edgeType {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *mockGraphDB) SelectEdgesTo(nodeID uuid.UUID, edgeType *model.EdgeType) ([]*model.GraphEdge, error) {
	var out []*model.GraphEdge
	for _, e := range m.edges {
		if e.ToID != nodeID {
			continue
		}
		if edgeType != nil && e.Type != *edgeType {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *mockGraphDB) SelectEdgesByType(edgeType model.EdgeType) ([]*model.GraphEdge, error) {
	var out []*model.GraphEdge
	for _, e := range m.edges {
		if e.Type == edgeType {
			out = append(out, e)
		}
	}
	return out, nil
}

func newGraphFixture() (*mockGraphDB, uuid.UUID, uuid.UUID, uuid.UUID, uuid.UUID) {
	db := newMockGraphDB()

	a := uuid.New()
	b := uuid.New()
	c := uuid.New()
	d := uuid.New()

	db.addNode(&model.GraphNode{ID: a, Type: model.NodeTypeDocument})
	db.addNode(&model.GraphNode{ID: b, Type: model.NodeTypeSection})
	db.addNode(&model.GraphNode{ID: c, Type: model.NodeTypeSection})
	db.addNode(&model.GraphNode{ID: d, Type: model.NodeTypeSection})

	// A -> B -> C, A -> D
	db.addEdge(&model.GraphEdge{ID: uuid.New(), FromID: a, ToID: b, Type: model.EdgeTypeParentOf, Weight: 1.0})
	db.addEdge(&model.GraphEdge{ID: uuid.New(), FromID: a, ToID: d, Type: model.EdgeTypeParentOf, Weight: 0.5})
	db.addEdge(&model.GraphEdge{ID: uuid.New(), FromID: b, ToID: c, Type: model.EdgeTypeParentOf, Weight: 1.0})

	return db, a, b, c, d
}

func TestBFS(t *testing.T) {
	db, a, b, c, d := newGraphFixture()

	t.Run("Max hops 1 reaches immediate neighbors only", func(t *testing.T) {
		results, err := BFS(db, a, 1, nil)
		require.NoError(t, err)
		require.Len(t, results, 3) // a, b, d
		assert.Equal(t, a, results[0].NodeID)
		assert.Equal(t, 0, results[0].Depth)
	})

	t.Run("Max hops 2 reaches the whole reachable set", func(t *testing.T) {
		results, err := BFS(db, a, 2, nil)
		require.NoError(t, err)

		depths := make(map[uuid.UUID]int)
		for _, r := range results {
			depths[r.NodeID] = r.Depth
		}
		assert.Equal(t, 0, depths[a])
		assert.Equal(t, 1, depths[b])
		assert.Equal(t, 1, depths[d])
		assert.Equal(t, 2, depths[c])
	})

	t.Run("Neighbors ordered by weight descending", func(t *testing.T) {
		results, err := BFS(db, a, 1, nil)
		require.NoError(t, err)
		require.Len(t, results, 3)
		// b (weight 1.0) must precede d (weight 0.5)
		assert.Equal(t, b, results[1].NodeID)
		assert.Equal(t, d, results[2].NodeID)
	})

	t.Run("Max hops 0 returns only the source", func(t *testing.T) {
		results, err := BFS(db, a, 0, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, a, results[0].NodeID)
	})

	t.Run("Edge type filter excludes non-matching edges", func(t *testing.T) {
		otherType := model.EdgeTypeCites
		results, err := BFS(db, a, 2, []model.EdgeType{otherType})
		require.NoError(t, err)
		require.Len(t, results, 1, "no CITES edges exist in the fixture")
	})

	t.Run("Unknown source returns an error", func(t *testing.T) {
		_, err := BFS(db, uuid.New(), 1, nil)
		assert.Error(t, err)
	})

	t.Run("Path accumulates edge endpoints from origin", func(t *testing.T) {
		results, err := BFS(db, a, 2, nil)
		require.NoError(t, err)
		for _, r := range results {
			if r.NodeID == c {
				assert.Equal(t, []uuid.UUID{a, b, c}, r.Path)
			}
		}
	})
}

func TestDFS(t *testing.T) {
	db, a, b, c, d := newGraphFixture()

	t.Run("Visits every reachable node within max hops", func(t *testing.T) {
		results, err := DFS(db, a, 2, nil)
		require.NoError(t, err)

		seen := make(map[uuid.UUID]bool)
		for _, r := range results {
			seen[r.NodeID] = true
		}
		assert.True(t, seen[a])
		assert.True(t, seen[b])
		assert.True(t, seen[c])
		assert.True(t, seen[d])
	})

	t.Run("Max hops 0 returns only the source", func(t *testing.T) {
		results, err := DFS(db, a, 0, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, a, results[0].NodeID)
	})

	t.Run("Unknown source returns an error", func(t *testing.T) {
		_, err := DFS(db, uuid.New(), 1, nil)
		assert.Error(t, err)
	})
}

func TestFindRelated(t *testing.T) {
	db, a, b, _, d := newGraphFixture()

	results, err := FindRelated(db, a, 1, nil)
	require.NoError(t, err)

	for _, r := range results {
		assert.NotEqual(t, a, r.NodeID, "source node should be excluded")
	}

	ids := make(map[uuid.UUID]bool)
	for _, r := range results {
		ids[r.NodeID] = true
	}
	assert.True(t, ids[b])
	assert.True(t, ids[d])
}

func TestFindRelatedOnIsolatedNode(t *testing.T) {
	db := newMockGraphDB()
	isolated := uuid.New()
	db.addNode(&model.GraphNode{ID: isolated, Type: model.NodeTypeEntity})

	results, err := FindRelated(db, isolated, 2, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
