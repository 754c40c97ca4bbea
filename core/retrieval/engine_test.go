package retrieval

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/knowledge/helper"
	"github.com/siherrmann/knowledge/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockChunksDB is an in-memory ChunksDB stub: SelectChunksBySimilarity
// returns the configured chunks truncated to limit, already in caller
// order (the fixtures set up descending similarity themselves).
type mockChunksDB struct {
	chunks []*model.Chunk
}

func (m *mockChunksDB) SelectChunksBySimilarity(embedding []float32, limit int, threshold float64, documentRIDs []uuid.UUID) ([]*model.Chunk, error) {
	if limit > len(m.chunks) {
		limit = len(m.chunks)
	}
	return m.chunks[:limit], nil
}

// mockGraphDB is an in-memory graph.GraphDB for exercising expansion
// without a database.
type mockGraphDB struct {
	nodes map[uuid.UUID]*model.GraphNode
	edges []*model.GraphEdge
}

func newMockGraphDB() *mockGraphDB { return &mockGraphDB{nodes: map[uuid.UUID]*model.GraphNode{}} }

func (m *mockGraphDB) addNode(id uuid.UUID) {
	m.nodes[id] = &model.GraphNode{ID: id, Type: model.NodeTypeChunk}
}

func (m *mockGraphDB) addEdge(from, to uuid.UUID, weight float64) {
	m.edges = append(m.edges, &model.GraphEdge{FromID: from, ToID: to, Type: model.EdgeTypeRelatesTo, Weight: weight})
}

func (m *mockGraphDB) SelectNode(id uuid.UUID) (*model.GraphNode, error) {
	n, ok := m.nodes[id]
	if !ok {
		return nil, helper.NewError("select node", helper.ErrNotFound)
	}
	return n, nil
}

func (m *mockGraphDB) SelectNodesByType(nodeType model.NodeType, limit int) ([]*model.GraphNode, error) {
	return nil, nil
}

func (m *mockGraphDB) SelectNodesByProperty(key, value string) ([]*model.GraphNode, error) {
	return nil, nil
}

func (m *mockGraphDB) SelectEdgesFrom(nodeID uuid.UUID, edgeType *model.EdgeType) ([]*model.GraphEdge, error) {
	var out []*model.GraphEdge
	for _, e := range m.edges {
		if e.FromID == nodeID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockGraphDB) SelectEdgesTo(nodeID uuid.UUID, edgeType *model.EdgeType) ([]*model.GraphEdge, error) {
	return nil, nil
}

func (m *mockGraphDB) SelectEdgesByType(edgeType model.EdgeType) ([]*model.GraphEdge, error) {
	return nil, nil
}

func TestVectorSearch(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	simA, simB := 0.9, 0.5
	chunksDB := &mockChunksDB{chunks: []*model.Chunk{
		{ID: a, Content: "alpha", Similarity: &simA},
		{ID: b, Content: "beta", Similarity: &simB},
	}}

	engine := NewEngine(chunksDB, newMockGraphDB(), nil)
	cfg := &model.QueryConfig{TopK: 5, VectorWeight: 1.0}

	results, err := engine.VectorSearch([]float32{1, 0}, cfg)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, a, results[0].NodeID)
	assert.Equal(t, 0.9, results[0].VectorScore)
	assert.Equal(t, 0.9, results[0].CombinedScore)
}

func TestSearchPureVectorWhenGraphDepthZero(t *testing.T) {
	a := uuid.New()
	sim := 0.8
	chunksDB := &mockChunksDB{chunks: []*model.Chunk{{ID: a, Similarity: &sim}}}

	engine := NewEngine(chunksDB, newMockGraphDB(), nil)
	cfg := &model.QueryConfig{TopK: 5, VectorWeight: 0.6, IncludeRelated: true, GraphDepth: 0}

	results, err := engine.Search(context.Background(), []float32{1, 0}, cfg)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0.0, results[0].GraphScore)
	assert.InDelta(t, 0.6*0.8, results[0].CombinedScore, 1e-9)
}

func TestSearchFusesGraphNeighbors(t *testing.T) {
	x, y := uuid.New(), uuid.New()
	sim := 1.0
	chunksDB := &mockChunksDB{chunks: []*model.Chunk{{ID: x, Similarity: &sim}}}

	g := newMockGraphDB()
	g.addNode(x)
	g.addNode(y)
	g.addEdge(x, y, 1.0)

	engine := NewEngine(chunksDB, g, nil)
	cfg := &model.QueryConfig{TopK: 2, VectorWeight: 0.5, IncludeRelated: true, GraphDepth: 1}

	results, err := engine.Search(context.Background(), []float32{1, 0}, cfg)
	require.NoError(t, err)
	require.Len(t, results, 2)

	var xResult, yResult *model.RetrievalResult
	for _, r := range results {
		if r.NodeID == x {
			xResult = r
		}
		if r.NodeID == y {
			yResult = r
		}
	}
	require.NotNil(t, xResult)
	require.NotNil(t, yResult)
	assert.GreaterOrEqual(t, yResult.GraphScore, 0.5)
	assert.Contains(t, xResult.RelatedNodeIDs, y)
}

func TestSearchDeterministicTieBreakByID(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	ids := []uuid.UUID{a, b}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	sim := 0.5
	chunksDB := &mockChunksDB{chunks: []*model.Chunk{{ID: ids[0], Similarity: &sim}, {ID: ids[1], Similarity: &sim}}}

	engine := NewEngine(chunksDB, newMockGraphDB(), nil)
	results, err := engine.VectorSearch([]float32{1, 0}, &model.QueryConfig{TopK: 2, VectorWeight: 1.0})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, ids[0], results[0].NodeID)
	assert.Equal(t, ids[1], results[1].NodeID)
}

func TestSearchRerankUnavailableWhenNoReranker(t *testing.T) {
	sim := 0.5
	chunksDB := &mockChunksDB{chunks: []*model.Chunk{{ID: uuid.New(), Similarity: &sim}}}

	engine := NewEngine(chunksDB, newMockGraphDB(), nil)
	_, err := engine.Search(context.Background(), []float32{1, 0}, &model.QueryConfig{TopK: 1, VectorWeight: 1.0, Rerank: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, helper.ErrRerankUnavailable))
}

func TestSearchEmptyCorpusReturnsEmptySlice(t *testing.T) {
	engine := NewEngine(&mockChunksDB{}, newMockGraphDB(), nil)
	results, err := engine.Search(context.Background(), []float32{1, 0}, &model.QueryConfig{TopK: 5, VectorWeight: 0.5})
	require.NoError(t, err)
	assert.Empty(t, results)
}
