package database

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/knowledge/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodesNewNodesDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewNodesDBHandler", func(t *testing.T) {
		nodesDbHandler, err := NewNodesDBHandler(database, true)
		assert.NoError(t, err, "Expected NewNodesDBHandler to not return an error")
		require.NotNil(t, nodesDbHandler)
		require.NotNil(t, nodesDbHandler.db)
		require.NotNil(t, nodesDbHandler.db.Instance)
	})

	t.Run("Invalid call NewNodesDBHandler with nil database", func(t *testing.T) {
		_, err := NewNodesDBHandler(nil, false)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "database connection is nil")
	})
}

func TestNodesInsert(t *testing.T) {
	database := initDB(t)

	nodesDbHandler, err := NewNodesDBHandler(database, true)
	require.NoError(t, err)

	t.Run("Insert node", func(t *testing.T) {
		node := &model.GraphNode{
			ID:         uuid.New(),
			Type:       model.NodeTypeEntity,
			Properties: model.Metadata{"name": "Ada Lovelace"},
		}

		err := nodesDbHandler.InsertNode(node)
		assert.NoError(t, err, "Expected InsertNode to not return an error")
		assert.WithinDuration(t, node.CreatedAt, time.Now(), 2*time.Second, "Expected CreatedAt to be set")
		assert.Equal(t, "Ada Lovelace", node.Properties["name"])

		nodesDbHandler.DeleteNode(node.ID)
	})

	t.Run("Insert with same id refreshes properties", func(t *testing.T) {
		id := uuid.New()
		node := &model.GraphNode{ID: id, Type: model.NodeTypeEntity, Properties: model.Metadata{"name": "first"}}
		err := nodesDbHandler.InsertNode(node)
		require.NoError(t, err)

		node2 := &model.GraphNode{ID: id, Type: model.NodeTypeEntity, Properties: model.Metadata{"name": "second"}}
		err = nodesDbHandler.InsertNode(node2)
		assert.NoError(t, err)

		retrieved, err := nodesDbHandler.SelectNode(id)
		require.NoError(t, err)
		assert.Equal(t, "second", retrieved.Properties["name"], "Expected properties to be refreshed on conflict")

		nodesDbHandler.DeleteNode(id)
	})
}

func TestNodesSelectByType(t *testing.T) {
	database := initDB(t)

	nodesDbHandler, err := NewNodesDBHandler(database, true)
	require.NoError(t, err)

	entityNode := &model.GraphNode{ID: uuid.New(), Type: model.NodeTypeEntity, Properties: model.Metadata{}}
	storyNode := &model.GraphNode{ID: uuid.New(), Type: model.NodeTypeStory, Properties: model.Metadata{}}
	require.NoError(t, nodesDbHandler.InsertNode(entityNode))
	require.NoError(t, nodesDbHandler.InsertNode(storyNode))

	t.Run("Filtered by type", func(t *testing.T) {
		nodes, err := nodesDbHandler.SelectNodesByType(model.NodeTypeEntity, 10)
		assert.NoError(t, err)
		ids := make(map[uuid.UUID]bool)
		for _, n := range nodes {
			ids[n.ID] = true
			assert.Equal(t, model.NodeTypeEntity, n.Type)
		}
		assert.True(t, ids[entityNode.ID])
		assert.False(t, ids[storyNode.ID])
	})

	t.Run("Empty type returns every type", func(t *testing.T) {
		nodes, err := nodesDbHandler.SelectNodesByType("", 100)
		assert.NoError(t, err)
		ids := make(map[uuid.UUID]bool)
		for _, n := range nodes {
			ids[n.ID] = true
		}
		assert.True(t, ids[entityNode.ID])
		assert.True(t, ids[storyNode.ID])
	})

	nodesDbHandler.DeleteNode(entityNode.ID)
	nodesDbHandler.DeleteNode(storyNode.ID)
}

func TestNodesSelectByProperty(t *testing.T) {
	database := initDB(t)

	nodesDbHandler, err := NewNodesDBHandler(database, true)
	require.NoError(t, err)

	node := &model.GraphNode{
		ID:         uuid.New(),
		Type:       model.NodeTypePyramidItem,
		Properties: model.Metadata{"org_id": "acme-corp"},
	}
	require.NoError(t, nodesDbHandler.InsertNode(node))

	nodes, err := nodesDbHandler.SelectNodesByProperty("org_id", "acme-corp")
	assert.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, node.ID, nodes[0].ID)

	nodesDbHandler.DeleteNode(node.ID)
}

func TestNodesUpdateProperties(t *testing.T) {
	database := initDB(t)

	nodesDbHandler, err := NewNodesDBHandler(database, true)
	require.NoError(t, err)

	node := &model.GraphNode{
		ID:         uuid.New(),
		Type:       model.NodeTypeEntity,
		Properties: model.Metadata{"name": "Grace Hopper", "role": "admiral"},
	}
	require.NoError(t, nodesDbHandler.InsertNode(node))

	updated, err := nodesDbHandler.UpdateNodeProperties(node.ID, model.Metadata{"role": "rear admiral"})
	assert.NoError(t, err)
	assert.Equal(t, "rear admiral", updated.Properties["role"], "Expected merge to overwrite the role key")
	assert.Equal(t, "Grace Hopper", updated.Properties["name"], "Expected merge to preserve untouched keys")

	nodesDbHandler.DeleteNode(node.ID)
}

func TestNodesDelete(t *testing.T) {
	database := initDB(t)

	nodesDbHandler, err := NewNodesDBHandler(database, true)
	require.NoError(t, err)

	node := &model.GraphNode{ID: uuid.New(), Type: model.NodeTypeEntity, Properties: model.Metadata{}}
	require.NoError(t, nodesDbHandler.InsertNode(node))

	deleted, err := nodesDbHandler.DeleteNode(node.ID)
	assert.NoError(t, err)
	assert.True(t, deleted)

	_, err = nodesDbHandler.SelectNode(node.ID)
	assert.Error(t, err, "Expected Get to return an error for deleted node")

	t.Run("Delete nonexistent node", func(t *testing.T) {
		deleted, err := nodesDbHandler.DeleteNode(uuid.New())
		assert.NoError(t, err)
		assert.False(t, deleted)
	})
}
