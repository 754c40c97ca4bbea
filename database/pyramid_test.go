package database

import (
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/knowledge/helper"
	"github.com/siherrmann/knowledge/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPyramidHandler(t *testing.T, database *helper.Database) (*PyramidDBHandler, *NodesDBHandler, *EdgesDBHandler) {
	t.Helper()
	nodesDbHandler, err := NewNodesDBHandler(database, true)
	require.NoError(t, err)
	edgesDbHandler, err := NewEdgesDBHandler(database, true)
	require.NoError(t, err)
	pyramidDbHandler, err := NewPyramidDBHandler(database, nodesDbHandler, edgesDbHandler)
	require.NoError(t, err)
	return pyramidDbHandler, nodesDbHandler, edgesDbHandler
}

func TestPyramidNewPyramidDBHandler(t *testing.T) {
	database := initDB(t)
	nodesDbHandler, err := NewNodesDBHandler(database, true)
	require.NoError(t, err)
	edgesDbHandler, err := NewEdgesDBHandler(database, true)
	require.NoError(t, err)

	t.Run("Valid call NewPyramidDBHandler", func(t *testing.T) {
		pyramidDbHandler, err := NewPyramidDBHandler(database, nodesDbHandler, edgesDbHandler)
		assert.NoError(t, err, "Expected NewPyramidDBHandler to not return an error")
		require.NotNil(t, pyramidDbHandler)
	})

	t.Run("Invalid call NewPyramidDBHandler with nil dependency", func(t *testing.T) {
		_, err := NewPyramidDBHandler(database, nil, edgesDbHandler)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "must all be non-nil")
	})
}

func TestPyramidInsert(t *testing.T) {
	database := initDB(t)
	pyramidDbHandler, nodesDbHandler, _ := newPyramidHandler(t, database)

	t.Run("Insert without parent", func(t *testing.T) {
		mission := &model.PyramidItem{
			OrgID: "acme-corp",
			Level: model.LevelMission,
			Name:  "Expand market reach",
		}

		err := pyramidDbHandler.InsertPyramidItem(mission)
		assert.NoError(t, err, "Expected InsertPyramidItem to not return an error")
		assert.NotEqual(t, uuid.Nil, mission.ID)
		assert.False(t, mission.CreatedAt.IsZero())

		nodesDbHandler.DeleteNode(mission.ID)
	})

	t.Run("Insert with parent creates an ALIGNS_TO edge", func(t *testing.T) {
		mission := &model.PyramidItem{OrgID: "acme-corp", Level: model.LevelMission, Name: "Mission"}
		require.NoError(t, pyramidDbHandler.InsertPyramidItem(mission))

		goal := &model.PyramidItem{
			OrgID:    "acme-corp",
			Level:    model.LevelGoal,
			Name:     "Grow revenue",
			ParentID: &mission.ID,
		}
		err := pyramidDbHandler.InsertPyramidItem(goal)
		assert.NoError(t, err)

		children, err := pyramidDbHandler.SelectPyramidChildren(mission.ID)
		require.NoError(t, err)
		require.Len(t, children, 1)
		assert.Equal(t, goal.ID, children[0].ID)

		nodesDbHandler.DeleteNode(mission.ID)
		nodesDbHandler.DeleteNode(goal.ID)
	})
}

func TestPyramidSelect(t *testing.T) {
	database := initDB(t)
	pyramidDbHandler, nodesDbHandler, _ := newPyramidHandler(t, database)

	item := &model.PyramidItem{
		OrgID:       "acme-corp",
		Level:       model.LevelObjective,
		Name:        "Launch v2",
		Description: "Ship the next major version",
	}
	require.NoError(t, pyramidDbHandler.InsertPyramidItem(item))

	t.Run("Select by id", func(t *testing.T) {
		retrieved, err := pyramidDbHandler.SelectPyramidItem(item.ID)
		assert.NoError(t, err)
		assert.Equal(t, item.Name, retrieved.Name)
		assert.Equal(t, model.LevelObjective, retrieved.Level)
		assert.Equal(t, "acme-corp", retrieved.OrgID)
	})

	t.Run("Select non-pyramid node is rejected", func(t *testing.T) {
		entity := &model.GraphNode{ID: uuid.New(), Type: model.NodeTypeEntity, Properties: model.Metadata{}}
		require.NoError(t, nodesDbHandler.InsertNode(entity))

		_, err := pyramidDbHandler.SelectPyramidItem(entity.ID)
		assert.Error(t, err)
		assert.ErrorIs(t, err, helper.ErrInvalidArgument)

		nodesDbHandler.DeleteNode(entity.ID)
	})

	nodesDbHandler.DeleteNode(item.ID)
}

func TestPyramidSelectByOrg(t *testing.T) {
	database := initDB(t)
	pyramidDbHandler, nodesDbHandler, _ := newPyramidHandler(t, database)

	itemA := &model.PyramidItem{OrgID: "org-select-by-org", Level: model.LevelGoal, Name: "Goal A"}
	itemB := &model.PyramidItem{OrgID: "org-select-by-org", Level: model.LevelGoal, Name: "Goal B"}
	otherOrg := &model.PyramidItem{OrgID: "other-org", Level: model.LevelGoal, Name: "Goal C"}
	require.NoError(t, pyramidDbHandler.InsertPyramidItem(itemA))
	require.NoError(t, pyramidDbHandler.InsertPyramidItem(itemB))
	require.NoError(t, pyramidDbHandler.InsertPyramidItem(otherOrg))

	items, err := pyramidDbHandler.SelectPyramidItemsByOrg("org-select-by-org", 10)
	assert.NoError(t, err)
	ids := make(map[uuid.UUID]bool)
	for _, item := range items {
		ids[item.ID] = true
	}
	assert.True(t, ids[itemA.ID])
	assert.True(t, ids[itemB.ID])
	assert.False(t, ids[otherOrg.ID])

	nodesDbHandler.DeleteNode(itemA.ID)
	nodesDbHandler.DeleteNode(itemB.ID)
	nodesDbHandler.DeleteNode(otherOrg.ID)
}

func TestPyramidUpdateAlignmentScore(t *testing.T) {
	database := initDB(t)
	pyramidDbHandler, nodesDbHandler, _ := newPyramidHandler(t, database)

	item := &model.PyramidItem{OrgID: "acme-corp", Level: model.LevelProject, Name: "Project X"}
	require.NoError(t, pyramidDbHandler.InsertPyramidItem(item))

	updated, err := pyramidDbHandler.UpdatePyramidAlignmentScore(item.ID, 0.82)
	assert.NoError(t, err, "Expected UpdatePyramidAlignmentScore to not return an error")
	assert.Equal(t, 0.82, updated.AlignmentScore)

	nodesDbHandler.DeleteNode(item.ID)
}

func TestPyramidAncestors(t *testing.T) {
	database := initDB(t)
	pyramidDbHandler, nodesDbHandler, _ := newPyramidHandler(t, database)

	mission := &model.PyramidItem{OrgID: "acme-corp", Level: model.LevelMission, Name: "Mission"}
	require.NoError(t, pyramidDbHandler.InsertPyramidItem(mission))

	goal := &model.PyramidItem{OrgID: "acme-corp", Level: model.LevelGoal, Name: "Goal", ParentID: &mission.ID}
	require.NoError(t, pyramidDbHandler.InsertPyramidItem(goal))

	project := &model.PyramidItem{OrgID: "acme-corp", Level: model.LevelProject, Name: "Project", ParentID: &goal.ID}
	require.NoError(t, pyramidDbHandler.InsertPyramidItem(project))

	ancestors, err := pyramidDbHandler.SelectPyramidAncestors(project.ID, 5)
	assert.NoError(t, err, "Expected SelectPyramidAncestors to not return an error")

	ids := make(map[uuid.UUID]bool)
	for _, a := range ancestors {
		ids[a.ID] = true
	}
	assert.True(t, ids[goal.ID])
	assert.True(t, ids[mission.ID])

	nodesDbHandler.DeleteNode(mission.ID)
	nodesDbHandler.DeleteNode(goal.ID)
	nodesDbHandler.DeleteNode(project.ID)
}

func TestPyramidLinkDocument(t *testing.T) {
	database := initDB(t)
	pyramidDbHandler, nodesDbHandler, edgesDbHandler := newPyramidHandler(t, database)

	item := &model.PyramidItem{OrgID: "acme-corp", Level: model.LevelGoal, Name: "Goal"}
	require.NoError(t, pyramidDbHandler.InsertPyramidItem(item))

	documentNode := &model.GraphNode{ID: uuid.New(), Type: model.NodeTypeDocument, Properties: model.Metadata{}}
	require.NoError(t, nodesDbHandler.InsertNode(documentNode))

	err := pyramidDbHandler.LinkDocumentToPyramidItem(documentNode.ID, item.ID, 0.9)
	assert.NoError(t, err, "Expected LinkDocumentToPyramidItem to not return an error")

	supportsType := model.EdgeTypeSupports
	edges, err := edgesDbHandler.SelectEdgesFrom(documentNode.ID, &supportsType)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, item.ID, edges[0].ToID)
	assert.Equal(t, 0.9, edges[0].Weight)

	nodesDbHandler.DeleteNode(item.ID)
	nodesDbHandler.DeleteNode(documentNode.ID)
}
