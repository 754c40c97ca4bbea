package database

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/knowledge/helper"
	"github.com/siherrmann/knowledge/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrajectoriesNewTrajectoriesDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewTrajectoriesDBHandler", func(t *testing.T) {
		trajectoriesDbHandler, err := NewTrajectoriesDBHandler(database, true)
		assert.NoError(t, err, "Expected NewTrajectoriesDBHandler to not return an error")
		require.NotNil(t, trajectoriesDbHandler)
		require.NotNil(t, trajectoriesDbHandler.db)
		require.NotNil(t, trajectoriesDbHandler.db.Instance)
	})

	t.Run("Invalid call NewTrajectoriesDBHandler with nil database", func(t *testing.T) {
		_, err := NewTrajectoriesDBHandler(nil, false)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "database connection is nil")
	})
}

func TestTrajectoriesBegin(t *testing.T) {
	database := initDB(t)

	trajectoriesDbHandler, err := NewTrajectoriesDBHandler(database, true)
	require.NoError(t, err)

	embedding := make([]float32, 384)
	embedding[0] = 0.1
	contextIDs := []uuid.UUID{uuid.New(), uuid.New()}

	trajectory, err := trajectoriesDbHandler.BeginTrajectory(embedding, "default", contextIDs)
	assert.NoError(t, err, "Expected BeginTrajectory to not return an error")
	require.NotNil(t, trajectory)
	assert.NotEqual(t, uuid.Nil, trajectory.ID)
	assert.Equal(t, model.TrajectoryOpen, trajectory.State)
	assert.Equal(t, "default", trajectory.RouteTag)
	assert.ElementsMatch(t, contextIDs, trajectory.ContextIDs)
	assert.Empty(t, trajectory.Steps)
	assert.Nil(t, trajectory.Quality)
	assert.WithinDuration(t, trajectory.CreatedAt, time.Now(), 2*time.Second)
}

func TestTrajectoriesAppendStep(t *testing.T) {
	database := initDB(t)

	trajectoriesDbHandler, err := NewTrajectoriesDBHandler(database, true)
	require.NoError(t, err)

	embedding := make([]float32, 384)
	trajectory, err := trajectoriesDbHandler.BeginTrajectory(embedding, "route", nil)
	require.NoError(t, err)

	t.Run("Append while open", func(t *testing.T) {
		step := model.TrajectoryStep{Embedding: embedding, Reward: 0.8}
		updated, err := trajectoriesDbHandler.AppendTrajectoryStep(trajectory.ID, step)
		assert.NoError(t, err)
		require.Len(t, updated.Steps, 1)
		assert.Equal(t, 0.8, updated.Steps[0].Reward)
	})

	t.Run("Append after close is rejected", func(t *testing.T) {
		_, err := trajectoriesDbHandler.CloseTrajectory(trajectory.ID, 0.5)
		require.NoError(t, err)

		step := model.TrajectoryStep{Embedding: embedding, Reward: 0.2}
		_, err = trajectoriesDbHandler.AppendTrajectoryStep(trajectory.ID, step)
		assert.Error(t, err)
		assert.ErrorIs(t, err, helper.ErrInvalidArgument)
	})
}

func TestTrajectoriesClose(t *testing.T) {
	database := initDB(t)

	trajectoriesDbHandler, err := NewTrajectoriesDBHandler(database, true)
	require.NoError(t, err)

	embedding := make([]float32, 384)

	t.Run("Close an open trajectory", func(t *testing.T) {
		trajectory, err := trajectoriesDbHandler.BeginTrajectory(embedding, "route", nil)
		require.NoError(t, err)

		closed, err := trajectoriesDbHandler.CloseTrajectory(trajectory.ID, 0.75)
		assert.NoError(t, err)
		assert.Equal(t, model.TrajectoryClosed, closed.State)
		require.NotNil(t, closed.Quality)
		assert.Equal(t, 0.75, *closed.Quality)
		assert.NotNil(t, closed.ClosedAt)
	})

	t.Run("Close an already closed trajectory is rejected", func(t *testing.T) {
		trajectory, err := trajectoriesDbHandler.BeginTrajectory(embedding, "route", nil)
		require.NoError(t, err)

		_, err = trajectoriesDbHandler.CloseTrajectory(trajectory.ID, 0.5)
		require.NoError(t, err)

		_, err = trajectoriesDbHandler.CloseTrajectory(trajectory.ID, 0.9)
		assert.Error(t, err)
		assert.ErrorIs(t, err, helper.ErrInvalidArgument)
	})
}

func TestTrajectoriesSelect(t *testing.T) {
	database := initDB(t)

	trajectoriesDbHandler, err := NewTrajectoriesDBHandler(database, true)
	require.NoError(t, err)

	embedding := make([]float32, 384)
	trajectory, err := trajectoriesDbHandler.BeginTrajectory(embedding, "route", nil)
	require.NoError(t, err)

	retrieved, err := trajectoriesDbHandler.SelectTrajectory(trajectory.ID)
	assert.NoError(t, err)
	assert.Equal(t, trajectory.ID, retrieved.ID)
}

func TestTrajectoriesSelectClosed(t *testing.T) {
	database := initDB(t)

	trajectoriesDbHandler, err := NewTrajectoriesDBHandler(database, true)
	require.NoError(t, err)

	embedding := make([]float32, 384)

	openTrajectory, err := trajectoriesDbHandler.BeginTrajectory(embedding, "open", nil)
	require.NoError(t, err)

	closedTrajectory, err := trajectoriesDbHandler.BeginTrajectory(embedding, "closed", nil)
	require.NoError(t, err)
	_, err = trajectoriesDbHandler.CloseTrajectory(closedTrajectory.ID, 0.6)
	require.NoError(t, err)

	closed, err := trajectoriesDbHandler.SelectClosedTrajectories(100)
	assert.NoError(t, err)

	ids := make(map[uuid.UUID]bool)
	for _, tr := range closed {
		ids[tr.ID] = true
		assert.Equal(t, model.TrajectoryClosed, tr.State)
	}
	assert.True(t, ids[closedTrajectory.ID])
	assert.False(t, ids[openTrajectory.ID])
}

func TestTrajectoriesMarkConsumedAndGC(t *testing.T) {
	database := initDB(t)

	trajectoriesDbHandler, err := NewTrajectoriesDBHandler(database, true)
	require.NoError(t, err)

	embedding := make([]float32, 384)

	trajectory, err := trajectoriesDbHandler.BeginTrajectory(embedding, "route", nil)
	require.NoError(t, err)
	_, err = trajectoriesDbHandler.CloseTrajectory(trajectory.ID, 0.4)
	require.NoError(t, err)

	err = trajectoriesDbHandler.MarkTrajectoriesConsumed([]uuid.UUID{trajectory.ID})
	assert.NoError(t, err, "Expected MarkTrajectoriesConsumed to not return an error")

	retrieved, err := trajectoriesDbHandler.SelectTrajectory(trajectory.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TrajectoryConsumed, retrieved.State)

	removed, err := trajectoriesDbHandler.GCConsumedTrajectories()
	assert.NoError(t, err, "Expected GCConsumedTrajectories to not return an error")
	assert.GreaterOrEqual(t, removed, 1)

	_, err = trajectoriesDbHandler.SelectTrajectory(trajectory.ID)
	assert.Error(t, err, "Expected trajectory to be gone after GC")
}
