package database

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/knowledge/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEmbedding(seed float32) []float32 {
	embedding := make([]float32, 384)
	embedding[0] = seed
	return embedding
}

func TestPatternsNewPatternsDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewPatternsDBHandler", func(t *testing.T) {
		patternsDbHandler, err := NewPatternsDBHandler(database, true)
		assert.NoError(t, err, "Expected NewPatternsDBHandler to not return an error")
		require.NotNil(t, patternsDbHandler)
		require.NotNil(t, patternsDbHandler.db)
		require.NotNil(t, patternsDbHandler.db.Instance)
	})

	t.Run("Invalid call NewPatternsDBHandler with nil database", func(t *testing.T) {
		_, err := NewPatternsDBHandler(nil, false)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "database connection is nil")
	})
}

func TestPatternsInsert(t *testing.T) {
	database := initDB(t)

	patternsDbHandler, err := NewPatternsDBHandler(database, true)
	require.NoError(t, err)

	pattern := &model.LearnedPattern{
		Embedding:     newTestEmbedding(0.1),
		Frequency:     1,
		AverageReward: 0.6,
	}

	err = patternsDbHandler.InsertPattern(pattern)
	assert.NoError(t, err, "Expected InsertPattern to not return an error")
	assert.NotEqual(t, uuid.Nil, pattern.ID)
	assert.WithinDuration(t, pattern.CreatedAt, time.Now(), 2*time.Second)
	assert.WithinDuration(t, pattern.LastUsedAt, time.Now(), 2*time.Second)

	patternsDbHandler.DeletePattern(pattern.ID)
}

func TestPatternsSelectBySimilarity(t *testing.T) {
	database := initDB(t)

	patternsDbHandler, err := NewPatternsDBHandler(database, true)
	require.NoError(t, err)

	close := &model.LearnedPattern{Embedding: newTestEmbedding(0.9), Frequency: 3, AverageReward: 0.8}
	far := &model.LearnedPattern{Embedding: newTestEmbedding(-0.9), Frequency: 1, AverageReward: 0.2}
	require.NoError(t, patternsDbHandler.InsertPattern(close))
	require.NoError(t, patternsDbHandler.InsertPattern(far))

	query := newTestEmbedding(0.9)
	results, err := patternsDbHandler.SelectPatternsBySimilarity(query, 1)
	assert.NoError(t, err, "Expected SelectPatternsBySimilarity to not return an error")
	require.Len(t, results, 1)
	assert.Equal(t, close.ID, results[0].ID, "Expected the nearer pattern to rank first")

	patternsDbHandler.DeletePattern(close.ID)
	patternsDbHandler.DeletePattern(far.ID)
}

func TestPatternsUpdate(t *testing.T) {
	database := initDB(t)

	patternsDbHandler, err := NewPatternsDBHandler(database, true)
	require.NoError(t, err)

	pattern := &model.LearnedPattern{Embedding: newTestEmbedding(0.1), Frequency: 1, AverageReward: 0.5}
	require.NoError(t, patternsDbHandler.InsertPattern(pattern))

	pattern.Embedding = newTestEmbedding(0.2)
	pattern.Frequency = 2
	pattern.AverageReward = 0.7

	err = patternsDbHandler.UpdatePattern(pattern)
	assert.NoError(t, err, "Expected UpdatePattern to not return an error")
	assert.Equal(t, 2, pattern.Frequency)
	assert.Equal(t, 0.7, pattern.AverageReward)

	patternsDbHandler.DeletePattern(pattern.ID)
}

func TestPatternsCount(t *testing.T) {
	database := initDB(t)

	patternsDbHandler, err := NewPatternsDBHandler(database, true)
	require.NoError(t, err)

	before, err := patternsDbHandler.CountPatterns()
	require.NoError(t, err)

	pattern := &model.LearnedPattern{Embedding: newTestEmbedding(0.3), Frequency: 1, AverageReward: 0.4}
	require.NoError(t, patternsDbHandler.InsertPattern(pattern))

	after, err := patternsDbHandler.CountPatterns()
	assert.NoError(t, err, "Expected CountPatterns to not return an error")
	assert.Equal(t, before+1, after)

	patternsDbHandler.DeletePattern(pattern.ID)
}

func TestPatternsSelectToEvict(t *testing.T) {
	database := initDB(t)

	patternsDbHandler, err := NewPatternsDBHandler(database, true)
	require.NoError(t, err)

	weak := &model.LearnedPattern{Embedding: newTestEmbedding(0.4), Frequency: 1, AverageReward: 0.1}
	strong := &model.LearnedPattern{Embedding: newTestEmbedding(0.5), Frequency: 50, AverageReward: 0.95}
	require.NoError(t, patternsDbHandler.InsertPattern(weak))
	require.NoError(t, patternsDbHandler.InsertPattern(strong))

	evictable, err := patternsDbHandler.SelectPatternToEvict()
	assert.NoError(t, err, "Expected SelectPatternToEvict to not return an error")
	assert.Equal(t, weak.ID, evictable.ID, "Expected the weakest pattern by frequency x reward x recency to be chosen")

	patternsDbHandler.DeletePattern(weak.ID)
	patternsDbHandler.DeletePattern(strong.ID)
}

func TestPatternsDelete(t *testing.T) {
	database := initDB(t)

	patternsDbHandler, err := NewPatternsDBHandler(database, true)
	require.NoError(t, err)

	pattern := &model.LearnedPattern{Embedding: newTestEmbedding(0.6), Frequency: 1, AverageReward: 0.5}
	require.NoError(t, patternsDbHandler.InsertPattern(pattern))

	err = patternsDbHandler.DeletePattern(pattern.ID)
	assert.NoError(t, err, "Expected DeletePattern to not return an error")

	count, err := patternsDbHandler.SelectPatternsBySimilarity(pattern.Embedding, 100)
	require.NoError(t, err)
	for _, p := range count {
		assert.NotEqual(t, pattern.ID, p.ID, "Expected deleted pattern to no longer appear")
	}
}
