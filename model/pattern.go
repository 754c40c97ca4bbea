package model

import (
	"time"

	"github.com/google/uuid"
)

// LearnedPattern is a consolidated trajectory-cluster centroid used by
// the cognitive engine's rerank. Embedding is unit-norm; the pattern
// store as a whole is bounded to a configured cap, evicted LRU by
// (frequency x average reward x recency decay).
type LearnedPattern struct {
	ID            uuid.UUID `json:"id"`
	Embedding     []float32 `json:"embedding"`
	Frequency     int       `json:"frequency"`
	AverageReward float64   `json:"average_reward"`
	LastUsedAt    time.Time `json:"last_used_at"`
	CreatedAt     time.Time `json:"created_at"`
}
