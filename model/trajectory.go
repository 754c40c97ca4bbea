package model

import (
	"time"

	"github.com/google/uuid"
)

// TrajectoryState is the lifecycle state machine a Trajectory moves
// through: Open -> Closed -> Consumed, each transition one-way.
type TrajectoryState string

const (
	TrajectoryOpen     TrajectoryState = "Open"
	TrajectoryClosed   TrajectoryState = "Closed"
	TrajectoryConsumed TrajectoryState = "Consumed"
)

// TrajectoryStep is one recorded (embedding, reward) pair of a query
// episode.
type TrajectoryStep struct {
	Embedding []float32 `json:"embedding"`
	Reward    float64   `json:"reward"` // in [0,1]
}

// Trajectory records one query episode for the cognitive engine.
// Steps may be appended only while State is Open; Quality is set exactly
// once at the Open->Closed transition.
type Trajectory struct {
	ID             uuid.UUID       `json:"id"`
	QueryEmbedding []float32       `json:"query_embedding"`
	RouteTag       string          `json:"route_tag,omitempty"`
	ContextIDs     []uuid.UUID     `json:"context_ids,omitempty"`
	Steps          []TrajectoryStep `json:"steps"`
	Quality        *float64        `json:"quality,omitempty"`
	State          TrajectoryState `json:"state"`
	CreatedAt      time.Time       `json:"created_at"`
	ClosedAt       *time.Time      `json:"closed_at,omitempty"`
}
