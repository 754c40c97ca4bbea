package model

import (
	"time"

	"github.com/google/uuid"
)

// PyramidLevel is one of the eight strict, ordered strategic tiers,
// mission being the broadest (L0) and task the narrowest (L7).
type PyramidLevel int

const (
	LevelMission PyramidLevel = iota
	LevelVision
	LevelObjective
	LevelGoal
	LevelPortfolio
	LevelProgram
	LevelProject
	LevelTask
)

func (l PyramidLevel) String() string {
	switch l {
	case LevelMission:
		return "mission"
	case LevelVision:
		return "vision"
	case LevelObjective:
		return "objective"
	case LevelGoal:
		return "goal"
	case LevelPortfolio:
		return "portfolio"
	case LevelProgram:
		return "program"
	case LevelProject:
		return "project"
	case LevelTask:
		return "task"
	default:
		return "unknown"
	}
}

// ParsePyramidLevel maps a level name back to its PyramidLevel, the
// second return value reporting whether the name was recognized.
func ParsePyramidLevel(name string) (PyramidLevel, bool) {
	levels := []PyramidLevel{
		LevelMission, LevelVision, LevelObjective, LevelGoal,
		LevelPortfolio, LevelProgram, LevelProject, LevelTask,
	}
	for _, l := range levels {
		if l.String() == name {
			return l, true
		}
	}
	return -1, false
}

// PyramidItem overlays a GraphNode of type NodeTypePyramidItem with
// strategic-alignment semantics. ParentID is nullable only at
// LevelMission; exactly one mission exists per OrgID.
type PyramidItem struct {
	ID             uuid.UUID    `json:"id"`
	OrgID          string       `json:"org_id"`
	Level          PyramidLevel `json:"level"`
	ParentID       *uuid.UUID   `json:"parent_id,omitempty"`
	Name           string       `json:"name"`
	Description    string       `json:"description"`
	AlignmentScore float64      `json:"alignment_score"`
	DocumentIDs    []uuid.UUID  `json:"document_ids,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// AlignmentBucket classifies an alignment score for reporting.
type AlignmentBucket string

const (
	BucketAligned  AlignmentBucket = "aligned"
	BucketAtRisk   AlignmentBucket = "atRisk"
	BucketDrifting AlignmentBucket = "drifting"
)

// BucketForScore returns the reporting bucket for an alignment score.
func BucketForScore(score float64) AlignmentBucket {
	switch {
	case score >= 0.70:
		return BucketAligned
	case score >= 0.40:
		return BucketAtRisk
	default:
		return BucketDrifting
	}
}

// DriftSeverity classifies 1-alignmentScore for alerting.
type DriftSeverity string

const (
	DriftCritical DriftSeverity = "critical"
	DriftHigh     DriftSeverity = "high"
	DriftMedium   DriftSeverity = "medium"
	DriftLow      DriftSeverity = "low"
)

// SeverityForDrift buckets a drift score (1-alignmentScore).
func SeverityForDrift(drift float64) DriftSeverity {
	switch {
	case drift < 0.20:
		return DriftCritical
	case drift < 0.40:
		return DriftHigh
	case drift < 0.60:
		return DriftMedium
	default:
		return DriftLow
	}
}
