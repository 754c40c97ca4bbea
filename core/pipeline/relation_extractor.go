package pipeline

import (
	"github.com/siherrmann/knowledge/model"
)

// RelationExtractFunc derives RELATES_TO edges between entities detected
// in the same chunk. Citation and link edges come from BuildGraph
// instead, which resolves them against the corpus rather than guessing
// from proximity alone.
type RelationExtractFunc func(chunkPath string, entities []*model.GraphNode) []*model.GraphEdge

// DefaultRelationExtractor creates a co-occurrence relation extractor:
// entities whose NER spans fall within coOccurrenceWindow characters of
// each other are linked by a RELATES_TO edge whose weight decays with
// distance, grounded on the teacher's proximity-weighting formula.
func DefaultRelationExtractor() RelationExtractFunc {
	return func(chunkPath string, entities []*model.GraphNode) []*model.GraphEdge {
		var edges []*model.GraphEdge

		for i := 0; i < len(entities); i++ {
			for j := i + 1; j < len(entities); j++ {
				start1, ok1 := entities[i].Properties["start"].(uint)
				start2, ok2 := entities[j].Properties["start"].(uint)
				if !ok1 || !ok2 {
					continue
				}

				distance := int(start2) - int(start1)
				if distance < 0 {
					distance = -distance
				}
				if distance >= coOccurrenceWindow {
					continue
				}

				edges = append(edges, &model.GraphEdge{
					FromID: entities[i].ID,
					ToID:   entities[j].ID,
					Type:   model.EdgeTypeRelatesTo,
					Weight: coOccurrenceWeight(distance),
					Properties: model.Metadata{
						"distance": distance,
						"context":  chunkPath,
					},
				})
			}
		}

		return edges
	}
}

const coOccurrenceWindow = 100

// coOccurrenceWeight decays linearly from 1.0 at distance 0 to 0.0 at
// distance 200 and beyond.
func coOccurrenceWeight(distance int) float64 {
	weight := 1.0 - (float64(distance) / 200.0)
	if weight < 0 {
		return 0
	}
	return weight
}
