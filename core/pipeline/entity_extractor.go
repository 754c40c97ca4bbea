package pipeline

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/siherrmann/knowledge/helper"
	"github.com/siherrmann/knowledge/model"
)

// entityNamespace scopes deterministic entity node ids so the same
// (name, type) pair always maps to the same node across extractions.
var entityNamespace = uuid.MustParse("6f5b3f2a-6e63-4b0a-9b8d-6a1c0e9f9a11")

func uuidFromSeed(key string) uuid.UUID {
	return uuid.NewSHA1(entityNamespace, []byte(key))
}

// EntityExtractFunc pulls named entities out of free text as Entity-typed
// graph nodes, an enrichment BuildGraph does not perform itself.
type EntityExtractFunc func(text string) ([]*model.GraphNode, error)

// DefaultEntityExtractor creates an entity extractor using distilbert-NER.
// Detects PERSON, ORGANIZATION, LOCATION and MISC entities and emits one
// GraphNode (NodeTypeEntity) per deduplicated (name, type) pair.
func DefaultEntityExtractor() (EntityExtractFunc, error) {
	modelName := "KnightsAnalytics/distilbert-NER"
	modelPath, err := helper.PrepareModel(modelName, "model.onnx")
	if err != nil {
		return nil, helper.NewError("prepare entity model", fmt.Errorf("%w: %v", helper.ErrEmbeddingUnavailable, err))
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, helper.NewError("create hugot session", err)
	}

	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "ner-pipeline",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}),
		},
	}
	nerPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		session.Destroy()
		return nil, helper.NewError("create ner pipeline", err)
	}

	return func(text string) ([]*model.GraphNode, error) {
		result, err := nerPipeline.RunPipeline([]string{text})
		if err != nil {
			return nil, helper.NewError("run ner pipeline", err)
		}
		if len(result.Entities) == 0 {
			return nil, nil
		}

		seen := make(map[string]*model.GraphNode)
		for _, entity := range result.Entities[0] {
			entityType := normalizeEntityType(entity.Entity)
			name := strings.TrimSpace(entity.Word)
			if !isValidEntity(name) {
				continue
			}

			key := strings.ToLower(name) + "|" + entityType
			existing, found := seen[key]
			confidence := float64(entity.Score)
			if found {
				if prior, ok := existing.Properties["confidence"].(float64); ok && confidence <= prior {
					continue
				}
			}

			seen[key] = &model.GraphNode{
				ID:   uuidFromSeed(key),
				Type: model.NodeTypeEntity,
				Properties: model.Metadata{
					"name":       name,
					"entityType": entityType,
					"confidence": confidence,
					"start":      entity.Start,
					"end":        entity.End,
				},
			}
		}

		nodes := make([]*model.GraphNode, 0, len(seen))
		for _, node := range seen {
			nodes = append(nodes, node)
		}
		return nodes, nil
	}, nil
}

// isValidEntity filters empty, punctuation-only and tokenization-artifact
// entity spans.
func isValidEntity(name string) bool {
	if len(name) < 2 {
		return false
	}
	cleaned := strings.TrimFunc(name, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'))
	})
	if len(cleaned) < 2 {
		return false
	}
	return !strings.HasPrefix(name, "#")
}

// normalizeEntityType removes BIO tagging prefixes (B-/I-) from NER labels.
func normalizeEntityType(label string) string {
	if strings.HasPrefix(label, "B-") || strings.HasPrefix(label, "I-") {
		return label[2:]
	}
	return label
}
