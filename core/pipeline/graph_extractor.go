package pipeline

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/knowledge/core/parser"
	"github.com/siherrmann/knowledge/model"
)

var derivationKeywords = []string{"summary", "abstract", "notes", "translation", "digest"}

// BuildGraph turns a set of parsed documents into a node set (one
// Document node per input, one Section node per section) and an edge
// set following six rules: hierarchy, citations, intra-corpus links,
// semantic tags, derivations, and max-weight deduplication. It is a
// pure, synchronous pass — no I/O, no embedding calls.
func BuildGraph(docs []*parser.ParsedDocument) ([]*model.GraphNode, []*model.GraphEdge, error) {
	var nodes []*model.GraphNode
	var edges []*model.GraphEdge

	titleIndex := make(map[string]*parser.ParsedDocument)
	sourceIndex := make(map[string]*parser.ParsedDocument)
	citationKeyIndex := make(map[string]*parser.ParsedDocument)

	for _, doc := range docs {
		nodes = append(nodes, documentNode(doc))
		nodes = append(nodes, sectionNodes(doc.Sections)...)
		edges = append(edges, hierarchyEdges(doc)...)

		if doc.Metadata.Title != "" {
			titleIndex[strings.ToLower(doc.Metadata.Title)] = doc
		}
		if doc.Source != "" {
			sourceIndex[strings.ToLower(filepath.Base(doc.Source))] = doc
		}
		if key, ok := doc.Metadata.Custom["citationKey"].(string); ok && key != "" {
			citationKeyIndex[strings.ToLower(key)] = doc
		}
	}

	for _, doc := range docs {
		citationNodes, citationEdges := citationEdges(doc, citationKeyIndex, titleIndex)
		nodes = append(nodes, citationNodes...)
		edges = append(edges, citationEdges...)
		edges = append(edges, linkEdges(doc, titleIndex, sourceIndex)...)
	}

	edges = append(edges, semanticTagEdges(docs)...)
	edges = append(edges, derivationEdges(docs, titleIndex)...)

	return nodes, dedupeEdges(edges), nil
}

func documentNode(doc *parser.ParsedDocument) *model.GraphNode {
	return &model.GraphNode{
		ID:   doc.ID,
		Type: model.NodeTypeDocument,
		Properties: model.Metadata{
			"title":  doc.Metadata.Title,
			"author": doc.Metadata.Author,
			"tags":   doc.Metadata.Tags,
		},
	}
}

func sectionNodes(sections []*model.Section) []*model.GraphNode {
	var nodes []*model.GraphNode
	for _, s := range sections {
		nodes = append(nodes, &model.GraphNode{
			ID:   s.ID,
			Type: model.NodeTypeSection,
			Properties: model.Metadata{
				"heading": s.Heading,
				"level":   s.Level,
			},
		})
		nodes = append(nodes, sectionNodes(s.Children)...)
	}
	return nodes
}

// hierarchyEdges emits PARENT_OF document->top-section->...->leaf at
// weight 1.0, walking each section tree depth-first.
func hierarchyEdges(doc *parser.ParsedDocument) []*model.GraphEdge {
	var edges []*model.GraphEdge
	var walk func(parentID uuid.UUID, sections []*model.Section)
	walk = func(parentID uuid.UUID, sections []*model.Section) {
		for _, s := range sections {
			edges = append(edges, &model.GraphEdge{
				FromID: parentID,
				ToID:   s.ID,
				Type:   model.EdgeTypeParentOf,
				Weight: 1.0,
			})
			walk(s.ID, s.Children)
		}
	}
	walk(doc.ID, doc.Sections)
	return edges
}

// citationNamespace scopes synthetic "cite-<key>" node ids so repeated
// unresolved citations to the same key collapse onto one node.
var citationNamespace = uuid.MustParse("9c6a9c1e-2e9b-4d3b-8a0d-2e6a0f9b7c22")

func syntheticCitationID(key string) uuid.UUID {
	return uuid.NewSHA1(citationNamespace, []byte("cite-"+strings.ToLower(key)))
}

func citationEdges(doc *parser.ParsedDocument, citationKeyIndex, titleIndex map[string]*parser.ParsedDocument) ([]*model.GraphNode, []*model.GraphEdge) {
	var nodes []*model.GraphNode
	var edges []*model.GraphEdge

	for _, link := range doc.Links {
		if link.Type != parser.LinkCitation {
			continue
		}

		key := link.Target
		weight, kind := citationWeight(key)

		target := citationKeyIndex[strings.ToLower(strings.TrimPrefix(key, "@"))]
		if target == nil {
			target = titleIndex[strings.ToLower(key)]
		}

		var targetID uuid.UUID
		if target != nil {
			targetID = target.ID
		} else {
			targetID = syntheticCitationID(key)
			nodes = append(nodes, &model.GraphNode{
				ID:   targetID,
				Type: model.NodeTypeDocument,
				Properties: model.Metadata{
					"synthetic":    true,
					"citationKey":  key,
					"citationKind": kind,
				},
			})
		}

		edges = append(edges, &model.GraphEdge{
			FromID: doc.ID,
			ToID:   targetID,
			Type:   model.EdgeTypeCites,
			Weight: weight,
			Properties: model.Metadata{
				"context": link.Context,
			},
		})
	}

	return nodes, edges
}

// citationWeight classifies a citation key as numeric, author-year, or
// bibtex and returns the corresponding fixed weight.
func citationWeight(key string) (float64, string) {
	if strings.HasPrefix(key, "@") {
		return 0.95, "bibtex"
	}
	if _, err := strconv.Atoi(key); err == nil {
		return 0.8, "numeric"
	}
	return 0.9, "author_year"
}

// linkEdges resolves wikilinks and markdown local links into LINKS_TO
// edges. Wikilinks resolve by title (exact, then substring), then by
// filename; markdown links resolve by relative path/filename. Unresolved
// links are dropped.
func linkEdges(doc *parser.ParsedDocument, titleIndex, sourceIndex map[string]*parser.ParsedDocument) []*model.GraphEdge {
	var edges []*model.GraphEdge

	for _, link := range doc.Links {
		var target *parser.ParsedDocument
		var weight float64

		switch link.Type {
		case parser.LinkWikilink:
			weight = 0.85
			key := strings.ToLower(link.Target)
			if t, ok := titleIndex[key]; ok {
				target = t
			} else {
				for title, t := range titleIndex {
					if strings.Contains(title, key) || strings.Contains(key, title) {
						target = t
						break
					}
				}
			}
			if target == nil {
				target = sourceIndex[strings.ToLower(filepath.Base(link.Target))]
			}
		case parser.LinkMarkdown:
			weight = 0.9
			target = sourceIndex[strings.ToLower(filepath.Base(link.Target))]
		default:
			continue
		}

		if target == nil || target.ID == doc.ID {
			continue
		}

		edges = append(edges, &model.GraphEdge{
			FromID: doc.ID,
			ToID:   target.ID,
			Type:   model.EdgeTypeLinksTo,
			Weight: weight,
			Properties: model.Metadata{
				"context": link.Context,
			},
		})
	}

	return edges
}

// semanticTagEdges links every pair of documents sharing at least one
// tag with a RELATES_TO edge weighted by tag-set overlap, capped at 0.9.
func semanticTagEdges(docs []*parser.ParsedDocument) []*model.GraphEdge {
	var edges []*model.GraphEdge

	for i := 0; i < len(docs); i++ {
		for j := i + 1; j < len(docs); j++ {
			a, b := docs[i], docs[j]
			shared := sharedTagCount(a.Metadata.Tags, b.Metadata.Tags)
			if shared == 0 {
				continue
			}

			maxLen := len(a.Metadata.Tags)
			if len(b.Metadata.Tags) > maxLen {
				maxLen = len(b.Metadata.Tags)
			}
			if maxLen == 0 {
				continue
			}

			weight := float64(shared) / float64(maxLen)
			if weight > 0.9 {
				weight = 0.9
			}

			edges = append(edges, &model.GraphEdge{
				FromID: a.ID,
				ToID:   b.ID,
				Type:   model.EdgeTypeRelatesTo,
				Weight: weight,
			})
		}
	}

	return edges
}

func sharedTagCount(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, tag := range a {
		set[strings.ToLower(tag)] = true
	}
	count := 0
	for _, tag := range b {
		if set[strings.ToLower(tag)] {
			count++
		}
	}
	return count
}

// derivationEdges emits DERIVED_FROM when a title contains a derivation
// keyword and, after removing it, substring-matches another document's
// title.
func derivationEdges(docs []*parser.ParsedDocument, titleIndex map[string]*parser.ParsedDocument) []*model.GraphEdge {
	var edges []*model.GraphEdge

	for _, doc := range docs {
		lowerTitle := strings.ToLower(doc.Metadata.Title)
		for _, keyword := range derivationKeywords {
			if !strings.Contains(lowerTitle, keyword) {
				continue
			}

			stripped := strings.TrimSpace(strings.ReplaceAll(lowerTitle, keyword, ""))
			if stripped == "" {
				continue
			}

			for title, other := range titleIndex {
				if other.ID == doc.ID {
					continue
				}
				if strings.Contains(title, stripped) || strings.Contains(stripped, title) {
					edges = append(edges, &model.GraphEdge{
						FromID: doc.ID,
						ToID:   other.ID,
						Type:   model.EdgeTypeDerivedFrom,
						Weight: 0.85,
					})
					break
				}
			}
			break
		}
	}

	return edges
}

// dedupeEdges retains, for every (from, to, type) triple, the edge with
// the highest weight.
func dedupeEdges(edges []*model.GraphEdge) []*model.GraphEdge {
	type key struct {
		from uuid.UUID
		to   uuid.UUID
		typ  model.EdgeType
	}

	best := make(map[key]*model.GraphEdge)
	for _, e := range edges {
		k := key{e.FromID, e.ToID, e.Type}
		if existing, ok := best[k]; !ok || e.Weight > existing.Weight {
			best[k] = e
		}
	}

	out := make([]*model.GraphEdge, 0, len(best))
	for _, e := range best {
		out = append(out, e)
	}
	return out
}
