// Package retrieval fuses vector similarity search over chunks with
// graph-walk expansion over the node/edge store into one ranked,
// score-annotated result list.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/siherrmann/knowledge/core/graph"
	"github.com/siherrmann/knowledge/helper"
	"github.com/siherrmann/knowledge/model"
)

// ChunksDB is the read surface the engine needs from the vector store.
type ChunksDB interface {
	SelectChunksBySimilarity(embedding []float32, limit int, threshold float64, documentRIDs []uuid.UUID) ([]*model.Chunk, error)
}

// Reranker is the narrow capability core/cognitive's Engine satisfies.
// Declared here rather than imported to avoid a retrieval<->cognitive
// import cycle (cognitive never needs to know about retrieval).
type Reranker interface {
	Rerank(ctx context.Context, queryEmbedding []float32, candidates []*model.RetrievalResult, k int) ([]*model.RetrievalResult, error)
}

// Engine executes hybrid search: vector retrieval, optional graph
// expansion, score fusion, and optional neural rerank.
type Engine struct {
	chunks  ChunksDB
	graphDB graph.GraphDB
	rerank  Reranker
}

// NewEngine builds an Engine over the given chunk and graph read
// surfaces. rerank may be nil; Search then fails with
// ErrRerankUnavailable whenever a caller asks for rerank=true.
func NewEngine(chunks ChunksDB, graphDB graph.GraphDB, rerank Reranker) *Engine {
	return &Engine{chunks: chunks, graphDB: graphDB, rerank: rerank}
}

// VectorSearch performs pure vector similarity search, with no graph
// expansion or rerank — the degenerate case of Search with
// graphDepth=0, kept as its own entry point for the facade's
// vectorSearch operation.
func (e *Engine) VectorSearch(queryEmbedding []float32, cfg *model.QueryConfig) ([]*model.RetrievalResult, error) {
	chunks, err := e.chunks.SelectChunksBySimilarity(queryEmbedding, cfg.TopK, cfg.SimilarityThreshold, cfg.DocumentRIDs)
	if err != nil {
		return nil, helper.NewError("vector search", err)
	}

	results := make([]*model.RetrievalResult, 0, len(chunks))
	for _, c := range chunks {
		score := 0.0
		if c.Similarity != nil {
			score = *c.Similarity
		}
		chunkID := c.ID
		results = append(results, &model.RetrievalResult{
			NodeID:          c.ID,
			ChunkID:         &chunkID,
			Content:         c.Content,
			VectorScore:     score,
			CombinedScore:   score,
			RetrievalMethod: "vector",
			Embedding:       c.Embedding,
		})
	}

	sortResults(results)
	return results, nil
}

// Search implements spec's hybrid search algorithm: embed (by the
// caller), vector top-k*, optional graph expansion with path-weighted
// graph scores, weighted fusion, optional rerank, top-k.
func (e *Engine) Search(ctx context.Context, queryEmbedding []float32, cfg *model.QueryConfig) ([]*model.RetrievalResult, error) {
	if cfg.Rerank && e.rerank == nil {
		return nil, helper.NewError("hybrid search", fmt.Errorf("%w: no rerank capability configured", helper.ErrRerankUnavailable))
	}

	kStar := cfg.TopK
	if cfg.IncludeRelated && 2*cfg.TopK > kStar {
		kStar = 2 * cfg.TopK
	}

	chunks, err := e.chunks.SelectChunksBySimilarity(queryEmbedding, kStar, cfg.SimilarityThreshold, cfg.DocumentRIDs)
	if err != nil {
		return nil, helper.NewError("hybrid search vector stage", err)
	}

	byID := make(map[uuid.UUID]*model.RetrievalResult, len(chunks))
	order := make([]uuid.UUID, 0, len(chunks))

	for _, c := range chunks {
		vectorScore := 0.0
		if c.Similarity != nil {
			vectorScore = *c.Similarity
		}
		chunkID := c.ID
		byID[c.ID] = &model.RetrievalResult{
			NodeID:          c.ID,
			ChunkID:         &chunkID,
			Content:         c.Content,
			VectorScore:     vectorScore,
			RetrievalMethod: "vector",
			Embedding:       c.Embedding,
		}
		order = append(order, c.ID)
	}

	if cfg.IncludeRelated && cfg.GraphDepth > 0 {
		for _, seedID := range order {
			related, err := graph.FindRelated(e.graphDB, seedID, cfg.GraphDepth, cfg.EdgeTypes)
			if err != nil {
				continue // unreachable/missing node: no graph contribution, not fatal
			}

			relatedIDs := byID[seedID]
			var nearest []uuid.UUID

			for _, r := range related {
				if r.Depth == 0 {
					continue
				}
				graphScore, err := e.pathWeight(r)
				if err != nil {
					continue
				}

				if len(nearest) < 3 {
					nearest = append(nearest, r.NodeID)
				}

				if existing, ok := byID[r.NodeID]; ok {
					if graphScore > existing.GraphScore {
						existing.GraphScore = graphScore
					}
				} else {
					byID[r.NodeID] = &model.RetrievalResult{
						NodeID:          r.NodeID,
						GraphScore:      graphScore,
						RetrievalMethod: "graph",
					}
					order = append(order, r.NodeID)
				}
			}

			if relatedIDs != nil {
				relatedIDs.RelatedNodeIDs = nearest
			}
		}
	}

	candidates := make([]*model.RetrievalResult, 0, len(order))
	for _, id := range order {
		r := byID[id]
		r.CombinedScore = cfg.VectorWeight*r.VectorScore + (1-cfg.VectorWeight)*r.GraphScore
		candidates = append(candidates, r)
	}
	sortResults(candidates)

	if cfg.Rerank {
		window := 4 * cfg.TopK
		if window > len(candidates) {
			window = len(candidates)
		}
		reranked, err := e.rerank.Rerank(ctx, queryEmbedding, candidates[:window], cfg.TopK)
		if err != nil {
			return nil, helper.NewError("hybrid search rerank stage", err)
		}
		candidates = append(reranked, candidates[window:]...)
	}

	if cfg.TopK > 0 && len(candidates) > cfg.TopK {
		candidates = candidates[:cfg.TopK]
	}

	return candidates, nil
}

// pathWeight sums the edge weight along a traversal path and divides by
// hop count — the average edge weight along the walk, which stays in
// [0,1] since every edge weight does, satisfying spec's "normalized to
// [0,1]" requirement for graphScore with no further scaling needed.
func (e *Engine) pathWeight(r *model.TraversalNode) (float64, error) {
	if len(r.Path) < 2 {
		return 0, nil
	}

	var sum float64
	for i := 0; i+1 < len(r.Path); i++ {
		from, to := r.Path[i], r.Path[i+1]
		edges, err := e.graphDB.SelectEdgesFrom(from, nil)
		if err != nil {
			return 0, err
		}
		for _, edge := range edges {
			if edge.ToID == to {
				sum += edge.Weight
				break
			}
		}
	}

	return sum / float64(r.Depth), nil
}

// sortResults orders by CombinedScore descending, ties broken by node
// id ascending, per spec's determinism requirement.
func sortResults(results []*model.RetrievalResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].CombinedScore != results[j].CombinedScore {
			return results[i].CombinedScore > results[j].CombinedScore
		}
		return results[i].NodeID.String() < results[j].NodeID.String()
	})
}
