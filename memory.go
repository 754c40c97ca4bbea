// Package memory is the unified entry point: it owns every backing
// store (documents, chunks, graph nodes/edges, trajectories, patterns,
// pyramid items) plus the engines layered over them (hybrid retrieval,
// cognitive learning, pyramid alignment), and serializes every mutating
// call behind a single mutex so writers never interleave.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/siherrmann/knowledge/core/cognitive"
	"github.com/siherrmann/knowledge/core/graph"
	"github.com/siherrmann/knowledge/core/parser"
	"github.com/siherrmann/knowledge/core/pipeline"
	"github.com/siherrmann/knowledge/core/pyramid"
	"github.com/siherrmann/knowledge/core/retrieval"
	"github.com/siherrmann/knowledge/database"
	"github.com/siherrmann/knowledge/helper"
	"github.com/siherrmann/knowledge/model"
	"github.com/siherrmann/knowledge/sql"
	"github.com/siherrmann/knowledge/store/tier"
)

// graphStore satisfies core/graph's GraphDB (and, by extension,
// core/retrieval's graph dependency) purely through promoted methods —
// no new code, just the two handlers the node/edge tables already have.
type graphStore struct {
	*database.NodesDBHandler
	*database.EdgesDBHandler
}

// tierChunks adapts the tiered vector store to core/retrieval's narrow
// ChunksDB, which predates (and is unaware of) context and metadata
// filters. It passes no metadata filters to Search, so
// QueryConfig.Filters is not applied on this path.
type tierChunks struct {
	store *tier.Store
}

func (t *tierChunks) SelectChunksBySimilarity(embedding []float32, limit int, threshold float64, documentRIDs []uuid.UUID) ([]*model.Chunk, error) {
	return t.store.Search(context.Background(), embedding, limit, threshold, documentRIDs, nil)
}

// Stats is the aggregated snapshot getStats returns.
type Stats struct {
	DocumentCount int   `json:"document_count"`
	ChunkCount    int   `json:"chunk_count"`
	NodeCount     int   `json:"node_count"`
	EdgeCount     int   `json:"edge_count"`
	PatternCount  int64 `json:"pattern_count"`
}

// statsScanLimit bounds the node/edge scans getStats performs. Exact
// counts past this ceiling aren't supported without a dedicated
// COUNT(*) SQL function, which the schema doesn't expose.
const statsScanLimit = 1_000_000

// Memory is the unified cognitive knowledge memory: vector store, graph
// store, cognitive layer, and pyramid overlay behind one façade.
type Memory struct {
	mu sync.Mutex

	db *helper.Database

	Documents    *database.DocumentsDBHandler
	Chunks       *database.ChunksDBHandler
	Nodes        *database.NodesDBHandler
	Edges        *database.EdgesDBHandler
	Trajectories *database.TrajectoriesDBHandler
	Patterns     *database.PatternsDBHandler
	PyramidItems *database.PyramidDBHandler

	graph *graphStore
	tiers *tier.Store

	pipeline        *pipeline.Pipeline
	embed           pipeline.EmbedFunc
	entityExtract   pipeline.EntityExtractFunc
	relationExtract pipeline.RelationExtractFunc

	Engine    *retrieval.Engine
	Cognitive *cognitive.Engine
	Pyramid   *pyramid.Overlay

	registry *prometheus.Registry
}

// New opens a database connection per cfg, runs every handler's SQL
// bootstrap, and wires the retrieval, cognitive, and pyramid engines
// over it. Each Memory instance owns its own prometheus registry, so
// constructing more than one in a process (e.g. in tests) never panics
// on duplicate metric registration.
func New(cfg *helper.MemoryConfig) (*Memory, error) {
	db, err := helper.NewDatabase(&cfg.Database, nil)
	if err != nil {
		return nil, helper.NewError("open memory database", err)
	}

	if err := sql.Init(db.Instance); err != nil {
		db.Close()
		return nil, helper.NewError("init sql functions", err)
	}

	documents, err := database.NewDocumentsDBHandler(db, false)
	if err != nil {
		db.Close()
		return nil, err
	}
	chunks, err := database.NewChunksDBHandler(db, cfg.EmbeddingDim, false)
	if err != nil {
		db.Close()
		return nil, err
	}
	nodes, err := database.NewNodesDBHandler(db, false)
	if err != nil {
		db.Close()
		return nil, err
	}
	edges, err := database.NewEdgesDBHandler(db, false)
	if err != nil {
		db.Close()
		return nil, err
	}
	trajectories, err := database.NewTrajectoriesDBHandler(db, false)
	if err != nil {
		db.Close()
		return nil, err
	}
	patterns, err := database.NewPatternsDBHandler(db, false)
	if err != nil {
		db.Close()
		return nil, err
	}
	pyramidItems, err := database.NewPyramidDBHandler(db, nodes, edges)
	if err != nil {
		db.Close()
		return nil, err
	}

	embed, err := buildEmbedder(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	var entityExtract pipeline.EntityExtractFunc
	var relationExtract pipeline.RelationExtractFunc
	if cfg.EnableEntityExtraction {
		entityExtract, err = pipeline.DefaultEntityExtractor()
		if err != nil {
			db.Close()
			return nil, helper.NewError("build entity extractor", err)
		}
		relationExtract = pipeline.DefaultRelationExtractor()
	}

	pipe := pipeline.NewPipeline(pipeline.ParagraphChunker(), embed)
	registry := prometheus.NewRegistry()

	tiers := tier.NewStore(chunks, cfg.Tiers, tier.NewMetrics(registry))
	graphDB := &graphStore{NodesDBHandler: nodes, EdgesDBHandler: edges}

	cognitiveEngine := cognitive.NewEngine(trajectories, patterns, cfg.Cognitive, cognitive.NewMetrics(registry))

	var reranker retrieval.Reranker
	if cfg.Cognitive.Enabled {
		reranker = cognitiveEngine
	}
	engine := retrieval.NewEngine(&tierChunks{store: tiers}, graphDB, reranker)

	overlay := pyramid.NewOverlay(pyramidItems, pyramid.EmbedFunc(embed))

	return &Memory{
		db:              db,
		Documents:       documents,
		Chunks:          chunks,
		Nodes:           nodes,
		Edges:           edges,
		Trajectories:    trajectories,
		Patterns:        patterns,
		PyramidItems:    pyramidItems,
		graph:           graphDB,
		tiers:           tiers,
		pipeline:        pipe,
		embed:           embed,
		entityExtract:   entityExtract,
		relationExtract: relationExtract,
		Engine:          engine,
		Cognitive:       cognitiveEngine,
		Pyramid:         overlay,
		registry:        registry,
	}, nil
}

func buildEmbedder(cfg *helper.MemoryConfig) (pipeline.EmbedFunc, error) {
	switch cfg.EmbeddingProvider {
	case "", "hashing":
		return pipeline.LRUCache(pipeline.HashingEmbedder(cfg.EmbeddingDim), 4096), nil
	case "hugot":
		embed, err := pipeline.HugotEmbedder("sentence-transformers/all-MiniLM-L6-v2")
		if err != nil {
			return nil, helper.NewError("build hugot embedder", err)
		}
		return pipeline.LRUCache(embed, 4096), nil
	default:
		return nil, helper.NewError("build embedder", fmt.Errorf("%w: unknown embedding provider %q", helper.ErrInvalidArgument, cfg.EmbeddingProvider))
	}
}

// Registry exposes the instance's prometheus registry so callers can
// mount it behind an HTTP handler.
func (m *Memory) Registry() *prometheus.Registry {
	return m.registry
}

// AddDocument parses, chunks, embeds, and inserts rawText as a new
// document: document row first (to obtain its server-generated RID),
// then chunks into the vector store, then the document/section/chunk
// graph nodes and their edges. doc carries the caller-supplied fields
// (Title, Source, Category, Tags, Metadata); its ContentHash and
// generated fields are filled in here. On any failure after the
// document row is inserted, the whole document (row, chunks, nodes,
// edges — all cascade from the row via delete_document) is rolled back
// so no partial document is ever visible.
func (m *Memory) AddDocument(rawText string, docType model.DocumentType, doc *model.Document) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	normalized := model.NormalizeText(rawText)
	doc.ContentHash = model.ContentHash(normalized)
	doc.Content = normalized

	if err := m.Documents.InsertDocument(doc); err != nil {
		return nil, helper.NewError("add document: insert row", err)
	}

	if err := m.ingestBody(rawText, docType, doc); err != nil {
		if delErr := m.Documents.DeleteDocument(doc.RID); delErr != nil {
			return nil, helper.NewError("add document: rollback after ingest failure", fmt.Errorf("ingest error: %v, rollback error: %w", err, delErr))
		}
		return nil, helper.NewError("add document", err)
	}

	return doc, nil
}

// ingestBody parses rawText, overrides the parsed document's id to the
// owning row's RID (so the graph store and vector store never disagree
// on the live set — the id that went into insert_document is the same
// id BuildGraph's document node gets), chunks and embeds it, inserts
// the chunks and every graph node/edge BuildGraph derives, and
// optionally enriches with extracted entities.
func (m *Memory) ingestBody(rawText string, docType model.DocumentType, doc *model.Document) error {
	parsedDoc, err := parser.Parse(rawText, docType)
	if err != nil {
		return helper.NewError("parse document", err)
	}
	parsedDoc.ID = doc.RID
	if parsedDoc.Metadata.Title == "" {
		parsedDoc.Metadata.Title = doc.Title
	}
	parsedDoc.Source = doc.Source

	chunksWithPath, err := m.pipeline.Process(parsedDoc.CleanText, doc.Title)
	if err != nil {
		return helper.NewError("chunk and embed document", err)
	}

	for _, c := range chunksWithPath {
		c.DocumentID = doc.ID
		c.DocumentRID = doc.RID
		if err := m.Chunks.InsertChunk(c); err != nil {
			return helper.NewError("insert chunk", err)
		}
		m.tiers.Put(c)

		if err := m.insertChunkNode(doc, c); err != nil {
			return err
		}
	}

	nodes, edges, err := pipeline.BuildGraph([]*parser.ParsedDocument{parsedDoc})
	if err != nil {
		return helper.NewError("build document graph", err)
	}
	for _, n := range nodes {
		if err := m.Nodes.InsertNode(n); err != nil {
			return helper.NewError("insert graph node", err)
		}
	}
	for _, e := range edges {
		if err := m.Edges.UpsertEdge(e); err != nil {
			return helper.NewError("insert graph edge", err)
		}
	}

	if m.entityExtract != nil {
		if err := m.extractEntities(parsedDoc, chunksWithPath); err != nil {
			return err
		}
	}

	return nil
}

// insertChunkNode creates the Chunk-typed graph node and links it under
// its owning document via PARENT_OF, so a graph walk from the document
// reaches every one of its chunks.
func (m *Memory) insertChunkNode(doc *model.Document, c *model.Chunk) error {
	node := &model.GraphNode{
		ID:   c.ID,
		Type: model.NodeTypeChunk,
		Properties: model.Metadata{
			"section_path": c.SectionPath,
			"sequence_idx": c.SequenceIdx,
		},
	}
	if err := m.Nodes.InsertNode(node); err != nil {
		return helper.NewError("insert chunk node", err)
	}

	edge := &model.GraphEdge{FromID: doc.RID, ToID: c.ID, Type: model.EdgeTypeParentOf, Weight: 1.0}
	if err := m.Edges.UpsertEdge(edge); err != nil {
		return helper.NewError("link chunk to document", err)
	}
	return nil
}

// extractEntities runs NER over each chunk's text, inserts deduplicated
// Entity nodes, links each back to its source chunk via RELATES_TO, and
// inserts any co-occurrence edges the relation extractor derives.
func (m *Memory) extractEntities(parsedDoc *parser.ParsedDocument, chunksWithPath []*model.Chunk) error {
	for _, c := range chunksWithPath {
		entities, err := m.entityExtract(c.Content)
		if err != nil {
			return helper.NewError("extract entities", err)
		}
		if len(entities) == 0 {
			continue
		}

		for _, entity := range entities {
			if err := m.Nodes.InsertNode(entity); err != nil {
				return helper.NewError("insert entity node", err)
			}
			edge := &model.GraphEdge{FromID: c.ID, ToID: entity.ID, Type: model.EdgeTypeRelatesTo, Weight: 1.0}
			if err := m.Edges.UpsertEdge(edge); err != nil {
				return helper.NewError("link chunk to entity", err)
			}
		}

		for _, edge := range m.relationExtract(c.SectionPath, entities) {
			if err := m.Edges.UpsertEdge(edge); err != nil {
				return helper.NewError("insert relation edge", err)
			}
		}
	}
	return nil
}

// AddDocuments ingests each document in order, stopping at the first
// failure. Documents successfully ingested before the failure remain
// committed; AddDocument's own rollback only ever covers the document
// that failed.
func (m *Memory) AddDocuments(items []struct {
	RawText string
	Type    model.DocumentType
	Doc     *model.Document
}) ([]*model.Document, error) {
	inserted := make([]*model.Document, 0, len(items))
	for _, item := range items {
		doc, err := m.AddDocument(item.RawText, item.Type, item.Doc)
		if err != nil {
			return inserted, err
		}
		inserted = append(inserted, doc)
	}
	return inserted, nil
}

// DeleteDocument removes a document's row, which cascades at the SQL
// layer to its chunks and every graph node/edge keyed to them, and
// evicts any of its chunks still resident in the in-memory tiers so no
// stale hot/warm copy outlives the row it mirrors.
func (m *Memory) DeleteDocument(rid uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	chunks, err := m.Chunks.SelectChunksByDocument(rid)
	if err != nil {
		return helper.NewError("delete document: list chunks", err)
	}
	for _, c := range chunks {
		m.tiers.Evict(c.ID)
	}

	if err := m.Documents.DeleteDocument(rid); err != nil {
		return helper.NewError("delete document", err)
	}
	return nil
}

// AddRelationship creates a typed edge between two existing graph
// nodes. Fails with ErrMissingEndpoint if either node doesn't exist.
func (m *Memory) AddRelationship(from, to uuid.UUID, edgeType model.EdgeType, properties model.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.Nodes.SelectNode(from); err != nil {
		return helper.NewError("add relationship", fmt.Errorf("%w: from node %s", helper.ErrMissingEndpoint, from))
	}
	if _, err := m.Nodes.SelectNode(to); err != nil {
		return helper.NewError("add relationship", fmt.Errorf("%w: to node %s", helper.ErrMissingEndpoint, to))
	}

	edge := &model.GraphEdge{FromID: from, ToID: to, Type: edgeType, Weight: 1.0, Properties: properties}
	if err := m.Edges.UpsertEdge(edge); err != nil {
		return helper.NewError("add relationship", err)
	}
	return nil
}

// Search embeds queryText and performs hybrid vector+graph search.
func (m *Memory) Search(ctx context.Context, queryText string, cfg *model.QueryConfig) ([]*model.RetrievalResult, error) {
	queryEmbedding, err := m.embed(queryText)
	if err != nil {
		return nil, helper.NewError("search: embed query", fmt.Errorf("%w: %v", helper.ErrEmbeddingUnavailable, err))
	}
	return m.Engine.Search(ctx, queryEmbedding, cfg)
}

// VectorSearch embeds queryText and performs pure vector similarity
// search, with no graph expansion or rerank.
func (m *Memory) VectorSearch(queryText string, cfg *model.QueryConfig) ([]*model.RetrievalResult, error) {
	queryEmbedding, err := m.embed(queryText)
	if err != nil {
		return nil, helper.NewError("vector search: embed query", fmt.Errorf("%w: %v", helper.ErrEmbeddingUnavailable, err))
	}
	return m.Engine.VectorSearch(queryEmbedding, cfg)
}

// GraphQuery executes a Cypher-subset query against the graph store.
func (m *Memory) GraphQuery(cypherSubset string) (*model.QueryResult, error) {
	return graph.Query(m.graph, cypherSubset)
}

// FindRelated returns nodes reachable from nodeID within depth hops,
// optionally restricted to edgeTypes.
func (m *Memory) FindRelated(nodeID uuid.UUID, depth int, edgeTypes []model.EdgeType) ([]*model.TraversalNode, error) {
	return graph.FindRelated(m.graph, nodeID, depth, edgeTypes)
}

// GetStats aggregates document, chunk, node, edge, and pattern counts
// into one snapshot.
func (m *Memory) GetStats() (*Stats, error) {
	documents, err := m.Documents.SelectAllDocuments(nil, statsScanLimit)
	if err != nil {
		return nil, helper.NewError("get stats: documents", err)
	}

	var nodeCount, edgeCount int
	for _, nt := range []model.NodeType{
		model.NodeTypeDocument, model.NodeTypeSection, model.NodeTypeChunk,
		model.NodeTypeEntity, model.NodeTypePyramidItem, model.NodeTypeStory,
	} {
		nodes, err := m.Nodes.SelectNodesByType(nt, statsScanLimit)
		if err != nil {
			return nil, helper.NewError("get stats: nodes", err)
		}
		nodeCount += len(nodes)
	}
	for _, et := range []model.EdgeType{
		model.EdgeTypeCites, model.EdgeTypeParentOf, model.EdgeTypeRelatesTo,
		model.EdgeTypeDerivedFrom, model.EdgeTypeLinksTo, model.EdgeTypeSupports, model.EdgeTypeAlignsTo,
	} {
		edges, err := m.Edges.SelectEdgesByType(et)
		if err != nil {
			return nil, helper.NewError("get stats: edges", err)
		}
		edgeCount += len(edges)
	}

	patternCount, err := m.Patterns.CountPatterns()
	if err != nil {
		return nil, helper.NewError("get stats: patterns", err)
	}

	var chunkCount int
	for _, d := range documents {
		chunks, err := m.Chunks.SelectChunksByDocument(d.RID)
		if err != nil {
			return nil, helper.NewError("get stats: chunks", err)
		}
		chunkCount += len(chunks)
	}

	return &Stats{
		DocumentCount: len(documents),
		ChunkCount:    chunkCount,
		NodeCount:     nodeCount,
		EdgeCount:     edgeCount,
		PatternCount:  patternCount,
	}, nil
}

// Tick runs the cognitive engine's learning tick, draining closed
// trajectories into the pattern store if the batch or interval
// threshold is due. No-op ("disabled") when the cognitive layer is
// off.
func (m *Memory) Tick(ctx context.Context) (string, error) {
	return m.Cognitive.Tick(ctx)
}

// Close releases the database connection pool. Safe to call more than
// once.
func (m *Memory) Close() error {
	return m.db.Close()
}
