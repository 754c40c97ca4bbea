package database

import (
	"database/sql"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/knowledge/helper"
	"github.com/siherrmann/knowledge/model"
	loadSql "github.com/siherrmann/knowledge/sql"
)

// ChunksDBHandlerFunctions defines the interface for Chunks database operations.
type ChunksDBHandlerFunctions interface {
	InsertChunk(chunk *model.Chunk) error
	SelectChunk(id uuid.UUID) (*model.Chunk, error)
	SelectChunksByDocument(documentRID uuid.UUID) ([]*model.Chunk, error)
	SelectChunksBySectionDescendant(path string) ([]*model.Chunk, error)
	SelectChunksBySectionAncestor(path string) ([]*model.Chunk, error)
	SelectChunksBySimilarity(embedding []float32, limit int, threshold float64, documentRIDs []uuid.UUID) ([]*model.Chunk, error)
	DeleteChunk(id uuid.UUID) error
	UpdateChunkEmbedding(id uuid.UUID, embedding []float32) error
}

// ChunksDBHandler handles chunk-related database operations
type ChunksDBHandler struct {
	db *helper.Database
}

// NewChunksDBHandler creates a new chunks database handler.
// It initializes the database connection and loads chunk-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewChunksDBHandler(db *helper.Database, embeddingDim int, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	chunksDbHandler := &ChunksDBHandler{
		db: db,
	}

	err := loadSql.LoadChunksSql(chunksDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = chunksDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler")

	return chunksDbHandler, nil
}

// CreateTable creates the 'chunks' table in the database.
func (h *ChunksDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing chunks table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table chunks")

	return nil
}

func scanChunk(row interface{ Scan(...interface{}) error }, chunk *model.Chunk, withSimilarity bool) error {
	var embeddingVec *pgvector.Vector
	var similarity sql.NullFloat64

	dest := []interface{}{
		&chunk.ID,
		&chunk.DocumentID,
		&chunk.DocumentRID,
		&chunk.Content,
		&chunk.SequenceIdx,
		&chunk.TokenCount,
		&chunk.Strategy,
		&chunk.SectionPath,
		&embeddingVec,
		&chunk.StartPos,
		&chunk.EndPos,
		&chunk.Metadata,
		&chunk.CreatedAt,
	}
	if withSimilarity {
		dest = append(dest, &similarity)
	}

	if err := row.Scan(dest...); err != nil {
		return err
	}

	if embeddingVec != nil {
		chunk.Embedding = embeddingVec.Slice()
	}
	if withSimilarity && similarity.Valid {
		chunk.Similarity = &similarity.Float64
	}

	return nil
}

// InsertChunk inserts a new chunk
func (h *ChunksDBHandler) InsertChunk(chunk *model.Chunk) error {
	var embeddingParam interface{}
	if len(chunk.Embedding) > 0 {
		embeddingVector := pgvector.NewVector(chunk.Embedding)
		embeddingParam = &embeddingVector
	}

	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_chunk($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		chunk.DocumentID,
		chunk.DocumentRID,
		chunk.Content,
		chunk.SequenceIdx,
		chunk.TokenCount,
		chunk.Strategy,
		chunk.SectionPath,
		embeddingParam,
		chunk.StartPos,
		chunk.EndPos,
		chunk.Metadata,
	)

	if err := scanChunk(row, chunk, false); err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectChunk retrieves a chunk by ID
func (h *ChunksDBHandler) SelectChunk(id uuid.UUID) (*model.Chunk, error) {
	row := h.db.Instance.QueryRow(`SELECT * FROM select_chunk($1)`, id)

	chunk := &model.Chunk{}
	if err := scanChunk(row, chunk, false); err != nil {
		return nil, helper.NewError("scan", err)
	}

	return chunk, nil
}

// SelectChunksByDocument retrieves all chunks for a document in sequence order
func (h *ChunksDBHandler) SelectChunksByDocument(documentRID uuid.UUID) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.Query(`SELECT * FROM select_chunks_by_document($1)`, documentRID)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		if err := scanChunk(rows, chunk, false); err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}

// SelectChunksBySectionDescendant retrieves chunks whose section_path is
// a descendant of (or equal to) path.
func (h *ChunksDBHandler) SelectChunksBySectionDescendant(path string) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.Query(`SELECT * FROM select_chunks_by_section_descendant($1)`, path)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		if err := scanChunk(rows, chunk, false); err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}

// SelectChunksBySectionAncestor retrieves chunks whose section_path is an
// ancestor of (or equal to) path.
func (h *ChunksDBHandler) SelectChunksBySectionAncestor(path string) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.Query(`SELECT * FROM select_chunks_by_section_ancestor($1)`, path)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		if err := scanChunk(rows, chunk, false); err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}

// SelectChunksBySimilarity performs vector similarity search ordered by
// cosine distance ascending. If documentRIDs is empty, searches across
// all documents.
func (h *ChunksDBHandler) SelectChunksBySimilarity(embedding []float32, limit int, threshold float64, documentRIDs []uuid.UUID) ([]*model.Chunk, error) {
	embeddingVector := pgvector.NewVector(embedding)

	var documentRIDsParam interface{}
	if len(documentRIDs) > 0 {
		documentRIDsParam = pq.Array(documentRIDs)
	}

	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_by_similarity($1, $2, $3, $4)`,
		embeddingVector,
		limit,
		threshold,
		documentRIDsParam,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var results []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		if err := scanChunk(rows, chunk, true); err != nil {
			return nil, helper.NewError("scan", err)
		}
		results = append(results, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return results, nil
}

// DeleteChunk deletes a chunk by ID, cascading to any graph node and
// edges keyed to it.
func (h *ChunksDBHandler) DeleteChunk(id uuid.UUID) error {
	_, err := h.db.Instance.Exec(`SELECT delete_chunk($1)`, id)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// UpdateChunkEmbedding updates the embedding of a chunk
func (h *ChunksDBHandler) UpdateChunkEmbedding(id uuid.UUID, embedding []float32) error {
	embeddingVector := pgvector.NewVector(embedding)
	_, err := h.db.Instance.Exec(`SELECT update_chunk_embedding($1, $2)`, id, embeddingVector)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}
