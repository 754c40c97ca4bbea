package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/knowledge/helper"
	"github.com/siherrmann/knowledge/model"
	loadSql "github.com/siherrmann/knowledge/sql"
)

// PatternsDBHandlerFunctions defines the interface for LearnedPattern database operations.
type PatternsDBHandlerFunctions interface {
	InsertPattern(pattern *model.LearnedPattern) error
	SelectPatternsBySimilarity(embedding []float32, limit int) ([]*model.LearnedPattern, error)
	UpdatePattern(pattern *model.LearnedPattern) error
	CountPatterns() (int64, error)
	SelectPatternToEvict() (*model.LearnedPattern, error)
	DeletePattern(id uuid.UUID) error
}

// PatternsDBHandler handles learned-pattern database operations.
type PatternsDBHandler struct {
	db *helper.Database
}

// NewPatternsDBHandler creates a new patterns database handler.
func NewPatternsDBHandler(db *helper.Database, force bool) (*PatternsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	patternsDbHandler := &PatternsDBHandler{db: db}

	err := loadSql.LoadPatternsSql(patternsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load patterns sql", err)
	}

	err = patternsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized PatternsDBHandler")

	return patternsDbHandler, nil
}

// CreateTable creates the 'learned_patterns' table.
func (h *PatternsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_patterns();`)
	if err != nil {
		log.Panicf("error initializing learned_patterns table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table learned_patterns")

	return nil
}

func scanPattern(row interface{ Scan(...interface{}) error }, p *model.LearnedPattern, withSimilarity bool) error {
	var embedding *pgvector.Vector
	var similarity float64

	dest := []interface{}{
		&p.ID,
		&embedding,
		&p.Frequency,
		&p.AverageReward,
		&p.LastUsedAt,
		&p.CreatedAt,
	}
	if withSimilarity {
		dest = append(dest, &similarity)
	}

	if err := row.Scan(dest...); err != nil {
		return err
	}

	if embedding != nil {
		p.Embedding = embedding.Slice()
	}

	return nil
}

// InsertPattern inserts a new learned pattern.
func (h *PatternsDBHandler) InsertPattern(pattern *model.LearnedPattern) error {
	embeddingVector := pgvector.NewVector(pattern.Embedding)
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_pattern($1, $2, $3)`,
		embeddingVector,
		pattern.Frequency,
		pattern.AverageReward,
	)

	if err := scanPattern(row, pattern, false); err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectPatternsBySimilarity retrieves the patterns closest to embedding
// by cosine similarity, most similar first.
func (h *PatternsDBHandler) SelectPatternsBySimilarity(embedding []float32, limit int) ([]*model.LearnedPattern, error) {
	embeddingVector := pgvector.NewVector(embedding)
	rows, err := h.db.Instance.Query(`SELECT * FROM select_patterns_by_similarity($1, $2)`, embeddingVector, limit)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var patterns []*model.LearnedPattern
	for rows.Next() {
		p := &model.LearnedPattern{}
		if err := scanPattern(rows, p, true); err != nil {
			return nil, helper.NewError("scan", err)
		}
		patterns = append(patterns, p)
	}

	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return patterns, nil
}

// UpdatePattern overwrites a pattern's embedding, frequency and average
// reward, refreshing last_used_at.
func (h *PatternsDBHandler) UpdatePattern(pattern *model.LearnedPattern) error {
	embeddingVector := pgvector.NewVector(pattern.Embedding)
	row := h.db.Instance.QueryRow(
		`SELECT * FROM update_pattern($1, $2, $3, $4)`,
		pattern.ID,
		embeddingVector,
		pattern.Frequency,
		pattern.AverageReward,
	)

	if err := scanPattern(row, pattern, false); err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// CountPatterns returns the number of patterns currently stored.
func (h *PatternsDBHandler) CountPatterns() (int64, error) {
	var count int64
	row := h.db.Instance.QueryRow(`SELECT count_patterns()`)
	if err := row.Scan(&count); err != nil {
		return 0, helper.NewError("scan", err)
	}
	return count, nil
}

// SelectPatternToEvict returns the weakest pattern by
// frequency x average-reward x recency-decay, the candidate to drop
// when the pattern store exceeds its configured cap.
func (h *PatternsDBHandler) SelectPatternToEvict() (*model.LearnedPattern, error) {
	p := &model.LearnedPattern{}
	row := h.db.Instance.QueryRow(`SELECT * FROM select_pattern_to_evict()`)

	if err := scanPattern(row, p, false); err != nil {
		return nil, helper.NewError("scan", err)
	}

	return p, nil
}

// DeletePattern deletes a pattern by ID.
func (h *PatternsDBHandler) DeletePattern(id uuid.UUID) error {
	_, err := h.db.Instance.Exec(`SELECT delete_pattern($1)`, id)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}
