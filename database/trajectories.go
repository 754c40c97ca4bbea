package database

import (
	"context"
	"encoding/json"
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

// TrajectoriesDBHandlerFunctions defines the interface for Trajectory database operations.
type TrajectoriesDBHandlerFunctions interface {
	BeginTrajectory(queryEmbedding []float32, routeTag string, contextIDs []uuid.UUID) (*model.Trajectory, error)
	AppendTrajectoryStep(id uuid.UUID, step model.TrajectoryStep) (*model.Trajectory, error)
	CloseTrajectory(id uuid.UUID, quality float64) (*model.Trajectory, error)
	SelectTrajectory(id uuid.UUID) (*model.Trajectory, error)
	SelectClosedTrajectories(limit int) ([]*model.Trajectory, error)
	MarkTrajectoriesConsumed(ids []uuid.UUID) error
	GCConsumedTrajectories() (int, error)
}

// TrajectoriesDBHandler handles trajectory-related database operations.
type TrajectoriesDBHandler struct {
	db *helper.Database
}

// NewTrajectoriesDBHandler creates a new trajectories database handler.
func NewTrajectoriesDBHandler(db *helper.Database, force bool) (*TrajectoriesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	trajectoriesDbHandler := &TrajectoriesDBHandler{db: db}

	err := loadSql.LoadTrajectoriesSql(trajectoriesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load trajectories sql", err)
	}

	err = trajectoriesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized TrajectoriesDBHandler")

	return trajectoriesDbHandler, nil
}

// CreateTable creates the 'trajectories' table.
func (h *TrajectoriesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_trajectories();`)
	if err != nil {
		log.Panicf("error initializing trajectories table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table trajectories")

	return nil
}

func scanTrajectory(row interface{ Scan(...interface{}) error }, t *model.Trajectory) error {
	var queryEmbedding *pgvector.Vector
	var contextIDsRaw []byte
	var stepsJSON []byte

	err := row.Scan(
		&t.ID,
		&queryEmbedding,
		&t.RouteTag,
		&contextIDsRaw,
		&stepsJSON,
		&t.Quality,
		&t.State,
		&t.CreatedAt,
		&t.ClosedAt,
	)
	if err != nil {
		return err
	}

	if queryEmbedding != nil {
		t.QueryEmbedding = queryEmbedding.Slice()
	}

	if err := parseUUIDArray(contextIDsRaw, &t.ContextIDs); err != nil {
		return err
	}

	return json.Unmarshal(stepsJSON, &t.Steps)
}

// BeginTrajectory opens a new Open-state trajectory for a query episode.
func (h *TrajectoriesDBHandler) BeginTrajectory(queryEmbedding []float32, routeTag string, contextIDs []uuid.UUID) (*model.Trajectory, error) {
	embeddingVector := pgvector.NewVector(queryEmbedding)

	row := h.db.Instance.QueryRow(
		`SELECT * FROM begin_trajectory($1, $2, $3)`,
		embeddingVector,
		routeTag,
		pq.Array(contextIDs),
	)

	t := &model.Trajectory{}
	if err := scanTrajectory(row, t); err != nil {
		return nil, helper.NewError("scan", err)
	}

	return t, nil
}

// AppendTrajectoryStep appends a step if, and only if, the trajectory is
// still Open. Returns ErrInvalidArgument if it is not.
func (h *TrajectoriesDBHandler) AppendTrajectoryStep(id uuid.UUID, step model.TrajectoryStep) (*model.Trajectory, error) {
	stepJSON, err := json.Marshal(step)
	if err != nil {
		return nil, helper.NewError("marshal step", err)
	}

	row := h.db.Instance.QueryRow(`SELECT * FROM append_trajectory_step($1, $2)`, id, stepJSON)

	t := &model.Trajectory{}
	if err := scanTrajectory(row, t); err != nil {
		return nil, helper.NewError("append trajectory step", fmt.Errorf("%w: %v", helper.ErrInvalidArgument, err))
	}

	return t, nil
}

// CloseTrajectory transitions a trajectory Open->Closed, recording its
// quality score. No-op (returns ErrInvalidArgument) if not Open.
func (h *TrajectoriesDBHandler) CloseTrajectory(id uuid.UUID, quality float64) (*model.Trajectory, error) {
	row := h.db.Instance.QueryRow(`SELECT * FROM close_trajectory($1, $2)`, id, quality)

	t := &model.Trajectory{}
	if err := scanTrajectory(row, t); err != nil {
		return nil, helper.NewError("close trajectory", fmt.Errorf("%w: %v", helper.ErrInvalidArgument, err))
	}

	return t, nil
}

// SelectTrajectory retrieves a trajectory by ID.
func (h *TrajectoriesDBHandler) SelectTrajectory(id uuid.UUID) (*model.Trajectory, error) {
	t := &model.Trajectory{}
	row := h.db.Instance.QueryRow(`SELECT * FROM select_trajectory($1)`, id)

	if err := scanTrajectory(row, t); err != nil {
		return nil, helper.NewError("scan", err)
	}

	return t, nil
}

// SelectClosedTrajectories retrieves Closed trajectories awaiting a
// learning tick, oldest first.
func (h *TrajectoriesDBHandler) SelectClosedTrajectories(limit int) ([]*model.Trajectory, error) {
	rows, err := h.db.Instance.Query(`SELECT * FROM select_closed_trajectories($1)`, limit)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var trajectories []*model.Trajectory
	for rows.Next() {
		t := &model.Trajectory{}
		if err := scanTrajectory(rows, t); err != nil {
			return nil, helper.NewError("scan", err)
		}
		trajectories = append(trajectories, t)
	}

	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return trajectories, nil
}

// MarkTrajectoriesConsumed transitions Closed->Consumed once their
// steps have been folded into the pattern store.
func (h *TrajectoriesDBHandler) MarkTrajectoriesConsumed(ids []uuid.UUID) error {
	_, err := h.db.Instance.Exec(`SELECT mark_trajectories_consumed($1)`, pq.Array(ids))
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// GCConsumedTrajectories deletes Consumed trajectories, returning the
// number removed.
func (h *TrajectoriesDBHandler) GCConsumedTrajectories() (int, error) {
	var count int
	row := h.db.Instance.QueryRow(`SELECT gc_consumed_trajectories()`)
	if err := row.Scan(&count); err != nil {
		return 0, helper.NewError("scan", err)
	}
	return count, nil
}
