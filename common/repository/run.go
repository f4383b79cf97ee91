package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/agentkit/agentkit/common/db"
	"github.com/agentkit/agentkit/common/models"
)

// RunRepository handles database operations for workflow runs and node runs.
// Each write is its own statement so concurrent readers observe run progress
// while an execution is in flight.
type RunRepository struct {
	db *db.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(database *db.DB) *RunRepository {
	return &RunRepository{db: database}
}

// CreateRun inserts a new workflow run
func (r *RunRepository) CreateRun(ctx context.Context, run *models.WorkflowRun) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO workflow_runs (id, workflow_id, status, trigger_type, input_payload, output_payload, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, run.ID, run.WorkflowID, run.Status, run.TriggerType, run.InputPayload, run.OutputPayload, run.Error, run.StartedAt, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// UpdateRun flushes the mutable fields of a run
func (r *RunRepository) UpdateRun(ctx context.Context, run *models.WorkflowRun) error {
	_, err := r.db.Exec(ctx, `
		UPDATE workflow_runs
		SET status = $2, output_payload = $3, error = $4, completed_at = $5
		WHERE id = $1
	`, run.ID, run.Status, run.OutputPayload, run.Error, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// CreateNodeRun inserts a new node run
func (r *RunRepository) CreateNodeRun(ctx context.Context, nr *models.NodeRun) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO node_runs (id, run_id, node_id, node_key, status, input_data, output_data, error, execution_time_ms, token_usage, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, nr.ID, nr.RunID, nr.NodeID, nr.NodeKey, nr.Status, nr.InputData, nr.OutputData, nr.Error, nr.ExecutionTimeMS, nr.TokenUsage, nr.StartedAt, nr.CompletedAt)
	if err != nil {
		return fmt.Errorf("create node run: %w", err)
	}
	return nil
}

// UpdateNodeRun flushes the mutable fields of a node run
func (r *RunRepository) UpdateNodeRun(ctx context.Context, nr *models.NodeRun) error {
	_, err := r.db.Exec(ctx, `
		UPDATE node_runs
		SET node_key = $2, status = $3, input_data = $4, output_data = $5, error = $6,
		    execution_time_ms = $7, token_usage = $8, completed_at = $9
		WHERE id = $1
	`, nr.ID, nr.NodeKey, nr.Status, nr.InputData, nr.OutputData, nr.Error, nr.ExecutionTimeMS, nr.TokenUsage, nr.CompletedAt)
	if err != nil {
		return fmt.Errorf("update node run: %w", err)
	}
	return nil
}

// GetRun retrieves a run with its node runs embedded
func (r *RunRepository) GetRun(ctx context.Context, runID uuid.UUID) (*models.WorkflowRun, error) {
	run := &models.WorkflowRun{}
	err := r.db.QueryRow(ctx, `
		SELECT id, workflow_id, status, trigger_type, input_payload, output_payload, error, started_at, completed_at
		FROM workflow_runs
		WHERE id = $1
	`, runID).Scan(
		&run.ID, &run.WorkflowID, &run.Status, &run.TriggerType,
		&run.InputPayload, &run.OutputPayload, &run.Error, &run.StartedAt, &run.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	if err := r.loadNodeRuns(ctx, run); err != nil {
		return nil, err
	}

	return run, nil
}

// ListRuns lists runs for a user, newest first, node runs embedded
func (r *RunRepository) ListRuns(ctx context.Context, userID uuid.UUID, workflowID *uuid.UUID, limit int) ([]*models.WorkflowRun, error) {
	query := `
		SELECT r.id, r.workflow_id, r.status, r.trigger_type, r.input_payload, r.output_payload, r.error, r.started_at, r.completed_at
		FROM workflow_runs r
		JOIN workflows w ON w.id = r.workflow_id
		WHERE w.user_id = $1
	`
	args := []interface{}{userID}
	if workflowID != nil {
		query += ` AND r.workflow_id = $2`
		args = append(args, *workflowID)
	}
	query += fmt.Sprintf(` ORDER BY r.started_at DESC LIMIT %d`, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.WorkflowRun
	for rows.Next() {
		run := &models.WorkflowRun{}
		err := rows.Scan(
			&run.ID, &run.WorkflowID, &run.Status, &run.TriggerType,
			&run.InputPayload, &run.OutputPayload, &run.Error, &run.StartedAt, &run.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	for _, run := range runs {
		if err := r.loadNodeRuns(ctx, run); err != nil {
			return nil, err
		}
	}

	return runs, nil
}

func (r *RunRepository) loadNodeRuns(ctx context.Context, run *models.WorkflowRun) error {
	rows, err := r.db.Query(ctx, `
		SELECT id, run_id, node_id, node_key, status, input_data, output_data, error, execution_time_ms, token_usage, started_at, completed_at
		FROM node_runs
		WHERE run_id = $1
		ORDER BY started_at
	`, run.ID)
	if err != nil {
		return fmt.Errorf("load node runs: %w", err)
	}
	defer rows.Close()

	run.NodeRuns = nil
	for rows.Next() {
		nr := &models.NodeRun{}
		err := rows.Scan(
			&nr.ID, &nr.RunID, &nr.NodeID, &nr.NodeKey, &nr.Status,
			&nr.InputData, &nr.OutputData, &nr.Error, &nr.ExecutionTimeMS,
			&nr.TokenUsage, &nr.StartedAt, &nr.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("scan node run: %w", err)
		}
		run.NodeRuns = append(run.NodeRuns, nr)
	}
	return rows.Err()
}
