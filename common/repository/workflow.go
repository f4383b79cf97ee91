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

// ErrNotFound is returned when an entity does not exist
var ErrNotFound = errors.New("not found")

// WorkflowRepository handles database operations for workflows and their graphs
type WorkflowRepository struct {
	db *db.DB
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(database *db.DB) *WorkflowRepository {
	return &WorkflowRepository{db: database}
}

// Create inserts a workflow together with its nodes and edges in one
// transaction. Node and edge seq values record insertion order; the
// executor's FIFO tie-break depends on them.
func (r *WorkflowRepository) Create(ctx context.Context, wf *models.Workflow) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO workflows (id, user_id, agent_id, name, description, status, variables, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, wf.ID, wf.UserID, wf.AgentID, wf.Name, wf.Description, wf.Status, wf.Variables, wf.Metadata, wf.CreatedAt, wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}

	if err := insertGraph(ctx, tx, wf); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ReplaceGraph swaps a workflow's nodes and edges for a new set
func (r *WorkflowRepository) ReplaceGraph(ctx context.Context, wf *models.Workflow) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM workflow_nodes WHERE workflow_id = $1`, wf.ID); err != nil {
		return fmt.Errorf("delete nodes: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM workflow_edges WHERE workflow_id = $1`, wf.ID); err != nil {
		return fmt.Errorf("delete edges: %w", err)
	}

	if err := insertGraph(ctx, tx, wf); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `UPDATE workflows SET updated_at = now() WHERE id = $1`, wf.ID)
	if err != nil {
		return fmt.Errorf("touch workflow: %w", err)
	}

	return tx.Commit(ctx)
}

func insertGraph(ctx context.Context, tx pgx.Tx, wf *models.Workflow) error {
	for i, node := range wf.Nodes {
		node.WorkflowID = wf.ID
		node.Seq = i
		_, err := tx.Exec(ctx, `
			INSERT INTO workflow_nodes (id, workflow_id, node_key, type, seq, position_x, position_y, data, custom_node_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, node.ID, node.WorkflowID, node.NodeKey, node.Type, node.Seq, node.PositionX, node.PositionY, node.Data, node.CustomNodeID)
		if err != nil {
			return fmt.Errorf("insert node %s: %w", node.Key(), err)
		}
	}

	for i, edge := range wf.Edges {
		edge.WorkflowID = wf.ID
		edge.Seq = i
		_, err := tx.Exec(ctx, `
			INSERT INTO workflow_edges (id, workflow_id, source, target, source_handle, target_handle, condition, seq)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, edge.ID, edge.WorkflowID, edge.Source, edge.Target, edge.SourceHandle, edge.TargetHandle, edge.Condition, edge.Seq)
		if err != nil {
			return fmt.Errorf("insert edge %s->%s: %w", edge.Source, edge.Target, err)
		}
	}

	return nil
}

// GetWithGraph loads a workflow with its nodes and edges eagerly materialized
func (r *WorkflowRepository) GetWithGraph(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	wf := &models.Workflow{}
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, agent_id, name, description, status, variables, metadata, created_at, updated_at
		FROM workflows
		WHERE id = $1
	`, id).Scan(
		&wf.ID, &wf.UserID, &wf.AgentID, &wf.Name, &wf.Description,
		&wf.Status, &wf.Variables, &wf.Metadata, &wf.CreatedAt, &wf.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}

	if err := r.loadGraph(ctx, wf); err != nil {
		return nil, err
	}

	return wf, nil
}

// ListByUserAndStatus lists a user's workflows with graphs eagerly loaded.
// The poller uses this to match published workflows to integrations.
func (r *WorkflowRepository) ListByUserAndStatus(ctx context.Context, userID uuid.UUID, status models.WorkflowStatus) ([]*models.Workflow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, agent_id, name, description, status, variables, metadata, created_at, updated_at
		FROM workflows
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at
	`, userID, status)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*models.Workflow
	for rows.Next() {
		wf := &models.Workflow{}
		err := rows.Scan(
			&wf.ID, &wf.UserID, &wf.AgentID, &wf.Name, &wf.Description,
			&wf.Status, &wf.Variables, &wf.Metadata, &wf.CreatedAt, &wf.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}

	for _, wf := range workflows {
		if err := r.loadGraph(ctx, wf); err != nil {
			return nil, err
		}
	}

	return workflows, nil
}

// ListByUser lists a user's workflows without graphs
func (r *WorkflowRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Workflow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, agent_id, name, description, status, variables, metadata, created_at, updated_at
		FROM workflows
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*models.Workflow
	for rows.Next() {
		wf := &models.Workflow{}
		err := rows.Scan(
			&wf.ID, &wf.UserID, &wf.AgentID, &wf.Name, &wf.Description,
			&wf.Status, &wf.Variables, &wf.Metadata, &wf.CreatedAt, &wf.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}

	return workflows, nil
}

// UpdateStatus moves a workflow between draft and published
func (r *WorkflowRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.WorkflowStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE workflows SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("update workflow status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// loadGraph fills in nodes and edges ordered by seq
func (r *WorkflowRepository) loadGraph(ctx context.Context, wf *models.Workflow) error {
	nodeRows, err := r.db.Query(ctx, `
		SELECT id, workflow_id, node_key, type, seq, position_x, position_y, data, custom_node_id
		FROM workflow_nodes
		WHERE workflow_id = $1
		ORDER BY seq
	`, wf.ID)
	if err != nil {
		return fmt.Errorf("load nodes: %w", err)
	}
	defer nodeRows.Close()

	wf.Nodes = nil
	for nodeRows.Next() {
		node := &models.WorkflowNode{}
		err := nodeRows.Scan(
			&node.ID, &node.WorkflowID, &node.NodeKey, &node.Type, &node.Seq,
			&node.PositionX, &node.PositionY, &node.Data, &node.CustomNodeID,
		)
		if err != nil {
			return fmt.Errorf("scan node: %w", err)
		}
		wf.Nodes = append(wf.Nodes, node)
	}
	if err := nodeRows.Err(); err != nil {
		return fmt.Errorf("iterate nodes: %w", err)
	}

	edgeRows, err := r.db.Query(ctx, `
		SELECT id, workflow_id, source, target, source_handle, target_handle, condition, seq
		FROM workflow_edges
		WHERE workflow_id = $1
		ORDER BY seq
	`, wf.ID)
	if err != nil {
		return fmt.Errorf("load edges: %w", err)
	}
	defer edgeRows.Close()

	wf.Edges = nil
	for edgeRows.Next() {
		edge := &models.WorkflowEdge{}
		err := edgeRows.Scan(
			&edge.ID, &edge.WorkflowID, &edge.Source, &edge.Target,
			&edge.SourceHandle, &edge.TargetHandle, &edge.Condition, &edge.Seq,
		)
		if err != nil {
			return fmt.Errorf("scan edge: %w", err)
		}
		wf.Edges = append(wf.Edges, edge)
	}
	if err := edgeRows.Err(); err != nil {
		return fmt.Errorf("iterate edges: %w", err)
	}

	return nil
}
