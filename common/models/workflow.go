package models

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowStatus represents the lifecycle state of a workflow
type WorkflowStatus string

const (
	WorkflowDraft     WorkflowStatus = "draft"
	WorkflowPublished WorkflowStatus = "published"
)

// Workflow is a persistent directed acyclic graph of nodes and edges.
// Maps to: workflows table (nodes and edges cascade on delete).
type Workflow struct {
	ID          uuid.UUID              `db:"id" json:"id"`
	UserID      uuid.UUID              `db:"user_id" json:"user_id"`
	AgentID     *uuid.UUID             `db:"agent_id" json:"agent_id,omitempty"`
	Name        string                 `db:"name" json:"name"`
	Description string                 `db:"description" json:"description"`
	Status      WorkflowStatus         `db:"status" json:"status"`
	Variables   map[string]interface{} `db:"variables" json:"variables"`
	Metadata    map[string]interface{} `db:"metadata" json:"metadata"`
	CreatedAt   time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time              `db:"updated_at" json:"updated_at"`

	// Eagerly loaded graph, ordered by seq (insertion order). The executor's
	// FIFO tie-break depends on this ordering being stable.
	Nodes []*WorkflowNode `json:"nodes"`
	Edges []*WorkflowEdge `json:"edges"`
}

// WorkflowNode is one element of a workflow graph.
// Maps to: workflow_nodes table.
type WorkflowNode struct {
	ID           uuid.UUID              `db:"id" json:"id"`
	WorkflowID   uuid.UUID              `db:"workflow_id" json:"workflow_id"`
	NodeKey      string                 `db:"node_key" json:"node_key"`
	Type         string                 `db:"type" json:"type"`
	Seq          int                    `db:"seq" json:"seq"`
	PositionX    float64                `db:"position_x" json:"position_x"`
	PositionY    float64                `db:"position_y" json:"position_y"`
	Data         map[string]interface{} `db:"data" json:"data"`
	CustomNodeID *uuid.UUID             `db:"custom_node_id" json:"custom_node_id,omitempty"`
}

// Key returns the author-assigned node key, falling back to the persistent id.
// Edges and expressions reference nodes by this key.
func (n *WorkflowNode) Key() string {
	if n.NodeKey != "" {
		return n.NodeKey
	}
	return n.ID.String()
}

// WorkflowEdge is a directed link between two node keys.
// Maps to: workflow_edges table.
type WorkflowEdge struct {
	ID           uuid.UUID `db:"id" json:"id"`
	WorkflowID   uuid.UUID `db:"workflow_id" json:"workflow_id"`
	Source       string    `db:"source" json:"source"`
	Target       string    `db:"target" json:"target"`
	SourceHandle *string   `db:"source_handle" json:"source_handle,omitempty"`
	TargetHandle *string   `db:"target_handle" json:"target_handle,omitempty"`
	Seq          int       `db:"seq" json:"seq"`

	// Condition is a CEL expression gating the target node. Evaluated with
	// `output` bound to the source node's output and `ctx` to the run
	// context; false marks the target skipped. Empty means always true.
	Condition *string `db:"condition" json:"condition,omitempty"`
}
