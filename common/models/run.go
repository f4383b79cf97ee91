package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the status of a workflow run
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// NodeRunStatus represents the status of a single node execution
type NodeRunStatus string

const (
	NodeRunPending   NodeRunStatus = "pending"
	NodeRunRunning   NodeRunStatus = "running"
	NodeRunCompleted NodeRunStatus = "completed"
	NodeRunFailed    NodeRunStatus = "failed"
	NodeRunSkipped   NodeRunStatus = "skipped"
)

// TriggerKind identifies what started a run
const (
	TriggerManual  = "manual"
	TriggerWebhook = "webhook"
	TriggerGmail   = "gmail"
)

// TokenUsage is the LLM token accounting sidecar attached to a node run
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// WorkflowRun is a single execution of a workflow.
// Created running, transitions to completed or failed exactly once.
// Maps to: workflow_runs table (node_runs cascade on delete).
type WorkflowRun struct {
	ID            uuid.UUID              `db:"id" json:"id"`
	WorkflowID    uuid.UUID              `db:"workflow_id" json:"workflow_id"`
	Status        RunStatus              `db:"status" json:"status"`
	TriggerType   string                 `db:"trigger_type" json:"trigger_type"`
	InputPayload  map[string]interface{} `db:"input_payload" json:"input_payload"`
	OutputPayload map[string]interface{} `db:"output_payload" json:"output_payload"`
	Error         *string                `db:"error" json:"error,omitempty"`
	StartedAt     time.Time              `db:"started_at" json:"started_at"`
	CompletedAt   *time.Time             `db:"completed_at" json:"completed_at,omitempty"`

	NodeRuns []*NodeRun `json:"node_runs"`
}

// NodeRun is one node's slice of a run.
// Maps to: node_runs table.
type NodeRun struct {
	ID              uuid.UUID              `db:"id" json:"id"`
	RunID           uuid.UUID              `db:"run_id" json:"run_id"`
	NodeID          string                 `db:"node_id" json:"node_id"`
	NodeKey         string                 `db:"node_key" json:"node_key"`
	Status          NodeRunStatus          `db:"status" json:"status"`
	InputData       map[string]interface{} `db:"input_data" json:"input_data"`
	OutputData      map[string]interface{} `db:"output_data" json:"output_data"`
	Error           *string                `db:"error" json:"error,omitempty"`
	ExecutionTimeMS float64                `db:"execution_time_ms" json:"execution_time_ms"`
	TokenUsage      *TokenUsage            `db:"token_usage" json:"token_usage,omitempty"`
	StartedAt       time.Time              `db:"started_at" json:"started_at"`
	CompletedAt     *time.Time             `db:"completed_at" json:"completed_at,omitempty"`
}
