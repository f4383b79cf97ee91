// Package executor runs one workflow: topological ordering, per-node
// lifecycle bookkeeping, context propagation and first-failure
// short-circuit. Execution within a run is strictly sequential;
// concurrency lives between runs.
package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/agentkit/agentkit/cmd/agentkit/condition"
	"github.com/agentkit/agentkit/cmd/agentkit/nodes"
	"github.com/agentkit/agentkit/cmd/agentkit/resolver"
	"github.com/agentkit/agentkit/common/db"
	"github.com/agentkit/agentkit/common/logger"
	"github.com/agentkit/agentkit/common/models"
)

// Store is the slice of the persistence layer the executor writes
// through. Each call flushes immediately so concurrent readers observe
// run progress.
type Store interface {
	CreateRun(ctx context.Context, run *models.WorkflowRun) error
	UpdateRun(ctx context.Context, run *models.WorkflowRun) error
	CreateNodeRun(ctx context.Context, nr *models.NodeRun) error
	UpdateNodeRun(ctx context.Context, nr *models.NodeRun) error
}

// Executor executes workflows against a handler registry
type Executor struct {
	store     Store
	registry  *nodes.Registry
	evaluator *condition.Evaluator
	database  *db.DB
	log       *logger.Logger
}

// New creates an executor. database is the side channel handed to
// handlers and may be nil in tests.
func New(store Store, registry *nodes.Registry, log *logger.Logger, database *db.DB) *Executor {
	return &Executor{
		store:     store,
		registry:  registry,
		evaluator: condition.NewEvaluator(),
		database:  database,
		log:       log,
	}
}

// Execute runs a workflow to completion and returns the run record.
// Node failures are recorded on the run, not returned; the error return
// is reserved for the executor's own bookkeeping failures.
func (e *Executor) Execute(ctx context.Context, wf *models.Workflow, input map[string]interface{}, trigger string) (*models.WorkflowRun, error) {
	if input == nil {
		input = map[string]interface{}{}
	}

	run := &models.WorkflowRun{
		ID:           uuid.New(),
		WorkflowID:   wf.ID,
		Status:       models.RunRunning,
		TriggerType:  trigger,
		InputPayload: input,
		StartedAt:    time.Now().UTC(),
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run record: %w", err)
	}

	log := e.log.WithRunID(run.ID.String())
	log.Info("workflow run started",
		"workflow_id", wf.ID,
		"trigger", trigger,
		"nodes", len(wf.Nodes),
	)

	ordered, err := topoOrder(wf.Nodes, wf.Edges)
	if err != nil {
		return e.finalize(ctx, run, models.RunFailed, nil, err.Error())
	}

	runCtx := map[string]interface{}{
		"trigger":  map[string]interface{}{"body": input, "type": trigger},
		"workflow": map[string]interface{}{"variables": wf.Variables, "id": wf.ID.String()},
		"env":      map[string]interface{}{},
	}

	incoming := make(map[string][]*models.WorkflowEdge)
	for _, edge := range wf.Edges {
		incoming[edge.Target] = append(incoming[edge.Target], edge)
	}

	outputs := make(map[string]map[string]interface{})
	skipped := make(map[string]bool)
	lastOutput := map[string]interface{}{}

	for _, node := range ordered {
		key := node.Key()

		active, evalErr := e.branchActive(incoming[key], outputs, skipped, runCtx)
		if evalErr != nil {
			diag := evalErr.Error()
			if err := e.recordGateFailure(ctx, run, node, diag); err != nil {
				return e.abort(ctx, run, err)
			}
			return e.finalize(ctx, run, models.RunFailed, nil, fmt.Sprintf("Node %s failed: %s", key, diag))
		}
		if !active {
			skipped[key] = true
			if err := e.recordSkipped(ctx, run, node); err != nil {
				return e.abort(ctx, run, err)
			}
			log.Debug("node skipped", "node_key", key)
			continue
		}

		nr, execErr, storeErr := e.executeNode(ctx, run, node, runCtx)
		if storeErr != nil {
			return e.abort(ctx, run, storeErr)
		}
		if execErr != nil {
			log.Error("node failed", "node_key", key, "error", execErr)
			return e.finalize(ctx, run, models.RunFailed, nil, fmt.Sprintf("Node %s failed: %s", key, *nr.Error))
		}

		outputs[key] = nr.OutputData
		runCtx[key] = map[string]interface{}{"output": nr.OutputData}
		runCtx["_last_output"] = nr.OutputData
		lastOutput = nr.OutputData

		log.Debug("node completed", "node_key", key, "execution_time_ms", nr.ExecutionTimeMS)
	}

	return e.finalize(ctx, run, models.RunCompleted, lastOutput, "")
}

// branchActive reports whether a node should execute. A node with
// incoming edges runs only if at least one edge originates from an
// executed node and its condition holds.
func (e *Executor) branchActive(edges []*models.WorkflowEdge, outputs map[string]map[string]interface{}, skipped map[string]bool, runCtx map[string]interface{}) (bool, error) {
	if len(edges) == 0 {
		return true, nil
	}
	for _, edge := range edges {
		if skipped[edge.Source] {
			continue
		}
		expr := ""
		if edge.Condition != nil {
			expr = *edge.Condition
		}
		pass, err := e.evaluator.Evaluate(expr, outputs[edge.Source], runCtx)
		if err != nil {
			return false, fmt.Errorf("edge condition from %s: %w", edge.Source, err)
		}
		if pass {
			return true, nil
		}
	}
	return false, nil
}

// executeNode runs one node through its full lifecycle. execErr is the
// handler failure (recorded on the node run); storeErr is a persistence
// failure that aborts the executor itself.
func (e *Executor) executeNode(ctx context.Context, run *models.WorkflowRun, node *models.WorkflowNode, runCtx map[string]interface{}) (nr *models.NodeRun, execErr error, storeErr error) {
	nr = &models.NodeRun{
		ID:        uuid.New(),
		RunID:     run.ID,
		NodeID:    node.ID.String(),
		NodeKey:   node.Key(),
		Status:    models.NodeRunRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := e.store.CreateNodeRun(ctx, nr); err != nil {
		return nr, nil, fmt.Errorf("failed to create node run record: %w", err)
	}

	resolved, _ := resolver.Interpolate(node.Data, runCtx).(map[string]interface{})
	if resolved == nil {
		resolved = map[string]interface{}{}
	}
	nr.InputData = resolved

	result, err := e.dispatch(ctx, node.Type, resolved, runCtx)
	if err != nil {
		diag := err.Error()
		nr.Status = models.NodeRunFailed
		nr.Error = &diag
		execErr = err
	} else {
		output := result.Output
		if output == nil {
			output = map[string]interface{}{}
		}
		nr.Status = models.NodeRunCompleted
		nr.OutputData = output
		nr.TokenUsage = result.TokenUsage
	}

	completed := time.Now().UTC()
	nr.CompletedAt = &completed
	nr.ExecutionTimeMS = float64(completed.Sub(nr.StartedAt).Microseconds()) / 1000.0

	if err := e.store.UpdateNodeRun(ctx, nr); err != nil {
		return nr, execErr, fmt.Errorf("failed to flush node run record: %w", err)
	}
	return nr, execErr, nil
}

// dispatch resolves the handler and executes it, converting panics
// into errors so a misbehaving handler cannot take down the run loop.
func (e *Executor) dispatch(ctx context.Context, nodeType string, data, runCtx map[string]interface{}) (result *nodes.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()

	handler, err := e.registry.HandlerFor(nodeType)
	if err != nil {
		return nil, err
	}
	result, err = handler.Execute(ctx, data, runCtx, e.database)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &nodes.Result{Output: map[string]interface{}{}}
	}
	return result, nil
}

// abort finalizes the run as failed after a bookkeeping error, best
// effort, and propagates the original error. Leaving the run at
// running would strand it as a false in-flight record.
func (e *Executor) abort(ctx context.Context, run *models.WorkflowRun, cause error) (*models.WorkflowRun, error) {
	if _, err := e.finalize(ctx, run, models.RunFailed, nil, cause.Error()); err != nil {
		e.log.WithRunID(run.ID.String()).Error("failed to finalize aborted run", "error", err)
	}
	return run, cause
}

// recordSkipped writes a node run for a branch gated off by its edge
// conditions. No handler is dispatched.
func (e *Executor) recordSkipped(ctx context.Context, run *models.WorkflowRun, node *models.WorkflowNode) error {
	now := time.Now().UTC()
	nr := &models.NodeRun{
		ID:          uuid.New(),
		RunID:       run.ID,
		NodeID:      node.ID.String(),
		NodeKey:     node.Key(),
		Status:      models.NodeRunSkipped,
		StartedAt:   now,
		CompletedAt: &now,
	}
	if err := e.store.CreateNodeRun(ctx, nr); err != nil {
		return fmt.Errorf("failed to record skipped node: %w", err)
	}
	return nil
}

// recordGateFailure writes a failed node run for a node whose edge
// condition could not be evaluated
func (e *Executor) recordGateFailure(ctx context.Context, run *models.WorkflowRun, node *models.WorkflowNode, diag string) error {
	now := time.Now().UTC()
	nr := &models.NodeRun{
		ID:          uuid.New(),
		RunID:       run.ID,
		NodeID:      node.ID.String(),
		NodeKey:     node.Key(),
		Status:      models.NodeRunFailed,
		Error:       &diag,
		StartedAt:   now,
		CompletedAt: &now,
	}
	if err := e.store.CreateNodeRun(ctx, nr); err != nil {
		return fmt.Errorf("failed to record node failure: %w", err)
	}
	return nil
}

// finalize stamps the run terminal state and flushes it
func (e *Executor) finalize(ctx context.Context, run *models.WorkflowRun, status models.RunStatus, output map[string]interface{}, errMsg string) (*models.WorkflowRun, error) {
	run.Status = status
	run.OutputPayload = output
	if errMsg != "" {
		run.Error = &errMsg
	}
	completed := time.Now().UTC()
	run.CompletedAt = &completed

	if err := e.store.UpdateRun(ctx, run); err != nil {
		return run, fmt.Errorf("failed to flush run record: %w", err)
	}

	e.log.WithRunID(run.ID.String()).Info("workflow run finished",
		"status", run.Status,
		"error", errMsg,
	)
	return run, nil
}
