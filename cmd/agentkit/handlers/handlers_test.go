package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/agentkit/agentkit/cmd/agentkit/container"
	"github.com/agentkit/agentkit/cmd/agentkit/executor"
	"github.com/agentkit/agentkit/cmd/agentkit/nodes"
	"github.com/agentkit/agentkit/common/bootstrap"
	"github.com/agentkit/agentkit/common/config"
	"github.com/agentkit/agentkit/common/logger"
	"github.com/agentkit/agentkit/common/models"
	"github.com/agentkit/agentkit/common/repository"
)

// fakeWorkflowStore is an in-memory container.WorkflowStore
type fakeWorkflowStore struct {
	workflows map[uuid.UUID]*models.Workflow
}

func newFakeWorkflowStore(workflows ...*models.Workflow) *fakeWorkflowStore {
	s := &fakeWorkflowStore{workflows: make(map[uuid.UUID]*models.Workflow)}
	for _, wf := range workflows {
		s.workflows[wf.ID] = wf
	}
	return s
}

func (s *fakeWorkflowStore) Create(_ context.Context, wf *models.Workflow) error {
	s.workflows[wf.ID] = wf
	return nil
}

func (s *fakeWorkflowStore) GetWithGraph(_ context.Context, id uuid.UUID) (*models.Workflow, error) {
	wf, ok := s.workflows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return wf, nil
}

func (s *fakeWorkflowStore) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Workflow, error) {
	var out []*models.Workflow
	for _, wf := range s.workflows {
		if wf.UserID == userID {
			out = append(out, wf)
		}
	}
	return out, nil
}

func (s *fakeWorkflowStore) ListByUserAndStatus(_ context.Context, userID uuid.UUID, status models.WorkflowStatus) ([]*models.Workflow, error) {
	var out []*models.Workflow
	for _, wf := range s.workflows {
		if wf.UserID == userID && wf.Status == status {
			out = append(out, wf)
		}
	}
	return out, nil
}

func (s *fakeWorkflowStore) UpdateStatus(_ context.Context, id uuid.UUID, status models.WorkflowStatus) error {
	wf, ok := s.workflows[id]
	if !ok {
		return repository.ErrNotFound
	}
	wf.Status = status
	return nil
}

// fakeRunStore is an in-memory container.RunStore
type fakeRunStore struct {
	runs     map[uuid.UUID]*models.WorkflowRun
	nodeRuns []*models.NodeRun
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{runs: make(map[uuid.UUID]*models.WorkflowRun)}
}

func (s *fakeRunStore) CreateRun(_ context.Context, run *models.WorkflowRun) error {
	s.runs[run.ID] = run
	return nil
}

func (s *fakeRunStore) UpdateRun(_ context.Context, run *models.WorkflowRun) error {
	s.runs[run.ID] = run
	return nil
}

func (s *fakeRunStore) CreateNodeRun(_ context.Context, nr *models.NodeRun) error {
	s.nodeRuns = append(s.nodeRuns, nr)
	return nil
}

func (s *fakeRunStore) UpdateNodeRun(_ context.Context, _ *models.NodeRun) error {
	return nil
}

func (s *fakeRunStore) GetRun(_ context.Context, runID uuid.UUID) (*models.WorkflowRun, error) {
	run, ok := s.runs[runID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	run.NodeRuns = nil
	for _, nr := range s.nodeRuns {
		if nr.RunID == runID {
			run.NodeRuns = append(run.NodeRuns, nr)
		}
	}
	return run, nil
}

func (s *fakeRunStore) ListRuns(_ context.Context, _ uuid.UUID, _ *uuid.UUID, _ int) ([]*models.WorkflowRun, error) {
	var out []*models.WorkflowRun
	for _, run := range s.runs {
		out = append(out, run)
	}
	return out, nil
}

// newTestContainer wires handlers against in-memory stores and a real
// executor with the builtin registry. No database or Redis involved.
func newTestContainer(wfStore container.WorkflowStore, runStore container.RunStore) *container.Container {
	cfg := &config.Config{}
	log := logger.New("error", "json")
	exec := executor.New(runStore, nodes.NewRegistry(cfg), log, nil)

	return &container.Container{
		Components:   &bootstrap.Components{Config: cfg, Logger: log},
		WorkflowRepo: wfStore,
		RunRepo:      runStore,
		Executor:     exec,
	}
}
