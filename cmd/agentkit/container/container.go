// Package container wires all services and repositories once at
// startup (singleton pattern) so handlers and the poller share the
// same instances.
package container

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/agentkit/agentkit/cmd/agentkit/executor"
	"github.com/agentkit/agentkit/cmd/agentkit/nodes"
	"github.com/agentkit/agentkit/cmd/agentkit/poller"
	"github.com/agentkit/agentkit/common/bootstrap"
	"github.com/agentkit/agentkit/common/crypto"
	"github.com/agentkit/agentkit/common/models"
	"github.com/agentkit/agentkit/common/ratelimit"
	"github.com/agentkit/agentkit/common/repository"
)

// WorkflowStore is the slice of the workflow repository the handlers
// consume. Tests substitute in-memory fakes.
type WorkflowStore interface {
	Create(ctx context.Context, wf *models.Workflow) error
	GetWithGraph(ctx context.Context, id uuid.UUID) (*models.Workflow, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Workflow, error)
	ListByUserAndStatus(ctx context.Context, userID uuid.UUID, status models.WorkflowStatus) ([]*models.Workflow, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.WorkflowStatus) error
}

// RunStore extends the executor's write surface with the read side the
// run history handlers need
type RunStore interface {
	executor.Store
	GetRun(ctx context.Context, runID uuid.UUID) (*models.WorkflowRun, error)
	ListRuns(ctx context.Context, userID uuid.UUID, workflowID *uuid.UUID, limit int) ([]*models.WorkflowRun, error)
}

// IntegrationStore is the slice of the integration repository the
// gmail handlers consume
type IntegrationStore interface {
	Create(ctx context.Context, in *models.Integration) error
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Integration, error)
	ListByTypeAndStatus(ctx context.Context, kind, status string) ([]*models.Integration, error)
	UpdateCredentials(ctx context.Context, id uuid.UUID, sealed string) error
}

// Container holds all initialized services and repositories
type Container struct {
	Components *bootstrap.Components
	Redis      *redis.Client
	Limiter    *ratelimit.Limiter

	// Repositories
	WorkflowRepo    WorkflowStore
	RunRepo         RunStore
	IntegrationRepo IntegrationStore

	// Services
	Sealer   *crypto.Sealer
	Registry *nodes.Registry
	Executor *executor.Executor
	Poller   *poller.Poller
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	cfg := components.Config

	sealer, err := crypto.NewSealer(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential sealer: %w", err)
	}

	redisClient, limiter := createLimiter(components)

	// Repositories
	workflowRepo := repository.NewWorkflowRepository(components.DB)
	runRepo := repository.NewRunRepository(components.DB)
	integrationRepo := repository.NewIntegrationRepository(components.DB)

	// Services (bottom-up: dependencies first)
	registry := nodes.NewRegistry(cfg)
	exec := executor.New(runRepo, registry, components.Logger, components.DB)
	gmailPoller := poller.New(
		integrationRepo,
		workflowRepo,
		exec,
		sealer,
		cfg.Poller,
		components.Logger,
	)

	return &Container{
		Components:      components,
		Redis:           redisClient,
		Limiter:         limiter,
		WorkflowRepo:    workflowRepo,
		RunRepo:         runRepo,
		IntegrationRepo: integrationRepo,
		Sealer:          sealer,
		Registry:        registry,
		Executor:        exec,
		Poller:          gmailPoller,
	}, nil
}

// Shutdown releases container-owned resources. Bootstrap components
// have their own cleanup.
func (c *Container) Shutdown() {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Components.Logger.Error("failed to close redis client", "error", err)
		}
	}
}

// createLimiter builds the Redis-backed webhook rate limiter.
// A missing or unreachable Redis leaves the limiter nil; the webhook
// middleware fails open in that case.
func createLimiter(components *bootstrap.Components) (*redis.Client, *ratelimit.Limiter) {
	cfg := components.Config
	if !cfg.RateLimit.Enabled || cfg.Redis.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		components.Logger.Warn("invalid REDIS_URL, webhook rate limiting disabled", "error", err)
		return nil, nil
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		components.Logger.Warn("redis unreachable, webhook rate limiting will fail open", "error", err)
	}

	return client, ratelimit.NewLimiter(client, components.Logger)
}
