// Package poller runs the background Gmail polling loop: every tick it
// unseals each active integration's credentials, fetches new mail and
// dispatches matching published workflows. One process-wide instance
// handles all integrations; its last-check window lives in memory only,
// so a restart refetches recent unread mail (at-least-once delivery).
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentkit/agentkit/cmd/agentkit/gmail"
	"github.com/agentkit/agentkit/common/config"
	"github.com/agentkit/agentkit/common/crypto"
	"github.com/agentkit/agentkit/common/logger"
	"github.com/agentkit/agentkit/common/models"
)

// IntegrationStore lists poll targets and rotates their credentials
type IntegrationStore interface {
	ListByTypeAndStatus(ctx context.Context, kind, status string) ([]*models.Integration, error)
	UpdateCredentials(ctx context.Context, id uuid.UUID, sealed string) error
}

// WorkflowStore selects candidate workflows for dispatch
type WorkflowStore interface {
	ListByUserAndStatus(ctx context.Context, userID uuid.UUID, status models.WorkflowStatus) ([]*models.Workflow, error)
}

// Runner executes a matched workflow
type Runner interface {
	Execute(ctx context.Context, wf *models.Workflow, input map[string]interface{}, trigger string) (*models.WorkflowRun, error)
}

// MailClient is the slice of the Gmail client the poller consumes
type MailClient interface {
	ListUnread(ctx context.Context, max int) ([]*gmail.Message, error)
	ListSince(ctx context.Context, since time.Time, max int) ([]*gmail.Message, error)
	UpdatedCredentials() (map[string]interface{}, bool, error)
}

// ClientFactory builds a mail client from unsealed credentials.
// Swapped for a fake in tests.
type ClientFactory func(ctx context.Context, creds map[string]interface{}) (MailClient, error)

// Poller is the process-wide Gmail polling loop
type Poller struct {
	integrations IntegrationStore
	workflows    WorkflowStore
	runner       Runner
	sealer       *crypto.Sealer
	newClient    ClientFactory
	cfg          config.PollerConfig
	log          *logger.Logger

	mu        sync.Mutex
	lastCheck map[string]time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stop      chan struct{}
	done      chan struct{}
}

// New creates a poller. Call Start to begin the loop.
func New(integrations IntegrationStore, workflows WorkflowStore, runner Runner, sealer *crypto.Sealer, cfg config.PollerConfig, log *logger.Logger) *Poller {
	p := &Poller{
		integrations: integrations,
		workflows:    workflows,
		runner:       runner,
		sealer:       sealer,
		cfg:          cfg,
		log:          log,
		lastCheck:    make(map[string]time.Time),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	p.newClient = func(ctx context.Context, creds map[string]interface{}) (MailClient, error) {
		return gmail.NewClient(ctx, creds, log)
	}
	return p
}

// Start launches the polling loop in its own goroutine. Idempotent.
func (p *Poller) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.mu.Lock()
		p.started = true
		p.mu.Unlock()
		go p.run(ctx)
	})
}

// Stop signals the loop to exit and waits for the in-flight tick to
// finish. Idempotent; safe to call even if Start never ran.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if started {
		<-p.done
	}
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	p.log.Info("gmail poller started", "interval", p.cfg.Interval)
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// First tick immediately, then on the interval
	p.PollAll(ctx)
	for {
		select {
		case <-p.stop:
			p.log.Info("gmail poller stopped")
			return
		case <-ctx.Done():
			p.log.Info("gmail poller stopped", "reason", ctx.Err())
			return
		case <-ticker.C:
			p.PollAll(ctx)
		}
	}
}

// PollAll polls every active gmail integration once. Failures in one
// integration are logged and do not abort the others.
func (p *Poller) PollAll(ctx context.Context) {
	integrations, err := p.integrations.ListByTypeAndStatus(ctx, models.IntegrationGmail, models.IntegrationActive)
	if err != nil {
		p.log.Error("failed to list gmail integrations", "error", err)
		return
	}

	for _, integration := range integrations {
		if err := p.PollOne(ctx, integration); err != nil {
			p.log.WithIntegrationID(integration.ID.String()).Error("integration poll failed", "error", err)
		}
	}
}

// PollOne polls a single integration: unseal credentials, fetch the
// window, dispatch matching workflows, persist refreshed credentials.
func (p *Poller) PollOne(ctx context.Context, integration *models.Integration) error {
	creds, err := p.sealer.Unseal(integration.CredentialsEncrypted)
	if err != nil {
		return fmt.Errorf("failed to unseal credentials: %w", err)
	}

	client, err := p.newClient(ctx, creds)
	if err != nil {
		return fmt.Errorf("failed to build gmail client: %w", err)
	}

	key := integration.ID.String()
	p.mu.Lock()
	since, seen := p.lastCheck[key]
	// Advance the window before processing so a failed dispatch doesn't
	// replay the same messages forever
	p.lastCheck[key] = time.Now().UTC()
	p.mu.Unlock()

	var messages []*gmail.Message
	if seen {
		messages, err = client.ListSince(ctx, since, p.cfg.WindowMax)
	} else {
		messages, err = client.ListUnread(ctx, p.cfg.FirstRunMax)
	}
	if err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}

	if len(messages) > 0 {
		p.log.WithIntegrationID(key).Info("new messages found", "count", len(messages))
		p.dispatch(ctx, integration, messages)
	}

	updated, changed, err := client.UpdatedCredentials()
	if err != nil {
		return fmt.Errorf("credential refresh check failed: %w", err)
	}
	if changed {
		sealed, err := p.sealer.Seal(updated)
		if err != nil {
			return fmt.Errorf("failed to seal refreshed credentials: %w", err)
		}
		if err := p.integrations.UpdateCredentials(ctx, integration.ID, sealed); err != nil {
			return fmt.Errorf("failed to persist refreshed credentials: %w", err)
		}
		p.log.WithIntegrationID(key).Info("refreshed credentials persisted")
	}

	return nil
}

// dispatch triggers each matching published workflow once per message.
// Executions run sequentially; a failed run is logged and the rest
// proceed.
func (p *Poller) dispatch(ctx context.Context, integration *models.Integration, messages []*gmail.Message) {
	log := p.log.WithIntegrationID(integration.ID.String())

	workflows, err := p.workflows.ListByUserAndStatus(ctx, integration.UserID, models.WorkflowPublished)
	if err != nil {
		log.Error("failed to list workflows", "error", err)
		return
	}

	matched := matchWorkflows(workflows, integration.ID.String())
	if len(matched) == 0 {
		log.Debug("no workflows configured for integration")
		return
	}

	for _, msg := range messages {
		for _, wf := range matched {
			payload := map[string]interface{}{
				"trigger_type":   models.TriggerGmail,
				"integration_id": integration.ID.String(),
				"body":           msg.TriggerBody(),
			}

			log.Info("triggering workflow", "workflow_id", wf.ID, "subject", msg.Subject)
			if _, err := p.runner.Execute(ctx, wf, payload, models.TriggerGmail); err != nil {
				log.Error("workflow execution failed", "workflow_id", wf.ID, "error", err)
			}
		}
	}
}

// matchWorkflows selects workflows that have an email_trigger node
// bound to the integration. First matching node suffices per workflow.
func matchWorkflows(workflows []*models.Workflow, integrationID string) []*models.Workflow {
	var matched []*models.Workflow
	for _, wf := range workflows {
		for _, node := range wf.Nodes {
			if node.Type != "email_trigger" {
				continue
			}
			triggerCfg, _ := node.Data["trigger_config"].(map[string]interface{})
			if id, _ := triggerCfg["integration_id"].(string); id == integrationID {
				matched = append(matched, wf)
				break
			}
		}
	}
	return matched
}

// LastCheck reports the recorded window start for an integration
func (p *Poller) LastCheck(integrationID string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.lastCheck[integrationID]
	return t, ok
}
