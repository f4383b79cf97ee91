package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentkit/agentkit/cmd/agentkit/gmail"
	"github.com/agentkit/agentkit/common/config"
	"github.com/agentkit/agentkit/common/crypto"
	"github.com/agentkit/agentkit/common/logger"
	"github.com/agentkit/agentkit/common/models"
)

type fakeIntegrationStore struct {
	integrations []*models.Integration
	listErr      error

	updatedID     uuid.UUID
	updatedSealed string
	updateCalls   int
}

func (s *fakeIntegrationStore) ListByTypeAndStatus(_ context.Context, kind, status string) ([]*models.Integration, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*models.Integration
	for _, in := range s.integrations {
		if in.Type == kind && in.Status == status {
			out = append(out, in)
		}
	}
	return out, nil
}

func (s *fakeIntegrationStore) UpdateCredentials(_ context.Context, id uuid.UUID, sealed string) error {
	s.updatedID = id
	s.updatedSealed = sealed
	s.updateCalls++
	return nil
}

type fakeWorkflowStore struct {
	workflows []*models.Workflow
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

type executedRun struct {
	workflowID uuid.UUID
	input      map[string]interface{}
	trigger    string
}

type fakeRunner struct {
	runs []executedRun
}

func (r *fakeRunner) Execute(_ context.Context, wf *models.Workflow, input map[string]interface{}, trigger string) (*models.WorkflowRun, error) {
	r.runs = append(r.runs, executedRun{workflowID: wf.ID, input: input, trigger: trigger})
	return &models.WorkflowRun{ID: uuid.New(), WorkflowID: wf.ID, Status: models.RunCompleted}, nil
}

type fakeMailClient struct {
	unread       []*gmail.Message
	windowed     []*gmail.Message
	unreadCalls  int
	sinceCalls   int
	lastSince    time.Time
	updatedCreds map[string]interface{}
	refreshed    bool
	listErr      error
}

func (c *fakeMailClient) ListUnread(_ context.Context, _ int) ([]*gmail.Message, error) {
	c.unreadCalls++
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.unread, nil
}

func (c *fakeMailClient) ListSince(_ context.Context, since time.Time, _ int) ([]*gmail.Message, error) {
	c.sinceCalls++
	c.lastSince = since
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.windowed, nil
}

func (c *fakeMailClient) UpdatedCredentials() (map[string]interface{}, bool, error) {
	if c.updatedCreds != nil {
		return c.updatedCreds, c.refreshed, nil
	}
	return map[string]interface{}{"access_token": "tok-1"}, false, nil
}

func testSealer(t *testing.T) *crypto.Sealer {
	t.Helper()
	sealer, err := crypto.NewSealer("test-encryption-key")
	require.NoError(t, err)
	return sealer
}

func testIntegration(t *testing.T, sealer *crypto.Sealer) *models.Integration {
	t.Helper()
	sealed, err := sealer.Seal(map[string]interface{}{
		"access_token":  "tok-1",
		"refresh_token": "refresh-1",
	})
	require.NoError(t, err)
	return &models.Integration{
		ID:                   uuid.New(),
		UserID:               uuid.New(),
		Name:                 "inbox",
		Type:                 models.IntegrationGmail,
		Status:               models.IntegrationActive,
		CredentialsEncrypted: sealed,
	}
}

func triggerWorkflow(userID uuid.UUID, integrationID string) *models.Workflow {
	return &models.Workflow{
		ID:     uuid.New(),
		UserID: userID,
		Status: models.WorkflowPublished,
		Nodes: []*models.WorkflowNode{
			{
				ID:      uuid.New(),
				NodeKey: "A",
				Type:    "email_trigger",
				Data: map[string]interface{}{
					"trigger_config": map[string]interface{}{"integration_id": integrationID},
				},
			},
		},
	}
}

func newTestPoller(integrations *fakeIntegrationStore, workflows *fakeWorkflowStore, runner *fakeRunner, sealer *crypto.Sealer, client MailClient) *Poller {
	cfg := config.PollerConfig{
		Interval:    time.Minute,
		FirstRunMax: 10,
		WindowMax:   50,
		Enabled:     true,
	}
	p := New(integrations, workflows, runner, sealer, cfg, logger.New("error", "json"))
	p.newClient = func(_ context.Context, _ map[string]interface{}) (MailClient, error) {
		return client, nil
	}
	return p
}

func twoMessages() []*gmail.Message {
	return []*gmail.Message{
		{MessageID: "m1", Subject: "first", Sender: "a@x", Body: "one", Attachments: []interface{}{}},
		{MessageID: "m2", Subject: "second", Sender: "b@x", Body: "two", Attachments: []interface{}{}},
	}
}

func TestFirstTickFetchesUnreadAndDispatches(t *testing.T) {
	sealer := testSealer(t)
	integration := testIntegration(t, sealer)
	wf := triggerWorkflow(integration.UserID, integration.ID.String())

	client := &fakeMailClient{unread: twoMessages()}
	runner := &fakeRunner{}
	p := newTestPoller(
		&fakeIntegrationStore{integrations: []*models.Integration{integration}},
		&fakeWorkflowStore{workflows: []*models.Workflow{wf}},
		runner, sealer, client,
	)

	before := time.Now().UTC()
	p.PollAll(context.Background())

	assert.Equal(t, 1, client.unreadCalls)
	assert.Equal(t, 0, client.sinceCalls)

	require.Len(t, runner.runs, 2)
	for _, run := range runner.runs {
		assert.Equal(t, wf.ID, run.workflowID)
		assert.Equal(t, models.TriggerGmail, run.trigger)
		assert.Equal(t, "gmail", run.input["trigger_type"])
		assert.Equal(t, integration.ID.String(), run.input["integration_id"])
	}
	body := runner.runs[0].input["body"].(map[string]interface{})
	assert.Equal(t, "m1", body["message_id"])
	assert.Equal(t, "one", body["email_content"])

	last, ok := p.LastCheck(integration.ID.String())
	require.True(t, ok)
	assert.WithinDuration(t, before, last, 5*time.Second)
}

func TestSecondTickUsesTimeWindow(t *testing.T) {
	sealer := testSealer(t)
	integration := testIntegration(t, sealer)

	client := &fakeMailClient{}
	runner := &fakeRunner{}
	p := newTestPoller(
		&fakeIntegrationStore{integrations: []*models.Integration{integration}},
		&fakeWorkflowStore{},
		runner, sealer, client,
	)

	p.PollAll(context.Background())
	firstWindow, _ := p.LastCheck(integration.ID.String())

	p.PollAll(context.Background())

	assert.Equal(t, 1, client.unreadCalls)
	assert.Equal(t, 1, client.sinceCalls)
	assert.Equal(t, firstWindow, client.lastSince)
}

func TestRestartRefetchesUnread(t *testing.T) {
	sealer := testSealer(t)
	integration := testIntegration(t, sealer)
	wf := triggerWorkflow(integration.UserID, integration.ID.String())

	client := &fakeMailClient{unread: twoMessages()}
	runner := &fakeRunner{}
	integrations := &fakeIntegrationStore{integrations: []*models.Integration{integration}}
	workflows := &fakeWorkflowStore{workflows: []*models.Workflow{wf}}

	p1 := newTestPoller(integrations, workflows, runner, sealer, client)
	p1.PollAll(context.Background())
	require.Len(t, runner.runs, 2)

	// A fresh poller has no last_check state: same messages, two more runs
	p2 := newTestPoller(integrations, workflows, runner, sealer, client)
	p2.PollAll(context.Background())
	assert.Len(t, runner.runs, 4)
}

func TestPollErrorDoesNotAbortSiblings(t *testing.T) {
	sealer := testSealer(t)
	broken := testIntegration(t, sealer)
	broken.CredentialsEncrypted = "garbage"
	healthy := testIntegration(t, sealer)
	wf := triggerWorkflow(healthy.UserID, healthy.ID.String())

	client := &fakeMailClient{unread: twoMessages()}
	runner := &fakeRunner{}
	p := newTestPoller(
		&fakeIntegrationStore{integrations: []*models.Integration{broken, healthy}},
		&fakeWorkflowStore{workflows: []*models.Workflow{wf}},
		runner, sealer, client,
	)

	p.PollAll(context.Background())

	assert.Len(t, runner.runs, 2)
	_, brokenChecked := p.LastCheck(broken.ID.String())
	assert.False(t, brokenChecked)
}

func TestWindowAdvancesEvenWhenFetchFails(t *testing.T) {
	sealer := testSealer(t)
	integration := testIntegration(t, sealer)

	client := &fakeMailClient{listErr: errors.New("gmail API error 500")}
	p := newTestPoller(
		&fakeIntegrationStore{integrations: []*models.Integration{integration}},
		&fakeWorkflowStore{},
		&fakeRunner{}, sealer, client,
	)

	err := p.PollOne(context.Background(), integration)
	assert.Error(t, err)

	_, checked := p.LastCheck(integration.ID.String())
	assert.True(t, checked)
}

func TestRefreshedCredentialsAreResealed(t *testing.T) {
	sealer := testSealer(t)
	integration := testIntegration(t, sealer)

	client := &fakeMailClient{
		updatedCreds: map[string]interface{}{
			"access_token":  "tok-2",
			"refresh_token": "refresh-1",
		},
		refreshed: true,
	}
	integrations := &fakeIntegrationStore{integrations: []*models.Integration{integration}}
	p := newTestPoller(integrations, &fakeWorkflowStore{}, &fakeRunner{}, sealer, client)

	require.NoError(t, p.PollOne(context.Background(), integration))

	assert.Equal(t, 1, integrations.updateCalls)
	assert.Equal(t, integration.ID, integrations.updatedID)

	unsealed, err := sealer.Unseal(integrations.updatedSealed)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", unsealed["access_token"])
}

func TestMatchWorkflowsByTriggerConfig(t *testing.T) {
	userID := uuid.New()
	integrationID := uuid.New().String()

	matching := triggerWorkflow(userID, integrationID)
	otherIntegration := triggerWorkflow(userID, uuid.New().String())
	noTrigger := &models.Workflow{
		ID: uuid.New(), UserID: userID, Status: models.WorkflowPublished,
		Nodes: []*models.WorkflowNode{{ID: uuid.New(), NodeKey: "R", Type: "response"}},
	}

	matched := matchWorkflows([]*models.Workflow{matching, otherIntegration, noTrigger}, integrationID)
	require.Len(t, matched, 1)
	assert.Equal(t, matching.ID, matched[0].ID)
}

func TestStartStopIdempotent(t *testing.T) {
	sealer := testSealer(t)
	p := newTestPoller(&fakeIntegrationStore{}, &fakeWorkflowStore{}, &fakeRunner{}, sealer, &fakeMailClient{})

	p.Start(context.Background())
	p.Start(context.Background())
	p.Stop()
	p.Stop()
}
