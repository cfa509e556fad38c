package itsm

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/persistence"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/ticketing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serviceNowHook(operation, number, state, extra string) []byte {
	return []byte(fmt.Sprintf(`{"operation":%q,"table":"incident","record":{"number":%q,"state":%q,"priority":"3","short_description":"Exposed S3 bucket"%s}}`,
		operation, number, state, extra))
}

// A later update for a known external id is classified update, no second
// create is recorded and the audit entry is marked idempotent.
func TestWebhookService_IdempotentCollapse(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.connect(t, itsm.PlatformServiceNow)

	first, err := env.webhooks.Process(ctx, env.orgID, itsm.PlatformServiceNow, serviceNowHook("insert", "INC001", "1", ""), WebhookOptions{})
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, itsm.InboundActionCreate, first.Action)
	assert.False(t, first.Idempotent)

	second, err := env.webhooks.Process(ctx, env.orgID, itsm.PlatformServiceNow, serviceNowHook("update", "INC001", "2", ""), WebhookOptions{})
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, itsm.InboundActionUpdate, second.Action)
	assert.True(t, second.Idempotent)

	// a redelivered insert collapses too
	third, err := env.webhooks.Process(ctx, env.orgID, itsm.PlatformServiceNow, serviceNowHook("insert", "INC001", "2", ""), WebhookOptions{})
	require.NoError(t, err)
	assert.Equal(t, itsm.InboundActionUpdate, third.Action)
	assert.True(t, third.Idempotent)

	creates := env.auditLogs(t, itsm.AuditLogFilter{ExternalID: "INC001", Action: itsm.AuditActionInboundCreate})
	require.Len(t, creates, 1)
	assert.False(t, creates[0].IsIdempotentUpdate())

	updates := env.auditLogs(t, itsm.AuditLogFilter{ExternalID: "INC001", Action: itsm.AuditActionInboundUpdate})
	require.Len(t, updates, 2)
	for _, u := range updates {
		assert.Equal(t, itsm.AuditOutcomeSuccess, u.Outcome)
		assert.True(t, u.IsIdempotentUpdate(), u.Details)
	}

	assert.Len(t, env.syncEvents(t, itsm.SyncEventFilter{ExternalID: "INC001", EventType: itsm.EventTypeTicketCreated}), 1)
	assert.Len(t, env.syncEvents(t, itsm.SyncEventFilter{ExternalID: "INC001", EventType: itsm.EventTypeTicketUpdated}), 2)

	state, err := env.ticketRepo.FindByExternalID(ctx, env.orgID, itsm.PlatformServiceNow, "INC001")
	require.NoError(t, err)
	assert.Equal(t, "2", state.Status)

	assert.Equal(t, 1, env.metrics.webhooks[WebhookOutcomeProcessed])
	assert.Equal(t, 2, env.metrics.webhooks[WebhookOutcomeIdempotent])
	assert.Len(t, env.publisher.events, 3)
}

func TestWebhookService_PriorOutboundHistoryCountsAsSeen(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.connect(t, itsm.PlatformServiceNow)

	entry := itsm.NewAuditLog(env.orgID, itsm.PlatformServiceNow, itsm.OutboundAuditAction(itsm.SyncActionCreate), itsm.AuditOutcomeSuccess, "delivered")
	entry.ExternalID = "INC777"
	require.NoError(t, env.auditRepo.Create(ctx, entry))

	res, err := env.webhooks.Process(ctx, env.orgID, itsm.PlatformServiceNow, serviceNowHook("insert", "INC777", "1", ""), WebhookOptions{})
	require.NoError(t, err)
	assert.Equal(t, itsm.InboundActionUpdate, res.Action)
	assert.True(t, res.Idempotent)
}

func TestWebhookService_MalformedBodyLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.connect(t, itsm.PlatformServiceNow)

	tests := []struct {
		name string
		body []byte
	}{
		{"Invalid JSON", []byte(`{"operation":`)},
		{"Missing record", []byte(`{"operation":"insert"}`)},
		{"Missing operation", []byte(`{"record":{"number":"INC9"}}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.webhooks.Process(ctx, env.orgID, itsm.PlatformServiceNow, tt.body, WebhookOptions{})
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.NotEmpty(t, res.Error)
		})
	}

	assert.Empty(t, env.auditLogs(t, itsm.AuditLogFilter{}))
	assert.Empty(t, env.syncEvents(t, itsm.SyncEventFilter{}))
	assert.Equal(t, 3, env.metrics.webhooks[WebhookOutcomeRejected])
}

func TestWebhookService_ForwardOnlyStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("Backwards transition is skipped and audited", func(t *testing.T) {
		env := newTestEnv(t)
		env.connect(t, itsm.PlatformServiceNow)

		_, err := env.webhooks.Process(ctx, env.orgID, itsm.PlatformServiceNow, serviceNowHook("insert", "INC002", "6", ""), WebhookOptions{})
		require.NoError(t, err)
		res, err := env.webhooks.Process(ctx, env.orgID, itsm.PlatformServiceNow, serviceNowHook("update", "INC002", "2", ""), WebhookOptions{})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.True(t, res.StatusSkipped)

		state, err := env.ticketRepo.FindByExternalID(ctx, env.orgID, itsm.PlatformServiceNow, "INC002")
		require.NoError(t, err)
		assert.Equal(t, "6", state.Status)

		skipped := env.auditLogs(t, itsm.AuditLogFilter{Action: itsm.AuditActionStatusTransition})
		require.Len(t, skipped, 1)
		assert.Equal(t, itsm.AuditOutcomeSkipped, skipped[0].Outcome)
		assert.Equal(t, "INC002", skipped[0].ExternalID)
	})

	t.Run("Disabled policy overwrites", func(t *testing.T) {
		env := newTestEnv(t)
		env.connect(t, itsm.PlatformServiceNow)
		policies := itsm.DefaultConflictPolicies()
		policies.Status = false
		require.NoError(t, env.policyRepo.Save(ctx, env.orgID, policies))

		_, err := env.webhooks.Process(ctx, env.orgID, itsm.PlatformServiceNow, serviceNowHook("insert", "INC003", "6", ""), WebhookOptions{})
		require.NoError(t, err)
		res, err := env.webhooks.Process(ctx, env.orgID, itsm.PlatformServiceNow, serviceNowHook("update", "INC003", "2", ""), WebhookOptions{})
		require.NoError(t, err)
		assert.False(t, res.StatusSkipped)

		state, err := env.ticketRepo.FindByExternalID(ctx, env.orgID, itsm.PlatformServiceNow, "INC003")
		require.NoError(t, err)
		assert.Equal(t, "2", state.Status)
	})
}

func TestWebhookService_ExternalIDCollision(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.connect(t, itsm.PlatformServiceNow)

	_, err := env.webhooks.Process(ctx, env.orgID, itsm.PlatformServiceNow,
		serviceNowHook("insert", "INC010", "1", `,"correlation_id":"T1"`), WebhookOptions{})
	require.NoError(t, err)

	res, err := env.webhooks.Process(ctx, env.orgID, itsm.PlatformServiceNow,
		serviceNowHook("update", "INC010", "2", `,"correlation_id":"T2"`), WebhookOptions{})
	require.NoError(t, err)
	assert.True(t, res.Success, "the merge still proceeds")
	assert.True(t, res.Collision)

	collisions := env.auditLogs(t, itsm.AuditLogFilter{Action: itsm.AuditActionExternalIDCollision})
	require.Len(t, collisions, 1)
	assert.Equal(t, itsm.AuditOutcomeFailure, collisions[0].Outcome)
	assert.Equal(t, "T2", collisions[0].TicketID)
	assert.Equal(t, 1, env.metrics.collisions)

	state, err := env.ticketRepo.FindByExternalID(ctx, env.orgID, itsm.PlatformServiceNow, "INC010")
	require.NoError(t, err)
	assert.Equal(t, "T1", state.TicketID)
	assert.Equal(t, "2", state.Status)
}

func TestWebhookService_Acknowledge(t *testing.T) {
	ctx := context.Background()

	t.Run("Queues a sync response when sync is enabled", func(t *testing.T) {
		env := newTestEnv(t)
		env.connect(t, itsm.PlatformServiceNow)

		_, err := env.webhooks.Process(ctx, env.orgID, itsm.PlatformServiceNow,
			serviceNowHook("insert", "INC020", "1", `,"correlation_id":"T5","category":"cloud"`),
			WebhookOptions{Acknowledge: true, TraceID: "trace-20"})
		require.NoError(t, err)

		items, _, err := env.queue.List(ctx, itsm.QueueFilter{OrganizationID: env.orgID})
		require.NoError(t, err)
		require.Len(t, items, 1)
		ack := items[0]
		assert.Equal(t, itsm.SyncActionSyncResponse, ack.Action)
		assert.Equal(t, "T5", ack.TicketID)
		assert.Equal(t, "INC020", ack.ExternalID)
		assert.Equal(t, itsm.ProductGroupDevOps, ack.ProductGroup)
		assert.Equal(t, "trace-20", ack.TraceID)

		inbound := env.auditLogs(t, itsm.AuditLogFilter{TraceID: "trace-20", Action: itsm.AuditActionInboundCreate})
		assert.Len(t, inbound, 1)
	})

	t.Run("Skipped when sync is disabled", func(t *testing.T) {
		env := newTestEnv(t)
		env.connect(t, itsm.PlatformServiceNow, func(c *itsm.Connection) { c.SetSyncEnabled(false) })

		res, err := env.webhooks.Process(ctx, env.orgID, itsm.PlatformServiceNow,
			serviceNowHook("insert", "INC021", "1", ""), WebhookOptions{Acknowledge: true})
		require.NoError(t, err)
		assert.True(t, res.Success)

		_, total, err := env.queue.List(ctx, itsm.QueueFilter{OrganizationID: env.orgID})
		require.NoError(t, err)
		assert.Zero(t, total)
	})
}

func TestWebhookService_JiraIssueCreated(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.connect(t, itsm.PlatformJira)

	body := []byte(`{"webhookEvent":"jira:issue_created","issue":{"key":"SEC-5","id":"10005","fields":{"status":{"name":"To Do"},"priority":{"name":"High"},"summary":"Leaked key"}}}`)
	res, err := env.webhooks.Process(ctx, env.orgID, itsm.PlatformJira, body, WebhookOptions{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "SEC-5", res.ExternalID)
	assert.Equal(t, itsm.InboundActionCreate, res.Action)

	state, err := env.ticketRepo.FindByExternalID(ctx, env.orgID, itsm.PlatformJira, "SEC-5")
	require.NoError(t, err)
	assert.Equal(t, "High", state.Priority)
}

// unseenTickets hides stored ticket state, the way two first deliveries
// racing on one external id both read nothing.
type unseenTickets struct {
	itsm.TicketStateRepository
}

func (unseenTickets) FindByExternalID(context.Context, uuid.UUID, itsm.Platform, string) (*itsm.TicketState, error) {
	return nil, itsm.ErrTicketNotFound
}

type unseenTicketsUnitOfWork struct {
	inner itsm.UnitOfWork
}

func (u unseenTicketsUnitOfWork) Do(ctx context.Context, fn func(repos itsm.TxRepositories) error) error {
	return u.inner.Do(ctx, func(repos itsm.TxRepositories) error {
		repos.Tickets = unseenTickets{repos.Tickets}
		return fn(repos)
	})
}

func TestWebhookService_ConcurrentFirstDeliveries(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.connect(t, itsm.PlatformServiceNow)

	registry := ticketing.NewRegistry()
	registry.RegisterNormalizer(ticketing.NewServiceNowNormalizer())
	webhooks := NewWebhookService(WebhookServiceConfig{
		UnitOfWork:  unseenTicketsUnitOfWork{inner: persistence.NewGormUnitOfWork(env.db)},
		Normalizers: registry,
		ConnRepo:    env.connRepo,
		PolicyRepo:  env.policyRepo,
	})

	first, err := webhooks.Process(ctx, env.orgID, itsm.PlatformServiceNow, serviceNowHook("insert", "INC030", "1", ""), WebhookOptions{})
	require.NoError(t, err)
	assert.True(t, first.Success)

	second, err := webhooks.Process(ctx, env.orgID, itsm.PlatformServiceNow, serviceNowHook("insert", "INC030", "2", ""), WebhookOptions{})
	require.NoError(t, err)
	assert.True(t, second.Success)

	entries := env.auditLogs(t, itsm.AuditLogFilter{ExternalID: "INC030", Outcome: itsm.AuditOutcomeSuccess})
	assert.Len(t, entries, 2)
	assert.Len(t, env.syncEvents(t, itsm.SyncEventFilter{ExternalID: "INC030"}), 2)

	state, err := env.ticketRepo.FindByExternalID(ctx, env.orgID, itsm.PlatformServiceNow, "INC030")
	require.NoError(t, err)
	assert.Equal(t, "2", state.Status)
}

func TestWebhookService_RequiresConnection(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.connect(t, itsm.PlatformJira)

	_, err := env.webhooks.Process(ctx, env.orgID, itsm.PlatformServiceNow, serviceNowHook("insert", "INC040", "1", ""), WebhookOptions{})
	assert.ErrorIs(t, err, itsm.ErrConnectionNotFound)

	_, err = env.webhooks.Process(ctx, uuid.New(), itsm.PlatformJira,
		[]byte(`{"webhookEvent":"jira:issue_created","issue":{"key":"SEC-40","fields":{"summary":"x"}}}`), WebhookOptions{})
	assert.ErrorIs(t, err, itsm.ErrConnectionNotFound)

	assert.Empty(t, env.auditLogs(t, itsm.AuditLogFilter{}))
	assert.Empty(t, env.syncEvents(t, itsm.SyncEventFilter{}))
	assert.Equal(t, 2, env.metrics.webhooks[WebhookOutcomeRejected])
}
