package itsm

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestConnectionService_ConfigureAndConnect(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	conn, err := env.connections.Configure(ctx, env.orgID, itsm.PlatformServiceNow, ConfigureConnectionInput{
		InstanceURL:           "https://acme.service-now.com/",
		CredentialRef:         "snow-acme",
		SyncEnabled:           boolPtr(false),
		AutoAssignmentEnabled: boolPtr(true),
		UserEmail:             "admin@acme.test",
	})
	require.NoError(t, err)
	assert.Equal(t, itsm.ConnectionStatusDisconnected, conn.Status)
	assert.False(t, conn.SyncEnabled)
	assert.True(t, conn.AutoAssignmentEnabled)

	env.snow.On("TestConnection", mock.Anything, mock.Anything).Return(nil).Once()
	conn, err = env.connections.Connect(ctx, env.orgID, itsm.PlatformServiceNow, "admin@acme.test")
	require.NoError(t, err)
	assert.Equal(t, itsm.ConnectionStatusConnected, conn.Status)
	assert.True(t, conn.SyncEnabled)
	assert.NotNil(t, conn.LastConnectedAt)

	reconfigured, err := env.connections.Configure(ctx, env.orgID, itsm.PlatformServiceNow, ConfigureConnectionInput{
		InstanceURL:   "https://acme-prod.service-now.com",
		CredentialRef: "snow-acme-prod",
	})
	require.NoError(t, err)
	assert.Equal(t, conn.ID, reconfigured.ID, "configuration updates the same record")
	assert.True(t, reconfigured.SyncEnabled, "unset toggles are left alone")

	all, err := env.connections.List(ctx, env.orgID)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	tests := env.auditLogs(t, itsm.AuditLogFilter{Action: itsm.AuditActionConnectionTest})
	require.Len(t, tests, 1)
	assert.Equal(t, itsm.AuditOutcomeSuccess, tests[0].Outcome)
	env.snow.AssertExpectations(t)
}

func TestConnectionService_FailedTest(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	_, err := env.connections.Configure(ctx, env.orgID, itsm.PlatformJira, ConfigureConnectionInput{
		InstanceURL:   "https://acme.atlassian.net",
		CredentialRef: "jira-acme",
		SyncEnabled:   boolPtr(false),
	})
	require.NoError(t, err)

	env.jira.On("TestConnection", mock.Anything, mock.Anything).
		Return(&itsm.PermissionError{StatusCode: 401, Message: "bad token"}).Once()

	conn, err := env.connections.Connect(ctx, env.orgID, itsm.PlatformJira, "")
	require.NoError(t, err, "a failing platform is reported on the connection")
	assert.Equal(t, itsm.ConnectionStatusError, conn.Status)
	assert.Contains(t, conn.StatusMessage, "bad token")
	assert.False(t, conn.SyncEnabled)

	tests := env.auditLogs(t, itsm.AuditLogFilter{Action: itsm.AuditActionConnectionTest})
	require.Len(t, tests, 1)
	assert.Equal(t, itsm.AuditOutcomeFailure, tests[0].Outcome)
}

func TestConnectionService_Validation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.connections.Configure(ctx, env.orgID, itsm.Platform("zendesk"), ConfigureConnectionInput{})
	assert.ErrorIs(t, err, itsm.ErrInvalidPlatform)

	_, err = env.connections.Configure(ctx, env.orgID, itsm.PlatformJira, ConfigureConnectionInput{
		InstanceURL:   "ftp://acme",
		CredentialRef: "jira-acme",
	})
	assert.ErrorIs(t, err, itsm.ErrInvalidInstanceURL)

	_, err = env.connections.Get(ctx, uuid.New(), itsm.PlatformJira)
	assert.ErrorIs(t, err, itsm.ErrConnectionNotFound)
}

func TestConnectionService_DisconnectAndProductGroups(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.connect(t, itsm.PlatformJira)

	conn, err := env.connections.SetProductGroupSync(ctx, env.orgID, itsm.PlatformJira, itsm.ProductGroupEndpoint, false, "admin@acme.test")
	require.NoError(t, err)
	assert.False(t, conn.CanSync(itsm.ProductGroupEndpoint))
	assert.True(t, conn.CanSync(itsm.ProductGroupDevOps))

	_, err = env.connections.SetProductGroupSync(ctx, env.orgID, itsm.PlatformJira, "marketing", false, "")
	assert.ErrorIs(t, err, itsm.ErrUnknownProductGroup)

	conn, err = env.connections.Disconnect(ctx, env.orgID, itsm.PlatformJira, "admin@acme.test")
	require.NoError(t, err)
	assert.Equal(t, itsm.ConnectionStatusDisconnected, conn.Status)
	assert.False(t, conn.SyncEnabled)

	stored, err := env.connections.Get(ctx, env.orgID, itsm.PlatformJira)
	require.NoError(t, err, "disconnected connections are kept")
	assert.False(t, stored.IsProductGroupSyncEnabled(itsm.ProductGroupEndpoint))

	assert.Len(t, env.auditLogs(t, itsm.AuditLogFilter{Action: itsm.AuditActionConnectionUpdate}), 2)
}
