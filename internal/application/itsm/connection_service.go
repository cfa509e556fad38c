package itsm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"go.uber.org/zap"
)

// ConnectionService manages the per-organization platform connection registry.
// Connections are never deleted: removing a platform disconnects it.
type ConnectionService struct {
	connRepo  itsm.ConnectionRepository
	auditRepo itsm.AuditLogRepository
	adapters  itsm.AdapterRegistry
	logger    *zap.Logger
	testLimit time.Duration
}

// NewConnectionService creates a new ConnectionService
func NewConnectionService(
	connRepo itsm.ConnectionRepository,
	auditRepo itsm.AuditLogRepository,
	adapters itsm.AdapterRegistry,
	logger *zap.Logger,
) *ConnectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectionService{
		connRepo:  connRepo,
		auditRepo: auditRepo,
		adapters:  adapters,
		logger:    logger,
		testLimit: 15 * time.Second,
	}
}

// ConfigureConnectionInput describes the desired connection configuration
type ConfigureConnectionInput struct {
	InstanceURL           string
	CredentialRef         string
	SyncEnabled           *bool
	AutoAssignmentEnabled *bool
	UserEmail             string
}

// Get returns the organization's connection for a platform
func (s *ConnectionService) Get(ctx context.Context, orgID uuid.UUID, platform itsm.Platform) (*itsm.Connection, error) {
	if !platform.IsValid() {
		return nil, itsm.ErrInvalidPlatform
	}
	return s.connRepo.FindByPlatform(ctx, orgID, platform)
}

// List returns every configured connection of the organization
func (s *ConnectionService) List(ctx context.Context, orgID uuid.UUID) ([]*itsm.Connection, error) {
	return s.connRepo.FindAll(ctx, orgID)
}

// Configure creates the connection on first use or reconfigures it
func (s *ConnectionService) Configure(ctx context.Context, orgID uuid.UUID, platform itsm.Platform, in ConfigureConnectionInput) (*itsm.Connection, error) {
	if !platform.IsValid() {
		return nil, itsm.ErrInvalidPlatform
	}

	conn, err := s.connRepo.FindByPlatform(ctx, orgID, platform)
	switch {
	case errors.Is(err, itsm.ErrConnectionNotFound):
		conn, err = itsm.NewConnection(orgID, platform, in.InstanceURL, in.CredentialRef)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if err := conn.Reconfigure(in.InstanceURL, in.CredentialRef); err != nil {
			return nil, err
		}
	}

	if in.SyncEnabled != nil {
		conn.SetSyncEnabled(*in.SyncEnabled)
	}
	if in.AutoAssignmentEnabled != nil {
		conn.SetAutoAssignment(*in.AutoAssignmentEnabled)
	}

	if err := s.connRepo.Save(ctx, conn); err != nil {
		return nil, err
	}
	s.audit(ctx, conn, itsm.AuditActionConnectionUpdate, itsm.AuditOutcomeSuccess, in.UserEmail,
		fmt.Sprintf("%s connection configured for %s (sync_enabled=%t, auto_assignment=%t)",
			platform.DisplayName(), conn.InstanceURL, conn.SyncEnabled, conn.AutoAssignmentEnabled))
	return conn, nil
}

// Connect tests the connection and enables sync when it succeeds
func (s *ConnectionService) Connect(ctx context.Context, orgID uuid.UUID, platform itsm.Platform, userEmail string) (*itsm.Connection, error) {
	conn, err := s.Test(ctx, orgID, platform, userEmail)
	if err != nil {
		return conn, err
	}
	if conn.Status == itsm.ConnectionStatusConnected && !conn.SyncEnabled {
		conn.SetSyncEnabled(true)
		if err := s.connRepo.Save(ctx, conn); err != nil {
			return nil, err
		}
	}
	return conn, nil
}

// Test verifies the platform is reachable with the configured credentials and
// records the result on the connection. A failing platform is not an error of
// the call: the connection comes back in status error with the cause.
func (s *ConnectionService) Test(ctx context.Context, orgID uuid.UUID, platform itsm.Platform, userEmail string) (*itsm.Connection, error) {
	conn, err := s.Get(ctx, orgID, platform)
	if err != nil {
		return nil, err
	}
	adapter, err := s.adapters.Adapter(platform)
	if err != nil {
		return nil, err
	}

	testCtx, cancel := context.WithTimeout(ctx, s.testLimit)
	defer cancel()

	outcome := itsm.AuditOutcomeSuccess
	details := platform.DisplayName() + " connection test succeeded"
	if testErr := adapter.TestConnection(testCtx, conn); testErr != nil {
		conn.MarkError(testErr.Error())
		outcome = itsm.AuditOutcomeFailure
		details = platform.DisplayName() + " connection test failed: " + testErr.Error()
		s.logger.Warn("ITSM connection test failed",
			zap.String("organization_id", orgID.String()),
			zap.String("platform", string(platform)),
			zap.String("error_kind", string(itsm.KindOf(testErr))),
			zap.Error(testErr))
	} else {
		conn.MarkConnected()
	}

	if err := s.connRepo.Save(ctx, conn); err != nil {
		return nil, err
	}
	s.audit(ctx, conn, itsm.AuditActionConnectionTest, outcome, userEmail, details)
	return conn, nil
}

// Disconnect marks the connection disconnected and stops syncing. The record
// and its history are kept.
func (s *ConnectionService) Disconnect(ctx context.Context, orgID uuid.UUID, platform itsm.Platform, userEmail string) (*itsm.Connection, error) {
	conn, err := s.Get(ctx, orgID, platform)
	if err != nil {
		return nil, err
	}
	conn.MarkDisconnected()
	conn.SetSyncEnabled(false)
	if err := s.connRepo.Save(ctx, conn); err != nil {
		return nil, err
	}
	s.audit(ctx, conn, itsm.AuditActionConnectionUpdate, itsm.AuditOutcomeSuccess, userEmail,
		platform.DisplayName()+" connection disconnected")
	return conn, nil
}

// SetProductGroupSync toggles sync for one product group of a connection
func (s *ConnectionService) SetProductGroupSync(
	ctx context.Context,
	orgID uuid.UUID,
	platform itsm.Platform,
	group string,
	enabled bool,
	userEmail string,
) (*itsm.Connection, error) {
	conn, err := s.Get(ctx, orgID, platform)
	if err != nil {
		return nil, err
	}
	if err := conn.SetProductGroupSync(group, enabled); err != nil {
		return nil, err
	}
	if err := s.connRepo.Save(ctx, conn); err != nil {
		return nil, err
	}
	s.audit(ctx, conn, itsm.AuditActionConnectionUpdate, itsm.AuditOutcomeSuccess, userEmail,
		fmt.Sprintf("product group %s sync set to %t", group, enabled))
	return conn, nil
}

// MarkPermissionFailure records a delivery rejected for lack of permission
func (s *ConnectionService) MarkPermissionFailure(ctx context.Context, conn *itsm.Connection, cause error) {
	conn.MarkError(cause.Error())
	if err := s.connRepo.Save(ctx, conn); err != nil {
		s.logger.Error("Failed to record connection permission failure",
			zap.String("organization_id", conn.OrganizationID.String()),
			zap.String("platform", string(conn.Platform)),
			zap.Error(err))
	}
}

// audit failures never fail the configuration change itself
func (s *ConnectionService) audit(ctx context.Context, conn *itsm.Connection, action string, outcome itsm.AuditOutcome, userEmail, details string) {
	entry := itsm.NewAuditLog(conn.OrganizationID, conn.Platform, action, outcome, details)
	entry.UserEmail = userEmail
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		s.logger.Error("Failed to write connection audit entry",
			zap.String("organization_id", conn.OrganizationID.String()),
			zap.String("platform", string(conn.Platform)),
			zap.String("action", action),
			zap.Error(err))
	}
}
