package itsm

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ConnectionStatus represents the health of a platform connection
type ConnectionStatus string

const (
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
	ConnectionStatusConnected    ConnectionStatus = "connected"
	ConnectionStatusError        ConnectionStatus = "error"
)

// IsValid returns true if the status is known
func (s ConnectionStatus) IsValid() bool {
	switch s {
	case ConnectionStatusDisconnected, ConnectionStatusConnected, ConnectionStatusError:
		return true
	}
	return false
}

// String returns the string representation
func (s ConnectionStatus) String() string {
	return string(s)
}

// Connection is the per-organization configuration of one ITSM platform.
// Connections are created on first configuration and never hard-deleted;
// removing a platform means disconnecting it.
type Connection struct {
	ID                    uuid.UUID
	OrganizationID        uuid.UUID
	Platform              Platform
	InstanceURL           string
	CredentialRef         string
	SyncEnabled           bool
	AutoAssignmentEnabled bool
	Status                ConnectionStatus
	StatusMessage         string
	// ProductGroupSync holds per product group sync toggles. A group that is
	// absent from the map syncs.
	ProductGroupSync map[string]bool
	LastConnectedAt  *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewConnection creates a disconnected connection for a platform
func NewConnection(orgID uuid.UUID, platform Platform, instanceURL, credentialRef string) (*Connection, error) {
	now := time.Now()
	c := &Connection{
		ID:               uuid.New(),
		OrganizationID:   orgID,
		Platform:         platform,
		InstanceURL:      normalizeInstanceURL(instanceURL),
		CredentialRef:    strings.TrimSpace(credentialRef),
		SyncEnabled:      true,
		Status:           ConnectionStatusDisconnected,
		ProductGroupSync: make(map[string]bool),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate validates the connection
func (c *Connection) Validate() error {
	if c.OrganizationID == uuid.Nil {
		return ErrInvalidOrganization
	}
	if !c.Platform.IsValid() {
		return ErrInvalidPlatform
	}
	if err := validateInstanceURL(c.InstanceURL); err != nil {
		return err
	}
	if c.CredentialRef == "" {
		return ErrInvalidCredentialRef
	}
	if !c.Status.IsValid() {
		return ErrInvalidConnectionStatus
	}
	return nil
}

// Reconfigure changes the endpoint or credentials. Any change resets the
// status to disconnected until the connection is tested again.
func (c *Connection) Reconfigure(instanceURL, credentialRef string) error {
	instanceURL = normalizeInstanceURL(instanceURL)
	credentialRef = strings.TrimSpace(credentialRef)
	if err := validateInstanceURL(instanceURL); err != nil {
		return err
	}
	if credentialRef == "" {
		return ErrInvalidCredentialRef
	}
	if instanceURL != c.InstanceURL || credentialRef != c.CredentialRef {
		c.InstanceURL = instanceURL
		c.CredentialRef = credentialRef
		c.Status = ConnectionStatusDisconnected
		c.StatusMessage = ""
	}
	c.UpdatedAt = time.Now()
	return nil
}

// SetSyncEnabled toggles outbound and inbound sync
func (c *Connection) SetSyncEnabled(enabled bool) {
	c.SyncEnabled = enabled
	c.UpdatedAt = time.Now()
}

// SetAutoAssignment toggles default assignee selection from the routing table
func (c *Connection) SetAutoAssignment(enabled bool) {
	c.AutoAssignmentEnabled = enabled
	c.UpdatedAt = time.Now()
}

// SetProductGroupSync toggles sync for one product group
func (c *Connection) SetProductGroupSync(group string, enabled bool) error {
	group = strings.ToLower(strings.TrimSpace(group))
	if !IsKnownProductGroup(group) {
		return ErrUnknownProductGroup
	}
	if c.ProductGroupSync == nil {
		c.ProductGroupSync = make(map[string]bool)
	}
	c.ProductGroupSync[group] = enabled
	c.UpdatedAt = time.Now()
	return nil
}

// IsProductGroupSyncEnabled reports the toggle for a group, defaulting to enabled
func (c *Connection) IsProductGroupSyncEnabled(group string) bool {
	enabled, ok := c.ProductGroupSync[strings.ToLower(group)]
	return !ok || enabled
}

// CanSync reports whether items for the given product group may be synced
func (c *Connection) CanSync(productGroup string) bool {
	return c.SyncEnabled && c.IsProductGroupSyncEnabled(productGroup)
}

// MarkConnected records a successful connection test
func (c *Connection) MarkConnected() {
	now := time.Now()
	c.Status = ConnectionStatusConnected
	c.StatusMessage = ""
	c.LastConnectedAt = &now
	c.UpdatedAt = now
}

// MarkDisconnected records an operator disconnect
func (c *Connection) MarkDisconnected() {
	c.Status = ConnectionStatusDisconnected
	c.StatusMessage = ""
	c.UpdatedAt = time.Now()
}

// MarkError records a failed connection test or a permission failure
func (c *Connection) MarkError(message string) {
	c.Status = ConnectionStatusError
	c.StatusMessage = message
	c.UpdatedAt = time.Now()
}

func normalizeInstanceURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

func validateInstanceURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ErrInvalidInstanceURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidInstanceURL
	}
	return nil
}
