package itsm

import "context"

// SendRequest is one outbound delivery handed to a platform adapter
type SendRequest struct {
	TicketID string
	// ExternalID targets an existing external ticket; empty for creates
	ExternalID string
	Payload    Payload
}

// SendResult is the normalized adapter response
type SendResult struct {
	ExternalID  string
	RawResponse []byte
}

// PlatformAdapter delivers outbound changes to one ITSM platform.
// Errors must follow the taxonomy: TransientError for network/5xx/429,
// PermissionError for 401/403, PlanLimitError for 402, ValidationError otherwise.
type PlatformAdapter interface {
	// Platform returns the platform this adapter serves
	Platform() Platform
	// Send delivers an action to the platform
	Send(ctx context.Context, conn *Connection, action SyncAction, req *SendRequest) (*SendResult, error)
	// TestConnection verifies the instance is reachable with the configured credentials
	TestConnection(ctx context.Context, conn *Connection) error
}

// AdapterRegistry resolves the adapter for a platform
type AdapterRegistry interface {
	Adapter(platform Platform) (PlatformAdapter, error)
}

// MappingTemplateProvider supplies the built-in default mappings of a platform
type MappingTemplateProvider interface {
	DefaultMappings(platform Platform) ([]TemplateMapping, error)
}

// TemplateMapping is one row of a built-in mapping template
type TemplateMapping struct {
	InternalField string    `yaml:"internal_field"`
	ExternalField string    `yaml:"external_field"`
	FieldType     FieldType `yaml:"field_type"`
	IsRequired    bool      `yaml:"is_required"`
	Transform     string    `yaml:"transform_rule"`
	Notes         string    `yaml:"notes"`
}
