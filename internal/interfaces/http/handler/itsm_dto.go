package handler

import (
	"time"

	"github.com/google/uuid"

	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
)

// ConnectionResponse represents a platform connection in API responses
// @Description Platform connection of an organization
type ConnectionResponse struct {
	ID                    string          `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Platform              string          `json:"platform" example:"servicenow" enums:"servicenow,jira"`
	DisplayName           string          `json:"display_name" example:"ServiceNow"`
	InstanceURL           string          `json:"instance_url" example:"https://acme.service-now.com"`
	CredentialRef         string          `json:"credential_ref" example:"vault:itsm/acme/servicenow"`
	SyncEnabled           bool            `json:"sync_enabled" example:"true"`
	AutoAssignmentEnabled bool            `json:"auto_assignment_enabled" example:"false"`
	Status                string          `json:"status" example:"connected" enums:"disconnected,connected,error"`
	StatusMessage         string          `json:"status_message,omitempty"`
	ProductGroupSync      map[string]bool `json:"product_group_sync"`
	LastConnectedAt       *time.Time      `json:"last_connected_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

func toConnectionResponse(c *itsm.Connection) ConnectionResponse {
	groups := make(map[string]bool, len(itsm.ProductGroups()))
	for _, g := range itsm.ProductGroups() {
		groups[g] = c.IsProductGroupSyncEnabled(g)
	}
	return ConnectionResponse{
		ID:                    c.ID.String(),
		Platform:              c.Platform.String(),
		DisplayName:           c.Platform.DisplayName(),
		InstanceURL:           c.InstanceURL,
		CredentialRef:         c.CredentialRef,
		SyncEnabled:           c.SyncEnabled,
		AutoAssignmentEnabled: c.AutoAssignmentEnabled,
		Status:                string(c.Status),
		StatusMessage:         c.StatusMessage,
		ProductGroupSync:      groups,
		LastConnectedAt:       c.LastConnectedAt,
		CreatedAt:             c.CreatedAt,
		UpdatedAt:             c.UpdatedAt,
	}
}

func toConnectionResponses(conns []*itsm.Connection) []ConnectionResponse {
	out := make([]ConnectionResponse, 0, len(conns))
	for _, c := range conns {
		out = append(out, toConnectionResponse(c))
	}
	return out
}

// FieldMappingResponse represents a field mapping in API responses
// @Description Mapping of one internal field onto a platform field
type FieldMappingResponse struct {
	ID            string    `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Platform      string    `json:"platform" example:"jira"`
	InternalField string    `json:"internal_field" example:"severity"`
	ExternalField string    `json:"external_field" example:"priority"`
	FieldType     string    `json:"field_type" example:"string" enums:"string,number,date,boolean,array"`
	IsRequired    bool      `json:"is_required" example:"true"`
	TransformRule string    `json:"transform_rule,omitempty" example:"critical->Highest,high->High"`
	Notes         string    `json:"notes,omitempty"`
	Position      int       `json:"position" example:"0"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toFieldMappingResponse(m *itsm.FieldMapping) FieldMappingResponse {
	return FieldMappingResponse{
		ID:            m.ID.String(),
		Platform:      m.Platform.String(),
		InternalField: m.InternalField,
		ExternalField: m.ExternalField,
		FieldType:     string(m.FieldType),
		IsRequired:    m.IsRequired,
		TransformRule: m.TransformRule.String(),
		Notes:         m.Notes,
		Position:      m.Position,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func toFieldMappingResponses(mappings []*itsm.FieldMapping) []FieldMappingResponse {
	out := make([]FieldMappingResponse, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, toFieldMappingResponse(m))
	}
	return out
}

// QueueItemResponse represents an outbound sync queue item
// @Description Outbound sync queue item
type QueueItemResponse struct {
	ID           string         `json:"id"`
	Platform     string         `json:"platform" example:"servicenow"`
	Action       string         `json:"action" example:"create" enums:"create,update,comment,sync_response"`
	TicketID     string         `json:"ticket_id" example:"FND-1042"`
	ExternalID   string         `json:"external_id,omitempty" example:"INC0010023"`
	ProductGroup string         `json:"product_group,omitempty" example:"devsecops"`
	Payload      map[string]any `json:"payload"`
	Status       string         `json:"status" example:"pending" enums:"pending,processing,completed,failed,cancelled"`
	Attempts     int            `json:"attempts" example:"0"`
	MaxAttempts  int            `json:"max_attempts" example:"3"`
	NextRetryAt  *time.Time     `json:"next_retry_at,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	ErrorKind    string         `json:"error_kind,omitempty" example:"transient"`
	TraceID      string         `json:"trace_id,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func toQueueItemResponse(q *itsm.SyncQueueItem) QueueItemResponse {
	return QueueItemResponse{
		ID:           q.ID.String(),
		Platform:     q.Platform.String(),
		Action:       string(q.Action),
		TicketID:     q.TicketID,
		ExternalID:   q.ExternalID,
		ProductGroup: q.ProductGroup,
		Payload:      q.Payload,
		Status:       string(q.Status),
		Attempts:     q.Attempts,
		MaxAttempts:  q.MaxAttempts,
		NextRetryAt:  q.NextRetryAt,
		ErrorMessage: q.ErrorMessage,
		ErrorKind:    string(q.ErrorKind),
		TraceID:      q.TraceID,
		CompletedAt:  q.CompletedAt,
		CreatedAt:    q.CreatedAt,
		UpdatedAt:    q.UpdatedAt,
	}
}

func toQueueItemResponses(items []*itsm.SyncQueueItem) []QueueItemResponse {
	out := make([]QueueItemResponse, 0, len(items))
	for _, q := range items {
		out = append(out, toQueueItemResponse(q))
	}
	return out
}

// AuditLogResponse represents one audit log entry
// @Description Append-only audit log entry
type AuditLogResponse struct {
	ID           string    `json:"id"`
	Platform     string    `json:"platform" example:"jira"`
	Action       string    `json:"action" example:"inbound_update"`
	TraceID      string    `json:"trace_id,omitempty"`
	ExternalID   string    `json:"external_id,omitempty" example:"SEC-12"`
	TicketID     string    `json:"ticket_id,omitempty"`
	UserEmail    string    `json:"user_email,omitempty"`
	Outcome      string    `json:"outcome" example:"success" enums:"success,failure,skipped"`
	Details      string    `json:"details"`
	ProductGroup string    `json:"product_group,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toAuditLogResponses(logs []*itsm.AuditLog) []AuditLogResponse {
	out := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, AuditLogResponse{
			ID:           l.ID.String(),
			Platform:     l.Platform.String(),
			Action:       l.Action,
			TraceID:      l.TraceID,
			ExternalID:   l.ExternalID,
			TicketID:     l.TicketID,
			UserEmail:    l.UserEmail,
			Outcome:      string(l.Outcome),
			Details:      l.Details,
			ProductGroup: l.ProductGroup,
			CreatedAt:    l.CreatedAt,
		})
	}
	return out
}

// SyncEventResponse represents one sync event
// @Description Sync event shown in the activity feed
type SyncEventResponse struct {
	ID           string     `json:"id"`
	Platform     string     `json:"platform" example:"servicenow"`
	EventType    string     `json:"event_type" example:"ticket_created"`
	Status       string     `json:"status" example:"success" enums:"success,failure,pending,retrying"`
	TicketID     string     `json:"ticket_id,omitempty"`
	ExternalID   string     `json:"external_id,omitempty"`
	ProductGroup string     `json:"product_group,omitempty"`
	RetryCount   int        `json:"retry_count"`
	QueueItemID  *uuid.UUID `json:"queue_item_id,omitempty"`
	Message      string     `json:"message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func toSyncEventResponses(events []*itsm.SyncEvent) []SyncEventResponse {
	out := make([]SyncEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, SyncEventResponse{
			ID:           e.ID.String(),
			Platform:     e.Platform.String(),
			EventType:    e.EventType,
			Status:       string(e.Status),
			TicketID:     e.TicketID,
			ExternalID:   e.ExternalID,
			ProductGroup: e.ProductGroup,
			RetryCount:   e.RetryCount,
			QueueItemID:  e.QueueItemID,
			Message:      e.Message,
			CreatedAt:    e.CreatedAt,
		})
	}
	return out
}
