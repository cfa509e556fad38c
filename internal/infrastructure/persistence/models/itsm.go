package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ConnectionModel is the persistence model for an ITSM platform connection
type ConnectionModel struct {
	BaseModel
	OrganizationID        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_itsm_conn_org_platform,priority:1"`
	Platform              string         `gorm:"type:varchar(20);not null;uniqueIndex:idx_itsm_conn_org_platform,priority:2"`
	InstanceURL           string         `gorm:"type:varchar(500);not null"`
	CredentialRef         string         `gorm:"type:varchar(200);not null"`
	SyncEnabled           bool           `gorm:"not null"`
	AutoAssignmentEnabled bool           `gorm:"not null"`
	Status                string         `gorm:"type:varchar(20);not null;default:'disconnected'"`
	StatusMessage         string         `gorm:"type:text"`
	ProductGroupSync      datatypes.JSON `gorm:"type:jsonb"`
	LastConnectedAt       *time.Time
}

// TableName returns the table name for GORM
func (ConnectionModel) TableName() string {
	return "itsm_connections"
}

// ToDomain converts the model to a domain connection
func (m *ConnectionModel) ToDomain() *itsm.Connection {
	groups := make(map[string]bool)
	if len(m.ProductGroupSync) > 0 {
		_ = json.Unmarshal(m.ProductGroupSync, &groups)
	}
	return &itsm.Connection{
		ID:                    m.ID,
		OrganizationID:        m.OrganizationID,
		Platform:              itsm.Platform(m.Platform),
		InstanceURL:           m.InstanceURL,
		CredentialRef:         m.CredentialRef,
		SyncEnabled:           m.SyncEnabled,
		AutoAssignmentEnabled: m.AutoAssignmentEnabled,
		Status:                itsm.ConnectionStatus(m.Status),
		StatusMessage:         m.StatusMessage,
		ProductGroupSync:      groups,
		LastConnectedAt:       m.LastConnectedAt,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
}

// ConnectionModelFromDomain creates a model from a domain connection
func ConnectionModelFromDomain(c *itsm.Connection) *ConnectionModel {
	groups, _ := json.Marshal(c.ProductGroupSync)
	return &ConnectionModel{
		BaseModel: BaseModel{
			ID:        c.ID,
			CreatedAt: c.CreatedAt.UTC(),
			UpdatedAt: c.UpdatedAt.UTC(),
		},
		OrganizationID:        c.OrganizationID,
		Platform:              string(c.Platform),
		InstanceURL:           c.InstanceURL,
		CredentialRef:         c.CredentialRef,
		SyncEnabled:           c.SyncEnabled,
		AutoAssignmentEnabled: c.AutoAssignmentEnabled,
		Status:                string(c.Status),
		StatusMessage:         c.StatusMessage,
		ProductGroupSync:      datatypes.JSON(groups),
		LastConnectedAt:       utcPtr(c.LastConnectedAt),
	}
}

// FieldMappingModel is the persistence model for a field mapping
type FieldMappingModel struct {
	BaseModel
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_itsm_mapping_unique,priority:1"`
	Platform       string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_itsm_mapping_unique,priority:2"`
	InternalField  string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_itsm_mapping_unique,priority:3"`
	ExternalField  string    `gorm:"type:varchar(100);not null"`
	FieldType      string    `gorm:"type:varchar(20);not null;default:'string'"`
	IsRequired     bool      `gorm:"not null"`
	TransformRule  string    `gorm:"type:text"`
	Notes          string    `gorm:"type:text"`
	Position       int       `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (FieldMappingModel) TableName() string {
	return "itsm_field_mappings"
}

// ToDomain converts the model to a domain field mapping. A stored rule that
// no longer parses is dropped rather than failing the whole read.
func (m *FieldMappingModel) ToDomain() *itsm.FieldMapping {
	rule, _ := itsm.ParseTransformRule(m.TransformRule)
	return &itsm.FieldMapping{
		ID:             m.ID,
		OrganizationID: m.OrganizationID,
		Platform:       itsm.Platform(m.Platform),
		InternalField:  m.InternalField,
		ExternalField:  m.ExternalField,
		FieldType:      itsm.FieldType(m.FieldType),
		IsRequired:     m.IsRequired,
		TransformRule:  rule,
		Notes:          m.Notes,
		Position:       m.Position,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// FieldMappingModelFromDomain creates a model from a domain field mapping
func FieldMappingModelFromDomain(f *itsm.FieldMapping) *FieldMappingModel {
	return &FieldMappingModel{
		BaseModel: BaseModel{
			ID:        f.ID,
			CreatedAt: f.CreatedAt.UTC(),
			UpdatedAt: f.UpdatedAt.UTC(),
		},
		OrganizationID: f.OrganizationID,
		Platform:       string(f.Platform),
		InternalField:  f.InternalField,
		ExternalField:  f.ExternalField,
		FieldType:      string(f.FieldType),
		IsRequired:     f.IsRequired,
		TransformRule:  f.TransformRule.String(),
		Notes:          f.Notes,
		Position:       f.Position,
	}
}

// SyncQueueItemModel is the persistence model for an outbound queue item
type SyncQueueItemModel struct {
	BaseModel
	OrganizationID      uuid.UUID      `gorm:"type:uuid;not null;index:idx_itsm_queue_key,priority:1"`
	Platform            string         `gorm:"type:varchar(20);not null;index:idx_itsm_queue_key,priority:2"`
	TicketID            string         `gorm:"type:varchar(100);not null;index:idx_itsm_queue_key,priority:3"`
	Action              string         `gorm:"type:varchar(20);not null"`
	ExternalID          string         `gorm:"type:varchar(100)"`
	Payload             datatypes.JSON `gorm:"type:jsonb"`
	ProductGroup        string         `gorm:"type:varchar(50)"`
	Status              string         `gorm:"type:varchar(20);not null;default:'pending';index:idx_itsm_queue_due,priority:1"`
	Attempts            int            `gorm:"not null;default:0"`
	MaxAttempts         int            `gorm:"not null;default:3"`
	NextRetryAt         *time.Time     `gorm:"index:idx_itsm_queue_due,priority:2"`
	ErrorMessage        string         `gorm:"type:text"`
	ErrorKind           string         `gorm:"type:varchar(20)"`
	TraceID             string         `gorm:"type:varchar(64);index"`
	ProcessingStartedAt *time.Time
	CompletedAt         *time.Time
}

// TableName returns the table name for GORM
func (SyncQueueItemModel) TableName() string {
	return "itsm_sync_queue_items"
}

// ToDomain converts the model to a domain queue item
func (m *SyncQueueItemModel) ToDomain() *itsm.SyncQueueItem {
	payload := itsm.Payload{}
	if len(m.Payload) > 0 {
		dec := json.NewDecoder(bytes.NewReader(m.Payload))
		dec.UseNumber()
		_ = dec.Decode(&payload)
	}
	return &itsm.SyncQueueItem{
		ID:                  m.ID,
		OrganizationID:      m.OrganizationID,
		Platform:            itsm.Platform(m.Platform),
		Action:              itsm.SyncAction(m.Action),
		TicketID:            m.TicketID,
		ExternalID:          m.ExternalID,
		Payload:             payload,
		ProductGroup:        m.ProductGroup,
		Status:              itsm.QueueStatus(m.Status),
		Attempts:            m.Attempts,
		MaxAttempts:         m.MaxAttempts,
		NextRetryAt:         m.NextRetryAt,
		ErrorMessage:        m.ErrorMessage,
		ErrorKind:           itsm.ErrorKind(m.ErrorKind),
		TraceID:             m.TraceID,
		ProcessingStartedAt: m.ProcessingStartedAt,
		CompletedAt:         m.CompletedAt,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

// SyncQueueItemModelFromDomain creates a model from a domain queue item
func SyncQueueItemModelFromDomain(i *itsm.SyncQueueItem) *SyncQueueItemModel {
	payload, _ := json.Marshal(i.Payload)
	return &SyncQueueItemModel{
		BaseModel: BaseModel{
			ID:        i.ID,
			CreatedAt: i.CreatedAt.UTC(),
			UpdatedAt: i.UpdatedAt.UTC(),
		},
		OrganizationID:      i.OrganizationID,
		Platform:            string(i.Platform),
		TicketID:            i.TicketID,
		Action:              string(i.Action),
		ExternalID:          i.ExternalID,
		Payload:             datatypes.JSON(payload),
		ProductGroup:        i.ProductGroup,
		Status:              string(i.Status),
		Attempts:            i.Attempts,
		MaxAttempts:         i.MaxAttempts,
		NextRetryAt:         utcPtr(i.NextRetryAt),
		ErrorMessage:        i.ErrorMessage,
		ErrorKind:           string(i.ErrorKind),
		TraceID:             i.TraceID,
		ProcessingStartedAt: utcPtr(i.ProcessingStartedAt),
		CompletedAt:         utcPtr(i.CompletedAt),
	}
}

// AuditLogModel is the persistence model for an audit entry. It has no
// UpdatedAt column: rows are written once.
type AuditLogModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;index:idx_itsm_audit_org_created,priority:1"`
	Platform       string    `gorm:"type:varchar(20);index"`
	Action         string    `gorm:"type:varchar(50);not null"`
	TraceID        string    `gorm:"type:varchar(64);index"`
	ExternalID     string    `gorm:"type:varchar(100);index"`
	TicketID       string    `gorm:"type:varchar(100)"`
	UserEmail      string    `gorm:"type:varchar(200)"`
	Outcome        string    `gorm:"type:varchar(20);not null"`
	Details        string    `gorm:"type:text"`
	ProductGroup   string    `gorm:"type:varchar(50)"`
	CreatedAt      time.Time `gorm:"not null;index:idx_itsm_audit_org_created,priority:2"`
}

// TableName returns the table name for GORM
func (AuditLogModel) TableName() string {
	return "itsm_audit_logs"
}

// ErrAuditLogImmutable is returned when code tries to change a stored audit entry
var ErrAuditLogImmutable = errors.New("models: audit log entries are immutable")

// BeforeUpdate rejects updates of audit entries
func (m *AuditLogModel) BeforeUpdate(*gorm.DB) error {
	return ErrAuditLogImmutable
}

// BeforeDelete rejects deletes of audit entries
func (m *AuditLogModel) BeforeDelete(*gorm.DB) error {
	return ErrAuditLogImmutable
}

// ToDomain converts the model to a domain audit entry
func (m *AuditLogModel) ToDomain() *itsm.AuditLog {
	return &itsm.AuditLog{
		ID:             m.ID,
		OrganizationID: m.OrganizationID,
		Platform:       itsm.Platform(m.Platform),
		Action:         m.Action,
		TraceID:        m.TraceID,
		ExternalID:     m.ExternalID,
		TicketID:       m.TicketID,
		UserEmail:      m.UserEmail,
		Outcome:        itsm.AuditOutcome(m.Outcome),
		Details:        m.Details,
		ProductGroup:   m.ProductGroup,
		CreatedAt:      m.CreatedAt,
	}
}

// AuditLogModelFromDomain creates a model from a domain audit entry
func AuditLogModelFromDomain(a *itsm.AuditLog) *AuditLogModel {
	return &AuditLogModel{
		ID:             a.ID,
		OrganizationID: a.OrganizationID,
		Platform:       string(a.Platform),
		Action:         a.Action,
		TraceID:        a.TraceID,
		ExternalID:     a.ExternalID,
		TicketID:       a.TicketID,
		UserEmail:      a.UserEmail,
		Outcome:        string(a.Outcome),
		Details:        a.Details,
		ProductGroup:   a.ProductGroup,
		CreatedAt:      a.CreatedAt.UTC(),
	}
}

// SyncEventModel is the persistence model for a sync event
type SyncEventModel struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key"`
	OrganizationID uuid.UUID  `gorm:"type:uuid;not null;index:idx_itsm_event_org_created,priority:1"`
	Platform       string     `gorm:"type:varchar(20);index"`
	EventType      string     `gorm:"type:varchar(30);not null"`
	Status         string     `gorm:"type:varchar(20);not null"`
	TicketID       string     `gorm:"type:varchar(100)"`
	ExternalID     string     `gorm:"type:varchar(100);index"`
	ProductGroup   string     `gorm:"type:varchar(50)"`
	RetryCount     int        `gorm:"not null;default:0"`
	QueueItemID    *uuid.UUID `gorm:"type:uuid;index"`
	Message        string     `gorm:"type:text"`
	CreatedAt      time.Time  `gorm:"not null;index:idx_itsm_event_org_created,priority:2"`
}

// TableName returns the table name for GORM
func (SyncEventModel) TableName() string {
	return "itsm_sync_events"
}

// ToDomain converts the model to a domain sync event
func (m *SyncEventModel) ToDomain() *itsm.SyncEvent {
	return &itsm.SyncEvent{
		ID:             m.ID,
		OrganizationID: m.OrganizationID,
		Platform:       itsm.Platform(m.Platform),
		EventType:      m.EventType,
		Status:         itsm.SyncEventStatus(m.Status),
		TicketID:       m.TicketID,
		ExternalID:     m.ExternalID,
		ProductGroup:   m.ProductGroup,
		RetryCount:     m.RetryCount,
		QueueItemID:    m.QueueItemID,
		Message:        m.Message,
		CreatedAt:      m.CreatedAt,
	}
}

// SyncEventModelFromDomain creates a model from a domain sync event
func SyncEventModelFromDomain(e *itsm.SyncEvent) *SyncEventModel {
	return &SyncEventModel{
		ID:             e.ID,
		OrganizationID: e.OrganizationID,
		Platform:       string(e.Platform),
		EventType:      e.EventType,
		Status:         string(e.Status),
		TicketID:       e.TicketID,
		ExternalID:     e.ExternalID,
		ProductGroup:   e.ProductGroup,
		RetryCount:     e.RetryCount,
		QueueItemID:    e.QueueItemID,
		Message:        e.Message,
		CreatedAt:      e.CreatedAt.UTC(),
	}
}

// TicketStateModel is the persistence model for a linked external ticket
type TicketStateModel struct {
	BaseModel
	OrganizationID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_itsm_ticket_external,priority:1"`
	Platform        string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_itsm_ticket_external,priority:2"`
	ExternalID      string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_itsm_ticket_external,priority:3"`
	TicketID        string    `gorm:"type:varchar(100);index"`
	Status          string    `gorm:"type:varchar(50)"`
	Priority        string    `gorm:"type:varchar(50)"`
	ProductGroup    string    `gorm:"type:varchar(50)"`
	LastCommentBody string    `gorm:"type:text"`
	LastCommentAt   *time.Time
}

// TableName returns the table name for GORM
func (TicketStateModel) TableName() string {
	return "itsm_ticket_states"
}

// ToDomain converts the model to a domain ticket state
func (m *TicketStateModel) ToDomain() *itsm.TicketState {
	s := &itsm.TicketState{
		ID:             m.ID,
		OrganizationID: m.OrganizationID,
		Platform:       itsm.Platform(m.Platform),
		ExternalID:     m.ExternalID,
		TicketID:       m.TicketID,
		Status:         m.Status,
		Priority:       m.Priority,
		ProductGroup:   m.ProductGroup,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.LastCommentAt != nil {
		s.LastComment = &itsm.Comment{Body: m.LastCommentBody, At: *m.LastCommentAt}
	}
	return s
}

// TicketStateModelFromDomain creates a model from a domain ticket state
func TicketStateModelFromDomain(s *itsm.TicketState) *TicketStateModel {
	m := &TicketStateModel{
		BaseModel: BaseModel{
			ID:        s.ID,
			CreatedAt: s.CreatedAt.UTC(),
			UpdatedAt: s.UpdatedAt.UTC(),
		},
		OrganizationID: s.OrganizationID,
		Platform:       string(s.Platform),
		ExternalID:     s.ExternalID,
		TicketID:       s.TicketID,
		Status:         s.Status,
		Priority:       s.Priority,
		ProductGroup:   s.ProductGroup,
	}
	if s.LastComment != nil {
		at := s.LastComment.At.UTC()
		m.LastCommentBody = s.LastComment.Body
		m.LastCommentAt = &at
	}
	return m
}

// ConflictPolicyModel stores the conflict policy toggles of an organization
type ConflictPolicyModel struct {
	OrganizationID uuid.UUID `gorm:"type:uuid;primary_key"`
	Comments       bool      `gorm:"not null"`
	Status         bool      `gorm:"not null"`
	Priority       bool      `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ConflictPolicyModel) TableName() string {
	return "itsm_conflict_policies"
}

// ToDomain converts the model to domain policies
func (m *ConflictPolicyModel) ToDomain() itsm.ConflictPolicies {
	return itsm.ConflictPolicies{
		Comments: m.Comments,
		Status:   m.Status,
		Priority: m.Priority,
	}
}

// ITSMModels lists every model of the sync engine, in migration order
func ITSMModels() []any {
	return []any{
		&ConnectionModel{},
		&FieldMappingModel{},
		&SyncQueueItemModel{},
		&AuditLogModel{},
		&SyncEventModel{},
		&TicketStateModel{},
		&ConflictPolicyModel{},
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
