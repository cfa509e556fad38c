package itsm

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// FieldType is the declared type of an external field
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeDate    FieldType = "date"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeArray   FieldType = "array"
)

// IsValid returns true if the field type is known
func (t FieldType) IsValid() bool {
	switch t {
	case FieldTypeString, FieldTypeNumber, FieldTypeDate, FieldTypeBoolean, FieldTypeArray:
		return true
	}
	return false
}

// ParseFieldType parses a field type, defaulting empty input to string
func ParseFieldType(s string) (FieldType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FieldTypeString, nil
	}
	t := FieldType(s)
	if !t.IsValid() {
		return "", ErrInvalidFieldType
	}
	return t, nil
}

// FieldMapping translates one internal record field into a platform field.
// (OrganizationID, Platform, InternalField) is unique.
type FieldMapping struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Platform       Platform
	InternalField  string
	ExternalField  string
	FieldType      FieldType
	IsRequired     bool
	TransformRule  TransformRule
	Notes          string
	// Position orders mappings during resolution
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewFieldMapping creates a new field mapping
func NewFieldMapping(
	orgID uuid.UUID,
	platform Platform,
	internalField string,
	externalField string,
	fieldType FieldType,
) (*FieldMapping, error) {
	now := time.Now()
	m := &FieldMapping{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Platform:       platform,
		InternalField:  strings.TrimSpace(internalField),
		ExternalField:  strings.TrimSpace(externalField),
		FieldType:      fieldType,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate validates the field mapping
func (m *FieldMapping) Validate() error {
	if m.OrganizationID == uuid.Nil {
		return ErrInvalidOrganization
	}
	if !m.Platform.IsValid() {
		return ErrInvalidPlatform
	}
	if m.InternalField == "" || m.ExternalField == "" {
		return ErrMissingFieldName
	}
	if !m.FieldType.IsValid() {
		return ErrInvalidFieldType
	}
	return nil
}

// Update changes the mutable attributes of the mapping
func (m *FieldMapping) Update(externalField string, fieldType FieldType, isRequired bool, rule TransformRule, notes string) error {
	externalField = strings.TrimSpace(externalField)
	if externalField == "" {
		return ErrMissingFieldName
	}
	if !fieldType.IsValid() {
		return ErrInvalidFieldType
	}
	m.ExternalField = externalField
	m.FieldType = fieldType
	m.IsRequired = isRequired
	m.TransformRule = rule
	m.Notes = notes
	m.UpdatedAt = time.Now()
	return nil
}
