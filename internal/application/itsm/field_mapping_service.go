package itsm

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	csvimport "github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/import"
	"go.uber.org/zap"
)

// Mapping CSV columns
const (
	ColumnInternalField = "internal_field"
	ColumnExternalField = "external_field"
	ColumnFieldType     = "field_type"
	ColumnIsRequired    = "is_required"
	ColumnNotes         = "notes"
	ColumnTransformRule = "transform_rule"
)

// MappingCSVHeader is the column order written by ExportCSV
var MappingCSVHeader = []string{
	ColumnInternalField,
	ColumnExternalField,
	ColumnFieldType,
	ColumnIsRequired,
	ColumnNotes,
	ColumnTransformRule,
}

// maxImportErrors bounds the rejections reported back for one import
const maxImportErrors = 500

// FieldMappingService manages the organization's field mapping tables and
// resolves internal records into platform payloads
type FieldMappingService struct {
	mappingRepo itsm.FieldMappingRepository
	auditRepo   itsm.AuditLogRepository
	templates   itsm.MappingTemplateProvider
	logger      *zap.Logger
}

// NewFieldMappingService creates a new FieldMappingService
func NewFieldMappingService(
	mappingRepo itsm.FieldMappingRepository,
	auditRepo itsm.AuditLogRepository,
	templates itsm.MappingTemplateProvider,
	logger *zap.Logger,
) *FieldMappingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FieldMappingService{
		mappingRepo: mappingRepo,
		auditRepo:   auditRepo,
		templates:   templates,
		logger:      logger,
	}
}

// FieldMappingInput carries the editable attributes of a mapping
type FieldMappingInput struct {
	InternalField string
	ExternalField string
	FieldType     string
	IsRequired    bool
	TransformRule string
	Notes         string
	Position      int
}

// ---------------------------------------------------------------------------
// CRUD Operations
// ---------------------------------------------------------------------------

// Create adds a mapping. The internal field must not already be mapped for the platform.
func (s *FieldMappingService) Create(ctx context.Context, orgID uuid.UUID, platform itsm.Platform, in FieldMappingInput) (*itsm.FieldMapping, error) {
	fieldType, rule, err := parseMappingAttributes(in.FieldType, in.TransformRule)
	if err != nil {
		return nil, err
	}

	existing, err := s.mappingRepo.FindByPlatform(ctx, orgID, platform)
	if err != nil {
		return nil, err
	}
	for _, m := range existing {
		if strings.EqualFold(m.InternalField, strings.TrimSpace(in.InternalField)) {
			return nil, itsm.ErrDuplicateMapping
		}
	}

	mapping, err := itsm.NewFieldMapping(orgID, platform, in.InternalField, in.ExternalField, fieldType)
	if err != nil {
		return nil, err
	}
	mapping.IsRequired = in.IsRequired
	mapping.TransformRule = rule
	mapping.Notes = in.Notes
	mapping.Position = in.Position
	if mapping.Position == 0 {
		mapping.Position = nextPosition(existing)
	}

	if err := s.mappingRepo.Save(ctx, mapping); err != nil {
		return nil, err
	}
	return mapping, nil
}

// Update changes a mapping's target, type, requirement, rule and notes
func (s *FieldMappingService) Update(ctx context.Context, orgID, id uuid.UUID, in FieldMappingInput) (*itsm.FieldMapping, error) {
	mapping, err := s.mappingRepo.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	fieldType, rule, err := parseMappingAttributes(in.FieldType, in.TransformRule)
	if err != nil {
		return nil, err
	}
	if err := mapping.Update(in.ExternalField, fieldType, in.IsRequired, rule, in.Notes); err != nil {
		return nil, err
	}
	if in.Position > 0 {
		mapping.Position = in.Position
	}
	if err := s.mappingRepo.Save(ctx, mapping); err != nil {
		return nil, err
	}
	return mapping, nil
}

// Delete removes a mapping
func (s *FieldMappingService) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	return s.mappingRepo.Delete(ctx, orgID, id)
}

// List returns the stored mappings of a platform in resolution order
func (s *FieldMappingService) List(ctx context.Context, orgID uuid.UUID, platform itsm.Platform) ([]*itsm.FieldMapping, error) {
	if !platform.IsValid() {
		return nil, itsm.ErrInvalidPlatform
	}
	mappings, err := s.mappingRepo.FindByPlatform(ctx, orgID, platform)
	if err != nil {
		return nil, err
	}
	itsm.SortMappings(mappings)
	return mappings, nil
}

// EffectiveMappings returns the stored mappings, or the built-in template when
// the organization has not configured the platform yet
func (s *FieldMappingService) EffectiveMappings(ctx context.Context, orgID uuid.UUID, platform itsm.Platform) ([]*itsm.FieldMapping, error) {
	mappings, err := s.List(ctx, orgID, platform)
	if err != nil {
		return nil, err
	}
	if len(mappings) > 0 || s.templates == nil {
		return mappings, nil
	}
	return s.defaultMappings(orgID, platform)
}

// Resolve translates an internal record into the platform payload
func (s *FieldMappingService) Resolve(ctx context.Context, orgID uuid.UUID, platform itsm.Platform, record itsm.Record) (itsm.Payload, error) {
	mappings, err := s.EffectiveMappings(ctx, orgID, platform)
	if err != nil {
		return nil, err
	}
	return itsm.ResolvePayload(mappings, record)
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

// ResetToDefault replaces the platform's mappings with the built-in template
// in one transaction
func (s *FieldMappingService) ResetToDefault(ctx context.Context, orgID uuid.UUID, platform itsm.Platform, userEmail string) ([]*itsm.FieldMapping, error) {
	if s.templates == nil {
		return nil, itsm.ErrNoDefaultTemplate
	}
	mappings, err := s.defaultMappings(orgID, platform)
	if err != nil {
		return nil, err
	}
	if err := s.mappingRepo.ReplacePlatform(ctx, orgID, platform, mappings); err != nil {
		return nil, err
	}
	s.audit(ctx, orgID, platform, itsm.AuditActionMappingReset, userEmail,
		fmt.Sprintf("%s field mappings reset to %d default mappings", platform.DisplayName(), len(mappings)))
	return mappings, nil
}

func (s *FieldMappingService) defaultMappings(orgID uuid.UUID, platform itsm.Platform) ([]*itsm.FieldMapping, error) {
	rows, err := s.templates.DefaultMappings(platform)
	if err != nil {
		return nil, err
	}
	mappings := make([]*itsm.FieldMapping, 0, len(rows))
	for i, row := range rows {
		fieldType, rule, err := parseMappingAttributes(string(row.FieldType), row.Transform)
		if err != nil {
			return nil, fmt.Errorf("default template %s/%s: %w", platform, row.InternalField, err)
		}
		m, err := itsm.NewFieldMapping(orgID, platform, row.InternalField, row.ExternalField, fieldType)
		if err != nil {
			return nil, fmt.Errorf("default template %s/%s: %w", platform, row.InternalField, err)
		}
		m.IsRequired = row.IsRequired
		m.TransformRule = rule
		m.Notes = row.Notes
		m.Position = i + 1
		mappings = append(mappings, m)
	}
	return mappings, nil
}

// ---------------------------------------------------------------------------
// CSV import / export
// ---------------------------------------------------------------------------

// RejectedRow explains why one CSV row was not imported
type RejectedRow struct {
	Row    int    `json:"row"`
	Column string `json:"column,omitempty"`
	Reason string `json:"reason"`
}

// ImportResult summarizes a CSV import
type ImportResult struct {
	Imported  int           `json:"imported"`
	Rejected  []RejectedRow `json:"rejected"`
	Truncated bool          `json:"truncated,omitempty"`
}

// ImportCSV loads mappings from a CSV file. Each invalid row is rejected on its
// own; valid rows are stored. With replace the valid rows atomically replace
// the platform's existing mappings, otherwise they are added and rows whose
// internal field is already mapped are rejected.
func (s *FieldMappingService) ImportCSV(
	ctx context.Context,
	orgID uuid.UUID,
	platform itsm.Platform,
	r io.Reader,
	replace bool,
	userEmail string,
) (*ImportResult, error) {
	if !platform.IsValid() {
		return nil, itsm.ErrInvalidPlatform
	}

	reader, err := csvimport.NewReader(r)
	if err != nil {
		return nil, itsm.NewValidationError(itsm.CodeMalformedPayload, "file", err.Error())
	}
	if missing := reader.Missing(ColumnInternalField, ColumnExternalField); len(missing) > 0 {
		return nil, itsm.NewValidationError(itsm.CodeMalformedPayload, "file",
			(&csvimport.MissingColumnsError{Columns: missing}).Error())
	}

	var existing []*itsm.FieldMapping
	if !replace {
		if existing, err = s.mappingRepo.FindByPlatform(ctx, orgID, platform); err != nil {
			return nil, err
		}
	}
	mapped := make(map[string]bool, len(existing))
	for _, m := range existing {
		mapped[strings.ToLower(m.InternalField)] = true
	}

	validator := csvimport.NewFieldValidator(mappingRowRules(), maxImportErrors)
	rowErrors := validator.Errors()
	rows := reader.Rows(func(line int, err error) {
		rowErrors.Add(csvimport.NewRowError(line, "", csvimport.ErrCodeImportMalformedRow, err.Error()))
	})

	position := nextPosition(existing)
	mappings := make([]*itsm.FieldMapping, 0, len(rows))
	for _, row := range rows {
		if !validator.ValidateRow(row) {
			continue
		}
		internal := row.Get(ColumnInternalField)
		if mapped[strings.ToLower(internal)] {
			validator.Forget(row)
			rowErrors.Add(csvimport.NewRowError(row.LineNumber, ColumnInternalField,
				csvimport.ErrCodeImportDuplicateExisting, "internal field is already mapped").WithValue(internal))
			continue
		}
		m, err := mappingFromRow(orgID, platform, row)
		if err != nil {
			validator.Forget(row)
			rowErrors.Add(csvimport.NewRowError(row.LineNumber, "", csvimport.ErrCodeImportInvalidValue, err.Error()))
			continue
		}
		m.Position = position
		position++
		mappings = append(mappings, m)
	}

	switch {
	case len(mappings) == 0:
		// nothing valid: an all-rejected file never wipes the current table
	case replace:
		err = s.mappingRepo.ReplacePlatform(ctx, orgID, platform, mappings)
	default:
		err = s.mappingRepo.SaveBatch(ctx, mappings)
	}
	if err != nil {
		return nil, err
	}

	result := &ImportResult{
		Imported:  len(mappings),
		Rejected:  make([]RejectedRow, 0, len(rowErrors.Errors())),
		Truncated: rowErrors.Truncated(),
	}
	for _, e := range rowErrors.Errors() {
		result.Rejected = append(result.Rejected, RejectedRow{Row: e.Row, Column: e.Column, Reason: e.Message})
	}

	s.audit(ctx, orgID, platform, itsm.AuditActionMappingImport, userEmail,
		fmt.Sprintf("%s field mapping import: %d imported, %d rejected (replace=%t)",
			platform.DisplayName(), result.Imported, rowErrors.Total(), replace))
	return result, nil
}

// ExportCSV writes the platform's effective mappings in the import format
func (s *FieldMappingService) ExportCSV(ctx context.Context, orgID uuid.UUID, platform itsm.Platform, w io.Writer) error {
	mappings, err := s.EffectiveMappings(ctx, orgID, platform)
	if err != nil {
		return err
	}
	records := make([][]string, len(mappings))
	for i, m := range mappings {
		records[i] = []string{
			m.InternalField,
			m.ExternalField,
			string(m.FieldType),
			strconv.FormatBool(m.IsRequired),
			m.Notes,
			m.TransformRule.String(),
		}
	}
	return csvimport.Write(w, MappingCSVHeader, records)
}

func mappingRowRules() []csvimport.FieldRule {
	return []csvimport.FieldRule{
		csvimport.Field(ColumnInternalField).Required().Unique().Build(),
		csvimport.Field(ColumnExternalField).Required().Build(),
		csvimport.Field(ColumnFieldType).OneOf(
			string(itsm.FieldTypeString),
			string(itsm.FieldTypeNumber),
			string(itsm.FieldTypeDate),
			string(itsm.FieldTypeBoolean),
			string(itsm.FieldTypeArray),
		).Build(),
		csvimport.Field(ColumnIsRequired).Bool().Build(),
		csvimport.Field(ColumnTransformRule).Custom(func(v string) error {
			_, err := itsm.ParseTransformRule(v)
			return err
		}).Build(),
	}
}

func mappingFromRow(orgID uuid.UUID, platform itsm.Platform, row *csvimport.Row) (*itsm.FieldMapping, error) {
	fieldType, rule, err := parseMappingAttributes(row.Get(ColumnFieldType), row.Get(ColumnTransformRule))
	if err != nil {
		return nil, err
	}
	required, err := csvimport.ParseBool(row.Get(ColumnIsRequired))
	if err != nil {
		return nil, err
	}
	m, err := itsm.NewFieldMapping(orgID, platform, row.Get(ColumnInternalField), row.Get(ColumnExternalField), fieldType)
	if err != nil {
		return nil, err
	}
	m.IsRequired = required
	m.TransformRule = rule
	m.Notes = row.Get(ColumnNotes)
	return m, nil
}

func parseMappingAttributes(fieldType, transformRule string) (itsm.FieldType, itsm.TransformRule, error) {
	ft, err := itsm.ParseFieldType(fieldType)
	if err != nil {
		return "", itsm.TransformRule{}, itsm.NewValidationError(itsm.CodeInvalidFieldValue, ColumnFieldType, err.Error())
	}
	rule, err := itsm.ParseTransformRule(transformRule)
	if err != nil {
		return "", itsm.TransformRule{}, itsm.NewValidationError(itsm.CodeInvalidFieldValue, ColumnTransformRule, err.Error())
	}
	return ft, rule, nil
}

func nextPosition(mappings []*itsm.FieldMapping) int {
	next := 1
	for _, m := range mappings {
		if m.Position >= next {
			next = m.Position + 1
		}
	}
	return next
}

func (s *FieldMappingService) audit(ctx context.Context, orgID uuid.UUID, platform itsm.Platform, action, userEmail, details string) {
	entry := itsm.NewAuditLog(orgID, platform, action, itsm.AuditOutcomeSuccess, details)
	entry.UserEmail = userEmail
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		s.logger.Error("Failed to write field mapping audit entry",
			zap.String("organization_id", orgID.String()),
			zap.String("platform", string(platform)),
			zap.String("action", action),
			zap.Error(err))
	}
}
