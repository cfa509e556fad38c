package itsm

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	csvimport "github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/import"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A row missing external_field is rejected while the well-formed rows are
// stored.
func TestFieldMappingService_ImportCSV_RejectsMalformedRows(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	file := "internal_field,external_field,field_type,is_required,notes,transform_rule\n" +
		"title,short_description,string,true,Headline,\n" +
		"severity,,string,false,,\n" +
		"impact,impact,string,false,,\"critical->1,high->2\"\n"
	result, err := env.mappings.ImportCSV(ctx, env.orgID, itsm.PlatformServiceNow, strings.NewReader(file), false, "admin@acme.test")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Imported)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, 3, result.Rejected[0].Row)
	assert.Equal(t, ColumnExternalField, result.Rejected[0].Column)

	mappings, err := env.mappings.List(ctx, env.orgID, itsm.PlatformServiceNow)
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	assert.Equal(t, "title", mappings[0].InternalField)
	assert.True(t, mappings[0].IsRequired)
	assert.Equal(t, "impact", mappings[1].InternalField)

	audits := env.auditLogs(t, itsm.AuditLogFilter{Action: itsm.AuditActionMappingImport})
	require.Len(t, audits, 1)
	assert.Equal(t, "admin@acme.test", audits[0].UserEmail)
}

func TestFieldMappingService_ImportCSV(t *testing.T) {
	ctx := context.Background()

	t.Run("Rejected row does not block a later row with the same internal field", func(t *testing.T) {
		env := newTestEnv(t)

		file := "internal_field,external_field,field_type,is_required,notes,transform_rule\n" +
			"severity,,string,false,,\n" +
			"severity,impact,string,false,,\n" +
			"category,category,blob,false,,\n" +
			"category,category,string,false,,\n" +
			"category,subcategory,string,false,,\n"
		result, err := env.mappings.ImportCSV(ctx, env.orgID, itsm.PlatformServiceNow, strings.NewReader(file), false, "")
		require.NoError(t, err)

		assert.Equal(t, 2, result.Imported)
		rows := make([]int, 0, len(result.Rejected))
		for _, r := range result.Rejected {
			rows = append(rows, r.Row)
		}
		assert.Equal(t, []int{2, 4, 6}, rows)
		assert.Contains(t, result.Rejected[2].Reason, "first seen in row 5")

		mappings, err := env.mappings.List(ctx, env.orgID, itsm.PlatformServiceNow)
		require.NoError(t, err)
		require.Len(t, mappings, 2)
		assert.Equal(t, "severity", mappings[0].InternalField)
		assert.Equal(t, "impact", mappings[0].ExternalField)
		assert.Equal(t, "category", mappings[1].InternalField)
	})

	t.Run("Missing required header rejects the file", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.mappings.ImportCSV(ctx, env.orgID, itsm.PlatformJira, strings.NewReader("internal_field,notes\ntitle,x\n"), false, "")
		var ve *itsm.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, itsm.CodeMalformedPayload, ve.Code)
	})

	t.Run("Empty file rejects the file", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.mappings.ImportCSV(ctx, env.orgID, itsm.PlatformJira, strings.NewReader(""), false, "")
		var ve *itsm.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, ve.Message, csvimport.ErrEmptyFile.Error())
	})

	t.Run("Additive import rejects fields already mapped", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.mappings.Create(ctx, env.orgID, itsm.PlatformJira, FieldMappingInput{InternalField: "title", ExternalField: "summary"})
		require.NoError(t, err)

		file := "internal_field,external_field\nTitle,summary\nproject,project\n"
		result, err := env.mappings.ImportCSV(ctx, env.orgID, itsm.PlatformJira, strings.NewReader(file), false, "")
		require.NoError(t, err)
		assert.Equal(t, 1, result.Imported)
		require.Len(t, result.Rejected, 1)
		assert.Equal(t, 2, result.Rejected[0].Row)

		mappings, err := env.mappings.List(ctx, env.orgID, itsm.PlatformJira)
		require.NoError(t, err)
		require.Len(t, mappings, 2)
		assert.Equal(t, 2, mappings[1].Position)
	})

	t.Run("Replace swaps the table", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.mappings.ResetToDefault(ctx, env.orgID, itsm.PlatformJira, "")
		require.NoError(t, err)

		result, err := env.mappings.ImportCSV(ctx, env.orgID, itsm.PlatformJira,
			strings.NewReader("internal_field,external_field\ntitle,summary\n"), true, "")
		require.NoError(t, err)
		assert.Equal(t, 1, result.Imported)

		mappings, err := env.mappings.List(ctx, env.orgID, itsm.PlatformJira)
		require.NoError(t, err)
		assert.Len(t, mappings, 1)
	})

	t.Run("All rows rejected keeps the table", func(t *testing.T) {
		env := newTestEnv(t)
		defaults, err := env.mappings.ResetToDefault(ctx, env.orgID, itsm.PlatformJira, "")
		require.NoError(t, err)

		result, err := env.mappings.ImportCSV(ctx, env.orgID, itsm.PlatformJira,
			strings.NewReader("internal_field,external_field,field_type\ntitle,summary,blob\n"), true, "")
		require.NoError(t, err)
		assert.Zero(t, result.Imported)
		assert.Len(t, result.Rejected, 1)

		mappings, err := env.mappings.List(ctx, env.orgID, itsm.PlatformJira)
		require.NoError(t, err)
		assert.Len(t, mappings, len(defaults))
	})
}

func TestFieldMappingService_ExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	var buf bytes.Buffer
	require.NoError(t, env.mappings.ExportCSV(ctx, env.orgID, itsm.PlatformServiceNow, &buf))
	assert.True(t, strings.HasPrefix(buf.String(), strings.Join(MappingCSVHeader, ",")+"\n"))
	assert.Contains(t, buf.String(), `critical->1,high->1,medium->2,low->3`)

	result, err := env.mappings.ImportCSV(ctx, env.orgID, itsm.PlatformServiceNow, &buf, true, "")
	require.NoError(t, err)
	assert.Empty(t, result.Rejected)

	stored, err := env.mappings.List(ctx, env.orgID, itsm.PlatformServiceNow)
	require.NoError(t, err)
	defaults, err := env.mappings.EffectiveMappings(ctx, uuid.New(), itsm.PlatformServiceNow)
	require.NoError(t, err)
	require.Len(t, stored, len(defaults))
	for i := range stored {
		assert.Equal(t, defaults[i].InternalField, stored[i].InternalField)
		assert.Equal(t, defaults[i].ExternalField, stored[i].ExternalField)
		assert.Equal(t, defaults[i].IsRequired, stored[i].IsRequired)
		assert.Equal(t, defaults[i].TransformRule.String(), stored[i].TransformRule.String())
	}
}

func TestFieldMappingService_CRUD(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	created, err := env.mappings.Create(ctx, env.orgID, itsm.PlatformJira, FieldMappingInput{
		InternalField: "severity",
		ExternalField: "priority",
		TransformRule: "critical->Highest",
	})
	require.NoError(t, err)
	assert.Equal(t, itsm.FieldTypeString, created.FieldType)
	assert.Equal(t, 1, created.Position)

	_, err = env.mappings.Create(ctx, env.orgID, itsm.PlatformJira, FieldMappingInput{InternalField: "SEVERITY", ExternalField: "x"})
	assert.ErrorIs(t, err, itsm.ErrDuplicateMapping)

	_, err = env.mappings.Create(ctx, env.orgID, itsm.PlatformJira, FieldMappingInput{InternalField: "due", ExternalField: "duedate", FieldType: "timestamp"})
	var ve *itsm.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ColumnFieldType, ve.Field)

	updated, err := env.mappings.Update(ctx, env.orgID, created.ID, FieldMappingInput{
		ExternalField: "customfield_10020",
		IsRequired:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "customfield_10020", updated.ExternalField)
	assert.True(t, updated.TransformRule.IsEmpty())

	payload, err := env.mappings.Resolve(ctx, env.orgID, itsm.PlatformJira, itsm.Record{"severity": "high"})
	require.NoError(t, err)
	assert.Equal(t, itsm.Payload{"customfield_10020": "high"}, payload)

	_, err = env.mappings.Resolve(ctx, env.orgID, itsm.PlatformJira, itsm.Record{})
	assert.True(t, itsm.IsMissingRequiredField(err))

	require.NoError(t, env.mappings.Delete(ctx, env.orgID, created.ID))
	_, err = env.mappings.Update(ctx, env.orgID, created.ID, FieldMappingInput{ExternalField: "x"})
	assert.ErrorIs(t, err, itsm.ErrMappingNotFound)
}

func TestFieldMappingService_TemplateFallback(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	effective, err := env.mappings.EffectiveMappings(ctx, env.orgID, itsm.PlatformJira)
	require.NoError(t, err)
	assert.NotEmpty(t, effective)

	stored, err := env.mappings.List(ctx, env.orgID, itsm.PlatformJira)
	require.NoError(t, err)
	assert.Empty(t, stored, "the fallback is not persisted")

	reset, err := env.mappings.ResetToDefault(ctx, env.orgID, itsm.PlatformJira, "admin@acme.test")
	require.NoError(t, err)
	assert.Len(t, reset, len(effective))
	assert.Len(t, env.auditLogs(t, itsm.AuditLogFilter{Action: itsm.AuditActionMappingReset}), 1)
}
