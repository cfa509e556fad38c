package itsm

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMapping(t *testing.T, internal, external string, ft FieldType, required bool, rule string) *FieldMapping {
	t.Helper()
	m, err := NewFieldMapping(uuid.New(), PlatformServiceNow, internal, external, ft)
	require.NoError(t, err)
	m.IsRequired = required
	m.TransformRule, err = ParseTransformRule(rule)
	require.NoError(t, err)
	return m
}

func TestResolvePayload(t *testing.T) {
	mappings := []*FieldMapping{
		mustMapping(t, "title", "short_description", FieldTypeString, true, ""),
		mustMapping(t, "severity", "impact", FieldTypeNumber, true, "critical->1,high->2,medium->3,low->3"),
		mustMapping(t, "due_date", "due_date", FieldTypeDate, false, ""),
		mustMapping(t, "tags", "labels", FieldTypeArray, false, ""),
		mustMapping(t, "is_public", "public", FieldTypeBoolean, false, ""),
	}

	payload, err := ResolvePayload(mappings, Record{
		"title":     "SQL injection in login",
		"severity":  "critical",
		"due_date":  "2025-06-01",
		"tags":      "sast, web",
		"is_public": "false",
		"unmapped":  "ignored",
	})
	require.NoError(t, err)

	assert.Equal(t, "SQL injection in login", payload["short_description"])
	assert.Equal(t, json.Number("1"), payload["impact"])
	assert.Equal(t, "2025-06-01T00:00:00Z", payload["due_date"])
	assert.Equal(t, []any{"sast", "web"}, payload["labels"])
	assert.Equal(t, false, payload["public"])
	assert.NotContains(t, payload, "unmapped")
}

func TestResolvePayload_MissingRequiredField(t *testing.T) {
	mappings := []*FieldMapping{
		mustMapping(t, "title", "summary", FieldTypeString, true, ""),
		mustMapping(t, "description", "description", FieldTypeString, false, ""),
	}

	for name, record := range map[string]Record{
		"absent": {"description": "d"},
		"nil":    {"title": nil},
		"blank":  {"title": "   "},
	} {
		t.Run(name, func(t *testing.T) {
			payload, err := ResolvePayload(mappings, record)
			assert.Nil(t, payload)
			require.Error(t, err)
			assert.True(t, IsMissingRequiredField(err))

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "title", ve.Field)
		})
	}
}

func TestResolvePayload_OptionalAbsentIsOmitted(t *testing.T) {
	mappings := []*FieldMapping{mustMapping(t, "description", "description", FieldTypeString, false, "")}
	payload, err := ResolvePayload(mappings, Record{})
	require.NoError(t, err)
	assert.Empty(t, payload)
}

func TestResolvePayload_PassThroughDefault(t *testing.T) {
	mappings := []*FieldMapping{mustMapping(t, "severity", "priority", FieldTypeString, false, "critical->Highest")}

	payload, err := ResolvePayload(mappings, Record{"severity": "informational"})
	require.NoError(t, err)
	assert.Equal(t, "informational", payload["priority"])
}

func TestResolvePayload_InvalidValue(t *testing.T) {
	mappings := []*FieldMapping{mustMapping(t, "score", "score", FieldTypeNumber, false, "")}
	_, err := ResolvePayload(mappings, Record{"score": "abc"})

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, CodeInvalidFieldValue, ve.Code)
}

func TestCoerceValue(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))

	tests := []struct {
		name  string
		value any
		ft    FieldType
		want  any
	}{
		{"int to string", 42, FieldTypeString, "42"},
		{"float to number", 2.5, FieldTypeNumber, json.Number("2.5")},
		{"string to number", " 7 ", FieldTypeNumber, json.Number("7")},
		{"bool passthrough", true, FieldTypeBoolean, true},
		{"time to date", ts, FieldTypeDate, "2025-01-02T02:04:05Z"},
		{"datetime string", "2025-01-02 03:04:05", FieldTypeDate, "2025-01-02T03:04:05Z"},
		{"string slice", []string{"a", "b"}, FieldTypeArray, []any{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CoerceValue(tt.value, tt.ft)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := CoerceValue("yes please", FieldTypeBoolean)
	assert.Error(t, err)
	_, err = CoerceValue("not-a-date", FieldTypeDate)
	assert.Error(t, err)
}

func TestParseTransformRule(t *testing.T) {
	rule, err := ParseTransformRule("critical->1, high->2,,low->4")
	require.NoError(t, err)
	assert.Len(t, rule.Substitutions, 3)
	assert.Equal(t, "critical->1,high->2,low->4", rule.String())

	out, ok := rule.Apply("high")
	assert.True(t, ok)
	assert.Equal(t, "2", out)

	out, ok = rule.Apply("High")
	assert.False(t, ok, "matching is exact")
	assert.Equal(t, "High", out)

	empty, err := ParseTransformRule("  ")
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())

	_, err = ParseTransformRule("critical=1")
	assert.ErrorIs(t, err, ErrInvalidTransformRule)
	_, err = ParseTransformRule("->1")
	assert.ErrorIs(t, err, ErrInvalidTransformRule)
}

func TestTransformRule_FirstMatchWins(t *testing.T) {
	rule := TransformRule{Substitutions: []Substitution{{From: "a", To: "1"}, {From: "a", To: "2"}}}
	out, _ := rule.Apply("a")
	assert.Equal(t, "1", out)
}

func TestSortMappings(t *testing.T) {
	a := mustMapping(t, "b_field", "x", FieldTypeString, false, "")
	b := mustMapping(t, "a_field", "y", FieldTypeString, false, "")
	c := mustMapping(t, "z_field", "z", FieldTypeString, false, "")
	c.Position = -1

	list := []*FieldMapping{a, b, c}
	SortMappings(list)
	assert.Equal(t, []string{"z_field", "a_field", "b_field"}, []string{list[0].InternalField, list[1].InternalField, list[2].InternalField})
}
