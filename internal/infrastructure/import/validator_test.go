package csvimport

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldRuleBuilder(t *testing.T) {
	custom := func(string) error { return nil }
	rule := Field("Field_Type").Required().OneOf("string", "number").Unique().Custom(custom).Build()

	assert.Equal(t, "field_type", rule.Column)
	assert.True(t, rule.Required)
	assert.Equal(t, []string{"string", "number"}, rule.OneOf)
	assert.True(t, rule.Unique)
	assert.NotNil(t, rule.CustomFunc)
	assert.False(t, rule.Bool)
}

func mappingRows(t *testing.T, content string) []*Row {
	t.Helper()
	reader, err := NewReader(strings.NewReader(content))
	require.NoError(t, err)
	return reader.Rows(nil)
}

func TestFieldValidator(t *testing.T) {
	rules := []FieldRule{
		Field("internal_field").Required().Unique().Build(),
		Field("external_field").Required().Build(),
		Field("field_type").OneOf("string", "number", "date", "boolean", "array").Build(),
		Field("is_required").Bool().Build(),
		Field("transform_rule").Custom(func(v string) error {
			if !strings.Contains(v, "->") {
				return errors.New("expected from->to pairs")
			}
			return nil
		}).Build(),
	}

	t.Run("Valid rows pass", func(t *testing.T) {
		v := NewFieldValidator(rules, 10)
		rows := mappingRows(t, "internal_field,external_field,field_type,is_required,transform_rule\n"+
			"title,summary,STRING,yes,\n"+
			"severity,priority,string,0,critical->1\n")

		for _, row := range rows {
			assert.True(t, v.ValidateRow(row), "row %d", row.LineNumber)
		}
		assert.True(t, v.Errors().Empty())
	})

	t.Run("Each failing rule is reported", func(t *testing.T) {
		v := NewFieldValidator(rules, 10)
		rows := mappingRows(t, "internal_field,external_field,field_type,is_required,transform_rule\n"+
			",summary,string,true,\n"+
			"title,,blob,maybe,oops\n")

		assert.False(t, v.ValidateRow(rows[0]))
		assert.False(t, v.ValidateRow(rows[1]))

		codes := make(map[string]int)
		for _, e := range v.Errors().Errors() {
			codes[e.Column] = e.Row
		}
		assert.Equal(t, map[string]int{
			"internal_field": 2,
			"external_field": 3,
			"field_type":     3,
			"is_required":    3,
			"transform_rule": 3,
		}, codes)
	})

	t.Run("Duplicates within the file are rejected case-insensitively", func(t *testing.T) {
		v := NewFieldValidator(rules, 10)
		rows := mappingRows(t, "internal_field,external_field\ntitle,summary\nTitle,description\n")

		assert.True(t, v.ValidateRow(rows[0]))
		assert.False(t, v.ValidateRow(rows[1]))

		errs := v.Errors().Errors()
		require.Len(t, errs, 1)
		assert.Equal(t, ErrCodeImportDuplicateInFile, errs[0].Code)
		assert.Contains(t, errs[0].Message, "first seen in row 2")
	})

	t.Run("Rejected rows do not reserve unique values", func(t *testing.T) {
		v := NewFieldValidator(rules, 10)
		rows := mappingRows(t, "internal_field,external_field\ntitle,\ntitle,summary\n")

		assert.False(t, v.ValidateRow(rows[0]))
		assert.True(t, v.ValidateRow(rows[1]))
		require.Len(t, v.Errors().Errors(), 1)
		assert.Equal(t, "external_field", v.Errors().Errors()[0].Column)
	})

	t.Run("Forget releases the values of a row rejected later", func(t *testing.T) {
		v := NewFieldValidator(rules, 10)
		rows := mappingRows(t, "internal_field,external_field\ntitle,summary\nTITLE,description\n")

		require.True(t, v.ValidateRow(rows[0]))
		v.Forget(rows[0])
		assert.True(t, v.ValidateRow(rows[1]))
		assert.True(t, v.Errors().Empty())
	})
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		input   string
		want    bool
		wantErr bool
	}{
		{"true", true, false},
		{"TRUE", true, false},
		{"yes", true, false},
		{"1", true, false},
		{"y", true, false},
		{"false", false, false},
		{"no", false, false},
		{"0", false, false},
		{"", false, false},
		{"maybe", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseBool(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
