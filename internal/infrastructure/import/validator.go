package csvimport

import (
	"fmt"
	"strings"
)

// FieldRule defines validation rules for a column
type FieldRule struct {
	Column   string
	Required bool
	// OneOf restricts values to a case-insensitive set
	OneOf []string
	Bool  bool
	// Unique rejects a value already used by an accepted row of the file
	Unique     bool
	CustomFunc func(value string) error
}

// FieldRuleBuilder helps build field rules fluently
type FieldRuleBuilder struct {
	rule FieldRule
}

// Field creates a new field rule builder
func Field(column string) *FieldRuleBuilder {
	return &FieldRuleBuilder{rule: FieldRule{Column: strings.ToLower(column)}}
}

// Required marks the field as required
func (b *FieldRuleBuilder) Required() *FieldRuleBuilder {
	b.rule.Required = true
	return b
}

// OneOf restricts the field to the given values
func (b *FieldRuleBuilder) OneOf(values ...string) *FieldRuleBuilder {
	b.rule.OneOf = values
	return b
}

// Bool expects a boolean value
func (b *FieldRuleBuilder) Bool() *FieldRuleBuilder {
	b.rule.Bool = true
	return b
}

// Unique rejects duplicate values within the file
func (b *FieldRuleBuilder) Unique() *FieldRuleBuilder {
	b.rule.Unique = true
	return b
}

// Custom adds a custom validation function
func (b *FieldRuleBuilder) Custom(fn func(value string) error) *FieldRuleBuilder {
	b.rule.CustomFunc = fn
	return b
}

// Build returns the built rule
func (b *FieldRuleBuilder) Build() FieldRule {
	return b.rule
}

// FieldValidator validates rows according to rules
type FieldValidator struct {
	rules       []FieldRule
	uniqueCheck map[string]map[string]int // column -> folded value -> first row number
	errors      *ErrorLog
}

// NewFieldValidator creates a new field validator. Rules are evaluated in order.
func NewFieldValidator(rules []FieldRule, maxErrors int) *FieldValidator {
	return &FieldValidator{
		rules:       rules,
		uniqueCheck: make(map[string]map[string]int),
		errors:      NewErrorLog(maxErrors),
	}
}

// ValidateRow validates all fields in a row and reports whether it passed.
// Unique values are only recorded for rows that pass every rule.
func (v *FieldValidator) ValidateRow(row *Row) bool {
	ok := true
	for _, rule := range v.rules {
		if !v.validateField(row, rule) {
			ok = false
		}
	}
	if ok {
		v.recordUnique(row)
	}
	return ok
}

// Forget drops the unique values of a row that passed validation but was
// rejected afterwards, so a later row may still use them.
func (v *FieldValidator) Forget(row *Row) {
	for _, rule := range v.rules {
		if !rule.Unique {
			continue
		}
		key := strings.ToLower(row.Get(rule.Column))
		if seen := v.uniqueCheck[rule.Column]; seen != nil && seen[key] == row.LineNumber {
			delete(seen, key)
		}
	}
}

func (v *FieldValidator) recordUnique(row *Row) {
	for _, rule := range v.rules {
		value := row.Get(rule.Column)
		if !rule.Unique || value == "" {
			continue
		}
		seen := v.uniqueCheck[rule.Column]
		if seen == nil {
			seen = make(map[string]int)
			v.uniqueCheck[rule.Column] = seen
		}
		seen[strings.ToLower(value)] = row.LineNumber
	}
}

func (v *FieldValidator) validateField(row *Row, rule FieldRule) bool {
	value := row.Get(rule.Column)
	if value == "" {
		if rule.Required {
			v.errors.required(row.LineNumber, rule.Column)
			return false
		}
		return true
	}

	if len(rule.OneOf) > 0 && !containsFold(rule.OneOf, value) {
		v.errors.invalid(row.LineNumber, rule.Column,
			fmt.Sprintf("must be one of %s", strings.Join(rule.OneOf, ", ")), value)
		return false
	}

	if rule.Bool {
		if _, err := ParseBool(value); err != nil {
			v.errors.invalid(row.LineNumber, rule.Column, err.Error(), value)
			return false
		}
	}

	if rule.CustomFunc != nil {
		if err := rule.CustomFunc(value); err != nil {
			v.errors.invalid(row.LineNumber, rule.Column, err.Error(), value)
			return false
		}
	}

	if rule.Unique {
		if firstRow, exists := v.uniqueCheck[rule.Column][strings.ToLower(value)]; exists {
			v.errors.Add(NewRowError(row.LineNumber, rule.Column, ErrCodeImportDuplicateInFile,
				fmt.Sprintf("duplicate value '%s' (first seen in row %d)", value, firstRow)).WithValue(value))
			return false
		}
	}
	return true
}

// Errors returns the rows rejected so far
func (v *FieldValidator) Errors() *ErrorLog {
	return v.errors
}

// ParseBool accepts the boolean spellings found in spreadsheets
func ParseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "false", "0", "no", "n":
		return false, nil
	case "true", "1", "yes", "y":
		return true, nil
	}
	return false, fmt.Errorf("invalid boolean value: %s", value)
}

func containsFold(values []string, v string) bool {
	for _, candidate := range values {
		if strings.EqualFold(candidate, v) {
			return true
		}
	}
	return false
}
