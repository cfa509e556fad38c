package itsm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is an internal ticket/finding keyed by internal field name
type Record map[string]any

// Payload is a platform-shaped document keyed by external field name
type Payload map[string]any

// String returns the value under key rendered as a string, or "" when absent
func (p Payload) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Clone returns a shallow copy of the payload
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// dateLayouts are accepted for date fields, tried in order
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// SortMappings orders mappings by position, then internal field name
func SortMappings(mappings []*FieldMapping) {
	sort.SliceStable(mappings, func(i, j int) bool {
		if mappings[i].Position != mappings[j].Position {
			return mappings[i].Position < mappings[j].Position
		}
		return mappings[i].InternalField < mappings[j].InternalField
	})
}

// ResolvePayload translates an internal record through the mappings. A required
// field that is absent fails with MissingRequiredField and no payload is produced.
func ResolvePayload(mappings []*FieldMapping, record Record) (Payload, error) {
	ordered := make([]*FieldMapping, len(mappings))
	copy(ordered, mappings)
	SortMappings(ordered)

	payload := make(Payload, len(ordered))
	for _, m := range ordered {
		value, present := lookup(record, m.InternalField)
		if !present {
			if m.IsRequired {
				return nil, MissingRequiredField(m.InternalField)
			}
			continue
		}

		value = applyRule(m.TransformRule, value)

		coerced, err := CoerceValue(value, m.FieldType)
		if err != nil {
			return nil, NewValidationError(CodeInvalidFieldValue, m.InternalField, err.Error())
		}
		payload[m.ExternalField] = coerced
	}
	return payload, nil
}

// lookup treats nil and blank strings as absent
func lookup(record Record, field string) (any, bool) {
	v, ok := record[field]
	if !ok || v == nil {
		return nil, false
	}
	if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
		return nil, false
	}
	return v, true
}

func applyRule(rule TransformRule, value any) any {
	if rule.IsEmpty() {
		return value
	}
	switch value.(type) {
	case []any, []string, map[string]any:
		return value
	}
	if out, matched := rule.Apply(fmt.Sprint(value)); matched {
		return out
	}
	return value
}

// CoerceValue converts a record value to the declared field type
func CoerceValue(value any, fieldType FieldType) (any, error) {
	switch fieldType {
	case FieldTypeString:
		if s, ok := value.(string); ok {
			return s, nil
		}
		return fmt.Sprint(value), nil

	case FieldTypeNumber:
		d, err := decimal.NewFromString(strings.TrimSpace(fmt.Sprint(value)))
		if err != nil {
			return nil, fmt.Errorf("not a number: %v", value)
		}
		return json.Number(d.String()), nil

	case FieldTypeBoolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		default:
			b, err := strconv.ParseBool(strings.TrimSpace(fmt.Sprint(v)))
			if err != nil {
				return nil, fmt.Errorf("not a boolean: %v", value)
			}
			return b, nil
		}

	case FieldTypeDate:
		switch v := value.(type) {
		case time.Time:
			return v.UTC().Format(time.RFC3339), nil
		case *time.Time:
			if v == nil {
				return nil, fmt.Errorf("nil date")
			}
			return v.UTC().Format(time.RFC3339), nil
		default:
			s := strings.TrimSpace(fmt.Sprint(v))
			for _, layout := range dateLayouts {
				if t, err := time.Parse(layout, s); err == nil {
					return t.UTC().Format(time.RFC3339), nil
				}
			}
			return nil, fmt.Errorf("not a date: %v", value)
		}

	case FieldTypeArray:
		switch v := value.(type) {
		case []any:
			return v, nil
		case []string:
			out := make([]any, len(v))
			for i, s := range v {
				out[i] = s
			}
			return out, nil
		default:
			parts := strings.Split(fmt.Sprint(v), ",")
			out := make([]any, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			return out, nil
		}
	}
	return nil, ErrInvalidFieldType
}
