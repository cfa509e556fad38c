package itsm

import (
	"fmt"
	"strings"
)

// Substitution replaces an exact input value with an output value
type Substitution struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// TransformRule is an ordered list of exact-match substitutions. The first
// matching substitution wins; values that match nothing pass through unchanged.
type TransformRule struct {
	Substitutions []Substitution `json:"substitutions,omitempty" yaml:"substitutions,omitempty"`
}

// ParseTransformRule parses the textual form "critical->1,high->2".
// An empty string yields a pass-through rule.
func ParseTransformRule(s string) (TransformRule, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TransformRule{}, nil
	}

	var rule TransformRule
	for _, segment := range strings.Split(s, ",") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		from, to, ok := strings.Cut(segment, "->")
		from = strings.TrimSpace(from)
		if !ok || from == "" {
			return TransformRule{}, fmt.Errorf("%w: segment %q", ErrInvalidTransformRule, segment)
		}
		rule.Substitutions = append(rule.Substitutions, Substitution{
			From: from,
			To:   strings.TrimSpace(to),
		})
	}
	return rule, nil
}

// Apply returns the substituted value and whether a substitution matched
func (r TransformRule) Apply(value string) (string, bool) {
	for _, sub := range r.Substitutions {
		if sub.From == value {
			return sub.To, true
		}
	}
	return value, false
}

// IsEmpty reports whether the rule is pass-through only
func (r TransformRule) IsEmpty() bool {
	return len(r.Substitutions) == 0
}

// String renders the rule in its textual form
func (r TransformRule) String() string {
	parts := make([]string, len(r.Substitutions))
	for i, sub := range r.Substitutions {
		parts[i] = sub.From + "->" + sub.To
	}
	return strings.Join(parts, ",")
}
