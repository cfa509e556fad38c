package itsm

import (
	"strings"
	"time"
)

// ConflictPolicies holds the per-organization merge policy toggles.
// A disabled policy falls back to blind overwrite by the incoming value.
type ConflictPolicies struct {
	// Comments enables last-writer-wins by timestamp
	Comments bool `json:"comments"`
	// Status enables forward-only status transitions
	Status bool `json:"status"`
	// Priority enables max-merge of priority/severity
	Priority bool `json:"priority"`
}

// DefaultConflictPolicies enables every policy
func DefaultConflictPolicies() ConflictPolicies {
	return ConflictPolicies{Comments: true, Status: true, Priority: true}
}

// normalizeToken lowercases and collapses separators: "In Progress" -> "in_progress"
func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

var commonStatusRanks = map[string]int{
	"new":           1,
	"open":          1,
	"investigating": 2,
	"in_progress":   2,
	"on_hold":       3,
	"in_review":     3,
	"resolved":      6,
	"done":          6,
	"closed":        7,
}

var platformStatusRanks = map[Platform]map[string]int{
	PlatformServiceNow: {
		"1":         1,
		"2":         2,
		"3":         3,
		"6":         6,
		"7":         7,
		"8":         8,
		"canceled":  8,
		"cancelled": 8,
	},
	PlatformJira: {
		"to_do":                    1,
		"backlog":                  1,
		"reopened":                 1,
		"selected_for_development": 1,
	},
}

// StatusRank returns the forward-only rank of a status on a platform.
// Unknown statuses rank 0.
func StatusRank(platform Platform, status string) int {
	key := normalizeToken(status)
	if rank, ok := platformStatusRanks[platform][key]; ok {
		return rank
	}
	return commonStatusRanks[key]
}

// StatusResolution is the outcome of merging an incoming status
type StatusResolution struct {
	Value        string
	Applied      bool
	Skipped      bool
	CurrentRank  int
	IncomingRank int
}

// ResolveStatus applies the forward-only policy. A transition is applied only if
// the incoming rank is greater than or equal to the current rank; lower ranks are
// skipped. With the policy disabled the incoming value always wins.
func ResolveStatus(platform Platform, current, incoming string, forwardOnly bool) StatusResolution {
	res := StatusResolution{
		Value:        current,
		CurrentRank:  StatusRank(platform, current),
		IncomingRank: StatusRank(platform, incoming),
	}
	if strings.TrimSpace(incoming) == "" {
		return res
	}
	if current == "" || !forwardOnly || res.IncomingRank >= res.CurrentRank {
		res.Value = incoming
		res.Applied = true
		return res
	}
	res.Skipped = true
	return res
}

var priorityRanks = map[string]int{
	"informational": 0,
	"info":          0,
	"lowest":        1,
	"planning":      1,
	"low":           1,
	"minor":         1,
	"medium":        2,
	"moderate":      2,
	"major":         3,
	"high":          3,
	"critical":      4,
	"highest":       4,
	"blocker":       4,
	// ServiceNow impact/urgency/priority codes
	"5": 1,
	"4": 1,
	"3": 2,
	"2": 3,
	"1": 4,
}

// PriorityRank returns the severity rank of a priority value
func PriorityRank(priority string) int {
	return priorityRanks[normalizeToken(priority)]
}

// MergePriority returns the higher of two priorities. It never downgrades and
// is commutative: MergePriority(a, b) == MergePriority(b, a).
func MergePriority(a, b string) string {
	ra, rb := PriorityRank(a), PriorityRank(b)
	switch {
	case strings.TrimSpace(a) == "":
		return b
	case strings.TrimSpace(b) == "":
		return a
	case ra > rb:
		return a
	case rb > ra:
		return b
	case a <= b:
		return a
	default:
		return b
	}
}

// ResolvePriority applies the max policy, or blind overwrite when disabled
func ResolvePriority(current, incoming string, maxPolicy bool) string {
	if strings.TrimSpace(incoming) == "" {
		return current
	}
	if !maxPolicy {
		return incoming
	}
	return MergePriority(current, incoming)
}

// Comment is a timestamped comment body
type Comment struct {
	Body string    `json:"body"`
	At   time.Time `json:"at"`
}

// ResolveComment applies last-writer-wins. The side with the strictly later
// timestamp wins; ties keep the local comment. With the policy disabled the
// incoming comment always wins. The second result reports whether incoming won.
func ResolveComment(local, incoming *Comment, lastWriterWins bool) (*Comment, bool) {
	if incoming == nil {
		return local, false
	}
	if local == nil || !lastWriterWins || incoming.At.After(local.At) {
		return incoming, true
	}
	return local, false
}
