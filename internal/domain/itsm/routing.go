package itsm

import (
	"sort"
	"strings"
)

// Product groups
const (
	ProductGroupDevSecOps = "devsecops"
	ProductGroupDevOps    = "devops"
	ProductGroupEndpoint  = "endpoint"
	ProductGroupUnknown   = "unknown"

	// DefaultAssignee is used when a category has no routing rule
	DefaultAssignee = "Unassigned"
)

// Assignment is the result of routing a finding category
type Assignment struct {
	ProductGroup string `json:"product_group"`
	Assignee     string `json:"assignee"`
}

// RoutingRule maps a finding category to a product group and default assignee
type RoutingRule struct {
	Category     string `json:"category"`
	ProductGroup string `json:"product_group"`
	Assignee     string `json:"assignee"`
}

var groupAssignees = map[string]string{
	ProductGroupDevSecOps: "AppSec Team",
	ProductGroupDevOps:    "Cloud Platform Team",
	ProductGroupEndpoint:  "Endpoint Team",
}

var categoryGroups = map[string]string{
	"sast":     ProductGroupDevSecOps,
	"dast":     ProductGroupDevSecOps,
	"secrets":  ProductGroupDevSecOps,
	"cloud":    ProductGroupDevOps,
	"iam":      ProductGroupDevOps,
	"cspm":     ProductGroupDevOps,
	"endpoint": ProductGroupEndpoint,
	"edr":      ProductGroupEndpoint,
	"mdm":      ProductGroupEndpoint,
}

// Route resolves a finding category. Unknown categories route to the
// "unknown" product group and DefaultAssignee.
func Route(category string) Assignment {
	group, ok := categoryGroups[strings.ToLower(strings.TrimSpace(category))]
	if !ok {
		return Assignment{ProductGroup: ProductGroupUnknown, Assignee: DefaultAssignee}
	}
	return Assignment{ProductGroup: group, Assignee: groupAssignees[group]}
}

// RoutingRules returns the static routing table sorted by category
func RoutingRules() []RoutingRule {
	rules := make([]RoutingRule, 0, len(categoryGroups))
	for category, group := range categoryGroups {
		rules = append(rules, RoutingRule{
			Category:     category,
			ProductGroup: group,
			Assignee:     groupAssignees[group],
		})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Category < rules[j].Category })
	return rules
}

// ProductGroups returns the routable product groups
func ProductGroups() []string {
	return []string{ProductGroupDevSecOps, ProductGroupDevOps, ProductGroupEndpoint}
}

// IsKnownProductGroup reports whether a group can carry a sync toggle
func IsKnownProductGroup(group string) bool {
	_, ok := groupAssignees[group]
	return ok || group == ProductGroupUnknown
}
