package telemetry

import (
	"context"
	"sort"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys
const (
	ProfilingLabelRoute          = "route"
	ProfilingLabelMethod         = "method"
	ProfilingLabelOrganizationID = "organization_id"
	ProfilingLabelPlatform       = "platform"
	ProfilingLabelAction         = "action"
	ProfilingLabelOperation      = "operation"
)

// MaxLabelValueLength bounds label values
const MaxLabelValueLength = 128

// highCardinalityLabels never reach the profiler
var highCardinalityLabels = map[string]bool{
	"user_id":     true,
	"request_id":  true,
	"trace_id":    true,
	"ticket_id":   true,
	"external_id": true,
	"queue_id":    true,
}

// WithProfilingLabels runs fn with Pyroscope labels attached to its
// goroutine. Empty and high cardinality labels are dropped, and fn runs
// unlabeled when nothing remains.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := sanitizeLabels(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// HTTPRequestLabels labels an API request by route, method and organization
func HTTPRequestLabels(route, method, organizationID string) map[string]string {
	return map[string]string{
		ProfilingLabelRoute:          route,
		ProfilingLabelMethod:         method,
		ProfilingLabelOrganizationID: organizationID,
	}
}

// DeliveryLabels labels outbound delivery work for one queue item
func DeliveryLabels(organizationID, platform, action string) map[string]string {
	return map[string]string{
		ProfilingLabelOperation:      "deliver",
		ProfilingLabelOrganizationID: organizationID,
		ProfilingLabelPlatform:       platform,
		ProfilingLabelAction:         action,
	}
}

// sanitizeLabels returns sorted key/value pairs with keys in snake_case and
// values truncated
func sanitizeLabels(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(labels)*2)
	for _, key := range keys {
		value := labels[key]
		clean := sanitizeLabelKey(key)
		if clean == "" || value == "" || highCardinalityLabels[clean] {
			continue
		}
		if len(value) > MaxLabelValueLength {
			value = value[:MaxLabelValueLength]
		}
		pairs = append(pairs, clean, value)
	}
	return pairs
}

func sanitizeLabelKey(key string) string {
	key = strings.ToLower(strings.NewReplacer(" ", "_", "-", "_").Replace(key))
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return -1
	}, key)
}
