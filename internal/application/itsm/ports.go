// Package itsm holds the application services of the ITSM sync engine: the
// outbound queue, inbound webhook processing, field mapping management,
// connection registry and the audit/event log.
package itsm

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
)

// Metrics receives sync engine measurements. The Prometheus implementation
// lives in the telemetry package.
type Metrics interface {
	ObserveDelivery(platform itsm.Platform, action itsm.SyncAction, outcome string, elapsed time.Duration)
	IncEnqueued(platform itsm.Platform, action itsm.SyncAction)
	IncWebhook(platform itsm.Platform, outcome string)
	IncCollision(platform itsm.Platform)
}

// NopMetrics discards every measurement
type NopMetrics struct{}

func (NopMetrics) ObserveDelivery(itsm.Platform, itsm.SyncAction, string, time.Duration) {}
func (NopMetrics) IncEnqueued(itsm.Platform, itsm.SyncAction) {}
func (NopMetrics) IncWebhook(itsm.Platform, string) {}
func (NopMetrics) IncCollision(itsm.Platform) {}

// Delivery outcomes reported to Metrics
const (
	DeliveryOutcomeSuccess  = "success"
	DeliveryOutcomeRetrying = "retrying"
	DeliveryOutcomeFailure  = "failure"
	DeliveryOutcomeSkipped  = "skipped"
)

// AuditArchiver stores an exported audit range in durable object storage
type AuditArchiver interface {
	// PutObject writes body under key and returns the stored object's location
	PutObject(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// ArchiveKey is the object key of an organization's audit export
func ArchiveKey(orgID uuid.UUID, from, to time.Time) string {
	const layout = "20060102T150405Z"
	return "audit/" + orgID.String() + "/" + from.UTC().Format(layout) + "_" + to.UTC().Format(layout) + ".jsonl"
}
