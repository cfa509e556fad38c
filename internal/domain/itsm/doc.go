// Package itsm contains the ITSM synchronization bounded context.
// This context keeps internal security tickets consistent with external
// ticketing platforms (ServiceNow, Jira) in both directions.
//
// Key concepts:
//   - Connection: per-organization, per-platform configuration and status
//   - FieldMapping: translation of internal record fields to a platform's schema
//   - SyncQueueItem: durable outbound delivery unit with bounded retry
//   - SyncEvent / AuditLog: operational event view and immutable compliance trail
//   - Conflict policies: merge rules applied when both systems changed a ticket
//   - Routing: static category -> product group / assignee table
//
// Design Pattern: Ports & Adapters
//   - Ports (PlatformAdapter, InboundNormalizer, repositories) are defined here
//   - Adapters (ServiceNow, Jira, GORM) are in the infrastructure layer
package itsm
