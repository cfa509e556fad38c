package itsm

import "time"

// InboundAction is the normalized operation of an inbound webhook
type InboundAction string

const (
	InboundActionCreate InboundAction = "create"
	InboundActionUpdate InboundAction = "update"
)

// InboundChange is a platform webhook normalized into the engine's shape
type InboundChange struct {
	ExternalID string
	Action     InboundAction
	Details    string
	// TicketRef is the internal ticket id carried by the platform record, if any
	TicketRef  string
	Status     string
	Priority   string
	Category   string
	Comment    *Comment
	OccurredAt time.Time
}

// InboundNormalizer parses a platform's webhook body. Implementations must
// return a *ValidationError for malformed bodies or missing mandatory fields.
type InboundNormalizer interface {
	Platform() Platform
	Normalize(body []byte) (*InboundChange, error)
}

// NormalizerRegistry resolves the webhook normalizer for a platform
type NormalizerRegistry interface {
	Normalizer(platform Platform) (InboundNormalizer, error)
}
