package itsm

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TicketState is the engine's view of an external ticket: the link between an
// internal ticket id and the platform's external id plus the last merged values
// of the conflict-managed fields.
type TicketState struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Platform       Platform
	ExternalID     string
	TicketID       string
	Status         string
	Priority       string
	LastComment    *Comment
	ProductGroup   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewTicketState creates the state for a newly seen external ticket
func NewTicketState(orgID uuid.UUID, platform Platform, externalID string) *TicketState {
	now := time.Now()
	return &TicketState{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Platform:       platform,
		ExternalID:     strings.TrimSpace(externalID),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// MergeOutcome describes what the conflict policies did with an inbound change
type MergeOutcome struct {
	Status          StatusResolution
	PriorityChanged bool
	CommentApplied  bool
}

// StatusSkipped reports whether a backwards status transition was rejected
func (o MergeOutcome) StatusSkipped() bool {
	return o.Status.Skipped
}

// Merge applies an inbound change to the state under the given policies
func (s *TicketState) Merge(change *InboundChange, policies ConflictPolicies) MergeOutcome {
	var out MergeOutcome

	out.Status = ResolveStatus(s.Platform, s.Status, change.Status, policies.Status)
	s.Status = out.Status.Value

	if merged := ResolvePriority(s.Priority, change.Priority, policies.Priority); merged != s.Priority {
		s.Priority = merged
		out.PriorityChanged = true
	}

	if winner, incomingWon := ResolveComment(s.LastComment, change.Comment, policies.Comments); incomingWon {
		s.LastComment = winner
		out.CommentApplied = true
	}

	s.UpdatedAt = time.Now()
	return out
}

// LinkTicket associates the external ticket with an internal ticket id. It
// reports a collision when a different internal ticket is already linked.
func (s *TicketState) LinkTicket(ticketID string) (collision bool) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return false
	}
	if s.TicketID != "" && s.TicketID != ticketID {
		return true
	}
	s.TicketID = ticketID
	s.UpdatedAt = time.Now()
	return false
}
