package ticketing

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
)

// jiraTimeLayout is the timestamp format of Jira webhooks
const jiraTimeLayout = "2006-01-02T15:04:05.000-0700"

type jiraWebhook struct {
	WebhookEvent string            `json:"webhookEvent"`
	Issue        *jiraWebhookIssue `json:"issue"`
	Comment      *struct {
		Body    string `json:"body"`
		Updated string `json:"updated"`
	} `json:"comment"`
}

type jiraWebhookIssue struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields struct {
		Summary string `json:"summary"`
		Updated string `json:"updated"`
		Status  *struct {
			Name string `json:"name"`
		} `json:"status"`
		Priority *struct {
			Name string `json:"name"`
		} `json:"priority"`
		Labels []string `json:"labels"`
	} `json:"fields"`
}

// JiraNormalizer parses Jira issue and comment webhooks
type JiraNormalizer struct {
	now func() time.Time
}

// NewJiraNormalizer creates a Jira webhook normalizer
func NewJiraNormalizer() *JiraNormalizer {
	return &JiraNormalizer{now: time.Now}
}

// Platform returns the platform this normalizer serves
func (n *JiraNormalizer) Platform() itsm.Platform {
	return itsm.PlatformJira
}

// Normalize parses the webhook body. The external id is the issue key;
// jira:issue_created maps to create and every other event to update.
func (n *JiraNormalizer) Normalize(body []byte) (*itsm.InboundChange, error) {
	var hook jiraWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, itsm.NewValidationError(itsm.CodeMalformedPayload, "", "invalid JSON: "+err.Error())
	}
	event := strings.TrimSpace(hook.WebhookEvent)
	if event == "" {
		return nil, itsm.NewValidationError(itsm.CodeMissingPayloadField, "webhookEvent", "webhookEvent is required")
	}
	if hook.Issue == nil || strings.TrimSpace(hook.Issue.Key) == "" {
		return nil, itsm.NewValidationError(itsm.CodeMissingPayloadField, "issue.key", "issue key is required")
	}
	issue := hook.Issue

	action := itsm.InboundActionUpdate
	if event == "jira:issue_created" {
		action = itsm.InboundActionCreate
	}

	occurredAt := parseJiraTime(issue.Fields.Updated, n.now().UTC())
	change := &itsm.InboundChange{
		ExternalID: strings.TrimSpace(issue.Key),
		Action:     action,
		TicketRef:  ticketRefFromLabels(issue.Fields.Labels),
		OccurredAt: occurredAt,
	}
	if issue.Fields.Status != nil {
		change.Status = issue.Fields.Status.Name
	}
	if issue.Fields.Priority != nil {
		change.Priority = issue.Fields.Priority.Name
	}
	if hook.Comment != nil && strings.TrimSpace(hook.Comment.Body) != "" {
		change.Comment = &itsm.Comment{
			Body: hook.Comment.Body,
			At:   parseJiraTime(hook.Comment.Updated, occurredAt),
		}
	}
	change.Details = describeChange("Jira issue", change.ExternalID, action, issue.Fields.Summary)
	return change, nil
}

func parseJiraTime(s string, fallback time.Time) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{jiraTimeLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return fallback
}

// ticketRefFromLabels finds the "ticket:<id>" label written on create
func ticketRefFromLabels(labels []string) string {
	for _, l := range labels {
		if ref, ok := strings.CutPrefix(l, "ticket:"); ok && ref != "" {
			return ref
		}
	}
	return ""
}

var _ itsm.InboundNormalizer = (*JiraNormalizer)(nil)
