package ticketing

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"go.uber.org/zap"
)

// JiraAdapter delivers queue items to the Jira REST API v2
type JiraAdapter struct {
	client *apiClient
	logger *zap.Logger
}

// NewJiraAdapter creates a Jira adapter
func NewJiraAdapter(httpClient *http.Client, credentials CredentialResolver, logger *zap.Logger) *JiraAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JiraAdapter{client: newAPIClient(httpClient, credentials, logger), logger: logger}
}

// Platform returns the platform this adapter serves
func (a *JiraAdapter) Platform() itsm.Platform {
	return itsm.PlatformJira
}

// Send creates, edits, transitions or comments on an issue. The external id of
// an issue is its key.
func (a *JiraAdapter) Send(ctx context.Context, conn *itsm.Connection, action itsm.SyncAction, req *itsm.SendRequest) (*itsm.SendResult, error) {
	if action == itsm.SyncActionCreate {
		return a.create(ctx, conn, req)
	}
	if req.ExternalID == "" {
		return nil, itsm.ErrExternalIDRequired
	}
	issuePath := jiraIssuePath + "/" + url.PathEscape(req.ExternalID)

	switch action {
	case itsm.SyncActionComment:
		text := commentText(req.Payload)
		if text == "" {
			return nil, itsm.NewValidationError(itsm.CodeMissingPayloadField, "comment", "comment body is empty")
		}
		if err := a.client.do(ctx, conn, http.MethodPost, issuePath+"/comment", jiraCommentRequest{Body: text}, nil); err != nil {
			return nil, err
		}

	case itsm.SyncActionSyncResponse:
		text := commentText(req.Payload)
		if text == "" {
			text = syncResponseNote(req.TicketID)
		}
		if err := a.client.do(ctx, conn, http.MethodPost, issuePath+"/comment", jiraCommentRequest{Body: text}, nil); err != nil {
			return nil, err
		}

	default:
		fields := jiraFields(req.Payload)
		if len(fields) > 0 {
			if err := a.client.do(ctx, conn, http.MethodPut, issuePath, map[string]any{"fields": fields}, nil); err != nil {
				return nil, err
			}
		}
		if status := req.Payload.String("status"); status != "" {
			if err := a.transition(ctx, conn, issuePath, status); err != nil {
				return nil, err
			}
		}
	}
	return &itsm.SendResult{ExternalID: req.ExternalID}, nil
}

func (a *JiraAdapter) create(ctx context.Context, conn *itsm.Connection, req *itsm.SendRequest) (*itsm.SendResult, error) {
	fields := jiraFields(req.Payload)
	if _, ok := fields["issuetype"]; !ok {
		fields["issuetype"] = map[string]any{"name": jiraDefaultIssueType}
	}
	if _, ok := fields["project"]; !ok {
		return nil, itsm.NewValidationError(itsm.CodeMissingPayloadField, "project", "Jira issues need a project key")
	}
	if req.TicketID != "" {
		fields["labels"] = appendLabel(fields["labels"], "ticket:"+req.TicketID)
	}

	var created jiraCreatedIssue
	if err := a.client.do(ctx, conn, http.MethodPost, jiraIssuePath, map[string]any{"fields": fields}, &created); err != nil {
		return nil, err
	}
	if created.Key == "" {
		return nil, itsm.NewValidationError(itsm.CodeMalformedPayload, "key", "Jira response carries no issue key")
	}

	if status := req.Payload.String("status"); status != "" {
		issuePath := jiraIssuePath + "/" + url.PathEscape(created.Key)
		if err := a.transition(ctx, conn, issuePath, status); err != nil {
			// the issue exists; the status is retried by the next update
			a.logger.Warn("initial transition failed",
				zap.String("external_id", created.Key),
				zap.String("status", status),
				zap.Error(err),
			)
		}
	}
	return &itsm.SendResult{ExternalID: created.Key}, nil
}

// transition moves the issue to the named status through an available transition
func (a *JiraAdapter) transition(ctx context.Context, conn *itsm.Connection, issuePath, status string) error {
	var available jiraTransitionsResponse
	if err := a.client.do(ctx, conn, http.MethodGet, issuePath+"/transitions", nil, &available); err != nil {
		return err
	}

	want := normalizeKey(status)
	for _, t := range available.Transitions {
		if normalizeKey(t.To.Name) == want || normalizeKey(t.Name) == want {
			var body jiraTransitionRequest
			body.Transition.ID = t.ID
			return a.client.do(ctx, conn, http.MethodPost, issuePath+"/transitions", body, nil)
		}
	}
	return itsm.NewValidationError(itsm.CodeRejectedByPlatform, "status", "no Jira transition leads to "+status)
}

// TestConnection fetches the authenticated user
func (a *JiraAdapter) TestConnection(ctx context.Context, conn *itsm.Connection) error {
	var me map[string]any
	return a.client.do(ctx, conn, http.MethodGet, "/rest/api/2/myself", nil, &me)
}

// jiraFields shapes a payload into the issue "fields" object. Status and
// comments are not editable fields and are sent through their own endpoints.
func jiraFields(payload itsm.Payload) map[string]any {
	fields := make(map[string]any, len(payload))
	for key, value := range payload {
		switch {
		case key == "status" || key == "comment" || key == "comments":
		case key == "project":
			if s, ok := value.(string); ok {
				fields[key] = map[string]any{"key": s}
			} else {
				fields[key] = value
			}
		case jiraNamedFields[key]:
			if s, ok := value.(string); ok {
				fields[key] = map[string]any{"name": s}
			} else {
				fields[key] = value
			}
		case key == "labels":
			fields[key] = toLabels(value)
		default:
			fields[key] = value
		}
	}
	return fields
}

func toLabels(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, strings.ReplaceAll(s, " ", "_"))
			}
		}
		return out
	case string:
		return toLabels([]any{v})
	}
	return nil
}

func appendLabel(existing any, label string) []string {
	labels := toLabels(existing)
	for _, l := range labels {
		if l == label {
			return labels
		}
	}
	return append(labels, label)
}

var _ itsm.PlatformAdapter = (*JiraAdapter)(nil)
