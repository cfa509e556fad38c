package ticketing

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"go.uber.org/zap"
)

var sysIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// ServiceNowAdapter delivers queue items to the ServiceNow incident Table API
type ServiceNowAdapter struct {
	client *apiClient
}

// NewServiceNowAdapter creates a ServiceNow adapter
func NewServiceNowAdapter(httpClient *http.Client, credentials CredentialResolver, logger *zap.Logger) *ServiceNowAdapter {
	return &ServiceNowAdapter{client: newAPIClient(httpClient, credentials, logger)}
}

// Platform returns the platform this adapter serves
func (a *ServiceNowAdapter) Platform() itsm.Platform {
	return itsm.PlatformServiceNow
}

// Send creates or patches an incident. The external id of an incident is its
// number, falling back to sys_id.
func (a *ServiceNowAdapter) Send(ctx context.Context, conn *itsm.Connection, action itsm.SyncAction, req *itsm.SendRequest) (*itsm.SendResult, error) {
	if action == itsm.SyncActionCreate {
		body := serviceNowBody(req.Payload)
		if _, ok := body["correlation_id"]; !ok && req.TicketID != "" {
			body["correlation_id"] = req.TicketID
		}
		var resp serviceNowResponse
		if err := a.client.do(ctx, conn, http.MethodPost, serviceNowIncidentPath, body, &resp); err != nil {
			return nil, err
		}
		externalID := resp.Result.Number
		if externalID == "" {
			externalID = resp.Result.SysID
		}
		if externalID == "" {
			return nil, itsm.NewValidationError(itsm.CodeMalformedPayload, "number", "ServiceNow response carries no incident number")
		}
		return &itsm.SendResult{ExternalID: externalID}, nil
	}

	if req.ExternalID == "" {
		return nil, itsm.ErrExternalIDRequired
	}
	sysID, err := a.resolveSysID(ctx, conn, req.ExternalID)
	if err != nil {
		return nil, err
	}

	var body itsm.Payload
	switch action {
	case itsm.SyncActionComment:
		text := commentText(req.Payload)
		if text == "" {
			return nil, itsm.NewValidationError(itsm.CodeMissingPayloadField, "comment", "comment body is empty")
		}
		body = itsm.Payload{"comments": text}
	case itsm.SyncActionSyncResponse:
		body = serviceNowBody(req.Payload)
		if _, ok := body["work_notes"]; !ok {
			body["work_notes"] = syncResponseNote(req.TicketID)
		}
	default:
		body = serviceNowBody(req.Payload)
	}

	if err := a.client.do(ctx, conn, http.MethodPatch, serviceNowIncidentPath+"/"+sysID, body, nil); err != nil {
		return nil, err
	}
	return &itsm.SendResult{ExternalID: req.ExternalID}, nil
}

// resolveSysID looks an incident number up when the external id is not a sys_id
func (a *ServiceNowAdapter) resolveSysID(ctx context.Context, conn *itsm.Connection, externalID string) (string, error) {
	if sysIDPattern.MatchString(externalID) {
		return externalID, nil
	}
	query := url.Values{}
	query.Set("sysparm_query", "number="+externalID)
	query.Set("sysparm_fields", "sys_id,number")
	query.Set("sysparm_limit", "1")

	var list serviceNowListResponse
	if err := a.client.do(ctx, conn, http.MethodGet, serviceNowIncidentPath+"?"+query.Encode(), nil, &list); err != nil {
		return "", err
	}
	if len(list.Result) == 0 || list.Result[0].SysID == "" {
		return "", itsm.NewValidationError(itsm.CodeRejectedByPlatform, "external_id", "incident "+externalID+" not found")
	}
	return list.Result[0].SysID, nil
}

// TestConnection reads one incident to verify the instance and credentials
func (a *ServiceNowAdapter) TestConnection(ctx context.Context, conn *itsm.Connection) error {
	var list serviceNowListResponse
	return a.client.do(ctx, conn, http.MethodGet, serviceNowIncidentPath+"?sysparm_limit=1&sysparm_fields=sys_id", nil, &list)
}

// serviceNowBody translates engine level status/priority keys into the
// incident's numeric codes unless the mapping already produced them
func serviceNowBody(payload itsm.Payload) itsm.Payload {
	body := payload.Clone()
	if status := body.String("status"); status != "" {
		delete(body, "status")
		if _, ok := body["state"]; !ok {
			if code, known := serviceNowStates[normalizeKey(status)]; known {
				body["state"] = code
			} else {
				body["state"] = status
			}
		}
	}
	if priority := body.String("priority"); priority != "" {
		if code, known := serviceNowImpact[normalizeKey(priority)]; known {
			delete(body, "priority")
			if _, ok := body["impact"]; !ok {
				body["impact"] = code
			}
			if _, ok := body["urgency"]; !ok {
				body["urgency"] = code
			}
		}
	}
	return body
}

func normalizeKey(s string) string {
	return strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(s)))
}

// commentText picks the comment body out of a payload
func commentText(payload itsm.Payload) string {
	for _, key := range []string{"comment", "comments", "body"} {
		if s := payload.String(key); s != "" {
			return s
		}
	}
	return ""
}

func syncResponseNote(ticketID string) string {
	return "Synchronized with internal ticket " + ticketID
}

var _ itsm.PlatformAdapter = (*ServiceNowAdapter)(nil)
