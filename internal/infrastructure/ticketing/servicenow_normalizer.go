package ticketing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
)

// serviceNowUpdatedLayout is the format of sys_updated_on (UTC)
const serviceNowUpdatedLayout = "2006-01-02 15:04:05"

type serviceNowWebhook struct {
	Operation string                `json:"operation"`
	Table     string                `json:"table"`
	Record    *serviceNowWebhookRec `json:"record"`
}

type serviceNowWebhookRec struct {
	SysID            string `json:"sys_id"`
	Number           string `json:"number"`
	State            string `json:"state"`
	Priority         string `json:"priority"`
	ShortDescription string `json:"short_description"`
	Comments         string `json:"comments"`
	CorrelationID    string `json:"correlation_id"`
	Category         string `json:"category"`
	SysUpdatedOn     string `json:"sys_updated_on"`
}

// ServiceNowNormalizer parses ServiceNow business rule webhooks
type ServiceNowNormalizer struct {
	now func() time.Time
}

// NewServiceNowNormalizer creates a ServiceNow webhook normalizer
func NewServiceNowNormalizer() *ServiceNowNormalizer {
	return &ServiceNowNormalizer{now: time.Now}
}

// Platform returns the platform this normalizer serves
func (n *ServiceNowNormalizer) Platform() itsm.Platform {
	return itsm.PlatformServiceNow
}

// Normalize parses the webhook body. The external id is the incident number,
// falling back to sys_id.
func (n *ServiceNowNormalizer) Normalize(body []byte) (*itsm.InboundChange, error) {
	var hook serviceNowWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, itsm.NewValidationError(itsm.CodeMalformedPayload, "", "invalid JSON: "+err.Error())
	}
	if hook.Record == nil {
		return nil, itsm.NewValidationError(itsm.CodeMissingPayloadField, "record", "record is required")
	}
	rec := hook.Record

	externalID := strings.TrimSpace(rec.Number)
	if externalID == "" {
		externalID = strings.TrimSpace(rec.SysID)
	}
	if externalID == "" {
		return nil, itsm.NewValidationError(itsm.CodeMissingPayloadField, "record.number", "record number or sys_id is required")
	}

	var action itsm.InboundAction
	switch strings.ToLower(strings.TrimSpace(hook.Operation)) {
	case "insert":
		action = itsm.InboundActionCreate
	case "update":
		action = itsm.InboundActionUpdate
	case "":
		return nil, itsm.NewValidationError(itsm.CodeMissingPayloadField, "operation", "operation is required")
	default:
		return nil, itsm.NewValidationError(itsm.CodeInvalidFieldValue, "operation", fmt.Sprintf("unsupported operation %q", hook.Operation))
	}

	occurredAt := n.now().UTC()
	if t, err := time.Parse(serviceNowUpdatedLayout, strings.TrimSpace(rec.SysUpdatedOn)); err == nil {
		occurredAt = t.UTC()
	}

	change := &itsm.InboundChange{
		ExternalID: externalID,
		Action:     action,
		TicketRef:  strings.TrimSpace(rec.CorrelationID),
		Status:     strings.TrimSpace(rec.State),
		Priority:   strings.TrimSpace(rec.Priority),
		Category:   strings.TrimSpace(rec.Category),
		OccurredAt: occurredAt,
	}
	if c := strings.TrimSpace(rec.Comments); c != "" {
		change.Comment = &itsm.Comment{Body: c, At: occurredAt}
	}
	change.Details = describeChange("ServiceNow incident", externalID, action, rec.ShortDescription)
	return change, nil
}

func describeChange(kind, externalID string, action itsm.InboundAction, summary string) string {
	verb := "updated"
	if action == itsm.InboundActionCreate {
		verb = "created"
	}
	details := fmt.Sprintf("%s %s %s", kind, externalID, verb)
	if summary = strings.TrimSpace(summary); summary != "" {
		details += ": " + summary
	}
	return details
}

var _ itsm.InboundNormalizer = (*ServiceNowNormalizer)(nil)
