package ticketing

// Table API shapes of the ServiceNow incident table

const serviceNowIncidentPath = "/api/now/table/incident"

type serviceNowRecord struct {
	SysID  string `json:"sys_id"`
	Number string `json:"number"`
}

type serviceNowResponse struct {
	Result serviceNowRecord `json:"result"`
}

type serviceNowListResponse struct {
	Result []serviceNowRecord `json:"result"`
}

// serviceNowStates maps engine statuses to incident state codes
var serviceNowStates = map[string]string{
	"new":         "1",
	"open":        "1",
	"in_progress": "2",
	"on_hold":     "3",
	"resolved":    "6",
	"closed":      "7",
	"canceled":    "8",
	"cancelled":   "8",
}

// serviceNowImpact maps engine priorities to impact/urgency codes (1 is highest)
var serviceNowImpact = map[string]string{
	"critical": "1",
	"high":     "1",
	"medium":   "2",
	"low":      "3",
}
