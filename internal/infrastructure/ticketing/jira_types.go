package ticketing

const jiraIssuePath = "/rest/api/2/issue"

type jiraCreatedIssue struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
}

type jiraTransition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	To   struct {
		Name string `json:"name"`
	} `json:"to"`
}

type jiraTransitionsResponse struct {
	Transitions []jiraTransition `json:"transitions"`
}

type jiraTransitionRequest struct {
	Transition struct {
		ID string `json:"id"`
	} `json:"transition"`
}

type jiraCommentRequest struct {
	Body string `json:"body"`
}

// jiraNamedFields are sent as {"name": value}
var jiraNamedFields = map[string]bool{
	"priority":  true,
	"issuetype": true,
	"assignee":  true,
	"reporter":  true,
}

// jiraDefaultIssueType is used for creates without an issue type
const jiraDefaultIssueType = "Task"
