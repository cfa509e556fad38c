package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
)

func TestRoutingHandler_Rules(t *testing.T) {
	env := newHandlerEnv(t)

	w := env.do(t, http.MethodGet, "/routing", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var table RoutingTableResponse
	decode(t, w, &table)
	assert.Equal(t, itsm.ProductGroups(), table.ProductGroups)
	require.NotEmpty(t, table.Rules)
	assert.Equal(t, "cloud", table.Rules[0].Category, "rules are sorted by category")

	tests := map[string]itsm.Assignment{
		"SAST":     {ProductGroup: "devsecops", Assignee: "AppSec Team"},
		"edr":      {ProductGroup: "endpoint", Assignee: "Endpoint Team"},
		"phishing": {ProductGroup: itsm.ProductGroupUnknown, Assignee: itsm.DefaultAssignee},
	}
	for category, want := range tests {
		w := env.do(t, http.MethodGet, "/routing/"+category, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var got itsm.Assignment
		decode(t, w, &got)
		assert.Equal(t, want, got, category)
	}
}

func TestRoutingHandler_ConflictPolicies(t *testing.T) {
	env := newHandlerEnv(t)

	w := env.do(t, http.MethodGet, "/conflict-policies", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var policies itsm.ConflictPolicies
	decode(t, w, &policies)
	assert.Equal(t, itsm.DefaultConflictPolicies(), policies)

	w = env.do(t, http.MethodPut, "/conflict-policies", map[string]any{"priority": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &policies)
	assert.Equal(t, itsm.ConflictPolicies{Comments: true, Status: true, Priority: false}, policies)

	w = env.do(t, http.MethodGet, "/conflict-policies", nil)
	decode(t, w, &policies)
	assert.False(t, policies.Priority, "the update is persisted")
	assert.True(t, policies.Status)
}
