package middleware

import (
	"net/http"
	"net/http/httptest"
	"runtime/pprof"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestProfiling(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		path    string
		route   string
		want    string
	}{
		{"labels route and organization", true, "/webhooks/org-3/jira", "/webhooks/:org/jira", "org-3"},
		{"disabled", false, "/webhooks/org-3/jira", "/webhooks/:org/jira", ""},
		{"health skipped", true, "/health", "/health", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var org string
			router := gin.New()
			router.Use(Profiling(tt.enabled))
			router.Any(tt.route, func(c *gin.Context) {
				org, _ = pprof.Label(c.Request.Context(), "organization_id")
				c.Status(http.StatusOK)
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, tt.path, nil))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, org)
		})
	}
}
