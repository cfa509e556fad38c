package router

import (
	"github.com/gin-gonic/gin"

	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/interfaces/http/handler"
	"github.com/reddomeuk/redscan-application-sub002/internal/interfaces/http/middleware"
)

// Handlers bundles the HTTP handlers of the sync API
type Handlers struct {
	Connections   *handler.ConnectionHandler
	FieldMappings *handler.FieldMappingHandler
	Queue         *handler.QueueHandler
	Logs          *handler.LogHandler
	Routing       *handler.RoutingHandler
	Webhooks      *handler.WebhookHandler
	System        *handler.SystemHandler
}

// WebhookLimits bounds inbound webhook traffic
type WebhookLimits struct {
	MaxBodySize int64
	// Limiter is optional; a nil limiter leaves webhooks unthrottled
	Limiter *middleware.RateLimiter
}

// ITSMRoutes returns the authenticated /itsm route group
func ITSMRoutes(h Handlers) *DomainGroup {
	g := NewDomainGroup("itsm", "/itsm")

	g.GET("/connections", h.Connections.List)
	g.GET("/connections/:platform", h.Connections.Get)
	g.PUT("/connections/:platform", h.Connections.Configure)
	g.POST("/connections/:platform/connect", h.Connections.Connect)
	g.POST("/connections/:platform/test", h.Connections.Test)
	g.POST("/connections/:platform/disconnect", h.Connections.Disconnect)
	g.PUT("/connections/:platform/product-groups/:group", h.Connections.SetProductGroupSync)

	g.GET("/field-mappings/:platform", h.FieldMappings.List)
	g.POST("/field-mappings/:platform", h.FieldMappings.Create)
	g.PUT("/field-mappings/:platform/:id", h.FieldMappings.Update)
	g.DELETE("/field-mappings/:platform/:id", h.FieldMappings.Delete)
	g.POST("/field-mappings/:platform/import", h.FieldMappings.Import)
	g.GET("/field-mappings/:platform/export", h.FieldMappings.Export)
	g.POST("/field-mappings/:platform/reset", h.FieldMappings.Reset)
	g.POST("/field-mappings/:platform/resolve", h.FieldMappings.Resolve)

	g.POST("/queue", h.Queue.Enqueue)
	g.GET("/queue", h.Queue.List)
	g.GET("/queue/stats", h.Queue.Stats)
	g.POST("/queue/retry-all", h.Queue.RetryAll)
	g.GET("/queue/:id", h.Queue.Get)
	g.POST("/queue/:id/cancel", h.Queue.Cancel)
	g.POST("/queue/:id/retry", h.Queue.Retry)

	g.GET("/audit-logs", h.Logs.AuditLogs)
	g.POST("/audit-logs/archive", h.Logs.Archive)
	g.GET("/sync-events", h.Logs.SyncEvents)
	g.GET("/events/stream", h.Logs.Stream)

	g.GET("/routing", h.Routing.Rules)
	g.GET("/routing/:category", h.Routing.Route)
	g.GET("/conflict-policies", h.Routing.GetConflictPolicies)
	g.PUT("/conflict-policies", h.Routing.UpdateConflictPolicies)

	g.GET("/system/info", h.System.GetSystemInfo)
	return g
}

// WebhookRoutes returns the /itsm/webhooks group. The routes carry no JWT; the
// organization comes from the path and the body is checked against the
// platform's HMAC secret.
func WebhookRoutes(h *handler.WebhookHandler, limits WebhookLimits) *DomainGroup {
	g := NewDomainGroup("webhooks", "/itsm/webhooks/:org")
	if limits.MaxBodySize > 0 {
		g.Use(middleware.BodyLimit(limits.MaxBodySize))
	}

	chain := func(platform itsm.Platform, fn gin.HandlerFunc) []gin.HandlerFunc {
		if limits.Limiter == nil {
			return []gin.HandlerFunc{fn}
		}
		return []gin.HandlerFunc{
			middleware.RateLimitByKey(limits.Limiter, middleware.WebhookRateKey(platform.String())),
			fn,
		}
	}
	g.POST("/servicenow", chain(itsm.PlatformServiceNow, h.ServiceNow)...)
	g.POST("/jira", chain(itsm.PlatformJira, h.Jira)...)
	return g
}
