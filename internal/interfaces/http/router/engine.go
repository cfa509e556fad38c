package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/logger"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/telemetry"
	"github.com/reddomeuk/redscan-application-sub002/internal/interfaces/http/middleware"
)

// EngineConfig describes the gin engine of the sync API
type EngineConfig struct {
	ServiceName    string
	TrustedProxies []string
	CORS           middleware.CORSConfig
	// MaxBodySize caps request bodies outside the webhook routes
	MaxBodySize int64

	TracingEnabled   bool
	ProfilingEnabled bool
	// MeterProvider is optional; without it no OpenTelemetry HTTP metrics are recorded
	MeterProvider *telemetry.MeterProvider
	// Gatherer backs /metrics; a nil gatherer leaves the endpoint unmounted
	Gatherer prometheus.Gatherer

	// Tokens validates bearer tokens on every route but /health, /metrics and the webhooks
	Tokens   middleware.TokenValidator
	Webhooks WebhookLimits
	Logger   *zap.Logger
}

// NewEngine builds the engine: global middleware, /health, /metrics, the
// webhook receivers and the authenticated /api/v1/itsm routes.
func NewEngine(cfg EngineConfig, h Handlers) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// JWT claims must be set before span attributes and profiling labels read the organization
	engine.Use(middleware.RequestID())
	engine.Use(middleware.WithLogger(log))
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Tracing(cfg.ServiceName, cfg.TracingEnabled))
	engine.Use(middleware.CORS(cfg.CORS))
	engine.Use(middleware.Secure())
	engine.Use(middleware.HTTPMetrics(cfg.MeterProvider))

	jwtConfig := middleware.DefaultJWTConfig(cfg.Tokens)
	jwtConfig.Logger = log
	engine.Use(middleware.JWTAuth(jwtConfig))
	engine.Use(middleware.TracingAttributes())
	engine.Use(middleware.Profiling(cfg.ProfilingEnabled))

	if h.System != nil {
		engine.GET("/health", h.System.Health)
	}
	if cfg.Gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	r := NewRouter(engine, WithAPIVersion("v1"))
	r.Register(WebhookRoutes(h.Webhooks, cfg.Webhooks))
	r.Register(bodyLimited(cfg.MaxBodySize, ITSMRoutes(h)))
	r.Setup()

	return engine
}

// bodyLimited applies the general body cap to a group. Webhooks carry their
// own, smaller limit.
func bodyLimited(maxBytes int64, g *DomainGroup) *DomainGroup {
	if maxBytes > 0 {
		g.Use(middleware.BodyLimit(maxBytes))
	}
	return g
}
