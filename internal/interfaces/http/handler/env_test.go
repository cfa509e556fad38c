package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	itsmapp "github.com/reddomeuk/redscan-application-sub002/internal/application/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/config"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/persistence"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/ticketing"
	"github.com/reddomeuk/redscan-application-sub002/internal/interfaces/http/dto"
	"github.com/reddomeuk/redscan-application-sub002/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// stubAdapter accepts every delivery and connection test unless failWith is set
type stubAdapter struct {
	platform itsm.Platform
	mu       sync.Mutex
	failWith error
}

func (a *stubAdapter) Platform() itsm.Platform { return a.platform }

func (a *stubAdapter) Send(_ context.Context, _ *itsm.Connection, _ itsm.SyncAction, req *itsm.SendRequest) (*itsm.SendResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failWith != nil {
		return nil, a.failWith
	}
	return &itsm.SendResult{ExternalID: req.ExternalID}, nil
}

func (a *stubAdapter) TestConnection(context.Context, *itsm.Connection) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failWith
}

// handlerEnv wires every handler over an in-memory SQLite database
type handlerEnv struct {
	orgID  uuid.UUID
	engine *gin.Engine
	snow   *stubAdapter

	connRepo  *persistence.GormConnectionRepository
	queueRepo *persistence.GormSyncQueueRepository
	queue    *itsmapp.SyncQueueService
	logs     *itsmapp.LogService
	webhooks *itsmapp.WebhookService
}

type envOption func(*envSettings)

type envSettings struct {
	secrets    map[itsm.Platform]string
	subscriber EventSubscriber
	archiver   itsmapp.AuditArchiver
}

func withSecret(platform itsm.Platform, secret string) envOption {
	return func(s *envSettings) { s.secrets[platform] = secret }
}

func withArchiver(a itsmapp.AuditArchiver) envOption {
	return func(s *envSettings) { s.archiver = a }
}

func withSubscriber(sub EventSubscriber) envOption {
	return func(s *envSettings) { s.subscriber = sub }
}

func newHandlerEnv(t *testing.T, opts ...envOption) *handlerEnv {
	t.Helper()
	settings := &envSettings{secrets: map[itsm.Platform]string{}}
	for _, opt := range opts {
		opt(settings)
	}

	database, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: "sqlite", SQLitePath: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate())
	t.Cleanup(func() { _ = database.Close() })
	db := database.DB

	env := &handlerEnv{
		orgID:    uuid.New(),
		snow:     &stubAdapter{platform: itsm.PlatformServiceNow},
		connRepo:  persistence.NewGormConnectionRepository(db),
		queueRepo: persistence.NewGormSyncQueueRepository(db),
	}

	registry := ticketing.NewRegistry()
	registry.RegisterAdapter(env.snow)
	registry.RegisterAdapter(&stubAdapter{platform: itsm.PlatformJira})
	registry.RegisterNormalizer(ticketing.NewServiceNowNormalizer())
	registry.RegisterNormalizer(ticketing.NewJiraNormalizer())

	log := zap.NewNop()
	auditRepo := persistence.NewGormAuditLogRepository(db)
	policyRepo := persistence.NewGormConflictPolicyRepository(db)

	env.logs = itsmapp.NewLogService(itsmapp.LogServiceConfig{
		AuditRepo: auditRepo,
		EventRepo: persistence.NewGormSyncEventRepository(db),
		Archiver:  settings.archiver,
		Logger:    log,
	})
	mappings := itsmapp.NewFieldMappingService(persistence.NewGormFieldMappingRepository(db), auditRepo, ticketing.NewTemplateProvider(), log)
	connections := itsmapp.NewConnectionService(env.connRepo, auditRepo, registry, log)
	env.queue = itsmapp.NewSyncQueueService(itsmapp.SyncQueueServiceConfig{
		UnitOfWork: persistence.NewGormUnitOfWork(db),
		QueueRepo:  env.queueRepo,
		ConnRepo:   env.connRepo,
		TicketRepo: persistence.NewGormTicketStateRepository(db),
		Resolver:   mappings,
		Adapters:   registry,
		Publisher:  env.logs,
		Logger:     log,
	})
	env.webhooks = itsmapp.NewWebhookService(itsmapp.WebhookServiceConfig{
		UnitOfWork:   persistence.NewGormUnitOfWork(db),
		Normalizers:  registry,
		ConnRepo:     env.connRepo,
		PolicyRepo:   policyRepo,
		Acknowledger: env.queue,
		Publisher:    env.logs,
		Logger:       log,
	})

	engine := gin.New()
	engine.Use(middleware.RequestID())

	hooks := NewWebhookHandler(env.webhooks, WebhookHandlerConfig{Secrets: settings.secrets})
	engine.POST("/webhooks/:org/servicenow", hooks.ServiceNow)
	engine.POST("/webhooks/:org/jira", hooks.Jira)

	api := engine.Group("/", func(c *gin.Context) {
		if org := c.GetHeader("X-Test-Org"); org != "" {
			c.Set(middleware.JWTOrganizationIDKey, org)
			c.Set(middleware.JWTEmailKey, "analyst@example.com")
		}
	})

	conn := NewConnectionHandler(connections)
	api.GET("/connections", conn.List)
	api.GET("/connections/:platform", conn.Get)
	api.PUT("/connections/:platform", conn.Configure)
	api.POST("/connections/:platform/connect", conn.Connect)
	api.POST("/connections/:platform/test", conn.Test)
	api.POST("/connections/:platform/disconnect", conn.Disconnect)
	api.PUT("/connections/:platform/product-groups/:group", conn.SetProductGroupSync)

	fm := NewFieldMappingHandler(mappings)
	api.GET("/field-mappings/:platform", fm.List)
	api.POST("/field-mappings/:platform", fm.Create)
	api.PUT("/field-mappings/:platform/:id", fm.Update)
	api.DELETE("/field-mappings/:platform/:id", fm.Delete)
	api.POST("/field-mappings/:platform/import", fm.Import)
	api.GET("/field-mappings/:platform/export", fm.Export)
	api.POST("/field-mappings/:platform/reset", fm.Reset)
	api.POST("/field-mappings/:platform/resolve", fm.Resolve)

	q := NewQueueHandler(env.queue)
	api.POST("/queue", q.Enqueue)
	api.GET("/queue", q.List)
	api.GET("/queue/stats", q.Stats)
	api.POST("/queue/retry-all", q.RetryAll)
	api.GET("/queue/:id", q.Get)
	api.POST("/queue/:id/cancel", q.Cancel)
	api.POST("/queue/:id/retry", q.Retry)

	logs := NewLogHandler(env.logs, settings.subscriber, log)
	api.GET("/audit-logs", logs.AuditLogs)
	api.POST("/audit-logs/archive", logs.Archive)
	api.GET("/sync-events", logs.SyncEvents)
	api.GET("/events/stream", logs.Stream)

	rt := NewRoutingHandler(itsmapp.NewConflictPolicyService(policyRepo, log))
	api.GET("/routing", rt.Rules)
	api.GET("/routing/:category", rt.Route)
	api.GET("/conflict-policies", rt.GetConflictPolicies)
	api.PUT("/conflict-policies", rt.UpdateConflictPolicies)

	env.engine = engine
	return env
}

// do performs an authenticated JSON request for the env's organization
func (e *handlerEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Org", e.orgID.String())
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

// connect stores an enabled, connected platform connection
func (e *handlerEnv) connect(t *testing.T, platform itsm.Platform) *itsm.Connection {
	t.Helper()
	url := "https://acme.service-now.com"
	if platform == itsm.PlatformJira {
		url = "https://acme.atlassian.net"
	}
	conn, err := itsm.NewConnection(e.orgID, platform, url, "acme-"+string(platform))
	require.NoError(t, err)
	conn.SetSyncEnabled(true)
	conn.MarkConnected()
	require.NoError(t, e.connRepo.Save(context.Background(), conn))
	return conn
}

// fail claims a queued item and delivers it against a platform that rejects
// the credentials, leaving it failed
func (e *handlerEnv) fail(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	item, err := e.queue.Get(ctx, e.orgID, uuid.MustParse(id))
	require.NoError(t, err)
	require.NoError(t, item.MarkProcessing(time.Now()))
	require.NoError(t, e.queueRepo.Save(ctx, item))

	e.snow.mu.Lock()
	e.snow.failWith = &itsm.PermissionError{StatusCode: http.StatusForbidden, Message: "insufficient rights"}
	e.snow.mu.Unlock()
	defer func() {
		e.snow.mu.Lock()
		e.snow.failWith = nil
		e.snow.mu.Unlock()
	}()

	res, err := e.queue.Deliver(ctx, item)
	require.NoError(t, err)
	require.Equal(t, itsmapp.DeliveryOutcomeFailure, res.Outcome)
}

// decode unmarshals the envelope and its data into out
func decode(t *testing.T, w *httptest.ResponseRecorder, out any) dto.Response {
	t.Helper()
	var env struct {
		dto.Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if out != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return env.Response
}
