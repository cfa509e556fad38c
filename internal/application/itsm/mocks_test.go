package itsm

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/config"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/persistence"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/ticketing"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testOrgID = uuid.MustParse("6f1c2a9e-3b7d-4c1e-9a52-0d8e7f6b5a41")

// MockPlatformAdapter is a mock implementation of itsm.PlatformAdapter
type MockPlatformAdapter struct {
	mock.Mock
	platform itsm.Platform
}

func (m *MockPlatformAdapter) Platform() itsm.Platform {
	return m.platform
}

func (m *MockPlatformAdapter) Send(ctx context.Context, conn *itsm.Connection, action itsm.SyncAction, req *itsm.SendRequest) (*itsm.SendResult, error) {
	args := m.Called(ctx, conn, action, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*itsm.SendResult), args.Error(1)
}

func (m *MockPlatformAdapter) TestConnection(ctx context.Context, conn *itsm.Connection) error {
	args := m.Called(ctx, conn)
	return args.Error(0)
}

// MockAuditArchiver is a mock implementation of AuditArchiver that keeps the
// uploaded body
type MockAuditArchiver struct {
	mock.Mock
	body []byte
}

func (m *MockAuditArchiver) PutObject(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.body = data
	args := m.Called(ctx, key, contentType)
	return args.String(0), args.Error(1)
}

func (m *MockAuditArchiver) lines() [][]byte {
	return bytes.Split(bytes.TrimSpace(m.body), []byte("\n"))
}

// recordingMetrics counts measurements by label
type recordingMetrics struct {
	mu         sync.Mutex
	deliveries map[string]int
	enqueued   int
	webhooks   map[string]int
	collisions int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{deliveries: map[string]int{}, webhooks: map[string]int{}}
}

func (r *recordingMetrics) ObserveDelivery(_ itsm.Platform, _ itsm.SyncAction, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries[outcome]++
}

func (r *recordingMetrics) IncEnqueued(itsm.Platform, itsm.SyncAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enqueued++
}

func (r *recordingMetrics) IncWebhook(_ itsm.Platform, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.webhooks[outcome]++
}

func (r *recordingMetrics) IncCollision(itsm.Platform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collisions++
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []*itsm.SyncEvent
}

func (p *recordingPublisher) PublishRecorded(_ context.Context, events ...*itsm.SyncEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
}

// testClock is a settable clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testEnv wires the services over an in-memory SQLite database
type testEnv struct {
	db        *gorm.DB
	orgID     uuid.UUID
	clock     *testClock
	metrics   *recordingMetrics
	publisher *recordingPublisher
	snow      *MockPlatformAdapter
	jira      *MockPlatformAdapter

	connRepo   *persistence.GormConnectionRepository
	queueRepo  *persistence.GormSyncQueueRepository
	auditRepo  *persistence.GormAuditLogRepository
	eventRepo  *persistence.GormSyncEventRepository
	ticketRepo *persistence.GormTicketStateRepository
	policyRepo *persistence.GormConflictPolicyRepository

	mappings    *FieldMappingService
	connections *ConnectionService
	queue       *SyncQueueService
	webhooks    *WebhookService
	logs        *LogService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: "sqlite", SQLitePath: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate())
	t.Cleanup(func() { _ = database.Close() })
	db := database.DB

	env := &testEnv{
		db:         db,
		orgID:      uuid.New(),
		clock:      &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		metrics:    newRecordingMetrics(),
		publisher:  &recordingPublisher{},
		snow:       &MockPlatformAdapter{platform: itsm.PlatformServiceNow},
		jira:       &MockPlatformAdapter{platform: itsm.PlatformJira},
		connRepo:   persistence.NewGormConnectionRepository(db),
		queueRepo:  persistence.NewGormSyncQueueRepository(db),
		auditRepo:  persistence.NewGormAuditLogRepository(db),
		eventRepo:  persistence.NewGormSyncEventRepository(db),
		ticketRepo: persistence.NewGormTicketStateRepository(db),
		policyRepo: persistence.NewGormConflictPolicyRepository(db),
	}

	registry := ticketing.NewRegistry()
	registry.RegisterAdapter(env.snow)
	registry.RegisterAdapter(env.jira)
	registry.RegisterNormalizer(ticketing.NewServiceNowNormalizer())
	registry.RegisterNormalizer(ticketing.NewJiraNormalizer())

	logger := zap.NewNop()
	env.mappings = NewFieldMappingService(persistence.NewGormFieldMappingRepository(db), env.auditRepo, ticketing.NewTemplateProvider(), logger)
	env.connections = NewConnectionService(env.connRepo, env.auditRepo, registry, logger)
	env.logs = NewLogService(LogServiceConfig{AuditRepo: env.auditRepo, EventRepo: env.eventRepo, Logger: logger})
	env.queue = NewSyncQueueService(SyncQueueServiceConfig{
		UnitOfWork: persistence.NewGormUnitOfWork(db),
		QueueRepo:  env.queueRepo,
		ConnRepo:   env.connRepo,
		TicketRepo: env.ticketRepo,
		Resolver:   env.mappings,
		Adapters:   registry,
		Publisher:  env.publisher,
		Metrics:    env.metrics,
		Logger:     logger,
		Now:        env.clock.Now,
	})
	env.webhooks = NewWebhookService(WebhookServiceConfig{
		UnitOfWork:   persistence.NewGormUnitOfWork(db),
		Normalizers:  registry,
		ConnRepo:     env.connRepo,
		PolicyRepo:   env.policyRepo,
		Acknowledger: env.queue,
		Publisher:    env.publisher,
		Metrics:      env.metrics,
		Logger:       logger,
	})
	return env
}

// connect stores an enabled connection for the platform
func (e *testEnv) connect(t *testing.T, platform itsm.Platform, configure ...func(*itsm.Connection)) *itsm.Connection {
	t.Helper()
	url := "https://acme.service-now.com"
	if platform == itsm.PlatformJira {
		url = "https://acme.atlassian.net"
	}
	conn, err := itsm.NewConnection(e.orgID, platform, url, "acme-"+string(platform))
	require.NoError(t, err)
	conn.SetSyncEnabled(true)
	conn.MarkConnected()
	for _, fn := range configure {
		fn(conn)
	}
	require.NoError(t, e.connRepo.Save(context.Background(), conn))
	return conn
}

// claim moves a pending item to processing the way the processor does
func (e *testEnv) claim(t *testing.T, item *itsm.SyncQueueItem) *itsm.SyncQueueItem {
	t.Helper()
	ctx := context.Background()
	ok, err := e.queueRepo.Claim(ctx, item.ID, e.clock.Now())
	require.NoError(t, err)
	require.True(t, ok, "item should be claimable")
	claimed, err := e.queueRepo.FindByID(ctx, e.orgID, item.ID)
	require.NoError(t, err)
	return claimed
}

func (e *testEnv) auditLogs(t *testing.T, filter itsm.AuditLogFilter) []*itsm.AuditLog {
	t.Helper()
	filter.OrganizationID = e.orgID
	filter.PageSize = itsm.MaxPageSize
	entries, _, err := e.auditRepo.Query(context.Background(), filter)
	require.NoError(t, err)
	return entries
}

func (e *testEnv) syncEvents(t *testing.T, filter itsm.SyncEventFilter) []*itsm.SyncEvent {
	t.Helper()
	filter.OrganizationID = e.orgID
	filter.PageSize = itsm.MaxPageSize
	events, _, err := e.eventRepo.Query(context.Background(), filter)
	require.NoError(t, err)
	return events
}
