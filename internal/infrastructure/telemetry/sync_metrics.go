package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
)

// Prometheus metric names
const (
	MetricQueueEnqueuedTotal   = "itsm_queue_enqueued_total"
	MetricDeliveriesTotal      = "itsm_deliveries_total"
	MetricDeliveryDuration     = "itsm_delivery_duration_seconds"
	MetricWebhooksTotal        = "itsm_webhooks_total"
	MetricExternalIDCollisions = "itsm_external_id_collisions_total"
	MetricQueueDepth           = "itsm_queue_depth"
)

const (
	defaultQueueCollectInterval = time.Minute
	queueDepthCollectTimeout    = 10 * time.Second
)

// DeliveryDurationBuckets are bucket boundaries for platform calls (seconds)
var DeliveryDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// QueueDepthProvider reports how many queue items sit in each status
type QueueDepthProvider interface {
	QueueDepth(ctx context.Context) (map[itsm.Platform]map[itsm.QueueStatus]int64, error)
}

// SyncMetricsConfig holds configuration for the sync engine metrics.
type SyncMetricsConfig struct {
	// Registerer receives the Prometheus collectors. Defaults to a private registry.
	Registerer prometheus.Registerer
	// Meter mirrors the counters to OpenTelemetry when set
	Meter           metric.Meter
	Logger          *zap.Logger
	QueueProvider   QueueDepthProvider
	CollectInterval time.Duration
}

// SyncMetrics records outbound delivery, webhook and collision measurements.
// It satisfies the application layer's Metrics port.
type SyncMetrics struct {
	registry *prometheus.Registry
	logger   *zap.Logger

	enqueued         *prometheus.CounterVec
	deliveries       *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec
	webhooks         *prometheus.CounterVec
	collisions       *prometheus.CounterVec
	queueDepth       *prometheus.GaugeVec

	otelDeliveries *Counter
	otelWebhooks   *Counter
	otelCollisions *Counter
	otelDuration   *Histogram

	queueProvider   QueueDepthProvider
	collectInterval time.Duration
	stopChan        chan struct{}
	stopOnce        sync.Once
	collectOnce     sync.Once
}

// NewSyncMetrics creates and registers the sync engine collectors.
func NewSyncMetrics(cfg SyncMetricsConfig) (*SyncMetrics, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.CollectInterval
	if interval <= 0 {
		interval = defaultQueueCollectInterval
	}

	m := &SyncMetrics{
		logger:          logger,
		queueProvider:   cfg.QueueProvider,
		collectInterval: interval,
		stopChan:        make(chan struct{}),
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricQueueEnqueuedTotal,
			Help: "Total number of items added to the outbound queue",
		}, []string{"platform", "action"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricDeliveriesTotal,
			Help: "Total number of outbound delivery attempts by outcome",
		}, []string{"platform", "action", "outcome"}),
		deliveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricDeliveryDuration,
			Help:    "Duration of outbound delivery attempts",
			Buckets: DeliveryDurationBuckets,
		}, []string{"platform", "action"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricWebhooksTotal,
			Help: "Total number of inbound webhooks by outcome",
		}, []string{"platform", "outcome"}),
		collisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricExternalIDCollisions,
			Help: "External ids seen linked to more than one internal ticket",
		}, []string{"platform"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricQueueDepth,
			Help: "Queue items per platform and status",
		}, []string{"platform", "status"}),
	}

	registerer := cfg.Registerer
	if registerer == nil {
		m.registry = prometheus.NewRegistry()
		registerer = m.registry
	}
	for _, c := range []prometheus.Collector{m.enqueued, m.deliveries, m.deliveryDuration, m.webhooks, m.collisions, m.queueDepth} {
		if err := registerer.Register(c); err != nil {
			return nil, &MetricsError{Op: "NewSyncMetrics", Err: err.Error()}
		}
	}

	if cfg.Meter != nil {
		var err error
		if m.otelDeliveries, err = NewCounter(cfg.Meter, MetricDeliveriesTotal, "Outbound delivery attempts", "{deliveries}"); err != nil {
			return nil, err
		}
		if m.otelWebhooks, err = NewCounter(cfg.Meter, MetricWebhooksTotal, "Inbound webhooks", "{webhooks}"); err != nil {
			return nil, err
		}
		if m.otelCollisions, err = NewCounter(cfg.Meter, MetricExternalIDCollisions, "External id collisions", "{collisions}"); err != nil {
			return nil, err
		}
		m.otelDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
			Name:        MetricDeliveryDuration,
			Description: "Duration of outbound delivery attempts",
			Unit:        "s",
			Boundaries:  DeliveryDurationBuckets,
		})
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Registry returns the private registry, or nil when an external Registerer was supplied
func (m *SyncMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveDelivery records one delivery attempt
func (m *SyncMetrics) ObserveDelivery(platform itsm.Platform, action itsm.SyncAction, outcome string, elapsed time.Duration) {
	m.deliveries.WithLabelValues(string(platform), string(action), outcome).Inc()
	m.deliveryDuration.WithLabelValues(string(platform), string(action)).Observe(elapsed.Seconds())

	if m.otelDeliveries != nil {
		ctx := context.Background()
		attrs := []attribute.KeyValue{AttrPlatform.String(string(platform)), AttrAction.String(string(action))}
		m.otelDeliveries.Inc(ctx, append(attrs, AttrOutcome.String(outcome))...)
		m.otelDuration.RecordDuration(ctx, elapsed, attrs...)
	}
}

// IncEnqueued counts a newly queued item
func (m *SyncMetrics) IncEnqueued(platform itsm.Platform, action itsm.SyncAction) {
	m.enqueued.WithLabelValues(string(platform), string(action)).Inc()
}

// IncWebhook counts one inbound webhook by outcome
func (m *SyncMetrics) IncWebhook(platform itsm.Platform, outcome string) {
	m.webhooks.WithLabelValues(string(platform), outcome).Inc()
	if m.otelWebhooks != nil {
		m.otelWebhooks.Inc(context.Background(), AttrPlatform.String(string(platform)), AttrOutcome.String(outcome))
	}
}

// IncCollision counts an external id claimed by a second ticket
func (m *SyncMetrics) IncCollision(platform itsm.Platform) {
	m.collisions.WithLabelValues(string(platform)).Inc()
	if m.otelCollisions != nil {
		m.otelCollisions.Inc(context.Background(), AttrPlatform.String(string(platform)))
	}
}

// =============================================================================
// Periodic Collection
// =============================================================================

// StartPeriodicCollection refreshes the queue depth gauge every interval.
// It is non-blocking; call Stop to end collection.
func (m *SyncMetrics) StartPeriodicCollection(ctx context.Context) {
	if m.queueProvider == nil {
		m.logger.Debug("No queue provider configured, skipping queue depth collection")
		return
	}
	m.collectOnce.Do(func() {
		go m.runPeriodicCollection(ctx)
	})
}

func (m *SyncMetrics) runPeriodicCollection(ctx context.Context) {
	ticker := time.NewTicker(m.collectInterval)
	defer ticker.Stop()

	m.CollectQueueDepth(ctx)

	for {
		select {
		case <-m.stopChan:
			m.logger.Info("Stopping queue depth collection")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CollectQueueDepth(ctx)
		}
	}
}

// CollectQueueDepth queries the provider once and updates the gauge
func (m *SyncMetrics) CollectQueueDepth(ctx context.Context) {
	if m.queueProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, queueDepthCollectTimeout)
	defer cancel()

	depth, err := m.queueProvider.QueueDepth(ctx)
	if err != nil {
		m.logger.Warn("Failed to collect queue depth", zap.Error(err))
		return
	}

	m.queueDepth.Reset()
	for _, platform := range itsm.AllPlatforms() {
		for _, status := range itsm.AllQueueStatuses() {
			m.queueDepth.WithLabelValues(string(platform), string(status)).Set(float64(depth[platform][status]))
		}
	}
}

// Stop stops the periodic collection.
func (m *SyncMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
}

// =============================================================================
// Error Types
// =============================================================================

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
