package scheduler

import (
	"context"
	"sync"
	"time"

	appitsm "github.com/reddomeuk/redscan-application-sub002/internal/application/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/shared"
	"go.uber.org/zap"
)

// Deliverer sends one claimed queue item to its platform
type Deliverer interface {
	Deliver(ctx context.Context, item *itsm.SyncQueueItem) (*appitsm.DeliveryResult, error)
}

// SyncQueueProcessorConfig holds configuration for the outbound queue processor
type SyncQueueProcessorConfig struct {
	Workers         int
	BatchSize       int
	PollInterval    time.Duration
	DeliveryTimeout time.Duration
	StaleAfter      time.Duration
	LockTTL         time.Duration
}

// DefaultSyncQueueProcessorConfig returns default configuration
func DefaultSyncQueueProcessorConfig() SyncQueueProcessorConfig {
	return SyncQueueProcessorConfig{
		Workers:         4,
		BatchSize:       50,
		PollInterval:    time.Second,
		DeliveryTimeout: 30 * time.Second,
		StaleAfter:      10 * time.Minute,
		LockTTL:         2 * time.Minute,
	}
}

// SyncQueueProcessor drains due queue items in the background. Items sharing a
// (platform, ticket) key are never delivered concurrently: the key lock is
// held from claim until the outcome is recorded.
type SyncQueueProcessor struct {
	repo      itsm.SyncQueueRepository
	deliverer Deliverer
	locks     shared.KeyLock
	config    SyncQueueProcessorConfig
	logger    *zap.Logger
	now       func() time.Time

	items     chan *itsm.SyncQueueItem
	inflight  sync.Map
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewSyncQueueProcessor creates a new processor
func NewSyncQueueProcessor(
	repo itsm.SyncQueueRepository,
	deliverer Deliverer,
	locks shared.KeyLock,
	config SyncQueueProcessorConfig,
	logger *zap.Logger,
) *SyncQueueProcessor {
	defaults := DefaultSyncQueueProcessorConfig()
	if config.Workers < 1 {
		config.Workers = defaults.Workers
	}
	if config.BatchSize < 1 {
		config.BatchSize = defaults.BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.DeliveryTimeout <= 0 {
		config.DeliveryTimeout = defaults.DeliveryTimeout
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = defaults.StaleAfter
	}
	if config.LockTTL <= 0 {
		config.LockTTL = defaults.LockTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncQueueProcessor{
		repo:      repo,
		deliverer: deliverer,
		locks:     locks,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// Start launches the poll loop and the worker pool
func (p *SyncQueueProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = true
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.items = make(chan *itsm.SyncQueueItem, p.config.BatchSize)

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.wg.Add(1)
	go p.pollLoop(ctx)

	p.logger.Info("Sync queue processor started",
		zap.Int("workers", p.config.Workers),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
	)
	return nil
}

// Stop cancels polling and waits for in-flight deliveries to finish
func (p *SyncQueueProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Sync queue processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the processor is started
func (p *SyncQueueProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isRunning
}

func (p *SyncQueueProcessor) pollLoop(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.items)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.releaseStale(ctx)
	lastSweep := p.now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.now().Sub(lastSweep) >= p.config.StaleAfter/2 {
				p.releaseStale(ctx)
				lastSweep = p.now()
			}
			p.dispatch(ctx)
		}
	}
}

// dispatch hands due items to the workers. Items already queued to a worker
// are skipped until they resolve.
func (p *SyncQueueProcessor) dispatch(ctx context.Context) {
	due, err := p.repo.FindDue(ctx, p.now(), p.config.BatchSize)
	if err != nil {
		p.logger.Error("Failed to find due queue items", zap.Error(err))
		return
	}
	for _, item := range due {
		if _, busy := p.inflight.LoadOrStore(item.ID, struct{}{}); busy {
			continue
		}
		select {
		case p.items <- item:
		case <-ctx.Done():
			p.inflight.Delete(item.ID)
			return
		}
	}
}

func (p *SyncQueueProcessor) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for item := range p.items {
		if ctx.Err() == nil {
			p.ProcessItem(ctx, item)
		}
		p.inflight.Delete(item.ID)
	}
	p.logger.Debug("Sync queue worker stopped", zap.Int("worker_id", id))
}

// ProcessItem locks the item's ticket key, claims the item and delivers it.
// It returns false when the key was busy or another worker claimed the item.
func (p *SyncQueueProcessor) ProcessItem(ctx context.Context, item *itsm.SyncQueueItem) bool {
	key := item.SerializationKey()
	token, ok, err := p.locks.TryLock(ctx, key, p.config.LockTTL)
	if err != nil {
		p.logger.Error("Failed to acquire ticket lock", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		p.logger.Debug("Ticket busy, deferring item",
			zap.String("queue_item_id", item.ID.String()),
			zap.String("key", key))
		return false
	}
	defer func() {
		// The delivery context may already be cancelled.
		if err := p.locks.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			p.logger.Warn("Failed to release ticket lock", zap.String("key", key), zap.Error(err))
		}
	}()

	claimed, err := p.repo.Claim(ctx, item.ID, p.now())
	if err != nil {
		p.logger.Error("Failed to claim queue item", zap.String("queue_item_id", item.ID.String()), zap.Error(err))
		return false
	}
	if !claimed {
		return false
	}

	current, err := p.repo.FindByID(ctx, item.OrganizationID, item.ID)
	if err != nil {
		p.logger.Error("Failed to reload claimed item", zap.String("queue_item_id", item.ID.String()), zap.Error(err))
		return false
	}

	deliverCtx, cancel := context.WithTimeout(ctx, p.config.DeliveryTimeout)
	defer cancel()

	result, err := p.deliverer.Deliver(deliverCtx, current)
	if err != nil {
		p.logger.Error("Delivery aborted, item left for stale recovery",
			zap.String("queue_item_id", current.ID.String()),
			zap.String("trace_id", current.TraceID),
			zap.Error(err))
		return true
	}
	p.logger.Debug("Queue item processed",
		zap.String("queue_item_id", current.ID.String()),
		zap.String("outcome", result.Outcome))
	return true
}

// RunOnce performs a single stale sweep and drains one batch synchronously
func (p *SyncQueueProcessor) RunOnce(ctx context.Context) int {
	p.releaseStale(ctx)
	due, err := p.repo.FindDue(ctx, p.now(), p.config.BatchSize)
	if err != nil {
		p.logger.Error("Failed to find due queue items", zap.Error(err))
		return 0
	}
	processed := 0
	for _, item := range due {
		if p.ProcessItem(ctx, item) {
			processed++
		}
	}
	return processed
}

func (p *SyncQueueProcessor) releaseStale(ctx context.Context) {
	released, err := p.repo.ReleaseStale(ctx, p.now().Add(-p.config.StaleAfter))
	if err != nil {
		p.logger.Error("Failed to release stale queue items", zap.Error(err))
		return
	}
	if released > 0 {
		p.logger.Warn("Released stale processing items", zap.Int64("count", released))
	}
}
