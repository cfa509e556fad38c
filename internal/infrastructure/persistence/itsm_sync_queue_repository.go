package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// An item is head of line when no older unfinished item exists for the same
// (organization, platform, ticket) and nothing of that key is in flight.
const headOfLineClause = `NOT EXISTS (
	SELECT 1 FROM itsm_sync_queue_items o
	WHERE o.organization_id = itsm_sync_queue_items.organization_id
	  AND o.platform = itsm_sync_queue_items.platform
	  AND o.ticket_id = itsm_sync_queue_items.ticket_id
	  AND o.id <> itsm_sync_queue_items.id
	  AND (
		o.status = 'processing'
		OR (o.status = 'pending' AND (o.created_at < itsm_sync_queue_items.created_at
			OR (o.created_at = itsm_sync_queue_items.created_at AND o.id < itsm_sync_queue_items.id)))
	  )
)`

const claimSQL = `UPDATE itsm_sync_queue_items
SET status = 'processing', processing_started_at = ?, updated_at = ?
WHERE id = ? AND status = 'pending' AND NOT EXISTS (
	SELECT 1 FROM itsm_sync_queue_items o
	WHERE o.organization_id = itsm_sync_queue_items.organization_id
	  AND o.platform = itsm_sync_queue_items.platform
	  AND o.ticket_id = itsm_sync_queue_items.ticket_id
	  AND o.status = 'processing'
)`

// GormSyncQueueRepository implements itsm.SyncQueueRepository using GORM
type GormSyncQueueRepository struct {
	db *gorm.DB
}

// NewGormSyncQueueRepository creates a new GormSyncQueueRepository
func NewGormSyncQueueRepository(db *gorm.DB) *GormSyncQueueRepository {
	return &GormSyncQueueRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormSyncQueueRepository) WithTx(tx *gorm.DB) *GormSyncQueueRepository {
	return &GormSyncQueueRepository{db: tx}
}

// Create inserts a new queue item
func (r *GormSyncQueueRepository) Create(ctx context.Context, item *itsm.SyncQueueItem) error {
	return r.db.WithContext(ctx).Create(models.SyncQueueItemModelFromDomain(item)).Error
}

// Save persists every field of an existing queue item
func (r *GormSyncQueueRepository) Save(ctx context.Context, item *itsm.SyncQueueItem) error {
	return r.db.WithContext(ctx).Save(models.SyncQueueItemModelFromDomain(item)).Error
}

// SaveIfStatus persists every field of the item only while the stored row is
// still in the expected status. It reports whether the row was written.
func (r *GormSyncQueueRepository) SaveIfStatus(ctx context.Context, item *itsm.SyncQueueItem, expected itsm.QueueStatus) (bool, error) {
	model := models.SyncQueueItemModelFromDomain(item)
	result := r.db.WithContext(ctx).Model(model).
		Where("status = ?", string(expected)).
		Select("*").
		Omit("created_at").
		Updates(model)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// FindByID finds a queue item. A nil orgID skips the organization check and
// is reserved for the background processor.
func (r *GormSyncQueueRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*itsm.SyncQueueItem, error) {
	query := r.db.WithContext(ctx).Where("id = ?", id)
	if orgID != uuid.Nil {
		query = query.Where("organization_id = ?", orgID)
	}

	var model models.SyncQueueItemModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, itsm.ErrQueueItemNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindDue returns due head-of-line items, oldest first
func (r *GormSyncQueueRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*itsm.SyncQueueItem, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []models.SyncQueueItemModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(itsm.QueueStatusPending)).
		Where("(next_retry_at IS NULL OR next_retry_at <= ?)", now.UTC()).
		Where(headOfLineClause).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toQueueItems(rows), nil
}

// Claim moves a pending item to processing. The update is conditional on the
// current status and on no sibling item being in flight, so concurrent
// claimers cannot both win.
func (r *GormSyncQueueRepository) Claim(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	now = now.UTC()
	result := r.db.WithContext(ctx).Exec(claimSQL, now, now, id)
	if result.Error != nil {
		// the one-in-flight index rejected a racing sibling claim
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// FindByStatus lists an organization's items in a status, optionally for one platform
func (r *GormSyncQueueRepository) FindByStatus(ctx context.Context, orgID uuid.UUID, platform itsm.Platform, status itsm.QueueStatus) ([]*itsm.SyncQueueItem, error) {
	query := r.db.WithContext(ctx).
		Where("organization_id = ? AND status = ?", orgID, string(status))
	if platform != "" {
		query = query.Where("platform = ?", string(platform))
	}

	var rows []models.SyncQueueItemModel
	if err := query.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toQueueItems(rows), nil
}

// List returns a page of queue items and the total count. Items are newest
// first unless the filter names another order.
func (r *GormSyncQueueRepository) List(ctx context.Context, filter itsm.QueueFilter) ([]*itsm.SyncQueueItem, int64, error) {
	page := filter.PageRequest.Normalize()

	var total int64
	if err := r.listScope(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.SyncQueueItemModel
	if err := r.listScope(ctx, filter).
		Order(queueSort.order(filter.SortBy, filter.SortOrder)).
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return toQueueItems(rows), total, nil
}

func (r *GormSyncQueueRepository) listScope(ctx context.Context, filter itsm.QueueFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.SyncQueueItemModel{}).
		Where("organization_id = ?", filter.OrganizationID)
	if filter.Platform != "" {
		query = query.Where("platform = ?", string(filter.Platform))
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.TicketID != "" {
		query = query.Where("ticket_id = ?", filter.TicketID)
	}
	return query
}

// CountByStatus counts an organization's items per status. Statuses with no
// items are reported as zero.
func (r *GormSyncQueueRepository) CountByStatus(ctx context.Context, orgID uuid.UUID) (map[itsm.QueueStatus]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&models.SyncQueueItemModel{}).
		Select("status, COUNT(*) AS count").
		Where("organization_id = ?", orgID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[itsm.QueueStatus]int64, len(itsm.AllQueueStatuses()))
	for _, s := range itsm.AllQueueStatuses() {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[itsm.QueueStatus(row.Status)] = row.Count
	}
	return counts, nil
}

// ReleaseStale returns items stuck in processing to pending
func (r *GormSyncQueueRepository) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.SyncQueueItemModel{}).
		Where("status = ? AND processing_started_at < ?", string(itsm.QueueStatusProcessing), cutoff.UTC()).
		Updates(map[string]any{
			"status":                string(itsm.QueueStatusPending),
			"processing_started_at": nil,
			"updated_at":            time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

func toQueueItems(rows []models.SyncQueueItemModel) []*itsm.SyncQueueItem {
	items := make([]*itsm.SyncQueueItem, len(rows))
	for i := range rows {
		items[i] = rows[i].ToDomain()
	}
	return items
}

var _ itsm.SyncQueueRepository = (*GormSyncQueueRepository)(nil)
