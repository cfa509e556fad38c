package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormAuditLogRepository implements itsm.AuditLogRepository using GORM.
// It only inserts and reads; the model rejects updates and deletes.
type GormAuditLogRepository struct {
	db *gorm.DB
}

// NewGormAuditLogRepository creates a new GormAuditLogRepository
func NewGormAuditLogRepository(db *gorm.DB) *GormAuditLogRepository {
	return &GormAuditLogRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormAuditLogRepository) WithTx(tx *gorm.DB) *GormAuditLogRepository {
	return &GormAuditLogRepository{db: tx}
}

// Create appends an audit entry
func (r *GormAuditLogRepository) Create(ctx context.Context, entry *itsm.AuditLog) error {
	return r.db.WithContext(ctx).Create(models.AuditLogModelFromDomain(entry)).Error
}

// Query returns a page of audit entries, newest first, and the total count
func (r *GormAuditLogRepository) Query(ctx context.Context, filter itsm.AuditLogFilter) ([]*itsm.AuditLog, int64, error) {
	page := filter.PageRequest.Normalize()

	var total int64
	if err := r.auditScope(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.AuditLogModel
	if err := r.auditScope(ctx, filter).
		Order("created_at DESC, id DESC").
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	entries := make([]*itsm.AuditLog, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries, total, nil
}

// ExistsByExternalID reports whether any audit entry references the external id
func (r *GormAuditLogRepository) ExistsByExternalID(ctx context.Context, orgID uuid.UUID, platform itsm.Platform, externalID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.AuditLogModel{}).
		Where("organization_id = ? AND platform = ? AND external_id = ?", orgID, string(platform), externalID).
		Count(&count).Error
	return count > 0, err
}

// Stream visits matching entries oldest first without loading them all
func (r *GormAuditLogRepository) Stream(ctx context.Context, filter itsm.AuditLogFilter, fn func(*itsm.AuditLog) error) error {
	rows, err := r.auditScope(ctx, filter).Order("created_at ASC, id ASC").Rows()
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var model models.AuditLogModel
		if err := r.db.ScanRows(rows, &model); err != nil {
			return err
		}
		if err := fn(model.ToDomain()); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *GormAuditLogRepository) auditScope(ctx context.Context, filter itsm.AuditLogFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.AuditLogModel{}).
		Where("organization_id = ?", filter.OrganizationID)
	if filter.Platform != "" {
		query = query.Where("platform = ?", string(filter.Platform))
	}
	if filter.TraceID != "" {
		query = query.Where("trace_id = ?", filter.TraceID)
	}
	if filter.ExternalID != "" {
		query = query.Where("external_id = ?", filter.ExternalID)
	}
	if filter.Outcome != "" {
		query = query.Where("outcome = ?", string(filter.Outcome))
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", filter.To.UTC())
	}
	return query
}

// GormSyncEventRepository implements itsm.SyncEventRepository using GORM
type GormSyncEventRepository struct {
	db *gorm.DB
}

// NewGormSyncEventRepository creates a new GormSyncEventRepository
func NewGormSyncEventRepository(db *gorm.DB) *GormSyncEventRepository {
	return &GormSyncEventRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormSyncEventRepository) WithTx(tx *gorm.DB) *GormSyncEventRepository {
	return &GormSyncEventRepository{db: tx}
}

// Create inserts a sync event
func (r *GormSyncEventRepository) Create(ctx context.Context, event *itsm.SyncEvent) error {
	return r.db.WithContext(ctx).Create(models.SyncEventModelFromDomain(event)).Error
}

// IncrementRetryCount bumps the retry counter, the only mutable column
func (r *GormSyncEventRepository) IncrementRetryCount(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&models.SyncEventModel{}).
		Where("id = ?", id).
		UpdateColumn("retry_count", gorm.Expr("retry_count + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Query returns a page of sync events, newest first, and the total count
func (r *GormSyncEventRepository) Query(ctx context.Context, filter itsm.SyncEventFilter) ([]*itsm.SyncEvent, int64, error) {
	page := filter.PageRequest.Normalize()

	var total int64
	if err := r.eventScope(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.SyncEventModel
	if err := r.eventScope(ctx, filter).
		Order("created_at DESC, id DESC").
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	events := make([]*itsm.SyncEvent, len(rows))
	for i := range rows {
		events[i] = rows[i].ToDomain()
	}
	return events, total, nil
}

func (r *GormSyncEventRepository) eventScope(ctx context.Context, filter itsm.SyncEventFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.SyncEventModel{}).
		Where("organization_id = ?", filter.OrganizationID)
	if filter.Platform != "" {
		query = query.Where("platform = ?", string(filter.Platform))
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.ProductGroup != "" {
		query = query.Where("product_group = ?", filter.ProductGroup)
	}
	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
	}
	if filter.ExternalID != "" {
		query = query.Where("external_id = ?", filter.ExternalID)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", filter.To.UTC())
	}
	return query
}

// ExistsByExternalID reports whether any sync event references the external id
func (r *GormSyncEventRepository) ExistsByExternalID(ctx context.Context, orgID uuid.UUID, platform itsm.Platform, externalID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.SyncEventModel{}).
		Where("organization_id = ? AND platform = ? AND external_id = ?", orgID, string(platform), externalID).
		Count(&count).Error
	return count > 0, err
}

// FindLatestByQueueItem returns the most recent event of a queue item
func (r *GormSyncEventRepository) FindLatestByQueueItem(ctx context.Context, queueItemID uuid.UUID) (*itsm.SyncEvent, error) {
	var model models.SyncEventModel
	err := r.db.WithContext(ctx).
		Where("queue_item_id = ?", queueItemID).
		Order("created_at DESC, id DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

var (
	_ itsm.AuditLogRepository  = (*GormAuditLogRepository)(nil)
	_ itsm.SyncEventRepository = (*GormSyncEventRepository)(nil)
)
