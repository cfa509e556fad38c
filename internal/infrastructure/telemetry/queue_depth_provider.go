package telemetry

import (
	"context"

	"gorm.io/gorm"

	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
)

// GormQueueDepthProvider implements QueueDepthProvider using GORM.
// It aggregates the queue table directly across organizations.
type GormQueueDepthProvider struct {
	db *gorm.DB
}

// NewGormQueueDepthProvider creates a new GormQueueDepthProvider.
func NewGormQueueDepthProvider(db *gorm.DB) *GormQueueDepthProvider {
	return &GormQueueDepthProvider{db: db}
}

// QueueDepth returns item counts grouped by platform and status.
func (p *GormQueueDepthProvider) QueueDepth(ctx context.Context) (map[itsm.Platform]map[itsm.QueueStatus]int64, error) {
	type result struct {
		Platform string `gorm:"column:platform"`
		Status   string `gorm:"column:status"`
		Count    int64  `gorm:"column:count"`
	}

	var results []result
	err := p.db.WithContext(ctx).
		Table("itsm_sync_queue_items").
		Select("platform, status, COUNT(*) AS count").
		Group("platform, status").
		Find(&results).Error
	if err != nil {
		return nil, err
	}

	depth := make(map[itsm.Platform]map[itsm.QueueStatus]int64)
	for _, r := range results {
		platform := itsm.Platform(r.Platform)
		if depth[platform] == nil {
			depth[platform] = make(map[itsm.QueueStatus]int64)
		}
		depth[platform][itsm.QueueStatus(r.Status)] = r.Count
	}
	return depth, nil
}
