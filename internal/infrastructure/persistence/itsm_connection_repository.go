package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormConnectionRepository implements itsm.ConnectionRepository using GORM
type GormConnectionRepository struct {
	db *gorm.DB
}

// NewGormConnectionRepository creates a new GormConnectionRepository
func NewGormConnectionRepository(db *gorm.DB) *GormConnectionRepository {
	return &GormConnectionRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormConnectionRepository) WithTx(tx *gorm.DB) *GormConnectionRepository {
	return &GormConnectionRepository{db: tx}
}

// FindByPlatform finds the organization's connection for a platform
func (r *GormConnectionRepository) FindByPlatform(ctx context.Context, orgID uuid.UUID, platform itsm.Platform) (*itsm.Connection, error) {
	var model models.ConnectionModel
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND platform = ?", orgID, string(platform)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, itsm.ErrConnectionNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll returns every connection of the organization
func (r *GormConnectionRepository) FindAll(ctx context.Context, orgID uuid.UUID) ([]*itsm.Connection, error) {
	var rows []models.ConnectionModel
	if err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("platform ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	conns := make([]*itsm.Connection, len(rows))
	for i := range rows {
		conns[i] = rows[i].ToDomain()
	}
	return conns, nil
}

// Save creates or updates a connection
func (r *GormConnectionRepository) Save(ctx context.Context, conn *itsm.Connection) error {
	return r.db.WithContext(ctx).Save(models.ConnectionModelFromDomain(conn)).Error
}

var _ itsm.ConnectionRepository = (*GormConnectionRepository)(nil)
