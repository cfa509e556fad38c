package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

const fieldMappingBatchSize = 100

// GormFieldMappingRepository implements itsm.FieldMappingRepository using GORM
type GormFieldMappingRepository struct {
	db *gorm.DB
}

// NewGormFieldMappingRepository creates a new GormFieldMappingRepository
func NewGormFieldMappingRepository(db *gorm.DB) *GormFieldMappingRepository {
	return &GormFieldMappingRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormFieldMappingRepository) WithTx(tx *gorm.DB) *GormFieldMappingRepository {
	return &GormFieldMappingRepository{db: tx}
}

// FindByID finds a mapping by ID within an organization
func (r *GormFieldMappingRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*itsm.FieldMapping, error) {
	var model models.FieldMappingModel
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND id = ?", orgID, id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, itsm.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByPlatform returns the platform's mappings in resolution order
func (r *GormFieldMappingRepository) FindByPlatform(ctx context.Context, orgID uuid.UUID, platform itsm.Platform) ([]*itsm.FieldMapping, error) {
	var rows []models.FieldMappingModel
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND platform = ?", orgID, string(platform)).
		Order("position ASC, internal_field ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	mappings := make([]*itsm.FieldMapping, len(rows))
	for i := range rows {
		mappings[i] = rows[i].ToDomain()
	}
	return mappings, nil
}

// Save creates or updates a mapping
func (r *GormFieldMappingRepository) Save(ctx context.Context, m *itsm.FieldMapping) error {
	err := r.db.WithContext(ctx).Save(models.FieldMappingModelFromDomain(m)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return itsm.ErrDuplicateMapping
	}
	return err
}

// SaveBatch inserts mappings in batches
func (r *GormFieldMappingRepository) SaveBatch(ctx context.Context, mappings []*itsm.FieldMapping) error {
	if len(mappings) == 0 {
		return nil
	}
	rows := make([]*models.FieldMappingModel, len(mappings))
	for i, m := range mappings {
		rows[i] = models.FieldMappingModelFromDomain(m)
	}
	err := r.db.WithContext(ctx).CreateInBatches(rows, fieldMappingBatchSize).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return itsm.ErrDuplicateMapping
	}
	return err
}

// Delete removes one mapping
func (r *GormFieldMappingRepository) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("organization_id = ? AND id = ?", orgID, id).
		Delete(&models.FieldMappingModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return itsm.ErrMappingNotFound
	}
	return nil
}

// DeleteByPlatform removes every mapping of a platform
func (r *GormFieldMappingRepository) DeleteByPlatform(ctx context.Context, orgID uuid.UUID, platform itsm.Platform) error {
	return r.db.WithContext(ctx).
		Where("organization_id = ? AND platform = ?", orgID, string(platform)).
		Delete(&models.FieldMappingModel{}).Error
}

// ReplacePlatform swaps the platform's mappings in one transaction
func (r *GormFieldMappingRepository) ReplacePlatform(ctx context.Context, orgID uuid.UUID, platform itsm.Platform, mappings []*itsm.FieldMapping) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := r.WithTx(tx)
		if err := txRepo.DeleteByPlatform(ctx, orgID, platform); err != nil {
			return err
		}
		return txRepo.SaveBatch(ctx, mappings)
	})
}

var _ itsm.FieldMappingRepository = (*GormFieldMappingRepository)(nil)
