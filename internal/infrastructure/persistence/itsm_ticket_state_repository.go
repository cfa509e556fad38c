package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTicketStateRepository implements itsm.TicketStateRepository using GORM
type GormTicketStateRepository struct {
	db *gorm.DB
}

// NewGormTicketStateRepository creates a new GormTicketStateRepository
func NewGormTicketStateRepository(db *gorm.DB) *GormTicketStateRepository {
	return &GormTicketStateRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormTicketStateRepository) WithTx(tx *gorm.DB) *GormTicketStateRepository {
	return &GormTicketStateRepository{db: tx}
}

// FindByExternalID finds the state of an external ticket
func (r *GormTicketStateRepository) FindByExternalID(ctx context.Context, orgID uuid.UUID, platform itsm.Platform, externalID string) (*itsm.TicketState, error) {
	return r.findOne(ctx, "organization_id = ? AND platform = ? AND external_id = ?", orgID, string(platform), externalID)
}

// FindByTicketID finds the state linked to an internal ticket
func (r *GormTicketStateRepository) FindByTicketID(ctx context.Context, orgID uuid.UUID, platform itsm.Platform, ticketID string) (*itsm.TicketState, error) {
	return r.findOne(ctx, "organization_id = ? AND platform = ? AND ticket_id = ?", orgID, string(platform), ticketID)
}

// Save upserts a ticket state on (organization, platform, external id).
// Two first deliveries racing on the same external id both succeed and the
// later write wins.
func (r *GormTicketStateRepository) Save(ctx context.Context, state *itsm.TicketState) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "organization_id"}, {Name: "platform"}, {Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"ticket_id", "status", "priority", "product_group",
				"last_comment_body", "last_comment_at", "updated_at",
			}),
		}).
		Create(models.TicketStateModelFromDomain(state)).Error
}

func (r *GormTicketStateRepository) findOne(ctx context.Context, query string, args ...any) (*itsm.TicketState, error) {
	var model models.TicketStateModel
	err := r.db.WithContext(ctx).Where(query, args...).Order("created_at ASC").First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, itsm.ErrTicketNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// GormConflictPolicyRepository implements itsm.ConflictPolicyRepository using GORM
type GormConflictPolicyRepository struct {
	db *gorm.DB
}

// NewGormConflictPolicyRepository creates a new GormConflictPolicyRepository
func NewGormConflictPolicyRepository(db *gorm.DB) *GormConflictPolicyRepository {
	return &GormConflictPolicyRepository{db: db}
}

// Find returns the organization's policies, defaulting to all enabled
func (r *GormConflictPolicyRepository) Find(ctx context.Context, orgID uuid.UUID) (itsm.ConflictPolicies, error) {
	var model models.ConflictPolicyModel
	err := r.db.WithContext(ctx).Where("organization_id = ?", orgID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return itsm.DefaultConflictPolicies(), nil
		}
		return itsm.ConflictPolicies{}, err
	}
	return model.ToDomain(), nil
}

// Save upserts the organization's policies
func (r *GormConflictPolicyRepository) Save(ctx context.Context, orgID uuid.UUID, policies itsm.ConflictPolicies) error {
	model := &models.ConflictPolicyModel{
		OrganizationID: orgID,
		Comments:       policies.Comments,
		Status:         policies.Status,
		Priority:       policies.Priority,
		UpdatedAt:      time.Now().UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "organization_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"comments", "status", "priority", "updated_at"}),
		}).
		Create(model).Error
}

var (
	_ itsm.TicketStateRepository    = (*GormTicketStateRepository)(nil)
	_ itsm.ConflictPolicyRepository = (*GormConflictPolicyRepository)(nil)
)
