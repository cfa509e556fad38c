package itsm

import (
	"context"

	"github.com/google/uuid"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"go.uber.org/zap"
)

// ConflictPolicyService reads and toggles an organization's merge policies
type ConflictPolicyService struct {
	policyRepo itsm.ConflictPolicyRepository
	logger     *zap.Logger
}

// NewConflictPolicyService creates a new ConflictPolicyService
func NewConflictPolicyService(policyRepo itsm.ConflictPolicyRepository, logger *zap.Logger) *ConflictPolicyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictPolicyService{policyRepo: policyRepo, logger: logger}
}

// Get returns the organization's policies, defaulting to all enabled
func (s *ConflictPolicyService) Get(ctx context.Context, orgID uuid.UUID) (itsm.ConflictPolicies, error) {
	return s.policyRepo.Find(ctx, orgID)
}

// UpdateConflictPoliciesInput toggles individual policies; nil leaves a policy unchanged
type UpdateConflictPoliciesInput struct {
	Comments *bool
	Status   *bool
	Priority *bool
}

// Update applies the toggles and returns the stored policies
func (s *ConflictPolicyService) Update(ctx context.Context, orgID uuid.UUID, in UpdateConflictPoliciesInput) (itsm.ConflictPolicies, error) {
	policies, err := s.policyRepo.Find(ctx, orgID)
	if err != nil {
		return itsm.ConflictPolicies{}, err
	}
	if in.Comments != nil {
		policies.Comments = *in.Comments
	}
	if in.Status != nil {
		policies.Status = *in.Status
	}
	if in.Priority != nil {
		policies.Priority = *in.Priority
	}
	if err := s.policyRepo.Save(ctx, orgID, policies); err != nil {
		return itsm.ConflictPolicies{}, err
	}

	s.logger.Info("Conflict policies updated",
		zap.String("organization_id", orgID.String()),
		zap.Bool("comments_last_writer_wins", policies.Comments),
		zap.Bool("status_forward_only", policies.Status),
		zap.Bool("priority_max", policies.Priority))
	return policies, nil
}
