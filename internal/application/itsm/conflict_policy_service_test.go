package itsm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConflictPolicyService(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := NewConflictPolicyService(env.policyRepo, nil)

	policies, err := svc.Get(ctx, env.orgID)
	require.NoError(t, err)
	assert.True(t, policies.Comments && policies.Status && policies.Priority, "all policies default on")

	updated, err := svc.Update(ctx, env.orgID, UpdateConflictPoliciesInput{Priority: boolPtr(false)})
	require.NoError(t, err)
	assert.True(t, updated.Comments)
	assert.True(t, updated.Status)
	assert.False(t, updated.Priority)

	stored, err := svc.Get(ctx, env.orgID)
	require.NoError(t, err)
	assert.Equal(t, updated, stored)
}
