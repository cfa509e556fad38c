package itsm

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestItem(t *testing.T) *SyncQueueItem {
	t.Helper()
	item, err := NewSyncQueueItem(uuid.New(), PlatformJira, SyncActionCreate, "T1", Payload{"summary": "x"}, 0)
	require.NoError(t, err)
	return item
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 5 * time.Second},
		{1, 5 * time.Second},
		{2, 30 * time.Second},
		{3, 300 * time.Second},
		{4, 300 * time.Second},
		{50, 300 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.attempts), "attempts=%d", tt.attempts)
	}
}

func TestNewSyncQueueItem(t *testing.T) {
	orgID := uuid.New()

	t.Run("Defaults", func(t *testing.T) {
		item, err := NewSyncQueueItem(orgID, PlatformServiceNow, SyncActionUpdate, " T9 ", nil, 0)
		require.NoError(t, err)
		assert.Equal(t, QueueStatusPending, item.Status)
		assert.Equal(t, 0, item.Attempts)
		assert.Equal(t, DefaultMaxAttempts, item.MaxAttempts)
		assert.Equal(t, "T9", item.TicketID)
		assert.NotNil(t, item.Payload)
		assert.Nil(t, item.NextRetryAt)
		assert.Empty(t, item.ExternalID)
	})

	t.Run("Validation", func(t *testing.T) {
		_, err := NewSyncQueueItem(uuid.Nil, PlatformJira, SyncActionCreate, "T1", nil, 0)
		assert.ErrorIs(t, err, ErrInvalidOrganization)
		_, err = NewSyncQueueItem(orgID, Platform("zendesk"), SyncActionCreate, "T1", nil, 0)
		assert.ErrorIs(t, err, ErrInvalidPlatform)
		_, err = NewSyncQueueItem(orgID, PlatformJira, SyncAction("delete"), "T1", nil, 0)
		assert.ErrorIs(t, err, ErrInvalidAction)
		_, err = NewSyncQueueItem(orgID, PlatformJira, SyncActionCreate, "  ", nil, 0)
		assert.ErrorIs(t, err, ErrMissingTicketID)
		_, err = NewSyncQueueItem(orgID, PlatformJira, SyncActionCreate, "T1", nil, -1)
		assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
	})
}

func TestSyncQueueItem_TransientFailureSchedulesRetry(t *testing.T) {
	item := newTestItem(t)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, item.MarkProcessing(now))
	retry, err := item.RecordFailure(&TransientError{StatusCode: 429}, now)
	require.NoError(t, err)

	assert.True(t, retry)
	assert.Equal(t, QueueStatusPending, item.Status)
	assert.Equal(t, 1, item.Attempts)
	require.NotNil(t, item.NextRetryAt)
	assert.Equal(t, now.Add(5*time.Second), *item.NextRetryAt)
	assert.Equal(t, ErrorKindTransient, item.ErrorKind)
	assert.False(t, item.IsDue(now.Add(4*time.Second)))
	assert.True(t, item.IsDue(now.Add(5*time.Second)))
}

func TestSyncQueueItem_RetriesExhaust(t *testing.T) {
	item := newTestItem(t)
	now := time.Now()
	delays := []time.Duration{5 * time.Second, 30 * time.Second}

	for i, d := range delays {
		require.NoError(t, item.MarkProcessing(now))
		retry, err := item.RecordFailure(&TransientError{Err: errors.New("connection reset")}, now)
		require.NoError(t, err)
		require.True(t, retry, "attempt %d", i+1)
		assert.Equal(t, now.Add(d), *item.NextRetryAt)
		now = *item.NextRetryAt
	}

	require.NoError(t, item.MarkProcessing(now))
	retry, err := item.RecordFailure(&TransientError{StatusCode: 503}, now)
	require.NoError(t, err)
	assert.False(t, retry)
	assert.Equal(t, QueueStatusFailed, item.Status)
	assert.Equal(t, item.MaxAttempts, item.Attempts)
	assert.Nil(t, item.NextRetryAt)
	assert.Contains(t, item.ErrorMessage, "503")
}

func TestSyncQueueItem_NonRetryableFailureIsTerminal(t *testing.T) {
	for name, cause := range map[string]error{
		"permission": &PermissionError{StatusCode: 403},
		"plan limit": &PlanLimitError{StatusCode: 402},
		"validation": MissingRequiredField("title"),
		"unknown":    errors.New("boom"),
	} {
		t.Run(name, func(t *testing.T) {
			item := newTestItem(t)
			require.NoError(t, item.MarkProcessing(time.Now()))
			retry, err := item.RecordFailure(cause, time.Now())
			require.NoError(t, err)
			assert.False(t, retry)
			assert.Equal(t, QueueStatusFailed, item.Status)
			assert.Equal(t, 1, item.Attempts)
		})
	}
}

func TestSyncQueueItem_MarkCompleted(t *testing.T) {
	item := newTestItem(t)
	now := time.Now()

	assert.ErrorIs(t, item.MarkCompleted("SEC-1", now), ErrInvalidQueueTransition)

	require.NoError(t, item.MarkProcessing(now))
	require.NoError(t, item.MarkCompleted("SEC-900", now))
	assert.Equal(t, QueueStatusCompleted, item.Status)
	assert.Equal(t, "SEC-900", item.ExternalID)
	assert.NotNil(t, item.CompletedAt)
	assert.True(t, item.IsTerminal())
}

func TestSyncQueueItem_ExternalIDImmutable(t *testing.T) {
	item := newTestItem(t)
	require.NoError(t, item.AssignExternalID("SEC-1"))
	require.NoError(t, item.AssignExternalID("SEC-1"))
	require.NoError(t, item.AssignExternalID(""))
	assert.ErrorIs(t, item.AssignExternalID("SEC-2"), ErrExternalIDImmutable)
	assert.Equal(t, "SEC-1", item.ExternalID)
}

func TestSyncQueueItem_Cancel(t *testing.T) {
	t.Run("Pending", func(t *testing.T) {
		item := newTestItem(t)
		require.NoError(t, item.Cancel(time.Now()))
		assert.Equal(t, QueueStatusCancelled, item.Status)
	})

	t.Run("Failed", func(t *testing.T) {
		item := newTestItem(t)
		require.NoError(t, item.MarkProcessing(time.Now()))
		_, _ = item.RecordFailure(&PermissionError{StatusCode: 403}, time.Now())
		require.NoError(t, item.Cancel(time.Now()))
		assert.Equal(t, QueueStatusCancelled, item.Status)
	})

	t.Run("Processing is rejected", func(t *testing.T) {
		item := newTestItem(t)
		require.NoError(t, item.MarkProcessing(time.Now()))
		assert.ErrorIs(t, item.Cancel(time.Now()), ErrQueueItemInFlight)
		assert.Equal(t, QueueStatusProcessing, item.Status)
	})

	t.Run("Terminal is rejected", func(t *testing.T) {
		item := newTestItem(t)
		require.NoError(t, item.Cancel(time.Now()))
		assert.ErrorIs(t, item.Cancel(time.Now()), ErrInvalidQueueTransition)
	})
}

func TestSyncQueueItem_Requeue(t *testing.T) {
	t.Run("Exhausted item gets one more attempt", func(t *testing.T) {
		item := newTestItem(t)
		item.MaxAttempts = 1
		require.NoError(t, item.MarkProcessing(time.Now()))
		_, _ = item.RecordFailure(&TransientError{StatusCode: 500}, time.Now())
		require.Equal(t, QueueStatusFailed, item.Status)

		require.NoError(t, item.Requeue(time.Now()))
		assert.Equal(t, QueueStatusPending, item.Status)
		assert.Equal(t, 1, item.Attempts, "attempts keep accumulating")
		assert.Equal(t, 2, item.MaxAttempts)
		assert.Nil(t, item.NextRetryAt)
		assert.LessOrEqual(t, item.Attempts, item.MaxAttempts)
	})

	t.Run("Budget left is kept", func(t *testing.T) {
		item := newTestItem(t)
		require.NoError(t, item.MarkProcessing(time.Now()))
		_, _ = item.RecordFailure(&PermissionError{StatusCode: 403}, time.Now())
		require.NoError(t, item.Requeue(time.Now()))
		assert.Equal(t, DefaultMaxAttempts, item.MaxAttempts)
	})

	t.Run("Only failed items", func(t *testing.T) {
		item := newTestItem(t)
		assert.ErrorIs(t, item.Requeue(time.Now()), ErrInvalidQueueTransition)
	})
}

func TestSerializationKey(t *testing.T) {
	orgID := uuid.New()
	a, _ := NewSyncQueueItem(orgID, PlatformJira, SyncActionCreate, "T1", nil, 0)
	b, _ := NewSyncQueueItem(orgID, PlatformJira, SyncActionComment, "T1", nil, 0)
	c, _ := NewSyncQueueItem(orgID, PlatformServiceNow, SyncActionCreate, "T1", nil, 0)

	assert.Equal(t, a.SerializationKey(), b.SerializationKey())
	assert.NotEqual(t, a.SerializationKey(), c.SerializationKey())
}
