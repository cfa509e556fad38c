package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
)

type memoryArchiver struct {
	key  string
	body []byte
}

func (a *memoryArchiver) PutObject(_ context.Context, key, _ string, body io.Reader) (string, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	a.key, a.body = key, raw
	return "s3://audit/" + key, nil
}

// replaySubscriber hands out a closed channel holding the given events
type replaySubscriber struct {
	events   []*itsm.SyncEventRecorded
	orgID    uuid.UUID
	released bool
}

func (s *replaySubscriber) Subscribe(orgID uuid.UUID) (<-chan *itsm.SyncEventRecorded, func()) {
	s.orgID = orgID
	ch := make(chan *itsm.SyncEventRecorded, len(s.events))
	for _, e := range s.events {
		ch <- e
	}
	close(ch)
	return ch, func() { s.released = true }
}

func TestLogHandler_QueriesAfterWebhook(t *testing.T) {
	env := newHandlerEnv(t)
	env.connect(t, itsm.PlatformServiceNow)
	w := env.hook(t, env.orgID.String(), "servicenow", serviceNowInsert, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/sync-events?platform=servicenow&status=success", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var events []SyncEventResponse
	resp := decode(t, w, &events)
	require.Len(t, events, 1)
	assert.Equal(t, itsm.EventTypeTicketCreated, events[0].EventType)
	assert.Equal(t, "INC0010023", events[0].ExternalID)
	require.NotNil(t, resp.Meta)
	assert.EqualValues(t, 1, resp.Meta.Total)

	w = env.do(t, http.MethodGet, "/audit-logs?trace_id=trace-webhook-1&outcome=success", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var logs []AuditLogResponse
	decode(t, w, &logs)
	require.Len(t, logs, 1)
	assert.Equal(t, itsm.AuditActionInboundCreate, logs[0].Action)

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	w = env.do(t, http.MethodGet, "/audit-logs?from="+future, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &logs)
	assert.Empty(t, logs)

	w = env.do(t, http.MethodGet, "/audit-logs?outcome=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(t, http.MethodGet, "/sync-events?platform=zendesk", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogHandler_OrganizationIsolation(t *testing.T) {
	env := newHandlerEnv(t)
	other := uuid.New()
	conn, err := itsm.NewConnection(other, itsm.PlatformServiceNow, "https://other.service-now.com", "other-servicenow")
	require.NoError(t, err)
	require.NoError(t, env.connRepo.Save(context.Background(), conn))

	w := env.hook(t, other.String(), "servicenow", serviceNowInsert, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/sync-events", nil)
	var events []SyncEventResponse
	decode(t, w, &events)
	assert.Empty(t, events, "another organization's webhook is not visible")

	req := httptest.NewRequest(http.MethodGet, "/audit-logs", nil)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogHandler_Archive(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		env := newHandlerEnv(t)
		w := env.do(t, http.MethodPost, "/audit-logs/archive", map[string]any{
			"from": "2026-09-01T00:00:00Z",
			"to":   "2026-10-01T00:00:00Z",
		})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("exports json lines", func(t *testing.T) {
		archiver := &memoryArchiver{}
		env := newHandlerEnv(t, withArchiver(archiver))
		env.connect(t, itsm.PlatformServiceNow)
		w := env.hook(t, env.orgID.String(), "servicenow", serviceNowInsert, "")
		require.Equal(t, http.StatusOK, w.Code)

		from := time.Now().Add(-time.Hour).UTC()
		to := time.Now().Add(time.Hour).UTC()
		w = env.do(t, http.MethodPost, "/audit-logs/archive", map[string]any{"from": from, "to": to})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var result struct {
			Key      string `json:"key"`
			Location string `json:"location"`
			Entries  int    `json:"entries"`
		}
		decode(t, w, &result)
		assert.Equal(t, 1, result.Entries)
		assert.Equal(t, archiver.key, result.Key)
		assert.True(t, strings.HasPrefix(result.Location, "s3://audit/"))

		lines := bytes.Split(bytes.TrimSpace(archiver.body), []byte("\n"))
		require.Len(t, lines, 1)
		var entry map[string]any
		require.NoError(t, json.Unmarshal(lines[0], &entry))
		assert.Equal(t, "INC0010023", entry["external_id"])
		assert.Equal(t, env.orgID.String(), entry["organization_id"])
	})

	t.Run("inverted range", func(t *testing.T) {
		env := newHandlerEnv(t, withArchiver(&memoryArchiver{}))
		w := env.do(t, http.MethodPost, "/audit-logs/archive", map[string]any{
			"from": "2026-10-01T00:00:00Z",
			"to":   "2026-09-01T00:00:00Z",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestLogHandler_Stream(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		env := newHandlerEnv(t)
		w := env.do(t, http.MethodGet, "/events/stream", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("forwards recorded events", func(t *testing.T) {
		orgID := uuid.New()
		event := itsm.NewSyncEvent(orgID, itsm.PlatformJira, itsm.EventTypeTicketUpdated, itsm.SyncEventStatusSuccess)
		event.ExternalID = "SEC-12"
		sub := &replaySubscriber{events: []*itsm.SyncEventRecorded{itsm.NewSyncEventRecorded(event)}}

		env := newHandlerEnv(t, withSubscriber(sub))
		env.orgID = orgID
		w := env.do(t, http.MethodGet, "/events/stream", nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
		assert.Equal(t, orgID, sub.orgID)
		assert.True(t, sub.released, "the subscription is released when the stream ends")

		body := w.Body.String()
		assert.Contains(t, body, "event: connected\n")
		assert.Contains(t, body, "event: sync_event\nid: "+event.ID.String()+"\n")
		assert.Contains(t, body, `"external_id":"SEC-12"`)
	})
}
