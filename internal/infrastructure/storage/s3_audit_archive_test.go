package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/config"
)

// fakeS3 records PUT requests made in path-style addressing
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	buckets map[string]bool
}

func newFakeS3(t *testing.T) (*fakeS3, *httptest.Server) {
	t.Helper()
	f := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}, buckets: map[string]bool{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		path := strings.TrimPrefix(r.URL.Path, "/")
		bucket, key, _ := strings.Cut(path, "/")
		switch {
		case r.Method == http.MethodHead && key == "":
			if !f.buckets[bucket] {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut && key == "":
			f.buckets[bucket] = true
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			f.objects[path] = body
			f.types[path] = r.Header.Get("Content-Type")
			w.Header().Set("ETag", `"etag"`)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestArchive(t *testing.T, endpoint string) *S3AuditArchive {
	t.Helper()
	archive, err := NewS3AuditArchive(&config.StorageConfig{
		Bucket:          "itsm-audit",
		Region:          "eu-west-2",
		Endpoint:        endpoint,
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		UsePathStyle:    true,
	}, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return archive
}

func TestNewS3AuditArchive_Validation(t *testing.T) {
	t.Run("nil config returns error", func(t *testing.T) {
		_, err := NewS3AuditArchive(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration is required")
	})

	t.Run("missing bucket returns error", func(t *testing.T) {
		_, err := NewS3AuditArchive(&config.StorageConfig{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("half a key pair returns error", func(t *testing.T) {
		_, err := NewS3AuditArchive(&config.StorageConfig{Bucket: "b", AccessKeyID: "only-id"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be set together")
	})

	t.Run("default credential chain without keys", func(t *testing.T) {
		archive, err := NewS3AuditArchive(&config.StorageConfig{Bucket: "itsm-audit"})
		require.NoError(t, err)
		assert.Equal(t, "itsm-audit", archive.Bucket())
	})
}

func TestS3AuditArchive_PutObject(t *testing.T) {
	fake, srv := newFakeS3(t)
	archive := newTestArchive(t, srv.URL)

	body := `{"action":"enqueue"}` + "\n" + `{"action":"retry"}` + "\n"
	location, err := archive.PutObject(context.Background(), "audit/org/range.jsonl", "application/x-ndjson", strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, "s3://itsm-audit/audit/org/range.jsonl", location)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, body, string(fake.objects["itsm-audit/audit/org/range.jsonl"]))
	assert.Equal(t, "application/x-ndjson", fake.types["itsm-audit/audit/org/range.jsonl"])
}

func TestS3AuditArchive_PutObject_RequiresKey(t *testing.T) {
	_, srv := newFakeS3(t)
	archive := newTestArchive(t, srv.URL)

	_, err := archive.PutObject(context.Background(), "", "application/x-ndjson", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key is required")
}

func TestS3AuditArchive_EnsureBucket(t *testing.T) {
	fake, srv := newFakeS3(t)
	archive := newTestArchive(t, srv.URL)

	require.NoError(t, archive.EnsureBucket(context.Background()))
	fake.mu.Lock()
	assert.True(t, fake.buckets["itsm-audit"])
	fake.mu.Unlock()

	require.NoError(t, archive.EnsureBucket(context.Background()), "an existing bucket is left alone")
}
