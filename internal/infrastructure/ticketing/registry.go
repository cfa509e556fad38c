package ticketing

import (
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
)

// Registry holds the adapters and webhook normalizers per platform
type Registry struct {
	mu          sync.RWMutex
	adapters    map[itsm.Platform]itsm.PlatformAdapter
	normalizers map[itsm.Platform]itsm.InboundNormalizer
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		adapters:    make(map[itsm.Platform]itsm.PlatformAdapter),
		normalizers: make(map[itsm.Platform]itsm.InboundNormalizer),
	}
}

// NewDefaultRegistry registers the ServiceNow and Jira adapters and normalizers
func NewDefaultRegistry(timeout time.Duration, credentials CredentialResolver, logger *zap.Logger) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	r := NewRegistry()
	r.RegisterAdapter(NewServiceNowAdapter(httpClient, credentials, logger))
	r.RegisterAdapter(NewJiraAdapter(httpClient, credentials, logger))
	r.RegisterNormalizer(NewServiceNowNormalizer())
	r.RegisterNormalizer(NewJiraNormalizer())
	return r
}

// RegisterAdapter adds or replaces the adapter of its platform
func (r *Registry) RegisterAdapter(a itsm.PlatformAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Platform()] = a
}

// RegisterNormalizer adds or replaces the normalizer of its platform
func (r *Registry) RegisterNormalizer(n itsm.InboundNormalizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.normalizers[n.Platform()] = n
}

// Adapter returns the adapter of a platform
func (r *Registry) Adapter(platform itsm.Platform) (itsm.PlatformAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[platform]
	if !ok {
		return nil, itsm.ErrAdapterNotFound
	}
	return a, nil
}

// Normalizer returns the webhook normalizer of a platform
func (r *Registry) Normalizer(platform itsm.Platform) (itsm.InboundNormalizer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.normalizers[platform]
	if !ok {
		return nil, itsm.ErrNormalizerNotFound
	}
	return n, nil
}

var (
	_ itsm.AdapterRegistry    = (*Registry)(nil)
	_ itsm.NormalizerRegistry = (*Registry)(nil)
)
