package registry

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/charmbracelet/log"

	"openrouter-gateway/pkg/upstream"
)

const defaultCatalogTTL = 10 * time.Minute

// Capabilities is the read-only model metadata the validator consumes.
type Capabilities struct {
	ID                  string   `json:"id"`
	InputModalities     []string `json:"input_modalities"`
	OutputModalities    []string `json:"output_modalities"`
	SupportedParameters []string `json:"supported_parameters,omitempty"`
	ContextLength       int      `json:"context_length,omitempty"`
}

// Provider resolves model capabilities. Absence means "unknown model" and the
// validator stays permissive; that policy lives with the caller, not here.
type Provider interface {
	Capabilities(model string) (Capabilities, bool)
}

// CatalogFetcher is the slice of the upstream client the registry needs.
type CatalogFetcher interface {
	ListModels(ctx context.Context) ([]upstream.Model, error)
}

// Registry caches the upstream model catalog in memory with a TTL and
// persists a JSON snapshot so the gateway can serve /v1/models while the
// aggregation API is unreachable.
type Registry struct {
	fetcher      CatalogFetcher
	snapshotPath string
	ttl          time.Duration
	now          func() time.Time

	mu        sync.Mutex // serializes refresh
	catalog   atomic.Pointer[[]upstream.Model]
	byID      atomic.Pointer[map[string]Capabilities]
	fetchedAt atomic.Pointer[time.Time]
}

func New(fetcher CatalogFetcher, snapshotPath string, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = defaultCatalogTTL
	}
	r := &Registry{
		fetcher:      fetcher,
		snapshotPath: strings.TrimSpace(snapshotPath),
		ttl:          ttl,
		now:          time.Now,
	}
	r.loadSnapshot()
	return r
}

// Models returns the catalog, refreshing from upstream when the cache is
// stale. A failed refresh falls back to the last known catalog if there is
// one.
func (r *Registry) Models(ctx context.Context) ([]upstream.Model, error) {
	if models, ok := r.cached(); ok {
		return models, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if models, ok := r.cached(); ok {
		return models, nil
	}

	models, err := r.fetcher.ListModels(ctx)
	if err != nil {
		if stale := r.catalog.Load(); stale != nil {
			log.Warn("model catalog refresh failed, serving stale snapshot", "err", err)
			return *stale, nil
		}
		return nil, err
	}
	r.store(models, true)
	return models, nil
}

// Capabilities resolves one model from the last known catalog. It never
// triggers a fetch; chat-completion latency must not depend on catalog
// freshness.
func (r *Registry) Capabilities(model string) (Capabilities, bool) {
	idx := r.byID.Load()
	if idx == nil {
		return Capabilities{}, false
	}
	caps, ok := (*idx)[strings.TrimSpace(model)]
	return caps, ok
}

func (r *Registry) cached() ([]upstream.Model, bool) {
	models := r.catalog.Load()
	fetched := r.fetchedAt.Load()
	if models == nil || fetched == nil {
		return nil, false
	}
	if r.now().Sub(*fetched) > r.ttl {
		return nil, false
	}
	return *models, true
}

func (r *Registry) store(models []upstream.Model, persist bool) {
	cp := append([]upstream.Model(nil), models...)
	idx := make(map[string]Capabilities, len(cp))
	for _, m := range cp {
		idx[m.ID] = Capabilities{
			ID:                  m.ID,
			InputModalities:     m.Architecture.InputModalities,
			OutputModalities:    m.Architecture.OutputModalities,
			SupportedParameters: m.SupportedParameters,
			ContextLength:       m.ContextLength,
		}
	}
	now := r.now()
	r.catalog.Store(&cp)
	r.byID.Store(&idx)
	r.fetchedAt.Store(&now)
	if persist && r.snapshotPath != "" {
		if err := writeSnapshot(r.snapshotPath, cp); err != nil {
			log.Warn("failed to persist model snapshot", "err", err)
		}
	}
}

func (r *Registry) loadSnapshot() {
	if r.snapshotPath == "" {
		return
	}
	models, err := readSnapshot(r.snapshotPath)
	if err != nil || len(models) == 0 {
		return
	}
	// Snapshot counts as already stale so the first Models call refreshes,
	// but Capabilities lookups work immediately.
	cp := append([]upstream.Model(nil), models...)
	idx := make(map[string]Capabilities, len(cp))
	for _, m := range cp {
		idx[m.ID] = Capabilities{
			ID:                  m.ID,
			InputModalities:     m.Architecture.InputModalities,
			OutputModalities:    m.Architecture.OutputModalities,
			SupportedParameters: m.SupportedParameters,
			ContextLength:       m.ContextLength,
		}
	}
	r.catalog.Store(&cp)
	r.byID.Store(&idx)
}
