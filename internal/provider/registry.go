package provider

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/HanTheDev/content-gateway/internal/models"
)

// Registry holds the routable providers by name. Adding a backend means registering it here.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(p Provider) error {
	if p == nil {
		return errors.New("registry: nil provider")
	}
	name := p.Name()
	if name == "" || name == models.ProducedByFallback {
		return fmt.Errorf("registry: invalid provider name %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("registry: provider %q already registered", name)
	}
	r.providers[name] = p
	return nil
}

func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Providers returns every registered provider sorted by name.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Descriptors returns routing descriptors for every provider, sorted by name.
func (r *Registry) Descriptors() []models.ProviderDescriptor {
	ps := r.Providers()
	out := make([]models.ProviderDescriptor, 0, len(ps))
	for _, p := range ps {
		out = append(out, Describe(p))
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
