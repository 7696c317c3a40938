package upstream

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownProvider is returned when neither a provider nor its fallback is registered.
var ErrUnknownProvider = errors.New("unknown predictor provider")

// Registry resolves forecaster providers to predictors. A provider may name
// a fallback used while its own breaker is open.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Predictor
	fallbacks map[string]string
	factory   func(provider string) Predictor
}

// NewRegistry creates a registry. factory, when non-nil, builds predictors
// for providers that were never registered explicitly.
func NewRegistry(fallbacks map[string]string, factory func(provider string) Predictor) *Registry {
	fb := make(map[string]string, len(fallbacks))
	for k, v := range fallbacks {
		if k != v {
			fb[k] = v
		}
	}
	return &Registry{providers: map[string]Predictor{}, fallbacks: fb, factory: factory}
}

// Register binds a predictor to a provider name.
func (r *Registry) Register(provider string, p Predictor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider] = p
}

// Lookup returns the predictor of provider.
func (r *Registry) Lookup(provider string) (Predictor, error) {
	r.mu.RLock()
	p, ok := r.providers[provider]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}
	if r.factory == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[provider]; ok {
		return p, nil
	}
	p = r.factory(provider)
	r.providers[provider] = p
	return p, nil
}

// Fallback returns the fallback provider name of provider, if any.
func (r *Registry) Fallback(provider string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fb, ok := r.fallbacks[provider]
	return fb, ok
}
