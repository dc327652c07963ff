package export

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mirrorlake/assetsync/pkg/remote"
	"github.com/mirrorlake/assetsync/pkg/syncerrors"
)

// Factory creates a processor for one asset type from the run's dependencies
type Factory func(deps Deps) *Processor

// Registry maps asset types to processor factories. Per-type strategies are
// selected through this dispatch table rather than virtual dispatch.
type Registry struct {
	factories map[remote.AssetType]Factory
	mu        sync.RWMutex
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new processor registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[remote.AssetType]Factory),
	}
}

// Register registers a processor factory for an asset type
func (r *Registry) Register(assetType remote.AssetType, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[assetType]; exists {
		return syncerrors.New(syncerrors.ErrorTypeConfig, fmt.Sprintf("processor for %s already registered", assetType))
	}

	r.factories[assetType] = factory
	return nil
}

// Create builds a processor for the asset type
func (r *Registry) Create(assetType remote.AssetType, deps Deps) (*Processor, error) {
	r.mu.RLock()
	factory, exists := r.factories[assetType]
	r.mu.RUnlock()

	if !exists {
		return nil, syncerrors.New(syncerrors.ErrorTypeConfig, fmt.Sprintf("no processor registered for %s", assetType))
	}

	return factory(deps), nil
}

// Types returns the registered asset types in stable order
func (r *Registry) Types() []remote.AssetType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]remote.AssetType, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Has checks whether a processor is registered for the asset type
func (r *Registry) Has(assetType remote.AssetType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[assetType]
	return exists
}

// Global registry functions

// Register registers a processor factory in the global registry
func Register(assetType remote.AssetType, factory Factory) error {
	return globalRegistry.Register(assetType, factory)
}

// Create builds a processor from the global registry
func Create(assetType remote.AssetType, deps Deps) (*Processor, error) {
	return globalRegistry.Create(assetType, deps)
}

// Types returns the asset types registered in the global registry
func Types() []remote.AssetType {
	return globalRegistry.Types()
}

// Has checks the global registry for an asset type
func Has(assetType remote.AssetType) bool {
	return globalRegistry.Has(assetType)
}
