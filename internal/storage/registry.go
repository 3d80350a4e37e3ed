package storage

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a provider from its configured keyword arguments.
type Factory func(kwargs Kwargs) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a provider available under name. It panics on duplicates,
// since registration happens from init functions.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if factory == nil {
		panic("storage: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("storage: Register called twice for provider " + name)
	}
	registry[name] = factory
}

// New constructs the provider registered under name.
func New(name string, kwargs Kwargs) (Provider, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	p, err := factory(kwargs)
	if err != nil {
		return nil, fmt.Errorf("init %s provider: %w", name, err)
	}
	return p, nil
}

func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
