package runtime

import (
	"fmt"
	"sort"
	"sync"
)

// Factory is a function that creates a new Runtime
type Factory func(cfg *Config) (Runtime, error)

var (
	factoriesMu      sync.RWMutex
	runtimeFactories = make(map[string]Factory)
)

// Register registers a runtime factory
func Register(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if _, exists := runtimeFactories[name]; exists {
		panic(fmt.Sprintf("runtime %s already registered", name))
	}
	runtimeFactories[name] = factory
}

// NewRuntime creates a new Runtime for cfg.Type. A nil cfg selects the
// defaults.
func NewRuntime(cfg *Config) (Runtime, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.Default()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	factoriesMu.RLock()
	factory, ok := runtimeFactories[cfg.Type]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown runtime type: %s: %w", cfg.Type, ErrRuntimeNotFound)
	}

	return factory(cfg)
}

// List returns all registered runtime types in sorted order
func List() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	types := make([]string, 0, len(runtimeFactories))
	for t := range runtimeFactories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
