package sources

import (
	"fmt"
	"sort"
	"sync"
)

// registryKey identifies an adapter factory by its family and name, so
// two families can each register an adapter called "coingecko" without
// colliding.
type registryKey struct {
	sourceType SourceType
	name       string
}

var (
	mu        sync.RWMutex
	factories = make(map[registryKey]SourceFactory)
)

// Register makes factory available under (sourceType, name). Adapter
// packages call it from init; a later registration under the same key
// replaces the earlier one.
func Register(sourceType SourceType, name string, factory SourceFactory) {
	mu.Lock()
	defer mu.Unlock()
	factories[registryKey{sourceType: sourceType, name: name}] = factory
}

// Create instantiates the adapter registered under (sourceType, name)
// with the given config map.
func Create(sourceType SourceType, name string, config map[string]interface{}) (Source, error) {
	mu.RLock()
	factory, ok := factories[registryKey{sourceType: sourceType, name: name}]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownSource, sourceType, name)
	}
	return factory(config)
}

// List returns the registered adapters as sorted "type.name" strings.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for key := range factories {
		names = append(names, fmt.Sprintf("%s.%s", key.sourceType, key.name))
	}
	sort.Strings(names)
	return names
}
