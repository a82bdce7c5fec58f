package sources

import (
	"fmt"
	"sort"
	"sync"

	"github.com/StrathCole/pyth-publisher/pkg/logging"
)

var (
	registry = make(map[string]SourceFactory)
	mu       sync.RWMutex
)

// Register adds a source factory to the registry under "type.name"
func Register(key string, factory SourceFactory) {
	mu.Lock()
	defer mu.Unlock()
	registry[key] = factory
}

// Create creates a new source instance by type and name
func Create(sourceType, name string, config map[string]interface{}, logger *logging.Logger) (Source, error) {
	mu.RLock()
	factory, ok := registry[fmt.Sprintf("%s.%s", sourceType, name)]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownSource, sourceType, name)
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	if config == nil {
		config = map[string]interface{}{}
	}

	return factory(name, config, logger.With("source", name))
}

// IsRegistered reports whether a factory exists for type and name
func IsRegistered(sourceType, name string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := registry[fmt.Sprintf("%s.%s", sourceType, name)]
	return ok
}

// List returns all registered source keys, sorted
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
