package catalog

import (
	"fmt"
	"sort"
	"sync"
)

// TableConfig binds a source code to its target table: the insert column
// order, the composite unique key, and whether the source accumulates
// multiple file parts per version.
type TableConfig struct {
	SourceCode string
	Table      string   // schema-qualified target table, e.g. "cms.ncci_ptp"
	Columns    []string // insert order, excluding data_version_id
	UniqueKeys []string // composite unique key within one version
	MultiPart  bool     // versions accept appended parts
	Variants   []string // allowed variant values, empty when the source has none
}

var (
	registry   = make(map[string]TableConfig)
	registryMu sync.RWMutex
)

// Register adds a table configuration to the registry.
// Panics if the source code is already registered.
func Register(cfg TableConfig) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[cfg.SourceCode]; exists {
		panic(fmt.Sprintf("table config already registered: %s", cfg.SourceCode))
	}
	registry[cfg.SourceCode] = cfg
}

// Config returns the table configuration for a source code.
// Returns false if not found.
func Config(sourceCode string) (TableConfig, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	cfg, ok := registry[sourceCode]
	return cfg, ok
}

// AllConfigs returns every registered configuration sorted by source code.
func AllConfigs() []TableConfig {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]TableConfig, 0, len(registry))
	for _, cfg := range registry {
		result = append(result, cfg)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SourceCode < result[j].SourceCode
	})
	return result
}

// ConfigCount returns the number of registered table configurations.
func ConfigCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// ClearConfigs removes all registered configurations.
// Primarily useful for testing.
func ClearConfigs() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]TableConfig)
}
