package store

import (
	"sort"
	"sync"
)

// AdapterInfo describes a registered store adapter.
type AdapterInfo struct {
	Type        string // "sqlite", "postgres", "sqlserver", "mysql"
	DisplayName string
	Description string
}

// Registration contains info and the dialect for a store type.
type Registration struct {
	Info    AdapterInfo
	Dialect Dialect
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Registration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters, sorted by type.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetDialect returns the dialect for a store type, or nil if not registered.
func GetDialect(storeType string) Dialect {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[storeType]; ok {
		return reg.Dialect
	}
	return nil
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(storeType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[storeType]
	return ok
}
