package cache

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// DriverFactory creates a cache instance from its raw option section.
type DriverFactory func(opts map[string]any, logger *slog.Logger) (Cache, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]DriverFactory)
)

// RegisterDriver registers a cache driver factory by name. Called
// from init() in driver packages.
func RegisterDriver(name string, factory DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// New creates a cache by driver name. An empty name selects memory.
func New(name string, opts map[string]any, logger *slog.Logger) (Cache, error) {
	if name == "" {
		name = "memory"
	}

	driversMu.RLock()
	factory, ok := drivers[name]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown cache driver %q (available: %v)", name, AvailableDrivers())
	}
	return factory(opts, logger)
}

// AvailableDrivers returns the sorted list of registered driver names.
func AvailableDrivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
