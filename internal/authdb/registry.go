package authdb

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// DriverConfig holds driver selection and the raw option section the
// selected driver decodes for itself.
type DriverConfig struct {
	// Driver is the driver name: gorm, static.
	Driver string

	// Options is the raw [authdb.drivers.<name>] section.
	Options map[string]any

	// Logger is handed to the driver; nil means discard.
	Logger *slog.Logger
}

// DriverFactory creates a driver instance.
type DriverFactory func(cfg *DriverConfig) (Driver, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]DriverFactory)
)

// Register registers a driver factory by name. Called from init() in
// driver packages.
func Register(name string, factory DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// New creates a driver instance based on the configuration.
func New(cfg *DriverConfig) (Driver, error) {
	driversMu.RLock()
	factory, ok := drivers[cfg.Driver]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown authdb driver %q (available: %v)", cfg.Driver, AvailableDrivers())
	}
	return factory(cfg)
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
