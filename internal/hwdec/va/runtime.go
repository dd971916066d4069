package va

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a runtime. profile is an optional runtime-specific
// configuration file.
type Factory func(profile string) (Runtime, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// Register makes a runtime available by name. Runtimes register from init.
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, dup := factories[name]; dup {
		panic("va: runtime registered twice: " + name)
	}
	factories[name] = f
}

// Open builds the named runtime.
func Open(name, profile string) (Runtime, error) {
	factoriesMu.RLock()
	f, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown VA runtime %q (available: %v)", name, Runtimes())
	}
	return f(profile)
}

// Runtimes lists the registered runtime names.
func Runtimes() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
