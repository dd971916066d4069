package vaapi

import (
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/smazurov/hwinterop/internal/hwdec/va"
	"github.com/smazurov/hwinterop/internal/ra"
)

// displayBackend creates a VA display from one kind of native resource.
// create returns nil when the renderer does not publish that resource or
// the runtime rejects it.
type displayBackend struct {
	name     string
	priority int
	create   func(r ra.Renderer, rt va.Runtime) va.Display
}

var (
	displayMu       sync.RWMutex
	displayBackends []displayBackend
)

func registerDisplay(b displayBackend) {
	displayMu.Lock()
	defer displayMu.Unlock()
	displayBackends = append(displayBackends, b)
	sort.SliceStable(displayBackends, func(i, j int) bool {
		return displayBackends[i].priority < displayBackends[j].priority
	})
}

// DisplayBackends lists the compiled-in display backends in the order they
// are tried.
func DisplayBackends() []string {
	displayMu.RLock()
	defer displayMu.RUnlock()
	names := make([]string, len(displayBackends))
	for i, b := range displayBackends {
		names[i] = b.name
	}
	return names
}

// ResolveDisplay tries each display backend in order and returns the first
// display along with the backend name. allow restricts the backends tried
// when non-empty.
func ResolveDisplay(r ra.Renderer, rt va.Runtime, allow []string, logger *slog.Logger) (va.Display, string, error) {
	displayMu.RLock()
	backends := slices.Clone(displayBackends)
	displayMu.RUnlock()

	for _, b := range backends {
		if len(allow) > 0 && !slices.Contains(allow, b.name) {
			continue
		}
		if d := b.create(r, rt); d != nil {
			logger.Debug("Created VA display", "backend", b.name, "vendor", d.Vendor(), "version", d.Version().String())
			return d, b.name, nil
		}
		logger.Debug("Display backend unavailable", "backend", b.name)
	}
	return nil, "", ErrNoDisplay
}
