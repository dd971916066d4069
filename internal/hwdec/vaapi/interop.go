package vaapi

import (
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/smazurov/hwinterop/internal/hwdec/va"
	"github.com/smazurov/hwinterop/internal/ra"
)

// Interop is a renderer-specific backend that wraps exported surfaces as
// textures. Map and Unmap are required. MapLegacy is optional and used only
// when surface export is unavailable. Init and Uninit manage per-mapper
// state and may be nil.
type Interop struct {
	Name string

	Init      func(m *Mapper) error
	Uninit    func(m *Mapper)
	Map       func(m *Mapper) error
	MapLegacy func(m *Mapper, buf va.BufferInfo, formats *LegacyFormatTable) error
	Unmap     func(m *Mapper)
}

func (i *Interop) complete() bool {
	return i != nil && i.Map != nil && i.Unmap != nil
}

// InteropDriver builds an Interop for a renderer. New returns nil when the
// renderer cannot host the backend.
type InteropDriver struct {
	Name     string
	Priority int
	New      func(r ra.Renderer, logger *slog.Logger) *Interop
}

var (
	interopMu      sync.RWMutex
	interopDrivers []InteropDriver
)

// RegisterInterop adds an interop backend. Lower priorities are tried first.
// Backends register from init.
func RegisterInterop(drv InteropDriver) {
	interopMu.Lock()
	defer interopMu.Unlock()
	for _, d := range interopDrivers {
		if d.Name == drv.Name {
			panic("vaapi: interop registered twice: " + drv.Name)
		}
	}
	interopDrivers = append(interopDrivers, drv)
	sort.SliceStable(interopDrivers, func(i, j int) bool {
		return interopDrivers[i].Priority < interopDrivers[j].Priority
	})
}

// InteropBackends lists the registered interop backends in selection order.
func InteropBackends() []string {
	interopMu.RLock()
	defer interopMu.RUnlock()
	names := make([]string, len(interopDrivers))
	for i, d := range interopDrivers {
		names[i] = d.Name
	}
	return names
}

// selectInterop returns the first backend whose constructor accepts the
// renderer and provides both Map and Unmap.
func selectInterop(r ra.Renderer, allow []string, logger *slog.Logger) (*Interop, error) {
	interopMu.RLock()
	drivers := slices.Clone(interopDrivers)
	interopMu.RUnlock()

	for _, drv := range drivers {
		if len(allow) > 0 && !slices.Contains(allow, drv.Name) {
			continue
		}
		ic := drv.New(r, logger.With("interop", drv.Name))
		if ic.complete() {
			if ic.Name == "" {
				ic.Name = drv.Name
			}
			return ic, nil
		}
		logger.Debug("Interop backend declined renderer", "interop", drv.Name)
	}
	logger.Debug("VAAPI hwdec only works with the EGL or Vulkan renderer backends")
	return nil, ErrNoInterop
}
