// Package egl wraps VA surfaces as textures through EGL dma-buf image
// import. It handles both exported surfaces and derived images.
//
// Importing the package registers the backend:
//
//	import _ "github.com/smazurov/hwinterop/internal/hwdec/interop/egl"
package egl

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/smazurov/hwinterop/internal/hwdec/va"
	"github.com/smazurov/hwinterop/internal/hwdec/vaapi"
	"github.com/smazurov/hwinterop/internal/ra"
)

const (
	Name     = "egl"
	Priority = 10
)

func init() {
	vaapi.RegisterInterop(vaapi.InteropDriver{Name: Name, Priority: Priority, New: New})
}

type backend struct {
	importer ra.DmabufImporter
	logger   *slog.Logger
}

// mapperState is kept per mapper between Init and Uninit.
type mapperState struct {
	planes int
}

// stateOf returns the state Init left on m.
func stateOf(m *vaapi.Mapper) (*mapperState, error) {
	st, ok := m.InteropState().(*mapperState)
	if !ok || st == nil {
		return nil, errors.New("egl interop not initialized for this mapper")
	}
	if st.planes != m.NumPlanes() {
		return nil, fmt.Errorf("mapper has %d planes, initialized for %d", m.NumPlanes(), st.planes)
	}
	return st, nil
}

// New returns the EGL interop, or nil when the renderer has no EGL importer.
func New(r ra.Renderer, logger *slog.Logger) *vaapi.Interop {
	importer, ok := r.NativeResource(ra.ResourceEGL).(ra.DmabufImporter)
	if !ok {
		return nil
	}
	b := &backend{importer: importer, logger: logger}
	return &vaapi.Interop{
		Name:      Name,
		Init:      b.init,
		Uninit:    b.uninit,
		Map:       b.mapExport,
		MapLegacy: b.mapLegacy,
		Unmap:     b.unmap,
	}
}

func (b *backend) init(m *vaapi.Mapper) error {
	desc := m.FormatDesc()
	if desc.NumPlanes() == 0 {
		return errors.New("format has no planes")
	}
	for n, pf := range desc.Planes {
		if pf.Components < 1 || pf.Components > 4 || pf.ComponentBytes < 1 || pf.ComponentBytes > 2 {
			return fmt.Errorf("plane %d: %d components of %d bytes cannot be imported", n, pf.Components, pf.ComponentBytes)
		}
	}
	m.SetInteropState(&mapperState{planes: desc.NumPlanes()})
	return nil
}

func (b *backend) uninit(m *vaapi.Mapper) {
	m.SetInteropState(nil)
}

func (b *backend) mapExport(m *vaapi.Mapper) error {
	st, err := stateOf(m)
	if err != nil {
		return err
	}
	prime := m.Prime()
	for n := range st.planes {
		layer, obj, err := prime.Plane(n)
		if err != nil {
			return err
		}
		w, h := m.PlaneSize(n)
		tex, err := b.importer.ImportDmabuf(ra.DmabufPlane{
			Width:     w,
			Height:    h,
			DRMFormat: layer.DRMFormat,
			FD:        obj.FD,
			Offset:    layer.Offset[0],
			Pitch:     layer.Pitch[0],
			Modifier:  obj.DRMFormatModifier,
		})
		if err != nil {
			return fmt.Errorf("plane %d: %w", n, err)
		}
		m.SetTexture(n, tex)
	}
	return nil
}

func (b *backend) mapLegacy(m *vaapi.Mapper, buf va.BufferInfo, formats *vaapi.LegacyFormatTable) error {
	st, err := stateOf(m)
	if err != nil {
		return err
	}
	img := m.Image()
	if img.NumPlanes < st.planes {
		return fmt.Errorf("derived image has %d planes, need %d", img.NumPlanes, st.planes)
	}
	for n, pf := range m.FormatDesc().Planes {
		code, err := formats.Lookup(pf.ComponentBytes, pf.Components)
		if err != nil {
			b.logger.Debug("No raw format for plane", "plane", n, "error", err)
			return fmt.Errorf("plane %d: %w", n, err)
		}
		w, h := m.PlaneSize(n)
		tex, err := b.importer.ImportDmabuf(ra.DmabufPlane{
			Width:     w,
			Height:    h,
			DRMFormat: code,
			FD:        int(buf.Handle),
			Offset:    img.Offsets[n],
			Pitch:     img.Pitches[n],
		})
		if err != nil {
			return fmt.Errorf("plane %d: %w", n, err)
		}
		m.SetTexture(n, tex)
	}
	return nil
}

func (b *backend) unmap(m *vaapi.Mapper) {
	m.ReleaseTextures()
}
