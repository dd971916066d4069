// Package vulkan wraps exported VA surfaces as Vulkan images. It has no
// legacy path: devices without surface export cannot use it.
package vulkan

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"

	"github.com/smazurov/hwinterop/internal/hwdec/vaapi"
	"github.com/smazurov/hwinterop/internal/ra"
)

const (
	Name     = "vulkan"
	Priority = 20
)

func init() {
	vaapi.RegisterInterop(vaapi.InteropDriver{Name: Name, Priority: Priority, New: New})
}

type backend struct {
	importer ra.VulkanImporter
	logger   *slog.Logger
}

// New returns the Vulkan interop, or nil when the renderer is not Vulkan.
func New(r ra.Renderer, logger *slog.Logger) *vaapi.Interop {
	importer, ok := r.NativeResource(ra.ResourceVulkan).(ra.VulkanImporter)
	if !ok {
		return nil
	}
	b := &backend{importer: importer, logger: logger}
	return &vaapi.Interop{
		Name:   Name,
		Init:   b.init,
		Uninit: func(m *vaapi.Mapper) { m.SetInteropState(nil) },
		Map:    b.mapExport,
		Unmap:  func(m *vaapi.Mapper) { m.ReleaseTextures() },
	}
}

// init resolves the image format of every plane up front.
func (b *backend) init(m *vaapi.Mapper) error {
	desc := m.FormatDesc()
	formats := make([]gputypes.TextureFormat, desc.NumPlanes())
	for n, pf := range desc.Planes {
		if pf.Format == gputypes.TextureFormatUndefined {
			return fmt.Errorf("plane %d has no texture format", n)
		}
		formats[n] = pf.Format
	}
	m.SetInteropState(formats)
	return nil
}

func (b *backend) mapExport(m *vaapi.Mapper) error {
	formats, ok := m.InteropState().([]gputypes.TextureFormat)
	if !ok {
		return fmt.Errorf("mapper not initialized for %s", Name)
	}
	prime := m.Prime()
	for n := range m.NumPlanes() {
		layer, obj, err := prime.Plane(n)
		if err != nil {
			return err
		}
		w, h := m.PlaneSize(n)
		tex, err := b.importer.ImportDmabufImage(ra.VulkanDmabuf{
			DmabufPlane: ra.DmabufPlane{
				Width:     w,
				Height:    h,
				DRMFormat: layer.DRMFormat,
				FD:        obj.FD,
				Offset:    layer.Offset[0],
				Pitch:     layer.Pitch[0],
				Modifier:  obj.DRMFormatModifier,
			},
			Format: formats[n],
			Usage:  gputypes.TextureUsageTextureBinding,
		})
		if err != nil {
			b.logger.Debug("Vulkan image import failed", "plane", n, "format", layer.DRMFormat.String(), "error", err)
			return fmt.Errorf("plane %d: %w", n, err)
		}
		m.SetTexture(n, tex)
	}
	return nil
}
