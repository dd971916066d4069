// Package ra is the renderer boundary seen by hardware interop: native
// resources published by the renderer, per-format plane layouts, and the
// dma-buf import entry points used to wrap decoded surfaces as textures.
package ra

import (
	"github.com/gogpu/gputypes"

	"github.com/smazurov/hwinterop/internal/hwdec"
)

// Native resource names.
const (
	ResourceX11       = "x11"
	ResourceWayland   = "wl"
	ResourceDRMParams = "drm_params"
	ResourceEGL       = "egl"
	ResourceVulkan    = "vulkan"
)

// DRMParams is published under ResourceDRMParams by renderers that own a
// DRM render node. A negative RenderFD means none.
type DRMParams struct {
	RenderFD int
}

// PlaneFormat describes one texture plane of an image format.
type PlaneFormat struct {
	Components     int
	ComponentBytes int
	Format         gputypes.TextureFormat
	// XShift and YShift are the log2 chroma subsampling factors.
	XShift uint
	YShift uint
}

// ImageFormatDesc is the renderer's plane layout for an image format.
type ImageFormatDesc struct {
	Planes []PlaneFormat
}

func (d ImageFormatDesc) NumPlanes() int {
	return len(d.Planes)
}

// PlaneSize returns the size of plane n for a w×h image, rounding up.
func (d ImageFormatDesc) PlaneSize(n, w, h int) (int, int) {
	p := d.Planes[n]
	return shiftCeil(w, p.XShift), shiftCeil(h, p.YShift)
}

func shiftCeil(v int, shift uint) int {
	return (v + (1 << shift) - 1) >> shift
}

// Renderer is the GPU rendering abstraction the interop attaches to.
type Renderer interface {
	// NativeResource returns nil when the renderer does not publish name.
	NativeResource(name string) any
	ImageFormatDesc(f hwdec.ImageFormat) (ImageFormatDesc, bool)
}

// TextureParams describes a texture created from an imported plane.
type TextureParams struct {
	Width     int
	Height    int
	Format    gputypes.TextureFormat
	Usage     gputypes.TextureUsage
	DRMFormat hwdec.FourCC
	Offset    uint32
	Pitch     uint32
}

// Texture is a renderer-owned texture.
type Texture interface {
	Params() TextureParams
	Release()
}

// DmabufPlane is a single-plane dma-buf import request.
type DmabufPlane struct {
	Width     int
	Height    int
	DRMFormat hwdec.FourCC
	FD        int
	Offset    uint32
	Pitch     uint32
	Modifier  uint64
}

// DmabufImporter is published under ResourceEGL.
type DmabufImporter interface {
	ImportDmabuf(p DmabufPlane) (Texture, error)
}

// VulkanDmabuf is a Vulkan image import request.
type VulkanDmabuf struct {
	DmabufPlane
	Format gputypes.TextureFormat
	Usage  gputypes.TextureUsage
}

// VulkanImporter is published under ResourceVulkan.
type VulkanImporter interface {
	ImportDmabufImage(img VulkanDmabuf) (Texture, error)
}
