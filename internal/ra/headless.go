package ra

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/gputypes"
	"golang.org/x/sys/unix"

	"github.com/smazurov/hwinterop/internal/hwdec"
)

// HeadlessOptions configures a Headless renderer.
type HeadlessOptions struct {
	// EGL and Vulkan select which import paths the renderer publishes.
	EGL    bool
	Vulkan bool
	// RenderFD is published as DRMParams when non-negative.
	RenderFD int
	// X11 and Wayland are opaque window-system handles, published when set.
	X11     any
	Wayland any
	// Formats overrides StandardFormats.
	Formats map[hwdec.ImageFormat]ImageFormatDesc
	// RejectDRMFormats makes imports of these plane formats fail.
	RejectDRMFormats []hwdec.FourCC
}

// Headless is a renderer without a window. Imports validate the dma-buf
// against the file behind it and produce bookkeeping textures.
type Headless struct {
	opts HeadlessOptions

	mu       sync.Mutex
	live     int
	imported int
}

// NewHeadless creates a headless renderer.
func NewHeadless(opts HeadlessOptions) *Headless {
	if opts.Formats == nil {
		opts.Formats = StandardFormats()
	}
	return &Headless{opts: opts}
}

func (h *Headless) NativeResource(name string) any {
	switch name {
	case ResourceX11:
		return h.opts.X11
	case ResourceWayland:
		return h.opts.Wayland
	case ResourceDRMParams:
		if h.opts.RenderFD < 0 {
			return nil
		}
		return &DRMParams{RenderFD: h.opts.RenderFD}
	case ResourceEGL:
		if h.opts.EGL {
			return DmabufImporter(h)
		}
	case ResourceVulkan:
		if h.opts.Vulkan {
			return VulkanImporter(headlessVulkan{h})
		}
	}
	return nil
}

func (h *Headless) ImageFormatDesc(f hwdec.ImageFormat) (ImageFormatDesc, bool) {
	desc, ok := h.opts.Formats[f]
	return desc, ok
}

// Live returns the number of textures not yet released.
func (h *Headless) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.live
}

// Imported returns the number of successful imports.
func (h *Headless) Imported() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.imported
}

func (h *Headless) ImportDmabuf(p DmabufPlane) (Texture, error) {
	return h.importPlane(p, TextureFormatForDRM(p.DRMFormat), gputypes.TextureUsageTextureBinding)
}

func (h *Headless) importPlane(p DmabufPlane, format gputypes.TextureFormat, usage gputypes.TextureUsage) (Texture, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("import dma-buf: invalid size %dx%d", p.Width, p.Height)
	}
	if p.Pitch == 0 {
		return nil, errors.New("import dma-buf: zero pitch")
	}
	if slices.Contains(h.opts.RejectDRMFormats, p.DRMFormat) {
		return nil, fmt.Errorf("import dma-buf: unsupported format %s", p.DRMFormat)
	}
	if format == gputypes.TextureFormatUndefined {
		return nil, fmt.Errorf("import dma-buf: no texture format for %s", p.DRMFormat)
	}

	var st unix.Stat_t
	if err := unix.Fstat(p.FD, &st); err != nil {
		return nil, fmt.Errorf("import dma-buf: fd %d: %w", p.FD, err)
	}
	end := int64(p.Offset) + int64(p.Pitch)*int64(p.Height)
	if st.Size > 0 && end > st.Size {
		return nil, fmt.Errorf("import dma-buf: plane ends at %d, buffer holds %d bytes", end, st.Size)
	}

	h.mu.Lock()
	h.live++
	h.imported++
	h.mu.Unlock()

	return &headlessTexture{
		owner: h,
		params: TextureParams{
			Width:     p.Width,
			Height:    p.Height,
			Format:    format,
			Usage:     usage,
			DRMFormat: p.DRMFormat,
			Offset:    p.Offset,
			Pitch:     p.Pitch,
		},
	}, nil
}

type headlessVulkan struct {
	h *Headless
}

func (v headlessVulkan) ImportDmabufImage(img VulkanDmabuf) (Texture, error) {
	return v.h.importPlane(img.DmabufPlane, img.Format, img.Usage)
}

type headlessTexture struct {
	owner    *Headless
	params   TextureParams
	released bool
}

func (t *headlessTexture) Params() TextureParams {
	return t.params
}

func (t *headlessTexture) Release() {
	if t.released {
		return
	}
	t.released = true
	t.owner.mu.Lock()
	t.owner.live--
	t.owner.mu.Unlock()
}
