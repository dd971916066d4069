// Package va describes the VA-API runtime as the interop core sees it. The
// native library sits behind Runtime, Display and Device so that a cgo
// binding, a remote driver or the software runtime can plug in.
package va

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/smazurov/hwinterop/internal/hwdec"
)

type (
	ImageID  uint32
	BufferID uint32
)

// InvalidID marks an unset image or buffer id.
const InvalidID = 0xffffffff

const (
	InvalidImage  ImageID  = InvalidID
	InvalidBuffer BufferID = InvalidID
)

// Surface memory types.
const (
	MemTypeDRMPrime  uint32 = 0x20000000
	MemTypeDRMPrime2 uint32 = 0x40000000
)

// ExportSurfaceHandle flags.
const (
	ExportReadOnly       uint32 = 0x0001
	ExportWriteOnly      uint32 = 0x0002
	ExportReadWrite      uint32 = 0x0003
	ExportSeparateLayers uint32 = 0x0004
	ExportComposedLayers uint32 = 0x0008
)

// MaxPlanes is the per-layer plane limit of a DRM PRIME descriptor.
const MaxPlanes = 4

// PrimeObject is one exported dma-buf.
type PrimeObject struct {
	FD                int
	Size              uint32
	DRMFormatModifier uint64
}

// PrimeLayer is one plane group. With separate layers each layer holds a
// single plane.
type PrimeLayer struct {
	DRMFormat   hwdec.FourCC
	NumPlanes   int
	ObjectIndex [MaxPlanes]int
	Offset      [MaxPlanes]uint32
	Pitch       [MaxPlanes]uint32
}

// PrimeDescriptor is the result of a surface export. The caller owns every
// object file descriptor.
type PrimeDescriptor struct {
	FourCC  hwdec.FourCC
	Width   int
	Height  int
	Objects []PrimeObject
	Layers  []PrimeLayer
}

// Plane returns the layout and backing object of layer n of a descriptor
// exported with separate layers.
func (p *PrimeDescriptor) Plane(n int) (PrimeLayer, PrimeObject, error) {
	if n < 0 || n >= len(p.Layers) {
		return PrimeLayer{}, PrimeObject{}, fmt.Errorf("layer %d out of range (%d layers)", n, len(p.Layers))
	}
	layer := p.Layers[n]
	if layer.NumPlanes != 1 {
		return PrimeLayer{}, PrimeObject{}, fmt.Errorf("layer %d has %d planes, want 1", n, layer.NumPlanes)
	}
	idx := layer.ObjectIndex[0]
	if idx < 0 || idx >= len(p.Objects) {
		return PrimeLayer{}, PrimeObject{}, fmt.Errorf("layer %d references object %d of %d", n, idx, len(p.Objects))
	}
	return layer, p.Objects[idx], nil
}

// ImageFormat is the fourcc of a derived image.
type ImageFormat struct {
	FourCC       hwdec.FourCC
	BitsPerPixel int
}

// Image is a CPU-addressable view of a surface created by DeriveImage.
type Image struct {
	ID        ImageID
	Buf       BufferID
	Format    ImageFormat
	Width     int
	Height    int
	NumPlanes int
	Pitches   [3]uint32
	Offsets   [3]uint32
	DataSize  uint32
}

// BufferInfo is filled by AcquireBufferHandle. For DRM PRIME buffers Handle
// is a file descriptor owned by the buffer.
type BufferInfo struct {
	Handle  uintptr
	Type    uint32
	MemType uint32
	MemSize uint32
}

// Version is a VA-API version.
type Version struct {
	Major int
	Minor int
}

// AtLeast reports whether v is major.minor or newer.
func (v Version) AtLeast(major, minor int) bool {
	return v.Major > major || (v.Major == major && v.Minor >= minor)
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// ParseVersion parses "major.minor".
func ParseVersion(s string) (Version, error) {
	var v Version
	if _, err := fmt.Sscanf(s, "%d.%d", &v.Major, &v.Minor); err != nil {
		return Version{}, fmt.Errorf("invalid VA-API version %q: %w", s, err)
	}
	return v, nil
}

// Display is an initialized VA display.
type Display interface {
	Vendor() string
	Version() Version
	ExportSurfaceHandle(surface uint32, memType, flags uint32) (PrimeDescriptor, error)
	SyncSurface(surface uint32) error
	DeriveImage(surface uint32) (Image, error)
	AcquireBufferHandle(buf BufferID, info *BufferInfo) error
	ReleaseBufferHandle(buf BufferID) error
	DestroyImage(id ImageID) error
	Terminate() error
}

// FramesConstraints lists what a device can allocate.
type FramesConstraints struct {
	ValidSWFormats []hwdec.ImageFormat
}

// FramePoolConfig describes a frame pool. Format is the hardware format.
type FramePoolConfig struct {
	Format   hwdec.ImageFormat
	SWFormat hwdec.ImageFormat
	Width    int
	Height   int
}

// FramePool allocates hardware surfaces of one configuration.
type FramePool interface {
	GetSurface() (*hwdec.Surface, error)
	Close() error
}

// Device is the hardware device wrapping a display.
type Device interface {
	FramesConstraints() (*FramesConstraints, error)
	NewFramePool(cfg FramePoolConfig) (FramePool, error)
}

// Context pairs a display with the hardware device created on it. Device is
// nil when the runtime refused the driver.
type Context struct {
	Display Display
	Device  Device
}

// Close releases the device and then terminates the display.
func (c *Context) Close() error {
	var errs []error
	if closer, ok := c.Device.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	if c.Display != nil {
		errs = append(errs, c.Display.Terminate())
	}
	return errors.Join(errs...)
}

// Runtime creates displays from native window-system handles and device
// contexts on them. A nil Display means the handle was not usable.
type Runtime interface {
	Name() string
	DisplayFromX11(native any) Display
	DisplayFromWayland(native any) Display
	DisplayFromDRM(renderFD int) Display
	NewContext(d Display) (*Context, error)
}

var emulatedVendors = []string{
	"vdpau backend",
	"splitted-desktop systems",
	"emulated",
}

// GuessIfEmulated reports whether the display is a translation layer over
// another API rather than a native driver.
func GuessIfEmulated(d Display) bool {
	vendor := strings.ToLower(d.Vendor())
	for _, s := range emulatedVendors {
		if strings.Contains(vendor, s) {
			return true
		}
	}
	return false
}
