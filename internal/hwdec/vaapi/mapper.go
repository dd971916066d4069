package vaapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/smazurov/hwinterop/internal/hwdec"
	"github.com/smazurov/hwinterop/internal/hwdec/va"
	"github.com/smazurov/hwinterop/internal/metrics"
	"github.com/smazurov/hwinterop/internal/ra"
)

// MapperState is the lifecycle state of a Mapper.
type MapperState int

const (
	MapperUninitialized MapperState = iota
	MapperInitialized
	MapperMapped
	MapperDestroyed
)

func (s MapperState) String() string {
	switch s {
	case MapperUninitialized:
		return "uninitialized"
	case MapperInitialized:
		return "initialized"
	case MapperMapped:
		return "mapped"
	case MapperDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Protocol is the path a surface was mapped through.
type Protocol string

const (
	ProtocolNone   Protocol = ""
	ProtocolExport Protocol = "export"
	ProtocolLegacy Protocol = "legacy"
)

// Resources reports which native resources a mapper currently holds.
type Resources struct {
	ExportedSurface bool
	BufferHandle    bool
	DerivedImage    bool
}

// Mapper maps one hardware surface at a time into per-plane textures.
type Mapper struct {
	dev    *Device
	logger *slog.Logger
	state  MapperState

	src  hwdec.ImageParams
	dst  hwdec.ImageParams
	desc ra.ImageFormatDesc

	tex          []ra.Texture
	interopState any

	surface  *hwdec.Surface
	protocol Protocol

	prime           va.PrimeDescriptor
	surfaceAcquired bool
	image           va.Image
	bufferAcquired  bool
}

// NewMapper returns an uninitialized mapper for surfaces with params.
func (d *Device) NewMapper(params hwdec.ImageParams) *Mapper {
	return &Mapper{
		dev:    d,
		logger: d.logger.With("format", params.HWSubFormat.String()),
		src:    params,
		image:  va.Image{ID: va.InvalidImage, Buf: va.InvalidBuffer},
	}
}

// CreateMapper returns an initialized mapper. A mapper whose Init failed is
// destroyed before returning the error.
func (d *Device) CreateMapper(params hwdec.ImageParams) (*Mapper, error) {
	if d.closed {
		return nil, ErrClosed
	}
	m := d.NewMapper(params)
	if err := m.Init(); err != nil {
		m.Destroy()
		return nil, err
	}
	return m, nil
}

// Init derives the destination parameters, sets up the interop state and
// verifies the format against the device's published set.
func (m *Mapper) Init() error {
	if m.state != MapperUninitialized {
		return fmt.Errorf("%w: init in state %s", ErrInvalidState, m.state)
	}
	if !m.src.Valid() || !m.src.Format.IsHW() {
		return fmt.Errorf("%w: %s is not a hardware image", ErrUnsupportedFormat, m.src)
	}

	m.dst = m.src
	m.dst.Format = m.src.HWSubFormat
	m.dst.HWSubFormat = hwdec.FormatNone

	desc, ok := m.dev.renderer.ImageFormatDesc(m.dst.Format)
	if !ok {
		m.log("Unsupported format for the renderer", "format", m.dst.Format.String())
		return fmt.Errorf("%w: renderer has no layout for %s", ErrUnsupportedFormat, m.dst.Format)
	}
	m.desc = desc
	m.tex = make([]ra.Texture, desc.NumPlanes())

	if init := m.dev.interop.Init; init != nil {
		if err := init(m); err != nil {
			return fmt.Errorf("interop %s init: %w", m.dev.interop.Name, err)
		}
	}

	if !m.dev.probingFormats && !m.dev.formats.Contains(m.dst.Format) {
		m.logger.Error("Unsupported VA image format", "format", m.dst.Format.String())
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, m.dst.Format)
	}

	m.state = MapperInitialized
	return nil
}

// Map makes the textures show surface. The mapper must be initialized and
// not mapped.
func (m *Mapper) Map(surface *hwdec.Surface) error {
	if m.state != MapperInitialized {
		return fmt.Errorf("%w: map in state %s", ErrInvalidState, m.state)
	}
	if surface == nil {
		return errors.New("vaapi: nil surface")
	}

	m.surface = surface
	protocol, err := m.mapSurface()
	if !m.dev.probingFormats {
		metrics.RecordMap(m.dev.id, string(protocol), err == nil)
	}
	if err != nil {
		m.surface = nil
		m.log("Mapping VAAPI surface failed", "surface", surface.ID, "error", err)
		return err
	}

	m.protocol = protocol
	m.state = MapperMapped
	return nil
}

func (m *Mapper) mapSurface() (Protocol, error) {
	if m.dev.exportAvailable() {
		err := m.mapExport()
		if err == nil {
			m.dev.markExportSupported()
			return ProtocolExport, nil
		}
		if !errors.Is(err, errExportUnimplemented) {
			return ProtocolExport, err
		}
	}
	return ProtocolLegacy, m.mapLegacy()
}

func (m *Mapper) mapExport() error {
	display := m.dev.ctx.Display
	id := m.surface.ID

	if err := display.SyncSurface(id); err != nil {
		m.logAt(slog.LevelWarn, "vaSyncSurface failed", "surface", id, "error", err)
	}

	prime, err := display.ExportSurfaceHandle(id, va.MemTypeDRMPrime2, va.ExportReadOnly|va.ExportSeparateLayers)
	if err != nil {
		if errors.Is(err, va.StatusUnimplemented) {
			// the map continues on the legacy path, so this is the only report
			m.log("vaExportSurfaceHandle failed", "surface", id, "error", err)
			m.dev.latchExportUnsupported()
			return errExportUnimplemented
		}
		return fmt.Errorf("vaExportSurfaceHandle on surface %d: %w", id, err)
	}
	m.prime = prime
	m.surfaceAcquired = true

	if err := m.dev.interop.Map(m); err != nil {
		m.release()
		return fmt.Errorf("interop %s map: %w", m.dev.interop.Name, err)
	}

	if prime.FourCC == hwdec.FourCCYV12 {
		m.swapChromaPlanes()
	}
	return nil
}

func (m *Mapper) mapLegacy() error {
	if m.dev.interop.MapLegacy == nil {
		return fmt.Errorf("interop %s cannot map derived images", m.dev.interop.Name)
	}
	display := m.dev.ctx.Display
	id := m.surface.ID

	img, err := display.DeriveImage(id)
	if err != nil {
		m.release()
		return fmt.Errorf("derive image from surface %d: %w", id, err)
	}
	m.image = img

	info := va.BufferInfo{MemType: va.MemTypeDRMPrime}
	if err := display.AcquireBufferHandle(img.Buf, &info); err != nil {
		m.release()
		return fmt.Errorf("acquire buffer handle: %w", err)
	}
	m.bufferAcquired = true

	if err := m.dev.interop.MapLegacy(m, info, LegacyFormats); err != nil {
		m.release()
		return fmt.Errorf("interop %s legacy map: %w", m.dev.interop.Name, err)
	}

	if img.Format.FourCC == hwdec.FourCCYV12 {
		m.swapChromaPlanes()
	}
	return nil
}

// swapChromaPlanes turns YV12's Y,V,U plane order into Y,U,V.
func (m *Mapper) swapChromaPlanes() {
	if len(m.tex) >= 3 {
		m.tex[1], m.tex[2] = m.tex[2], m.tex[1]
	}
}

// Unmap releases everything the last Map acquired. It is safe to call in
// any state and more than once.
func (m *Mapper) Unmap() {
	m.release()
	if m.state == MapperMapped {
		m.state = MapperInitialized
	}
	m.surface = nil
	m.protocol = ProtocolNone
}

// release undoes a map: interop first, then exported handles, the buffer
// handle and the derived image.
func (m *Mapper) release() {
	if m.dev.interop != nil && m.dev.interop.Unmap != nil {
		m.dev.interop.Unmap(m)
	}
	m.releaseNative()
}

func (m *Mapper) releaseNative() {
	display := m.dev.ctx.Display

	if m.surfaceAcquired {
		for _, obj := range m.prime.Objects {
			if err := unix.Close(obj.FD); err != nil {
				m.logger.Warn("Failed to close exported dma-buf", "fd", obj.FD, "error", err)
			}
		}
		m.prime = va.PrimeDescriptor{}
		m.surfaceAcquired = false
	}

	if m.bufferAcquired {
		if err := display.ReleaseBufferHandle(m.image.Buf); err != nil {
			m.logger.Error("vaReleaseBufferHandle failed", "buffer", m.image.Buf, "error", err)
		}
		m.bufferAcquired = false
	}

	if m.image.ID != va.InvalidImage {
		if err := display.DestroyImage(m.image.ID); err != nil {
			m.logger.Error("vaDestroyImage failed", "image", m.image.ID, "error", err)
		}
		m.image = va.Image{ID: va.InvalidImage, Buf: va.InvalidBuffer}
	}
}

// Uninit releases interop state. A mapped mapper must be unmapped first.
func (m *Mapper) Uninit() error {
	switch m.state {
	case MapperDestroyed:
		return nil
	case MapperMapped:
		return fmt.Errorf("%w: uninit while mapped", ErrInvalidState)
	}
	if m.dev.interop != nil && m.dev.interop.Uninit != nil {
		m.dev.interop.Uninit(m)
	}
	m.interopState = nil
	m.tex = nil
	m.state = MapperDestroyed
	return nil
}

// Destroy unmaps if needed and uninitializes. Safe to call more than once.
func (m *Mapper) Destroy() {
	m.Unmap()
	m.Uninit()
}

// log reports at error level, or debug level while probing formats.
func (m *Mapper) log(msg string, args ...any) {
	m.logAt(slog.LevelError, msg, args...)
}

// logAt reports at level, or debug level while probing formats.
func (m *Mapper) logAt(level slog.Level, msg string, args ...any) {
	if m.dev.probingFormats {
		level = slog.LevelDebug
	}
	m.logger.Log(context.Background(), level, msg, args...)
}

// State returns the lifecycle state.
func (m *Mapper) State() MapperState { return m.state }

// Protocol returns the path the current surface was mapped through.
func (m *Mapper) Protocol() Protocol { return m.protocol }

// Resources reports the native resources currently held.
func (m *Mapper) Resources() Resources {
	return Resources{
		ExportedSurface: m.surfaceAcquired,
		BufferHandle:    m.bufferAcquired,
		DerivedImage:    m.image.ID != va.InvalidImage,
	}
}

// Accessors for interop backends.

func (m *Mapper) Device() *Device                  { return m.dev }
func (m *Mapper) Logger() *slog.Logger             { return m.logger }
func (m *Mapper) SrcParams() hwdec.ImageParams     { return m.src }
func (m *Mapper) DstParams() hwdec.ImageParams     { return m.dst }
func (m *Mapper) FormatDesc() ra.ImageFormatDesc   { return m.desc }
func (m *Mapper) NumPlanes() int                   { return len(m.tex) }
func (m *Mapper) Surface() *hwdec.Surface          { return m.surface }
func (m *Mapper) Prime() *va.PrimeDescriptor       { return &m.prime }
func (m *Mapper) Image() va.Image                  { return m.image }
func (m *Mapper) InteropState() any                { return m.interopState }
func (m *Mapper) SetInteropState(state any)        { m.interopState = state }
func (m *Mapper) Texture(n int) ra.Texture         { return m.tex[n] }
func (m *Mapper) SetTexture(n int, tex ra.Texture) { m.tex[n] = tex }

// PlaneSize returns the size of destination plane n.
func (m *Mapper) PlaneSize(n int) (int, int) {
	return m.desc.PlaneSize(n, m.dst.Width, m.dst.Height)
}

// ReleaseTextures releases and clears every plane texture set so far.
func (m *Mapper) ReleaseTextures() {
	for n, tex := range m.tex {
		if tex != nil {
			tex.Release()
			m.tex[n] = nil
		}
	}
}

// Textures returns a copy of the per-plane textures.
func (m *Mapper) Textures() []ra.Texture {
	return append([]ra.Texture(nil), m.tex...)
}
