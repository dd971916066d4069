package vaapi

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/smazurov/hwinterop/internal/events"
	"github.com/smazurov/hwinterop/internal/hwdec"
	"github.com/smazurov/hwinterop/internal/hwdec/va"
	"github.com/smazurov/hwinterop/internal/ra"
)

const fakeResource = "fake-interop"

func init() {
	RegisterInterop(InteropDriver{Name: "fake", Priority: 1, New: newFakeInterop(true)})
	RegisterInterop(InteropDriver{Name: "fake-exportonly", Priority: 2, New: newFakeInterop(false)})
}

// fakeBackend is published by fakeRenderer and drives the fake interops.
type fakeBackend struct {
	failMapAt   int // plane index at which Map fails, -1 for never
	failInit    bool
	live        int
	mapCalls    int
	legacyCalls int
	unmapCalls  int
}

type fakeTexture struct {
	owner  *fakeBackend
	params ra.TextureParams
	freed  bool
}

func (t *fakeTexture) Params() ra.TextureParams { return t.params }

func (t *fakeTexture) Release() {
	if !t.freed {
		t.freed = true
		t.owner.live--
	}
}

func (b *fakeBackend) texture(p ra.TextureParams) ra.Texture {
	b.live++
	return &fakeTexture{owner: b, params: p}
}

func newFakeInterop(legacy bool) func(r ra.Renderer, _ *slog.Logger) *Interop {
	return func(r ra.Renderer, _ *slog.Logger) *Interop {
		b, ok := r.NativeResource(fakeResource).(*fakeBackend)
		if !ok {
			return nil
		}
		ic := &Interop{
			Init: func(m *Mapper) error {
				if b.failInit {
					return errors.New("init refused")
				}
				m.SetInteropState(b)
				return nil
			},
			Uninit: func(m *Mapper) { m.SetInteropState(nil) },
			Map: func(m *Mapper) error {
				b.mapCalls++
				p := m.Prime()
				if len(p.Layers) < m.NumPlanes() {
					return errors.New("too few layers")
				}
				for n := range m.NumPlanes() {
					if n == b.failMapAt {
						return errors.New("import failed")
					}
					w, h := m.PlaneSize(n)
					layer := p.Layers[n]
					m.SetTexture(n, b.texture(ra.TextureParams{
						Width:     w,
						Height:    h,
						Format:    ra.TextureFormatForDRM(layer.DRMFormat),
						DRMFormat: layer.DRMFormat,
						Offset:    layer.Offset[0],
						Pitch:     layer.Pitch[0],
					}))
				}
				return nil
			},
			Unmap: func(m *Mapper) {
				b.unmapCalls++
				m.ReleaseTextures()
			},
		}
		if legacy {
			ic.MapLegacy = func(m *Mapper, buf va.BufferInfo, formats *LegacyFormatTable) error {
				b.legacyCalls++
				img := m.Image()
				for n, pf := range m.FormatDesc().Planes {
					code, err := formats.Lookup(pf.ComponentBytes, pf.Components)
					if err != nil {
						return err
					}
					if n == b.failMapAt {
						return errors.New("import failed")
					}
					w, h := m.PlaneSize(n)
					m.SetTexture(n, b.texture(ra.TextureParams{
						Width:     w,
						Height:    h,
						Format:    ra.TextureFormatForDRM(code),
						DRMFormat: code,
						Offset:    img.Offsets[n],
						Pitch:     img.Pitches[n],
					}))
				}
				return nil
			}
		}
		return ic
	}
}

type fakeRenderer struct {
	resources map[string]any
	formats   map[hwdec.ImageFormat]ra.ImageFormatDesc
}

func newFakeRenderer(b *fakeBackend) *fakeRenderer {
	return &fakeRenderer{
		resources: map[string]any{
			fakeResource:         b,
			ra.ResourceDRMParams: &ra.DRMParams{RenderFD: 3},
		},
		formats: ra.StandardFormats(),
	}
}

func (r *fakeRenderer) NativeResource(name string) any {
	if v, ok := r.resources[name]; ok {
		return v
	}
	return nil
}

func (r *fakeRenderer) ImageFormatDesc(f hwdec.ImageFormat) (ra.ImageFormatDesc, bool) {
	d, ok := r.formats[f]
	return d, ok
}

// fakeDisplay is a VA display whose exports hand out real memfds so the
// mapper's close calls can be verified.
type fakeDisplay struct {
	t       *testing.T
	kind    string
	vendor  string
	version va.Version

	yuvFourCC  hwdec.FourCC
	exportErr  error
	syncErr    error
	deriveErr  error
	acquireErr error

	surfaces    map[uint32]hwdec.ImageFormat
	nextID      uint32
	fds         []int
	images      map[va.ImageID]va.BufferID
	buffers     map[va.BufferID]int
	exportCalls int
	deriveCalls int
	syncCalls   int
	terminated  bool
}

func newFakeDisplay(t *testing.T) *fakeDisplay {
	return &fakeDisplay{
		t:         t,
		kind:      "drm",
		vendor:    "Fake VA driver",
		version:   va.Version{Major: 1, Minor: 20},
		yuvFourCC: hwdec.FourCCI420,
		surfaces:  map[uint32]hwdec.ImageFormat{},
		images:    map[va.ImageID]va.BufferID{},
		buffers:   map[va.BufferID]int{},
	}
}

func (d *fakeDisplay) newFD() int {
	fd, err := unix.MemfdCreate("fake-va", unix.MFD_CLOEXEC)
	if err != nil {
		d.t.Skipf("memfd_create unavailable: %v", err)
	}
	d.fds = append(d.fds, fd)
	return fd
}

// openFDs counts handed-out descriptors that are still open.
func (d *fakeDisplay) openFDs() int {
	n := 0
	for _, fd := range d.fds {
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err == nil {
			n++
		}
	}
	return n
}

func layerFormats(f hwdec.ImageFormat) []hwdec.FourCC {
	switch f {
	case hwdec.FormatNV12:
		return []hwdec.FourCC{hwdec.DRMFormatR8, hwdec.DRMFormatGR88}
	case hwdec.FormatP010, hwdec.FormatP016:
		return []hwdec.FourCC{hwdec.DRMFormatR16, hwdec.DRMFormatGR1616}
	case hwdec.FormatYUV420P:
		return []hwdec.FourCC{hwdec.DRMFormatR8, hwdec.DRMFormatR8, hwdec.DRMFormatR8}
	case hwdec.FormatBGRA:
		return []hwdec.FourCC{hwdec.DRMFormatARGB8888}
	default:
		return []hwdec.FourCC{hwdec.DRMFormatYUYV}
	}
}

func (d *fakeDisplay) fourcc(f hwdec.ImageFormat) hwdec.FourCC {
	switch f {
	case hwdec.FormatNV12:
		return hwdec.FourCCNV12
	case hwdec.FormatP010:
		return hwdec.FourCCP010
	case hwdec.FormatYUV420P:
		return d.yuvFourCC
	case hwdec.FormatBGRA:
		return hwdec.FourCCBGRA
	default:
		return hwdec.FourCCYUY2
	}
}

func (d *fakeDisplay) Vendor() string      { return d.vendor }
func (d *fakeDisplay) Version() va.Version { return d.version }

func (d *fakeDisplay) ExportSurfaceHandle(id uint32, memType, flags uint32) (va.PrimeDescriptor, error) {
	d.exportCalls++
	if memType != va.MemTypeDRMPrime2 || flags != va.ExportReadOnly|va.ExportSeparateLayers {
		return va.PrimeDescriptor{}, va.StatusInvalidParameter
	}
	if d.exportErr != nil {
		return va.PrimeDescriptor{}, d.exportErr
	}
	f, ok := d.surfaces[id]
	if !ok {
		return va.PrimeDescriptor{}, va.StatusInvalidSurface
	}
	desc := va.PrimeDescriptor{
		FourCC:  d.fourcc(f),
		Width:   128,
		Height:  128,
		Objects: []va.PrimeObject{{FD: d.newFD(), Size: 1 << 16}},
	}
	for i, code := range layerFormats(f) {
		desc.Layers = append(desc.Layers, va.PrimeLayer{
			DRMFormat: code,
			NumPlanes: 1,
			Offset:    [va.MaxPlanes]uint32{uint32(i) * 4096},
			Pitch:     [va.MaxPlanes]uint32{128},
		})
	}
	return desc, nil
}

func (d *fakeDisplay) SyncSurface(uint32) error {
	d.syncCalls++
	return d.syncErr
}

func (d *fakeDisplay) DeriveImage(id uint32) (va.Image, error) {
	d.deriveCalls++
	if d.deriveErr != nil {
		return va.Image{}, d.deriveErr
	}
	f, ok := d.surfaces[id]
	if !ok {
		return va.Image{}, va.StatusInvalidSurface
	}
	d.nextID++
	img := va.Image{
		ID:        va.ImageID(d.nextID),
		Buf:       va.BufferID(d.nextID + 1000),
		Format:    va.ImageFormat{FourCC: d.fourcc(f)},
		Width:     128,
		Height:    128,
		NumPlanes: len(layerFormats(f)),
	}
	for i := range img.NumPlanes {
		img.Offsets[i] = uint32(i) * 4096
		img.Pitches[i] = 128
	}
	d.images[img.ID] = img.Buf
	return img, nil
}

func (d *fakeDisplay) AcquireBufferHandle(buf va.BufferID, info *va.BufferInfo) error {
	if d.acquireErr != nil {
		return d.acquireErr
	}
	if info.MemType != va.MemTypeDRMPrime {
		return va.StatusUnsupportedMemoryType
	}
	fd := d.newFD()
	d.buffers[buf] = fd
	info.Handle = uintptr(fd)
	info.MemSize = 1 << 16
	return nil
}

func (d *fakeDisplay) ReleaseBufferHandle(buf va.BufferID) error {
	fd, ok := d.buffers[buf]
	if !ok {
		return va.StatusInvalidBuffer
	}
	delete(d.buffers, buf)
	return unix.Close(fd)
}

func (d *fakeDisplay) DestroyImage(id va.ImageID) error {
	buf, ok := d.images[id]
	if !ok {
		return va.StatusInvalidImage
	}
	if _, held := d.buffers[buf]; held {
		return va.StatusOperationFailed
	}
	delete(d.images, id)
	return nil
}

func (d *fakeDisplay) Terminate() error {
	d.terminated = true
	return nil
}

type fakeDevice struct {
	d              *fakeDisplay
	constraints    []hwdec.ImageFormat
	constraintsErr error
	allocFail      map[hwdec.ImageFormat]bool
	// substitute makes pools hand out surfaces of another sub-format.
	substitute map[hwdec.ImageFormat]hwdec.ImageFormat
	closed     bool
}

func (dev *fakeDevice) FramesConstraints() (*va.FramesConstraints, error) {
	if dev.constraintsErr != nil {
		return nil, dev.constraintsErr
	}
	return &va.FramesConstraints{ValidSWFormats: dev.constraints}, nil
}

func (dev *fakeDevice) NewFramePool(cfg va.FramePoolConfig) (va.FramePool, error) {
	if dev.allocFail[cfg.SWFormat] {
		return nil, va.StatusAllocationFailed
	}
	return &fakePool{dev: dev, cfg: cfg}, nil
}

func (dev *fakeDevice) Close() error {
	dev.closed = true
	return nil
}

type fakePool struct {
	dev *fakeDevice
	cfg va.FramePoolConfig
}

func (p *fakePool) GetSurface() (*hwdec.Surface, error) {
	d := p.dev.d
	d.nextID++
	id := d.nextID
	sub := p.cfg.SWFormat
	if s, ok := p.dev.substitute[sub]; ok {
		sub = s
	}
	d.surfaces[id] = sub
	params := hwdec.ImageParams{Format: p.cfg.Format, HWSubFormat: sub, Width: p.cfg.Width, Height: p.cfg.Height}
	return hwdec.NewSurface(id, params, func() { delete(d.surfaces, id) }), nil
}

func (p *fakePool) Close() error { return nil }

type fakeRuntime struct {
	display  *fakeDisplay
	device   *fakeDevice
	ctxErr   error
	noDevice bool
}

func newFakeRuntime(t *testing.T, formats ...hwdec.ImageFormat) *fakeRuntime {
	d := newFakeDisplay(t)
	return &fakeRuntime{
		display: d,
		device:  &fakeDevice{d: d, constraints: formats, allocFail: map[hwdec.ImageFormat]bool{}},
	}
}

func (rt *fakeRuntime) Name() string { return "fake" }

func (rt *fakeRuntime) from(kind string) va.Display {
	if rt.display.kind != kind {
		return nil
	}
	return rt.display
}

func (rt *fakeRuntime) DisplayFromX11(any) va.Display     { return rt.from("x11") }
func (rt *fakeRuntime) DisplayFromWayland(any) va.Display { return rt.from("wayland") }
func (rt *fakeRuntime) DisplayFromDRM(int) va.Display     { return rt.from("drm") }

func (rt *fakeRuntime) NewContext(d va.Display) (*va.Context, error) {
	if rt.ctxErr != nil {
		return nil, rt.ctxErr
	}
	if rt.noDevice {
		return &va.Context{Display: d}, nil
	}
	return &va.Context{Display: d, Device: rt.device}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) count(typ uint32) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type() == typ {
			n++
		}
	}
	return n
}

// testEnv bundles the collaborators of a device under test.
type testEnv struct {
	backend  *fakeBackend
	renderer *fakeRenderer
	runtime  *fakeRuntime
	registry *hwdec.Registry
	events   *recordingPublisher
	logs     *bytes.Buffer
}

func newTestEnv(t *testing.T, formats ...hwdec.ImageFormat) *testEnv {
	b := &fakeBackend{failMapAt: -1}
	return &testEnv{
		backend:  b,
		renderer: newFakeRenderer(b),
		runtime:  newFakeRuntime(t, formats...),
		registry: hwdec.NewRegistry(),
		events:   &recordingPublisher{},
		logs:     &bytes.Buffer{},
	}
}

func (e *testEnv) options() Options {
	return Options{
		ID:       "test0",
		Renderer: e.renderer,
		Runtime:  e.runtime,
		Registry: e.registry,
		Events:   e.events,
		Interops: []string{"fake"},
		Logger:   slog.New(slog.NewTextHandler(e.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}
}

func (e *testEnv) open(t *testing.T) *Device {
	t.Helper()
	dev, err := Open(e.options())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { dev.Close() })
	return dev
}

// surface allocates a mappable surface of sw from the device.
func (e *testEnv) surface(t *testing.T, dev *Device, sw hwdec.ImageFormat) *hwdec.Surface {
	t.Helper()
	pool, err := dev.HWDevice().NewFramePool(va.FramePoolConfig{Format: hwdec.FormatVAAPI, SWFormat: sw, Width: 64, Height: 48})
	if err != nil {
		t.Fatalf("NewFramePool() error = %v", err)
	}
	s, err := pool.GetSurface()
	if err != nil {
		t.Fatalf("GetSurface() error = %v", err)
	}
	t.Cleanup(s.Release)
	return s
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
