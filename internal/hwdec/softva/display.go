package softva

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/smazurov/hwinterop/internal/hwdec"
	"github.com/smazurov/hwinterop/internal/hwdec/va"
)

// bufferTypeImage is VAImageBufferType.
const bufferTypeImage = 9

// Stats counts calls and live handles of a display.
type Stats struct {
	ExportCalls int
	DeriveCalls int
	SyncCalls   int
	// LiveSurfaces, LiveImages and AcquiredBuffers are handles not yet
	// released.
	LiveSurfaces    int
	LiveImages      int
	AcquiredBuffers int
	// OpenExports counts exported file descriptors the caller has not
	// closed yet.
	OpenExports int
}

func (s *Stats) add(o Stats) {
	s.ExportCalls += o.ExportCalls
	s.DeriveCalls += o.DeriveCalls
	s.SyncCalls += o.SyncCalls
	s.LiveSurfaces += o.LiveSurfaces
	s.LiveImages += o.LiveImages
	s.AcquiredBuffers += o.AcquiredBuffers
	s.OpenExports += o.OpenExports
}

type surface struct {
	spec   formatSpec
	fd     int
	size   int64
	width  int
	height int
	planes []plane
}

type image struct {
	img     va.Image
	surface uint32
	// acquired is the duplicated fd handed out by AcquireBufferHandle, or -1.
	acquired int
}

// Display implements va.Display.
type Display struct {
	cfg    config
	source string
	logger *slog.Logger

	mu         sync.Mutex
	surfaces   map[uint32]*surface
	images     map[va.ImageID]*image
	exported   []int
	nextID     uint32
	stats      Stats
	terminated bool
}

func (d *Display) Vendor() string      { return d.cfg.vendor }
func (d *Display) Version() va.Version { return d.cfg.version }

// Source names what the display was opened from.
func (d *Display) Source() string { return d.source }

func (d *Display) isTerminated() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.terminated
}

func (d *Display) createSurface(spec formatSpec, w, h int) (uint32, error) {
	planes, size := placePlanes(spec.fourcc, w, h)
	fd, err := unix.MemfdCreate("softva-surface", unix.MFD_CLOEXEC)
	if err != nil {
		return 0, fmt.Errorf("softva: memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, size); err != nil {
		unix.Close(fd)
		return 0, fmt.Errorf("softva: size surface: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.terminated {
		unix.Close(fd)
		return 0, va.StatusInvalidDisplay
	}
	d.forgetExport(fd)
	id := d.nextID
	d.nextID++
	d.surfaces[id] = &surface{spec: spec, fd: fd, size: size, width: w, height: h, planes: planes}
	return id, nil
}

func (d *Display) destroySurface(id uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.surfaces[id]
	if !ok {
		return
	}
	delete(d.surfaces, id)
	unix.Close(s.fd)
}

// dup returns a close-on-exec duplicate of fd. Caller holds d.mu.
func (d *Display) dup(fd int) (int, error) {
	nfd, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("softva: dup: %w", err)
	}
	return nfd, nil
}

// forgetExport drops fd from the exported set. A number handed out again
// means the caller closed the earlier export. Caller holds d.mu.
func (d *Display) forgetExport(fd int) {
	d.exported = slices.DeleteFunc(d.exported, func(v int) bool { return v == fd })
}

func (d *Display) ExportSurfaceHandle(id uint32, memType, flags uint32) (va.PrimeDescriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.ExportCalls++

	switch {
	case d.terminated:
		return va.PrimeDescriptor{}, va.StatusInvalidDisplay
	case d.cfg.export == ExportUnimplemented:
		return va.PrimeDescriptor{}, va.StatusUnimplemented
	case d.cfg.export == ExportBroken:
		return va.PrimeDescriptor{}, va.StatusOperationFailed
	case memType != va.MemTypeDRMPrime2:
		return va.PrimeDescriptor{}, va.StatusUnsupportedMemoryType
	case flags&va.ExportSeparateLayers == 0:
		return va.PrimeDescriptor{}, va.StatusInvalidParameter
	}

	s, ok := d.surfaces[id]
	if !ok {
		return va.PrimeDescriptor{}, va.StatusInvalidSurface
	}
	if s.spec.exportFail {
		return va.PrimeDescriptor{}, va.StatusOperationFailed
	}

	fd, err := d.dup(s.fd)
	if err != nil {
		return va.PrimeDescriptor{}, err
	}
	d.forgetExport(fd)
	d.exported = append(d.exported, fd)

	desc := va.PrimeDescriptor{
		FourCC:  s.spec.fourcc,
		Width:   s.width,
		Height:  s.height,
		Objects: []va.PrimeObject{{FD: fd, Size: uint32(s.size)}},
	}
	for _, p := range s.planes {
		desc.Layers = append(desc.Layers, va.PrimeLayer{
			DRMFormat: p.drm,
			NumPlanes: 1,
			Offset:    [va.MaxPlanes]uint32{p.offset},
			Pitch:     [va.MaxPlanes]uint32{p.pitch},
		})
	}
	d.logger.Debug("Exported surface", "surface", id, "fourcc", s.spec.fourcc.String(), "fd", fd)
	return desc, nil
}

func (d *Display) SyncSurface(id uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.SyncCalls++
	if _, ok := d.surfaces[id]; !ok {
		return va.StatusInvalidSurface
	}
	return nil
}

func (d *Display) DeriveImage(id uint32) (va.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.DeriveCalls++

	s, ok := d.surfaces[id]
	if !ok {
		return va.Image{}, va.StatusInvalidSurface
	}
	if s.spec.deriveFail || len(s.planes) > 3 {
		return va.Image{}, va.StatusOperationFailed
	}

	imgID := d.nextID
	d.nextID++
	img := va.Image{
		ID:        va.ImageID(imgID),
		Buf:       va.BufferID(imgID),
		Format:    va.ImageFormat{FourCC: s.spec.fourcc, BitsPerPixel: bitsPerPixel[s.spec.fourcc]},
		Width:     s.width,
		Height:    s.height,
		NumPlanes: len(s.planes),
		DataSize:  uint32(s.size),
	}
	for i, p := range s.planes {
		img.Offsets[i] = p.offset
		img.Pitches[i] = p.pitch
	}
	d.images[img.ID] = &image{img: img, surface: id, acquired: -1}
	return img, nil
}

func (d *Display) imageByBuffer(buf va.BufferID) *image {
	for _, im := range d.images {
		if im.img.Buf == buf {
			return im
		}
	}
	return nil
}

func (d *Display) AcquireBufferHandle(buf va.BufferID, info *va.BufferInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	im := d.imageByBuffer(buf)
	if im == nil {
		return va.StatusInvalidBuffer
	}
	if info.MemType != va.MemTypeDRMPrime {
		return va.StatusUnsupportedMemoryType
	}
	if im.acquired >= 0 {
		return va.StatusOperationFailed
	}
	s, ok := d.surfaces[im.surface]
	if !ok {
		return va.StatusInvalidSurface
	}

	fd, err := d.dup(s.fd)
	if err != nil {
		return err
	}
	d.forgetExport(fd)
	im.acquired = fd
	info.Handle = uintptr(fd)
	info.Type = bufferTypeImage
	info.MemSize = uint32(s.size)
	return nil
}

func (d *Display) ReleaseBufferHandle(buf va.BufferID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	im := d.imageByBuffer(buf)
	if im == nil || im.acquired < 0 {
		return va.StatusInvalidBuffer
	}
	fd := im.acquired
	im.acquired = -1
	return unix.Close(fd)
}

// DestroyImage fails while the image's buffer handle is still acquired.
func (d *Display) DestroyImage(id va.ImageID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	im, ok := d.images[id]
	if !ok {
		return va.StatusInvalidImage
	}
	if im.acquired >= 0 {
		return va.StatusOperationFailed
	}
	delete(d.images, id)
	return nil
}

// Terminate releases every handle the display still holds.
func (d *Display) Terminate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.terminated {
		return nil
	}
	d.terminated = true
	for id, im := range d.images {
		if im.acquired >= 0 {
			unix.Close(im.acquired)
		}
		delete(d.images, id)
	}
	if n := len(d.surfaces); n > 0 {
		d.logger.Warn("Terminating display with live surfaces", "count", n)
	}
	for id, s := range d.surfaces {
		unix.Close(s.fd)
		delete(d.surfaces, id)
	}
	return nil
}

// Stats returns call counters and live handle counts.
func (d *Display) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := d.stats
	st.LiveSurfaces = len(d.surfaces)
	st.LiveImages = len(d.images)
	for _, im := range d.images {
		if im.acquired >= 0 {
			st.AcquiredBuffers++
		}
	}
	d.exported = slices.DeleteFunc(d.exported, func(fd int) bool {
		_, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
		return err != nil
	})
	st.OpenExports = len(d.exported)
	return st
}

// Surface reports the fourcc and memfd size of a live surface.
func (d *Display) Surface(id uint32) (hwdec.FourCC, int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.surfaces[id]
	if !ok {
		return 0, 0, false
	}
	return s.spec.fourcc, s.size, true
}
