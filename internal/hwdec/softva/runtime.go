// Package softva is a VA runtime emulated in software. Surfaces live in
// memfds, so exports and derived images hand out real dma-buf style file
// descriptors that renderers can inspect. A TOML profile chooses the
// vendor, API version, nominal formats and the failures to inject.
//
// The vendor string of every profile is expected to mark the driver as
// emulated, so automatic probing rejects it.
package softva

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/smazurov/hwinterop/internal/hwdec"
	"github.com/smazurov/hwinterop/internal/hwdec/va"
	"github.com/smazurov/hwinterop/internal/logging"
)

// Name is the name the runtime registers under.
const Name = "softva"

func init() {
	va.Register(Name, func(profile string) (va.Runtime, error) {
		p := DefaultProfile()
		if profile != "" {
			var err error
			if p, err = LoadProfile(profile); err != nil {
				return nil, err
			}
		}
		return New(p)
	})
}

// Runtime implements va.Runtime.
type Runtime struct {
	cfg    config
	logger *slog.Logger

	mu       sync.Mutex
	displays []*Display
}

// New builds a runtime for p.
func New(p Profile) (*Runtime, error) {
	cfg, err := p.resolve()
	if err != nil {
		return nil, err
	}
	return &Runtime{cfg: cfg, logger: logging.GetLogger("softva")}, nil
}

func (rt *Runtime) Name() string { return Name }

func (rt *Runtime) DisplayFromX11(native any) va.Display {
	if native == nil {
		return nil
	}
	return rt.newDisplay("x11")
}

func (rt *Runtime) DisplayFromWayland(native any) va.Display {
	if native == nil {
		return nil
	}
	return rt.newDisplay("wayland")
}

func (rt *Runtime) DisplayFromDRM(fd int) va.Display {
	if fd < 0 {
		return nil
	}
	return rt.newDisplay(fmt.Sprintf("drm:%d", fd))
}

func (rt *Runtime) newDisplay(source string) *Display {
	d := &Display{
		cfg:      rt.cfg,
		source:   source,
		logger:   rt.logger.With("display", source),
		surfaces: map[uint32]*surface{},
		images:   map[va.ImageID]*image{},
		nextID:   1,
	}
	rt.mu.Lock()
	rt.displays = append(rt.displays, d)
	rt.mu.Unlock()
	rt.logger.Debug("Opened display", "source", source, "vendor", rt.cfg.vendor)
	return d
}

// NewContext creates a device on a display of this runtime.
func (rt *Runtime) NewContext(d va.Display) (*va.Context, error) {
	sd, ok := d.(*Display)
	if !ok {
		return nil, errors.New("softva: display belongs to another runtime")
	}
	if sd.isTerminated() {
		return nil, va.StatusInvalidDisplay
	}
	if rt.cfg.noDevice {
		return &va.Context{Display: sd}, nil
	}
	return &va.Context{Display: sd, Device: &device{d: sd}}, nil
}

// Stats sums the statistics of every display the runtime opened.
func (rt *Runtime) Stats() Stats {
	rt.mu.Lock()
	displays := append([]*Display(nil), rt.displays...)
	rt.mu.Unlock()

	var total Stats
	for _, d := range displays {
		total.add(d.Stats())
	}
	return total
}

// device implements va.Device.
type device struct {
	d *Display
}

func (dev *device) FramesConstraints() (*va.FramesConstraints, error) {
	if dev.d.cfg.constraintsFail {
		return nil, va.StatusOperationFailed
	}
	fc := &va.FramesConstraints{}
	for _, f := range dev.d.cfg.formats {
		fc.ValidSWFormats = append(fc.ValidSWFormats, f.sw)
	}
	return fc, nil
}

func (dev *device) NewFramePool(cfg va.FramePoolConfig) (va.FramePool, error) {
	if cfg.Format != hwdec.FormatVAAPI {
		return nil, fmt.Errorf("softva: pool format %s: %w", cfg.Format, va.StatusInvalidParameter)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("softva: pool size %dx%d: %w", cfg.Width, cfg.Height, va.StatusInvalidParameter)
	}
	spec, ok := dev.d.cfg.format(cfg.SWFormat)
	if !ok {
		return nil, fmt.Errorf("softva: format %s: %w", cfg.SWFormat, va.StatusInvalidParameter)
	}
	if spec.allocFail {
		return nil, fmt.Errorf("softva: allocate %s pool: %w", cfg.SWFormat, va.StatusAllocationFailed)
	}
	return &framePool{d: dev.d, cfg: cfg, spec: spec}, nil
}

// framePool implements va.FramePool. Surfaces outlive the pool until they
// are released.
type framePool struct {
	d      *Display
	cfg    va.FramePoolConfig
	spec   formatSpec
	closed bool
}

func (p *framePool) GetSurface() (*hwdec.Surface, error) {
	if p.closed {
		return nil, errors.New("softva: frame pool closed")
	}
	id, err := p.d.createSurface(p.spec, p.cfg.Width, p.cfg.Height)
	if err != nil {
		return nil, err
	}
	params := hwdec.ImageParams{
		Format:      hwdec.FormatVAAPI,
		HWSubFormat: p.spec.sw,
		Width:       p.cfg.Width,
		Height:      p.cfg.Height,
	}
	return hwdec.NewSurface(id, params, func() { p.d.destroySurface(id) }), nil
}

func (p *framePool) Close() error {
	p.closed = true
	return nil
}
