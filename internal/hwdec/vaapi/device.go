package vaapi

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/hwinterop/internal/events"
	"github.com/smazurov/hwinterop/internal/hwdec"
	"github.com/smazurov/hwinterop/internal/hwdec/va"
	"github.com/smazurov/hwinterop/internal/logging"
	"github.com/smazurov/hwinterop/internal/metrics"
	"github.com/smazurov/hwinterop/internal/ra"
)

// DriverName is the name devices are registered under.
const DriverName = "vaapi"

// ExportSupport is the surface-export state of a device. Unsupported is
// terminal for the device's lifetime.
type ExportSupport int

const (
	ExportUntested ExportSupport = iota
	ExportUnsupported
	ExportSupported
)

func (s ExportSupport) String() string {
	switch s {
	case ExportUnsupported:
		return "unsupported"
	case ExportSupported:
		return "supported"
	default:
		return "untested"
	}
}

// Publisher receives device events. *events.Bus implements it.
type Publisher interface {
	Publish(ev events.Event)
}

// Options configures Open and NewDevice.
type Options struct {
	// ID names the device in the registry, logs, metrics and events.
	ID       string
	Renderer ra.Renderer
	Runtime  va.Runtime
	// Registry receives the device record once probing succeeded. Optional.
	Registry *hwdec.Registry
	// Events receives device events. Optional.
	Events Publisher
	// Probing marks an automatic probe: emulated drivers are rejected.
	Probing bool
	// Displays and Interops restrict the backends tried when non-empty.
	Displays []string
	Interops []string
	Logger   *slog.Logger
}

// Device is an initialized VA-API interop device. It is used from a single
// thread, like the renderer it belongs to.
type Device struct {
	id       string
	opts     Options
	logger   *slog.Logger
	renderer ra.Renderer

	ctx         *va.Context
	displayName string
	interop     *Interop
	formats     hwdec.FormatSet
	record      *hwdec.DeviceRecord
	openedAt    time.Time

	// probingFormats silences mapping diagnostics during the format probe.
	probingFormats bool

	exportMu sync.Mutex
	export   ExportSupport

	closed bool
}

// Open resolves a display from the renderer and initializes a device on it.
func Open(opts Options) (*Device, error) {
	if opts.Renderer == nil || opts.Runtime == nil {
		return nil, errors.New("vaapi: renderer and runtime are required")
	}
	logger := deviceLogger(opts)

	display, name, err := ResolveDisplay(opts.Renderer, opts.Runtime, opts.Displays, logger)
	if err != nil {
		logger.Debug("Failed to create a VA display", "error", err)
		return nil, err
	}
	return newDevice(display, name, opts, logger)
}

// NewDevice initializes a device on a display the caller created. The
// device takes ownership of the display.
func NewDevice(display va.Display, opts Options) (*Device, error) {
	if opts.Renderer == nil || opts.Runtime == nil {
		display.Terminate()
		return nil, errors.New("vaapi: renderer and runtime are required")
	}
	return newDevice(display, "external", opts, deviceLogger(opts))
}

func deviceLogger(opts Options) *slog.Logger {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("vaapi")
	}
	if opts.ID != "" {
		logger = logger.With("device", opts.ID)
	}
	return logger
}

func newDevice(display va.Display, displayName string, opts Options, logger *slog.Logger) (*Device, error) {
	ctx, err := opts.Runtime.NewContext(display)
	if err != nil {
		display.Terminate()
		return nil, fmt.Errorf("%w: %w", ErrNoDevice, err)
	}
	if ctx.Device == nil {
		ctx.Close()
		return nil, ErrNoDevice
	}

	d := &Device{
		id:          opts.ID,
		opts:        opts,
		logger:      logger,
		renderer:    opts.Renderer,
		ctx:         ctx,
		displayName: displayName,
		openedAt:    time.Now(),
	}
	if d.id == "" {
		d.id = fmt.Sprintf("vaapi-%p", d)
	}

	if opts.Probing && va.GuessIfEmulated(display) {
		logger.Debug("Rejecting emulated VA driver", "vendor", display.Vendor())
		d.teardown()
		return nil, ErrEmulated
	}

	d.interop, err = selectInterop(opts.Renderer, opts.Interops, logger)
	if err != nil {
		d.teardown()
		return nil, err
	}

	d.formats = d.determineWorkingFormats()
	if d.formats.Empty() {
		d.teardown()
		metrics.DeleteDeviceMetrics(d.id)
		return nil, ErrNoFormats
	}

	d.record = &hwdec.DeviceRecord{
		ID:               d.id,
		DriverName:       DriverName,
		SupportedFormats: d.formats,
		Handle:           d,
	}
	if opts.Registry != nil {
		opts.Registry.Add(d.record)
	}
	metrics.SetSupportedFormats(d.id, d.formats.Len())

	logger.Info("VA-API device ready",
		"vendor", display.Vendor(),
		"display", displayName,
		"interop", d.interop.Name,
		"formats", d.formats.String())
	d.publish(events.DeviceAttachedEvent{
		DeviceID:  d.id,
		Driver:    DriverName,
		Vendor:    display.Vendor(),
		Display:   displayName,
		Interop:   d.interop.Name,
		Formats:   d.formats.Strings(),
		Timestamp: timestamp(),
	})
	return d, nil
}

// Close unregisters the device and releases the device context and display.
// Closing twice is a no-op.
func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	if d.record != nil && d.opts.Registry != nil {
		d.opts.Registry.Remove(d.record)
	}
	err := d.teardown()
	metrics.DeleteDeviceMetrics(d.id)
	d.publish(events.DeviceDetachedEvent{DeviceID: d.id, Reason: "closed", Timestamp: timestamp()})
	d.logger.Debug("VA-API device closed")
	return err
}

func (d *Device) teardown() error {
	d.closed = true
	return d.ctx.Close()
}

func (d *Device) ID() string                        { return d.id }
func (d *Device) Display() va.Display               { return d.ctx.Display }
func (d *Device) DisplayName() string               { return d.displayName }
func (d *Device) HWDevice() va.Device               { return d.ctx.Device }
func (d *Device) Interop() *Interop                 { return d.interop }
func (d *Device) Renderer() ra.Renderer             { return d.renderer }
func (d *Device) SupportedFormats() hwdec.FormatSet { return d.formats }
func (d *Device) Record() *hwdec.DeviceRecord       { return d.record }
func (d *Device) Closed() bool                      { return d.closed }

// ExportSupport returns the current surface-export state.
func (d *Device) ExportSupport() ExportSupport {
	d.exportMu.Lock()
	defer d.exportMu.Unlock()
	return d.export
}

// exportAvailable reports whether surface export should be attempted.
func (d *Device) exportAvailable() bool {
	if !d.ctx.Display.Version().AtLeast(1, 1) {
		return false
	}
	return d.ExportSupport() != ExportUnsupported
}

func (d *Device) markExportSupported() {
	d.exportMu.Lock()
	defer d.exportMu.Unlock()
	if d.export == ExportUntested {
		d.export = ExportSupported
	}
}

// latchExportUnsupported switches the device to the legacy path for good.
func (d *Device) latchExportUnsupported() {
	d.exportMu.Lock()
	already := d.export == ExportUnsupported
	d.export = ExportUnsupported
	d.exportMu.Unlock()
	if already {
		return
	}
	d.logger.Warn("Surface export unimplemented, falling back to derived images")
	metrics.SetExportUnsupported(d.id)
	d.publish(events.ExportUnsupportedEvent{DeviceID: d.id, Timestamp: timestamp()})
}

func (d *Device) publish(ev events.Event) {
	if d.opts.Events != nil {
		d.opts.Events.Publish(ev)
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
