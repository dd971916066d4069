//go:build linux

// Package devices attaches one VA-API interop device per DRM render node and
// follows render nodes as they appear and disappear.
package devices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/hwinterop/internal/events"
	"github.com/smazurov/hwinterop/internal/hwdec"
	"github.com/smazurov/hwinterop/internal/hwdec/va"
	"github.com/smazurov/hwinterop/internal/hwdec/vaapi"
	"github.com/smazurov/hwinterop/internal/logging"
	"github.com/smazurov/hwinterop/internal/metrics"
	"github.com/smazurov/hwinterop/internal/ra"
	"github.com/smazurov/hwinterop/pkg/linuxav/drm"
	"github.com/smazurov/hwinterop/pkg/linuxav/hotplug"
)

// ErrNoRuntime is returned by Attach before a VA runtime was set.
var ErrNoRuntime = errors.New("no VA runtime configured")

// ErrNotAttached is returned by Detach for unknown nodes.
var ErrNotAttached = errors.New("render node not attached")

const defaultSettle = 500 * time.Millisecond

// Options configures a Manager.
type Options struct {
	// RenderNodes restricts the manager to these nodes (names or paths).
	// Empty means every render node found under /dev/dri.
	RenderNodes []string
	// Renderer selects the import paths of the headless renderer: egl,
	// vulkan or both.
	Renderer string
	Probing  bool
	Displays []string
	Interops []string
	Hotplug  bool

	Registry *hwdec.Registry
	Events   *events.Bus
	Logger   *slog.Logger
}

// Info describes an attached device.
type Info struct {
	Node   drm.RenderNode
	Report vaapi.Report
}

type attachment struct {
	node   drm.RenderNode
	fd     int
	device *vaapi.Device
}

// Manager owns the attached devices.
type Manager struct {
	opts     Options
	renderer ra.HeadlessOptions
	logger   *slog.Logger

	// discover, pathOf and settle are replaced in tests.
	discover func() ([]drm.RenderNode, error)
	pathOf   func(name string) string
	settle   time.Duration

	mu       sync.Mutex
	runtime  va.Runtime
	attached map[string]*attachment

	cancel context.CancelFunc
	done   chan struct{}
}

// ParseRenderer maps a renderer name to headless renderer options.
func ParseRenderer(name string) (ra.HeadlessOptions, error) {
	switch strings.ToLower(name) {
	case "", "egl":
		return ra.HeadlessOptions{EGL: true}, nil
	case "vulkan":
		return ra.HeadlessOptions{Vulkan: true}, nil
	case "both":
		return ra.HeadlessOptions{EGL: true, Vulkan: true}, nil
	default:
		return ra.HeadlessOptions{}, fmt.Errorf("unknown renderer %q (want egl, vulkan or both)", name)
	}
}

// NewManager creates a manager. Devices are attached by Start.
func NewManager(opts Options) (*Manager, error) {
	renderer, err := ParseRenderer(opts.Renderer)
	if err != nil {
		return nil, err
	}
	if opts.Registry == nil {
		opts.Registry = hwdec.NewRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("devices")
	}
	return &Manager{
		opts:     opts,
		renderer: renderer,
		logger:   logger,
		discover: drm.FindRenderNodes,
		pathOf:   drm.Path,
		settle:   defaultSettle,
		attached: make(map[string]*attachment),
	}, nil
}

// Registry returns the registry devices are published in.
func (m *Manager) Registry() *hwdec.Registry {
	return m.opts.Registry
}

// SetRuntime replaces the VA runtime and re-attaches every device on it.
func (m *Manager) SetRuntime(rt va.Runtime) {
	m.mu.Lock()
	m.runtime = rt
	m.mu.Unlock()
	m.Reattach()
}

// Start attaches the initial set of nodes and, with hotplug enabled,
// follows render node uevents until Stop.
func (m *Manager) Start(ctx context.Context) error {
	m.attachAll()

	if !m.opts.Hotplug {
		return nil
	}
	mon, err := hotplug.NewMonitor()
	if err != nil {
		return fmt.Errorf("failed to start hotplug monitor: %w", err)
	}
	mon.AddSubsystemFilter(hotplug.SubsystemDRM)

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	uevents := make(chan hotplug.Event, 16)

	go func() {
		if err := mon.Run(ctx, uevents); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error("Hotplug monitor failed", "error", err)
		}
		mon.Close()
	}()
	go func() {
		defer close(m.done)
		m.logger.Info("Hotplug monitoring started for render nodes")
		for ev := range uevents {
			m.handleUevent(ev)
		}
		m.logger.Info("Hotplug monitor stopped")
	}()
	return nil
}

// Stop ends hotplug monitoring and detaches every device.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
		m.cancel = nil
	}
	m.detachAll("stopped")
}

// Reattach detaches every device and attaches the node set again, probing
// each device anew.
func (m *Manager) Reattach() {
	m.logger.Info("Re-attaching devices")
	m.detachAll("reattach")
	m.attachAll()
}

// Attach opens the render node and initializes a device on it. node is a
// name ("renderD128") or a path.
func (m *Manager) Attach(node string) error {
	path := m.pathOf(node)
	name := filepath.Base(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.runtime == nil {
		return ErrNoRuntime
	}
	if _, ok := m.attached[name]; ok {
		return nil
	}

	info := drm.Describe(name)
	info.Path = path

	fd, err := drm.OpenRenderNode(path)
	if err != nil {
		return err
	}

	renderer := m.renderer
	renderer.RenderFD = fd
	dev, err := vaapi.Open(vaapi.Options{
		ID:       name,
		Renderer: ra.NewHeadless(renderer),
		Runtime:  m.runtime,
		Registry: m.opts.Registry,
		Events:   m.publisher(),
		Probing:  m.opts.Probing,
		Displays: m.opts.Displays,
		Interops: m.opts.Interops,
	})
	if err != nil {
		drm.CloseRenderNode(fd)
		return fmt.Errorf("%s: %w", name, err)
	}

	m.attached[name] = &attachment{node: info, fd: fd, device: dev}
	metrics.SetDevicesAttached(len(m.attached))
	m.logger.Info("Device attached", "node", path, "driver", info.Driver, "formats", dev.SupportedFormats().String())
	return nil
}

// Detach closes the device on a node.
func (m *Manager) Detach(node string) error {
	name := filepath.Base(m.pathOf(node))

	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.attached[name]
	if !ok {
		return ErrNotAttached
	}
	m.release(name, a, "detached")
	return nil
}

// List returns the attached devices sorted by node name.
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]Info, 0, len(m.attached))
	for _, a := range m.attached {
		infos = append(infos, Info{Node: a.node, Report: a.device.Report()})
	}
	slices.SortFunc(infos, func(a, b Info) int { return strings.Compare(a.Node.Name, b.Node.Name) })
	return infos
}

// Get returns the device attached under id.
func (m *Manager) Get(id string) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.attached[id]
	if !ok {
		return Info{}, false
	}
	return Info{Node: a.node, Report: a.device.Report()}, true
}

// Reports returns the report of every attached device.
func (m *Manager) Reports() []vaapi.Report {
	infos := m.List()
	reports := make([]vaapi.Report, len(infos))
	for i, info := range infos {
		reports[i] = info.Report
	}
	return reports
}

// targets lists the nodes the manager should attach.
func (m *Manager) targets() []string {
	if len(m.opts.RenderNodes) > 0 {
		return m.opts.RenderNodes
	}
	nodes, err := m.discover()
	if err != nil {
		m.logger.Warn("Failed to list render nodes", "error", err)
		return nil
	}
	paths := make([]string, len(nodes))
	for i, n := range nodes {
		paths[i] = n.Path
	}
	return paths
}

// wanted reports whether a hotplugged node belongs to the configured set.
func (m *Manager) wanted(name string) bool {
	if len(m.opts.RenderNodes) == 0 {
		return true
	}
	return slices.ContainsFunc(m.opts.RenderNodes, func(n string) bool {
		return filepath.Base(n) == name
	})
}

func (m *Manager) attachAll() {
	targets := m.targets()
	for _, node := range targets {
		if err := m.Attach(node); err != nil {
			m.logger.Warn("Failed to attach device", "node", node, "error", err)
		}
	}
	m.logger.Info("Devices initialized", "nodes", len(targets), "attached", len(m.List()))
}

func (m *Manager) detachAll(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, a := range m.attached {
		m.release(name, a, reason)
	}
}

// release closes a device and its node. Callers hold mu.
func (m *Manager) release(name string, a *attachment, reason string) {
	if err := a.device.Close(); err != nil {
		m.logger.Warn("Failed to close device", "node", name, "error", err)
	}
	drm.CloseRenderNode(a.fd)
	delete(m.attached, name)
	metrics.SetDevicesAttached(len(m.attached))
	m.logger.Info("Device detached", "node", name, "reason", reason)
}

func (m *Manager) handleUevent(ev hotplug.Event) {
	name, ok := ev.RenderNode()
	if !ok || !m.wanted(name) {
		return
	}
	path := m.pathOf(name)

	switch ev.Action {
	case hotplug.ActionAdd:
		m.logger.Debug("Render node added", "node", path)
		m.publish(events.RenderNodeEvent{Node: path, Action: "added", Timestamp: timestamp()})
		// udev needs a moment to apply permissions to the new node
		time.Sleep(m.settle)
		if err := m.Attach(name); err != nil {
			m.logger.Warn("Failed to attach hotplugged device", "node", path, "error", err)
		}
	case hotplug.ActionRemove:
		m.logger.Debug("Render node removed", "node", path)
		m.publish(events.RenderNodeEvent{Node: path, Action: "removed", Timestamp: timestamp()})
		if err := m.Detach(name); err != nil && !errors.Is(err, ErrNotAttached) {
			m.logger.Warn("Failed to detach device", "node", path, "error", err)
		}
	}
}

// publisher returns the bus as a vaapi.Publisher, or nil without a bus so
// the device skips publishing.
func (m *Manager) publisher() vaapi.Publisher {
	if m.opts.Events == nil {
		return nil
	}
	return m.opts.Events
}

func (m *Manager) publish(ev events.Event) {
	if m.opts.Events != nil {
		m.opts.Events.Publish(ev)
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
