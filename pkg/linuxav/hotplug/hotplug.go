//go:build linux

// Package hotplug reads kernel uevents from a netlink socket without cgo.
// The device manager uses it to follow DRM render nodes as GPUs come and go.
package hotplug

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// Uevent actions.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionChange = "change"
	ActionBind   = "bind"
	ActionUnbind = "unbind"
)

// Subsystems of interest.
const (
	SubsystemDRM = "drm"
	SubsystemPCI = "pci"
	SubsystemUSB = "usb"
)

// Event is one kernel uevent.
type Event struct {
	Action    string
	KObj      string // sysfs path below /sys
	Subsystem string
	DevType   string
	DevName   string // relative to /dev, e.g. "dri/renderD128"
	DevPath   string
	Env       map[string]string
}

// RenderNode returns the render node name ("renderD128") when the event is
// about a DRM render node.
func (e Event) RenderNode() (string, bool) {
	if e.Subsystem != SubsystemDRM || e.DevName == "" {
		return "", false
	}
	name := e.DevName[strings.LastIndexByte(e.DevName, '/')+1:]
	if !strings.HasPrefix(name, "renderD") {
		return "", false
	}
	return name, true
}

// Monitor receives uevents broadcast by the kernel.
type Monitor struct {
	fd int

	mu      sync.RWMutex
	filters map[string]struct{}
}

// netlinkKobjectUevent is NETLINK_KOBJECT_UEVENT.
const netlinkKobjectUevent = 15

// kernelGroup is the multicast group of kernel-originated events.
const kernelGroup = 1

// NewMonitor opens and binds the netlink socket.
func NewMonitor() (*Monitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, netlinkKobjectUevent)
	if err != nil {
		return nil, err
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: kernelGroup}); err != nil {
		unix.Close(fd)
		return nil, err
	}
	tv := unix.Timeval{Sec: 1}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &Monitor{fd: fd, filters: map[string]struct{}{}}, nil
}

// AddSubsystemFilter restricts Run to the given subsystems. Without filters
// every event is delivered. Safe for concurrent use.
func (m *Monitor) AddSubsystemFilter(subsystem string) {
	m.mu.Lock()
	m.filters[subsystem] = struct{}{}
	m.mu.Unlock()
}

func (m *Monitor) accepts(subsystem string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.filters) == 0 {
		return true
	}
	_, ok := m.filters[subsystem]
	return ok
}

// Close releases the socket.
func (m *Monitor) Close() error {
	return unix.Close(m.fd)
}

// Run delivers events until ctx is done or the socket fails. It closes
// events on return.
func (m *Monitor) Run(ctx context.Context, events chan<- Event) error {
	defer close(events)

	buf := make([]byte, 8192)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, _, err := unix.Recvfrom(m.fd, buf, 0)
		switch {
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
			continue
		case err != nil:
			return err
		case n == 0:
			continue
		}

		ev := ParseUEvent(buf[:n])
		if ev == nil || !m.accepts(ev.Subsystem) {
			continue
		}

		select {
		case events <- *ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ParseUEvent decodes "ACTION@KOBJ\0KEY=VALUE\0...". Messages relayed by
// udev carry a binary header that is skipped. It returns nil for anything
// that is not a uevent.
func ParseUEvent(data []byte) *Event {
	if bytes.HasPrefix(data, []byte("libudev")) {
		data = skipUdevHeader(data)
	}

	fields := bytes.Split(data, []byte{0})
	if len(fields) == 0 {
		return nil
	}
	action, kobj, ok := strings.Cut(string(fields[0]), "@")
	if !ok || action == "" {
		return nil
	}

	ev := &Event{Action: action, KObj: kobj, Env: map[string]string{}}
	for _, f := range fields[1:] {
		key, value, ok := strings.Cut(string(f), "=")
		if !ok || key == "" {
			continue
		}
		ev.Env[key] = value
		switch key {
		case "SUBSYSTEM":
			ev.Subsystem = value
		case "DEVTYPE":
			ev.DevType = value
		case "DEVNAME":
			ev.DevName = value
		case "DEVPATH":
			ev.DevPath = value
		}
	}
	return ev
}

// skipUdevHeader returns the message after the udev header: the data from
// the first NUL-separated field that looks like "action@path".
func skipUdevHeader(data []byte) []byte {
	for off := 0; off < len(data); {
		field := data[off:]
		if end := bytes.IndexByte(field, 0); end >= 0 {
			field = field[:end]
		}
		if at := bytes.IndexByte(field, '@'); at > 0 {
			return data[off:]
		}
		off += len(field) + 1
	}
	return data
}
