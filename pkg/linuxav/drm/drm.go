//go:build linux

// Package drm discovers DRM render nodes through sysfs without cgo.
package drm

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sys/unix"
)

// Roots are variables so tests can point them at a fake tree.
var (
	devRoot = "/dev/dri"
	sysRoot = "/sys/class/drm"
)

// RenderNode describes one /dev/dri/renderD* node.
type RenderNode struct {
	Name   string // "renderD128"
	Path   string // "/dev/dri/renderD128"
	Driver string // kernel driver, e.g. "i915"; empty when unknown
	Vendor string // PCI vendor id, e.g. "0x8086"; empty for non-PCI devices
}

// FindRenderNodes returns the render nodes present on the system, sorted by
// name. A missing /dev/dri yields an empty list.
func FindRenderNodes() ([]RenderNode, error) {
	entries, err := os.ReadDir(devRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return []RenderNode{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", devRoot, err)
	}

	nodes := []RenderNode{}
	for _, entry := range entries {
		if !IsRenderNode(entry.Name()) {
			continue
		}
		nodes = append(nodes, Describe(entry.Name()))
	}
	slices.SortFunc(nodes, func(a, b RenderNode) int { return strings.Compare(a.Name, b.Name) })
	return nodes, nil
}

// IsRenderNode reports whether name looks like "renderD<minor>".
func IsRenderNode(name string) bool {
	minor, ok := strings.CutPrefix(name, "renderD")
	if !ok || minor == "" {
		return false
	}
	for _, r := range minor {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Describe fills in what sysfs knows about the named node. It never fails:
// missing attributes are left empty.
func Describe(name string) RenderNode {
	node := RenderNode{Name: name, Path: filepath.Join(devRoot, name)}
	device := filepath.Join(sysRoot, name, "device")

	if target, err := os.Readlink(filepath.Join(device, "driver")); err == nil {
		node.Driver = filepath.Base(target)
	} else {
		slog.With("component", "linuxav").Debug("render node has no driver link", "node", name, "error", err)
	}
	if data, err := os.ReadFile(filepath.Join(device, "vendor")); err == nil {
		node.Vendor = strings.TrimSpace(string(data))
	}
	return node
}

// Path returns the device path of a render node given by name or path.
func Path(node string) string {
	if strings.ContainsRune(node, '/') {
		return node
	}
	return filepath.Join(devRoot, node)
}

// OpenRenderNode opens a render node read-write with close-on-exec.
func OpenRenderNode(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return fd, nil
}

// CloseRenderNode closes an fd returned by OpenRenderNode.
func CloseRenderNode(fd int) error {
	return unix.Close(fd)
}
