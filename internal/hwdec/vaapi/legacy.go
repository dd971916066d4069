package vaapi

import (
	"fmt"

	"github.com/smazurov/hwinterop/internal/hwdec"
)

// LegacyFormatTable maps a plane's (component bytes, component count) to a
// DRM fourcc for the derived-image path. Entries are indexed by
// (bytes-1)*4 + (components-1).
type LegacyFormatTable struct {
	entries [8]legacyEntry
}

type legacyEntry struct {
	code       hwdec.FourCC
	unverified bool
}

// LegacyFormats is the table handed to interop backends on the legacy path.
// Three-component formats never appear on VA surfaces and stay unverified.
var LegacyFormats = &LegacyFormatTable{entries: [8]legacyEntry{
	{code: hwdec.DRMFormatR8},
	{code: hwdec.DRMFormatGR88},
	{code: hwdec.DRMFormatRGB888, unverified: true},
	{code: hwdec.DRMFormatRGBA8888, unverified: true},
	{code: hwdec.DRMFormatR16},
	{code: hwdec.DRMFormatGR1616},
	{},
	{},
}}

// Lookup returns the DRM format for a plane. Unverified and missing
// entries are errors.
func (t *LegacyFormatTable) Lookup(componentBytes, components int) (hwdec.FourCC, error) {
	if componentBytes < 1 || componentBytes > 2 || components < 1 || components > 4 {
		return 0, fmt.Errorf("no DRM format for %d components of %d bytes", components, componentBytes)
	}
	e := t.entries[(componentBytes-1)*4+(components-1)]
	switch {
	case e.code == 0:
		return 0, fmt.Errorf("no DRM format for %d components of %d bytes", components, componentBytes)
	case e.unverified:
		return 0, fmt.Errorf("unverified DRM format %s for %d components of %d bytes", e.code, components, componentBytes)
	}
	return e.code, nil
}
