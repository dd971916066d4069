// Package hwdec holds the types shared between hardware decoders, the VA-API
// interop core and the renderer: image formats, image parameters, hardware
// surfaces and the per-process registry of published hardware devices.
package hwdec

import "strings"

// ImageFormat identifies a pixel layout. FormatNone is the terminator used by
// format lists and never names a real format.
type ImageFormat uint16

const (
	FormatNone ImageFormat = iota
	// FormatVAAPI is the opaque hardware format of a VA surface. The real
	// layout is carried in ImageParams.HWSubFormat.
	FormatVAAPI
	FormatNV12
	FormatP010
	FormatP016
	FormatYUV420P
	FormatYUYV422
	FormatUYVY422
	FormatRGBA
	FormatBGRA
	FormatGray8
)

var formatNames = map[ImageFormat]string{
	FormatNone:    "none",
	FormatVAAPI:   "vaapi",
	FormatNV12:    "nv12",
	FormatP010:    "p010",
	FormatP016:    "p016",
	FormatYUV420P: "yuv420p",
	FormatYUYV422: "yuyv422",
	FormatUYVY422: "uyvy422",
	FormatRGBA:    "rgba",
	FormatBGRA:    "bgra",
	FormatGray8:   "gray",
}

func (f ImageFormat) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "unknown"
}

// IsHW reports whether f is an opaque hardware format.
func (f ImageFormat) IsHW() bool {
	return f == FormatVAAPI
}

// ParseImageFormat resolves a format name as printed by String.
func ParseImageFormat(name string) (ImageFormat, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for f, n := range formatNames {
		if n == name && f != FormatNone {
			return f, true
		}
	}
	return FormatNone, false
}

// FormatSet is an ordered list of software formats. Terminated always ends
// with FormatNone, so an empty set is just the terminator.
type FormatSet struct {
	list []ImageFormat
}

// NewFormatSet copies formats, dropping duplicates and FormatNone entries.
func NewFormatSet(formats []ImageFormat) FormatSet {
	list := make([]ImageFormat, 0, len(formats)+1)
	for _, f := range formats {
		if f == FormatNone || contains(list, f) {
			continue
		}
		list = append(list, f)
	}
	return FormatSet{list: append(list, FormatNone)}
}

func contains(list []ImageFormat, f ImageFormat) bool {
	for _, x := range list {
		if x == f {
			return true
		}
	}
	return false
}

// Formats returns the formats without the terminator.
func (s FormatSet) Formats() []ImageFormat {
	if len(s.list) == 0 {
		return nil
	}
	out := make([]ImageFormat, len(s.list)-1)
	copy(out, s.list)
	return out
}

// Terminated returns the formats followed by FormatNone.
func (s FormatSet) Terminated() []ImageFormat {
	if len(s.list) == 0 {
		return []ImageFormat{FormatNone}
	}
	out := make([]ImageFormat, len(s.list))
	copy(out, s.list)
	return out
}

func (s FormatSet) Len() int {
	if len(s.list) == 0 {
		return 0
	}
	return len(s.list) - 1
}

func (s FormatSet) Empty() bool {
	return s.Len() == 0
}

// Contains reports whether f is in the set. FormatNone is never contained.
func (s FormatSet) Contains(f ImageFormat) bool {
	if f == FormatNone {
		return false
	}
	return contains(s.list, f)
}

// Strings returns the format names in order.
func (s FormatSet) Strings() []string {
	formats := s.Formats()
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = f.String()
	}
	return names
}

func (s FormatSet) String() string {
	return strings.Join(s.Strings(), " ")
}
