package softva

import "github.com/smazurov/hwinterop/internal/hwdec"

// pitchAlign is the row alignment of every plane.
const pitchAlign = 64

// planeLayout is one plane in memory order.
type planeLayout struct {
	drm    hwdec.FourCC
	cpp    int // bytes per pixel of the plane
	xs, ys uint
}

// layouts describes surface memory per VA fourcc.
var layouts = map[hwdec.FourCC][]planeLayout{
	hwdec.FourCCNV12: {
		{drm: hwdec.DRMFormatR8, cpp: 1},
		{drm: hwdec.DRMFormatGR88, cpp: 2, xs: 1, ys: 1},
	},
	hwdec.FourCCP010: {
		{drm: hwdec.DRMFormatR16, cpp: 2},
		{drm: hwdec.DRMFormatGR1616, cpp: 4, xs: 1, ys: 1},
	},
	hwdec.FourCCP016: {
		{drm: hwdec.DRMFormatR16, cpp: 2},
		{drm: hwdec.DRMFormatGR1616, cpp: 4, xs: 1, ys: 1},
	},
	hwdec.FourCCI420: {
		{drm: hwdec.DRMFormatR8, cpp: 1},
		{drm: hwdec.DRMFormatR8, cpp: 1, xs: 1, ys: 1},
		{drm: hwdec.DRMFormatR8, cpp: 1, xs: 1, ys: 1},
	},
	// Same planes as I420, chroma stored V first.
	hwdec.FourCCYV12: {
		{drm: hwdec.DRMFormatR8, cpp: 1},
		{drm: hwdec.DRMFormatR8, cpp: 1, xs: 1, ys: 1},
		{drm: hwdec.DRMFormatR8, cpp: 1, xs: 1, ys: 1},
	},
	hwdec.FourCCYUY2: {{drm: hwdec.DRMFormatYUYV, cpp: 2}},
	hwdec.FourCCUYVY: {{drm: hwdec.FourCCUYVY, cpp: 2}},
	hwdec.FourCCRGBA: {{drm: hwdec.DRMFormatABGR8888, cpp: 4}},
	hwdec.FourCCBGRA: {{drm: hwdec.DRMFormatARGB8888, cpp: 4}},
	hwdec.FourCCY800: {{drm: hwdec.DRMFormatR8, cpp: 1}},
}

var bitsPerPixel = map[hwdec.FourCC]int{
	hwdec.FourCCNV12: 12,
	hwdec.FourCCP010: 24,
	hwdec.FourCCP016: 24,
	hwdec.FourCCI420: 12,
	hwdec.FourCCYV12: 12,
	hwdec.FourCCYUY2: 16,
	hwdec.FourCCUYVY: 16,
	hwdec.FourCCRGBA: 32,
	hwdec.FourCCBGRA: 32,
	hwdec.FourCCY800: 8,
}

func defaultFourCC(sw hwdec.ImageFormat) hwdec.FourCC {
	switch sw {
	case hwdec.FormatNV12:
		return hwdec.FourCCNV12
	case hwdec.FormatP010:
		return hwdec.FourCCP010
	case hwdec.FormatP016:
		return hwdec.FourCCP016
	case hwdec.FormatYUV420P:
		return hwdec.FourCCI420
	case hwdec.FormatYUYV422:
		return hwdec.FourCCYUY2
	case hwdec.FormatUYVY422:
		return hwdec.FourCCUYVY
	case hwdec.FormatRGBA:
		return hwdec.FourCCRGBA
	case hwdec.FormatBGRA:
		return hwdec.FourCCBGRA
	case hwdec.FormatGray8:
		return hwdec.FourCCY800
	default:
		return 0
	}
}

// plane is a placed plane of a surface.
type plane struct {
	drm    hwdec.FourCC
	offset uint32
	pitch  uint32
}

// placePlanes lays out a w×h surface of code contiguously and returns the
// planes and the total size.
func placePlanes(code hwdec.FourCC, w, h int) ([]plane, int64) {
	var (
		planes []plane
		offset int64
	)
	for _, l := range layouts[code] {
		pw := (w + (1 << l.xs) - 1) >> l.xs
		ph := (h + (1 << l.ys) - 1) >> l.ys
		pitch := align(pw*l.cpp, pitchAlign)
		planes = append(planes, plane{drm: l.drm, offset: uint32(offset), pitch: uint32(pitch)})
		offset += int64(pitch) * int64(ph)
	}
	return planes, offset
}

func align(v, a int) int {
	return (v + a - 1) / a * a
}
