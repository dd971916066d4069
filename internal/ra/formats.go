package ra

import (
	"maps"

	"github.com/gogpu/gputypes"

	"github.com/smazurov/hwinterop/internal/hwdec"
)

func plane(comps, bytes int, f gputypes.TextureFormat, xs, ys uint) PlaneFormat {
	return PlaneFormat{Components: comps, ComponentBytes: bytes, Format: f, XShift: xs, YShift: ys}
}

var standardFormats = map[hwdec.ImageFormat]ImageFormatDesc{
	hwdec.FormatNV12: {Planes: []PlaneFormat{
		plane(1, 1, gputypes.TextureFormatR8Unorm, 0, 0),
		plane(2, 1, gputypes.TextureFormatRG8Unorm, 1, 1),
	}},
	hwdec.FormatP010: {Planes: []PlaneFormat{
		plane(1, 2, gputypes.TextureFormatR16Uint, 0, 0),
		plane(2, 2, gputypes.TextureFormatRG16Uint, 1, 1),
	}},
	hwdec.FormatP016: {Planes: []PlaneFormat{
		plane(1, 2, gputypes.TextureFormatR16Uint, 0, 0),
		plane(2, 2, gputypes.TextureFormatRG16Uint, 1, 1),
	}},
	hwdec.FormatYUV420P: {Planes: []PlaneFormat{
		plane(1, 1, gputypes.TextureFormatR8Unorm, 0, 0),
		plane(1, 1, gputypes.TextureFormatR8Unorm, 1, 1),
		plane(1, 1, gputypes.TextureFormatR8Unorm, 1, 1),
	}},
	hwdec.FormatRGBA: {Planes: []PlaneFormat{
		plane(4, 1, gputypes.TextureFormatRGBA8Unorm, 0, 0),
	}},
	hwdec.FormatBGRA: {Planes: []PlaneFormat{
		plane(4, 1, gputypes.TextureFormatBGRA8Unorm, 0, 0),
	}},
	hwdec.FormatGray8: {Planes: []PlaneFormat{
		plane(1, 1, gputypes.TextureFormatR8Unorm, 0, 0),
	}},
}

// StandardFormats returns the plane layouts of a typical GPU renderer. Packed
// 4:2:2 formats have no layout.
func StandardFormats() map[hwdec.ImageFormat]ImageFormatDesc {
	return maps.Clone(standardFormats)
}

// TextureFormatForDRM maps a single-plane DRM format to a texture format.
func TextureFormatForDRM(code hwdec.FourCC) gputypes.TextureFormat {
	switch code {
	case hwdec.DRMFormatR8:
		return gputypes.TextureFormatR8Unorm
	case hwdec.DRMFormatGR88:
		return gputypes.TextureFormatRG8Unorm
	case hwdec.DRMFormatR16:
		return gputypes.TextureFormatR16Uint
	case hwdec.DRMFormatGR1616:
		return gputypes.TextureFormatRG16Uint
	case hwdec.DRMFormatABGR8888, hwdec.DRMFormatRGBA8888:
		return gputypes.TextureFormatRGBA8Unorm
	case hwdec.DRMFormatARGB8888:
		return gputypes.TextureFormatBGRA8Unorm
	default:
		return gputypes.TextureFormatUndefined
	}
}
