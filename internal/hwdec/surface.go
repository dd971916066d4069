package hwdec

import (
	"fmt"
	"sync"
)

// ImageParams describes an image. For hardware images Format is the opaque
// hardware format and HWSubFormat the real software layout.
type ImageParams struct {
	Format      ImageFormat
	HWSubFormat ImageFormat
	Width       int
	Height      int
}

// Valid reports whether the parameters describe a mappable image.
func (p ImageParams) Valid() bool {
	if p.Width <= 0 || p.Height <= 0 || p.Format == FormatNone {
		return false
	}
	if p.Format.IsHW() {
		return p.HWSubFormat != FormatNone && !p.HWSubFormat.IsHW()
	}
	return true
}

func (p ImageParams) String() string {
	if p.Format.IsHW() {
		return fmt.Sprintf("%dx%d %s[%s]", p.Width, p.Height, p.Format, p.HWSubFormat)
	}
	return fmt.Sprintf("%dx%d %s", p.Width, p.Height, p.Format)
}

// Surface is a decoded hardware frame. ID is the native surface id, and
// Release returns the surface to its pool.
type Surface struct {
	ID     uint32
	Params ImageParams

	once    sync.Once
	release func()
}

// NewSurface wraps a native surface id. release may be nil.
func NewSurface(id uint32, params ImageParams, release func()) *Surface {
	return &Surface{ID: id, Params: params, release: release}
}

// Release returns the surface to its owner. Only the first call has effect.
func (s *Surface) Release() {
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}
