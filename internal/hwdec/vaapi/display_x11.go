//go:build !hwinterop_nox11

package vaapi

import (
	"github.com/smazurov/hwinterop/internal/hwdec/va"
	"github.com/smazurov/hwinterop/internal/ra"
)

func init() {
	registerDisplay(displayBackend{
		name:     "x11",
		priority: 10,
		create: func(r ra.Renderer, rt va.Runtime) va.Display {
			native := r.NativeResource(ra.ResourceX11)
			if native == nil {
				return nil
			}
			return rt.DisplayFromX11(native)
		},
	})
}
