//go:build !hwinterop_nowayland

package vaapi

import (
	"github.com/smazurov/hwinterop/internal/hwdec/va"
	"github.com/smazurov/hwinterop/internal/ra"
)

func init() {
	registerDisplay(displayBackend{
		name:     "wayland",
		priority: 20,
		create: func(r ra.Renderer, rt va.Runtime) va.Display {
			native := r.NativeResource(ra.ResourceWayland)
			if native == nil {
				return nil
			}
			return rt.DisplayFromWayland(native)
		},
	})
}
