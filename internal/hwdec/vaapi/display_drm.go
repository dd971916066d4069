//go:build !hwinterop_nodrm

package vaapi

import (
	"github.com/smazurov/hwinterop/internal/hwdec/va"
	"github.com/smazurov/hwinterop/internal/ra"
)

func init() {
	registerDisplay(displayBackend{
		name:     "drm",
		priority: 30,
		create: func(r ra.Renderer, rt va.Runtime) va.Display {
			params, ok := r.NativeResource(ra.ResourceDRMParams).(*ra.DRMParams)
			if !ok || params == nil || params.RenderFD < 0 {
				return nil
			}
			return rt.DisplayFromDRM(params.RenderFD)
		},
	})
}
