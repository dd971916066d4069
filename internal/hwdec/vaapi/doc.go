// Package vaapi maps VA-API decoded surfaces into renderer textures.
//
// # Device lifecycle
//
// Open resolves a VA display from the renderer's native resources (x11,
// then wayland, then a DRM render node), creates the hardware device on it,
// selects the first interop backend the renderer can host (EGL, then
// Vulkan), and probes which software formats actually map. Only formats
// that survived a real allocate-export-import cycle are published:
//
//	dev, err := vaapi.Open(vaapi.Options{
//		ID:       "renderD128",
//		Renderer: renderer,
//		Runtime:  runtime,
//		Registry: registry,
//	})
//	if err != nil {
//		return err
//	}
//	defer dev.Close()
//
// # Mapping
//
// A Mapper turns one surface at a time into per-plane textures. Surface
// export (DRM PRIME 2, separate layers) is tried first. When the driver
// reports it as unimplemented the device latches export off and every later
// map derives an image and acquires its buffer handle instead:
//
//	m, err := dev.CreateMapper(surface.Params)
//	if err != nil {
//		return err
//	}
//	defer m.Destroy()
//	if err := m.Map(surface); err != nil {
//		return err
//	}
//	textures := m.Textures()
//	// render
//	m.Unmap()
//
// Interop backends register themselves from init; import
// internal/hwdec/interop/egl and internal/hwdec/interop/vulkan for their
// side effects.
package vaapi
