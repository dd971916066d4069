package vaapi

import "errors"

var (
	// ErrNoDisplay means no display backend produced a VA display.
	ErrNoDisplay = errors.New("vaapi: no usable VA display")
	// ErrNoDevice means the runtime could not create a device on the display.
	ErrNoDevice = errors.New("vaapi: failed to create hardware device")
	// ErrEmulated means auto-probing rejected a translation-layer driver.
	ErrEmulated = errors.New("vaapi: emulated driver rejected while auto-probing")
	// ErrNoInterop means the renderer cannot host any interop backend.
	ErrNoInterop = errors.New("vaapi: no interop backend for this renderer")
	// ErrNoFormats means no software format survived probing.
	ErrNoFormats = errors.New("vaapi: no working software formats")
	// ErrUnsupportedFormat means the mapper's format is not published.
	ErrUnsupportedFormat = errors.New("vaapi: unsupported image format")
	// ErrInvalidState means a mapper operation was called out of order.
	ErrInvalidState = errors.New("vaapi: invalid mapper state")
	// ErrClosed means the device was already closed.
	ErrClosed = errors.New("vaapi: device closed")

	// errExportUnimplemented makes the mapper retry with the legacy path.
	errExportUnimplemented = errors.New("surface export unimplemented")
)
