package events

// Event type constants for kelindar/event.
const (
	TypeDeviceAttached uint32 = iota + 1
	TypeDeviceDetached
	TypeFormatProbed
	TypeExportUnsupported
	TypeRenderNode
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// DeviceAttachedEvent is published once a VA-API device finished probing and
// was registered.
type DeviceAttachedEvent struct {
	DeviceID  string   `json:"device_id" example:"renderD128" doc:"Device identifier"`
	Driver    string   `json:"driver" example:"vaapi" doc:"Hardware driver name"`
	Vendor    string   `json:"vendor" example:"Intel iHD driver" doc:"VA vendor string"`
	Display   string   `json:"display" example:"drm" doc:"Display backend used"`
	Interop   string   `json:"interop" example:"egl" doc:"Interop backend used"`
	Formats   []string `json:"formats" example:"[\"nv12\",\"p010\"]" doc:"Supported software formats"`
	Timestamp string   `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceAttachedEvent.
func (e DeviceAttachedEvent) Type() uint32 { return TypeDeviceAttached }

// DeviceDetachedEvent is published when a device is torn down.
type DeviceDetachedEvent struct {
	DeviceID  string `json:"device_id" example:"renderD128" doc:"Device identifier"`
	Reason    string `json:"reason" example:"removed" doc:"Why the device went away"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceDetachedEvent.
func (e DeviceDetachedEvent) Type() uint32 { return TypeDeviceDetached }

// FormatProbedEvent reports the outcome of one probe candidate.
type FormatProbedEvent struct {
	DeviceID  string `json:"device_id" example:"renderD128" doc:"Device identifier"`
	Format    string `json:"format" example:"nv12" doc:"Candidate software format"`
	Result    string `json:"result" example:"supported" doc:"supported, rejected or alloc_failed"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FormatProbedEvent.
func (e FormatProbedEvent) Type() uint32 { return TypeFormatProbed }

// ExportUnsupportedEvent is published when a device latches surface export
// as unavailable and falls back to derived images.
type ExportUnsupportedEvent struct {
	DeviceID  string `json:"device_id" example:"renderD128" doc:"Device identifier"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ExportUnsupportedEvent.
func (e ExportUnsupportedEvent) Type() uint32 { return TypeExportUnsupported }

// RenderNodeEvent reports DRM render node hotplug.
type RenderNodeEvent struct {
	Node      string `json:"node" example:"/dev/dri/renderD128" doc:"Render node path"`
	Action    string `json:"action" example:"added" doc:"added or removed"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RenderNodeEvent.
func (e RenderNodeEvent) Type() uint32 { return TypeRenderNode }
