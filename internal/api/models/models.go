package models

import "time"

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
	Devices int    `json:"devices" example:"1" doc:"Number of attached devices"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	GoVersion string `json:"go_version" example:"go1.25.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

// DeviceMetricsData mirrors the per-device Prometheus series.
type DeviceMetricsData struct {
	MapsSucceeded int `json:"maps_succeeded" example:"1200" doc:"Successful surface maps"`
	MapsFailed    int `json:"maps_failed" example:"0" doc:"Failed surface maps"`
}

// DeviceData describes one attached VA-API interop device.
type DeviceData struct {
	ID            string             `json:"id" example:"renderD128" doc:"Device identifier"`
	RenderNode    string             `json:"render_node" example:"/dev/dri/renderD128" doc:"DRM render node"`
	KernelDriver  string             `json:"kernel_driver,omitempty" example:"i915" doc:"Kernel driver bound to the GPU"`
	PCIVendor     string             `json:"pci_vendor,omitempty" example:"0x8086" doc:"PCI vendor id"`
	Driver        string             `json:"driver" example:"vaapi" doc:"Hardware driver name"`
	Vendor        string             `json:"vendor" example:"Intel iHD driver" doc:"VA vendor string"`
	APIVersion    string             `json:"api_version" example:"1.20" doc:"VA API version"`
	Display       string             `json:"display" example:"drm" doc:"Display backend"`
	Interop       string             `json:"interop" example:"egl" doc:"Interop backend"`
	ExportSupport string             `json:"export_support" enum:"untested,supported,unsupported" doc:"Surface export state"`
	Formats       []string           `json:"formats" example:"[\"nv12\",\"p010\"]" doc:"Software formats that map on the device"`
	OpenedAt      time.Time          `json:"opened_at" doc:"When the device was attached"`
	Metrics       *DeviceMetricsData `json:"metrics,omitempty" doc:"Map counters"`
}

type DeviceListData struct {
	Devices []DeviceData `json:"devices" doc:"Attached devices"`
	Count   int          `json:"count" example:"1" doc:"Number of attached devices"`
}

type DeviceListResponse struct {
	Body DeviceListData
}

type DeviceResponse struct {
	Body DeviceData
}

// ReattachResponse is returned after every device was probed again.
type ReattachResponse struct {
	Body DeviceListData
}

// Log models
type LogEntryData struct {
	Timestamp  time.Time      `json:"timestamp" doc:"Record time"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"vaapi" doc:"Emitting module"`
	Message    string         `json:"message" example:"VA-API device ready" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

type LogListData struct {
	Entries []LogEntryData `json:"entries" doc:"Recent log entries, oldest first"`
	Count   int            `json:"count" example:"20" doc:"Number of entries"`
}

type LogListResponse struct {
	Body LogListData
}

// ConnectedEventData opens every event stream.
type ConnectedEventData struct {
	Message   string `json:"message" example:"event stream connected" doc:"Connection confirmation"`
	Devices   int    `json:"devices" example:"1" doc:"Number of attached devices"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Connection time"`
}
