// Package metrics provides Prometheus metrics for VA-API interop devices.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	vaapiMaps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hwinterop",
		Subsystem: "vaapi",
		Name:      "maps_total",
		Help:      "Surface map attempts by protocol and result",
	}, []string{"device", "protocol", "result"})

	vaapiProbeCandidates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hwinterop",
		Subsystem: "vaapi",
		Name:      "probe_candidates_total",
		Help:      "Probed software formats by result",
	}, []string{"device", "result"})

	vaapiSupportedFormats = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "hwinterop",
		Subsystem: "vaapi",
		Name:      "supported_formats",
		Help:      "Number of software formats that map on the device",
	}, []string{"device"})

	vaapiExportUnsupported = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "hwinterop",
		Subsystem: "vaapi",
		Name:      "export_unsupported",
		Help:      "1 when the device fell back to derived images",
	}, []string{"device"})

	devicesAttached = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hwinterop",
		Subsystem: "devices",
		Name:      "attached",
		Help:      "Number of attached VA-API devices",
	})

	// Local cache for API access.
	deviceCache   = make(map[string]*DeviceMetrics)
	deviceCacheMu sync.RWMutex
)

// DeviceMetrics holds current metric values for a device.
type DeviceMetrics struct {
	SupportedFormats  int
	MapsSucceeded     int
	MapsFailed        int
	ExportUnsupported bool
}

// RecordMap counts one map attempt.
func RecordMap(device, protocol string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	vaapiMaps.WithLabelValues(device, protocol, result).Inc()
	updateCache(device, func(m *DeviceMetrics) {
		if ok {
			m.MapsSucceeded++
		} else {
			m.MapsFailed++
		}
	})
}

// RecordProbeCandidate counts one probe candidate outcome.
func RecordProbeCandidate(device, result string) {
	vaapiProbeCandidates.WithLabelValues(device, result).Inc()
}

// SetSupportedFormats sets the published format count for a device.
func SetSupportedFormats(device string, n int) {
	vaapiSupportedFormats.WithLabelValues(device).Set(float64(n))
	updateCache(device, func(m *DeviceMetrics) { m.SupportedFormats = n })
}

// SetExportUnsupported marks the device as using the legacy path.
func SetExportUnsupported(device string) {
	vaapiExportUnsupported.WithLabelValues(device).Set(1)
	updateCache(device, func(m *DeviceMetrics) { m.ExportUnsupported = true })
}

// SetDevicesAttached sets the attached device count.
func SetDevicesAttached(n int) {
	devicesAttached.Set(float64(n))
}

// GetDeviceMetrics returns a copy of the cached metrics for a device.
func GetDeviceMetrics(device string) *DeviceMetrics {
	deviceCacheMu.RLock()
	defer deviceCacheMu.RUnlock()
	if m, ok := deviceCache[device]; ok {
		cp := *m
		return &cp
	}
	return nil
}

// DeleteDeviceMetrics removes all metrics for a device.
func DeleteDeviceMetrics(device string) {
	vaapiSupportedFormats.DeleteLabelValues(device)
	vaapiExportUnsupported.DeleteLabelValues(device)
	vaapiMaps.DeletePartialMatch(prometheus.Labels{"device": device})
	vaapiProbeCandidates.DeletePartialMatch(prometheus.Labels{"device": device})

	deviceCacheMu.Lock()
	delete(deviceCache, device)
	deviceCacheMu.Unlock()
}

func updateCache(device string, fn func(*DeviceMetrics)) {
	deviceCacheMu.Lock()
	defer deviceCacheMu.Unlock()
	m, ok := deviceCache[device]
	if !ok {
		m = &DeviceMetrics{}
		deviceCache[device] = m
	}
	fn(m)
}
