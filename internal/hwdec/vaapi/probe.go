package vaapi

import (
	"github.com/smazurov/hwinterop/internal/events"
	"github.com/smazurov/hwinterop/internal/hwdec"
	"github.com/smazurov/hwinterop/internal/hwdec/va"
	"github.com/smazurov/hwinterop/internal/metrics"
)

// probeSize is the width and height of the surface allocated per candidate.
const probeSize = 128

// Probe outcomes, used as metric labels and event results.
const (
	ProbeSupported   = "supported"
	ProbeRejected    = "rejected"
	ProbeAllocFailed = "alloc_failed"
)

// determineWorkingFormats maps one real surface per candidate software
// format and keeps the ones that made it through, in constraint order.
func (d *Device) determineWorkingFormats() hwdec.FormatSet {
	d.probingFormats = true
	defer func() { d.probingFormats = false }()

	var working []hwdec.ImageFormat

	fc, err := d.ctx.Device.FramesConstraints()
	if err != nil {
		d.logger.Warn("Failed to retrieve frame constraints", "error", err)
	} else {
		for _, sw := range fc.ValidSWFormats {
			got, result := d.tryFormat(sw)
			d.logger.Debug("Probed software format", "format", sw.String(), "result", result)
			metrics.RecordProbeCandidate(d.id, result)
			d.publish(events.FormatProbedEvent{
				DeviceID:  d.id,
				Format:    sw.String(),
				Result:    result,
				Timestamp: timestamp(),
			})
			if result == ProbeSupported {
				working = append(working, got)
			}
		}
	}

	set := hwdec.NewFormatSet(working)
	if set.Empty() {
		d.logger.Debug("No working software formats")
	} else {
		d.logger.Debug("Supported software formats", "formats", set.String())
	}
	return set
}

// tryFormat allocates a probe surface of sw and runs it through a mapper.
// It returns the sub-format of the surface the pool actually produced.
func (d *Device) tryFormat(sw hwdec.ImageFormat) (hwdec.ImageFormat, string) {
	pool, err := d.ctx.Device.NewFramePool(va.FramePoolConfig{
		Format:   hwdec.FormatVAAPI,
		SWFormat: sw,
		Width:    probeSize,
		Height:   probeSize,
	})
	if err != nil {
		d.logger.Debug("Failed to create probe frame pool", "format", sw.String(), "error", err)
		return hwdec.FormatNone, ProbeAllocFailed
	}
	defer pool.Close()

	surface, err := pool.GetSurface()
	if err != nil {
		d.logger.Debug("Failed to allocate probe surface", "format", sw.String(), "error", err)
		return hwdec.FormatNone, ProbeAllocFailed
	}
	defer surface.Release()

	got := surface.Params.HWSubFormat
	m, err := d.CreateMapper(surface.Params)
	if err != nil {
		return got, ProbeRejected
	}
	defer m.Destroy()

	if err := m.Map(surface); err != nil {
		return got, ProbeRejected
	}
	m.Unmap()
	return got, ProbeSupported
}
