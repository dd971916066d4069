package vaapi

import "time"

// Report is a snapshot of a device, as printed by the probe command and
// served by the API.
type Report struct {
	ID            string    `toml:"id" json:"id"`
	Driver        string    `toml:"driver" json:"driver"`
	Vendor        string    `toml:"vendor" json:"vendor"`
	APIVersion    string    `toml:"api_version" json:"api_version"`
	Display       string    `toml:"display" json:"display"`
	Interop       string    `toml:"interop" json:"interop"`
	ExportSupport string    `toml:"export_support" json:"export_support"`
	Formats       []string  `toml:"formats" json:"formats"`
	OpenedAt      time.Time `toml:"opened_at" json:"opened_at"`
}

// Report returns the current device snapshot.
func (d *Device) Report() Report {
	display := d.ctx.Display
	return Report{
		ID:            d.id,
		Driver:        DriverName,
		Vendor:        display.Vendor(),
		APIVersion:    display.Version().String(),
		Display:       d.displayName,
		Interop:       d.interop.Name,
		ExportSupport: d.ExportSupport().String(),
		Formats:       d.formats.Strings(),
		OpenedAt:      d.openedAt,
	}
}
