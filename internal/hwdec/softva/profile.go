package softva

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/hwinterop/internal/hwdec"
	"github.com/smazurov/hwinterop/internal/hwdec/va"
)

// Export modes.
const (
	ExportSupported     = "supported"
	ExportUnimplemented = "unimplemented"
	ExportBroken        = "broken"
)

// Profile describes the driver the runtime emulates.
type Profile struct {
	Vendor  string `toml:"vendor"`
	Version string `toml:"version"`
	// Export is supported, unimplemented or broken. Unimplemented makes
	// every export fail with StatusUnimplemented.
	Export          string          `toml:"export"`
	ConstraintsFail bool            `toml:"constraints_fail"`
	NoDevice        bool            `toml:"no_device"`
	Formats         []FormatProfile `toml:"formats"`
}

// FormatProfile is one nominal software format of the emulated device.
type FormatProfile struct {
	Name string `toml:"name"`
	// FourCC overrides the code reported by export and derive. "YV12"
	// stores yuv420p chroma as V then U.
	FourCC     string `toml:"fourcc,omitempty"`
	AllocFail  bool   `toml:"alloc_fail,omitempty"`
	DeriveFail bool   `toml:"derive_fail,omitempty"`
	ExportFail bool   `toml:"export_fail,omitempty"`
}

// DefaultProfile is an emulated driver with working export and the
// formats of a typical integrated GPU.
func DefaultProfile() Profile {
	return Profile{
		Vendor:  "softva emulated VA-API driver",
		Version: "1.20",
		Export:  ExportSupported,
		Formats: []FormatProfile{
			{Name: "nv12"},
			{Name: "p010"},
			{Name: "yuv420p"},
			{Name: "yuyv422"},
			{Name: "bgra"},
		},
	}
}

// LoadProfile reads a TOML profile. Missing keys keep DefaultProfile values,
// except formats, which replace the default list when present.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read softva profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes and validates a TOML profile.
func ParseProfile(data []byte) (Profile, error) {
	p := DefaultProfile()
	p.Formats = nil
	if err := toml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse softva profile: %w", err)
	}
	if p.Formats == nil {
		p.Formats = DefaultProfile().Formats
	}
	if _, err := p.resolve(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Encode renders the profile as TOML.
func (p Profile) Encode() ([]byte, error) {
	return toml.Marshal(p)
}

// config is a validated profile.
type config struct {
	vendor          string
	version         va.Version
	export          string
	constraintsFail bool
	noDevice        bool
	formats         []formatSpec
}

type formatSpec struct {
	sw         hwdec.ImageFormat
	fourcc     hwdec.FourCC
	allocFail  bool
	deriveFail bool
	exportFail bool
}

func (p Profile) resolve() (config, error) {
	version, err := va.ParseVersion(p.Version)
	if err != nil {
		return config{}, err
	}
	cfg := config{
		vendor:          p.Vendor,
		version:         version,
		export:          p.Export,
		constraintsFail: p.ConstraintsFail,
		noDevice:        p.NoDevice,
	}
	switch cfg.export {
	case "":
		cfg.export = ExportSupported
	case ExportSupported, ExportUnimplemented, ExportBroken:
	default:
		return config{}, fmt.Errorf("softva: unknown export mode %q", p.Export)
	}

	seen := map[hwdec.ImageFormat]bool{}
	for _, fp := range p.Formats {
		sw, ok := hwdec.ParseImageFormat(fp.Name)
		if !ok || sw.IsHW() {
			return config{}, fmt.Errorf("softva: unknown software format %q", fp.Name)
		}
		if seen[sw] {
			return config{}, fmt.Errorf("softva: format %s listed twice", sw)
		}
		seen[sw] = true

		code := defaultFourCC(sw)
		if fp.FourCC != "" {
			if code, ok = hwdec.ParseFourCC(fp.FourCC); !ok {
				return config{}, fmt.Errorf("softva: invalid fourcc %q for %s", fp.FourCC, sw)
			}
		}
		if _, ok := layouts[code]; !ok {
			return config{}, fmt.Errorf("softva: no surface layout for fourcc %s", code)
		}
		cfg.formats = append(cfg.formats, formatSpec{
			sw:         sw,
			fourcc:     code,
			allocFail:  fp.AllocFail,
			deriveFail: fp.DeriveFail,
			exportFail: fp.ExportFail,
		})
	}
	return cfg, nil
}

func (c config) format(sw hwdec.ImageFormat) (formatSpec, bool) {
	for _, f := range c.formats {
		if f.sw == sw {
			return f, true
		}
	}
	return formatSpec{}, false
}
