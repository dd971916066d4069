package va

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/smazurov/hwinterop/internal/hwdec"
)

type vendorDisplay struct {
	Display
	vendor     string
	terminated bool
}

func (d *vendorDisplay) Vendor() string { return d.vendor }

func (d *vendorDisplay) Terminate() error {
	d.terminated = true
	return nil
}

func TestGuessIfEmulated(t *testing.T) {
	tests := []struct {
		vendor   string
		emulated bool
	}{
		{"Intel iHD driver for Intel(R) Gen Graphics - 24.1.0", false},
		{"Mesa Gallium driver 24.0.5 for AMD Radeon RX 6600", false},
		{"Splitted-Desktop Systems VDPAU backend for VA-API - 0.7.4", true},
		{"VDPAU backend for VA-API", true},
		{"softva Emulated driver", true},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.vendor, func(t *testing.T) {
			if got := GuessIfEmulated(&vendorDisplay{vendor: tt.vendor}); got != tt.emulated {
				t.Errorf("GuessIfEmulated(%q) = %v, want %v", tt.vendor, got, tt.emulated)
			}
		})
	}
}

func TestStatusIsComparable(t *testing.T) {
	err := fmt.Errorf("export: %w", StatusUnimplemented)
	if !errors.Is(err, StatusUnimplemented) {
		t.Error("wrapped status not matched")
	}
	if errors.Is(err, StatusOperationFailed) {
		t.Error("different status matched")
	}
	if !strings.Contains(Status(0x99).Error(), "0x99") {
		t.Errorf("unknown status text: %q", Status(0x99).Error())
	}
}

func TestVersion(t *testing.T) {
	tests := []struct {
		in           string
		major, minor int
		atLeast11    bool
	}{
		{"1.0", 1, 0, false},
		{"1.1", 1, 1, true},
		{"1.22", 1, 22, true},
		{"2.0", 2, 0, true},
		{"0.40", 0, 40, false},
	}
	for _, tt := range tests {
		v, err := ParseVersion(tt.in)
		if err != nil {
			t.Fatalf("ParseVersion(%q): %v", tt.in, err)
		}
		if v.Major != tt.major || v.Minor != tt.minor {
			t.Errorf("ParseVersion(%q) = %v", tt.in, v)
		}
		if v.AtLeast(1, 1) != tt.atLeast11 {
			t.Errorf("%v.AtLeast(1, 1) = %v", v, !tt.atLeast11)
		}
	}
	if _, err := ParseVersion("one"); err == nil {
		t.Error("expected parse error")
	}
}

func TestContextClose(t *testing.T) {
	d := &vendorDisplay{}
	ctx := &Context{Display: d}
	if err := ctx.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if !d.terminated {
		t.Error("display not terminated")
	}
}

func TestRegistry(t *testing.T) {
	Register("test-runtime", func(profile string) (Runtime, error) {
		return nil, errors.New("profile " + profile)
	})
	if !slices.Contains(Runtimes(), "test-runtime") {
		t.Fatalf("Runtimes() = %v", Runtimes())
	}
	if _, err := Open("test-runtime", "x.toml"); err == nil || !strings.Contains(err.Error(), "x.toml") {
		t.Errorf("Open() error = %v", err)
	}
	if _, err := Open("missing", ""); err == nil {
		t.Error("Open(missing) should fail")
	}

	defer func() {
		if recover() == nil {
			t.Error("duplicate Register should panic")
		}
	}()
	Register("test-runtime", nil)
}

func TestPrimeDescriptorPlane(t *testing.T) {
	desc := &PrimeDescriptor{
		Objects: []PrimeObject{{FD: 10}, {FD: 11}},
		Layers: []PrimeLayer{
			{DRMFormat: hwdec.DRMFormatR8, NumPlanes: 1, Offset: [MaxPlanes]uint32{0}, Pitch: [MaxPlanes]uint32{256}},
			{DRMFormat: hwdec.DRMFormatGR88, NumPlanes: 1, ObjectIndex: [MaxPlanes]int{1}, Pitch: [MaxPlanes]uint32{256}},
			{DRMFormat: hwdec.DRMFormatR8, NumPlanes: 2},
			{DRMFormat: hwdec.DRMFormatR8, NumPlanes: 1, ObjectIndex: [MaxPlanes]int{5}},
		},
	}

	tests := []struct {
		n       int
		wantFD  int
		wantErr bool
	}{
		{n: 0, wantFD: 10},
		{n: 1, wantFD: 11},
		{n: 2, wantErr: true},
		{n: 3, wantErr: true},
		{n: 4, wantErr: true},
		{n: -1, wantErr: true},
	}
	for _, tt := range tests {
		layer, obj, err := desc.Plane(tt.n)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Plane(%d) succeeded", tt.n)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Plane(%d) error = %v", tt.n, err)
		}
		if obj.FD != tt.wantFD || layer.Pitch[0] != 256 {
			t.Errorf("Plane(%d) = %+v, %+v", tt.n, layer, obj)
		}
	}
}
