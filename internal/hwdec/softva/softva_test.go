package softva

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/smazurov/hwinterop/internal/hwdec"
	"github.com/smazurov/hwinterop/internal/hwdec/va"
)

func newDevice(t *testing.T, p Profile) (*Runtime, *Display, va.Device) {
	t.Helper()
	rt, err := New(p)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	d, ok := rt.DisplayFromDRM(3).(*Display)
	if !ok {
		t.Fatal("DisplayFromDRM() returned no display")
	}
	ctx, err := rt.NewContext(d)
	if err != nil {
		t.Fatalf("NewContext() error = %v", err)
	}
	t.Cleanup(func() { ctx.Close() })
	return rt, d, ctx.Device
}

func newSurface(t *testing.T, dev va.Device, sw hwdec.ImageFormat, w, h int) *hwdec.Surface {
	t.Helper()
	pool, err := dev.NewFramePool(va.FramePoolConfig{Format: hwdec.FormatVAAPI, SWFormat: sw, Width: w, Height: h})
	if err != nil {
		t.Fatalf("NewFramePool(%s) error = %v", sw, err)
	}
	defer pool.Close()
	s, err := pool.GetSurface()
	if err != nil {
		t.Fatalf("GetSurface() error = %v", err)
	}
	return s
}

func TestParseProfile(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		check   func(t *testing.T, p Profile)
		wantErr string
	}{
		{
			name:  "empty keeps defaults",
			input: "",
			check: func(t *testing.T, p Profile) {
				if p.Version != "1.20" || len(p.Formats) != len(DefaultProfile().Formats) {
					t.Errorf("unexpected profile %+v", p)
				}
			},
		},
		{
			name: "full profile",
			input: `
vendor = "softva emulated test driver"
version = "1.0"
export = "unimplemented"
constraints_fail = true

[[formats]]
name = "yuv420p"
fourcc = "YV12"
derive_fail = true

[[formats]]
name = "nv12"
alloc_fail = true
`,
			check: func(t *testing.T, p Profile) {
				if p.Export != ExportUnimplemented || !p.ConstraintsFail || p.Version != "1.0" {
					t.Errorf("unexpected profile %+v", p)
				}
				if len(p.Formats) != 2 || p.Formats[0].FourCC != "YV12" || !p.Formats[0].DeriveFail || !p.Formats[1].AllocFail {
					t.Errorf("unexpected formats %+v", p.Formats)
				}
			},
		},
		{name: "bad version", input: `version = "new"`, wantErr: "invalid VA-API version"},
		{name: "bad export mode", input: `export = "sometimes"`, wantErr: "unknown export mode"},
		{name: "unknown format", input: "[[formats]]\nname = \"xyz\"", wantErr: "unknown software format"},
		{name: "hardware format", input: "[[formats]]\nname = \"vaapi\"", wantErr: "unknown software format"},
		{name: "duplicate format", input: "[[formats]]\nname = \"nv12\"\n[[formats]]\nname = \"nv12\"", wantErr: "listed twice"},
		{name: "unknown fourcc", input: "[[formats]]\nname = \"nv12\"\nfourcc = \"ABCD\"", wantErr: "no surface layout"},
		{name: "invalid toml", input: "vendor = ", wantErr: "parse softva profile"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseProfile([]byte(tt.input))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("ParseProfile() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseProfile() error = %v", err)
			}
			tt.check(t, p)
		})
	}
}

func TestLoadProfileRoundTrip(t *testing.T) {
	p := DefaultProfile()
	p.Export = ExportBroken
	p.Formats[0].ExportFail = true

	data, err := p.Encode()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "profile.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile() error = %v", err)
	}
	if got.Export != ExportBroken || !got.Formats[0].ExportFail || got.Vendor != p.Vendor {
		t.Errorf("LoadProfile() = %+v", got)
	}

	if _, err := LoadProfile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("LoadProfile(missing) succeeded")
	}
}

func TestDefaultProfileIsEmulated(t *testing.T) {
	rt, err := New(DefaultProfile())
	if err != nil {
		t.Fatal(err)
	}
	d := rt.DisplayFromDRM(0)
	if !va.GuessIfEmulated(d) {
		t.Errorf("vendor %q not detected as emulated", d.Vendor())
	}
}

func TestPlacePlanes(t *testing.T) {
	tests := []struct {
		code     hwdec.FourCC
		w, h     int
		pitches  []uint32
		offsets  []uint32
		wantSize int64
	}{
		{code: hwdec.FourCCNV12, w: 64, h: 48, pitches: []uint32{64, 64}, offsets: []uint32{0, 3072}, wantSize: 4608},
		{code: hwdec.FourCCP010, w: 64, h: 48, pitches: []uint32{128, 128}, offsets: []uint32{0, 6144}, wantSize: 9216},
		{code: hwdec.FourCCI420, w: 130, h: 10, pitches: []uint32{192, 128, 128}, offsets: []uint32{0, 1920, 2560}, wantSize: 3200},
		{code: hwdec.FourCCBGRA, w: 10, h: 2, pitches: []uint32{64}, offsets: []uint32{0}, wantSize: 128},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			planes, size := placePlanes(tt.code, tt.w, tt.h)
			if size != tt.wantSize {
				t.Errorf("size = %d, want %d", size, tt.wantSize)
			}
			if len(planes) != len(tt.pitches) {
				t.Fatalf("got %d planes", len(planes))
			}
			for i, p := range planes {
				if p.pitch != tt.pitches[i] || p.offset != tt.offsets[i] {
					t.Errorf("plane %d = %+v", i, p)
				}
			}
		})
	}
}

func TestExportSurface(t *testing.T) {
	_, d, dev := newDevice(t, DefaultProfile())
	s := newSurface(t, dev, hwdec.FormatNV12, 64, 48)
	defer s.Release()

	desc, err := d.ExportSurfaceHandle(s.ID, va.MemTypeDRMPrime2, va.ExportReadOnly|va.ExportSeparateLayers)
	if err != nil {
		t.Fatalf("ExportSurfaceHandle() error = %v", err)
	}
	if desc.FourCC != hwdec.FourCCNV12 || len(desc.Objects) != 1 || len(desc.Layers) != 2 {
		t.Fatalf("descriptor = %+v", desc)
	}
	if desc.Layers[0].DRMFormat != hwdec.DRMFormatR8 || desc.Layers[1].DRMFormat != hwdec.DRMFormatGR88 {
		t.Errorf("layer formats = %s, %s", desc.Layers[0].DRMFormat, desc.Layers[1].DRMFormat)
	}
	if desc.Layers[1].Offset[0] != 3072 {
		t.Errorf("chroma offset = %d", desc.Layers[1].Offset[0])
	}

	var st unix.Stat_t
	if err := unix.Fstat(desc.Objects[0].FD, &st); err != nil {
		t.Fatalf("exported fd not usable: %v", err)
	}
	if st.Size != 4608 || int64(desc.Objects[0].Size) != st.Size {
		t.Errorf("object size = %d, file size = %d", desc.Objects[0].Size, st.Size)
	}

	if got := d.Stats().OpenExports; got != 1 {
		t.Errorf("OpenExports = %d, want 1", got)
	}
	unix.Close(desc.Objects[0].FD)
	if got := d.Stats().OpenExports; got != 0 {
		t.Errorf("OpenExports after close = %d, want 0", got)
	}
}

func TestExportErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Profile)
		memType uint32
		flags   uint32
		want    error
	}{
		{name: "unimplemented", mutate: func(p *Profile) { p.Export = ExportUnimplemented }, want: va.StatusUnimplemented},
		{name: "broken", mutate: func(p *Profile) { p.Export = ExportBroken }, want: va.StatusOperationFailed},
		{name: "per-format failure", mutate: func(p *Profile) { p.Formats[0].ExportFail = true }, want: va.StatusOperationFailed},
		{name: "legacy memory type", memType: va.MemTypeDRMPrime, want: va.StatusUnsupportedMemoryType},
		{name: "composed layers", flags: va.ExportReadOnly | va.ExportComposedLayers, want: va.StatusInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultProfile()
			if tt.mutate != nil {
				tt.mutate(&p)
			}
			memType, flags := tt.memType, tt.flags
			if memType == 0 {
				memType = va.MemTypeDRMPrime2
			}
			if flags == 0 {
				flags = va.ExportReadOnly | va.ExportSeparateLayers
			}

			_, d, dev := newDevice(t, p)
			s := newSurface(t, dev, hwdec.FormatNV12, 16, 16)
			defer s.Release()

			if _, err := d.ExportSurfaceHandle(s.ID, memType, flags); !errors.Is(err, tt.want) {
				t.Errorf("ExportSurfaceHandle() error = %v, want %v", err, tt.want)
			}
			if d.Stats().OpenExports != 0 {
				t.Error("failed export leaked an fd")
			}
		})
	}
}

func TestDeriveAcquireRelease(t *testing.T) {
	p := DefaultProfile()
	p.Formats = []FormatProfile{{Name: "yuv420p", FourCC: "YV12"}}
	_, d, dev := newDevice(t, p)
	s := newSurface(t, dev, hwdec.FormatYUV420P, 64, 64)
	defer s.Release()

	img, err := d.DeriveImage(s.ID)
	if err != nil {
		t.Fatalf("DeriveImage() error = %v", err)
	}
	if img.Format.FourCC != hwdec.FourCCYV12 || img.NumPlanes != 3 || img.Format.BitsPerPixel != 12 {
		t.Errorf("image = %+v", img)
	}

	info := va.BufferInfo{MemType: va.MemTypeDRMPrime}
	if err := d.AcquireBufferHandle(img.Buf, &info); err != nil {
		t.Fatalf("AcquireBufferHandle() error = %v", err)
	}
	if err := d.AcquireBufferHandle(img.Buf, &info); err == nil {
		t.Error("second acquire succeeded")
	}
	if err := d.DestroyImage(img.ID); !errors.Is(err, va.StatusOperationFailed) {
		t.Errorf("DestroyImage with acquired buffer = %v", err)
	}
	if st := d.Stats(); st.AcquiredBuffers != 1 || st.LiveImages != 1 {
		t.Errorf("stats = %+v", st)
	}

	fd := int(info.Handle)
	if err := d.ReleaseBufferHandle(img.Buf); err != nil {
		t.Fatalf("ReleaseBufferHandle() error = %v", err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err == nil {
		t.Error("buffer fd still open after release")
	}
	if err := d.ReleaseBufferHandle(img.Buf); !errors.Is(err, va.StatusInvalidBuffer) {
		t.Errorf("second release = %v", err)
	}
	if err := d.DestroyImage(img.ID); err != nil {
		t.Fatalf("DestroyImage() error = %v", err)
	}
	if st := d.Stats(); st.LiveImages != 0 || st.AcquiredBuffers != 0 {
		t.Errorf("stats after release = %+v", st)
	}
}

func TestAcquireRequiresPrime(t *testing.T) {
	_, d, dev := newDevice(t, DefaultProfile())
	s := newSurface(t, dev, hwdec.FormatNV12, 16, 16)
	defer s.Release()

	img, err := d.DeriveImage(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer d.DestroyImage(img.ID)

	info := va.BufferInfo{MemType: va.MemTypeDRMPrime2}
	if err := d.AcquireBufferHandle(img.Buf, &info); !errors.Is(err, va.StatusUnsupportedMemoryType) {
		t.Errorf("AcquireBufferHandle() error = %v", err)
	}
}

func TestDeviceFailures(t *testing.T) {
	t.Run("constraints", func(t *testing.T) {
		p := DefaultProfile()
		p.ConstraintsFail = true
		_, _, dev := newDevice(t, p)
		if _, err := dev.FramesConstraints(); err == nil {
			t.Error("FramesConstraints() succeeded")
		}
	})

	t.Run("allocation", func(t *testing.T) {
		p := DefaultProfile()
		p.Formats[1].AllocFail = true
		_, _, dev := newDevice(t, p)
		_, err := dev.NewFramePool(va.FramePoolConfig{Format: hwdec.FormatVAAPI, SWFormat: hwdec.FormatP010, Width: 128, Height: 128})
		if !errors.Is(err, va.StatusAllocationFailed) {
			t.Errorf("NewFramePool() error = %v", err)
		}
	})

	t.Run("unlisted format", func(t *testing.T) {
		_, _, dev := newDevice(t, DefaultProfile())
		_, err := dev.NewFramePool(va.FramePoolConfig{Format: hwdec.FormatVAAPI, SWFormat: hwdec.FormatGray8, Width: 128, Height: 128})
		if !errors.Is(err, va.StatusInvalidParameter) {
			t.Errorf("NewFramePool() error = %v", err)
		}
	})

	t.Run("no device", func(t *testing.T) {
		p := DefaultProfile()
		p.NoDevice = true
		rt, err := New(p)
		if err != nil {
			t.Fatal(err)
		}
		ctx, err := rt.NewContext(rt.DisplayFromDRM(3))
		if err != nil {
			t.Fatal(err)
		}
		defer ctx.Close()
		if ctx.Device != nil {
			t.Error("context has a device")
		}
	})
}

func TestFramesConstraintsOrder(t *testing.T) {
	_, _, dev := newDevice(t, DefaultProfile())
	fc, err := dev.FramesConstraints()
	if err != nil {
		t.Fatal(err)
	}
	want := []hwdec.ImageFormat{hwdec.FormatNV12, hwdec.FormatP010, hwdec.FormatYUV420P, hwdec.FormatYUYV422, hwdec.FormatBGRA}
	if !slices.Equal(fc.ValidSWFormats, want) {
		t.Errorf("ValidSWFormats = %v, want %v", fc.ValidSWFormats, want)
	}
}

func TestSurfaceLifetime(t *testing.T) {
	rt, d, dev := newDevice(t, DefaultProfile())
	s := newSurface(t, dev, hwdec.FormatBGRA, 32, 32)

	code, size, ok := d.Surface(s.ID)
	if !ok || code != hwdec.FourCCBGRA || size != 32*128 {
		t.Errorf("Surface() = %s, %d, %v", code, size, ok)
	}
	if rt.Stats().LiveSurfaces != 1 {
		t.Errorf("LiveSurfaces = %d", rt.Stats().LiveSurfaces)
	}
	s.Release()
	s.Release()
	if rt.Stats().LiveSurfaces != 0 {
		t.Error("surface not released")
	}
	if _, err := d.DeriveImage(s.ID); !errors.Is(err, va.StatusInvalidSurface) {
		t.Errorf("DeriveImage(released) = %v", err)
	}
}

func TestTerminateReleasesHandles(t *testing.T) {
	rt, err := New(DefaultProfile())
	if err != nil {
		t.Fatal(err)
	}
	d := rt.DisplayFromDRM(3).(*Display)
	ctx, err := rt.NewContext(d)
	if err != nil {
		t.Fatal(err)
	}
	s := newSurface(t, ctx.Device, hwdec.FormatNV12, 16, 16)
	img, err := d.DeriveImage(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	info := va.BufferInfo{MemType: va.MemTypeDRMPrime}
	if err := d.AcquireBufferHandle(img.Buf, &info); err != nil {
		t.Fatal(err)
	}

	if err := ctx.Close(); err != nil {
		t.Fatal(err)
	}
	if st := d.Stats(); st.LiveSurfaces != 0 || st.LiveImages != 0 {
		t.Errorf("stats after terminate = %+v", st)
	}
	if _, err := rt.NewContext(d); !errors.Is(err, va.StatusInvalidDisplay) {
		t.Errorf("NewContext on terminated display = %v", err)
	}
	s.Release()
}

func TestRegisteredRuntime(t *testing.T) {
	rt, err := va.Open(Name, "")
	if err != nil {
		t.Fatalf("va.Open() error = %v", err)
	}
	if rt.Name() != Name {
		t.Errorf("Name() = %s", rt.Name())
	}
	if rt.DisplayFromX11(nil) != nil || rt.DisplayFromWayland(nil) != nil || rt.DisplayFromDRM(-1) != nil {
		t.Error("display created without a native resource")
	}
	if d := rt.DisplayFromWayland("wl"); d == nil || d.(*Display).Source() != "wayland" {
		t.Error("wayland display not created")
	}

	path := filepath.Join(t.TempDir(), "p.toml")
	if err := os.WriteFile(path, []byte(`export = "nope"`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := va.Open(Name, path); err == nil {
		t.Error("va.Open() with an invalid profile succeeded")
	}
}
