package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/smazurov/hwinterop/internal/devices"
	_ "github.com/smazurov/hwinterop/internal/hwdec/interop/egl"
	_ "github.com/smazurov/hwinterop/internal/hwdec/interop/vulkan"
	"github.com/smazurov/hwinterop/internal/hwdec/softva"
	"github.com/smazurov/hwinterop/internal/hwdec/va"
	"github.com/smazurov/hwinterop/internal/hwdec/vaapi"
	"github.com/smazurov/hwinterop/internal/logging"
	"github.com/smazurov/hwinterop/internal/ra"
	"github.com/smazurov/hwinterop/internal/version"
	"github.com/smazurov/hwinterop/pkg/linuxav/drm"
)

// ProbeReport is the file written by probe --output.
type ProbeReport struct {
	Build  version.Info `toml:"build"`
	Node   string       `toml:"render_node"`
	Device vaapi.Report `toml:"device"`
}

// ProbeOptions are the probe command flags.
type ProbeOptions struct {
	RenderNode string
	Runtime    string
	Profile    string
	Renderer   string
	Interops   []string
	Displays   []string
	Probing    bool
	Output     string
	Quiet      bool
}

// CreateProbeCmd creates the probe command.
func CreateProbeCmd() *cobra.Command {
	var opts ProbeOptions

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Probe which decoded-surface formats map to textures",
		Long: `Attaches one VA-API interop device on a render node, runs the format probe and prints ` +
			`the software formats that can be mapped. With --output the report is also written as TOML.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := "info"
			if opts.Quiet {
				level = "warn"
			}
			logging.Initialize(logging.Config{Level: level, Format: "text"})

			report, err := RunProbe(opts)
			if err != nil {
				return err
			}
			if !opts.Quiet {
				PrintReport(cmd.OutOrStdout(), report.Device)
			}
			if opts.Output != "" {
				return WriteReport(opts.Output, report)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.RenderNode, "render-node", "n", "", "Render node name or path (default: first node found)")
	f.StringVar(&opts.Runtime, "runtime", softva.Name, "VA runtime ("+strings.Join(va.Runtimes(), ", ")+")")
	f.StringVar(&opts.Profile, "profile", "", "Runtime profile file")
	f.StringVar(&opts.Renderer, "renderer", "egl", "Headless renderer import paths (egl, vulkan, both)")
	f.StringSliceVar(&opts.Interops, "interop", nil, "Allowed interop backends")
	f.StringSliceVar(&opts.Displays, "display", nil, "Allowed display backends")
	f.BoolVar(&opts.Probing, "probing", false, "Reject emulated drivers, as automatic probing does")
	f.StringVarP(&opts.Output, "output", "o", "", "Write the report to this TOML file")
	f.BoolVarP(&opts.Quiet, "quiet", "q", false, "Print nothing but warnings and errors")
	return cmd
}

// RunProbe attaches a device with opts, captures its report and closes it.
func RunProbe(opts ProbeOptions) (ProbeReport, error) {
	rt, err := va.Open(opts.Runtime, opts.Profile)
	if err != nil {
		return ProbeReport{}, err
	}

	node := opts.RenderNode
	if node == "" {
		nodes, err := drm.FindRenderNodes()
		if err != nil {
			return ProbeReport{}, err
		}
		if len(nodes) == 0 {
			return ProbeReport{}, errors.New("no render nodes found, pass --render-node")
		}
		node = nodes[0].Path
	}
	path := drm.Path(node)

	renderer, err := devices.ParseRenderer(opts.Renderer)
	if err != nil {
		return ProbeReport{}, err
	}
	fd, err := drm.OpenRenderNode(path)
	if err != nil {
		return ProbeReport{}, err
	}
	defer drm.CloseRenderNode(fd)
	renderer.RenderFD = fd

	dev, err := vaapi.Open(vaapi.Options{
		ID:       filepath.Base(path),
		Renderer: ra.NewHeadless(renderer),
		Runtime:  rt,
		Probing:  opts.Probing,
		Interops: opts.Interops,
		Displays: opts.Displays,
		Logger:   logging.GetLogger("probe"),
	})
	if err != nil {
		return ProbeReport{}, fmt.Errorf("probe %s: %w", path, err)
	}
	defer dev.Close()

	return ProbeReport{Build: version.Get(), Node: path, Device: dev.Report()}, nil
}

// PrintReport writes a human-readable summary.
func PrintReport(w io.Writer, r vaapi.Report) {
	fmt.Fprintf(w, "Device:         %s\n", r.ID)
	fmt.Fprintf(w, "Vendor:         %s (VA-API %s)\n", r.Vendor, r.APIVersion)
	fmt.Fprintf(w, "Display:        %s\n", r.Display)
	fmt.Fprintf(w, "Interop:        %s\n", r.Interop)
	fmt.Fprintf(w, "Surface export: %s\n", r.ExportSupport)
	fmt.Fprintf(w, "Formats:        %s\n", strings.Join(r.Formats, " "))
}

// WriteReport saves the report as TOML.
func WriteReport(path string, r ProbeReport) error {
	data, err := toml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
