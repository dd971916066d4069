package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smazurov/hwinterop/cmd"
	"github.com/smazurov/hwinterop/internal/api"
	"github.com/smazurov/hwinterop/internal/config"
	"github.com/smazurov/hwinterop/internal/devices"
	"github.com/smazurov/hwinterop/internal/events"
	_ "github.com/smazurov/hwinterop/internal/hwdec/interop/egl"
	_ "github.com/smazurov/hwinterop/internal/hwdec/interop/vulkan"
	"github.com/smazurov/hwinterop/internal/hwdec/softva"
	"github.com/smazurov/hwinterop/internal/hwdec/va"
	"github.com/smazurov/hwinterop/internal/logging"
	"github.com/smazurov/hwinterop/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
// Lists are comma separated strings; in the config file they may also be arrays.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings, empty username disables auth
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Hardware decoding settings
	HwdecRuntime     string `help:"VA runtime" default:"softva" toml:"hwdec.runtime" env:"HWDEC_RUNTIME"`
	HwdecProfile     string `help:"Runtime profile file, reloaded on change" default:"" toml:"hwdec.profile" env:"HWDEC_PROFILE"`
	HwdecRenderNodes string `help:"Render nodes to attach (default: all)" default:"" toml:"hwdec.render_nodes" env:"HWDEC_RENDER_NODES"`
	HwdecRenderer    string `help:"Headless renderer import paths (egl, vulkan, both)" default:"egl" toml:"hwdec.renderer" env:"HWDEC_RENDERER"`
	HwdecInterops    string `help:"Allowed interop backends (default: all)" default:"" toml:"hwdec.interops" env:"HWDEC_INTEROPS"`
	HwdecDisplays    string `help:"Allowed display backends (default: all)" default:"" toml:"hwdec.displays" env:"HWDEC_DISPLAYS"`
	HwdecProbing     bool   `help:"Reject emulated drivers" default:"false" toml:"hwdec.probing" env:"HWDEC_PROBING"`
	HwdecHotplug     bool   `help:"Follow render node hotplug" default:"true" toml:"hwdec.hotplug" env:"HWDEC_HOTPLUG"`

	// Observability settings
	ObsPrometheusEnabled bool `help:"Enable Prometheus" default:"true" toml:"obs.prometheus_enabled" env:"OBS_PROMETHEUS_ENABLED"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingVaapi   string `help:"VA-API device logging level" default:"info" toml:"logging.vaapi" env:"LOGGING_VAAPI"`
	LoggingInterop string `help:"Interop backend logging level" default:"info" toml:"logging.interop" env:"LOGGING_INTEROP"`
	LoggingSoftva  string `help:"Software runtime logging level" default:"info" toml:"logging.softva" env:"LOGGING_SOFTVA"`
	LoggingDevices string `help:"Devices logging level" default:"info" toml:"logging.devices" env:"LOGGING_DEVICES"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP    string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"vaapi":   opts.LoggingVaapi,
				"interop": opts.LoggingInterop,
				"softva":  opts.LoggingSoftva,
				"devices": opts.LoggingDevices,
				"api":     opts.LoggingAPI,
				"http":    opts.LoggingHTTP,
			},
		})

		logger := logging.GetLogger("main")

		eventBus := events.New()

		manager, err := devices.NewManager(devices.Options{
			RenderNodes: config.SplitList(opts.HwdecRenderNodes),
			Renderer:    opts.HwdecRenderer,
			Probing:     opts.HwdecProbing,
			Interops:    config.SplitList(opts.HwdecInterops),
			Displays:    config.SplitList(opts.HwdecDisplays),
			Hotplug:     opts.HwdecHotplug,
			Events:      eventBus,
			Logger:      logging.GetLogger("devices"),
		})
		if err != nil {
			logger.Error("Invalid hwdec settings", "error", err)
			os.Exit(1)
		}

		runtime, err := va.Open(opts.HwdecRuntime, opts.HwdecProfile)
		if err != nil {
			logger.Error("Failed to open VA runtime", "runtime", opts.HwdecRuntime, "error", err)
			os.Exit(1)
		}
		manager.SetRuntime(runtime)

		// Profile edits re-attach every device with the new runtime
		var profileWatcher *config.Watcher[va.Runtime]
		if opts.HwdecRuntime == softva.Name && opts.HwdecProfile != "" {
			profileWatcher = config.NewConfigWatcher(opts.HwdecProfile, func(path string) (va.Runtime, error) {
				return va.Open(softva.Name, path)
			}, logging.GetLogger("softva"))
			profileWatcher.OnReload(manager.SetRuntime)
		}

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Devices:      manager,
			EventBus:     eventBus,
		}
		if opts.ObsPrometheusEnabled {
			apiOpts.PrometheusHandler = promhttp.Handler()
		}
		server := api.NewServer(apiOpts)

		hooks.OnStart(func() {
			ctx := context.Background()
			if startErr := manager.Start(ctx); startErr != nil {
				logger.Error("Failed to start device manager", "error", startErr)
				os.Exit(1)
			}
			if profileWatcher != nil {
				if startErr := profileWatcher.Start(ctx); startErr != nil {
					logger.Warn("Failed to watch runtime profile", "path", opts.HwdecProfile, "error", startErr)
				}
			}

			if sent, notifyErr := daemon.SdNotify(false, daemon.SdNotifyReady); notifyErr != nil {
				logger.Warn("Failed to notify systemd", "error", notifyErr)
			} else if sent {
				logger.Debug("Notified systemd of readiness")
			}

			logger.Info("Starting HTTP server", "port", opts.Port, "version", version.Version)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			if _, notifyErr := daemon.SdNotify(false, daemon.SdNotifyStopping); notifyErr != nil {
				logger.Debug("Failed to notify systemd", "error", notifyErr)
			}
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			if profileWatcher != nil {
				if stopErr := profileWatcher.Stop(); stopErr != nil {
					logger.Warn("Error stopping profile watcher", "error", stopErr)
				}
			}
			manager.Stop()
		})
	})

	cli.Root().Use = "hwinterop"
	cli.Root().Short = "Map VA-API decoded surfaces into GPU textures"
	cli.Root().Version = version.Get().String()

	cli.Root().AddCommand(cmd.CreateProbeCmd())
	cli.Root().AddCommand(cmd.CreateNodesCmd())

	cli.Run()
}
