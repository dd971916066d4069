// Package logging provides slog loggers with a level per module.
//
// Records go to the systemd journal when journald is reachable, to stdout
// when something is attached to it, or to both. The last entries are also
// kept in memory and served by the API (see History).
//
// Initialize once at startup, then ask for a logger per module:
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"vaapi": "debug"},
//	})
//
//	logger := logging.GetLogger("vaapi").With("device", "renderD128")
//	logger.Debug("Probed software format", "format", "nv12", "result", "supported")
//
// Module levels come from flat keys in the config file:
//
//	[logging]
//	level = "info"
//	vaapi = "debug"
//	devices = "warn"
//
// Journal entries carry SYSLOG_IDENTIFIER=hwinterop and one upper-cased
// field per attribute, so they can be filtered directly:
//
//	journalctl -t hwinterop MODULE=vaapi DEVICE=renderD128
package logging
