// Package logging provides the proxy's structured logging: a small
// subsystem-tagged wrapper around log/slog with CLI and channel-based
// output modes behind a single package-level logger.
//
// # Log Levels
//   - Debug: detailed information for debugging and development
//   - Info: general informational messages about proxy operation
//   - Warn: warning messages that indicate potential issues
//   - Error: error messages for failures and exceptional conditions
//
// # Output Modes
//
// Initcommon selects the handler: "tui" routes entries onto a buffered
// LogEntry channel, for a caller that wants to consume and render log
// output itself rather than have it written to a stream; any other mode
// name writes structured text directly to the given io.Writer via
// slog.TextHandler. InitForCLI is a convenience wrapper over the CLI
// case, used by cmd/proxyd at startup.
//
// Each entry carries a timestamp, level, subsystem tag (e.g. "loader",
// "outbound", "session", "reload"), formatted message, optional error,
// and any slog.Attr structured fields.
//
// # Usage
//
//	import "mcpmux/pkg/logging"
//
//	logging.InitForCLI(logging.LevelInfo, os.Stdout)
//	logging.Info("loader", "loaded %d servers", len(servers))
//	logging.Warn("outbound", "attempt %d/%d for %q failed: %v", attempt, max, name, err)
//	logging.Error("reload", err, "failed to apply config diff")
//
// Logr bridges the configured handler to a logr.Logger for components,
// such as pkg/oauth's HTTP client, that accept logr rather than calling
// this package's functions directly.
package logging
