// Package logging provides structured logging using uber/zap.
//
// Two modes are available:
//   - Production: JSON lines on stderr for machine parsing
//   - Development: colored console output for humans (--verbose)
//
// Everything goes to stderr. Stdout belongs to command output, and the
// sidecar's own stdout is the announcement channel, so the shell never
// writes diagnostics there.
//
// Example Usage:
//
//	logger, err := logging.New(logging.DefaultConfig())
//	logger.Info("backend port resolved", zap.Uint16("port", 5173))
//	logger.Error("backend sidecar error", zap.Error(err))
package logging
