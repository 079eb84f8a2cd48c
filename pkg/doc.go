// Package pkg provides shared utilities for the geckousb device stack.
//
// This package contains functionality used by the controller driver, the
// request processor and the class layers:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors for configuration, hardware and transfer failures
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with a component attribute:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentController, "attached", "state", "powered")
//
// # Errors
//
// Errors are sentinel values, wrapped with context by callers:
//
//	if errors.Is(err, pkg.ErrFIFOOverflow) {
//	    // shrink the endpoint table
//	}
package pkg
