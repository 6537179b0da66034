// Package pkg provides shared utilities for the softscsi storage-unit stack.
//
// This package contains common functionality used across the storage unit,
// dispatcher, channel transports, and storage backends, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error values for contract and transport failures
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with storage-stack context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentUnit, "storage unit created", "blocks", 1<<20)
//
// # Errors
//
// Common failures are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrChannelClosed) {
//	    // Channel torn down; dispatcher stops cleanly.
//	}
package pkg
