// Package pkg provides shared utilities for the smistream packages.
//
// It contains structured logging via [log/slog] tagged with a component
// name, and the sentinel errors returned by the bus, engine and stream
// layers.
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentStream, "state changed", "state", "rx_a")
//
//	if errors.Is(err, pkg.ErrInvalidTransition) {
//	    // retry the state change
//	}
package pkg
