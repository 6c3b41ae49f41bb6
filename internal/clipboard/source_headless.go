//go:build !darwin && !linux && !windows

package clipboard

import "log/slog"

// NewSource returns the headless backend on platforms without clipboard support
func NewSource() Source {
	slog.Warn("clipboard unsupported on this platform, running headless")
	return Headless()
}
