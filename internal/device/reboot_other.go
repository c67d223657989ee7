//go:build !linux

package device

// Default returns LogRestarter: rebooting is only supported on Linux.
func Default() Restarter {
	return LogRestarter{}
}
