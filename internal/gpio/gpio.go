// Package gpio provides the water probes and pump relay with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Probe reads a single water-presence sensor.
type Probe interface {
	// WaterPresent returns the logical reading: true = water at the probe.
	WaterPresent() (bool, error)

	// Label is the human-readable sensor name, e.g. "Bottom".
	Label() string

	// Close releases GPIO resources.
	Close() error
}

// Relay drives the pump motor.
type Relay interface {
	On() error
	Off() error

	// Running reports the last state successfully written.
	Running() bool

	// Close turns the relay off and releases GPIO resources.
	Close() error
}

// Default pin definitions (BCM numbering).
const (
	DefaultPinPump   = 12
	DefaultPinBottom = 5
	DefaultPinTop    = 6
)

// DefaultChip is the GPIO character device used on a Raspberry Pi.
const DefaultChip = "gpiochip0"

const consumer = "sump-controller"

// WaterString renders a reading for display and status payloads.
func WaterString(present bool) string {
	if present {
		return "water"
	}
	return "dry"
}
