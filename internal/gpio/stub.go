//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealProbe is not available on non-Linux platforms.
type RealProbe struct{}

// NewRealProbe returns an error on non-Linux platforms.
func NewRealProbe(chip string, pin int, label string, activeLow bool) (*RealProbe, error) {
	return nil, errUnsupported
}

// WaterPresent is not implemented on non-Linux platforms.
func (p *RealProbe) WaterPresent() (bool, error) { return false, errUnsupported }

// Label is not implemented on non-Linux platforms.
func (p *RealProbe) Label() string { return "" }

// Close is not implemented on non-Linux platforms.
func (p *RealProbe) Close() error { return nil }

// RealRelay is not available on non-Linux platforms.
type RealRelay struct{}

// NewRealRelay returns an error on non-Linux platforms.
func NewRealRelay(chip string, pin int) (*RealRelay, error) {
	return nil, errUnsupported
}

func (r *RealRelay) On() error     { return errUnsupported }
func (r *RealRelay) Off() error    { return errUnsupported }
func (r *RealRelay) Running() bool { return false }
func (r *RealRelay) Close() error  { return nil }
