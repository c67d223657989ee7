//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
)

// RealProbe reads a float switch from actual hardware using the GPIO character device.
type RealProbe struct {
	label string
	pin   int
	line  *gpiocdev.Line
}

// NewRealProbe requests pin on chip as an input.
// With activeLow set the reading is inverted: raw low = water present.
func NewRealProbe(chip string, pin int, label string, activeLow bool) (*RealProbe, error) {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithPullDown,
		gpiocdev.WithConsumer(consumer),
	}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := gpiocdev.RequestLine(chip, pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request %s probe pin %d: %w", label, pin, err)
	}

	return &RealProbe{label: label, pin: pin, line: line}, nil
}

// WaterPresent returns the logical probe state.
func (p *RealProbe) WaterPresent() (bool, error) {
	v, err := p.line.Value()
	if err != nil {
		return false, fmt.Errorf("read %s probe pin %d: %w", p.label, p.pin, err)
	}
	return v == 1, nil
}

// Label returns the sensor name.
func (p *RealProbe) Label() string {
	return p.label
}

// Close releases the line.
// Reconfigures the pin to input with pull-down (matching Pi boot defaults) first.
func (p *RealProbe) Close() error {
	if p.line == nil {
		return nil
	}
	var err error
	if rerr := p.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); rerr != nil {
		err = multierr.Append(err, fmt.Errorf("reconfigure %s pin: %w", p.label, rerr))
	}
	if cerr := p.line.Close(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("close %s pin: %w", p.label, cerr))
	}
	p.line = nil
	return err
}

// RealRelay drives the pump relay through an output line.
type RealRelay struct {
	pin     int
	line    *gpiocdev.Line
	running bool
}

// NewRealRelay requests pin on chip as an output, initially off.
func NewRealRelay(chip string, pin int) (*RealRelay, error) {
	line, err := gpiocdev.RequestLine(chip, pin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("request pump pin %d: %w", pin, err)
	}
	return &RealRelay{pin: pin, line: line}, nil
}

// On energises the relay.
func (r *RealRelay) On() error {
	if err := r.line.SetValue(1); err != nil {
		return fmt.Errorf("pump pin %d on: %w", r.pin, err)
	}
	r.running = true
	return nil
}

// Off de-energises the relay.
func (r *RealRelay) Off() error {
	if err := r.line.SetValue(0); err != nil {
		return fmt.Errorf("pump pin %d off: %w", r.pin, err)
	}
	r.running = false
	return nil
}

// Running reports whether the relay was last switched on.
func (r *RealRelay) Running() bool {
	return r.running
}

// Close switches the pump off and returns the pin to input with pull-down
// so the relay stays off through a reboot.
func (r *RealRelay) Close() error {
	if r.line == nil {
		return nil
	}
	var err error
	if oerr := r.Off(); oerr != nil {
		err = multierr.Append(err, oerr)
	}
	if rerr := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); rerr != nil {
		err = multierr.Append(err, fmt.Errorf("reconfigure pump pin: %w", rerr))
	}
	if cerr := r.line.Close(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("close pump pin: %w", cerr))
	}
	r.line = nil
	return err
}
