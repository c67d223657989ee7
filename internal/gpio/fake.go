package gpio

import "errors"

// FakeProbe is a test double that returns scripted water readings.
type FakeProbe struct {
	// Readings contains scripted values to return.
	// Each call to WaterPresent() consumes the next reading.
	Readings []bool

	// Name is returned by Label.
	Name string

	// index tracks current position in Readings
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by WaterPresent()
	ReadError error
}

// NewFakeProbe creates a FakeProbe with the given readings.
func NewFakeProbe(name string, readings ...bool) *FakeProbe {
	return &FakeProbe{Name: name, Readings: readings}
}

// WaterPresent returns the next scripted reading.
// If readings are exhausted, returns the last reading repeatedly.
func (f *FakeProbe) WaterPresent() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Readings) == 0 {
		return false, errors.New("no readings configured")
	}

	v := f.Readings[f.index]
	if f.index < len(f.Readings)-1 {
		f.index++
	}
	return v, nil
}

// Label returns the configured name.
func (f *FakeProbe) Label() string {
	return f.Name
}

// Close marks the probe as closed.
func (f *FakeProbe) Close() error {
	f.Closed = true
	return nil
}

// Set replaces the script with a single constant reading.
func (f *FakeProbe) Set(present bool) {
	f.Readings = []bool{present}
	f.index = 0
}

// Reset rewinds to the beginning of the readings.
func (f *FakeProbe) Reset() {
	f.index = 0
	f.Closed = false
}

// Sample is one scripted reading of both probes.
type Sample struct {
	Bottom bool
	Top    bool
}

// NewFakeProbes splits samples into a bottom and a top FakeProbe that
// advance in lockstep when each is read once per tick.
func NewFakeProbes(samples []Sample) (bottom, top *FakeProbe) {
	bottom = &FakeProbe{Name: "Bottom"}
	top = &FakeProbe{Name: "Top"}
	for _, s := range samples {
		bottom.Readings = append(bottom.Readings, s.Bottom)
		top.Readings = append(top.Readings, s.Top)
	}
	return bottom, top
}

// FakeRelay is a test double that records every switch.
type FakeRelay struct {
	// History records each successful write, true = on.
	History []bool

	// OnError and OffError, if set, are returned by On() and Off().
	OnError  error
	OffError error

	Closed bool

	running bool
}

// NewFakeRelay creates a FakeRelay that starts off.
func NewFakeRelay() *FakeRelay {
	return &FakeRelay{}
}

func (f *FakeRelay) On() error {
	if f.OnError != nil {
		return f.OnError
	}
	f.running = true
	f.History = append(f.History, true)
	return nil
}

func (f *FakeRelay) Off() error {
	if f.OffError != nil {
		return f.OffError
	}
	f.running = false
	f.History = append(f.History, false)
	return nil
}

func (f *FakeRelay) Running() bool {
	return f.running
}

// Close turns the relay off and marks it closed.
func (f *FakeRelay) Close() error {
	f.running = false
	f.Closed = true
	return nil
}

// OnCount returns how many times the relay was switched on.
func (f *FakeRelay) OnCount() int {
	n := 0
	for _, v := range f.History {
		if v {
			n++
		}
	}
	return n
}
