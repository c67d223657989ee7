package gpio

import (
	"errors"
	"testing"
)

func TestFakeProbeRead(t *testing.T) {
	f := NewFakeProbe("Bottom", true, false, true)

	want := []bool{true, false, true, true}
	for i, w := range want {
		got, err := f.WaterPresent()
		if err != nil {
			t.Fatalf("reading %d: unexpected error: %v", i, err)
		}
		if got != w {
			t.Errorf("reading %d: expected %v, got %v", i, w, got)
		}
	}
}

func TestFakeProbeNoReadings(t *testing.T) {
	f := NewFakeProbe("Top")

	if _, err := f.WaterPresent(); err == nil {
		t.Error("expected error with no readings")
	}
}

func TestFakeProbeError(t *testing.T) {
	f := NewFakeProbe("Bottom", true)
	f.ReadError = errors.New("simulated error")

	_, err := f.WaterPresent()
	if err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeProbeLabelAndClose(t *testing.T) {
	f := NewFakeProbe("Top", false)
	if f.Label() != "Top" {
		t.Errorf("Label: got %q", f.Label())
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
}

func TestFakeProbeSetAndReset(t *testing.T) {
	f := NewFakeProbe("Bottom", true, false)
	f.WaterPresent()
	f.Reset()

	if got, _ := f.WaterPresent(); got != true {
		t.Errorf("after reset: expected true, got %v", got)
	}

	f.Set(false)
	for i := 0; i < 3; i++ {
		if got, _ := f.WaterPresent(); got {
			t.Errorf("after set: expected false on read %d", i)
		}
	}
}

func TestNewFakeProbes(t *testing.T) {
	bottom, top := NewFakeProbes([]Sample{
		{Bottom: true, Top: false},
		{Bottom: true, Top: true},
	})

	b, _ := bottom.WaterPresent()
	tp, _ := top.WaterPresent()
	if !b || tp {
		t.Errorf("sample 0: expected (true, false), got (%v, %v)", b, tp)
	}
	b, _ = bottom.WaterPresent()
	tp, _ = top.WaterPresent()
	if !b || !tp {
		t.Errorf("sample 1: expected (true, true), got (%v, %v)", b, tp)
	}
	if bottom.Label() != "Bottom" || top.Label() != "Top" {
		t.Errorf("labels: got %q, %q", bottom.Label(), top.Label())
	}
}

func TestFakeRelay(t *testing.T) {
	r := NewFakeRelay()
	if r.Running() {
		t.Fatal("relay should start off")
	}

	r.On()
	if !r.Running() {
		t.Error("expected running after On")
	}
	r.Off()
	r.On()
	if r.OnCount() != 2 {
		t.Errorf("OnCount: got %d, want 2", r.OnCount())
	}

	r.OnError = errors.New("stuck")
	if err := r.On(); err == nil {
		t.Error("expected On error")
	}
	if len(r.History) != 3 {
		t.Errorf("failed write should not be recorded, history %v", r.History)
	}

	r.Close()
	if r.Running() || !r.Closed {
		t.Error("Close should switch off and mark closed")
	}
}

func TestWaterString(t *testing.T) {
	if WaterString(true) != "water" || WaterString(false) != "dry" {
		t.Error("unexpected water strings")
	}
}
