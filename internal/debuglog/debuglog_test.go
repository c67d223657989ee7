package debuglog

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"testing"
)

func TestEmptyDrain(t *testing.T) {
	b := New(10, nil)
	if got := b.Drain(); got != nil {
		t.Errorf("expected nil from empty drain, got %v", got)
	}
}

func TestWriteSplitsLines(t *testing.T) {
	b := New(10, nil)
	fmt.Fprint(b, "one\ntwo\nthr")
	if b.Len() != 2 {
		t.Fatalf("expected 2 complete lines, got %d", b.Len())
	}
	fmt.Fprint(b, "ee\n")

	got := b.Drain()
	want := []string{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, got[i], want[i])
		}
	}

	if b.Drain() != nil {
		t.Error("second drain should be empty")
	}
}

func TestOverflowKeepsNewest(t *testing.T) {
	b := New(3, nil)
	for i := 0; i < 5; i++ {
		fmt.Fprintf(b, "line %d\n", i)
	}

	got := b.Drain()
	want := []string{
		"debuglog: buffer full, dropped 2 lines",
		"line 2",
		"line 3",
		"line 4",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, got[i], want[i])
		}
	}

	// Drop count resets after a drain.
	fmt.Fprintln(b, "again")
	if got := b.Drain(); len(got) != 1 || got[0] != "again" {
		t.Errorf("after drain: got %v", got)
	}
}

func TestDisabledIgnoresWrites(t *testing.T) {
	on := false
	b := New(10, func() bool { return on })

	n, err := fmt.Fprintln(b, "hidden")
	if err != nil || n != 7 {
		t.Errorf("Write should report full length, got %d, %v", n, err)
	}
	if b.Len() != 0 {
		t.Error("disabled buffer should not capture")
	}

	on = true
	fmt.Fprintln(b, "shown")
	if b.Len() != 1 {
		t.Error("enabled buffer should capture")
	}
}

func TestFileToggle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug")
	enabled := FileToggle(path)

	if enabled() {
		t.Error("missing file should disable")
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if !enabled() {
		t.Error("present file should enable")
	}
	if FileToggle("")() {
		t.Error("empty path should disable")
	}
}

func TestCapturesLogOutput(t *testing.T) {
	b := New(10, nil)
	l := log.New(b, "", 0)
	l.Printf("transport: connected, address %s", "10.0.0.2")

	got := b.Drain()
	if len(got) != 1 || got[0] != "transport: connected, address 10.0.0.2" {
		t.Errorf("got %v", got)
	}
}
