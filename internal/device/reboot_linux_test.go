//go:build linux

package device

import "testing"

func TestDefaultIsReboot(t *testing.T) {
	if _, ok := Default().(Reboot); !ok {
		t.Errorf("Default: got %T, want Reboot", Default())
	}
}
