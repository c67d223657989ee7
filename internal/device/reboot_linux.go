//go:build linux

package device

import (
	"fmt"
	"log"

	"golang.org/x/sys/unix"
)

// Reboot restarts the host through the reboot syscall. Requires CAP_SYS_BOOT.
type Reboot struct{}

// Default returns the restarter for this platform.
func Default() Restarter {
	return Reboot{}
}

// Restart flushes filesystems and reboots.
func (Reboot) Restart(reason string) error {
	log.Printf("device: rebooting: %s", reason)
	unix.Sync()
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		return fmt.Errorf("reboot: %w", err)
	}
	return nil
}
